// Package auth implements JWT bearer token verification for the Volume
// Sync Container API.
//
// Tokens are verified with HS256 (shared secret) or RS256 (PEM public
// key). Claims carry scopes: read for listings, control for task
// submission, telemetry for the event stream.
package auth
