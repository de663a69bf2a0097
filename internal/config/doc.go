// Package config implements the configuration store for the Volume Sync Container.
//
// Configuration is assembled from baseline defaults, an optional YAML file,
// and VSC_* environment overrides, then validated before use.
package config
