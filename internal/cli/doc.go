// Package cli implements the vsc command line interface.
package cli
