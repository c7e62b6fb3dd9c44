// Package codereel holds module-level metadata.
package codereel

// Version is the current release version
const Version = "0.1.0"
