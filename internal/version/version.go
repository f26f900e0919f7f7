// Package version holds build information shown by the CLI.
package version

// Version is the build version string, set by main at startup.
var Version = "v0.1.0-dev"

// BuildTime is the build timestamp.
var BuildTime = "unknown"
