// Package version provides build version information for the application.
// It is separate from cli so the mock server can report it too.
package version

// Version is the build version string, set by ldflags during build.
// Format: vX.Y.Z or vX.Y.Z-dev for development builds.
var Version = "v0.9.0-dev"

// BuildTime is the build timestamp, set by ldflags during build.
var BuildTime = "unknown"

// String returns the version line shown by --version.
func String() string {
	return Version + " (" + BuildTime + ")"
}
