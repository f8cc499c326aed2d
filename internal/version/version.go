// Package version holds build metadata, injected at compile time via
// ldflags and overridable at runtime via OPENGOAT_VERSION.
package version

import "os"

// Version is the application version. Override via ldflags:
//
//	go build -ldflags "-X opengoat/internal/version.Version=1.2.3 -X opengoat/internal/version.Build=153"
var Version = "0.0.1"

// Build is the build number, injected at compile time.
var Build = "dev"

// OpenClawCompat is the minimum compatible OpenClaw version (e.g. ">=2025.1.15").
var OpenClawCompat = ">=2025.1.15"

// Resolved returns the effective version string: OPENGOAT_VERSION env
// var if set, else the compiled-in Version.
func Resolved() string {
	if v := os.Getenv("OPENGOAT_VERSION"); v != "" {
		return v
	}
	return Version
}
