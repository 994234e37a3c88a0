// Package version holds the build version, set at link time with
// -ldflags "-X github.com/ppiankov/tagwatch/internal/version.Version=...".
package version

// Version is the tagwatch release version.
var Version = "dev"

// UserAgent is sent on every registry request.
func UserAgent() string {
	return "tagwatch/" + Version
}
