// Package version holds the build-time version string, overwritten by
// magefile.go's Build target via -ldflags.
package version

var version = "dev"

// String returns the build's resolved version.
func String() string {
	return version
}
