// Package version records build metadata stamped at link time via
// -ldflags. The defaults identify a from-source build.
package version

var (
	// Version is the semantic version of the binary.
	Version = "dev"
	// Commit is the short git hash the binary was built from.
	Commit = "none"
	// Date is the build timestamp.
	Date = "unknown"
)
