// Package version pins the module's release version for CLI reporting.
package version

// Current is the semantic version of this module, without a v prefix.
const Current = "0.1.0"
