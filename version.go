package storefront

import (
	"strings"

	"golang.org/x/mod/semver"
)

// IsRelease reports whether v is a plain MAJOR.MINOR.PATCH release, not a dev
// or pre-release build.
func IsRelease(v string) bool {
	if strings.HasPrefix(v, "v") {
		return false
	}
	canonical := "v" + v
	return semver.IsValid(canonical) && semver.Canonical(canonical) == canonical && semver.Prerelease(canonical) == "" && semver.Build(canonical) == ""
}

// Version of the storefront binary (set by linker).
var Version = "dev"

// Timestamp of the storefront binary (set by linker).
var Timestamp = "0"
