package version

import "fmt"

// Заполняются при сборке: -ldflags "-X .../internal/version.version=v1.2.3 ...".
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// GetVersion returns the semantic version of the cart service build.
func GetVersion() string { return version }

// GetCommit returns the git commit the binary was built from.
func GetCommit() string { return commit }

// GetDate returns the build date.
func GetDate() string { return date }

// String returns the one-line build description printed by `cartd -version`.
func String() string {
	return fmt.Sprintf("cartd version=%s commit=%s date=%s", version, commit, date)
}
