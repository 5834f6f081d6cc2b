package config

// Version is the release of the optimizer reported by the CLI and the health
// endpoint.
const Version = "0.3.0"

// GetVersion returns the current version
func GetVersion() string {
	return Version
}
