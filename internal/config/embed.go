package config

import _ "embed"

//go:embed sample_config.toml
var sampleConfig string

// Sample returns the embedded sample configuration file contents.
func Sample() string {
	return sampleConfig
}
