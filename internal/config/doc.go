// Package config handles loading, parsing, and validating application
// configuration from environment variables and config files.
package config
