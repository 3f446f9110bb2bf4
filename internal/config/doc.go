// Package config provides configuration loading and validation for the Hexpert
// voice relay service. It handles YAML-based configuration with per-section
// struct validation and environment variable overrides for credentials and
// model names.
package config
