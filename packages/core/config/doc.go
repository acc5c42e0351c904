// Package config handles configuration loading and management for relay.
//
// It provides functionality for:
//   - Loading configuration from .relay.config.json or .relay.yaml files
//   - Default configuration values
//   - RELAY_* environment overrides
package config
