// Package config handles configuration loading for tentspec.
//
// It provides functionality for:
//   - Loading tentspec.yaml (or a JSON equivalent)
//   - Default configuration values
//   - TENT_* environment overrides for the remote server, its MAC
//     credentials and the embedded peer's database
package config
