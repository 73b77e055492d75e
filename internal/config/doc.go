// Package config loads heimdex-notes settings from a TOML file, applies
// environment overrides and converts the result into the per-component
// configuration structs. Nothing outside cmd/ and this package reads the
// environment.
package config
