// Package config loads, normalizes, and validates Conveyor's TOML
// configuration. Path fields are expanded to absolute paths during Load so
// downstream packages never see "~" or relative segments.
package config
