// Package logging builds slog loggers with Conveyor's console and JSON
// handlers and defines the standardized structured field names used across
// the pipeline.
package logging
