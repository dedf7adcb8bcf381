// Package stages supplies the built-in document conversion stages and wires
// them into the default pipeline registry: ingestion, extraction,
// transformation, layout, validation, and generation. The orchestrator knows
// nothing about their internals; each is an ordinary stage function.
package stages
