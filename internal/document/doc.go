// Package document defines the working document that flows through the
// pipeline. The orchestrator treats it as an opaque, JSON-serializable value;
// only stage implementations look inside.
package document
