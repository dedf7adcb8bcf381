// Package stage defines the stage function contract and the ordered registry
// that classifies each stage as critical or degradable.
package stage
