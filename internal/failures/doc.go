// Package failures defines Conveyor's failure taxonomy: sentinel markers for
// classification, reporting severities, and per-stage remediation guidance.
// Retry and abort decisions are made by marker membership via errors.Is,
// never by message inspection.
package failures
