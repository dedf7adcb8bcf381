package failures

import "errors"

// Severity grades failures for reporting and sorting. It never drives
// control flow; retry and abort decisions come from the sentinel markers.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityCritical:
		return "critical"
	case SeverityHigh:
		return "high"
	case SeverityMedium:
		return "medium"
	default:
		return "low"
	}
}

// SeverityOf maps an error to its reporting severity.
func SeverityOf(err error) Severity {
	switch {
	case err == nil:
		return SeverityLow
	case errors.Is(err, ErrCritical):
		return SeverityCritical
	case errors.Is(err, ErrCheckpoint), errors.Is(err, ErrGeneration):
		return SeverityHigh
	case errors.Is(err, ErrValidation), errors.Is(err, ErrTransformation):
		return SeverityMedium
	default:
		return SeverityLow
	}
}
