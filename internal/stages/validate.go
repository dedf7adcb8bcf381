package stages

import (
	"context"
	"fmt"

	"conveyor/internal/config"
	"conveyor/internal/document"
	"conveyor/internal/failures"
)

const maxHeadingDepth = 3

// Validate checks the transformed document for structural problems: empty
// section bodies and heading nesting deeper than the renderers support.
func Validate(_ context.Context, doc *document.Document, _ *config.Config) (*document.Document, error) {
	var problems []string
	for _, section := range doc.Sections {
		if section.Body == "" {
			problems = append(problems, fmt.Sprintf("section %s (%q) has no body", section.ID, section.Heading))
		}
		if section.Level > maxHeadingDepth {
			problems = append(problems, fmt.Sprintf("section %s (%q) nests to level %d", section.ID, section.Heading, section.Level))
		}
	}
	if len(problems) > 0 {
		return nil, failures.Wrap(failures.ErrValidation, StageValidation, "check",
			fmt.Sprintf("%d problem(s): %v", len(problems), problems), nil)
	}

	out := doc.Clone()
	out.Metadata["validation"] = "passed"
	return out, nil
}

// SkipValidation is the registered fallback for the validation stage: the
// run continues with the document marked unvalidated.
func SkipValidation(_ context.Context, doc *document.Document, _ *config.Config) (*document.Document, error) {
	out := doc.Clone()
	out.Metadata["validation"] = "skipped"
	return out, nil
}
