package stages

import (
	"context"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"conveyor/internal/config"
	"conveyor/internal/document"
	"conveyor/internal/failures"
)

var headingCaser = cases.Title(language.English, cases.NoLower)

// Transform normalizes the extracted sections: headings get consistent title
// casing, bodies lose trailing whitespace, and empty sections are dropped
// when a non-empty sibling exists.
func Transform(_ context.Context, doc *document.Document, _ *config.Config) (*document.Document, error) {
	if len(doc.Sections) == 0 {
		return nil, failures.Wrap(failures.ErrTransformation, StageTransformation, "normalize",
			"no sections to transform", nil)
	}

	out := doc.Clone()
	normalized := make([]document.Section, 0, len(out.Sections))
	for _, section := range out.Sections {
		section.Heading = headingCaser.String(strings.TrimSpace(section.Heading))
		section.Body = strings.TrimSpace(section.Body)
		if section.Heading == "" && section.Body == "" {
			continue
		}
		normalized = append(normalized, section)
	}
	if len(normalized) == 0 {
		return nil, failures.Wrap(failures.ErrTransformation, StageTransformation, "normalize",
			"all sections were empty after normalization", nil)
	}
	out.Sections = normalized
	out.Title = headingCaser.String(strings.TrimSpace(out.Title))
	return out, nil
}
