package stages

import (
	"context"
	"fmt"
	"strings"

	"conveyor/internal/config"
	"conveyor/internal/document"
	"conveyor/internal/failures"
)

// Extract splits the ingested body into heading-delimited sections. Content
// before the first heading becomes the document preamble and stays in Body.
func Extract(_ context.Context, doc *document.Document, _ *config.Config) (*document.Document, error) {
	if strings.TrimSpace(doc.Body) == "" {
		return nil, failures.Wrap(failures.ErrValidation, StageExtraction, "split", "document body is empty", nil)
	}

	out := doc.Clone()
	out.Sections = nil

	var (
		preamble []string
		current  *document.Section
	)
	flush := func() {
		if current != nil {
			current.Body = strings.TrimSpace(current.Body)
			out.Sections = append(out.Sections, *current)
			current = nil
		}
	}

	for _, line := range strings.Split(doc.Body, "\n") {
		level, heading := headingOf(line)
		if level == 0 {
			if current == nil {
				preamble = append(preamble, line)
			} else {
				current.Body += line + "\n"
			}
			continue
		}
		flush()
		current = &document.Section{
			ID:      fmt.Sprintf("s%d", len(out.Sections)+1),
			Heading: heading,
			Level:   level,
		}
	}
	flush()

	out.Body = strings.TrimSpace(strings.Join(preamble, "\n"))
	return out, nil
}

// headingOf returns the ATX heading level and text of a line, or level 0 for
// ordinary content.
func headingOf(line string) (int, string) {
	trimmed := strings.TrimSpace(line)
	level := 0
	for level < len(trimmed) && trimmed[level] == '#' {
		level++
	}
	if level == 0 || level > 6 || level >= len(trimmed) || trimmed[level] != ' ' {
		return 0, ""
	}
	return level, strings.TrimSpace(trimmed[level:])
}
