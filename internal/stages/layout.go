package stages

import (
	"context"

	"conveyor/internal/config"
	"conveyor/internal/document"
	"conveyor/internal/failures"
)

// deckSectionLimit is the section count above which auto layout prefers the
// article form; short documents render better as decks.
const deckSectionLimit = 8

// Layout selects the output layout for the document. An explicit
// pipeline.layout setting wins; auto chooses by document shape.
func Layout(_ context.Context, doc *document.Document, cfg *config.Config) (*document.Document, error) {
	out := doc.Clone()

	choice := cfg.Pipeline.Layout
	switch choice {
	case "", "auto":
		choice = autoLayout(out)
	case "article", "deck":
	default:
		return nil, failures.Wrap(failures.ErrValidation, StageLayout, "select",
			"unknown layout "+choice, nil)
	}

	out.Layout = choice
	out.Metadata["layout"] = choice
	return out, nil
}

func autoLayout(doc *document.Document) string {
	if len(doc.Sections) == 0 || len(doc.Sections) > deckSectionLimit {
		return "article"
	}
	for _, section := range doc.Sections {
		if len(section.Body) > 600 {
			return "article"
		}
	}
	return "deck"
}
