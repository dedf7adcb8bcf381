package stages

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"conveyor/internal/config"
	"conveyor/internal/document"
	"conveyor/internal/failures"
)

// Generate renders the final artifact into the output directory and records
// its path on the document.
func Generate(_ context.Context, doc *document.Document, cfg *config.Config) (*document.Document, error) {
	if err := os.MkdirAll(cfg.Paths.OutputDir, 0o755); err != nil {
		return nil, failures.Wrap(failures.ErrGeneration, StageGeneration, "render", "create output directory", err)
	}

	out := doc.Clone()
	target := filepath.Join(cfg.Paths.OutputDir, out.Slug()+".md")
	if err := os.WriteFile(target, []byte(render(out)), 0o644); err != nil {
		return nil, failures.Wrap(failures.ErrGeneration, StageGeneration, "render", "write artifact", err)
	}
	out.ArtifactPath = target
	return out, nil
}

// render flattens the document back to markdown in its selected layout. Deck
// layout separates sections with horizontal rules so slide tooling can split
// them.
func render(doc *document.Document) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n", doc.Title)
	if doc.Body != "" {
		b.WriteString("\n" + doc.Body + "\n")
	}
	for _, section := range doc.Sections {
		if doc.Layout == "deck" {
			b.WriteString("\n---\n")
		}
		fmt.Fprintf(&b, "\n%s %s\n", strings.Repeat("#", section.Level+1), section.Heading)
		if section.Body != "" {
			b.WriteString("\n" + section.Body + "\n")
		}
	}
	return b.String()
}
