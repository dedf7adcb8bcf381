package stages

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"conveyor/internal/config"
	"conveyor/internal/document"
	"conveyor/internal/failures"
)

// supportedExtensions maps source extensions to their recorded format label.
var supportedExtensions = map[string]string{
	".md":       "markdown",
	".markdown": "markdown",
	".txt":      "text",
}

// Ingest reads the source file into a fresh working document. The source path
// comes from the input document; everything else is derived here.
func Ingest(_ context.Context, doc *document.Document, _ *config.Config) (*document.Document, error) {
	source := strings.TrimSpace(doc.SourcePath)
	if source == "" {
		return nil, failures.Wrap(failures.ErrCritical, StageIngestion, "read", "no source path provided", nil)
	}

	ext := strings.ToLower(filepath.Ext(source))
	format, ok := supportedExtensions[ext]
	if !ok {
		return nil, failures.Wrap(failures.ErrCritical, StageIngestion, "read",
			"unsupported source format "+ext, nil)
	}

	raw, err := os.ReadFile(source)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, failures.Wrap(failures.ErrCritical, StageIngestion, "read", "source file does not exist", err)
	}
	if err != nil {
		// Transient read errors (NFS hiccup, contention) are worth a retry.
		return nil, failures.Wrap(failures.ErrRecoverable, StageIngestion, "read", "read source file", err)
	}

	out := doc.Clone()
	out.Body = string(raw)
	out.Title = deriveTitle(source, string(raw))
	out.Metadata["source_format"] = format
	return out, nil
}

// deriveTitle prefers the first top-level heading, falling back to the file
// name.
func deriveTitle(source, body string) string {
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "# "))
		}
	}
	base := filepath.Base(source)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
