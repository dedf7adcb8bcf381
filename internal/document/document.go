package document

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
)

// Section is one structural unit of a working document.
type Section struct {
	ID      string `json:"id"`
	Heading string `json:"heading"`
	Body    string `json:"body"`
	Level   int    `json:"level"`
}

// Document is the working document threaded from stage to stage. Stages must
// treat their input as read-only and return a new document (use Clone), so
// re-invocation after a retry never observes partial mutation.
type Document struct {
	SourcePath   string            `json:"source_path"`
	Title        string            `json:"title"`
	Layout       string            `json:"layout,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	Sections     []Section         `json:"sections,omitempty"`
	Body         string            `json:"body,omitempty"`
	ArtifactPath string            `json:"artifact_path,omitempty"`
}

// New returns an empty document pointed at a source file.
func New(sourcePath string) *Document {
	return &Document{
		SourcePath: sourcePath,
		Metadata:   make(map[string]string),
	}
}

// Clone returns a deep copy of the document.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	clone := *d
	if d.Metadata != nil {
		clone.Metadata = make(map[string]string, len(d.Metadata))
		for k, v := range d.Metadata {
			clone.Metadata[k] = v
		}
	}
	if d.Sections != nil {
		clone.Sections = make([]Section, len(d.Sections))
		copy(clone.Sections, d.Sections)
	}
	return &clone
}

// Marshal serializes the document for checkpoint payloads and bundles.
func (d *Document) Marshal() ([]byte, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("marshal document: %w", err)
	}
	return data, nil
}

// Unmarshal restores a document from its serialized form.
func Unmarshal(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal document: %w", err)
	}
	if doc.Metadata == nil {
		doc.Metadata = make(map[string]string)
	}
	return &doc, nil
}

// Slug derives a filesystem-friendly name for artifacts from the title or
// source path.
func (d *Document) Slug() string {
	base := strings.TrimSpace(d.Title)
	if base == "" {
		base = filepath.Base(d.SourcePath)
		base = strings.TrimSuffix(base, filepath.Ext(base))
	}
	if base == "" {
		return "document"
	}
	replacer := strings.NewReplacer(
		" ", "-",
		"/", "-",
		"\\", "-",
		":", "-",
		"*", "",
		"?", "",
		"\"", "",
		"<", "",
		">", "",
		"|", "",
	)
	slug := strings.ToLower(replacer.Replace(base))
	slug = strings.Trim(slug, "-_.")
	if slug == "" {
		return "document"
	}
	return slug
}
