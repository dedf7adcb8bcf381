package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteSource writes a source document into a fresh temp directory and
// returns its path.
func WriteSource(t testing.TB, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write source %s: %v", name, err)
	}
	return path
}
