package testsupport

import (
	"testing"

	"conveyor/internal/checkpoint"
	"conveyor/internal/config"
)

// OpenStore opens a checkpoint store in the config's workspace and closes it
// when the test finishes.
func OpenStore(t testing.TB, cfg *config.Config, keep int) *checkpoint.Store {
	t.Helper()
	store, err := checkpoint.Open(cfg.CheckpointDir(), checkpoint.Options{Keep: keep})
	if err != nil {
		t.Fatalf("open checkpoint store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}
