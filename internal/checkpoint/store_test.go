package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(t.TempDir(), Options{})
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func snapshotFor(stage string, stages ...string) Snapshot {
	if len(stages) == 0 {
		stages = []string{"ingestion", stage}
	}
	return Snapshot{
		Stages:   stages,
		Config:   json.RawMessage(`{"enable_retry":true}`),
		Results:  json.RawMessage(`[]`),
		Document: json.RawMessage(`{"title":"doc"}`),
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	record, err := store.Save(ctx, "extraction", snapshotFor("extraction"))
	if err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	if record.ID == "" || record.StageName != "extraction" {
		t.Fatalf("unexpected record: %+v", record)
	}
	if !strings.HasPrefix(record.ID, "extraction-") {
		t.Fatalf("expected stage-prefixed id, got %q", record.ID)
	}

	loaded, err := store.Load(ctx, record.ID)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if loaded.StageName != "extraction" {
		t.Fatalf("unexpected stage name: %q", loaded.StageName)
	}
	// The payload is stored re-indented, so compare decoded content rather
	// than bytes.
	var doc struct {
		Title string `json:"title"`
	}
	if err := json.Unmarshal(loaded.Document, &doc); err != nil {
		t.Fatalf("decode document payload: %v", err)
	}
	if doc.Title != "doc" {
		t.Fatalf("unexpected document payload: %s", loaded.Document)
	}
	if len(loaded.Stages) != 2 {
		t.Fatalf("unexpected stage sequence: %v", loaded.Stages)
	}
}

func TestLoadMissingReturnsNotFound(t *testing.T) {
	store := openTestStore(t)
	if _, err := store.Load(context.Background(), "extraction-12345"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := store.Load(context.Background(), ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for empty id, got %v", err)
	}
}

func TestLatestAndForStage(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	latest, err := store.Latest(ctx)
	if err != nil {
		t.Fatalf("Latest returned error: %v", err)
	}
	if latest != nil {
		t.Fatal("expected nil latest for empty store")
	}

	if _, err := store.Save(ctx, "ingestion", snapshotFor("ingestion")); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	second, err := store.Save(ctx, "extraction", snapshotFor("extraction"))
	if err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	latest, err = store.Latest(ctx)
	if err != nil {
		t.Fatalf("Latest returned error: %v", err)
	}
	if latest == nil || latest.ID != second.ID {
		t.Fatalf("unexpected latest checkpoint: %+v", latest)
	}

	forStage, err := store.ForStage(ctx, "Ingestion")
	if err != nil {
		t.Fatalf("ForStage returned error: %v", err)
	}
	if forStage == nil || forStage.StageName != "ingestion" {
		t.Fatalf("unexpected for-stage checkpoint: %+v", forStage)
	}

	missing, err := store.ForStage(ctx, "generation")
	if err != nil {
		t.Fatalf("ForStage returned error: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for unknown stage, got %+v", missing)
	}
}

func TestCleanupKeepsMostRecent(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	stages := []string{"ingestion", "extraction", "transformation", "layout", "validation"}
	var lastThree []string
	for i, stage := range stages {
		record, err := store.Save(ctx, stage, snapshotFor(stage))
		if err != nil {
			t.Fatalf("Save %q returned error: %v", stage, err)
		}
		if i >= len(stages)-3 {
			lastThree = append(lastThree, record.ID)
		}
	}

	records, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected automatic cleanup to keep 3 checkpoints, found %d", len(records))
	}
	for i, record := range records {
		if record.ID != lastThree[i] {
			t.Fatalf("expected %q at position %d, got %q", lastThree[i], i, record.ID)
		}
	}

	// Payload files for pruned checkpoints are gone, kept ones remain.
	entries, err := os.ReadDir(store.Dir())
	if err != nil {
		t.Fatalf("read store dir: %v", err)
	}
	payloads := 0
	for _, entry := range entries {
		if filepath.Ext(entry.Name()) == ".json" {
			payloads++
		}
	}
	if payloads != 3 {
		t.Fatalf("expected 3 payload files after cleanup, found %d", payloads)
	}
}

func TestCleanupKeepsAllWhenFewerThanKeep(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if _, err := store.Save(ctx, "ingestion", snapshotFor("ingestion")); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	removed, err := store.Cleanup(ctx, 3)
	if err != nil {
		t.Fatalf("Cleanup returned error: %v", err)
	}
	if removed != 0 {
		t.Fatalf("expected no removals, got %d", removed)
	}
	records, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 checkpoint, found %d", len(records))
	}
}

func TestOrphanedPayloadIsTolerated(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	orphan := filepath.Join(store.Dir(), "orphan-123.json")
	if err := os.WriteFile(orphan, []byte(`{"stage_name":"ghost"}`), 0o644); err != nil {
		t.Fatalf("write orphan payload: %v", err)
	}

	record, err := store.Save(ctx, "extraction", snapshotFor("extraction"))
	if err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	records, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(records) != 1 || records[0].ID != record.ID {
		t.Fatalf("orphan payload should not appear in index: %+v", records)
	}
}

func TestSaveRefusesNearlyFullFilesystem(t *testing.T) {
	store := openTestStore(t)
	store.statfs = func(string) (uint64, uint64, error) {
		return 1000, 5, nil // 0.5% free
	}
	if _, err := store.Save(context.Background(), "extraction", snapshotFor("extraction")); err == nil {
		t.Fatal("expected save to refuse a nearly full filesystem")
	}
}

func TestSaveRequiresStageName(t *testing.T) {
	store := openTestStore(t)
	if _, err := store.Save(context.Background(), "", Snapshot{}); err == nil {
		t.Fatal("expected error for missing stage name")
	}
}
