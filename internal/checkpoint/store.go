package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"conveyor/internal/logging"
)

// ErrNotFound reports a checkpoint id or stage with no stored checkpoint.
var ErrNotFound = errors.New("checkpoint not found")

const defaultKeep = 3

// Store owns one checkpoint namespace: an index database plus one payload
// file per checkpoint, all under a single directory. A Store handle is passed
// explicitly into the orchestrator; there is no shared global index.
type Store struct {
	dir    string
	db     *sql.DB
	keep   int
	logger *slog.Logger
	statfs statfsFunc
}

// Options configures store construction.
type Options struct {
	// Keep is the number of checkpoints retained by the automatic cleanup
	// after every successful save. Defaults to 3.
	Keep   int
	Logger *slog.Logger
}

// Open initializes or connects to the checkpoint namespace rooted at dir.
func Open(dir string, opts Options) (*Store, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("checkpoint directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create checkpoint directory: %w", err)
	}

	db, err := sql.Open("sqlite", filepath.Join(dir, "index.db"))
	if err != nil {
		return nil, fmt.Errorf("open checkpoint index: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	keep := opts.Keep
	if keep <= 0 {
		keep = defaultKeep
	}

	store := &Store{
		dir:    dir,
		db:     db,
		keep:   keep,
		logger: logging.NewComponentLogger(opts.Logger, "checkpoint"),
		statfs: realStatfs,
	}
	if err := store.applySchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying index database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Dir returns the namespace directory.
func (s *Store) Dir() string {
	return s.dir
}

// Save persists a snapshot and returns its index record. The payload file is
// written (and fsynced via rename) before the index row is inserted, so a
// crash mid-save can orphan a payload but never leaves the index pointing at
// a missing file. Cleanup runs automatically after every successful save.
func (s *Store) Save(ctx context.Context, stageName string, snap Snapshot) (Record, error) {
	stageName = strings.ToLower(strings.TrimSpace(stageName))
	if stageName == "" {
		return Record{}, errors.New("checkpoint stage name is required")
	}

	if err := s.ensureFreeSpace(); err != nil {
		return Record{}, err
	}

	now := time.Now().UTC()
	record := Record{
		ID:        fmt.Sprintf("%s-%d", sanitizeStage(stageName), now.UnixNano()),
		StageName: stageName,
		CreatedAt: now,
	}

	payload, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return Record{}, fmt.Errorf("marshal checkpoint payload: %w", err)
	}
	if err := s.writePayload(record.ID, payload); err != nil {
		return Record{}, err
	}

	if _, err := s.db.ExecContext(
		ctx,
		`INSERT INTO checkpoints (id, stage_name, created_at) VALUES (?, ?, ?)`,
		record.ID,
		record.StageName,
		record.CreatedAt.UnixNano(),
	); err != nil {
		// The payload becomes unreachable garbage; remove it best-effort.
		_ = os.Remove(s.payloadPath(record.ID))
		return Record{}, fmt.Errorf("index checkpoint: %w", err)
	}

	s.logger.InfoContext(ctx, "checkpoint saved",
		logging.String(logging.FieldCheckpointID, record.ID),
		logging.String(logging.FieldStage, record.StageName),
	)

	if _, err := s.Cleanup(ctx, s.keep); err != nil {
		return Record{}, fmt.Errorf("cleanup after save: %w", err)
	}
	return record, nil
}

// Load returns the checkpoint with the given id, or ErrNotFound.
func (s *Store) Load(ctx context.Context, id string) (*Checkpoint, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: empty checkpoint id", ErrNotFound)
	}
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, stage_name, created_at FROM checkpoints WHERE id = ?`,
		id,
	)
	return s.scanCheckpoint(row)
}

// Latest returns the most recently created checkpoint, or nil when the store
// is empty.
func (s *Store) Latest(ctx context.Context) (*Checkpoint, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, stage_name, created_at FROM checkpoints ORDER BY created_at DESC, id DESC LIMIT 1`,
	)
	cp, err := s.scanCheckpoint(row)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return cp, err
}

// ForStage returns the most recent checkpoint recorded for the named stage,
// or nil when none exists.
func (s *Store) ForStage(ctx context.Context, stageName string) (*Checkpoint, error) {
	stageName = strings.ToLower(strings.TrimSpace(stageName))
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, stage_name, created_at FROM checkpoints WHERE stage_name = ? ORDER BY created_at DESC, id DESC LIMIT 1`,
		stageName,
	)
	cp, err := s.scanCheckpoint(row)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return cp, err
}

// List returns all index records ordered oldest first.
func (s *Store) List(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, stage_name, created_at FROM checkpoints ORDER BY created_at, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// Cleanup deletes all but the keep most-recently-created checkpoints. Index
// rows are removed before payload files so a crash mid-cleanup leaves only
// orphaned payloads, never dangling index entries. Returns the number of
// checkpoints removed.
func (s *Store) Cleanup(ctx context.Context, keep int) (int, error) {
	if keep < 1 {
		keep = s.keep
	}

	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, stage_name, created_at FROM checkpoints ORDER BY created_at DESC, id DESC LIMIT -1 OFFSET ?`,
		keep,
	)
	if err != nil {
		return 0, fmt.Errorf("select expired checkpoints: %w", err)
	}
	var expired []Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			rows.Close()
			return 0, err
		}
		expired = append(expired, record)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, err
	}
	rows.Close()

	if len(expired) == 0 {
		return 0, nil
	}

	for _, record := range expired {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE id = ?`, record.ID); err != nil {
			return 0, fmt.Errorf("delete index entry %s: %w", record.ID, err)
		}
		if err := os.Remove(s.payloadPath(record.ID)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return 0, fmt.Errorf("remove payload %s: %w", record.ID, err)
		}
		s.logger.DebugContext(ctx, "checkpoint pruned",
			logging.String(logging.FieldCheckpointID, record.ID),
			logging.String(logging.FieldStage, record.StageName),
		)
	}
	return len(expired), nil
}

func (s *Store) scanCheckpoint(row *sql.Row) (*Checkpoint, error) {
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.payloadPath(record.ID))
	if err != nil {
		return nil, fmt.Errorf("read checkpoint payload %s: %w", record.ID, err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode checkpoint payload %s: %w", record.ID, err)
	}
	return &Checkpoint{Record: record, Snapshot: snap}, nil
}

func scanRecord(scanner interface{ Scan(dest ...any) error }) (Record, error) {
	var (
		id          string
		stageName   string
		createdNano int64
	)
	if err := scanner.Scan(&id, &stageName, &createdNano); err != nil {
		return Record{}, err
	}
	return Record{
		ID:        id,
		StageName: stageName,
		CreatedAt: time.Unix(0, createdNano).UTC(),
	}, nil
}

// writePayload writes the payload to a temp file in the same directory and
// renames it into place so readers never observe a partial payload.
func (s *Store) writePayload(id string, payload []byte) error {
	target := s.payloadPath(id)
	tmp, err := os.CreateTemp(s.dir, id+".tmp-*")
	if err != nil {
		return fmt.Errorf("create payload temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write payload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close payload temp file: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("install payload: %w", err)
	}
	return nil
}

func (s *Store) payloadPath(id string) string {
	return filepath.Join(s.dir, id+".json")
}

func sanitizeStage(name string) string {
	replacer := strings.NewReplacer("/", "-", "\\", "-", " ", "-", ":", "-")
	return strings.Trim(replacer.Replace(name), "-_.")
}
