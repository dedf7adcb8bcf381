package checkpoint

import (
	"context"
	"fmt"
)

const schema = `
CREATE TABLE IF NOT EXISTS checkpoints (
    id         TEXT PRIMARY KEY,
    stage_name TEXT NOT NULL,
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_checkpoints_stage ON checkpoints (stage_name, created_at);
CREATE INDEX IF NOT EXISTS idx_checkpoints_created ON checkpoints (created_at);
`

func (s *Store) applySchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply checkpoint schema: %w", err)
	}
	return nil
}
