package task

import (
	"context"
	"fmt"
)

const schema = `
CREATE TABLE IF NOT EXISTS tasks (
    id                 TEXT PRIMARY KEY,
    kind               TEXT NOT NULL,
    params_json        TEXT NOT NULL,
    status             TEXT NOT NULL,
    progress           REAL NOT NULL DEFAULT 0,
    stage_outputs_json TEXT,
    error_message      TEXT,
    degradation        TEXT,
    cancel_requested   INTEGER NOT NULL DEFAULT 0,
    created_at         TEXT NOT NULL,
    updated_at         TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
CREATE INDEX IF NOT EXISTS idx_tasks_created_at ON tasks(created_at);
`

func (s *Store) applySchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
