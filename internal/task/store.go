package task

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"reelgen/internal/config"
	"reelgen/internal/services"
)

// Store manages task persistence backed by SQLite. All executor-side
// mutation goes through CompareAndUpdate so concurrent writers cannot lose
// updates.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the task database and applies the schema.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := filepath.Join(cfg.Paths.DataDir, "tasks.db")
	// Pragmas go in the DSN so every pooled connection gets them; applying
	// them with db.Exec would bind them to a single connection only.
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	store := &Store{db: db, path: dbPath}
	if err := store.applySchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Create inserts a new task in Pending status and returns it.
func (s *Store) Create(ctx context.Context, kind Kind, params Params) (*Task, error) {
	now := time.Now().UTC()
	t := &Task{
		ID:        uuid.NewString(),
		Kind:      kind,
		Params:    params,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	paramsJSON, err := json.Marshal(t.Params)
	if err != nil {
		return nil, fmt.Errorf("marshal params: %w", err)
	}
	timestamp := now.Format(time.RFC3339Nano)

	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO tasks (
            id, kind, params_json, status, progress, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID,
		string(t.Kind),
		string(paramsJSON),
		t.Status,
		0.0,
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}
	return t, nil
}

// GetByID fetches a task by identifier.
func (s *Store) GetByID(ctx context.Context, id string) (*Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: task %s", services.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

// Put persists a full overwrite of an existing task.
func (s *Store) Put(ctx context.Context, t *Task) error {
	if t == nil {
		return errors.New("task is nil")
	}
	t.UpdatedAt = time.Now().UTC()
	columns, args, err := updateArgs(t)
	if err != nil {
		return err
	}
	args = append(args, t.ID)
	res, err := s.db.ExecContext(ctx, `UPDATE tasks SET `+columns+` WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: task %s", services.ErrNotFound, t.ID)
	}
	return nil
}

// CompareAndUpdate loads the task, verifies its status matches expected,
// applies mutate to a working copy, and persists the result only if the
// stored status is still the expected one. A failed expectation returns a
// conflict error and leaves the record untouched.
func (s *Store) CompareAndUpdate(ctx context.Context, id string, expected Status, mutate func(*Task) error) (*Task, error) {
	current, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status != expected {
		return nil, fmt.Errorf("%w: task %s is %s, expected %s", services.ErrConflict, id, current.Status, expected)
	}

	working := current.Clone()
	if err := mutate(working); err != nil {
		return nil, err
	}
	// Invariants the record store enforces regardless of the mutator.
	if working.Progress < current.Progress {
		working.Progress = current.Progress
	}
	for name, ref := range current.StageOutputs {
		if working.StageOutputs == nil {
			working.StageOutputs = make(map[string]Artifact, len(current.StageOutputs))
		}
		working.StageOutputs[name] = ref
	}
	working.UpdatedAt = time.Now().UTC()

	columns, args, err := updateArgs(working)
	if err != nil {
		return nil, err
	}
	args = append(args, working.ID, expected)
	res, err := s.db.ExecContext(ctx, `UPDATE tasks SET `+columns+` WHERE id = ? AND status = ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("compare and update: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return nil, fmt.Errorf("%w: task %s changed status during update", services.ErrConflict, id)
	}
	return working, nil
}

// List returns tasks filtered by status set (or all tasks when no status is
// provided), newest first.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Task, error) {
	var (
		rows *sql.Rows
		err  error
	)

	baseQuery := `SELECT ` + taskColumns + ` FROM tasks`
	orderClause := ` ORDER BY created_at DESC`

	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		rows, err = s.db.QueryContext(ctx, baseQuery+` WHERE status IN (`+placeholders+`)`+orderClause, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// PendingIDs returns ids of Pending tasks in submission order.
func (s *Store) PendingIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id FROM tasks WHERE status = ? ORDER BY created_at`,
		StatusPending,
	)
	if err != nil {
		return nil, fmt.Errorf("pending ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Remove deletes a task by identifier.
func (s *Store) Remove(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete task: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// RetryFailed moves failed tasks back to pending for reprocessing.
func (s *Store) RetryFailed(ctx context.Context, ids ...string) (int64, error) {
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	if len(ids) == 0 {
		res, err := s.db.ExecContext(
			ctx,
			`UPDATE tasks
            SET status = ?, progress = 0, error_message = NULL, degradation = NULL,
                stage_outputs_json = NULL, cancel_requested = 0, updated_at = ?
            WHERE status = ?`,
			StatusPending,
			timestamp,
			StatusFailed,
		)
		if err != nil {
			return 0, fmt.Errorf("retry failed tasks: %w", err)
		}
		return res.RowsAffected()
	}

	placeholders := makePlaceholders(len(ids))
	args := make([]any, 0, len(ids)+2)
	args = append(args, StatusPending, timestamp)
	for _, id := range ids {
		args = append(args, id)
	}
	query := `UPDATE tasks
        SET status = ?, progress = 0, error_message = NULL, degradation = NULL,
            stage_outputs_json = NULL, cancel_requested = 0, updated_at = ?
        WHERE id IN (` + placeholders + `) AND status = '` + string(StatusFailed) + `'`
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("retry selected tasks: %w", err)
	}
	return res.RowsAffected()
}

// ReclaimRunning returns tasks stranded in running back to pending. Only one
// daemon mutates running tasks (the instance lock guarantees it), so any
// running row seen at startup belongs to a crashed or stopped process.
// Progress and stage outputs are kept; re-execution overwrites the same
// workdir artifacts.
func (s *Store) ReclaimRunning(ctx context.Context) (int64, error) {
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE tasks SET status = ?, error_message = NULL, updated_at = ? WHERE status = ?`,
		StatusPending,
		timestamp,
		StatusRunning,
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim running tasks: %w", err)
	}
	return res.RowsAffected()
}

// ClearCompleted removes terminal successful tasks.
func (s *Store) ClearCompleted(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(
		ctx,
		`DELETE FROM tasks WHERE status IN (?, ?)`,
		StatusCompleted,
		StatusPartiallyCompleted,
	)
	if err != nil {
		return 0, fmt.Errorf("clear completed: %w", err)
	}
	return res.RowsAffected()
}

// ClearFailed removes failed tasks.
func (s *Store) ClearFailed(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE status = ?`, StatusFailed)
	if err != nil {
		return 0, fmt.Errorf("clear failed: %w", err)
	}
	return res.RowsAffected()
}

// CountByStatus returns a count of tasks grouped by status.
func (s *Store) CountByStatus(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM tasks GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("task stats: %w", err)
	}
	defer rows.Close()

	counts := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

// Summary aggregates task state for diagnostic output.
func (s *Store) Summary(ctx context.Context) (Stats, error) {
	counts, err := s.CountByStatus(ctx)
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{}
	for status, count := range counts {
		stats.Total += count
		switch status {
		case StatusPending:
			stats.Pending += count
		case StatusRunning:
			stats.Running += count
		case StatusPartiallyCompleted:
			stats.Partial += count
		case StatusCompleted:
			stats.Completed += count
		case StatusFailed:
			stats.Failed += count
		case StatusCancelled:
			stats.Cancelled += count
		}
	}
	return stats, nil
}

const taskColumns = "id, kind, params_json, status, progress, stage_outputs_json, error_message, degradation, cancel_requested, created_at, updated_at"

func updateArgs(t *Task) (string, []any, error) {
	paramsJSON, err := json.Marshal(t.Params)
	if err != nil {
		return "", nil, fmt.Errorf("marshal params: %w", err)
	}
	var outputsJSON any
	if len(t.StageOutputs) > 0 {
		encoded, err := json.Marshal(t.StageOutputs)
		if err != nil {
			return "", nil, fmt.Errorf("marshal stage outputs: %w", err)
		}
		outputsJSON = string(encoded)
	}
	columns := `kind = ?, params_json = ?, status = ?, progress = ?,
            stage_outputs_json = ?, error_message = ?, degradation = ?, cancel_requested = ?, updated_at = ?`
	args := []any{
		string(t.Kind),
		string(paramsJSON),
		t.Status,
		t.Progress,
		outputsJSON,
		nullableString(t.ErrorMessage),
		nullableString(t.Degradation),
		boolToInt(t.CancelRequested),
		t.UpdatedAt.Format(time.RFC3339Nano),
	}
	return columns, args, nil
}

func scanTask(scanner interface{ Scan(dest ...any) error }) (*Task, error) {
	var (
		id           string
		kindStr      string
		paramsJSON   string
		statusStr    string
		progress     sql.NullFloat64
		outputsJSON  sql.NullString
		errorMessage sql.NullString
		degradation  sql.NullString
		cancelFlag   sql.NullInt64
		createdRaw   sql.NullString
		updatedRaw   sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&kindStr,
		&paramsJSON,
		&statusStr,
		&progress,
		&outputsJSON,
		&errorMessage,
		&degradation,
		&cancelFlag,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	t := &Task{
		ID:           id,
		Kind:         Kind(kindStr),
		Status:       Status(statusStr),
		Progress:     progress.Float64,
		ErrorMessage: errorMessage.String,
		Degradation:  degradation.String,
	}
	if err := json.Unmarshal([]byte(paramsJSON), &t.Params); err != nil {
		return nil, fmt.Errorf("unmarshal params: %w", err)
	}
	if outputsJSON.Valid && outputsJSON.String != "" {
		if err := json.Unmarshal([]byte(outputsJSON.String), &t.StageOutputs); err != nil {
			return nil, fmt.Errorf("unmarshal stage outputs: %w", err)
		}
	}
	if cancelFlag.Valid {
		t.CancelRequested = cancelFlag.Int64 != 0
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		t.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		t.UpdatedAt = updated
	}
	return t, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
