package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/reelflow/reelflow/internal/plan"
)

// SQLiteStore persists records in a single-file SQLite database.
// Records are stored as JSON documents keyed by id; the schema carries
// only the columns list/cleanup queries filter on.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

const schema = `
CREATE TABLE IF NOT EXISTS workflows (
    workflow_id TEXT PRIMARY KEY,
    status      TEXT NOT NULL,
    record      TEXT NOT NULL,
    created_at  TEXT NOT NULL,
    updated_at  TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS executions (
    execution_id TEXT PRIMARY KEY,
    workflow_id  TEXT NOT NULL,
    status       TEXT NOT NULL,
    record       TEXT NOT NULL,
    created_at   TEXT NOT NULL,
    updated_at   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_executions_workflow ON executions(workflow_id);
`

// OpenSQLite initializes or connects to the database at path and
// applies the schema.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("ensure store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLiteStore{db: db, path: path}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func (s *SQLiteStore) execWithRetry(ctx context.Context, query string, args ...any) error {
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, query, args...)
		return err
	})
}

func (s *SQLiteStore) PutWorkflow(ctx context.Context, record *plan.WorkflowRecord) error {
	if record.WorkflowID == "" {
		return fmt.Errorf("workflow id is required")
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal workflow record: %w", err)
	}
	err = s.execWithRetry(ctx,
		`INSERT INTO workflows (workflow_id, status, record, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?)
         ON CONFLICT(workflow_id) DO UPDATE SET
           status = excluded.status, record = excluded.record, updated_at = excluded.updated_at`,
		record.WorkflowID,
		string(record.Status),
		string(data),
		record.CreatedAt.UTC().Format(time.RFC3339Nano),
		record.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("put workflow: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetWorkflow(ctx context.Context, workflowID string) (*plan.WorkflowRecord, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT record FROM workflows WHERE workflow_id = ?`, workflowID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("workflow %s: %w", workflowID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get workflow: %w", err)
	}
	var record plan.WorkflowRecord
	if err := json.Unmarshal([]byte(data), &record); err != nil {
		return nil, fmt.Errorf("unmarshal workflow record: %w", err)
	}
	return &record, nil
}

func (s *SQLiteStore) ListWorkflows(ctx context.Context) ([]*plan.WorkflowRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT record FROM workflows ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*plan.WorkflowRecord
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan workflow row: %w", err)
		}
		var record plan.WorkflowRecord
		if err := json.Unmarshal([]byte(data), &record); err != nil {
			return nil, fmt.Errorf("unmarshal workflow record: %w", err)
		}
		records = append(records, &record)
	}
	return records, rows.Err()
}

func (s *SQLiteStore) DeleteWorkflow(ctx context.Context, workflowID string) (bool, error) {
	var deleted bool
	err := retryOnBusy(ctx, func() error {
		res, execErr := s.db.ExecContext(ctx,
			`DELETE FROM workflows WHERE workflow_id = ?`, workflowID)
		if execErr != nil {
			return execErr
		}
		n, _ := res.RowsAffected()
		deleted = n > 0
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("delete workflow: %w", err)
	}
	return deleted, nil
}

func (s *SQLiteStore) PutExecution(ctx context.Context, record *plan.Execution) error {
	if record.ExecutionID == "" {
		return fmt.Errorf("execution id is required")
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal execution record: %w", err)
	}
	err = s.execWithRetry(ctx,
		`INSERT INTO executions (execution_id, workflow_id, status, record, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?)
         ON CONFLICT(execution_id) DO UPDATE SET
           status = excluded.status, record = excluded.record, updated_at = excluded.updated_at`,
		record.ExecutionID,
		record.WorkflowID,
		string(record.Status),
		string(data),
		record.CreatedAt.UTC().Format(time.RFC3339Nano),
		record.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("put execution: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetExecution(ctx context.Context, executionID string) (*plan.Execution, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT record FROM executions WHERE execution_id = ?`, executionID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("execution %s: %w", executionID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get execution: %w", err)
	}
	var record plan.Execution
	if err := json.Unmarshal([]byte(data), &record); err != nil {
		return nil, fmt.Errorf("unmarshal execution record: %w", err)
	}
	return &record, nil
}

func (s *SQLiteStore) ListExecutions(ctx context.Context) ([]*plan.Execution, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT record FROM executions ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*plan.Execution
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan execution row: %w", err)
		}
		var record plan.Execution
		if err := json.Unmarshal([]byte(data), &record); err != nil {
			return nil, fmt.Errorf("unmarshal execution record: %w", err)
		}
		records = append(records, &record)
	}
	return records, rows.Err()
}

func (s *SQLiteStore) DeleteExecution(ctx context.Context, executionID string) (bool, error) {
	var deleted bool
	err := retryOnBusy(ctx, func() error {
		res, execErr := s.db.ExecContext(ctx,
			`DELETE FROM executions WHERE execution_id = ?`, executionID)
		if execErr != nil {
			return execErr
		}
		n, _ := res.RowsAffected()
		deleted = n > 0
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("delete execution: %w", err)
	}
	return deleted, nil
}
