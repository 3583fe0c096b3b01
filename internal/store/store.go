// Package store provides durable keyed storage for workflow and
// execution records. It holds no business logic; the executor is the
// only writer during a run.
package store

import (
	"context"
	"errors"

	"github.com/reelflow/reelflow/internal/plan"
)

// ErrNotFound is returned when a key has no record.
var ErrNotFound = errors.New("record not found")

// Store is the persistence contract. Put is atomic per key: a reader
// never observes a half-written record, and a Get after a Put on the
// same key returns the just-written value. No cross-key transactions.
// Conflicting writes to the same key are serialized last-writer-wins;
// a single executor instance owns an execution id for its lifetime.
type Store interface {
	PutWorkflow(ctx context.Context, record *plan.WorkflowRecord) error
	GetWorkflow(ctx context.Context, workflowID string) (*plan.WorkflowRecord, error)
	ListWorkflows(ctx context.Context) ([]*plan.WorkflowRecord, error)
	DeleteWorkflow(ctx context.Context, workflowID string) (bool, error)

	PutExecution(ctx context.Context, record *plan.Execution) error
	GetExecution(ctx context.Context, executionID string) (*plan.Execution, error)
	ListExecutions(ctx context.Context) ([]*plan.Execution, error)
	DeleteExecution(ctx context.Context, executionID string) (bool, error)

	Close() error
}

// Ensure both implementations satisfy the contract
var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*SQLiteStore)(nil)
)
