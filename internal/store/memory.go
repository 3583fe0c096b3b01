package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/reelflow/reelflow/internal/plan"
)

// MemoryStore is an in-memory Store used by tests and dry runs.
// Records are kept as serialized bytes so readers always see a whole
// record and callers cannot alias the stored value.
type MemoryStore struct {
	mu         sync.RWMutex
	workflows  map[string][]byte
	executions map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		workflows:  make(map[string][]byte),
		executions: make(map[string][]byte),
	}
}

func (s *MemoryStore) PutWorkflow(_ context.Context, record *plan.WorkflowRecord) error {
	if record.WorkflowID == "" {
		return fmt.Errorf("workflow id is required")
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal workflow record: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workflows[record.WorkflowID] = data
	return nil
}

func (s *MemoryStore) GetWorkflow(_ context.Context, workflowID string) (*plan.WorkflowRecord, error) {
	s.mu.RLock()
	data, ok := s.workflows[workflowID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("workflow %s: %w", workflowID, ErrNotFound)
	}
	var record plan.WorkflowRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("unmarshal workflow record: %w", err)
	}
	return &record, nil
}

func (s *MemoryStore) ListWorkflows(_ context.Context) ([]*plan.WorkflowRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records := make([]*plan.WorkflowRecord, 0, len(s.workflows))
	for _, data := range s.workflows {
		var record plan.WorkflowRecord
		if err := json.Unmarshal(data, &record); err != nil {
			return nil, fmt.Errorf("unmarshal workflow record: %w", err)
		}
		records = append(records, &record)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
	return records, nil
}

func (s *MemoryStore) DeleteWorkflow(_ context.Context, workflowID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workflows[workflowID]; !ok {
		return false, nil
	}
	delete(s.workflows, workflowID)
	return true, nil
}

func (s *MemoryStore) PutExecution(_ context.Context, record *plan.Execution) error {
	if record.ExecutionID == "" {
		return fmt.Errorf("execution id is required")
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal execution record: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executions[record.ExecutionID] = data
	return nil
}

func (s *MemoryStore) GetExecution(_ context.Context, executionID string) (*plan.Execution, error) {
	s.mu.RLock()
	data, ok := s.executions[executionID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("execution %s: %w", executionID, ErrNotFound)
	}
	var record plan.Execution
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("unmarshal execution record: %w", err)
	}
	return &record, nil
}

func (s *MemoryStore) ListExecutions(_ context.Context) ([]*plan.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records := make([]*plan.Execution, 0, len(s.executions))
	for _, data := range s.executions {
		var record plan.Execution
		if err := json.Unmarshal(data, &record); err != nil {
			return nil, fmt.Errorf("unmarshal execution record: %w", err)
		}
		records = append(records, &record)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
	return records, nil
}

func (s *MemoryStore) DeleteExecution(_ context.Context, executionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.executions[executionID]; !ok {
		return false, nil
	}
	delete(s.executions, executionID)
	return true, nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error { return nil }
