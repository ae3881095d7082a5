package workflow

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

var ErrNotFound = errors.New("not found")

type WorkflowFilter struct {
	Status Status
	Limit  int
	Offset int
}

type ExecutionFilter struct {
	WorkflowID string
	Status     ExecutionStatus
	Limit      int
	Offset     int
}

type Store interface {
	CreateWorkflow(ctx context.Context, w Workflow) error
	GetWorkflow(ctx context.Context, tenantID, id string) (Workflow, error)
	ListWorkflows(ctx context.Context, tenantID string, f WorkflowFilter) ([]Workflow, error)
	ListVersions(ctx context.Context, tenantID, lineageID string) ([]Workflow, error)
	// CreateVersion inserts next and clears IsLatest on the prior latest row
	// of the same lineage atomically.
	CreateVersion(ctx context.Context, next Workflow) error
	// ListScheduled returns the latest active schedule-triggered workflows
	// across all tenants, for the trigger scheduler.
	ListScheduled(ctx context.Context) ([]Workflow, error)

	CreateExecution(ctx context.Context, e Execution) error
	UpdateExecution(ctx context.Context, e Execution) error
	GetExecution(ctx context.Context, tenantID, id string) (Execution, error)
	ListExecutions(ctx context.Context, tenantID string, f ExecutionFilter) ([]Execution, error)

	AppendLog(ctx context.Context, l ExecutionLog) error
	ListLogs(ctx context.Context, tenantID, executionID string) ([]ExecutionLog, error)
}

// MemoryStore backs tests and single-node development runs.
type MemoryStore struct {
	mu         sync.RWMutex
	workflows  map[string]Workflow
	executions map[string]Execution
	logs       map[string][]ExecutionLog
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		workflows:  map[string]Workflow{},
		executions: map[string]Execution{},
		logs:       map[string][]ExecutionLog{},
	}
}

func (s *MemoryStore) CreateWorkflow(_ context.Context, w Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workflows[w.ID] = w
	return nil
}

func (s *MemoryStore) GetWorkflow(_ context.Context, tenantID, id string) (Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.workflows[id]
	if !ok || w.TenantID != tenantID {
		return Workflow{}, ErrNotFound
	}
	return w, nil
}

func (s *MemoryStore) ListWorkflows(_ context.Context, tenantID string, f WorkflowFilter) ([]Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Workflow
	for _, w := range s.workflows {
		if w.TenantID != tenantID || !w.IsLatest {
			continue
		}
		if f.Status != "" && w.Status != f.Status {
			continue
		}
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, f.Offset, f.Limit), nil
}

func (s *MemoryStore) ListVersions(_ context.Context, tenantID, lineageID string) ([]Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Workflow
	for _, w := range s.workflows {
		if w.TenantID == tenantID && w.LineageID == lineageID {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

func (s *MemoryStore) CreateVersion(_ context.Context, next Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, w := range s.workflows {
		if w.TenantID == next.TenantID && w.LineageID == next.LineageID && w.IsLatest {
			w.IsLatest = false
			s.workflows[id] = w
		}
	}
	s.workflows[next.ID] = next
	return nil
}

func (s *MemoryStore) ListScheduled(_ context.Context) ([]Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Workflow
	for _, w := range s.workflows {
		if w.IsLatest && w.Status == StatusActive && w.TriggerType == TriggerSchedule {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) CreateExecution(_ context.Context, e Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executions[e.ID] = e
	return nil
}

func (s *MemoryStore) UpdateExecution(_ context.Context, e Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.executions[e.ID]; !ok {
		return ErrNotFound
	}
	e.UpdatedAt = time.Now().UTC()
	s.executions[e.ID] = e
	return nil
}

func (s *MemoryStore) GetExecution(_ context.Context, tenantID, id string) (Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.executions[id]
	if !ok || e.TenantID != tenantID {
		return Execution{}, ErrNotFound
	}
	return e, nil
}

func (s *MemoryStore) ListExecutions(_ context.Context, tenantID string, f ExecutionFilter) ([]Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Execution
	for _, e := range s.executions {
		if e.TenantID != tenantID {
			continue
		}
		if f.WorkflowID != "" && e.WorkflowID != f.WorkflowID {
			continue
		}
		if f.Status != "" && e.Status != f.Status {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, f.Offset, f.Limit), nil
}

func (s *MemoryStore) AppendLog(_ context.Context, l ExecutionLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs[l.ExecutionID] = append(s.logs[l.ExecutionID], l)
	return nil
}

func (s *MemoryStore) ListLogs(_ context.Context, tenantID, executionID string) ([]ExecutionLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ExecutionLog
	for _, l := range s.logs[executionID] {
		if l.TenantID == tenantID {
			out = append(out, l)
		}
	}
	return out, nil
}

func page[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
