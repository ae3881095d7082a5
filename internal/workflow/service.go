package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/conduitcrm/workflow-engine/internal/config"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrNotActive = errors.New("workflow is not active")
	ErrNotLatest = errors.New("workflow is not the latest version")
)

// Service fronts the store and the interpreter for the transport layers.
type Service struct {
	store    Store
	interp   *Interpreter
	logger   *zap.Logger
	maxSteps int
}

func NewService(cfg config.Config, store Store, interp *Interpreter, logger *zap.Logger) *Service {
	return &Service{
		store:    store,
		interp:   interp,
		logger:   logger,
		maxSteps: cfg.Engine.MaxWorkflowSteps,
	}
}

func (s *Service) CreateWorkflow(ctx context.Context, tenantID string, wf Workflow) (Workflow, error) {
	if err := s.checkDefinition(wf); err != nil {
		return Workflow{}, err
	}
	now := time.Now().UTC()
	wf.ID = uuid.NewString()
	wf.LineageID = wf.ID
	wf.TenantID = tenantID
	wf.Version = 1
	wf.IsLatest = true
	wf.CreatedAt = now
	wf.UpdatedAt = now
	if wf.Status == "" {
		wf.Status = StatusDraft
	}
	if wf.TriggerType == "" {
		wf.TriggerType = TriggerManual
	}
	if err := s.store.CreateWorkflow(ctx, wf); err != nil {
		return Workflow{}, err
	}
	s.logger.Info("workflow created",
		zap.String("workflow_id", wf.ID), zap.String("tenant_id", tenantID))
	return wf, nil
}

// UpdateWorkflow never mutates the stored version: it inserts a new row with
// Version+1 and clears IsLatest on the previous one in the same transaction.
func (s *Service) UpdateWorkflow(ctx context.Context, tenantID, id string, upd Workflow) (Workflow, error) {
	if err := s.checkDefinition(upd); err != nil {
		return Workflow{}, err
	}
	prev, err := s.store.GetWorkflow(ctx, tenantID, id)
	if err != nil {
		return Workflow{}, err
	}
	if !prev.IsLatest {
		return Workflow{}, ErrNotLatest
	}
	now := time.Now().UTC()
	upd.ID = uuid.NewString()
	upd.LineageID = prev.LineageID
	upd.TenantID = tenantID
	upd.Version = prev.Version + 1
	upd.IsLatest = true
	upd.CreatedAt = now
	upd.UpdatedAt = now
	if upd.Status == "" {
		upd.Status = prev.Status
	}
	if upd.TriggerType == "" {
		upd.TriggerType = prev.TriggerType
	}
	if err := s.store.CreateVersion(ctx, upd); err != nil {
		return Workflow{}, err
	}
	s.logger.Info("workflow version created",
		zap.String("workflow_id", upd.ID),
		zap.String("lineage_id", upd.LineageID),
		zap.Int("version", upd.Version))
	return upd, nil
}

func (s *Service) GetWorkflow(ctx context.Context, tenantID, id string) (Workflow, error) {
	return s.store.GetWorkflow(ctx, tenantID, id)
}

func (s *Service) ListWorkflows(ctx context.Context, tenantID string, f WorkflowFilter) ([]Workflow, error) {
	return s.store.ListWorkflows(ctx, tenantID, f)
}

func (s *Service) ListVersions(ctx context.Context, tenantID, id string) ([]Workflow, error) {
	wf, err := s.store.GetWorkflow(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	return s.store.ListVersions(ctx, tenantID, wf.LineageID)
}

// Execute runs the workflow synchronously and returns the terminal execution.
// The error covers lookup and precondition failures only; step failures live
// in the execution's ErrorData.
func (s *Service) Execute(ctx context.Context, tenantID, workflowID string, input map[string]any) (*Execution, error) {
	wf, err := s.store.GetWorkflow(ctx, tenantID, workflowID)
	if err != nil {
		return nil, err
	}
	if wf.Status != StatusActive {
		return nil, ErrNotActive
	}
	return s.interp.Execute(ctx, wf, input, tenantID), nil
}

func (s *Service) GetExecution(ctx context.Context, tenantID, id string) (Execution, error) {
	return s.store.GetExecution(ctx, tenantID, id)
}

func (s *Service) ListExecutions(ctx context.Context, tenantID string, f ExecutionFilter) ([]Execution, error) {
	return s.store.ListExecutions(ctx, tenantID, f)
}

// CancelExecution marks a non-terminal execution cancelled. The interpreter
// itself never enters this state; cancellation is an external operation and
// does not interrupt a run already in flight.
func (s *Service) CancelExecution(ctx context.Context, tenantID, id string) (Execution, error) {
	exec, err := s.store.GetExecution(ctx, tenantID, id)
	if err != nil {
		return Execution{}, err
	}
	switch exec.Status {
	case ExecutionCompleted, ExecutionFailed, ExecutionCancelled:
		return exec, nil
	}
	now := time.Now().UTC()
	exec.Status = ExecutionCancelled
	exec.EndTime = &now
	if err := s.store.UpdateExecution(ctx, exec); err != nil {
		return Execution{}, err
	}
	return exec, nil
}

func (s *Service) ListLogs(ctx context.Context, tenantID, executionID string) ([]ExecutionLog, error) {
	return s.store.ListLogs(ctx, tenantID, executionID)
}

func (s *Service) checkDefinition(wf Workflow) error {
	if strings.TrimSpace(wf.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if s.maxSteps > 0 && len(wf.Steps) > s.maxSteps {
		return fmt.Errorf("workflow exceeds %d steps", s.maxSteps)
	}
	return nil
}
