package workflow

import (
	"context"
	"testing"

	"github.com/conduitcrm/workflow-engine/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(store Store) *Service {
	return NewService(config.Default(), store, newTestInterpreter(store), zap.NewNop())
}

func TestServiceCreateWorkflowDefaults(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(NewMemoryStore())

	created, err := svc.CreateWorkflow(ctx, "tenant-a", Workflow{Name: "lead intake"})
	require.NoError(t, err)

	assert.NotEmpty(t, created.ID)
	assert.Equal(t, created.ID, created.LineageID)
	assert.Equal(t, "tenant-a", created.TenantID)
	assert.Equal(t, 1, created.Version)
	assert.True(t, created.IsLatest)
	assert.Equal(t, StatusDraft, created.Status)
	assert.Equal(t, TriggerManual, created.TriggerType)
}

func TestServiceCreateWorkflowValidation(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(NewMemoryStore())

	_, err := svc.CreateWorkflow(ctx, "tenant-a", Workflow{Name: "  "})
	assert.Error(t, err)

	steps := make([]Step, config.Default().Engine.MaxWorkflowSteps+1)
	for i := range steps {
		steps[i] = Step{Type: StepEmail, Name: "s", Email: &EmailStep{To: []string{"x@example.com"}}}
	}
	_, err = svc.CreateWorkflow(ctx, "tenant-a", Workflow{Name: "too big", Steps: steps})
	assert.Error(t, err)
}

func TestServiceUpdateCreatesNewVersion(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	svc := newTestService(store)

	v1, err := svc.CreateWorkflow(ctx, "tenant-a", Workflow{Name: "followup"})
	require.NoError(t, err)

	v2, err := svc.UpdateWorkflow(ctx, "tenant-a", v1.ID, Workflow{Name: "followup v2"})
	require.NoError(t, err)

	assert.NotEqual(t, v1.ID, v2.ID)
	assert.Equal(t, v1.LineageID, v2.LineageID)
	assert.Equal(t, 2, v2.Version)
	assert.True(t, v2.IsLatest)

	stored, err := store.GetWorkflow(ctx, "tenant-a", v1.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsLatest)

	// Updating a superseded version is rejected.
	_, err = svc.UpdateWorkflow(ctx, "tenant-a", v1.ID, Workflow{Name: "stale"})
	assert.ErrorIs(t, err, ErrNotLatest)

	versions, err := svc.ListVersions(ctx, "tenant-a", v1.ID)
	require.NoError(t, err)
	assert.Len(t, versions, 2)
}

func TestServiceExecuteRequiresActive(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(NewMemoryStore())

	draft, err := svc.CreateWorkflow(ctx, "tenant-a", Workflow{Name: "draft"})
	require.NoError(t, err)

	_, err = svc.Execute(ctx, "tenant-a", draft.ID, nil)
	assert.ErrorIs(t, err, ErrNotActive)

	_, err = svc.Execute(ctx, "tenant-a", "no-such-id", nil)
	assert.ErrorIs(t, err, ErrNotFound)

	active, err := svc.CreateWorkflow(ctx, "tenant-a", Workflow{Name: "live", Status: StatusActive})
	require.NoError(t, err)

	exec, err := svc.Execute(ctx, "tenant-a", active.ID, map[string]any{"k": "v"})
	require.NoError(t, err)
	assert.Equal(t, ExecutionCompleted, exec.Status)
}

func TestServiceExecuteFailureIsNotAnError(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(NewMemoryStore())

	wf, err := svc.CreateWorkflow(ctx, "tenant-a", Workflow{
		Name:   "broken",
		Status: StatusActive,
		Steps:  []Step{{Type: StepDelay, Name: "bad", Delay: &DelayStep{Seconds: -1}}},
	})
	require.NoError(t, err)

	exec, err := svc.Execute(ctx, "tenant-a", wf.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, ExecutionFailed, exec.Status)
	require.NotNil(t, exec.ErrorData)
	assert.Equal(t, 0, exec.ErrorData.Step)
}

func TestServiceCancelExecution(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	svc := newTestService(store)

	exec := Execution{
		ID: "e1", WorkflowID: "w1", TenantID: "tenant-a",
		Status: ExecutionRunning, InputData: map[string]any{}, OutputData: map[string]any{},
	}
	require.NoError(t, store.CreateExecution(ctx, exec))

	cancelled, err := svc.CancelExecution(ctx, "tenant-a", "e1")
	require.NoError(t, err)
	assert.Equal(t, ExecutionCancelled, cancelled.Status)
	require.NotNil(t, cancelled.EndTime)

	// Terminal states are left as they are.
	again, err := svc.CancelExecution(ctx, "tenant-a", "e1")
	require.NoError(t, err)
	assert.Equal(t, ExecutionCancelled, again.Status)

	done := Execution{
		ID: "e2", WorkflowID: "w1", TenantID: "tenant-a",
		Status: ExecutionCompleted, InputData: map[string]any{}, OutputData: map[string]any{},
	}
	require.NoError(t, store.CreateExecution(ctx, done))
	kept, err := svc.CancelExecution(ctx, "tenant-a", "e2")
	require.NoError(t, err)
	assert.Equal(t, ExecutionCompleted, kept.Status)
}
