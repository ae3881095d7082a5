package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/conduitcrm/workflow-engine/internal/config"
	"github.com/conduitcrm/workflow-engine/internal/workflow"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestScheduler(store workflow.Store) *Scheduler {
	interp := workflow.NewInterpreter(store, nil, nil, zap.NewNop())
	svc := workflow.NewService(config.Default(), store, interp, zap.NewNop())
	return New(svc, store, zap.NewNop(), time.Minute)
}

func scheduledWorkflow(cronSpec string) workflow.Workflow {
	id := uuid.NewString()
	now := time.Now().UTC()
	return workflow.Workflow{
		ID: id, LineageID: id, TenantID: "tenant-a",
		Name:        "nightly",
		TriggerType: workflow.TriggerSchedule,
		TriggerConfig: map[string]any{
			"cron":  cronSpec,
			"input": map[string]any{"source": "schedule"},
		},
		Status: workflow.StatusActive, Version: 1, IsLatest: true,
		CreatedAt: now, UpdatedAt: now,
	}
}

func TestReloadRegistersEntries(t *testing.T) {
	ctx := context.Background()
	store := workflow.NewMemoryStore()
	require.NoError(t, store.CreateWorkflow(ctx, scheduledWorkflow("0 2 * * *")))

	s := newTestScheduler(store)
	s.reload(ctx)
	assert.Equal(t, 1, s.Entries())
}

func TestReloadSkipsInvalidCron(t *testing.T) {
	ctx := context.Background()
	store := workflow.NewMemoryStore()
	require.NoError(t, store.CreateWorkflow(ctx, scheduledWorkflow("not a cron spec")))

	wf := scheduledWorkflow("*/5 * * * *")
	wf.TriggerConfig = map[string]any{} // no cron key at all
	require.NoError(t, store.CreateWorkflow(ctx, wf))

	s := newTestScheduler(store)
	s.reload(ctx)
	assert.Equal(t, 0, s.Entries())
}

func TestReloadReplacesChangedSpec(t *testing.T) {
	ctx := context.Background()
	store := workflow.NewMemoryStore()
	wf := scheduledWorkflow("0 2 * * *")
	require.NoError(t, store.CreateWorkflow(ctx, wf))

	s := newTestScheduler(store)
	s.reload(ctx)
	require.Equal(t, 1, s.Entries())
	firstEntry := s.entries[wf.ID]

	wf.TriggerConfig["cron"] = "0 4 * * *"
	require.NoError(t, store.CreateWorkflow(ctx, wf)) // overwrite with new spec
	s.reload(ctx)

	assert.Equal(t, 1, s.Entries())
	assert.NotEqual(t, firstEntry, s.entries[wf.ID])
}

func TestReloadRemovesStaleEntries(t *testing.T) {
	ctx := context.Background()
	store := workflow.NewMemoryStore()
	wf := scheduledWorkflow("0 2 * * *")
	require.NoError(t, store.CreateWorkflow(ctx, wf))

	s := newTestScheduler(store)
	s.reload(ctx)
	require.Equal(t, 1, s.Entries())

	wf.Status = workflow.StatusArchived
	require.NoError(t, store.CreateWorkflow(ctx, wf))
	s.reload(ctx)

	assert.Equal(t, 0, s.Entries())
	assert.Empty(t, s.entries)
}
