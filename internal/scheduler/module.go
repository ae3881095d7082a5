package scheduler

import (
	"context"
	"time"

	"github.com/conduitcrm/workflow-engine/internal/config"
	"github.com/conduitcrm/workflow-engine/internal/workflow"
	"github.com/robfig/cron/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func Module() fx.Option {
	return fx.Invoke(register)
}

func register(lc fx.Lifecycle, cfg config.Config, svc *workflow.Service, store workflow.Store, logger *zap.Logger) {
	if !cfg.Scheduler.Enabled {
		logger.Info("trigger scheduler disabled")
		return
	}
	s := New(svc, store, logger, cfg.Scheduler.ReloadInterval)
	var cancel context.CancelFunc
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			runCtx, runCancel := context.WithCancel(context.Background())
			cancel = runCancel
			s.Start(runCtx)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel != nil {
				cancel()
			}
			s.Stop()
			return nil
		},
	})
}

// Scheduler fires executions for active schedule-triggered workflows. The
// cron expression lives in trigger_config.cron, the optional run input in
// trigger_config.input. Definitions are reloaded periodically so new versions
// replace their predecessor's entry.
type Scheduler struct {
	svc         *workflow.Service
	store       workflow.Store
	logger      *zap.Logger
	cron        *cron.Cron
	entries     map[string]cron.EntryID
	specs       map[string]string
	reloadEvery time.Duration
}

func New(svc *workflow.Service, store workflow.Store, logger *zap.Logger, reloadEvery time.Duration) *Scheduler {
	if reloadEvery <= 0 {
		reloadEvery = 30 * time.Second
	}
	return &Scheduler{
		svc:         svc,
		store:       store,
		logger:      logger,
		cron:        cron.New(),
		entries:     map[string]cron.EntryID{},
		specs:       map[string]string{},
		reloadEvery: reloadEvery,
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	s.reload(ctx)
	s.cron.Start()
	go s.reloadLoop(ctx)
}

func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) reloadLoop(ctx context.Context) {
	ticker := time.NewTicker(s.reloadEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.reload(ctx)
		}
	}
}

// reload diffs the scheduled workflow set against the registered cron
// entries. Only the reload goroutine touches the entry maps.
func (s *Scheduler) reload(ctx context.Context) {
	workflows, err := s.store.ListScheduled(ctx)
	if err != nil {
		s.logger.Warn("scheduler reload failed", zap.Error(err))
		return
	}

	seen := map[string]bool{}
	for _, wf := range workflows {
		spec, ok := wf.TriggerConfig["cron"].(string)
		if !ok || spec == "" {
			s.logger.Warn("schedule trigger missing cron expression",
				zap.String("workflow_id", wf.ID))
			continue
		}
		seen[wf.ID] = true
		if existing, registered := s.specs[wf.ID]; registered {
			if existing == spec {
				continue
			}
			s.cron.Remove(s.entries[wf.ID])
		}
		id, err := s.cron.AddFunc(spec, s.runJob(wf))
		if err != nil {
			s.logger.Warn("invalid cron expression",
				zap.String("workflow_id", wf.ID), zap.String("spec", spec), zap.Error(err))
			delete(s.entries, wf.ID)
			delete(s.specs, wf.ID)
			continue
		}
		s.entries[wf.ID] = id
		s.specs[wf.ID] = spec
	}

	for id, entryID := range s.entries {
		if !seen[id] {
			s.cron.Remove(entryID)
			delete(s.entries, id)
			delete(s.specs, id)
		}
	}
}

func (s *Scheduler) runJob(wf workflow.Workflow) func() {
	input, _ := wf.TriggerConfig["input"].(map[string]any)
	return func() {
		exec, err := s.svc.Execute(context.Background(), wf.TenantID, wf.ID, input)
		if err != nil {
			s.logger.Warn("scheduled execution not started",
				zap.String("workflow_id", wf.ID), zap.Error(err))
			return
		}
		s.logger.Info("scheduled execution finished",
			zap.String("workflow_id", wf.ID),
			zap.String("execution_id", exec.ID),
			zap.String("status", string(exec.Status)))
	}
}

// Entries reports how many cron entries are registered.
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}
