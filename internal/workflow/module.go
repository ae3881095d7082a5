package workflow

import (
	"context"

	"github.com/conduitcrm/workflow-engine/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func Module() fx.Option {
	return fx.Options(
		fx.Provide(
			NewStore,
			NewNotifierFromConfig,
			NewInterpreter,
			NewService,
		),
	)
}

// NewStore picks Postgres when a DSN is configured, the in-memory store
// otherwise. The Postgres store is closed on shutdown.
func NewStore(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (Store, error) {
	if cfg.Database.DSN == "" {
		logger.Warn("no database dsn configured, using in-memory store")
		return NewMemoryStore(), nil
	}
	pg, err := NewPGStore(cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{OnStop: func(context.Context) error {
		return pg.Close()
	}})
	return pg, nil
}

func NewNotifierFromConfig(cfg config.Config) *Notifier {
	if cfg.Notifier.EventBusURL == "" && cfg.Notifier.AuditURL == "" {
		return nil
	}
	return NewNotifier(cfg.Notifier.EventBusURL, cfg.Notifier.AuditURL, cfg.Notifier.Timeout)
}
