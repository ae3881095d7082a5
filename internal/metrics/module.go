package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Provide(New)
}

// Metrics carries the engine's OpenTelemetry instruments. A nil *Metrics is
// valid and records nothing, so tests can skip wiring it.
type Metrics struct {
	executionsStarted  metric.Int64Counter
	executionsFinished metric.Int64Counter
	stepDuration       metric.Float64Histogram
}

func New() (*Metrics, error) {
	meter := otel.Meter("workflow-engine")

	started, err := meter.Int64Counter("workflow_executions_started_total",
		metric.WithDescription("Workflow executions started"))
	if err != nil {
		return nil, err
	}
	finished, err := meter.Int64Counter("workflow_executions_finished_total",
		metric.WithDescription("Workflow executions finished, by terminal status"))
	if err != nil {
		return nil, err
	}
	stepDuration, err := meter.Float64Histogram("workflow_step_duration_seconds",
		metric.WithDescription("Step execution duration"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		executionsStarted:  started,
		executionsFinished: finished,
		stepDuration:       stepDuration,
	}, nil
}

func (m *Metrics) ExecutionStarted(ctx context.Context) {
	if m == nil {
		return
	}
	m.executionsStarted.Add(ctx, 1)
}

func (m *Metrics) ExecutionFinished(ctx context.Context, status string) {
	if m == nil {
		return
	}
	m.executionsFinished.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

func (m *Metrics) StepObserved(ctx context.Context, stepType string, elapsed time.Duration, ok bool) {
	if m == nil {
		return
	}
	m.stepDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(
		attribute.String("step_type", stepType),
		attribute.Bool("success", ok),
	))
}
