package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/conduitcrm/workflow-engine/internal/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Interpreter executes a workflow's steps strictly in list order against a
// shared mutable context, persisting the execution row as it advances and
// appending one log row per step attempt.
type Interpreter struct {
	store   Store
	notify  *Notifier
	metrics *metrics.Metrics
	logger  *zap.Logger
	client  *http.Client
	sleep   func(ctx context.Context, d time.Duration) error
}

func NewInterpreter(store Store, notify *Notifier, m *metrics.Metrics, logger *zap.Logger) *Interpreter {
	return &Interpreter{
		store:   store,
		notify:  notify,
		metrics: m,
		logger:  logger,
		// Uses the default transport, which otel.Init wraps for tracing.
		client: &http.Client{},
		sleep:  sleepContext,
	}
}

// WithHTTPClient overrides the outbound HTTP client, mainly for tests.
func (it *Interpreter) WithHTTPClient(c *http.Client) *Interpreter {
	it.client = c
	return it
}

// Execute runs the workflow against inputData and returns the terminal
// execution record. It never returns an error: failures are represented
// entirely through the returned execution's Status and ErrorData, so callers
// inspect the record rather than recover from a panic or a raised error.
func (it *Interpreter) Execute(ctx context.Context, wf Workflow, inputData map[string]any, tenantID string) *Execution {
	if inputData == nil {
		inputData = map[string]any{}
	}
	now := time.Now().UTC()
	exec := &Execution{
		ID:         uuid.NewString(),
		WorkflowID: wf.ID,
		TenantID:   tenantID,
		Status:     ExecutionPending,
		InputData:  inputData,
		OutputData: map[string]any{},
		StartTime:  &now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := it.store.CreateExecution(ctx, *exec); err != nil {
		it.logger.Error("create execution", zap.String("workflow_id", wf.ID), zap.Error(err))
		return it.fail(ctx, exec, 0, fmt.Errorf("create execution: %w", err))
	}

	exec.Status = ExecutionRunning
	it.persist(ctx, exec)
	it.notify.ExecutionEvent(*exec, "execution.started", "")
	it.metrics.ExecutionStarted(ctx)

	ec := &execContext{Input: inputData, Vars: map[string]any{}}
	for i := range wf.Steps {
		step := wf.Steps[i]
		idx := i
		exec.CurrentStep = &idx
		it.persist(ctx, exec)

		began := time.Now()
		result, err := it.runStep(ctx, step, ec)
		it.metrics.StepObserved(ctx, string(step.Type), time.Since(began), err == nil)
		if err != nil {
			it.appendLog(ctx, exec, i, step.Type,
				fmt.Sprintf("failed to execute %s step", step.Type),
				map[string]any{"error": err.Error()})
			it.notify.StepEvent(*exec, i, step, "failed", err.Error())
			return it.fail(ctx, exec, i, err)
		}
		if step.OutputKey != "" {
			ec.Vars[step.OutputKey] = result
		}
		it.appendLog(ctx, exec, i, step.Type,
			fmt.Sprintf("executed %s step", step.Type),
			map[string]any{"result": result})
		it.notify.StepEvent(*exec, i, step, "succeeded", "")
	}

	end := time.Now().UTC()
	exec.Status = ExecutionCompleted
	exec.OutputData = ec.Vars
	exec.EndTime = &end
	it.persist(ctx, exec)
	it.notify.ExecutionEvent(*exec, "execution.completed", "")
	it.metrics.ExecutionFinished(ctx, string(ExecutionCompleted))
	return exec
}

func (it *Interpreter) fail(ctx context.Context, exec *Execution, step int, cause error) *Execution {
	end := time.Now().UTC()
	exec.Status = ExecutionFailed
	exec.ErrorData = &ErrorData{Error: cause.Error(), Step: step}
	exec.EndTime = &end
	it.persist(ctx, exec)
	it.notify.ExecutionEvent(*exec, "execution.failed", cause.Error())
	it.metrics.ExecutionFinished(ctx, string(ExecutionFailed))
	return exec
}

func (it *Interpreter) persist(ctx context.Context, exec *Execution) {
	if err := it.store.UpdateExecution(ctx, *exec); err != nil {
		it.logger.Error("persist execution",
			zap.String("execution_id", exec.ID), zap.Error(err))
	}
}

func (it *Interpreter) appendLog(ctx context.Context, exec *Execution, step int, stepType StepType, message string, details map[string]any) {
	l := ExecutionLog{
		ID:          uuid.NewString(),
		ExecutionID: exec.ID,
		TenantID:    exec.TenantID,
		Step:        step,
		StepType:    stepType,
		Message:     message,
		Details:     details,
		Timestamp:   time.Now().UTC(),
	}
	if err := it.store.AppendLog(ctx, l); err != nil {
		it.logger.Error("append execution log",
			zap.String("execution_id", exec.ID), zap.Error(err))
	}
}

func (it *Interpreter) runStep(ctx context.Context, step Step, ec *execContext) (any, error) {
	switch {
	case step.Type == StepHTTPRequest && step.HTTP != nil:
		return it.runHTTPRequest(ctx, step.HTTP, ec)
	case step.Type == StepCondition && step.Condition != nil:
		return evalCondition(step.Condition, ec)
	case step.Type == StepEmail && step.Email != nil:
		return it.runEmail(ctx, step.Email)
	case step.Type == StepDelay && step.Delay != nil:
		return nil, it.runDelay(ctx, step.Delay)
	case step.Type == StepFunction && step.Function != nil:
		return runFunction(step.Function, ec)
	default:
		return nil, fmt.Errorf("unsupported step type: %s", step.Type)
	}
}

func (it *Interpreter) runHTTPRequest(ctx context.Context, spec *HTTPStep, ec *execContext) (any, error) {
	if strings.TrimSpace(spec.Method) == "" {
		return nil, fmt.Errorf("missing method")
	}
	url := ec.interpolate(spec.URL)
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("missing url")
	}

	var body io.Reader
	if spec.Body != nil {
		raw, err := json.Marshal(spec.Body)
		if err != nil {
			return nil, err
		}
		rendered := ec.interpolate(string(raw))
		var parsed any
		if err := json.Unmarshal([]byte(rendered), &parsed); err != nil {
			return nil, fmt.Errorf("interpolated body is not valid json: %w", err)
		}
		buf, err := json.Marshal(parsed)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(buf)
	}

	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = 30
	}
	reqCtx, cancel := context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, strings.ToUpper(spec.Method), url, body)
	if err != nil {
		return nil, err
	}
	for k, v := range spec.Headers {
		req.Header.Set(k, ec.interpolate(v))
	}
	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := it.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("http status %d", resp.StatusCode)
	}
	var parsed any
	if err := json.Unmarshal(b, &parsed); err != nil {
		return nil, fmt.Errorf("response is not valid json: %w", err)
	}
	return parsed, nil
}

func evalCondition(cond *Condition, ec *execContext) (any, error) {
	if cond.Kind != "comparison" {
		return nil, fmt.Errorf("unsupported condition type: %s", cond.Kind)
	}
	left, err := resolveOperand(cond.Left, ec)
	if err != nil {
		return nil, err
	}
	right, err := resolveOperand(cond.Right, ec)
	if err != nil {
		return nil, err
	}
	switch cond.Operator {
	case "eq":
		return valuesEqual(left, right), nil
	case "neq":
		return !valuesEqual(left, right), nil
	case "gt", "gte", "lt", "lte":
		c, err := compareOrdered(left, right)
		if err != nil {
			return nil, err
		}
		switch cond.Operator {
		case "gt":
			return c > 0, nil
		case "gte":
			return c >= 0, nil
		case "lt":
			return c < 0, nil
		default:
			return c <= 0, nil
		}
	default:
		return nil, fmt.Errorf("unsupported operator: %s", cond.Operator)
	}
}

func resolveOperand(op Operand, ec *execContext) (any, error) {
	switch op.Type {
	case "variable":
		return ec.lookup(op.Path)
	case "literal":
		return op.Value, nil
	default:
		return nil, fmt.Errorf("unsupported value type: %s", op.Type)
	}
}

func valuesEqual(left, right any) bool {
	if lf, ok := toFloat(left); ok {
		if rf, ok := toFloat(right); ok {
			return lf == rf
		}
	}
	return reflect.DeepEqual(left, right)
}

func compareOrdered(left, right any) (int, error) {
	if lf, lok := toFloat(left); lok {
		if rf, rok := toFloat(right); rok {
			switch {
			case lf < rf:
				return -1, nil
			case lf > rf:
				return 1, nil
			default:
				return 0, nil
			}
		}
	}
	if ls, lok := left.(string); lok {
		if rs, rok := right.(string); rok {
			return strings.Compare(ls, rs), nil
		}
	}
	return 0, fmt.Errorf("cannot compare %T with %T", left, right)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// runEmail is a delivery placeholder: it simulates the send and reports
// success. Real delivery belongs to the communication hub.
func (it *Interpreter) runEmail(ctx context.Context, _ *EmailStep) (any, error) {
	if err := it.sleep(ctx, time.Second); err != nil {
		return nil, err
	}
	return true, nil
}

func (it *Interpreter) runDelay(ctx context.Context, spec *DelayStep) error {
	if spec.Seconds < 0 {
		return fmt.Errorf("delay must be a non-negative number")
	}
	return it.sleep(ctx, time.Duration(spec.Seconds*float64(time.Second)))
}

func runFunction(spec *FunctionStep, ec *execContext) (any, error) {
	if spec.Function != "transform" {
		return nil, fmt.Errorf("unsupported function type: %s", spec.Function)
	}
	raw, err := json.Marshal(spec.Template)
	if err != nil {
		return nil, err
	}
	return ec.interpolate(string(raw)), nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
