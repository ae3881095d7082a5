package workflow

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"
)

// Notifier fans execution lifecycle events out to the platform's event bus
// and audit trail. Delivery is fire-and-forget; a nil *Notifier is valid and
// drops everything.
type Notifier struct {
	eventBus *endpoint
	audit    *endpoint
	client   *http.Client
}

type endpoint struct {
	baseURL string
}

func NewNotifier(eventBusURL, auditURL string, timeout time.Duration) *Notifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Notifier{
		eventBus: parseEndpoint(eventBusURL),
		audit:    parseEndpoint(auditURL),
		client:   &http.Client{Timeout: timeout},
	}
}

func (n *Notifier) ExecutionEvent(exec Execution, event, note string) {
	if n == nil {
		return
	}
	payload := map[string]any{
		"event":        event,
		"execution_id": exec.ID,
		"workflow_id":  exec.WorkflowID,
		"tenant_id":    exec.TenantID,
		"status":       exec.Status,
		"note":         note,
		"ts":           time.Now().UTC().Format(time.RFC3339),
	}
	if exec.CurrentStep != nil {
		payload["current_step"] = *exec.CurrentStep
	}
	n.post(payload)
}

func (n *Notifier) StepEvent(exec Execution, stepIndex int, step Step, status, errMsg string) {
	if n == nil {
		return
	}
	payload := map[string]any{
		"event":        "execution.step." + status,
		"execution_id": exec.ID,
		"workflow_id":  exec.WorkflowID,
		"tenant_id":    exec.TenantID,
		"step":         stepIndex,
		"step_name":    step.Name,
		"step_type":    step.Type,
		"error":        errMsg,
		"ts":           time.Now().UTC().Format(time.RFC3339),
	}
	n.post(payload)
}

func (n *Notifier) post(payload map[string]any) {
	if n.eventBus != nil {
		n.postJSON(n.eventBus.baseURL+"/v1/events", map[string]any{
			"topic":   payload["event"],
			"payload": payload,
		})
	}
	if n.audit != nil {
		n.postJSON(n.audit.baseURL+"/v1/events", payload)
	}
}

func (n *Notifier) postJSON(url string, payload map[string]any) {
	raw, _ := json.Marshal(payload)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.client.Do(req)
	if err != nil {
		return
	}
	_ = resp.Body.Close()
}

func parseEndpoint(url string) *endpoint {
	if url == "" {
		return nil
	}
	return &endpoint{baseURL: url}
}
