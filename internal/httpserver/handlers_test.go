package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/conduitcrm/workflow-engine/internal/config"
	"github.com/conduitcrm/workflow-engine/internal/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestServer(t *testing.T) (*httptest.Server, *workflow.MemoryStore) {
	t.Helper()
	store := workflow.NewMemoryStore()
	interp := workflow.NewInterpreter(store, nil, nil, zap.NewNop())
	svc := workflow.NewService(config.Default(), store, interp, zap.NewNop())
	s := NewServer(config.Default(), zap.NewNop(), svc)
	ts := httptest.NewServer(s.srv.Handler)
	t.Cleanup(ts.Close)
	return ts, store
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

const validDefinition = `{
	"name": "qualify lead",
	"trigger_type": "manual",
	"status": "active",
	"steps": [
		{"type": "condition", "name": "check", "output_key": "qualified", "condition": {
			"type": "comparison", "operator": "gte",
			"left": {"type": "variable", "path": "input.score"},
			"right": {"type": "literal", "value": 80}
		}}
	]
}`

func TestHealthz(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCreateWorkflowRequiresTenant(t *testing.T) {
	ts, _ := newTestServer(t)
	resp := postJSON(t, ts.URL+"/v1/workflows", validDefinition)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreateWorkflowRejectsBadDefinition(t *testing.T) {
	ts, _ := newTestServer(t)
	resp := postJSON(t, ts.URL+"/v1/workflows?tenant_id=t1",
		`{"trigger_type": "manual", "steps": []}`)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWorkflowLifecycleOverHTTP(t *testing.T) {
	ts, _ := newTestServer(t)
	base := ts.URL + "/v1/workflows"

	resp := postJSON(t, base+"?tenant_id=t1", validDefinition)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	created := decode[workflow.Workflow](t, resp)
	assert.Equal(t, 1, created.Version)
	assert.Equal(t, workflow.StatusActive, created.Status)

	// Fetch by id.
	getResp, err := http.Get(base + "/" + created.ID + "?tenant_id=t1")
	require.NoError(t, err)
	fetched := decode[workflow.Workflow](t, getResp)
	assert.Equal(t, created.ID, fetched.ID)

	// Other tenants cannot see it.
	otherResp, err := http.Get(base + "/" + created.ID + "?tenant_id=t2")
	require.NoError(t, err)
	otherResp.Body.Close()
	assert.Equal(t, http.StatusNotFound, otherResp.StatusCode)

	// Update inserts version 2.
	req, err := http.NewRequest(http.MethodPut, base+"/"+created.ID+"?tenant_id=t1",
		bytes.NewBufferString(validDefinition))
	require.NoError(t, err)
	putResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, putResp.StatusCode)
	v2 := decode[workflow.Workflow](t, putResp)
	assert.Equal(t, 2, v2.Version)
	assert.NotEqual(t, created.ID, v2.ID)
	assert.Equal(t, created.LineageID, v2.LineageID)

	// Updating the superseded version conflicts.
	req, err = http.NewRequest(http.MethodPut, base+"/"+created.ID+"?tenant_id=t1",
		bytes.NewBufferString(validDefinition))
	require.NoError(t, err)
	staleResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	staleResp.Body.Close()
	assert.Equal(t, http.StatusConflict, staleResp.StatusCode)

	// Version history via either id.
	versionsResp, err := http.Get(base + "/" + v2.ID + "/versions?tenant_id=t1")
	require.NoError(t, err)
	versions := decode[struct {
		Items []workflow.Workflow `json:"items"`
	}](t, versionsResp)
	assert.Len(t, versions.Items, 2)

	// List shows only the latest version.
	listResp, err := http.Get(base + "?tenant_id=t1")
	require.NoError(t, err)
	list := decode[struct {
		Items []workflow.Workflow `json:"items"`
	}](t, listResp)
	require.Len(t, list.Items, 1)
	assert.Equal(t, v2.ID, list.Items[0].ID)
}

func TestExecuteOverHTTP(t *testing.T) {
	ts, _ := newTestServer(t)
	base := ts.URL + "/v1/workflows"

	resp := postJSON(t, base+"?tenant_id=t1", validDefinition)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	created := decode[workflow.Workflow](t, resp)

	execResp := postJSON(t, base+"/"+created.ID+"/execute?tenant_id=t1",
		`{"input_data": {"score": 91}}`)
	require.Equal(t, http.StatusOK, execResp.StatusCode)
	exec := decode[workflow.Execution](t, execResp)
	assert.Equal(t, workflow.ExecutionCompleted, exec.Status)
	assert.Equal(t, true, exec.OutputData["qualified"])

	// Execution listing and logs.
	listResp, err := http.Get(ts.URL + "/v1/executions?tenant_id=t1&workflow_id=" + created.ID)
	require.NoError(t, err)
	list := decode[struct {
		Items []workflow.Execution `json:"items"`
	}](t, listResp)
	require.Len(t, list.Items, 1)

	logsResp, err := http.Get(ts.URL + "/v1/executions/" + exec.ID + "/logs?tenant_id=t1")
	require.NoError(t, err)
	logs := decode[struct {
		Items []workflow.ExecutionLog `json:"items"`
	}](t, logsResp)
	assert.Len(t, logs.Items, 1)
}

func TestExecuteInactiveWorkflow(t *testing.T) {
	ts, _ := newTestServer(t)
	base := ts.URL + "/v1/workflows"

	resp := postJSON(t, base+"?tenant_id=t1",
		`{"name": "draft wf", "trigger_type": "manual", "steps": []}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	created := decode[workflow.Workflow](t, resp)
	require.Equal(t, workflow.StatusDraft, created.Status)

	execResp := postJSON(t, base+"/"+created.ID+"/execute?tenant_id=t1", `{}`)
	defer execResp.Body.Close()
	assert.Equal(t, http.StatusNotFound, execResp.StatusCode)
}

func TestTemplatesEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, err := http.Get(ts.URL + "/v1/templates")
	require.NoError(t, err)
	templates := decode[struct {
		Items []workflow.Workflow `json:"items"`
	}](t, resp)
	assert.NotEmpty(t, templates.Items)
}

func TestCancelExecutionOverHTTP(t *testing.T) {
	ts, store := newTestServer(t)

	exec := workflow.Execution{
		ID: "e1", WorkflowID: "w1", TenantID: "t1",
		Status: workflow.ExecutionRunning, InputData: map[string]any{}, OutputData: map[string]any{},
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, store.CreateExecution(context.Background(), exec))

	resp := postJSON(t, ts.URL+"/v1/executions/e1/cancel?tenant_id=t1", `{}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	cancelled := decode[workflow.Execution](t, resp)
	assert.Equal(t, workflow.ExecutionCancelled, cancelled.Status)
}
