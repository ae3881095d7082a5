package httpserver

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/conduitcrm/workflow-engine/internal/workflow"
	"go.uber.org/zap"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("content-type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleWorkflows(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		tenant, ok := tenantID(w, r)
		if !ok {
			return
		}
		raw, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "bad request body", http.StatusBadRequest)
			return
		}
		if err := workflow.ValidateDefinition(raw); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		var wf workflow.Workflow
		if err := json.Unmarshal(raw, &wf); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		created, err := s.wf.CreateWorkflow(r.Context(), tenant, wf)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, created)
	case http.MethodGet:
		tenant, ok := tenantID(w, r)
		if !ok {
			return
		}
		f := workflow.WorkflowFilter{
			Status: workflow.Status(r.URL.Query().Get("status")),
			Limit:  queryInt(r, "limit", 20),
			Offset: queryInt(r, "skip", 0),
		}
		items, err := s.wf.ListWorkflows(r.Context(), tenant, f)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, map[string]any{"items": items})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleWorkflowByID(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantID(w, r)
	if !ok {
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/v1/workflows/")
	if path == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	parts := strings.Split(path, "/")
	id := parts[0]
	action := ""
	if len(parts) > 1 {
		action = parts[1]
	}

	switch {
	case r.Method == http.MethodGet && action == "":
		wf, err := s.wf.GetWorkflow(r.Context(), tenant, id)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, wf)
	case r.Method == http.MethodGet && action == "versions":
		items, err := s.wf.ListVersions(r.Context(), tenant, id)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, map[string]any{"items": items})
	case r.Method == http.MethodPut && action == "":
		raw, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "bad request body", http.StatusBadRequest)
			return
		}
		if err := workflow.ValidateDefinition(raw); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		var upd workflow.Workflow
		if err := json.Unmarshal(raw, &upd); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		next, err := s.wf.UpdateWorkflow(r.Context(), tenant, id, upd)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, next)
	case r.Method == http.MethodPost && action == "execute":
		var body struct {
			InputData map[string]any `json:"input_data"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		exec, err := s.wf.Execute(r.Context(), tenant, id, body.InputData)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, exec)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (s *Server) handleExecutions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	tenant, ok := tenantID(w, r)
	if !ok {
		return
	}
	f := workflow.ExecutionFilter{
		WorkflowID: r.URL.Query().Get("workflow_id"),
		Status:     workflow.ExecutionStatus(r.URL.Query().Get("status")),
		Limit:      queryInt(r, "limit", 20),
		Offset:     queryInt(r, "skip", 0),
	}
	items, err := s.wf.ListExecutions(r.Context(), tenant, f)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"items": items})
}

func (s *Server) handleExecutionByID(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantID(w, r)
	if !ok {
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/v1/executions/")
	if path == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	parts := strings.Split(path, "/")
	id := parts[0]
	action := ""
	if len(parts) > 1 {
		action = parts[1]
	}

	switch {
	case r.Method == http.MethodGet && action == "":
		exec, err := s.wf.GetExecution(r.Context(), tenant, id)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, exec)
	case r.Method == http.MethodGet && action == "logs" && len(parts) == 2:
		logs, err := s.wf.ListLogs(r.Context(), tenant, id)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, map[string]any{"items": logs})
	case r.Method == http.MethodGet && action == "logs" && len(parts) == 3 && parts[2] == "stream":
		s.handleLogStream(w, r, tenant, id)
	case r.Method == http.MethodPost && action == "cancel":
		exec, err := s.wf.CancelExecution(r.Context(), tenant, id)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, exec)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (s *Server) handleTemplates(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, map[string]any{"items": workflow.BuiltinTemplates})
}

func (s *Server) handleLogStream(w http.ResponseWriter, r *http.Request, tenant, executionID string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	lastIdx := 0
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			logs, err := s.wf.ListLogs(r.Context(), tenant, executionID)
			if err != nil {
				return
			}
			for lastIdx < len(logs) {
				raw, _ := json.Marshal(logs[lastIdx])
				_, _ = w.Write([]byte("data: " + string(raw) + "\n\n"))
				flusher.Flush()
				lastIdx++
			}
		}
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, workflow.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, workflow.ErrNotActive):
		http.Error(w, "active workflow not found", http.StatusNotFound)
	case errors.Is(err, workflow.ErrNotLatest):
		http.Error(w, "workflow is not the latest version", http.StatusConflict)
	default:
		s.logger.Error("request failed", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func tenantID(w http.ResponseWriter, r *http.Request) (string, bool) {
	tenant := strings.TrimSpace(r.URL.Query().Get("tenant_id"))
	if tenant == "" {
		http.Error(w, "tenant_id required", http.StatusBadRequest)
		return "", false
	}
	return tenant, true
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(v)
	if err != nil || parsed < 0 {
		return fallback
	}
	return parsed
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("content-type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
