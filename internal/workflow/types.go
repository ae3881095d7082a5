package workflow

import "time"

type TriggerType string

const (
	TriggerEvent    TriggerType = "event"
	TriggerSchedule TriggerType = "schedule"
	TriggerManual   TriggerType = "manual"
	TriggerAPI      TriggerType = "api"
)

type Status string

const (
	StatusDraft    Status = "draft"
	StatusActive   Status = "active"
	StatusArchived Status = "archived"
	StatusDisabled Status = "disabled"
)

type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "pending"
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
	ExecutionCancelled ExecutionStatus = "cancelled"
	ExecutionSuspended ExecutionStatus = "suspended"
)

// Workflow is one version of a definition. Updating a workflow inserts a new
// row with Version+1 and clears IsLatest on the previous row in the same
// transaction; a version is never mutated once it exists, so executions keep
// an audit trail against the exact definition they ran.
type Workflow struct {
	ID            string         `json:"id"`
	LineageID     string         `json:"lineage_id"`
	TenantID      string         `json:"tenant_id"`
	Name          string         `json:"name"`
	Description   string         `json:"description,omitempty"`
	TriggerType   TriggerType    `json:"trigger_type"`
	TriggerConfig map[string]any `json:"trigger_config,omitempty"`
	Steps         []Step         `json:"steps"`
	Status        Status         `json:"status"`
	Version       int            `json:"version"`
	IsLatest      bool           `json:"is_latest"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// Execution is one run of a workflow version against a specific input. Owned
// exclusively by the interpreter while running, read-only to callers afterward.
type Execution struct {
	ID          string          `json:"id"`
	WorkflowID  string          `json:"workflow_id"`
	TenantID    string          `json:"tenant_id"`
	Status      ExecutionStatus `json:"status"`
	CurrentStep *int            `json:"current_step,omitempty"`
	InputData   map[string]any  `json:"input_data"`
	OutputData  map[string]any  `json:"output_data"`
	ErrorData   *ErrorData      `json:"error_data,omitempty"`
	StartTime   *time.Time      `json:"start_time,omitempty"`
	EndTime     *time.Time      `json:"end_time,omitempty"`
	Retries     int             `json:"retries"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type ErrorData struct {
	Error string `json:"error"`
	Step  int    `json:"step"`
}

// ExecutionLog is one row per step attempt. Append-only; the interpreter never
// updates or deletes log rows.
type ExecutionLog struct {
	ID          string         `json:"id"`
	ExecutionID string         `json:"execution_id"`
	TenantID    string         `json:"tenant_id"`
	Step        int            `json:"step"`
	StepType    StepType       `json:"step_type"`
	Message     string         `json:"message"`
	Details     map[string]any `json:"details,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}
