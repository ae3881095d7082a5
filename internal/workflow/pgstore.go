package workflow

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PGStore persists workflows, executions and logs in Postgres. Rows carry a
// jsonb payload alongside the columns that queries filter on.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(dsn string) (*PGStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("dsn is empty")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	s := &PGStore{db: db}
	if err := s.migrate(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PGStore) Close() error { return s.db.Close() }

func (s *PGStore) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
create table if not exists wfengine_workflows (
  id text primary key,
  tenant_id text not null,
  lineage_id text not null,
  version int not null,
  is_latest boolean not null,
  status text not null,
  trigger_type text not null,
  payload jsonb not null,
  created_at timestamptz not null,
  updated_at timestamptz not null
);
create index if not exists wfengine_workflows_lineage_idx
  on wfengine_workflows (tenant_id, lineage_id);
create table if not exists wfengine_executions (
  id text primary key,
  workflow_id text not null,
  tenant_id text not null,
  status text not null,
  current_step int,
  payload jsonb not null,
  created_at timestamptz not null,
  updated_at timestamptz not null
);
create table if not exists wfengine_execution_logs (
  id text primary key,
  execution_id text not null,
  tenant_id text not null,
  step int not null,
  step_type text not null,
  message text not null,
  details jsonb,
  ts timestamptz not null
);
create index if not exists wfengine_execution_logs_exec_idx
  on wfengine_execution_logs (execution_id, ts);
`)
	return err
}

func (s *PGStore) CreateWorkflow(ctx context.Context, w Workflow) error {
	payload, err := json.Marshal(w)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `insert into wfengine_workflows
(id, tenant_id, lineage_id, version, is_latest, status, trigger_type, payload, created_at, updated_at)
values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		w.ID, w.TenantID, w.LineageID, w.Version, w.IsLatest, w.Status, w.TriggerType,
		payload, w.CreatedAt, w.UpdatedAt)
	return err
}

func (s *PGStore) GetWorkflow(ctx context.Context, tenantID, id string) (Workflow, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`select payload from wfengine_workflows where id=$1 and tenant_id=$2`,
		id, tenantID).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Workflow{}, ErrNotFound
		}
		return Workflow{}, err
	}
	return decodeWorkflow(raw)
}

func (s *PGStore) ListWorkflows(ctx context.Context, tenantID string, f WorkflowFilter) ([]Workflow, error) {
	query := `select payload from wfengine_workflows where tenant_id=$1 and is_latest`
	args := []any{tenantID}
	if f.Status != "" {
		args = append(args, f.Status)
		query += fmt.Sprintf(` and status=$%d`, len(args))
	}
	query += ` order by created_at desc`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(` limit $%d`, len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += fmt.Sprintf(` offset $%d`, len(args))
	}
	return s.queryWorkflows(ctx, query, args...)
}

func (s *PGStore) ListVersions(ctx context.Context, tenantID, lineageID string) ([]Workflow, error) {
	return s.queryWorkflows(ctx,
		`select payload from wfengine_workflows where tenant_id=$1 and lineage_id=$2 order by version asc`,
		tenantID, lineageID)
}

func (s *PGStore) CreateVersion(ctx context.Context, next Workflow) error {
	payload, err := json.Marshal(next)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// The latest-flag flip and the insert share a transaction so that at no
	// point do two rows of the lineage claim is_latest.
	_, err = tx.ExecContext(ctx, `update wfengine_workflows
set is_latest=false, payload = payload || '{"is_latest":false}'::jsonb, updated_at=$3
where tenant_id=$1 and lineage_id=$2 and is_latest`,
		next.TenantID, next.LineageID, time.Now().UTC())
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `insert into wfengine_workflows
(id, tenant_id, lineage_id, version, is_latest, status, trigger_type, payload, created_at, updated_at)
values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		next.ID, next.TenantID, next.LineageID, next.Version, next.IsLatest, next.Status,
		next.TriggerType, payload, next.CreatedAt, next.UpdatedAt)
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (s *PGStore) ListScheduled(ctx context.Context) ([]Workflow, error) {
	return s.queryWorkflows(ctx, `select payload from wfengine_workflows
where is_latest and status=$1 and trigger_type=$2 order by id`,
		StatusActive, TriggerSchedule)
}

func (s *PGStore) queryWorkflows(ctx context.Context, query string, args ...any) ([]Workflow, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Workflow
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		w, err := decodeWorkflow(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (s *PGStore) CreateExecution(ctx context.Context, e Execution) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `insert into wfengine_executions
(id, workflow_id, tenant_id, status, current_step, payload, created_at, updated_at)
values ($1,$2,$3,$4,$5,$6,$7,$8)`,
		e.ID, e.WorkflowID, e.TenantID, e.Status, e.CurrentStep, payload, e.CreatedAt, e.UpdatedAt)
	return err
}

func (s *PGStore) UpdateExecution(ctx context.Context, e Execution) error {
	e.UpdatedAt = time.Now().UTC()
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `update wfengine_executions
set status=$2, current_step=$3, payload=$4, updated_at=$5 where id=$1`,
		e.ID, e.Status, e.CurrentStep, payload, e.UpdatedAt)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) GetExecution(ctx context.Context, tenantID, id string) (Execution, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`select payload from wfengine_executions where id=$1 and tenant_id=$2`,
		id, tenantID).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Execution{}, ErrNotFound
		}
		return Execution{}, err
	}
	var e Execution
	if err := json.Unmarshal(raw, &e); err != nil {
		return Execution{}, err
	}
	return e, nil
}

func (s *PGStore) ListExecutions(ctx context.Context, tenantID string, f ExecutionFilter) ([]Execution, error) {
	query := `select payload from wfengine_executions where tenant_id=$1`
	args := []any{tenantID}
	if f.WorkflowID != "" {
		args = append(args, f.WorkflowID)
		query += fmt.Sprintf(` and workflow_id=$%d`, len(args))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		query += fmt.Sprintf(` and status=$%d`, len(args))
	}
	query += ` order by created_at desc`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(` limit $%d`, len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += fmt.Sprintf(` offset $%d`, len(args))
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Execution
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var e Execution
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PGStore) AppendLog(ctx context.Context, l ExecutionLog) error {
	var details []byte
	if l.Details != nil {
		var err error
		details, err = json.Marshal(l.Details)
		if err != nil {
			return err
		}
	}
	_, err := s.db.ExecContext(ctx, `insert into wfengine_execution_logs
(id, execution_id, tenant_id, step, step_type, message, details, ts)
values ($1,$2,$3,$4,$5,$6,$7,$8)`,
		l.ID, l.ExecutionID, l.TenantID, l.Step, l.StepType, l.Message, details, l.Timestamp)
	return err
}

func (s *PGStore) ListLogs(ctx context.Context, tenantID, executionID string) ([]ExecutionLog, error) {
	rows, err := s.db.QueryContext(ctx, `select id, step, step_type, message, details, ts
from wfengine_execution_logs where execution_id=$1 and tenant_id=$2 order by ts asc`,
		executionID, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ExecutionLog
	for rows.Next() {
		l := ExecutionLog{ExecutionID: executionID, TenantID: tenantID}
		var details []byte
		if err := rows.Scan(&l.ID, &l.Step, &l.StepType, &l.Message, &details, &l.Timestamp); err != nil {
			return nil, err
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &l.Details); err != nil {
				return nil, err
			}
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func decodeWorkflow(raw []byte) (Workflow, error) {
	var w Workflow
	if err := json.Unmarshal(raw, &w); err != nil {
		return Workflow{}, err
	}
	return w, nil
}
