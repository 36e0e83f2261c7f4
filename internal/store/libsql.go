package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/auraos/orchestrator/pkg/schema"
)

// LibSQLStore implements Store using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path.
// The path should be a file URI, e.g. "file:/path/to/aura.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	if !strings.HasPrefix(dbPath, "file:") && !strings.Contains(dbPath, "://") {
		dbPath = "file:" + dbPath
	}
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// Open opens the database at dbPath and applies pending migrations.
func Open(ctx context.Context, dbPath string) (*LibSQLStore, error) {
	s, err := NewLibSQLStore(dbPath)
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// Vacuum runs VACUUM on the database.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// --- Workflows ---

// SaveWorkflow inserts wf or replaces the stored definition with the same ID.
func (s *LibSQLStore) SaveWorkflow(ctx context.Context, wf *schema.Workflow) error {
	def, err := json.Marshal(wf)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "marshal workflow %s: %s", wf.ID, err.Error()).
			WithWorkflow(wf.ID).WithCause(err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO workflows (id, name, category, status, definition, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name=excluded.name, category=excluded.category,
		   status=excluded.status, definition=excluded.definition, updated_at=excluded.updated_at`,
		wf.ID, wf.Name, string(wf.Category), string(wf.Status), string(def),
		timeOrNow(wf.CreatedAt), timeOrNow(wf.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("save workflow %s: %w", wf.ID, err)
	}
	return nil
}

func (s *LibSQLStore) GetWorkflow(ctx context.Context, id string) (*schema.Workflow, error) {
	var def string
	err := s.db.QueryRowContext(ctx, `SELECT definition FROM workflows WHERE id = ?`, id).Scan(&def)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("workflow", id)
	}
	if err != nil {
		return nil, err
	}
	return decodeWorkflow(id, def)
}

// LoadWorkflows returns every stored workflow, oldest first.
func (s *LibSQLStore) LoadWorkflows(ctx context.Context) ([]*schema.Workflow, error) {
	return s.ListWorkflows(ctx, WorkflowFilter{})
}

func (s *LibSQLStore) ListWorkflows(ctx context.Context, filter WorkflowFilter) ([]*schema.Workflow, error) {
	var where []string
	var args []any

	if filter.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*filter.Status))
	}
	if filter.Category != "" {
		where = append(where, "category = ?")
		args = append(args, string(filter.Category))
	}

	query := "SELECT id, definition FROM workflows"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at ASC, id ASC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var workflows []*schema.Workflow
	for rows.Next() {
		var id, def string
		if err := rows.Scan(&id, &def); err != nil {
			return nil, err
		}
		wf, err := decodeWorkflow(id, def)
		if err != nil {
			return nil, err
		}
		workflows = append(workflows, wf)
	}
	return workflows, rows.Err()
}

func decodeWorkflow(id, def string) (*schema.Workflow, error) {
	wf := &schema.Workflow{}
	if err := json.Unmarshal([]byte(def), wf); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "decode workflow %s: %s", id, err.Error()).
			WithWorkflow(id).WithCause(err)
	}
	return wf, nil
}

// --- Executions ---

// AppendExecution appends rec with the next per-workflow sequence number.
func (s *LibSQLStore) AppendExecution(ctx context.Context, rec *schema.ExecutionRecord) error {
	results, err := json.Marshal(rec.StepResults)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "marshal step results: %s", err.Error()).WithCause(err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var seq int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) + 1 FROM executions WHERE workflow_id = ?`, rec.WorkflowID,
	).Scan(&seq)
	if err != nil {
		return fmt.Errorf("get next sequence: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO executions (execution_id, workflow_id, sequence, timestamp, success, execution_time, steps, error, step_results)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ExecutionID, rec.WorkflowID, seq, timeOrNow(rec.Timestamp), boolInt(rec.Success),
		rec.ExecutionTime, rec.Steps, nullStr(rec.Error), string(results),
	)
	if err != nil {
		return fmt.Errorf("insert execution: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit execution: %w", err)
	}
	return nil
}

// ListExecutions returns matching run records, newest first.
func (s *LibSQLStore) ListExecutions(ctx context.Context, filter ExecutionFilter) ([]*schema.ExecutionRecord, error) {
	var where []string
	var args []any

	if filter.WorkflowID != "" {
		where = append(where, "workflow_id = ?")
		args = append(args, filter.WorkflowID)
	}
	if filter.Success != nil {
		where = append(where, "success = ?")
		args = append(args, boolInt(*filter.Success))
	}
	if filter.Since != nil {
		where = append(where, "timestamp >= ?")
		args = append(args, filter.Since.UTC())
	}

	query := "SELECT execution_id, workflow_id, timestamp, success, execution_time, steps, error, step_results FROM executions"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY timestamp DESC, sequence DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*schema.ExecutionRecord
	for rows.Next() {
		rec := &schema.ExecutionRecord{}
		var (
			success     int
			errText     sql.NullString
			stepResults sql.NullString
		)
		if err := rows.Scan(&rec.ExecutionID, &rec.WorkflowID, &rec.Timestamp, &success,
			&rec.ExecutionTime, &rec.Steps, &errText, &stepResults); err != nil {
			return nil, err
		}
		rec.Success = success != 0
		rec.Error = errText.String
		if stepResults.Valid && stepResults.String != "" && stepResults.String != "null" {
			if err := json.Unmarshal([]byte(stepResults.String), &rec.StepResults); err != nil {
				return nil, fmt.Errorf("decode step results of %s: %w", rec.ExecutionID, err)
			}
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// --- Recoveries ---

func (s *LibSQLStore) AppendRecovery(ctx context.Context, rec *schema.ErrorRecoveryRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO recoveries (execution_id, workflow_id, step_id, timestamp, suggestion, success)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ExecutionID, rec.WorkflowID, rec.StepID, timeOrNow(rec.Timestamp),
		nullStr(rec.Suggestion), boolInt(rec.Success),
	)
	if err != nil {
		return fmt.Errorf("insert recovery: %w", err)
	}
	return nil
}

// ListRecoveries returns matching recovery records, newest first.
func (s *LibSQLStore) ListRecoveries(ctx context.Context, filter RecoveryFilter) ([]*schema.ErrorRecoveryRecord, error) {
	var where []string
	var args []any

	if filter.WorkflowID != "" {
		where = append(where, "workflow_id = ?")
		args = append(args, filter.WorkflowID)
	}
	if filter.ExecutionID != "" {
		where = append(where, "execution_id = ?")
		args = append(args, filter.ExecutionID)
	}

	query := "SELECT execution_id, workflow_id, step_id, timestamp, suggestion, success FROM recoveries"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*schema.ErrorRecoveryRecord
	for rows.Next() {
		rec := &schema.ErrorRecoveryRecord{}
		var (
			suggestion sql.NullString
			success    int
		)
		if err := rows.Scan(&rec.ExecutionID, &rec.WorkflowID, &rec.StepID, &rec.Timestamp, &suggestion, &success); err != nil {
			return nil, err
		}
		rec.Suggestion = suggestion.String
		rec.Success = success != 0
		records = append(records, rec)
	}
	return records, rows.Err()
}

// --- Helpers ---

func storeNotFound(resource, id string) *schema.EngineError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var _ Store = (*LibSQLStore)(nil)
