package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// RunRecord is one pipeline or script execution.
type RunRecord struct {
	ID              string
	Kind            string
	Status          string
	Prompt          string
	OutputFilename  string
	SynthesisSource string
	Template        string
	ErrorKind       string
	Message         string
	Script          string
	Log             string
	DurationMs      int64
	CreatedAt       time.Time
}

// RunArtifactRecord is one file a successful run published.
type RunArtifactRecord struct {
	ID        int64
	RunID     string
	Kind      string
	Name      string
	Size      int64
	CreatedAt time.Time
}

type RunQuery struct {
	Status         string
	Source         string
	OutputFilename string
	Page           int
	PageSize       int
}

// RunStore handles run history persistence.
type RunStore struct {
	db *sql.DB
}

func NewRunStore() *RunStore {
	return &RunStore{db: DB}
}

// Create inserts rec together with its artifacts in one transaction.
func (s *RunStore) Create(ctx context.Context, rec *RunRecord, artifacts []RunArtifactRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (
			id, kind, status, prompt, output_filename, synthesis_source, template,
			error_kind, message, script, log, duration_ms, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.Kind, rec.Status, rec.Prompt, rec.OutputFilename, rec.SynthesisSource, rec.Template,
		rec.ErrorKind, rec.Message, rec.Script, rec.Log, rec.DurationMs, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create run record: %w", err)
	}

	for _, a := range artifacts {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO run_artifacts (run_id, kind, name, size, created_at)
			VALUES (?, ?, ?, ?, ?)
		`, rec.ID, a.Kind, a.Name, a.Size, a.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to create run artifact record: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run record: %w", err)
	}
	return nil
}

// GetByID returns nil, nil when the run does not exist.
func (s *RunStore) GetByID(ctx context.Context, id string) (*RunRecord, error) {
	row := s.db.QueryRowContext(ctx, runSelectSQL+` WHERE id = ?`, id)
	rec, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run by id: %w", err)
	}
	return rec, nil
}

// List returns one page of runs, newest first, and the total match count.
func (s *RunStore) List(ctx context.Context, query RunQuery) ([]RunRecord, int, error) {
	if query.Page <= 0 {
		query.Page = 1
	}
	if query.PageSize <= 0 {
		query.PageSize = 20
	}
	if query.PageSize > 100 {
		query.PageSize = 100
	}

	var where []string
	var args []any
	if query.Status != "" {
		where = append(where, "status = ?")
		args = append(args, query.Status)
	}
	if query.Source != "" {
		where = append(where, "synthesis_source = ?")
		args = append(args, query.Source)
	}
	if query.OutputFilename != "" {
		where = append(where, "output_filename = ?")
		args = append(args, query.OutputFilename)
	}

	whereSQL := ""
	if len(where) > 0 {
		whereSQL = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM runs"+whereSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count runs: %w", err)
	}

	offset := (query.Page - 1) * query.PageSize
	listArgs := append(append([]any{}, args...), query.PageSize, offset)
	rows, err := s.db.QueryContext(ctx, runSelectSQL+whereSQL+" ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?", listArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var items []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan run: %w", err)
		}
		items = append(items, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return items, total, nil
}

func (s *RunStore) ListArtifacts(ctx context.Context, runID string) ([]RunArtifactRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, kind, name, size, created_at
		  FROM run_artifacts
		 WHERE run_id = ?
		 ORDER BY name ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list run artifacts: %w", err)
	}
	defer rows.Close()

	var items []RunArtifactRecord
	for rows.Next() {
		var a RunArtifactRecord
		if err := rows.Scan(&a.ID, &a.RunID, &a.Kind, &a.Name, &a.Size, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run artifact: %w", err)
		}
		items = append(items, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate run artifacts: %w", err)
	}
	return items, nil
}

// PurgeBefore deletes runs created before cutoff. Artifacts rows cascade.
func (s *RunStore) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge runs: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

const runSelectSQL = `
	SELECT id, kind, status, prompt, output_filename, synthesis_source, template,
	       error_kind, message, script, log, duration_ms, created_at
	  FROM runs`

func scanRun(row interface{ Scan(dest ...any) error }) (*RunRecord, error) {
	var rec RunRecord
	err := row.Scan(
		&rec.ID, &rec.Kind, &rec.Status, &rec.Prompt, &rec.OutputFilename, &rec.SynthesisSource, &rec.Template,
		&rec.ErrorKind, &rec.Message, &rec.Script, &rec.Log, &rec.DurationMs, &rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
