// Package postgres provides Postgres-backed persistence implementations.
//
// Expected schema:
//
//	CREATE TABLE jobs (
//	    id             TEXT PRIMARY KEY,
//	    name           TEXT NOT NULL,
//	    criteria       JSONB NOT NULL,
//	    status         TEXT NOT NULL,
//	    progress       DOUBLE PRECISION NOT NULL DEFAULT 0,
//	    total_found    INTEGER NOT NULL DEFAULT 0,
//	    processed      INTEGER NOT NULL DEFAULT 0,
//	    checkpoint     JSONB,
//	    error_message  TEXT NOT NULL DEFAULT '',
//	    retry_count    INTEGER NOT NULL DEFAULT 0,
//	    artifacts      JSONB NOT NULL DEFAULT '{}',
//	    prisma         JSONB,
//	    created_at     TIMESTAMPTZ NOT NULL,
//	    started_at     TIMESTAMPTZ,
//	    completed_at   TIMESTAMPTZ
//	);
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/litrev/harvester/internal/scholar"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Pool is the subset of pgxpool.Pool the stores use. pgxmock satisfies it
// in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	JobsTable       string
	PapersTable     string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// NewPool connects a pgx pool from the config.
func NewPool(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return pool, nil
}

// JobStore persists job state in Postgres.
type JobStore struct {
	pool  Pool
	table string
}

// NewJobStore constructs a store over an existing pool.
func NewJobStore(pool Pool, table string) (*JobStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "jobs"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &JobStore{pool: pool, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *JobStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// CreateJob inserts a new job row.
func (s *JobStore) CreateJob(ctx context.Context, job *scholar.JobState) error {
	criteria, err := json.Marshal(job.Criteria)
	if err != nil {
		return fmt.Errorf("marshal criteria: %w", err)
	}
	artifacts, err := json.Marshal(job.Artifacts)
	if err != nil {
		return fmt.Errorf("marshal artifacts: %w", err)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	id, name, criteria, status, progress, total_found, processed,
	checkpoint, error_message, retry_count, artifacts, prisma,
	created_at, started_at, completed_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`, s.table)

	_, err = s.pool.Exec(ctx, query,
		job.ID, job.Name, criteria, string(job.Status), job.Progress,
		job.TotalFound, job.ProcessedCount, nullableJSON(job.Checkpoint),
		job.ErrorMessage, job.RetryCount, artifacts, nullableJSON(job.PRISMA),
		job.CreatedAt, job.StartedAt, job.CompletedAt)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

const jobColumns = `id, name, criteria, status, progress, total_found, processed,
	checkpoint, error_message, retry_count, artifacts, prisma,
	created_at, started_at, completed_at`

// LoadJob fetches a job by ID.
func (s *JobStore) LoadJob(ctx context.Context, jobID string) (*scholar.JobState, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, jobColumns, s.table)
	row := s.pool.QueryRow(ctx, query, jobID)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, scholar.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load job: %w", err)
	}
	return job, nil
}

// ListJobs returns all jobs, newest first.
func (s *JobStore) ListJobs(ctx context.Context) ([]*scholar.JobState, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY created_at DESC`, jobColumns, s.table)
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*scholar.JobState
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

// DeleteJob removes a job row.
func (s *JobStore) DeleteJob(ctx context.Context, jobID string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, s.table)
	tag, err := s.pool.Exec(ctx, query, jobID)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return scholar.ErrJobNotFound
	}
	return nil
}

// MarkRunning transitions the job to running.
func (s *JobStore) MarkRunning(ctx context.Context, jobID string, startedAt time.Time) error {
	query := fmt.Sprintf(`
UPDATE %s SET status = $2, error_message = '', started_at = COALESCE(started_at, $3)
WHERE id = $1`, s.table)
	return s.exec(ctx, query, jobID, string(scholar.JobStatusRunning), startedAt)
}

// MarkPaused transitions the job to paused.
func (s *JobStore) MarkPaused(ctx context.Context, jobID string) error {
	query := fmt.Sprintf(`UPDATE %s SET status = $2 WHERE id = $1`, s.table)
	return s.exec(ctx, query, jobID, string(scholar.JobStatusPaused))
}

// MarkPending transitions the job back to pending.
func (s *JobStore) MarkPending(ctx context.Context, jobID string) error {
	query := fmt.Sprintf(`UPDATE %s SET status = $2 WHERE id = $1`, s.table)
	return s.exec(ctx, query, jobID, string(scholar.JobStatusPending))
}

// MarkCompleted records the terminal success state.
func (s *JobStore) MarkCompleted(ctx context.Context, jobID string, upd scholar.CompletionUpdate) error {
	artifacts, err := json.Marshal(upd.Artifacts)
	if err != nil {
		return fmt.Errorf("marshal artifacts: %w", err)
	}
	query := fmt.Sprintf(`
UPDATE %s SET status = $2, progress = 100, total_found = $3, processed = $4,
	artifacts = $5, prisma = $6, checkpoint = NULL, error_message = '',
	completed_at = $7
WHERE id = $1`, s.table)
	return s.exec(ctx, query, jobID, string(scholar.JobStatusCompleted),
		upd.TotalFound, upd.Processed, artifacts, nullableJSON(upd.PRISMA), upd.CompletedAt)
}

// MarkFailed records the failure state together with the resume checkpoint.
func (s *JobStore) MarkFailed(ctx context.Context, jobID string, upd scholar.FailureUpdate) error {
	query := fmt.Sprintf(`
UPDATE %s SET status = $2, error_message = $3, retry_count = $4,
	checkpoint = COALESCE($5, checkpoint)
WHERE id = $1`, s.table)
	return s.exec(ctx, query, jobID, string(scholar.JobStatusFailed),
		upd.ErrorMessage, upd.RetryCount, nullableJSON(upd.Checkpoint))
}

// UpdateProgress stores the running counters.
func (s *JobStore) UpdateProgress(ctx context.Context, jobID string, progress float64, processed, totalFound int) error {
	query := fmt.Sprintf(`
UPDATE %s SET progress = $2, processed = $3, total_found = $4 WHERE id = $1`, s.table)
	return s.exec(ctx, query, jobID, progress, processed, totalFound)
}

// SaveCheckpoint stores the resume point.
func (s *JobStore) SaveCheckpoint(ctx context.Context, jobID string, cp scholar.Checkpoint) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	query := fmt.Sprintf(`UPDATE %s SET checkpoint = $2 WHERE id = $1`, s.table)
	return s.exec(ctx, query, jobID, data)
}

func (s *JobStore) exec(ctx context.Context, query string, args ...any) error {
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return scholar.ErrJobNotFound
	}
	return nil
}

func scanJob(row pgx.Row) (*scholar.JobState, error) {
	var (
		job        scholar.JobState
		status     string
		criteria   []byte
		checkpoint []byte
		artifacts  []byte
		prisma     []byte
	)
	err := row.Scan(&job.ID, &job.Name, &criteria, &status, &job.Progress,
		&job.TotalFound, &job.ProcessedCount, &checkpoint, &job.ErrorMessage,
		&job.RetryCount, &artifacts, &prisma, &job.CreatedAt, &job.StartedAt,
		&job.CompletedAt)
	if err != nil {
		return nil, err
	}
	job.Status = scholar.JobStatus(status)
	if err := json.Unmarshal(criteria, &job.Criteria); err != nil {
		return nil, fmt.Errorf("unmarshal criteria: %w", err)
	}
	if len(artifacts) > 0 {
		if err := json.Unmarshal(artifacts, &job.Artifacts); err != nil {
			return nil, fmt.Errorf("unmarshal artifacts: %w", err)
		}
	}
	if len(checkpoint) > 0 {
		job.Checkpoint = &scholar.Checkpoint{}
		if err := json.Unmarshal(checkpoint, job.Checkpoint); err != nil {
			return nil, fmt.Errorf("unmarshal checkpoint: %w", err)
		}
	}
	if len(prisma) > 0 {
		job.PRISMA = &scholar.PRISMAMetrics{}
		if err := json.Unmarshal(prisma, job.PRISMA); err != nil {
			return nil, fmt.Errorf("unmarshal prisma metrics: %w", err)
		}
	}
	return &job, nil
}

// nullableJSON marshals v, mapping typed nil pointers to SQL NULL.
func nullableJSON[T any](v *T) any {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}
