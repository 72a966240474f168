package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/retouchlab/eraser/internal/core/domain"
)

type JobRepository struct {
	db *sql.DB
}

func NewJobRepository(db *sql.DB) *JobRepository {
	return &JobRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *JobRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026052601)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS edit_jobs (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	image_key TEXT NOT NULL,
	result_key TEXT,
	type TEXT NOT NULL,
	status TEXT NOT NULL,
	prompt TEXT,
	enhanced_prompt TEXT,
	error_message TEXT,
	processing_millis BIGINT NOT NULL DEFAULT 0,
	metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_edit_jobs_user_created ON edit_jobs(user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_edit_jobs_status ON edit_jobs(status);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *JobRepository) Create(ctx context.Context, job *domain.EditJob) error {
	metadataJSON, err := json.Marshal(job.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO edit_jobs (
	id, user_id, image_key, result_key, type, status, prompt, enhanced_prompt, error_message, processing_millis, metadata, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
`,
		job.ID, job.UserID, job.ImageKey, job.ResultKey, string(job.Type), string(job.Status),
		job.Prompt, job.EnhancedPrompt, job.Error, job.ProcessingMillis, metadataJSON,
		job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

const jobColumns = `id, user_id, image_key, result_key, type, status, prompt, enhanced_prompt, error_message, processing_millis, metadata, created_at, updated_at`

func (r *JobRepository) GetByID(ctx context.Context, userID, jobID string) (*domain.EditJob, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+jobColumns+`
FROM edit_jobs
WHERE user_id = $1 AND id = $2
`, userID, jobID)

	job, err := scanJobRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrJobNotFound, "get job", fmt.Errorf("id=%s", jobID))
		}
		return nil, fmt.Errorf("get job by id: %w", err)
	}
	return &job, nil
}

func (r *JobRepository) GetByJobID(ctx context.Context, jobID string) (*domain.EditJob, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+jobColumns+`
FROM edit_jobs
WHERE id = $1
`, jobID)

	job, err := scanJobRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrJobNotFound, "get job", fmt.Errorf("id=%s", jobID))
		}
		return nil, fmt.Errorf("get job by id: %w", err)
	}
	return &job, nil
}

func (r *JobRepository) ListByUser(ctx context.Context, userID string) ([]domain.EditJob, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+jobColumns+`
FROM edit_jobs
WHERE user_id = $1
ORDER BY created_at DESC
`, userID)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	out := make([]domain.EditJob, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return out, nil
}

func (r *JobRepository) MarkRunning(ctx context.Context, jobID string) error {
	return r.transition(ctx, jobID, `
UPDATE edit_jobs
SET status = $2, updated_at = $3
WHERE id = $1
`, "mark running", string(domain.JobRunning), time.Now().UTC())
}

func (r *JobRepository) MarkSucceeded(ctx context.Context, jobID, resultKey, enhancedPrompt string, processingMillis int64) error {
	return r.transition(ctx, jobID, `
UPDATE edit_jobs
SET status = $2, result_key = $3, enhanced_prompt = $4, processing_millis = $5, error_message = '', updated_at = $6
WHERE id = $1
`, "mark succeeded", string(domain.JobSucceeded), resultKey, enhancedPrompt, processingMillis, time.Now().UTC())
}

func (r *JobRepository) MarkFailed(ctx context.Context, jobID, errMessage string) error {
	return r.transition(ctx, jobID, `
UPDATE edit_jobs
SET status = $2, error_message = $3, updated_at = $4
WHERE id = $1
`, "mark failed", string(domain.JobFailed), errMessage, time.Now().UTC())
}

func (r *JobRepository) transition(ctx context.Context, jobID, query, op string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, append([]any{jobID}, args...)...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if rows == 0 {
		return domain.WrapError(domain.ErrJobNotFound, op, fmt.Errorf("id=%s", jobID))
	}
	return nil
}

type jobScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(s jobScanner) (domain.EditJob, error) {
	var (
		job         domain.EditJob
		jobType     string
		status      string
		resultKey   sql.NullString
		metadataRaw []byte
	)
	err := s.Scan(
		&job.ID, &job.UserID, &job.ImageKey, &resultKey, &jobType, &status,
		&job.Prompt, &job.EnhancedPrompt, &job.Error, &job.ProcessingMillis, &metadataRaw,
		&job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		return domain.EditJob{}, err
	}
	if len(metadataRaw) > 0 {
		if err := json.Unmarshal(metadataRaw, &job.Metadata); err != nil {
			return domain.EditJob{}, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	job.ResultKey = resultKey.String
	job.Type = domain.ProcessingType(jobType)
	job.Status = domain.JobStatus(status)
	return job, nil
}

func scanJobRow(row *sql.Row) (domain.EditJob, error) {
	return scanJob(row)
}
