package pipeline

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

// Create inserts a new job.
func (r *PGRepo) Create(ctx context.Context, job Job) error {
	const query = `
INSERT INTO analysis_jobs (
	id, status, current_stage, stages, progress, interviews, config, result,
	error_code, error_message, error_retryable, created_at, started_at, completed_at, updated_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`
	stages, err := marshalJSONB(job.Stages)
	if err != nil {
		return err
	}
	interviews, err := marshalJSONB(job.Interviews)
	if err != nil {
		return err
	}
	config, err := marshalJSONB(job.Config)
	if err != nil {
		return err
	}
	result, err := marshalJSONB(job.Result)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx, query,
		job.ID,
		job.Status,
		job.CurrentStage,
		stages,
		job.Progress,
		interviews,
		config,
		result,
		job.ErrorCode,
		job.ErrorMessage,
		job.ErrorRetryable,
		job.CreatedAt,
		job.StartedAt,
		job.CompletedAt,
		time.Now().UTC(),
	)
	return err
}

// Update upserts the whole record keyed by job id. Last writer wins; a
// reader polling GetByID always sees one consistent snapshot.
func (r *PGRepo) Update(ctx context.Context, job Job) error {
	const query = `
UPDATE analysis_jobs
SET status = $2, current_stage = $3, stages = $4, progress = $5, result = $6,
    error_code = $7, error_message = $8, error_retryable = $9,
    started_at = $10, completed_at = $11, updated_at = $12
WHERE id = $1`
	stages, err := marshalJSONB(job.Stages)
	if err != nil {
		return err
	}
	result, err := marshalJSONB(job.Result)
	if err != nil {
		return err
	}
	res, err := r.DB.ExecContext(ctx, query,
		job.ID,
		job.Status,
		job.CurrentStage,
		stages,
		job.Progress,
		result,
		job.ErrorCode,
		job.ErrorMessage,
		job.ErrorRetryable,
		job.StartedAt,
		job.CompletedAt,
		time.Now().UTC(),
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetByID returns a job by ID.
func (r *PGRepo) GetByID(ctx context.Context, jobID string) (Job, error) {
	const query = `
SELECT id, status, current_stage, stages, progress, interviews, config, result,
       error_code, error_message, error_retryable, created_at, started_at, completed_at, updated_at
FROM analysis_jobs
WHERE id = $1
LIMIT 1`
	row := r.DB.QueryRowContext(ctx, query, jobID)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Job{}, ErrNotFound
		}
		return Job{}, err
	}
	return job, nil
}

// List returns jobs newest-first with limit/offset.
func (r *PGRepo) List(ctx context.Context, limit, offset int) ([]Job, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	const query = `
SELECT id, status, current_stage, stages, progress, interviews, config, result,
       error_code, error_message, error_retryable, created_at, started_at, completed_at, updated_at
FROM analysis_jobs
ORDER BY created_at DESC
LIMIT $1 OFFSET $2`
	rows, err := r.DB.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := []Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (Job, error) {
	var job Job
	var currentStage sql.NullString
	var stages sql.NullString
	var interviews sql.NullString
	var config sql.NullString
	var result sql.NullString
	var errorCode sql.NullString
	var errorMessage sql.NullString
	var errorRetryable sql.NullBool
	var startedAt sql.NullTime
	var completedAt sql.NullTime
	err := row.Scan(
		&job.ID,
		&job.Status,
		&currentStage,
		&stages,
		&job.Progress,
		&interviews,
		&config,
		&result,
		&errorCode,
		&errorMessage,
		&errorRetryable,
		&job.CreatedAt,
		&startedAt,
		&completedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return Job{}, err
	}
	if currentStage.Valid {
		job.CurrentStage = currentStage.String
	}
	if stages.Valid {
		job.Stages = map[string]StageState{}
		if err := json.Unmarshal([]byte(stages.String), &job.Stages); err != nil {
			job.Stages = nil
		}
	}
	if interviews.Valid {
		if err := json.Unmarshal([]byte(interviews.String), &job.Interviews); err != nil {
			job.Interviews = nil
		}
	}
	if config.Valid {
		if err := json.Unmarshal([]byte(config.String), &job.Config); err != nil {
			job.Config = Config{}
		}
	}
	if result.Valid {
		job.Result = map[string]any{}
		if err := json.Unmarshal([]byte(result.String), &job.Result); err != nil {
			job.Result = nil
		}
	}
	if errorCode.Valid {
		job.ErrorCode = &errorCode.String
	}
	if errorMessage.Valid {
		job.ErrorMessage = &errorMessage.String
	}
	if errorRetryable.Valid {
		job.ErrorRetryable = &errorRetryable.Bool
	}
	if startedAt.Valid {
		t := startedAt.Time
		job.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		job.CompletedAt = &t
	}
	return job, nil
}

func marshalJSONB(value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return string(payload), nil
}
