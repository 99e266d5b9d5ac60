package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"sceneforge/internal/models"
)

func (db *DB) CreateJob(ctx context.Context, job *models.GenerationJob) error {
	query := `
		INSERT INTO generation_jobs (
			id, project_id, user_id, prompt, duration_seconds,
			style, mood, audio_url, model_id, status, progress
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at
	`

	return db.QueryRowContext(
		ctx, query,
		job.ID, job.ProjectID, job.UserID, job.Prompt, job.DurationSeconds,
		job.Style, job.Mood, job.AudioURL, job.ModelID, job.Status, job.Progress,
	).Scan(&job.CreatedAt, &job.UpdatedAt)
}

func (db *DB) GetJob(ctx context.Context, id uuid.UUID) (*models.GenerationJob, error) {
	query := `
		SELECT
			id, project_id, user_id, prompt, duration_seconds,
			style, mood, audio_url, model_id, status, progress,
			result_video_url, thumbnail_url, error_message,
			created_at, updated_at
		FROM generation_jobs
		WHERE id = $1
	`

	job := &models.GenerationJob{}
	err := db.QueryRowContext(ctx, query, id).Scan(
		&job.ID, &job.ProjectID, &job.UserID, &job.Prompt, &job.DurationSeconds,
		&job.Style, &job.Mood, &job.AudioURL, &job.ModelID, &job.Status, &job.Progress,
		&job.ResultVideoURL, &job.ThumbnailURL, &job.ErrorMessage,
		&job.CreatedAt, &job.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("job not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return job, nil
}

// ListJobs returns jobs ordered by creation date (newest first).
// Supports optional status filter, limit, and offset for pagination.
func (db *DB) ListJobs(ctx context.Context, status string, limit, offset int) ([]models.JobSummary, error) {
	var (
		rows *sql.Rows
		err  error
	)

	baseSelect := `
		SELECT
			id, project_id, prompt, duration_seconds, status, progress,
			error_message, created_at, updated_at
		FROM generation_jobs
	`

	if status != "" {
		query := baseSelect + ` WHERE status = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
		rows, err = db.QueryContext(ctx, query, status, limit, offset)
	} else {
		query := baseSelect + ` ORDER BY created_at DESC LIMIT $1 OFFSET $2`
		rows, err = db.QueryContext(ctx, query, limit, offset)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []models.JobSummary
	for rows.Next() {
		var j models.JobSummary
		if err := rows.Scan(
			&j.ID, &j.ProjectID, &j.Prompt, &j.DurationSeconds, &j.Status,
			&j.Progress, &j.ErrorMessage, &j.CreatedAt, &j.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, j)
	}

	return jobs, nil
}

// CountJobs returns the total number of jobs, optionally filtered by status.
func (db *DB) CountJobs(ctx context.Context, status string) (int, error) {
	var count int
	if status != "" {
		err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM generation_jobs WHERE status = $1`, status).Scan(&count)
		return count, err
	}
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM generation_jobs`).Scan(&count)
	return count, err
}

// MarkJobActive transitions a job queued→active. The status guard makes
// the transition race-safe: a job already active, completed, or failed
// is never re-activated, and the caller is told nothing was claimed.
func (db *DB) MarkJobActive(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		UPDATE generation_jobs
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3
	`
	res, err := db.ExecContext(ctx, query, models.JobStatusActive, id, models.JobStatusQueued)
	if err != nil {
		return false, fmt.Errorf("failed to mark job active: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// UpdateJobProgress advances the progress checkpoint. GREATEST keeps
// progress monotonically non-decreasing even if a stale write lands late.
func (db *DB) UpdateJobProgress(ctx context.Context, id uuid.UUID, progress int) error {
	query := `
		UPDATE generation_jobs
		SET progress = GREATEST(progress, $1), updated_at = NOW()
		WHERE id = $2 AND status = $3
	`
	_, err := db.ExecContext(ctx, query, progress, id, models.JobStatusActive)
	return err
}

func (db *DB) CompleteJob(ctx context.Context, id uuid.UUID, videoURL string, thumbnailURL *string) error {
	query := `
		UPDATE generation_jobs
		SET status = $1, progress = 100, result_video_url = $2, thumbnail_url = $3, updated_at = NOW()
		WHERE id = $4
	`
	_, err := db.ExecContext(ctx, query, models.JobStatusCompleted, videoURL, thumbnailURL, id)
	return err
}

func (db *DB) FailJob(ctx context.Context, id uuid.UUID, errorMessage string) error {
	query := `
		UPDATE generation_jobs
		SET status = $1, error_message = $2, updated_at = NOW()
		WHERE id = $3
	`
	_, err := db.ExecContext(ctx, query, models.JobStatusFailed, errorMessage, id)
	return err
}

// StaleActiveJobs returns jobs stuck in the active state longer than the
// given age. Used by operators to spot leases lost to a crashed worker.
func (db *DB) StaleActiveJobs(ctx context.Context, olderThan time.Duration) ([]models.JobSummary, error) {
	query := `
		SELECT
			id, project_id, prompt, duration_seconds, status, progress,
			error_message, created_at, updated_at
		FROM generation_jobs
		WHERE status = $1 AND updated_at < $2
		ORDER BY updated_at
	`

	rows, err := db.QueryContext(ctx, query, models.JobStatusActive, time.Now().Add(-olderThan))
	if err != nil {
		return nil, fmt.Errorf("failed to query stale jobs: %w", err)
	}
	defer rows.Close()

	var jobs []models.JobSummary
	for rows.Next() {
		var j models.JobSummary
		if err := rows.Scan(
			&j.ID, &j.ProjectID, &j.Prompt, &j.DurationSeconds, &j.Status,
			&j.Progress, &j.ErrorMessage, &j.CreatedAt, &j.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, j)
	}

	return jobs, nil
}
