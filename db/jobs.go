// ABOUTME: Database operations for the sync_jobs audit trail
// ABOUTME: Jobs are created running, completed exactly once, and never deleted
package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hivematrix/codex/models"
)

// CreateSyncJob records the start of a run and returns the new job. The id
// is a ULID so job listings sort chronologically.
func CreateSyncJob(db *sql.DB, script, provider, syncType string) (*models.SyncJob, error) {
	job := &models.SyncJob{
		ID:        ulid.Make().String(),
		Script:    script,
		Provider:  provider,
		SyncType:  syncType,
		Status:    models.JobStatusRunning,
		StartedAt: time.Now().UTC(),
	}

	_, err := db.Exec(`
		INSERT INTO sync_jobs (id, script, provider, sync_type, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, job.ID, job.Script, job.Provider, job.SyncType, job.Status, job.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create sync job: %w", err)
	}
	return job, nil
}

// CompleteSyncJob records a job's terminal state. A job still marked
// running is updated; a job already completed is left alone so the first
// outcome wins.
func CompleteSyncJob(db *sql.DB, id, status, output string) error {
	_, err := db.Exec(`
		UPDATE sync_jobs SET status = ?, completed_at = ?, output = ?
		WHERE id = ? AND status = ?
	`, status, time.Now().UTC(), output, id, models.JobStatusRunning)
	if err != nil {
		return fmt.Errorf("failed to complete sync job %s: %w", id, err)
	}
	return nil
}

// GetSyncJob retrieves a job by id. Returns nil if not found.
func GetSyncJob(db *sql.DB, id string) (*models.SyncJob, error) {
	var job models.SyncJob
	var completedAt sql.NullTime
	var output sql.NullString

	err := db.QueryRow(`
		SELECT id, script, provider, sync_type, status, started_at, completed_at, output
		FROM sync_jobs WHERE id = ?
	`, id).Scan(&job.ID, &job.Script, &job.Provider, &job.SyncType, &job.Status,
		&job.StartedAt, &completedAt, &output)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sync job: %w", err)
	}

	if completedAt.Valid {
		job.CompletedAt = &completedAt.Time
	}
	job.Output = output.String
	return &job, nil
}

// ListRecentSyncJobs retrieves the most recent jobs, newest first.
func ListRecentSyncJobs(db *sql.DB, limit int) ([]models.SyncJob, error) {
	rows, err := db.Query(`
		SELECT id, script, provider, sync_type, status, started_at, completed_at, output
		FROM sync_jobs ORDER BY started_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var jobs []models.SyncJob
	for rows.Next() {
		var job models.SyncJob
		var completedAt sql.NullTime
		var output sql.NullString
		if err := rows.Scan(&job.ID, &job.Script, &job.Provider, &job.SyncType,
			&job.Status, &job.StartedAt, &completedAt, &output); err != nil {
			return nil, fmt.Errorf("failed to scan sync job: %w", err)
		}
		if completedAt.Valid {
			job.CompletedAt = &completedAt.Time
		}
		job.Output = output.String
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync jobs: %w", err)
	}
	return jobs, nil
}
