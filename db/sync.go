// ABOUTME: Database operations for the sync_state table
// ABOUTME: Tracks incremental watermarks and the reconciliation run counter per provider and sync type
package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/hivematrix/codex/models"
)

// GetSyncState retrieves the state for one (provider, sync type) pair.
// Returns nil if no run has been recorded yet.
func GetSyncState(db *sql.DB, provider, syncType string) (*models.SyncState, error) {
	var state models.SyncState
	var lastSuccessAt sql.NullTime
	var errorMessage sql.NullString

	err := db.QueryRow(`
		SELECT provider, sync_type, last_success_at, run_counter, status, error_message, updated_at
		FROM sync_state
		WHERE provider = ? AND sync_type = ?
	`, provider, syncType).Scan(
		&state.Provider, &state.SyncType, &lastSuccessAt, &state.RunCounter,
		&state.Status, &errorMessage, &state.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sync state: %w", err)
	}

	if lastSuccessAt.Valid {
		state.LastSuccessAt = &lastSuccessAt.Time
	}
	state.ErrorMessage = errorMessage.String
	return &state, nil
}

// RecordSyncSuccess advances the watermark and increments the run counter
// for a (provider, sync type) pair. Called only after a pass fully
// succeeds; a failed pass leaves both untouched.
func RecordSyncSuccess(db *sql.DB, provider, syncType string, at time.Time) error {
	_, err := db.Exec(`
		INSERT INTO sync_state (provider, sync_type, last_success_at, run_counter, status, error_message, updated_at)
		VALUES (?, ?, ?, 1, 'idle', NULL, CURRENT_TIMESTAMP)
		ON CONFLICT(provider, sync_type) DO UPDATE SET
			last_success_at = excluded.last_success_at,
			run_counter = run_counter + 1,
			status = 'idle',
			error_message = NULL,
			updated_at = CURRENT_TIMESTAMP
	`, provider, syncType, at.UTC())
	if err != nil {
		return fmt.Errorf("failed to record sync success: %w", err)
	}
	return nil
}

// RecordSyncFailure stores the error without touching the watermark or the
// run counter, so the next run retries the same window.
func RecordSyncFailure(db *sql.DB, provider, syncType, errorMsg string) error {
	_, err := db.Exec(`
		INSERT INTO sync_state (provider, sync_type, status, error_message, updated_at)
		VALUES (?, ?, 'error', ?, CURRENT_TIMESTAMP)
		ON CONFLICT(provider, sync_type) DO UPDATE SET
			status = 'error',
			error_message = excluded.error_message,
			updated_at = CURRENT_TIMESTAMP
	`, provider, syncType, errorMsg)
	if err != nil {
		return fmt.Errorf("failed to record sync failure: %w", err)
	}
	return nil
}

// UpdateSyncStatus marks a (provider, sync type) pair as running or idle.
func UpdateSyncStatus(db *sql.DB, provider, syncType, status string) error {
	_, err := db.Exec(`
		INSERT INTO sync_state (provider, sync_type, status, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(provider, sync_type) DO UPDATE SET
			status = excluded.status,
			updated_at = CURRENT_TIMESTAMP
	`, provider, syncType, status)
	if err != nil {
		return fmt.Errorf("failed to update sync status: %w", err)
	}
	return nil
}

// GetAllSyncStates retrieves every recorded sync state.
func GetAllSyncStates(db *sql.DB) ([]models.SyncState, error) {
	rows, err := db.Query(`
		SELECT provider, sync_type, last_success_at, run_counter, status, error_message, updated_at
		FROM sync_state
		ORDER BY provider, sync_type
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync states: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var states []models.SyncState
	for rows.Next() {
		var state models.SyncState
		var lastSuccessAt sql.NullTime
		var errorMessage sql.NullString
		if err := rows.Scan(&state.Provider, &state.SyncType, &lastSuccessAt,
			&state.RunCounter, &state.Status, &errorMessage, &state.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan sync state: %w", err)
		}
		if lastSuccessAt.Valid {
			state.LastSuccessAt = &lastSuccessAt.Time
		}
		state.ErrorMessage = errorMessage.String
		states = append(states, state)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync states: %w", err)
	}
	return states, nil
}
