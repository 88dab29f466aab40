// ABOUTME: Database operations for the psa_agents table
// ABOUTME: Upsert by external identity and listing-based deletion
package db

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/hivematrix/codex/models"
)

const agentColumns = `id, external_id, external_source, first_name, last_name, email,
	job_title, active, group_ids, department_ids, created_at, updated_at`

// UpsertAgent inserts or updates an agent keyed by (external_id,
// external_source).
func UpsertAgent(db *sql.DB, a *models.Agent) error {
	_, err := db.Exec(`
		INSERT INTO psa_agents (external_id, external_source, first_name, last_name, email,
			job_title, active, group_ids, department_ids, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(external_id, external_source) DO UPDATE SET
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			email = excluded.email,
			job_title = excluded.job_title,
			active = excluded.active,
			group_ids = excluded.group_ids,
			department_ids = excluded.department_ids,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at
	`,
		a.ExternalID, a.ExternalSource, a.FirstName, a.LastName, a.Email,
		a.JobTitle, a.Active, marshalJSON(a.GroupIDs), marshalJSON(a.DepartmentIDs),
		a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert agent %d: %w", a.ExternalID, err)
	}
	return nil
}

// GetAgentByExternalID retrieves an agent by its external identity.
// Returns nil if not found.
func GetAgentByExternalID(db *sql.DB, externalID int64, source string) (*models.Agent, error) {
	row := db.QueryRow(`SELECT `+agentColumns+` FROM psa_agents WHERE external_id = ? AND external_source = ?`,
		externalID, source)
	a, err := scanAgent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return a, err
}

// ListAgents retrieves all agents ordered by email.
func ListAgents(db *sql.DB) ([]models.Agent, error) {
	rows, err := db.Query(`SELECT ` + agentColumns + ` FROM psa_agents ORDER BY email`)
	if err != nil {
		return nil, fmt.Errorf("failed to query agents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var agents []models.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating agents: %w", err)
	}
	return agents, nil
}

// DeleteAgentsAbsent removes agents from the given source whose external ids
// are not in the provided complete listing. Returns the number removed.
func DeleteAgentsAbsent(db *sql.DB, source string, presentExternalIDs []int64) (int64, error) {
	args := []any{source}
	query := `DELETE FROM psa_agents WHERE external_source = ?`
	if len(presentExternalIDs) > 0 {
		placeholders := make([]string, len(presentExternalIDs))
		for i, id := range presentExternalIDs {
			placeholders[i] = "?"
			args = append(args, id)
		}
		query += ` AND external_id NOT IN (` + strings.Join(placeholders, ",") + `)`
	}

	res, err := db.Exec(query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete absent agents: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func scanAgent(s rowScanner) (*models.Agent, error) {
	var a models.Agent
	var firstName, lastName, email, title sql.NullString
	var groupIDs, departmentIDs, createdAt, updatedAt sql.NullString

	err := s.Scan(
		&a.ID, &a.ExternalID, &a.ExternalSource, &firstName, &lastName, &email,
		&title, &a.Active, &groupIDs, &departmentIDs, &createdAt, &updatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan agent: %w", err)
	}

	a.FirstName = firstName.String
	a.LastName = lastName.String
	a.Email = email.String
	a.JobTitle = title.String
	a.GroupIDs = unmarshalInt64s(groupIDs.String)
	a.DepartmentIDs = unmarshalInt64s(departmentIDs.String)
	a.CreatedAt = createdAt.String
	a.UpdatedAt = updatedAt.String
	return &a, nil
}
