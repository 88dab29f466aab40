// ABOUTME: Database operations for the tickets table
// ABOUTME: Upsert, hard delete for invalid states, and soft delete for reconciliation
package db

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/hivematrix/codex/models"
)

const ticketColumns = `id, external_id, external_source, ticket_number, subject, description,
	description_text, status, status_id, priority, priority_id, ticket_type, requester_id,
	requester_email, requester_name, responder_id, group_id, company_account_number,
	created_at, updated_at, closed_at, fr_due_by, due_by, first_responded_at,
	agent_responded_at, total_hours_spent, conversations, notes`

// UpsertTicket inserts or updates a ticket keyed by (external_id,
// external_source).
func UpsertTicket(db *sql.DB, t *models.Ticket) error {
	_, err := db.Exec(`
		INSERT INTO tickets (external_id, external_source, ticket_number, subject, description,
			description_text, status, status_id, priority, priority_id, ticket_type, requester_id,
			requester_email, requester_name, responder_id, group_id, company_account_number,
			created_at, updated_at, closed_at, fr_due_by, due_by, first_responded_at,
			agent_responded_at, total_hours_spent, conversations, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(external_id, external_source) DO UPDATE SET
			ticket_number = excluded.ticket_number,
			subject = excluded.subject,
			description = excluded.description,
			description_text = excluded.description_text,
			status = excluded.status,
			status_id = excluded.status_id,
			priority = excluded.priority,
			priority_id = excluded.priority_id,
			ticket_type = excluded.ticket_type,
			requester_id = excluded.requester_id,
			requester_email = excluded.requester_email,
			requester_name = excluded.requester_name,
			responder_id = excluded.responder_id,
			group_id = excluded.group_id,
			company_account_number = excluded.company_account_number,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at,
			closed_at = excluded.closed_at,
			fr_due_by = excluded.fr_due_by,
			due_by = excluded.due_by,
			first_responded_at = excluded.first_responded_at,
			agent_responded_at = excluded.agent_responded_at,
			total_hours_spent = excluded.total_hours_spent,
			conversations = excluded.conversations,
			notes = excluded.notes
	`,
		t.ExternalID, t.ExternalSource, t.TicketNumber, t.Subject, t.Description,
		t.DescriptionText, t.Status, t.StatusID, t.Priority, t.PriorityID,
		t.TicketType, t.RequesterID, t.RequesterEmail, t.RequesterName,
		t.ResponderID, t.GroupID, t.CompanyAccountNumber,
		t.CreatedAt, t.UpdatedAt, t.ClosedAt, t.FRDueBy, t.DueBy,
		t.FirstRespondedAt, t.AgentRespondedAt, t.TotalHoursSpent,
		t.ConversationsJSON, t.NotesJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert ticket %d: %w", t.ExternalID, err)
	}
	return nil
}

// GetTicketByExternalID retrieves a ticket by its external identity.
// Returns nil if not found.
func GetTicketByExternalID(db *sql.DB, externalID int64, source string) (*models.Ticket, error) {
	row := db.QueryRow(`SELECT `+ticketColumns+` FROM tickets WHERE external_id = ? AND external_source = ?`,
		externalID, source)
	t, err := scanTicket(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return t, err
}

// DeleteTicketByExternalID removes a ticket row outright. Used when the
// vendor reports the ticket in an invalid state (spam, trash, permanently
// deleted) that must not exist locally at all.
func DeleteTicketByExternalID(db *sql.DB, externalID int64, source string) error {
	_, err := db.Exec(`DELETE FROM tickets WHERE external_id = ? AND external_source = ?`,
		externalID, source)
	if err != nil {
		return fmt.Errorf("failed to delete ticket %d: %w", externalID, err)
	}
	return nil
}

// ListTicketsByStatus retrieves all tickets from a source in the given
// normalized status.
func ListTicketsByStatus(db *sql.DB, source, status string) ([]models.Ticket, error) {
	rows, err := db.Query(`SELECT `+ticketColumns+` FROM tickets WHERE external_source = ? AND status = ? ORDER BY external_id`,
		source, status)
	if err != nil {
		return nil, fmt.Errorf("failed to query tickets: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tickets []models.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tickets: %w", err)
	}
	return tickets, nil
}

// ActiveTicketExternalIDs returns external ids of locally active tickets for
// a source: everything except the given terminal statuses. These are the
// candidates a reconciliation pass may mark as deleted.
func ActiveTicketExternalIDs(db *sql.DB, source string, terminalStatuses []string) ([]int64, error) {
	args := []any{source}
	query := `SELECT external_id FROM tickets WHERE external_source = ?`
	if len(terminalStatuses) > 0 {
		placeholders := make([]string, len(terminalStatuses))
		for i, st := range terminalStatuses {
			placeholders[i] = "?"
			args = append(args, st)
		}
		query += ` AND status NOT IN (` + strings.Join(placeholders, ",") + `)`
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query active tickets: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan ticket id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating active tickets: %w", err)
	}
	return ids, nil
}

// MarkTicketsDeleted soft-deletes the given tickets by setting their status.
// The rows stay for history; only the status changes. Returns the number of
// rows updated.
func MarkTicketsDeleted(db *sql.DB, source string, externalIDs []int64) (int64, error) {
	if len(externalIDs) == 0 {
		return 0, nil
	}

	placeholders := make([]string, len(externalIDs))
	args := []any{source}
	for i, id := range externalIDs {
		placeholders[i] = "?"
		args = append(args, id)
	}

	res, err := db.Exec(`
		UPDATE tickets SET status = 'deleted'
		WHERE external_source = ? AND external_id IN (`+strings.Join(placeholders, ",")+`)
	`, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to mark tickets deleted: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// CountTickets returns the number of tickets for a source.
func CountTickets(db *sql.DB, source string) (int64, error) {
	var n int64
	err := db.QueryRow(`SELECT COUNT(*) FROM tickets WHERE external_source = ?`, source).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count tickets: %w", err)
	}
	return n, nil
}

func scanTicket(s rowScanner) (*models.Ticket, error) {
	var t models.Ticket
	var ticketNumber, subject, description, descText sql.NullString
	var priority, ticketType, requesterEmail, requesterName, company sql.NullString
	var createdAt, updatedAt, closedAt, frDueBy, dueBy sql.NullString
	var firstResponded, agentResponded, conversations, notes sql.NullString
	var statusID, priorityID sql.NullInt64
	var requesterID, responderID, groupID sql.NullInt64

	err := s.Scan(
		&t.ID, &t.ExternalID, &t.ExternalSource, &ticketNumber, &subject,
		&description, &descText, &t.Status, &statusID, &priority, &priorityID,
		&ticketType, &requesterID, &requesterEmail, &requesterName,
		&responderID, &groupID, &company, &createdAt, &updatedAt, &closedAt,
		&frDueBy, &dueBy, &firstResponded, &agentResponded,
		&t.TotalHoursSpent, &conversations, &notes,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan ticket: %w", err)
	}

	t.TicketNumber = ticketNumber.String
	t.Subject = subject.String
	t.Description = description.String
	t.DescriptionText = descText.String
	t.StatusID = int(statusID.Int64)
	t.Priority = priority.String
	t.PriorityID = int(priorityID.Int64)
	t.TicketType = ticketType.String
	t.RequesterEmail = requesterEmail.String
	t.RequesterName = requesterName.String
	t.CompanyAccountNumber = company.String
	t.CreatedAt = createdAt.String
	t.UpdatedAt = updatedAt.String
	t.ClosedAt = closedAt.String
	t.FRDueBy = frDueBy.String
	t.DueBy = dueBy.String
	t.FirstRespondedAt = firstResponded.String
	t.AgentRespondedAt = agentResponded.String
	t.ConversationsJSON = conversations.String
	t.NotesJSON = notes.String
	if requesterID.Valid {
		t.RequesterID = &requesterID.Int64
	}
	if responderID.Valid {
		t.ResponderID = &responderID.Int64
	}
	if groupID.Valid {
		t.GroupID = &groupID.Int64
	}
	return &t, nil
}
