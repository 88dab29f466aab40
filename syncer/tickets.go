// ABOUTME: Ticket sync with incremental and reconciliation passes
// ABOUTME: Incremental runs follow the watermark; every Nth run re-lists active tickets to catch deletions
package syncer

import (
	"context"
	"encoding/json"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/hivematrix/codex/db"
	"github.com/hivematrix/codex/models"
	"github.com/hivematrix/codex/psa"
)

// Ticket sync modes.
const (
	ModeIncremental = "incremental"
	ModeReconcile   = "reconcile"
	ModeFullHistory = "full_history"
)

// TicketOptions tunes one ticket sync pass.
type TicketOptions struct {
	// FullHistory fetches every ticket ever created instead of the recent
	// window. Implies no reconciliation bookkeeping.
	FullHistory bool
	// ForceReconcile runs a reconciliation pass regardless of the counter.
	ForceReconcile bool
}

// SyncTickets runs one ticket pass. Vendors silently drop deleted and spam
// tickets from incremental results, so periodically the pass re-fetches the
// complete active listing and marks local active tickets missing from it as
// deleted. Which kind of pass runs is decided by a persisted counter: every
// Nth run reconciles, the rest are incremental.
func (s *Syncer) SyncTickets(ctx context.Context, p psa.Provider, opts TicketOptions) (*Result, error) {
	defer s.lock(p.Name(), "tickets")()

	source := p.Name()
	result := &Result{Provider: source, Entity: "tickets"}
	logger := log.WithFields(log.Fields{"provider": source, "entity": "tickets"})

	state, err := db.GetSyncState(s.db, source, "tickets")
	if err != nil {
		return nil, err
	}

	query := psa.TicketQuery{}
	switch {
	case opts.FullHistory:
		result.Mode = ModeFullHistory
		query.FullHistory = true
	case s.shouldReconcile(state, opts.ForceReconcile):
		// Full active listing, no since filter
		result.Mode = ModeReconcile
	default:
		result.Mode = ModeIncremental
		if state != nil && state.LastSuccessAt != nil {
			since := *state.LastSuccessAt
			query.Since = &since
		}
	}
	logger.WithField("mode", result.Mode).Info("starting ticket sync")

	runStart := s.now().UTC()

	tickets, err := p.SyncTickets(ctx, query)
	if err != nil {
		// A failed fetch marks nothing and leaves the watermark untouched,
		// so the next run retries the same window.
		_ = db.RecordSyncFailure(s.db, source, "tickets", err.Error())
		return nil, fmt.Errorf("fetching tickets: %w", err)
	}
	logger.WithField("count", len(tickets)).Info("fetched tickets")

	companyMap, err := s.companyMapByExternalID(source)
	if err != nil {
		return nil, err
	}

	present := make(map[int64]bool, len(tickets))
	for i := range tickets {
		rec := &tickets[i]

		// Tickets in the invalid class must not exist locally at all.
		if psa.InvalidStatuses[rec.Status] {
			if err := db.DeleteTicketByExternalID(s.db, rec.ExternalID, source); err != nil {
				result.recordError("ticket %d cleanup: %v", rec.ExternalID, err)
				continue
			}
			logger.WithFields(log.Fields{"ticket": rec.ExternalID, "status": rec.Status}).Info("removed invalid ticket")
			result.Deleted++
			continue
		}

		// The provider listed this ticket as active. That alone keeps it
		// out of absence marking; a local save failure must not be
		// mistaken for upstream deletion.
		present[rec.ExternalID] = true

		ticket := ticketFromRecord(rec, source, companyMap)
		if err := db.UpsertTicket(s.db, ticket); err != nil {
			result.recordError("ticket %d: %v", rec.ExternalID, err)
			continue
		}
		result.Synced++
	}

	if result.Mode == ModeReconcile {
		marked, err := s.markMissingDeleted(source, present)
		if err != nil {
			_ = db.RecordSyncFailure(s.db, source, "tickets", err.Error())
			return nil, err
		}
		result.Deleted += marked
		if marked > 0 {
			logger.WithField("marked", marked).Info("marked tickets deleted by absence")
		}
	}

	if err := db.RecordSyncSuccess(s.db, source, "tickets", runStart); err != nil {
		return nil, err
	}
	return result, nil
}

// shouldReconcile decides the pass kind from the persisted run counter:
// the Nth, 2Nth, ... runs reconcile.
func (s *Syncer) shouldReconcile(state *models.SyncState, force bool) bool {
	if force {
		return true
	}
	every := s.cfg.ReconcileEvery
	if every <= 1 {
		return true
	}
	var counter int64
	if state != nil {
		counter = state.RunCounter
	}
	return (counter+1)%every == 0
}

// markMissingDeleted soft-deletes locally active tickets the vendor no
// longer lists as active. Terminal tickets are never candidates.
func (s *Syncer) markMissingDeleted(source string, present map[int64]bool) (int64, error) {
	terminal := make([]string, 0, len(psa.TerminalStatuses))
	for st := range psa.TerminalStatuses {
		terminal = append(terminal, st)
	}

	localActive, err := db.ActiveTicketExternalIDs(s.db, source, terminal)
	if err != nil {
		return 0, err
	}

	var missing []int64
	for _, id := range localActive {
		if !present[id] {
			missing = append(missing, id)
		}
	}
	return db.MarkTicketsDeleted(s.db, source, missing)
}

func ticketFromRecord(rec *psa.TicketRecord, source string, companyMap map[int64]string) *models.Ticket {
	t := &models.Ticket{
		ExternalID:       rec.ExternalID,
		ExternalSource:   source,
		TicketNumber:     rec.TicketNumber,
		Subject:          rec.Subject,
		Description:      rec.Description,
		DescriptionText:  rec.DescriptionText,
		Status:           rec.Status,
		StatusID:         rec.StatusID,
		Priority:         rec.Priority,
		PriorityID:       rec.PriorityID,
		TicketType:       rec.TicketType,
		RequesterID:      rec.RequesterID,
		RequesterEmail:   rec.RequesterEmail,
		RequesterName:    rec.RequesterName,
		ResponderID:      rec.ResponderID,
		GroupID:          rec.GroupID,
		CreatedAt:        rec.CreatedAt,
		UpdatedAt:        rec.UpdatedAt,
		ClosedAt:         rec.ClosedAt,
		FRDueBy:          rec.FRDueBy,
		DueBy:            rec.DueBy,
		FirstRespondedAt: rec.FirstRespondedAt,
		AgentRespondedAt: rec.AgentRespondedAt,
		TotalHoursSpent:  rec.TotalHoursSpent,
	}

	if rec.CompanyExternalID != nil {
		if acct, ok := companyMap[*rec.CompanyExternalID]; ok {
			t.CompanyAccountNumber = acct
		}
	}

	if len(rec.Conversations) > 0 {
		if data, err := json.Marshal(rec.Conversations); err == nil {
			t.ConversationsJSON = string(data)
		}
	}
	if len(rec.Notes) > 0 {
		if data, err := json.Marshal(rec.Notes); err == nil {
			t.NotesJSON = string(data)
		}
	}

	return t
}
