// ABOUTME: Integration tests exercising the full local mirror in one scenario
// ABOUTME: Covers companies, contacts, tickets, assets, site links, and the job trail together
package db

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hivematrix/codex/models"
)

// TestManagedCompanyScenario walks one customer through a realistic sync
// lifecycle: the company arrives from the PSA, picks up contacts and
// tickets, gets RMM sites and devices linked, and finally loses a ticket
// and a device upstream.
func TestManagedCompanyScenario(t *testing.T) {
	db := setupTestDB(t)

	users := int64(40)
	require.NoError(t, UpsertCompany(db, &models.Company{
		AccountNumber:  "111111",
		Name:           "Acme Corporation",
		ExternalID:     10,
		ExternalSource: "freshservice",
		BillingPlan:    "Managed Services",
		ManagedUsers:   &users,
	}))

	contactID, err := UpsertContact(db, &models.Contact{
		ExternalID:     100,
		ExternalSource: "freshservice",
		Name:           "Alice Johnson",
		Email:          "alice@acme.com",
	})
	require.NoError(t, err)
	require.NoError(t, ReplaceContactLinks(db, contactID, "freshservice", []string{"111111"}))

	require.NoError(t, UpsertTicket(db, &models.Ticket{
		ExternalID:           500,
		ExternalSource:       "freshservice",
		Subject:              "Server down",
		Status:               "open",
		Priority:             "urgent",
		CompanyAccountNumber: "111111",
	}))
	require.NoError(t, UpsertTicket(db, &models.Ticket{
		ExternalID:           501,
		ExternalSource:       "freshservice",
		Subject:              "Password reset",
		Status:               "closed",
		CompanyAccountNumber: "111111",
	}))

	require.NoError(t, UpsertSiteLink(db, &models.SiteLink{
		CompanyAccountNumber: "111111",
		SiteUID:              "site-acme",
		Provider:             "datto",
		SiteName:             "Acme HQ",
	}))
	require.NoError(t, UpsertAsset(db, &models.Asset{
		CompanyAccountNumber: "111111",
		Hostname:             "ACME-SRV-01",
		DeviceType:           "server",
		Online:               true,
	}))
	require.NoError(t, UpsertAsset(db, &models.Asset{
		CompanyAccountNumber: "111111",
		Hostname:             "ACME-WS-01",
		DeviceType:           "workstation",
	}))

	// The company view joins everything together
	company, err := GetCompany(db, "111111")
	require.NoError(t, err)
	require.NotNil(t, company)
	assert.Equal(t, "Acme Corporation", company.Name)

	contacts, err := CompanyContacts(db, "111111")
	require.NoError(t, err)
	assert.Len(t, contacts, 1)

	assets, err := ListAssetsForCompany(db, "111111")
	require.NoError(t, err)
	assert.Len(t, assets, 2)

	links, err := ListSiteLinksForCompany(db, "111111")
	require.NoError(t, err)
	assert.Len(t, links, 1)

	// A reconcile pass finds ticket 500 gone upstream
	active, err := ActiveTicketExternalIDs(db, "freshservice", []string{"closed", "resolved", "deleted"})
	require.NoError(t, err)
	assert.Equal(t, []int64{500}, active)

	marked, err := MarkTicketsDeleted(db, "freshservice", []int64{500})
	require.NoError(t, err)
	assert.Equal(t, int64(1), marked)

	ticket, err := GetTicketByExternalID(db, 500, "freshservice")
	require.NoError(t, err)
	assert.Equal(t, "deleted", ticket.Status)

	// The workstation was retired; only the server hostname is still listed
	deleted, err := DeleteAssetsAbsent(db, "111111", []string{"ACME-SRV-01"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	// Both passes leave an audit trail
	job, err := CreateSyncJob(db, "sync-psa", "freshservice", "all")
	require.NoError(t, err)
	require.NoError(t, CompleteSyncJob(db, job.ID, models.JobStatusCompleted, "freshservice/tickets: synced=1"))
	require.NoError(t, RecordSyncSuccess(db, "freshservice", "tickets", time.Now().UTC()))

	jobs, err := ListRecentSyncJobs(db, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, models.JobStatusCompleted, jobs[0].Status)

	state, err := GetSyncState(db, "freshservice", "tickets")
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, int64(1), state.RunCounter)
}
