// ABOUTME: Sync orchestrator for PSA listings
// ABOUTME: Saves companies, contacts, and agents with per-record tolerance and listing-based deletion
package syncer

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/hivematrix/codex/config"
	"github.com/hivematrix/codex/db"
	"github.com/hivematrix/codex/models"
	"github.com/hivematrix/codex/psa"
)

// Result summarizes one sync pass. Per-record failures are collected in
// Errors; only listing-level failures abort a pass.
type Result struct {
	Provider string
	Entity   string
	Mode     string
	Synced   int
	Skipped  int
	Deleted  int64
	Errors   []string
}

func (r *Result) recordError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// Summary renders the result as a one-line report for job output.
func (r *Result) Summary() string {
	s := fmt.Sprintf("%s/%s: synced=%d skipped=%d deleted=%d", r.Provider, r.Entity, r.Synced, r.Skipped, r.Deleted)
	if r.Mode != "" {
		s += " mode=" + r.Mode
	}
	if len(r.Errors) > 0 {
		s += fmt.Sprintf(" errors=%d", len(r.Errors))
	}
	return s
}

// Syncer coordinates sync passes against the local database. Passes for the
// same (provider, entity) pair are serialized; different pairs may run
// concurrently.
type Syncer struct {
	db  *sql.DB
	cfg *config.Config

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	// Test hooks
	now     func() time.Time
	randInt func(n int) int
	sleep   func(ctx context.Context, d time.Duration) error
}

// New builds a Syncer over an open database.
func New(database *sql.DB, cfg *config.Config) *Syncer {
	return &Syncer{
		db:      database,
		cfg:     cfg,
		locks:   make(map[string]*sync.Mutex),
		now:     time.Now,
		randInt: defaultRandInt,
		sleep:   sleepCtx,
	}
}

// lock serializes passes on one (provider, entity) pair and returns the
// unlock function.
func (s *Syncer) lock(provider, entity string) func() {
	s.mu.Lock()
	key := provider + "/" + entity
	m, ok := s.locks[key]
	if !ok {
		m = &sync.Mutex{}
		s.locks[key] = m
	}
	s.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// SyncCompanies pulls the complete company listing and mirrors it locally.
// Companies without an account number are skipped, never invented. After a
// successful save pass, local companies absent from the listing are removed.
func (s *Syncer) SyncCompanies(ctx context.Context, p psa.Provider) (*Result, error) {
	defer s.lock(p.Name(), "companies")()

	source := p.Name()
	result := &Result{Provider: source, Entity: "companies"}
	logger := log.WithFields(log.Fields{"provider": source, "entity": "companies"})

	listing, err := p.SyncCompanies(ctx)
	if err != nil {
		_ = db.RecordSyncFailure(s.db, source, "companies", err.Error())
		return nil, fmt.Errorf("fetching company listing: %w", err)
	}
	logger.WithField("count", len(listing)).Info("fetched company listing")

	var presentIDs []int64
	for i := range listing {
		rec := &listing[i]
		acct := rec.AccountNumber()
		if acct == "" {
			logger.WithField("company", rec.Name).Warn("skipping company without account number")
			result.Skipped++
			continue
		}

		// Present upstream regardless of whether the local save succeeds;
		// only provider absence may drive deletion.
		presentIDs = append(presentIDs, rec.ExternalID)

		company := companyFromRecord(rec, source, acct)
		if err := db.UpsertCompany(s.db, company); err != nil {
			result.recordError("company %s: %v", acct, err)
			continue
		}
		result.Synced++
	}

	// Deletion runs off the same complete listing that was just saved, so
	// a truncated fetch can never reach this point.
	deleted, err := db.DeleteCompaniesAbsent(s.db, source, presentIDs)
	if err != nil {
		_ = db.RecordSyncFailure(s.db, source, "companies", err.Error())
		return nil, err
	}
	result.Deleted = deleted
	if deleted > 0 {
		logger.WithField("deleted", deleted).Info("removed companies absent upstream")
	}

	if err := db.RecordSyncSuccess(s.db, source, "companies", s.now().UTC()); err != nil {
		return nil, err
	}
	return result, nil
}

// SyncContacts pulls the complete contact listing. Contacts without an
// email are skipped. Company links are attributed to this provider: its own
// previous links are replaced while other providers' links survive.
func (s *Syncer) SyncContacts(ctx context.Context, p psa.Provider) (*Result, error) {
	defer s.lock(p.Name(), "contacts")()

	source := p.Name()
	result := &Result{Provider: source, Entity: "contacts"}
	logger := log.WithFields(log.Fields{"provider": source, "entity": "contacts"})

	listing, err := p.SyncContacts(ctx)
	if err != nil {
		_ = db.RecordSyncFailure(s.db, source, "contacts", err.Error())
		return nil, fmt.Errorf("fetching contact listing: %w", err)
	}
	logger.WithField("count", len(listing)).Info("fetched contact listing")

	deptToAccount, err := s.companyMapByExternalID(source)
	if err != nil {
		return nil, err
	}

	var presentIDs []int64
	for i := range listing {
		rec := &listing[i]
		if rec.Email == "" {
			result.Skipped++
			continue
		}

		// Listed upstream, so never a deletion candidate even if the save
		// below fails.
		presentIDs = append(presentIDs, rec.ExternalID)

		contact := contactFromRecord(rec, source)
		id, err := db.UpsertContact(s.db, contact)
		if err != nil {
			result.recordError("contact %d: %v", rec.ExternalID, err)
			continue
		}

		var accounts []string
		for _, deptID := range rec.DepartmentIDs {
			if acct, ok := deptToAccount[deptID]; ok {
				accounts = append(accounts, acct)
			}
		}
		if err := db.ReplaceContactLinks(s.db, id, source, accounts); err != nil {
			result.recordError("contact %d links: %v", rec.ExternalID, err)
			continue
		}
		result.Synced++
	}

	deleted, err := db.DeleteContactsAbsent(s.db, source, presentIDs)
	if err != nil {
		_ = db.RecordSyncFailure(s.db, source, "contacts", err.Error())
		return nil, err
	}
	result.Deleted = deleted

	if err := db.RecordSyncSuccess(s.db, source, "contacts", s.now().UTC()); err != nil {
		return nil, err
	}
	return result, nil
}

// SyncAgents pulls the complete agent listing and mirrors it locally.
func (s *Syncer) SyncAgents(ctx context.Context, p psa.Provider) (*Result, error) {
	defer s.lock(p.Name(), "agents")()

	source := p.Name()
	result := &Result{Provider: source, Entity: "agents"}

	listing, err := p.SyncAgents(ctx)
	if err != nil {
		_ = db.RecordSyncFailure(s.db, source, "agents", err.Error())
		return nil, fmt.Errorf("fetching agent listing: %w", err)
	}

	var presentIDs []int64
	for i := range listing {
		rec := &listing[i]
		presentIDs = append(presentIDs, rec.ExternalID)
		agent := &models.Agent{
			ExternalID:     rec.ExternalID,
			ExternalSource: source,
			FirstName:      rec.FirstName,
			LastName:       rec.LastName,
			Email:          rec.Email,
			JobTitle:       rec.JobTitle,
			Active:         rec.Active,
			GroupIDs:       rec.GroupIDs,
			DepartmentIDs:  rec.DepartmentIDs,
			CreatedAt:      rec.CreatedAt,
			UpdatedAt:      rec.UpdatedAt,
		}
		if err := db.UpsertAgent(s.db, agent); err != nil {
			result.recordError("agent %d: %v", rec.ExternalID, err)
			continue
		}
		result.Synced++
	}

	deleted, err := db.DeleteAgentsAbsent(s.db, source, presentIDs)
	if err != nil {
		_ = db.RecordSyncFailure(s.db, source, "agents", err.Error())
		return nil, err
	}
	result.Deleted = deleted

	if err := db.RecordSyncSuccess(s.db, source, "agents", s.now().UTC()); err != nil {
		return nil, err
	}
	return result, nil
}

// companyMapByExternalID maps a provider's external company ids to local
// account numbers.
func (s *Syncer) companyMapByExternalID(source string) (map[int64]string, error) {
	companies, err := db.ListCompanies(s.db)
	if err != nil {
		return nil, err
	}
	m := make(map[int64]string)
	for _, c := range companies {
		if c.ExternalSource == source {
			m[c.ExternalID] = c.AccountNumber
		}
	}
	return m, nil
}

func companyFromRecord(rec *psa.CompanyRecord, source, acct string) *models.Company {
	cf := rec.CustomFields
	billingPlan := cf["plan_selected"]
	if billingPlan == "" {
		billingPlan = cf["billing_plan"]
	}
	term := normalizeContractTerm(cf["contract_term"])

	c := &models.Company{
		AccountNumber:      acct,
		Name:               rec.Name,
		Description:        rec.Description,
		ExternalID:         rec.ExternalID,
		ExternalSource:     source,
		HeadUserID:         rec.HeadUserID,
		HeadName:           rec.HeadName,
		PrimeUserID:        rec.PrimeUserID,
		PrimeUserName:      rec.PrimeUserName,
		Domains:            rec.Domains,
		CustomFields:       cf,
		BillingPlan:        billingPlan,
		ManagedNetwork:     cf["managed_network"],
		ContractTermLength: term,
		ContractStartDate:  cf["contract_start_date"],
		ContractEndDate:    contractEndDate(cf["contract_start_date"], term),
		ProfitOrNonProfit:  cf["profit_or_non_profit"],
		CompanyMainNumber:  cf["company_main_number"],
		Address:            cf["address"],
		CompanyStartDate:   cf["company_start_date"],
		PhoneSystem:        cf["phone_system"],
		EmailSystem:        cf["email_system"],
		CreatedAt:          rec.CreatedAt,
		UpdatedAt:          rec.UpdatedAt,
	}

	if n, err := strconv.ParseInt(cf["managed_users"], 10, 64); err == nil {
		c.ManagedUsers = &n
	}
	if n, err := strconv.ParseInt(cf["managed_devices"], 10, 64); err == nil {
		c.ManagedDevices = &n
	}

	// A plan with a term would normally map to a support level, but with
	// no billing-plan table to look it up in, hourly billing is the
	// stand-in. Companies without a plan keep no support level at all.
	if billingPlan != "" && term != "" {
		c.SupportLevel = "Billed Hourly"
	}

	return c
}

func contactFromRecord(rec *psa.ContactRecord, source string) *models.Contact {
	fullName := rec.Name
	if fullName == "" {
		fullName = strings.TrimSpace(rec.FirstName + " " + rec.LastName)
	}
	if fullName == "" {
		fullName = strings.SplitN(rec.Email, "@", 2)[0]
	}

	return &models.Contact{
		ExternalID:     rec.ExternalID,
		ExternalSource: source,
		FirstName:      rec.FirstName,
		LastName:       rec.LastName,
		Name:           fullName,
		Email:          rec.Email,
		MobilePhone:    rec.MobilePhone,
		WorkPhone:      rec.WorkPhone,
		JobTitle:       rec.JobTitle,
		Active:         rec.Active,
		IsAgent:        rec.IsAgent,
		VIPUser:        rec.VIPUser,
		DepartmentIDs:  rec.DepartmentIDs,
		Address:        rec.Address,
		TimeZone:       rec.TimeZone,
		Language:       rec.Language,
		UserNumber:     rec.UserNumber,
		CreatedAt:      rec.CreatedAt,
		UpdatedAt:      rec.UpdatedAt,
	}
}

// normalizeContractTerm folds the vendor's free-text term values into the
// canonical set, passing unrecognized values through.
func normalizeContractTerm(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return ""
	case "1 year":
		return "1 Year"
	case "2 year", "2 years":
		return "2 Year"
	case "3 year", "3 years":
		return "3 Year"
	case "month to month", "monthly":
		return "Month to Month"
	default:
		return raw
	}
}

// contractEndDate computes start + term - 1 day for year terms; month to
// month contracts have no end date.
func contractEndDate(startDate, term string) string {
	years := map[string]int{"1 Year": 1, "2 Year": 2, "3 Year": 3}[term]
	if years == 0 || startDate == "" {
		return ""
	}

	datePart := strings.SplitN(startDate, "T", 2)[0]
	start, err := time.Parse("2006-01-02", datePart)
	if err != nil {
		return ""
	}
	return start.AddDate(years, 0, -1).Format("2006-01-02")
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
