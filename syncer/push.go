// ABOUTME: Pushes account numbers to RMM sites as site variables
// ABOUTME: Matches site names to company names by longest substring, with alias overrides
package syncer

import (
	"context"
	"sort"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/hivematrix/codex/db"
	"github.com/hivematrix/codex/rmm"
)

// Alias overrides for site names that don't contain their company's name.
var siteNameAliases = map[string]string{
	"Redbarn": "Redbarn Cannabis",
}

// MatchSiteCompany finds the company a site name refers to. Alias keywords
// win first; otherwise the longest company name contained in the site name
// is chosen, so "A" never shadows "A-1 Movers". Returns "" when nothing
// matches.
func MatchSiteCompany(siteName string, companyNames []string) string {
	for keyword, target := range siteNameAliases {
		if strings.Contains(siteName, keyword) {
			return target
		}
	}

	best := ""
	for _, name := range companyNames {
		if name != "" && strings.Contains(siteName, name) && len(name) > len(best) {
			best = name
		}
	}
	return best
}

// PushAccountNumbers matches RMM sites to local companies by name and
// writes the AccountNumber site variable. Sites already carrying the
// correct value are left alone, so the operation is idempotent.
func (s *Syncer) PushAccountNumbers(ctx context.Context, r rmm.Provider) (*Result, error) {
	defer s.lock(r.Name(), "push_account_numbers")()

	source := r.Name()
	result := &Result{Provider: source, Entity: "push_account_numbers"}
	logger := log.WithFields(log.Fields{"provider": source, "entity": "push_account_numbers"})

	companies, err := db.ListCompanies(s.db)
	if err != nil {
		return nil, err
	}
	accountByName := make(map[string]string)
	var companyNames []string
	for _, c := range companies {
		if c.Name != "" && c.AccountNumber != "" {
			accountByName[c.Name] = c.AccountNumber
			companyNames = append(companyNames, c.Name)
		}
	}
	logger.WithField("companies", len(accountByName)).Info("loaded companies with account numbers")

	sites, err := r.SyncSites(ctx)
	if err != nil {
		return nil, err
	}

	// Deterministic order makes the log readable
	sort.Slice(sites, func(i, j int) bool { return sites[i].Name < sites[j].Name })

	for _, site := range sites {
		match := MatchSiteCompany(site.Name, companyNames)
		acct := accountByName[match]
		if match == "" || acct == "" {
			logger.WithField("site", site.Name).Debug("no matching company")
			result.Skipped++
			continue
		}

		current, err := r.GetSiteVariable(ctx, site.UID, AccountNumberVariable)
		if err == nil && current == acct {
			result.Skipped++
			continue
		}

		if err := r.SetSiteVariable(ctx, site.UID, AccountNumberVariable, acct); err != nil {
			result.recordError("site %s: %v", site.Name, err)
			continue
		}
		logger.WithFields(log.Fields{"site": site.Name, "company": match, "account": acct}).Info("pushed account number")
		result.Synced++

		// Be nice to the API
		if err := s.sleep(ctx, 500*time.Millisecond); err != nil {
			return result, err
		}
	}

	return result, nil
}
