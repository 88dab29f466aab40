// ABOUTME: Account number assignment for companies that lack one
// ABOUTME: Draws random six-digit numbers, rejecting collisions, and writes them back to the vendor
package syncer

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"

	log "github.com/sirupsen/logrus"

	"github.com/hivematrix/codex/db"
	"github.com/hivematrix/codex/psa"
)

const (
	accountNumberMin = 100000
	accountNumberMax = 999999
)

func defaultRandInt(n int) int { return rand.Intn(n) }

// AssignAccountNumbers finds vendor companies without an account number,
// draws a unique random six-digit number for each, and writes it back to
// the vendor. The local database picks the numbers up on the next company
// sync; nothing is written locally here, the vendor record stays the
// source of truth.
func (s *Syncer) AssignAccountNumbers(ctx context.Context, p psa.Provider) (*Result, error) {
	defer s.lock(p.Name(), "account_numbers")()

	source := p.Name()
	result := &Result{Provider: source, Entity: "account_numbers"}
	logger := log.WithFields(log.Fields{"provider": source, "entity": "account_numbers"})

	updater, ok := p.(psa.CompanyUpdater)
	if !ok {
		return nil, fmt.Errorf("provider %s cannot update companies", source)
	}

	listing, err := p.SyncCompanies(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching company listing: %w", err)
	}

	inUse, err := db.AccountNumbersInUse(s.db)
	if err != nil {
		return nil, err
	}
	// Numbers already assigned upstream but not yet synced locally also
	// count as taken.
	for i := range listing {
		if acct := listing[i].AccountNumber(); acct != "" {
			inUse[acct] = true
		}
	}

	for i := range listing {
		rec := &listing[i]
		if rec.AccountNumber() != "" {
			result.Skipped++
			continue
		}

		acct := s.drawAccountNumber(inUse)
		if err := updater.UpdateCompany(ctx, rec.ExternalID, map[string]string{"account_number": acct}); err != nil {
			result.recordError("company %s: %v", rec.Name, err)
			continue
		}
		inUse[acct] = true
		logger.WithFields(log.Fields{"company": rec.Name, "account": acct}).Info("assigned account number")
		result.Synced++
	}

	return result, nil
}

// drawAccountNumber rejection-samples the six-digit space until it finds a
// free number.
func (s *Syncer) drawAccountNumber(inUse map[string]bool) string {
	for {
		n := accountNumberMin + s.randInt(accountNumberMax-accountNumberMin+1)
		acct := strconv.Itoa(n)
		if !inUse[acct] {
			return acct
		}
	}
}
