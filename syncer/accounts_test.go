package syncer

import (
	"context"
	"testing"

	"github.com/hivematrix/codex/psa"
)

func TestAssignAccountNumbers(t *testing.T) {
	s, _ := newTestSyncer(t)
	mustUpsertCompany(t, s, "100005", "Already Local", 99)

	p := &fakePSAUpdater{fakePSA: fakePSA{
		name: "freshservice",
		companies: []psa.CompanyRecord{
			companyRecord(1, "Has Number", "123456"),
			companyRecord(2, "Needs Number", ""),
		},
	}}

	// Deterministic draws: first collides with the vendor-assigned 123456,
	// second collides with the locally known 100005, third is free.
	draws := []int{123456 - accountNumberMin, 5, 7}
	s.randInt = func(n int) int {
		d := draws[0]
		draws = draws[1:]
		return d
	}

	result, err := s.AssignAccountNumbers(context.Background(), p)
	if err != nil {
		t.Fatalf("AssignAccountNumbers failed: %v", err)
	}
	if result.Synced != 1 || result.Skipped != 1 {
		t.Errorf("Expected 1 assigned 1 skipped, got %+v", result)
	}

	fields, ok := p.updates[2]
	if !ok {
		t.Fatal("Expected company 2 updated")
	}
	if fields["account_number"] != "100007" {
		t.Errorf("Expected collision-free draw 100007, got %q", fields["account_number"])
	}
	if _, ok := p.updates[1]; ok {
		t.Error("Company with an existing number must not be touched")
	}
}

func TestAssignAccountNumbersWriteFailureContinues(t *testing.T) {
	s, _ := newTestSyncer(t)

	p := &fakePSAUpdater{
		fakePSA: fakePSA{
			name: "freshservice",
			companies: []psa.CompanyRecord{
				companyRecord(1, "Broken", ""),
				companyRecord(2, "Fine", ""),
			},
		},
		failFor: map[int64]bool{1: true},
	}

	result, err := s.AssignAccountNumbers(context.Background(), p)
	if err != nil {
		t.Fatalf("AssignAccountNumbers failed: %v", err)
	}
	if result.Synced != 1 {
		t.Errorf("Expected the second company still assigned, got %+v", result)
	}
	if len(result.Errors) != 1 {
		t.Errorf("Expected the failed write recorded, got %v", result.Errors)
	}
}

func TestAssignAccountNumbersRequiresUpdater(t *testing.T) {
	s, _ := newTestSyncer(t)
	p := &fakePSA{name: "readonly"}

	if _, err := s.AssignAccountNumbers(context.Background(), p); err == nil {
		t.Fatal("Expected error for a provider without company updates")
	}
}
