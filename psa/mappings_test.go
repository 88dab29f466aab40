package psa

import (
	"testing"
)

func TestMapStatus(t *testing.T) {
	tests := []struct {
		statusID int
		want     string
	}{
		{2, StatusOpen},
		{3, StatusPending},
		{4, StatusResolved},
		{5, StatusClosed},
		{6, StatusDeleted},
		{7, StatusSpam},
		{8, "scheduled"},
		{9, StatusWaitingCustomer},
		{10, "waiting_third_party"},
		{13, "under_investigation"},
		{15, "job_complete_bill"},
		{16, "billing_complete"},
		{19, "update_needed"},
		{23, StatusOnHold},
		{26, "customer_replied"},
		{27, "pending_hubspot"},
		{999, StatusUnknown},
	}

	for _, tt := range tests {
		if got := MapStatus("freshservice", tt.statusID); got != tt.want {
			t.Errorf("MapStatus(freshservice, %d) = %s, want %s", tt.statusID, got, tt.want)
		}
	}
}

func TestMapStatusUnknownProvider(t *testing.T) {
	if got := MapStatus("nonexistent", 2); got != StatusUnknown {
		t.Errorf("Expected unknown for unregistered provider, got %s", got)
	}
}

func TestMapPriority(t *testing.T) {
	tests := []struct {
		priorityID int
		want       string
	}{
		{1, PriorityLow},
		{2, PriorityMedium},
		{3, PriorityHigh},
		{4, PriorityUrgent},
		{5, PriorityUnknown},
	}

	for _, tt := range tests {
		if got := MapPriority("freshservice", tt.priorityID); got != tt.want {
			t.Errorf("MapPriority(freshservice, %d) = %s, want %s", tt.priorityID, got, tt.want)
		}
	}
}

func TestReverseMapStatus(t *testing.T) {
	id, ok := ReverseMapStatus("freshservice", StatusOpen)
	if !ok || id != 2 {
		t.Errorf("Expected (2, true), got (%d, %v)", id, ok)
	}

	// Custom workflow statuses have no reverse mapping
	if _, ok := ReverseMapStatus("freshservice", "pending_hubspot"); ok {
		t.Error("Expected no reverse mapping for pending_hubspot")
	}
	if _, ok := ReverseMapStatus("nonexistent", StatusOpen); ok {
		t.Error("Expected no reverse mapping for unregistered provider")
	}
}

func TestReverseMapPriority(t *testing.T) {
	id, ok := ReverseMapPriority("freshservice", PriorityUrgent)
	if !ok || id != 4 {
		t.Errorf("Expected (4, true), got (%d, %v)", id, ok)
	}
}

func TestRoundTripStandardStatuses(t *testing.T) {
	for _, status := range []string{StatusOpen, StatusPending, StatusResolved, StatusClosed, StatusWaitingCustomer, StatusOnHold} {
		id, ok := ReverseMapStatus("freshservice", status)
		if !ok {
			t.Errorf("No reverse mapping for %s", status)
			continue
		}
		if got := MapStatus("freshservice", id); got != status {
			t.Errorf("Round trip for %s via %d gave %s", status, id, got)
		}
	}
}

func TestStatusDisplayName(t *testing.T) {
	tests := []struct {
		status string
		want   string
	}{
		// Provider-specific name wins
		{"job_complete_bill", "Job Complete - Bill"},
		{"billing_complete", "Billing Complete - Close"},
		// Common table
		{StatusOpen, "Open"},
		{StatusWaitingCustomer, "Waiting on Customer"},
		// Humanized fallback
		{"some_new_state", "Some New State"},
	}

	for _, tt := range tests {
		if got := StatusDisplayName("freshservice", tt.status); got != tt.want {
			t.Errorf("StatusDisplayName(%s) = %q, want %q", tt.status, got, tt.want)
		}
	}
}

func TestPriorityDisplayName(t *testing.T) {
	// Provider table first, then the common table, then humanized raw value.
	if got := PriorityDisplayName("freshservice", PriorityHigh); got != "High" {
		t.Errorf("Expected High, got %q", got)
	}
	if got := PriorityDisplayName("superops", PriorityUrgent); got != "Urgent" {
		t.Errorf("Expected common-table fallback, got %q", got)
	}
	if got := PriorityDisplayName("freshservice", "critical_maybe"); got != "Critical Maybe" {
		t.Errorf("Expected humanized fallback, got %q", got)
	}
}

func TestInvalidStatusClass(t *testing.T) {
	for _, s := range []string{StatusSpam, StatusDeleted, StatusTrash} {
		if !InvalidStatuses[s] {
			t.Errorf("Expected %s in invalid class", s)
		}
		if !TerminalStatuses[s] {
			t.Errorf("Invalid status %s must also be terminal", s)
		}
	}
	if InvalidStatuses[StatusClosed] {
		t.Error("closed is terminal but not invalid")
	}
}
