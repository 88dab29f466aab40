// ABOUTME: Ticket status and priority normalization tables
// ABOUTME: Maps vendor-specific codes to the fixed vocabulary and back, with display names
package psa

import (
	"strings"
)

// Normalized status values. Vendors map their own codes into this closed
// vocabulary; anything unrecognized becomes StatusUnknown rather than an
// error so new vendor codes never crash a sync.
const (
	StatusOpen            = "open"
	StatusPending         = "pending"
	StatusWaitingCustomer = "waiting_customer"
	StatusOnHold          = "on_hold"
	StatusResolved        = "resolved"
	StatusClosed          = "closed"
	StatusUnknown         = "unknown"

	// Invalid class: tickets in these states must never exist locally.
	StatusSpam    = "spam"
	StatusDeleted = "deleted"
	StatusTrash   = "trash"
)

// Normalized priority values.
const (
	PriorityLow     = "low"
	PriorityMedium  = "medium"
	PriorityHigh    = "high"
	PriorityUrgent  = "urgent"
	PriorityUnknown = "unknown"
)

// InvalidStatuses is the set of normalized statuses in the invalid class
// (vendor-side spam/trash/permanent deletion).
var InvalidStatuses = map[string]bool{
	StatusSpam:    true,
	StatusDeleted: true,
	StatusTrash:   true,
}

// TerminalStatuses are statuses excluded from "locally active" during
// reconciliation: a ticket already here cannot be flagged as deleted.
var TerminalStatuses = map[string]bool{
	StatusClosed:        true,
	StatusResolved:      true,
	"job_complete_bill": true,
	"billing_complete":  true,
	StatusSpam:          true,
	StatusDeleted:       true,
	StatusTrash:         true,
}

var statusMappings = map[string]map[int]string{
	"freshservice": {
		// Standard statuses
		2: StatusOpen,
		3: StatusPending,
		4: StatusResolved,
		5: StatusClosed,
		// Vendor-side removal states
		6: StatusDeleted,
		7: StatusSpam,
		// Custom workflow statuses
		8:  "scheduled",
		9:  StatusWaitingCustomer,
		10: "waiting_third_party",
		13: "under_investigation",
		15: "job_complete_bill",
		16: "billing_complete",
		19: "update_needed",
		23: StatusOnHold,
		26: "customer_replied",
		27: "pending_hubspot",
	},
	"superops": {},
}

var priorityMappings = map[string]map[int]string{
	"freshservice": {
		1: PriorityLow,
		2: PriorityMedium,
		3: PriorityHigh,
		4: PriorityUrgent,
	},
	"superops": {},
}

var statusReverseMappings = map[string]map[string]int{
	"freshservice": {
		StatusOpen:            2,
		StatusPending:         3,
		StatusResolved:        4,
		StatusClosed:          5,
		StatusWaitingCustomer: 9,
		StatusOnHold:          23,
	},
}

var priorityReverseMappings = map[string]map[string]int{
	"freshservice": {
		PriorityLow:    1,
		PriorityMedium: 2,
		PriorityHigh:   3,
		PriorityUrgent: 4,
	},
}

var commonStatusDisplayNames = map[string]string{
	StatusOpen:            "Open",
	StatusPending:         "Pending",
	StatusResolved:        "Resolved",
	StatusClosed:          "Closed",
	StatusOnHold:          "On Hold",
	StatusWaitingCustomer: "Waiting on Customer",
	StatusUnknown:         "Unknown",
}

var statusDisplayNames = map[string]map[string]string{
	"freshservice": {
		"scheduled":           "Scheduled",
		"waiting_third_party": "Waiting on Third Party",
		"under_investigation": "Under Investigation",
		"job_complete_bill":   "Job Complete - Bill",
		"billing_complete":    "Billing Complete - Close",
		"update_needed":       "Update Needed",
		"customer_replied":    "Customer Replied",
		"pending_hubspot":     "Pending Hubspot",
	},
}

var commonPriorityDisplayNames = map[string]string{
	PriorityLow:     "Low",
	PriorityMedium:  "Medium",
	PriorityHigh:    "High",
	PriorityUrgent:  "Urgent",
	PriorityUnknown: "Unknown",
}

var priorityDisplayNames = map[string]map[string]string{
	"freshservice": {
		PriorityLow:    "Low",
		PriorityMedium: "Medium",
		PriorityHigh:   "High",
		PriorityUrgent: "Urgent",
	},
	"superops": {},
}

// MapStatus converts a vendor status code to the normalized vocabulary.
func MapStatus(providerName string, statusID int) string {
	if m, ok := statusMappings[providerName]; ok {
		if s, ok := m[statusID]; ok {
			return s
		}
	}
	return StatusUnknown
}

// MapPriority converts a vendor priority code to the normalized vocabulary.
func MapPriority(providerName string, priorityID int) string {
	if m, ok := priorityMappings[providerName]; ok {
		if p, ok := m[priorityID]; ok {
			return p
		}
	}
	return PriorityUnknown
}

// ReverseMapStatus converts a normalized status back to the vendor code.
// Returns 0, false when the provider has no code for it.
func ReverseMapStatus(providerName, status string) (int, bool) {
	if m, ok := statusReverseMappings[providerName]; ok {
		if id, ok := m[status]; ok {
			return id, true
		}
	}
	return 0, false
}

// ReverseMapPriority converts a normalized priority back to the vendor code.
func ReverseMapPriority(providerName, priority string) (int, bool) {
	if m, ok := priorityReverseMappings[providerName]; ok {
		if id, ok := m[priority]; ok {
			return id, true
		}
	}
	return 0, false
}

// StatusDisplayName resolves a human-readable name for a normalized status.
// Provider-specific names win, then the common table, then the humanized
// raw value.
func StatusDisplayName(providerName, status string) string {
	if m, ok := statusDisplayNames[providerName]; ok {
		if name, ok := m[status]; ok {
			return name
		}
	}
	if name, ok := commonStatusDisplayNames[status]; ok {
		return name
	}
	return humanize(status)
}

// PriorityDisplayName resolves a human-readable name for a normalized
// priority, with the same fallback chain as StatusDisplayName.
func PriorityDisplayName(providerName, priority string) string {
	if m, ok := priorityDisplayNames[providerName]; ok {
		if name, ok := m[priority]; ok {
			return name
		}
	}
	if name, ok := commonPriorityDisplayNames[priority]; ok {
		return name
	}
	return humanize(priority)
}

// humanize turns "waiting_third_party" into "Waiting Third Party".
func humanize(value string) string {
	words := strings.Split(strings.ReplaceAll(value, "_", " "), " ")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
