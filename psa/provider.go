// ABOUTME: PSA provider contract and registry
// ABOUTME: Defines the interface every ticketing-system adapter implements plus optional capabilities
package psa

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/hivematrix/codex/config"
	"github.com/hivematrix/codex/provider"
)

// Record shapes returned by providers. These are normalized: the orchestrator
// never sees vendor field names.

// CompanyRecord is a normalized company/organization listing entry.
type CompanyRecord struct {
	ExternalID    int64
	Name          string
	Description   string
	Domains       []string
	HeadUserID    *int64
	HeadName      string
	PrimeUserID   *int64
	PrimeUserName string
	CreatedAt     string
	UpdatedAt     string
	CustomFields  map[string]string
}

// AccountNumber returns the company's account number custom field, or ""
// when the vendor record has none assigned yet.
func (c *CompanyRecord) AccountNumber() string {
	return c.CustomFields["account_number"]
}

// ContactRecord is a normalized contact/requester listing entry.
type ContactRecord struct {
	ExternalID    int64
	FirstName     string
	LastName      string
	Name          string
	Email         string
	MobilePhone   string
	WorkPhone     string
	JobTitle      string
	DepartmentIDs []int64
	Active        bool
	IsAgent       bool
	VIPUser       bool
	Address       string
	TimeZone      string
	Language      string
	UserNumber    string
	CreatedAt     string
	UpdatedAt     string
}

// AgentRecord is a normalized agent/technician listing entry.
type AgentRecord struct {
	ExternalID    int64
	FirstName     string
	LastName      string
	Email         string
	JobTitle      string
	Active        bool
	GroupIDs      []int64
	DepartmentIDs []int64
	CreatedAt     string
	UpdatedAt     string
}

// ConversationEntry is one message or note on a ticket.
type ConversationEntry struct {
	ID        int64    `json:"id"`
	Body      string   `json:"body"`
	BodyHTML  string   `json:"body_html"`
	FromEmail string   `json:"from_email,omitempty"`
	ToEmails  []string `json:"to_emails,omitempty"`
	CreatedAt string   `json:"created_at"`
	UpdatedAt string   `json:"updated_at"`
	Incoming  bool     `json:"incoming"`
	Private   bool     `json:"private"`
	UserID    *int64   `json:"user_id,omitempty"`
}

// TicketRecord is a normalized ticket with full detail.
type TicketRecord struct {
	ExternalID        int64
	TicketNumber      string
	Subject           string
	Description       string
	DescriptionText   string
	Status            string
	StatusID          int
	Priority          string
	PriorityID        int
	TicketType        string
	RequesterID       *int64
	RequesterEmail    string
	RequesterName     string
	ResponderID       *int64
	GroupID           *int64
	CompanyExternalID *int64
	CreatedAt         string
	UpdatedAt         string
	ClosedAt          string
	FRDueBy           string
	DueBy             string
	FirstRespondedAt  string
	AgentRespondedAt  string
	Conversations     []ConversationEntry
	Notes             []ConversationEntry
	TotalHoursSpent   float64
}

// TicketQuery selects which tickets a SyncTickets call returns. Since and
// FullHistory are mutually exclusive; with neither set the adapter applies
// its default active-status filter instead of returning the entire history.
type TicketQuery struct {
	Since       *time.Time
	FullHistory bool
}

// Provider is the contract every PSA adapter implements. Sync methods drain
// all pagination and return the complete current listing; Get methods return
// (nil, nil) when the record does not exist so callers can tell "missing"
// from transport failure.
type Provider interface {
	Name() string
	DisplayName() string

	// Authenticate establishes a session. Idempotent; safe to call again
	// to refresh a token.
	Authenticate(ctx context.Context) error

	// TestConnection is a non-destructive probe. It never returns an error;
	// failures are reported in the result.
	TestConnection(ctx context.Context) provider.TestResult

	SyncCompanies(ctx context.Context) ([]CompanyRecord, error)
	SyncContacts(ctx context.Context) ([]ContactRecord, error)
	SyncAgents(ctx context.Context) ([]AgentRecord, error)
	SyncTickets(ctx context.Context, q TicketQuery) ([]TicketRecord, error)

	GetCompany(ctx context.Context, externalID int64) (*CompanyRecord, error)
	GetContact(ctx context.Context, externalID int64) (*ContactRecord, error)
	GetAgent(ctx context.Context, externalID int64) (*AgentRecord, error)
	GetTicket(ctx context.Context, externalID int64) (*TicketRecord, error)

	TicketURL(externalID int64) string
	CompanyURL(externalID int64) string
	ContactURL(externalID int64) string
}

// Optional capabilities. Adapters that support them implement these
// interfaces; callers probe with a type assertion instead of calling blind.

// CompanyUpdater can write company fields back to the vendor.
type CompanyUpdater interface {
	UpdateCompany(ctx context.Context, externalID int64, fields map[string]string) error
}

// TicketCreator can open tickets in the vendor system.
type TicketCreator interface {
	CreateTicket(ctx context.Context, t *TicketRecord) (*TicketRecord, error)
}

// TimeEntrySource exposes per-ticket time entries.
type TimeEntrySource interface {
	GetTimeEntries(ctx context.Context, ticketID int64) ([]TimeEntry, error)
}

// TimeEntry is one logged block of work on a ticket.
type TimeEntry struct {
	ID        int64
	TimeSpent string
	AgentID   *int64
	Billable  bool
	Note      string
	CreatedAt string
}

var registry = map[string]func(cfg *config.Config) (Provider, error){
	"freshservice": func(cfg *config.Config) (Provider, error) {
		return NewFreshserviceProvider(cfg)
	},
}

// New returns a PSA provider instance by name.
func New(name string, cfg *config.Config) (Provider, error) {
	ctor, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown PSA provider: %s (available: %v)", name, List())
	}
	return ctor(cfg)
}

// List returns the registered PSA provider names, sorted.
func List() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
