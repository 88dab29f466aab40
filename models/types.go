// ABOUTME: Data models for synced entities
// ABOUTME: Defines Company, Contact, Agent, Asset, Ticket, SiteLink, and sync bookkeeping structs
package models

import (
	"time"
)

// Company is the local authoritative record for a customer. The account
// number is assigned once and used as the primary key everywhere; external
// systems only own their internal ids.
type Company struct {
	AccountNumber  string
	Name           string
	Description    string
	ExternalID     int64
	ExternalSource string

	HeadUserID    *int64
	HeadName      string
	PrimeUserID   *int64
	PrimeUserName string

	Domains      []string
	CustomFields map[string]string

	BillingPlan        string
	ManagedUsers       *int64
	ManagedDevices     *int64
	ManagedNetwork     string
	ContractTermLength string
	ContractStartDate  string
	ContractEndDate    string
	SupportLevel       string
	ProfitOrNonProfit  string
	CompanyMainNumber  string
	Address            string
	CompanyStartDate   string
	PhoneSystem        string
	EmailSystem        string

	CreatedAt string
	UpdatedAt string
}

// Contact is a person at a customer company. One contact may be linked to
// multiple companies, and each link remembers which provider asserted it.
type Contact struct {
	ID             int64
	ExternalID     int64
	ExternalSource string
	FirstName      string
	LastName       string
	Name           string
	Email          string
	MobilePhone    string
	WorkPhone      string
	JobTitle       string
	Active         bool
	IsAgent        bool
	VIPUser        bool
	DepartmentIDs  []int64
	Address        string
	TimeZone       string
	Language       string
	UserNumber     string
	CreatedAt      string
	UpdatedAt      string
}

// Agent is a technician on the PSA side.
type Agent struct {
	ID             int64
	ExternalID     int64
	ExternalSource string
	FirstName      string
	LastName       string
	Email          string
	JobTitle       string
	Active         bool
	GroupIDs       []int64
	DepartmentIDs  []int64
	CreatedAt      string
	UpdatedAt      string
}

// Asset is a monitored device. Telemetry fields are overwritten wholesale
// on every sync; there is no per-field merge.
type Asset struct {
	ID                   string
	Hostname             string
	CompanyAccountNumber string
	ExternalID           string
	SiteName             string
	DeviceType           string
	OperatingSystem      string
	LastLoggedInUser     string
	IntIPAddress         string
	ExtIPAddress         string
	Domain               string
	Online               bool
	LastSeen             *time.Time
	LastReboot           *time.Time
	LastAuditDate        *time.Time
	PatchStatus          string
	AntivirusProduct     string
	Description          string
	PortalURL            string
	WebRemoteURL         string
	CustomFields         map[string]string
}

// Ticket carries both the normalized status vocabulary and the raw vendor
// code so drift can be debugged after the fact.
type Ticket struct {
	ID                   int64
	ExternalID           int64
	ExternalSource       string
	TicketNumber         string
	Subject              string
	Description          string
	DescriptionText      string
	Status               string
	StatusID             int
	Priority             string
	PriorityID           int
	TicketType           string
	RequesterID          *int64
	RequesterEmail       string
	RequesterName        string
	ResponderID          *int64
	GroupID              *int64
	CompanyAccountNumber string
	CreatedAt            string
	UpdatedAt            string
	ClosedAt             string
	FRDueBy              string
	DueBy                string
	FirstRespondedAt     string
	AgentRespondedAt     string
	TotalHoursSpent      float64
	ConversationsJSON    string
	NotesJSON            string
}

// SiteLink joins an RMM site to a company. Multi-site customers have
// several links pointing at the same account number.
type SiteLink struct {
	ID                   string
	CompanyAccountNumber string
	SiteUID              string
	Provider             string
	SiteName             string
	CreatedAt            time.Time
}

// Sync job status constants.
const (
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

// SyncJob is one orchestrator run in the audit trail. Rows are created at
// start, updated exactly once at completion, and never deleted.
type SyncJob struct {
	ID          string
	Script      string
	Provider    string
	SyncType    string
	Status      string
	StartedAt   time.Time
	CompletedAt *time.Time
	Output      string
}

// SyncState tracks the incremental watermark and the reconciliation
// alternation counter for one (provider, sync type) pair.
type SyncState struct {
	Provider      string
	SyncType      string
	LastSuccessAt *time.Time
	RunCounter    int64
	Status        string
	ErrorMessage  string
	UpdatedAt     time.Time
}
