// ABOUTME: Freshservice PSA adapter
// ABOUTME: Translates Freshservice REST calls into normalized records with pagination and rate-limit retry
package psa

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/hivematrix/codex/config"
	"github.com/hivematrix/codex/provider"
)

const (
	freshserviceName        = "freshservice"
	freshserviceDisplayName = "Freshservice"

	fsPerPage           = 100
	fsMaxRetries        = 3
	fsDefaultRetryAfter = 10 * time.Second
	fsTransportBackoff  = 5 * time.Second
)

// Active status ids used when a ticket query has neither a since watermark
// nor full history: everything not closed, resolved, or removed.
var fsActiveStatusIDs = []int{2, 3, 8, 9, 10, 13, 19, 23, 26, 27}

// errNotFound is internal to the adapter; Get methods translate it to
// (nil, nil) so callers can tell "missing" from transport failure.
var errNotFound = errors.New("not found")

// FreshserviceProvider implements Provider against the Freshservice v2 API.
// The API key is sent as the basic-auth username with a literal "X" password.
type FreshserviceProvider struct {
	domain    string
	webDomain string
	apiKey    string
	baseURL   string
	client    *http.Client
	limiter   *rate.Limiter

	// Test hook: when non-nil, replaces time.Sleep in retry loops.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewFreshserviceProvider builds an adapter from configuration.
func NewFreshserviceProvider(cfg *config.Config) (*FreshserviceProvider, error) {
	fc := cfg.Freshservice
	if fc.Domain == "" || fc.APIKey == "" {
		return nil, &provider.AuthenticationError{
			Provider: freshserviceName,
			Message:  "missing domain or api key in configuration",
		}
	}

	webDomain := fc.WebDomain
	if webDomain == "" {
		webDomain = fc.Domain
	}

	return &FreshserviceProvider{
		domain:    fc.Domain,
		webDomain: webDomain,
		apiKey:    fc.APIKey,
		baseURL:   fmt.Sprintf("https://%s/api/v2", fc.Domain),
		client:    &http.Client{Timeout: 90 * time.Second},
		limiter:   rate.NewLimiter(rate.Every(500*time.Millisecond), 1),
		sleep:     sleepCtx,
	}, nil
}

func (fs *FreshserviceProvider) Name() string        { return freshserviceName }
func (fs *FreshserviceProvider) DisplayName() string { return freshserviceDisplayName }

// Authenticate verifies the API key by fetching the current agent.
func (fs *FreshserviceProvider) Authenticate(ctx context.Context) error {
	var out struct {
		Agent json.RawMessage `json:"agent"`
	}
	if err := fs.apiGet(ctx, "/agents/me", nil, &out); err != nil {
		var ae *provider.AuthenticationError
		if errors.As(err, &ae) {
			return err
		}
		return &provider.AuthenticationError{Provider: freshserviceName, Message: "connection failed", Err: err}
	}
	return nil
}

// TestConnection probes the API without raising.
func (fs *FreshserviceProvider) TestConnection(ctx context.Context) provider.TestResult {
	if err := fs.Authenticate(ctx); err != nil {
		return provider.TestResult{Success: false, Message: err.Error()}
	}
	return provider.TestResult{Success: true, Message: "Connected to Freshservice"}
}

// Companies

type fsDepartment struct {
	ID            int64             `json:"id"`
	Name          string            `json:"name"`
	Description   string            `json:"description"`
	Domains       []string          `json:"domains"`
	HeadUserID    *int64            `json:"head_user_id"`
	HeadName      string            `json:"head_name"`
	PrimeUserID   *int64            `json:"prime_user_id"`
	PrimeUserName string            `json:"prime_user_name"`
	CreatedAt     string            `json:"created_at"`
	UpdatedAt     string            `json:"updated_at"`
	CustomFields  map[string]any    `json:"custom_fields"`
}

// SyncCompanies fetches all departments, draining pagination.
func (fs *FreshserviceProvider) SyncCompanies(ctx context.Context) ([]CompanyRecord, error) {
	var companies []CompanyRecord

	for page := 1; ; page++ {
		var out struct {
			Departments []fsDepartment `json:"departments"`
		}
		params := url.Values{
			"page":     {strconv.Itoa(page)},
			"per_page": {strconv.Itoa(fsPerPage)},
		}
		if err := fs.apiGet(ctx, "/departments", params, &out); err != nil {
			return nil, err
		}
		if len(out.Departments) == 0 {
			break
		}

		for i := range out.Departments {
			companies = append(companies, fs.normalizeCompany(&out.Departments[i]))
		}

		if len(out.Departments) < fsPerPage {
			break
		}
		if err := fs.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	return companies, nil
}

// GetCompany fetches one department; (nil, nil) when absent.
func (fs *FreshserviceProvider) GetCompany(ctx context.Context, externalID int64) (*CompanyRecord, error) {
	var out struct {
		Department *fsDepartment `json:"department"`
	}
	err := fs.apiGet(ctx, fmt.Sprintf("/departments/%d", externalID), nil, &out)
	if errors.Is(err, errNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if out.Department == nil {
		return nil, nil
	}
	rec := fs.normalizeCompany(out.Department)
	return &rec, nil
}

func (fs *FreshserviceProvider) normalizeCompany(dept *fsDepartment) CompanyRecord {
	custom := make(map[string]string)
	for _, key := range []string{
		"account_number", "plan_selected", "managed_users", "managed_devices",
		"managed_network", "contract_term", "contract_start_date",
		"profit_or_non_profit", "company_main_number", "address",
		"company_start_date", "phone_system", "email_system", "datto_portal_url",
	} {
		if v, ok := dept.CustomFields[key]; ok && v != nil {
			custom[key] = customFieldString(v)
		}
	}

	return CompanyRecord{
		ExternalID:    dept.ID,
		Name:          dept.Name,
		Description:   dept.Description,
		Domains:       dept.Domains,
		HeadUserID:    dept.HeadUserID,
		HeadName:      dept.HeadName,
		PrimeUserID:   dept.PrimeUserID,
		PrimeUserName: dept.PrimeUserName,
		CreatedAt:     dept.CreatedAt,
		UpdatedAt:     dept.UpdatedAt,
		CustomFields:  custom,
	}
}

// customFieldString renders a custom-field value the way the vendor shows
// it: numbers without a trailing ".000000", everything else via Sprint.
func customFieldString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

// Contacts

type fsRequester struct {
	ID              int64          `json:"id"`
	FirstName       string         `json:"first_name"`
	LastName        string         `json:"last_name"`
	PrimaryEmail    string         `json:"primary_email"`
	MobilePhone     string         `json:"mobile_phone_number"`
	WorkPhone       string         `json:"work_phone_number"`
	JobTitle        string         `json:"job_title"`
	DepartmentIDs   []int64        `json:"department_ids"`
	Active          bool           `json:"active"`
	IsAgent         bool           `json:"is_agent"`
	VIPUser         bool           `json:"vip_user"`
	Address         string         `json:"address"`
	TimeZone        string         `json:"time_zone"`
	Language        string         `json:"language"`
	CreatedAt       string         `json:"created_at"`
	UpdatedAt       string         `json:"updated_at"`
	CustomFields    map[string]any `json:"custom_fields"`
}

// SyncContacts fetches all requesters, draining pagination.
func (fs *FreshserviceProvider) SyncContacts(ctx context.Context) ([]ContactRecord, error) {
	var contacts []ContactRecord

	for page := 1; ; page++ {
		var out struct {
			Requesters []fsRequester `json:"requesters"`
		}
		params := url.Values{
			"page":     {strconv.Itoa(page)},
			"per_page": {strconv.Itoa(fsPerPage)},
		}
		if err := fs.apiGet(ctx, "/requesters", params, &out); err != nil {
			return nil, err
		}
		if len(out.Requesters) == 0 {
			break
		}

		for i := range out.Requesters {
			contacts = append(contacts, fs.normalizeContact(&out.Requesters[i]))
		}

		if len(out.Requesters) < fsPerPage {
			break
		}
		if err := fs.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	return contacts, nil
}

// GetContact fetches one requester; (nil, nil) when absent.
func (fs *FreshserviceProvider) GetContact(ctx context.Context, externalID int64) (*ContactRecord, error) {
	var out struct {
		Requester *fsRequester `json:"requester"`
	}
	err := fs.apiGet(ctx, fmt.Sprintf("/requesters/%d", externalID), nil, &out)
	if errors.Is(err, errNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if out.Requester == nil {
		return nil, nil
	}
	rec := fs.normalizeContact(out.Requester)
	return &rec, nil
}

func (fs *FreshserviceProvider) normalizeContact(req *fsRequester) ContactRecord {
	fullName := strings.TrimSpace(req.FirstName + " " + req.LastName)
	if fullName == "" && req.PrimaryEmail != "" {
		fullName = strings.SplitN(req.PrimaryEmail, "@", 2)[0]
	}

	userNumber := ""
	if v, ok := req.CustomFields["user_number"]; ok && v != nil {
		userNumber = customFieldString(v)
	}

	language := req.Language
	if language == "" {
		language = "en"
	}

	return ContactRecord{
		ExternalID:    req.ID,
		FirstName:     req.FirstName,
		LastName:      req.LastName,
		Name:          fullName,
		Email:         req.PrimaryEmail,
		MobilePhone:   req.MobilePhone,
		WorkPhone:     req.WorkPhone,
		JobTitle:      req.JobTitle,
		DepartmentIDs: req.DepartmentIDs,
		Active:        req.Active,
		IsAgent:       req.IsAgent,
		VIPUser:       req.VIPUser,
		Address:       req.Address,
		TimeZone:      req.TimeZone,
		Language:      language,
		UserNumber:    userNumber,
		CreatedAt:     req.CreatedAt,
		UpdatedAt:     req.UpdatedAt,
	}
}

// Agents

type fsAgent struct {
	ID            int64   `json:"id"`
	FirstName     string  `json:"first_name"`
	LastName      string  `json:"last_name"`
	Email         string  `json:"email"`
	JobTitle      string  `json:"job_title"`
	Active        bool    `json:"active"`
	GroupIDs      []int64 `json:"group_ids"`
	DepartmentIDs []int64 `json:"department_ids"`
	CreatedAt     string  `json:"created_at"`
	UpdatedAt     string  `json:"updated_at"`
}

// SyncAgents fetches all agents, draining pagination.
func (fs *FreshserviceProvider) SyncAgents(ctx context.Context) ([]AgentRecord, error) {
	var agents []AgentRecord

	for page := 1; ; page++ {
		var out struct {
			Agents []fsAgent `json:"agents"`
		}
		params := url.Values{
			"page":     {strconv.Itoa(page)},
			"per_page": {strconv.Itoa(fsPerPage)},
		}
		if err := fs.apiGet(ctx, "/agents", params, &out); err != nil {
			return nil, err
		}
		if len(out.Agents) == 0 {
			break
		}

		for _, a := range out.Agents {
			agents = append(agents, AgentRecord{
				ExternalID:    a.ID,
				FirstName:     a.FirstName,
				LastName:      a.LastName,
				Email:         a.Email,
				JobTitle:      a.JobTitle,
				Active:        a.Active,
				GroupIDs:      a.GroupIDs,
				DepartmentIDs: a.DepartmentIDs,
				CreatedAt:     a.CreatedAt,
				UpdatedAt:     a.UpdatedAt,
			})
		}

		if len(out.Agents) < fsPerPage {
			break
		}
		if err := fs.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	return agents, nil
}

// GetAgent fetches one agent; (nil, nil) when absent.
func (fs *FreshserviceProvider) GetAgent(ctx context.Context, externalID int64) (*AgentRecord, error) {
	var out struct {
		Agent *fsAgent `json:"agent"`
	}
	err := fs.apiGet(ctx, fmt.Sprintf("/agents/%d", externalID), nil, &out)
	if errors.Is(err, errNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if out.Agent == nil {
		return nil, nil
	}
	a := out.Agent
	return &AgentRecord{
		ExternalID:    a.ID,
		FirstName:     a.FirstName,
		LastName:      a.LastName,
		Email:         a.Email,
		JobTitle:      a.JobTitle,
		Active:        a.Active,
		GroupIDs:      a.GroupIDs,
		DepartmentIDs: a.DepartmentIDs,
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
	}, nil
}

// Tickets

type fsTicket struct {
	ID           int64  `json:"id"`
	Subject      string `json:"subject"`
	Description  string `json:"description"`
	DescText     string `json:"description_text"`
	Status       int    `json:"status"`
	Priority     int    `json:"priority"`
	Type         string `json:"type"`
	RequesterID  *int64 `json:"requester_id"`
	ResponderID  *int64 `json:"responder_id"`
	GroupID      *int64 `json:"group_id"`
	DepartmentID *int64 `json:"department_id"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
	FRDueBy      string `json:"fr_due_by"`
	DueBy        string `json:"due_by"`
	Requester    *struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	} `json:"requester"`
	Stats *struct {
		FirstRespondedAt string `json:"first_responded_at"`
		AgentRespondedAt string `json:"agent_responded_at"`
	} `json:"stats"`
	Conversations []fsConversation `json:"conversations"`
}

type fsConversation struct {
	ID           int64    `json:"id"`
	Body         string   `json:"body"`
	FromEmail    string   `json:"from_email"`
	ToEmails     []string `json:"to_emails"`
	CreatedAt    string   `json:"created_at"`
	UpdatedAt    string   `json:"updated_at"`
	Incoming     bool     `json:"incoming"`
	Private      bool     `json:"private"`
	UserID       *int64   `json:"user_id"`
	SupportEmail string   `json:"support_email"`
}

type fsTimeEntry struct {
	ID        int64  `json:"id"`
	TimeSpent string `json:"time_spent"`
	AgentID   *int64 `json:"agent_id"`
	Billable  bool   `json:"billable"`
	Note      string `json:"note"`
	CreatedAt string `json:"created_at"`
}

// SyncTickets fetches tickets matching the query, then hydrates each with
// full detail (conversations, stats, time entries). With neither a since
// watermark nor full history, the default filter restricts to the active
// status universe instead of the entire ticket history.
func (fs *FreshserviceProvider) SyncTickets(ctx context.Context, q TicketQuery) ([]TicketRecord, error) {
	query := fs.buildTicketQuery(q)

	var tickets []TicketRecord
	for page := 1; ; page++ {
		var out struct {
			Tickets []fsTicket `json:"tickets"`
		}
		params := url.Values{
			"query":    {query},
			"page":     {strconv.Itoa(page)},
			"per_page": {strconv.Itoa(fsPerPage)},
		}
		if err := fs.apiGet(ctx, "/tickets/filter", params, &out); err != nil {
			return nil, err
		}
		if len(out.Tickets) == 0 {
			break
		}

		for _, t := range out.Tickets {
			full, err := fs.GetTicket(ctx, t.ID)
			if err != nil {
				return nil, err
			}
			if full != nil {
				tickets = append(tickets, *full)
			}
		}

		log.WithFields(log.Fields{
			"provider": freshserviceName,
			"page":     page,
			"total":    len(tickets),
		}).Debug("fetched ticket page")

		if len(out.Tickets) < fsPerPage {
			break
		}
		if err := fs.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	return tickets, nil
}

func (fs *FreshserviceProvider) buildTicketQuery(q TicketQuery) string {
	if q.FullHistory {
		return `"created_at:>'2000-01-01'"`
	}
	if q.Since != nil {
		return fmt.Sprintf(`"updated_at:>'%s'"`, q.Since.UTC().Format("2006-01-02T15:04:05Z"))
	}
	conditions := make([]string, len(fsActiveStatusIDs))
	for i, id := range fsActiveStatusIDs {
		conditions[i] = fmt.Sprintf("status:%d", id)
	}
	return fmt.Sprintf(`"(%s)"`, strings.Join(conditions, " OR "))
}

// GetTicket fetches one ticket with stats, conversations, and total hours;
// (nil, nil) when absent.
func (fs *FreshserviceProvider) GetTicket(ctx context.Context, externalID int64) (*TicketRecord, error) {
	var out struct {
		Ticket *fsTicket `json:"ticket"`
	}
	params := url.Values{"include": {"stats,conversations"}}
	err := fs.apiGet(ctx, fmt.Sprintf("/tickets/%d", externalID), params, &out)
	if errors.Is(err, errNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if out.Ticket == nil {
		return nil, nil
	}

	entries, err := fs.ticketTimeEntries(ctx, externalID)
	if err != nil {
		// The ticket itself is still usable; hours just come up empty.
		log.WithFields(log.Fields{"provider": freshserviceName, "ticket": externalID}).
			WithError(err).Warn("failed to fetch time entries, hours omitted")
		entries = nil
	}
	totalHours := 0.0
	for _, e := range entries {
		totalHours += parseTimeSpent(e.TimeSpent)
	}

	rec := fs.normalizeTicket(out.Ticket, totalHours)
	return &rec, nil
}

func (fs *FreshserviceProvider) ticketTimeEntries(ctx context.Context, ticketID int64) ([]fsTimeEntry, error) {
	var out struct {
		TimeEntries []fsTimeEntry `json:"time_entries"`
	}
	err := fs.apiGet(ctx, fmt.Sprintf("/tickets/%d/time_entries", ticketID), nil, &out)
	if errors.Is(err, errNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return out.TimeEntries, nil
}

// parseTimeSpent converts "01:30" or "01:30:00" to fractional hours.
func parseTimeSpent(spent string) float64 {
	parts := strings.Split(spent, ":")
	nums := make([]float64, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return 0
		}
		nums = append(nums, n)
	}
	switch len(nums) {
	case 2:
		return nums[0] + nums[1]/60
	case 3:
		return nums[0] + nums[1]/60 + nums[2]/3600
	default:
		return 0
	}
}

func (fs *FreshserviceProvider) normalizeTicket(t *fsTicket, totalHours float64) TicketRecord {
	var conversations, notes []ConversationEntry
	for _, c := range t.Conversations {
		entry := ConversationEntry{
			ID:        c.ID,
			Body:      stripHTML(c.Body),
			BodyHTML:  c.Body,
			FromEmail: c.FromEmail,
			ToEmails:  c.ToEmails,
			CreatedAt: c.CreatedAt,
			UpdatedAt: c.UpdatedAt,
			Incoming:  c.Incoming,
			Private:   c.Private,
			UserID:    c.UserID,
		}
		if c.Private {
			notes = append(notes, entry)
		} else {
			conversations = append(conversations, entry)
		}
	}

	requesterEmail, requesterName := "", ""
	if t.Requester != nil {
		requesterEmail = t.Requester.Email
		requesterName = t.Requester.Name
	}

	// Only closed tickets carry a closed timestamp; the API does not expose
	// one directly so the last update stands in.
	closedAt := ""
	if t.Status == 5 {
		closedAt = t.UpdatedAt
	}

	descText := t.DescText
	if descText == "" {
		descText = t.Description
	}

	ticketType := t.Type
	if ticketType == "" {
		ticketType = "Incident"
	}

	firstResponded, agentResponded := "", ""
	if t.Stats != nil {
		firstResponded = t.Stats.FirstRespondedAt
		agentResponded = t.Stats.AgentRespondedAt
	}

	return TicketRecord{
		ExternalID:        t.ID,
		TicketNumber:      strconv.FormatInt(t.ID, 10),
		Subject:           t.Subject,
		Description:       t.Description,
		DescriptionText:   stripHTML(descText),
		Status:            MapStatus(freshserviceName, t.Status),
		StatusID:          t.Status,
		Priority:          MapPriority(freshserviceName, t.Priority),
		PriorityID:        t.Priority,
		TicketType:        ticketType,
		RequesterID:       t.RequesterID,
		RequesterEmail:    requesterEmail,
		RequesterName:     requesterName,
		ResponderID:       t.ResponderID,
		GroupID:           t.GroupID,
		CompanyExternalID: t.DepartmentID,
		CreatedAt:         t.CreatedAt,
		UpdatedAt:         t.UpdatedAt,
		ClosedAt:          closedAt,
		FRDueBy:           t.FRDueBy,
		DueBy:             t.DueBy,
		FirstRespondedAt:  firstResponded,
		AgentRespondedAt:  agentResponded,
		Conversations:     conversations,
		Notes:             notes,
		TotalHoursSpent:   totalHours,
	}
}

// URLs

func (fs *FreshserviceProvider) TicketURL(externalID int64) string {
	return fmt.Sprintf("https://%s/a/tickets/%d", fs.webDomain, externalID)
}

func (fs *FreshserviceProvider) CompanyURL(externalID int64) string {
	return fmt.Sprintf("https://%s/a/admin/departments/%d", fs.webDomain, externalID)
}

func (fs *FreshserviceProvider) ContactURL(externalID int64) string {
	return fmt.Sprintf("https://%s/a/requesters/%d", fs.webDomain, externalID)
}

// Optional capabilities

// UpdateCompany writes department custom fields. Writes are never retried.
func (fs *FreshserviceProvider) UpdateCompany(ctx context.Context, externalID int64, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	custom := make(map[string]string, len(fields))
	for k, v := range fields {
		custom[k] = v
	}
	payload := map[string]any{"custom_fields": custom}
	return fs.apiPut(ctx, fmt.Sprintf("/departments/%d", externalID), payload)
}

// GetTimeEntries exposes per-ticket time entries.
func (fs *FreshserviceProvider) GetTimeEntries(ctx context.Context, ticketID int64) ([]TimeEntry, error) {
	raw, err := fs.ticketTimeEntries(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	entries := make([]TimeEntry, 0, len(raw))
	for _, e := range raw {
		entries = append(entries, TimeEntry{
			ID:        e.ID,
			TimeSpent: e.TimeSpent,
			AgentID:   e.AgentID,
			Billable:  e.Billable,
			Note:      e.Note,
			CreatedAt: e.CreatedAt,
		})
	}
	return entries, nil
}

// Transport

// apiGet performs a GET with bounded retries. 429 honors Retry-After (or a
// default delay); transport errors back off and retry; 401 fails fast; 404
// maps to errNotFound. A page that keeps failing raises rather than letting
// the caller silently truncate its listing.
func (fs *FreshserviceProvider) apiGet(ctx context.Context, endpoint string, params url.Values, out any) error {
	reqURL := fs.baseURL + endpoint
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	rateLimited := 0
	for attempt := 0; attempt < fsMaxRetries; {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return &provider.APIError{Provider: freshserviceName, Message: "building request", Err: err}
		}
		req.SetBasicAuth(fs.apiKey, "X")
		req.Header.Set("Accept", "application/json")

		resp, err := fs.client.Do(req)
		if err != nil {
			attempt++
			if attempt >= fsMaxRetries {
				return &provider.APIError{Provider: freshserviceName, Message: fmt.Sprintf("request failed after %d retries", fsMaxRetries), Err: err}
			}
			if err := fs.sleep(ctx, fsTransportBackoff); err != nil {
				return err
			}
			continue
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			defer resp.Body.Close()
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return &provider.APIError{Provider: freshserviceName, Message: "decoding response", Err: err}
			}
			return nil
		case resp.StatusCode == http.StatusUnauthorized:
			resp.Body.Close()
			return &provider.AuthenticationError{Provider: freshserviceName, Message: "invalid API key"}
		case resp.StatusCode == http.StatusNotFound:
			resp.Body.Close()
			return errNotFound
		case resp.StatusCode == http.StatusTooManyRequests:
			delay := retryAfterDelay(resp, fsDefaultRetryAfter)
			resp.Body.Close()
			rateLimited++
			attempt++
			if attempt >= fsMaxRetries {
				return &provider.RateLimitError{Provider: freshserviceName, Retries: rateLimited}
			}
			log.WithFields(log.Fields{"provider": freshserviceName, "delay": delay}).Warn("rate limit hit, backing off")
			if err := fs.sleep(ctx, delay); err != nil {
				return err
			}
		default:
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			return &provider.APIError{
				Provider:   freshserviceName,
				StatusCode: resp.StatusCode,
				Message:    string(body),
			}
		}
	}

	return &provider.RateLimitError{Provider: freshserviceName, Retries: rateLimited}
}

// apiPut performs a single non-retried write.
func (fs *FreshserviceProvider) apiPut(ctx context.Context, endpoint string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return &provider.APIError{Provider: freshserviceName, Message: "encoding payload", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, fs.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return &provider.APIError{Provider: freshserviceName, Message: "building request", Err: err}
	}
	req.SetBasicAuth(fs.apiKey, "X")
	req.Header.Set("Content-Type", "application/json")

	resp, err := fs.client.Do(req)
	if err != nil {
		return &provider.APIError{Provider: freshserviceName, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		return nil
	case http.StatusUnauthorized:
		return &provider.AuthenticationError{Provider: freshserviceName, Message: "invalid API key"}
	case http.StatusTooManyRequests:
		return &provider.RateLimitError{Provider: freshserviceName, Retries: 0}
	default:
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &provider.APIError{
			Provider:   freshserviceName,
			StatusCode: resp.StatusCode,
			Message:    string(respBody),
		}
	}
}

// retryAfterDelay reads the server-supplied Retry-After seconds, falling
// back to def when absent or unparseable.
func retryAfterDelay(resp *http.Response, def time.Duration) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return def
}

// sleepCtx sleeps for d or until the context is done.
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

var htmlTagPattern = regexp.MustCompile(`<[^>]+>`)

// stripHTML removes tags, decodes common entities, and collapses whitespace.
func stripHTML(content string) string {
	if content == "" {
		return ""
	}
	clean := htmlTagPattern.ReplaceAllString(content, "")
	replacer := strings.NewReplacer(
		"&nbsp;", " ",
		"&lt;", "<",
		"&gt;", ">",
		"&amp;", "&",
		"&quot;", `"`,
	)
	clean = replacer.Replace(clean)
	return strings.Join(strings.Fields(clean), " ")
}
