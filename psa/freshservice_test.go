package psa

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hivematrix/codex/config"
	"github.com/hivematrix/codex/provider"
)

func newFreshserviceTestProvider(t *testing.T, handler http.Handler) (*httptest.Server, *FreshserviceProvider) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := &config.Config{}
	cfg.Freshservice.Domain = "test.freshservice.com"
	cfg.Freshservice.APIKey = "test-key"

	p, err := NewFreshserviceProvider(cfg)
	if err != nil {
		t.Fatalf("NewFreshserviceProvider failed: %v", err)
	}
	p.baseURL = server.URL
	// No real sleeping in tests
	p.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return server, p
}

func TestNewFreshserviceProviderRequiresCredentials(t *testing.T) {
	cfg := &config.Config{}
	cfg.Freshservice.Domain = "test.freshservice.com"

	if _, err := NewFreshserviceProvider(cfg); err == nil {
		t.Error("Expected error for missing API key")
	}
}

func TestAuthenticateSendsBasicAuth(t *testing.T) {
	var gotUser, gotPass string
	_, p := newFreshserviceTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, gotPass, _ = r.BasicAuth()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"agent": {"id": 1}}`))
	}))

	if err := p.Authenticate(context.Background()); err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if gotUser != "test-key" || gotPass != "X" {
		t.Errorf("Expected basic auth key:X, got %s:%s", gotUser, gotPass)
	}
}

func TestAuthenticateInvalidKey(t *testing.T) {
	_, p := newFreshserviceTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	err := p.Authenticate(context.Background())
	if err == nil {
		t.Fatal("Expected authentication error")
	}
	if !provider.IsAuthentication(err) {
		t.Errorf("Expected AuthenticationError, got %T", err)
	}

	result := p.TestConnection(context.Background())
	if result.Success {
		t.Error("TestConnection should report failure")
	}
}

func TestRateLimitRetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	_, p := newFreshserviceTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if n <= 2 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"departments": []}`))
	}))

	// Two 429s then a 200 must succeed transparently.
	companies, err := p.SyncCompanies(context.Background())
	if err != nil {
		t.Fatalf("SyncCompanies failed after retries: %v", err)
	}
	if companies != nil {
		t.Errorf("Expected empty listing, got %v", companies)
	}
	if calls.Load() != 3 {
		t.Errorf("Expected 3 calls, got %d", calls.Load())
	}
}

func TestRateLimitExhaustsRetries(t *testing.T) {
	_, p := newFreshserviceTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))

	_, err := p.SyncCompanies(context.Background())
	if err == nil {
		t.Fatal("Expected rate limit error")
	}
	if !provider.IsRateLimit(err) {
		t.Errorf("Expected RateLimitError, got %T: %v", err, err)
	}
}

func TestSyncCompaniesPagination(t *testing.T) {
	page1 := make([]map[string]any, fsPerPage)
	for i := range page1 {
		page1[i] = map[string]any{"id": i + 1, "name": "Company"}
	}
	_, p := newFreshserviceTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("page") {
		case "1":
			_ = json.NewEncoder(w).Encode(map[string]any{"departments": page1})
		case "2":
			_ = json.NewEncoder(w).Encode(map[string]any{"departments": []map[string]any{
				{"id": 999, "name": "Last Co", "custom_fields": map[string]any{"account_number": 123456.0}},
			}})
		default:
			_ = json.NewEncoder(w).Encode(map[string]any{"departments": []map[string]any{}})
		}
	}))
	p.limiter.SetLimit(1e9)

	companies, err := p.SyncCompanies(context.Background())
	if err != nil {
		t.Fatalf("SyncCompanies failed: %v", err)
	}
	if len(companies) != fsPerPage+1 {
		t.Fatalf("Expected %d companies, got %d", fsPerPage+1, len(companies))
	}

	last := companies[len(companies)-1]
	// Numeric custom fields must not grow a float suffix
	if last.AccountNumber() != "123456" {
		t.Errorf("Expected account number 123456, got %q", last.AccountNumber())
	}
}

func TestGetCompanyNotFound(t *testing.T) {
	_, p := newFreshserviceTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))

	c, err := p.GetCompany(context.Background(), 42)
	if err != nil {
		t.Fatalf("GetCompany failed: %v", err)
	}
	if c != nil {
		t.Errorf("Expected nil for missing company, got %+v", c)
	}
}

func TestBuildTicketQuery(t *testing.T) {
	cfg := &config.Config{}
	cfg.Freshservice.Domain = "test.freshservice.com"
	cfg.Freshservice.APIKey = "k"
	p, err := NewFreshserviceProvider(cfg)
	if err != nil {
		t.Fatalf("NewFreshserviceProvider failed: %v", err)
	}

	if got := p.buildTicketQuery(TicketQuery{FullHistory: true}); got != `"created_at:>'2000-01-01'"` {
		t.Errorf("Unexpected full-history query: %s", got)
	}

	since := time.Date(2026, 8, 1, 10, 30, 0, 0, time.UTC)
	if got := p.buildTicketQuery(TicketQuery{Since: &since}); got != `"updated_at:>'2026-08-01T10:30:00Z'"` {
		t.Errorf("Unexpected incremental query: %s", got)
	}

	got := p.buildTicketQuery(TicketQuery{})
	want := `"(status:2 OR status:3 OR status:8 OR status:9 OR status:10 OR status:13 OR status:19 OR status:23 OR status:26 OR status:27)"`
	if got != want {
		t.Errorf("Unexpected default query:\n got %s\nwant %s", got, want)
	}
}

func TestSyncTicketsHydratesDetail(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/tickets/filter", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("page") != "1" {
			_, _ = w.Write([]byte(`{"tickets": []}`))
			return
		}
		_, _ = w.Write([]byte(`{"tickets": [{"id": 101, "subject": "listing stub", "status": 2}]}`))
	})
	mux.HandleFunc("/tickets/101", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ticket": map[string]any{
				"id":          101,
				"subject":     "Printer on fire",
				"description": "<p>It is <b>burning</b></p>",
				"status":      2,
				"priority":    4,
				"updated_at":  "2026-08-01T10:00:00Z",
				"stats":       map[string]any{"first_responded_at": "2026-08-01T10:05:00Z"},
				"conversations": []map[string]any{
					{"id": 1, "body": "<div>public reply</div>", "private": false},
					{"id": 2, "body": "<div>internal note</div>", "private": true},
				},
			},
		})
	})
	mux.HandleFunc("/tickets/101/time_entries", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"time_entries": [{"id": 1, "time_spent": "01:30"}, {"id": 2, "time_spent": "00:45"}]}`))
	})
	_, p := newFreshserviceTestProvider(t, mux)
	p.limiter.SetLimit(1e9)

	tickets, err := p.SyncTickets(context.Background(), TicketQuery{})
	if err != nil {
		t.Fatalf("SyncTickets failed: %v", err)
	}
	if len(tickets) != 1 {
		t.Fatalf("Expected 1 ticket, got %d", len(tickets))
	}

	tk := tickets[0]
	if tk.Subject != "Printer on fire" {
		t.Errorf("Expected detail subject, got %q", tk.Subject)
	}
	if tk.Status != StatusOpen || tk.Priority != PriorityUrgent {
		t.Errorf("Unexpected normalization: %s / %s", tk.Status, tk.Priority)
	}
	if tk.DescriptionText != "It is burning" {
		t.Errorf("Expected stripped description, got %q", tk.DescriptionText)
	}
	if len(tk.Conversations) != 1 || len(tk.Notes) != 1 {
		t.Errorf("Expected private/public split, got %d/%d", len(tk.Conversations), len(tk.Notes))
	}
	if tk.TotalHoursSpent != 2.25 {
		t.Errorf("Expected 2.25 hours, got %f", tk.TotalHoursSpent)
	}
	// Open tickets have no closed timestamp
	if tk.ClosedAt != "" {
		t.Errorf("Expected empty closed_at, got %q", tk.ClosedAt)
	}
	if tk.FirstRespondedAt != "2026-08-01T10:05:00Z" {
		t.Errorf("Expected stats passthrough, got %q", tk.FirstRespondedAt)
	}
}

func TestGetTicketClosedAtOnlyWhenClosed(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/tickets/7", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ticket": {"id": 7, "status": 5, "updated_at": "2026-07-01T09:00:00Z"}}`))
	})
	mux.HandleFunc("/tickets/7/time_entries", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"time_entries": []}`))
	})
	_, p := newFreshserviceTestProvider(t, mux)

	tk, err := p.GetTicket(context.Background(), 7)
	if err != nil {
		t.Fatalf("GetTicket failed: %v", err)
	}
	if tk.Status != StatusClosed {
		t.Errorf("Expected closed, got %s", tk.Status)
	}
	if tk.ClosedAt != "2026-07-01T09:00:00Z" {
		t.Errorf("Expected closed_at from updated_at, got %q", tk.ClosedAt)
	}
}

func TestUpdateCompanyPutsCustomFields(t *testing.T) {
	var gotMethod string
	var gotBody map[string]map[string]string
	_, p := newFreshserviceTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	}))

	err := p.UpdateCompany(context.Background(), 55, map[string]string{"account_number": "123456"})
	if err != nil {
		t.Fatalf("UpdateCompany failed: %v", err)
	}
	if gotMethod != http.MethodPut {
		t.Errorf("Expected PUT, got %s", gotMethod)
	}
	if gotBody["custom_fields"]["account_number"] != "123456" {
		t.Errorf("Unexpected payload: %v", gotBody)
	}
}

func TestProviderImplementsOptionalCapabilities(t *testing.T) {
	cfg := &config.Config{}
	cfg.Freshservice.Domain = "test.freshservice.com"
	cfg.Freshservice.APIKey = "k"
	p, err := NewFreshserviceProvider(cfg)
	if err != nil {
		t.Fatalf("NewFreshserviceProvider failed: %v", err)
	}

	var iface Provider = p
	if _, ok := iface.(CompanyUpdater); !ok {
		t.Error("Freshservice should implement CompanyUpdater")
	}
	if _, ok := iface.(TimeEntrySource); !ok {
		t.Error("Freshservice should implement TimeEntrySource")
	}
	if _, ok := iface.(TicketCreator); ok {
		t.Error("Freshservice does not create tickets")
	}
}

func TestParseTimeSpent(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"01:30", 1.5},
		{"00:45", 0.75},
		{"02:00:00", 2},
		{"01:30:30", 1.5 + 30.0/3600},
		{"garbage", 0},
		{"", 0},
	}
	for _, tt := range tests {
		if got := parseTimeSpent(tt.in); got != tt.want {
			t.Errorf("parseTimeSpent(%q) = %f, want %f", tt.in, got, tt.want)
		}
	}
}

func TestStripHTML(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"<p>hello <b>world</b></p>", "hello world"},
		{"a &amp; b &lt;c&gt;", "a & b <c>"},
		{"line1<br>  line2\n\nline3", "line1 line2 line3"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := stripHTML(tt.in); got != tt.want {
			t.Errorf("stripHTML(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRegistry(t *testing.T) {
	cfg := &config.Config{}
	cfg.Freshservice.Domain = "test.freshservice.com"
	cfg.Freshservice.APIKey = "k"

	p, err := New("freshservice", cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if p.Name() != "freshservice" {
		t.Errorf("Expected freshservice, got %s", p.Name())
	}

	if _, err := New("nonexistent", cfg); err == nil {
		t.Error("Expected error for unknown provider")
	}

	names := List()
	if len(names) == 0 {
		t.Error("Expected at least one registered provider")
	}
}

func TestURLs(t *testing.T) {
	cfg := &config.Config{}
	cfg.Freshservice.Domain = "api.freshservice.com"
	cfg.Freshservice.APIKey = "k"
	cfg.Freshservice.WebDomain = "support.example.com"
	p, err := NewFreshserviceProvider(cfg)
	if err != nil {
		t.Fatalf("NewFreshserviceProvider failed: %v", err)
	}

	if got := p.TicketURL(42); got != "https://support.example.com/a/tickets/42" {
		t.Errorf("Unexpected ticket URL: %s", got)
	}
	if got := p.CompanyURL(7); got != "https://support.example.com/a/admin/departments/7" {
		t.Errorf("Unexpected company URL: %s", got)
	}
	if got := p.ContactURL(9); got != "https://support.example.com/a/requesters/9" {
		t.Errorf("Unexpected contact URL: %s", got)
	}
}

func TestAPIErrorSurface(t *testing.T) {
	_, p := newFreshserviceTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "server exploded", http.StatusInternalServerError)
	}))

	_, err := p.SyncAgents(context.Background())
	if err == nil {
		t.Fatal("Expected API error")
	}
	var apiErr *provider.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Expected APIError, got %T", err)
	}
	if apiErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("Expected 500, got %d", apiErr.StatusCode)
	}
}
