package rmm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hivematrix/codex/config"
	"github.com/hivematrix/codex/provider"
)

// newDattoTestServer serves a token endpoint plus the given API handlers.
func newDattoTestServer(t *testing.T, handlers map[string]http.HandlerFunc) (*httptest.Server, *DattoProvider) {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		if r.PostFormValue("grant_type") != "password" {
			http.Error(w, "wrong grant", http.StatusBadRequest)
			return
		}
		if r.PostFormValue("username") != "pub-key" || r.PostFormValue("password") != "sec-key" {
			http.Error(w, "bad credentials", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "test-token",
			"token_type":   "bearer",
			"expires_in":   3600,
		})
	})
	for pattern, h := range handlers {
		mux.HandleFunc(pattern, h)
	}

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	cfg := &config.Config{}
	cfg.Datto.APIEndpoint = server.URL
	cfg.Datto.PublicKey = "pub-key"
	cfg.Datto.SecretKey = "sec-key"

	p, err := NewDattoProvider(cfg)
	if err != nil {
		t.Fatalf("NewDattoProvider failed: %v", err)
	}
	return server, p
}

func TestNewDattoProviderRequiresCredentials(t *testing.T) {
	cfg := &config.Config{}
	cfg.Datto.APIEndpoint = "https://example.centrastage.net"

	if _, err := NewDattoProvider(cfg); err == nil {
		t.Error("Expected error for missing keys")
	}
}

func TestDattoAuthenticate(t *testing.T) {
	_, p := newDattoTestServer(t, nil)

	if err := p.Authenticate(context.Background()); err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	// Idempotent
	if err := p.Authenticate(context.Background()); err != nil {
		t.Fatalf("Second Authenticate failed: %v", err)
	}
}

func TestDattoAuthenticateBadCredentials(t *testing.T) {
	_, p := newDattoTestServer(t, nil)
	p.secretKey = "wrong"

	if err := p.Authenticate(context.Background()); err == nil {
		t.Error("Expected authentication error")
	}
}

func TestDattoTestConnection(t *testing.T) {
	_, p := newDattoTestServer(t, nil)

	result := p.TestConnection(context.Background())
	if !result.Success {
		t.Errorf("Expected success, got %q", result.Message)
	}
}

func TestDattoSyncSitesPagination(t *testing.T) {
	var server *httptest.Server
	handlers := map[string]http.HandlerFunc{
		"/api/v2/account/sites": func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer test-token" {
				http.Error(w, "no token", http.StatusUnauthorized)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			if r.URL.Query().Get("page") == "2" {
				_ = json.NewEncoder(w).Encode(map[string]any{
					"sites":       []map[string]any{{"uid": "site-3", "name": "Branch"}},
					"pageDetails": map[string]any{"nextPageUrl": ""},
				})
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"sites": []map[string]any{
					{"uid": "site-1", "name": "HQ", "devicesStatus": map[string]any{"numberOfDevices": 12}},
					{"uid": "site-2", "name": "Warehouse"},
				},
				"pageDetails": map[string]any{"nextPageUrl": server.URL + "/api/v2/account/sites?page=2"},
			})
		},
	}
	server, p := newDattoTestServer(t, handlers)

	sites, err := p.SyncSites(context.Background())
	if err != nil {
		t.Fatalf("SyncSites failed: %v", err)
	}
	if len(sites) != 3 {
		t.Fatalf("Expected 3 sites across pages, got %d", len(sites))
	}
	if sites[0].UID != "site-1" || sites[0].NumberOfDevices != 12 {
		t.Errorf("Unexpected first site: %+v", sites[0])
	}
	if sites[2].Name != "Branch" {
		t.Errorf("Expected page-2 site last, got %+v", sites[2])
	}
}

func TestDattoGetSiteNotFound(t *testing.T) {
	handlers := map[string]http.HandlerFunc{
		"/api/v2/site/": func(w http.ResponseWriter, r *http.Request) {
			http.NotFound(w, r)
		},
	}
	_, p := newDattoTestServer(t, handlers)

	site, err := p.GetSite(context.Background(), "missing-uid")
	if err != nil {
		t.Fatalf("GetSite failed: %v", err)
	}
	if site != nil {
		t.Errorf("Expected nil for missing site, got %+v", site)
	}
}

func TestDattoSiteVariables(t *testing.T) {
	var putBody map[string]string
	handlers := map[string]http.HandlerFunc{
		"/api/v2/site/site-1/variables": func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{
				"variables": []map[string]any{
					{"name": "AccountNumber", "value": "123456"},
					{"name": "Other", "value": "x"},
				},
			})
		},
		"/api/v2/site/site-1/variable": func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPut {
				http.Error(w, "wrong method", http.StatusMethodNotAllowed)
				return
			}
			_ = json.NewDecoder(r.Body).Decode(&putBody)
			w.WriteHeader(http.StatusOK)
		},
	}
	_, p := newDattoTestServer(t, handlers)

	got, err := p.GetSiteVariable(context.Background(), "site-1", "AccountNumber")
	if err != nil {
		t.Fatalf("GetSiteVariable failed: %v", err)
	}
	if got != "123456" {
		t.Errorf("Expected 123456, got %q", got)
	}

	got, err = p.GetSiteVariable(context.Background(), "site-1", "Nonexistent")
	if err != nil {
		t.Fatalf("GetSiteVariable failed: %v", err)
	}
	if got != "" {
		t.Errorf("Expected empty value for unset variable, got %q", got)
	}

	if err := p.SetSiteVariable(context.Background(), "site-1", "AccountNumber", "654321"); err != nil {
		t.Fatalf("SetSiteVariable failed: %v", err)
	}
	if putBody["name"] != "AccountNumber" || putBody["value"] != "654321" {
		t.Errorf("Unexpected PUT payload: %v", putBody)
	}
}

func TestDattoSyncDevicesNormalization(t *testing.T) {
	lastSeen := int64(1755000000000) // ms epoch
	handlers := map[string]http.HandlerFunc{
		"/api/v2/site/site-1/devices": func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{
				"devices": []map[string]any{
					{
						"uid":             "dev-1",
						"hostname":        "ESX-HOST-01",
						"siteName":        "HQ",
						"operatingSystem": "VMware ESXi 7",
						"online":          true,
						"lastSeen":        lastSeen,
						"deviceType":      map[string]any{"category": "ESXI Host"},
						"patchManagement": map[string]any{"patchStatus": "Up to Date"},
						"antivirus":       map[string]any{"antivirusProduct": "Defender"},
						"udf": map[string]any{
							"udf4": "admin1;admin2",
							"udf6": "2199023255552",
						},
					},
					{
						"uid":      "dev-2",
						"hostname": "WS-05",
						"deviceType": map[string]any{
							"category": "Workstation",
						},
					},
				},
				"pageDetails": map[string]any{"nextPageUrl": ""},
			})
		},
	}
	_, p := newDattoTestServer(t, handlers)

	devices, err := p.SyncDevices(context.Background(), "site-1")
	if err != nil {
		t.Fatalf("SyncDevices failed: %v", err)
	}
	if len(devices) != 2 {
		t.Fatalf("Expected 2 devices, got %d", len(devices))
	}

	esx := devices[0]
	if esx.DeviceType != DeviceServer {
		t.Errorf("ESXI Host should normalize to server, got %s", esx.DeviceType)
	}
	if esx.PatchStatus != PatchUpToDate {
		t.Errorf("Expected up_to_date, got %s", esx.PatchStatus)
	}
	if esx.AntivirusProduct != "Defender" {
		t.Errorf("Expected Defender, got %s", esx.AntivirusProduct)
	}
	if esx.LastSeen == nil || esx.LastSeen.UnixMilli() != lastSeen {
		t.Errorf("Expected lastSeen from ms epoch, got %v", esx.LastSeen)
	}
	if esx.UDF["enabled_administrators"] != "admin1;admin2" {
		t.Errorf("Expected udf4 alias, got %v", esx.UDF)
	}
	// 2 TiB in bytes
	if esx.UDF["backup_usage_tb"] != "2.00" {
		t.Errorf("Expected backup usage 2.00 TB, got %q", esx.UDF["backup_usage_tb"])
	}

	ws := devices[1]
	if ws.DeviceType != DeviceWorkstation {
		t.Errorf("Expected workstation, got %s", ws.DeviceType)
	}
	if ws.LastSeen != nil {
		t.Errorf("Expected nil lastSeen, got %v", ws.LastSeen)
	}
	if ws.PatchStatus != PatchUnknown {
		t.Errorf("Expected unknown patch status, got %s", ws.PatchStatus)
	}
}

func TestDattoGetDeviceNotSupported(t *testing.T) {
	_, p := newDattoTestServer(t, nil)

	if _, err := p.GetDevice(context.Background(), "dev-1"); err == nil {
		t.Error("Expected not-supported error")
	}
}

func TestDattoRateLimitRetriesThenSucceeds(t *testing.T) {
	calls := 0
	handlers := map[string]http.HandlerFunc{
		"/api/v2/site/site-1": func(w http.ResponseWriter, r *http.Request) {
			calls++
			if calls <= 2 {
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{
				"site": map[string]any{"uid": "site-1", "name": "HQ"},
			})
		},
	}
	_, p := newDattoTestServer(t, handlers)
	var slept []time.Duration
	p.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	site, err := p.GetSite(context.Background(), "site-1")
	if err != nil {
		t.Fatalf("GetSite failed: %v", err)
	}
	if site == nil || site.Name != "HQ" {
		t.Errorf("Unexpected site: %+v", site)
	}
	if calls != 3 {
		t.Errorf("Expected 3 calls, got %d", calls)
	}
	// Retry-After honored over the default delay
	if len(slept) != 2 || slept[0] != time.Second {
		t.Errorf("Unexpected backoff delays: %v", slept)
	}
}

func TestDattoRateLimitExhaustsRetries(t *testing.T) {
	calls := 0
	handlers := map[string]http.HandlerFunc{
		"/api/v2/site/site-1": func(w http.ResponseWriter, r *http.Request) {
			calls++
			w.WriteHeader(http.StatusTooManyRequests)
		},
	}
	_, p := newDattoTestServer(t, handlers)
	p.sleep = func(ctx context.Context, d time.Duration) error { return nil }

	_, err := p.GetSite(context.Background(), "site-1")
	var rle *provider.RateLimitError
	if !errors.As(err, &rle) {
		t.Fatalf("Expected RateLimitError, got %v", err)
	}
	if calls != dattoMaxRetries {
		t.Errorf("Expected %d calls, got %d", dattoMaxRetries, calls)
	}
}
