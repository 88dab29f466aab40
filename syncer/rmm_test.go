package syncer

import (
	"context"
	"errors"
	"testing"

	"github.com/hivematrix/codex/db"
	"github.com/hivematrix/codex/models"
	"github.com/hivematrix/codex/provider"
	"github.com/hivematrix/codex/rmm"
)

// fakeRMM is an in-memory RMM provider for orchestrator tests.
type fakeRMM struct {
	name      string
	sites     []rmm.SiteRecord
	variables map[string]map[string]string // siteUID -> name -> value
	devices   map[string][]rmm.DeviceRecord
	deviceErr map[string]error
	setCalls  []string // "siteUID=value"
	sitesErr  error
}

func (f *fakeRMM) Name() string                           { return f.name }
func (f *fakeRMM) DisplayName() string                    { return "Fake RMM" }
func (f *fakeRMM) Authenticate(ctx context.Context) error { return nil }
func (f *fakeRMM) TestConnection(ctx context.Context) provider.TestResult {
	return provider.TestResult{Success: true}
}

func (f *fakeRMM) SyncSites(ctx context.Context) ([]rmm.SiteRecord, error) {
	if f.sitesErr != nil {
		return nil, f.sitesErr
	}
	return f.sites, nil
}

func (f *fakeRMM) GetSite(ctx context.Context, siteUID string) (*rmm.SiteRecord, error) {
	for i := range f.sites {
		if f.sites[i].UID == siteUID {
			return &f.sites[i], nil
		}
	}
	return nil, nil
}

func (f *fakeRMM) GetSiteVariable(ctx context.Context, siteUID, name string) (string, error) {
	return f.variables[siteUID][name], nil
}

func (f *fakeRMM) SetSiteVariable(ctx context.Context, siteUID, name, value string) error {
	if f.variables == nil {
		f.variables = make(map[string]map[string]string)
	}
	if f.variables[siteUID] == nil {
		f.variables[siteUID] = make(map[string]string)
	}
	f.variables[siteUID][name] = value
	f.setCalls = append(f.setCalls, siteUID+"="+value)
	return nil
}

func (f *fakeRMM) SyncDevices(ctx context.Context, siteUID string) ([]rmm.DeviceRecord, error) {
	if err := f.deviceErr[siteUID]; err != nil {
		return nil, err
	}
	return f.devices[siteUID], nil
}

func (f *fakeRMM) GetDevice(ctx context.Context, deviceUID string) (*rmm.DeviceRecord, error) {
	return nil, nil
}

func mustUpsertCompany(t *testing.T, s *Syncer, acct, name string, externalID int64) {
	t.Helper()
	err := db.UpsertCompany(s.db, &models.Company{
		AccountNumber:  acct,
		Name:           name,
		ExternalID:     externalID,
		ExternalSource: "freshservice",
	})
	if err != nil {
		t.Fatalf("seed company failed: %v", err)
	}
}

func TestSyncAssetsGroupsByAccountNumber(t *testing.T) {
	s, database := newTestSyncer(t)
	mustUpsertCompany(t, s, "111111", "Acme", 10)
	mustUpsertCompany(t, s, "222222", "Globex", 20)

	r := &fakeRMM{
		name: "datto",
		sites: []rmm.SiteRecord{
			{UID: "site-a", Name: "Acme HQ"},
			{UID: "site-b", Name: "Acme Warehouse"},
			{UID: "site-c", Name: "Globex"},
			{UID: "site-x", Name: "Unmapped"},
		},
		variables: map[string]map[string]string{
			"site-a": {AccountNumberVariable: "111111"},
			"site-b": {AccountNumberVariable: "111111"},
			"site-c": {AccountNumberVariable: "222222"},
		},
		devices: map[string][]rmm.DeviceRecord{
			"site-a": {{UID: "d1", Hostname: "ACME-WS-01", DeviceType: rmm.DeviceWorkstation}},
			"site-b": {{UID: "d2", Hostname: "ACME-SRV-01", DeviceType: rmm.DeviceServer}},
			"site-c": {{UID: "d3", Hostname: "GLX-WS-01"}},
		},
	}

	result, err := s.SyncAssets(context.Background(), r)
	if err != nil {
		t.Fatalf("SyncAssets failed: %v", err)
	}
	if result.Synced != 3 {
		t.Errorf("Expected 3 assets synced, got %d", result.Synced)
	}
	if result.Skipped != 1 {
		t.Errorf("Expected unmapped site skipped, got %d", result.Skipped)
	}

	// Multi-site company has assets from both sites
	assets, err := db.ListAssetsForCompany(database, "111111")
	if err != nil {
		t.Fatalf("ListAssetsForCompany failed: %v", err)
	}
	if len(assets) != 2 {
		t.Errorf("Expected 2 assets for Acme, got %d", len(assets))
	}

	links, err := db.ListSiteLinksForCompany(database, "111111")
	if err != nil {
		t.Fatalf("ListSiteLinksForCompany failed: %v", err)
	}
	if len(links) != 2 {
		t.Errorf("Expected 2 site links for Acme, got %d", len(links))
	}
}

func TestSyncAssetsDeletesByHostnameAbsence(t *testing.T) {
	s, database := newTestSyncer(t)
	mustUpsertCompany(t, s, "111111", "Acme", 10)

	r := &fakeRMM{
		name:  "datto",
		sites: []rmm.SiteRecord{{UID: "site-a", Name: "Acme HQ"}},
		variables: map[string]map[string]string{
			"site-a": {AccountNumberVariable: "111111"},
		},
		devices: map[string][]rmm.DeviceRecord{
			"site-a": {
				{UID: "d1", Hostname: "WS-01"},
				{UID: "d2", Hostname: "WS-02"},
			},
		},
	}

	if _, err := s.SyncAssets(context.Background(), r); err != nil {
		t.Fatalf("First sync failed: %v", err)
	}

	// WS-02 retired
	r.devices["site-a"] = r.devices["site-a"][:1]
	result, err := s.SyncAssets(context.Background(), r)
	if err != nil {
		t.Fatalf("Second sync failed: %v", err)
	}
	if result.Deleted != 1 {
		t.Errorf("Expected 1 asset deleted, got %d", result.Deleted)
	}

	gone, err := db.GetAsset(database, "111111", "WS-02")
	if err != nil {
		t.Fatalf("GetAsset failed: %v", err)
	}
	if gone != nil {
		t.Error("Expected WS-02 removed")
	}
}

func TestSyncAssetsPartialFleetDeletesNothing(t *testing.T) {
	s, database := newTestSyncer(t)
	mustUpsertCompany(t, s, "111111", "Acme", 10)

	r := &fakeRMM{
		name: "datto",
		sites: []rmm.SiteRecord{
			{UID: "site-a", Name: "Acme HQ"},
			{UID: "site-b", Name: "Acme Warehouse"},
		},
		variables: map[string]map[string]string{
			"site-a": {AccountNumberVariable: "111111"},
			"site-b": {AccountNumberVariable: "111111"},
		},
		devices: map[string][]rmm.DeviceRecord{
			"site-a": {{UID: "d1", Hostname: "WS-01"}},
			"site-b": {{UID: "d2", Hostname: "WS-02"}},
		},
	}

	if _, err := s.SyncAssets(context.Background(), r); err != nil {
		t.Fatalf("Seed sync failed: %v", err)
	}

	// One site's device listing fails; its hosts must not be deleted by
	// their absence from the other site.
	r.deviceErr = map[string]error{"site-b": errors.New("API down")}
	result, err := s.SyncAssets(context.Background(), r)
	if err != nil {
		t.Fatalf("SyncAssets failed: %v", err)
	}
	if result.Deleted != 0 {
		t.Errorf("Partial fleet must delete nothing, got %d", result.Deleted)
	}
	if len(result.Errors) == 0 {
		t.Error("Expected device fetch error recorded")
	}

	still, err := db.GetAsset(database, "111111", "WS-02")
	if err != nil {
		t.Fatalf("GetAsset failed: %v", err)
	}
	if still == nil {
		t.Error("WS-02 must survive a partial fleet fetch")
	}
}

func TestSyncAssetsSkipsUnknownCompany(t *testing.T) {
	s, _ := newTestSyncer(t)

	r := &fakeRMM{
		name:  "datto",
		sites: []rmm.SiteRecord{{UID: "site-a", Name: "Mystery Site"}},
		variables: map[string]map[string]string{
			"site-a": {AccountNumberVariable: "999999"},
		},
	}

	result, err := s.SyncAssets(context.Background(), r)
	if err != nil {
		t.Fatalf("SyncAssets failed: %v", err)
	}
	if result.Skipped != 1 {
		t.Errorf("Expected unknown-company site skipped, got %+v", result)
	}
}
