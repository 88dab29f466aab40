// ABOUTME: RMM provider contract and registry
// ABOUTME: Defines the interface every device-monitoring adapter implements plus optional capabilities
package rmm

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/hivematrix/codex/config"
	"github.com/hivematrix/codex/provider"
)

// SiteRecord is a normalized monitored site listing entry. Sites group
// devices; the account number lives in a site variable, not in the site
// record itself.
type SiteRecord struct {
	UID             string
	Name            string
	Description     string
	NumberOfDevices int
	OnDemand        bool
	PortalURL       string
}

// DeviceRecord is a normalized device with current telemetry. Identity
// within a company is the hostname; the vendor uid is kept for URLs and
// debugging only.
type DeviceRecord struct {
	UID              string
	Hostname         string
	SiteUID          string
	SiteName         string
	DeviceType       string
	OperatingSystem  string
	LastLoggedInUser string
	IntIPAddress     string
	ExtIPAddress     string
	Domain           string
	Online           bool
	LastSeen         *time.Time
	LastReboot       *time.Time
	LastAuditDate    *time.Time
	PatchStatus      string
	AntivirusProduct string
	Description      string
	PortalURL        string
	WebRemoteURL     string
	UDF              map[string]string
}

// Provider is the contract every RMM adapter implements. SyncSites and
// SyncDevices drain all pagination; Get methods return (nil, nil) when the
// record does not exist.
type Provider interface {
	Name() string
	DisplayName() string

	// Authenticate establishes a session. Idempotent; safe to call again
	// to refresh a token.
	Authenticate(ctx context.Context) error

	// TestConnection is a non-destructive probe. It never returns an error;
	// failures are reported in the result.
	TestConnection(ctx context.Context) provider.TestResult

	SyncSites(ctx context.Context) ([]SiteRecord, error)
	GetSite(ctx context.Context, siteUID string) (*SiteRecord, error)

	// Site variables are string key/value pairs attached to a site. The
	// account number linking a site to a company lives here.
	GetSiteVariable(ctx context.Context, siteUID, name string) (string, error)
	SetSiteVariable(ctx context.Context, siteUID, name, value string) error

	SyncDevices(ctx context.Context, siteUID string) ([]DeviceRecord, error)
	GetDevice(ctx context.Context, deviceUID string) (*DeviceRecord, error)
}

// Optional capabilities, probed with type assertions.

// ScriptExecutor can run a quick job against a device.
type ScriptExecutor interface {
	RunScript(ctx context.Context, deviceUID, scriptID string, variables map[string]string) error
}

// SoftwareInventory can list installed software on a device.
type SoftwareInventory interface {
	GetDeviceSoftware(ctx context.Context, deviceUID string) ([]SoftwareRecord, error)
}

// SoftwareRecord is one installed package on a device.
type SoftwareRecord struct {
	Name    string
	Version string
}

var registry = map[string]func(cfg *config.Config) (Provider, error){
	"datto": func(cfg *config.Config) (Provider, error) {
		return NewDattoProvider(cfg)
	},
}

// New returns an RMM provider instance by name.
func New(name string, cfg *config.Config) (Provider, error) {
	ctor, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown RMM provider: %s (available: %v)", name, List())
	}
	return ctor(cfg)
}

// List returns the registered RMM provider names, sorted.
func List() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
