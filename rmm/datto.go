// ABOUTME: Datto RMM adapter
// ABOUTME: OAuth2 password grant plus nextPageUrl pagination over sites, variables, and devices
package rmm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/hivematrix/codex/config"
	"github.com/hivematrix/codex/provider"
)

const (
	dattoName        = "datto"
	dattoDisplayName = "Datto RMM"

	dattoMaxRetries        = 3
	dattoDefaultRetryAfter = 10 * time.Second
)

// DattoProvider implements Provider against the Datto RMM v2 API. Tokens
// come from the platform's OAuth2 password grant with the shared public
// client; the oauth2 token source refreshes transparently.
type DattoProvider struct {
	apiEndpoint string
	publicKey   string
	secretKey   string
	oauthCfg    *oauth2.Config
	client      *http.Client
	limiter     *rate.Limiter

	// Test hook
	sleep func(ctx context.Context, d time.Duration) error
}

// NewDattoProvider builds an adapter from configuration.
func NewDattoProvider(cfg *config.Config) (*DattoProvider, error) {
	dc := cfg.Datto
	if dc.APIEndpoint == "" || dc.PublicKey == "" || dc.SecretKey == "" {
		return nil, &provider.AuthenticationError{
			Provider: dattoName,
			Message:  "missing api endpoint or keys in configuration",
		}
	}

	return &DattoProvider{
		apiEndpoint: dc.APIEndpoint,
		publicKey:   dc.PublicKey,
		secretKey:   dc.SecretKey,
		oauthCfg: &oauth2.Config{
			// Datto's token endpoint authenticates all API consumers as the
			// same public client; real identity is in the password grant.
			ClientID:     "public-client",
			ClientSecret: "public",
			Endpoint: oauth2.Endpoint{
				TokenURL:  dc.APIEndpoint + "/auth/oauth/token",
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		limiter: rate.NewLimiter(rate.Every(500*time.Millisecond), 1),
		sleep:   dattoSleep,
	}, nil
}

func (d *DattoProvider) Name() string        { return dattoName }
func (d *DattoProvider) DisplayName() string { return dattoDisplayName }

// Authenticate exchanges the API keys for a bearer token and keeps an
// auto-refreshing client. Idempotent.
func (d *DattoProvider) Authenticate(ctx context.Context) error {
	if d.client != nil {
		return nil
	}

	token, err := d.oauthCfg.PasswordCredentialsToken(ctx, d.publicKey, d.secretKey)
	if err != nil {
		return &provider.AuthenticationError{Provider: dattoName, Message: "token exchange failed", Err: err}
	}

	d.client = oauth2.NewClient(ctx, d.oauthCfg.TokenSource(ctx, token))
	d.client.Timeout = 90 * time.Second
	return nil
}

// TestConnection probes the API without raising.
func (d *DattoProvider) TestConnection(ctx context.Context) provider.TestResult {
	if err := d.Authenticate(ctx); err != nil {
		return provider.TestResult{Success: false, Message: err.Error()}
	}
	return provider.TestResult{Success: true, Message: "Connected to Datto RMM"}
}

// Sites

type dattoSite struct {
	UID             string `json:"uid"`
	Name            string `json:"name"`
	Description     string `json:"description"`
	DevicesStatus   *struct {
		NumberOfDevices int `json:"numberOfDevices"`
	} `json:"devicesStatus"`
	OnDemand  bool   `json:"onDemand"`
	PortalURL string `json:"portalUrl"`
}

type dattoPageDetails struct {
	NextPageURL string `json:"nextPageUrl"`
}

// SyncSites fetches all sites, following nextPageUrl until exhausted.
func (d *DattoProvider) SyncSites(ctx context.Context) ([]SiteRecord, error) {
	if err := d.Authenticate(ctx); err != nil {
		return nil, err
	}

	var sites []SiteRecord
	nextURL := d.apiEndpoint + "/api/v2/account/sites"
	for nextURL != "" {
		var out struct {
			Sites       []dattoSite      `json:"sites"`
			PageDetails dattoPageDetails `json:"pageDetails"`
		}
		if err := d.apiGet(ctx, nextURL, &out); err != nil {
			return nil, err
		}

		for i := range out.Sites {
			sites = append(sites, normalizeSite(&out.Sites[i]))
		}

		nextURL = out.PageDetails.NextPageURL
		if nextURL != "" {
			if err := d.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}
	}

	return sites, nil
}

// GetSite fetches one site by uid; (nil, nil) when absent.
func (d *DattoProvider) GetSite(ctx context.Context, siteUID string) (*SiteRecord, error) {
	if err := d.Authenticate(ctx); err != nil {
		return nil, err
	}

	var out struct {
		Site *dattoSite `json:"site"`
	}
	err := d.apiGet(ctx, d.apiEndpoint+"/api/v2/site/"+siteUID, &out)
	if errors.Is(err, errDattoNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if out.Site == nil {
		return nil, nil
	}
	rec := normalizeSite(out.Site)
	return &rec, nil
}

func normalizeSite(s *dattoSite) SiteRecord {
	numDevices := 0
	if s.DevicesStatus != nil {
		numDevices = s.DevicesStatus.NumberOfDevices
	}
	return SiteRecord{
		UID:             s.UID,
		Name:            s.Name,
		Description:     s.Description,
		NumberOfDevices: numDevices,
		OnDemand:        s.OnDemand,
		PortalURL:       s.PortalURL,
	}
}

// Site variables

// GetSiteVariable reads one site variable by name. Returns "" when the
// variable is not set.
func (d *DattoProvider) GetSiteVariable(ctx context.Context, siteUID, name string) (string, error) {
	if err := d.Authenticate(ctx); err != nil {
		return "", err
	}

	var out struct {
		Variables []struct {
			Name  string `json:"name"`
			Value string `json:"value"`
		} `json:"variables"`
	}
	err := d.apiGet(ctx, d.apiEndpoint+"/api/v2/site/"+siteUID+"/variables", &out)
	if errors.Is(err, errDattoNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}

	for _, v := range out.Variables {
		if v.Name == name {
			return v.Value, nil
		}
	}
	return "", nil
}

// SetSiteVariable writes one site variable. Not retried.
func (d *DattoProvider) SetSiteVariable(ctx context.Context, siteUID, name, value string) error {
	if err := d.Authenticate(ctx); err != nil {
		return err
	}

	payload, err := json.Marshal(map[string]string{"name": name, "value": value})
	if err != nil {
		return &provider.APIError{Provider: dattoName, Message: "encoding payload", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut,
		d.apiEndpoint+"/api/v2/site/"+siteUID+"/variable", bytes.NewReader(payload))
	if err != nil {
		return &provider.APIError{Provider: dattoName, Message: "building request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return &provider.APIError{Provider: dattoName, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusNoContent {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &provider.APIError{Provider: dattoName, StatusCode: resp.StatusCode, Message: string(body)}
	}
	return nil
}

// Devices

type dattoDevice struct {
	UID              string `json:"uid"`
	Hostname         string `json:"hostname"`
	SiteName         string `json:"siteName"`
	OperatingSystem  string `json:"operatingSystem"`
	LastLoggedInUser string `json:"lastLoggedInUser"`
	IntIPAddress     string `json:"intIpAddress"`
	ExtIPAddress     string `json:"extIpAddress"`
	Domain           string `json:"domain"`
	Online           bool   `json:"online"`
	LastSeen         *int64 `json:"lastSeen"`
	LastReboot       *int64 `json:"lastReboot"`
	LastAuditDate    *int64 `json:"lastAuditDate"`
	Description      string `json:"description"`
	PortalURL        string `json:"portalUrl"`
	WebRemoteURL     string `json:"webRemoteUrl"`
	DeviceType       *struct {
		Category string `json:"category"`
		Type     string `json:"type"`
	} `json:"deviceType"`
	PatchManagement *struct {
		PatchStatus string `json:"patchStatus"`
	} `json:"patchManagement"`
	Antivirus *struct {
		AntivirusProduct string `json:"antivirusProduct"`
	} `json:"antivirus"`
	UDF map[string]string `json:"udf"`
}

// SyncDevices fetches all devices for a site, following nextPageUrl.
func (d *DattoProvider) SyncDevices(ctx context.Context, siteUID string) ([]DeviceRecord, error) {
	if err := d.Authenticate(ctx); err != nil {
		return nil, err
	}

	var devices []DeviceRecord
	nextURL := d.apiEndpoint + "/api/v2/site/" + siteUID + "/devices"
	for nextURL != "" {
		var out struct {
			Devices     []dattoDevice    `json:"devices"`
			PageDetails dattoPageDetails `json:"pageDetails"`
		}
		if err := d.apiGet(ctx, nextURL, &out); err != nil {
			return nil, err
		}

		for i := range out.Devices {
			devices = append(devices, normalizeDevice(&out.Devices[i], siteUID))
		}

		nextURL = out.PageDetails.NextPageURL
		if nextURL != "" {
			if err := d.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}
	}

	return devices, nil
}

// GetDevice is not supported: the Datto API only exposes devices through
// their site, so there is no direct device-by-uid lookup.
func (d *DattoProvider) GetDevice(ctx context.Context, deviceUID string) (*DeviceRecord, error) {
	return nil, fmt.Errorf("datto: device lookup requires site context: %w", provider.ErrNotSupported)
}

func normalizeDevice(dev *dattoDevice, siteUID string) DeviceRecord {
	deviceType := ""
	if dev.DeviceType != nil {
		deviceType = dev.DeviceType.Category
	}
	patchStatus := ""
	if dev.PatchManagement != nil {
		patchStatus = dev.PatchManagement.PatchStatus
	}
	antivirus := ""
	if dev.Antivirus != nil {
		antivirus = dev.Antivirus.AntivirusProduct
	}

	udf := make(map[string]string)
	for k, v := range dev.UDF {
		if v != "" {
			udf[k] = v
		}
	}
	// Named aliases for the UDF slots this fleet actually uses
	if v, ok := dev.UDF["udf4"]; ok && v != "" {
		udf["enabled_administrators"] = v
	}
	if v, ok := dev.UDF["udf6"]; ok && v != "" {
		if tb := bytesToTB(v); tb != "" {
			udf["backup_usage_tb"] = tb
		}
	}
	if v, ok := dev.UDF["udf7"]; ok && v != "" {
		udf["device_type_udf"] = v
	}

	return DeviceRecord{
		UID:              dev.UID,
		Hostname:         dev.Hostname,
		SiteUID:          siteUID,
		SiteName:         dev.SiteName,
		DeviceType:       MapDeviceType(dattoName, deviceType),
		OperatingSystem:  dev.OperatingSystem,
		LastLoggedInUser: dev.LastLoggedInUser,
		IntIPAddress:     dev.IntIPAddress,
		ExtIPAddress:     dev.ExtIPAddress,
		Domain:           dev.Domain,
		Online:           dev.Online,
		LastSeen:         msEpochTime(dev.LastSeen),
		LastReboot:       msEpochTime(dev.LastReboot),
		LastAuditDate:    msEpochTime(dev.LastAuditDate),
		PatchStatus:      MapPatchStatus(dattoName, patchStatus),
		AntivirusProduct: antivirus,
		Description:      dev.Description,
		PortalURL:        dev.PortalURL,
		WebRemoteURL:     dev.WebRemoteURL,
		UDF:              udf,
	}
}

// msEpochTime converts a millisecond epoch value to UTC time. Zero or
// missing values map to nil.
func msEpochTime(ms *int64) *time.Time {
	if ms == nil || *ms == 0 {
		return nil
	}
	t := time.UnixMilli(*ms).UTC()
	return &t
}

// bytesToTB renders a byte count as terabytes with two decimals, or ""
// when the value is not numeric.
func bytesToTB(b string) string {
	n, err := strconv.ParseFloat(b, 64)
	if err != nil || n == 0 {
		return ""
	}
	return strconv.FormatFloat(n/(1<<40), 'f', 2, 64)
}

// Transport

var errDattoNotFound = errors.New("not found")

// apiGet performs a GET with bounded retries on 429, honoring Retry-After.
// Other failures surface immediately; mid-pagination callers raise rather
// than silently truncating a listing.
func (d *DattoProvider) apiGet(ctx context.Context, url string, out any) error {
	rateLimited := 0
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return &provider.APIError{Provider: dattoName, Message: "building request", Err: err}
		}
		req.Header.Set("Accept", "application/json")

		resp, err := d.client.Do(req)
		if err != nil {
			return &provider.APIError{Provider: dattoName, Message: "request failed", Err: err}
		}

		switch resp.StatusCode {
		case http.StatusOK:
			err := json.NewDecoder(resp.Body).Decode(out)
			resp.Body.Close()
			if err != nil {
				return &provider.APIError{Provider: dattoName, Message: "decoding response", Err: err}
			}
			return nil
		case http.StatusUnauthorized:
			resp.Body.Close()
			return &provider.AuthenticationError{Provider: dattoName, Message: "token rejected"}
		case http.StatusNotFound:
			resp.Body.Close()
			return errDattoNotFound
		case http.StatusTooManyRequests:
			delay := dattoRetryAfterDelay(resp)
			resp.Body.Close()
			rateLimited++
			if rateLimited >= dattoMaxRetries {
				return &provider.RateLimitError{Provider: dattoName, Retries: rateLimited}
			}
			log.WithFields(log.Fields{"provider": dattoName, "delay": delay}).Warn("rate limit hit, backing off")
			if err := d.sleep(ctx, delay); err != nil {
				return err
			}
		default:
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			return &provider.APIError{Provider: dattoName, StatusCode: resp.StatusCode, Message: string(body)}
		}
	}
}

func dattoRetryAfterDelay(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return dattoDefaultRetryAfter
}

// dattoSleep sleeps for d or until the context is done.
func dattoSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
