// ABOUTME: Typed runtime configuration loaded once at startup
// ABOUTME: Populates provider credentials and sync tuning from the environment
package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// FreshserviceConfig holds Freshservice PSA credentials.
type FreshserviceConfig struct {
	Domain    string `envconfig:"DOMAIN"`
	APIKey    string `envconfig:"API_KEY"`
	WebDomain string `envconfig:"WEB_DOMAIN"`
}

// DattoConfig holds Datto RMM API credentials.
type DattoConfig struct {
	APIEndpoint string `envconfig:"API_ENDPOINT"`
	PublicKey   string `envconfig:"PUBLIC_KEY"`
	SecretKey   string `envconfig:"SECRET_KEY"`
}

// Config is the process-wide configuration. All fields are typed; optional
// values are explicit defaults rather than stringly-typed fallbacks.
type Config struct {
	DatabasePath string `envconfig:"DATABASE_PATH"`

	// Default provider per family, used when a caller does not name one.
	PSAProvider string `envconfig:"PSA_PROVIDER" default:"freshservice"`
	RMMProvider string `envconfig:"RMM_PROVIDER" default:"datto"`

	// Enabled providers for scheduled syncs.
	PSAEnabled []string `envconfig:"PSA_ENABLED" default:"freshservice"`
	RMMEnabled []string `envconfig:"RMM_ENABLED" default:"datto"`

	// SyncInterval is the scheduled sync period; ReconcileEvery makes every
	// Nth scheduled ticket sync run a full reconciliation pass. Both are
	// rate-limit tuning knobs, not correctness knobs.
	SyncInterval   time.Duration `envconfig:"SYNC_INTERVAL" default:"6m"`
	ReconcileEvery int64         `envconfig:"RECONCILE_EVERY" default:"2"`
	JobTimeout     time.Duration `envconfig:"JOB_TIMEOUT" default:"2h"`
	RunOnStartup   bool          `envconfig:"RUN_ON_STARTUP" default:"false"`

	Freshservice FreshserviceConfig `envconfig:"FRESHSERVICE"`
	Datto        DattoConfig        `envconfig:"DATTO"`
}

// Load reads .env (if present) and the environment into a Config. The
// database path defaults to the XDG data directory.
func Load() (*Config, error) {
	// Missing .env is fine; explicit environment always wins.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("CODEX", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process configuration: %w", err)
	}

	if cfg.DatabasePath == "" {
		cfg.DatabasePath = filepath.Join(xdg.DataHome, "codex", "codex.db")
	}

	if cfg.ReconcileEvery < 1 {
		return nil, fmt.Errorf("reconcile interval must be at least 1, got %d", cfg.ReconcileEvery)
	}
	if cfg.SyncInterval < 5*time.Minute {
		return nil, fmt.Errorf("sync interval must be at least 5m, got %s", cfg.SyncInterval)
	}

	return &cfg, nil
}
