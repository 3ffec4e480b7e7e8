package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/spf13/viper"

	"github.com/Veraticus/ledgersync/internal/common"
)

// Defaults applied when a key is absent from the config file and environment.
const (
	DefaultBaseURL       = "https://shmr-finance.ru/api/v1/"
	DefaultTimeout       = 20 * time.Second
	DefaultDatabasePath  = "$HOME/.local/share/ledgersync/ledgersync.db"
	DefaultProbeInterval = 15 * time.Second
)

// Config is the typed view of the application configuration.
type Config struct {
	BaseURL       string
	Token         string
	DatabasePath  string
	Timeout       time.Duration
	ProbeInterval time.Duration
	StartOffline  bool
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("api.base_url", DefaultBaseURL)
	v.SetDefault("api.timeout", DefaultTimeout)
	v.SetDefault("database.path", DefaultDatabasePath)
	v.SetDefault("connectivity.probe_interval", DefaultProbeInterval)
	v.SetDefault("connectivity.start_offline", false)
}

// Load reads the configuration from v.
// It follows this precedence:
// 1. Viper configuration (from config file or LEDGERSYNC_ env vars)
// 2. LEDGERSYNC_TOKEN for the API token
// 3. Default values
func Load(v *viper.Viper) (Config, error) {
	SetDefaults(v)

	cfg := Config{
		BaseURL:       v.GetString("api.base_url"),
		Token:         v.GetString("api.token"),
		Timeout:       v.GetDuration("api.timeout"),
		DatabasePath:  ExpandPath(v.GetString("database.path")),
		ProbeInterval: v.GetDuration("connectivity.probe_interval"),
		StartOffline:  v.GetBool("connectivity.start_offline"),
	}

	if cfg.Token == "" {
		cfg.Token = os.Getenv("LEDGERSYNC_TOKEN")
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: api.base_url", common.ErrMissingConfig)
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: api.base_url %q is not an absolute URL", common.ErrInvalidConfig, c.BaseURL)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: api.timeout must be positive", common.ErrInvalidConfig)
	}
	if c.ProbeInterval <= 0 {
		return fmt.Errorf("%w: connectivity.probe_interval must be positive", common.ErrInvalidConfig)
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("%w: database.path", common.ErrMissingConfig)
	}
	return nil
}
