// Package config loads and validates the pressrelay YAML configuration.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables that override the corresponding config keys.
const (
	EnvURL      = "PRESSRELAY_URL"
	EnvUser     = "PRESSRELAY_USER"
	EnvPassword = "PRESSRELAY_PASSWORD"
)

// Defaults and limits applied by validate.
const (
	DefaultTimeout       = 30 * time.Second
	DefaultRetryAttempts = 3
	DefaultWatchInterval = time.Minute

	maxDelay         = time.Minute
	maxRetryAttempts = 10
	minWatchInterval = 5 * time.Second
)

// Config holds the full application configuration loaded from YAML.
type Config struct {
	// URL is the base URL of the WordPress site (e.g. "https://example.com").
	// The XML-RPC endpoint is URL + "/xmlrpc.php".
	URL string `yaml:"url"`

	// User and Password authenticate every XML-RPC call. Password may be
	// left out of the file and supplied through PRESSRELAY_PASSWORD.
	User     string `yaml:"user"`
	Password string `yaml:"password,omitempty"`

	// BlogID selects the blog on a multisite install. Defaults to 0.
	BlogID int `yaml:"blog_id,omitempty"`

	// Delay is the pause after every page fetch and between processed pages.
	// Maximum 1m. Defaults to no delay.
	Delay time.Duration `yaml:"delay,omitempty"`

	// Timeout bounds a single XML-RPC request. Defaults to 30s.
	Timeout time.Duration `yaml:"timeout,omitempty"`

	// RetryAttempts is the attempt count for read-only calls on transport
	// errors. Writes are never retried. Defaults to 3, maximum 10.
	RetryAttempts int `yaml:"retry_attempts,omitempty"`

	// CacheFile enables the fingerprint cache when set.
	CacheFile string `yaml:"cache_file,omitempty"`

	// HistoryDB is the run history database. Defaults to
	// ~/.local/share/pressrelay/history.db.
	HistoryDB string `yaml:"history_db,omitempty"`

	// LogFile additionally writes logs to a rotated file when set.
	LogFile string `yaml:"log_file,omitempty"`

	// Pages configures where the desired pages come from.
	Pages *PagesConfig `yaml:"pages,omitempty"`

	// Telemetry configures optional OpenTelemetry export via OTLP gRPC.
	// Omit the block entirely to disable telemetry.
	Telemetry *TelemetryConfig `yaml:"telemetry,omitempty"`
}

// PagesConfig describes the desired page source.
type PagesConfig struct {
	// Source is a YAML manifest or a directory of page files.
	Source string `yaml:"source"`

	// Include and Exclude are doublestar globs for directory sources.
	Include []string `yaml:"include,omitempty"`
	Exclude []string `yaml:"exclude,omitempty"`

	// Sanitize strips unsafe HTML from page bodies before upload.
	Sanitize bool `yaml:"sanitize,omitempty"`

	// WatchInterval is the periodic resync in watch mode. Minimum 5s.
	// Defaults to 1m.
	WatchInterval time.Duration `yaml:"watch_interval,omitempty"`
}

// TelemetryConfig holds optional OpenTelemetry settings.
type TelemetryConfig struct {
	// OTLPEndpoint is the gRPC host:port of the OTLP collector (e.g. "localhost:4317").
	OTLPEndpoint string `yaml:"otlp_endpoint"`

	// Insecure disables TLS for the collector connection. Use for local collectors.
	Insecure bool `yaml:"insecure,omitempty"`

	// ServiceName overrides the OTel service.name attribute. Defaults to "pressrelay".
	ServiceName string `yaml:"service_name,omitempty"`

	// MetricInterval is the counter push interval. Defaults to the SDK's 1m.
	MetricInterval time.Duration `yaml:"metric_interval,omitempty"`

	// Headers contains key-value pairs sent as gRPC metadata on every OTLP
	// request. Equivalent to the OTEL_EXPORTER_OTLP_HEADERS environment
	// variable. Use this for authentication tokens, e.g.:
	//
	//	Authorization: "Bearer <token>"
	Headers map[string]string `yaml:"headers,omitempty"`
}

// DefaultPath returns the default config file path: ~/.config/pressrelay/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".config", "pressrelay", "config.yaml"), nil
}

// LoadDotEnv loads variables from a .env file into the process environment
// without overriding variables that are already set. A missing file is not
// an error.
func LoadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading %q: %w", path, err)
	}
	return nil
}

// Load reads the configuration file at path, applies environment overrides
// and validates the result. A missing file is accepted when PRESSRELAY_URL is
// set, so a site can be driven from the environment alone.
func Load(path string) (*Config, error) {
	var cfg Config

	f, err := os.Open(path)
	switch {
	case errors.Is(err, fs.ErrNotExist) && os.Getenv(EnvURL) != "":
	case err != nil:
		return nil, fmt.Errorf("opening config file %q: %w", path, err)
	default:
		defer f.Close()
		dec := yaml.NewDecoder(f)
		dec.KnownFields(true) // reject unknown keys to catch typos early
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parsing config file %q: %w", path, err)
		}
	}

	cfg.applyEnv(os.LookupEnv)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// applyEnv overrides credentials from the environment.
func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvURL); ok && v != "" {
		c.URL = v
	}
	if v, ok := lookup(EnvUser); ok && v != "" {
		c.User = v
	}
	if v, ok := lookup(EnvPassword); ok && v != "" {
		c.Password = v
	}
}

// validate checks that all required fields are present and well-formed, and
// fills in defaults.
func (c *Config) validate() error {
	if c.URL == "" {
		return fmt.Errorf("url is required")
	}
	u, err := url.ParseRequestURI(c.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("url %q must be a valid http or https URL", c.URL)
	}

	if c.User == "" {
		return fmt.Errorf("user is required")
	}
	if c.Password == "" {
		return fmt.Errorf("password is required (or set %s)", EnvPassword)
	}
	if c.BlogID < 0 {
		return fmt.Errorf("blog_id %d must not be negative", c.BlogID)
	}

	if c.Delay < 0 {
		return fmt.Errorf("delay %v must not be negative", c.Delay)
	}
	if c.Delay > maxDelay {
		return fmt.Errorf("delay %v is too long (maximum %v)", c.Delay, maxDelay)
	}

	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout %v must not be negative", c.Timeout)
	}

	if c.RetryAttempts == 0 {
		c.RetryAttempts = DefaultRetryAttempts
	}
	if c.RetryAttempts < 1 || c.RetryAttempts > maxRetryAttempts {
		return fmt.Errorf("retry_attempts %d must be between 1 and %d", c.RetryAttempts, maxRetryAttempts)
	}

	if c.CacheFile, err = expandHome(c.CacheFile); err != nil {
		return err
	}
	if c.HistoryDB, err = expandHome(c.HistoryDB); err != nil {
		return err
	}
	if c.LogFile, err = expandHome(c.LogFile); err != nil {
		return err
	}

	if c.Pages != nil {
		if c.Pages.Source == "" {
			return fmt.Errorf("pages.source is required when pages is configured")
		}
		if c.Pages.Source, err = expandHome(c.Pages.Source); err != nil {
			return err
		}
		if c.Pages.WatchInterval == 0 {
			c.Pages.WatchInterval = DefaultWatchInterval
		}
		if c.Pages.WatchInterval < minWatchInterval {
			return fmt.Errorf("pages.watch_interval %v is too short (minimum %v)", c.Pages.WatchInterval, minWatchInterval)
		}
	}

	if c.Telemetry != nil {
		if c.Telemetry.OTLPEndpoint == "" {
			return fmt.Errorf("telemetry.otlp_endpoint is required when telemetry is configured")
		}
		if c.Telemetry.MetricInterval < 0 {
			return fmt.Errorf("telemetry.metric_interval %v must not be negative", c.Telemetry.MetricInterval)
		}
	}

	return nil
}

// Write serialises the configuration to path, creating parent directories.
// The file holds credentials and is written owner-only.
func (c *Config) Write(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config file %q: %w", path, err)
	}
	return nil
}

// expandHome replaces a leading "~/" with the user's home directory.
func expandHome(p string) (string, error) {
	if !strings.HasPrefix(p, "~/") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, p[2:]), nil
}
