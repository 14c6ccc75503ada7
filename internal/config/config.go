package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"go.uber.org/multierr"

	"go-healthwatch/internal/models"
)

var ErrConfig = errors.New("invalid configuration")

// Config holds all agent configuration. It is built once at startup.
type Config struct {
	// Notifications
	WebhookURL         string        `env:"WEBHOOK_URL"`
	AnalyzerWebhookURL string        `env:"ANALYZER_WEBHOOK_URL"`
	NotifierType       string        `env:"NOTIFIER_TYPE" envDefault:"googlechat"`
	NotifyTimeout      time.Duration `env:"NOTIFY_TIMEOUT" envDefault:"10s"`

	// Identity
	ProjectName string `env:"PROJECT_NAME"`
	ServerName  string `env:"SERVER_NAME"`

	// Websites
	URLs         []string      `env:"URLS" envSeparator:","`
	LegacyURLs   []string      `env:"URL_1" envSeparator:","`
	ProbeTimeout time.Duration `env:"PROBE_TIMEOUT" envDefault:"5s"`
	CertTimeout  time.Duration `env:"CERT_TIMEOUT" envDefault:"5s"`

	// Status store
	StatusStoreDriver string         `env:"STATUS_STORE_DRIVER" envDefault:"postgres"`
	StatusStorePath   string         `env:"STATUS_STORE_PATH" envDefault:"healthwatch.db"`
	StatusDB          DatabaseConfig `envPrefix:"STATUS_DB_"`

	// Monitored database
	TargetDB         DatabaseConfig `envPrefix:"TARGET_DB_"`
	TargetDBIdentity string         `env:"TARGET_DB_IDENTITY"`

	// System health
	CPUSampleInterval time.Duration `env:"CPU_SAMPLE_INTERVAL" envDefault:"1s"`
	DiskPath          string        `env:"DISK_PATH" envDefault:"/"`

	// Thresholds
	CPUMax            float64 `env:"CPU_MAX" envDefault:"85"`
	MemoryMax         float64 `env:"MEMORY_MAX" envDefault:"85"`
	DiskMax           float64 `env:"DISK_MAX" envDefault:"85"`
	SSLExpiryWarnDays int     `env:"SSL_EXPIRY_WARN_DAYS" envDefault:"15"`

	// Analyzer
	AnalyzerWindow time.Duration `env:"ANALYZER_WINDOW" envDefault:"3m"`

	// Down state
	DownStateBackend string `env:"DOWN_STATE_BACKEND" envDefault:"file"`
	DownStatePath    string `env:"DOWN_STATE_PATH" envDefault:"website_status.json"`

	// Serve mode
	RunSchedule     string `env:"RUN_SCHEDULE" envDefault:"@every 1m"`
	AnalyzeSchedule string `env:"ANALYZE_SCHEDULE" envDefault:"@every 3m"`
	HTTPPort        int    `env:"HTTP_PORT" envDefault:"9102"`

	Timezone string `env:"TIMEZONE" envDefault:"UTC"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	location *time.Location
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	Host           string        `env:"HOST"`
	Port           int           `env:"PORT" envDefault:"5432"`
	Name           string        `env:"NAME"`
	User           string        `env:"USER"`
	Password       string        `env:"PASSWORD"`
	SSLMode        string        `env:"SSLMODE" envDefault:"disable"`
	ConnectTimeout time.Duration `env:"CONNECT_TIMEOUT" envDefault:"5s"`
}

// DSN returns a PostgreSQL URL understood by both lib/pq and pgx.
func (d DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   d.Host + ":" + strconv.Itoa(d.Port),
		Path:   "/" + d.Name,
	}
	q := url.Values{}
	q.Set("sslmode", d.SSLMode)
	secs := int(d.ConnectTimeout.Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}
	q.Set("connect_timeout", strconv.Itoa(secs))
	u.RawQuery = q.Encode()
	return u.String()
}

func (d DatabaseConfig) missing(prefix string) error {
	var err error
	for _, kv := range [][2]string{{"HOST", d.Host}, {"NAME", d.Name}, {"USER", d.User}} {
		if kv[1] == "" {
			err = multierr.Append(err, missingKey(prefix+kv[0]))
		}
	}
	return err
}

// Load reads envFile (if present) and the environment. It applies defaults
// but does not check required keys; call one of the Validate methods.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s: %v", ErrConfig, envFile, err)
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}

	if len(cfg.URLs) == 0 {
		cfg.URLs = cfg.LegacyURLs
	}
	cfg.URLs = trimAll(cfg.URLs)
	if cfg.AnalyzerWebhookURL == "" {
		cfg.AnalyzerWebhookURL = cfg.WebhookURL
	}
	if cfg.TargetDBIdentity == "" {
		cfg.TargetDBIdentity = cfg.ServerName
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: TIMEZONE: %v", ErrConfig, err)
	}
	cfg.location = loc
	return cfg, nil
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

type keyedDuration struct {
	key string
	d   time.Duration
}

// positive appends an error for every duration that is zero or negative.
func positive(err error, durations ...keyedDuration) error {
	for _, kd := range durations {
		if kd.d <= 0 {
			err = multierr.Append(err, fmt.Errorf("%s must be positive, got %s", kd.key, kd.d))
		}
	}
	return err
}

func missingKey(key string) error {
	return fmt.Errorf("missing required key %s", key)
}

func (c *Config) validateCommon() error {
	var err error
	if c.WebhookURL == "" {
		err = multierr.Append(err, missingKey("WEBHOOK_URL"))
	}
	switch c.StatusStoreDriver {
	case "postgres":
		err = multierr.Append(err, c.StatusDB.missing("STATUS_DB_"))
	case "sqlite":
		if c.StatusStorePath == "" {
			err = multierr.Append(err, missingKey("STATUS_STORE_PATH"))
		}
	default:
		err = multierr.Append(err, fmt.Errorf("STATUS_STORE_DRIVER must be postgres or sqlite, got %q", c.StatusStoreDriver))
	}
	switch c.NotifierType {
	case "googlechat", "slack", "discord", "webhook":
	default:
		err = multierr.Append(err, fmt.Errorf("NOTIFIER_TYPE %q is not supported", c.NotifierType))
	}
	if c.SSLExpiryWarnDays < 0 {
		err = multierr.Append(err, fmt.Errorf("SSL_EXPIRY_WARN_DAYS must not be negative"))
	}
	err = positive(err, keyedDuration{"NOTIFY_TIMEOUT", c.NotifyTimeout})
	if c.StatusStoreDriver == "postgres" {
		err = positive(err, keyedDuration{"STATUS_DB_CONNECT_TIMEOUT", c.StatusDB.ConnectTimeout})
	}
	return err
}

// ValidateAgent checks the keys the monitoring run needs.
func (c *Config) ValidateAgent() error {
	return wrap(multierr.Append(c.validateCommon(), c.validateAgent()))
}

// ValidateAnalyzer checks the keys the reconciliation pass needs.
func (c *Config) ValidateAnalyzer() error {
	return wrap(multierr.Append(c.validateCommon(), c.validateAnalyzer()))
}

// ValidateServe checks everything serve mode needs, which is both passes.
func (c *Config) ValidateServe() error {
	return wrap(multierr.Combine(c.validateCommon(), c.validateAgent(), c.validateAnalyzer()))
}

func (c *Config) validateAgent() error {
	var err error
	if len(c.URLs) == 0 {
		err = multierr.Append(err, missingKey("URLS"))
	}
	if c.ProjectName == "" {
		err = multierr.Append(err, missingKey("PROJECT_NAME"))
	}
	if c.ServerName == "" {
		err = multierr.Append(err, missingKey("SERVER_NAME"))
	}
	err = multierr.Append(err, c.TargetDB.missing("TARGET_DB_"))
	err = positive(err,
		keyedDuration{"PROBE_TIMEOUT", c.ProbeTimeout},
		keyedDuration{"CERT_TIMEOUT", c.CertTimeout},
		keyedDuration{"TARGET_DB_CONNECT_TIMEOUT", c.TargetDB.ConnectTimeout},
		keyedDuration{"CPU_SAMPLE_INTERVAL", c.CPUSampleInterval},
	)
	switch c.DownStateBackend {
	case "file":
		if c.DownStatePath == "" {
			err = multierr.Append(err, missingKey("DOWN_STATE_PATH"))
		}
	case "table":
	default:
		err = multierr.Append(err, fmt.Errorf("DOWN_STATE_BACKEND must be file or table, got %q", c.DownStateBackend))
	}
	return err
}

func (c *Config) validateAnalyzer() error {
	if c.AnalyzerWindow <= 0 {
		return fmt.Errorf("ANALYZER_WINDOW must be positive")
	}
	return nil
}

func wrap(err error) error {
	if err == nil {
		return nil
	}
	msgs := make([]string, 0)
	for _, e := range multierr.Errors(err) {
		msgs = append(msgs, e.Error())
	}
	return fmt.Errorf("%w: %s", ErrConfig, strings.Join(msgs, "; "))
}

func (c *Config) Thresholds() models.Thresholds {
	return models.Thresholds{
		CPUMax:            c.CPUMax,
		MemoryMax:         c.MemoryMax,
		DiskMax:           c.DiskMax,
		SSLExpiryWarnDays: c.SSLExpiryWarnDays,
	}
}

func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.UTC
	}
	return c.location
}

// StatusStoreSource is the DSN or file path for the configured driver.
func (c *Config) StatusStoreSource() string {
	if c.StatusStoreDriver == "sqlite" {
		return c.StatusStorePath
	}
	return c.StatusDB.DSN()
}

func (c *Config) AlertConfig() models.AlertConfig {
	return models.AlertConfig{Type: c.NotifierType, Settings: map[string]string{"url": c.WebhookURL}}
}

func (c *Config) AnalyzerAlertConfig() models.AlertConfig {
	return models.AlertConfig{Type: c.NotifierType, Settings: map[string]string{"url": c.AnalyzerWebhookURL}}
}

// Masked returns the configuration as key/value pairs with secrets hidden.
func (c *Config) Masked() [][2]string {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "****"
	}
	return [][2]string{
		{"WEBHOOK_URL", mask(c.WebhookURL)},
		{"ANALYZER_WEBHOOK_URL", mask(c.AnalyzerWebhookURL)},
		{"NOTIFIER_TYPE", c.NotifierType},
		{"PROJECT_NAME", c.ProjectName},
		{"SERVER_NAME", c.ServerName},
		{"URLS", strings.Join(c.URLs, ",")},
		{"STATUS_STORE_DRIVER", c.StatusStoreDriver},
		{"STATUS_DB", c.StatusDB.Host + "/" + c.StatusDB.Name},
		{"STATUS_DB_PASSWORD", mask(c.StatusDB.Password)},
		{"TARGET_DB", c.TargetDB.Host + "/" + c.TargetDB.Name},
		{"TARGET_DB_PASSWORD", mask(c.TargetDB.Password)},
		{"TARGET_DB_IDENTITY", c.TargetDBIdentity},
		{"THRESHOLDS", fmt.Sprintf("cpu=%g memory=%g disk=%g ssl_days=%d", c.CPUMax, c.MemoryMax, c.DiskMax, c.SSLExpiryWarnDays)},
		{"ANALYZER_WINDOW", c.AnalyzerWindow.String()},
		{"DOWN_STATE", c.DownStateBackend + ":" + c.DownStatePath},
		{"TIMEZONE", c.Timezone},
	}
}
