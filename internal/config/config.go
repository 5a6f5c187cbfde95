package config

import (
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"kalapa/internal/reminder"
)

// Defaults used by DefaultConfig and Normalize.
const (
	DefaultListen         = "127.0.0.1:8080"
	DefaultTimezone       = "UTC"
	DefaultLogLevel       = "info"
	DefaultStorageDriver  = "file"
	DefaultStoragePath    = "./var/events.json"
	DefaultRefreshCron    = "*/15 * * * *"
	DefaultCacheDir       = "./var/ics-cache"
	DefaultPastYears      = 1
	DefaultFutureYears    = 2
	DefaultMaxInstances   = 365
	DefaultDispatchSpec   = reminder.DefaultDispatchSpec
	defaultConfigFileMode = 0o600
)

// ICSConfig describes a single ICS subscription source.
type ICSConfig struct {
	// URL is the ICS subscription endpoint.
	URL string `yaml:"url" json:"url"`
	// ID prefixes imported event ids and must be unique.
	ID string `yaml:"id" json:"id"`
	// Name is a human-friendly label.
	Name string `yaml:"name" json:"name"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// StorageConfig selects where masters are persisted.
type StorageConfig struct {
	// Driver is "file" (JSON document) or "sqlite".
	Driver string `yaml:"driver" json:"driver"`
	// Path is the JSON file or the SQLite database file.
	Path string `yaml:"path" json:"path"`
}

// WindowConfig is the default expansion window around now.
type WindowConfig struct {
	PastYears   int `yaml:"past_years" json:"past_years"`
	FutureYears int `yaml:"future_years" json:"future_years"`
}

// ReminderConfig extends the reminder settings with the dispatch schedule.
type ReminderConfig struct {
	reminder.Settings `yaml:",inline"`

	// Dispatch is the cron spec of the due-reminder check.
	Dispatch string `yaml:"dispatch" json:"dispatch"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA zone events are displayed and anchored in.
	Timezone string `yaml:"timezone" json:"timezone"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	Storage StorageConfig `yaml:"storage" json:"storage"`
	Window  WindowConfig  `yaml:"window" json:"window"`

	// MaxInstancesPerEvent caps the instances one master may produce per
	// expansion.
	MaxInstancesPerEvent int `yaml:"max_instances_per_event" json:"max_instances_per_event"`

	Reminders ReminderConfig `yaml:"reminders" json:"reminders"`

	// SeedEvents merges the built-in practice days into every read view.
	SeedEvents bool `yaml:"seed_events" json:"seed_events"`

	// RefreshCron is the cron schedule for ICS subscription refresh.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// ICS is the list of subscribed ICS sources.
	ICS []ICSConfig `yaml:"ics" json:"ics"`

	// CacheDir holds downloaded ICS bodies and their HTTP cache metadata.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:   DefaultListen,
		Timezone: DefaultTimezone,
		LogLevel: DefaultLogLevel,
		Storage: StorageConfig{
			Driver: DefaultStorageDriver,
			Path:   DefaultStoragePath,
		},
		Window: WindowConfig{
			PastYears:   DefaultPastYears,
			FutureYears: DefaultFutureYears,
		},
		MaxInstancesPerEvent: DefaultMaxInstances,
		Reminders: ReminderConfig{
			Settings: reminder.DefaultSettings(),
			Dispatch: DefaultDispatchSpec,
		},
		SeedEvents:  true,
		RefreshCron: DefaultRefreshCron,
		ICS:         []ICSConfig{},
		CacheDir:    DefaultCacheDir,
	}
}

// Normalize fills in missing or invalid values so that partially-filled
// configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	if c.Timezone == "" {
		c.Timezone = DefaultTimezone
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}

	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	if c.Storage.Driver == "" {
		c.Storage.Driver = DefaultStorageDriver
	}
	if c.Storage.Path == "" {
		if c.Storage.Driver == "sqlite" {
			c.Storage.Path = "./var/events.db"
		} else {
			c.Storage.Path = DefaultStoragePath
		}
	}

	if c.Window.PastYears < 0 {
		c.Window.PastYears = DefaultPastYears
	}
	if c.Window.FutureYears <= 0 {
		c.Window.FutureYears = DefaultFutureYears
	}
	if c.MaxInstancesPerEvent <= 0 {
		c.MaxInstancesPerEvent = DefaultMaxInstances
	}

	if c.Reminders.Dispatch == "" {
		c.Reminders.Dispatch = DefaultDispatchSpec
	}
	if c.Reminders.EventReminderMinutes < 0 {
		c.Reminders.EventReminderMinutes = 0
	}
	if c.Reminders.AllDayReminderHours < 0 {
		c.Reminders.AllDayReminderHours = 0
	}

	if c.RefreshCron == "" {
		c.RefreshCron = DefaultRefreshCron
	}
	if c.ICS == nil {
		c.ICS = []ICSConfig{}
	}
	for i := range c.ICS {
		if c.ICS[i].ID == "" {
			c.ICS[i].ID = "ics" + strconv.Itoa(i+1)
		}
	}
	if c.CacheDir == "" {
		c.CacheDir = DefaultCacheDir
	}
	if c.BasicAuth != nil && c.BasicAuth.Username == "" && c.BasicAuth.Password == "" {
		c.BasicAuth = nil
	}
}

// Location resolves Timezone, falling back to UTC for unknown names.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Validate reports settings that Normalize cannot repair.
func (c *Config) Validate() error {
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return errors.Wrapf(err, "timezone %q", c.Timezone)
	}
	switch c.Storage.Driver {
	case "file", "sqlite":
	default:
		return errors.Errorf("storage driver %q is not one of file, sqlite", c.Storage.Driver)
	}
	seen := make(map[string]bool, len(c.ICS))
	for _, src := range c.ICS {
		if src.URL == "" {
			return errors.Errorf("ics source %q has no url", src.ID)
		}
		if seen[src.ID] {
			return errors.Errorf("duplicate ics source id %q", src.ID)
		}
		seen[src.ID] = true
	}
	return nil
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     perms (creating the parent directory) and returned.
//   - Otherwise the YAML is decoded and normalized.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Caller decides whether an unsaved default is acceptable.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, errors.Wrap(err, "read config")
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "decode config %s", path)
	}
	cfg.Normalize()

	return cfg, nil
}

// Save writes cfg to path atomically (temp file + rename) with 0600
// permissions, creating the parent directory with 0700.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return errors.Wrap(err, "create config directory")
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "encode config")
	}

	tmp, err := os.CreateTemp(dir, ".kalapa-config-*.tmp")
	if err != nil {
		return errors.Wrap(err, "create temp file")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, "write temp file")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrap(err, "sync temp file")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close temp file")
	}
	if err := os.Chmod(tmpName, defaultConfigFileMode); err != nil {
		return errors.Wrap(err, "chmod temp file")
	}
	return errors.Wrap(os.Rename(tmpName, path), "replace config file")
}

// Save is a convenience method delegating to the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
