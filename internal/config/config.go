package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"occurcal/internal/datekey"
	appLog "occurcal/internal/log"
	"occurcal/internal/occurrence"
	"occurcal/internal/timeline"
)

// FeedConfig describes a single ICS subscription source.
type FeedConfig struct {
	// URL is the ICS endpoint (http(s) URL or local file path).
	URL string `yaml:"url" toml:"url" json:"url"`
	// ID prefixes imported event ids and names the feed in logs.
	ID string `yaml:"id" toml:"id" json:"id"`
	// Name is a human-friendly label.
	Name string `yaml:"name" toml:"name" json:"name"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" toml:"username" json:"username"`
	Password string `yaml:"password" toml:"password" json:"password"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	// Driver is "file" (YAML document) or "sqlite".
	Driver string `yaml:"driver" toml:"driver" json:"driver"`
	Path   string `yaml:"path" toml:"path" json:"path"`
}

// CacheConfig bounds the API response cache.
type CacheConfig struct {
	TTLSeconds int `yaml:"ttl_seconds" toml:"ttl_seconds" json:"ttl_seconds"`
	MaxEntries int `yaml:"max_entries" toml:"max_entries" json:"max_entries"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" toml:"listen" json:"listen"`

	// Timezone is the IANA zone every date key is expressed in.
	Timezone string `yaml:"timezone" toml:"timezone" json:"timezone"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" toml:"log_level" json:"log_level"`

	// WindowDays is the rolling expansion horizon from today.
	WindowDays int `yaml:"window_days" toml:"window_days" json:"window_days"`

	Caps timeline.Caps `yaml:"caps" toml:"caps" json:"caps"`

	// SeriesUpcoming bounds the upcoming list of each series entry.
	SeriesUpcoming int `yaml:"series_upcoming" toml:"series_upcoming" json:"series_upcoming"`

	// RefreshCron is a standard 5-field cron spec (e.g. "*/15 * * * *")
	// for reloading the store and re-importing feeds.
	RefreshCron string `yaml:"refresh" toml:"refresh" json:"refresh"`

	Store StoreConfig `yaml:"store" toml:"store" json:"store"`

	// Feeds are imported into the store on every refresh.
	Feeds []FeedConfig `yaml:"feeds" toml:"feeds" json:"feeds"`

	// FeedCacheDir holds conditional-GET metadata and bodies of remote feeds.
	FeedCacheDir string `yaml:"feed_cache_dir" toml:"feed_cache_dir" json:"feed_cache_dir"`

	Cache CacheConfig `yaml:"cache" toml:"cache" json:"cache"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" toml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

const (
	defaultListen      = "127.0.0.1:8080"
	defaultTimezone    = "UTC"
	defaultLogLevel    = "info"
	defaultRefreshCron = "*/15 * * * *"
	defaultUpcoming    = 8
	defaultStorePath   = "./data/occurcal.yaml"
	defaultFeedCache   = "./data/feeds"
)

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:         defaultListen,
		Timezone:       defaultTimezone,
		LogLevel:       defaultLogLevel,
		WindowDays:     occurrence.DefaultWindowDays,
		Caps:           timeline.DefaultCaps(),
		SeriesUpcoming: defaultUpcoming,
		RefreshCron:    defaultRefreshCron,
		Store:          StoreConfig{Driver: "file", Path: defaultStorePath},
		Feeds:          []FeedConfig{},
		FeedCacheDir:   defaultFeedCache,
		Cache:          CacheConfig{TTLSeconds: 60, MaxEntries: 256},
	}
}

// Normalize fills in missing/zero values with defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	c.LogLevel = strings.ToLower(string(appLog.ParseLevel(c.LogLevel)))
	if c.WindowDays <= 0 {
		c.WindowDays = occurrence.DefaultWindowDays
	}
	c.Caps = c.Caps.WithDefaults()
	if c.SeriesUpcoming <= 0 {
		c.SeriesUpcoming = defaultUpcoming
	}
	if c.RefreshCron == "" {
		c.RefreshCron = defaultRefreshCron
	}
	if c.Store.Driver == "" {
		c.Store.Driver = "file"
	}
	if c.Store.Path == "" {
		c.Store.Path = defaultStorePath
	}
	if c.Feeds == nil {
		c.Feeds = []FeedConfig{}
	}
	if c.FeedCacheDir == "" {
		c.FeedCacheDir = defaultFeedCache
	}
	if c.Cache.TTLSeconds <= 0 {
		c.Cache.TTLSeconds = 60
	}
	if c.Cache.MaxEntries <= 0 {
		c.Cache.MaxEntries = 256
	}
}

// Validate reports values Normalize cannot repair.
func (c *Config) Validate() error {
	var errs []error
	if _, err := datekey.NewCalendar(c.Timezone); err != nil {
		errs = append(errs, err)
	}
	if _, err := cron.ParseStandard(c.RefreshCron); err != nil {
		errs = append(errs, fmt.Errorf("refresh %q: %w", c.RefreshCron, err))
	}
	switch c.Store.Driver {
	case "file", "yaml", "sqlite", "sqlite3":
	default:
		errs = append(errs, fmt.Errorf("store driver %q is not supported", c.Store.Driver))
	}
	seen := make(map[string]bool, len(c.Feeds))
	for i, f := range c.Feeds {
		if f.URL == "" || f.ID == "" {
			errs = append(errs, fmt.Errorf("feeds[%d]: id and url are required", i))
			continue
		}
		if seen[f.ID] {
			errs = append(errs, fmt.Errorf("feeds[%d]: duplicate id %q", i, f.ID))
		}
		seen[f.ID] = true
	}
	return errors.Join(errs...)
}

// Calendar builds the calendar for the configured timezone.
func (c *Config) Calendar() (*datekey.Calendar, error) {
	return datekey.NewCalendar(c.Timezone)
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

// Load loads configuration from path. Files ending in .toml are TOML; any
// other extension is YAML.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     perms (creating the parent directory) and returned.
//   - Otherwise the file is decoded, normalized and validated.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if isTOML(path) {
		err = toml.Unmarshal(data, &cfg)
	} else {
		err = yaml.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

// Save writes cfg to path atomically (temp file + rename) with 0600 perms.
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
		return err
	}

	var data []byte
	if isTOML(path) {
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
			return err
		}
		data = buf.Bytes()
	} else {
		var err error
		if data, err = yaml.Marshal(cfg); err != nil {
			return err
		}
	}

	tmp, err := os.CreateTemp(dir, ".occurcal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save delegates to the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
