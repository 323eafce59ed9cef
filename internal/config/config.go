package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"shabbatcal/internal/model"
)

// NOTE: This file provides the configuration model and full YAML-based
// load/save behavior, including first-run config creation and 0600
// permissions.

const (
	defaultListen        = "127.0.0.1:8080"
	defaultTimezone      = "Asia/Jerusalem"
	defaultRefresh       = "*/15 * * * *"
	defaultHorizonDays   = 7
	defaultThresholdHour = 22
	defaultDriftKm       = 10.0
	defaultLogLevel      = "info"
)

// LocationConfig is the device location used until a location update
// arrives.
type LocationConfig struct {
	Latitude  float64 `yaml:"latitude" json:"latitude"`
	Longitude float64 `yaml:"longitude" json:"longitude"`
	// Label is shown when the provider does not return a location name.
	Label string `yaml:"label" json:"label"`
}

// Coord returns the configured position.
func (l LocationConfig) Coord() model.Coord {
	return model.Coord{Lat: l.Latitude, Lon: l.Longitude}
}

// ProviderConfig describes the calendar provider.
type ProviderConfig struct {
	// BaseURL is the provider root, e.g. "https://www.hebcal.com".
	BaseURL string `yaml:"base_url" json:"base_url"`
	// Format is "json" (default) or "ics".
	Format         string  `yaml:"format" json:"format"`
	TimeoutSeconds int     `yaml:"timeout_seconds" json:"timeout_seconds"`
	RatePerSecond  float64 `yaml:"rate_per_second" json:"rate_per_second"`

	// CandleMinutes is the lighting offset before sunset; HavdalahMinutes
	// the end offset after sunset.
	CandleMinutes   int `yaml:"candle_minutes" json:"candle_minutes"`
	HavdalahMinutes int `yaml:"havdalah_minutes" json:"havdalah_minutes"`

	// Language is the provider's title language code (e.g. "s", "he").
	Language string `yaml:"language" json:"language"`

	// CacheDir, if set, enables the ETag/Last-Modified response cache.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`
}

// CacheConfig selects where the CacheRecord is persisted.
type CacheConfig struct {
	// Backend is one of "file" (default), "sqlite", "redis", "memory", "none".
	Backend   string `yaml:"backend" json:"backend"`
	Path      string `yaml:"path" json:"path"`
	RedisAddr string `yaml:"redis_addr" json:"redis_addr"`
	RedisDB   int    `yaml:"redis_db" json:"redis_db"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA zone all calendar days are computed in.
	Timezone string `yaml:"timezone" json:"timezone"`

	Location LocationConfig `yaml:"location" json:"location"`

	// RefreshCron is a cron-style schedule string (e.g. "*/15 * * * *")
	// for clock ticks.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// HorizonDays is the number of days after today that events stay visible.
	HorizonDays int `yaml:"horizon_days" json:"horizon_days"`

	// ThresholdHour is the Saturday hour, 1-23, at which the next cycle
	// begins. 0 or unset means the default of 22.
	ThresholdHour int `yaml:"threshold_hour" json:"threshold_hour"`

	// DriftKm is the distance after which cached times are refetched.
	DriftKm float64 `yaml:"drift_km" json:"drift_km"`

	Provider ProviderConfig `yaml:"provider" json:"provider"`
	Cache    CacheConfig    `yaml:"cache" json:"cache"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	cfg := &Config{
		Location: LocationConfig{
			Latitude:  31.7683,
			Longitude: 35.2137,
			Label:     "Jerusalem",
		},
	}
	cfg.Normalize()
	return cfg
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	if c.RefreshCron == "" {
		c.RefreshCron = defaultRefresh
	}
	if c.HorizonDays <= 0 {
		c.HorizonDays = defaultHorizonDays
	}
	if c.ThresholdHour == 0 {
		c.ThresholdHour = defaultThresholdHour
	}
	if c.DriftKm <= 0 {
		c.DriftKm = defaultDriftKm
	}

	p := &c.Provider
	if p.BaseURL == "" {
		p.BaseURL = "https://www.hebcal.com"
	}
	switch strings.ToLower(p.Format) {
	case "json", "ics":
		p.Format = strings.ToLower(p.Format)
	default:
		p.Format = "json"
	}
	if p.TimeoutSeconds <= 0 {
		p.TimeoutSeconds = 15
	}
	if p.RatePerSecond <= 0 {
		p.RatePerSecond = 1
	}
	if p.CandleMinutes <= 0 {
		p.CandleMinutes = 18
	}
	if p.HavdalahMinutes <= 0 {
		p.HavdalahMinutes = 50
	}

	switch strings.ToLower(c.Cache.Backend) {
	case "file", "sqlite", "redis", "memory", "none":
		c.Cache.Backend = strings.ToLower(c.Cache.Backend)
	case "":
		c.Cache.Backend = "file"
	default:
		// Unknown value; fall back to file so the daemon still starts.
		c.Cache.Backend = "file"
	}
	if c.Cache.Backend == "redis" && c.Cache.RedisAddr == "" {
		c.Cache.RedisAddr = "127.0.0.1:6379"
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
		c.LogLevel = strings.ToLower(c.LogLevel)
	default:
		c.LogLevel = defaultLogLevel
	}
}

// Validate reports settings that Normalize cannot repair.
func (c *Config) Validate() error {
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("config: timezone %q: %w", c.Timezone, err)
	}
	if c.ThresholdHour < 1 || c.ThresholdHour > 23 {
		return fmt.Errorf("config: threshold_hour %d out of range 1-23", c.ThresholdHour)
	}
	if c.Location.Latitude < -90 || c.Location.Latitude > 90 {
		return fmt.Errorf("config: latitude %v out of range", c.Location.Latitude)
	}
	if c.Location.Longitude < -180 || c.Location.Longitude > 180 {
		return fmt.Errorf("config: longitude %v out of range", c.Location.Longitude)
	}
	return nil
}

// TimeLocation returns the configured zone, or time.Local if it cannot be
// loaded.
func (c *Config) TimeLocation() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the given configuration to the specified path atomically
// (temp file + rename) with 0600 permissions.
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

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".shabbatcal-config-*.tmp")
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
