package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"shabbatcal/internal/cache"
	"shabbatcal/internal/config"
	"shabbatcal/internal/engine"
	appLog "shabbatcal/internal/log"
	"shabbatcal/internal/provider"
	"shabbatcal/internal/report"
	"shabbatcal/internal/week"
)

// Set by the linker at release time.
var version = "0.1.0-dev"

const defaultConfigPath = "/etc/shabbatcal/config.yaml"

// conf holds the effective configuration after flags and environment.
var conf *config.Config

var rootCmd = &cobra.Command{
	Use:           "shabbatcal",
	Short:         "Resolve observance times, events and reading names for a location.",
	Version:       version,
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(*cobra.Command, []string) error {
		c, err := loadSettings(viper.GetViper())
		if err != nil {
			return err
		}
		conf = c
		appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))
		return nil
	},
	Run: func(cmd *cobra.Command, _ []string) {
		_ = cmd.Help()
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("config", defaultConfigPath, "Path to config file (created with defaults on first run)")
	flags.String("listen", "", "HTTP listen address (overrides config)")
	flags.String("timezone", "", "IANA timezone (overrides config)")
	flags.Float64("latitude", 0, "Latitude (overrides config)")
	flags.Float64("longitude", 0, "Longitude (overrides config)")
	flags.String("cache-backend", "", "Cache backend: file, sqlite, redis, memory or none")
	flags.String("cache-path", "", "Cache file path for the file and sqlite backends")
	flags.String("log-level", "", "Log level: debug, info, warn or error")
	flags.String("output", string(report.FormatTable), "Output format: table or json")
	flags.Bool("color", true, "Colorize table output")

	if err := viper.BindPFlags(flags); err != nil {
		panic(err)
	}
	viper.SetEnvPrefix("SHABBATCAL")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	rootCmd.AddCommand(serveCmd, onceCmd, weekCmd, lookupCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// loadSettings reads the YAML config and layers explicit flags and
// SHABBATCAL_* environment variables on top of it.
func loadSettings(v *viper.Viper) (*config.Config, error) {
	path := v.GetString("config")
	c, err := config.Load(path)
	if err != nil {
		if c == nil {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
		// First-run write failed; the defaults are still usable.
		appLog.Warn("could not write default config", "path", path, "err", err.Error())
	}

	if v.IsSet("listen") && v.GetString("listen") != "" {
		c.Listen = v.GetString("listen")
	}
	if v.IsSet("timezone") && v.GetString("timezone") != "" {
		c.Timezone = v.GetString("timezone")
	}
	if v.IsSet("latitude") {
		c.Location.Latitude = v.GetFloat64("latitude")
	}
	if v.IsSet("longitude") {
		c.Location.Longitude = v.GetFloat64("longitude")
	}
	if v.IsSet("cache-backend") && v.GetString("cache-backend") != "" {
		c.Cache.Backend = v.GetString("cache-backend")
	}
	if v.IsSet("cache-path") && v.GetString("cache-path") != "" {
		c.Cache.Path = v.GetString("cache-path")
	}
	if v.IsSet("log-level") && v.GetString("log-level") != "" {
		c.LogLevel = v.GetString("log-level")
	}
	c.Normalize()
	if c.Cache.Path == "" && (c.Cache.Backend == "file" || c.Cache.Backend == "sqlite") {
		c.Cache.Path = defaultCachePath(path, c.Cache.Backend)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// defaultCachePath places the record next to the config file.
func defaultCachePath(configPath, backend string) string {
	name := "record.json"
	if backend == "sqlite" {
		name = "record.db"
	}
	return filepath.Join(filepath.Dir(configPath), name)
}

func reportOptions(c *config.Config) report.Options {
	format := report.Format(strings.ToLower(viper.GetString("output")))
	if format != report.FormatJSON {
		format = report.FormatTable
	}
	return report.Options{
		Format:    format,
		UseColors: viper.GetBool("color"),
		Location:  c.TimeLocation(),
	}
}

func newProviderClient(c *config.Config) *provider.Client {
	return provider.NewClient(provider.Options{
		BaseURL:         c.Provider.BaseURL,
		Format:          provider.Format(c.Provider.Format),
		Timeout:         time.Duration(c.Provider.TimeoutSeconds) * time.Second,
		RatePerSecond:   c.Provider.RatePerSecond,
		CandleMinutes:   c.Provider.CandleMinutes,
		HavdalahMinutes: c.Provider.HavdalahMinutes,
		Language:        c.Provider.Language,
		CacheDir:        c.Provider.CacheDir,
	})
}

// openStore is replaced in tests.
var openStore = newStore

func newStore(ctx context.Context, c *config.Config) (cache.Store, error) {
	s, err := cache.NewStore(ctx, cache.Options{
		Backend:   c.Cache.Backend,
		Path:      c.Cache.Path,
		RedisAddr: c.Cache.RedisAddr,
		RedisDB:   c.Cache.RedisDB,
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

func engineOptions(c *config.Config, f engine.Fetcher, store cache.Store) engine.Options {
	return engine.Options{
		Fetcher:     f,
		Store:       store,
		Location:    c.TimeLocation(),
		Coord:       c.Location.Coord(),
		Label:       c.Location.Label,
		Week:        week.Identifier{ThresholdHour: c.ThresholdHour},
		DriftKm:     c.DriftKm,
		HorizonDays: c.HorizonDays,
	}
}
