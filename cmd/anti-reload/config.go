package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	rules "github.com/always-cache/anti-reload/pkg/request-rules"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Settings are the scalar options, settable from YAML, environment and flags.
type Settings struct {
	Origin      string        `yaml:"origin" env:"ANTI_RELOAD_ORIGIN"`
	Port        int           `yaml:"port" env:"ANTI_RELOAD_PORT"`
	MetricsPort int           `yaml:"metricsPort" env:"ANTI_RELOAD_METRICS_PORT"`
	Store       string        `yaml:"store" env:"ANTI_RELOAD_STORE"`
	DB          string        `yaml:"db" env:"ANTI_RELOAD_DB"`
	Redis       string        `yaml:"redis" env:"ANTI_RELOAD_REDIS"`
	Namespace   string        `yaml:"namespace" env:"ANTI_RELOAD_NAMESPACE"`
	Quota       int           `yaml:"quota" env:"ANTI_RELOAD_QUOTA"`
	OriginRPS   float64       `yaml:"originRPS" env:"ANTI_RELOAD_ORIGIN_RPS"`
	Compress    bool          `yaml:"compress" env:"ANTI_RELOAD_COMPRESS"`
	Window      time.Duration `yaml:"window" env:"ANTI_RELOAD_WINDOW"`
	TTL         time.Duration `yaml:"ttl" env:"ANTI_RELOAD_TTL"`
	MaxEntries  int           `yaml:"maxEntries" env:"ANTI_RELOAD_MAX_ENTRIES"`
	// Height of the simulated viewport.
	ViewportHeight float64 `yaml:"viewportHeight" env:"ANTI_RELOAD_VIEWPORT_HEIGHT"`
	// Content added to the simulated page by every list response.
	PageHeight float64 `yaml:"pageHeight" env:"ANTI_RELOAD_PAGE_HEIGHT"`
}

type Config struct {
	Settings `yaml:",inline"`
	// Requests whose responses are cached.
	Resources rules.Rules `yaml:"resources"`
	// Pages that are tracked.
	Pages rules.Rules `yaml:"pages"`
}

func defaultConfig() Config {
	return Config{
		Settings: Settings{
			Port:           8080,
			MetricsPort:    9090,
			Store:          "sqlite",
			DB:             "anti-reload.db",
			Redis:          "localhost:6379",
			Namespace:      "anti_reload",
			ViewportHeight: 800,
			PageHeight:     1200,
		},
		Resources: rules.DefaultResources,
		Pages:     rules.DefaultPages,
	}
}

// cliFlags holds the command line flags. Only flags given explicitly
// override the other sources.
type cliFlags struct {
	config      string
	origin      string
	port        int
	metricsPort int
	store       string
	db          string
	redis       string
	quota       int
	originRPS   float64
	trace       bool
	logFile     string
}

func registerFlags(fs *flag.FlagSet, f *cliFlags) {
	fs.StringVar(&f.config, "config", "", "Path to config file")
	fs.StringVar(&f.origin, "origin", "", "Origin URL to proxy to (overrides config)")
	fs.IntVar(&f.port, "port", 8080, "Port to listen on")
	fs.IntVar(&f.metricsPort, "metrics-port", 9090, "Port to serve metrics on (0 disables)")
	fs.StringVar(&f.store, "store", "sqlite", "Store to use: memory, sqlite, bbolt or redis")
	fs.StringVar(&f.db, "db", "anti-reload.db", "Store file name for sqlite and bbolt (use 'memory' for in-memory sqlite)")
	fs.StringVar(&f.redis, "redis", "localhost:6379", "Redis address")
	fs.IntVar(&f.quota, "quota", 0, "Store capacity in bytes (0 means 5 MiB)")
	fs.Float64Var(&f.originRPS, "origin-rps", 0, "Maximum requests per second to the origin (0 means unlimited)")
	fs.BoolVar(&f.trace, "vv", false, "Verbosity: trace logging")
	fs.StringVar(&f.logFile, "log-file", "", "Log file to use (in addition to stdout)")
}

// buildConfig layers defaults, the config file, the environment and the
// explicitly given flags, in that order.
func buildConfig(fs *flag.FlagSet, f cliFlags) (Config, error) {
	config := defaultConfig()
	if f.config != "" {
		if err := readConfigFile(f.config, &config); err != nil {
			return config, err
		}
	}
	if err := ParseEnv(&config.Settings); err != nil {
		return config, err
	}
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "origin":
			config.Origin = f.origin
		case "port":
			config.Port = f.port
		case "metrics-port":
			config.MetricsPort = f.metricsPort
		case "store":
			config.Store = f.store
		case "db":
			config.DB = f.db
		case "redis":
			config.Redis = f.redis
		case "quota":
			config.Quota = f.quota
		case "origin-rps":
			config.OriginRPS = f.originRPS
		}
	})
	return config, config.validate()
}

func readConfigFile(filename string, config *Config) error {
	configBytes, err := os.ReadFile(filename)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(configBytes, config); err != nil {
		return fmt.Errorf("parse %s: %w", filename, err)
	}
	return nil
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

func (c Config) validate() error {
	if c.Origin == "" {
		return errors.New("Please specify origin")
	}
	switch c.Store {
	case "memory", "sqlite", "bbolt", "redis":
	default:
		return fmt.Errorf("Unknown store %q", c.Store)
	}
	if c.ViewportHeight <= 0 || c.PageHeight <= 0 {
		return errors.New("Viewport and page heights must be positive")
	}
	return nil
}
