package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"dario.cat/mergo"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"dividi/internal/core"
)

// Config is assembled from three layers: environment variables win over the
// optional YAML file named by CONFIG_FILE, which wins over Defaults.
type Config struct {
	// HTTP Server
	Port string `yaml:"port"`

	// Storage
	DataBackend  string `yaml:"data_backend"`
	SQLiteDBPath string `yaml:"sqlite_db_path"`

	// AMQP change feed; empty URL disables it
	AMQPURL      string `yaml:"amqp_url"`
	AMQPExchange string `yaml:"amqp_exchange"`
	AMQPQueue    string `yaml:"amqp_queue"`

	// Google Sheets mirror (worker only)
	GoogleSpreadsheetID string `yaml:"google_spreadsheet_id"`

	// Worker
	SyncInterval time.Duration `yaml:"sync_interval"`

	// Group and presentation
	Participants   []string `yaml:"participants"`
	CurrencySymbol string   `yaml:"currency_symbol"`
	Locale         string   `yaml:"locale"`
	DateLayout     string   `yaml:"date_layout"`
	Timezone       string   `yaml:"timezone"`

	// Export artifact cache entries
	ExportCacheSize int `yaml:"export_cache_size"`

	// Write requests allowed per client per minute
	RateLimit int `yaml:"rate_limit_per_minute"`

	// Logging
	LogFormat string `yaml:"log_format"`
	LogLevel  string `yaml:"log_level"`

	ConfigFile string `yaml:"-"`
}

// Defaults returns the bottom configuration layer.
func Defaults() Config {
	return Config{
		Port:            "8081",
		DataBackend:     "memory",
		SQLiteDBPath:    "./data/dividi.db",
		AMQPExchange:    "dividi",
		AMQPQueue:       "dividi_sheets_sync",
		SyncInterval:    5 * time.Minute,
		Participants:    []string{"Zayd", "Ishraque", "Simra"},
		CurrencySymbol:  "₹",
		Locale:          "en",
		DateLayout:      core.DefaultDateLayout,
		Timezone:        "Local",
		ExportCacheSize: 32,
		RateLimit:       60,
		LogFormat:       "tint",
		LogLevel:        "info",
	}
}

// Load reads the environment, overlays it on the YAML file if CONFIG_FILE is
// set, and fills anything still unset from Defaults.
func Load() (*Config, error) {
	cfg := fromEnv()

	if cfg.ConfigFile != "" {
		file, err := readFile(cfg.ConfigFile)
		if err != nil {
			return nil, err
		}
		if err := mergo.Merge(&cfg, file); err != nil {
			return nil, fmt.Errorf("merge config file: %w", err)
		}
	}

	if err := mergo.Merge(&cfg, Defaults()); err != nil {
		return nil, fmt.Errorf("merge defaults: %w", err)
	}
	return &cfg, nil
}

func fromEnv() Config {
	return Config{
		Port:                getEnv("PORT", ""),
		DataBackend:         getEnv("DATA_BACKEND", ""),
		SQLiteDBPath:        getEnv("SQLITE_DB_PATH", ""),
		AMQPURL:             getEnv("AMQP_URL", ""),
		AMQPExchange:        getEnv("AMQP_EXCHANGE", ""),
		AMQPQueue:           getEnv("AMQP_QUEUE", ""),
		GoogleSpreadsheetID: getEnv("GOOGLE_SPREADSHEET_ID", ""),
		SyncInterval:        getEnvDuration("SYNC_INTERVAL", 0),
		Participants:        getEnvList("PARTICIPANTS"),
		CurrencySymbol:      getEnv("CURRENCY_SYMBOL", ""),
		Locale:              getEnv("LOCALE", ""),
		DateLayout:          getEnv("DATE_LAYOUT", ""),
		Timezone:            getEnv("TIMEZONE", ""),
		ExportCacheSize:     getEnvInt("EXPORT_CACHE_SIZE", 0),
		RateLimit:           getEnvInt("RATE_LIMIT_PER_MINUTE", 0),
		LogFormat:           getEnv("LOG_FORMAT", ""),
		LogLevel:            getEnv("LOG_LEVEL", ""),
		ConfigFile:          getEnv("CONFIG_FILE", ""),
	}
}

func readFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	validBackends := []string{"memory", "sqlite"}
	isValidBackend := false
	for _, backend := range validBackends {
		if c.DataBackend == backend {
			isValidBackend = true
			break
		}
	}
	if !isValidBackend {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	if c.DataBackend == "sqlite" {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
	}

	if _, err := core.NewParticipants(c.Participants...); err != nil {
		errors = append(errors, fmt.Sprintf("invalid participants %v: %v", c.Participants, err))
	}

	if _, err := c.Location(); err != nil {
		errors = append(errors, fmt.Sprintf("invalid timezone '%s': %v", c.Timezone, err))
	}

	if _, err := language.Parse(c.Locale); err != nil {
		errors = append(errors, fmt.Sprintf("invalid locale '%s': %v", c.Locale, err))
	}

	if strings.TrimSpace(c.DateLayout) == "" {
		errors = append(errors, "date layout cannot be empty")
	}

	switch c.LogFormat {
	case "json", "text", "tint":
	default:
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be one of [json text tint]", c.LogFormat))
	}

	if c.ExportCacheSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid export cache size %d: must be at least 1", c.ExportCacheSize))
	}

	if c.RateLimit < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1 request per minute", c.RateLimit))
	}

	if c.SyncInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid sync interval %v: must be at least 1 second", c.SyncInterval))
	} else if c.SyncInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid sync interval %v: must be at most 24 hours", c.SyncInterval))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// ParticipantSet builds the validated participant set.
func (c *Config) ParticipantSet() (core.Participants, error) {
	return core.NewParticipants(c.Participants...)
}

// Location resolves Timezone; "Local" and "" mean the process zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

func (c *Config) Language() language.Tag {
	tag, err := language.Parse(c.Locale)
	if err != nil {
		return language.English
	}
	return tag
}

func (c *Config) ReportOptions() core.ReportOptions {
	loc, err := c.Location()
	if err != nil {
		loc = time.Local
	}
	return core.ReportOptions{Location: loc, DateLayout: c.DateLayout}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvList splits a comma-separated variable, dropping blank items.
func getEnvList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
