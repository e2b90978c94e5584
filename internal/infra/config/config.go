package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	yaml "go.yaml.in/yaml/v3"
)

// EnvPrefix namespaces every override variable, e.g. LR_APPLICATION__TIME_TO_REMIND.
const EnvPrefix = "LR_"

// AppConfig holds all configuration for the application.
// It is built once at startup and never mutated afterwards.
type AppConfig struct {
	Environment string
	LogLevel    string
	HTTPAddr    string
	Database    DatabaseConfig
	Reminder    ReminderConfig
	Linear      LinearConfig
	Telegram    TelegramConfig
}

type DatabaseConfig struct {
	Driver string // "postgres" or "sqlite"
	URL    string // DSN for postgres, file path for sqlite
}

type ReminderConfig struct {
	TimeToRemind       time.Duration // dwell duration before a reminder is due
	WatchedStatus      string
	Message            string
	ScanInterval       time.Duration
	SendTimeout        time.Duration // bound on each outbound comment call
	BatchSize          int
	TombstoneRetention time.Duration
	PruneSchedule      string // cron spec
}

// ScanSpec is the cron spec for the reminder scan job.
func (r ReminderConfig) ScanSpec() string {
	return "@every " + r.ScanInterval.String()
}

type LinearConfig struct {
	APIKey     Secret
	SigningKey Secret
	APIURL     string
}

type TelegramConfig struct {
	Token   Secret
	AdminID int64
}

// Enabled reports whether the operator bot should be started.
func (t TelegramConfig) Enabled() bool {
	return !t.Token.Empty() && t.AdminID != 0
}

// fileConfig mirrors the YAML layout. Durations stay strings until validation.
type fileConfig struct {
	Environment string          `yaml:"environment"`
	LogLevel    string          `yaml:"log_level"`
	Application applicationFile `yaml:"application"`
	Database    databaseFile    `yaml:"database"`
	Linear      linearFile      `yaml:"linear"`
	Telegram    telegramFile    `yaml:"telegram"`
}

type applicationFile struct {
	HTTPAddr           string `yaml:"http_addr"`
	TimeToRemind       string `yaml:"time_to_remind"`
	WatchedStatus      string `yaml:"watched_status"`
	Message            string `yaml:"message"`
	ScanInterval       string `yaml:"scan_interval"`
	SendTimeout        string `yaml:"send_timeout"`
	BatchSize          int    `yaml:"batch_size"`
	TombstoneRetention string `yaml:"tombstone_retention"`
	PruneSchedule      string `yaml:"prune_schedule"`
}

type databaseFile struct {
	Driver string `yaml:"driver"`
	URL    string `yaml:"url"`
}

type linearFile struct {
	APIKey     string `yaml:"api_key"`
	SigningKey string `yaml:"signing_key"`
	APIURL     string `yaml:"api_url"`
}

type telegramFile struct {
	Token   string `yaml:"token"`
	AdminID int64  `yaml:"admin_id"`
}

func defaults() fileConfig {
	return fileConfig{
		Environment: "local",
		LogLevel:    "info",
		Application: applicationFile{
			HTTPAddr:           ":8000",
			TimeToRemind:       "24h",
			WatchedStatus:      "In Review",
			Message:            "This issue has been waiting in review for a while. Is anything blocking it?",
			ScanInterval:       "5s",
			SendTimeout:        "10s",
			BatchSize:          100,
			TombstoneRetention: "720h",
			PruneSchedule:      "0 3 * * *",
		},
		Database: databaseFile{Driver: "postgres"},
		Linear:   linearFile{APIURL: "https://api.linear.app/graphql"},
	}
}

// envOverrides maps LR_ variables onto the file layout. Section and key are
// separated by a double underscore.
var envOverrides = map[string]func(*fileConfig, string) error{
	"LOG_LEVEL":                        func(c *fileConfig, v string) error { c.LogLevel = v; return nil },
	"APPLICATION__HTTP_ADDR":           func(c *fileConfig, v string) error { c.Application.HTTPAddr = v; return nil },
	"APPLICATION__TIME_TO_REMIND":      func(c *fileConfig, v string) error { c.Application.TimeToRemind = v; return nil },
	"APPLICATION__WATCHED_STATUS":      func(c *fileConfig, v string) error { c.Application.WatchedStatus = v; return nil },
	"APPLICATION__MESSAGE":             func(c *fileConfig, v string) error { c.Application.Message = v; return nil },
	"APPLICATION__SCAN_INTERVAL":       func(c *fileConfig, v string) error { c.Application.ScanInterval = v; return nil },
	"APPLICATION__SEND_TIMEOUT":        func(c *fileConfig, v string) error { c.Application.SendTimeout = v; return nil },
	"APPLICATION__TOMBSTONE_RETENTION": func(c *fileConfig, v string) error { c.Application.TombstoneRetention = v; return nil },
	"APPLICATION__PRUNE_SCHEDULE":      func(c *fileConfig, v string) error { c.Application.PruneSchedule = v; return nil },
	"APPLICATION__BATCH_SIZE": func(c *fileConfig, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid batch size: %w", err)
		}
		c.Application.BatchSize = n
		return nil
	},
	"DATABASE__DRIVER":    func(c *fileConfig, v string) error { c.Database.Driver = v; return nil },
	"DATABASE__URL":       func(c *fileConfig, v string) error { c.Database.URL = v; return nil },
	"LINEAR__API_KEY":     func(c *fileConfig, v string) error { c.Linear.APIKey = v; return nil },
	"LINEAR__SIGNING_KEY": func(c *fileConfig, v string) error { c.Linear.SigningKey = v; return nil },
	"LINEAR__API_URL":     func(c *fileConfig, v string) error { c.Linear.APIURL = v; return nil },
	"TELEGRAM__TOKEN":     func(c *fileConfig, v string) error { c.Telegram.Token = v; return nil },
	"TELEGRAM__ADMIN_ID": func(c *fileConfig, v string) error {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid telegram admin id: %w", err)
		}
		c.Telegram.AdminID = id
		return nil
	},
}

// Load reads configuration from ./config, a .env file (if present) and LR_ variables.
func Load() (*AppConfig, error) {
	return LoadDir("config")
}

// LoadDir layers defaults, <dir>/base.yaml, <dir>/<environment>.yaml and the
// environment. Missing files are skipped.
func LoadDir(dir string) (*AppConfig, error) {
	// godotenv.Load will not override existing env variables.
	_ = godotenv.Load()

	fc := defaults()
	env := strings.ToLower(strings.TrimSpace(os.Getenv(EnvPrefix + "ENVIRONMENT")))
	if env == "" {
		env = fc.Environment
	}
	fc.Environment = env

	for _, name := range []string{"base.yaml", env + ".yaml"} {
		if err := readYAML(filepath.Join(dir, name), &fc); err != nil {
			return nil, err
		}
	}
	// the selected environment wins over whatever the files say
	fc.Environment = env

	for key, set := range envOverrides {
		v, ok := os.LookupEnv(EnvPrefix + key)
		if !ok {
			continue
		}
		if err := set(&fc, strings.TrimSpace(v)); err != nil {
			return nil, fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
		}
	}

	return build(fc)
}

func readYAML(path string, into *fileConfig) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, into); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func build(fc fileConfig) (*AppConfig, error) {
	cfg := &AppConfig{
		Environment: fc.Environment,
		LogLevel:    strings.ToLower(fc.LogLevel),
		HTTPAddr:    fc.Application.HTTPAddr,
		Database: DatabaseConfig{
			Driver: strings.ToLower(strings.TrimSpace(fc.Database.Driver)),
			URL:    fc.Database.URL,
		},
		Linear: LinearConfig{
			APIKey:     NewSecret(fc.Linear.APIKey),
			SigningKey: NewSecret(fc.Linear.SigningKey),
			APIURL:     fc.Linear.APIURL,
		},
		Telegram: TelegramConfig{
			Token:   NewSecret(fc.Telegram.Token),
			AdminID: fc.Telegram.AdminID,
		},
	}

	var err error
	app := fc.Application
	r := &cfg.Reminder
	if r.TimeToRemind, err = parseDuration("application.time_to_remind", app.TimeToRemind); err != nil {
		return nil, err
	}
	if r.TimeToRemind <= 0 {
		return nil, fmt.Errorf("application.time_to_remind must be > 0")
	}
	if r.ScanInterval, err = parseDuration("application.scan_interval", app.ScanInterval); err != nil {
		return nil, err
	}
	if r.ScanInterval <= 0 {
		return nil, fmt.Errorf("application.scan_interval must be > 0")
	}
	if r.SendTimeout, err = parseDuration("application.send_timeout", app.SendTimeout); err != nil {
		return nil, err
	}
	if r.TombstoneRetention, err = parseDuration("application.tombstone_retention", app.TombstoneRetention); err != nil {
		return nil, err
	}
	r.WatchedStatus = strings.TrimSpace(app.WatchedStatus)
	r.Message = app.Message
	r.BatchSize = app.BatchSize
	r.PruneSchedule = app.PruneSchedule

	if r.WatchedStatus == "" {
		return nil, fmt.Errorf("application.watched_status is not set")
	}
	if strings.TrimSpace(r.Message) == "" {
		return nil, fmt.Errorf("application.message is not set")
	}
	if cfg.Linear.APIKey.Empty() {
		return nil, fmt.Errorf("linear.api_key is not set")
	}
	if cfg.Linear.SigningKey.Empty() {
		return nil, fmt.Errorf("linear.signing_key is not set")
	}

	switch cfg.Database.Driver {
	case "postgres":
		if cfg.Database.URL == "" {
			return nil, fmt.Errorf("database.url is not set")
		}
	case "sqlite":
		if cfg.Database.URL == "" {
			cfg.Database.URL = "reminder.db"
		}
	default:
		return nil, fmt.Errorf("unsupported database.driver %q", cfg.Database.Driver)
	}

	return cfg, nil
}

func parseDuration(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}
