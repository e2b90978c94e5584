package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	yaml "go.yaml.in/yaml/v3"
)

func writeFile(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600))
}

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("LR_LINEAR__API_KEY", "lin_api_key")
	t.Setenv("LR_LINEAR__SIGNING_KEY", "lin_wh_secret")
	t.Setenv("LR_DATABASE__URL", "postgres://localhost/reminder?sslmode=disable")
}

func TestLoadDir_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := LoadDir(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "local", cfg.Environment)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, ":8000", cfg.HTTPAddr)
	assert.Equal(t, 24*time.Hour, cfg.Reminder.TimeToRemind)
	assert.Equal(t, "In Review", cfg.Reminder.WatchedStatus)
	assert.Equal(t, 5*time.Second, cfg.Reminder.ScanInterval)
	assert.Equal(t, "@every 5s", cfg.Reminder.ScanSpec())
	assert.Equal(t, 100, cfg.Reminder.BatchSize)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "lin_api_key", cfg.Linear.APIKey.Reveal())
	assert.False(t, cfg.Telegram.Enabled())
}

func TestLoadDir_FileLayering(t *testing.T) {
	setRequired(t)
	t.Setenv("LR_ENVIRONMENT", "production")
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", `
log_level: debug
application:
  time_to_remind: 30m
  watched_status: Review
`)
	writeFile(t, dir, "production.yaml", `
log_level: warn
application:
  message: "Still in review?"
database:
  driver: sqlite
  url: /var/lib/reminder.db
telegram:
  token: "123:abc"
  admin_id: 42
`)

	cfg, err := LoadDir(dir)
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, 30*time.Minute, cfg.Reminder.TimeToRemind)
	assert.Equal(t, "Review", cfg.Reminder.WatchedStatus)
	assert.Equal(t, "Still in review?", cfg.Reminder.Message)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	// env wins over the file
	assert.Equal(t, "postgres://localhost/reminder?sslmode=disable", cfg.Database.URL)
	assert.True(t, cfg.Telegram.Enabled())
	assert.Equal(t, int64(42), cfg.Telegram.AdminID)
}

func TestLoadDir_EnvOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("LR_APPLICATION__TIME_TO_REMIND", "1s")
	t.Setenv("LR_APPLICATION__BATCH_SIZE", "7")
	t.Setenv("LR_TELEGRAM__ADMIN_ID", "99")

	cfg, err := LoadDir(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, time.Second, cfg.Reminder.TimeToRemind)
	assert.Equal(t, 7, cfg.Reminder.BatchSize)
	assert.Equal(t, int64(99), cfg.Telegram.AdminID)
}

func TestLoadDir_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"bad duration", map[string]string{"LR_APPLICATION__TIME_TO_REMIND": "soon"}, "application.time_to_remind: invalid duration"},
		{"zero dwell", map[string]string{"LR_APPLICATION__TIME_TO_REMIND": "0s"}, "application.time_to_remind must be > 0"},
		{"missing api key", map[string]string{"LR_LINEAR__API_KEY": ""}, "linear.api_key is not set"},
		{"missing signing key", map[string]string{"LR_LINEAR__SIGNING_KEY": ""}, "linear.signing_key is not set"},
		{"unknown driver", map[string]string{"LR_DATABASE__DRIVER": "mysql"}, `unsupported database.driver "mysql"`},
		{"empty watched status", map[string]string{"LR_APPLICATION__WATCHED_STATUS": " "}, "application.watched_status is not set"},
		{"bad batch size", map[string]string{"LR_APPLICATION__BATCH_SIZE": "many"}, "LR_APPLICATION__BATCH_SIZE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadDir(t.TempDir())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadDir_SQLiteDefaultPath(t *testing.T) {
	setRequired(t)
	t.Setenv("LR_DATABASE__DRIVER", "sqlite")
	t.Setenv("LR_DATABASE__URL", "")

	cfg, err := LoadDir(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "reminder.db", cfg.Database.URL)
}

func TestSecret_Redaction(t *testing.T) {
	s := NewSecret("hunter2")

	assert.Equal(t, "hunter2", s.Reveal())
	for _, format := range []string{"%v", "%s", "%+v", "%#v", "%q", "%x"} {
		assert.Equal(t, redacted, fmt.Sprintf(format, s), format)
	}

	js, err := json.Marshal(LinearConfig{APIKey: s, APIURL: "u"})
	require.NoError(t, err)
	assert.NotContains(t, string(js), "hunter2")

	ys, err := yaml.Marshal(map[string]Secret{"token": s})
	require.NoError(t, err)
	assert.NotContains(t, string(ys), "hunter2")

	assert.NotContains(t, fmt.Sprintf("%+v", TelegramConfig{Token: s}), "hunter2")
}
