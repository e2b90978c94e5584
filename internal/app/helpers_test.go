package app

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"linear_reminder_bot/internal/domain/tracking"
	"linear_reminder_bot/internal/infra/config"
	"linear_reminder_bot/internal/infra/database"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

const (
	watched = "In Review"
	adminID = int64(4242)
)

var t0 = time.Date(2024, 3, 28, 5, 10, 45, 0, time.UTC)

func testConfig() *config.AppConfig {
	return &config.AppConfig{
		Reminder: config.ReminderConfig{
			TimeToRemind:  30 * time.Minute,
			WatchedStatus: watched,
			Message:       "Still in review?",
			SendTimeout:   time.Second,
			BatchSize:     100,
		},
		Telegram: config.TelegramConfig{AdminID: adminID},
	}
}

func newRepo(t *testing.T) tracking.Repository {
	t.Helper()
	db, err := database.NewSQLiteConnection(filepath.Join(t.TempDir(), "app.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(context.Background(), db, "sqlite"))
	return database.NewSQLiteTimingRepository(db)
}

func newLogger() (*logrus.Entry, *logtest.Hook) {
	l, hook := logtest.NewNullLogger()
	l.SetLevel(logrus.DebugLevel)
	return logrus.NewEntry(l), hook
}

type comment struct {
	IssueID string
	Body    string
}

type fakeCommenter struct {
	mu    sync.Mutex
	calls []comment
	err   error
}

func (f *fakeCommenter) CreateComment(ctx context.Context, issueID, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, comment{IssueID: issueID, Body: body})
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("outbound call without deadline")
	}
	return f.err
}

func (f *fakeCommenter) Calls() []comment {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]comment(nil), f.calls...)
}

type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (f *fakeNotifier) Notify(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, text)
	return nil
}

// brokenRepo fails every call, standing in for an unavailable database.
type brokenRepo struct{ tracking.Repository }

var errStoreDown = errors.New("connection refused")

func (brokenRepo) UpsertEntered(context.Context, string, time.Time) (bool, error) {
	return false, errStoreDown
}
func (brokenRepo) Clear(context.Context, string, time.Time) (bool, error) { return false, errStoreDown }
func (brokenRepo) FindDue(context.Context, time.Duration, time.Time, int) ([]*tracking.Item, error) {
	return nil, errStoreDown
}

func ptr(s string) *string { return &s }
