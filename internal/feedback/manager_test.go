package feedback

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/argus-v/argus-ml/internal/errs"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	dir := t.TempDir()
	clock := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	return NewManager(Config{Dir: filepath.Join(dir, "feedback"), MarkerDir: filepath.Join(dir, "markers")},
		WithClock(func() time.Time {
			clock = clock.Add(time.Minute)
			return clock
		}))
}

func readLedgerFile(t *testing.T, m *Manager) []TrustedIP {
	t.Helper()
	data, err := os.ReadFile(m.LedgerPath())
	require.NoError(t, err)
	var entries []TrustedIP
	require.NoError(t, json.Unmarshal(data, &entries))
	return entries
}

func TestReportFalsePositiveUpserts(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.ReportFalsePositive("10.0.0.5", "backup job"))
	require.NoError(t, m.ReportFalsePositive("10.0.0.5", "nightly backup"))

	entries := readLedgerFile(t, m)
	require.Len(t, entries, 1)
	assert.Equal(t, "nightly backup", entries[0].Reason)
	assert.Equal(t, StatusActive, entries[0].Status)
	assert.True(t, entries[0].LastSeen.After(entries[0].FirstSeen))

	require.NoError(t, m.ReportFalsePositive("10.0.0.6", ""))
	assert.Len(t, readLedgerFile(t, m), 2)

	assert.Error(t, m.ReportFalsePositive("  ", "blank"))
}

func TestRevokeAndIsTrusted(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.ReportFalsePositive("192.168.1.1", "scanner"))

	trusted, err := m.IsTrusted("192.168.1.1")
	require.NoError(t, err)
	assert.True(t, trusted)

	require.NoError(t, m.Revoke("192.168.1.1"))
	trusted, err = m.IsTrusted("192.168.1.1")
	require.NoError(t, err)
	assert.False(t, trusted)

	entries, err := m.TrustedIPs()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, StatusRevoked, entries[0].Status)

	require.NoError(t, m.ReportFalsePositive("192.168.1.1", "scanner again"))
	trusted, _ = m.IsTrusted("192.168.1.1")
	assert.True(t, trusted, "reporting again reactivates")

	assert.ErrorIs(t, m.Revoke("172.16.0.1"), ErrUnknownIP)
}

func TestTrustedIPsReturnsCopy(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.ReportFalsePositive("10.1.1.1", "x"))

	entries, err := m.TrustedIPs()
	require.NoError(t, err)
	entries[0].Status = StatusRevoked

	trusted, err := m.IsTrusted("10.1.1.1")
	require.NoError(t, err)
	assert.True(t, trusted)
}

func TestInvalidatePicksUpExternalWrites(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.ReportFalsePositive("10.0.0.1", "a"))
	_, err := m.TrustedIPs()
	require.NoError(t, err)

	other := NewManager(Config{Dir: filepath.Dir(m.LedgerPath())})
	require.NoError(t, other.ReportFalsePositive("10.0.0.2", "b"))

	entries, err := m.TrustedIPs()
	require.NoError(t, err)
	assert.Len(t, entries, 1, "cache is stale until invalidated")

	m.Invalidate()
	entries, err = m.TrustedIPs()
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestWritesAreReadModifyWrite(t *testing.T) {
	dir := t.TempDir()
	a := NewManager(Config{Dir: dir})
	b := NewManager(Config{Dir: dir})

	require.NoError(t, a.ReportFalsePositive("10.0.0.1", "a"))
	require.NoError(t, b.ReportFalsePositive("10.0.0.2", "b"))
	require.NoError(t, a.ReportFalsePositive("10.0.0.3", "c"))

	entries, err := NewManager(Config{Dir: dir}).TrustedIPs()
	require.NoError(t, err)
	assert.Len(t, entries, 3, "a stale cache never overwrites another writer's entry")
}

func TestConcurrentReports(t *testing.T) {
	m := newTestManager(t)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ip := "10.0.0.1"
			if i%2 == 0 {
				ip = "10.0.0.2"
			}
			assert.NoError(t, m.ReportFalsePositive(ip, "load"))
		}(i)
	}
	wg.Wait()
	assert.Len(t, readLedgerFile(t, m), 2)
}

func TestReportPersistenceError(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	m := NewManager(Config{Dir: blocker})
	err := m.ReportFalsePositive("10.0.0.1", "x")
	var persistErr *errs.PersistenceError
	assert.True(t, errors.As(err, &persistErr))
}

func TestCorruptLedger(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(m.LedgerPath()), 0o755))
	garbage := []byte("{not json")
	require.NoError(t, os.WriteFile(m.LedgerPath(), garbage, 0o644))

	var corrupt *errs.LedgerCorruptError
	_, err := m.TrustedIPs()
	require.True(t, errors.As(err, &corrupt), "got %v", err)
	assert.Equal(t, m.LedgerPath(), corrupt.Path)

	err = m.ReportFalsePositive("10.0.0.1", "x")
	require.True(t, errors.As(err, &corrupt), "got %v", err)
	var syntaxErr *json.SyntaxError
	assert.True(t, errors.As(err, &syntaxErr))

	data, err := os.ReadFile(m.LedgerPath())
	require.NoError(t, err)
	assert.Equal(t, garbage, data, "a corrupt ledger is never overwritten")
}

func TestTriggerRetrain(t *testing.T) {
	m := newTestManager(t)

	requested, err := m.RetrainRequested()
	require.NoError(t, err)
	assert.False(t, requested)

	require.NoError(t, m.TriggerRetrain())
	require.NoError(t, m.TriggerRetrain())

	requested, err = m.RetrainRequested()
	require.NoError(t, err)
	assert.True(t, requested)

	entries, err := os.ReadDir(filepath.Dir(m.MarkerPath()))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, MarkerFile, entries[0].Name())
}

func TestWatchLedgerInvalidates(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.ReportFalsePositive("10.0.0.1", "a"))
	_, err := m.TrustedIPs()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- WatchLedger(ctx, m) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	other := NewManager(Config{Dir: filepath.Dir(m.LedgerPath())})
	assert.Eventually(t, func() bool {
		// Keep writing until the watcher is registered and reacts.
		if err := other.ReportFalsePositive("10.0.0.2", "b"); err != nil {
			return false
		}
		entries, err := m.TrustedIPs()
		return err == nil && len(entries) == 2
	}, 5*time.Second, 50*time.Millisecond)
}
