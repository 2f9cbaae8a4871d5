// Package feedback keeps the operator trust ledger and the retrain marker.
package feedback

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/argus-v/argus-ml/internal/errs"
	"github.com/argus-v/argus-ml/internal/metrics"
)

const (
	// LedgerFile is the ledger's name inside Config.Dir.
	LedgerFile = "trusted_ips.json"
	// MarkerFile is the retrain marker's name inside Config.MarkerDir.
	MarkerFile = "trigger_retrain"
)

// Status of a ledger entry.
type Status string

const (
	StatusActive  Status = "active"
	StatusRevoked Status = "revoked"
)

// TrustedIP is one ledger entry.
type TrustedIP struct {
	IP        string    `json:"ip"`
	Reason    string    `json:"reason"`
	Status    Status    `json:"status"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

// Config locates the ledger and marker.
type Config struct {
	Dir       string
	MarkerDir string
}

// ErrUnknownIP is returned by Revoke for an ip absent from the ledger.
var ErrUnknownIP = errors.New("ip is not in the trust ledger")

// Manager owns the trust ledger. Writes are serialized within the process
// by a mutex and across processes by an advisory lock on the ledger
// directory. Reads go through a lazily loaded cache that Invalidate drops.
type Manager struct {
	ledgerPath string
	markerPath string
	lockPath   string
	logger     *zap.Logger
	now        func() time.Time

	mu     sync.Mutex
	cache  []TrustedIP
	loaded bool
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) ManagerOption {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) ManagerOption { return func(m *Manager) { m.now = now } }

// NewManager creates a Manager. Directories are created on first write.
func NewManager(cfg Config, opts ...ManagerOption) *Manager {
	markerDir := cfg.MarkerDir
	if markerDir == "" {
		markerDir = cfg.Dir
	}
	m := &Manager{
		ledgerPath: filepath.Join(cfg.Dir, LedgerFile),
		markerPath: filepath.Join(markerDir, MarkerFile),
		lockPath:   filepath.Join(cfg.Dir, "."+LedgerFile+".lock"),
		logger:     zap.NewNop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.Named("feedback")
	return m
}

// LedgerPath returns the ledger file path.
func (m *Manager) LedgerPath() string { return m.ledgerPath }

// MarkerPath returns the retrain marker path.
func (m *Manager) MarkerPath() string { return m.markerPath }

// ReportFalsePositive marks ip as trusted. An existing entry is reactivated
// with the new reason; otherwise a new entry is appended.
func (m *Manager) ReportFalsePositive(ip, reason string) error {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return fmt.Errorf("ip must not be empty")
	}
	err := m.update(func(entries []TrustedIP, now time.Time) ([]TrustedIP, error) {
		for i := range entries {
			if entries[i].IP == ip {
				entries[i].Reason = reason
				entries[i].LastSeen = now
				entries[i].Status = StatusActive
				return entries, nil
			}
		}
		return append(entries, TrustedIP{
			IP:        ip,
			Reason:    reason,
			Status:    StatusActive,
			FirstSeen: now,
			LastSeen:  now,
		}), nil
	})
	m.observe("report", ip, err)
	return err
}

// Revoke marks ip as no longer trusted. The entry is kept for audit.
func (m *Manager) Revoke(ip string) error {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return fmt.Errorf("ip must not be empty")
	}
	err := m.update(func(entries []TrustedIP, now time.Time) ([]TrustedIP, error) {
		for i := range entries {
			if entries[i].IP == ip {
				entries[i].Status = StatusRevoked
				entries[i].LastSeen = now
				return entries, nil
			}
		}
		return nil, ErrUnknownIP
	})
	m.observe("revoke", ip, err)
	return err
}

func (m *Manager) observe(action, ip string, err error) {
	status := "success"
	if err != nil {
		status = "error"
		m.logger.Error("trust ledger update failed", zap.String("action", action), zap.String("ip", ip), zap.Error(err))
	} else {
		m.logger.Info("trust ledger updated", zap.String("action", action), zap.String("ip", ip))
	}
	metrics.FeedbackReportsTotal.WithLabelValues(action, status).Inc()
}

// update runs fn on the on-disk ledger and writes the result atomically.
func (m *Manager) update(fn func([]TrustedIP, time.Time) ([]TrustedIP, error)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(m.ledgerPath), 0o755); err != nil {
		return &errs.PersistenceError{Path: m.ledgerPath, Err: err}
	}
	unlock, err := lockFile(m.lockPath)
	if err != nil {
		return &errs.PersistenceError{Path: m.lockPath, Err: err}
	}
	defer unlock()

	entries, err := m.readLedger()
	if err != nil {
		return err
	}
	entries, err = fn(entries, m.now().UTC())
	if err != nil {
		return err
	}
	if err := m.writeLedger(entries); err != nil {
		return &errs.PersistenceError{Path: m.ledgerPath, Err: err}
	}
	m.cache = entries
	m.loaded = true
	metrics.TrustedIPs.Set(float64(len(entries)))
	return nil
}

func (m *Manager) readLedger() ([]TrustedIP, error) {
	data, err := os.ReadFile(m.ledgerPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, nil
	}
	var entries []TrustedIP
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, &errs.LedgerCorruptError{Path: m.ledgerPath, Err: err}
	}
	return entries, nil
}

func (m *Manager) writeLedger(entries []TrustedIP) (err error) {
	if entries == nil {
		entries = []TrustedIP{}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(m.ledgerPath), "."+LedgerFile+".*.tmp")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()
	if _, err = tmp.Write(data); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), m.ledgerPath)
}

// TrustedIPs returns a copy of every ledger entry.
func (m *Manager) TrustedIPs() ([]TrustedIP, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.loaded {
		entries, err := m.readLedger()
		if err != nil {
			return nil, err
		}
		m.cache, m.loaded = entries, true
		metrics.TrustedIPs.Set(float64(len(entries)))
	}
	return append([]TrustedIP(nil), m.cache...), nil
}

// IsTrusted reports whether ip has an active entry.
func (m *Manager) IsTrusted(ip string) (bool, error) {
	entries, err := m.TrustedIPs()
	if err != nil {
		return false, err
	}
	ip = strings.TrimSpace(ip)
	for _, e := range entries {
		if e.IP == ip {
			return e.Status == StatusActive, nil
		}
	}
	return false, nil
}

// Invalidate drops the cache so the next read goes to disk.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache, m.loaded = nil, false
}

// TriggerRetrain creates the retrain marker. An existing marker counts as
// success; only the consumer of the marker removes it.
func (m *Manager) TriggerRetrain() error {
	if err := os.MkdirAll(filepath.Dir(m.markerPath), 0o755); err != nil {
		metrics.RetrainTriggersTotal.WithLabelValues("error").Inc()
		return &errs.PersistenceError{Path: m.markerPath, Err: err}
	}
	fh, err := os.OpenFile(m.markerPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if errors.Is(err, fs.ErrExist) {
		metrics.RetrainTriggersTotal.WithLabelValues("already_set").Inc()
		return nil
	}
	if err != nil {
		metrics.RetrainTriggersTotal.WithLabelValues("error").Inc()
		return &errs.PersistenceError{Path: m.markerPath, Err: err}
	}
	metrics.RetrainTriggersTotal.WithLabelValues("created").Inc()
	m.logger.Info("retrain requested", zap.String("marker", m.markerPath))
	return fh.Close()
}

// RetrainRequested reports whether the marker exists.
func (m *Manager) RetrainRequested() (bool, error) {
	_, err := os.Stat(m.markerPath)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}
