package feedback

import (
	"context"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// WatchLedger invalidates m's cache whenever the ledger file is written by
// anyone, including other processes. It blocks until ctx is done.
func WatchLedger(ctx context.Context, m *Manager) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	dir := filepath.Dir(m.ledgerPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := w.Add(dir); err != nil {
		return err
	}
	m.logger.Info("watching trust ledger", zap.String("dir", dir))

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(m.ledgerPath) {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) || ev.Has(fsnotify.Remove) {
				m.Invalidate()
				m.logger.Debug("trust ledger changed on disk", zap.String("op", ev.Op.String()))
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			m.logger.Warn("ledger watcher error", zap.Error(err))
		}
	}
}
