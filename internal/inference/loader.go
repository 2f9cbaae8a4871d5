package inference

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/argus-v/argus-ml/internal/artifact"
)

// Loader loads the artifact at a fixed path on first use and shares the
// resulting Engine across callers. Failed loads are not cached.
type Loader struct {
	path   string
	store  *artifact.Store
	logger *zap.Logger

	mu     sync.Mutex
	engine atomic.Pointer[Engine]
}

// NewLoader creates a Loader for path.
func NewLoader(path string, store *artifact.Store, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{path: path, store: store, logger: logger.Named("loader")}
}

// Path returns the artifact path.
func (l *Loader) Path() string { return l.path }

// Engine returns the shared engine, loading the artifact if needed.
func (l *Loader) Engine() (*Engine, error) {
	if e := l.engine.Load(); e != nil {
		return e, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if e := l.engine.Load(); e != nil {
		return e, nil
	}
	return l.loadLocked()
}

// Reload reads the artifact again and swaps in a new engine. On failure
// the current engine stays in place.
func (l *Loader) Reload() (*Engine, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loadLocked()
}

// Loaded reports whether an engine is available without loading one.
func (l *Loader) Loaded() bool { return l.engine.Load() != nil }

func (l *Loader) loadLocked() (*Engine, error) {
	art, err := l.store.Load(l.path)
	if err != nil {
		l.logger.Error("failed to load artifact", zap.String("path", l.path), zap.Error(err))
		return nil, err
	}
	e := NewEngine(art, l.logger)
	l.engine.Store(e)
	l.logger.Info("artifact loaded",
		zap.String("path", l.path),
		zap.String("dataset", art.Dataset),
		zap.Time("trained_at", art.TrainedAt),
	)
	return e, nil
}
