package artifact

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/zeebo/blake3"
	"go.uber.org/zap"

	"github.com/argus-v/argus-ml/internal/analytics/ml"
	"github.com/argus-v/argus-ml/internal/errs"
	"github.com/argus-v/argus-ml/internal/metrics"
)

// SaveInfo describes a written artifact.
type SaveInfo struct {
	Path   string `json:"path"`
	Size   int64  `json:"size"`
	Digest string `json:"digest"`
}

// Store reads and writes artifacts as single msgpack files.
type Store struct {
	logger *zap.Logger
}

// NewStore creates a Store. A nil logger disables logging.
func NewStore(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{logger: logger.Named("artifact")}
}

// Save encodes art and writes it to path through a temporary file in the
// same directory, so readers never observe a partial artifact.
func (s *Store) Save(path string, art *ModelArtifact) (SaveInfo, error) {
	if art == nil || art.Scorer == nil || art.Scaler == nil {
		return SaveInfo{}, fmt.Errorf("artifact: scorer and scaler are required")
	}
	scorer, err := ml.EncodeScorer(art.Scorer)
	if err != nil {
		return SaveInfo{}, err
	}
	scaler, err := ml.EncodeScaler(art.Scaler)
	if err != nil {
		return SaveInfo{}, err
	}
	data, err := msgpack.Marshal(&blob{
		TrainedAt:         art.TrainedAt.UTC(),
		Dataset:           art.Dataset,
		FeatureSpec:       art.FeatureSpec,
		FeatureColumns:    art.FeatureColumns,
		Transform:         art.Transform,
		Hyperparameters:   art.Hyperparameters,
		ValidationMetrics: art.ValidationMetrics,
		TestMetrics:       art.TestMetrics,
		Scorer:            scorer,
		Scaler:            scaler,
	})
	if err != nil {
		return SaveInfo{}, fmt.Errorf("encode artifact: %w", err)
	}

	if err := writeAtomic(path, data); err != nil {
		return SaveInfo{}, &errs.PersistenceError{Path: path, Err: err}
	}
	sum := blake3.Sum256(data)
	info := SaveInfo{Path: path, Size: int64(len(data)), Digest: hex.EncodeToString(sum[:])}
	s.logger.Info("artifact saved",
		zap.String("path", path),
		zap.Int64("size", info.Size),
		zap.String("digest", info.Digest),
	)
	return info, nil
}

// Load reads an artifact. Missing scorer or scaler state, or an undecodable
// file, yields *errs.ArtifactCorruptError.
func (s *Store) Load(path string) (*ModelArtifact, error) {
	art, err := s.load(path)
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.ArtifactLoadsTotal.WithLabelValues(status).Inc()
	return art, err
}

func (s *Store) load(path string) (*ModelArtifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	var b blob
	if err := msgpack.Unmarshal(data, &b); err != nil {
		return nil, &errs.ArtifactCorruptError{Path: path, Reason: err.Error()}
	}
	if b.Scorer.Empty() {
		return nil, &errs.ArtifactCorruptError{Path: path, Reason: "missing scorer"}
	}
	if b.Scaler.Empty() {
		return nil, &errs.ArtifactCorruptError{Path: path, Reason: "missing scaler"}
	}
	scorer, err := ml.DecodeScorer(b.Scorer)
	if err != nil {
		return nil, &errs.ArtifactCorruptError{Path: path, Reason: err.Error()}
	}
	scaler, err := ml.DecodeScaler(b.Scaler)
	if err != nil {
		return nil, &errs.ArtifactCorruptError{Path: path, Reason: err.Error()}
	}
	if err := b.FeatureSpec.Validate(); err != nil {
		return nil, &errs.ArtifactCorruptError{Path: path, Reason: err.Error()}
	}

	s.logger.Debug("artifact loaded", zap.String("path", path), zap.Time("trained_at", b.TrainedAt))
	return &ModelArtifact{
		TrainedAt:         b.TrainedAt.UTC(),
		Dataset:           b.Dataset,
		FeatureSpec:       b.FeatureSpec,
		FeatureColumns:    b.FeatureColumns,
		Transform:         b.Transform,
		Hyperparameters:   b.Hyperparameters,
		ValidationMetrics: b.ValidationMetrics,
		TestMetrics:       b.TestMetrics,
		Scorer:            scorer,
		Scaler:            scaler,
	}, nil
}

// Digest returns the hex BLAKE3-256 digest of the file at path.
func Digest(path string) (string, error) {
	fh, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer fh.Close()
	h := blake3.New()
	if _, err := io.Copy(h, fh); err != nil {
		return "", fmt.Errorf("digest %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func writeAtomic(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
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
	return os.Rename(tmp.Name(), path)
}

// IsCorrupt reports whether err is an *errs.ArtifactCorruptError.
func IsCorrupt(err error) bool {
	var corrupt *errs.ArtifactCorruptError
	return errors.As(err, &corrupt)
}
