package tuning

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/argus-v/argus-ml/internal/analytics/frame"
	"github.com/argus-v/argus-ml/internal/artifact"
	"github.com/argus-v/argus-ml/internal/inference"
)

// smokeRows is how many test rows SmokeCheck scores.
const smokeRows = 5

// SmokeResult is the outcome of SmokeCheck. Callers may ignore it.
type SmokeResult struct {
	OK   bool
	Rows int
	Err  error
}

// SmokeCheck reloads the artifact at path and scores the first rows of
// sample through a fresh engine. It logs the outcome and never panics.
func SmokeCheck(store *artifact.Store, path string, sample *frame.Frame, logger *zap.Logger) SmokeResult {
	if logger == nil {
		logger = zap.NewNop()
	}
	res := smokeCheck(store, path, sample)
	if res.OK {
		logger.Info("inference smoke check passed", zap.String("path", path), zap.Int("rows", res.Rows))
	} else {
		logger.Warn("inference smoke check failed", zap.String("path", path), zap.Error(res.Err))
	}
	return res
}

func smokeCheck(store *artifact.Store, path string, sample *frame.Frame) SmokeResult {
	if sample == nil || sample.Rows() == 0 {
		return SmokeResult{Err: fmt.Errorf("no sample rows")}
	}
	art, err := store.Load(path)
	if err != nil {
		return SmokeResult{Err: err}
	}
	preds, err := inference.NewEngine(art, nil).PredictFlows(sample.Head(smokeRows))
	if err != nil {
		return SmokeResult{Err: err}
	}
	return SmokeResult{OK: true, Rows: len(preds)}
}
