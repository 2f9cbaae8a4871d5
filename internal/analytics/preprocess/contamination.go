package preprocess

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/argus-v/argus-ml/internal/analytics/frame"
	"github.com/argus-v/argus-ml/internal/analytics/ml"
	"github.com/argus-v/argus-ml/internal/metrics"
)

const contaminationCandidates = 10

// CandidateScore is the cross-validated score of one contamination value.
type CandidateScore struct {
	Contamination float64 `json:"contamination"`
	Score         float64 `json:"score"`
}

// ContaminationStats describes a contamination search.
type ContaminationStats struct {
	AutoTuneEnabled   bool             `json:"auto_tune_enabled"`
	Reason            string           `json:"reason,omitempty"`
	Range             [2]float64       `json:"contamination_range"`
	Scores            []CandidateScore `json:"scores,omitempty"`
	Skipped           []float64        `json:"skipped,omitempty"`
	BestContamination float64          `json:"best_contamination"`
	BestScore         float64          `json:"best_score"`
	FellBack          bool             `json:"fell_back"`
}

// TuneContamination searches ten evenly spaced contamination values across
// the configured range. Each candidate is scored by k-fold cross-validation
// (k = min(3, configured folds)): a forest fitted on the other folds scores
// the held-out fold by its mean decision value. A candidate that cannot be
// scored is skipped. When no candidate beats the starting score of zero the
// range minimum is returned.
//
// This search is advisory; the grid tuner makes the authoritative choice.
func (p *Preprocessor) TuneContamination(ctx context.Context, f *frame.Frame) (float64, ContaminationStats) {
	stats := ContaminationStats{
		AutoTuneEnabled: true,
		Range:           [2]float64{p.cfg.ContaminationMin, p.cfg.ContaminationMax},
	}
	best, bestScore := p.cfg.ContaminationMin, 0.0
	found := false

	rows, matrixErr := f.Matrix(f.NumericNames()...)
	for _, c := range ml.Linspace(p.cfg.ContaminationMin, p.cfg.ContaminationMax, contaminationCandidates) {
		var score float64
		err := matrixErr
		if err == nil {
			err = ctx.Err()
		}
		if err == nil {
			score, err = p.crossValidate(rows, c)
		}
		if err != nil {
			stats.Skipped = append(stats.Skipped, c)
			metrics.ContaminationCandidatesSkipped.Inc()
			p.logger.Warn("contamination tuning failed for value",
				zap.Float64("contamination", c),
				zap.Error(err),
			)
			continue
		}
		stats.Scores = append(stats.Scores, CandidateScore{Contamination: c, Score: score})
		if score > bestScore {
			best, bestScore, found = c, score, true
		}
	}

	stats.BestContamination = best
	stats.BestScore = bestScore
	stats.FellBack = !found
	if !found {
		p.logger.Warn("contamination tuning found no improving value, using range minimum",
			zap.Float64("default_contamination", best),
		)
	}
	p.logger.Info("contamination tuning completed",
		zap.Float64("best_contamination", best),
		zap.Float64("best_score", bestScore),
		zap.Int("skipped", len(stats.Skipped)),
	)
	return best, stats
}

func (p *Preprocessor) crossValidate(rows [][]float64, contamination float64) (float64, error) {
	k := p.cfg.CrossValidationFolds
	if k > 3 {
		k = 3
	}
	if k < 2 {
		k = 2
	}
	if len(rows) < 2*k {
		return 0, fmt.Errorf("%d rows are too few for %d folds", len(rows), k)
	}

	total := 0.0
	for fold := 0; fold < k; fold++ {
		lo, hi := fold*len(rows)/k, (fold+1)*len(rows)/k
		train := make([][]float64, 0, len(rows)-(hi-lo))
		train = append(train, rows[:lo]...)
		train = append(train, rows[hi:]...)

		forest := ml.NewIsolationForest(
			ml.WithTrees(p.cfg.TuneEnsembleSize),
			ml.WithContamination(contamination),
			ml.WithSeed(p.cfg.Seed),
		)
		if err := forest.Fit(train); err != nil {
			return 0, err
		}
		decision, err := forest.Decision(rows[lo:hi])
		if err != nil {
			return 0, err
		}
		sum := 0.0
		for _, d := range decision {
			sum += d
		}
		total += sum / float64(len(decision))
	}
	return total / float64(k), nil
}
