package dataset

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/argus-v/argus-ml/internal/analytics/frame"
	"github.com/argus-v/argus-ml/internal/errs"
)

// DefaultValidationFraction is the share of normal rows held out for tuning.
const DefaultValidationFraction = 0.2

// Split holds the frames used by a training run. Baseline and Train contain
// only normal rows. Validation mixes held-out normal rows with an equal
// number of attack rows where enough attacks exist.
type Split struct {
	Baseline         *frame.Frame
	Train            *frame.Frame
	Validation       *frame.Frame
	ValidationLabels []int
	Test             *frame.Frame
	TestLabels       []int
}

// BuildSplit partitions training rows by label and attaches test as the
// held-out evaluation set. test may be nil.
func BuildSplit(train, test *frame.Frame, validationFraction float64, seed int64) (*Split, error) {
	if validationFraction <= 0 || validationFraction >= 1 {
		return nil, fmt.Errorf("validation fraction must be in (0, 1), got %g", validationFraction)
	}
	labels, err := train.Labels(LabelColumn)
	if err != nil {
		return nil, err
	}

	var normal, attack []int
	for i, l := range labels {
		if l == 0 {
			normal = append(normal, i)
		} else {
			attack = append(attack, i)
		}
	}
	if len(normal) == 0 {
		return nil, &errs.InsufficientDataError{Reason: "no normal rows in training data"}
	}

	rng := rand.New(rand.NewSource(seed))
	shuffled := append([]int(nil), normal...)
	rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	nVal := int(math.Ceil(validationFraction * float64(len(shuffled))))
	if nVal >= len(shuffled) {
		return nil, &errs.InsufficientDataError{
			Reason: fmt.Sprintf("%d normal rows leave nothing to train on after holding out validation", len(shuffled)),
		}
	}
	normalVal, normalTrain := shuffled[:nVal], shuffled[nVal:]

	nAttack := len(normalVal)
	if nAttack > len(attack) {
		nAttack = len(attack)
	}
	attackVal := make([]int, nAttack)
	for i, p := range rng.Perm(len(attack))[:nAttack] {
		attackVal[i] = attack[p]
	}

	valIdx := append(append([]int(nil), normalVal...), attackVal...)
	rng.Shuffle(len(valIdx), func(i, j int) { valIdx[i], valIdx[j] = valIdx[j], valIdx[i] })

	s := &Split{
		Baseline:   train.Take(normal),
		Train:      train.Take(normalTrain),
		Validation: train.Take(valIdx),
	}
	s.ValidationLabels = make([]int, len(valIdx))
	for i, idx := range valIdx {
		s.ValidationLabels[i] = labels[idx]
	}

	if test != nil {
		s.Test = test
		if s.TestLabels, err = test.Labels(LabelColumn); err != nil {
			return nil, fmt.Errorf("test set: %w", err)
		}
	}
	return s, nil
}
