package ml

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/vmihailenco/msgpack/v5"
)

// KindIsolationForest identifies the isolation forest scorer in artifacts.
const KindIsolationForest = "isolation_forest"

// isoNode is one node of a flattened isolation tree. Children are indexes
// into the owning tree's node slice.
type isoNode struct {
	Feature int     `msgpack:"f"`
	Split   float64 `msgpack:"s"`
	Left    int32   `msgpack:"l"`
	Right   int32   `msgpack:"r"`
	Size    int     `msgpack:"n"`
	Leaf    bool    `msgpack:"x"`
}

type isolationTree struct {
	Nodes []isoNode `msgpack:"nodes"`
}

// IsolationForest implements the Isolation Forest algorithm for anomaly detection.
// Fitting is deterministic for a given seed.
type IsolationForest struct {
	trees         []isolationTree
	numTrees      int
	subSampleSize int
	maxDepth      int
	contamination float64
	seed          int64

	// set by Fit
	sampleSize int
	dims       int
	threshold  float64
}

// Option configures an IsolationForest.
type Option func(*IsolationForest)

// WithTrees sets the ensemble size.
func WithTrees(n int) Option { return func(f *IsolationForest) { f.numTrees = n } }

// WithSubSampleSize sets the number of rows drawn per tree.
func WithSubSampleSize(n int) Option { return func(f *IsolationForest) { f.subSampleSize = n } }

// WithMaxDepth caps tree depth. Zero derives ceil(log2(sample size)).
func WithMaxDepth(d int) Option { return func(f *IsolationForest) { f.maxDepth = d } }

// WithContamination sets the expected outlier fraction used to place the
// decision threshold.
func WithContamination(c float64) Option { return func(f *IsolationForest) { f.contamination = c } }

// WithSeed sets the random seed.
func WithSeed(seed int64) Option { return func(f *IsolationForest) { f.seed = seed } }

// NewIsolationForest creates a new Isolation Forest.
func NewIsolationForest(opts ...Option) *IsolationForest {
	f := &IsolationForest{
		numTrees:      100,
		subSampleSize: 256,
		contamination: 0.1,
		seed:          42,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *IsolationForest) Kind() string { return KindIsolationForest }

// Contamination returns the configured outlier fraction.
func (f *IsolationForest) Contamination() float64 { return f.contamination }

// NumTrees returns the configured ensemble size.
func (f *IsolationForest) NumTrees() int { return f.numTrees }

// Threshold returns the anomaly score above which rows are outliers.
func (f *IsolationForest) Threshold() float64 { return f.threshold }

// Fit builds the trees and places the decision threshold at the
// (1 - contamination) quantile of the training scores.
func (f *IsolationForest) Fit(rows [][]float64) error {
	if len(rows) == 0 {
		return fmt.Errorf("isolation forest: no training rows")
	}
	if f.numTrees < 1 {
		return fmt.Errorf("isolation forest: ensemble size must be positive, got %d", f.numTrees)
	}
	if f.contamination <= 0 || f.contamination >= 1 {
		return fmt.Errorf("isolation forest: contamination must be in (0, 1), got %g", f.contamination)
	}
	dims := len(rows[0])
	if dims == 0 {
		return fmt.Errorf("isolation forest: rows have no features")
	}
	for i, r := range rows {
		if len(r) != dims {
			return fmt.Errorf("isolation forest: row %d has %d features, expected %d", i, len(r), dims)
		}
	}

	f.dims = dims
	f.sampleSize = f.subSampleSize
	if f.sampleSize <= 0 || f.sampleSize > len(rows) {
		f.sampleSize = len(rows)
	}
	maxDepth := f.maxDepth
	if maxDepth <= 0 {
		maxDepth = int(math.Ceil(math.Log2(math.Max(float64(f.sampleSize), 2))))
	}

	rng := rand.New(rand.NewSource(f.seed))
	idx := make([]int, len(rows))
	for i := range idx {
		idx[i] = i
	}

	f.trees = make([]isolationTree, 0, f.numTrees)
	for t := 0; t < f.numTrees; t++ {
		// Partial Fisher-Yates: the first sampleSize slots become the sample.
		for i := 0; i < f.sampleSize; i++ {
			j := i + rng.Intn(len(idx)-i)
			idx[i], idx[j] = idx[j], idx[i]
		}
		sample := make([][]float64, f.sampleSize)
		for i := range sample {
			sample[i] = rows[idx[i]]
		}
		tree := isolationTree{}
		tree.build(rng, sample, 0, maxDepth)
		f.trees = append(f.trees, tree)
	}

	scores, err := f.Score(rows)
	if err != nil {
		return err
	}
	sorted := append([]float64(nil), scores...)
	sort.Float64s(sorted)
	f.threshold = Quantile(sorted, 1-f.contamination)
	return nil
}

// build appends the subtree for data and returns its node index.
func (t *isolationTree) build(rng *rand.Rand, data [][]float64, depth, maxDepth int) int32 {
	self := int32(len(t.Nodes))
	t.Nodes = append(t.Nodes, isoNode{Size: len(data), Leaf: true})

	if len(data) <= 1 || depth >= maxDepth || allIdentical(data) {
		return self
	}

	// Randomly select a feature and split value
	feature := rng.Intn(len(data[0]))
	minVal, maxVal := featureRange(data, feature)
	split := minVal + rng.Float64()*(maxVal-minVal)

	left, right := splitData(data, feature, split)
	// If split didn't partition the data, make it a leaf
	if len(left) == 0 || len(right) == 0 {
		return self
	}

	l := t.build(rng, left, depth+1, maxDepth)
	r := t.build(rng, right, depth+1, maxDepth)
	t.Nodes[self] = isoNode{Feature: feature, Split: split, Left: l, Right: r, Size: len(data)}
	return self
}

// pathLength walks a row to its leaf and adds the expected remaining depth.
func (t *isolationTree) pathLength(row []float64) float64 {
	depth := 0
	n := t.Nodes[0]
	for !n.Leaf {
		if row[n.Feature] < n.Split {
			n = t.Nodes[n.Left]
		} else {
			n = t.Nodes[n.Right]
		}
		depth++
	}
	return float64(depth) + averagePathLength(n.Size)
}

// Score returns 2^(-E[h(x)]/c(n)) per row, in [0, 1].
func (f *IsolationForest) Score(rows [][]float64) ([]float64, error) {
	if len(f.trees) == 0 {
		return nil, fmt.Errorf("isolation forest: model not trained")
	}
	c := averagePathLength(f.sampleSize)
	scores := make([]float64, len(rows))
	for i, row := range rows {
		if len(row) != f.dims {
			return nil, fmt.Errorf("isolation forest: row %d has %d features, expected %d", i, len(row), f.dims)
		}
		total := 0.0
		for j := range f.trees {
			total += f.trees[j].pathLength(row)
		}
		avg := total / float64(len(f.trees))
		if c == 0 {
			scores[i] = 0.5
			continue
		}
		scores[i] = math.Pow(2, -avg/c)
	}
	return scores, nil
}

// Decision returns threshold - score; negative values are outliers.
func (f *IsolationForest) Decision(rows [][]float64) ([]float64, error) {
	scores, err := f.Score(rows)
	if err != nil {
		return nil, err
	}
	for i, s := range scores {
		scores[i] = f.threshold - s
	}
	return scores, nil
}

// averagePathLength is c(n), the mean unsuccessful-search path length of a BST.
func averagePathLength(n int) float64 {
	if n <= 1 {
		return 0
	}
	if n == 2 {
		return 1
	}
	// c(n) = 2H(n-1) - (2(n-1)/n)
	return 2*harmonicNumber(n-1) - (2 * float64(n-1) / float64(n))
}

// harmonicNumber approximates H(n) as ln(n) + Euler-Mascheroni.
func harmonicNumber(n int) float64 {
	return math.Log(float64(n)) + 0.5772156649
}

func allIdentical(data [][]float64) bool {
	first := data[0]
	for i := 1; i < len(data); i++ {
		for j := range first {
			if math.Abs(data[i][j]-first[j]) > 1e-10 {
				return false
			}
		}
	}
	return true
}

func featureRange(data [][]float64, feature int) (float64, float64) {
	minVal, maxVal := data[0][feature], data[0][feature]
	for _, row := range data {
		v := row[feature]
		if v < minVal {
			minVal = v
		}
		if v > maxVal {
			maxVal = v
		}
	}
	return minVal, maxVal
}

func splitData(data [][]float64, feature int, split float64) ([][]float64, [][]float64) {
	var left, right [][]float64
	for _, row := range data {
		if row[feature] < split {
			left = append(left, row)
		} else {
			right = append(right, row)
		}
	}
	return left, right
}

// forestState is the persisted form of a fitted forest.
type forestState struct {
	Trees         []isolationTree `msgpack:"trees"`
	NumTrees      int             `msgpack:"num_trees"`
	SubSampleSize int             `msgpack:"sub_sample_size"`
	MaxDepth      int             `msgpack:"max_depth"`
	Contamination float64         `msgpack:"contamination"`
	Seed          int64           `msgpack:"seed"`
	SampleSize    int             `msgpack:"sample_size"`
	Dims          int             `msgpack:"dims"`
	Threshold     float64         `msgpack:"threshold"`
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (f *IsolationForest) MarshalBinary() ([]byte, error) {
	return msgpack.Marshal(forestState{
		Trees:         f.trees,
		NumTrees:      f.numTrees,
		SubSampleSize: f.subSampleSize,
		MaxDepth:      f.maxDepth,
		Contamination: f.contamination,
		Seed:          f.seed,
		SampleSize:    f.sampleSize,
		Dims:          f.dims,
		Threshold:     f.threshold,
	})
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (f *IsolationForest) UnmarshalBinary(data []byte) error {
	var st forestState
	if err := msgpack.Unmarshal(data, &st); err != nil {
		return fmt.Errorf("decode isolation forest: %w", err)
	}
	if len(st.Trees) == 0 {
		return fmt.Errorf("decode isolation forest: no trees")
	}
	for i, t := range st.Trees {
		if len(t.Nodes) == 0 {
			return fmt.Errorf("decode isolation forest: tree %d is empty", i)
		}
	}
	*f = IsolationForest{
		trees:         st.Trees,
		numTrees:      st.NumTrees,
		subSampleSize: st.SubSampleSize,
		maxDepth:      st.MaxDepth,
		contamination: st.Contamination,
		seed:          st.Seed,
		sampleSize:    st.SampleSize,
		dims:          st.Dims,
		threshold:     st.Threshold,
	}
	return nil
}
