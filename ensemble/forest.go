package ensemble

import (
	"fmt"
	"math/rand"

	"github.com/YuminosukeSato/medcost/core/model"
	"github.com/YuminosukeSato/medcost/metrics"
	"github.com/YuminosukeSato/medcost/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

func init() {
	model.RegisterRegressor("random_forest", func() model.Regressor {
		return NewRandomForestRegressor()
	})
}

// RandomForestRegressor is a bootstrap-aggregated ensemble of CART regression
// trees with per-split feature subsampling.
//
// Training is deterministic for a fixed RandomState: every tree derives its
// bootstrap sample and feature subsets from one seeded source.
type RandomForestRegressor struct {
	model.BaseEstimator

	// Hyperparameters
	NEstimators    int // number of trees
	MaxDepth       int // maximum tree depth, <=0 for unlimited
	MinSamplesLeaf int // minimum samples per leaf
	MaxFeatures    int // features considered per split, <=0 for all
	RandomState    int64

	// Fitted state
	Trees     []*TreeNode
	NFeatures int
}

// NewRandomForestRegressor creates a forest with library defaults.
func NewRandomForestRegressor() *RandomForestRegressor {
	return &RandomForestRegressor{
		NEstimators:    100,
		MaxDepth:       -1,
		MinSamplesLeaf: 1,
		MaxFeatures:    -1,
		RandomState:    42,
	}
}

// WithNEstimators sets the number of trees.
func (rf *RandomForestRegressor) WithNEstimators(n int) *RandomForestRegressor {
	rf.NEstimators = n
	return rf
}

// WithMaxDepth sets the maximum tree depth.
func (rf *RandomForestRegressor) WithMaxDepth(d int) *RandomForestRegressor {
	rf.MaxDepth = d
	return rf
}

// WithMinSamplesLeaf sets the minimum samples per leaf.
func (rf *RandomForestRegressor) WithMinSamplesLeaf(n int) *RandomForestRegressor {
	rf.MinSamplesLeaf = n
	return rf
}

// WithRandomState sets the random seed.
func (rf *RandomForestRegressor) WithRandomState(seed int64) *RandomForestRegressor {
	rf.RandomState = seed
	return rf
}

// Name returns the candidate identifier.
func (rf *RandomForestRegressor) Name() string { return "random_forest" }

// Params returns the hyperparameter configuration.
func (rf *RandomForestRegressor) Params() map[string]interface{} {
	return map[string]interface{}{
		"n_estimators":     rf.NEstimators,
		"max_depth":        rf.MaxDepth,
		"min_samples_leaf": rf.MinSamplesLeaf,
		"max_features":     rf.MaxFeatures,
		"random_state":     rf.RandomState,
	}
}

// Fit trains the forest on X and the target column vector y.
func (rf *RandomForestRegressor) Fit(X, y mat.Matrix) error {
	rows, features, target, err := toSlices(X, y, "RandomForestRegressor.Fit")
	if err != nil {
		return err
	}
	if rf.NEstimators <= 0 {
		return errors.NewValueError("RandomForestRegressor.Fit", "n_estimators must be positive")
	}
	if !allFinite(target) {
		return errors.NewValueError("RandomForestRegressor.Fit", "non-finite target values")
	}

	rf.NFeatures = features
	rf.Trees = make([]*TreeNode, rf.NEstimators)

	params := treeParams{
		maxDepth:       rf.MaxDepth,
		minSamplesLeaf: max(rf.MinSamplesLeaf, 1),
		maxFeatures:    rf.MaxFeatures,
	}

	rng := rand.New(rand.NewSource(rf.RandomState))
	n := len(rows)
	for t := 0; t < rf.NEstimators; t++ {
		// Bootstrap sample: n draws with replacement.
		sample := make([]int, n)
		for i := range sample {
			sample[i] = rng.Intn(n)
		}
		rf.Trees[t] = growTree(rows, target, sample, 0, params, rng)
	}

	rf.SetFitted()
	return nil
}

// Predict averages the predictions of all trees.
func (rf *RandomForestRegressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	if !rf.IsFitted() {
		return nil, errors.NewNotFittedError("RandomForestRegressor", "Predict")
	}

	r, c := X.Dims()
	if c != rf.NFeatures {
		return nil, errors.NewDimensionError("RandomForestRegressor.Predict", rf.NFeatures, c, 1)
	}

	result := mat.NewDense(r, 1, nil)
	row := make([]float64, c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			row[j] = X.At(i, j)
		}
		var sum float64
		for _, tree := range rf.Trees {
			sum += tree.Predict(row)
		}
		result.Set(i, 0, sum/float64(len(rf.Trees)))
	}

	return result, nil
}

// Score returns the coefficient of determination R^2 on the given data.
func (rf *RandomForestRegressor) Score(X, y mat.Matrix) (float64, error) {
	pred, err := rf.Predict(X)
	if err != nil {
		return 0, err
	}
	yVec, err := metrics.AsVector(y)
	if err != nil {
		return 0, err
	}
	predVec, err := metrics.AsVector(pred)
	if err != nil {
		return 0, err
	}
	return metrics.R2(yVec, predVec)
}

// String returns a short description of the forest.
func (rf *RandomForestRegressor) String() string {
	return fmt.Sprintf("RandomForestRegressor(n_estimators=%d, max_depth=%d)", rf.NEstimators, rf.MaxDepth)
}

// toSlices validates an (X, y) pair and converts it to row-major slices.
func toSlices(X, y mat.Matrix, op string) ([][]float64, int, []float64, error) {
	r, c := X.Dims()
	ry, cy := y.Dims()

	if r == 0 || c == 0 {
		return nil, 0, nil, errors.NewValueError(op, "empty data")
	}
	if ry != r {
		return nil, 0, nil, errors.NewDimensionError(op, r, ry, 0)
	}
	if cy != 1 {
		return nil, 0, nil, errors.NewValueError(op, "y must be a column vector")
	}

	rows := make([][]float64, r)
	target := make([]float64, r)
	for i := 0; i < r; i++ {
		row := make([]float64, c)
		for j := 0; j < c; j++ {
			row[j] = X.At(i, j)
		}
		rows[i] = row
		target[i] = y.At(i, 0)
	}
	return rows, c, target, nil
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
