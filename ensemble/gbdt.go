package ensemble

import (
	"fmt"
	"math/rand"

	"github.com/schollz/progressbar/v3"

	"github.com/YuminosukeSato/medcost/core/model"
	"github.com/YuminosukeSato/medcost/metrics"
	"github.com/YuminosukeSato/medcost/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

func init() {
	model.RegisterRegressor("gradient_boosting", func() model.Regressor {
		return NewGradientBoostingRegressor()
	})
}

// GradientBoostingRegressor is a least-squares boosting machine: shallow CART
// trees fitted to the running residuals, each shrunk by the learning rate.
//
// The initial score is the training-target mean. With Subsample < 1.0 every
// iteration fits its tree on a random subset of rows (stochastic gradient
// boosting); predictions are still updated for all rows.
type GradientBoostingRegressor struct {
	model.BaseEstimator

	// Hyperparameters
	NEstimators    int
	LearningRate   float64
	MaxDepth       int
	MinSamplesLeaf int
	Subsample      float64 // fraction of rows per iteration, (0, 1]
	RandomState    int64

	// Progress tracking
	ShowProgress bool

	// Fitted state
	InitScore float64
	Trees     []*TreeNode
	NFeatures int
}

// NewGradientBoostingRegressor creates a booster with library defaults.
func NewGradientBoostingRegressor() *GradientBoostingRegressor {
	return &GradientBoostingRegressor{
		NEstimators:    100,
		LearningRate:   0.1,
		MaxDepth:       3,
		MinSamplesLeaf: 1,
		Subsample:      1.0,
		RandomState:    42,
	}
}

// WithNEstimators sets the number of boosting iterations.
func (gb *GradientBoostingRegressor) WithNEstimators(n int) *GradientBoostingRegressor {
	gb.NEstimators = n
	return gb
}

// WithLearningRate sets the shrinkage applied to each tree.
func (gb *GradientBoostingRegressor) WithLearningRate(lr float64) *GradientBoostingRegressor {
	gb.LearningRate = lr
	return gb
}

// WithMaxDepth sets the depth of the base trees.
func (gb *GradientBoostingRegressor) WithMaxDepth(d int) *GradientBoostingRegressor {
	gb.MaxDepth = d
	return gb
}

// WithSubsample sets the per-iteration row fraction.
func (gb *GradientBoostingRegressor) WithSubsample(f float64) *GradientBoostingRegressor {
	gb.Subsample = f
	return gb
}

// WithRandomState sets the random seed.
func (gb *GradientBoostingRegressor) WithRandomState(seed int64) *GradientBoostingRegressor {
	gb.RandomState = seed
	return gb
}

// WithProgressBar enables the training progress bar.
func (gb *GradientBoostingRegressor) WithProgressBar() *GradientBoostingRegressor {
	gb.ShowProgress = true
	return gb
}

// Name returns the candidate identifier.
func (gb *GradientBoostingRegressor) Name() string { return "gradient_boosting" }

// Params returns the hyperparameter configuration.
func (gb *GradientBoostingRegressor) Params() map[string]interface{} {
	return map[string]interface{}{
		"n_estimators":     gb.NEstimators,
		"learning_rate":    gb.LearningRate,
		"max_depth":        gb.MaxDepth,
		"min_samples_leaf": gb.MinSamplesLeaf,
		"subsample":        gb.Subsample,
		"random_state":     gb.RandomState,
	}
}

// Fit trains the booster on X and the target column vector y.
func (gb *GradientBoostingRegressor) Fit(X, y mat.Matrix) error {
	rows, features, target, err := toSlices(X, y, "GradientBoostingRegressor.Fit")
	if err != nil {
		return err
	}
	if gb.NEstimators <= 0 {
		return errors.NewValueError("GradientBoostingRegressor.Fit", "n_estimators must be positive")
	}
	if gb.LearningRate <= 0 {
		return errors.NewValueError("GradientBoostingRegressor.Fit", "learning_rate must be positive")
	}
	if gb.Subsample <= 0 || gb.Subsample > 1 {
		return errors.NewValueError("GradientBoostingRegressor.Fit", "subsample must be in (0, 1]")
	}
	if !allFinite(target) {
		return errors.NewValueError("GradientBoostingRegressor.Fit", "non-finite target values")
	}

	n := len(rows)
	gb.NFeatures = features
	gb.Trees = make([]*TreeNode, 0, gb.NEstimators)

	// F_0(x) = mean(y)
	gb.InitScore = meanOf(target, seq(n))

	current := make([]float64, n)
	for i := range current {
		current[i] = gb.InitScore
	}
	residuals := make([]float64, n)

	params := treeParams{
		maxDepth:       gb.MaxDepth,
		minSamplesLeaf: max(gb.MinSamplesLeaf, 1),
	}
	rng := rand.New(rand.NewSource(gb.RandomState))

	var bar *progressbar.ProgressBar
	if gb.ShowProgress {
		bar = progressbar.Default(int64(gb.NEstimators), "boosting")
	}

	perm := seq(n)
	for t := 0; t < gb.NEstimators; t++ {
		for i := range residuals {
			residuals[i] = target[i] - current[i]
		}

		fitIdx := perm
		if gb.Subsample < 1.0 {
			rng.Shuffle(n, func(i, j int) { perm[i], perm[j] = perm[j], perm[i] })
			k := int(float64(n) * gb.Subsample)
			if k < 1 {
				k = 1
			}
			fitIdx = perm[:k]
		}

		tree := growTree(rows, residuals, fitIdx, 0, params, rng)
		gb.Trees = append(gb.Trees, tree)

		for i := range current {
			current[i] += gb.LearningRate * tree.Predict(rows[i])
		}

		if bar != nil {
			_ = bar.Add(1)
		}
	}

	gb.SetFitted()
	return nil
}

// Predict returns InitScore plus the shrunk sum of all tree outputs.
func (gb *GradientBoostingRegressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	if !gb.IsFitted() {
		return nil, errors.NewNotFittedError("GradientBoostingRegressor", "Predict")
	}

	r, c := X.Dims()
	if c != gb.NFeatures {
		return nil, errors.NewDimensionError("GradientBoostingRegressor.Predict", gb.NFeatures, c, 1)
	}

	result := mat.NewDense(r, 1, nil)
	row := make([]float64, c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			row[j] = X.At(i, j)
		}
		pred := gb.InitScore
		for _, tree := range gb.Trees {
			pred += gb.LearningRate * tree.Predict(row)
		}
		result.Set(i, 0, pred)
	}

	return result, nil
}

// Score returns the coefficient of determination R^2 on the given data.
func (gb *GradientBoostingRegressor) Score(X, y mat.Matrix) (float64, error) {
	pred, err := gb.Predict(X)
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

// String returns a short description of the booster.
func (gb *GradientBoostingRegressor) String() string {
	return fmt.Sprintf("GradientBoostingRegressor(n_estimators=%d, learning_rate=%g, max_depth=%d)",
		gb.NEstimators, gb.LearningRate, gb.MaxDepth)
}

func seq(n int) []int {
	s := make([]int, n)
	for i := range s {
		s[i] = i
	}
	return s
}
