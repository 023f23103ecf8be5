// Package model provides the estimator plumbing shared by every model and
// transformer in the repository: fitted-state tracking, the regression
// interfaces, and artifact persistence.
package model

import (
	"gonum.org/v1/gonum/mat"
)

// Fitter is the interface for estimators that learn from data.
type Fitter interface {
	// Fit trains the estimator on X (n_samples x n_features) and the
	// target column vector y (n_samples x 1).
	Fit(X, y mat.Matrix) error
}

// Predictor is the interface for fitted estimators that produce predictions.
type Predictor interface {
	// Predict returns an (n_samples x 1) matrix of predictions.
	Predict(X mat.Matrix) (mat.Matrix, error)
}

// Scorer is the interface for models that can compute a score.
type Scorer interface {
	// Score returns the coefficient of determination R^2 of the prediction.
	Score(X, y mat.Matrix) (float64, error)
}

// Regressor combines the interfaces every candidate model must satisfy.
type Regressor interface {
	Fitter
	Predictor
	Scorer

	// Name returns the candidate's identifier used in tracking and metric
	// records (e.g. "linear_regression").
	Name() string

	// Params returns the hyperparameter configuration as loggable key/value
	// pairs. An empty map is valid for parameterless models.
	Params() map[string]interface{}
}

// Transformer is the interface for fitted feature transformations.
type Transformer interface {
	// Transform applies the fitted transformation without refitting.
	Transform(X mat.Matrix) (mat.Matrix, error)
}
