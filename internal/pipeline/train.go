package pipeline

import (
	"context"
	"math"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/medcost/core/model"
	"github.com/YuminosukeSato/medcost/ensemble"
	"github.com/YuminosukeSato/medcost/internal/config"
	"github.com/YuminosukeSato/medcost/internal/tracking"
	"github.com/YuminosukeSato/medcost/linear"
	"github.com/YuminosukeSato/medcost/metrics"
	"github.com/YuminosukeSato/medcost/pkg/errors"
)

// Candidate is one fitted (or failed) model under one configuration.
type Candidate struct {
	Model model.Regressor
	RunID string

	// Err is a TrainingFailure when fitting failed; the candidate stays in
	// the slice so the Selector can record it as disqualified.
	Err error
}

// BuildCandidates instantiates the configured algorithms with their fixed
// hyperparameters. Hyperparameters are supplied, never searched.
func BuildCandidates(cfg *config.Config) ([]model.Regressor, error) {
	candidates := make([]model.Regressor, 0, len(cfg.Model.Algorithms))
	for _, name := range cfg.Model.Algorithms {
		switch name {
		case "linear_regression":
			candidates = append(candidates, linear.NewLinearRegression())
		case "random_forest":
			rf := cfg.Model.RandomForest
			candidates = append(candidates, ensemble.NewRandomForestRegressor().
				WithNEstimators(rf.NEstimators).
				WithMaxDepth(rf.MaxDepth).
				WithMinSamplesLeaf(rf.MinSamplesLeaf).
				WithRandomState(cfg.Data.RandomState))
		case "gradient_boosting":
			gb := cfg.Model.GradientBoosting
			candidates = append(candidates, ensemble.NewGradientBoostingRegressor().
				WithNEstimators(gb.NEstimators).
				WithLearningRate(gb.LearningRate).
				WithMaxDepth(gb.MaxDepth).
				WithSubsample(gb.Subsample).
				WithRandomState(cfg.Data.RandomState))
		default:
			return nil, errors.Newf("medcost: unknown algorithm %q", name)
		}
	}
	return candidates, nil
}

// Train fits every candidate on the identical training split. Each candidate
// gets a tracking run with its configuration and training-set metrics. A fit
// failure disqualifies that candidate only; the stage fails only on tracking
// or configuration errors.
func Train(ctx context.Context, cfg *config.Config, store *tracking.Store, pre *PreprocessResult, logger zerolog.Logger) ([]Candidate, error) {
	regressors, err := BuildCandidates(cfg)
	if err != nil {
		return nil, err
	}

	yTrain := vecAsMatrix(pre.YTrain)
	candidates := make([]Candidate, 0, len(regressors))

	for _, reg := range regressors {
		cand := Candidate{Model: reg}
		candLogger := logger.With().Str("candidate", reg.Name()).Logger()

		if store != nil {
			runID, err := store.StartRun(ctx, cfg.Tracking.Experiment, reg.Name())
			if err != nil {
				return nil, err
			}
			cand.RunID = runID
			if err := store.LogParams(ctx, runID, reg.Params()); err != nil {
				return nil, err
			}
		}

		candLogger.Info().Msg("training candidate")
		if err := reg.Fit(pre.XTrain, yTrain); err != nil {
			cand.Err = errors.NewTrainingFailure(reg.Name(), "fit", err)
			candLogger.Warn().Err(err).Msg("candidate failed to fit, disqualified")
			candidates = append(candidates, cand)
			finishRun(ctx, store, cand.RunID, "failed")
			continue
		}

		trainScores, err := scoreOn(reg, pre.XTrain, pre.YTrain)
		if err != nil {
			cand.Err = errors.NewTrainingFailure(reg.Name(), "predict", err)
			candLogger.Warn().Err(err).Msg("candidate produced invalid training predictions, disqualified")
			candidates = append(candidates, cand)
			finishRun(ctx, store, cand.RunID, "failed")
			continue
		}

		if store != nil {
			if err := store.LogMetrics(ctx, cand.RunID, map[string]float64{
				"train_rmse": trainScores.RMSE,
				"train_mae":  trainScores.MAE,
				"train_r2":   trainScores.R2,
			}); err != nil {
				return nil, err
			}
		}
		finishRun(ctx, store, cand.RunID, "finished")

		candLogger.Info().
			Float64("train_rmse", trainScores.RMSE).
			Float64("train_r2", trainScores.R2).
			Msg("candidate trained")
		candidates = append(candidates, cand)
	}

	return candidates, nil
}

// Scores bundles the four evaluation metrics.
type Scores struct {
	RMSE float64 `json:"rmse"`
	MAE  float64 `json:"mae"`
	R2   float64 `json:"r2"`
	MAPE float64 `json:"mape"`
}

// scoreOn predicts X with the fitted model and computes all four metrics.
// Non-finite predictions are an error so callers can disqualify the model.
func scoreOn(reg model.Regressor, X *mat.Dense, y *mat.VecDense) (Scores, error) {
	var s Scores

	predM, err := reg.Predict(X)
	if err != nil {
		return s, err
	}
	pred, err := metrics.AsVector(predM)
	if err != nil {
		return s, err
	}
	for i := 0; i < pred.Len(); i++ {
		v := pred.AtVec(i)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return s, errors.NewValueError("scoreOn", "non-finite prediction")
		}
	}

	if s.RMSE, err = metrics.RMSE(y, pred); err != nil {
		return s, err
	}
	if s.MAE, err = metrics.MAE(y, pred); err != nil {
		return s, err
	}
	if s.R2, err = metrics.R2(y, pred); err != nil {
		return s, err
	}
	if s.MAPE, err = metrics.MAPE(y, pred); err != nil {
		return s, err
	}
	return s, nil
}

func finishRun(ctx context.Context, store *tracking.Store, runID, status string) {
	if store == nil || runID == "" {
		return
	}
	// Tracking is a logging sink; a failed status update must not abort
	// training.
	_ = store.FinishRun(ctx, runID, status)
}

func vecAsMatrix(v *mat.VecDense) *mat.Dense {
	out := mat.NewDense(v.Len(), 1, nil)
	for i := 0; i < v.Len(); i++ {
		out.Set(i, 0, v.AtVec(i))
	}
	return out
}
