package pipeline

import (
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/YuminosukeSato/medcost/internal/artifact"
	"github.com/YuminosukeSato/medcost/internal/config"
	"github.com/YuminosukeSato/medcost/internal/dataset"
	"github.com/YuminosukeSato/medcost/internal/plots"
	"github.com/YuminosukeSato/medcost/metrics"
)

// Evaluate scores the persisted artifact on the held-out split and refreshes
// the evaluation plots.
//
// The split is regenerated from the raw data with the configured seed, which
// reproduces the exact partition of the training run; the artifact's own
// fitted transforms decide how inference inputs are encoded, so this stage
// only needs the partition, not the transforms.
func Evaluate(cfg *config.Config, logger zerolog.Logger) (*Scores, error) {
	bundle, err := artifact.Load(cfg.Output.ArtifactDir)
	if err != nil {
		return nil, err
	}

	records, err := dataset.Load(cfg.Data.RawPath)
	if err != nil {
		return nil, err
	}

	pre, err := Preprocess(cfg, records, logger)
	if err != nil {
		return nil, err
	}

	scores, err := scoreOn(bundle.Model, pre.XTest, pre.YTest)
	if err != nil {
		return nil, err
	}

	logger.Info().
		Str("model", bundle.Model.Name()).
		Float64("rmse", scores.RMSE).
		Float64("mae", scores.MAE).
		Float64("r2", scores.R2).
		Float64("mape", scores.MAPE).
		Msg("artifact evaluated on held-out split")

	if cfg.Output.PlotsDir != "" {
		predM, err := bundle.Model.Predict(pre.XTest)
		if err != nil {
			return nil, err
		}
		pred, err := metrics.AsVector(predM)
		if err != nil {
			return nil, err
		}
		if err := plots.ActualVsPredicted(pre.YTest, pred, filepath.Join(cfg.Output.PlotsDir, "actual_vs_predicted.png")); err != nil {
			logger.Warn().Err(err).Msg("plot generation failed")
		}
		if err := plots.Residuals(pre.YTest, pred, filepath.Join(cfg.Output.PlotsDir, "residuals.png")); err != nil {
			logger.Warn().Err(err).Msg("plot generation failed")
		}
		if err := plots.ErrorDistribution(pre.YTest, pred, filepath.Join(cfg.Output.PlotsDir, "error_distribution.png")); err != nil {
			logger.Warn().Err(err).Msg("plot generation failed")
		}
	}

	return &scores, nil
}
