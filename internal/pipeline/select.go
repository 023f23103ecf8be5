package pipeline

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/YuminosukeSato/medcost/internal/artifact"
	"github.com/YuminosukeSato/medcost/internal/config"
	"github.com/YuminosukeSato/medcost/internal/plots"
	"github.com/YuminosukeSato/medcost/metrics"
	"github.com/YuminosukeSato/medcost/pkg/errors"
)

// Evaluation is the audit record of one candidate on the held-out split.
type Evaluation struct {
	Model        string  `json:"model"`
	Scores       *Scores `json:"scores,omitempty"`
	Disqualified bool    `json:"disqualified"`
	Reason       string  `json:"reason,omitempty"`
}

// Selection is the Selector's output: the single winner plus the full audit
// trail for every candidate.
type Selection struct {
	Winner     Candidate
	WinnerEval Evaluation
	All        []Evaluation
}

// Select computes held-out metrics for every candidate, picks exactly one
// winner, and persists the deployable artifact, the metrics file and the
// comparison plots.
//
// Winner ordering: highest R2, ties broken by lower RMSE, then lower MAE.
// Candidates that failed training or produce non-finite held-out predictions
// are disqualified, never selected, but still recorded.
func Select(cfg *config.Config, candidates []Candidate, pre *PreprocessResult, logger zerolog.Logger) (*Selection, error) {
	if len(candidates) == 0 {
		return nil, errors.Wrap(errors.ErrNoCandidates, "medcost: selector received no candidates")
	}

	evaluations := make([]Evaluation, 0, len(candidates))
	var winner *Candidate
	var winnerEval Evaluation

	for i := range candidates {
		cand := &candidates[i]
		eval := Evaluation{Model: cand.Model.Name()}

		if cand.Err != nil {
			eval.Disqualified = true
			eval.Reason = cand.Err.Error()
			evaluations = append(evaluations, eval)
			continue
		}

		scores, err := scoreOn(cand.Model, pre.XTest, pre.YTest)
		if err != nil {
			// Disqualifies this candidate only; the selector carries on.
			failure := errors.NewTrainingFailure(cand.Model.Name(), "predict", err)
			eval.Disqualified = true
			eval.Reason = failure.Error()
			evaluations = append(evaluations, eval)
			logger.Warn().Err(failure).Str("candidate", cand.Model.Name()).
				Msg("candidate disqualified on held-out split")
			continue
		}

		eval.Scores = &scores
		evaluations = append(evaluations, eval)

		logger.Info().
			Str("candidate", cand.Model.Name()).
			Float64("rmse", scores.RMSE).
			Float64("mae", scores.MAE).
			Float64("r2", scores.R2).
			Float64("mape", scores.MAPE).
			Msg("candidate evaluated")

		if winner == nil || betterScores(scores, *winnerEval.Scores) {
			winner = cand
			winnerEval = eval
		}
	}

	if winner == nil {
		return nil, errors.Wrap(errors.ErrNoCandidates, "medcost: every candidate was disqualified")
	}

	sel := &Selection{Winner: *winner, WinnerEval: winnerEval, All: evaluations}

	if cfg.Output.MetricsDir != "" {
		if err := writeMetricsFile(cfg.Output.MetricsDir, sel); err != nil {
			return nil, err
		}
	}

	if cfg.Output.ArtifactDir != "" {
		bundle := &artifact.Bundle{
			Model:              winner.Model,
			NumericalColumns:   cfg.Features.Numerical,
			CategoricalColumns: cfg.Features.Categorical,
			Encoders:           pre.Encoders,
			Scaler:             pre.Scaler,
		}
		if err := bundle.Save(cfg.Output.ArtifactDir); err != nil {
			return nil, err
		}
	}

	if cfg.Output.PlotsDir != "" {
		if err := emitPlots(cfg.Output.PlotsDir, sel, pre, logger); err != nil {
			// Plots are a reporting side effect with no downstream consumer;
			// a render failure must not undo a completed selection.
			logger.Warn().Err(err).Msg("plot generation failed")
		}
	}

	logger.Info().
		Str("winner", winner.Model.Name()).
		Float64("r2", winnerEval.Scores.R2).
		Msg("model selected")

	return sel, nil
}

// betterScores reports whether a beats b under the selection ordering:
// primary R2 (higher), then RMSE (lower), then MAE (lower).
func betterScores(a, b Scores) bool {
	if a.R2 != b.R2 {
		return a.R2 > b.R2
	}
	if a.RMSE != b.RMSE {
		return a.RMSE < b.RMSE
	}
	return a.MAE < b.MAE
}

// metricsFile is the whole-file-replace metrics record of one pipeline run.
type metricsFile struct {
	EvaluatedAt time.Time    `json:"evaluated_at"`
	Winner      string       `json:"winner"`
	Candidates  []Evaluation `json:"candidates"`
}

func writeMetricsFile(dir string, sel *Selection) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return errors.Wrap(err, "pipeline: create metrics dir")
	}

	record := metricsFile{
		EvaluatedAt: time.Now().UTC(),
		Winner:      sel.Winner.Model.Name(),
		Candidates:  sel.All,
	}
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return errors.Wrap(err, "pipeline: marshal metrics")
	}

	path := filepath.Join(dir, "evaluation.json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.Wrapf(err, "pipeline: write %s", tmp)
	}
	return errors.Wrapf(os.Rename(tmp, path), "pipeline: replace %s", path)
}

func emitPlots(dir string, sel *Selection, pre *PreprocessResult, logger zerolog.Logger) error {
	predM, err := sel.Winner.Model.Predict(pre.XTest)
	if err != nil {
		return err
	}
	pred, err := metrics.AsVector(predM)
	if err != nil {
		return err
	}

	if err := plots.ActualVsPredicted(pre.YTest, pred, filepath.Join(dir, "actual_vs_predicted.png")); err != nil {
		return err
	}
	if err := plots.Residuals(pre.YTest, pred, filepath.Join(dir, "residuals.png")); err != nil {
		return err
	}
	if err := plots.ErrorDistribution(pre.YTest, pred, filepath.Join(dir, "error_distribution.png")); err != nil {
		return err
	}

	logger.Info().Str("dir", dir).Msg("evaluation plots written")
	return nil
}
