package pipeline

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/YuminosukeSato/medcost/internal/config"
	"github.com/YuminosukeSato/medcost/internal/dataset"
	"github.com/YuminosukeSato/medcost/internal/tracking"
	"github.com/YuminosukeSato/medcost/pkg/log"
)

// Run executes the full batch pipeline: load, preprocess, train, select.
// Every stage must complete before its successor starts; any stage error is
// fatal to the run.
func Run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Selection, error) {
	records, err := dataset.Load(cfg.Data.RawPath)
	if err != nil {
		return nil, err
	}
	logger.Info().Int("records", len(records)).Str("path", cfg.Data.RawPath).Msg("raw data loaded")

	pre, err := Preprocess(cfg, records, log.Component(logger, "preprocessor"))
	if err != nil {
		return nil, err
	}

	var store *tracking.Store
	if cfg.Tracking.DBPath != "" {
		store, err = tracking.NewStore(cfg.Tracking.DBPath)
		if err != nil {
			return nil, err
		}
		defer store.Close()
	}

	candidates, err := Train(ctx, cfg, store, pre, log.Component(logger, "trainer"))
	if err != nil {
		return nil, err
	}

	return Select(cfg, candidates, pre, log.Component(logger, "selector"))
}
