// Command medcost drives the insurance-cost pipeline: preprocessing,
// training with model selection, artifact evaluation and the REST serving
// facade.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/medcost/internal/artifact"
	"github.com/YuminosukeSato/medcost/internal/config"
	"github.com/YuminosukeSato/medcost/internal/dataset"
	"github.com/YuminosukeSato/medcost/internal/pipeline"
	"github.com/YuminosukeSato/medcost/internal/server"
	"github.com/YuminosukeSato/medcost/pkg/log"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type app struct {
	cfgPath string
	cfg     *config.Config
	logger  zerolog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "medcost",
		Short:         "Medical insurance cost prediction pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			if a.cfgPath != "" {
				loaded, err := config.Load(a.cfgPath)
				if err != nil {
					return err
				}
				cfg = loaded
			}
			a.cfg = cfg
			a.logger = log.Setup(cfg.Logging.Level, cfg.Logging.Console)
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&a.cfgPath, "config", "c", "config.yaml", "path to the configuration file")

	root.AddCommand(
		newPreprocessCmd(a),
		newTrainCmd(a),
		newEvaluateCmd(a),
		newServeCmd(a),
	)
	return root
}

func newPreprocessCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "preprocess",
		Short: "Load the raw dataset, fit encoders and scaler, write the split",
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := dataset.Load(a.cfg.Data.RawPath)
			if err != nil {
				return err
			}
			_, err = pipeline.Preprocess(a.cfg, records, log.Component(a.logger, "preprocessor"))
			return err
		},
	}
}

func newTrainCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "train",
		Short: "Run the full pipeline: preprocess, train all candidates, select and persist the best",
		RunE: func(cmd *cobra.Command, args []string) error {
			sel, err := pipeline.Run(cmd.Context(), a.cfg, a.logger)
			if err != nil {
				return err
			}
			a.logger.Info().
				Str("winner", sel.Winner.Model.Name()).
				Str("artifact_dir", a.cfg.Output.ArtifactDir).
				Msg("pipeline completed")
			return nil
		},
	}
}

func newEvaluateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "evaluate",
		Short: "Score the persisted artifact on the held-out split and refresh plots",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := pipeline.Evaluate(a.cfg, log.Component(a.logger, "evaluator"))
			return err
		},
	}
}

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve predictions from the persisted artifact",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := log.Component(a.logger, "server")

			// A missing artifact is fatal at startup: the facade never
			// serves stale or default predictions.
			bundle, err := artifact.Load(a.cfg.Output.ArtifactDir)
			if err != nil {
				return err
			}
			handle := artifact.NewHandle(bundle)
			logger.Info().Str("model", bundle.Model.Name()).Msg("artifact loaded")

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			go func() {
				if err := artifact.Watch(ctx, a.cfg.Output.ArtifactDir, handle, logger); err != nil && ctx.Err() == nil {
					logger.Error().Err(err).Msg("artifact watcher stopped")
				}
			}()

			e := server.BuildServer(handle, logger)

			errCh := make(chan error, 1)
			go func() {
				errCh <- e.Start(a.cfg.Server.Addr)
			}()
			logger.Info().Str("addr", a.cfg.Server.Addr).Msg("serving")

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return e.Shutdown(shutdownCtx)
		},
	}
}
