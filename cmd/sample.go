package cmd

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/ensemble-cli/internal/chain"
	"github.com/xkilldash9x/ensemble-cli/internal/config"
	"github.com/xkilldash9x/ensemble-cli/internal/graph"
	"github.com/xkilldash9x/ensemble-cli/internal/observability"
	"github.com/xkilldash9x/ensemble-cli/internal/plan"
	"github.com/xkilldash9x/ensemble-cli/internal/store"
)

// newSampleCmd creates and configures the `sample` command.
func newSampleCmd() *cobra.Command {
	sampleCmd := &cobra.Command{
		Use:   "sample [graph.json]",
		Short: "Runs a chain over district plans and streams kept plans to the store",
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			// Bind flags to their viper keys so command-line flags correctly
			// override values from the config file and environment.
			for flagName, key := range map[string]string{
				"samples":       "sampler.samples",
				"epsilon":       "sampler.epsilon",
				"seed":          "sampler.seed",
				"burn-in":       "sampler.burn_in",
				"thin":          "sampler.thin",
				"steps-between": "sampler.steps_between",
				"drop-zero-pop": "sampler.drop_zero_pop",
				"max-steps":     "sampler.max_steps_budget",
				"out":           "sampler.out",
			} {
				if err := viper.BindPFlag(key, cmd.Flags().Lookup(flagName)); err != nil {
					return err
				}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			// Configuration is validated before any store is created; an
			// invalid combination must not leave a partial output file.
			cfg, err := config.Load(viper.GetViper())
			if err != nil {
				return err
			}

			graphPath := args[0]
			logger.Info("Loading graph", zap.String("path", graphPath))
			g, err := graph.LoadFile(graphPath)
			if err != nil {
				return err
			}

			fields, err := graph.DetectFields(g)
			if err != nil {
				return fmt.Errorf("graph field detection failed: %w", err)
			}
			graph.Preprocess(g, fields, cfg.Sampler.DropZeroPop, logger)
			logger.Info("Graph ready",
				zap.Int("nodes", g.NumNodes()),
				zap.Int("edges", g.NumEdges()),
				zap.String("pop_key", fields.Pop),
				zap.String("dem_key", fields.Dem),
				zap.String("rep_key", fields.Rep),
			)

			startKey := fields.StartPlanKey()
			initial, err := plan.FromSeedColumn(g, startKey)
			if err != nil {
				return fmt.Errorf("failed to build starting assignment from %s: %w", startKey, err)
			}
			logger.Info("Start plan selected", zap.String("column", startKey))

			meta := store.Meta{
				SourceGraph:  graphPath,
				RunID:        uuid.New().String(),
				Epsilon:      cfg.Sampler.Epsilon,
				Seed:         cfg.Sampler.Seed,
				StepsBetween: cfg.Sampler.StepsBetween,
				BurnIn:       cfg.Sampler.BurnIn,
				Thin:         cfg.Sampler.Thin,
				PopKey:       fields.Pop,
				DemKey:       fields.Dem,
				RepKey:       fields.Rep,
			}

			sink, cleanup, err := openPlanStore(cmd, cfg, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			engine := chain.NewBoundaryFlip(g)
			controller := chain.New(g, fields, cfg.Sampler, engine, sink, meta, logger)

			res, err := controller.Run(ctx, initial)
			var shortfall *chain.ShortfallError
			switch {
			case errors.As(err, &shortfall):
				logger.Warn("Chain run fell short of the requested sample count",
					zap.Int("produced", shortfall.Produced),
					zap.Int("requested", shortfall.Requested),
					zap.Int("steps", res.Steps),
				)
				return err
			case err != nil:
				return err
			}

			logger.Info("Chain run complete",
				zap.String("run_id", res.RunID),
				zap.Int("kept", res.Kept),
				zap.Int("steps", res.Steps),
			)
			fmt.Printf("\nSampling complete. Run ID: %s (%d plans kept)\n", res.RunID, res.Kept)
			return nil
		},
	}

	sampleCmd.Flags().IntP("samples", "n", 10, "Number of plans to keep. (Overrides config/env)")
	sampleCmd.Flags().Float64P("epsilon", "e", 0.02, "Population tolerance, e.g. 0.02 = ±2%. (Overrides config/env)")
	sampleCmd.Flags().Int64("seed", 24, "Random seed. (Overrides config/env)")
	sampleCmd.Flags().Int("burn-in", 0, "Candidate-kept steps to discard before recording. (Overrides config/env)")
	sampleCmd.Flags().Int("thin", 1, "Keep every thin-th candidate-kept step. (Overrides config/env)")
	sampleCmd.Flags().Int("steps-between", 100, "Accepted steps between candidate-kept steps. (Overrides config/env)")
	sampleCmd.Flags().Bool("drop-zero-pop", false, "Drop zero-population nodes before sampling. (Overrides config/env)")
	sampleCmd.Flags().Int("max-steps", 0, "Hard accepted-step ceiling; 0 derives the default budget. (Overrides config/env)")
	sampleCmd.Flags().StringP("out", "o", "ensemble_plans.ndjson", "Output NDJSON file for kept plans. (Overrides config/env)")

	return sampleCmd
}

// openPlanStore picks the record sink: Postgres when a database URL is
// configured, the NDJSON file store otherwise. The returned cleanup closes
// whatever was opened.
func openPlanStore(cmd *cobra.Command, cfg *config.Config, logger *zap.Logger) (store.PlanStore, func(), error) {
	if cfg.Database.URL != "" {
		pool, err := pgxpool.New(cmd.Context(), cfg.Database.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		pg, err := store.NewPostgresStore(cmd.Context(), pool, logger)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		logger.Info("Writing plans to Postgres store")
		return pg, pool.Close, nil
	}

	fs, err := store.NewFileStore(cfg.Sampler.Out, logger)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("Writing plans to NDJSON store", zap.String("path", cfg.Sampler.Out))
	return fs, func() {
		if err := fs.Close(); err != nil {
			logger.Warn("Failed to close plan store", zap.Error(err))
		}
	}, nil
}
