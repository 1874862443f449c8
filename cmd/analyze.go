package cmd

import (
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/ensemble-cli/internal/analysis"
	"github.com/xkilldash9x/ensemble-cli/internal/config"
	"github.com/xkilldash9x/ensemble-cli/internal/graph"
	"github.com/xkilldash9x/ensemble-cli/internal/observability"
	"github.com/xkilldash9x/ensemble-cli/internal/store"
)

// reducedMetrics are the per-metric distributions summarized after every
// analysis pass.
var reducedMetrics = []string{
	"efficiency_gap_recomputed",
	"mean_median",
	"partisan_bias",
	"declination_deg",
	"seat_share_rep",
}

// newAnalyzeCmd creates and configures the `analyze` command.
func newAnalyzeCmd() *cobra.Command {
	analyzeCmd := &cobra.Command{
		Use:   "analyze [graph.json] [ensemble.ndjson]",
		Short: "Recomputes fairness metrics for a recorded ensemble and writes a CSV",
		Args:  cobra.RangeArgs(1, 2),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if err := viper.BindPFlag("analysis.workers", cmd.Flags().Lookup("workers")); err != nil {
				return err
			}
			return viper.BindPFlag("analysis.out", cmd.Flags().Lookup("out"))
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := config.Load(viper.GetViper())
			if err != nil {
				return err
			}
			runID, _ := cmd.Flags().GetString("run-id")
			if runID == "" && len(args) < 2 {
				return fmt.Errorf("an ensemble file is required unless --run-id selects a database run")
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
			logger.Info("Graph ready", zap.Int("nodes", g.NumNodes()), zap.Int("edges", g.NumEdges()))

			records, err := loadRecords(cmd, cfg, runID, args, logger)
			if err != nil {
				return err
			}
			logger.Info("Loaded ensemble", zap.Int("plans", len(records)))

			analyzer := analysis.New(g, fields, cfg.Analysis.Workers, logger)
			rows, err := analyzer.Analyze(ctx, records)
			if err != nil {
				return err
			}

			if err := analysis.WriteCSV(cfg.Analysis.Out, rows); err != nil {
				return err
			}
			logger.Info("Wrote plan metrics", zap.String("path", cfg.Analysis.Out), zap.Int("rows", len(rows)))

			// Summarize the finite-value distributions. NaN rows are
			// excluded, never zeroed.
			for _, name := range reducedMetrics {
				values, excluded, err := analysis.Reduce(rows, name)
				if err != nil {
					return err
				}
				logger.Info("Metric distribution",
					zap.String("metric", name),
					zap.Int("finite", len(values)),
					zap.Int("excluded_nan", excluded),
				)
			}

			fmt.Printf("\nAnalysis complete. %d plans -> %s\n", len(rows), cfg.Analysis.Out)
			return nil
		},
	}

	analyzeCmd.Flags().IntP("workers", "j", 4, "Parallel analysis workers. (Overrides config/env)")
	analyzeCmd.Flags().StringP("out", "o", "plan_metrics.csv", "Output CSV path. (Overrides config/env)")
	analyzeCmd.Flags().String("run-id", "", "Analyze a run stored in Postgres instead of an NDJSON file.")

	return analyzeCmd
}

// loadRecords reads the ensemble from the NDJSON file argument, or from the
// configured database when --run-id is given.
func loadRecords(cmd *cobra.Command, cfg *config.Config, runID string, args []string, logger *zap.Logger) ([]store.PlanRecord, error) {
	if runID != "" {
		if cfg.Database.URL == "" {
			return nil, fmt.Errorf("--run-id requires a configured database URL (ENSEMBLE_DATABASE_URL)")
		}
		pool, err := pgxpool.New(cmd.Context(), cfg.Database.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		defer pool.Close()
		pg, err := store.NewPostgresStore(cmd.Context(), pool, logger)
		if err != nil {
			return nil, err
		}
		return pg.ReadRun(cmd.Context(), runID)
	}
	return store.ReadFile(args[1])
}
