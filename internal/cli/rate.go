package cli

import (
	"fmt"

	"github.com/kmassidik/engagement/internal/rating"
	"github.com/spf13/cobra"
)

var rateCmd = &cobra.Command{
	Use:   "rate",
	Short: "Recompute the user rating table",
	Long: `Read every session event from the source table, aggregate one profile
per visitor, score and classify it, and replace the rating table. A summary
and a sample of the new table are printed when the run completes.`,
	Args: cobra.NoArgs,
	RunE: runRate,
}

var rateFlags struct {
	workers     int
	source      string
	target      string
	requestedBy string
}

func init() {
	rateCmd.Flags().IntVarP(&rateFlags.workers, "workers", "w", 0, "Aggregation workers (overrides RATING_WORKERS)")
	rateCmd.Flags().StringVar(&rateFlags.source, "source", "", "Source event table (overrides RATING_SOURCE_TABLE)")
	rateCmd.Flags().StringVar(&rateFlags.target, "target", "", "Rating table to replace (overrides RATING_TARGET_TABLE)")
	rateCmd.Flags().StringVar(&rateFlags.requestedBy, "requested-by", "cli", "Recorded as the requester of this run")

	rootCmd.AddCommand(rateCmd)
}

func runRate(cmd *cobra.Command, args []string) error {
	if err := applyRateFlags(); err != nil {
		return err
	}

	ctx := cmd.Context()
	stack, err := connectRating(ctx, true)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer stack.Close()

	result, err := stack.service.Run(ctx, rating.NewRunRequest(rateFlags.requestedBy))
	if err != nil {
		return fmt.Errorf("rating run failed: %w", err)
	}

	return rating.WriteReport(cmd.OutOrStdout(), result.Summary, result.Profiles)
}

func applyRateFlags() error {
	if rateFlags.workers < 0 {
		return fmt.Errorf("--workers must not be negative")
	}
	if rateFlags.workers > 0 {
		cfg.Rating.Workers = rateFlags.workers
	}
	if rateFlags.source != "" {
		cfg.Rating.SourceTable = rateFlags.source
	}
	if rateFlags.target != "" {
		cfg.Rating.TargetTable = rateFlags.target
	}
	return cfg.Validate()
}
