package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"ctpy/internal/platform"
	"ctpy/pkg/ctpy"
)

type stageFunc func(ctx context.Context, client *ctpy.Client, force bool) (platform.StageReport, error)

// newStageCmd builds a command that runs one tracked pipeline stage.
func newStageCmd(use, short string, stage stageFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			force, _ := cmd.Flags().GetBool("force")
			client, closeFn, err := openClient(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			report, err := stage(cmd.Context(), client, force)
			if err != nil {
				return err
			}
			return printResult(cmd, report, formatReport(report))
		},
	}
	cmd.Flags().Bool("force", false, "Run even if the stage is already complete")
	return cmd
}

func formatReport(r platform.StageReport) string {
	return fmt.Sprintf("%s: units=%d samples=%d skipped=%d records=%d", r.Stage, r.Units, r.Samples, r.Skipped, r.Records)
}

func newConstructCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "construct",
		Short: "Build and store the mode definitions and classifications of the experiment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			force, _ := cmd.Flags().GetBool("force")
			client, closeFn, err := openClient(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			classifications, err := client.Construct(cmd.Context(), force)
			if err != nil {
				return err
			}
			return printResult(cmd, classifications, fmt.Sprintf("constructed %d classifications", len(classifications)))
		},
	}
	cmd.Flags().Bool("force", false, "Run even if the stage is already complete")
	return cmd
}

func newSubsampleCmd() *cobra.Command {
	return newStageCmd("subsample", "Derive smaller samples from the raw samples", func(ctx context.Context, c *ctpy.Client, force bool) (platform.StageReport, error) {
		return c.Subsample(ctx, force)
	})
}

func newClassifyCmd() *cobra.Command {
	return newStageCmd("classify", "Classify every sample under every classification", func(ctx context.Context, c *ctpy.Client, force bool) (platform.StageReport, error) {
		return c.Classify(ctx, force)
	})
}

func newSimRunStatsCmd() *cobra.Command {
	return newStageCmd("simrun-stats", "Compute first-appearance times and innovation intervals per run", func(ctx context.Context, c *ctpy.Client, force bool) (platform.StageReport, error) {
		return c.SimRunStats(ctx, force)
	})
}

func newTraitStatsCmd() *cobra.Command {
	return newStageCmd("trait-stats", "Compute raw trait statistics per sample", func(ctx context.Context, c *ctpy.Client, force bool) (platform.StageReport, error) {
		return c.TraitStats(ctx, force)
	})
}

func newRetrofitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retrofit",
		Short: "Add Slatkin neutrality probabilities to stored statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, closeFn, err := openClient(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			report, err := client.Retrofit(cmd.Context())
			if err != nil {
				return err
			}
			return printResult(cmd, report, formatReport(report))
		},
	}
	return cmd
}
