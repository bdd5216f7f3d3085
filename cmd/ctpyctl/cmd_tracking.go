package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"ctpy/internal/model"
)

func newTrackingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tracking",
		Short: "Show or reset stage completion for the experiment",
	}
	cmd.AddCommand(newTrackingShowCmd(), newTrackingResetCmd())
	return cmd
}

func newTrackingShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show completed stages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, closeFn, err := openClient(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			tracking, ok, err := client.Tracking(cmd.Context())
			if err != nil {
				return err
			}
			if !ok {
				name := client.Config().Experiment.Name
				return printResult(cmd, map[string]string{"experiment": name}, "no tracking for experiment "+name)
			}
			return printResult(cmd, tracking, formatTracking(tracking))
		},
	}
}

func newTrackingResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset [stage]...",
		Short: "Clear completion flags, all of them when no stage is named",
		RunE: func(cmd *cobra.Command, args []string) error {
			stages := make([]model.Stage, 0, len(args))
			for _, arg := range args {
				stage, err := parseStage(arg)
				if err != nil {
					return err
				}
				stages = append(stages, stage)
			}
			client, closeFn, err := openClient(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			if err := client.ResetTracking(cmd.Context(), stages...); err != nil {
				return err
			}
			return printResult(cmd, map[string]int{"reset": len(stages)}, "tracking reset")
		},
	}
}

var knownStages = []model.Stage{
	model.StageClassifications,
	model.StageSubsampling,
	model.StageClassification,
	model.StageSimRunStats,
	model.StageTraitStats,
}

func parseStage(s string) (model.Stage, error) {
	for _, stage := range knownStages {
		if string(stage) == s {
			return stage, nil
		}
	}
	names := make([]string, 0, len(knownStages))
	for _, stage := range knownStages {
		names = append(names, string(stage))
	}
	return "", fmt.Errorf("unknown stage %q (want one of %s)", s, strings.Join(names, ", "))
}

func formatTracking(t model.ExperimentTracking) string {
	var b strings.Builder
	fmt.Fprintf(&b, "experiment %s began %s", t.Name, t.BeganAt.Format(time.RFC3339))
	stages := make([]string, 0, len(t.Completed))
	for stage := range t.Completed {
		stages = append(stages, string(stage))
	}
	sort.Strings(stages)
	for _, stage := range stages {
		fmt.Fprintf(&b, "\n%s completed %s", stage, t.Completed[model.Stage(stage)].Format(time.RFC3339))
	}
	return b.String()
}
