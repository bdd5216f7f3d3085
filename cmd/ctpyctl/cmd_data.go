package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"ctpy/internal/config"
	"ctpy/pkg/ctpy"
)

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a config file with the default experiment design",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "ctpy.yaml"
			if len(args) == 1 {
				path = args[0]
			}
			if err := config.Save(path, config.Default()); err != nil {
				return err
			}
			return printResult(cmd, map[string]string{"config": path}, "wrote "+path)
		},
	}
	return cmd
}

func newPlanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Report the size of the configured experiment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			alleles, _ := cmd.Flags().GetInt("alleles")
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			client, err := ctpy.New(ctpy.Options{Config: cfg})
			if err != nil {
				return err
			}
			defer client.Close()

			plan := client.Plan(alleles)
			var b strings.Builder
			fmt.Fprintf(&b, "experiment %s\n", plan.Experiment)
			fmt.Fprintf(&b, "parameter combinations: %d\n", plan.ParameterCombinations)
			fmt.Fprintf(&b, "classifications per dimensionality: %d\n", plan.ClassificationsPerDim)
			fmt.Fprintf(&b, "total classifications: %d", plan.TotalClassifications)
			for _, qs := range plan.QuasiStationarityTimes {
				fmt.Fprintf(&b, "\nN=%d mu=%g quasi-stationary after %d generations", qs.PopulationSize, qs.InnovationRate, qs.Generations)
			}
			return printResult(cmd, plan, b.String())
		},
	}
	cmd.Flags().Int("alleles", 0, "Also print a uniform allele distribution over this many alleles")
	return cmd
}

func newImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file>...",
		Short: "Load simulator samples from .csv or .jsonl files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, closeFn, err := openClient(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			total := 0
			for _, path := range args {
				n, err := client.ImportFile(cmd.Context(), path)
				if err != nil {
					return fmt.Errorf("import %s: %w", path, err)
				}
				total += n
			}
			return printResult(cmd, map[string]int{"samples": total}, fmt.Sprintf("imported %d samples", total))
		},
	}
	return cmd
}

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the analysis CSV files to a directory or S3 bucket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			prefix, _ := cmd.Flags().GetString("prefix")
			client, closeFn, err := openClient(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			summary, err := client.Export(cmd.Context(), ctpy.ExportRequest{Dir: dir, Prefix: prefix})
			if err != nil {
				return err
			}
			return printResult(cmd, summary, formatArtifacts(summary))
		},
	}
	cmd.Flags().String("dir", "", "Export directory (default from config)")
	cmd.Flags().String("prefix", "", "Key prefix (default experiment name)")
	return cmd
}

func formatArtifacts(summary ctpy.ExportSummary) string {
	lines := make([]string, 0, len(summary.Artifacts))
	for _, a := range summary.Artifacts {
		lines = append(lines, fmt.Sprintf("%s rows=%d -> %s", a.Name, a.Rows, a.Location))
	}
	return strings.Join(lines, "\n")
}

// newRunCmd runs every stage in one process, which is how the memory store is useful.
func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <file>...",
		Short: "Import samples and run every stage through export",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			force, _ := cmd.Flags().GetBool("force")
			subsample, _ := cmd.Flags().GetBool("subsample")
			dir, _ := cmd.Flags().GetString("dir")
			client, closeFn, err := openClient(cmd)
			if err != nil {
				return err
			}
			defer closeFn()
			ctx := cmd.Context()

			classifications, err := client.Construct(ctx, force)
			if err != nil {
				return err
			}
			for _, path := range args {
				if _, err := client.ImportFile(ctx, path); err != nil {
					return fmt.Errorf("import %s: %w", path, err)
				}
			}
			var lines []string
			lines = append(lines, fmt.Sprintf("constructed %d classifications", len(classifications)))
			if subsample {
				report, err := client.Subsample(ctx, force)
				if err != nil {
					return err
				}
				lines = append(lines, formatReport(report))
			}
			report, err := client.Classify(ctx, force)
			if err != nil {
				return err
			}
			lines = append(lines, formatReport(report))
			if client.Config().Runtime.SaveIndividuals {
				if report, err = client.SimRunStats(ctx, force); err != nil {
					return err
				}
				lines = append(lines, formatReport(report))
			}
			if report, err = client.TraitStats(ctx, force); err != nil {
				return err
			}
			lines = append(lines, formatReport(report))
			summary, err := client.Export(ctx, ctpy.ExportRequest{Dir: dir})
			if err != nil {
				return err
			}
			lines = append(lines, formatArtifacts(summary))
			return printResult(cmd, summary, strings.Join(lines, "\n"))
		},
	}
	cmd.Flags().Bool("force", false, "Run stages even if already complete")
	cmd.Flags().Bool("subsample", false, "Derive smaller samples before classifying")
	cmd.Flags().String("dir", "", "Export directory (default from config)")
	return cmd
}
