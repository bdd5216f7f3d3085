package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"ctpy/internal/config"
	"ctpy/internal/dataextract"
	"ctpy/pkg/ctpy"
)

func writeTestConfig(t *testing.T, dir string) string {
	t.Helper()
	cfg := config.Default()
	cfg.Experiment.Name = "cli-test"
	cfg.Experiment.MaxAlleles = 100
	cfg.Experiment.DimensionPartitions = []int{2, 4}
	cfg.Experiment.DimensionsStudied = []int{2}
	cfg.Experiment.RandomModeReplicates = 1
	cfg.Experiment.SampleSizes = []int{2, 4}
	cfg.Experiment.SlatkinReplicates = 10
	cfg.Export.Dir = filepath.Join(dir, "export")
	path := filepath.Join(dir, "ctpy.yaml")
	if err := config.Save(path, cfg); err != nil {
		t.Fatalf("save config: %v", err)
	}
	return path
}

func writeSamples(t *testing.T, dir string) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("simulation_run_id,replication,simulation_time,population_size,mutation_rate,individual_id,genotype\n")
	for g := range 2 {
		for i := range 4 {
			fmt.Fprintf(&b, "run-1,0,%d,100,0.01,%d,%d-%d\n", g, i, (i*23+g)%100, (i*41+g*7)%100)
		}
	}
	path := filepath.Join(dir, "samples.csv")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatalf("write samples: %v", err)
	}
	return path
}

func TestRunPlanJSON(t *testing.T) {
	var out bytes.Buffer
	if err := run(t.Context(), []string{"plan", "--json", "--alleles", "4"}, &out); err != nil {
		t.Fatalf("run plan: %v", err)
	}
	var plan ctpy.PlanSummary
	if err := json.Unmarshal(out.Bytes(), &plan); err != nil {
		t.Fatalf("decode plan: %v", err)
	}
	if plan.TotalClassifications != 330 || len(plan.UniformAlleleProbabilities) != 4 {
		t.Fatalf("unexpected plan: %+v", plan)
	}
}

func TestRunInitWritesLoadableConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ctpy.yaml")
	var out bytes.Buffer
	if err := run(t.Context(), []string{"init", path}, &out); err != nil {
		t.Fatalf("run init: %v", err)
	}
	cfg, err := config.LoadFromFile(path)
	if err != nil {
		t.Fatalf("load written config: %v", err)
	}
	if cfg.Experiment.Name != config.Default().Experiment.Name {
		t.Fatalf("unexpected experiment name: %s", cfg.Experiment.Name)
	}
}

func TestRunPipelineExportsCSV(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeTestConfig(t, dir)
	samples := writeSamples(t, dir)

	var out bytes.Buffer
	args := []string{"run", "--config", cfgPath, "--log-level", "error", "--subsample", samples}
	if err := run(t.Context(), args, &out); err != nil {
		t.Fatalf("run pipeline: %v", err)
	}
	if !strings.Contains(out.String(), "constructed 4 classifications") {
		t.Fatalf("unexpected output: %s", out.String())
	}
	for _, name := range []string{dataextract.GenerationStatsFile, dataextract.SimRunStatsFile, dataextract.TraitStatsFile} {
		if _, err := os.Stat(filepath.Join(dir, "export", "cli-test", name)); err != nil {
			t.Fatalf("expected exported %s: %v", name, err)
		}
	}
}

func TestRunTrackingOnFreshStore(t *testing.T) {
	var out bytes.Buffer
	if err := run(t.Context(), []string{"tracking", "show"}, &out); err != nil {
		t.Fatalf("run tracking show: %v", err)
	}
	if !strings.Contains(out.String(), "no tracking") {
		t.Fatalf("unexpected output: %s", out.String())
	}
	if err := run(t.Context(), []string{"tracking", "reset", "bogus"}, &out); err == nil {
		t.Fatal("expected unknown stage error")
	}
}

func TestRunRejectsBadInput(t *testing.T) {
	var out bytes.Buffer
	if err := run(t.Context(), []string{"nope"}, &out); err == nil {
		t.Fatal("expected unknown command error")
	}
	if err := run(t.Context(), []string{"classify", "--store", "sqlite"}, &out); err == nil {
		t.Fatal("expected missing dsn error")
	}
	if err := run(t.Context(), []string{"import"}, &out); err == nil {
		t.Fatal("expected missing file argument error")
	}
}
