//go:build sqlite

package platform

import (
	"fmt"
	"path/filepath"
	"testing"

	"ctpy/internal/storage"
)

func TestPipelineSQLiteConcurrentWorkers(t *testing.T) {
	ctx := t.Context()
	store := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "ctpy.db"))
	t.Cleanup(func() {
		_ = store.Close()
	})
	p, err := NewPipeline(Config{
		Store:             store,
		Retry:             fastRetry(1),
		Experiment:        "sqlite",
		Workers:           8,
		BatchSize:         3,
		Seed:              11,
		SlatkinReplicates: 20,
		SaveIndividuals:   true,
	})
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	if err := p.Init(ctx); err != nil {
		t.Fatalf("init pipeline: %v", err)
	}

	if _, err := p.ConstructClassifications(ctx, testDesign, StageOptions{}); err != nil {
		t.Fatalf("construct classifications: %v", err)
	}
	const runs, generations = 10, 4
	for r := range runs {
		importRun(t, p, fmt.Sprintf("run-%02d", r), generations)
	}

	report, err := p.ClassifySamples(ctx, StageOptions{})
	if err != nil {
		t.Fatalf("classify samples: %v", err)
	}
	if report.Units != 4*runs || report.Samples != 4*runs*generations {
		t.Fatalf("unexpected classify report: %+v", report)
	}
	generation, err := store.ListGenerationStats(ctx, storage.Filter{})
	if err != nil {
		t.Fatalf("list generation stats: %v", err)
	}
	if len(generation) != 4*runs*generations {
		t.Fatalf("expected %d generation stats, got=%d", 4*runs*generations, len(generation))
	}

	if _, err := p.ComputeSimRunStats(ctx, StageOptions{}); err != nil {
		t.Fatalf("compute simrun stats: %v", err)
	}
	simrun, err := store.ListSimRunStats(ctx, storage.Filter{})
	if err != nil {
		t.Fatalf("list simrun stats: %v", err)
	}
	if len(simrun) != 4*runs {
		t.Fatalf("expected %d simrun stats, got=%d", 4*runs, len(simrun))
	}

	if _, err := p.ComputeTraitStats(ctx, StageOptions{}); err != nil {
		t.Fatalf("compute trait stats: %v", err)
	}
	if _, err := p.RetrofitNeutrality(ctx); err != nil {
		t.Fatalf("retrofit neutrality: %v", err)
	}
	traits, err := store.ListTraitStats(ctx, storage.Filter{})
	if err != nil {
		t.Fatalf("list trait stats: %v", err)
	}
	if len(traits) != runs*generations {
		t.Fatalf("expected %d trait stats, got=%d", runs*generations, len(traits))
	}
	for _, ts := range traits {
		if ts.MeanNeutrality == nil {
			t.Fatalf("expected trait neutrality after retrofit: %s", ts.ID)
		}
	}
}
