package stats

import (
	"math"
	"testing"

	"ctpy/internal/model"
)

func TestInnovationIntervalStats(t *testing.T) {
	first := map[string]int{"A": 1000, "B": 2500, "C": 1500, "D": 3500, "E": 500}
	mean, sd := InnovationIntervalStats(first)
	if mean != 750 {
		t.Fatalf("expected mean 750, got %v", mean)
	}
	if math.Abs(sd-288.6751) > 1e-4 {
		t.Fatalf("expected sd 288.6751, got %v", sd)
	}
}

func TestInnovationIntervalStatsDegenerate(t *testing.T) {
	if mean, sd := InnovationIntervalStats(map[string]int{"0-0": 10}); mean != 0 || sd != 0 {
		t.Fatalf("single class: expected 0/0, got %v/%v", mean, sd)
	}
	if mean, sd := InnovationIntervalStats(map[string]int{"0-0": 10, "0-1": 40}); mean != 30 || sd != 0 {
		t.Fatalf("single interval: expected 30/0, got %v/%v", mean, sd)
	}
	if mean, sd := InnovationIntervalStats(nil); mean != 0 || sd != 0 {
		t.Fatalf("empty: expected 0/0, got %v/%v", mean, sd)
	}
}

func classified(classificationID, runID string, replication, generation, size int, classes ...string) model.ClassifiedSample {
	inds := make([]model.ClassifiedIndividual, 0, len(classes))
	for i, c := range classes {
		inds = append(inds, model.ClassifiedIndividual{ID: i, Class: c})
	}
	return model.ClassifiedSample{
		ID:               "cs",
		ClassificationID: classificationID,
		RunID:            runID,
		Replication:      replication,
		Generation:       generation,
		SampleSize:       size,
		PopulationSize:   100,
		MutationRate:     0.01,
		Individuals:      inds,
	}
}

func TestRunAggregatorFirstAppearance(t *testing.T) {
	c := model.Classification{ID: "c1", Type: model.ModeTypeEven, Dimensionality: 3, Coarseness: 2}
	agg := NewRunAggregator(c, "run-1")

	samples := []model.ClassifiedSample{
		classified("c1", "run-1", 0, 3500, 2, "1-0-0", "0-0-0"),
		classified("c1", "run-1", 0, 500, 2, "1-1-0", "1-1-0"),
		classified("c1", "run-1", 0, 2500, 2, "0-1-0", "0-0-0"),
		classified("c1", "run-1", 0, 1000, 2, "0-0-0", "1-1-0"),
		classified("c1", "run-1", 0, 1500, 2, "0-0-1", "0-0-0"),
		classified("c1", "run-1", 1, 200, 2, "0-0-0", "0-0-0"),
	}
	for _, s := range samples {
		if err := agg.Add(s); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	if agg.Samples() != len(samples) {
		t.Fatalf("expected %d samples, got %d", len(samples), agg.Samples())
	}

	results := agg.Results()
	if len(results) != 2 {
		t.Fatalf("expected one record per replication, got %d", len(results))
	}
	r0 := results[0]
	if r0.Replication != 0 || results[1].Replication != 1 {
		t.Fatalf("expected results ordered by replication, got %d then %d", r0.Replication, results[1].Replication)
	}
	want := map[string]int{"0-1-0": 2500, "0-0-0": 1000, "0-0-1": 1500, "1-0-0": 3500, "1-1-0": 500}
	for class, gen := range want {
		if r0.FirstAppearance[class] != gen {
			t.Fatalf("class %s: expected first appearance %d, got %d", class, gen, r0.FirstAppearance[class])
		}
	}
	if r0.InnovationIntervalMean != 750 || math.Abs(r0.InnovationIntervalSD-288.6751) > 1e-4 {
		t.Fatalf("unexpected interval stats: %v/%v", r0.InnovationIntervalMean, r0.InnovationIntervalSD)
	}
	if r0.ClassificationID != "c1" || r0.RunID != "run-1" || r0.Coarseness != 2 {
		t.Fatalf("metadata not carried: %+v", r0)
	}
}

func TestRunAggregatorSeparatesSampleSizes(t *testing.T) {
	c := model.Classification{ID: "c1", Type: model.ModeTypeEven, Dimensionality: 2, Coarseness: 2}
	agg := NewRunAggregator(c, "run-1")

	samples := []model.ClassifiedSample{
		classified("c1", "run-1", 0, 100, 4, "0-0", "0-1", "1-0", "0-0"),
		classified("c1", "run-1", 0, 200, 4, "1-1", "0-0", "0-0", "0-0"),
		classified("c1", "run-1", 0, 100, 2, "0-0", "0-0"),
		classified("c1", "run-1", 0, 300, 2, "1-1", "0-1"),
	}
	for _, s := range samples {
		if err := agg.Add(s); err != nil {
			t.Fatalf("add: %v", err)
		}
	}

	results := agg.Results()
	if len(results) != 2 {
		t.Fatalf("expected one record per sample size, got %d", len(results))
	}
	bySize := map[int]model.SimRunStats{}
	for _, r := range results {
		if r.Replication != 0 {
			t.Fatalf("unexpected replication %d", r.Replication)
		}
		bySize[r.SampleSize] = r
	}
	large, small := bySize[4], bySize[2]
	if large.FirstAppearance["1-1"] != 200 || large.FirstAppearance["0-1"] != 100 {
		t.Fatalf("size 4: unexpected first appearance %v", large.FirstAppearance)
	}
	if small.FirstAppearance["1-1"] != 300 || small.FirstAppearance["0-1"] != 300 {
		t.Fatalf("size 2: unexpected first appearance %v", small.FirstAppearance)
	}
	if _, ok := small.FirstAppearance["1-0"]; ok {
		t.Fatal("size 2 must not see classes observed only at size 4")
	}
}

func TestRunAggregatorRejectsForeignSamples(t *testing.T) {
	agg := NewRunAggregator(model.Classification{ID: "c1"}, "run-1")
	if err := agg.Add(classified("c2", "run-1", 0, 1, 1, "0")); err == nil {
		t.Fatal("expected error for foreign classification")
	}
	if err := agg.Add(classified("c1", "run-2", 0, 1, 1, "0")); err == nil {
		t.Fatal("expected error for foreign run")
	}
	if got := agg.Results(); len(got) != 0 {
		t.Fatalf("expected no results without samples, got %d", len(got))
	}
}
