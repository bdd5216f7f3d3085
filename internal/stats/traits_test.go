package stats

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"ctpy/internal/model"
)

func traitSample() model.IndividualSample {
	return model.IndividualSample{
		ID:             "t1",
		RunID:          "run-1",
		Generation:     10,
		SampleSize:     4,
		Dimensionality: 2,
		Individuals: []model.Individual{
			{ID: 0, Genotype: []int64{1, 7}},
			{ID: 1, Genotype: []int64{1, 7}},
			{ID: 2, Genotype: []int64{2, 7}},
			{ID: 3, Genotype: []int64{3, 7}},
		},
	}
}

func TestTraitAggregatorPerLocus(t *testing.T) {
	got, err := NewTraitAggregator(nil, 0).Aggregate(traitSample())
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if got.LociRichness[0] != 3 || got.LociRichness[1] != 1 {
		t.Fatalf("unexpected richness: %v", got.LociRichness)
	}
	if got.MeanRichness != 2 {
		t.Fatalf("expected mean richness 2, got %v", got.MeanRichness)
	}
	if got.LociEntropy[1] != 0 || got.LociIQV[1] != 0 {
		t.Fatalf("fixed locus must have zero diversity, got entropy=%v iqv=%v", got.LociEntropy[1], got.LociIQV[1])
	}
	wantEntropy := -(0.5*math.Log(0.5) + 2*0.25*math.Log(0.25))
	if math.Abs(got.LociEntropy[0]-wantEntropy) > 1e-12 {
		t.Fatalf("expected entropy %v, got %v", wantEntropy, got.LociEntropy[0])
	}
	if math.Abs(got.MeanEntropy-wantEntropy/2) > 1e-12 {
		t.Fatalf("expected mean entropy %v, got %v", wantEntropy/2, got.MeanEntropy)
	}
	if got.MeanNeutrality != nil || got.LociNeutrality != nil {
		t.Fatal("neutrality must be skipped without replicates")
	}
}

func TestTraitAggregatorNeutrality(t *testing.T) {
	agg := NewTraitAggregator(rand.New(rand.NewSource(3)), 200)
	got, err := agg.Aggregate(traitSample())
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if got.MeanNeutrality == nil || len(got.LociNeutrality) != 2 {
		t.Fatalf("expected neutrality per locus, got %+v", got)
	}
	if got.LociNeutrality[1] != 1 {
		t.Fatalf("fixed locus must have probability 1, got %v", got.LociNeutrality[1])
	}
	for _, p := range got.LociNeutrality {
		if p < 0 || p > 1 {
			t.Fatalf("probability out of range: %v", p)
		}
	}

	p, err := agg.ClassNeutrality(classified("c", "run", 0, 1, 3, "0-0", "0-0", "0-0"))
	if err != nil {
		t.Fatalf("class neutrality: %v", err)
	}
	if p != 1 {
		t.Fatalf("single class must have probability 1, got %v", p)
	}
}

func TestTraitAggregatorErrors(t *testing.T) {
	agg := NewTraitAggregator(nil, 0)
	if _, err := agg.Aggregate(model.IndividualSample{ID: "e"}); !errors.Is(err, ErrEmptySample) {
		t.Fatalf("expected ErrEmptySample, got %v", err)
	}
	ragged := model.IndividualSample{ID: "r", Dimensionality: 2, Individuals: []model.Individual{{ID: 0, Genotype: []int64{1}}}}
	if _, err := agg.Aggregate(ragged); err == nil {
		t.Fatal("expected error for ragged genotype")
	}
}
