package stats

import (
	"fmt"
	"math/rand"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"

	"ctpy/internal/diversity"
	"ctpy/internal/model"
)

// TraitAggregator summarizes raw trait values of individual samples, locus by locus.
// It owns a random source for the neutrality test and is not safe for concurrent use.
type TraitAggregator struct {
	rng        *rand.Rand
	replicates int
}

// NewTraitAggregator returns an aggregator; slatkinReplicates <= 0 skips the neutrality test.
func NewTraitAggregator(rng *rand.Rand, slatkinReplicates int) *TraitAggregator {
	return &TraitAggregator{rng: rng, replicates: slatkinReplicates}
}

func (a *TraitAggregator) Aggregate(sample model.IndividualSample) (model.TraitStats, error) {
	if len(sample.Individuals) == 0 {
		return model.TraitStats{}, fmt.Errorf("%w: sample %s", ErrEmptySample, sample.ID)
	}
	loci, err := LocusCounts(sample)
	if err != nil {
		return model.TraitStats{}, err
	}

	out := model.TraitStats{
		VersionedRecord: model.CurrentVersion(),
		ID:              uuid.NewString(),
		RunID:           sample.RunID,
		Replication:     sample.Replication,
		Generation:      sample.Generation,
		SampleSize:      sample.SampleSize,
		PopulationSize:  sample.PopulationSize,
		MutationRate:    sample.MutationRate,
		Dimensionality:  len(loci),
		LociRichness:    make([]int, len(loci)),
		LociEntropy:     make([]float64, len(loci)),
		LociIQV:         make([]float64, len(loci)),
	}
	richness := make([]float64, len(loci))
	for d, counts := range loci {
		freqs := diversity.Frequencies(diversity.CountValues(counts))
		out.LociRichness[d] = len(counts)
		out.LociEntropy[d] = diversity.ShannonEntropy(freqs)
		out.LociIQV[d] = diversity.IQV(freqs)
		richness[d] = float64(len(counts))
	}
	out.MeanRichness = stat.Mean(richness, nil)
	out.MeanEntropy = stat.Mean(out.LociEntropy, nil)
	out.MeanIQV = stat.Mean(out.LociIQV, nil)

	if a.replicates > 0 {
		probs, mean, err := a.neutrality(loci)
		if err != nil {
			return model.TraitStats{}, fmt.Errorf("sample %s: %w", sample.ID, err)
		}
		out.LociNeutrality = probs
		out.MeanNeutrality = &mean
	}
	return out, nil
}

// Neutrality runs the Slatkin exact test on every locus of sample.
func (a *TraitAggregator) Neutrality(sample model.IndividualSample) ([]float64, float64, error) {
	loci, err := LocusCounts(sample)
	if err != nil {
		return nil, 0, err
	}
	return a.neutrality(loci)
}

func (a *TraitAggregator) neutrality(loci []map[int64]int) ([]float64, float64, error) {
	probs := make([]float64, len(loci))
	for d, counts := range loci {
		res, err := diversity.SlatkinExact(a.rng, diversity.CountValues(counts), a.replicates)
		if err != nil {
			return nil, 0, fmt.Errorf("locus %d: %w", d, err)
		}
		probs[d] = res.Probability
	}
	if len(probs) == 0 {
		return probs, 0, nil
	}
	return probs, stat.Mean(probs, nil), nil
}

// ClassNeutrality runs the Slatkin exact test on the class counts of a classified sample.
func (a *TraitAggregator) ClassNeutrality(sample model.ClassifiedSample) (float64, error) {
	if len(sample.Individuals) == 0 {
		return 0, fmt.Errorf("%w: classified sample %s", ErrEmptySample, sample.ID)
	}
	res, err := diversity.SlatkinExact(a.rng, diversity.CountValues(ClassCounts(sample)), a.replicates)
	if err != nil {
		return 0, err
	}
	return res.Probability, nil
}

// LocusCounts tallies raw trait values per locus.
func LocusCounts(sample model.IndividualSample) ([]map[int64]int, error) {
	dims := sample.Dimensionality
	if dims == 0 && len(sample.Individuals) > 0 {
		dims = len(sample.Individuals[0].Genotype)
	}
	loci := make([]map[int64]int, dims)
	for d := range loci {
		loci[d] = make(map[int64]int)
	}
	for _, ind := range sample.Individuals {
		if len(ind.Genotype) != dims {
			return nil, fmt.Errorf("individual %d has %d loci, want %d", ind.ID, len(ind.Genotype), dims)
		}
		for d, value := range ind.Genotype {
			loci[d][value]++
		}
	}
	return loci, nil
}
