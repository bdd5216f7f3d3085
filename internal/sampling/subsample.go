// Package sampling derives smaller individual samples from raw samples taken at
// the largest sample size and dimensionality of an experiment.
package sampling

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"

	"github.com/google/uuid"

	"ctpy/internal/model"
)

var ErrNoIndividuals = errors.New("sample has no individuals to subsample")

// Subsample returns one derived sample for every (sample size, dimensionality)
// pair not exceeding the raw sample, excluding the raw pair itself. For each
// sample size one random subset of individuals is drawn and shared by every
// dimensionality, whose genotypes keep only their leading loci.
func Subsample(rng *rand.Rand, raw model.IndividualSample, sampleSizes, dimensions []int) ([]model.IndividualSample, error) {
	if len(raw.Individuals) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoIndividuals, raw.ID)
	}
	if rng == nil {
		return nil, errors.New("random source is required")
	}
	rawDims := raw.Dimensionality
	if rawDims == 0 {
		rawDims = len(raw.Individuals[0].Genotype)
	}
	rawSize := len(raw.Individuals)

	sizes := boundedSorted(sampleSizes, rawSize)
	dims := boundedSorted(dimensions, rawDims)

	out := make([]model.IndividualSample, 0, len(sizes)*len(dims))
	for _, size := range sizes {
		subset := raw.Individuals
		if size < rawSize {
			perm := rng.Perm(rawSize)[:size]
			sort.Ints(perm)
			subset = make([]model.Individual, 0, size)
			for _, idx := range perm {
				subset = append(subset, raw.Individuals[idx])
			}
		}
		for _, d := range dims {
			if size == rawSize && d == rawDims {
				continue
			}
			out = append(out, derive(raw, subset, size, d))
		}
	}
	return out, nil
}

func derive(raw model.IndividualSample, subset []model.Individual, size, dims int) model.IndividualSample {
	individuals := make([]model.Individual, 0, len(subset))
	for _, ind := range subset {
		g := make([]int64, dims)
		copy(g, ind.Genotype[:dims])
		individuals = append(individuals, model.Individual{ID: ind.ID, Genotype: g})
	}
	derived := raw
	derived.VersionedRecord = model.CurrentVersion()
	derived.ID = uuid.NewString()
	derived.SampleSize = size
	derived.Dimensionality = dims
	derived.Individuals = individuals
	return derived
}

func boundedSorted(values []int, max int) []int {
	seen := make(map[int]bool, len(values))
	out := make([]int, 0, len(values)+1)
	for _, v := range values {
		if v <= 0 || v > max || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	if !seen[max] {
		out = append(out, max)
	}
	sort.Ints(out)
	return out
}
