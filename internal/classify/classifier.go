package classify

import (
	"context"
	"errors"
	"fmt"

	"ctpy/internal/model"
	"ctpy/internal/modes"
)

var (
	ErrDimensionMismatch = errors.New("genotype length does not match classification dimensionality")
	ErrUnclassifiable    = errors.New("trait value outside every mode")
)

// Classifier maps genotypes to class labels under one classification.
// Boundaries are resolved once at construction; Identify is read-only.
type Classifier struct {
	classification model.Classification
	boundaries     [][]model.ModeBoundary
	size           int64
}

func NewClassifier(ctx context.Context, classification model.Classification, cache *ModeCache) (*Classifier, error) {
	if classification.Dimensionality <= 0 || len(classification.ModeIDs) != classification.Dimensionality {
		return nil, fmt.Errorf("%w: classification %s has %d dimensions and %d mode refs",
			ErrInvalidDimensionality, classification.ID, classification.Dimensionality, len(classification.ModeIDs))
	}
	if cache == nil {
		return nil, errors.New("mode cache is required")
	}
	boundaries := make([][]model.ModeBoundary, 0, classification.Dimensionality)
	for _, id := range classification.ModeIDs {
		def, err := cache.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		boundaries = append(boundaries, def.Boundaries)
	}
	return &Classifier{
		classification: classification,
		boundaries:     boundaries,
		size:           Size(classification),
	}, nil
}

func (c *Classifier) Classification() model.Classification {
	return c.classification
}

// Size is the number of distinct labels the classification can produce.
func (c *Classifier) Size() int64 {
	return c.size
}

func (c *Classifier) Identify(genotype []int64) (Label, error) {
	if len(genotype) != len(c.boundaries) {
		return nil, fmt.Errorf("%w: got %d values, want %d", ErrDimensionMismatch, len(genotype), len(c.boundaries))
	}
	label := make(Label, len(genotype))
	for d, value := range genotype {
		m, ok := modes.Locate(c.boundaries[d], value)
		if !ok {
			return nil, fmt.Errorf("%w: dimension %d value %d", ErrUnclassifiable, d, value)
		}
		label[d] = m
	}
	return label, nil
}

// Classify identifies genotype and records it in tally.
func (c *Classifier) Classify(genotype []int64, tally *Tally) (Label, error) {
	label, err := c.Identify(genotype)
	if err != nil {
		return nil, err
	}
	if tally != nil {
		tally.Add(genotype, label)
	}
	return label, nil
}

// Tally accumulates per-dimension raw trait value counts and per-class counts for one sample.
type Tally struct {
	Traits  []map[int64]int
	Classes map[string]int
	Total   int
}

func NewTally(dimensionality int) *Tally {
	traits := make([]map[int64]int, dimensionality)
	for i := range traits {
		traits[i] = make(map[int64]int)
	}
	return &Tally{Traits: traits, Classes: make(map[string]int)}
}

func (t *Tally) Add(genotype []int64, label Label) {
	for d, value := range genotype {
		if d < len(t.Traits) {
			t.Traits[d][value]++
		}
	}
	t.Classes[label.String()]++
	t.Total++
}
