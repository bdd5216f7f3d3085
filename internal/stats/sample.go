package stats

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"ctpy/internal/classify"
	"ctpy/internal/diversity"
	"ctpy/internal/model"
)

var ErrEmptySample = errors.New("sample has no individuals")

// SampleResult pairs the per-generation statistics of a sample with its classified form.
type SampleResult struct {
	Stats      model.GenerationStats
	Classified model.ClassifiedSample
}

// SampleAggregator classifies individual samples under one classification and summarizes them.
type SampleAggregator struct {
	classifier *classify.Classifier
}

func NewSampleAggregator(classifier *classify.Classifier) *SampleAggregator {
	return &SampleAggregator{classifier: classifier}
}

func (a *SampleAggregator) Aggregate(sample model.IndividualSample) (SampleResult, error) {
	if len(sample.Individuals) == 0 {
		return SampleResult{}, fmt.Errorf("%w: sample %s", ErrEmptySample, sample.ID)
	}
	c := a.classifier.Classification()
	if sample.Dimensionality != 0 && sample.Dimensionality != c.Dimensionality {
		return SampleResult{}, fmt.Errorf("%w: sample %s has dimensionality %d, classification %s has %d",
			classify.ErrDimensionMismatch, sample.ID, sample.Dimensionality, c.ID, c.Dimensionality)
	}

	tally := classify.NewTally(c.Dimensionality)
	classified := make([]model.ClassifiedIndividual, 0, len(sample.Individuals))
	for _, ind := range sample.Individuals {
		label, err := a.classifier.Classify(ind.Genotype, tally)
		if err != nil {
			return SampleResult{}, fmt.Errorf("sample %s individual %d: %w", sample.ID, ind.ID, err)
		}
		classified = append(classified, model.ClassifiedIndividual{ID: ind.ID, Class: label.String()})
	}

	stats := model.GenerationStats{
		VersionedRecord:     model.CurrentVersion(),
		ID:                  uuid.NewString(),
		ClassificationID:    c.ID,
		ClassificationType:  c.Type,
		Dimensionality:      c.Dimensionality,
		Coarseness:          c.Coarseness,
		NumClasses:          a.classifier.Size(),
		RunID:               sample.RunID,
		Replication:         sample.Replication,
		Generation:          sample.Generation,
		SampleSize:          sample.SampleSize,
		PopulationSize:      sample.PopulationSize,
		MutationRate:        sample.MutationRate,
		ModeRichness:        make([]int, c.Dimensionality),
		ModeEvennessIQV:     make([]float64, c.Dimensionality),
		ModeEvennessEntropy: make([]float64, c.Dimensionality),
	}
	// richness counts distinct raw trait values per dimension, not occupied modes
	for d, values := range tally.Traits {
		freqs := diversity.Frequencies(diversity.CountValues(values))
		stats.ModeRichness[d] = len(values)
		stats.ModeEvennessIQV[d] = diversity.IQV(freqs)
		stats.ModeEvennessEntropy[d] = diversity.ShannonEntropy(freqs)
	}

	classFreqs := diversity.Frequencies(diversity.CountValues(tally.Classes))
	stats.ClassRichness = len(tally.Classes)
	stats.ClassEvennessIQV = diversity.IQV(classFreqs)
	stats.ClassShannonEntropy = diversity.ShannonEntropy(classFreqs)
	if stats.NumClasses > 0 {
		stats.DesignSpaceOccupation = float64(stats.ClassRichness) / float64(stats.NumClasses)
	}

	return SampleResult{
		Stats: stats,
		Classified: model.ClassifiedSample{
			VersionedRecord:    model.CurrentVersion(),
			ID:                 uuid.NewString(),
			ClassificationID:   c.ID,
			ClassificationType: c.Type,
			Dimensionality:     c.Dimensionality,
			Coarseness:         c.Coarseness,
			RunID:              sample.RunID,
			Replication:        sample.Replication,
			Generation:         sample.Generation,
			SampleSize:         sample.SampleSize,
			PopulationSize:     sample.PopulationSize,
			MutationRate:       sample.MutationRate,
			Individuals:        classified,
		},
	}, nil
}

// ClassCounts tallies class labels of a classified sample.
func ClassCounts(sample model.ClassifiedSample) map[string]int {
	counts := make(map[string]int)
	for _, ind := range sample.Individuals {
		counts[ind.Class]++
	}
	return counts
}
