package stats

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"

	"ctpy/internal/model"
)

type replicationKey struct {
	replication int
	sampleSize  int
}

type replicationState struct {
	populationSize  int
	mutationRate    float64
	firstAppearance map[string]int
}

// RunAggregator collects the classified samples of one simulation run under one
// classification and reports first-appearance times per replication.
// Samples may arrive in any generation order.
type RunAggregator struct {
	classification model.Classification
	runID          string
	samples        int
	replications   map[replicationKey]*replicationState
}

func NewRunAggregator(classification model.Classification, runID string) *RunAggregator {
	return &RunAggregator{
		classification: classification,
		runID:          runID,
		replications:   make(map[replicationKey]*replicationState),
	}
}

func (a *RunAggregator) Add(sample model.ClassifiedSample) error {
	if sample.ClassificationID != a.classification.ID {
		return fmt.Errorf("sample %s belongs to classification %s, not %s", sample.ID, sample.ClassificationID, a.classification.ID)
	}
	if sample.RunID != a.runID {
		return fmt.Errorf("sample %s belongs to run %s, not %s", sample.ID, sample.RunID, a.runID)
	}
	key := replicationKey{replication: sample.Replication, sampleSize: sample.SampleSize}
	state, ok := a.replications[key]
	if !ok {
		state = &replicationState{
			populationSize:  sample.PopulationSize,
			mutationRate:    sample.MutationRate,
			firstAppearance: make(map[string]int),
		}
		a.replications[key] = state
	}
	for _, ind := range sample.Individuals {
		if seen, ok := state.firstAppearance[ind.Class]; !ok || sample.Generation < seen {
			state.firstAppearance[ind.Class] = sample.Generation
		}
	}
	a.samples++
	return nil
}

// Samples is the number of classified samples added so far.
func (a *RunAggregator) Samples() int {
	return a.samples
}

// Results returns one record per replication (and sample size), ordered by replication.
func (a *RunAggregator) Results() []model.SimRunStats {
	keys := make([]replicationKey, 0, len(a.replications))
	for key := range a.replications {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].replication != keys[j].replication {
			return keys[i].replication < keys[j].replication
		}
		return keys[i].sampleSize < keys[j].sampleSize
	})

	out := make([]model.SimRunStats, 0, len(keys))
	for _, key := range keys {
		state := a.replications[key]
		mean, sd := InnovationIntervalStats(state.firstAppearance)
		first := make(map[string]int, len(state.firstAppearance))
		for class, gen := range state.firstAppearance {
			first[class] = gen
		}
		out = append(out, model.SimRunStats{
			VersionedRecord:        model.CurrentVersion(),
			ID:                     uuid.NewString(),
			ClassificationID:       a.classification.ID,
			ClassificationType:     a.classification.Type,
			Dimensionality:         a.classification.Dimensionality,
			Coarseness:             a.classification.Coarseness,
			RunID:                  a.runID,
			Replication:            key.replication,
			SampleSize:             key.sampleSize,
			PopulationSize:         state.populationSize,
			MutationRate:           state.mutationRate,
			FirstAppearance:        first,
			InnovationIntervalMean: mean,
			InnovationIntervalSD:   sd,
		})
	}
	return out
}

// InnovationIntervalStats returns the mean and sample standard deviation of the gaps
// between consecutive first-appearance times.
func InnovationIntervalStats(firstAppearance map[string]int) (mean, sd float64) {
	if len(firstAppearance) < 2 {
		return 0, 0
	}
	times := make([]int, 0, len(firstAppearance))
	for _, t := range firstAppearance {
		times = append(times, t)
	}
	sort.Ints(times)

	intervals := make([]float64, 0, len(times)-1)
	for i := 1; i < len(times); i++ {
		intervals = append(intervals, float64(times[i]-times[i-1]))
	}
	mean = stat.Mean(intervals, nil)
	if len(intervals) < 2 {
		return mean, 0
	}
	return mean, stat.StdDev(intervals, nil)
}
