package platform

import (
	"context"
	"fmt"

	"ctpy/internal/model"
	"ctpy/internal/stats"
	"ctpy/internal/storage"
)

type generationKey struct {
	classificationID string
	replication      int
	generation       int
	sampleSize       int
}

type traitKey struct {
	replication    int
	generation     int
	sampleSize     int
	dimensionality int
}

// RetrofitNeutrality adds Slatkin exact test probabilities to statistics records
// that were stored without them. Class neutrality comes from stored classified
// samples and trait neutrality from stored individual samples. Only the
// neutrality fields are written, so the stage can be repeated safely.
func (p *Pipeline) RetrofitNeutrality(ctx context.Context) (StageReport, error) {
	if err := p.ensureStarted(); err != nil {
		return StageReport{}, err
	}
	if p.slatkin <= 0 {
		return StageReport{}, fmt.Errorf("slatkin replicates must be positive, got %d", p.slatkin)
	}
	runIDs, err := p.store.ListRunIDs(ctx)
	if err != nil {
		return StageReport{}, err
	}
	units := make([]unit, 0, len(runIDs))
	for _, runID := range runIDs {
		units = append(units, unit{
			name: "run " + runID,
			run: func(ctx context.Context) (unitResult, error) {
				classes, err := p.retrofitClassNeutrality(ctx, runID)
				if err != nil {
					return unitResult{}, err
				}
				traits, err := p.retrofitTraitNeutrality(ctx, runID)
				if err != nil {
					return unitResult{}, err
				}
				return unitResult{samples: classes + traits, records: classes + traits}, nil
			},
		})
	}
	report, err := p.fanOut(ctx, "retrofit", units)
	report.Stage = "retrofit"
	if err != nil {
		return report, err
	}
	p.logger.Info("retrofit neutrality complete", "units", report.Units, "records", report.Records)
	return report, nil
}

func (p *Pipeline) retrofitClassNeutrality(ctx context.Context, runID string) (int, error) {
	generation, err := p.store.ListGenerationStats(ctx, storage.Filter{RunID: runID})
	if err != nil {
		return 0, err
	}
	if len(generation) == 0 {
		return 0, nil
	}
	classified, err := p.store.ListClassifiedSamples(ctx, storage.Filter{RunID: runID})
	if err != nil {
		return 0, err
	}
	if len(classified) == 0 {
		p.logger.Warn("no classified samples to retrofit", "run_id", runID)
		return 0, nil
	}
	byKey := make(map[generationKey]model.ClassifiedSample, len(classified))
	for _, s := range classified {
		byKey[generationKey{s.ClassificationID, s.Replication, s.Generation, s.SampleSize}] = s
	}

	aggregator := stats.NewTraitAggregator(p.unitRand("retrofit classes "+runID), p.slatkin)
	updated := 0
	for _, gs := range generation {
		sample, ok := byKey[generationKey{gs.ClassificationID, gs.Replication, gs.Generation, gs.SampleSize}]
		if !ok {
			p.logger.Debug("no classified sample for generation stats", "id", gs.ID, "run_id", runID)
			continue
		}
		prob, err := aggregator.ClassNeutrality(sample)
		if err != nil {
			return updated, Permanent(fmt.Errorf("generation stats %s: %w", gs.ID, err))
		}
		if err := p.store.UpdateGenerationStatsNeutrality(ctx, gs.ID, prob); err != nil {
			return updated, err
		}
		updated++
	}
	return updated, nil
}

func (p *Pipeline) retrofitTraitNeutrality(ctx context.Context, runID string) (int, error) {
	traitStats, err := p.store.ListTraitStats(ctx, storage.Filter{RunID: runID})
	if err != nil {
		return 0, err
	}
	if len(traitStats) == 0 {
		return 0, nil
	}
	samples, err := p.store.ListIndividualSamples(ctx, storage.Filter{RunID: runID})
	if err != nil {
		return 0, err
	}
	byKey := make(map[traitKey]model.IndividualSample, len(samples))
	for _, s := range samples {
		byKey[traitKey{s.Replication, s.Generation, s.SampleSize, s.Dimensionality}] = s
	}

	aggregator := stats.NewTraitAggregator(p.unitRand("retrofit traits "+runID), p.slatkin)
	updated := 0
	for _, ts := range traitStats {
		sample, ok := byKey[traitKey{ts.Replication, ts.Generation, ts.SampleSize, ts.Dimensionality}]
		if !ok {
			p.logger.Debug("no individual sample for trait stats", "id", ts.ID, "run_id", runID)
			continue
		}
		loci, mean, err := aggregator.Neutrality(sample)
		if err != nil {
			return updated, Permanent(fmt.Errorf("trait stats %s: %w", ts.ID, err))
		}
		if err := p.store.UpdateTraitStatsNeutrality(ctx, ts.ID, loci, mean); err != nil {
			return updated, err
		}
		updated++
	}
	return updated, nil
}
