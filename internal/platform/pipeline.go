package platform

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"math/rand"
	"sync"

	"github.com/sourcegraph/conc/pool"

	"ctpy/internal/blob"
	"ctpy/internal/classify"
	"ctpy/internal/dataextract"
	"ctpy/internal/logging"
	"ctpy/internal/metrics"
	"ctpy/internal/model"
	"ctpy/internal/sampling"
	"ctpy/internal/stats"
	"ctpy/internal/storage"
)

const defaultBatchSize = 500

type Config struct {
	Store      storage.Store
	Logger     *slog.Logger
	Metrics    *metrics.Recorder
	Retry      RetryPolicy
	Experiment string

	Workers           int
	BatchSize         int
	ModeCacheSize     int
	Seed              int64
	SlatkinReplicates int
	// SaveIndividuals persists classified samples. Without them the per-run
	// statistics are computed while classifying.
	SaveIndividuals bool
}

// Design is the experiment layout ConstructClassifications builds.
type Design struct {
	MaxAlleles       int64
	Partitions       []int
	Dimensions       []int
	RandomReplicates int
}

// StageOptions control one stage invocation.
type StageOptions struct {
	// Force re-runs a stage already marked complete.
	Force bool
}

// StageReport summarizes one stage invocation.
type StageReport struct {
	Stage   model.Stage `json:"stage"`
	Units   int         `json:"units"`
	Samples int         `json:"samples"`
	Skipped int         `json:"skipped"`
	Records int         `json:"records"`
}

func (r *StageReport) add(other unitResult) {
	r.Units++
	r.Samples += other.samples
	r.Skipped += other.skipped
	r.Records += other.records
}

type unitResult struct {
	samples int
	skipped int
	records int
}

type unit struct {
	name string
	run  func(ctx context.Context) (unitResult, error)
}

// Pipeline runs the coarse-graining stages of one experiment against a store.
type Pipeline struct {
	store   storage.Store
	cache   *classify.ModeCache
	logger  *slog.Logger
	metrics *metrics.Recorder
	retry   RetryPolicy

	experiment      string
	workers         int
	batchSize       int
	seed            int64
	slatkin         int
	saveIndividuals bool

	mu          sync.Mutex
	started     bool
	cacheHits   uint64
	cacheMisses uint64
}

func NewPipeline(cfg Config) (*Pipeline, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	cache, err := classify.NewModeCache(cfg.Store, cfg.ModeCacheSize)
	if err != nil {
		return nil, err
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.Experiment == "" {
		cfg.Experiment = "ctpy"
	}
	return &Pipeline{
		store:           cfg.Store,
		cache:           cache,
		logger:          logging.OrDiscard(cfg.Logger),
		metrics:         cfg.Metrics,
		retry:           normalizeRetryPolicy(cfg.Retry),
		experiment:      cfg.Experiment,
		workers:         cfg.Workers,
		batchSize:       cfg.BatchSize,
		seed:            cfg.Seed,
		slatkin:         cfg.SlatkinReplicates,
		saveIndividuals: cfg.SaveIndividuals,
	}, nil
}

func (p *Pipeline) Init(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return nil
	}
	if err := p.store.Init(ctx); err != nil {
		return err
	}
	p.started = true
	return nil
}

func (p *Pipeline) Store() storage.Store {
	return p.store
}

func (p *Pipeline) ModeCache() *classify.ModeCache {
	return p.cache
}

func (p *Pipeline) Experiment() string {
	return p.experiment
}

func (p *Pipeline) ensureStarted() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return fmt.Errorf("pipeline is not initialized")
	}
	return nil
}

// ConstructClassifications builds the mode pool and every classification of the
// design, stores them and primes the mode cache.
func (p *Pipeline) ConstructClassifications(ctx context.Context, design Design, opts StageOptions) ([]model.Classification, error) {
	var built []model.Classification
	_, err := p.runStage(ctx, model.StageClassifications, opts, func(ctx context.Context) (StageReport, error) {
		rng := rand.New(rand.NewSource(p.seed))
		modePool, err := classify.BuildModePool(rng, design.MaxAlleles, design.Partitions, design.RandomReplicates)
		if err != nil {
			return StageReport{}, err
		}
		classifications, err := classify.DesignExperiment(rng, design.Dimensions, design.Partitions, design.RandomReplicates, modePool)
		if err != nil {
			return StageReport{}, err
		}
		defs := modePool.Definitions(design.Partitions)
		if err := saveBatched(ctx, p.batchSize, defs, p.store.SaveModeDefinitions); err != nil {
			return StageReport{}, fmt.Errorf("save mode definitions: %w", err)
		}
		if err := saveBatched(ctx, p.batchSize, classifications, p.store.SaveClassifications); err != nil {
			return StageReport{}, fmt.Errorf("save classifications: %w", err)
		}
		p.cache.Prime(defs...)
		p.metrics.Records("mode_definitions", len(defs))
		p.metrics.Records("classifications", len(classifications))
		p.logger.Info("constructed classifications",
			"mode_definitions", len(defs),
			"classifications", len(classifications),
		)
		built = classifications
		return StageReport{Units: 1, Records: len(defs) + len(classifications)}, nil
	})
	return built, err
}

// ImportSamples stores raw individual samples produced by a simulator.
func (p *Pipeline) ImportSamples(ctx context.Context, samples []model.IndividualSample) (int, error) {
	if err := p.ensureStarted(); err != nil {
		return 0, err
	}
	if err := saveBatched(ctx, p.batchSize, samples, p.store.SaveIndividualSamples); err != nil {
		return 0, fmt.Errorf("save individual samples: %w", err)
	}
	p.metrics.Records("individual_samples", len(samples))
	p.logger.Info("imported samples", "samples", len(samples))
	return len(samples), nil
}

// Subsample derives smaller samples from every raw sample, that is every stored
// sample taken at the largest sample size and dimensionality present.
func (p *Pipeline) Subsample(ctx context.Context, sampleSizes, dimensions []int, opts StageOptions) (StageReport, error) {
	return p.runStage(ctx, model.StageSubsampling, opts, func(ctx context.Context) (StageReport, error) {
		all, err := p.store.ListIndividualSamples(ctx, storage.Filter{})
		if err != nil {
			return StageReport{}, err
		}
		maxSize, maxDims := 0, 0
		for _, s := range all {
			maxSize = max(maxSize, s.SampleSize)
			maxDims = max(maxDims, s.Dimensionality)
		}

		units := make([]unit, 0, len(all))
		for _, raw := range all {
			if raw.SampleSize != maxSize || raw.Dimensionality != maxDims {
				continue
			}
			units = append(units, unit{
				name: "sample " + raw.ID,
				run: func(ctx context.Context) (unitResult, error) {
					if len(raw.Individuals) == 0 {
						p.logger.Warn("skipping empty sample", "sample_id", raw.ID, "run_id", raw.RunID)
						p.metrics.Sample(string(model.StageSubsampling), "skipped")
						return unitResult{skipped: 1}, nil
					}
					derived, err := sampling.Subsample(p.unitRand(raw.ID), raw, sampleSizes, dimensions)
					if err != nil {
						return unitResult{}, Permanent(err)
					}
					if err := saveBatched(ctx, p.batchSize, derived, p.store.SaveIndividualSamples); err != nil {
						return unitResult{}, err
					}
					p.metrics.Sample(string(model.StageSubsampling), "ok")
					p.metrics.Records("individual_samples", len(derived))
					return unitResult{samples: 1, records: len(derived)}, nil
				},
			})
		}
		return p.fanOut(ctx, model.StageSubsampling, units)
	})
}

// ClassifySamples classifies every stored sample under every classification of
// matching dimensionality. Each (classification, run) pair is one unit of work.
func (p *Pipeline) ClassifySamples(ctx context.Context, opts StageOptions) (StageReport, error) {
	return p.runStage(ctx, model.StageClassification, opts, func(ctx context.Context) (StageReport, error) {
		classifications, err := p.store.ListClassifications(ctx, storage.Filter{})
		if err != nil {
			return StageReport{}, err
		}
		runIDs, err := p.store.ListRunIDs(ctx)
		if err != nil {
			return StageReport{}, err
		}
		units := make([]unit, 0, len(classifications)*len(runIDs))
		for _, c := range classifications {
			for _, runID := range runIDs {
				units = append(units, unit{
					name: "classification " + c.ID + " run " + runID,
					run: func(ctx context.Context) (unitResult, error) {
						return p.classifyRun(ctx, c, runID)
					},
				})
			}
		}
		report, err := p.fanOut(ctx, model.StageClassification, units)
		p.reportCacheStats()
		if err != nil {
			return report, err
		}
		if !p.saveIndividuals {
			if err := p.completeStage(ctx, model.StageSimRunStats); err != nil {
				return report, err
			}
		}
		return report, nil
	})
}

func (p *Pipeline) classifyRun(ctx context.Context, c model.Classification, runID string) (unitResult, error) {
	stage := string(model.StageClassification)
	classifier, err := classify.NewClassifier(ctx, c, p.cache)
	if err != nil {
		return unitResult{}, err
	}
	samples, err := p.store.ListIndividualSamples(ctx, storage.Filter{RunID: runID, Dimensionality: c.Dimensionality})
	if err != nil {
		return unitResult{}, err
	}

	aggregator := stats.NewSampleAggregator(classifier)
	var result unitResult
	generation := make([]model.GenerationStats, 0, len(samples))
	classified := make([]model.ClassifiedSample, 0, len(samples))
	for _, sample := range samples {
		res, err := aggregator.Aggregate(sample)
		if errors.Is(err, stats.ErrEmptySample) {
			p.logger.Warn("skipping empty sample", "sample_id", sample.ID, "run_id", runID)
			p.metrics.Sample(stage, "skipped")
			result.skipped++
			continue
		}
		if err != nil {
			p.metrics.Sample(stage, "failed")
			return unitResult{}, fmt.Errorf("sample %s: %w", sample.ID, err)
		}
		generation = append(generation, res.Stats)
		classified = append(classified, res.Classified)
		result.samples++
	}
	if result.samples == 0 {
		p.logger.Debug("no samples for classification", "classification_id", c.ID, "run_id", runID)
		return result, nil
	}

	writes := []func(ctx context.Context) error{
		func(ctx context.Context) error {
			return saveBatched(ctx, p.batchSize, generation, p.store.SaveGenerationStats)
		},
	}
	result.records = len(generation)
	var runStats []model.SimRunStats
	if p.saveIndividuals {
		writes = append(writes, func(ctx context.Context) error {
			return saveBatched(ctx, p.batchSize, classified, p.store.SaveClassifiedSamples)
		})
		result.records += len(classified)
	} else {
		runStats, err = simRunStats(c, runID, classified)
		if err != nil {
			return unitResult{}, err
		}
		writes = append(writes, func(ctx context.Context) error {
			return saveBatched(ctx, p.batchSize, runStats, p.store.SaveSimRunStats)
		})
		result.records += len(runStats)
	}
	if err := commit(ctx, writes...); err != nil {
		return unitResult{}, err
	}

	for range result.samples {
		p.metrics.Sample(stage, "ok")
	}
	p.metrics.Records("generation_stats", len(generation))
	if p.saveIndividuals {
		p.metrics.Records("classified_samples", len(classified))
	} else {
		p.metrics.Records("simrun_stats", len(runStats))
	}
	p.logger.Log(ctx, logging.LevelTrace, "classified run",
		"classification_id", c.ID,
		"run_id", runID,
		"samples", result.samples,
	)
	return result, nil
}

// ComputeSimRunStats derives first-appearance times and innovation intervals
// from stored classified samples. Each (classification, run) pair is one unit of work.
func (p *Pipeline) ComputeSimRunStats(ctx context.Context, opts StageOptions) (StageReport, error) {
	return p.runStage(ctx, model.StageSimRunStats, opts, func(ctx context.Context) (StageReport, error) {
		classifications, err := p.store.ListClassifications(ctx, storage.Filter{})
		if err != nil {
			return StageReport{}, err
		}
		runIDs, err := p.store.ListRunIDs(ctx)
		if err != nil {
			return StageReport{}, err
		}
		units := make([]unit, 0, len(classifications)*len(runIDs))
		for _, c := range classifications {
			for _, runID := range runIDs {
				units = append(units, unit{
					name: "classification " + c.ID + " run " + runID,
					run: func(ctx context.Context) (unitResult, error) {
						classified, err := p.store.ListClassifiedSamples(ctx, storage.Filter{ClassificationID: c.ID, RunID: runID})
						if err != nil {
							return unitResult{}, err
						}
						if len(classified) == 0 {
							p.logger.Debug("no classified samples for run", "classification_id", c.ID, "run_id", runID)
							return unitResult{}, nil
						}
						results, err := simRunStats(c, runID, classified)
						if err != nil {
							return unitResult{}, err
						}
						if err := saveBatched(ctx, p.batchSize, results, p.store.SaveSimRunStats); err != nil {
							return unitResult{}, err
						}
						p.metrics.Records("simrun_stats", len(results))
						return unitResult{samples: len(classified), records: len(results)}, nil
					},
				})
			}
		}
		return p.fanOut(ctx, model.StageSimRunStats, units)
	})
}

func simRunStats(c model.Classification, runID string, classified []model.ClassifiedSample) ([]model.SimRunStats, error) {
	aggregator := stats.NewRunAggregator(c, runID)
	for _, sample := range classified {
		if err := aggregator.Add(sample); err != nil {
			return nil, Permanent(err)
		}
	}
	return aggregator.Results(), nil
}

// ComputeTraitStats summarizes the raw trait values of every stored sample. Each run is one unit of work.
func (p *Pipeline) ComputeTraitStats(ctx context.Context, opts StageOptions) (StageReport, error) {
	return p.runStage(ctx, model.StageTraitStats, opts, func(ctx context.Context) (StageReport, error) {
		runIDs, err := p.store.ListRunIDs(ctx)
		if err != nil {
			return StageReport{}, err
		}
		stage := string(model.StageTraitStats)
		units := make([]unit, 0, len(runIDs))
		for _, runID := range runIDs {
			units = append(units, unit{
				name: "run " + runID,
				run: func(ctx context.Context) (unitResult, error) {
					samples, err := p.store.ListIndividualSamples(ctx, storage.Filter{RunID: runID})
					if err != nil {
						return unitResult{}, err
					}
					aggregator := stats.NewTraitAggregator(p.unitRand("traits "+runID), p.slatkin)
					var result unitResult
					out := make([]model.TraitStats, 0, len(samples))
					for _, sample := range samples {
						ts, err := aggregator.Aggregate(sample)
						if errors.Is(err, stats.ErrEmptySample) {
							p.logger.Warn("skipping empty sample", "sample_id", sample.ID, "run_id", runID)
							p.metrics.Sample(stage, "skipped")
							result.skipped++
							continue
						}
						if err != nil {
							return unitResult{}, Permanent(fmt.Errorf("sample %s: %w", sample.ID, err))
						}
						out = append(out, ts)
						result.samples++
					}
					if err := saveBatched(ctx, p.batchSize, out, p.store.SaveTraitStats); err != nil {
						return unitResult{}, err
					}
					for range result.samples {
						p.metrics.Sample(stage, "ok")
					}
					p.metrics.Records("trait_stats", len(out))
					result.records = len(out)
					return result, nil
				},
			})
		}
		return p.fanOut(ctx, model.StageTraitStats, units)
	})
}

// Export writes the analysis CSV files to sink.
func (p *Pipeline) Export(ctx context.Context, sink blob.Sink, prefix string) ([]dataextract.Artifact, error) {
	if err := p.ensureStarted(); err != nil {
		return nil, err
	}
	if sink == nil {
		return nil, fmt.Errorf("export sink is required")
	}
	artifacts, err := dataextract.ExportAll(ctx, p.store, sink, prefix)
	if err != nil {
		return nil, err
	}
	for _, a := range artifacts {
		p.logger.Info("exported", "file", a.Name, "rows", a.Rows, "location", a.Location)
	}
	return artifacts, nil
}

// fanOut runs units on the worker pool. A failed unit does not stop the
// others; the joined errors of every failed unit are returned.
func (p *Pipeline) fanOut(ctx context.Context, stage model.Stage, units []unit) (StageReport, error) {
	report := StageReport{Stage: stage}
	var mu sync.Mutex

	workers := pool.New().WithContext(ctx).WithMaxGoroutines(p.workers)
	for _, u := range units {
		workers.Go(func(ctx context.Context) error {
			var res unitResult
			err := p.retry.Do(ctx, string(stage), p.metrics, func(ctx context.Context) error {
				r, err := u.run(ctx)
				if err != nil {
					return err
				}
				res = r
				return nil
			})
			if err != nil {
				p.logger.Error("unit failed", "stage", stage, "unit", u.name, "err", err)
				return fmt.Errorf("%s: %w", u.name, err)
			}
			mu.Lock()
			report.add(res)
			mu.Unlock()
			return nil
		})
	}
	err := workers.Wait()
	return report, err
}

func (p *Pipeline) reportCacheStats() {
	hits, misses := p.cache.Stats()
	p.mu.Lock()
	dh, dm := hits-p.cacheHits, misses-p.cacheMisses
	p.cacheHits, p.cacheMisses = hits, misses
	p.mu.Unlock()
	p.metrics.ModeCache(dh, dm)
}

// unitRand gives every unit of work its own random stream, fixed by the
// pipeline seed and the unit key, so results do not depend on scheduling.
func (p *Pipeline) unitRand(key string) *rand.Rand {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return rand.New(rand.NewSource(p.seed ^ int64(h.Sum64())))
}

// saveBatched writes items in chunks of size. A failure after the first chunk is permanent.
func saveBatched[T any](ctx context.Context, size int, items []T, save func(context.Context, []T) error) error {
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		if err := save(ctx, items[start:end]); err != nil {
			if start > 0 {
				return Permanent(err)
			}
			return err
		}
	}
	return nil
}

// commit applies writes in order. Once one write has landed, later failures
// are permanent so a retry cannot duplicate the records already written.
func commit(ctx context.Context, writes ...func(ctx context.Context) error) error {
	for i, write := range writes {
		if err := write(ctx); err != nil {
			if i > 0 {
				return Permanent(err)
			}
			return err
		}
	}
	return nil
}
