// Package ctpy is the public entry point to the coarse-graining pipeline: it wires
// configuration, storage, logging and metrics and exposes one method per stage.
package ctpy

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"ctpy/internal/blob"
	"ctpy/internal/config"
	"ctpy/internal/dataextract"
	"ctpy/internal/logging"
	"ctpy/internal/metrics"
	"ctpy/internal/model"
	"ctpy/internal/platform"
	"ctpy/internal/popgen"
	"ctpy/internal/storage"
)

type Options struct {
	// Config defaults to config.Default().
	Config  *config.Config
	Logger  *slog.Logger
	Metrics *metrics.Recorder
}

type Client struct {
	cfg      *config.Config
	store    storage.Store
	pipeline *platform.Pipeline
	logger   *slog.Logger
	metrics  *metrics.Recorder
}

type ExportRequest struct {
	// Dir overrides the configured export directory; ignored when a bucket is configured.
	Dir    string
	Prefix string
}

type ExportSummary struct {
	Artifacts []dataextract.Artifact `json:"artifacts"`
}

// PlanSummary is the size of the configured experiment.
type PlanSummary struct {
	Experiment                 string    `json:"experiment"`
	ParameterCombinations      int       `json:"parameter_combinations"`
	ClassificationsPerDim      int       `json:"classifications_per_dimensionality"`
	TotalClassifications       int       `json:"total_classifications"`
	QuasiStationarityTimes     []QSTime  `json:"quasi_stationarity_times"`
	UniformAlleleProbabilities []float64 `json:"uniform_allele_probabilities,omitempty"`
}

type QSTime struct {
	PopulationSize int     `json:"population_size"`
	InnovationRate float64 `json:"innovation_rate"`
	Generations    int     `json:"generations"`
}

func New(opts Options) (*Client, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.New(cfg.Logging.Level, os.Stderr)
	}

	store, err := storage.NewStore(cfg.Store.Kind, cfg.Store.DSN)
	if err != nil {
		return nil, err
	}
	pipeline, err := platform.NewPipeline(platform.Config{
		Store:             store,
		Logger:            logger,
		Metrics:           opts.Metrics,
		Retry:             platform.RetryPolicy{MaxAttempts: cfg.Runtime.MaxAttempts},
		Experiment:        cfg.Experiment.Name,
		Workers:           cfg.Runtime.Workers,
		BatchSize:         cfg.Runtime.BatchSize,
		ModeCacheSize:     cfg.Runtime.ModeCacheSize,
		Seed:              cfg.Experiment.Seed,
		SlatkinReplicates: cfg.Experiment.SlatkinReplicates,
		SaveIndividuals:   cfg.Runtime.SaveIndividuals,
	})
	if err != nil {
		_ = storage.CloseIfSupported(store)
		return nil, err
	}
	return &Client{
		cfg:      cfg,
		store:    store,
		pipeline: pipeline,
		logger:   logger,
		metrics:  opts.Metrics,
	}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	return c.pipeline.Init(ctx)
}

func (c *Client) Config() *config.Config {
	return c.cfg
}

// Construct builds and stores the mode definitions and classifications of the configured design.
func (c *Client) Construct(ctx context.Context, force bool) ([]model.Classification, error) {
	if err := c.Init(ctx); err != nil {
		return nil, err
	}
	exp := c.cfg.Experiment
	return c.pipeline.ConstructClassifications(ctx, platform.Design{
		MaxAlleles:       exp.MaxAlleles,
		Partitions:       exp.DimensionPartitions,
		Dimensions:       exp.DimensionsStudied,
		RandomReplicates: exp.RandomModeReplicates,
	}, platform.StageOptions{Force: force})
}

// ImportFile loads simulator samples from a .csv (long format) or .jsonl file.
func (c *Client) ImportFile(ctx context.Context, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return c.Import(ctx, f, strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."))
}

// Import loads simulator samples from in; format is "csv" or "jsonl".
func (c *Client) Import(ctx context.Context, in io.Reader, format string) (int, error) {
	if err := c.Init(ctx); err != nil {
		return 0, err
	}
	var (
		samples []model.IndividualSample
		err     error
	)
	switch format {
	case "csv":
		samples, err = dataextract.ReadSamplesCSV(in)
	case "jsonl", "json", "":
		samples, err = dataextract.ReadSamplesJSONL(in)
	default:
		return 0, fmt.Errorf("unsupported import format: %s", format)
	}
	if err != nil {
		return 0, err
	}
	return c.pipeline.ImportSamples(ctx, samples)
}

func (c *Client) Subsample(ctx context.Context, force bool) (platform.StageReport, error) {
	if err := c.Init(ctx); err != nil {
		return platform.StageReport{}, err
	}
	exp := c.cfg.Experiment
	return c.pipeline.Subsample(ctx, exp.SampleSizes, exp.DimensionsStudied, platform.StageOptions{Force: force})
}

func (c *Client) Classify(ctx context.Context, force bool) (platform.StageReport, error) {
	if err := c.Init(ctx); err != nil {
		return platform.StageReport{}, err
	}
	return c.pipeline.ClassifySamples(ctx, platform.StageOptions{Force: force})
}

func (c *Client) SimRunStats(ctx context.Context, force bool) (platform.StageReport, error) {
	if err := c.Init(ctx); err != nil {
		return platform.StageReport{}, err
	}
	return c.pipeline.ComputeSimRunStats(ctx, platform.StageOptions{Force: force})
}

func (c *Client) TraitStats(ctx context.Context, force bool) (platform.StageReport, error) {
	if err := c.Init(ctx); err != nil {
		return platform.StageReport{}, err
	}
	return c.pipeline.ComputeTraitStats(ctx, platform.StageOptions{Force: force})
}

func (c *Client) Retrofit(ctx context.Context) (platform.StageReport, error) {
	if err := c.Init(ctx); err != nil {
		return platform.StageReport{}, err
	}
	return c.pipeline.RetrofitNeutrality(ctx)
}

// Export writes the analysis CSV files to the configured S3 bucket, or to a local directory.
func (c *Client) Export(ctx context.Context, req ExportRequest) (ExportSummary, error) {
	if err := c.Init(ctx); err != nil {
		return ExportSummary{}, err
	}
	sink, err := c.exportSink(ctx, req)
	if err != nil {
		return ExportSummary{}, err
	}
	prefix := req.Prefix
	if prefix == "" {
		prefix = c.cfg.Experiment.Name
	}
	artifacts, err := c.pipeline.Export(ctx, sink, prefix)
	if err != nil {
		return ExportSummary{}, err
	}
	return ExportSummary{Artifacts: artifacts}, nil
}

func (c *Client) exportSink(ctx context.Context, req ExportRequest) (blob.Sink, error) {
	exp := c.cfg.Export
	if exp.Bucket != "" {
		return blob.NewS3(ctx, blob.S3Config{
			Bucket:    exp.Bucket,
			Prefix:    exp.Prefix,
			Region:    exp.Region,
			Endpoint:  exp.Endpoint,
			PathStyle: exp.PathStyle,
		})
	}
	dir := req.Dir
	if dir == "" {
		dir = exp.Dir
	}
	return blob.NewFilesystem(dir)
}

func (c *Client) Tracking(ctx context.Context) (model.ExperimentTracking, bool, error) {
	if err := c.Init(ctx); err != nil {
		return model.ExperimentTracking{}, false, err
	}
	return c.pipeline.Tracking(ctx)
}

func (c *Client) ResetTracking(ctx context.Context, stages ...model.Stage) error {
	if err := c.Init(ctx); err != nil {
		return err
	}
	return c.pipeline.ResetTracking(ctx, stages...)
}

// Plan reports the size of the configured experiment without touching the store.
func (c *Client) Plan(alleles int) PlanSummary {
	exp := c.cfg.Experiment
	levels := len(exp.DimensionPartitions)
	summary := PlanSummary{
		Experiment:            exp.Name,
		ParameterCombinations: popgen.SimParamCombinations(exp.InnovationRates, exp.PopulationSizes),
		ClassificationsPerDim: popgen.ClassificationsPerDimensionality(levels, exp.RandomModeReplicates),
		TotalClassifications:  popgen.TotalClassifications(len(exp.DimensionsStudied), levels, exp.RandomModeReplicates),
	}
	for _, n := range exp.PopulationSizes {
		for _, mu := range exp.InnovationRates {
			summary.QuasiStationarityTimes = append(summary.QuasiStationarityTimes, QSTime{
				PopulationSize: n,
				InnovationRate: mu,
				Generations:    popgen.ExpectedQuasiStationarityTime(n, mu),
			})
		}
	}
	if alleles > 0 {
		summary.UniformAlleleProbabilities = popgen.UniformAllelicDistribution(alleles)
	}
	return summary
}
