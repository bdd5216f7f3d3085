package storage

import (
	"context"

	"ctpy/internal/model"
)

// Filter narrows list queries. Zero fields match everything; fields a record
// kind does not carry are ignored.
type Filter struct {
	ClassificationID string
	RunID            string
	Dimensionality   int
}

// Store defines persistence for classification experiments: mode definitions,
// classifications, raw and classified samples, their statistics, and experiment tracking.
type Store interface {
	Init(ctx context.Context) error

	SaveModeDefinitions(ctx context.Context, defs []model.ModeDefinition) error
	GetModeDefinition(ctx context.Context, id string) (model.ModeDefinition, bool, error)
	ListModeDefinitions(ctx context.Context) ([]model.ModeDefinition, error)

	SaveClassifications(ctx context.Context, classifications []model.Classification) error
	GetClassification(ctx context.Context, id string) (model.Classification, bool, error)
	ListClassifications(ctx context.Context, filter Filter) ([]model.Classification, error)

	SaveIndividualSamples(ctx context.Context, samples []model.IndividualSample) error
	ListIndividualSamples(ctx context.Context, filter Filter) ([]model.IndividualSample, error)
	ListRunIDs(ctx context.Context) ([]string, error)

	SaveClassifiedSamples(ctx context.Context, samples []model.ClassifiedSample) error
	ListClassifiedSamples(ctx context.Context, filter Filter) ([]model.ClassifiedSample, error)

	SaveGenerationStats(ctx context.Context, stats []model.GenerationStats) error
	ListGenerationStats(ctx context.Context, filter Filter) ([]model.GenerationStats, error)
	UpdateGenerationStatsNeutrality(ctx context.Context, id string, probability float64) error

	SaveSimRunStats(ctx context.Context, stats []model.SimRunStats) error
	ListSimRunStats(ctx context.Context, filter Filter) ([]model.SimRunStats, error)

	SaveTraitStats(ctx context.Context, stats []model.TraitStats) error
	ListTraitStats(ctx context.Context, filter Filter) ([]model.TraitStats, error)
	UpdateTraitStatsNeutrality(ctx context.Context, id string, loci []float64, mean float64) error

	SaveExperiment(ctx context.Context, experiment model.ExperimentTracking) error
	GetExperiment(ctx context.Context, name string) (model.ExperimentTracking, bool, error)
}
