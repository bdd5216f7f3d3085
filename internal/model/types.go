package model

import "time"

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

func (v VersionedRecord) Version() VersionedRecord {
	return v
}

func CurrentVersion() VersionedRecord {
	return VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion}
}

type ModeType string

const (
	ModeTypeEven   ModeType = "EVEN"
	ModeTypeRandom ModeType = "RANDOM"
)

// ModeBoundary is the half-open interval [Lower, Upper) of one mode.
type ModeBoundary struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// ModeDefinition partitions one trait dimension into NumModes contiguous modes.
type ModeDefinition struct {
	VersionedRecord
	ID         string         `json:"id"`
	Type       ModeType       `json:"type"`
	MaxValue   int64          `json:"max_value"`
	NumModes   int            `json:"num_modes"`
	Boundaries []ModeBoundary `json:"boundaries"`
}

type Classification struct {
	VersionedRecord
	ID             string   `json:"id"`
	Type           ModeType `json:"type"`
	Dimensionality int      `json:"dimensionality"`
	Coarseness     int      `json:"coarseness"`
	ModeIDs        []string `json:"mode_ids"`
}

type Individual struct {
	ID       int     `json:"id"`
	Genotype []int64 `json:"genotype"`
}

type IndividualSample struct {
	VersionedRecord
	ID             string       `json:"id"`
	RunID          string       `json:"simulation_run_id"`
	Replication    int          `json:"replication"`
	Generation     int          `json:"simulation_time"`
	SampleSize     int          `json:"sample_size"`
	PopulationSize int          `json:"population_size"`
	MutationRate   float64      `json:"mutation_rate"`
	Dimensionality int          `json:"dimensionality"`
	Individuals    []Individual `json:"individuals"`
}

type ClassifiedIndividual struct {
	ID    int    `json:"id"`
	Class string `json:"classid"`
}

type ClassifiedSample struct {
	VersionedRecord
	ID                 string                 `json:"id"`
	ClassificationID   string                 `json:"classification_id"`
	ClassificationType ModeType               `json:"classification_type"`
	Dimensionality     int                    `json:"classification_dim"`
	Coarseness         int                    `json:"classification_coarseness"`
	RunID              string                 `json:"simulation_run_id"`
	Replication        int                    `json:"replication"`
	Generation         int                    `json:"simulation_time"`
	SampleSize         int                    `json:"sample_size"`
	PopulationSize     int                    `json:"population_size"`
	MutationRate       float64                `json:"mutation_rate"`
	Individuals        []ClassifiedIndividual `json:"sample"`
}

// GenerationStats summarizes one classified sample of one generation.
type GenerationStats struct {
	VersionedRecord
	ID                    string    `json:"id"`
	ClassificationID      string    `json:"classification_id"`
	ClassificationType    ModeType  `json:"classification_type"`
	Dimensionality        int       `json:"classification_dim"`
	Coarseness            int       `json:"classification_coarseness"`
	NumClasses            int64     `json:"classification_num_classes"`
	RunID                 string    `json:"simulation_run_id"`
	Replication           int       `json:"replication"`
	Generation            int       `json:"simulation_time"`
	SampleSize            int       `json:"sample_size"`
	PopulationSize        int       `json:"population_size"`
	MutationRate          float64   `json:"mutation_rate"`
	ModeRichness          []int     `json:"mode_richness"`
	ModeEvennessIQV       []float64 `json:"mode_evenness_iqv"`
	ModeEvennessEntropy   []float64 `json:"mode_evenness_shannon_entropy"`
	ClassRichness         int       `json:"class_richness"`
	ClassEvennessIQV      float64   `json:"class_evenness_iqv"`
	ClassShannonEntropy   float64   `json:"class_shannon_entropy"`
	DesignSpaceOccupation float64   `json:"design_space_occupation"`
	ClassNeutrality       *float64  `json:"class_neutrality_slatkin,omitempty"`
}

// SimRunStats summarizes one replication of one simulation run under one classification.
type SimRunStats struct {
	VersionedRecord
	ID                     string         `json:"id"`
	ClassificationID       string         `json:"classification_id"`
	ClassificationType     ModeType       `json:"classification_type"`
	Dimensionality         int            `json:"classification_dim"`
	Coarseness             int            `json:"classification_coarseness"`
	RunID                  string         `json:"simulation_run_id"`
	Replication            int            `json:"replication"`
	SampleSize             int            `json:"sample_size"`
	PopulationSize         int            `json:"population_size"`
	MutationRate           float64        `json:"mutation_rate"`
	FirstAppearance        map[string]int `json:"class_time_first_appearance"`
	InnovationIntervalMean float64        `json:"class_innovation_interval_mean"`
	InnovationIntervalSD   float64        `json:"class_innovation_interval_sd"`
}

// TraitStats summarizes raw trait values of one individual sample, before classification.
type TraitStats struct {
	VersionedRecord
	ID             string    `json:"id"`
	RunID          string    `json:"simulation_run_id"`
	Replication    int       `json:"replication"`
	Generation     int       `json:"simulation_time"`
	SampleSize     int       `json:"sample_size"`
	PopulationSize int       `json:"population_size"`
	MutationRate   float64   `json:"mutation_rate"`
	Dimensionality int       `json:"dimensionality"`
	LociRichness   []int     `json:"loci_trait_richness"`
	LociEntropy    []float64 `json:"loci_evenness_shannon_entropy"`
	LociIQV        []float64 `json:"loci_evenness_iqv"`
	LociNeutrality []float64 `json:"loci_neutrality_slatkin,omitempty"`
	MeanRichness   float64   `json:"mean_trait_richness"`
	MeanEntropy    float64   `json:"mean_evenness_shannon_entropy"`
	MeanIQV        float64   `json:"mean_evenness_iqv"`
	MeanNeutrality *float64  `json:"mean_neutrality_slatkin,omitempty"`
}

type Stage string

const (
	StageClassifications Stage = "classifications"
	StageSubsampling     Stage = "subsampling"
	StageClassification  Stage = "classification"
	StageSimRunStats     Stage = "simrun_stats"
	StageTraitStats      Stage = "trait_statistics"
)

// ExperimentTracking records which pipeline stages have completed for an experiment.
type ExperimentTracking struct {
	VersionedRecord
	Name        string              `json:"experiment_name"`
	Description string              `json:"description,omitempty"`
	BeganAt     time.Time           `json:"experiment_begin_tstamp"`
	Completed   map[Stage]time.Time `json:"completed,omitempty"`
}

func (t ExperimentTracking) IsComplete(stage Stage) bool {
	_, ok := t.Completed[stage]
	return ok
}
