package dataextract

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strconv"
	"time"

	"ctpy/internal/blob"
	"ctpy/internal/model"
	"ctpy/internal/storage"
)

const (
	GenerationStatsFile = "data_pergeneration_stats_postclassification.csv"
	SimRunStatsFile     = "data_persimrun_stats_postclassification.csv"
	TraitStatsFile      = "data_pergeneration_stats_traits.csv"
	ManifestFile        = "export_manifest.json"
)

// Column renders one CSV column of a record.
type Column[T any] struct {
	Name  string
	Value func(T) string
}

var GenerationStatsColumns = []Column[model.GenerationStats]{
	{"classification_id", func(s model.GenerationStats) string { return s.ClassificationID }},
	{"classification_type", func(s model.GenerationStats) string { return string(s.ClassificationType) }},
	{"classification_dim", func(s model.GenerationStats) string { return strconv.Itoa(s.Dimensionality) }},
	{"classification_coarseness", func(s model.GenerationStats) string { return strconv.Itoa(s.Coarseness) }},
	{"simulation_time", func(s model.GenerationStats) string { return strconv.Itoa(s.Generation) }},
	{"replication", func(s model.GenerationStats) string { return strconv.Itoa(s.Replication) }},
	{"sample_size", func(s model.GenerationStats) string { return strconv.Itoa(s.SampleSize) }},
	{"population_size", func(s model.GenerationStats) string { return strconv.Itoa(s.PopulationSize) }},
	{"mutation_rate", func(s model.GenerationStats) string { return formatFloat(s.MutationRate) }},
	{"simulation_run_id", func(s model.GenerationStats) string { return s.RunID }},
	{"class_richness", func(s model.GenerationStats) string { return strconv.Itoa(s.ClassRichness) }},
	{"class_evenness_iqv", func(s model.GenerationStats) string { return formatFloat(s.ClassEvennessIQV) }},
	{"class_shannon_entropy", func(s model.GenerationStats) string { return formatFloat(s.ClassShannonEntropy) }},
	{"design_space_occupation", func(s model.GenerationStats) string { return formatFloat(s.DesignSpaceOccupation) }},
}

var SimRunStatsColumns = []Column[model.SimRunStats]{
	{"classification_id", func(s model.SimRunStats) string { return s.ClassificationID }},
	{"classification_type", func(s model.SimRunStats) string { return string(s.ClassificationType) }},
	{"classification_dim", func(s model.SimRunStats) string { return strconv.Itoa(s.Dimensionality) }},
	{"classification_coarseness", func(s model.SimRunStats) string { return strconv.Itoa(s.Coarseness) }},
	{"replication", func(s model.SimRunStats) string { return strconv.Itoa(s.Replication) }},
	{"sample_size", func(s model.SimRunStats) string { return strconv.Itoa(s.SampleSize) }},
	{"population_size", func(s model.SimRunStats) string { return strconv.Itoa(s.PopulationSize) }},
	{"mutation_rate", func(s model.SimRunStats) string { return formatFloat(s.MutationRate) }},
	{"simulation_run_id", func(s model.SimRunStats) string { return s.RunID }},
	{"num_classes_observed", func(s model.SimRunStats) string { return strconv.Itoa(len(s.FirstAppearance)) }},
	{"class_innovation_interval_mean", func(s model.SimRunStats) string { return formatFloat(s.InnovationIntervalMean) }},
	{"class_innovation_interval_sd", func(s model.SimRunStats) string { return formatFloat(s.InnovationIntervalSD) }},
}

var TraitStatsColumns = []Column[model.TraitStats]{
	{"simulation_run_id", func(s model.TraitStats) string { return s.RunID }},
	{"simulation_time", func(s model.TraitStats) string { return strconv.Itoa(s.Generation) }},
	{"replication", func(s model.TraitStats) string { return strconv.Itoa(s.Replication) }},
	{"sample_size", func(s model.TraitStats) string { return strconv.Itoa(s.SampleSize) }},
	{"population_size", func(s model.TraitStats) string { return strconv.Itoa(s.PopulationSize) }},
	{"mutation_rate", func(s model.TraitStats) string { return formatFloat(s.MutationRate) }},
	{"dimensionality", func(s model.TraitStats) string { return strconv.Itoa(s.Dimensionality) }},
	{"mean_trait_richness", func(s model.TraitStats) string { return formatFloat(s.MeanRichness) }},
	{"mean_evenness_shannon_entropy", func(s model.TraitStats) string { return formatFloat(s.MeanEntropy) }},
	{"mean_evenness_iqv", func(s model.TraitStats) string { return formatFloat(s.MeanIQV) }},
	{"mean_neutrality_slatkin", func(s model.TraitStats) string { return formatOptional(s.MeanNeutrality) }},
}

func WriteCSV[T any](out io.Writer, columns []Column[T], rows []T) error {
	writer := csv.NewWriter(out)
	header := make([]string, 0, len(columns))
	for _, c := range columns {
		header = append(header, c.Name)
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	record := make([]string, len(columns))
	for i, row := range rows {
		for j, c := range columns {
			record[j] = c.Value(row)
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("write csv row %d: %w", i+1, err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// Artifact describes one exported file.
type Artifact struct {
	Name     string `json:"name"`
	Rows     int    `json:"rows"`
	Location string `json:"location"`
}

// Manifest indexes one export; it is published next to the CSV files.
type Manifest struct {
	Prefix       string     `json:"prefix,omitempty"`
	CreatedAtUTC string     `json:"created_at_utc"`
	Artifacts    []Artifact `json:"artifacts"`
}

// Source is the subset of the store the exporter reads.
type Source interface {
	ListGenerationStats(ctx context.Context, filter storage.Filter) ([]model.GenerationStats, error)
	ListSimRunStats(ctx context.Context, filter storage.Filter) ([]model.SimRunStats, error)
	ListTraitStats(ctx context.Context, filter storage.Filter) ([]model.TraitStats, error)
}

// ExportAll writes the analysis CSV files for every statistics collection and publishes them to sink under prefix.
func ExportAll(ctx context.Context, src Source, sink blob.Sink, prefix string) ([]Artifact, error) {
	generation, err := src.ListGenerationStats(ctx, storage.Filter{})
	if err != nil {
		return nil, fmt.Errorf("list generation stats: %w", err)
	}
	simrun, err := src.ListSimRunStats(ctx, storage.Filter{})
	if err != nil {
		return nil, fmt.Errorf("list simrun stats: %w", err)
	}
	traits, err := src.ListTraitStats(ctx, storage.Filter{})
	if err != nil {
		return nil, fmt.Errorf("list trait stats: %w", err)
	}

	var artifacts []Artifact
	publish := func(name string, rows int, write func(io.Writer) error) error {
		var buf bytes.Buffer
		if err := write(&buf); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		key := name
		if prefix != "" {
			key = path.Join(prefix, name)
		}
		location, err := sink.Put(ctx, key, &buf, "text/csv")
		if err != nil {
			return fmt.Errorf("publish %s: %w", name, err)
		}
		artifacts = append(artifacts, Artifact{Name: name, Rows: rows, Location: location})
		return nil
	}

	if err := publish(GenerationStatsFile, len(generation), func(w io.Writer) error {
		return WriteCSV(w, GenerationStatsColumns, generation)
	}); err != nil {
		return nil, err
	}
	if err := publish(SimRunStatsFile, len(simrun), func(w io.Writer) error {
		return WriteCSV(w, SimRunStatsColumns, simrun)
	}); err != nil {
		return nil, err
	}
	if err := publish(TraitStatsFile, len(traits), func(w io.Writer) error {
		return WriteCSV(w, TraitStatsColumns, traits)
	}); err != nil {
		return nil, err
	}

	manifest := Manifest{
		Prefix:       prefix,
		CreatedAtUTC: time.Now().UTC().Format(time.RFC3339),
		Artifacts:    append([]Artifact(nil), artifacts...),
	}
	if err := publish(ManifestFile, len(manifest.Artifacts), func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(manifest)
	}); err != nil {
		return nil, err
	}
	return artifacts[:len(manifest.Artifacts)], nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}
