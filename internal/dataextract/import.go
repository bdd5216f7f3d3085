package dataextract

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"ctpy/internal/model"
)

// ReadSamplesJSONL reads one individual sample per line.
func ReadSamplesJSONL(in io.Reader) ([]model.IndividualSample, error) {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)

	var out []model.IndividualSample
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var sample model.IndividualSample
		if err := json.Unmarshal([]byte(text), &sample); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, normalizeSample(sample))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

var sampleCSVColumns = []string{
	"simulation_run_id",
	"replication",
	"simulation_time",
	"population_size",
	"mutation_rate",
	"individual_id",
	"genotype",
}

// ReadSamplesCSV reads long-format samples: one row per individual, genotype loci
// joined by '-'. Rows sharing run, replication and time form one sample.
func ReadSamplesCSV(in io.Reader) ([]model.IndividualSample, error) {
	reader := csv.NewReader(in)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read samples csv header: %w", err)
	}
	idx := make(map[string]int, len(sampleCSVColumns))
	for _, name := range sampleCSVColumns {
		i, err := columnIndexByName(header, name)
		if err != nil {
			return nil, err
		}
		idx[name] = i
	}

	type key struct {
		run         string
		replication int
		generation  int
	}
	samples := make(map[key]*model.IndividualSample)
	var order []key

	row := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read samples csv row %d: %w", row, err)
		}
		if blankRecord(record) {
			continue
		}
		field := func(name string) string {
			i := idx[name]
			if i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}

		replication, err := strconv.Atoi(field("replication"))
		if err != nil {
			return nil, fmt.Errorf("row %d replication: %w", row, err)
		}
		generation, err := strconv.Atoi(field("simulation_time"))
		if err != nil {
			return nil, fmt.Errorf("row %d simulation_time: %w", row, err)
		}
		popsize, err := strconv.Atoi(field("population_size"))
		if err != nil {
			return nil, fmt.Errorf("row %d population_size: %w", row, err)
		}
		mutation, err := strconv.ParseFloat(field("mutation_rate"), 64)
		if err != nil {
			return nil, fmt.Errorf("row %d mutation_rate: %w", row, err)
		}
		id, err := strconv.Atoi(field("individual_id"))
		if err != nil {
			return nil, fmt.Errorf("row %d individual_id: %w", row, err)
		}
		genotype, err := parseGenotype(field("genotype"))
		if err != nil {
			return nil, fmt.Errorf("row %d genotype: %w", row, err)
		}

		k := key{run: field("simulation_run_id"), replication: replication, generation: generation}
		sample, ok := samples[k]
		if !ok {
			sample = &model.IndividualSample{
				RunID:          k.run,
				Replication:    replication,
				Generation:     generation,
				PopulationSize: popsize,
				MutationRate:   mutation,
				Dimensionality: len(genotype),
			}
			samples[k] = sample
			order = append(order, k)
		}
		if len(genotype) != sample.Dimensionality {
			return nil, fmt.Errorf("row %d: genotype has %d loci, sample has %d", row, len(genotype), sample.Dimensionality)
		}
		sample.Individuals = append(sample.Individuals, model.Individual{ID: id, Genotype: genotype})
		row++
	}

	sort.SliceStable(order, func(i, j int) bool {
		a, b := order[i], order[j]
		if a.run != b.run {
			return a.run < b.run
		}
		if a.replication != b.replication {
			return a.replication < b.replication
		}
		return a.generation < b.generation
	})
	out := make([]model.IndividualSample, 0, len(order))
	for _, k := range order {
		out = append(out, normalizeSample(*samples[k]))
	}
	return out, nil
}

func parseGenotype(raw string) ([]int64, error) {
	if raw == "" {
		return nil, fmt.Errorf("empty genotype")
	}
	parts := strings.Split(raw, "-")
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func normalizeSample(sample model.IndividualSample) model.IndividualSample {
	if sample.ID == "" {
		sample.ID = uuid.NewString()
	}
	if sample.SchemaVersion == 0 && sample.CodecVersion == 0 {
		sample.VersionedRecord = model.CurrentVersion()
	}
	if sample.SampleSize == 0 {
		sample.SampleSize = len(sample.Individuals)
	}
	if sample.Dimensionality == 0 && len(sample.Individuals) > 0 {
		sample.Dimensionality = len(sample.Individuals[0].Genotype)
	}
	return sample
}

func columnIndexByName(header []string, name string) (int, error) {
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(h), name) {
			return i, nil
		}
	}
	return -1, fmt.Errorf("column %q not found in header", name)
}

func blankRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}
