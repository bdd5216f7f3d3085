package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"ctpy/internal/model"
)

// table keeps records by id in insertion order.
type table[T any] struct {
	order []string
	rows  map[string]T
}

func newTable[T any]() *table[T] {
	return &table[T]{rows: make(map[string]T)}
}

func (t *table[T]) put(id string, record T) {
	if _, ok := t.rows[id]; !ok {
		t.order = append(t.order, id)
	}
	t.rows[id] = record
}

func (t *table[T]) list(match func(T) bool) []T {
	out := make([]T, 0, len(t.order))
	for _, id := range t.order {
		record := t.rows[id]
		if match == nil || match(record) {
			out = append(out, record)
		}
	}
	return out
}

type MemoryStore struct {
	mu              sync.RWMutex
	initialized     bool
	modes           *table[model.ModeDefinition]
	classifications *table[model.Classification]
	samples         *table[model.IndividualSample]
	classified      *table[model.ClassifiedSample]
	generationStats *table[model.GenerationStats]
	simRunStats     *table[model.SimRunStats]
	traitStats      *table[model.TraitStats]
	experiments     map[string]model.ExperimentTracking
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.modes = newTable[model.ModeDefinition]()
	s.classifications = newTable[model.Classification]()
	s.samples = newTable[model.IndividualSample]()
	s.classified = newTable[model.ClassifiedSample]()
	s.generationStats = newTable[model.GenerationStats]()
	s.simRunStats = newTable[model.SimRunStats]()
	s.traitStats = newTable[model.TraitStats]()
	s.experiments = make(map[string]model.ExperimentTracking)
	return nil
}

func (s *MemoryStore) SaveModeDefinitions(_ context.Context, defs []model.ModeDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ready(); err != nil {
		return err
	}

	for _, def := range defs {
		def.Boundaries = append([]model.ModeBoundary(nil), def.Boundaries...)
		s.modes.put(def.ID, def)
	}
	return nil
}

func (s *MemoryStore) GetModeDefinition(_ context.Context, id string) (model.ModeDefinition, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ready(); err != nil {
		return model.ModeDefinition{}, false, err
	}

	def, ok := s.modes.rows[id]
	return def, ok, nil
}

func (s *MemoryStore) ListModeDefinitions(_ context.Context) ([]model.ModeDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.modes.list(nil), nil
}

func (s *MemoryStore) SaveClassifications(_ context.Context, classifications []model.Classification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ready(); err != nil {
		return err
	}

	for _, c := range classifications {
		c.ModeIDs = append([]string(nil), c.ModeIDs...)
		s.classifications.put(c.ID, c)
	}
	return nil
}

func (s *MemoryStore) GetClassification(_ context.Context, id string) (model.Classification, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ready(); err != nil {
		return model.Classification{}, false, err
	}

	c, ok := s.classifications.rows[id]
	return c, ok, nil
}

func (s *MemoryStore) ListClassifications(_ context.Context, filter Filter) ([]model.Classification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.classifications.list(func(c model.Classification) bool {
		return filter.match(c.ID, "", c.Dimensionality)
	}), nil
}

func (s *MemoryStore) SaveIndividualSamples(_ context.Context, samples []model.IndividualSample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ready(); err != nil {
		return err
	}

	for _, sample := range samples {
		s.samples.put(sample.ID, sample)
	}
	return nil
}

func (s *MemoryStore) ListIndividualSamples(_ context.Context, filter Filter) ([]model.IndividualSample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.samples.list(func(sample model.IndividualSample) bool {
		return filter.match("", sample.RunID, sample.Dimensionality)
	}), nil
}

func (s *MemoryStore) ListRunIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ready(); err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	out := make([]string, 0)
	for _, sample := range s.samples.rows {
		if !seen[sample.RunID] {
			seen[sample.RunID] = true
			out = append(out, sample.RunID)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *MemoryStore) SaveClassifiedSamples(_ context.Context, samples []model.ClassifiedSample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ready(); err != nil {
		return err
	}

	for _, sample := range samples {
		s.classified.put(sample.ID, sample)
	}
	return nil
}

func (s *MemoryStore) ListClassifiedSamples(_ context.Context, filter Filter) ([]model.ClassifiedSample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.classified.list(func(sample model.ClassifiedSample) bool {
		return filter.match(sample.ClassificationID, sample.RunID, sample.Dimensionality)
	}), nil
}

func (s *MemoryStore) SaveGenerationStats(_ context.Context, stats []model.GenerationStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ready(); err != nil {
		return err
	}

	for _, st := range stats {
		s.generationStats.put(st.ID, st)
	}
	return nil
}

func (s *MemoryStore) ListGenerationStats(_ context.Context, filter Filter) ([]model.GenerationStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.generationStats.list(func(st model.GenerationStats) bool {
		return filter.match(st.ClassificationID, st.RunID, st.Dimensionality)
	}), nil
}

func (s *MemoryStore) UpdateGenerationStatsNeutrality(_ context.Context, id string, probability float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ready(); err != nil {
		return err
	}

	st, ok := s.generationStats.rows[id]
	if !ok {
		return fmt.Errorf("%w: generation stats %s", ErrNotFound, id)
	}
	st.ClassNeutrality = &probability
	s.generationStats.rows[id] = st
	return nil
}

func (s *MemoryStore) SaveSimRunStats(_ context.Context, stats []model.SimRunStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ready(); err != nil {
		return err
	}

	for _, st := range stats {
		s.simRunStats.put(st.ID, st)
	}
	return nil
}

func (s *MemoryStore) ListSimRunStats(_ context.Context, filter Filter) ([]model.SimRunStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.simRunStats.list(func(st model.SimRunStats) bool {
		return filter.match(st.ClassificationID, st.RunID, st.Dimensionality)
	}), nil
}

func (s *MemoryStore) SaveTraitStats(_ context.Context, stats []model.TraitStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ready(); err != nil {
		return err
	}

	for _, st := range stats {
		s.traitStats.put(st.ID, st)
	}
	return nil
}

func (s *MemoryStore) ListTraitStats(_ context.Context, filter Filter) ([]model.TraitStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.traitStats.list(func(st model.TraitStats) bool {
		return filter.match("", st.RunID, st.Dimensionality)
	}), nil
}

func (s *MemoryStore) UpdateTraitStatsNeutrality(_ context.Context, id string, loci []float64, mean float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ready(); err != nil {
		return err
	}

	st, ok := s.traitStats.rows[id]
	if !ok {
		return fmt.Errorf("%w: trait stats %s", ErrNotFound, id)
	}
	st.LociNeutrality = append([]float64(nil), loci...)
	st.MeanNeutrality = &mean
	s.traitStats.rows[id] = st
	return nil
}

func (s *MemoryStore) SaveExperiment(_ context.Context, experiment model.ExperimentTracking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ready(); err != nil {
		return err
	}

	completed := make(map[model.Stage]time.Time, len(experiment.Completed))
	for stage, at := range experiment.Completed {
		completed[stage] = at
	}
	experiment.Completed = completed
	s.experiments[experiment.Name] = experiment
	return nil
}

func (s *MemoryStore) GetExperiment(_ context.Context, name string) (model.ExperimentTracking, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ready(); err != nil {
		return model.ExperimentTracking{}, false, err
	}

	experiment, ok := s.experiments[name]
	if !ok {
		return model.ExperimentTracking{}, false, nil
	}
	completed := make(map[model.Stage]time.Time, len(experiment.Completed))
	for stage, at := range experiment.Completed {
		completed[stage] = at
	}
	experiment.Completed = completed
	return experiment, true, nil
}

func (s *MemoryStore) ready() error {
	if !s.initialized {
		return errors.New("store is not initialized")
	}
	return nil
}

func (f Filter) match(classificationID, runID string, dims int) bool {
	if f.ClassificationID != "" && classificationID != "" && f.ClassificationID != classificationID {
		return false
	}
	if f.RunID != "" && runID != "" && f.RunID != runID {
		return false
	}
	if f.Dimensionality != 0 && dims != 0 && f.Dimensionality != dims {
		return false
	}
	return true
}
