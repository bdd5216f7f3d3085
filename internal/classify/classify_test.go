package classify

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"

	"ctpy/internal/model"
)

const maxAlleles = 1000000000

type mapSource struct {
	defs  map[string]model.ModeDefinition
	loads int
}

func (s *mapSource) GetModeDefinition(_ context.Context, id string) (model.ModeDefinition, bool, error) {
	s.loads++
	def, ok := s.defs[id]
	return def, ok, nil
}

func newSource(defs ...model.ModeDefinition) *mapSource {
	src := &mapSource{defs: map[string]model.ModeDefinition{}}
	for _, def := range defs {
		src.defs[def.ID] = def
	}
	return src
}

func TestLabelRoundTrip(t *testing.T) {
	label := Label{0, 12, 3}
	if got := label.String(); got != "0-12-3" {
		t.Fatalf("unexpected label string: %q", got)
	}
	parsed, err := ParseLabel("0-12-3")
	if err != nil {
		t.Fatalf("parse label: %v", err)
	}
	if parsed.String() != label.String() {
		t.Fatalf("expected %v, got %v", label, parsed)
	}
	if _, err := ParseLabel("1-x"); err == nil {
		t.Fatal("expected error for malformed label")
	}
	if _, err := ParseLabel(""); err == nil {
		t.Fatal("expected error for empty label")
	}
}

func TestEndToEndEvenClassification(t *testing.T) {
	even, err := NewModeDefinition(nil, model.ModeTypeEven, maxAlleles, 4)
	if err != nil {
		t.Fatalf("build even modes: %v", err)
	}
	classification, err := BuildEvenClassification(2, even)
	if err != nil {
		t.Fatalf("build classification: %v", err)
	}
	if classification.ModeIDs[0] != even.ID || classification.ModeIDs[1] != even.ID {
		t.Fatalf("expected both dimensions to share %s, got %v", even.ID, classification.ModeIDs)
	}
	if Size(classification) != 16 {
		t.Fatalf("expected size 16, got %d", Size(classification))
	}

	src := newSource(even)
	cache, err := NewModeCache(src, 8)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	classifier, err := NewClassifier(context.Background(), classification, cache)
	if err != nil {
		t.Fatalf("new classifier: %v", err)
	}
	if src.loads != 1 {
		t.Fatalf("expected one source load for a shared definition, got %d", src.loads)
	}

	tally := NewTally(2)
	genotypes := [][]int64{{0, 0}, {250000000, 250000000}, {999999999, 999999999}}
	want := []string{"0-0", "1-1", "3-3"}
	for i, g := range genotypes {
		label, err := classifier.Classify(g, tally)
		if err != nil {
			t.Fatalf("classify %v: %v", g, err)
		}
		if label.String() != want[i] {
			t.Fatalf("genotype %v: expected %s, got %s", g, want[i], label)
		}
	}
	if len(tally.Classes) != 3 || tally.Total != 3 {
		t.Fatalf("unexpected tally: classes=%v total=%d", tally.Classes, tally.Total)
	}
	occupation := float64(len(tally.Classes)) / float64(classifier.Size())
	if occupation != 3.0/16.0 {
		t.Fatalf("expected occupation 3/16, got %v", occupation)
	}
}

func TestIdentifyHalfOpenBoundaries(t *testing.T) {
	even, err := NewModeDefinition(nil, model.ModeTypeEven, 100, 4)
	if err != nil {
		t.Fatalf("build even modes: %v", err)
	}
	classification, err := BuildEvenClassification(1, even)
	if err != nil {
		t.Fatalf("build classification: %v", err)
	}
	cache, _ := NewModeCache(newSource(even), 0)
	classifier, err := NewClassifier(context.Background(), classification, cache)
	if err != nil {
		t.Fatalf("new classifier: %v", err)
	}

	cases := map[int64]string{0: "0", 24: "0", 25: "1", 50: "2", 74: "2", 75: "3", 99: "3"}
	for value, want := range cases {
		label, err := classifier.Identify([]int64{value})
		if err != nil {
			t.Fatalf("identify %d: %v", value, err)
		}
		if label.String() != want {
			t.Fatalf("value %d: expected mode %s, got %s", value, want, label)
		}
	}

	if _, err := classifier.Identify([]int64{100}); !errors.Is(err, ErrUnclassifiable) {
		t.Fatalf("expected ErrUnclassifiable at max value, got %v", err)
	}
	if _, err := classifier.Identify([]int64{-1}); !errors.Is(err, ErrUnclassifiable) {
		t.Fatalf("expected ErrUnclassifiable for negative value, got %v", err)
	}
	if _, err := classifier.Identify([]int64{1, 2}); !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestNewClassifierMissingModeDefinition(t *testing.T) {
	classification := model.Classification{ID: "c", Type: model.ModeTypeEven, Dimensionality: 1, Coarseness: 2, ModeIDs: []string{"missing"}}
	cache, err := NewModeCache(newSource(), 4)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	if _, err := NewClassifier(context.Background(), classification, cache); !errors.Is(err, ErrModeDefinitionNotFound) {
		t.Fatalf("expected ErrModeDefinitionNotFound, got %v", err)
	}
}

func TestModeCacheHitsAfterFirstLoad(t *testing.T) {
	def, err := NewModeDefinition(nil, model.ModeTypeEven, 10, 2)
	if err != nil {
		t.Fatalf("build modes: %v", err)
	}
	src := newSource(def)
	cache, err := NewModeCache(src, 4)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	for i := 0; i < 5; i++ {
		if _, err := cache.Get(context.Background(), def.ID); err != nil {
			t.Fatalf("get: %v", err)
		}
	}
	hits, misses := cache.Stats()
	if hits != 4 || misses != 1 || src.loads != 1 {
		t.Fatalf("expected 4 hits, 1 miss, 1 load; got %d, %d, %d", hits, misses, src.loads)
	}
}

func TestNewClassificationValidation(t *testing.T) {
	def, err := NewModeDefinition(nil, model.ModeTypeEven, 10, 2)
	if err != nil {
		t.Fatalf("build modes: %v", err)
	}
	if _, err := NewClassification(model.ModeTypeEven, 2, nil); !errors.Is(err, ErrInvalidDimensionality) {
		t.Fatalf("expected ErrInvalidDimensionality, got %v", err)
	}
	if _, err := NewClassification(model.ModeTypeEven, 0, []model.ModeDefinition{def}); !errors.Is(err, ErrInvalidCoarseness) {
		t.Fatalf("expected ErrInvalidCoarseness, got %v", err)
	}
	if _, err := NewClassification(model.ModeTypeEven, 3, []model.ModeDefinition{def}); !errors.Is(err, ErrCoarsenessMismatch) {
		t.Fatalf("expected ErrCoarsenessMismatch, got %v", err)
	}
	if _, err := BuildEvenClassification(0, def); !errors.Is(err, ErrInvalidDimensionality) {
		t.Fatalf("expected ErrInvalidDimensionality for zero dims, got %v", err)
	}
}

func TestSizeSaturates(t *testing.T) {
	c := model.Classification{Dimensionality: 64, Coarseness: 32}
	if got := Size(c); got != math.MaxInt64 {
		t.Fatalf("expected saturation, got %d", got)
	}
	c = model.Classification{Dimensionality: 3, Coarseness: 8}
	if got := Size(c); got != 512 {
		t.Fatalf("expected 512, got %d", got)
	}
}

func TestDesignExperimentCounts(t *testing.T) {
	levels := []int{2, 3, 4}
	dimensions := []int{2, 3}
	replicates := 5

	pool, err := BuildModePool(rand.New(rand.NewSource(7)), maxAlleles, levels, replicates)
	if err != nil {
		t.Fatalf("build pool: %v", err)
	}
	if got := len(pool.Definitions(levels)); got != len(levels)*(1+replicates) {
		t.Fatalf("expected %d pool definitions, got %d", len(levels)*(1+replicates), got)
	}

	classifications, err := DesignExperiment(rand.New(rand.NewSource(11)), dimensions, levels, replicates, pool)
	if err != nil {
		t.Fatalf("design experiment: %v", err)
	}
	perDim := len(levels) + len(levels)*replicates
	if len(classifications) != perDim*len(dimensions) {
		t.Fatalf("expected %d classifications, got %d", perDim*len(dimensions), len(classifications))
	}

	byDim := map[int]int{}
	for _, c := range classifications {
		byDim[c.Dimensionality]++
		if len(c.ModeIDs) != c.Dimensionality {
			t.Fatalf("classification %s has %d mode refs for %d dims", c.ID, len(c.ModeIDs), c.Dimensionality)
		}
		if c.Type == model.ModeTypeRandom {
			for _, id := range c.ModeIDs {
				if pool.Even[c.Coarseness].ID == id {
					t.Fatalf("random classification %s references even modes", c.ID)
				}
			}
		}
	}
	for _, d := range dimensions {
		if byDim[d] != perDim {
			t.Fatalf("dimensionality %d: expected %d classifications, got %d", d, perDim, byDim[d])
		}
	}

	again, err := DesignExperiment(rand.New(rand.NewSource(11)), dimensions, levels, replicates, pool)
	if err != nil {
		t.Fatalf("design experiment again: %v", err)
	}
	for i := range classifications {
		for j := range classifications[i].ModeIDs {
			if classifications[i].ModeIDs[j] != again[i].ModeIDs[j] {
				t.Fatalf("expected deterministic mode draws for a fixed seed at classification %d", i)
			}
		}
	}
}

func TestDesignExperimentReproducibleForSeed(t *testing.T) {
	design := func(seed int64) (ModePool, []model.Classification) {
		rng := rand.New(rand.NewSource(seed))
		pool, err := BuildModePool(rng, maxAlleles, []int{2, 4}, 2)
		if err != nil {
			t.Fatalf("build pool: %v", err)
		}
		classifications, err := DesignExperiment(rng, []int{2, 3}, []int{2, 4}, 2, pool)
		if err != nil {
			t.Fatalf("design experiment: %v", err)
		}
		return pool, classifications
	}

	poolA, a := design(42)
	poolB, b := design(42)
	defsA, defsB := poolA.Definitions([]int{2, 4}), poolB.Definitions([]int{2, 4})
	for i := range defsA {
		if defsA[i].ID != defsB[i].ID {
			t.Fatalf("mode definition %d: ids differ for the same seed: %s vs %s", i, defsA[i].ID, defsB[i].ID)
		}
	}
	if len(a) != len(b) {
		t.Fatalf("classification counts differ: %d vs %d", len(a), len(b))
	}
	seen := map[string]bool{}
	for i := range a {
		if a[i].ID != b[i].ID {
			t.Fatalf("classification %d: ids differ for the same seed: %s vs %s", i, a[i].ID, b[i].ID)
		}
		if seen[a[i].ID] {
			t.Fatalf("duplicate classification id %s", a[i].ID)
		}
		seen[a[i].ID] = true
		for d := range a[i].ModeIDs {
			if a[i].ModeIDs[d] != b[i].ModeIDs[d] {
				t.Fatalf("classification %d dimension %d: mode refs differ", i, d)
			}
		}
	}

	_, c := design(43)
	if c[0].ID == a[0].ID {
		t.Fatal("expected a different seed to give different ids")
	}
}
