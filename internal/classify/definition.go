package classify

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/google/uuid"

	"ctpy/internal/model"
	"ctpy/internal/modes"
)

var (
	ErrInvalidDimensionality = errors.New("dimensionality must be positive")
	ErrInvalidCoarseness     = errors.New("coarseness must be positive")
	ErrCoarsenessMismatch    = errors.New("mode definition does not match coarseness")
	ErrEmptyPool             = errors.New("no random mode definitions for coarseness")
)

// newID draws a UUID from rng so a seeded design reproduces its ids; a nil rng
// falls back to the system source.
func newID(rng *rand.Rand) string {
	if rng == nil {
		return uuid.NewString()
	}
	return uuid.Must(uuid.NewRandomFromReader(rng)).String()
}

// NewModeDefinition builds and validates a mode definition. Its id is drawn
// from rng when one is given.
func NewModeDefinition(rng *rand.Rand, modeType model.ModeType, maxValue int64, numModes int) (model.ModeDefinition, error) {
	var (
		boundaries []model.ModeBoundary
		err        error
	)
	switch modeType {
	case model.ModeTypeEven:
		boundaries, err = modes.BuildEven(maxValue, numModes)
	case model.ModeTypeRandom:
		boundaries, err = modes.BuildRandom(rng, maxValue, numModes)
	default:
		return model.ModeDefinition{}, fmt.Errorf("unsupported mode type %q", modeType)
	}
	if err != nil {
		return model.ModeDefinition{}, err
	}
	return model.ModeDefinition{
		VersionedRecord: model.CurrentVersion(),
		ID:              newID(rng),
		Type:            modeType,
		MaxValue:        maxValue,
		NumModes:        numModes,
		Boundaries:      boundaries,
	}, nil
}

// NewClassification assembles an immutable classification, one mode definition per dimension.
func NewClassification(modeType model.ModeType, coarseness int, defs []model.ModeDefinition) (model.Classification, error) {
	if len(defs) == 0 {
		return model.Classification{}, fmt.Errorf("%w: %d", ErrInvalidDimensionality, len(defs))
	}
	if coarseness <= 0 {
		return model.Classification{}, fmt.Errorf("%w: %d", ErrInvalidCoarseness, coarseness)
	}
	ids := make([]string, 0, len(defs))
	for i, def := range defs {
		if def.NumModes != coarseness || len(def.Boundaries) != coarseness {
			return model.Classification{}, fmt.Errorf("%w: dimension %d has %d modes, want %d", ErrCoarsenessMismatch, i, def.NumModes, coarseness)
		}
		ids = append(ids, def.ID)
	}
	return model.Classification{
		VersionedRecord: model.CurrentVersion(),
		ID:              uuid.NewString(),
		Type:            modeType,
		Dimensionality:  len(defs),
		Coarseness:      coarseness,
		ModeIDs:         ids,
	}, nil
}

// Size is coarseness^dimensionality, saturating at math.MaxInt64.
func Size(c model.Classification) int64 {
	if c.Coarseness <= 0 || c.Dimensionality <= 0 {
		return 0
	}
	size := int64(1)
	base := int64(c.Coarseness)
	for i := 0; i < c.Dimensionality; i++ {
		if size > math.MaxInt64/base {
			return math.MaxInt64
		}
		size *= base
	}
	return size
}

// ModePool holds the mode definitions an experiment draws its classifications from.
type ModePool struct {
	Even   map[int]model.ModeDefinition
	Random map[int][]model.ModeDefinition
}

// Definitions flattens the pool in coarseness order, even definitions first.
func (p ModePool) Definitions(levels []int) []model.ModeDefinition {
	out := make([]model.ModeDefinition, 0)
	for _, level := range levels {
		if def, ok := p.Even[level]; ok {
			out = append(out, def)
		}
	}
	for _, level := range levels {
		out = append(out, p.Random[level]...)
	}
	return out
}

// BuildModePool builds one even definition and replicates random definitions per coarseness level.
func BuildModePool(rng *rand.Rand, maxValue int64, levels []int, replicates int) (ModePool, error) {
	pool := ModePool{
		Even:   make(map[int]model.ModeDefinition, len(levels)),
		Random: make(map[int][]model.ModeDefinition, len(levels)),
	}
	for _, level := range levels {
		even, err := NewModeDefinition(rng, model.ModeTypeEven, maxValue, level)
		if err != nil {
			return ModePool{}, fmt.Errorf("even modes for coarseness %d: %w", level, err)
		}
		pool.Even[level] = even
		for r := 0; r < replicates; r++ {
			def, err := NewModeDefinition(rng, model.ModeTypeRandom, maxValue, level)
			if err != nil {
				return ModePool{}, fmt.Errorf("random modes for coarseness %d: %w", level, err)
			}
			pool.Random[level] = append(pool.Random[level], def)
		}
	}
	return pool, nil
}

// BuildEvenClassification reuses the single even definition for every dimension.
func BuildEvenClassification(dims int, even model.ModeDefinition) (model.Classification, error) {
	if dims <= 0 {
		return model.Classification{}, fmt.Errorf("%w: %d", ErrInvalidDimensionality, dims)
	}
	defs := make([]model.ModeDefinition, dims)
	for i := range defs {
		defs[i] = even
	}
	return NewClassification(model.ModeTypeEven, even.NumModes, defs)
}

// BuildRandomClassification draws each dimension's definition uniformly, with replacement, from pool.
func BuildRandomClassification(rng *rand.Rand, dims int, pool []model.ModeDefinition) (model.Classification, error) {
	if dims <= 0 {
		return model.Classification{}, fmt.Errorf("%w: %d", ErrInvalidDimensionality, dims)
	}
	if len(pool) == 0 {
		return model.Classification{}, ErrEmptyPool
	}
	defs := make([]model.ModeDefinition, dims)
	for i := range defs {
		defs[i] = pool[rng.Intn(len(pool))]
	}
	c, err := NewClassification(model.ModeTypeRandom, pool[0].NumModes, defs)
	if err != nil {
		return model.Classification{}, err
	}
	c.ID = newID(rng)
	return c, nil
}

// DesignExperiment builds, for every dimensionality, one even classification per
// coarseness level and replicates random classifications per level. Every draw
// and id comes from rng, so a fixed seed reproduces the design.
func DesignExperiment(rng *rand.Rand, dimensions, levels []int, replicates int, pool ModePool) ([]model.Classification, error) {
	out := make([]model.Classification, 0, len(dimensions)*(len(levels)+len(levels)*replicates))
	for _, dims := range dimensions {
		for _, level := range levels {
			even, ok := pool.Even[level]
			if !ok {
				return nil, fmt.Errorf("no even mode definition for coarseness %d", level)
			}
			c, err := BuildEvenClassification(dims, even)
			if err != nil {
				return nil, err
			}
			c.ID = newID(rng)
			out = append(out, c)
		}
		for _, level := range levels {
			for r := 0; r < replicates; r++ {
				c, err := BuildRandomClassification(rng, dims, pool.Random[level])
				if err != nil {
					return nil, fmt.Errorf("coarseness %d: %w", level, err)
				}
				out = append(out, c)
			}
		}
	}
	return out, nil
}
