// Package modes partitions a trait dimension into contiguous half-open modes.
package modes

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"

	"ctpy/internal/model"
)

var (
	ErrInvalidModeCount = errors.New("number of modes must be positive")
	ErrInvalidMaxValue  = errors.New("max value must be positive")
	ErrInvalidBoundary  = errors.New("invalid mode boundaries")
)

// BuildEven splits [0, maxValue) into numModes intervals of equal width.
func BuildEven(maxValue int64, numModes int) ([]model.ModeBoundary, error) {
	if err := checkArgs(maxValue, numModes); err != nil {
		return nil, err
	}

	width := float64(maxValue) / float64(numModes)
	boundaries := make([]model.ModeBoundary, 0, numModes)
	lower := 0.0
	upper := 0.0
	for mode := 0; mode < numModes; mode++ {
		upper += width
		boundaries = append(boundaries, model.ModeBoundary{Lower: lower, Upper: upper})
		lower = upper
	}
	// accumulated width can drift by an ulp; the partition must end exactly at maxValue
	boundaries[numModes-1].Upper = float64(maxValue)
	return boundaries, nil
}

// BuildRandom places numModes-1 uniformly random breakpoints in [0, maxValue).
// Widths are unequal by construction.
func BuildRandom(rng *rand.Rand, maxValue int64, numModes int) ([]model.ModeBoundary, error) {
	if err := checkArgs(maxValue, numModes); err != nil {
		return nil, err
	}
	if rng == nil {
		return nil, errors.New("random source is required")
	}

	breakpoints := make([]float64, 0, numModes)
	for i := 0; i < numModes-1; i++ {
		breakpoints = append(breakpoints, rng.Float64())
	}
	breakpoints = append(breakpoints, 1.0)
	sort.Float64s(breakpoints)

	scale := float64(maxValue)
	boundaries := make([]model.ModeBoundary, 0, numModes)
	lower := 0.0
	for _, bp := range breakpoints {
		upper := bp * scale
		boundaries = append(boundaries, model.ModeBoundary{Lower: lower, Upper: upper})
		lower = upper
	}
	return boundaries, nil
}

// Locate returns the index of the mode containing value, using [lower, upper) membership.
func Locate(boundaries []model.ModeBoundary, value int64) (int, bool) {
	v := float64(value)
	for i, b := range boundaries {
		if b.Lower <= v && v < b.Upper {
			return i, true
		}
	}
	return -1, false
}

// Validate checks that boundaries tile [0, maxValue) without gaps or overlaps.
func Validate(boundaries []model.ModeBoundary, maxValue int64) error {
	if len(boundaries) == 0 {
		return fmt.Errorf("%w: no modes", ErrInvalidBoundary)
	}
	if boundaries[0].Lower != 0 {
		return fmt.Errorf("%w: first lower=%v", ErrInvalidBoundary, boundaries[0].Lower)
	}
	if last := boundaries[len(boundaries)-1].Upper; last != float64(maxValue) {
		return fmt.Errorf("%w: last upper=%v want %d", ErrInvalidBoundary, last, maxValue)
	}
	for i, b := range boundaries {
		if b.Upper < b.Lower {
			return fmt.Errorf("%w: mode %d upper %v below lower %v", ErrInvalidBoundary, i, b.Upper, b.Lower)
		}
		if i > 0 && boundaries[i-1].Upper != b.Lower {
			return fmt.Errorf("%w: gap between mode %d and %d", ErrInvalidBoundary, i-1, i)
		}
	}
	return nil
}

func checkArgs(maxValue int64, numModes int) error {
	if numModes <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidModeCount, numModes)
	}
	if maxValue <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidMaxValue, maxValue)
	}
	return nil
}
