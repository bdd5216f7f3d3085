package popgen

import (
	"math"
	"testing"
)

func TestExpectedQuasiStationarityTime(t *testing.T) {
	popsize := 1000
	mutation := 0.001
	theta := 2.0 * float64(popsize) * mutation
	expected := int(math.Round((9.2 * float64(popsize)) / (theta + 1.0)))
	if got := ExpectedQuasiStationarityTime(popsize, mutation); got != expected {
		t.Fatalf("expected %d generations, got %d", expected, got)
	}
	if expected != 3067 {
		t.Fatalf("unexpected closed form value %d", expected)
	}
}

func TestUniformAllelicDistribution(t *testing.T) {
	ten := UniformAllelicDistribution(10)
	if len(ten) != 10 {
		t.Fatalf("expected 10 frequencies, got %d", len(ten))
	}
	for _, f := range ten {
		if f != 0.1 {
			t.Fatalf("expected 0.1, got %v", f)
		}
	}

	three := UniformAllelicDistribution(3)
	if len(three) != 3 {
		t.Fatalf("expected 3 frequencies, got %d", len(three))
	}
	for _, f := range three {
		if f != 0.33333333333333337 {
			t.Fatalf("expected 0.33333333333333337, got %v", f)
		}
	}

	if got := UniformAllelicDistribution(0); got != nil {
		t.Fatalf("expected nil for zero alleles, got %v", got)
	}
}

func TestClassificationCounts(t *testing.T) {
	if got := ClassificationsPerDimensionality(6, 10); got != 66 {
		t.Fatalf("expected 66 classifications, got %d", got)
	}
	if got := TotalClassifications(5, 6, 10); got != 330 {
		t.Fatalf("expected 330 classifications, got %d", got)
	}
	if got := SimParamCombinations([]float64{0.001, 0.01}, []int{100, 500, 1000}); got != 6 {
		t.Fatalf("expected 6 combinations, got %d", got)
	}
}
