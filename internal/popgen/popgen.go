// Package popgen holds closed-form results for the neutral Wright-Fisher
// infinite-alleles process used to plan simulation experiments.
package popgen

import "math"

// ExpectedQuasiStationarityTime approximates, in generations, the time for a
// haploid infinite-alleles Wright-Fisher population to reach quasi-stationarity
// (Ewens and Gillespie 1974, eq. 17).
func ExpectedQuasiStationarityTime(popsize int, mutationRate float64) int {
	theta := 2.0 * float64(popsize) * mutationRate
	t := (9.2 * float64(popsize)) / (theta + 1.0)
	return int(math.Round(t))
}

// UniformAllelicDistribution returns n equal initial allele frequencies.
// The percentage-based arithmetic is kept so frequencies reproduce bit for bit
// across tools (n=3 yields 0.33333333333333337).
func UniformAllelicDistribution(n int) []float64 {
	if n <= 0 {
		return nil
	}
	divisor := 100.0 / float64(n)
	frac := divisor / 100.0
	out := make([]float64, n)
	for i := range out {
		out[i] = frac
	}
	return out
}

// SimParamCombinations is the number of distinct (innovation rate, population size) settings.
func SimParamCombinations(innovationRates []float64, populationSizes []int) int {
	return len(innovationRates) * len(populationSizes)
}

// ClassificationsPerDimensionality counts the even and random classifications
// built for one dimensionality.
func ClassificationsPerDimensionality(coarsenessLevels, randomReplicates int) int {
	return coarsenessLevels + coarsenessLevels*randomReplicates
}

// TotalClassifications counts classifications across all dimensionalities studied.
func TotalClassifications(dimensions, coarsenessLevels, randomReplicates int) int {
	return dimensions * ClassificationsPerDimensionality(coarsenessLevels, randomReplicates)
}
