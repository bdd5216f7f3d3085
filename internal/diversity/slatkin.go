package diversity

import (
	"errors"
	"math"
	"math/rand"
)

var ErrNoReplicates = errors.New("slatkin test requires at least one replicate")

// SlatkinResult is the outcome of a Monte Carlo Slatkin exact test.
type SlatkinResult struct {
	// Probability is the fraction of Ewens configurations, conditioned on the
	// observed n and k, that are no more probable than the observed one.
	Probability float64
	// Theta is the maximum likelihood estimate of the population mutation rate.
	Theta float64
}

// SlatkinExact tests allele counts against the neutral Ewens sampling distribution.
func SlatkinExact(rng *rand.Rand, counts []int, replicates int) (SlatkinResult, error) {
	if replicates <= 0 {
		return SlatkinResult{}, ErrNoReplicates
	}
	if rng == nil {
		return SlatkinResult{}, errors.New("random source is required")
	}

	observed := make([]int, 0, len(counts))
	n := 0
	for _, c := range counts {
		if c > 0 {
			observed = append(observed, c)
			n += c
		}
	}
	k := len(observed)
	if k <= 1 {
		return SlatkinResult{Probability: 1, Theta: 0}, nil
	}
	if k == n {
		return SlatkinResult{Probability: 1, Theta: math.Inf(1)}, nil
	}

	logStirling := logUnsignedStirling(n, k)
	target := configurationWeight(observed)

	newTable := make([]bool, n+1)
	tableOf := make([]int, n)
	sizes := make([]int, 0, k)
	atMostAsLikely := 0
	for r := 0; r < replicates; r++ {
		// choose which customers open a new table, conditioned on exactly k tables
		tables := k
		for m := n; m >= 1; m-- {
			pNew := math.Exp(logStirling[m-1][tables-1] - logStirling[m][tables])
			if rng.Float64() < pNew {
				newTable[m] = true
				tables--
			} else {
				newTable[m] = false
			}
		}

		sizes = sizes[:0]
		for m := 1; m <= n; m++ {
			if newTable[m] {
				tableOf[m-1] = len(sizes)
				sizes = append(sizes, 1)
				continue
			}
			table := tableOf[rng.Intn(m-1)]
			tableOf[m-1] = table
			sizes[table]++
		}

		if configurationWeight(sizes) >= target-1e-9 {
			atMostAsLikely++
		}
	}

	return SlatkinResult{
		Probability: float64(atMostAsLikely) / float64(replicates),
		Theta:       EstimateTheta(n, k),
	}, nil
}

// EstimateTheta solves k = sum_{i<n} theta/(theta+i) for theta by bisection.
func EstimateTheta(n, k int) float64 {
	if k <= 1 || n <= 1 {
		return 0
	}
	if k >= n {
		return math.Inf(1)
	}
	expected := func(theta float64) float64 {
		sum := 0.0
		for i := 0; i < n; i++ {
			sum += theta / (theta + float64(i))
		}
		return sum
	}
	lo, hi := 0.0, 1.0
	for expected(hi) < float64(k) {
		hi *= 2
	}
	for iter := 0; iter < 200; iter++ {
		mid := (lo + hi) / 2
		if expected(mid) < float64(k) {
			lo = mid
		} else {
			hi = mid
		}
	}
	return (lo + hi) / 2
}

// configurationWeight is -log of the Ewens probability of a configuration up
// to a constant that depends only on n and k: sum_j beta_j ln j + ln beta_j!,
// where beta_j counts the types observed exactly j times.
func configurationWeight(counts []int) float64 {
	multiplicity := make(map[int]int, len(counts))
	for _, c := range counts {
		multiplicity[c]++
	}
	weight := 0.0
	for j, beta := range multiplicity {
		lg, _ := math.Lgamma(float64(beta + 1))
		weight += float64(beta)*math.Log(float64(j)) + lg
	}
	return weight
}

// logUnsignedStirling tabulates ln|s(m, j)| for m <= n and j <= k.
func logUnsignedStirling(n, k int) [][]float64 {
	negInf := math.Inf(-1)
	table := make([][]float64, n+1)
	for m := range table {
		table[m] = make([]float64, k+1)
		for j := range table[m] {
			table[m][j] = negInf
		}
	}
	table[0][0] = 0
	for m := 1; m <= n; m++ {
		for j := 1; j <= k && j <= m; j++ {
			opened := table[m-1][j-1]
			joined := negInf
			if m > 1 {
				joined = math.Log(float64(m-1)) + table[m-1][j]
			}
			table[m][j] = logAddExp(opened, joined)
		}
	}
	return table
}

func logAddExp(a, b float64) float64 {
	if math.IsInf(a, -1) {
		return b
	}
	if math.IsInf(b, -1) {
		return a
	}
	if a < b {
		a, b = b, a
	}
	return a + math.Log1p(math.Exp(b-a))
}
