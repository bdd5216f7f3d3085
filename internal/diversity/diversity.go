// Package diversity implements the evenness and richness indices used to
// summarize trait and class frequency distributions.
package diversity

import (
	"math"
	"sort"
)

// ShannonEntropy returns -sum(p ln p) over the non-zero frequencies.
func ShannonEntropy(freqs []float64) float64 {
	sw := 0.0
	for _, p := range freqs {
		if p <= 0 {
			continue
		}
		sw += p * math.Log(p)
	}
	if sw == 0 {
		return 0
	}
	return -sw
}

// IQV is the index of qualitative variation, (k/(k-1)) * (1 - sum(p^2)),
// where k counts the observed categories. It is 0 when k <= 1.
func IQV(freqs []float64) float64 {
	k := 0
	sumSquares := 0.0
	for _, p := range freqs {
		if p <= 0 {
			continue
		}
		k++
		sumSquares += p * p
	}
	if k <= 1 {
		return 0
	}
	kf := float64(k)
	return (kf / (kf - 1)) * (1 - sumSquares)
}

// Frequencies converts counts to relative frequencies of their total.
func Frequencies(counts []int) []float64 {
	total := 0
	for _, c := range counts {
		total += c
	}
	freqs := make([]float64, len(counts))
	if total == 0 {
		return freqs
	}
	for i, c := range counts {
		freqs[i] = float64(c) / float64(total)
	}
	return freqs
}

// CountValues returns the tally values of a category->count map in a stable order.
func CountValues[K comparable](counts map[K]int) []int {
	out := make([]int, 0, len(counts))
	for _, c := range counts {
		out = append(out, c)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(out)))
	return out
}
