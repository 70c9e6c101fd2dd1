// Package statistics summarizes scores across a batch of episodes.
package statistics

import (
	"math"
	"math/rand/v2"
	"slices"
)

// ConfidenceInterval holds the result of a bootstrap confidence interval computation.
type ConfidenceInterval struct {
	Lower           float64 `json:"lower"`
	Upper           float64 `json:"upper"`
	Mean            float64 `json:"mean"`
	ConfidenceLevel float64 `json:"confidence_level"`
	NumBootstraps   int     `json:"num_bootstraps"`
}

// DefaultBootstrapIterations is the number of bootstrap resamples.
const DefaultBootstrapIterations = 10000

// BootstrapCI computes a percentile bootstrap interval for the mean of
// scores. confidenceLevel should be in (0, 1), e.g. 0.95. With fewer than
// two scores the interval collapses onto the mean.
func BootstrapCI(scores []float64, confidenceLevel float64) ConfidenceInterval {
	return BootstrapCIWithSeed(scores, confidenceLevel, -1)
}

// BootstrapCIWithSeed is like BootstrapCI but reproducible for a
// non-negative seed.
func BootstrapCIWithSeed(scores []float64, confidenceLevel float64, seed int64) ConfidenceInterval {
	m := mean(scores)
	ci := ConfidenceInterval{Lower: m, Upper: m, Mean: m, ConfidenceLevel: confidenceLevel}

	n := len(scores)
	if n < 2 {
		return ci
	}

	rng := newRand(seed)
	means := make([]float64, DefaultBootstrapIterations)
	for i := range means {
		var sum float64
		for range n {
			sum += scores[rng.IntN(n)]
		}
		means[i] = sum / float64(n)
	}
	slices.Sort(means)

	alpha := 1.0 - confidenceLevel
	ci.Lower = means[percentileIndex(alpha/2, len(means))]
	ci.Upper = means[percentileIndex(1-alpha/2, len(means))]
	ci.NumBootstraps = len(means)
	return ci
}

func percentileIndex(p float64, n int) int {
	return min(int(math.Floor(p*float64(n))), n-1)
}

func newRand(seed int64) *rand.Rand {
	if seed < 0 {
		return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return rand.New(rand.NewPCG(uint64(seed), 0))
}

// Summary describes a set of episode scores.
type Summary struct {
	Count  int                `json:"count"`
	Mean   float64            `json:"mean"`
	Min    float64            `json:"min"`
	Max    float64            `json:"max"`
	StdDev float64            `json:"std_dev"`
	CI     ConfidenceInterval `json:"ci"`
}

// Summarize computes descriptive statistics and a 95% bootstrap interval.
// seed follows BootstrapCIWithSeed.
func Summarize(scores []float64, seed int64) Summary {
	s := Summary{Count: len(scores)}
	if len(scores) == 0 {
		return s
	}
	s.Mean = mean(scores)
	s.Min = slices.Min(scores)
	s.Max = slices.Max(scores)
	var sq float64
	for _, v := range scores {
		sq += (v - s.Mean) * (v - s.Mean)
	}
	s.StdDev = math.Sqrt(sq / float64(len(scores)))
	s.CI = BootstrapCIWithSeed(scores, 0.95, seed)
	return s
}

// NormalizedScore maps score onto [0, 1] relative to maxScore.
// Returns 0 when maxScore is not positive.
func NormalizedScore(score, maxScore int) float64 {
	if maxScore <= 0 {
		return 0
	}
	r := float64(score) / float64(maxScore)
	return math.Max(0, math.Min(1, r))
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
