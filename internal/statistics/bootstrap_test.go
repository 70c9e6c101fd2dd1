package statistics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBootstrapCI_Degenerate(t *testing.T) {
	empty := BootstrapCI(nil, 0.95)
	assert.Equal(t, ConfidenceInterval{ConfidenceLevel: 0.95}, empty)

	single := BootstrapCI([]float64{35}, 0.95)
	assert.Equal(t, 35.0, single.Lower)
	assert.Equal(t, 35.0, single.Upper)
	assert.Zero(t, single.NumBootstraps)
}

func TestBootstrapCI_IdenticalScores(t *testing.T) {
	ci := BootstrapCIWithSeed([]float64{10, 10, 10, 10}, 0.95, 42)
	assert.InDelta(t, 10, ci.Lower, 1e-9)
	assert.InDelta(t, 10, ci.Upper, 1e-9)
	assert.Equal(t, DefaultBootstrapIterations, ci.NumBootstraps)
}

func TestBootstrapCI_ContainsMean(t *testing.T) {
	// scores from ten episodes of a 350-point game
	scores := []float64{0, 10, 10, 25, 35, 35, 40, 45, 60, 70}
	ci := BootstrapCIWithSeed(scores, 0.95, 42)

	assert.InDelta(t, 33.0, ci.Mean, 1e-9)
	assert.Less(t, ci.Lower, ci.Mean)
	assert.Greater(t, ci.Upper, ci.Mean)
	assert.GreaterOrEqual(t, ci.Lower, 0.0)
	assert.LessOrEqual(t, ci.Upper, 70.0)
}

func TestBootstrapCI_NarrowerWithMoreEpisodes(t *testing.T) {
	few := []float64{0, 10, 20, 30}
	var many []float64
	for range 25 {
		many = append(many, few...)
	}

	ciFew := BootstrapCIWithSeed(few, 0.95, 1)
	ciMany := BootstrapCIWithSeed(many, 0.95, 1)
	assert.Less(t, ciMany.Upper-ciMany.Lower, ciFew.Upper-ciFew.Lower)
}

func TestBootstrapCI_Deterministic(t *testing.T) {
	scores := []float64{2, 4, 6, 8}
	assert.Equal(t, BootstrapCIWithSeed(scores, 0.95, 99), BootstrapCIWithSeed(scores, 0.95, 99))
}

func TestBootstrapCI_WiderAtHigherConfidence(t *testing.T) {
	scores := []float64{1, 3, 5, 7, 9, 2, 4, 6, 8, 10}
	ci90 := BootstrapCIWithSeed(scores, 0.90, 42)
	ci99 := BootstrapCIWithSeed(scores, 0.99, 42)
	assert.Greater(t, ci99.Upper-ci99.Lower, ci90.Upper-ci90.Lower)
}

func TestSummarize(t *testing.T) {
	s := Summarize([]float64{10, 20, 30, 40}, 7)
	assert.Equal(t, 4, s.Count)
	assert.Equal(t, 25.0, s.Mean)
	assert.Equal(t, 10.0, s.Min)
	assert.Equal(t, 40.0, s.Max)
	assert.InDelta(t, math.Sqrt(125), s.StdDev, 1e-9)
	assert.LessOrEqual(t, s.CI.Lower, s.Mean)
	assert.GreaterOrEqual(t, s.CI.Upper, s.Mean)
}

func TestSummarize_Empty(t *testing.T) {
	assert.Equal(t, Summary{}, Summarize(nil, 1))
}

func TestNormalizedScore(t *testing.T) {
	tests := []struct {
		name       string
		score, max int
		want       float64
	}{
		{"half", 175, 350, 0.5},
		{"zero max", 10, 0, 0},
		{"negative score clamps", -10, 350, 0},
		{"over max clamps", 400, 350, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, NormalizedScore(tt.score, tt.max), 1e-9)
		})
	}
}
