package tokens

import (
	"math"
)

const charsPerToken = 4

// Counter counts tokens in text.
type Counter interface {
	Count(text string) int
}

// EstimatingCounter approximates token count as ~4 characters per token.
// Used where the completion service does not report usage itself.
type EstimatingCounter struct{}

func NewEstimatingCounter() *EstimatingCounter {
	return &EstimatingCounter{}
}

func (*EstimatingCounter) Count(text string) int {
	return Estimate(text)
}

func Estimate(text string) int {
	return int(math.Ceil(float64(len(text)) / float64(charsPerToken)))
}

// CountAll sums the token counts of every text.
func CountAll(c Counter, texts ...string) int {
	total := 0
	for _, t := range texts {
		total += c.Count(t)
	}
	return total
}

// OrDefault returns c, or an EstimatingCounter when c is nil.
func OrDefault(c Counter) Counter {
	if c == nil {
		return NewEstimatingCounter()
	}
	return c
}
