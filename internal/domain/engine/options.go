package engine

import (
	"github.com/shopspring/decimal"

	"github.com/tempalign/tempalign/internal/refdata"
)

// Option applies a configuration option to the AlignmentEngine.
type Option func(*AlignmentEngine)

// WithCoefficients sets the target-to-score regression coefficients.
func WithCoefficients(intercept, slope float64) Option {
	return func(e *AlignmentEngine) {
		e.intercept = decimal.NewFromFloat(intercept)
		e.slope = decimal.NewFromFloat(slope)
	}
}

// WithDefaultScore sets the fallback score for rows without usable targets.
func WithDefaultScore(score float64) Option {
	return func(e *AlignmentEngine) {
		if score > 0 {
			e.defaultScore = decimal.NewFromFloat(score)
		}
	}
}

// WithBenchmarks sets the sector benchmark table.
func WithBenchmarks(b *refdata.Benchmarks) Option {
	return func(e *AlignmentEngine) {
		if b != nil {
			e.benchmarks = b
		}
	}
}
