package indicators

import (
	"context"

	"gonum.org/v1/gonum/floats"

	"cryptoSignalBot/internal/domain"
)

// FibonacciConfig holds the lookback window for swing high/low detection.
type FibonacciConfig struct {
	Lookback int
}

// FibonacciResult holds the swing range and the retracement levels.
type FibonacciResult struct {
	High   float64
	Low    float64
	Levels map[float64]float64
}

// Fibonacci computes retracement levels over the last Lookback candles.
type Fibonacci struct {
	config FibonacciConfig
}

// NewFibonacci creates a new Fibonacci retracement instance
func NewFibonacci(config FibonacciConfig) *Fibonacci {
	return &Fibonacci{config: config}
}

// Name returns the name of the indicator
func (f *Fibonacci) Name() string {
	return "Fibonacci"
}

// RequiredDataPoints returns the lookback window length
func (f *Fibonacci) RequiredDataPoints() int {
	return f.config.Lookback
}

// Compute finds the swing high and low and derives a level for every ratio in domain.FibRatios.
func (f *Fibonacci) Compute(ctx context.Context, candles []domain.Candle) (FibonacciResult, error) {
	if err := validatePeriod(f.Name(), f.config.Lookback); err != nil {
		return FibonacciResult{}, err
	}
	if len(candles) < f.config.Lookback {
		return FibonacciResult{}, insufficientData(f.Name(), f.config.Lookback, len(candles))
	}

	window := candles[len(candles)-f.config.Lookback:]
	highs := make([]float64, len(window))
	lows := make([]float64, len(window))
	for i, c := range window {
		highs[i] = c.High
		lows[i] = c.Low
	}
	high := floats.Max(highs)
	low := floats.Min(lows)

	return FibonacciResult{High: high, Low: low, Levels: FibLevels(high, low)}, nil
}

// FibLevels returns high - (high-low)*r for each ratio, evaluated as a weighted
// interpolation so that the 0.5 level is exactly (high+low)/2 and the 1.0 level is exactly low.
func FibLevels(high, low float64) map[float64]float64 {
	levels := make(map[float64]float64, len(domain.FibRatios))
	for _, r := range domain.FibRatios {
		levels[r] = high*(1-r) + low*r
	}
	return levels
}
