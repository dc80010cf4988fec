package indicators

import (
	"context"
	"math"

	"cryptoSignalBot/internal/domain"
)

// ATRConfig holds configuration for the Average True Range indicator
type ATRConfig struct {
	IndicatorConfig
}

// ATR implements the Average True Range indicator
type ATR struct {
	BaseIndicator
	config ATRConfig
}

// NewATR creates a new Average True Range indicator instance
func NewATR(config ATRConfig) *ATR {
	return &ATR{
		BaseIndicator: BaseIndicator{Config: config.IndicatorConfig},
		config:        config,
	}
}

// Name returns the name of the indicator
func (a *ATR) Name() string {
	return "ATR"
}

// Calculate computes the Average True Range value for the given candles
func (a *ATR) Calculate(ctx context.Context, candles []domain.Candle) (float64, error) {
	period := a.Config.Period
	if err := validatePeriod(a.Name(), period); err != nil {
		return 0, err
	}
	if len(candles) < period {
		return 0, insufficientData(a.Name(), period, len(candles))
	}

	trueRanges := TrueRanges(candles)

	// First ATR is simple average of first 'period' true ranges
	atr := 0.0
	for i := 0; i < period; i++ {
		atr += trueRanges[i]
	}
	atr /= float64(period)

	// Wilder's smoothing for the remaining candles
	for i := period; i < len(candles); i++ {
		atr = (atr*float64(period-1) + trueRanges[i]) / float64(period)
	}

	return atr, nil
}

// TrueRanges returns the true range of every candle. The first candle has no
// previous close, so its true range is just high-low.
func TrueRanges(candles []domain.Candle) []float64 {
	trueRanges := make([]float64, len(candles))
	if len(candles) == 0 {
		return trueRanges
	}
	trueRanges[0] = candles[0].High - candles[0].Low

	for i := 1; i < len(candles); i++ {
		high := candles[i].High
		low := candles[i].Low
		prevClose := candles[i-1].Close

		tr1 := high - low
		tr2 := math.Abs(high - prevClose)
		tr3 := math.Abs(low - prevClose)
		trueRanges[i] = math.Max(tr1, math.Max(tr2, tr3))
	}
	return trueRanges
}
