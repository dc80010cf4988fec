package domain

import "time"

// FibRatios is the fixed set of retracement ratios, ascending.
var FibRatios = [...]float64{0.236, 0.382, 0.5, 0.618, 0.786, 1.0}

// IndicatorSnapshot holds every indicator value as of the most recent candle in a window.
// It is produced once per cycle and never mutated afterwards.
type IndicatorSnapshot struct {
	Symbol       string
	Timestamp    time.Time // OpenTime of the latest candle
	CurrentPrice float64

	MA     float64 // short moving average
	LongMA float64 // long moving average, used for trend
	RSI    float64
	ATR    float64

	MACDValue      float64
	MACDSignalLine float64
	MACDHistogram  float64
	MACDCross      MACDCross

	FibHigh   float64
	FibLow    float64
	FibLevels map[float64]float64 // ratio -> price
}

// FibLevel returns the price for a ratio and whether it exists.
func (s IndicatorSnapshot) FibLevel(ratio float64) (float64, bool) {
	p, ok := s.FibLevels[ratio]
	return p, ok
}
