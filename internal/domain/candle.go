package domain

import "time"

// Candle represents a single OHLC data point for an instrument.
type Candle struct {
	OpenTime  time.Time // Start time of the interval, strictly increasing within a window
	CloseTime time.Time // End time of the interval
	Symbol    string    // Trading symbol
	Interval  string    // Candle interval (e.g., "15m", "1h")
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Closes extracts the closing prices of a candle window in order.
func Closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}
