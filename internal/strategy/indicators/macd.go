package indicators

import (
	"context"
	"fmt"

	"cryptoSignalBot/internal/domain"
	"cryptoSignalBot/internal/ports"
)

// MACDConfig holds the fast, slow and signal EMA periods.
type MACDConfig struct {
	FastPeriod   int
	SlowPeriod   int
	SignalPeriod int
}

// MACDResult is the MACD state on the most recent candle.
type MACDResult struct {
	Value      float64
	SignalLine float64
	Histogram  float64
	Cross      domain.MACDCross
}

// MACD implements Moving Average Convergence Divergence with crossover detection.
type MACD struct {
	config MACDConfig
}

// NewMACD creates a new MACD indicator instance
func NewMACD(config MACDConfig) *MACD {
	return &MACD{config: config}
}

// Name returns the name of the indicator
func (m *MACD) Name() string {
	return "MACD"
}

// RequiredDataPoints is slow+signal: one extra signal value is needed for the previous candle.
func (m *MACD) RequiredDataPoints() int {
	return m.config.SlowPeriod + m.config.SignalPeriod
}

// Calculate returns the MACD histogram, satisfying the Indicator interface.
func (m *MACD) Calculate(ctx context.Context, candles []domain.Candle) (float64, error) {
	res, err := m.Compute(ctx, candles)
	if err != nil {
		return 0, err
	}
	return res.Histogram, nil
}

// Compute calculates MACD, its signal line, histogram and the crossover state.
func (m *MACD) Compute(ctx context.Context, candles []domain.Candle) (MACDResult, error) {
	cfg := m.config
	for _, p := range []int{cfg.FastPeriod, cfg.SlowPeriod, cfg.SignalPeriod} {
		if err := validatePeriod(m.Name(), p); err != nil {
			return MACDResult{}, err
		}
	}
	if cfg.FastPeriod >= cfg.SlowPeriod {
		return MACDResult{}, fmt.Errorf("MACD fast period %d must be less than slow period %d: %w", cfg.FastPeriod, cfg.SlowPeriod, ports.ErrInvalidInput)
	}
	if len(candles) < m.RequiredDataPoints() {
		return MACDResult{}, insufficientData(m.Name(), m.RequiredDataPoints(), len(candles))
	}

	closes := domain.Closes(candles)
	fast := EMASeries(closes, cfg.FastPeriod)
	slow := EMASeries(closes, cfg.SlowPeriod)

	// Align both series on the slow EMA's first index.
	offset := cfg.SlowPeriod - cfg.FastPeriod
	macdLine := make([]float64, len(slow))
	for i := range slow {
		macdLine[i] = fast[i+offset] - slow[i]
	}

	signal := EMASeries(macdLine, cfg.SignalPeriod)
	n := len(signal)
	// signal[j] lines up with macdLine[j+SignalPeriod-1].
	curMACD := macdLine[len(macdLine)-1]
	prevMACD := macdLine[len(macdLine)-2]
	curSignal := signal[n-1]
	prevSignal := signal[n-2]

	return MACDResult{
		Value:      curMACD,
		SignalLine: curSignal,
		Histogram:  curMACD - curSignal,
		Cross:      DetectCross(prevMACD, prevSignal, curMACD, curSignal),
	}, nil
}

// DetectCross classifies the transition of macd vs signal between two consecutive candles.
func DetectCross(prevMACD, prevSignal, curMACD, curSignal float64) domain.MACDCross {
	switch {
	case prevMACD <= prevSignal && curMACD > curSignal:
		return domain.CrossBullish
	case prevMACD >= prevSignal && curMACD < curSignal:
		return domain.CrossBearish
	default:
		return domain.CrossNone
	}
}
