package indicators

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/stat"

	"cryptoSignalBot/internal/domain"
	"cryptoSignalBot/internal/ports"
)

// MovingAverageType defines the type of moving average
type MovingAverageType string

const (
	// SimpleMovingAverage represents a simple moving average
	SimpleMovingAverage MovingAverageType = "SMA"
	// ExponentialMovingAverage represents an exponential moving average
	ExponentialMovingAverage MovingAverageType = "EMA"
)

// ParseMovingAverageType maps "SMA"/"EMA" onto the typed constant.
func ParseMovingAverageType(s string) (MovingAverageType, error) {
	switch MovingAverageType(s) {
	case SimpleMovingAverage, ExponentialMovingAverage:
		return MovingAverageType(s), nil
	default:
		return "", fmt.Errorf("unsupported moving average type %q: %w", s, ports.ErrInvalidInput)
	}
}

// MovingAverageConfig holds configuration for moving average indicators
type MovingAverageConfig struct {
	IndicatorConfig
	Type MovingAverageType
}

// MovingAverage implements both SMA and EMA indicators
type MovingAverage struct {
	BaseIndicator
	config MovingAverageConfig
}

// NewMovingAverage creates a new moving average indicator instance
func NewMovingAverage(config MovingAverageConfig) *MovingAverage {
	return &MovingAverage{
		BaseIndicator: BaseIndicator{Config: config.IndicatorConfig},
		config:        config,
	}
}

// Name returns the name of the indicator
func (m *MovingAverage) Name() string {
	return string(m.config.Type)
}

// Calculate computes the moving average value based on the configured type
func (m *MovingAverage) Calculate(ctx context.Context, candles []domain.Candle) (float64, error) {
	if err := validatePeriod(m.Name(), m.Config.Period); err != nil {
		return 0, err
	}
	if len(candles) < m.Config.Period {
		return 0, insufficientData(m.Name(), m.Config.Period, len(candles))
	}
	closes := domain.Closes(candles)

	switch m.config.Type {
	case SimpleMovingAverage:
		return SMA(closes, m.Config.Period), nil
	case ExponentialMovingAverage:
		series := EMASeries(closes, m.Config.Period)
		return series[len(series)-1], nil
	default:
		return 0, fmt.Errorf("unsupported moving average type: %s: %w", m.config.Type, ports.ErrInvalidInput)
	}
}

// SMA is the arithmetic mean of the last period values. Callers guarantee len(values) >= period.
func SMA(values []float64, period int) float64 {
	return stat.Mean(values[len(values)-period:], nil)
}

// EMASeries returns the exponential moving average for every index from period-1 onwards.
// The series is seeded with the SMA of the first period values and smoothed with 2/(period+1).
// The result has len(values)-period+1 entries, or nil when there is not enough data.
func EMASeries(values []float64, period int) []float64 {
	if period <= 0 || len(values) < period {
		return nil
	}
	multiplier := 2.0 / float64(period+1)

	out := make([]float64, 0, len(values)-period+1)
	ema := stat.Mean(values[:period], nil)
	out = append(out, ema)
	for i := period; i < len(values); i++ {
		ema = (values[i]-ema)*multiplier + ema
		out = append(out, ema)
	}
	return out
}
