package indicators

import (
	"context"
	"errors"
	"testing"

	"github.com/markcheno/go-talib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptoSignalBot/internal/ports"
)

func TestMovingAverage_Calculate(t *testing.T) {
	candles := candlesFromCloses(100.0, 102.0, 101.0, 103.0, 104.0)

	tests := []struct {
		name          string
		config        MovingAverageConfig
		expectedValue float64
		expectedErr   error
	}{
		{
			name: "SMA with sufficient data",
			config: MovingAverageConfig{
				IndicatorConfig: IndicatorConfig{Period: 3},
				Type:            SimpleMovingAverage,
			},
			expectedValue: 102.666667, // (101 + 103 + 104) / 3
		},
		{
			name: "EMA with sufficient data",
			config: MovingAverageConfig{
				IndicatorConfig: IndicatorConfig{Period: 3},
				Type:            ExponentialMovingAverage,
			},
			expectedValue: 103.0, // seed 101, then 102, then 103
		},
		{
			name: "Period equal to window",
			config: MovingAverageConfig{
				IndicatorConfig: IndicatorConfig{Period: 5},
				Type:            SimpleMovingAverage,
			},
			expectedValue: 102.0,
		},
		{
			name: "Insufficient data",
			config: MovingAverageConfig{
				IndicatorConfig: IndicatorConfig{Period: 6},
				Type:            SimpleMovingAverage,
			},
			expectedErr: ports.ErrInsufficientData,
		},
		{
			name: "Negative period",
			config: MovingAverageConfig{
				IndicatorConfig: IndicatorConfig{Period: -1},
				Type:            SimpleMovingAverage,
			},
			expectedErr: ports.ErrInvalidInput,
		},
		{
			name: "Invalid MA type",
			config: MovingAverageConfig{
				IndicatorConfig: IndicatorConfig{Period: 3},
				Type:            "WMA",
			},
			expectedErr: ports.ErrInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ma := NewMovingAverage(tt.config)
			value, err := ma.Calculate(context.Background(), candles)

			if tt.expectedErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.expectedErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.expectedValue, value, 1e-6)
		})
	}
}

func TestMovingAverage_MatchesTalib(t *testing.T) {
	closes := wavySeries(120)
	candles := candlesFromCloses(closes...)

	for _, period := range []int{5, 15, 30} {
		sma, err := NewMovingAverage(MovingAverageConfig{IndicatorConfig: IndicatorConfig{Period: period}, Type: SimpleMovingAverage}).
			Calculate(context.Background(), candles)
		require.NoError(t, err)
		wantSMA := talib.Sma(closes, period)
		assert.InDelta(t, wantSMA[len(wantSMA)-1], sma, 1e-9, "SMA period %d", period)

		ema, err := NewMovingAverage(MovingAverageConfig{IndicatorConfig: IndicatorConfig{Period: period}, Type: ExponentialMovingAverage}).
			Calculate(context.Background(), candles)
		require.NoError(t, err)
		wantEMA := talib.Ema(closes, period)
		assert.InDelta(t, wantEMA[len(wantEMA)-1], ema, 1e-9, "EMA period %d", period)
	}
}

func TestEMASeries(t *testing.T) {
	assert.Nil(t, EMASeries([]float64{1, 2}, 3))
	assert.Nil(t, EMASeries([]float64{1, 2}, 0))

	series := EMASeries([]float64{100, 102, 101, 103, 104}, 3)
	assert.Equal(t, []float64{101, 102, 103}, series)

	// A prefix of the input yields a prefix of the series.
	closes := wavySeries(60)
	full := EMASeries(closes, 12)
	prefix := EMASeries(closes[:40], 12)
	assert.Equal(t, full[:len(prefix)], prefix)
}

func TestParseMovingAverageType(t *testing.T) {
	typ, err := ParseMovingAverageType("EMA")
	require.NoError(t, err)
	assert.Equal(t, ExponentialMovingAverage, typ)

	_, err = ParseMovingAverageType("ema")
	assert.ErrorIs(t, err, ports.ErrInvalidInput)
}
