package indicators

import (
	"context"
	"math/rand"
	"testing"

	"github.com/markcheno/go-talib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptoSignalBot/internal/ports"
)

func TestRSI_Calculate(t *testing.T) {
	tests := []struct {
		name          string
		period        int
		closes        []float64
		expectedValue float64
		expectedErr   error
	}{
		{
			name:          "RSI with sufficient data",
			period:        3,
			closes:        []float64{100, 102, 101, 103, 102, 104},
			expectedValue: 77.272727,
		},
		{
			name:          "Insufficient data",
			period:        7,
			closes:        []float64{100, 102, 101, 103, 102, 104},
			expectedErr:   ports.ErrInsufficientData,
		},
		{
			name:        "Exactly period candles is not enough",
			period:      3,
			closes:      []float64{100, 101, 102},
			expectedErr: ports.ErrInsufficientData,
		},
		{
			name:          "Period plus one candles",
			period:        3,
			closes:        []float64{100, 101, 100, 101},
			expectedValue: 66.666667, // gains 2/3, losses 1/3
		},
		{
			name:          "All gains",
			period:        3,
			closes:        []float64{100, 102, 104, 106},
			expectedValue: 100.0,
		},
		{
			name:          "All losses",
			period:        3,
			closes:        []float64{106, 104, 102, 100},
			expectedValue: 0.0,
		},
		{
			name:          "No change is neutral",
			period:        3,
			closes:        []float64{100, 100, 100, 100, 100},
			expectedValue: 50.0,
		},
		{
			name:        "Zero period",
			period:      0,
			closes:      []float64{100, 100},
			expectedErr: ports.ErrInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rsi := NewRSI(RSIConfig{IndicatorConfig: IndicatorConfig{Period: tt.period}})
			value, err := rsi.Calculate(context.Background(), candlesFromCloses(tt.closes...))

			if tt.expectedErr != nil {
				assert.ErrorIs(t, err, tt.expectedErr)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.expectedValue, value, 1e-6)
		})
	}
}

func TestRSI_AlwaysWithinBounds(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	rsi := NewRSI(RSIConfig{IndicatorConfig: IndicatorConfig{Period: 14}})

	for i := 0; i < 200; i++ {
		n := 15 + r.Intn(100)
		value, err := rsi.Calculate(context.Background(), candlesFromCloses(randomWalk(r, n)...))
		require.NoError(t, err)
		assert.GreaterOrEqual(t, value, 0.0)
		assert.LessOrEqual(t, value, 100.0)
	}
}

func TestRSI_MatchesTalib(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	closes := randomWalk(r, 150)

	value, err := NewRSI(RSIConfig{IndicatorConfig: IndicatorConfig{Period: 14}}).
		Calculate(context.Background(), candlesFromCloses(closes...))
	require.NoError(t, err)

	want := talib.Rsi(closes, 14)
	assert.InDelta(t, want[len(want)-1], value, 1e-9)
}

func TestRSIFromAverages(t *testing.T) {
	assert.Equal(t, 50.0, rsiFromAverages(0, 0))
	assert.Equal(t, 100.0, rsiFromAverages(1, 0))
	assert.Equal(t, 0.0, rsiFromAverages(0, 1))
	assert.InDelta(t, 75.0, rsiFromAverages(3, 1), 1e-12)
}
