package indicators

import (
	"math"
	"math/rand"
	"time"

	"cryptoSignalBot/internal/domain"
)

var baseTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// candlesFromCloses builds a window with a 1.0 spread around each close.
func candlesFromCloses(closes ...float64) []domain.Candle {
	out := make([]domain.Candle, len(closes))
	for i, c := range closes {
		out[i] = domain.Candle{
			OpenTime:  baseTime.Add(time.Duration(i) * 15 * time.Minute),
			CloseTime: baseTime.Add(time.Duration(i+1)*15*time.Minute - time.Millisecond),
			Symbol:    "BTCUSDT",
			Interval:  "15m",
			Open:      c,
			High:      c + 1,
			Low:       c - 1,
			Close:     c,
			Volume:    10,
		}
	}
	return out
}

// flatCandles builds n candles whose OHLC values are all equal to price.
func flatCandles(n int, price float64) []domain.Candle {
	out := make([]domain.Candle, n)
	for i := range out {
		out[i] = domain.Candle{
			OpenTime: baseTime.Add(time.Duration(i) * time.Minute),
			Symbol:   "BTCUSDT",
			Open:     price, High: price, Low: price, Close: price,
		}
	}
	return out
}

// wavySeries is a deterministic trending oscillation.
func wavySeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 100 + 10*math.Sin(float64(i)/5) + 0.3*float64(i)
	}
	return out
}

// randomWalk returns a strictly positive random walk.
func randomWalk(r *rand.Rand, n int) []float64 {
	out := make([]float64, n)
	price := 1000.0
	for i := range out {
		price += r.NormFloat64() * 15
		if price < 1 {
			price = 1
		}
		out[i] = price
	}
	return out
}
