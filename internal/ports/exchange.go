package ports

import (
	"context"

	"cryptoSignalBot/internal/domain"
)

// CandleSource supplies an ordered candle window for an instrument and interval.
// An empty window is valid and is treated as insufficient data by the caller.
type CandleSource interface {
	GetCandles(ctx context.Context, symbol, interval string, limit int) ([]domain.Candle, error)
}

// BalanceProvider reads the account balance for a quote asset (e.g., "USDT").
type BalanceProvider interface {
	GetAccountBalance(ctx context.Context, asset string) (float64, error)
}

// OrderExecutor places a market order and returns the fill.
// Exchange-side rejections are surfaced as errors; no retry is attempted by callers.
type OrderExecutor interface {
	ExecuteOrder(ctx context.Context, req domain.OrderRequest) (*domain.Fill, error)
}
