package execution

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"cryptoSignalBot/internal/domain"
	"cryptoSignalBot/internal/ports"
)

// PaperConfig holds the simulation parameters.
type PaperConfig struct {
	SlippageBps float64 // basis points of slippage (e.g., 5 = 0.05%)
	Balance     float64 // quote balance reported to the pipeline
	QuoteAsset  string
	Logger      ports.Logger
}

// PaperExecutor simulates order execution without real exchange calls.
// It implements ports.OrderExecutor and ports.BalanceProvider.
type PaperExecutor struct {
	mu       sync.RWMutex
	fills    []domain.Fill
	orderSeq int64

	slippageBps float64
	balance     float64
	quoteAsset  string
	logger      ports.Logger
	now         func() time.Time
}

// NewPaperExecutor creates a paper trading executor.
func NewPaperExecutor(cfg PaperConfig) (*PaperExecutor, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for paper executor: %w", ports.ErrConfigurationError)
	}
	if cfg.SlippageBps < 0 || cfg.Balance < 0 {
		return nil, fmt.Errorf("slippage and balance must be non-negative: %w", ports.ErrConfigurationError)
	}
	asset := strings.ToUpper(cfg.QuoteAsset)
	if asset == "" {
		asset = "USDT"
	}
	return &PaperExecutor{
		fills:       make([]domain.Fill, 0, 64),
		slippageBps: cfg.SlippageBps,
		balance:     cfg.Balance,
		quoteAsset:  asset,
		logger:      cfg.Logger,
		now:         time.Now,
	}, nil
}

// GetAccountBalance returns the simulated balance for the quote asset.
func (p *PaperExecutor) GetAccountBalance(ctx context.Context, asset string) (float64, error) {
	if !strings.EqualFold(asset, p.quoteAsset) {
		return 0, fmt.Errorf("paper balance for asset %s: %w", asset, ports.ErrNotFound)
	}
	return p.balance, nil
}

// ExecuteOrder fills the order immediately at the reference price adjusted for slippage.
func (p *PaperExecutor) ExecuteOrder(ctx context.Context, req domain.OrderRequest) (*domain.Fill, error) {
	if !req.Action.IsDirectional() {
		return nil, fmt.Errorf("paper order action %q: %w", req.Action, ports.ErrInvalidRequest)
	}
	if req.Quantity <= 0 || math.IsNaN(req.Quantity) || math.IsInf(req.Quantity, 0) {
		return nil, fmt.Errorf("paper order quantity %v: %w", req.Quantity, ports.ErrInvalidRequest)
	}
	if req.ReferencePrice <= 0 {
		return nil, fmt.Errorf("paper order reference price %v: %w", req.ReferencePrice, ports.ErrInvalidRequest)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("paper order canceled: %w: %w", ports.ErrContextCanceled, err)
	}

	price := req.ReferencePrice
	slippage := price * p.slippageBps / 10000
	if req.Action == domain.ActionBuy {
		price += slippage // buy higher
	} else {
		price -= slippage // sell lower
	}

	p.mu.Lock()
	p.orderSeq++
	fill := domain.Fill{
		OrderID:          fmt.Sprintf("PAPER-%d", p.orderSeq),
		Symbol:           req.Symbol,
		Side:             req.Action,
		ExecutedQuantity: req.Quantity,
		AveragePrice:     price,
		Status:           "FILLED",
		Timestamp:        p.now(),
	}
	p.fills = append(p.fills, fill)
	p.mu.Unlock()

	p.logger.Info(ctx, "Paper order filled", map[string]interface{}{
		"orderID":  fill.OrderID,
		"symbol":   fill.Symbol,
		"side":     fill.Side,
		"quantity": fill.ExecutedQuantity,
		"price":    fill.AveragePrice,
		"slippage": slippage,
	})
	return &fill, nil
}

// Fills returns a snapshot of all fills.
func (p *PaperExecutor) Fills() []domain.Fill {
	p.mu.RLock()
	defer p.mu.RUnlock()
	cp := make([]domain.Fill, len(p.fills))
	copy(cp, p.fills)
	return cp
}
