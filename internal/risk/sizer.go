package risk

import (
	"fmt"
	"math"

	"cryptoSignalBot/internal/domain"
	"cryptoSignalBot/internal/ports"
)

// SizerConfig holds the account-level sizing parameters.
type SizerConfig struct {
	RiskPercent       float64 // percent of balance risked per trade, e.g. 1.0
	StopLossPercent   float64 // stop distance in percent of entry when ATR is unavailable
	TakeProfitPercent float64 // take-profit distance in percent of entry when ATR is unavailable
}

// ATR multipliers for the volatility-based stop and target.
const (
	ATRStopMultiplier       = 2.0
	ATRTakeProfitMultiplier = 3.0
)

// PositionInput is everything needed to size one order.
type PositionInput struct {
	EntryPrice        float64
	Action            domain.Action
	AccountBalance    float64
	RiskPercent       float64
	StopLossPercent   float64
	TakeProfitPercent float64
	ATR               float64 // optional; ignored unless > 0
}

// Sizer turns an approved recommendation into a PositionPlan using fixed account parameters.
type Sizer struct {
	cfg SizerConfig
}

// NewSizer creates a new position sizer.
func NewSizer(cfg SizerConfig) (*Sizer, error) {
	if cfg.RiskPercent < 0 || cfg.RiskPercent > 100 {
		return nil, fmt.Errorf("risk percent must be within [0,100]")
	}
	if cfg.StopLossPercent <= 0 || cfg.StopLossPercent >= 100 {
		return nil, fmt.Errorf("stop loss percent must be between 0 and 100 (exclusive)")
	}
	if cfg.TakeProfitPercent <= 0 {
		return nil, fmt.Errorf("take profit percent must be positive")
	}
	return &Sizer{cfg: cfg}, nil
}

// Plan sizes an order for the given entry, direction, balance and optional ATR.
func (s *Sizer) Plan(entryPrice float64, action domain.Action, balance, atr float64) (domain.PositionPlan, error) {
	return CalculatePosition(PositionInput{
		EntryPrice:        entryPrice,
		Action:            action,
		AccountBalance:    balance,
		RiskPercent:       s.cfg.RiskPercent,
		StopLossPercent:   s.cfg.StopLossPercent,
		TakeProfitPercent: s.cfg.TakeProfitPercent,
		ATR:               atr,
	})
}

// CalculatePosition computes quantity, stop-loss, take-profit and risk amount.
// With a positive ATR the stop is 2*ATR and the target 3*ATR away from entry; otherwise the
// configured percentages are used. A zero stop distance, a stop or target at or below zero,
// or a non-finite quantity yields a zero-quantity plan rather than an error.
func CalculatePosition(in PositionInput) (domain.PositionPlan, error) {
	if err := validateInput(in); err != nil {
		return domain.PositionPlan{}, err
	}

	riskAmount := in.AccountBalance * in.RiskPercent / 100

	var stopDistance, targetDistance float64
	if in.ATR > 0 && !math.IsInf(in.ATR, 0) {
		stopDistance = in.ATR * ATRStopMultiplier
		targetDistance = in.ATR * ATRTakeProfitMultiplier
	} else {
		stopDistance = in.EntryPrice * in.StopLossPercent / 100
		targetDistance = in.EntryPrice * in.TakeProfitPercent / 100
	}

	plan := domain.PositionPlan{
		Action:          in.Action,
		EntryPrice:      in.EntryPrice,
		StopLossPrice:   stopLossPrice(in.EntryPrice, stopDistance, in.Action),
		TakeProfitPrice: takeProfitPrice(in.EntryPrice, targetDistance, in.Action),
		RiskAmount:      riskAmount,
	}
	plan.RiskReward = RiskReward(plan.EntryPrice, plan.StopLossPrice, plan.TakeProfitPrice)

	if stopDistance == 0 {
		return degenerate(plan, "zero stop distance"), nil
	}
	if plan.StopLossPrice <= 0 || plan.TakeProfitPrice <= 0 {
		return degenerate(plan, "price level at or below zero"), nil
	}
	if riskAmount == 0 {
		return degenerate(plan, "zero risk amount"), nil
	}
	quantity := riskAmount / stopDistance
	if math.IsNaN(quantity) || math.IsInf(quantity, 0) || quantity < 0 {
		return degenerate(plan, "non-finite quantity"), nil
	}
	plan.Quantity = quantity
	return plan, nil
}

// RiskReward is the reward distance divided by the risk distance, 0 when risk is 0.
func RiskReward(entry, stopLoss, takeProfit float64) float64 {
	risk := math.Abs(entry - stopLoss)
	if risk == 0 {
		return 0
	}
	return math.Abs(takeProfit-entry) / risk
}

func stopLossPrice(entry, distance float64, action domain.Action) float64 {
	if action == domain.ActionBuy {
		return entry - distance
	}
	return entry + distance
}

func takeProfitPrice(entry, distance float64, action domain.Action) float64 {
	if action == domain.ActionBuy {
		return entry + distance
	}
	return entry - distance
}

func degenerate(plan domain.PositionPlan, note string) domain.PositionPlan {
	plan.Quantity = 0
	plan.Degenerate = true
	plan.Note = note
	return plan
}

func validateInput(in PositionInput) error {
	if !in.Action.IsDirectional() {
		return fmt.Errorf("cannot size a %s action: %w", in.Action, ports.ErrInvalidInput)
	}
	if !isFinite(in.EntryPrice) || in.EntryPrice <= 0 {
		return fmt.Errorf("entry price must be positive, got %v: %w", in.EntryPrice, ports.ErrInvalidInput)
	}
	if !isFinite(in.AccountBalance) || in.AccountBalance < 0 {
		return fmt.Errorf("account balance must be a non-negative number, got %v: %w", in.AccountBalance, ports.ErrInvalidInput)
	}
	for name, v := range map[string]float64{
		"risk percent":        in.RiskPercent,
		"stop loss percent":   in.StopLossPercent,
		"take profit percent": in.TakeProfitPercent,
	} {
		if !isFinite(v) || v < 0 {
			return fmt.Errorf("%s must be a non-negative number, got %v: %w", name, v, ports.ErrInvalidInput)
		}
	}
	// A zero target would put take-profit on the entry price.
	if in.TakeProfitPercent == 0 {
		return fmt.Errorf("take profit percent must be positive: %w", ports.ErrInvalidInput)
	}
	return nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
