package domain

import "time"

// PositionPlan is the sized order derived from an approved recommendation.
// Quantity 0 means "do not trade".
type PositionPlan struct {
	Action          Action
	Quantity        float64
	EntryPrice      float64
	StopLossPrice   float64
	TakeProfitPrice float64
	RiskAmount      float64
	RiskReward      float64
	Degenerate      bool   // true when sizing collapsed to zero quantity
	Note            string // reason for a degenerate plan
}

// OrderRequest is what crosses the boundary to the execution sink.
type OrderRequest struct {
	Symbol         string
	Action         Action
	Quantity       float64
	ReferencePrice float64 // entry price used for sizing
}

// Fill is the execution record returned by the sink.
type Fill struct {
	OrderID          string
	Symbol           string
	Side             Action
	ExecutedQuantity float64
	AveragePrice     float64
	Status           string
	Timestamp        time.Time
}

// AccountState is read-only account information injected per cycle.
type AccountState struct {
	Balance float64
}
