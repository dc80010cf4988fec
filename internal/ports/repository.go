package ports

import (
	"context"
	"time"

	"cryptoSignalBot/internal/domain"
)

// DecisionSink receives the full result of every cycle.
// Sinks are fire-and-forget: callers log failures and never abort a cycle on them.
type DecisionSink interface {
	RecordCycle(ctx context.Context, result *domain.CycleResult) error
}

// AnalysisRecord is a persisted cycle as read back from storage.
type AnalysisRecord struct {
	ID             int64
	Symbol         string
	Timestamp      time.Time
	Snapshot       domain.IndicatorSnapshot
	Recommendation domain.Recommendation
	Decision       domain.RiskDecision
	Plan           *domain.PositionPlan // nil when the cycle was not sized
}

// TradingStatistics summarizes the persisted trade history.
type TradingStatistics struct {
	TotalTrades       int
	BuyTrades         int
	SellTrades        int
	TotalQuantity     float64
	AverageRiskAmount float64
}

// AnalysisRepository reads back persisted cycles and trades.
type AnalysisRepository interface {
	DecisionSink
	// RecentAnalyses returns the latest analyses for a symbol, newest first.
	RecentAnalyses(ctx context.Context, symbol string, limit int) ([]*AnalysisRecord, error)
	// TradingStatistics aggregates trade history recorded since the given time.
	TradingStatistics(ctx context.Context, since time.Time) (*TradingStatistics, error)
}
