package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"cryptoSignalBot/config"
	"cryptoSignalBot/internal/domain"
	"cryptoSignalBot/internal/metrics"
	"cryptoSignalBot/internal/ports"
	"cryptoSignalBot/internal/risk"
	"cryptoSignalBot/internal/strategy"
	"cryptoSignalBot/internal/strategy/indicators"
)

// Cycle outcomes, used as metric labels.
const (
	OutcomeHold             = "hold"
	OutcomeRejected         = "rejected"
	OutcomePlanned          = "planned" // approved but sized to zero quantity
	OutcomeExecuted         = "executed"
	OutcomeInsufficientData = "insufficient_data"
	OutcomeError            = "error"
)

// ErrCycleInProgress is returned when RunCycle is called while another cycle runs.
var ErrCycleInProgress = errors.New("analysis cycle already in progress")

// SignalService orchestrates one analysis cycle: candles, indicators, advisory,
// fusion, risk gate, sizing, execution and persistence.
type SignalService struct {
	cfg      *config.Config
	logger   ports.Logger
	candles  ports.CandleSource
	balances ports.BalanceProvider
	executor ports.OrderExecutor
	engine   *indicators.Engine
	fuser    *strategy.Fuser
	gate     *risk.Gate
	sizer    *risk.Sizer

	// Optional collaborators
	advisor ports.Advisor
	sinks   []ports.DecisionSink
	metrics *metrics.Metrics
	health  *metrics.HealthStatus

	now     func() time.Time
	cycleMu sync.Mutex // held for the duration of a cycle
}

// Option configures optional collaborators of the service.
type Option func(*SignalService)

// WithAdvisor enables the advisory channel.
func WithAdvisor(a ports.Advisor) Option {
	return func(s *SignalService) { s.advisor = a }
}

// WithSinks adds decision sinks; each receives every cycle result.
func WithSinks(sinks ...ports.DecisionSink) Option {
	return func(s *SignalService) { s.sinks = append(s.sinks, sinks...) }
}

// WithMetrics records cycle metrics and health.
func WithMetrics(m *metrics.Metrics, h *metrics.HealthStatus) Option {
	return func(s *SignalService) {
		s.metrics = m
		s.health = h
	}
}

// NewSignalService creates a new application service instance.
func NewSignalService(
	cfg *config.Config,
	logger ports.Logger,
	candles ports.CandleSource,
	balances ports.BalanceProvider,
	executor ports.OrderExecutor,
	engine *indicators.Engine,
	fuser *strategy.Fuser,
	gate *risk.Gate,
	sizer *risk.Sizer,
	opts ...Option,
) (*SignalService, error) {
	// Validate dependencies
	if cfg == nil || logger == nil || candles == nil || executor == nil || engine == nil || fuser == nil || gate == nil || sizer == nil {
		return nil, fmt.Errorf("missing required dependencies for SignalService")
	}
	if cfg.Symbol == "" || cfg.Interval == "" {
		return nil, fmt.Errorf("configuration Symbol and Interval must be set")
	}
	if cfg.CandleLimit < engine.RequiredDataPoints() {
		logger.Warn(context.Background(), "Candle limit below indicator requirement, cycles will report insufficient data", map[string]interface{}{
			"candleLimit":    cfg.CandleLimit,
			"requiredPoints": engine.RequiredDataPoints(),
		})
	}

	s := &SignalService{
		cfg:      cfg,
		logger:   logger,
		candles:  candles,
		balances: balances,
		executor: executor,
		engine:   engine,
		fuser:    fuser,
		gate:     gate,
		sizer:    sizer,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start runs a cycle immediately and then on every trading interval until the
// context is canceled or SIGINT/SIGTERM is received. Failed cycles are logged
// and the loop continues.
func (s *SignalService) Start(ctx context.Context) error {
	s.logger.Info(ctx, "Starting Signal Service...", map[string]interface{}{
		"symbol":   s.cfg.Symbol,
		"interval": s.cfg.Interval,
		"every":    s.cfg.TradingInterval.String(),
		"mode":     s.cfg.ExecutionMode,
	})

	// Create a context that can be canceled by signals
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			s.logger.Info(ctx, "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
			cancel() // Cancel the main context
		case <-ctx.Done():
		}
	}()

	interval := s.cfg.TradingInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.runLogged(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info(context.Background(), "Signal Service stopped")
			return nil
		case <-ticker.C:
			s.runLogged(ctx)
		}
	}
}

func (s *SignalService) runLogged(ctx context.Context) {
	result, err := s.RunCycle(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Error(ctx, err, "Analysis cycle failed", map[string]interface{}{"symbol": s.cfg.Symbol})
		return
	}
	s.logger.Info(ctx, "Analysis cycle completed", map[string]interface{}{
		"symbol":     result.Symbol,
		"price":      result.Snapshot.CurrentPrice,
		"action":     result.Recommendation.Action,
		"confidence": result.Recommendation.Confidence,
		"approved":   result.Decision.Approved,
		"reason":     result.Decision.Reason,
	})
}

// RunCycle executes one full analysis cycle. When the cycle fails after the
// snapshot was computed, the partial result is returned together with the error
// and has already been handed to the sinks.
func (s *SignalService) RunCycle(ctx context.Context) (*domain.CycleResult, error) {
	if !s.cycleMu.TryLock() {
		return nil, ErrCycleInProgress
	}
	defer s.cycleMu.Unlock()

	started := s.now()
	result := &domain.CycleResult{Symbol: s.cfg.Symbol, StartedAt: started}

	outcome, err := s.runCycle(ctx, result)

	s.metrics.ObserveCycle(outcome, s.now().Sub(started))
	s.health.RecordCycle(outcome, s.now())
	if err != nil {
		if result.Snapshot.Symbol == "" {
			// no snapshot was computed
			return nil, err
		}
		return result, err
	}
	return result, nil
}

func (s *SignalService) runCycle(ctx context.Context, result *domain.CycleResult) (string, error) {
	candles, err := s.candles.GetCandles(ctx, s.cfg.Symbol, s.cfg.Interval, s.cfg.CandleLimit)
	if err != nil {
		return OutcomeError, fmt.Errorf("failed to fetch candles for %s: %w", s.cfg.Symbol, err)
	}

	snap, err := s.engine.Compute(ctx, candles)
	if err != nil {
		if errors.Is(err, ports.ErrInsufficientData) {
			return OutcomeInsufficientData, fmt.Errorf("cannot analyse %s with %d candles: %w", s.cfg.Symbol, len(candles), err)
		}
		return OutcomeError, fmt.Errorf("failed to compute indicators for %s: %w", s.cfg.Symbol, err)
	}
	if snap.Symbol == "" {
		snap.Symbol = s.cfg.Symbol
	}
	result.Snapshot = snap

	result.Advisory = s.advise(ctx, snap)

	rec := s.fuser.Fuse(ctx, snap, result.Advisory)
	result.Recommendation = rec
	s.metrics.IncRecommendation(string(rec.Action))

	decision := s.gate.Evaluate(snap, rec)
	result.Decision = decision
	if !decision.Approved {
		s.metrics.IncGateRejection(decision.Rule)
		s.logger.Info(ctx, "Recommendation rejected by risk gate", map[string]interface{}{
			"action": rec.Action,
			"rule":   decision.Rule,
			"reason": decision.Reason,
		})
		s.record(ctx, result)
		return OutcomeRejected, nil
	}
	if !rec.Action.IsDirectional() {
		s.record(ctx, result)
		return OutcomeHold, nil
	}

	balance := s.balance(ctx)
	plan, err := s.sizer.Plan(snap.CurrentPrice, rec.Action, balance, snap.ATR)
	if err != nil {
		s.record(ctx, result)
		return OutcomeError, fmt.Errorf("failed to size %s position: %w", rec.Action, err)
	}
	result.Plan = &plan
	s.logger.Info(ctx, "Position planned", map[string]interface{}{
		"action":     plan.Action,
		"quantity":   plan.Quantity,
		"entry":      plan.EntryPrice,
		"stopLoss":   plan.StopLossPrice,
		"takeProfit": plan.TakeProfitPrice,
		"riskAmount": plan.RiskAmount,
		"riskReward": plan.RiskReward,
		"balance":    balance,
	})
	if plan.Quantity <= 0 {
		if plan.Degenerate {
			s.logger.Warn(ctx, "Position sized to zero", map[string]interface{}{"note": plan.Note})
		}
		s.record(ctx, result)
		return OutcomePlanned, nil
	}

	fill, err := s.executor.ExecuteOrder(ctx, domain.OrderRequest{
		Symbol:         s.cfg.Symbol,
		Action:         plan.Action,
		Quantity:       plan.Quantity,
		ReferencePrice: plan.EntryPrice,
	})
	if err != nil {
		s.metrics.IncOrder("error")
		s.record(ctx, result)
		return OutcomeError, fmt.Errorf("failed to execute %s order: %w", plan.Action, err)
	}
	result.Fill = fill
	s.metrics.IncOrder(fill.Status)
	s.logger.Info(ctx, "Order executed", map[string]interface{}{
		"orderID":  fill.OrderID,
		"side":     fill.Side,
		"quantity": fill.ExecutedQuantity,
		"price":    fill.AveragePrice,
		"status":   fill.Status,
	})

	s.record(ctx, result)
	return OutcomeExecuted, nil
}

// advise queries the advisor; any failure degrades to no advisory.
func (s *SignalService) advise(ctx context.Context, snap domain.IndicatorSnapshot) *domain.Advisory {
	if s.advisor == nil {
		return nil
	}
	if s.cfg.AdvisorTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.AdvisorTimeout)
		defer cancel()
	}
	adv, err := s.advisor.Analyze(ctx, snap)
	if err != nil {
		s.logger.Warn(ctx, "Advisor unavailable, continuing without advisory", map[string]interface{}{
			"advisor": s.advisor.Name(),
			"error":   err.Error(),
		})
		return nil
	}
	return adv
}

// balance reads the quote balance, falling back to the configured initial balance.
func (s *SignalService) balance(ctx context.Context) float64 {
	if s.balances == nil {
		return s.cfg.InitialBalance
	}
	bal, err := s.balances.GetAccountBalance(ctx, s.cfg.QuoteAsset)
	if err != nil {
		s.logger.Warn(ctx, "Balance unavailable, using initial balance", map[string]interface{}{
			"asset":          s.cfg.QuoteAsset,
			"initialBalance": s.cfg.InitialBalance,
			"error":          err.Error(),
		})
		return s.cfg.InitialBalance
	}
	return bal
}

// record hands the result to every sink. Sink failures are logged, never returned.
func (s *SignalService) record(ctx context.Context, result *domain.CycleResult) {
	if len(s.sinks) == 0 {
		return
	}
	timeout := s.cfg.SinkTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	sinkCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	for _, sink := range s.sinks {
		if err := sink.RecordCycle(sinkCtx, result); err != nil {
			s.logger.Error(ctx, err, "Failed to record cycle", map[string]interface{}{
				"sink":   fmt.Sprintf("%T", sink),
				"symbol": result.Symbol,
			})
		}
	}
}
