package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptoSignalBot/config"
	"cryptoSignalBot/internal/domain"
	"cryptoSignalBot/internal/metrics"
	"cryptoSignalBot/internal/ports"
)

// Mock implementations
type mockLogger struct {
	mu        sync.Mutex
	infoMsgs  []string
	warnMsgs  []string
	errorMsgs []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}

func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infoMsgs = append(m.infoMsgs, msg)
}

func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warnMsgs = append(m.warnMsgs, msg)
}

func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorMsgs = append(m.errorMsgs, msg)
}

type mockCandleSource struct {
	mu      sync.Mutex
	candles []domain.Candle
	err     error
	calls   int
	called  chan struct{}
}

func (m *mockCandleSource) GetCandles(ctx context.Context, symbol, interval string, limit int) ([]domain.Candle, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.called != nil {
		select {
		case m.called <- struct{}{}:
		default:
		}
	}
	return m.candles, m.err
}

type mockBalance struct {
	balance float64
	err     error
}

func (m *mockBalance) GetAccountBalance(ctx context.Context, asset string) (float64, error) {
	return m.balance, m.err
}

type mockExecutor struct {
	requests []domain.OrderRequest
	err      error
}

func (m *mockExecutor) ExecuteOrder(ctx context.Context, req domain.OrderRequest) (*domain.Fill, error) {
	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, m.err
	}
	return &domain.Fill{
		OrderID:          "TEST-1",
		Symbol:           req.Symbol,
		Side:             req.Action,
		ExecutedQuantity: req.Quantity,
		AveragePrice:     req.ReferencePrice,
		Status:           "FILLED",
	}, nil
}

type mockAdvisor struct {
	text string
	err  error
}

func (m *mockAdvisor) Name() string { return "mock" }

func (m *mockAdvisor) Analyze(ctx context.Context, snap domain.IndicatorSnapshot) (*domain.Advisory, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &domain.Advisory{Provider: "mock", Text: m.text}, nil
}

type mockSink struct {
	results []*domain.CycleResult
	err     error
}

func (m *mockSink) RecordCycle(ctx context.Context, result *domain.CycleResult) error {
	m.results = append(m.results, result)
	return m.err
}

func testConfig() *config.Config {
	return &config.Config{
		Symbol:            "BTCUSDT",
		Interval:          "15m",
		CandleLimit:       100,
		QuoteAsset:        "USDT",
		MAPeriod:          15,
		MAType:            "SMA",
		LongMAPeriod:      30,
		RSIPeriod:         14,
		ATRPeriod:         14,
		MACDFast:          12,
		MACDSlow:          26,
		MACDSignal:        9,
		FibLookback:       50,
		FibTolerance:      0.005,
		DefaultConfidence: 70,
		SignalPrecedence:  "indicators",
		RiskRSIOverbought: 75,
		RiskRSIOversold:   25,
		RiskMinConfidence: 60,
		RiskMaxATRRatio:   0.05,
		RiskPercentage:    1,
		StopLossPercent:   2,
		TakeProfitPercent: 3,
		InitialBalance:    10000,
		TradingInterval:   time.Hour,
		ExecutionMode:     config.ExecutionPaper,
		SinkTimeout:       time.Second,
		AdvisorTimeout:    time.Second,
	}
}

func makeCandles(closes []float64, spread float64) []domain.Candle {
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	out := make([]domain.Candle, len(closes))
	for i, c := range closes {
		open := c
		if i > 0 {
			open = closes[i-1]
		}
		out[i] = domain.Candle{
			Symbol:    "BTCUSDT",
			Interval:  "15m",
			OpenTime:  base.Add(time.Duration(i) * 15 * time.Minute),
			CloseTime: base.Add(time.Duration(i+1)*15*time.Minute - time.Millisecond),
			Open:      open,
			High:      c + spread,
			Low:       c - spread,
			Close:     c,
			Volume:    10,
		}
	}
	return out
}

// flatCandles never trend, so the indicator channel always says HOLD.
func flatCandles(n int) []domain.Candle {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = 100
	}
	return makeCandles(closes, 0)
}

// choppyCandles alternate around 100, keeping RSI near 50 and ATR small.
func choppyCandles(n int) []domain.Candle {
	closes := make([]float64, n)
	for i := range closes {
		if i%2 == 0 {
			closes[i] = 100.5
		} else {
			closes[i] = 99.5
		}
	}
	return makeCandles(closes, 0.5)
}

type fixture struct {
	cfg      *config.Config
	logger   *mockLogger
	candles  *mockCandleSource
	balance  *mockBalance
	executor *mockExecutor
	sink     *mockSink
	metrics  *metrics.Metrics
}

func newFixture(t *testing.T, candles []domain.Candle, mutate func(*config.Config)) *fixture {
	t.Helper()
	f := &fixture{
		cfg:      testConfig(),
		logger:   &mockLogger{},
		candles:  &mockCandleSource{candles: candles},
		balance:  &mockBalance{err: ports.ErrNotFound},
		executor: &mockExecutor{},
		sink:     &mockSink{},
		metrics:  metrics.NewMetrics(),
	}
	if mutate != nil {
		mutate(f.cfg)
	}
	return f
}

func (f *fixture) service(t *testing.T, opts ...Option) *SignalService {
	t.Helper()
	p, err := NewPipeline(f.cfg, f.logger)
	require.NoError(t, err)
	opts = append([]Option{WithSinks(f.sink), WithMetrics(f.metrics, nil)}, opts...)
	svc, err := p.NewService(f.cfg, f.logger, f.candles, f.balance, f.executor, opts...)
	require.NoError(t, err)
	return svc
}

func advisoryFirst(cfg *config.Config) { cfg.SignalPrecedence = "advisory" }

func TestRunCycle_FlatMarketHolds(t *testing.T) {
	f := newFixture(t, flatCandles(100), nil)
	svc := f.service(t)

	result, err := svc.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, domain.ActionHold, result.Recommendation.Action)
	assert.Equal(t, 70.0, result.Recommendation.Confidence)
	assert.True(t, result.Decision.Approved)
	assert.Nil(t, result.Plan)
	assert.Nil(t, result.Fill)
	assert.Empty(t, f.executor.requests)
	require.Len(t, f.sink.results, 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.CyclesTotal.WithLabelValues(OutcomeHold)))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.RecommendationsTotal.WithLabelValues("HOLD")))
}

func TestRunCycle_ApprovedBuyIsExecuted(t *testing.T) {
	f := newFixture(t, choppyCandles(100), advisoryFirst)
	svc := f.service(t, WithAdvisor(&mockAdvisor{text: "Momentum is building. BUY, confidence 80%"}))

	result, err := svc.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, domain.ActionBuy, result.Recommendation.Action)
	assert.Equal(t, 80.0, result.Recommendation.Confidence)
	require.True(t, result.Decision.Approved, result.Decision.Reason)
	require.NotNil(t, result.Plan)

	// balance lookup failed, so the initial balance is used
	assert.InDelta(t, 100.0, result.Plan.RiskAmount, 1e-9)
	assert.InDelta(t, 100.0/(2*result.Snapshot.ATR), result.Plan.Quantity, 1e-9)
	assert.Less(t, result.Plan.StopLossPrice, result.Plan.EntryPrice)
	assert.Greater(t, result.Plan.TakeProfitPrice, result.Plan.EntryPrice)
	assert.InDelta(t, 1.5, result.Plan.RiskReward, 1e-9)

	require.Len(t, f.executor.requests, 1)
	req := f.executor.requests[0]
	assert.Equal(t, "BTCUSDT", req.Symbol)
	assert.Equal(t, domain.ActionBuy, req.Action)
	assert.Equal(t, result.Plan.Quantity, req.Quantity)
	require.NotNil(t, result.Fill)
	assert.Equal(t, "TEST-1", result.Fill.OrderID)

	require.Len(t, f.sink.results, 1)
	assert.Same(t, result, f.sink.results[0])
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.OrdersTotal.WithLabelValues("FILLED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.CyclesTotal.WithLabelValues(OutcomeExecuted)))
	assert.Contains(t, f.logger.warnMsgs, "Balance unavailable, using initial balance")
}

func TestRunCycle_UsesExchangeBalance(t *testing.T) {
	f := newFixture(t, choppyCandles(100), advisoryFirst)
	f.balance = &mockBalance{balance: 5000}
	svc := f.service(t, WithAdvisor(&mockAdvisor{text: "SELL now, 90%"}))

	result, err := svc.RunCycle(context.Background())
	require.NoError(t, err)
	require.NotNil(t, result.Plan)
	assert.Equal(t, domain.ActionSell, result.Plan.Action)
	assert.InDelta(t, 50.0, result.Plan.RiskAmount, 1e-9)
	assert.Greater(t, result.Plan.StopLossPrice, result.Plan.EntryPrice)
}

func TestRunCycle_GateRejection(t *testing.T) {
	f := newFixture(t, choppyCandles(100), advisoryFirst)
	svc := f.service(t, WithAdvisor(&mockAdvisor{text: "BUY, but only 40% sure"}))

	result, err := svc.RunCycle(context.Background())
	require.NoError(t, err)

	assert.False(t, result.Decision.Approved)
	assert.Equal(t, "low_confidence", result.Decision.Rule)
	assert.Nil(t, result.Plan)
	assert.Empty(t, f.executor.requests)
	require.Len(t, f.sink.results, 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.GateRejectionsTotal.WithLabelValues("low_confidence")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.CyclesTotal.WithLabelValues(OutcomeRejected)))
}

func TestRunCycle_AdvisorFailureDegrades(t *testing.T) {
	f := newFixture(t, flatCandles(100), advisoryFirst)
	svc := f.service(t, WithAdvisor(&mockAdvisor{err: ports.ErrAdvisorUnavailable}))

	result, err := svc.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Nil(t, result.Advisory)
	assert.Equal(t, domain.ActionHold, result.Recommendation.Action)
	assert.Equal(t, 70.0, result.Recommendation.Confidence)
	assert.Contains(t, f.logger.warnMsgs, "Advisor unavailable, continuing without advisory")
}

func TestRunCycle_InsufficientData(t *testing.T) {
	f := newFixture(t, flatCandles(10), nil)
	svc := f.service(t)

	result, err := svc.RunCycle(context.Background())
	assert.Nil(t, result)
	assert.ErrorIs(t, err, ports.ErrInsufficientData)
	assert.Empty(t, f.sink.results)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.CyclesTotal.WithLabelValues(OutcomeInsufficientData)))
}

func TestRunCycle_CandleSourceError(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.candles.err = ports.ErrExchangeUnavailable
	svc := f.service(t)

	result, err := svc.RunCycle(context.Background())
	assert.Nil(t, result)
	assert.ErrorIs(t, err, ports.ErrExchangeUnavailable)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.CyclesTotal.WithLabelValues(OutcomeError)))
}

func TestRunCycle_ExecutionFailure(t *testing.T) {
	f := newFixture(t, choppyCandles(100), advisoryFirst)
	f.executor.err = ports.ErrInsufficientFunds
	svc := f.service(t, WithAdvisor(&mockAdvisor{text: "BUY 85%"}))

	result, err := svc.RunCycle(context.Background())
	assert.ErrorIs(t, err, ports.ErrInsufficientFunds)
	require.NotNil(t, result)
	assert.NotNil(t, result.Plan)
	assert.Nil(t, result.Fill)
	require.Len(t, f.sink.results, 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.OrdersTotal.WithLabelValues("error")))
}

func TestRunCycle_SinkErrorIsNotFatal(t *testing.T) {
	f := newFixture(t, flatCandles(100), nil)
	f.sink.err = errors.New("disk full")
	svc := f.service(t)

	result, err := svc.RunCycle(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, result)
	assert.Contains(t, f.logger.errorMsgs, "Failed to record cycle")
}

func TestRunCycle_NoOverlap(t *testing.T) {
	f := newFixture(t, flatCandles(100), nil)
	svc := f.service(t)

	svc.cycleMu.Lock()
	_, err := svc.RunCycle(context.Background())
	svc.cycleMu.Unlock()
	assert.ErrorIs(t, err, ErrCycleInProgress)
	assert.Equal(t, 0, f.candles.calls)
}

func TestStart_RunsImmediatelyAndStopsOnCancel(t *testing.T) {
	f := newFixture(t, flatCandles(100), nil)
	f.candles.called = make(chan struct{}, 1)
	svc := f.service(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Start(ctx) }()

	select {
	case <-f.candles.called:
	case <-time.After(5 * time.Second):
		t.Fatal("first cycle did not run")
	}
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("service did not stop")
	}
}

func TestNewSignalService_MissingDependencies(t *testing.T) {
	f := newFixture(t, nil, nil)
	p, err := NewPipeline(f.cfg, f.logger)
	require.NoError(t, err)

	_, err = NewSignalService(f.cfg, f.logger, nil, nil, f.executor, p.Engine, p.Fuser, p.Gate, p.Sizer)
	assert.Error(t, err)
	_, err = NewSignalService(nil, f.logger, f.candles, nil, f.executor, p.Engine, p.Fuser, p.Gate, p.Sizer)
	assert.Error(t, err)
}

func TestNewPipeline_InvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.SignalPrecedence = "vote"
	_, err := NewPipeline(cfg, &mockLogger{})
	assert.Error(t, err)

	cfg = testConfig()
	cfg.MAType = "WMA"
	_, err = NewPipeline(cfg, &mockLogger{})
	assert.Error(t, err)
}
