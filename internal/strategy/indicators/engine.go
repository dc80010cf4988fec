package indicators

import (
	"context"
	"fmt"
	"math"

	"cryptoSignalBot/internal/domain"
	"cryptoSignalBot/internal/ports"
)

// EngineConfig holds every indicator period used to build a snapshot.
type EngineConfig struct {
	MAPeriod     int
	LongMAPeriod int // defaults to max(2*MAPeriod, MAPeriod+1) when zero
	MAType       MovingAverageType
	RSIPeriod    int
	ATRPeriod    int
	MACDFast     int
	MACDSlow     int
	MACDSignal   int
	FibLookback  int
}

// DefaultEngineConfig returns the periods used when nothing is configured.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		MAPeriod:     15,
		LongMAPeriod: 30,
		MAType:       SimpleMovingAverage,
		RSIPeriod:    14,
		ATRPeriod:    14,
		MACDFast:     12,
		MACDSlow:     26,
		MACDSignal:   9,
		FibLookback:  50,
	}
}

// Engine computes an IndicatorSnapshot from a candle window.
// It holds no mutable state and is safe for concurrent use.
type Engine struct {
	cfg    EngineConfig
	ma     *MovingAverage
	longMA *MovingAverage
	rsi    *RSI
	atr    *ATR
	macd   *MACD
	fib    *Fibonacci
}

// NewEngine validates the configuration and builds the indicator set.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.MAType == "" {
		cfg.MAType = SimpleMovingAverage
	}
	if _, err := ParseMovingAverageType(string(cfg.MAType)); err != nil {
		return nil, err
	}
	if cfg.LongMAPeriod == 0 && cfg.MAPeriod > 0 {
		cfg.LongMAPeriod = DefaultLongMAPeriod(cfg.MAPeriod)
	}

	checks := []struct {
		name   string
		period int
	}{
		{"MA", cfg.MAPeriod},
		{"long MA", cfg.LongMAPeriod},
		{"RSI", cfg.RSIPeriod},
		{"ATR", cfg.ATRPeriod},
		{"MACD fast", cfg.MACDFast},
		{"MACD slow", cfg.MACDSlow},
		{"MACD signal", cfg.MACDSignal},
		{"Fibonacci lookback", cfg.FibLookback},
	}
	for _, c := range checks {
		if err := validatePeriod(c.name, c.period); err != nil {
			return nil, err
		}
	}
	if cfg.MAPeriod >= cfg.LongMAPeriod {
		return nil, fmt.Errorf("MA period %d must be less than long MA period %d: %w", cfg.MAPeriod, cfg.LongMAPeriod, ports.ErrInvalidInput)
	}
	if cfg.MACDFast >= cfg.MACDSlow {
		return nil, fmt.Errorf("MACD fast period %d must be less than slow period %d: %w", cfg.MACDFast, cfg.MACDSlow, ports.ErrInvalidInput)
	}

	return &Engine{
		cfg:    cfg,
		ma:     NewMovingAverage(MovingAverageConfig{IndicatorConfig: IndicatorConfig{Period: cfg.MAPeriod}, Type: cfg.MAType}),
		longMA: NewMovingAverage(MovingAverageConfig{IndicatorConfig: IndicatorConfig{Period: cfg.LongMAPeriod}, Type: cfg.MAType}),
		rsi:    NewRSI(RSIConfig{IndicatorConfig: IndicatorConfig{Period: cfg.RSIPeriod}}),
		atr:    NewATR(ATRConfig{IndicatorConfig: IndicatorConfig{Period: cfg.ATRPeriod}}),
		macd:   NewMACD(MACDConfig{FastPeriod: cfg.MACDFast, SlowPeriod: cfg.MACDSlow, SignalPeriod: cfg.MACDSignal}),
		fib:    NewFibonacci(FibonacciConfig{Lookback: cfg.FibLookback}),
	}, nil
}

// DefaultLongMAPeriod is the trend MA period derived from the short one.
func DefaultLongMAPeriod(maPeriod int) int {
	if 2*maPeriod > maPeriod+1 {
		return 2 * maPeriod
	}
	return maPeriod + 1
}

// Config returns the effective configuration.
func (e *Engine) Config() EngineConfig {
	return e.cfg
}

// RequiredDataPoints returns the minimum window length for a full snapshot.
func (e *Engine) RequiredDataPoints() int {
	need := 0
	for _, n := range []int{
		e.ma.RequiredDataPoints(),
		e.longMA.RequiredDataPoints(),
		e.rsi.RequiredDataPoints(),
		e.atr.RequiredDataPoints(),
		e.macd.RequiredDataPoints(),
		e.fib.RequiredDataPoints(),
	} {
		if n > need {
			need = n
		}
	}
	return need
}

// Compute derives the snapshot as of the most recent candle. The window is not modified.
func (e *Engine) Compute(ctx context.Context, candles []domain.Candle) (domain.IndicatorSnapshot, error) {
	if len(candles) == 0 {
		return domain.IndicatorSnapshot{}, fmt.Errorf("empty candle window: %w", ports.ErrInsufficientData)
	}
	if err := ValidateWindow(candles); err != nil {
		return domain.IndicatorSnapshot{}, err
	}
	if last := candles[len(candles)-1].Close; last <= 0 {
		return domain.IndicatorSnapshot{}, fmt.Errorf("latest close %.8f is not positive: %w", last, ports.ErrInvalidInput)
	}

	ma, err := e.ma.Calculate(ctx, candles)
	if err != nil {
		return domain.IndicatorSnapshot{}, fmt.Errorf("computing MA: %w", err)
	}
	longMA, err := e.longMA.Calculate(ctx, candles)
	if err != nil {
		return domain.IndicatorSnapshot{}, fmt.Errorf("computing long MA: %w", err)
	}
	rsi, err := e.rsi.Calculate(ctx, candles)
	if err != nil {
		return domain.IndicatorSnapshot{}, fmt.Errorf("computing RSI: %w", err)
	}
	atr, err := e.atr.Calculate(ctx, candles)
	if err != nil {
		return domain.IndicatorSnapshot{}, fmt.Errorf("computing ATR: %w", err)
	}
	macd, err := e.macd.Compute(ctx, candles)
	if err != nil {
		return domain.IndicatorSnapshot{}, fmt.Errorf("computing MACD: %w", err)
	}
	fib, err := e.fib.Compute(ctx, candles)
	if err != nil {
		return domain.IndicatorSnapshot{}, fmt.Errorf("computing Fibonacci levels: %w", err)
	}

	last := candles[len(candles)-1]
	return domain.IndicatorSnapshot{
		Symbol:         last.Symbol,
		Timestamp:      last.OpenTime,
		CurrentPrice:   last.Close,
		MA:             ma,
		LongMA:         longMA,
		RSI:            rsi,
		ATR:            atr,
		MACDValue:      macd.Value,
		MACDSignalLine: macd.SignalLine,
		MACDHistogram:  macd.Histogram,
		MACDCross:      macd.Cross,
		FibHigh:        fib.High,
		FibLow:         fib.Low,
		FibLevels:      fib.Levels,
	}, nil
}

// ValidateWindow checks that timestamps strictly increase and OHLC values are finite with high >= low.
func ValidateWindow(candles []domain.Candle) error {
	for i, c := range candles {
		for _, v := range []float64{c.Open, c.High, c.Low, c.Close} {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("candle %d has non-finite price: %w", i, ports.ErrInvalidInput)
			}
		}
		if c.High < c.Low {
			return fmt.Errorf("candle %d has high %.8f below low %.8f: %w", i, c.High, c.Low, ports.ErrInvalidInput)
		}
		if i > 0 && !c.OpenTime.After(candles[i-1].OpenTime) {
			return fmt.Errorf("candle %d timestamp %s does not follow %s: %w", i, c.OpenTime, candles[i-1].OpenTime, ports.ErrInvalidInput)
		}
	}
	return nil
}
