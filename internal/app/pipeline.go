package app

import (
	"fmt"

	"cryptoSignalBot/config"
	"cryptoSignalBot/internal/ports"
	"cryptoSignalBot/internal/risk"
	"cryptoSignalBot/internal/strategy"
	"cryptoSignalBot/internal/strategy/indicators"
)

// Pipeline groups the pure decision components built from configuration.
type Pipeline struct {
	Engine *indicators.Engine
	Fuser  *strategy.Fuser
	Gate   *risk.Gate
	Sizer  *risk.Sizer
}

// NewPipeline builds the indicator engine, fuser, risk gate and sizer from cfg.
func NewPipeline(cfg *config.Config, logger ports.Logger) (*Pipeline, error) {
	maType, err := indicators.ParseMovingAverageType(cfg.MAType)
	if err != nil {
		return nil, err
	}
	engine, err := indicators.NewEngine(indicators.EngineConfig{
		MAPeriod:     cfg.MAPeriod,
		LongMAPeriod: cfg.LongMAPeriod,
		MAType:       maType,
		RSIPeriod:    cfg.RSIPeriod,
		ATRPeriod:    cfg.ATRPeriod,
		MACDFast:     cfg.MACDFast,
		MACDSlow:     cfg.MACDSlow,
		MACDSignal:   cfg.MACDSignal,
		FibLookback:  cfg.FibLookback,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create indicator engine: %w", err)
	}

	precedence, err := strategy.ParsePrecedence(cfg.SignalPrecedence)
	if err != nil {
		return nil, err
	}
	fuserCfg := strategy.DefaultConfig()
	fuserCfg.FibTolerance = cfg.FibTolerance
	fuserCfg.DefaultConfidence = cfg.DefaultConfidence
	fuserCfg.Precedence = precedence
	fuser, err := strategy.New(fuserCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create signal fuser: %w", err)
	}

	gate, err := risk.NewGate(risk.GateConfig{
		RSIOverbought: cfg.RiskRSIOverbought,
		RSIOversold:   cfg.RiskRSIOversold,
		MinConfidence: cfg.RiskMinConfidence,
		MaxATRRatio:   cfg.RiskMaxATRRatio,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create risk gate: %w", err)
	}

	sizer, err := risk.NewSizer(risk.SizerConfig{
		RiskPercent:       cfg.RiskPercentage,
		StopLossPercent:   cfg.StopLossPercent,
		TakeProfitPercent: cfg.TakeProfitPercent,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create position sizer: %w", err)
	}

	return &Pipeline{Engine: engine, Fuser: fuser, Gate: gate, Sizer: sizer}, nil
}

// NewService builds a SignalService on top of the pipeline.
func (p *Pipeline) NewService(
	cfg *config.Config,
	logger ports.Logger,
	candles ports.CandleSource,
	balances ports.BalanceProvider,
	executor ports.OrderExecutor,
	opts ...Option,
) (*SignalService, error) {
	return NewSignalService(cfg, logger, candles, balances, executor, p.Engine, p.Fuser, p.Gate, p.Sizer, opts...)
}
