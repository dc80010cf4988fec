package influxsink

import (
	"context"
	"fmt"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"cryptoSignalBot/internal/domain"
	"cryptoSignalBot/internal/ports"
)

// Measurement is the name of the per-cycle indicator point.
const Measurement = "indicator_snapshot"

// Config holds InfluxDB connection settings.
type Config struct {
	URL    string
	Token  string
	Org    string
	Bucket string
	Logger ports.Logger
}

// pointWriter is the blocking write API subset used by the sink.
type pointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// Sink writes one indicator_snapshot point per cycle.
type Sink struct {
	client influxdb2.Client
	writer pointWriter
	logger ports.Logger
}

// New creates a sink and checks the server health.
func New(ctx context.Context, cfg Config) (*Sink, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for influx sink: %w", ports.ErrConfigurationError)
	}
	if cfg.URL == "" || cfg.Org == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("influx url, org and bucket are required: %w", ports.ErrConfigurationError)
	}
	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	health, err := client.Health(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to reach InfluxDB at %s: %w: %w", cfg.URL, ports.ErrConnectionFailed, err)
	}
	if health == nil || health.Status != "pass" {
		client.Close()
		return nil, fmt.Errorf("InfluxDB not in 'pass' state: %w", ports.ErrConnectionFailed)
	}
	cfg.Logger.Info(ctx, "Connected to InfluxDB", map[string]interface{}{"url": cfg.URL, "bucket": cfg.Bucket})

	return &Sink{
		client: client,
		writer: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		logger: cfg.Logger,
	}, nil
}

// Close releases the client.
func (s *Sink) Close() {
	if s.client != nil {
		s.client.Close()
	}
}

// NewSnapshotPoint builds the indicator point for a cycle.
func NewSnapshotPoint(result *domain.CycleResult) *write.Point {
	snap := result.Snapshot
	rec := result.Recommendation
	fields := map[string]interface{}{
		"price":          snap.CurrentPrice,
		"ma":             snap.MA,
		"long_ma":        snap.LongMA,
		"rsi":            snap.RSI,
		"atr":            snap.ATR,
		"macd":           snap.MACDValue,
		"macd_signal":    snap.MACDSignalLine,
		"macd_histogram": snap.MACDHistogram,
		"fib_high":       snap.FibHigh,
		"fib_low":        snap.FibLow,
		"confidence":     rec.Confidence,
		"approved":       result.Decision.Approved,
	}
	for _, r := range domain.FibRatios {
		if p, ok := snap.FibLevel(r); ok {
			fields[fmt.Sprintf("fib_%g", r)] = p
		}
	}
	if result.Plan != nil {
		fields["quantity"] = result.Plan.Quantity
		fields["risk_reward"] = result.Plan.RiskReward
	}

	ts := snap.Timestamp
	if ts.IsZero() {
		ts = result.StartedAt
	}
	return influxdb2.NewPoint(
		Measurement,
		map[string]string{
			"symbol": result.Symbol,
			"action": string(rec.Action),
			"trend":  string(rec.Trend),
		},
		fields,
		ts,
	)
}

// RecordCycle writes the snapshot point for a cycle.
func (s *Sink) RecordCycle(ctx context.Context, result *domain.CycleResult) error {
	if result == nil {
		return fmt.Errorf("nil cycle result: %w", ports.ErrInvalidRequest)
	}
	if err := s.writer.WritePoint(ctx, NewSnapshotPoint(result)); err != nil {
		return fmt.Errorf("failed to write snapshot for %s: %w: %w", result.Symbol, ports.ErrConnectionFailed, err)
	}
	return nil
}
