package influxsink

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptoSignalBot/internal/domain"
	"cryptoSignalBot/internal/ports"
)

type fakeWriter struct {
	points []*write.Point
	err    error
}

func (f *fakeWriter) WritePoint(ctx context.Context, point ...*write.Point) error {
	if f.err != nil {
		return f.err
	}
	f.points = append(f.points, point...)
	return nil
}

func holdCycle() *domain.CycleResult {
	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return &domain.CycleResult{
		Symbol:    "BTCUSDT",
		StartedAt: ts.Add(time.Minute),
		Snapshot: domain.IndicatorSnapshot{
			Timestamp:    ts,
			CurrentPrice: 42000,
			RSI:          50,
			ATR:          400,
			FibLevels:    map[float64]float64{0.5: 42000, 0.618: 41528},
		},
		Recommendation: domain.Recommendation{Action: domain.ActionHold, Confidence: 70, Trend: domain.TrendFlat},
		Decision:       domain.RiskDecision{Approved: true, Reason: "risk checks passed"},
	}
}

func tagMap(p *write.Point) map[string]string {
	out := map[string]string{}
	for _, t := range p.TagList() {
		out[t.Key] = t.Value
	}
	return out
}

func fieldMap(p *write.Point) map[string]interface{} {
	out := map[string]interface{}{}
	for _, f := range p.FieldList() {
		out[f.Key] = f.Value
	}
	return out
}

func TestNewSnapshotPoint(t *testing.T) {
	res := holdCycle()
	p := NewSnapshotPoint(res)

	assert.Equal(t, Measurement, p.Name())
	assert.True(t, p.Time().Equal(res.Snapshot.Timestamp))
	assert.Equal(t, map[string]string{"symbol": "BTCUSDT", "action": "HOLD", "trend": "flat"}, tagMap(p))

	fields := fieldMap(p)
	assert.Equal(t, 42000.0, fields["price"])
	assert.Equal(t, 50.0, fields["rsi"])
	assert.Equal(t, true, fields["approved"])
	assert.Equal(t, 41528.0, fields["fib_0.618"])
	assert.NotContains(t, fields, "fib_0.382")
	assert.NotContains(t, fields, "quantity")
}

func TestNewSnapshotPoint_WithPlan(t *testing.T) {
	res := holdCycle()
	res.Snapshot.Timestamp = time.Time{}
	res.Plan = &domain.PositionPlan{Quantity: 0.2, RiskReward: 1.5}

	p := NewSnapshotPoint(res)
	assert.True(t, p.Time().Equal(res.StartedAt))
	fields := fieldMap(p)
	assert.Equal(t, 0.2, fields["quantity"])
	assert.Equal(t, 1.5, fields["risk_reward"])
}

func TestSink_RecordCycle(t *testing.T) {
	w := &fakeWriter{}
	s := &Sink{writer: w}

	require.NoError(t, s.RecordCycle(context.Background(), holdCycle()))
	require.Len(t, w.points, 1)

	assert.ErrorIs(t, s.RecordCycle(context.Background(), nil), ports.ErrInvalidRequest)

	w.err = errors.New("503")
	assert.ErrorIs(t, s.RecordCycle(context.Background(), holdCycle()), ports.ErrConnectionFailed)
}

func TestNew_RequiresSettings(t *testing.T) {
	_, err := New(context.Background(), Config{URL: "http://localhost:8086"})
	assert.ErrorIs(t, err, ports.ErrConfigurationError)
}
