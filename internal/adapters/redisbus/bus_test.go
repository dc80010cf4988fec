package redisbus

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptoSignalBot/internal/domain"
	"cryptoSignalBot/internal/ports"
)

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

type published struct {
	channel string
	payload []byte
}

type fakeRedis struct {
	data       map[string][]byte
	ttls       map[string]time.Duration
	published  []published
	setErr     error
	publishErr error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: make(map[string][]byte), ttls: make(map[string]time.Duration)}
}

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	if f.setErr != nil {
		return redis.NewStatusResult("", f.setErr)
	}
	f.data[key] = append([]byte(nil), value.([]byte)...)
	f.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	if v, ok := f.data[key]; ok {
		return redis.NewStringResult(string(v), nil)
	}
	return redis.NewStringResult("", redis.Nil)
}

func (f *fakeRedis) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	if f.publishErr != nil {
		return redis.NewIntResult(0, f.publishErr)
	}
	f.published = append(f.published, published{channel: channel, payload: message.([]byte)})
	return redis.NewIntResult(1, nil)
}

func approvedBuy() *domain.CycleResult {
	return &domain.CycleResult{
		Symbol:    "BTCUSDT",
		StartedAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		Snapshot: domain.IndicatorSnapshot{
			CurrentPrice: 42000, RSI: 55, ATR: 500, MA: 42500, MACDCross: domain.CrossBullish,
		},
		Recommendation: domain.Recommendation{Action: domain.ActionBuy, Confidence: 80, Trend: domain.TrendUp},
		Decision:       domain.RiskDecision{Approved: true, Reason: "risk checks passed"},
		Plan:           &domain.PositionPlan{Action: domain.ActionBuy, Quantity: 0.2, StopLossPrice: 41000, TakeProfitPrice: 43500},
		Fill:           &domain.Fill{OrderID: "PAPER-1"},
	}
}

func TestBus_RecordCycle(t *testing.T) {
	fake := newFakeRedis()
	bus := NewWithClient(fake, Config{Channel: "test:decisions", Logger: &mockLogger{}})

	require.NoError(t, bus.RecordCycle(context.Background(), approvedBuy()))

	raw, ok := fake.data["signals:latest:BTCUSDT"]
	require.True(t, ok)
	assert.Equal(t, defaultLatestTTL, fake.ttls["signals:latest:BTCUSDT"])
	require.Len(t, fake.published, 1)
	assert.Equal(t, "test:decisions", fake.published[0].channel)
	assert.Equal(t, raw, fake.published[0].payload)

	var msg Message
	require.NoError(t, json.Unmarshal(raw, &msg))
	assert.Equal(t, "BUY", msg.Action)
	assert.Equal(t, "up", msg.Trend)
	assert.Equal(t, "bullish", msg.MACDCross)
	assert.Equal(t, 0.2, msg.Quantity)
	assert.Equal(t, "PAPER-1", msg.OrderID)
	assert.True(t, msg.Approved)
}

func TestBus_RecordCycle_Errors(t *testing.T) {
	tests := []struct {
		name       string
		setErr     error
		publishErr error
		result     *domain.CycleResult
		wantErr    error
	}{
		{name: "nil result", result: nil, wantErr: ports.ErrInvalidRequest},
		{name: "set fails", setErr: errors.New("down"), result: approvedBuy(), wantErr: ports.ErrConnectionFailed},
		{name: "publish fails", publishErr: errors.New("down"), result: approvedBuy(), wantErr: ports.ErrConnectionFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := newFakeRedis()
			fake.setErr = tt.setErr
			fake.publishErr = tt.publishErr
			bus := NewWithClient(fake, Config{Logger: &mockLogger{}})

			err := bus.RecordCycle(context.Background(), tt.result)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestBus_Latest(t *testing.T) {
	fake := newFakeRedis()
	bus := NewWithClient(fake, Config{Logger: &mockLogger{}})
	ctx := context.Background()

	_, err := bus.Latest(ctx, "BTCUSDT")
	assert.ErrorIs(t, err, ports.ErrNotFound)

	require.NoError(t, bus.RecordCycle(ctx, approvedBuy()))
	msg, err := bus.Latest(ctx, "btcusdt")
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", msg.Symbol)
	assert.Equal(t, 42000.0, msg.Price)
}

func TestNew_AddressSelection(t *testing.T) {
	origNewClient := newRedisClient
	origPing := pingRedis
	t.Cleanup(func() {
		newRedisClient = origNewClient
		pingRedis = origPing
	})

	tests := []struct {
		name     string
		url      string
		wantAddr string
	}{
		{name: "default", url: "", wantAddr: "localhost:6379"},
		{name: "host port", url: "redis:9999", wantAddr: "redis:9999"},
		{name: "redis url", url: "redis://cache.local:6380/0", wantAddr: "cache.local:6380"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var capturedAddr string
			newRedisClient = func(opts *redis.Options) *redis.Client {
				capturedAddr = opts.Addr
				return redis.NewClient(opts)
			}
			pingRedis = func(ctx context.Context, client *redis.Client) error { return nil }

			bus, err := New(context.Background(), Config{URL: tt.url, Logger: &mockLogger{}})
			require.NoError(t, err)
			defer bus.Close()
			assert.Equal(t, tt.wantAddr, capturedAddr)
			assert.Equal(t, DefaultChannel, bus.channel)
		})
	}
}

func TestNew_PingFailure(t *testing.T) {
	origPing := pingRedis
	t.Cleanup(func() { pingRedis = origPing })
	pingRedis = func(ctx context.Context, client *redis.Client) error { return errors.New("refused") }

	_, err := New(context.Background(), Config{URL: "localhost:1", Logger: &mockLogger{}})
	assert.ErrorIs(t, err, ports.ErrConnectionFailed)
}
