package redisbus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"cryptoSignalBot/internal/domain"
	"cryptoSignalBot/internal/ports"
)

const (
	DefaultChannel   = "signals:decisions"
	latestKeyPrefix  = "signals:latest:"
	defaultLatestTTL = 24 * time.Hour
)

var (
	newRedisClient = func(opts *redis.Options) *redis.Client {
		return redis.NewClient(opts)
	}
	pingRedis = func(ctx context.Context, client *redis.Client) error {
		return client.Ping(ctx).Err()
	}
	parseRedisURL = redis.ParseURL
)

// Config holds the decision bus settings.
type Config struct {
	URL     string // host:port or redis:// URL
	Channel string
	TTL     time.Duration // expiry of the latest-decision key
	Logger  ports.Logger
}

// Client is the subset of the go-redis API the bus needs.
type Client interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// Bus publishes every cycle result to Redis: the latest decision per symbol is
// kept under a key and the same payload is broadcast on a channel.
type Bus struct {
	client  Client
	closer  func() error
	channel string
	ttl     time.Duration
	logger  ports.Logger
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, cfg Config) (*Bus, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for redis bus: %w", ports.ErrConfigurationError)
	}
	addr := cfg.URL
	if addr == "" {
		addr = "localhost:6379"
	}

	opts := &redis.Options{Addr: addr}
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		parsed, err := parseRedisURL(addr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse redis url: %w: %w", ports.ErrConfigurationError, err)
		}
		opts = parsed
	}

	client := newRedisClient(opts)
	if err := pingRedis(ctx, client); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w: %w", opts.Addr, ports.ErrConnectionFailed, err)
	}
	cfg.Logger.Info(ctx, "Connected to Redis", map[string]interface{}{"addr": opts.Addr})

	b := NewWithClient(client, cfg)
	b.closer = client.Close
	return b, nil
}

// NewWithClient builds a bus on an existing client.
func NewWithClient(client Client, cfg Config) *Bus {
	channel := cfg.Channel
	if channel == "" {
		channel = DefaultChannel
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultLatestTTL
	}
	return &Bus{client: client, channel: channel, ttl: ttl, logger: cfg.Logger}
}

// LatestKey returns the key holding the latest decision for a symbol.
func LatestKey(symbol string) string {
	return latestKeyPrefix + strings.ToUpper(symbol)
}

// Message is the JSON payload written to Redis.
type Message struct {
	Symbol     string    `json:"symbol"`
	Timestamp  time.Time `json:"timestamp"`
	Price      float64   `json:"price"`
	RSI        float64   `json:"rsi"`
	ATR        float64   `json:"atr"`
	MA         float64   `json:"ma"`
	Trend      string    `json:"trend"`
	MACDCross  string    `json:"macd_cross"`
	Action     string    `json:"action"`
	Confidence float64   `json:"confidence"`
	Rationale  string    `json:"rationale"`
	Approved   bool      `json:"approved"`
	Reason     string    `json:"reason"`
	Rule       string    `json:"rule,omitempty"`
	Quantity   float64   `json:"quantity,omitempty"`
	StopLoss   float64   `json:"stop_loss,omitempty"`
	TakeProfit float64   `json:"take_profit,omitempty"`
	OrderID    string    `json:"order_id,omitempty"`
}

// NewMessage flattens a cycle result into its wire form.
func NewMessage(result *domain.CycleResult) Message {
	m := Message{
		Symbol:     result.Symbol,
		Timestamp:  result.StartedAt.UTC(),
		Price:      result.Snapshot.CurrentPrice,
		RSI:        result.Snapshot.RSI,
		ATR:        result.Snapshot.ATR,
		MA:         result.Snapshot.MA,
		Trend:      string(result.Recommendation.Trend),
		MACDCross:  string(result.Snapshot.MACDCross),
		Action:     string(result.Recommendation.Action),
		Confidence: result.Recommendation.Confidence,
		Rationale:  result.Recommendation.Rationale,
		Approved:   result.Decision.Approved,
		Reason:     result.Decision.Reason,
		Rule:       result.Decision.Rule,
	}
	if result.Plan != nil {
		m.Quantity = result.Plan.Quantity
		m.StopLoss = result.Plan.StopLossPrice
		m.TakeProfit = result.Plan.TakeProfitPrice
	}
	if result.Fill != nil {
		m.OrderID = result.Fill.OrderID
	}
	return m
}

// RecordCycle stores the latest decision and publishes it.
func (b *Bus) RecordCycle(ctx context.Context, result *domain.CycleResult) error {
	if result == nil {
		return fmt.Errorf("nil cycle result: %w", ports.ErrInvalidRequest)
	}
	payload, err := json.Marshal(NewMessage(result))
	if err != nil {
		return fmt.Errorf("failed to encode decision: %w", err)
	}

	if err := b.client.Set(ctx, LatestKey(result.Symbol), payload, b.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store decision for %s: %w: %w", result.Symbol, ports.ErrConnectionFailed, err)
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish decision for %s: %w: %w", result.Symbol, ports.ErrConnectionFailed, err)
	}
	b.logger.Debug(ctx, "Decision published", map[string]interface{}{"symbol": result.Symbol, "channel": b.channel})
	return nil
}

// Latest reads back the last decision stored for a symbol.
func (b *Bus) Latest(ctx context.Context, symbol string) (*Message, error) {
	raw, err := b.client.Get(ctx, LatestKey(symbol)).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("no decision for %s: %w", symbol, ports.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read decision for %s: %w: %w", symbol, ports.ErrConnectionFailed, err)
	}
	var m Message
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("failed to decode decision for %s: %w", symbol, err)
	}
	return &m, nil
}

// Close releases the underlying connection when the bus owns it.
func (b *Bus) Close() error {
	if b.closer != nil {
		return b.closer()
	}
	return nil
}
