package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"

	"cryptoSignalBot/internal/domain"
	"cryptoSignalBot/internal/ports"
)

const (
	// Base URLs
	baseURLProduction = "https://fapi.binance.com"
	baseURLTestnet    = "https://testnet.binancefuture.com"
)

// lotSize is the quantity filter for a symbol.
type lotSize struct {
	minQty   decimal.Decimal
	maxQty   decimal.Decimal
	stepSize decimal.Decimal
}

// Client implements ports.CandleSource, ports.BalanceProvider and ports.OrderExecutor
// on top of the Binance USDⓈ-M futures API.
type Client struct {
	futuresClient *futures.Client
	logger        ports.Logger

	mu       sync.Mutex
	lotSizes map[string]lotSize // exchange info cache, keyed by symbol
}

// Config holds configuration specific to the Binance client adapter.
type Config struct {
	APIKey     string
	SecretKey  string
	UseTestnet bool
	Logger     ports.Logger
}

// New creates a new Binance client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client")
	}
	if cfg.APIKey == "" || cfg.SecretKey == "" {
		// Public endpoints (candles) still work; private calls will fail authentication.
		cfg.Logger.Warn(context.Background(), "APIKey or SecretKey is empty. Client will only work for public endpoints.")
	}

	client := futures.NewClient(cfg.APIKey, cfg.SecretKey)

	// Set BaseURL directly instead of using global futures.UseTestnet
	if cfg.UseTestnet {
		client.BaseURL = baseURLTestnet
		cfg.Logger.Info(context.Background(), "Binance client configured for Testnet", map[string]interface{}{"baseURL": client.BaseURL})
	} else {
		client.BaseURL = baseURLProduction
		cfg.Logger.Info(context.Background(), "Binance client configured for Production", map[string]interface{}{"baseURL": client.BaseURL})
	}

	return &Client{
		futuresClient: client,
		logger:        cfg.Logger,
		lotSizes:      make(map[string]lotSize),
	}, nil
}

// handleError translates common Binance API errors into standardized ports errors.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message

		mappedErr := mapAPIErrorCode(apiErr.Code)
		c.logger.Error(ctx, err, fmt.Sprintf("%s failed with API error", operation), fields)
		return fmt.Errorf("%s failed: %w: %w", operation, mappedErr, err)
	}

	// Handle non-API errors (network, context cancellation, etc.)
	var finalErr error
	if errors.Is(err, context.DeadlineExceeded) {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	} else if errors.Is(err, context.Canceled) {
		finalErr = fmt.Errorf("%s operation canceled: %w: %w", operation, ports.ErrContextCanceled, err)
	} else if strings.Contains(err.Error(), "use of closed network connection") ||
		strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "connection reset by peer") {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrConnectionFailed, err)
	} else {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrUnknown, err)
	}

	c.logger.Error(ctx, err, fmt.Sprintf("%s failed", operation), fields)
	return finalErr
}

// mapAPIErrorCode maps Binance error codes to ports errors.
func mapAPIErrorCode(code int64) error {
	switch code {
	case -1003: // Too many requests
		return ports.ErrRateLimited
	case -1021: // Timestamp for this request is outside of the recvWindow
		return ports.ErrTimeout
	case -1022: // Signature for this request is not valid
		return ports.ErrAuthenticationFailed
	case -1100, -1101, -1102, -1103, -1104, -1105, -1106, -1111, -1115, -1116, -1117, -1120, -1121, -1125, -1127, -1128, -1130:
		return ports.ErrInvalidRequest
	case -2010, -2022: // New order rejected / ReduceOnly rejected
		return ports.ErrOrderPlacementFailed
	case -2013: // Order does not exist
		return ports.ErrOrderNotFound
	case -2014, -2015: // API-key format invalid / invalid key, IP or permissions
		return ports.ErrInvalidAPIKeys
	case -2019, -3005, -3041, -4047: // Margin or balance insufficient
		return ports.ErrInsufficientFunds
	case -4003, -4014, -4015: // Qty, price or leverage out of range
		return ports.ErrInvalidRequest
	default:
		return ports.ErrUnknown
	}
}

// SetServerTime synchronizes the client's time with the server's time.
func (c *Client) SetServerTime(ctx context.Context) error {
	op := "SetServerTime"
	_, err := c.futuresClient.NewSetServerTimeService().Do(ctx)
	if err != nil {
		return c.handleError(ctx, err, op)
	}
	c.logger.Debug(ctx, op+" successful")
	return nil
}

// Ping checks the connectivity to the exchange API.
func (c *Client) Ping(ctx context.Context) error {
	op := "Ping"
	if err := c.futuresClient.NewPingService().Do(ctx); err != nil {
		return c.handleError(ctx, fmt.Errorf("ping failed: %w", err), op)
	}
	c.logger.Debug(ctx, op+" successful")
	return nil
}

// GetAccountBalance retrieves the wallet balance for a specific asset (e.g., "USDT").
func (c *Client) GetAccountBalance(ctx context.Context, asset string) (float64, error) {
	op := "GetAccountBalance"
	account, err := c.futuresClient.NewGetAccountService().Do(ctx)
	if err != nil {
		return 0, c.handleError(ctx, err, op)
	}

	for _, bal := range account.Assets {
		if bal.Asset == asset {
			balance, err := strconv.ParseFloat(bal.WalletBalance, 64)
			if err != nil {
				parseErr := fmt.Errorf("could not parse balance '%s' for asset %s: %w", bal.WalletBalance, asset, err)
				return 0, c.handleError(ctx, parseErr, op)
			}
			return balance, nil
		}
	}

	err = fmt.Errorf("asset %s not found in account balance: %w", asset, ports.ErrNotFound)
	c.logger.Warn(ctx, op+": asset not found", map[string]interface{}{"asset": asset})
	return 0, err
}

// GetCandles retrieves the latest closed and open candles for the given symbol.
func (c *Client) GetCandles(ctx context.Context, symbol, interval string, limit int) ([]domain.Candle, error) {
	op := "GetCandles"
	klines, err := c.futuresClient.NewKlinesService().Symbol(symbol).Interval(interval).Limit(limit).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	candles := make([]domain.Candle, 0, len(klines))
	for _, k := range klines {
		candle, err := translateKline(k, symbol, interval)
		if err != nil {
			return nil, c.handleError(ctx, fmt.Errorf("failed to translate kline: %w", err), op)
		}
		candles = append(candles, candle)
	}
	c.logger.Debug(ctx, op+" successful", map[string]interface{}{"symbol": symbol, "interval": interval, "count": len(candles)})
	return candles, nil
}

// GetCandlesRange fetches all candles for a symbol/interval between start and end time.
func (c *Client) GetCandlesRange(ctx context.Context, symbol, interval string, start, end time.Time) ([]domain.Candle, error) {
	op := "GetCandlesRange"
	var all []domain.Candle
	const maxLimit = 1500
	from := start

	for {
		klines, err := c.futuresClient.NewKlinesService().
			Symbol(symbol).
			Interval(interval).
			StartTime(from.UnixMilli()).
			EndTime(end.UnixMilli()).
			Limit(maxLimit).
			Do(ctx)
		if err != nil {
			return nil, c.handleError(ctx, err, op)
		}
		if len(klines) == 0 {
			break
		}
		for _, k := range klines {
			candle, err := translateKline(k, symbol, interval)
			if err != nil {
				return nil, c.handleError(ctx, fmt.Errorf("failed to translate kline range: %w", err), op)
			}
			all = append(all, candle)
		}
		last := klines[len(klines)-1]
		from = time.UnixMilli(last.CloseTime + 1)
		if from.After(end) || len(klines) < maxLimit {
			break
		}
	}

	return all, nil
}

// ExecuteOrder quantizes the quantity to the symbol's lot size and places a market order.
func (c *Client) ExecuteOrder(ctx context.Context, req domain.OrderRequest) (*domain.Fill, error) {
	op := "ExecuteOrder"
	if !req.Action.IsDirectional() {
		return nil, fmt.Errorf("%s: unsupported action %s: %w", op, req.Action, ports.ErrInvalidRequest)
	}

	lot, err := c.lotSizeFor(ctx, req.Symbol)
	if err != nil {
		return nil, err
	}
	qty, err := quantizeQuantity(req.Quantity, lot)
	if err != nil {
		c.logger.Warn(ctx, op+": quantity rejected by lot size filter", map[string]interface{}{
			"symbol": req.Symbol, "quantity": req.Quantity, "stepSize": lot.stepSize.String(), "minQty": lot.minQty.String(),
		})
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	order, err := c.futuresClient.NewCreateOrderService().
		Symbol(req.Symbol).
		Side(futures.SideType(req.Action)).
		Type(futures.OrderTypeMarket).
		Quantity(qty).
		Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	fill := translateOrderResponse(order)
	c.logger.Info(ctx, op+" successful", map[string]interface{}{
		"symbol":   req.Symbol,
		"side":     req.Action,
		"quantity": qty,
		"orderID":  fill.OrderID,
		"avgPrice": fill.AveragePrice,
		"status":   fill.Status,
	})
	return fill, nil
}

// lotSizeFor returns the cached LOT_SIZE filter for symbol, loading exchange info on first use.
func (c *Client) lotSizeFor(ctx context.Context, symbol string) (lotSize, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if lot, ok := c.lotSizes[symbol]; ok {
		return lot, nil
	}

	op := "ExchangeInfo"
	info, err := c.futuresClient.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return lotSize{}, c.handleError(ctx, err, op)
	}
	for i := range info.Symbols {
		s := &info.Symbols[i]
		f := s.LotSizeFilter()
		if f == nil {
			continue
		}
		lot, err := parseLotSize(f.MinQuantity, f.MaxQuantity, f.StepSize)
		if err != nil {
			c.logger.Warn(ctx, op+": skipping symbol with unparsable lot size", map[string]interface{}{"symbol": s.Symbol, "error": err.Error()})
			continue
		}
		c.lotSizes[s.Symbol] = lot
	}

	lot, ok := c.lotSizes[symbol]
	if !ok {
		return lotSize{}, fmt.Errorf("lot size for symbol %s: %w", symbol, ports.ErrNotFound)
	}
	return lot, nil
}

// --- Translation Helpers ---

func parseLotSize(minQty, maxQty, stepSize string) (lotSize, error) {
	minD, err := decimal.NewFromString(minQty)
	if err != nil {
		return lotSize{}, fmt.Errorf("parsing minQty '%s': %w", minQty, err)
	}
	maxD, err := decimal.NewFromString(maxQty)
	if err != nil {
		return lotSize{}, fmt.Errorf("parsing maxQty '%s': %w", maxQty, err)
	}
	stepD, err := decimal.NewFromString(stepSize)
	if err != nil {
		return lotSize{}, fmt.Errorf("parsing stepSize '%s': %w", stepSize, err)
	}
	return lotSize{minQty: minD, maxQty: maxD, stepSize: stepD}, nil
}

// quantizeQuantity floors qty to the step size and checks the min/max bounds.
func quantizeQuantity(qty float64, lot lotSize) (string, error) {
	q := decimal.NewFromFloat(qty)
	if lot.stepSize.IsPositive() {
		q = q.Div(lot.stepSize).Floor().Mul(lot.stepSize)
	}
	if !q.IsPositive() || q.LessThan(lot.minQty) {
		return "", fmt.Errorf("quantity %s below minimum lot %s: %w", q.String(), lot.minQty.String(), ports.ErrInvalidRequest)
	}
	if lot.maxQty.IsPositive() && q.GreaterThan(lot.maxQty) {
		q = lot.maxQty
	}
	return q.String(), nil
}

func translateOrderResponse(order *futures.CreateOrderResponse) *domain.Fill {
	if order == nil {
		return nil
	}
	avgPrice, _ := strconv.ParseFloat(order.AvgPrice, 64)
	execQty, _ := strconv.ParseFloat(order.ExecutedQuantity, 64)

	return &domain.Fill{
		OrderID:          strconv.FormatInt(order.OrderID, 10),
		Symbol:           order.Symbol,
		Side:             domain.ParseAction(string(order.Side)),
		ExecutedQuantity: execQty,
		AveragePrice:     avgPrice,
		Status:           string(order.Status),
		Timestamp:        time.UnixMilli(order.UpdateTime),
	}
}

func translateKline(bk *futures.Kline, symbol, interval string) (domain.Candle, error) {
	if bk == nil {
		return domain.Candle{}, errors.New("received nil kline")
	}
	open, err := strconv.ParseFloat(bk.Open, 64)
	if err != nil {
		return domain.Candle{}, fmt.Errorf("parsing open price '%s': %w", bk.Open, err)
	}
	high, err := strconv.ParseFloat(bk.High, 64)
	if err != nil {
		return domain.Candle{}, fmt.Errorf("parsing high price '%s': %w", bk.High, err)
	}
	low, err := strconv.ParseFloat(bk.Low, 64)
	if err != nil {
		return domain.Candle{}, fmt.Errorf("parsing low price '%s': %w", bk.Low, err)
	}
	cls, err := strconv.ParseFloat(bk.Close, 64)
	if err != nil {
		return domain.Candle{}, fmt.Errorf("parsing close price '%s': %w", bk.Close, err)
	}
	vol, err := strconv.ParseFloat(bk.Volume, 64)
	if err != nil {
		return domain.Candle{}, fmt.Errorf("parsing volume '%s': %w", bk.Volume, err)
	}

	return domain.Candle{
		OpenTime:  time.UnixMilli(bk.OpenTime),
		CloseTime: time.UnixMilli(bk.CloseTime),
		Symbol:    symbol,   // Use passed symbol as it's not in futures.Kline
		Interval:  interval, // Use passed interval
		Open:      open,
		High:      high,
		Low:       low,
		Close:     cls,
		Volume:    vol,
	}, nil
}
