package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/jpillora/backoff"

	"fundingchart/internal/domain"
	"fundingchart/internal/ports"
)

const (
	// Base URLs
	spotURLProduction    = "https://api.binance.com"
	spotURLTestnet       = "https://testnet.binance.vision"
	futuresURLProduction = "https://fapi.binance.com"
	futuresURLTestnet    = "https://testnet.binancefuture.com"
)

// Client implements ports.MarketDataClient and ports.PriceStreamer using the
// go-binance library, one spot client and one futures client.
type Client struct {
	spotClient           *binance.Client
	futuresClient        *futures.Client
	logger               ports.Logger
	reconnectDelay       time.Duration
	maxReconnectAttempts int
}

// Config holds configuration specific to the Binance client adapter.
// Only public endpoints are used, so API keys are optional.
type Config struct {
	APIKey               string
	SecretKey            string
	UseTestnet           bool
	Logger               ports.Logger
	ReconnectDelay       time.Duration // Initial reconnect delay (e.g., 1 * time.Second)
	MaxReconnectAttempts int           // Max attempts before a stream goes idle
}

// New creates a new Binance client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client")
	}

	spotClient := binance.NewClient(cfg.APIKey, cfg.SecretKey)
	futuresClient := futures.NewClient(cfg.APIKey, cfg.SecretKey)

	// Set BaseURL directly instead of using the library's global testnet flag
	if cfg.UseTestnet {
		spotClient.BaseURL = spotURLTestnet
		futuresClient.BaseURL = futuresURLTestnet
		cfg.Logger.Info(context.Background(), "Binance client configured for Testnet")
	} else {
		spotClient.BaseURL = spotURLProduction
		futuresClient.BaseURL = futuresURLProduction
	}

	reconnectDelay := cfg.ReconnectDelay
	if reconnectDelay <= 0 {
		reconnectDelay = 1 * time.Second
	}
	maxAttempts := cfg.MaxReconnectAttempts
	if maxAttempts <= 0 {
		maxAttempts = 10
	}

	return &Client{
		spotClient:           spotClient,
		futuresClient:        futuresClient,
		logger:               cfg.Logger,
		reconnectDelay:       reconnectDelay,
		maxReconnectAttempts: maxAttempts,
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

		var mappedErr error
		switch apiErr.Code {
		case -1003: // Too many requests
			mappedErr = ports.ErrRateLimited
		case -1021: // Timestamp outside of the recvWindow
			mappedErr = ports.ErrTimeout
		case -1100, -1101, -1102, -1103, -1104, -1105, -1106, -1111, -1115, -1116, -1120, -1121, -1127, -1130: // Parameter/Request format errors
			mappedErr = ports.ErrInvalidRequest
		default:
			mappedErr = ports.ErrUnknown
		}
		finalErr := fmt.Errorf("%s failed: %w: %w", operation, mappedErr, err)
		c.logger.Error(ctx, err, fmt.Sprintf("%s failed with API error", operation), fields)
		return finalErr
	}

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

// GetKlines retrieves up to limit raw candles for the given market, oldest
// first. A non-zero endTime bounds the batch (inclusive upstream bound).
func (c *Client) GetKlines(ctx context.Context, market domain.Market, symbol, interval string, limit int, endTime time.Time) ([]domain.RawCandle, error) {
	switch market {
	case domain.MarketSpot:
		return c.getSpotKlines(ctx, symbol, interval, limit, endTime)
	case domain.MarketFutures:
		return c.getFuturesKlines(ctx, symbol, interval, limit, endTime)
	default:
		return nil, fmt.Errorf("%w: unknown market %q", ports.ErrInvalidRequest, market)
	}
}

func (c *Client) getSpotKlines(ctx context.Context, symbol, interval string, limit int, endTime time.Time) ([]domain.RawCandle, error) {
	op := "GetSpotKlines"
	svc := c.spotClient.NewKlinesService().Symbol(symbol).Interval(interval).Limit(limit)
	if !endTime.IsZero() {
		svc = svc.EndTime(endTime.UnixMilli())
	}
	klines, err := svc.Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	candles := make([]domain.RawCandle, 0, len(klines))
	for _, k := range klines {
		rc, err := translateKline(k.OpenTime, k.CloseTime, k.Open, k.High, k.Low, k.Close)
		if err != nil {
			// Malformed record: drop it and keep the rest of the batch.
			c.logger.Warn(ctx, op+": Dropping malformed kline record", map[string]interface{}{
				"openTime": k.OpenTime,
				"error":    err.Error(),
			})
			continue
		}
		candles = append(candles, rc)
	}
	return candles, nil
}

func (c *Client) getFuturesKlines(ctx context.Context, symbol, interval string, limit int, endTime time.Time) ([]domain.RawCandle, error) {
	op := "GetFuturesKlines"
	svc := c.futuresClient.NewKlinesService().Symbol(symbol).Interval(interval).Limit(limit)
	if !endTime.IsZero() {
		svc = svc.EndTime(endTime.UnixMilli())
	}
	klines, err := svc.Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	candles := make([]domain.RawCandle, 0, len(klines))
	for _, k := range klines {
		rc, err := translateKline(k.OpenTime, k.CloseTime, k.Open, k.High, k.Low, k.Close)
		if err != nil {
			c.logger.Warn(ctx, op+": Dropping malformed kline record", map[string]interface{}{
				"openTime": k.OpenTime,
				"error":    err.Error(),
			})
			continue
		}
		candles = append(candles, rc)
	}
	return candles, nil
}

// GetFundingRateHistory retrieves up to limit of the most recent funding
// settlements, oldest first.
func (c *Client) GetFundingRateHistory(ctx context.Context, symbol string, limit int) ([]domain.FundingSample, error) {
	op := "GetFundingRateHistory"
	rates, err := c.futuresClient.NewFundingRateService().Symbol(symbol).Limit(limit).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	samples := make([]domain.FundingSample, 0, len(rates))
	for _, r := range rates {
		rate, err := strconv.ParseFloat(r.FundingRate, 64)
		if err != nil {
			c.logger.Warn(ctx, op+": Dropping malformed funding record", map[string]interface{}{
				"fundingTime": r.FundingTime,
				"error":       err.Error(),
			})
			continue
		}
		samples = append(samples, domain.FundingSample{
			Time:   time.UnixMilli(r.FundingTime),
			Rate8h: rate * 100, // upstream reports a fraction; the chart works in percent
		})
	}
	sort.Slice(samples, func(i, j int) bool {
		return samples[i].Time.Before(samples[j].Time)
	})
	return samples, nil
}

// GetCurrentFundingRate retrieves the latest funding rate from the premium
// index, falling back to the newest history record when the field is absent.
func (c *Client) GetCurrentFundingRate(ctx context.Context, symbol string) (domain.FundingSample, error) {
	op := "GetCurrentFundingRate"
	indexes, err := c.futuresClient.NewPremiumIndexService().Symbol(symbol).Do(ctx)
	if err != nil {
		return domain.FundingSample{}, c.handleError(ctx, err, op)
	}

	if len(indexes) > 0 && indexes[0].LastFundingRate != "" {
		rate, err := strconv.ParseFloat(indexes[0].LastFundingRate, 64)
		if err == nil {
			return domain.FundingSample{
				Time:   time.UnixMilli(indexes[0].Time),
				Rate8h: rate * 100,
			}, nil
		}
		c.logger.Warn(ctx, op+": Could not parse premium index funding rate, falling back to history", map[string]interface{}{
			"lastFundingRate": indexes[0].LastFundingRate,
			"error":           err.Error(),
		})
	}

	history, err := c.GetFundingRateHistory(ctx, symbol, 1)
	if err != nil {
		return domain.FundingSample{}, err
	}
	if len(history) == 0 {
		return domain.FundingSample{}, fmt.Errorf("%s: no funding data available: %w", op, ports.ErrNotFound)
	}
	return history[len(history)-1], nil
}

// StreamSpotPrice starts a reconnecting stream of last-traded spot prices.
func (c *Client) StreamSpotPrice(ctx context.Context, symbol string, handler func(price float64, ts time.Time), errHandler func(err error)) (doneCh chan struct{}, stopCh chan struct{}, err error) {
	op := "StreamSpotPrice"
	connect := func(innerErrHandler func(error)) (chan struct{}, chan struct{}, error) {
		return binance.WsMarketStatServe(symbol, func(event *binance.WsMarketStatEvent) {
			price, perr := strconv.ParseFloat(event.LastPrice, 64)
			if perr != nil {
				c.logger.Warn(ctx, op+": Dropping malformed ticker message", map[string]interface{}{"lastPrice": event.LastPrice})
				return
			}
			handler(price, time.UnixMilli(event.Time))
		}, innerErrHandler)
	}
	return c.serveLoop(ctx, op, symbol, connect, errHandler)
}

// StreamMarkPrice starts a reconnecting stream of futures mark prices.
func (c *Client) StreamMarkPrice(ctx context.Context, symbol string, handler func(price float64, ts time.Time), errHandler func(err error)) (doneCh chan struct{}, stopCh chan struct{}, err error) {
	op := "StreamMarkPrice"
	connect := func(innerErrHandler func(error)) (chan struct{}, chan struct{}, error) {
		return futures.WsMarkPriceServe(symbol, func(event *futures.WsMarkPriceEvent) {
			price, perr := strconv.ParseFloat(event.MarkPrice, 64)
			if perr != nil {
				c.logger.Warn(ctx, op+": Dropping malformed mark price message", map[string]interface{}{"markPrice": event.MarkPrice})
				return
			}
			handler(price, time.UnixMilli(event.Time))
		}, innerErrHandler)
	}
	return c.serveLoop(ctx, op, symbol, connect, errHandler)
}

// serveLoop wraps a go-binance Ws*Serve connection in a reconnection loop:
// exponential backoff between attempts, a capped attempt budget, and a
// done/stop channel pair mirroring the library's own contract. When the
// budget is exhausted doneCh closes and the stream goes permanently idle.
func (c *Client) serveLoop(ctx context.Context, op, symbol string, connect func(errHandler func(error)) (chan struct{}, chan struct{}, error), errHandler func(err error)) (doneCh chan struct{}, stopCh chan struct{}, err error) {
	wsCtx, cancelWs := context.WithCancel(ctx)

	innerErrHandler := func(err error) {
		translated := c.handleError(wsCtx, err, op+" WebSocket")
		errHandler(translated)
	}

	go func() {
		defer cancelWs()

		retry := &backoff.Backoff{
			Min:    c.reconnectDelay,
			Max:    2 * time.Minute,
			Factor: 2,
			Jitter: true,
		}
		attempt := 0
		for {
			select {
			case <-wsCtx.Done():
				return
			default:
			}

			innerDoneCh, innerStopCh, connectErr := connect(innerErrHandler)
			if connectErr != nil {
				c.handleError(wsCtx, connectErr, op+" connection attempt")
				attempt++
				if attempt >= c.maxReconnectAttempts {
					c.logger.Error(wsCtx, connectErr, op+": Max reconnection attempts exceeded, stream going idle", map[string]interface{}{
						"symbol":      symbol,
						"maxAttempts": c.maxReconnectAttempts,
					})
					return
				}
				delay := retry.Duration()
				c.logger.Info(wsCtx, op+": Connection failed, retrying...", map[string]interface{}{
					"symbol":  symbol,
					"attempt": attempt + 1,
					"delay":   delay.String(),
				})
				select {
				case <-time.After(delay):
					continue
				case <-wsCtx.Done():
					return
				}
			}

			c.logger.Info(wsCtx, op+": Stream connected", map[string]interface{}{"symbol": symbol})
			attempt = 0
			retry.Reset()

			select {
			case <-innerDoneCh:
				c.logger.Warn(wsCtx, op+": Stream closed unexpectedly, reconnecting...", map[string]interface{}{"symbol": symbol})
				attempt++
				if attempt >= c.maxReconnectAttempts {
					c.logger.Error(wsCtx, fmt.Errorf("%w: reconnect budget exhausted", ports.ErrStreamClosed), op+": Stream going permanently idle", map[string]interface{}{"symbol": symbol})
					return
				}
				select {
				case <-time.After(retry.Duration()):
				case <-wsCtx.Done():
					return
				}
			case <-wsCtx.Done():
				select {
				case innerStopCh <- struct{}{}:
				default:
				}
				return
			}
		}
	}()

	doneCh = make(chan struct{})
	stopCh = make(chan struct{})

	// Link the external stopCh to the internal context cancellation.
	go func() {
		select {
		case <-stopCh:
			cancelWs()
		case <-wsCtx.Done():
		}
	}()

	// Close the external doneCh when the loop winds down.
	go func() {
		<-wsCtx.Done()
		close(doneCh)
	}()

	return doneCh, stopCh, nil
}

// translateKline converts one upstream kline record, validating every field.
func translateKline(openTime, closeTime int64, open, high, low, cls string) (domain.RawCandle, error) {
	o, err := strconv.ParseFloat(open, 64)
	if err != nil {
		return domain.RawCandle{}, fmt.Errorf("parsing open price '%s': %w", open, err)
	}
	h, err := strconv.ParseFloat(high, 64)
	if err != nil {
		return domain.RawCandle{}, fmt.Errorf("parsing high price '%s': %w", high, err)
	}
	l, err := strconv.ParseFloat(low, 64)
	if err != nil {
		return domain.RawCandle{}, fmt.Errorf("parsing low price '%s': %w", low, err)
	}
	cl, err := strconv.ParseFloat(cls, 64)
	if err != nil {
		return domain.RawCandle{}, fmt.Errorf("parsing close price '%s': %w", cls, err)
	}

	return domain.RawCandle{
		OpenTime:  time.UnixMilli(openTime),
		CloseTime: time.UnixMilli(closeTime),
		Open:      o,
		High:      h,
		Low:       l,
		Close:     cl,
	}, nil
}
