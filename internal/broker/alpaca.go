package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/alphadesk/alphadesk/internal/indicators"
)

const (
	defaultTradingURL = "https://paper-api.alpaca.markets"
	defaultDataURL    = "https://data.alpaca.markets"

	// Alpaca allows 200 requests per minute on the free tier
	requestsPerMinute = 200
)

// AlpacaConfig configures the REST client
type AlpacaConfig struct {
	TradingURL string
	DataURL    string
	KeyID      string
	SecretKey  string
	Timeout    time.Duration
}

// AlpacaClient is the Alpaca-style REST broker. Every call is rate limited
// and routed through a circuit breaker.
type AlpacaClient struct {
	tradingURL string
	dataURL    string
	keyID      string
	secretKey  string
	httpClient *http.Client
	limiter    *rate.Limiter
	circuit    *gobreaker.CircuitBreaker
	logger     zerolog.Logger
}

// NewAlpacaClient creates a client. A nil circuit breaker disables the
// circuit (useful in tests).
func NewAlpacaClient(cfg AlpacaConfig, circuit *gobreaker.CircuitBreaker) *AlpacaClient {
	if cfg.TradingURL == "" {
		cfg.TradingURL = defaultTradingURL
	}
	if cfg.DataURL == "" {
		cfg.DataURL = defaultDataURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &AlpacaClient{
		tradingURL: cfg.TradingURL,
		dataURL:    cfg.DataURL,
		keyID:      cfg.KeyID,
		secretKey:  cfg.SecretKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(requestsPerMinute)/60, 10),
		circuit:    circuit,
		logger:     log.With().Str("component", "broker").Logger(),
	}
}

func (c *AlpacaClient) do(ctx context.Context, method, rawURL string, body []byte, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	call := func() (any, error) {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("APCA-API-KEY-ID", c.keyID)
		req.Header.Set("APCA-API-SECRET-KEY", c.secretKey)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		payload, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("broker API error (status %d): %s", resp.StatusCode, string(payload))
		}
		if out != nil {
			if err := json.Unmarshal(payload, out); err != nil {
				return nil, fmt.Errorf("failed to decode response: %w", err)
			}
		}
		return nil, nil
	}

	if c.circuit != nil {
		_, err := c.circuit.Execute(call)
		return err
	}
	_, err := call()
	return err
}

// GetAccount fetches the account snapshot
func (c *AlpacaClient) GetAccount(ctx context.Context) (*Account, error) {
	var raw struct {
		Cash           string `json:"cash"`
		PortfolioValue string `json:"portfolio_value"`
		BuyingPower    string `json:"buying_power"`
	}
	if err := c.do(ctx, http.MethodGet, c.tradingURL+"/v2/account", nil, &raw); err != nil {
		return nil, err
	}
	return &Account{
		Cash:           parseFloat(raw.Cash),
		PortfolioValue: parseFloat(raw.PortfolioValue),
		BuyingPower:    parseFloat(raw.BuyingPower),
	}, nil
}

// GetPositions lists open positions
func (c *AlpacaClient) GetPositions(ctx context.Context) ([]Position, error) {
	var raw []struct {
		Symbol        string `json:"symbol"`
		Qty           string `json:"qty"`
		AvgEntryPrice string `json:"avg_entry_price"`
		CurrentPrice  string `json:"current_price"`
		MarketValue   string `json:"market_value"`
		UnrealizedPL  string `json:"unrealized_pl"`
	}
	if err := c.do(ctx, http.MethodGet, c.tradingURL+"/v2/positions", nil, &raw); err != nil {
		return nil, err
	}
	out := make([]Position, 0, len(raw))
	for _, p := range raw {
		out = append(out, Position{
			Symbol:        p.Symbol,
			Quantity:      parseFloat(p.Qty),
			AvgEntryPrice: parseFloat(p.AvgEntryPrice),
			CurrentPrice:  parseFloat(p.CurrentPrice),
			MarketValue:   parseFloat(p.MarketValue),
			UnrealizedPnL: parseFloat(p.UnrealizedPL),
		})
	}
	return out, nil
}

// GetMarketData returns up to days daily bars, oldest first
func (c *AlpacaClient) GetMarketData(ctx context.Context, symbol string, days int) ([]indicators.Bar, error) {
	q := url.Values{}
	q.Set("timeframe", "1Day")
	q.Set("limit", fmt.Sprintf("%d", days))
	q.Set("adjustment", "split")

	var raw struct {
		Bars []struct {
			Timestamp time.Time `json:"t"`
			Open      float64   `json:"o"`
			High      float64   `json:"h"`
			Low       float64   `json:"l"`
			Close     float64   `json:"c"`
			Volume    float64   `json:"v"`
		} `json:"bars"`
	}
	endpoint := fmt.Sprintf("%s/v2/stocks/%s/bars?%s", c.dataURL, url.PathEscape(symbol), q.Encode())
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &raw); err != nil {
		return nil, err
	}

	bars := make([]indicators.Bar, 0, len(raw.Bars))
	for _, b := range raw.Bars {
		bars = append(bars, indicators.Bar{
			Timestamp: b.Timestamp,
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
		})
	}
	return bars, nil
}

// GetLatestQuote returns the most recent bid/ask
func (c *AlpacaClient) GetLatestQuote(ctx context.Context, symbol string) (*Quote, error) {
	var raw struct {
		Quote struct {
			BidPrice  float64   `json:"bp"`
			AskPrice  float64   `json:"ap"`
			Timestamp time.Time `json:"t"`
		} `json:"quote"`
	}
	endpoint := fmt.Sprintf("%s/v2/stocks/%s/quotes/latest", c.dataURL, url.PathEscape(symbol))
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &raw); err != nil {
		return nil, err
	}
	return &Quote{
		Symbol:    symbol,
		BidPrice:  raw.Quote.BidPrice,
		AskPrice:  raw.Quote.AskPrice,
		LastPrice: (raw.Quote.BidPrice + raw.Quote.AskPrice) / 2,
		Timestamp: raw.Quote.Timestamp,
	}, nil
}

// SubmitOrder routes an order; day time-in-force
func (c *AlpacaClient) SubmitOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	payload := map[string]any{
		"symbol":        req.Symbol,
		"side":          string(req.Side),
		"type":          string(req.Type),
		"qty":           fmt.Sprintf("%g", req.Quantity),
		"time_in_force": "day",
	}
	if req.Type == Limit {
		payload["limit_price"] = fmt.Sprintf("%.2f", req.LimitPrice)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal order: %w", err)
	}

	var raw struct {
		ID             string    `json:"id"`
		Status         string    `json:"status"`
		FilledQty      string    `json:"filled_qty"`
		FilledAvgPrice string    `json:"filled_avg_price"`
		SubmittedAt    time.Time `json:"submitted_at"`
	}
	if err := c.do(ctx, http.MethodPost, c.tradingURL+"/v2/orders", body, &raw); err != nil {
		return nil, err
	}

	c.logger.Info().
		Str("symbol", req.Symbol).
		Str("side", string(req.Side)).
		Str("type", string(req.Type)).
		Float64("qty", req.Quantity).
		Str("order_id", raw.ID).
		Msg("Order submitted")

	return &Order{
		ID:          raw.ID,
		Symbol:      req.Symbol,
		Side:        req.Side,
		Type:        req.Type,
		Quantity:    req.Quantity,
		FilledQty:   parseFloat(raw.FilledQty),
		FilledPrice: parseFloat(raw.FilledAvgPrice),
		Status:      OrderStatus(raw.Status),
		SubmittedAt: raw.SubmittedAt,
	}, nil
}

// GetMovers returns the day's biggest gainers
func (c *AlpacaClient) GetMovers(ctx context.Context, limit int) ([]Mover, error) {
	var raw struct {
		Gainers []struct {
			Symbol        string  `json:"symbol"`
			Price         float64 `json:"price"`
			PercentChange float64 `json:"percent_change"`
		} `json:"gainers"`
	}
	endpoint := fmt.Sprintf("%s/v1beta1/screener/stocks/movers?top=%d", c.dataURL, limit)
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &raw); err != nil {
		return nil, err
	}
	out := make([]Mover, 0, len(raw.Gainers))
	for _, g := range raw.Gainers {
		out = append(out, Mover{Symbol: g.Symbol, Price: g.Price, ChangePercent: g.PercentChange})
	}
	return out, nil
}

// IsMarketOpen asks the broker clock
func (c *AlpacaClient) IsMarketOpen(ctx context.Context) (bool, error) {
	hours, err := c.GetMarketHours(ctx)
	if err != nil {
		return false, err
	}
	return hours.IsOpen, nil
}

// GetMarketHours returns the broker's session boundaries
func (c *AlpacaClient) GetMarketHours(ctx context.Context) (*MarketHours, error) {
	var raw struct {
		IsOpen    bool      `json:"is_open"`
		NextOpen  time.Time `json:"next_open"`
		NextClose time.Time `json:"next_close"`
	}
	if err := c.do(ctx, http.MethodGet, c.tradingURL+"/v2/clock", nil, &raw); err != nil {
		return nil, err
	}
	return &MarketHours{IsOpen: raw.IsOpen, NextOpen: raw.NextOpen, NextClose: raw.NextClose}, nil
}

func parseFloat(s string) float64 {
	var v float64
	_, _ = fmt.Sscanf(s, "%g", &v)
	return v
}
