// Package broker abstracts the equities brokerage: account, positions,
// market data and order routing
package broker

import (
	"context"
	"time"

	"github.com/alphadesk/alphadesk/internal/indicators"
)

// OrderSide is buy or sell
type OrderSide string

const (
	Buy  OrderSide = "buy"
	Sell OrderSide = "sell"
)

// OrderType is market or limit
type OrderType string

const (
	Market OrderType = "market"
	Limit  OrderType = "limit"
)

// OrderStatus is the lifecycle state of an order
type OrderStatus string

const (
	StatusFilled   OrderStatus = "filled"
	StatusAccepted OrderStatus = "accepted"
	StatusRejected OrderStatus = "rejected"
)

// Account is the brokerage account snapshot
type Account struct {
	Cash           float64 `json:"cash"`
	PortfolioValue float64 `json:"portfolio_value"`
	BuyingPower    float64 `json:"buying_power"`
}

// Position is one open holding
type Position struct {
	Symbol        string  `json:"symbol"`
	Quantity      float64 `json:"qty"`
	AvgEntryPrice float64 `json:"avg_entry_price"`
	CurrentPrice  float64 `json:"current_price"`
	MarketValue   float64 `json:"market_value"`
	UnrealizedPnL float64 `json:"unrealized_pl"`
}

// Quote is the latest bid/ask for a symbol
type Quote struct {
	Symbol    string    `json:"symbol"`
	BidPrice  float64   `json:"bid_price"`
	AskPrice  float64   `json:"ask_price"`
	LastPrice float64   `json:"last_price"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderRequest is one order to submit
type OrderRequest struct {
	Symbol     string    `json:"symbol"`
	Side       OrderSide `json:"side"`
	Type       OrderType `json:"type"`
	Quantity   float64   `json:"qty"`
	LimitPrice float64   `json:"limit_price,omitempty"`
}

// Order is the broker's view of a submitted order
type Order struct {
	ID           string      `json:"id"`
	Symbol       string      `json:"symbol"`
	Side         OrderSide   `json:"side"`
	Type         OrderType   `json:"type"`
	Quantity     float64     `json:"qty"`
	FilledQty    float64     `json:"filled_qty"`
	FilledPrice  float64     `json:"filled_avg_price"`
	Status       OrderStatus `json:"status"`
	RejectReason string      `json:"reject_reason,omitempty"`
	SubmittedAt  time.Time   `json:"submitted_at"`
}

// Mover is one of today's biggest percentage moves
type Mover struct {
	Symbol        string  `json:"symbol"`
	Price         float64 `json:"price"`
	ChangePercent float64 `json:"percent_change"`
}

// MarketHours are today's session boundaries
type MarketHours struct {
	IsOpen    bool      `json:"is_open"`
	NextOpen  time.Time `json:"next_open"`
	NextClose time.Time `json:"next_close"`
}

// Broker is implemented by the Alpaca REST client and the paper MockBroker
type Broker interface {
	GetAccount(ctx context.Context) (*Account, error)
	GetPositions(ctx context.Context) ([]Position, error)
	// GetMarketData returns daily bars, oldest first
	GetMarketData(ctx context.Context, symbol string, days int) ([]indicators.Bar, error)
	GetLatestQuote(ctx context.Context, symbol string) (*Quote, error)
	SubmitOrder(ctx context.Context, req OrderRequest) (*Order, error)
	GetMovers(ctx context.Context, limit int) ([]Mover, error)
	IsMarketOpen(ctx context.Context) (bool, error)
	GetMarketHours(ctx context.Context) (*MarketHours, error)
}
