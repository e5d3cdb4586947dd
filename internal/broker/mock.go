package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/alphadesk/alphadesk/internal/indicators"
)

// MockBroker is a deterministic in-memory broker for paper trading and
// tests. Orders fill immediately at the limit price (or last price for
// market orders).
type MockBroker struct {
	mu         sync.Mutex
	cash       float64
	feePerTrade float64
	positions  map[string]*Position
	prices     map[string]float64
	quotes     map[string]Quote
	bars       map[string][]indicators.Bar
	movers     []Mover
	marketOpen bool
	rejectNext string
	orders     []Order
	now        func() time.Time
}

// NewMockBroker creates a paper broker with the given starting cash
func NewMockBroker(cash, feePerTrade float64) *MockBroker {
	log.Info().Float64("cash", cash).Msg("Mock broker initialized (paper trading mode)")
	return &MockBroker{
		cash:        cash,
		feePerTrade: feePerTrade,
		positions:   make(map[string]*Position),
		prices:      make(map[string]float64),
		quotes:      make(map[string]Quote),
		bars:        make(map[string][]indicators.Bar),
		marketOpen:  true,
		now:         time.Now,
	}
}

// SetPrice sets the last price for a symbol
func (m *MockBroker) SetPrice(symbol string, price float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices[symbol] = price
	if p, ok := m.positions[symbol]; ok {
		p.CurrentPrice = price
		p.MarketValue = p.Quantity * price
		p.UnrealizedPnL = (price - p.AvgEntryPrice) * p.Quantity
	}
}

// SetQuote sets the latest bid/ask for a symbol
func (m *MockBroker) SetQuote(symbol string, bid, ask float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quotes[symbol] = Quote{Symbol: symbol, BidPrice: bid, AskPrice: ask, LastPrice: (bid + ask) / 2}
}

// SetBars seeds historical bars for a symbol
func (m *MockBroker) SetBars(symbol string, bars []indicators.Bar) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bars[symbol] = bars
}

// SetMovers seeds the movers list
func (m *MockBroker) SetMovers(movers []Mover) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.movers = movers
}

// SetMarketOpen toggles the simulated session
func (m *MockBroker) SetMarketOpen(open bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.marketOpen = open
}

// RejectNextOrder makes the next SubmitOrder fail with the given reason
func (m *MockBroker) RejectNextOrder(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejectNext = reason
}

// Orders returns every submitted order, oldest first
func (m *MockBroker) Orders() []Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Order, len(m.orders))
	copy(out, m.orders)
	return out
}

// GetAccount returns the simulated account
func (m *MockBroker) GetAccount(_ context.Context) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	value := m.cash
	for _, p := range m.positions {
		value += p.Quantity * p.CurrentPrice
	}
	return &Account{Cash: m.cash, PortfolioValue: value, BuyingPower: m.cash}, nil
}

// GetPositions returns the open simulated positions
func (m *MockBroker) GetPositions(_ context.Context) ([]Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Position, 0, len(m.positions))
	for _, p := range m.positions {
		out = append(out, *p)
	}
	return out, nil
}

// GetMarketData returns the seeded bars
func (m *MockBroker) GetMarketData(_ context.Context, symbol string, days int) ([]indicators.Bar, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	bars, ok := m.bars[symbol]
	if !ok {
		return nil, fmt.Errorf("no market data for %s", symbol)
	}
	if days > 0 && len(bars) > days {
		bars = bars[len(bars)-days:]
	}
	out := make([]indicators.Bar, len(bars))
	copy(out, bars)
	return out, nil
}

// GetLatestQuote returns the seeded quote, or a synthetic one around the
// last price
func (m *MockBroker) GetLatestQuote(_ context.Context, symbol string) (*Quote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if q, ok := m.quotes[symbol]; ok {
		q.Timestamp = m.now()
		return &q, nil
	}
	price, ok := m.prices[symbol]
	if !ok {
		return nil, fmt.Errorf("no quote for %s", symbol)
	}
	return &Quote{
		Symbol:    symbol,
		BidPrice:  price * 0.9995,
		AskPrice:  price * 1.0005,
		LastPrice: price,
		Timestamp: m.now(),
	}, nil
}

// SubmitOrder fills immediately and applies the flat fee
func (m *MockBroker) SubmitOrder(_ context.Context, req OrderRequest) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	order := Order{
		ID:          uuid.NewString(),
		Symbol:      req.Symbol,
		Side:        req.Side,
		Type:        req.Type,
		Quantity:    req.Quantity,
		SubmittedAt: m.now(),
	}

	if m.rejectNext != "" {
		order.Status = StatusRejected
		order.RejectReason = m.rejectNext
		m.rejectNext = ""
		m.orders = append(m.orders, order)
		return &order, nil
	}
	if req.Quantity <= 0 {
		return nil, fmt.Errorf("invalid quantity %g", req.Quantity)
	}

	fillPrice := req.LimitPrice
	if req.Type == Market || fillPrice <= 0 {
		price, ok := m.prices[req.Symbol]
		if !ok {
			if q, qok := m.quotes[req.Symbol]; qok {
				price = q.LastPrice
				ok = true
			}
		}
		if !ok {
			return nil, fmt.Errorf("no price for %s", req.Symbol)
		}
		fillPrice = price
	}

	cost := fillPrice*req.Quantity + m.feePerTrade
	if req.Side == Buy {
		if cost > m.cash {
			order.Status = StatusRejected
			order.RejectReason = "insufficient buying power"
			m.orders = append(m.orders, order)
			return &order, nil
		}
		m.cash -= cost
		p, ok := m.positions[req.Symbol]
		if !ok {
			m.positions[req.Symbol] = &Position{
				Symbol:        req.Symbol,
				Quantity:      req.Quantity,
				AvgEntryPrice: fillPrice,
				CurrentPrice:  fillPrice,
				MarketValue:   fillPrice * req.Quantity,
			}
		} else {
			total := p.Quantity + req.Quantity
			p.AvgEntryPrice = (p.AvgEntryPrice*p.Quantity + fillPrice*req.Quantity) / total
			p.Quantity = total
			p.CurrentPrice = fillPrice
			p.MarketValue = fillPrice * total
		}
	} else {
		p, ok := m.positions[req.Symbol]
		if !ok || p.Quantity < req.Quantity {
			order.Status = StatusRejected
			order.RejectReason = "position not held"
			m.orders = append(m.orders, order)
			return &order, nil
		}
		m.cash += fillPrice*req.Quantity - m.feePerTrade
		p.Quantity -= req.Quantity
		if p.Quantity <= 0 {
			delete(m.positions, req.Symbol)
		} else {
			p.MarketValue = p.Quantity * fillPrice
		}
	}

	order.Status = StatusFilled
	order.FilledQty = req.Quantity
	order.FilledPrice = fillPrice
	m.orders = append(m.orders, order)
	return &order, nil
}

// GetMovers returns the seeded movers
func (m *MockBroker) GetMovers(_ context.Context, limit int) ([]Mover, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	movers := m.movers
	if limit > 0 && len(movers) > limit {
		movers = movers[:limit]
	}
	out := make([]Mover, len(movers))
	copy(out, movers)
	return out, nil
}

// IsMarketOpen reports the simulated session
func (m *MockBroker) IsMarketOpen(_ context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.marketOpen, nil
}

// GetMarketHours returns synthetic session boundaries
func (m *MockBroker) GetMarketHours(_ context.Context) (*MarketHours, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	return &MarketHours{
		IsOpen:    m.marketOpen,
		NextOpen:  now.Add(time.Hour),
		NextClose: now.Add(6 * time.Hour),
	}, nil
}
