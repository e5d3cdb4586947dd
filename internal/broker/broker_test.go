package broker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockBrokerBuyAndSellRoundTrip(t *testing.T) {
	m := NewMockBroker(10000, 1.0)
	ctx := context.Background()
	m.SetPrice("AAPL", 100)

	order, err := m.SubmitOrder(ctx, OrderRequest{Symbol: "AAPL", Side: Buy, Type: Market, Quantity: 10})
	require.NoError(t, err)
	assert.Equal(t, StatusFilled, order.Status)
	assert.Equal(t, 100.0, order.FilledPrice)

	acct, err := m.GetAccount(ctx)
	require.NoError(t, err)
	// 10000 - 1000 - 1 fee
	assert.InDelta(t, 8999.0, acct.Cash, 1e-9)

	positions, err := m.GetPositions(ctx)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, 10.0, positions[0].Quantity)

	m.SetPrice("AAPL", 110)
	order, err = m.SubmitOrder(ctx, OrderRequest{Symbol: "AAPL", Side: Sell, Type: Market, Quantity: 10})
	require.NoError(t, err)
	assert.Equal(t, StatusFilled, order.Status)

	acct, err = m.GetAccount(ctx)
	require.NoError(t, err)
	// 8999 + 1100 - 1 fee
	assert.InDelta(t, 10098.0, acct.Cash, 1e-9)

	positions, err = m.GetPositions(ctx)
	require.NoError(t, err)
	assert.Empty(t, positions)
}

func TestMockBrokerWeightedAverageEntry(t *testing.T) {
	m := NewMockBroker(100000, 0)
	ctx := context.Background()

	_, err := m.SubmitOrder(ctx, OrderRequest{Symbol: "MSFT", Side: Buy, Type: Limit, Quantity: 10, LimitPrice: 100})
	require.NoError(t, err)
	_, err = m.SubmitOrder(ctx, OrderRequest{Symbol: "MSFT", Side: Buy, Type: Limit, Quantity: 10, LimitPrice: 120})
	require.NoError(t, err)

	positions, err := m.GetPositions(ctx)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, 20.0, positions[0].Quantity)
	assert.InDelta(t, 110.0, positions[0].AvgEntryPrice, 1e-9)
}

func TestMockBrokerRejections(t *testing.T) {
	m := NewMockBroker(100, 1.0)
	ctx := context.Background()
	m.SetPrice("AAPL", 100)

	// Not enough cash for 10 shares
	order, err := m.SubmitOrder(ctx, OrderRequest{Symbol: "AAPL", Side: Buy, Type: Market, Quantity: 10})
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, order.Status)
	assert.Contains(t, order.RejectReason, "insufficient")

	// Selling what we do not hold
	order, err = m.SubmitOrder(ctx, OrderRequest{Symbol: "AAPL", Side: Sell, Type: Market, Quantity: 1})
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, order.Status)

	// Injected rejection
	m.RejectNextOrder("halted")
	order, err = m.SubmitOrder(ctx, OrderRequest{Symbol: "AAPL", Side: Buy, Type: Market, Quantity: 1})
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, order.Status)
	assert.Equal(t, "halted", order.RejectReason)
}

func TestMockBrokerSyntheticQuote(t *testing.T) {
	m := NewMockBroker(1000, 0)
	m.SetPrice("AAPL", 200)

	q, err := m.GetLatestQuote(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Less(t, q.BidPrice, q.AskPrice)
	assert.InDelta(t, 200.0, q.LastPrice, 1e-9)

	_, err = m.GetLatestQuote(context.Background(), "GHOST")
	assert.Error(t, err)
}

func TestAlpacaGetAccountParsesStrings(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key", r.Header.Get("APCA-API-KEY-ID"))
		assert.Equal(t, "/v2/account", r.URL.Path)
		_, _ = w.Write([]byte(`{"cash":"10000.50","portfolio_value":"12345.67","buying_power":"20001.00"}`))
	}))
	defer server.Close()

	c := NewAlpacaClient(AlpacaConfig{TradingURL: server.URL, DataURL: server.URL, KeyID: "key", SecretKey: "secret"}, nil)

	acct, err := c.GetAccount(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 10000.50, acct.Cash, 1e-9)
	assert.InDelta(t, 12345.67, acct.PortfolioValue, 1e-9)
}

func TestAlpacaSubmitOrderBody(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"id":"ord-1","status":"accepted","filled_qty":"0","filled_avg_price":""}`))
	}))
	defer server.Close()

	c := NewAlpacaClient(AlpacaConfig{TradingURL: server.URL, DataURL: server.URL}, nil)

	order, err := c.SubmitOrder(context.Background(), OrderRequest{
		Symbol: "AAPL", Side: Buy, Type: Limit, Quantity: 5, LimitPrice: 185.5,
	})
	require.NoError(t, err)
	assert.Equal(t, "ord-1", order.ID)
	assert.Equal(t, StatusAccepted, order.Status)
	assert.Equal(t, "limit", got["type"])
	assert.Equal(t, "185.50", got["limit_price"])
	assert.Equal(t, "day", got["time_in_force"])
}

func TestAlpacaErrorStatusSurfacesBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"message":"insufficient buying power"}`))
	}))
	defer server.Close()

	c := NewAlpacaClient(AlpacaConfig{TradingURL: server.URL, DataURL: server.URL}, nil)

	_, err := c.GetAccount(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insufficient buying power")
}

func TestAlpacaMarketHours(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/clock", r.URL.Path)
		_, _ = w.Write([]byte(`{"is_open":true,"next_open":"2026-08-25T13:30:00Z","next_close":"2026-08-24T20:00:00Z"}`))
	}))
	defer server.Close()

	c := NewAlpacaClient(AlpacaConfig{TradingURL: server.URL, DataURL: server.URL}, nil)

	open, err := c.IsMarketOpen(context.Background())
	require.NoError(t, err)
	assert.True(t, open)
}
