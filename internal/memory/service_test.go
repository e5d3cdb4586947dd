package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 8, 24, 14, 30, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *InMemoryRepository) {
	t.Helper()
	repo := NewInMemoryRepository()
	svc := NewService(repo, nil)
	svc.now = func() time.Time { return testNow }
	return svc, repo
}

func seedClosed(t *testing.T, repo *InMemoryRepository, agentID, symbol, sector, decision string,
	confidence int, pnl, pnlPercent float64, sentiment string) {
	t.Helper()

	success := pnl > 0
	closedAt := testNow
	m := &TradeMemory{
		AgentID:         agentID,
		TradeID:         "t-" + symbol,
		Symbol:          symbol,
		Sector:          sector,
		Decision:        decision,
		EntryPrice:      100,
		Quantity:        10,
		Confidence:      confidence,
		CreatedAt:       testNow.Add(-24 * time.Hour),
		ClosedAt:        &closedAt,
		PnL:             &pnl,
		PnLPercent:      &pnlPercent,
		Success:         &success,
		MarketSentiment: sentiment,
	}
	require.NoError(t, repo.SaveMemory(context.Background(), m))
}

func TestCreateTradeMemoryEnrichesSector(t *testing.T) {
	svc, repo := newTestService(t)

	m, err := svc.CreateTradeMemory(context.Background(), "agent-1", "trade-1", "AAPL", "BUY",
		185.50, 10, "strong momentum", 75, MarketContext{Sentiment: "BULLISH", VIXLevel: 16.5, RSI: 42})
	require.NoError(t, err)

	assert.NotEmpty(t, m.ID)
	assert.Equal(t, "Technology", m.Sector)
	assert.False(t, m.IsClosed())
	assert.Nil(t, m.PnL)

	stored, err := repo.OpenMemory(context.Background(), "agent-1", "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 42.0, stored.RSIValue)
	assert.Equal(t, "BULLISH", stored.MarketSentiment)
}

func TestCloseTradeMemoryBuyDerivesPnL(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateTradeMemory(ctx, "agent-1", "trade-1", "NVDA", "BUY",
		100, 10, "breakout", 80, MarketContext{RSI: 55, VolumeRatio: 2.5})
	require.NoError(t, err)

	closed, err := svc.CloseTradeMemory(ctx, "agent-1", "NVDA", 105, nil, "")
	require.NoError(t, err)

	require.NotNil(t, closed.PnL)
	assert.InDelta(t, 50.0, *closed.PnL, 1e-9)
	assert.InDelta(t, 5.0, *closed.PnLPercent, 1e-9)
	assert.True(t, *closed.Success)
	assert.Equal(t, created.ID, closed.ID)
	assert.NotEmpty(t, closed.LessonLearned)

	// A profitable close above the floor records a winning pattern
	patterns, err := repo.PatternsSince(ctx, testNow.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	assert.Equal(t, "NVDA", patterns[0].Symbol)
	assert.Equal(t, "breakout", patterns[0].PatternType)

	// And refreshes the aggregates
	stats, err := svc.Statistics(ctx, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalTrades)
	assert.Equal(t, 1.0, stats.WinRate)
}

func TestCloseTradeMemorySellSideInverts(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateTradeMemory(ctx, "agent-1", "trade-2", "TSLA", "SELL",
		200, 5, "overbought", 70, MarketContext{})
	require.NoError(t, err)

	closed, err := svc.CloseTradeMemory(ctx, "agent-1", "TSLA", 190, nil, "")
	require.NoError(t, err)

	assert.InDelta(t, 50.0, *closed.PnL, 1e-9)
	assert.InDelta(t, 5.0, *closed.PnLPercent, 1e-9)
	assert.True(t, *closed.Success)
}

func TestCloseTradeMemoryLossNoPattern(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateTradeMemory(ctx, "agent-1", "trade-3", "MSFT", "BUY",
		100, 10, "ai tailwinds", 65, MarketContext{})
	require.NoError(t, err)

	closed, err := svc.CloseTradeMemory(ctx, "agent-1", "MSFT", 97, nil, "")
	require.NoError(t, err)

	assert.InDelta(t, -30.0, *closed.PnL, 1e-9)
	assert.InDelta(t, -3.0, *closed.PnLPercent, 1e-9)
	assert.False(t, *closed.Success)
	assert.Contains(t, closed.LessonLearned, "Loss")

	patterns, err := repo.PatternsSince(ctx, testNow.Add(-time.Hour))
	require.NoError(t, err)
	assert.Empty(t, patterns)
}

func TestCloseTradeMemoryExplicitPnLWins(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateTradeMemory(ctx, "agent-1", "trade-4", "AMZN", "BUY",
		100, 10, "", 60, MarketContext{})
	require.NoError(t, err)

	// Fees already subtracted upstream
	pnl := 42.0
	closed, err := svc.CloseTradeMemoryByTradeID(ctx, "trade-4", 105, &pnl, "took profit on plan")
	require.NoError(t, err)

	assert.InDelta(t, 42.0, *closed.PnL, 1e-9)
	assert.InDelta(t, 4.2, *closed.PnLPercent, 1e-9)
	assert.Equal(t, "took profit on plan", closed.LessonLearned)
}

func TestCloseTradeMemoryNotFound(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.CloseTradeMemory(context.Background(), "agent-1", "GOOGL", 150, nil, "")
	assert.ErrorIs(t, err, ErrMemoryNotFound)
}

func TestUpdateAgentStatistics(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	seedClosed(t, repo, "agent-1", "AAPL", "Technology", "BUY", 75, 40, 4.0, "BULLISH")
	seedClosed(t, repo, "agent-1", "MSFT", "Technology", "BUY", 65, 20, 2.0, "NEUTRAL")
	seedClosed(t, repo, "agent-1", "XOM", "Energy", "BUY", 55, -20, -2.0, "BEARISH")

	stats, err := svc.UpdateAgentStatistics(ctx, "agent-1")
	require.NoError(t, err)

	assert.Equal(t, 3, stats.TotalTrades)
	assert.InDelta(t, 2.0/3.0, stats.WinRate, 1e-9)
	assert.InDelta(t, 3.0, stats.AvgWinPct, 1e-9)
	assert.InDelta(t, 2.0, stats.AvgLossPct, 1e-9)
	assert.InDelta(t, 1.5, stats.WinLossRatio, 1e-9)
	// f = w - (1-w)/r = 0.6667 - 0.3333/1.5
	assert.InDelta(t, 0.4444, stats.KellyFraction, 0.001)
}

func TestUpdateAgentStatisticsNoHistory(t *testing.T) {
	svc, _ := newTestService(t)

	stats, err := svc.UpdateAgentStatistics(context.Background(), "agent-new")
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalTrades)
	assert.Zero(t, stats.KellyFraction)
}

func TestPerformanceByCriteria(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	seedClosed(t, repo, "agent-1", "AAPL", "Technology", "BUY", 75, 40, 4.0, "BULLISH")
	seedClosed(t, repo, "agent-1", "MSFT", "Technology", "BUY", 72, -10, -1.0, "BULLISH")
	seedClosed(t, repo, "agent-1", "XOM", "Energy", "BUY", 55, 30, 3.0, "NEUTRAL")

	bySector, err := svc.PerformanceByCriteria(ctx, "agent-1", BySector)
	require.NoError(t, err)
	require.Contains(t, bySector, "Technology")
	assert.Equal(t, 2, bySector["Technology"].Total)
	assert.InDelta(t, 0.5, bySector["Technology"].WinRate, 1e-9)
	assert.InDelta(t, 30.0, bySector["Technology"].TotalPnL, 1e-9)
	assert.Equal(t, 1, bySector["Energy"].Wins)

	byConf, err := svc.PerformanceByCriteria(ctx, "agent-1", ByConfidence)
	require.NoError(t, err)
	assert.Equal(t, 2, byConf["70-80%"].Total)
	assert.Equal(t, 1, byConf["50-60%"].Total)
}

func TestLessonsForSymbol(t *testing.T) {
	svc, repo := newTestService(t)

	seedClosed(t, repo, "agent-1", "AAPL", "Technology", "BUY", 75, 40, 4.0, "BULLISH")
	seedClosed(t, repo, "agent-1", "AAPL", "Technology", "SELL", 60, -15, -1.5, "BEARISH")

	lessons, err := svc.LessonsForSymbol(context.Background(), "agent-1", "AAPL", 5)
	require.NoError(t, err)
	require.Len(t, lessons, 2)
	assert.Contains(t, lessons[0], "AAPL")
}

func TestFormatMemoryContext(t *testing.T) {
	svc, repo := newTestService(t)

	seedClosed(t, repo, "agent-1", "AAPL", "Technology", "BUY", 75, 40, 4.0, "BULLISH")
	seedClosed(t, repo, "agent-1", "NVDA", "Semiconductors", "BUY", 80, -20, -2.0, "BULLISH")

	out := svc.FormatMemoryContext(context.Background(), "agent-1", "AAPL", "Technology", "BULLISH")
	assert.Contains(t, out, "HISTORY ON AAPL")
	assert.Contains(t, out, "PERFORMANCE BY CONFIDENCE LEVEL")
	assert.Contains(t, out, "Technology SECTOR RECORD")
	assert.Contains(t, out, "RECENT TRADES IN SIMILAR CONDITIONS")
}

func TestFormatMemoryContextEmptyWithoutHistory(t *testing.T) {
	svc, _ := newTestService(t)
	assert.Empty(t, svc.FormatMemoryContext(context.Background(), "agent-1", "AAPL", "Technology", "BULLISH"))
}

func TestPreDecisionContext(t *testing.T) {
	repo := NewInMemoryRepository()
	svc := NewService(repo, NewPatternIndex(repo))
	svc.now = func() time.Time { return testNow }

	seedClosed(t, repo, "agent-1", "AAPL", "Technology", "BUY", 75, 40, 4.0, "BULLISH")
	seedClosed(t, repo, "agent-1", "XOM", "Energy", "BUY", 55, -30, -3.0, "BEARISH")
	_, err := svc.UpdateAgentStatistics(context.Background(), "agent-1")
	require.NoError(t, err)

	out := svc.PreDecisionContext(context.Background(), "agent-1", "BULLISH")
	assert.Contains(t, out, "YOUR LEARNING HISTORY")
	assert.Contains(t, out, "PERFORMANCE BY SECTOR")
	assert.Contains(t, out, "LAST MISTAKES")
	assert.Contains(t, out, "GLOBAL STATS: 2 trades")
}

func TestDefaultLesson(t *testing.T) {
	tests := []struct {
		name   string
		pnl    float64
		reason string
		want   string
	}{
		{"stop loss", -30, "stop_loss", "Stop-loss triggered, entry timing was likely poor"},
		{"plain loss", -10, "signal_reversal", "Loss, review the technical indicators before the next entry"},
		{"take profit", 50, "take_profit", "Profit taken on plan, good discipline"},
		{"plain gain", 20, "", "Gain, identify what worked to repeat it"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DefaultLessonForExit(tt.pnl, tt.reason))
		})
	}
}

func TestDetectPatternType(t *testing.T) {
	assert.Equal(t, "dip_buy", DetectPatternType("BUY", 30, 1.0, 2.0))
	assert.Equal(t, "breakout", DetectPatternType("BUY", 50, 2.5, 2.0))
	assert.Equal(t, "momentum", DetectPatternType("BUY", 50, 1.0, 4.0))
	assert.Equal(t, "trend_following", DetectPatternType("BUY", 50, 1.0, 1.0))
	assert.Equal(t, "overbought_sell", DetectPatternType("SELL", 70, 1.0, 2.0))
	assert.Equal(t, "distribution", DetectPatternType("SELL", 50, 2.5, 2.0))
	assert.Equal(t, "profit_taking", DetectPatternType("SELL", 50, 1.0, 2.0))
}
