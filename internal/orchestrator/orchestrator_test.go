package orchestrator

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alphadesk/alphadesk/internal/agent"
	"github.com/alphadesk/alphadesk/internal/broker"
	"github.com/alphadesk/alphadesk/internal/clock"
	"github.com/alphadesk/alphadesk/internal/config"
	"github.com/alphadesk/alphadesk/internal/earnings"
	"github.com/alphadesk/alphadesk/internal/events"
	"github.com/alphadesk/alphadesk/internal/exits"
	"github.com/alphadesk/alphadesk/internal/gates"
	"github.com/alphadesk/alphadesk/internal/indicators"
	"github.com/alphadesk/alphadesk/internal/memory"
	"github.com/alphadesk/alphadesk/internal/risk"
	"github.com/alphadesk/alphadesk/internal/signal"
	"github.com/alphadesk/alphadesk/internal/sizing"
	"github.com/alphadesk/alphadesk/internal/smartmoney"
)

type scriptedLLM struct {
	mu      sync.Mutex
	replies map[string]string // keyed by agent name marker in system prompt
	reply   string
	calls   int
}

func (s *scriptedLLM) CompleteWithSystem(_ context.Context, system, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	for marker, reply := range s.replies {
		if strings.Contains(system, marker) {
			return reply, nil
		}
	}
	if s.reply != "" {
		return s.reply, nil
	}
	return `{"decision": "HOLD", "reasoning": "waiting"}`, nil
}

func (s *scriptedLLM) Model() string { return "test-model" }

func (s *scriptedLLM) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type neutralProvider struct {
	vix float64
	fng int
}

func (p *neutralProvider) FetchVIX(context.Context) (smartmoney.VIXData, error) {
	return smartmoney.VIXData{VIX: p.vix, Regime: smartmoney.VolatilityRegime(p.vix)}, nil
}

func (p *neutralProvider) FetchOptions(_ context.Context, symbol string) (smartmoney.OptionsData, error) {
	return smartmoney.OptionsData{Symbol: symbol, PutCallRatio: 0.95, Sentiment: "NEUTRAL"}, nil
}

func (p *neutralProvider) FetchVolumes(context.Context, string) ([]float64, error) {
	return []float64{1e6, 1e6, 1e6, 1e6, 1e6}, nil
}

func (p *neutralProvider) FetchInsiderFilings(_ context.Context, symbol string) (smartmoney.InsiderData, error) {
	return smartmoney.InsiderData{Symbol: symbol, NetSentiment: "NEUTRAL", Activity: "NEUTRAL"}, nil
}

func (p *neutralProvider) FetchFearGreed(context.Context) (smartmoney.FearGreedData, error) {
	return smartmoney.FearGreedData{Index: p.fng, Classification: "Neutral", MarketSentiment: "NEUTRAL"}, nil
}

type testEnv struct {
	orch    *Orchestrator
	llm     *scriptedLLM
	broker  *broker.MockBroker
	events  <-chan events.Event
	exits   *exits.Engine
	breaker *risk.TradingBreaker
	memory  *memory.Service
	agents  []*agent.Agent
	meta    *agent.Agent
	cancel  func()
}

func eastern(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	return loc
}

// optimalMonday is a regular trading Monday inside the optimal window
func optimalMonday(t *testing.T) time.Time {
	return time.Date(2026, 8, 24, 11, 0, 0, 0, eastern(t))
}

func newTestOrchestrator(t *testing.T, agentNames ...string) *testEnv {
	t.Helper()
	if len(agentNames) == 0 {
		agentNames = []string{"warren"}
	}

	repo := memory.NewInMemoryRepository()
	mem := memory.NewService(repo, memory.NewPatternIndex(repo))
	mock := broker.NewMockBroker(1_000_000, 1.0)
	llmClient := &scriptedLLM{replies: map[string]string{}}
	exitEngine := exits.NewEngine(false)
	breaker := risk.NewTradingBreaker()
	smart := smartmoney.NewService(&neutralProvider{vix: 18, fng: 55}, smartmoney.NewMemoryCache())

	deps := agent.Deps{
		LLM:      llmClient,
		Broker:   mock,
		Memory:   mem,
		Sizer:    sizing.NewSizer(),
		Combiner: signal.NewCombiner(),
		Gates:    gates.NewEvaluator(),
		Earnings: earnings.NewService(&earnings.StaticProvider{}),
		Exits:    exitEngine,
		Breaker:  breaker,
	}
	agents := make([]*agent.Agent, 0, len(agentNames))
	for _, name := range agentNames {
		spec := config.AgentSpec{ID: "agent-" + name, Name: name, Personality: "test trader"}
		agents = append(agents, agent.New(spec, 10000, 1.0, false, deps))
	}
	meta := agent.New(config.AgentSpec{ID: "agent-consortium", Name: "consortium"}, 10000, 1.0, false, deps)

	mktClock, err := clock.New("America/New_York")
	require.NoError(t, err)
	broadcaster := events.NewBroadcaster(nil, "")
	ch, cancel := broadcaster.Subscribe(32)

	orch := New(Deps{
		Clock:      mktClock,
		Broker:     mock,
		SmartMoney: smart,
		Analyzer:   indicators.NewAnalyzer(),
		Agents:     agents,
		Meta:       meta,
		Consortium: agent.NewConsortium(agent.ModeWeighted),
		Breaker:    breaker,
		Exits:      exitEngine,
		Events:     broadcaster,
		Store:      nil,
	}, Options{TickInterval: time.Minute})
	orch.now = func() time.Time { return optimalMonday(t) }

	return &testEnv{
		orch: orch, llm: llmClient, broker: mock, events: ch,
		exits: exitEngine, breaker: breaker, memory: mem,
		agents: agents, meta: meta, cancel: cancel,
	}
}

func drainEvents(ch <-chan events.Event) []events.Event {
	var out []events.Event
	for {
		select {
		case evt := <-ch:
			out = append(out, evt)
		default:
			return out
		}
	}
}

func eventKinds(evts []events.Event) []events.Kind {
	kinds := make([]events.Kind, len(evts))
	for i, e := range evts {
		kinds[i] = e.Kind
	}
	return kinds
}

func TestTickBlockedByOpeningWindow(t *testing.T) {
	env := newTestOrchestrator(t)
	defer env.cancel()
	env.orch.now = func() time.Time {
		return time.Date(2026, 8, 24, 9, 45, 0, 0, eastern(t))
	}

	env.orch.ForceTick(context.Background())

	evts := drainEvents(env.events)
	require.Len(t, evts, 1)
	assert.Equal(t, events.KindMarketHoursBlocked, evts[0].Kind)
	assert.Equal(t, string(clock.WindowAvoidOpening), evts[0].Payload["window"])
	assert.Empty(t, env.broker.Orders())
	assert.Equal(t, 0, env.llm.callCount())
}

func TestTickBlockedOnWeekend(t *testing.T) {
	env := newTestOrchestrator(t)
	defer env.cancel()
	env.orch.now = func() time.Time {
		return time.Date(2026, 8, 22, 11, 0, 0, 0, eastern(t)) // Saturday
	}

	env.orch.ForceTick(context.Background())

	evts := drainEvents(env.events)
	require.Len(t, evts, 1)
	assert.Equal(t, events.KindMarketClosed, evts[0].Kind)
	assert.Empty(t, env.broker.Orders())
}

func TestHappyPathBuyCycle(t *testing.T) {
	env := newTestOrchestrator(t)
	defer env.cancel()
	env.llm.reply = `{"decision": "BUY", "symbol": "AAPL", "quantity": 10, "confidence": 80, "risk_level": "MEDIUM", "reasoning": "strong setup"}`
	env.broker.SetPrice("AAPL", 100)
	env.broker.SetQuote("AAPL", 99.9, 100.1)
	env.broker.SetMovers([]broker.Mover{{Symbol: "AAPL", Price: 100, ChangePercent: 2.5}})

	env.orch.ForceTick(context.Background())

	cycle := env.orch.LastCycle()
	out, ok := cycle["warren"]
	require.True(t, ok)
	require.True(t, out.Executed, out.Reason)
	require.NotNil(t, out.Combined)
	assert.True(t, out.Combined.ShouldProceed)
	require.NotNil(t, out.Sizing)
	assert.GreaterOrEqual(t, out.Sizing.PositionPct, 0.01)
	assert.LessOrEqual(t, out.Sizing.PositionPct, 0.10)

	// Limit order near the ask, position and exit level in place
	orders := env.broker.Orders()
	require.NotEmpty(t, orders)
	assert.Equal(t, broker.Limit, orders[0].Type)

	positions := env.agents[0].Positions()
	require.Len(t, positions, 1)
	assert.Equal(t, "AAPL", positions[0].Symbol)
	require.NotNil(t, env.exits.Get("agent-warren", "AAPL"))

	kinds := eventKinds(drainEvents(env.events))
	assert.Contains(t, kinds, events.KindTradingCycle)
}

func TestOverboughtMoverIsVetoed(t *testing.T) {
	env := newTestOrchestrator(t)
	defer env.cancel()
	env.llm.reply = `{"decision": "BUY", "symbol": "NVDA", "quantity": 5, "confidence": 88, "risk_level": "MEDIUM", "reasoning": "momentum"}`

	// A relentless uptrend pushes RSI far above the veto threshold
	bars := make([]indicators.Bar, 60)
	price := 50.0
	day := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := range bars {
		price *= 1.015
		bars[i] = indicators.Bar{
			Timestamp: day.AddDate(0, 0, i),
			Open:      price * 0.995,
			High:      price * 1.005,
			Low:       price * 0.99,
			Close:     price,
			Volume:    1e6,
		}
	}
	env.broker.SetBars("NVDA", bars)
	env.broker.SetPrice("NVDA", price)
	env.broker.SetQuote("NVDA", price-0.1, price+0.1)
	env.broker.SetMovers([]broker.Mover{{Symbol: "NVDA", Price: price, ChangePercent: 4.0}})

	env.orch.ForceTick(context.Background())

	out := env.orch.LastCycle()["warren"]
	assert.False(t, out.Executed)
	assert.True(t, out.Blocked)
	assert.Contains(t, out.Reason, "technical gates")
	assert.Empty(t, env.broker.Orders())
}

func TestBreakerPausedAgentSkipsLLM(t *testing.T) {
	env := newTestOrchestrator(t)
	defer env.cancel()
	for i := 0; i < 5; i++ {
		env.breaker.RecordTradeResult("agent-warren", -50, 10000)
	}

	env.orch.ForceTick(context.Background())

	out := env.orch.LastCycle()["warren"]
	assert.True(t, out.Blocked)
	assert.Contains(t, out.Reason, "circuit breaker")
	assert.Equal(t, 0, env.llm.callCount())
}

func TestTrailingStopCapturesGains(t *testing.T) {
	env := newTestOrchestrator(t)
	defer env.cancel()
	ctx := context.Background()

	// Seed the position on both the broker and the agent, with an open
	// memory, as a prior buy would have left it
	_, err := env.broker.SubmitOrder(ctx, broker.OrderRequest{Symbol: "AAPL", Side: broker.Buy, Type: broker.Limit, Quantity: 10, LimitPrice: 100})
	require.NoError(t, err)
	env.agents[0].RestorePosition("AAPL", 10, 100)
	_, err = env.memory.CreateTradeMemory(ctx, "agent-warren", "", "AAPL", "BUY", 100, 10, "entry", 90, memory.MarketContext{Sentiment: "BULLISH", VIXLevel: 20})
	require.NoError(t, err)
	// High confidence and bullish flow stretch the target beyond +8%,
	// leaving the trailing stop in charge
	env.exits.Register("agent-warren", "AAPL", 100, 10, 90, "MEDIUM", 20, smartmoney.Bullish)

	// First sweep at +8%: trailing activates and ratchets to the high
	env.broker.SetPrice("AAPL", 108)
	env.orch.ForceTick(ctx)
	lvl := env.exits.Get("agent-warren", "AAPL")
	require.NotNil(t, lvl)
	assert.True(t, lvl.TrailingActive)
	assert.InDelta(t, 106.38, lvl.TrailingStop, 0.01)

	// Pullback through the trailing stop forces the exit
	env.broker.SetPrice("AAPL", 106)
	env.orch.ForceTick(ctx)

	assert.Empty(t, env.agents[0].Positions())
	assert.Nil(t, env.exits.Get("agent-warren", "AAPL"))

	var autoExit *events.Event
	for _, evt := range drainEvents(env.events) {
		if evt.Kind == events.KindAutoExit {
			autoExit = &evt
			break
		}
	}
	require.NotNil(t, autoExit, "expected an auto_exit event")
	assert.Equal(t, "AAPL", autoExit.Symbol)
	assert.Equal(t, string(exits.TrailingStop), autoExit.Payload["reason"])

	lessons, err := env.memory.LessonsForSymbol(ctx, "agent-warren", "AAPL", 5)
	require.NoError(t, err)
	require.NotEmpty(t, lessons)
	assert.Contains(t, lessons[0], "Trailing")

	stats, err := env.memory.Statistics(ctx, "agent-warren")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalTrades)
	assert.Equal(t, 1.0, stats.WinRate)
}

func TestConsortiumWeightedReject(t *testing.T) {
	env := newTestOrchestrator(t, "alpha", "beta", "gamma")
	defer env.cancel()
	env.llm.replies = map[string]string{
		"alpha": `{"decision": "BUY", "symbol": "AAPL", "quantity": 5, "confidence": 50, "risk_level": "MEDIUM", "reasoning": "maybe"}`,
		"beta":  `{"decision": "BUY", "symbol": "AAPL", "quantity": 5, "confidence": 52, "risk_level": "MEDIUM", "reasoning": "maybe"}`,
		"gamma": `{"decision": "HOLD", "reasoning": "unsure"}`,
	}
	env.broker.SetPrice("AAPL", 100)
	env.broker.SetQuote("AAPL", 99.9, 100.1)

	env.orch.ForceTick(context.Background())

	cycle := env.orch.LastCycle()
	out, ok := cycle["consortium"]
	require.True(t, ok)
	require.NotNil(t, out.Decision)
	assert.Equal(t, "HOLD", out.Decision.Decision)
	assert.Equal(t, "Confiance collective insuffisante", out.Decision.Reasoning)
	assert.Empty(t, env.meta.Positions())
}

func TestDroppedAndQueuedTicks(t *testing.T) {
	env := newTestOrchestrator(t)
	defer env.cancel()

	env.orch.inFlight.Store(true)
	env.orch.ForceTick(context.Background())
	assert.False(t, env.orch.queued.Load())

	env.orch.opts.QueueMissedTick = true
	env.orch.ForceTick(context.Background())
	assert.True(t, env.orch.queued.Load())
	env.orch.inFlight.Store(false)
	env.orch.queued.Store(false)
}

func TestEnableDisableTrading(t *testing.T) {
	env := newTestOrchestrator(t)
	defer env.cancel()

	env.orch.DisableTrading()
	assert.False(t, env.orch.Status().Enabled)
	env.orch.ForceTick(context.Background())
	assert.Equal(t, 0, env.llm.callCount())

	env.orch.EnableTrading()
	assert.True(t, env.orch.Status().Enabled)

	kinds := eventKinds(drainEvents(env.events))
	assert.Contains(t, kinds, events.KindTradingDisabled)
	assert.Contains(t, kinds, events.KindTradingEnabled)
}

func TestLeaderboardSortsByPerformance(t *testing.T) {
	env := newTestOrchestrator(t, "alpha", "beta")
	defer env.cancel()

	env.agents[0].RestoreCapital(9000, 0)  // -10%
	env.agents[1].RestoreCapital(11000, 0) // +10%

	board := env.orch.Leaderboard()
	require.GreaterOrEqual(t, len(board), 2)
	assert.Equal(t, "beta", board[0].Name)
}
