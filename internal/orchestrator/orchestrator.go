// Package orchestrator drives the trading cycle: the periodic tick that
// sweeps exits, gathers shared market context, runs every agent and the
// consortium, and broadcasts the results.
package orchestrator

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/alphadesk/alphadesk/internal/agent"
	"github.com/alphadesk/alphadesk/internal/broker"
	"github.com/alphadesk/alphadesk/internal/clock"
	"github.com/alphadesk/alphadesk/internal/db"
	"github.com/alphadesk/alphadesk/internal/events"
	"github.com/alphadesk/alphadesk/internal/exits"
	"github.com/alphadesk/alphadesk/internal/indicators"
	"github.com/alphadesk/alphadesk/internal/metrics"
	"github.com/alphadesk/alphadesk/internal/risk"
	"github.com/alphadesk/alphadesk/internal/smartmoney"
	"github.com/alphadesk/alphadesk/internal/universe"
)

const (
	defaultTickInterval     = 5 * time.Minute
	defaultSnapshotInterval = 60 * time.Second
	moverLimit              = 10
	marketDataDays          = 60
	fetchConcurrency        = 4
	agentConcurrency        = 3
)

// Store is the persistence surface the orchestrator reads and writes
type Store interface {
	InsertSnapshot(ctx context.Context, snap *db.SnapshotRow) error
	RecentTrades(ctx context.Context, agentID string, limit int) ([]db.TradeRow, error)
	RecentAutocritiques(ctx context.Context, agentID string, limit int) ([]db.AutocritiqueRow, error)
	PerformanceHistory(ctx context.Context, agentID string, since time.Time) ([]db.SnapshotRow, error)
}

// Options tune the cycle
type Options struct {
	TickInterval     time.Duration
	SnapshotInterval time.Duration
	// QueueMissedTick queues at most one tick fired while another is in
	// flight instead of dropping it
	QueueMissedTick bool
}

// Orchestrator owns the agents and the trading loop
type Orchestrator struct {
	clock      *clock.Clock
	broker     broker.Broker
	smart      *smartmoney.Service
	analyzer   *indicators.Analyzer
	agents     []*agent.Agent
	agentsByID map[string]*agent.Agent
	meta       *agent.Agent
	consortium *agent.Consortium
	breaker    *risk.TradingBreaker
	exits      *exits.Engine
	events     *events.Broadcaster
	store      Store
	logger     zerolog.Logger

	opts Options
	now  func() time.Time

	tradingEnabled atomic.Bool
	inFlight       atomic.Bool
	queued         atomic.Bool

	mu         sync.Mutex
	lastCycle  map[string]agent.Outcome
	lastTickAt time.Time
}

// Deps are the shared subsystems injected at construction
type Deps struct {
	Clock      *clock.Clock
	Broker     broker.Broker
	SmartMoney *smartmoney.Service
	Analyzer   *indicators.Analyzer
	Agents     []*agent.Agent
	Meta       *agent.Agent
	Consortium *agent.Consortium
	Breaker    *risk.TradingBreaker
	Exits      *exits.Engine
	Events     *events.Broadcaster
	Store      Store
}

// New creates an orchestrator; trading starts enabled
func New(deps Deps, opts Options) *Orchestrator {
	if opts.TickInterval <= 0 {
		opts.TickInterval = defaultTickInterval
	}
	if opts.SnapshotInterval <= 0 {
		opts.SnapshotInterval = defaultSnapshotInterval
	}

	byID := make(map[string]*agent.Agent, len(deps.Agents))
	for _, a := range deps.Agents {
		byID[a.ID()] = a
	}
	if deps.Meta != nil {
		byID[deps.Meta.ID()] = deps.Meta
	}

	o := &Orchestrator{
		clock:      deps.Clock,
		broker:     deps.Broker,
		smart:      deps.SmartMoney,
		analyzer:   deps.Analyzer,
		agents:     deps.Agents,
		agentsByID: byID,
		meta:       deps.Meta,
		consortium: deps.Consortium,
		breaker:    deps.Breaker,
		exits:      deps.Exits,
		events:     deps.Events,
		store:      deps.Store,
		logger:     log.With().Str("component", "orchestrator").Logger(),
		opts:       opts,
		now:        time.Now,
		lastCycle:  map[string]agent.Outcome{},
	}
	o.tradingEnabled.Store(true)
	return o
}

// Run blocks until the context is cancelled, driving the tick loop and the
// capital snapshot loop.
func (o *Orchestrator) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		ticker := time.NewTicker(o.opts.TickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				o.fireTick(ctx)
			}
		}
	})

	g.Go(func() error {
		ticker := time.NewTicker(o.opts.SnapshotInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				o.snapshotCapital(ctx)
			}
		}
	})

	o.logger.Info().
		Dur("tick_interval", o.opts.TickInterval).
		Int("agents", len(o.agents)).
		Msg("Orchestrator started")
	return g.Wait()
}

// fireTick runs a tick unless one is already in flight. A tick fired while
// busy is dropped, or queued at most once when configured.
func (o *Orchestrator) fireTick(ctx context.Context) {
	if !o.inFlight.CompareAndSwap(false, true) {
		if o.opts.QueueMissedTick {
			o.queued.Store(true)
		} else {
			o.logger.Warn().Msg("Tick dropped, previous still in flight")
		}
		return
	}
	defer func() {
		o.inFlight.Store(false)
		if o.queued.CompareAndSwap(true, false) {
			o.fireTick(ctx)
		}
	}()
	o.tick(ctx)
}

// ForceTick runs one tick immediately, dropping it if one is in flight
func (o *Orchestrator) ForceTick(ctx context.Context) {
	o.fireTick(ctx)
}

func (o *Orchestrator) tick(ctx context.Context) {
	start := o.now()
	o.mu.Lock()
	o.lastTickAt = start
	o.mu.Unlock()

	if !o.tradingEnabled.Load() {
		o.logger.Debug().Msg("Trading disabled, tick skipped")
		return
	}

	verdict := o.clock.Check(start)
	if !verdict.CanTrade {
		kind := events.KindMarketHoursBlocked
		if !verdict.IsOpen {
			kind = events.KindMarketClosed
		}
		o.events.Publish(events.Event{Kind: kind, Payload: map[string]any{
			"status": string(verdict.Status),
			"window": string(verdict.Window),
			"reason": verdict.Reason,
		}})
		metrics.RecordBlockedTick(string(verdict.Window))
		o.logger.Info().Str("reason", verdict.Reason).Msg("Tick blocked by market clock")
		return
	}

	// Forced exits happen before any agent may open a new position
	o.sweepExits(ctx)

	in, err := o.gatherInputs(ctx)
	if err != nil {
		o.events.Publish(events.Event{Kind: events.KindError, Payload: map[string]any{"message": err.Error()}})
		o.logger.Error().Err(err).Msg("Tick aborted, market context unavailable")
		return
	}

	cycle := o.runAgents(ctx, in)
	o.runConsortium(ctx, in, cycle)

	o.mu.Lock()
	o.lastCycle = cycle
	o.mu.Unlock()

	payload := map[string]any{}
	for name, out := range cycle {
		entry := map[string]any{"executed": out.Executed, "reason": out.Reason}
		if out.Decision != nil {
			entry["decision"] = out.Decision.Decision
			entry["symbol"] = out.Decision.Symbol
			entry["confidence"] = out.Decision.Confidence
		}
		payload[name] = entry
	}
	o.events.Publish(events.Event{Kind: events.KindTradingCycle, Payload: payload})

	elapsed := o.now().Sub(start)
	metrics.RecordTick(float64(elapsed.Milliseconds()))
	o.logger.Info().
		Dur("duration", elapsed).
		Int("agents", len(cycle)).
		Msg("Trading cycle complete")
}

// sweepExits evaluates every registered exit level and executes the forced
// sells immediately.
func (o *Orchestrator) sweepExits(ctx context.Context) {
	for _, lvl := range o.exits.Levels() {
		quote, err := o.broker.GetLatestQuote(ctx, lvl.Symbol)
		if err != nil || quote.LastPrice <= 0 {
			continue
		}

		signal := smartmoney.Neutral
		if summary, err := o.smart.Summary(ctx, lvl.Symbol); err == nil {
			signal = summary.OverallSignal
		}

		ord := o.exits.Evaluate(lvl.AgentID, lvl.Symbol, exits.Inputs{
			CurrentPrice:     quote.LastPrice,
			SmartMoneySignal: signal,
		})
		if ord == nil {
			continue
		}
		a, ok := o.agentsByID[ord.AgentID]
		if !ok {
			continue
		}
		if ok, reason := a.ExecuteExit(ctx, ord); !ok {
			o.logger.Warn().Str("symbol", ord.Symbol).Str("reason", reason).Msg("Forced exit failed")
			continue
		}
		metrics.RecordAutoExit(string(ord.Reason))
		o.events.Publish(events.Event{
			Kind:      events.KindAutoExit,
			AgentName: a.Name(),
			Symbol:    ord.Symbol,
			Payload: map[string]any{
				"reason":  string(ord.Reason),
				"urgency": string(ord.Urgency),
				"pnl_pct": ord.PnLPct,
				"price":   ord.Price,
			},
		})
	}
}

// gatherInputs builds the shared per-tick market context: movers, the
// smart-money snapshot, and technicals plus summaries for every symbol of
// interest.
func (o *Orchestrator) gatherInputs(ctx context.Context) (agent.MarketInputs, error) {
	in := agent.MarketInputs{
		Summaries:  map[string]*smartmoney.Summary{},
		Technicals: map[string]*indicators.TechnicalAnalysis{},
	}

	snapshot, err := o.smart.Snapshot(ctx)
	if err != nil {
		o.logger.Warn().Err(err).Msg("Smart-money snapshot unavailable, proceeding without")
	} else {
		in.Snapshot = snapshot
	}

	movers, err := o.broker.GetMovers(ctx, moverLimit*2)
	if err != nil {
		o.logger.Warn().Err(err).Msg("Movers unavailable this cycle")
	}
	for _, m := range movers {
		if !universe.IsAllowed(m.Symbol) {
			continue
		}
		in.Movers = append(in.Movers, m)
		if len(in.Movers) >= moverLimit {
			break
		}
	}

	symbols := map[string]struct{}{}
	for _, m := range in.Movers {
		symbols[m.Symbol] = struct{}{}
	}
	// Held positions need technicals too, for sells and exit context
	for _, a := range o.agents {
		for _, p := range a.Positions() {
			symbols[p.Symbol] = struct{}{}
		}
	}
	if len(symbols) == 0 {
		return in, nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)
	for symbol := range symbols {
		g.Go(func() error {
			bars, err := o.broker.GetMarketData(gctx, symbol, marketDataDays)
			if err != nil {
				o.logger.Debug().Err(err).Str("symbol", symbol).Msg("No market data")
				return nil
			}
			ta, err := o.analyzer.Analyze(symbol, bars)
			if err != nil {
				return nil
			}
			summary, _ := o.smart.Summary(gctx, symbol)

			mu.Lock()
			in.Technicals[symbol] = ta
			if summary != nil {
				in.Summaries[symbol] = summary
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return in, err
	}

	marks := map[string]float64{}
	for sym, ta := range in.Technicals {
		marks[sym] = ta.CurrentPrice
	}
	for _, a := range o.agents {
		a.UpdateMarks(marks)
	}
	if o.meta != nil {
		o.meta.UpdateMarks(marks)
	}
	return in, nil
}

// runAgents runs every solo agent with bounded parallelism
func (o *Orchestrator) runAgents(ctx context.Context, in agent.MarketInputs) map[string]agent.Outcome {
	cycle := make(map[string]agent.Outcome, len(o.agents))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(agentConcurrency)
	for _, a := range o.agents {
		g.Go(func() error {
			var out agent.Outcome
			if ok, reason := o.breaker.CanTrade(a.ID(), a.Equity()); !ok {
				out = agent.Outcome{Blocked: true, Reason: "circuit breaker: " + reason}
				o.logger.Info().Str("agent", a.Name()).Str("reason", reason).Msg("Agent paused by circuit breaker")
			} else {
				out = a.Tick(gctx, in)
			}
			recordOutcome(a.Name(), out)
			mu.Lock()
			cycle[a.Name()] = out
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return cycle
}

// runConsortium combines the solo decisions and executes the meta decision
// through the same gate stack
func (o *Orchestrator) runConsortium(ctx context.Context, in agent.MarketInputs, cycle map[string]agent.Outcome) {
	if o.consortium == nil || o.meta == nil {
		return
	}

	votes := make([]agent.Vote, 0, len(o.agents))
	for _, a := range o.agents {
		out, ok := cycle[a.Name()]
		if !ok {
			continue
		}
		votes = append(votes, agent.Vote{
			AgentName:      a.Name(),
			Decision:       out.Decision,
			PerformancePct: a.PerformancePct(),
		})
	}
	if len(votes) == 0 {
		return
	}

	combined := o.consortium.Combine(votes)
	metrics.RecordConsortiumDecision(combined.Decision)
	var out agent.Outcome
	if ok, reason := o.breaker.CanTrade(o.meta.ID(), o.meta.Equity()); !ok {
		out = agent.Outcome{Decision: combined, Blocked: true, Reason: "circuit breaker: " + reason}
	} else {
		out = o.meta.ExecuteTrade(ctx, combined, in)
	}
	recordOutcome(o.meta.Name(), out)
	cycle[o.meta.Name()] = out
}

// recordOutcome feeds the per-agent trade and block counters
func recordOutcome(name string, out agent.Outcome) {
	switch {
	case out.Executed && out.Decision != nil && out.Decision.Decision != "HOLD":
		metrics.RecordTrade(name, out.Decision.Decision)
	case out.Blocked:
		metrics.RecordBlockedDecision(name, blockLayer(out.Reason))
	}
}

// blockLayer maps a block reason to its bounded safety-layer label
func blockLayer(reason string) string {
	for _, layer := range []string{"circuit breaker", "technical gates", "signal combiner", "earnings"} {
		if strings.HasPrefix(reason, layer) {
			return strings.ReplaceAll(layer, " ", "_")
		}
	}
	return "other"
}

// snapshotCapital records one equity-curve point per agent
func (o *Orchestrator) snapshotCapital(ctx context.Context) {
	if o.store == nil {
		return
	}
	at := o.now().UTC()
	all := o.agents
	if o.meta != nil {
		all = append(append([]*agent.Agent{}, o.agents...), o.meta)
	}
	for _, a := range all {
		equity := a.Equity()
		snap := &db.SnapshotRow{
			AgentID:        a.ID(),
			Capital:        equity,
			PerformancePct: a.PerformancePct(),
			PositionsValue: equity - a.Cash(),
			SnapshotAt:     at,
		}
		if err := o.store.InsertSnapshot(ctx, snap); err != nil {
			o.logger.Warn().Err(err).Str("agent", a.Name()).Msg("Failed to persist snapshot")
		}
	}
}
