// Package agent implements the LLM-backed trader: market analysis, the
// gate stack, sizing, order execution and all per-trade bookkeeping.
package agent

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/alphadesk/alphadesk/internal/broker"
	"github.com/alphadesk/alphadesk/internal/config"
	"github.com/alphadesk/alphadesk/internal/db"
	"github.com/alphadesk/alphadesk/internal/earnings"
	"github.com/alphadesk/alphadesk/internal/exits"
	"github.com/alphadesk/alphadesk/internal/gates"
	"github.com/alphadesk/alphadesk/internal/indicators"
	"github.com/alphadesk/alphadesk/internal/llm"
	"github.com/alphadesk/alphadesk/internal/memory"
	"github.com/alphadesk/alphadesk/internal/metrics"
	"github.com/alphadesk/alphadesk/internal/risk"
	"github.com/alphadesk/alphadesk/internal/signal"
	"github.com/alphadesk/alphadesk/internal/sizing"
	"github.com/alphadesk/alphadesk/internal/smartmoney"
	"github.com/alphadesk/alphadesk/internal/universe"
)

const (
	autocritiqueEvery   = 5
	recentDecisionLimit = 10
	autocritiqueTimeout = 2 * time.Minute
)

// LLM is the completion surface the agent needs from the model client
type LLM interface {
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	Model() string
}

// Recorder persists trades, positions and autocritiques. A nil recorder
// keeps the agent fully in-memory.
type Recorder interface {
	InsertTrade(ctx context.Context, t *db.TradeRow) error
	UpsertPosition(ctx context.Context, p *db.PositionRow) error
	DeletePosition(ctx context.Context, agentID, symbol string) error
	UpdateAgentCapital(ctx context.Context, agentID string, capital, totalFees float64) error
	InsertAutocritique(ctx context.Context, a *db.AutocritiqueRow) error
}

// Decision is the structured trade decision expected from the LLM
type Decision struct {
	Decision   string  `json:"decision"` // BUY, SELL, HOLD
	Symbol     string  `json:"symbol"`
	Quantity   float64 `json:"quantity"`
	Confidence int     `json:"confidence"`
	RiskLevel  string  `json:"risk_level"` // LOW, MEDIUM, HIGH
	Reasoning  string  `json:"reasoning"`
}

// Outcome is the full result of one agent turn
type Outcome struct {
	Decision *Decision               `json:"decision"`
	Executed bool                    `json:"executed"`
	Reason   string                  `json:"reason"`
	Blocked  bool                    `json:"blocked"`
	Combined *signal.Combined        `json:"combined,omitempty"`
	Sizing   *sizing.PositionSizing  `json:"sizing,omitempty"`
	Order    *broker.Order           `json:"order,omitempty"`
}

// MarketInputs is the shared per-tick context the orchestrator hands every
// agent
type MarketInputs struct {
	Snapshot   *smartmoney.MarketSnapshot
	Summaries  map[string]*smartmoney.Summary
	Technicals map[string]*indicators.TechnicalAnalysis
	Movers     []broker.Mover
}

// VIX returns the snapshot VIX, zero when unknown
func (in MarketInputs) VIX() float64 {
	if in.Snapshot == nil {
		return 0
	}
	return in.Snapshot.VIX.VIX
}

// Sentiment returns the snapshot market sentiment, NEUTRAL when unknown
func (in MarketInputs) Sentiment() string {
	if in.Snapshot == nil || in.Snapshot.Sentiment == "" {
		return "NEUTRAL"
	}
	return in.Snapshot.Sentiment
}

// Position is the agent's own view of one holding
type Position struct {
	Symbol     string  `json:"symbol"`
	Quantity   float64 `json:"quantity"`
	EntryPrice float64 `json:"entry_price"`
	LastPrice  float64 `json:"last_price"`
}

// Deps are the shared subsystems injected at construction
type Deps struct {
	LLM      LLM
	Broker   broker.Broker
	Memory   *memory.Service
	Sizer    *sizing.Sizer
	Combiner *signal.Combiner
	Gates    *gates.Evaluator
	Earnings *earnings.Service
	Exits    *exits.Engine
	Breaker  *risk.TradingBreaker
	Recorder Recorder
}

// Agent is one LLM trader with its own virtual capital and positions
type Agent struct {
	id          string
	name        string
	personality string

	llm      LLM
	broker   broker.Broker
	memory   *memory.Service
	sizer    *sizing.Sizer
	combiner *signal.Combiner
	gates    *gates.Evaluator
	earnings *earnings.Service
	exits    *exits.Engine
	breaker  *risk.TradingBreaker
	recorder Recorder
	logger   zerolog.Logger

	substituteSymbols bool
	feePerTrade       float64

	mu               sync.Mutex
	initialCapital   float64
	cash             float64
	totalFees        float64
	positions        map[string]*Position
	decisionCount    int
	lastAutocritique string
	feedback         string
	recentDecisions  []Decision
}

// New creates an agent from its roster spec
func New(spec config.AgentSpec, initialCapital, feePerTrade float64, substituteSymbols bool, deps Deps) *Agent {
	return &Agent{
		id:                spec.ID,
		name:              spec.Name,
		personality:       spec.Personality,
		llm:               deps.LLM,
		broker:            deps.Broker,
		memory:            deps.Memory,
		sizer:             deps.Sizer,
		combiner:          deps.Combiner,
		gates:             deps.Gates,
		earnings:          deps.Earnings,
		exits:             deps.Exits,
		breaker:           deps.Breaker,
		recorder:          deps.Recorder,
		logger:            config.NewAgentLogger(spec.ID, spec.Name),
		substituteSymbols: substituteSymbols,
		feePerTrade:       feePerTrade,
		initialCapital:    initialCapital,
		cash:              initialCapital,
		positions:         make(map[string]*Position),
	}
}

// ID returns the agent's stable identifier
func (a *Agent) ID() string { return a.id }

// Name returns the agent's display name
func (a *Agent) Name() string { return a.name }

// RestoreCapital seeds capital and fees from a persisted agent row
func (a *Agent) RestoreCapital(cash, totalFees float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cash = cash
	a.totalFees = totalFees
}

// RestorePosition seeds one persisted position
func (a *Agent) RestorePosition(symbol string, quantity, entryPrice float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.positions[symbol] = &Position{Symbol: symbol, Quantity: quantity, EntryPrice: entryPrice, LastPrice: entryPrice}
}

// Cash returns the uninvested capital
func (a *Agent) Cash() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cash
}

// TotalFees returns the cumulative fees paid on confirmed fills
func (a *Agent) TotalFees() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.totalFees
}

// Positions returns a copy of the open positions
func (a *Agent) Positions() []Position {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Position, 0, len(a.positions))
	for _, p := range a.positions {
		out = append(out, *p)
	}
	return out
}

// UpdateMarks refreshes last prices from the latest market data
func (a *Agent) UpdateMarks(prices map[string]float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for sym, price := range prices {
		if p, ok := a.positions[sym]; ok && price > 0 {
			p.LastPrice = price
		}
	}
}

// Equity is cash plus positions at last marks
func (a *Agent) Equity() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.equityLocked()
}

func (a *Agent) equityLocked() float64 {
	equity := a.cash
	for _, p := range a.positions {
		equity += p.Quantity * p.LastPrice
	}
	return equity
}

// PerformancePct is the total return against initial capital, in percent
func (a *Agent) PerformancePct() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.initialCapital <= 0 {
		return 0
	}
	return (a.equityLocked() - a.initialCapital) / a.initialCapital * 100
}

// LastAutocritique returns the latest self-review, empty until the first
// one completes
func (a *Agent) LastAutocritique() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastAutocritique
}

// SetFeedback injects corrective feedback into the next prompt
func (a *Agent) SetFeedback(feedback string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.feedback = feedback
}

// AnalyzeMarket runs one decision turn: prompt assembly, LLM invocation and
// JSON extraction. Every fifth call also kicks off an asynchronous
// autocritique.
func (a *Agent) AnalyzeMarket(ctx context.Context, in MarketInputs) (*Decision, error) {
	a.mu.Lock()
	a.decisionCount++
	count := a.decisionCount
	feedback := a.feedback
	a.feedback = ""
	a.mu.Unlock()

	if count%autocritiqueEvery == 0 {
		go a.runAutocritique()
	}

	system := a.systemPrompt()
	user := a.userPrompt(ctx, in, feedback)

	llmStart := time.Now()
	content, err := a.llm.CompleteWithSystem(ctx, system, user)
	if err != nil {
		return nil, fmt.Errorf("llm analysis failed: %w", err)
	}

	decision, err := a.parseDecision(content)
	if err != nil {
		// One retry with explicit feedback, then give up and hold
		retryUser := user + "\n\nIMPORTANT: your previous reply contained no valid JSON object. Reply with ONLY the JSON decision object, no prose."
		content, err = a.llm.CompleteWithSystem(ctx, system, retryUser)
		if err != nil {
			return nil, fmt.Errorf("llm retry failed: %w", err)
		}
		decision, err = a.parseDecision(content)
		if err != nil {
			a.logger.Warn().Msg("No valid JSON after retry, holding")
			decision = &Decision{Decision: "HOLD", Reasoning: "model returned no parseable decision"}
		}
	}

	metrics.RecordLLMDecision(a.llm.Model(), decision.Decision, float64(time.Since(llmStart).Milliseconds()))

	a.mu.Lock()
	a.recentDecisions = append(a.recentDecisions, *decision)
	if len(a.recentDecisions) > recentDecisionLimit {
		a.recentDecisions = a.recentDecisions[len(a.recentDecisions)-recentDecisionLimit:]
	}
	a.mu.Unlock()

	a.logger.Info().
		Str("decision", decision.Decision).
		Str("symbol", decision.Symbol).
		Int("confidence", decision.Confidence).
		Msg("Market analysis complete")
	return decision, nil
}

func (a *Agent) parseDecision(content string) (*Decision, error) {
	var d Decision
	if err := llm.ExtractJSON(content, &d); err != nil {
		return nil, err
	}

	d.Decision = strings.ToUpper(strings.TrimSpace(d.Decision))
	d.RiskLevel = strings.ToUpper(strings.TrimSpace(d.RiskLevel))
	d.Symbol = strings.ToUpper(strings.TrimSpace(d.Symbol))
	if d.RiskLevel == "" {
		d.RiskLevel = "MEDIUM"
	}
	if d.Confidence < 0 {
		d.Confidence = 0
	}
	if d.Confidence > 100 {
		d.Confidence = 100
	}

	switch d.Decision {
	case "BUY", "SELL":
		if d.Symbol == "" || d.Quantity < 0 {
			return &Decision{Decision: "HOLD", Reasoning: "invalid decision: missing symbol or negative quantity"}, nil
		}
		symbol, ok := universe.Validate(d.Symbol, a.substituteSymbols)
		if !ok {
			return &Decision{
				Decision:  "HOLD",
				Reasoning: fmt.Sprintf("%s is outside the tradable universe", d.Symbol),
			}, nil
		}
		d.Symbol = symbol
	case "HOLD":
	default:
		return &Decision{Decision: "HOLD", Reasoning: "unrecognized decision action"}, nil
	}
	return &d, nil
}

// Tick runs one full decision-and-execution turn, with a single retry on a
// recoverable execution failure.
func (a *Agent) Tick(ctx context.Context, in MarketInputs) Outcome {
	decision, err := a.AnalyzeMarket(ctx, in)
	if err != nil {
		return Outcome{Reason: err.Error()}
	}

	out := a.ExecuteTrade(ctx, decision, in)
	if !out.Executed && !out.Blocked && recoverable(out.Reason) {
		a.SetFeedback("Your previous order failed: " + out.Reason + ". Adjust the symbol, quantity or decision accordingly.")
		retryDecision, err := a.AnalyzeMarket(ctx, in)
		if err != nil {
			return out
		}
		retry := a.ExecuteTrade(ctx, retryDecision, in)
		if retry.Executed {
			return retry
		}
	}
	return out
}

func recoverable(reason string) bool {
	lower := strings.ToLower(reason)
	return strings.Contains(lower, "insufficient") ||
		strings.Contains(lower, "no price") ||
		strings.Contains(lower, "no quote") ||
		strings.Contains(lower, "reject")
}

// ExecuteTrade pushes a decision through the gate stack, sizes it and
// submits the order. The returned outcome carries the reason when nothing
// was executed.
func (a *Agent) ExecuteTrade(ctx context.Context, d *Decision, in MarketInputs) Outcome {
	out := Outcome{Decision: d}
	if d == nil || d.Decision == "HOLD" {
		out.Executed = true
		out.Reason = "hold"
		return out
	}

	ta := in.Technicals[d.Symbol]
	sm := in.Summaries[d.Symbol]

	// Earnings gate: never buy into an imminent report
	earningsMultiplier := 1.0
	if a.earnings != nil {
		if info, err := a.earnings.Check(ctx, d.Symbol); err == nil && info != nil {
			if d.Decision == "BUY" && info.ShouldAvoidBuy {
				out.Blocked = true
				out.Reason = "earnings risk: " + info.Message
				a.logger.Info().Str("symbol", d.Symbol).Msg("Blocked by earnings calendar")
				return out
			}
			if info.PositionSizeMultiplier > 0 {
				earningsMultiplier = info.PositionSizeMultiplier
			}
		}
	}

	// Technical gates
	if ta != nil {
		gateResult := a.gates.Evaluate(d.Decision, ta)
		if !gateResult.CanProceed {
			out.Blocked = true
			out.Reason = "technical gates: " + strings.Join(gateResult.Messages, "; ")
			a.logger.Info().Str("symbol", d.Symbol).Strs("messages", gateResult.Messages).Msg("Blocked by technical gates")
			return out
		}
	}

	// Signal combiner
	evidence := a.memoryEvidence(ctx, d.Symbol, d.Confidence)
	combined := a.combiner.Combine(d.Decision, d.Confidence, d.Symbol, sm, evidence)
	out.Combined = &combined
	if !combined.ShouldProceed {
		out.Blocked = true
		out.Reason = "signal combiner: " + combined.Reasoning
		return out
	}

	switch d.Decision {
	case "BUY":
		return a.executeBuy(ctx, d, in, combined, earningsMultiplier, out)
	default:
		return a.executeSell(ctx, d, in, out)
	}
}

func (a *Agent) memoryEvidence(ctx context.Context, symbol string, confidence int) *signal.MemoryEvidence {
	evidence := &signal.MemoryEvidence{SymbolWinRate: -1, BucketWinRate: -1}
	if a.memory == nil {
		return evidence
	}

	similar, err := a.memory.GetSimilarTrades(ctx, a.id, memory.Filter{Symbol: symbol}, 20)
	if err == nil && len(similar) >= 3 {
		wins := 0
		for _, m := range similar {
			if m.Success != nil && *m.Success {
				wins++
			}
			if m.Success != nil && !*m.Success && m.LessonLearned != "" {
				evidence.NegativeLessons++
			}
		}
		evidence.SymbolWinRate = float64(wins) / float64(len(similar))
	}

	byConfidence, err := a.memory.PerformanceByCriteria(ctx, a.id, memory.ByConfidence)
	if err == nil {
		if bucket, ok := byConfidence[memory.ConfidenceBucket(confidence)]; ok && bucket.Total >= 3 {
			evidence.BucketWinRate = bucket.WinRate
		}
	}
	return evidence
}

func (a *Agent) executeBuy(ctx context.Context, d *Decision, in MarketInputs,
	combined signal.Combined, earningsMultiplier float64, out Outcome) Outcome {

	a.mu.Lock()
	cash := a.cash
	a.mu.Unlock()

	smSignal := "NEUTRAL"
	if sm := in.Summaries[d.Symbol]; sm != nil {
		smSignal = string(sm.OverallSignal)
	}
	wins, losses := 0, 0
	if a.breaker != nil {
		wins, losses = a.breaker.Streaks(a.id)
	}
	stats, _ := a.memory.Statistics(ctx, a.id)

	sz := a.sizer.Calculate(stats, sizing.Inputs{
		Capital:           cash,
		Confidence:        combined.FinalConfidence,
		VIX:               in.VIX(),
		RiskLevel:         d.RiskLevel,
		SmartMoneySignal:  smSignal,
		ConsecutiveWins:   wins,
		ConsecutiveLosses: losses,
	})
	out.Sizing = &sz

	amount := sz.RecommendedAmount * combined.SizingMultiplier * earningsMultiplier
	if a.breaker != nil {
		amount *= a.breaker.SizingMultiplier(a.id)
	}

	price, limit, orderType := a.entryPrice(ctx, d.Symbol, broker.Buy, in)
	if price <= 0 {
		out.Reason = "no price available for " + d.Symbol
		return out
	}
	quantity := math.Floor(amount/price*10000) / 10000
	if quantity <= 0 {
		out.Reason = "sized quantity is zero"
		return out
	}
	if quantity*price+a.feePerTrade > cash {
		out.Reason = "insufficient capital"
		return out
	}
	d.Quantity = quantity

	order, err := a.broker.SubmitOrder(ctx, broker.OrderRequest{
		Symbol: d.Symbol, Side: broker.Buy, Type: orderType, Quantity: quantity, LimitPrice: limit,
	})
	if err != nil {
		out.Reason = fmt.Sprintf("order submission failed: %v", err)
		return out
	}
	out.Order = order
	if order.Status == broker.StatusRejected {
		out.Reason = "broker reject: " + order.RejectReason
		return out
	}

	fillPrice := order.FilledPrice
	if fillPrice <= 0 {
		fillPrice = price
	}
	a.settleBuy(ctx, d, in, combined, fillPrice, quantity)
	out.Executed = true
	out.Reason = "filled"
	return out
}

func (a *Agent) settleBuy(ctx context.Context, d *Decision, in MarketInputs,
	combined signal.Combined, fillPrice, quantity float64) {

	a.mu.Lock()
	a.cash -= fillPrice*quantity + a.feePerTrade
	a.totalFees += a.feePerTrade
	pos, ok := a.positions[d.Symbol]
	if !ok {
		pos = &Position{Symbol: d.Symbol, Quantity: quantity, EntryPrice: fillPrice, LastPrice: fillPrice}
		a.positions[d.Symbol] = pos
	} else {
		total := pos.Quantity + quantity
		pos.EntryPrice = (pos.EntryPrice*pos.Quantity + fillPrice*quantity) / total
		pos.Quantity = total
		pos.LastPrice = fillPrice
	}
	entryPrice := pos.EntryPrice
	posQty := pos.Quantity
	cash := a.cash
	fees := a.totalFees
	a.mu.Unlock()

	tradeID := a.persistTrade(ctx, d, "BUY", quantity, fillPrice, "")
	a.persistPosition(ctx, d.Symbol, posQty, entryPrice)
	a.persistCapital(ctx, cash, fees)

	mc := a.marketContext(d.Symbol, in)
	if _, err := a.memory.CreateTradeMemory(ctx, a.id, tradeID, d.Symbol, "BUY",
		fillPrice, quantity, d.Reasoning, combined.FinalConfidence, mc); err != nil {
		a.logger.Warn().Err(err).Msg("Failed to record trade memory")
	}

	smSignal := smartmoney.Neutral
	if sm := in.Summaries[d.Symbol]; sm != nil {
		smSignal = sm.OverallSignal
	}
	a.exits.Register(a.id, d.Symbol, fillPrice, quantity, combined.FinalConfidence, d.RiskLevel, in.VIX(), smSignal)

	a.logger.Info().
		Str("symbol", d.Symbol).
		Float64("qty", quantity).
		Float64("price", fillPrice).
		Msg("Buy filled")
}

func (a *Agent) executeSell(ctx context.Context, d *Decision, in MarketInputs, out Outcome) Outcome {
	a.mu.Lock()
	pos, ok := a.positions[d.Symbol]
	var held float64
	if ok {
		held = pos.Quantity
	}
	a.mu.Unlock()

	if !ok || held <= 0 {
		out.Reason = "no position held in " + d.Symbol
		return out
	}
	quantity := held
	if d.Quantity > 0 && d.Quantity < held {
		quantity = d.Quantity
	}

	price, limit, orderType := a.entryPrice(ctx, d.Symbol, broker.Sell, in)
	if price <= 0 {
		out.Reason = "no price available for " + d.Symbol
		return out
	}

	order, err := a.broker.SubmitOrder(ctx, broker.OrderRequest{
		Symbol: d.Symbol, Side: broker.Sell, Type: orderType, Quantity: quantity, LimitPrice: limit,
	})
	if err != nil {
		out.Reason = fmt.Sprintf("order submission failed: %v", err)
		return out
	}
	out.Order = order
	if order.Status == broker.StatusRejected {
		out.Reason = "broker reject: " + order.RejectReason
		return out
	}

	fillPrice := order.FilledPrice
	if fillPrice <= 0 {
		fillPrice = price
	}
	a.settleSell(ctx, d.Symbol, fillPrice, quantity, "")
	out.Executed = true
	out.Reason = "filled"
	return out
}

// settleSell applies the fill, closes the memory and records the realized
// result with the circuit breaker. The lesson is derived automatically
// unless one is supplied (forced exits).
func (a *Agent) settleSell(ctx context.Context, symbol string, fillPrice, quantity float64, lesson string) {
	a.mu.Lock()
	a.cash += fillPrice*quantity - a.feePerTrade
	a.totalFees += a.feePerTrade
	fullClose := false
	if pos, ok := a.positions[symbol]; ok {
		pos.Quantity -= quantity
		pos.LastPrice = fillPrice
		if pos.Quantity <= 1e-9 {
			delete(a.positions, symbol)
			fullClose = true
		}
	}
	var remaining *Position
	if p, ok := a.positions[symbol]; ok {
		cp := *p
		remaining = &cp
	}
	cash := a.cash
	fees := a.totalFees
	a.mu.Unlock()

	a.persistTrade(ctx, &Decision{Symbol: symbol, Reasoning: lesson}, "SELL", quantity, fillPrice, lesson)
	if fullClose {
		if a.recorder != nil {
			if err := a.recorder.DeletePosition(ctx, a.id, symbol); err != nil {
				a.logger.Warn().Err(err).Msg("Failed to delete persisted position")
			}
		}
		a.exits.Remove(a.id, symbol)
	} else if remaining != nil {
		a.persistPosition(ctx, symbol, remaining.Quantity, remaining.EntryPrice)
	}
	a.persistCapital(ctx, cash, fees)

	if fullClose {
		mem, err := a.memory.CloseTradeMemory(ctx, a.id, symbol, fillPrice, nil, lesson)
		switch {
		case err == nil && mem.PnL != nil:
			if a.breaker != nil {
				a.breaker.RecordTradeResult(a.id, *mem.PnL, cash)
			}
		case err != nil:
			// A sell with no open memory still updates capital and positions
			a.logger.Debug().Err(err).Str("symbol", symbol).Msg("No open memory to close")
		}
	}

	a.logger.Info().
		Str("symbol", symbol).
		Float64("qty", quantity).
		Float64("price", fillPrice).
		Bool("full_close", fullClose).
		Msg("Sell filled")
}

// ExecuteExit runs one forced exit from the exit engine sweep, bypassing
// the LLM and the gate stack.
func (a *Agent) ExecuteExit(ctx context.Context, ord *exits.Order) (bool, string) {
	order, err := a.broker.SubmitOrder(ctx, broker.OrderRequest{
		Symbol: ord.Symbol, Side: broker.Sell, Type: broker.Market, Quantity: ord.Quantity,
	})
	if err != nil {
		return false, fmt.Sprintf("exit order failed: %v", err)
	}
	if order.Status == broker.StatusRejected {
		return false, "broker reject: " + order.RejectReason
	}

	fillPrice := order.FilledPrice
	if fillPrice <= 0 {
		fillPrice = ord.Price
	}
	lesson := exits.LessonFor(ord.Reason, ord.PnLPct)
	a.settleSell(ctx, ord.Symbol, fillPrice, ord.Quantity, lesson)

	a.logger.Info().
		Str("symbol", ord.Symbol).
		Str("reason", string(ord.Reason)).
		Float64("pnl_pct", ord.PnLPct).
		Msg("Forced exit executed")
	return true, string(ord.Reason)
}

// entryPrice resolves the order price: limit at bid×1.001 / ask×0.999 when
// a quote is available, market at the last known price otherwise.
func (a *Agent) entryPrice(ctx context.Context, symbol string, side broker.OrderSide, in MarketInputs) (price, limit float64, orderType broker.OrderType) {
	if quote, err := a.broker.GetLatestQuote(ctx, symbol); err == nil && quote.BidPrice > 0 && quote.AskPrice > 0 {
		if side == broker.Buy {
			limit = math.Round(quote.BidPrice*1.001*100) / 100
		} else {
			limit = math.Round(quote.AskPrice*0.999*100) / 100
		}
		return limit, limit, broker.Limit
	}
	if ta := in.Technicals[symbol]; ta != nil && ta.CurrentPrice > 0 {
		return ta.CurrentPrice, 0, broker.Market
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if p, ok := a.positions[symbol]; ok && p.LastPrice > 0 {
		return p.LastPrice, 0, broker.Market
	}
	return 0, 0, broker.Market
}

func (a *Agent) marketContext(symbol string, in MarketInputs) memory.MarketContext {
	mc := memory.MarketContext{Sentiment: in.Sentiment(), VIXLevel: in.VIX()}
	if sm := in.Summaries[symbol]; sm != nil {
		mc.DarkPoolRatio = sm.DarkPool.EstimatedRatio
		mc.OptionsSentiment = sm.Options.Sentiment
		mc.InsiderActivity = sm.Insider.NetSentiment
	}
	if ta := in.Technicals[symbol]; ta != nil {
		mc.RSI = ta.RSI
		mc.VolumeRatio = ta.VolumeRatio
		mc.Trend = string(ta.Trend)
		mc.MACDSignal = string(ta.MACDSignal)
	}
	return mc
}

func (a *Agent) persistTrade(ctx context.Context, d *Decision, side string, quantity, price float64, exitReason string) string {
	if a.recorder == nil {
		return ""
	}
	trade := &db.TradeRow{
		AgentID:    a.id,
		Symbol:     d.Symbol,
		Decision:   side,
		Quantity:   quantity,
		Price:      price,
		Amount:     quantity * price,
		Fee:        a.feePerTrade,
		Confidence: d.Confidence,
		Reasoning:  d.Reasoning,
		ExitReason: exitReason,
		ExecutedAt: time.Now().UTC(),
	}
	if err := a.recorder.InsertTrade(ctx, trade); err != nil {
		a.logger.Warn().Err(err).Msg("Failed to persist trade")
	}
	return trade.ID
}

func (a *Agent) persistPosition(ctx context.Context, symbol string, quantity, entryPrice float64) {
	if a.recorder == nil {
		return
	}
	err := a.recorder.UpsertPosition(ctx, &db.PositionRow{
		AgentID: a.id, Symbol: symbol, Quantity: quantity, EntryPrice: entryPrice, UpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		a.logger.Warn().Err(err).Msg("Failed to persist position")
	}
}

func (a *Agent) persistCapital(ctx context.Context, cash, fees float64) {
	if a.recorder == nil {
		return
	}
	if err := a.recorder.UpdateAgentCapital(ctx, a.id, cash, fees); err != nil {
		a.logger.Warn().Err(err).Msg("Failed to persist capital")
	}
}

func (a *Agent) runAutocritique() {
	ctx, cancel := context.WithTimeout(context.Background(), autocritiqueTimeout)
	defer cancel()

	a.mu.Lock()
	recent := make([]Decision, len(a.recentDecisions))
	copy(recent, a.recentDecisions)
	fees := a.totalFees
	a.mu.Unlock()
	performance := a.PerformancePct()

	content, err := a.llm.CompleteWithSystem(ctx, a.systemPrompt(), autocritiquePrompt(recent, fees, performance))
	if err != nil {
		a.logger.Warn().Err(err).Msg("Autocritique failed")
		return
	}

	a.mu.Lock()
	a.lastAutocritique = content
	a.mu.Unlock()

	if a.recorder != nil {
		err := a.recorder.InsertAutocritique(ctx, &db.AutocritiqueRow{
			AgentID: a.id, Content: content, CreatedAt: time.Now().UTC(),
		})
		if err != nil {
			a.logger.Warn().Err(err).Msg("Failed to persist autocritique")
		}
	}
	a.logger.Info().Msg("Autocritique updated")
}
