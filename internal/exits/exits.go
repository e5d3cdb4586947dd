// Package exits tracks protective levels per open position and decides
// forced exits before each trading cycle
package exits

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/alphadesk/alphadesk/internal/smartmoney"
)

// Reason identifies which rule forced the exit
type Reason string

const (
	StopLoss     Reason = "STOP_LOSS"
	TakeProfit   Reason = "TAKE_PROFIT"
	TrailingStop Reason = "TRAILING_STOP"
	TimeExit     Reason = "TIME_EXIT"
	SignalExit   Reason = "SIGNAL_EXIT"
	PartialTP    Reason = "PARTIAL_TAKE_PROFIT"
)

// Urgency ranks how fast the orchestrator should act
type Urgency string

const (
	Critical Urgency = "CRITICAL"
	High     Urgency = "HIGH"
	Medium   Urgency = "MEDIUM"
)

// Stop and target parameters
const (
	baseStopLossPct   = 0.03
	minStopLossPct    = 0.02
	maxStopLossPct    = 0.06
	baseTakeProfitPct = 0.06
	minTakeProfitPct  = 0.04
	maxTakeProfitPct  = 0.15

	trailingActivationPct = 0.04
	trailingDistancePct   = 0.015

	timeExitDays   = 10
	timeExitPnLPct = 1.0

	partialTakeProfitPct = 0.06
)

// Level is the protective state for one (agent, symbol) position
type Level struct {
	AgentID          string    `json:"agent_id"`
	Symbol           string    `json:"symbol"`
	EntryPrice       float64   `json:"entry_price"`
	Quantity         float64   `json:"quantity"`
	StopLossPrice    float64   `json:"stop_loss_price"`
	TakeProfitPrice  float64   `json:"take_profit_price"`
	StopLossPct      float64   `json:"stop_loss_pct"`
	TakeProfitPct    float64   `json:"take_profit_pct"`
	TrailingActive   bool      `json:"trailing_active"`
	HighestPrice     float64   `json:"highest_price"`
	TrailingStop     float64   `json:"trailing_stop_price"`
	PartialTaken     bool      `json:"partial_taken"`
	CreatedAt        time.Time `json:"created_at"`
}

// Order is one forced exit the orchestrator must execute as a SELL
type Order struct {
	AgentID   string  `json:"agent_id"`
	Symbol    string  `json:"symbol"`
	Quantity  float64 `json:"quantity"`
	Price     float64 `json:"price"`
	Reason    Reason  `json:"reason"`
	Urgency   Urgency `json:"urgency"`
	PnLPct    float64 `json:"pnl_pct"`
	Detail    string  `json:"detail"`
}

// Inputs are the per-position market facts for one sweep
type Inputs struct {
	CurrentPrice     float64
	SmartMoneySignal smartmoney.Signal
}

// Engine owns all exit levels and evaluates them in priority order
type Engine struct {
	mu            sync.Mutex
	levels        map[string]*Level // key agentID|symbol
	enablePartial bool
	now           func() time.Time
	logger        zerolog.Logger
}

// NewEngine creates an engine. Partial take-profit stays off unless enabled.
func NewEngine(enablePartial bool) *Engine {
	return &Engine{
		levels:        make(map[string]*Level),
		enablePartial: enablePartial,
		now:           time.Now,
		logger:        log.With().Str("component", "exits").Logger(),
	}
}

func key(agentID, symbol string) string {
	return agentID + "|" + symbol
}

// Register computes adaptive stop and target levels for a new position and
// starts tracking it
func (e *Engine) Register(agentID, symbol string, entry, quantity float64,
	confidence int, riskLevel string, vix float64, smartSignal smartmoney.Signal) *Level {

	slPct := adaptiveStopLossPct(confidence, riskLevel, vix)
	tpPct := adaptiveTakeProfitPct(confidence, riskLevel, vix, smartSignal)

	lvl := &Level{
		AgentID:         agentID,
		Symbol:          symbol,
		EntryPrice:      entry,
		Quantity:        quantity,
		StopLossPct:     slPct,
		TakeProfitPct:   tpPct,
		StopLossPrice:   entry * (1 - slPct),
		TakeProfitPrice: entry * (1 + tpPct),
		HighestPrice:    entry,
		CreatedAt:       e.now(),
	}

	e.mu.Lock()
	e.levels[key(agentID, symbol)] = lvl
	e.mu.Unlock()

	e.logger.Info().
		Str("agent_id", agentID).
		Str("symbol", symbol).
		Float64("stop_loss", lvl.StopLossPrice).
		Float64("take_profit", lvl.TakeProfitPrice).
		Msg("Exit levels registered")

	return lvl
}

// Remove drops tracking after a full close
func (e *Engine) Remove(agentID, symbol string) {
	e.mu.Lock()
	delete(e.levels, key(agentID, symbol))
	e.mu.Unlock()
}

// Get returns the tracked level, nil when absent
func (e *Engine) Get(agentID, symbol string) *Level {
	e.mu.Lock()
	defer e.mu.Unlock()

	lvl, ok := e.levels[key(agentID, symbol)]
	if !ok {
		return nil
	}
	copied := *lvl
	return &copied
}

// Levels returns every tracked (agent, symbol) pair
func (e *Engine) Levels() []Level {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]Level, 0, len(e.levels))
	for _, lvl := range e.levels {
		out = append(out, *lvl)
	}
	return out
}

// Evaluate checks one position against its levels and returns a forced
// exit order, or nil to keep holding. Rules run in priority order: stop
// loss, take profit, trailing stop, time, signal.
func (e *Engine) Evaluate(agentID, symbol string, in Inputs) *Order {
	e.mu.Lock()
	defer e.mu.Unlock()

	lvl, ok := e.levels[key(agentID, symbol)]
	if !ok || in.CurrentPrice <= 0 {
		return nil
	}

	pnlPct := (in.CurrentPrice - lvl.EntryPrice) / lvl.EntryPrice * 100

	if in.CurrentPrice <= lvl.StopLossPrice {
		return e.order(lvl, in.CurrentPrice, pnlPct, StopLoss, Critical,
			fmt.Sprintf("price %.2f breached stop %.2f", in.CurrentPrice, lvl.StopLossPrice))
	}

	if in.CurrentPrice >= lvl.TakeProfitPrice {
		return e.order(lvl, in.CurrentPrice, pnlPct, TakeProfit, High,
			fmt.Sprintf("price %.2f reached target %.2f", in.CurrentPrice, lvl.TakeProfitPrice))
	}

	if e.enablePartial && !lvl.PartialTaken && pnlPct >= partialTakeProfitPct*100 {
		lvl.PartialTaken = true
		half := lvl.Quantity / 2
		lvl.Quantity -= half
		lvl.TrailingActive = true
		lvl.HighestPrice = in.CurrentPrice
		lvl.TrailingStop = in.CurrentPrice * (1 - trailingDistancePct)
		return &Order{
			AgentID:  agentID,
			Symbol:   symbol,
			Quantity: half,
			Price:    in.CurrentPrice,
			Reason:   PartialTP,
			Urgency:  Medium,
			PnLPct:   pnlPct,
			Detail:   fmt.Sprintf("selling half at %+.1f%%, trailing the rest", pnlPct),
		}
	}

	// Trailing activates once the gain clears the threshold, then follows
	// the high-water mark
	if !lvl.TrailingActive && pnlPct >= trailingActivationPct*100 {
		lvl.TrailingActive = true
	}
	if lvl.TrailingActive {
		if in.CurrentPrice > lvl.HighestPrice {
			lvl.HighestPrice = in.CurrentPrice
		}
		lvl.TrailingStop = lvl.HighestPrice * (1 - trailingDistancePct)
		if in.CurrentPrice <= lvl.TrailingStop {
			return e.order(lvl, in.CurrentPrice, pnlPct, TrailingStop, High,
				fmt.Sprintf("price %.2f fell below trailing stop %.2f (high %.2f)", in.CurrentPrice, lvl.TrailingStop, lvl.HighestPrice))
		}
	}

	holdingDays := int(e.now().Sub(lvl.CreatedAt).Hours() / 24)
	if holdingDays >= timeExitDays && pnlPct < timeExitPnLPct && pnlPct > -timeExitPnLPct {
		return e.order(lvl, in.CurrentPrice, pnlPct, TimeExit, Medium,
			fmt.Sprintf("flat for %d days (%+.2f%%)", holdingDays, pnlPct))
	}

	if in.SmartMoneySignal == smartmoney.StrongBearish && pnlPct > 0 {
		return e.order(lvl, in.CurrentPrice, pnlPct, SignalExit, Medium,
			fmt.Sprintf("strong bearish flow, locking in %+.2f%%", pnlPct))
	}

	return nil
}

func (e *Engine) order(lvl *Level, price, pnlPct float64, reason Reason, urgency Urgency, detail string) *Order {
	e.logger.Warn().
		Str("agent_id", lvl.AgentID).
		Str("symbol", lvl.Symbol).
		Str("reason", string(reason)).
		Float64("pnl_pct", pnlPct).
		Msg("Forced exit triggered")

	return &Order{
		AgentID:  lvl.AgentID,
		Symbol:   lvl.Symbol,
		Quantity: lvl.Quantity,
		Price:    price,
		Reason:   reason,
		Urgency:  urgency,
		PnLPct:   pnlPct,
		Detail:   detail,
	}
}

// adaptiveStopLossPct tightens the stop in rough markets and for shaky
// decisions, clamped to [2%, 6%]
func adaptiveStopLossPct(confidence int, riskLevel string, vix float64) float64 {
	pct := baseStopLossPct
	if vix > 30 {
		pct *= 0.8
	} else if vix > 0 && vix < 15 {
		pct *= 1.1
	}
	if confidence < 60 {
		pct *= 0.8
	} else if confidence >= 85 {
		pct *= 1.1
	}
	if riskLevel == "HIGH" {
		pct *= 0.85
	}
	return clamp(pct, minStopLossPct, maxStopLossPct)
}

// adaptiveTakeProfitPct stretches the target with conviction and flow,
// clamped to [4%, 15%]
func adaptiveTakeProfitPct(confidence int, riskLevel string, vix float64, smartSignal smartmoney.Signal) float64 {
	pct := baseTakeProfitPct
	if vix > 30 {
		pct *= 0.8
	} else if vix > 0 && vix < 15 {
		pct *= 1.1
	}
	if confidence < 60 {
		pct *= 0.8
	} else if confidence >= 85 {
		pct *= 1.2
	}
	if riskLevel == "HIGH" {
		pct *= 0.85
	}
	if strings.Contains(string(smartSignal), "BULLISH") {
		pct *= 1.15
	} else if strings.Contains(string(smartSignal), "BEARISH") {
		pct *= 0.85
	}
	return clamp(pct, minTakeProfitPct, maxTakeProfitPct)
}

// LessonFor turns an exit reason into the memory lesson text
func LessonFor(reason Reason, pnlPct float64) string {
	switch reason {
	case StopLoss:
		return "Stop-loss triggered, entry timing was likely poor"
	case TakeProfit:
		return "Target reached, good trade management"
	case TrailingStop:
		return fmt.Sprintf("Trailing stop captured %+.1f%% after the peak", pnlPct)
	case TimeExit:
		return "Position went nowhere for too long, capital was better used elsewhere"
	case SignalExit:
		return "Exited into strong bearish flow while still profitable"
	case PartialTP:
		return "Took partial profit and let the rest run"
	default:
		return ""
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
