package orchestrator

import (
	"context"
	"sort"
	"time"

	"github.com/alphadesk/alphadesk/internal/agent"
	"github.com/alphadesk/alphadesk/internal/db"
	"github.com/alphadesk/alphadesk/internal/events"
	"github.com/alphadesk/alphadesk/internal/risk"
)

// AgentInfo is one agent's public state for the control surface
type AgentInfo struct {
	ID             string           `json:"id"`
	Name           string           `json:"name"`
	Cash           float64          `json:"cash"`
	Equity         float64          `json:"equity"`
	PerformancePct float64          `json:"performance_pct"`
	TotalFees      float64          `json:"total_fees"`
	Positions      []agent.Position `json:"positions"`
	Breaker        risk.Status      `json:"breaker"`
	Autocritique   string           `json:"last_autocritique,omitempty"`
}

// TradingStatus is the orchestrator's public state
type TradingStatus struct {
	Enabled    bool      `json:"trading_enabled"`
	TickPeriod string    `json:"tick_period"`
	LastTickAt time.Time `json:"last_tick_at,omitempty"`
	AgentCount int       `json:"agent_count"`
}

// EnableTrading resumes the cycle
func (o *Orchestrator) EnableTrading() {
	if o.tradingEnabled.CompareAndSwap(false, true) {
		o.events.Publish(events.Event{Kind: events.KindTradingEnabled})
		o.logger.Info().Msg("Trading enabled")
	}
}

// DisableTrading pauses the cycle; ticks still fire but do nothing
func (o *Orchestrator) DisableTrading() {
	if o.tradingEnabled.CompareAndSwap(true, false) {
		o.events.Publish(events.Event{Kind: events.KindTradingDisabled})
		o.logger.Info().Msg("Trading disabled")
	}
}

// Status reports the orchestrator state
func (o *Orchestrator) Status() TradingStatus {
	o.mu.Lock()
	last := o.lastTickAt
	o.mu.Unlock()
	return TradingStatus{
		Enabled:    o.tradingEnabled.Load(),
		TickPeriod: o.opts.TickInterval.String(),
		LastTickAt: last,
		AgentCount: len(o.agents),
	}
}

// Agents lists every agent, meta included, in roster order
func (o *Orchestrator) Agents() []AgentInfo {
	all := o.agents
	if o.meta != nil {
		all = append(append([]*agent.Agent{}, o.agents...), o.meta)
	}
	out := make([]AgentInfo, 0, len(all))
	for _, a := range all {
		out = append(out, AgentInfo{
			ID:             a.ID(),
			Name:           a.Name(),
			Cash:           a.Cash(),
			Equity:         a.Equity(),
			PerformancePct: a.PerformancePct(),
			TotalFees:      a.TotalFees(),
			Positions:      a.Positions(),
			Breaker:        o.breaker.AgentStatus(a.ID()),
			Autocritique:   a.LastAutocritique(),
		})
	}
	return out
}

// Leaderboard is Agents sorted by performance, best first
func (o *Orchestrator) Leaderboard() []AgentInfo {
	infos := o.Agents()
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].PerformancePct > infos[j].PerformancePct
	})
	return infos
}

// LastCycle returns the most recent per-agent outcomes
func (o *Orchestrator) LastCycle() map[string]agent.Outcome {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[string]agent.Outcome, len(o.lastCycle))
	for k, v := range o.lastCycle {
		out[k] = v
	}
	return out
}

// RecentTrades lists the latest persisted trades; empty agentID means all
func (o *Orchestrator) RecentTrades(ctx context.Context, agentID string, limit int) ([]db.TradeRow, error) {
	if o.store == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}
	return o.store.RecentTrades(ctx, agentID, limit)
}

// Autocritiques lists the latest persisted self-reviews
func (o *Orchestrator) Autocritiques(ctx context.Context, agentID string, limit int) ([]db.AutocritiqueRow, error) {
	if o.store == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}
	return o.store.RecentAutocritiques(ctx, agentID, limit)
}

// PerformanceHistory returns an agent's equity curve over the horizon
func (o *Orchestrator) PerformanceHistory(ctx context.Context, agentID string, horizon time.Duration) ([]db.SnapshotRow, error) {
	if o.store == nil {
		return nil, nil
	}
	if horizon <= 0 {
		horizon = 24 * time.Hour
	}
	return o.store.PerformanceHistory(ctx, agentID, o.now().Add(-horizon))
}
