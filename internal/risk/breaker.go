// Package risk guards trading with per-agent drawdown breakers and
// gobreaker-wrapped external-service circuits
package risk

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Drawdown and streak thresholds
const (
	DailyMaxDrawdownPct  = 0.05
	WeeklyMaxDrawdownPct = 0.10
	MaxConsecutiveLosses = 5

	DailyPause      = 24 * time.Hour
	WeeklyPause     = 7 * 24 * time.Hour
	LossStreakPause = 4 * time.Hour

	winStreakMultiplier  = 1.2
	lossStreakMultiplier = 0.7
)

type agentState struct {
	dailyPnL    float64
	dailyTrades int
	dailyDate   string // YYYY-MM-DD of the daily bucket

	weeklyPnL    float64
	weeklyTrades int
	weekAnchor   string // ISO year-week of the weekly bucket

	consecutiveWins   int
	consecutiveLosses int

	pausedUntil time.Time
	pauseReason string
}

// TradingBreaker pauses agents after excessive drawdowns or loss streaks.
// Pauses release themselves once their deadline elapses.
type TradingBreaker struct {
	mu     sync.Mutex
	agents map[string]*agentState
	now    func() time.Time
	logger zerolog.Logger
}

// NewTradingBreaker creates an empty breaker
func NewTradingBreaker() *TradingBreaker {
	return &TradingBreaker{
		agents: make(map[string]*agentState),
		now:    time.Now,
		logger: log.With().Str("component", "breaker").Logger(),
	}
}

func (b *TradingBreaker) state(agentID string) *agentState {
	s, ok := b.agents[agentID]
	if !ok {
		s = &agentState{}
		b.agents[agentID] = s
	}
	return s
}

func weekAnchor(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

// rollBuckets resets the daily and weekly accumulators when the calendar
// has advanced past them
func (b *TradingBreaker) rollBuckets(s *agentState, at time.Time) {
	day := at.Format("2006-01-02")
	if s.dailyDate != day {
		s.dailyDate = day
		s.dailyPnL = 0
		s.dailyTrades = 0
	}
	week := weekAnchor(at)
	if s.weekAnchor != week {
		s.weekAnchor = week
		s.weeklyPnL = 0
		s.weeklyTrades = 0
	}
}

// CanTrade reports whether the agent may open a trade right now. The
// reason is empty when trading is allowed.
func (b *TradingBreaker) CanTrade(agentID string, capital float64) (bool, string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	s := b.state(agentID)
	b.rollBuckets(s, now)

	if !s.pausedUntil.IsZero() {
		if now.Before(s.pausedUntil) {
			return false, s.pauseReason
		}
		s.pausedUntil = time.Time{}
		s.pauseReason = ""
		// A fresh streak re-arms the loss breaker after release
		s.consecutiveLosses = 0
		b.logger.Info().Str("agent_id", agentID).Msg("Trading pause released")
	}

	if capital > 0 {
		if s.dailyPnL <= -capital*DailyMaxDrawdownPct {
			b.pause(s, agentID, now, DailyPause,
				fmt.Sprintf("daily drawdown %.2f%% exceeds %.0f%% limit", -s.dailyPnL/capital*100, DailyMaxDrawdownPct*100))
			return false, s.pauseReason
		}
		if s.weeklyPnL <= -capital*WeeklyMaxDrawdownPct {
			b.pause(s, agentID, now, WeeklyPause,
				fmt.Sprintf("weekly drawdown %.2f%% exceeds %.0f%% limit", -s.weeklyPnL/capital*100, WeeklyMaxDrawdownPct*100))
			return false, s.pauseReason
		}
	}

	return true, ""
}

func (b *TradingBreaker) pause(s *agentState, agentID string, now time.Time, d time.Duration, reason string) {
	s.pausedUntil = now.Add(d)
	s.pauseReason = reason
	b.logger.Warn().
		Str("agent_id", agentID).
		Str("reason", reason).
		Time("until", s.pausedUntil).
		Msg("Trading paused")
}

// RecordTradeResult feeds a closed trade's pnl into the agent's buckets
// and streaks
func (b *TradingBreaker) RecordTradeResult(agentID string, pnl, capital float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	s := b.state(agentID)
	b.rollBuckets(s, now)

	s.dailyPnL += pnl
	s.weeklyPnL += pnl
	s.dailyTrades++
	s.weeklyTrades++

	if pnl > 0 {
		s.consecutiveWins++
		s.consecutiveLosses = 0
	} else if pnl < 0 {
		s.consecutiveLosses++
		s.consecutiveWins = 0
	}

	// Trip once per crossing so the pause can release without retripping
	// on the same streak
	if s.consecutiveLosses == MaxConsecutiveLosses {
		b.pause(s, agentID, now, LossStreakPause,
			fmt.Sprintf("%d consecutive losses", s.consecutiveLosses))
	}
}

// SizingMultiplier returns the streak-based Kelly modifier: 1.2 on a hot
// streak, 0.7 on a cold one
func (b *TradingBreaker) SizingMultiplier(agentID string) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.state(agentID)
	switch {
	case s.consecutiveWins >= 5:
		return winStreakMultiplier
	case s.consecutiveLosses >= 3:
		return lossStreakMultiplier
	default:
		return 1.0
	}
}

// Streaks returns the agent's current win and loss streaks
func (b *TradingBreaker) Streaks(agentID string) (wins, losses int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.state(agentID)
	return s.consecutiveWins, s.consecutiveLosses
}

// Status describes one agent's breaker state for the control surface
type Status struct {
	AgentID           string     `json:"agent_id"`
	Paused            bool       `json:"paused"`
	PauseReason       string     `json:"pause_reason,omitempty"`
	PausedUntil       *time.Time `json:"paused_until,omitempty"`
	DailyPnL          float64    `json:"daily_pnl"`
	WeeklyPnL         float64    `json:"weekly_pnl"`
	DailyTrades       int        `json:"daily_trades"`
	ConsecutiveWins   int        `json:"consecutive_wins"`
	ConsecutiveLosses int        `json:"consecutive_losses"`
}

// AgentStatus returns a snapshot of the agent's breaker state
func (b *TradingBreaker) AgentStatus(agentID string) Status {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	s := b.state(agentID)
	b.rollBuckets(s, now)

	st := Status{
		AgentID:           agentID,
		DailyPnL:          s.dailyPnL,
		WeeklyPnL:         s.weeklyPnL,
		DailyTrades:       s.dailyTrades,
		ConsecutiveWins:   s.consecutiveWins,
		ConsecutiveLosses: s.consecutiveLosses,
	}
	if !s.pausedUntil.IsZero() && now.Before(s.pausedUntil) {
		st.Paused = true
		st.PauseReason = s.pauseReason
		until := s.pausedUntil
		st.PausedUntil = &until
	}
	return st
}
