// Package memory persists enriched trade records and turns them into
// learning context for the agents
package memory

import "time"

// TradeMemory is one long-term learning record. Success stays nil until the
// closing leg matches; ExitPrice and PnL must be nil while it is open.
type TradeMemory struct {
	ID        string    `json:"id"`
	AgentID   string    `json:"agent_id"`
	TradeID   string    `json:"trade_id"`
	Symbol    string    `json:"symbol"`
	Sector    string    `json:"sector"`
	Decision  string    `json:"decision"` // BUY or SELL
	EntryPrice float64  `json:"entry_price"`
	Quantity  float64   `json:"quantity"`
	Reasoning string    `json:"reasoning"`
	Confidence int      `json:"confidence"`
	CreatedAt time.Time `json:"created_at"`

	ClosedAt             *time.Time `json:"closed_at,omitempty"`
	ExitPrice            *float64   `json:"exit_price,omitempty"`
	PnL                  *float64   `json:"pnl,omitempty"`
	PnLPercent           *float64   `json:"pnl_percent,omitempty"`
	Success              *bool      `json:"success,omitempty"`
	HoldingDurationHours int        `json:"holding_duration_hours"`
	LessonLearned        string     `json:"lesson_learned,omitempty"`

	// Market snapshot at entry
	MarketSentiment  string  `json:"market_sentiment"`
	VIXLevel         float64 `json:"vix_level"`
	MarketTrend      string  `json:"market_trend"`
	RSIValue         float64 `json:"rsi_value"`
	VolumeRatio      float64 `json:"volume_ratio"`
	DarkPoolRatio    float64 `json:"dark_pool_ratio"`
	OptionsSentiment string  `json:"options_sentiment"`
	InsiderActivity  string  `json:"insider_activity"`
}

// IsClosed reports whether the memory's outcome is known
func (m *TradeMemory) IsClosed() bool {
	return m.Success != nil
}

// AgentStatistics are the per-agent aggregates recomputed after each close
type AgentStatistics struct {
	AgentID       string  `json:"agent_id"`
	TotalTrades   int     `json:"total_trades"`
	WinRate       float64 `json:"win_rate"`
	WinLossRatio  float64 `json:"win_loss_ratio"`
	AvgWinPct     float64 `json:"avg_win_pct"`
	AvgLossPct    float64 `json:"avg_loss_pct"`
	KellyFraction float64 `json:"kelly_fraction"`
}

// WinningPattern captures the conditions of a profitable closed trade
type WinningPattern struct {
	ID           string    `json:"id"`
	AgentID      string    `json:"agent_id"`
	TradeID      string    `json:"trade_id"`
	Symbol       string    `json:"symbol"`
	Sector       string    `json:"sector"`
	Decision     string    `json:"decision"`
	EntryPrice   float64   `json:"entry_price"`
	ExitPrice    float64   `json:"exit_price"`
	PnL          float64   `json:"pnl"`
	PnLPercent   float64   `json:"pnl_percent"`
	HoldingHours float64   `json:"holding_hours"`
	EntryHour    int       `json:"entry_hour"`
	EntryMinute  int       `json:"entry_minute"`
	DayOfWeek    int       `json:"day_of_week"`
	RSIAtEntry   float64   `json:"rsi_at_entry"`
	MACDSignal   string    `json:"macd_signal"`
	VolumeRatio  float64   `json:"volume_ratio"`
	TrendAtEntry string    `json:"trend"`
	VIXLevel     float64   `json:"vix_level"`
	Sentiment    string    `json:"market_sentiment"`
	CatalystType string    `json:"catalyst_type,omitempty"`
	PatternType  string    `json:"pattern_type"`
	Confidence   int       `json:"confidence"`
	CreatedAt    time.Time `json:"created_at"`
}

// GroupStats is one bucket of a performance-by-criterion aggregation
type GroupStats struct {
	Total    int     `json:"total"`
	Wins     int     `json:"wins"`
	Losses   int     `json:"losses"`
	WinRate  float64 `json:"win_rate"`
	AvgPnL   float64 `json:"avg_pnl"`
	TotalPnL float64 `json:"total_pnl"`
}

// Filter narrows queries over closed memories
type Filter struct {
	Symbol    string
	Sector    string
	Sentiment string
}

// Criterion selects a performance grouping dimension
type Criterion string

const (
	BySector     Criterion = "sector"
	ByConfidence Criterion = "confidence"
	BySentiment  Criterion = "market_sentiment"
	ByVIXLevel   Criterion = "vix_level"
)

// ConfidenceBucket maps a 0..100 confidence into its reporting band
func ConfidenceBucket(confidence int) string {
	switch {
	case confidence < 60:
		return "50-60%"
	case confidence < 70:
		return "60-70%"
	case confidence < 80:
		return "70-80%"
	case confidence < 90:
		return "80-90%"
	default:
		return "90-100%"
	}
}

// VIXBucket maps a VIX level into its reporting band
func VIXBucket(vix float64) string {
	switch {
	case vix < 15:
		return "low(<15)"
	case vix < 20:
		return "normal(15-20)"
	case vix < 30:
		return "elevated(20-30)"
	default:
		return "high(>30)"
	}
}

// DetectPatternType labels a winning setup from its entry conditions
func DetectPatternType(decision string, rsi, volumeRatio, pnlPercent float64) string {
	if decision == "BUY" {
		switch {
		case rsi > 0 && rsi < 35:
			return "dip_buy"
		case volumeRatio > 2:
			return "breakout"
		case pnlPercent > 3:
			return "momentum"
		default:
			return "trend_following"
		}
	}
	switch {
	case rsi > 65:
		return "overbought_sell"
	case volumeRatio > 2:
		return "distribution"
	default:
		return "profit_taking"
	}
}
