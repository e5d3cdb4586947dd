// Package smartmoney aggregates institutional-flow signals for a symbol
package smartmoney

import "time"

// Signal is the composite smart-money read
type Signal string

const (
	StrongBullish Signal = "STRONG_BULLISH"
	Bullish       Signal = "BULLISH"
	Neutral       Signal = "NEUTRAL"
	Bearish       Signal = "BEARISH"
	StrongBearish Signal = "STRONG_BEARISH"
)

// VIXData is the volatility index snapshot
type VIXData struct {
	VIX       float64 `json:"vix"`
	ChangePct float64 `json:"vix_change_pct"`
	Regime    string  `json:"volatility_regime"` // LOW, NORMAL, ELEVATED, HIGH
}

// OptionsData summarizes the options chain for one symbol
type OptionsData struct {
	Symbol               string  `json:"symbol"`
	PutCallRatio         float64 `json:"put_call_ratio"`
	PutCallOIRatio       float64 `json:"put_call_oi_ratio"`
	TotalCallVolume      int64   `json:"total_call_volume"`
	TotalPutVolume       int64   `json:"total_put_volume"`
	UnusualActivityCount int     `json:"unusual_activity_count"`
	ImpliedVolatility    float64 `json:"implied_volatility"`
	Sentiment            string  `json:"options_sentiment"` // BULLISH, BEARISH, NEUTRAL
}

// DarkPoolData estimates off-exchange participation from volume patterns
type DarkPoolData struct {
	Symbol           string  `json:"symbol"`
	CurrentVolume    float64 `json:"current_volume"`
	AvgVolume5d      float64 `json:"avg_volume_5d"`
	VolumeRatio      float64 `json:"volume_ratio"`
	EstimatedRatio   float64 `json:"estimated_dark_pool_ratio"`
	Signal           string  `json:"dark_pool_signal"` // HIGH, NORMAL, LOW
	BlockTradeLikely bool    `json:"block_trade_likely"`
	Direction        string  `json:"direction"` // BULLISH, BEARISH, NEUTRAL
}

// InsiderData approximates Form-4 buy/sell pressure
type InsiderData struct {
	Symbol        string `json:"symbol"`
	Activity      string `json:"insider_activity"` // BUYING, SELLING, NEUTRAL, UNKNOWN
	BuyCount      int    `json:"buy_transactions"`
	SellCount     int    `json:"sell_transactions"`
	NetSentiment  string `json:"net_insider_sentiment"` // BULLISH, BEARISH, NEUTRAL
	RecentFilings int    `json:"recent_filings"`
}

// FearGreedData is the market-wide sentiment gauge
type FearGreedData struct {
	Index           int    `json:"fear_greed_index"`
	Classification  string `json:"classification"`
	MarketSentiment string `json:"market_sentiment"` // BULLISH, BEARISH, NEUTRAL
}

// Summary is the aggregated smart-money view for one symbol
type Summary struct {
	Symbol               string        `json:"symbol"`
	OverallSignal        Signal        `json:"overall_signal"`
	ConfidenceAdjustment int           `json:"confidence_adjustment"`
	BullishCount         int           `json:"bullish_count"`
	BearishCount         int           `json:"bearish_count"`
	VIX                  VIXData       `json:"vix"`
	Options              OptionsData   `json:"options"`
	DarkPool             DarkPoolData  `json:"dark_pool"`
	Insider              InsiderData   `json:"insider"`
	FearGreed            FearGreedData `json:"fear_greed"`
	Timestamp            time.Time     `json:"timestamp"`
}

// MarketSnapshot is the symbol-independent market context
type MarketSnapshot struct {
	VIX       VIXData       `json:"vix"`
	FearGreed FearGreedData `json:"fear_greed"`
	Sentiment string        `json:"market_sentiment"` // BULLISH, BEARISH, NEUTRAL
	Timestamp time.Time     `json:"timestamp"`
}

// VolatilityRegime bands a VIX level
func VolatilityRegime(vix float64) string {
	switch {
	case vix < 15:
		return "LOW"
	case vix < 20:
		return "NORMAL"
	case vix < 30:
		return "ELEVATED"
	default:
		return "HIGH"
	}
}
