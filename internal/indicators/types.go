// Package indicators computes technical analysis over OHLCV bars
package indicators

import "time"

// Bar is a single OHLCV candle
type Bar struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// RSISignal classifies an RSI reading
type RSISignal string

const (
	RSIOversold              RSISignal = "OVERSOLD"
	RSIApproachingOversold   RSISignal = "APPROACHING_OVERSOLD"
	RSINeutral               RSISignal = "NEUTRAL"
	RSIApproachingOverbought RSISignal = "APPROACHING_OVERBOUGHT"
	RSIOverbought            RSISignal = "OVERBOUGHT"
)

// MACDSignal classifies MACD line vs signal line
type MACDSignal string

const (
	MACDBullishCrossover MACDSignal = "BULLISH_CROSSOVER"
	MACDBullish          MACDSignal = "BULLISH"
	MACDNeutral          MACDSignal = "NEUTRAL"
	MACDBearish          MACDSignal = "BEARISH"
	MACDBearishCrossover MACDSignal = "BEARISH_CROSSOVER"
)

// VolumeSignal classifies the current volume against its 20-bar mean
type VolumeSignal string

const (
	VolumeVeryHigh VolumeSignal = "VERY_HIGH"
	VolumeHigh     VolumeSignal = "HIGH"
	VolumeNormal   VolumeSignal = "NORMAL"
	VolumeLow      VolumeSignal = "LOW"
	VolumeVeryLow  VolumeSignal = "VERY_LOW"
)

// Trend is the composite direction call
type Trend string

const (
	TrendStrongBullish Trend = "STRONG_BULLISH"
	TrendBullish       Trend = "BULLISH"
	TrendNeutral       Trend = "NEUTRAL"
	TrendBearish       Trend = "BEARISH"
	TrendStrongBearish Trend = "STRONG_BEARISH"
)

// TechnicalAnalysis is the full indicator snapshot for one symbol
type TechnicalAnalysis struct {
	Symbol       string    `json:"symbol"`
	CurrentPrice float64   `json:"current_price"`
	Timestamp    time.Time `json:"timestamp"`

	RSI       float64   `json:"rsi"`
	RSISignal RSISignal `json:"rsi_signal"`

	MACDLine       float64    `json:"macd_line"`
	MACDSignalLine float64    `json:"macd_signal_line"`
	MACDHistogram  float64    `json:"macd_histogram"`
	MACDSignal     MACDSignal `json:"macd_signal"`

	SupportLevel            float64 `json:"support_level"`
	ResistanceLevel         float64 `json:"resistance_level"`
	DistanceToSupportPct    float64 `json:"distance_to_support_pct"`
	DistanceToResistancePct float64 `json:"distance_to_resistance_pct"`

	CurrentVolume float64      `json:"current_volume"`
	AvgVolume20d  float64      `json:"avg_volume_20d"`
	VolumeRatio   float64      `json:"volume_ratio"`
	VolumeSignal  VolumeSignal `json:"volume_signal"`

	Trend         Trend `json:"trend"`
	TrendStrength int   `json:"trend_strength"`
	BullishScore  int   `json:"bullish_score"`
}
