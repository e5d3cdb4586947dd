// Package gates enforces hard technical veto rules on prospective trades
package gates

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/alphadesk/alphadesk/internal/indicators"
)

// Decision is the gate verdict for a prospective trade
type Decision string

const (
	Allowed Decision = "ALLOWED"
	Warning Decision = "WARNING"
	Blocked Decision = "BLOCKED"
)

// Reason tags a triggered rule
type Reason string

const (
	ReasonRSIOverbought     Reason = "RSI_OVERBOUGHT"
	ReasonRSIOversold       Reason = "RSI_OVERSOLD"
	ReasonRSIHigh           Reason = "RSI_HIGH"
	ReasonRSILow            Reason = "RSI_LOW"
	ReasonMACDBearish       Reason = "MACD_BEARISH"
	ReasonMACDBullish       Reason = "MACD_BULLISH"
	ReasonMACDCrossoverDown Reason = "MACD_CROSSOVER_DOWN"
	ReasonMACDCrossoverUp   Reason = "MACD_CROSSOVER_UP"
	ReasonVolumeTooLow      Reason = "VOLUME_TOO_LOW"
	ReasonVolumeLow         Reason = "VOLUME_LOW"
	ReasonTrendAgainst      Reason = "TREND_AGAINST"
	ReasonAllClear          Reason = "ALL_CLEAR"
)

// Rule thresholds. These are hard limits the LLM cannot argue past.
const (
	rsiOverboughtBlock = 75.0
	rsiOversoldBlock   = 25.0
	rsiHighWarning     = 65.0
	rsiLowWarning      = 35.0
	macdBearishLimit   = -0.5
	macdBullishLimit   = 0.5
	volumeBlockRatio   = 0.5
	volumeWarnRatio    = 0.8
	warningScoreFloor  = 30
)

// Result carries the verdict, triggered rules and a cumulative risk score
type Result struct {
	Decision    Decision `json:"decision"`
	CanProceed  bool     `json:"can_proceed"`
	Reasons     []Reason `json:"reasons"`
	Messages    []string `json:"messages"`
	RiskScore   int      `json:"risk_score"`
	RSI         float64  `json:"rsi"`
	MACD        float64  `json:"macd"`
	MACDSignal  float64  `json:"macd_signal"`
	VolumeRatio float64  `json:"volume_ratio"`
}

// Evaluator applies the veto tables
type Evaluator struct {
	logger zerolog.Logger
}

// NewEvaluator creates a gate evaluator
func NewEvaluator() *Evaluator {
	return &Evaluator{
		logger: log.With().Str("component", "gates").Logger(),
	}
}

// Evaluate checks a prospective decision against the indicator snapshot.
// HOLD is always allowed.
func (e *Evaluator) Evaluate(decision string, ta *indicators.TechnicalAnalysis) Result {
	switch decision {
	case "BUY":
		return e.evaluateBuy(ta)
	case "SELL":
		return e.evaluateSell(ta)
	default:
		return Result{
			Decision:   Allowed,
			CanProceed: true,
			Reasons:    []Reason{ReasonAllClear},
			Messages:   []string{"hold requires no technical clearance"},
		}
	}
}

func (e *Evaluator) evaluateBuy(ta *indicators.TechnicalAnalysis) Result {
	var (
		reasons  []Reason
		messages []string
		score    int
		blocked  bool
	)

	if ta.RSI > rsiOverboughtBlock {
		reasons = append(reasons, ReasonRSIOverbought)
		messages = append(messages, fmt.Sprintf("RSI %.1f above %.0f, overbought, buy blocked", ta.RSI, rsiOverboughtBlock))
		score += 50
		blocked = true
	} else if ta.RSI > rsiHighWarning {
		reasons = append(reasons, ReasonRSIHigh)
		messages = append(messages, fmt.Sprintf("RSI %.1f above %.0f, elevated risk", ta.RSI, rsiHighWarning))
		score += 25
	}

	if ta.MACDLine < ta.MACDSignalLine && ta.MACDLine < 0 {
		reasons = append(reasons, ReasonMACDBearish)
		if ta.MACDLine < macdBearishLimit {
			messages = append(messages, fmt.Sprintf("MACD %.2f below signal %.2f and deeply negative, buy blocked", ta.MACDLine, ta.MACDSignalLine))
			score += 40
			blocked = true
		} else {
			messages = append(messages, fmt.Sprintf("MACD bearish (%.2f < %.2f)", ta.MACDLine, ta.MACDSignalLine))
			score += 20
		}
	}

	if ta.MACDHistogram < -0.5 {
		reasons = append(reasons, ReasonMACDCrossoverDown)
		messages = append(messages, fmt.Sprintf("bearish MACD crossover (histogram %.2f)", ta.MACDHistogram))
		score += 15
	}

	if ta.VolumeRatio < volumeBlockRatio {
		reasons = append(reasons, ReasonVolumeTooLow)
		messages = append(messages, fmt.Sprintf("volume at %.0f%% of average, buy is risky", ta.VolumeRatio*100))
		score += 20
	} else if ta.VolumeRatio < volumeWarnRatio {
		reasons = append(reasons, ReasonVolumeLow)
		messages = append(messages, fmt.Sprintf("volume low (%.0f%% of average)", ta.VolumeRatio*100))
		score += 10
	}

	if ta.Trend == indicators.TrendBearish || ta.Trend == indicators.TrendStrongBearish {
		reasons = append(reasons, ReasonTrendAgainst)
		messages = append(messages, fmt.Sprintf("trend %s runs against the buy", ta.Trend))
		score += 15
	}

	// Overbought plus negative momentum overrides everything
	if ta.RSI > 70 && ta.MACDLine < 0 {
		if !hasReason(reasons, ReasonRSIOverbought) {
			reasons = append(reasons, ReasonRSIOverbought)
		}
		messages = append(messages, fmt.Sprintf("RSI %.1f with negative MACD, buy strictly blocked", ta.RSI))
		score = 100
		blocked = true
	}

	return e.finish("BUY", ta, reasons, messages, score, blocked)
}

func (e *Evaluator) evaluateSell(ta *indicators.TechnicalAnalysis) Result {
	var (
		reasons  []Reason
		messages []string
		score    int
		blocked  bool
	)

	if ta.RSI < rsiOversoldBlock {
		reasons = append(reasons, ReasonRSIOversold)
		messages = append(messages, fmt.Sprintf("RSI %.1f below %.0f, oversold, sell blocked", ta.RSI, rsiOversoldBlock))
		score += 50
		blocked = true
	} else if ta.RSI < rsiLowWarning {
		reasons = append(reasons, ReasonRSILow)
		messages = append(messages, fmt.Sprintf("RSI %.1f below %.0f, rebound likely", ta.RSI, rsiLowWarning))
		score += 25
	}

	if ta.MACDLine > ta.MACDSignalLine && ta.MACDLine > 0 {
		reasons = append(reasons, ReasonMACDBullish)
		if ta.MACDLine > macdBullishLimit {
			messages = append(messages, fmt.Sprintf("MACD %.2f above signal %.2f and strongly positive, sell blocked", ta.MACDLine, ta.MACDSignalLine))
			score += 40
			blocked = true
		} else {
			messages = append(messages, fmt.Sprintf("MACD bullish (%.2f > %.2f)", ta.MACDLine, ta.MACDSignalLine))
			score += 20
		}
	}

	if ta.MACDHistogram > 0.5 {
		reasons = append(reasons, ReasonMACDCrossoverUp)
		messages = append(messages, fmt.Sprintf("bullish MACD crossover (histogram %.2f)", ta.MACDHistogram))
		score += 15
	}

	if ta.VolumeRatio < volumeBlockRatio {
		reasons = append(reasons, ReasonVolumeTooLow)
		messages = append(messages, fmt.Sprintf("volume at %.0f%% of average, thin liquidity for a sell", ta.VolumeRatio*100))
		score += 10
	}

	if ta.Trend == indicators.TrendBullish || ta.Trend == indicators.TrendStrongBullish {
		reasons = append(reasons, ReasonTrendAgainst)
		messages = append(messages, fmt.Sprintf("trend %s runs against the sell", ta.Trend))
		score += 15
	}

	if ta.RSI < 30 && ta.MACDLine > 0 {
		if !hasReason(reasons, ReasonRSIOversold) {
			reasons = append(reasons, ReasonRSIOversold)
		}
		messages = append(messages, fmt.Sprintf("RSI %.1f with positive MACD, sell strictly blocked", ta.RSI))
		score = 100
		blocked = true
	}

	return e.finish("SELL", ta, reasons, messages, score, blocked)
}

func (e *Evaluator) finish(side string, ta *indicators.TechnicalAnalysis, reasons []Reason, messages []string, score int, blocked bool) Result {
	var decision Decision
	canProceed := true

	switch {
	case blocked:
		decision = Blocked
		canProceed = false
	case score > warningScoreFloor:
		decision = Warning
	default:
		decision = Allowed
		reasons = append(reasons, ReasonAllClear)
		messages = append(messages, "all indicators clear")
	}

	if score > 100 {
		score = 100
	}

	result := Result{
		Decision:    decision,
		CanProceed:  canProceed,
		Reasons:     reasons,
		Messages:    messages,
		RiskScore:   score,
		RSI:         ta.RSI,
		MACD:        ta.MACDLine,
		MACDSignal:  ta.MACDSignalLine,
		VolumeRatio: ta.VolumeRatio,
	}

	if decision != Allowed {
		e.logger.Info().
			Str("side", side).
			Str("symbol", ta.Symbol).
			Str("decision", string(decision)).
			Int("risk_score", score).
			Msg("Technical gate triggered")
	}

	return result
}

func hasReason(reasons []Reason, r Reason) bool {
	for _, have := range reasons {
		if have == r {
			return true
		}
	}
	return false
}
