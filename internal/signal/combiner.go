// Package signal blends the LLM decision with smart-money and memory
// evidence into one final trading signal
package signal

import (
	"fmt"
	"math"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/alphadesk/alphadesk/internal/smartmoney"
)

// Strength is the band of the combined signal
type Strength string

const (
	StrongBuy  Strength = "STRONG_BUY"
	Buy        Strength = "BUY"
	WeakBuy    Strength = "WEAK_BUY"
	NeutralSig Strength = "NEUTRAL"
	WeakSell   Strength = "WEAK_SELL"
	Sell       Strength = "SELL"
	StrongSell Strength = "STRONG_SELL"
	Blocked    Strength = "BLOCKED"
)

// Component weights and thresholds
const (
	aiWeight     = 0.50
	smWeight     = 0.30
	memoryWeight = 0.20

	minConfidenceToTrade = 50
	weakThreshold        = 65
	strongThreshold      = 85

	putCallBullish  = 0.7
	putCallBearish  = 1.3
	darkPoolBullish = 0.55
	darkPoolBearish = 0.45

	vixExtreme  = 40
	fearExtreme = 20
	greedWarn   = 80
)

// MemoryEvidence is the distilled history the combiner weighs
type MemoryEvidence struct {
	// SymbolWinRate is the agent's win rate on this symbol, negative when unknown
	SymbolWinRate float64
	// BucketWinRate is the win rate at the current confidence bucket, negative when unknown
	BucketWinRate float64
	// NegativeLessons counts recent losing lessons matching this setup
	NegativeLessons int
}

// Combined is the blended outcome for one decision
type Combined struct {
	OriginalDecision   string   `json:"original_decision"`
	OriginalConfidence int      `json:"original_confidence"`
	FinalConfidence    int      `json:"final_confidence"`
	Strength           Strength `json:"signal_strength"`
	ShouldProceed      bool     `json:"should_proceed"`
	SizingMultiplier   float64  `json:"sizing_multiplier"`
	SmartMoneyScore    float64  `json:"smart_money_score"`
	MemoryScore        float64  `json:"memory_score"`
	MarketRegimeOK     bool     `json:"market_regime_ok"`
	Adjustments        []string `json:"adjustments"`
	Warnings           []string `json:"warnings"`
	Reasoning          string   `json:"reasoning"`
}

// Combiner blends AI, smart-money and memory evidence
type Combiner struct {
	logger zerolog.Logger
}

// NewCombiner creates a combiner
func NewCombiner() *Combiner {
	return &Combiner{logger: log.With().Str("component", "signal").Logger()}
}

// Combine produces the final signal for one decision. Both the smart-money
// summary and the memory evidence are optional; a missing component scores
// neutral.
func (c *Combiner) Combine(decision string, confidence int, symbol string,
	sm *smartmoney.Summary, mem *MemoryEvidence) Combined {

	var adjustments, warnings []string

	baseScore := float64(confidence) / 100

	smScore := 0.0
	if sm != nil {
		smScore = c.smartMoneyScore(decision, sm, &adjustments, &warnings)
	}

	memScore := 0.0
	if mem != nil {
		memScore = c.memoryScore(symbol, mem, &adjustments, &warnings)
	}

	marketOK := true
	if sm != nil {
		var regimeWarning string
		marketOK, regimeWarning = checkMarketRegime(decision, sm)
		if regimeWarning != "" {
			warnings = append(warnings, regimeWarning)
		}
	}

	finalScore := baseScore*aiWeight + (smScore+1)/2*smWeight + (memScore+1)/2*memoryWeight
	finalConfidence := int(math.Round(finalScore * 100))

	strength := determineStrength(decision, finalConfidence, marketOK)
	multiplier := sizingMultiplier(finalConfidence, smScore, memScore)

	shouldProceed := marketOK &&
		finalConfidence >= minConfidenceToTrade &&
		strength != Blocked && strength != NeutralSig

	out := Combined{
		OriginalDecision:   decision,
		OriginalConfidence: confidence,
		FinalConfidence:    finalConfidence,
		Strength:           strength,
		ShouldProceed:      shouldProceed,
		SizingMultiplier:   multiplier,
		SmartMoneyScore:    smScore,
		MemoryScore:        memScore,
		MarketRegimeOK:     marketOK,
		Adjustments:        adjustments,
		Warnings:           warnings,
	}
	out.Reasoning = buildReasoning(out)

	c.logger.Debug().
		Str("decision", decision).
		Int("original_confidence", confidence).
		Int("final_confidence", finalConfidence).
		Str("strength", string(strength)).
		Bool("should_proceed", shouldProceed).
		Msg("Signals combined")

	return out
}

// smartMoneyScore sums the axis contributions in [-1, +1]. Each axis is
// scored from the bullish perspective and the sign flips for SELL.
func (c *Combiner) smartMoneyScore(decision string, sm *smartmoney.Summary,
	adjustments, warnings *[]string) float64 {

	sign := 1.0
	if decision == "SELL" {
		sign = -1
	}

	score := 0.0

	vix := sm.VIX.VIX
	switch {
	case vix > 0 && vix < 15:
		score += sign * 0.3
		*adjustments = append(*adjustments, fmt.Sprintf("VIX %.1f: low volatility", vix))
	case vix > 30:
		score -= sign * 0.3
		*adjustments = append(*adjustments, fmt.Sprintf("VIX %.1f: high volatility", vix))
	}

	fng := sm.FearGreed.Index
	if fng > 0 {
		switch {
		case fng < 25:
			score += sign * 0.2
			*adjustments = append(*adjustments, fmt.Sprintf("Fear/Greed %d: extreme fear, contrarian buy zone", fng))
		case fng > 75:
			score -= sign * 0.2
			*adjustments = append(*adjustments, fmt.Sprintf("Fear/Greed %d: extreme greed", fng))
		}
	}

	if pc := sm.Options.PutCallRatio; pc > 0 {
		switch {
		case pc < putCallBullish:
			score += sign * 0.25
			*adjustments = append(*adjustments, fmt.Sprintf("Options P/C %.2f: bullish flow", pc))
		case pc > putCallBearish:
			score -= sign * 0.25
			*adjustments = append(*adjustments, fmt.Sprintf("Options P/C %.2f: bearish flow", pc))
		}
	}

	if dp := sm.DarkPool.EstimatedRatio; dp > 0 {
		switch {
		case dp > darkPoolBullish:
			score += sign * 0.2
			*adjustments = append(*adjustments, "Dark pool: accumulation")
		case dp < darkPoolBearish:
			score -= sign * 0.2
			*adjustments = append(*adjustments, "Dark pool: distribution")
		}
	}

	switch sm.Insider.NetSentiment {
	case "BULLISH":
		score += sign * 0.3
		*adjustments = append(*adjustments, "Insiders: buying")
	case "BEARISH":
		score -= sign * 0.3
		*warnings = append(*warnings, fmt.Sprintf("Insiders are selling %s", sm.Symbol))
	}

	return clamp(score, -1, 1)
}

func (c *Combiner) memoryScore(symbol string, mem *MemoryEvidence,
	adjustments, warnings *[]string) float64 {

	score := 0.0

	if mem.SymbolWinRate >= 0 {
		if mem.SymbolWinRate > 0.7 {
			score += 0.3
			*adjustments = append(*adjustments, fmt.Sprintf("History on %s: %.0f%% win rate", symbol, mem.SymbolWinRate*100))
		} else if mem.SymbolWinRate < 0.4 {
			score -= 0.3
			*warnings = append(*warnings, fmt.Sprintf("Poor history on %s: %.0f%% win rate", symbol, mem.SymbolWinRate*100))
		}
	}

	if mem.BucketWinRate >= 0 {
		if mem.BucketWinRate > 0.65 {
			score += 0.2
		} else if mem.BucketWinRate < 0.45 {
			score -= 0.2
			*warnings = append(*warnings, fmt.Sprintf("Only %.0f%% win rate at this confidence level", mem.BucketWinRate*100))
		}
	}

	if mem.NegativeLessons >= 2 {
		score -= 0.2
		*warnings = append(*warnings, fmt.Sprintf("%d recent losing trades on this setup", mem.NegativeLessons))
	}

	return clamp(score, -1, 1)
}

func checkMarketRegime(decision string, sm *smartmoney.Summary) (bool, string) {
	vix := sm.VIX.VIX
	fng := sm.FearGreed.Index

	if decision == "BUY" && vix > vixExtreme {
		return false, fmt.Sprintf("Extreme VIX (%.1f), buys blocked", vix)
	}
	if fng > 0 && fng < fearExtreme && vix > 30 {
		return false, fmt.Sprintf("Market panic (fear %d, VIX %.1f), trading too risky", fng, vix)
	}
	if decision == "BUY" && fng > greedWarn {
		return true, fmt.Sprintf("Extreme greed (%d), market may be overbought", fng)
	}
	return true, ""
}

func determineStrength(decision string, confidence int, marketOK bool) Strength {
	if !marketOK {
		return Blocked
	}
	switch decision {
	case "BUY":
		switch {
		case confidence >= strongThreshold:
			return StrongBuy
		case confidence >= weakThreshold:
			return Buy
		case confidence >= minConfidenceToTrade:
			return WeakBuy
		}
	case "SELL":
		switch {
		case confidence >= strongThreshold:
			return StrongSell
		case confidence >= weakThreshold:
			return Sell
		case confidence >= minConfidenceToTrade:
			return WeakSell
		}
	}
	return NeutralSig
}

func sizingMultiplier(confidence int, smScore, memScore float64) float64 {
	base := 1.0

	switch {
	case confidence >= 90:
		base *= 1.3
	case confidence >= 80:
		base *= 1.1
	case confidence < 60:
		base *= 0.7
	}

	if smScore > 0.5 {
		base *= 1.2
	} else if smScore < -0.5 {
		base *= 0.6
	}

	if memScore > 0.5 {
		base *= 1.1
	} else if memScore < -0.5 {
		base *= 0.8
	}

	return clamp(base, 0.5, 1.5)
}

func buildReasoning(out Combined) string {
	parts := []string{
		fmt.Sprintf("Combined signal: %s", out.OriginalDecision),
		fmt.Sprintf("Confidence %d%% -> %d%% (%+d)", out.OriginalConfidence, out.FinalConfidence, out.FinalConfidence-out.OriginalConfidence),
		fmt.Sprintf("Smart money %+.2f, memory %+.2f, market regime ok: %t", out.SmartMoneyScore, out.MemoryScore, out.MarketRegimeOK),
	}
	if len(out.Adjustments) > 0 {
		parts = append(parts, "Adjustments: "+strings.Join(out.Adjustments, "; "))
	}
	if len(out.Warnings) > 0 {
		parts = append(parts, "Warnings: "+strings.Join(out.Warnings, "; "))
	}
	return strings.Join(parts, "\n")
}

// PromptBlock formats the combined signal for prompt assembly
func PromptBlock(out Combined) string {
	lines := []string{
		"COMBINED SIGNAL",
		fmt.Sprintf("%s, confidence %d%%", out.Strength, out.FinalConfidence),
		fmt.Sprintf("AI decision %d%% -> adjusted %d%%", out.OriginalConfidence, out.FinalConfidence),
		fmt.Sprintf("Recommended sizing: x%.2f", out.SizingMultiplier),
	}
	if len(out.Warnings) > 0 {
		lines = append(lines, "Warnings:")
		limit := len(out.Warnings)
		if limit > 3 {
			limit = 3
		}
		for _, w := range out.Warnings[:limit] {
			lines = append(lines, "  "+w)
		}
	}
	if !out.ShouldProceed {
		lines = append(lines, "TRADE NOT RECOMMENDED, conditions are not met")
	}
	return strings.Join(lines, "\n")
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
