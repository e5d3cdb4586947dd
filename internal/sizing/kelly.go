// Package sizing computes Kelly-based position sizes from an agent's
// statistics and the current market conditions
package sizing

import (
	"fmt"
	"strings"

	"github.com/alphadesk/alphadesk/internal/memory"
)

const (
	defaultWinRate      = 0.50
	defaultWinLossRatio = 1.5
	minTradesForStats   = 10

	halfKellyBase = 0.5

	minPositionPct = 0.01
	maxPositionPct = 0.10

	maxLossPct = 0.05

	minRiskFactor = 0.4
	maxRiskFactor = 1.3
)

// Inputs are the market-side parameters of a sizing calculation
type Inputs struct {
	Capital           float64
	Confidence        int
	VIX               float64
	RiskLevel         string // LOW, MEDIUM, HIGH
	SmartMoneySignal  string // BULLISH .. BEARISH bands
	ConsecutiveWins   int
	ConsecutiveLosses int
}

// PositionSizing is the full breakdown of one sizing decision
type PositionSizing struct {
	RecommendedAmount float64 `json:"recommended_amount"`
	PositionPct       float64 `json:"position_pct"`
	KellyFraction     float64 `json:"kelly_fraction"`
	AdjustedKelly     float64 `json:"adjusted_kelly"`
	ConfidenceFactor  float64 `json:"confidence_factor"`
	RiskFactor        float64 `json:"risk_factor"`
	MaxLoss           float64 `json:"max_loss"`
	Reasoning         string  `json:"reasoning"`
}

// Sizer derives position sizes. Pure apart from the statistics it is handed.
type Sizer struct{}

// NewSizer creates a sizer
func NewSizer() *Sizer {
	return &Sizer{}
}

// Calculate returns the position size for one prospective trade. A nil or
// thin statistics record falls back to the conservative defaults.
func (s *Sizer) Calculate(stats *memory.AgentStatistics, in Inputs) PositionSizing {
	winRate := defaultWinRate
	winLossRatio := defaultWinLossRatio
	usingDefaults := true
	if stats != nil && stats.TotalTrades >= minTradesForStats {
		winRate = stats.WinRate
		winLossRatio = stats.WinLossRatio
		usingDefaults = false
	}

	raw := rawKelly(winRate, winLossRatio)
	dynamic := halfKellyBase * vixFactor(in.VIX) * streakFactor(in.ConsecutiveWins, in.ConsecutiveLosses)
	adjusted := raw * dynamic

	confFactor := confidenceFactor(in.Confidence)
	riskFactor := s.riskFactor(in)

	pct := adjusted * confFactor * riskFactor
	if raw <= 0 {
		pct = minPositionPct
	} else if pct < minPositionPct {
		pct = minPositionPct
	} else if pct > maxPositionPct {
		pct = maxPositionPct
	}

	amount := in.Capital * pct

	source := "agent statistics"
	if usingDefaults {
		source = "defaults (under 10 closed trades)"
	}
	reasoning := fmt.Sprintf(
		"Kelly %.3f from %s (win rate %.0f%%, ratio %.2f), half-Kelly x VIX x streak = %.3f, confidence factor %.2f, risk factor %.2f, position %.1f%% of capital",
		raw, source, winRate*100, winLossRatio, adjusted, confFactor, riskFactor, pct*100)

	return PositionSizing{
		RecommendedAmount: round2(amount),
		PositionPct:       pct,
		KellyFraction:     raw,
		AdjustedKelly:     adjusted,
		ConfidenceFactor:  confFactor,
		RiskFactor:        riskFactor,
		MaxLoss:           round2(amount * maxLossPct),
		Reasoning:         reasoning,
	}
}

func rawKelly(winRate, winLossRatio float64) float64 {
	if winLossRatio <= 0 {
		return 0
	}
	return winRate - (1-winRate)/winLossRatio
}

// vixFactor scales exposure down as volatility rises: 1.5 below 15,
// 0.5 above 30, linear in between
func vixFactor(vix float64) float64 {
	switch {
	case vix <= 0:
		return 1.0
	case vix < 15:
		return 1.5
	case vix > 30:
		return 0.5
	default:
		return 1.5 - (vix-15)/15
	}
}

func streakFactor(wins, losses int) float64 {
	switch {
	case wins >= 5:
		return 1.2
	case losses >= 3:
		return 0.6
	default:
		return 1.0
	}
}

func confidenceFactor(confidence int) float64 {
	switch {
	case confidence < 50:
		return 0.3
	case confidence < 60:
		return 0.5
	case confidence < 70:
		return 0.7
	case confidence < 80:
		return 0.85
	case confidence < 90:
		return 1.0
	default:
		return 1.1
	}
}

func (s *Sizer) riskFactor(in Inputs) float64 {
	factor := 1.0

	switch {
	case in.VIX > 35:
		factor = 0.5
	case in.VIX > 25:
		factor *= 0.8
	case in.VIX > 0 && in.VIX < 15:
		factor *= 1.1
	}

	switch in.RiskLevel {
	case "LOW":
		factor *= 1.1
	case "HIGH":
		factor *= 0.8
	}

	if strings.Contains(in.SmartMoneySignal, "BULLISH") {
		factor *= 1.1
	} else if strings.Contains(in.SmartMoneySignal, "BEARISH") {
		factor *= 0.9
	}

	if factor < minRiskFactor {
		factor = minRiskFactor
	}
	if factor > maxRiskFactor {
		factor = maxRiskFactor
	}
	return factor
}

// CheatSheet renders the recommended dollar amounts at the standard
// confidence levels for prompt assembly
func (s *Sizer) CheatSheet(stats *memory.AgentStatistics, in Inputs) string {
	var b strings.Builder
	b.WriteString("POSITION SIZING GUIDE (Kelly, adjusted for current conditions):\n")
	b.WriteString("  Confidence | Recommended amount | % of capital\n")
	for _, conf := range []int{50, 60, 70, 80, 90, 95} {
		probe := in
		probe.Confidence = conf
		sz := s.Calculate(stats, probe)
		fmt.Fprintf(&b, "  %9d%% | $%17.2f | %11.1f%%\n", conf, sz.RecommendedAmount, sz.PositionPct*100)
	}
	b.WriteString("Use these amounts as your sizing baseline.")
	return b.String()
}

func round2(v float64) float64 {
	if v < 0 {
		return float64(int(v*100-0.5)) / 100
	}
	return float64(int(v*100+0.5)) / 100
}
