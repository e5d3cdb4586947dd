package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/alphadesk/alphadesk/internal/broker"
	"github.com/alphadesk/alphadesk/internal/sizing"
)

const maxTechnicalBlocks = 10

func (a *Agent) systemPrompt() string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, an autonomous equities trader managing a real paper-trading portfolio.\n", a.name)
	if a.personality != "" {
		b.WriteString("Trading personality: " + a.personality + "\n")
	}
	b.WriteString(`
Rules:
- You trade only symbols from the S&P 500, NASDAQ 100 and major ETFs.
- You respond with EXACTLY ONE JSON object, no markdown, no commentary.
- Schema: {"decision": "BUY"|"SELL"|"HOLD", "symbol": "TICKER", "quantity": 0, "confidence": 0-100, "risk_level": "LOW"|"MEDIUM"|"HIGH", "reasoning": "one or two sentences"}
- For HOLD, symbol and quantity may be empty/zero.
- Quantity is advisory; position sizing is recomputed from your statistics.
- Be honest about confidence. Overconfidence on weak setups costs you capital.`)
	return b.String()
}

func (a *Agent) userPrompt(ctx context.Context, in MarketInputs, feedback string) string {
	var b strings.Builder

	a.mu.Lock()
	cash := a.cash
	critique := a.lastAutocritique
	positions := make([]Position, 0, len(a.positions))
	for _, p := range a.positions {
		positions = append(positions, *p)
	}
	a.mu.Unlock()

	fmt.Fprintf(&b, "=== PORTFOLIO ===\nCash: $%.2f | Equity: $%.2f | Performance: %+.2f%%\n",
		cash, a.Equity(), a.PerformancePct())
	if len(positions) == 0 {
		b.WriteString("Open positions: none\n")
	} else {
		b.WriteString("Open positions:\n")
		for _, p := range positions {
			pnlPct := 0.0
			if p.EntryPrice > 0 {
				pnlPct = (p.LastPrice - p.EntryPrice) / p.EntryPrice * 100
			}
			fmt.Fprintf(&b, "  %s: %.4f @ $%.2f (now $%.2f, %+.1f%%)\n",
				p.Symbol, p.Quantity, p.EntryPrice, p.LastPrice, pnlPct)
		}
	}

	if block := a.memory.PreDecisionContext(ctx, a.id, in.Sentiment()); block != "" {
		b.WriteString("\n" + block + "\n")
	}

	b.WriteString("\n" + renderSmartMoney(in) + "\n")
	b.WriteString("\n" + a.cheatSheet(ctx, in) + "\n")

	if block := renderTechnicals(in); block != "" {
		b.WriteString("\n" + block + "\n")
	}

	if critique != "" {
		b.WriteString("\n=== YOUR LAST SELF-REVIEW ===\n" + critique + "\n")
	}
	if feedback != "" {
		b.WriteString("\n=== FEEDBACK ON YOUR LAST ATTEMPT ===\n" + feedback + "\n")
	}

	b.WriteString("\nDecide your next action now. Reply with the JSON object only.")
	return b.String()
}

func (a *Agent) cheatSheet(ctx context.Context, in MarketInputs) string {
	stats, _ := a.memory.Statistics(ctx, a.id)
	wins, losses := 0, 0
	if a.breaker != nil {
		wins, losses = a.breaker.Streaks(a.id)
	}
	return a.sizer.CheatSheet(stats, sizing.Inputs{
		Capital:           a.Cash(),
		VIX:               in.VIX(),
		RiskLevel:         "MEDIUM",
		SmartMoneySignal:  in.Sentiment(),
		ConsecutiveWins:   wins,
		ConsecutiveLosses: losses,
	})
}

func renderSmartMoney(in MarketInputs) string {
	var b strings.Builder
	b.WriteString("=== SMART MONEY ===\n")
	if in.Snapshot != nil {
		fmt.Fprintf(&b, "VIX: %.1f (%s) | Fear & Greed: %d (%s) | Market: %s\n",
			in.Snapshot.VIX.VIX, in.Snapshot.VIX.Regime,
			in.Snapshot.FearGreed.Index, in.Snapshot.FearGreed.Classification,
			in.Snapshot.Sentiment)
	} else {
		b.WriteString("Market snapshot unavailable this cycle\n")
	}
	for _, sm := range in.Summaries {
		fmt.Fprintf(&b, "%s: %s (P/C %.2f, dark pool %.0f%%, insider %s)\n",
			sm.Symbol, sm.OverallSignal, sm.Options.PutCallRatio,
			sm.DarkPool.EstimatedRatio*100, sm.Insider.NetSentiment)
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderTechnicals(in MarketInputs) string {
	if len(in.Technicals) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("=== TECHNICAL ANALYSIS (top movers) ===\n")
	count := 0
	for _, mover := range in.Movers {
		ta, ok := in.Technicals[mover.Symbol]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "%s: $%.2f (%+.1f%% today) | RSI %.0f (%s) | MACD %s | vol %.1fx (%s) | trend %s/%d\n",
			ta.Symbol, ta.CurrentPrice, mover.ChangePercent,
			ta.RSI, ta.RSISignal, ta.MACDSignal,
			ta.VolumeRatio, ta.VolumeSignal, ta.Trend, ta.TrendStrength)
		count++
		if count >= maxTechnicalBlocks {
			break
		}
	}
	// Positions under management may not be movers; surface them too
	for sym, ta := range in.Technicals {
		if count >= maxTechnicalBlocks {
			break
		}
		if containsMover(in.Movers, sym) {
			continue
		}
		fmt.Fprintf(&b, "%s: $%.2f | RSI %.0f (%s) | MACD %s | vol %.1fx | trend %s/%d\n",
			ta.Symbol, ta.CurrentPrice, ta.RSI, ta.RSISignal, ta.MACDSignal,
			ta.VolumeRatio, ta.Trend, ta.TrendStrength)
		count++
	}
	return strings.TrimRight(b.String(), "\n")
}

func containsMover(movers []broker.Mover, symbol string) bool {
	for _, m := range movers {
		if m.Symbol == symbol {
			return true
		}
	}
	return false
}

func autocritiquePrompt(recent []Decision, fees, performancePct float64) string {
	var b strings.Builder
	b.WriteString("Review your recent trading honestly. Here are your last decisions:\n")
	for i, d := range recent {
		fmt.Fprintf(&b, "%d. %s %s (confidence %d): %s\n", i+1, d.Decision, d.Symbol, d.Confidence, d.Reasoning)
	}
	fmt.Fprintf(&b, "\nTotal fees paid: $%.2f. Current performance: %+.2f%%.\n", fees, performancePct)
	b.WriteString("\nWrite a short self-critique (3-5 sentences): what worked, what did not, and one concrete behavior to change. Plain text, no JSON.")
	return b.String()
}
