package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/alphadesk/alphadesk/internal/smartmoney"
)

func neutralSummary() *smartmoney.Summary {
	return &smartmoney.Summary{
		Symbol:    "AAPL",
		VIX:       smartmoney.VIXData{VIX: 20},
		Options:   smartmoney.OptionsData{PutCallRatio: 1.0},
		DarkPool:  smartmoney.DarkPoolData{EstimatedRatio: 0.50},
		Insider:   smartmoney.InsiderData{NetSentiment: "NEUTRAL"},
		FearGreed: smartmoney.FearGreedData{Index: 50},
	}
}

func bullishSummary() *smartmoney.Summary {
	return &smartmoney.Summary{
		Symbol:    "AAPL",
		VIX:       smartmoney.VIXData{VIX: 13},
		Options:   smartmoney.OptionsData{PutCallRatio: 0.6},
		DarkPool:  smartmoney.DarkPoolData{EstimatedRatio: 0.60},
		Insider:   smartmoney.InsiderData{NetSentiment: "BULLISH"},
		FearGreed: smartmoney.FearGreedData{Index: 22},
	}
}

func TestCombineWithoutEvidenceIsAIOnly(t *testing.T) {
	c := NewCombiner()

	out := c.Combine("BUY", 80, "AAPL", nil, nil)

	// 0.80*0.5 + 0.5*0.3 + 0.5*0.2 = 0.65
	assert.Equal(t, 65, out.FinalConfidence)
	assert.Equal(t, Buy, out.Strength)
	assert.True(t, out.ShouldProceed)
	assert.True(t, out.MarketRegimeOK)
}

func TestCombineBullishConfirmationBoosts(t *testing.T) {
	c := NewCombiner()

	out := c.Combine("BUY", 80, "AAPL", bullishSummary(), nil)

	// All five axes confirm: 0.3+0.2+0.25+0.2+0.3 = 1.25 clamped to 1
	assert.Equal(t, 1.0, out.SmartMoneyScore)
	// 0.40 + 1.0*0.3 + 0.5*0.2 = 0.80
	assert.Equal(t, 80, out.FinalConfidence)
	assert.Equal(t, Buy, out.Strength)
	assert.True(t, out.ShouldProceed)
	assert.NotEmpty(t, out.Adjustments)
}

func TestCombineSellFlipsSmartMoneySign(t *testing.T) {
	c := NewCombiner()

	out := c.Combine("SELL", 80, "AAPL", bullishSummary(), nil)

	// Bullish flow contradicts a SELL
	assert.Equal(t, -1.0, out.SmartMoneyScore)
	assert.Equal(t, 50, out.FinalConfidence)
}

func TestCombineRegimeGuardBlocksBuyOnExtremeVIX(t *testing.T) {
	c := NewCombiner()
	sm := neutralSummary()
	sm.VIX.VIX = 45

	out := c.Combine("BUY", 90, "AAPL", sm, nil)

	assert.False(t, out.MarketRegimeOK)
	assert.Equal(t, Blocked, out.Strength)
	assert.False(t, out.ShouldProceed)
	assert.NotEmpty(t, out.Warnings)
}

func TestCombineRegimeGuardBlocksAllOnPanic(t *testing.T) {
	c := NewCombiner()
	sm := neutralSummary()
	sm.VIX.VIX = 32
	sm.FearGreed.Index = 15

	for _, decision := range []string{"BUY", "SELL"} {
		out := c.Combine(decision, 90, "AAPL", sm, nil)
		assert.False(t, out.MarketRegimeOK, decision)
		assert.Equal(t, Blocked, out.Strength, decision)
	}
}

func TestCombineExtremeGreedOnlyWarns(t *testing.T) {
	c := NewCombiner()
	sm := neutralSummary()
	sm.FearGreed.Index = 85

	out := c.Combine("BUY", 90, "AAPL", sm, nil)

	assert.True(t, out.MarketRegimeOK)
	assert.NotEqual(t, Blocked, out.Strength)
	assert.NotEmpty(t, out.Warnings)
}

func TestCombineMemoryEvidence(t *testing.T) {
	c := NewCombiner()

	good := &MemoryEvidence{SymbolWinRate: 0.8, BucketWinRate: 0.7}
	bad := &MemoryEvidence{SymbolWinRate: 0.3, BucketWinRate: 0.4, NegativeLessons: 2}

	up := c.Combine("BUY", 70, "AAPL", nil, good)
	down := c.Combine("BUY", 70, "AAPL", nil, bad)

	assert.InDelta(t, 0.5, up.MemoryScore, 1e-9)
	assert.InDelta(t, -0.7, down.MemoryScore, 1e-9)
	assert.Greater(t, up.FinalConfidence, down.FinalConfidence)
	assert.NotEmpty(t, down.Warnings)
}

func TestCombineMonotonicInConfidence(t *testing.T) {
	c := NewCombiner()

	prev := -1
	for _, conf := range []int{50, 60, 70, 80, 90, 100} {
		out := c.Combine("BUY", conf, "AAPL", neutralSummary(), nil)
		assert.Greater(t, out.FinalConfidence, prev, "confidence %d", conf)
		prev = out.FinalConfidence
	}
}

func TestStrengthBands(t *testing.T) {
	assert.Equal(t, StrongBuy, determineStrength("BUY", 85, true))
	assert.Equal(t, Buy, determineStrength("BUY", 65, true))
	assert.Equal(t, WeakBuy, determineStrength("BUY", 50, true))
	assert.Equal(t, NeutralSig, determineStrength("BUY", 49, true))
	assert.Equal(t, StrongSell, determineStrength("SELL", 90, true))
	assert.Equal(t, WeakSell, determineStrength("SELL", 55, true))
	assert.Equal(t, NeutralSig, determineStrength("HOLD", 90, true))
	assert.Equal(t, Blocked, determineStrength("BUY", 90, false))
}

func TestSizingMultiplierClamps(t *testing.T) {
	// High everything: 1.3*1.2*1.1 = 1.716 clamped to 1.5
	assert.Equal(t, 1.5, sizingMultiplier(95, 0.8, 0.6))
	// Low everything: 0.7*0.6*0.8 = 0.336 clamped to 0.5
	assert.Equal(t, 0.5, sizingMultiplier(55, -0.8, -0.6))
	assert.Equal(t, 1.0, sizingMultiplier(70, 0.0, 0.0))
}

func TestPromptBlockMentionsRejection(t *testing.T) {
	c := NewCombiner()
	out := c.Combine("BUY", 40, "AAPL", nil, nil)

	block := PromptBlock(out)
	assert.Contains(t, block, "COMBINED SIGNAL")
	assert.Contains(t, block, "TRADE NOT RECOMMENDED")
}
