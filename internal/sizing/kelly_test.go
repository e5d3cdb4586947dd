package sizing

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/alphadesk/alphadesk/internal/memory"
)

func TestCalculateDefaultsUnderTenTrades(t *testing.T) {
	s := NewSizer()

	sz := s.Calculate(nil, Inputs{Capital: 10000, Confidence: 75, VIX: 22.5, RiskLevel: "MEDIUM"})

	// Defaults: f = 0.50 - 0.50/1.5 = 0.1667
	assert.InDelta(t, 0.1667, sz.KellyFraction, 0.001)
	assert.Contains(t, sz.Reasoning, "defaults")
	assert.GreaterOrEqual(t, sz.PositionPct, 0.01)
	assert.LessOrEqual(t, sz.PositionPct, 0.10)
	assert.InDelta(t, sz.RecommendedAmount*0.05, sz.MaxLoss, 0.01)
}

func TestCalculateUsesStatsWithHistory(t *testing.T) {
	s := NewSizer()
	stats := &memory.AgentStatistics{TotalTrades: 25, WinRate: 0.60, WinLossRatio: 2.0}

	sz := s.Calculate(stats, Inputs{Capital: 10000, Confidence: 85, VIX: 22.5})

	// f = 0.60 - 0.40/2.0 = 0.40
	assert.InDelta(t, 0.40, sz.KellyFraction, 1e-9)
	assert.Contains(t, sz.Reasoning, "agent statistics")
}

func TestCalculateFloorsNegativeKelly(t *testing.T) {
	s := NewSizer()
	stats := &memory.AgentStatistics{TotalTrades: 20, WinRate: 0.30, WinLossRatio: 1.0}

	sz := s.Calculate(stats, Inputs{Capital: 10000, Confidence: 90, VIX: 12})

	// f = 0.30 - 0.70 = -0.40, floored to the 1% minimum
	assert.Less(t, sz.KellyFraction, 0.0)
	assert.Equal(t, 0.01, sz.PositionPct)
	assert.InDelta(t, 100.0, sz.RecommendedAmount, 1e-9)
}

func TestCalculateCapsAtTenPercent(t *testing.T) {
	s := NewSizer()
	stats := &memory.AgentStatistics{TotalTrades: 50, WinRate: 0.80, WinLossRatio: 3.0}

	sz := s.Calculate(stats, Inputs{
		Capital: 10000, Confidence: 95, VIX: 12,
		RiskLevel: "LOW", SmartMoneySignal: "STRONG_BULLISH", ConsecutiveWins: 6,
	})

	assert.Equal(t, 0.10, sz.PositionPct)
	assert.InDelta(t, 1000.0, sz.RecommendedAmount, 1e-9)
}

func TestVIXFactor(t *testing.T) {
	assert.Equal(t, 1.5, vixFactor(12))
	assert.Equal(t, 0.5, vixFactor(35))
	assert.InDelta(t, 1.0, vixFactor(22.5), 1e-9)
	assert.InDelta(t, 1.5-(20-15)/15.0, vixFactor(20), 1e-9)
	assert.Equal(t, 1.0, vixFactor(0))
}

func TestStreakFactor(t *testing.T) {
	assert.Equal(t, 1.2, streakFactor(5, 0))
	assert.Equal(t, 0.6, streakFactor(0, 3))
	assert.Equal(t, 1.0, streakFactor(4, 2))
}

func TestConfidenceFactorSteps(t *testing.T) {
	tests := []struct {
		confidence int
		want       float64
	}{
		{45, 0.3}, {55, 0.5}, {65, 0.7}, {75, 0.85}, {85, 1.0}, {95, 1.1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, confidenceFactor(tt.confidence), "confidence %d", tt.confidence)
	}
}

func TestRiskFactorClamps(t *testing.T) {
	s := NewSizer()

	// Panic VIX with HIGH risk and bearish flow bottoms out at 0.4
	low := s.riskFactor(Inputs{VIX: 40, RiskLevel: "HIGH", SmartMoneySignal: "STRONG_BEARISH"})
	assert.Equal(t, 0.4, low)

	// Calm VIX, LOW risk, bullish flow tops out before 1.3
	high := s.riskFactor(Inputs{VIX: 12, RiskLevel: "LOW", SmartMoneySignal: "BULLISH"})
	assert.InDelta(t, 1.1*1.1*1.1, high, 1e-9)
	assert.LessOrEqual(t, high, 1.3)
}

func TestSizingMonotonicInConfidence(t *testing.T) {
	s := NewSizer()
	stats := &memory.AgentStatistics{TotalTrades: 30, WinRate: 0.55, WinLossRatio: 1.8}

	prev := 0.0
	for _, conf := range []int{45, 55, 65, 75, 85, 95} {
		sz := s.Calculate(stats, Inputs{Capital: 10000, Confidence: conf, VIX: 20})
		assert.GreaterOrEqual(t, sz.PositionPct, prev, "confidence %d", conf)
		prev = sz.PositionPct
	}
}

func TestCheatSheet(t *testing.T) {
	s := NewSizer()

	sheet := s.CheatSheet(nil, Inputs{Capital: 10000, VIX: 20})

	assert.Contains(t, sheet, "POSITION SIZING GUIDE")
	for _, conf := range []string{"50%", "60%", "70%", "80%", "90%", "95%"} {
		assert.True(t, strings.Contains(sheet, conf), "missing %s row", conf)
	}
}
