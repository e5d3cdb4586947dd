package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func vote(name, action, symbol string, confidence int, perf float64) Vote {
	return Vote{
		AgentName:      name,
		PerformancePct: perf,
		Decision: &Decision{
			Decision: action, Symbol: symbol, Confidence: confidence,
			RiskLevel: "MEDIUM", Reasoning: name + " view",
		},
	}
}

func TestWeightedRejectsLowCollectiveConfidence(t *testing.T) {
	c := NewConsortium(ModeWeighted)

	d := c.Combine([]Vote{
		vote("a", "BUY", "AAPL", 50, 0.5),
		vote("b", "BUY", "AAPL", 52, -1.0),
		vote("c", "HOLD", "", 50, 0.0),
	})

	assert.Equal(t, "HOLD", d.Decision)
	assert.Equal(t, "Confiance collective insuffisante", d.Reasoning)
}

func TestWeightedFavorsPerformingAgents(t *testing.T) {
	c := NewConsortium(ModeWeighted)

	// The strong performer's BUY outweighs two low-performing SELLs
	d := c.Combine([]Vote{
		vote("winner", "BUY", "NVDA", 90, 8.0),
		vote("loser1", "SELL", "NVDA", 60, -3.0),
		vote("loser2", "SELL", "NVDA", 60, -2.0),
	})

	require.Equal(t, "BUY", d.Decision)
	assert.Equal(t, "NVDA", d.Symbol)
	assert.Equal(t, 90, d.Confidence)
}

func TestWeightedNegativePerformanceNeverSubtracts(t *testing.T) {
	c := NewConsortium(ModeWeighted)

	// Both deeply negative performers carry the same minimum weight
	d := c.Combine([]Vote{
		vote("a", "BUY", "AAPL", 80, -50.0),
		vote("b", "BUY", "AAPL", 70, -90.0),
		vote("c", "SELL", "AAPL", 60, 0.0),
	})

	assert.Equal(t, "BUY", d.Decision)
}

func TestVoteModePlurality(t *testing.T) {
	c := NewConsortium(ModeVote)

	d := c.Combine([]Vote{
		vote("a", "BUY", "AAPL", 70, 0),
		vote("b", "BUY", "MSFT", 85, 0),
		vote("c", "SELL", "AAPL", 95, 0),
	})

	require.Equal(t, "BUY", d.Decision)
	// Symbol comes from the highest-confidence supporter of the winning action
	assert.Equal(t, "MSFT", d.Symbol)
	assert.Equal(t, 77, d.Confidence)
}

func TestVoteModeTieBreaksOnAverageConfidence(t *testing.T) {
	c := NewConsortium(ModeVote)

	d := c.Combine([]Vote{
		vote("a", "BUY", "AAPL", 60, 0),
		vote("b", "SELL", "AAPL", 90, 0),
	})

	assert.Equal(t, "SELL", d.Decision)
}

func TestCombineWithNoDecisionsHolds(t *testing.T) {
	c := NewConsortium(ModeWeighted)

	d := c.Combine([]Vote{{AgentName: "a"}, {AgentName: "b"}})
	assert.Equal(t, "HOLD", d.Decision)
}

func TestUnknownModeFallsBackToWeighted(t *testing.T) {
	c := NewConsortium("random")
	assert.Equal(t, ModeWeighted, c.mode)
}
