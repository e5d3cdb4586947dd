package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alphadesk/alphadesk/internal/agent"
	"github.com/alphadesk/alphadesk/internal/config"
	"github.com/alphadesk/alphadesk/internal/db"
	"github.com/alphadesk/alphadesk/internal/exits"
)

func TestSeedPositionsRestoresHoldingsAndExitLevels(t *testing.T) {
	a := agent.New(config.AgentSpec{ID: "agent-warren", Name: "warren"}, 10000, 1.0, false, agent.Deps{})
	a.RestoreCapital(8500, 3.0)
	engine := exits.NewEngine(false)

	at := time.Date(2026, 8, 24, 15, 0, 0, 0, time.UTC)
	seedPositions(a, engine, []db.PositionRow{
		{AgentID: "agent-warren", Symbol: "AAPL", Quantity: 5, EntryPrice: 185.5, UpdatedAt: at},
		{AgentID: "agent-warren", Symbol: "NVDA", Quantity: 2, EntryPrice: 900, UpdatedAt: at},
	})

	positions := a.Positions()
	require.Len(t, positions, 2)

	lvl := engine.Get("agent-warren", "AAPL")
	require.NotNil(t, lvl, "a restored position must be protected again")
	assert.Equal(t, 185.5, lvl.EntryPrice)
	assert.Less(t, lvl.StopLossPrice, 185.5)
	assert.Greater(t, lvl.TakeProfitPrice, 185.5)

	require.NotNil(t, engine.Get("agent-warren", "NVDA"))
}

func TestSeedPositionsEmptyIsNoOp(t *testing.T) {
	a := agent.New(config.AgentSpec{ID: "agent-warren", Name: "warren"}, 10000, 1.0, false, agent.Deps{})
	engine := exits.NewEngine(false)

	seedPositions(a, engine, nil)

	assert.Empty(t, a.Positions())
	assert.Empty(t, engine.Levels())
}
