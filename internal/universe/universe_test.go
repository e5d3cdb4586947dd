package universe

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsAllowed(t *testing.T) {
	assert.True(t, IsAllowed("AAPL"))
	assert.True(t, IsAllowed("aapl"))
	assert.True(t, IsAllowed(" SPY "))
	assert.False(t, IsAllowed("NOTREAL"))
	assert.False(t, IsAllowed(""))
}

func TestFilter(t *testing.T) {
	in := []string{"AAPL", "ZZZZ", "QQQ", "FAKE1"}
	out := Filter(in)
	assert.Equal(t, []string{"AAPL", "QQQ"}, out)
}

func TestValidateRejectPolicy(t *testing.T) {
	sym, ok := Validate("ZZZZ", false)
	assert.False(t, ok)
	assert.Empty(t, sym)

	sym, ok = Validate("nvda", false)
	assert.True(t, ok)
	assert.Equal(t, "NVDA", sym)
}

func TestValidateSubstitutePolicy(t *testing.T) {
	sym, ok := Validate("ZZZZ", true)
	assert.True(t, ok)
	assert.True(t, IsAllowed(sym), "substitute must come from the whitelist")
}

func TestSectorFor(t *testing.T) {
	assert.Equal(t, "Technology", SectorFor("AAPL"))
	assert.Equal(t, "Technology", SectorFor("aapl"))
	assert.Equal(t, "Finance", SectorFor("JPM"))
	assert.Equal(t, "Semiconductors", SectorFor("AVGO"))
	assert.Equal(t, "Unknown", SectorFor("ZZZZ"))
}
