package exits

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alphadesk/alphadesk/internal/smartmoney"
)

func newTestEngine(partial bool) (*Engine, *time.Time) {
	e := NewEngine(partial)
	now := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return now }
	return e, &now
}

func TestRegisterComputesAdaptiveLevels(t *testing.T) {
	e, _ := newTestEngine(false)

	lvl := e.Register("agent-1", "AAPL", 100, 10, 75, "MEDIUM", 20, smartmoney.Neutral)

	assert.InDelta(t, 0.03, lvl.StopLossPct, 1e-9)
	assert.InDelta(t, 0.06, lvl.TakeProfitPct, 1e-9)
	assert.InDelta(t, 97.0, lvl.StopLossPrice, 1e-9)
	assert.InDelta(t, 106.0, lvl.TakeProfitPrice, 1e-9)
}

func TestAdaptiveStopLossBounds(t *testing.T) {
	// Every modifier shrinking: high VIX, low confidence, HIGH risk
	tight := adaptiveStopLossPct(40, "HIGH", 35)
	assert.GreaterOrEqual(t, tight, 0.02)
	assert.Less(t, tight, 0.03)

	// Every modifier stretching stays under the cap
	wide := adaptiveStopLossPct(90, "LOW", 12)
	assert.LessOrEqual(t, wide, 0.06)
	assert.Greater(t, wide, 0.03)
}

func TestAdaptiveTakeProfitSmartMoneySign(t *testing.T) {
	bull := adaptiveTakeProfitPct(75, "MEDIUM", 20, smartmoney.StrongBullish)
	bear := adaptiveTakeProfitPct(75, "MEDIUM", 20, smartmoney.StrongBearish)

	assert.Greater(t, bull, bear)
	assert.GreaterOrEqual(t, bear, 0.04)
	assert.LessOrEqual(t, bull, 0.15)
}

func TestStopLossFiresFirst(t *testing.T) {
	e, _ := newTestEngine(false)
	e.Register("agent-1", "AAPL", 100, 10, 75, "MEDIUM", 20, smartmoney.Neutral)

	order := e.Evaluate("agent-1", "AAPL", Inputs{CurrentPrice: 96.5, SmartMoneySignal: smartmoney.StrongBearish})

	require.NotNil(t, order)
	assert.Equal(t, StopLoss, order.Reason)
	assert.Equal(t, Critical, order.Urgency)
	assert.Equal(t, 10.0, order.Quantity)
}

func TestTakeProfitFires(t *testing.T) {
	e, _ := newTestEngine(false)
	e.Register("agent-1", "AAPL", 100, 10, 75, "MEDIUM", 20, smartmoney.Neutral)

	order := e.Evaluate("agent-1", "AAPL", Inputs{CurrentPrice: 106.5})

	require.NotNil(t, order)
	assert.Equal(t, TakeProfit, order.Reason)
	assert.Equal(t, High, order.Urgency)
}

func TestTrailingStopCapturesRunUp(t *testing.T) {
	e, _ := newTestEngine(false)
	e.Register("agent-1", "AAPL", 100, 10, 75, "MEDIUM", 20, smartmoney.Neutral)

	// +4.5% activates the trailing stop, still holding
	assert.Nil(t, e.Evaluate("agent-1", "AAPL", Inputs{CurrentPrice: 104.5}))
	lvl := e.Get("agent-1", "AAPL")
	require.NotNil(t, lvl)
	assert.True(t, lvl.TrailingActive)
	assert.InDelta(t, 104.5*(1-0.015), lvl.TrailingStop, 1e-9)

	// New high moves the stop up
	assert.Nil(t, e.Evaluate("agent-1", "AAPL", Inputs{CurrentPrice: 105.5}))
	lvl = e.Get("agent-1", "AAPL")
	assert.InDelta(t, 105.5, lvl.HighestPrice, 1e-9)

	// Pullback below the trailing stop forces the sale in profit
	order := e.Evaluate("agent-1", "AAPL", Inputs{CurrentPrice: 103.8})
	require.NotNil(t, order)
	assert.Equal(t, TrailingStop, order.Reason)
	assert.Greater(t, order.PnLPct, 0.0)
}

func TestTimeExitOnlyWhenFlat(t *testing.T) {
	e, now := newTestEngine(false)
	e.Register("agent-1", "AAPL", 100, 10, 75, "MEDIUM", 20, smartmoney.Neutral)

	*now = now.Add(11 * 24 * time.Hour)

	// Flat position exits
	order := e.Evaluate("agent-1", "AAPL", Inputs{CurrentPrice: 100.5})
	require.NotNil(t, order)
	assert.Equal(t, TimeExit, order.Reason)
	assert.Equal(t, Medium, order.Urgency)

	// A position with a real move does not
	e.Register("agent-1", "MSFT", 100, 10, 75, "MEDIUM", 20, smartmoney.Neutral)
	*now = now.Add(11 * 24 * time.Hour)
	assert.Nil(t, e.Evaluate("agent-1", "MSFT", Inputs{CurrentPrice: 102.5}))
}

func TestSignalExitOnlyInProfit(t *testing.T) {
	e, _ := newTestEngine(false)
	e.Register("agent-1", "AAPL", 100, 10, 75, "MEDIUM", 20, smartmoney.Neutral)

	// Bearish flow with a losing position holds (stop loss owns the downside)
	assert.Nil(t, e.Evaluate("agent-1", "AAPL", Inputs{CurrentPrice: 98.0, SmartMoneySignal: smartmoney.StrongBearish}))

	order := e.Evaluate("agent-1", "AAPL", Inputs{CurrentPrice: 102.0, SmartMoneySignal: smartmoney.StrongBearish})
	require.NotNil(t, order)
	assert.Equal(t, SignalExit, order.Reason)
}

func TestPartialTakeProfitBehindFlag(t *testing.T) {
	e, _ := newTestEngine(true)
	// High confidence stretches the target to 7.2% so the +6% partial
	// trigger sits below it
	e.Register("agent-1", "AAPL", 100, 10, 90, "MEDIUM", 20, smartmoney.Neutral)

	order := e.Evaluate("agent-1", "AAPL", Inputs{CurrentPrice: 106.5})
	require.NotNil(t, order)
	assert.Equal(t, PartialTP, order.Reason)
	assert.Equal(t, 5.0, order.Quantity)

	lvl := e.Get("agent-1", "AAPL")
	require.NotNil(t, lvl)
	assert.Equal(t, 5.0, lvl.Quantity)
	assert.True(t, lvl.TrailingActive)
	assert.True(t, lvl.PartialTaken)

	// Only once
	assert.Nil(t, e.Evaluate("agent-1", "AAPL", Inputs{CurrentPrice: 105.99}))
}

func TestRemoveStopsTracking(t *testing.T) {
	e, _ := newTestEngine(false)
	e.Register("agent-1", "AAPL", 100, 10, 75, "MEDIUM", 20, smartmoney.Neutral)

	e.Remove("agent-1", "AAPL")
	assert.Nil(t, e.Get("agent-1", "AAPL"))
	assert.Nil(t, e.Evaluate("agent-1", "AAPL", Inputs{CurrentPrice: 50}))
}

func TestLessonFor(t *testing.T) {
	assert.Contains(t, LessonFor(StopLoss, -3), "Stop-loss")
	assert.Contains(t, LessonFor(TrailingStop, 4.2), "+4.2%")
	assert.NotEmpty(t, LessonFor(TimeExit, 0.2))
}
