package earnings

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedNow() time.Time {
	return time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
}

func newTestService(events map[string]Event) *Service {
	s := NewService(&StaticProvider{Events: events})
	s.now = fixedNow
	return s
}

func TestCheckRiskLadder(t *testing.T) {
	tests := []struct {
		name       string
		date       time.Time
		risk       Risk
		avoidBuy   bool
		multiplier float64
	}{
		{"imminent", fixedNow().Add(48 * time.Hour), RiskHigh, true, 0.0},
		{"this_week", fixedNow().Add(6 * 24 * time.Hour), RiskMedium, false, 0.5},
		{"next_week", fixedNow().Add(12 * 24 * time.Hour), RiskLow, false, 0.75},
		{"far_out", fixedNow().Add(30 * 24 * time.Hour), RiskNone, false, 1.0},
		{"just_reported", fixedNow().Add(-24 * time.Hour), RiskMedium, false, 0.75},
		{"long_past", fixedNow().Add(-10 * 24 * time.Hour), RiskNone, false, 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestService(map[string]Event{
				"AAPL": {Symbol: "AAPL", Date: tt.date, Confirmed: true},
			})

			info, err := s.Check(context.Background(), "AAPL")
			require.NoError(t, err)
			assert.Equal(t, tt.risk, info.Risk)
			assert.Equal(t, tt.avoidBuy, info.ShouldAvoidBuy)
			assert.Equal(t, tt.multiplier, info.PositionSizeMultiplier)
			require.NotNil(t, info.EarningsDate)
		})
	}
}

func TestCheckNoEarningsScheduled(t *testing.T) {
	s := newTestService(nil)

	info, err := s.Check(context.Background(), "MSFT")
	require.NoError(t, err)
	assert.Equal(t, RiskNone, info.Risk)
	assert.False(t, info.ShouldAvoidBuy)
	assert.Equal(t, 1.0, info.PositionSizeMultiplier)
	assert.Nil(t, info.EarningsDate)
}

func TestCheckNoProviderConfigured(t *testing.T) {
	s := NewService(nil)

	info, err := s.Check(context.Background(), "MSFT")
	require.NoError(t, err)
	assert.Equal(t, RiskNone, info.Risk)
	assert.Equal(t, 1.0, info.PositionSizeMultiplier)
}

type countingProvider struct {
	calls int
	err   error
}

func (p *countingProvider) NextEarnings(context.Context, string) (*Event, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return nil, nil
}

func TestCheckCachesWithinTTL(t *testing.T) {
	p := &countingProvider{}
	s := NewService(p)
	s.now = fixedNow

	_, err := s.Check(context.Background(), "NVDA")
	require.NoError(t, err)
	_, err = s.Check(context.Background(), "NVDA")
	require.NoError(t, err)

	assert.Equal(t, 1, p.calls, "second check must hit the cache")
}

func TestCheckCacheExpires(t *testing.T) {
	p := &countingProvider{}
	s := NewService(p)

	current := fixedNow()
	s.now = func() time.Time { return current }

	_, err := s.Check(context.Background(), "NVDA")
	require.NoError(t, err)

	current = current.Add(7 * time.Hour)
	_, err = s.Check(context.Background(), "NVDA")
	require.NoError(t, err)

	assert.Equal(t, 2, p.calls)
}

func TestCheckProviderError(t *testing.T) {
	p := &countingProvider{err: errors.New("upstream down")}
	s := NewService(p)

	_, err := s.Check(context.Background(), "NVDA")
	assert.Error(t, err)
}
