package smartmoney

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	vix       VIXData
	options   OptionsData
	volumes   []float64
	insider   InsiderData
	fearGreed FearGreedData
	failAll   bool
	calls     int
}

func (p *stubProvider) FetchVIX(context.Context) (VIXData, error) {
	p.calls++
	if p.failAll {
		return VIXData{}, errors.New("down")
	}
	return p.vix, nil
}

func (p *stubProvider) FetchOptions(context.Context, string) (OptionsData, error) {
	if p.failAll {
		return OptionsData{}, errors.New("down")
	}
	return p.options, nil
}

func (p *stubProvider) FetchVolumes(context.Context, string) ([]float64, error) {
	if p.failAll {
		return nil, errors.New("down")
	}
	return p.volumes, nil
}

func (p *stubProvider) FetchInsiderFilings(ctx context.Context, symbol string) (InsiderData, error) {
	if p.failAll {
		return InsiderData{}, errors.New("down")
	}
	return p.insider, nil
}

func (p *stubProvider) FetchFearGreed(context.Context) (FearGreedData, error) {
	if p.failAll {
		return FearGreedData{}, errors.New("down")
	}
	return p.fearGreed, nil
}

func bullishProvider() *stubProvider {
	return &stubProvider{
		vix:       VIXData{VIX: 14, Regime: "LOW"},
		options:   OptionsData{PutCallRatio: 0.5, Sentiment: "BULLISH"},
		volumes:   []float64{1000, 1000, 1000, 1000, 1400}, // ratio 1.4, BULLISH
		insider:   InsiderData{BuyCount: 4, SellCount: 1, Activity: "BUYING", NetSentiment: "BULLISH"},
		fearGreed: FearGreedData{Index: 70, Classification: "Greed", MarketSentiment: "BULLISH"},
	}
}

func TestSummaryStrongBullish(t *testing.T) {
	s := NewService(bullishProvider(), nil)

	summary, err := s.Summary(context.Background(), "AAPL")
	require.NoError(t, err)

	assert.Equal(t, StrongBullish, summary.OverallSignal)
	assert.Equal(t, 10, summary.ConfidenceAdjustment)
	assert.Equal(t, 6, summary.BullishCount)
	assert.Zero(t, summary.BearishCount)
}

func TestSummaryDegradesToNeutralOnFailures(t *testing.T) {
	s := NewService(&stubProvider{failAll: true}, nil)

	summary, err := s.Summary(context.Background(), "AAPL")
	require.NoError(t, err)

	assert.Equal(t, Neutral, summary.OverallSignal)
	assert.Zero(t, summary.ConfidenceAdjustment)
	assert.Equal(t, 20.0, summary.VIX.VIX)
}

func TestSummaryBearishBands(t *testing.T) {
	p := bullishProvider()
	p.options = OptionsData{PutCallRatio: 1.5, Sentiment: "BEARISH"}
	p.insider = InsiderData{BuyCount: 0, SellCount: 3, NetSentiment: "BEARISH"}
	p.volumes = []float64{1000, 1000, 1000, 1000, 1000} // NEUTRAL
	p.fearGreed = FearGreedData{Index: 50, MarketSentiment: "NEUTRAL"}

	s := NewService(p, nil)
	summary, err := s.Summary(context.Background(), "AAPL")
	require.NoError(t, err)

	assert.Equal(t, StrongBearish, summary.OverallSignal)
	assert.Equal(t, -10, summary.ConfidenceAdjustment)
}

func TestSummaryCached(t *testing.T) {
	p := bullishProvider()
	s := NewService(p, nil)

	_, err := s.Summary(context.Background(), "AAPL")
	require.NoError(t, err)
	callsAfterFirst := p.calls

	_, err = s.Summary(context.Background(), "AAPL")
	require.NoError(t, err)

	assert.Equal(t, callsAfterFirst, p.calls, "second summary must come from cache")
}

func TestSummaryRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewRedisCache(client)

	p := bullishProvider()
	s := NewService(p, cache)

	summary, err := s.Summary(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, StrongBullish, summary.OverallSignal)

	again, err := s.Summary(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, summary.OverallSignal, again.OverallSignal)
	assert.True(t, mr.Exists("smartmoney:summary:AAPL"))
}

func TestSnapshotSentiment(t *testing.T) {
	tests := []struct {
		name      string
		vix       float64
		fearGreed int
		want      string
	}{
		{"calm_and_greedy", 15, 60, "BULLISH"},
		{"high_vix", 28, 60, "BEARISH"},
		{"fearful", 16, 30, "BEARISH"},
		{"mixed", 20, 50, "NEUTRAL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := bullishProvider()
			p.vix = VIXData{VIX: tt.vix, Regime: VolatilityRegime(tt.vix)}
			p.fearGreed = FearGreedData{Index: tt.fearGreed}

			s := NewService(p, nil)
			snap, err := s.Snapshot(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, snap.Sentiment)
		})
	}
}

func TestEstimateDarkPool(t *testing.T) {
	low := EstimateDarkPool("AAPL", []float64{1000, 1000, 1000, 1000, 500})
	assert.Equal(t, 0.50, low.EstimatedRatio)
	assert.Equal(t, "HIGH", low.Signal)
	assert.Equal(t, "BEARISH", low.Direction)

	high := EstimateDarkPool("AAPL", []float64{1000, 1000, 1000, 1000, 2500})
	assert.Equal(t, 0.30, high.EstimatedRatio)
	assert.Equal(t, "LOW", high.Signal)
	assert.Equal(t, "BULLISH", high.Direction)
	assert.True(t, high.BlockTradeLikely)

	normal := EstimateDarkPool("AAPL", []float64{1000, 1000, 1000, 1000, 1000})
	assert.Equal(t, 0.40, normal.EstimatedRatio)
	assert.Equal(t, "NORMAL", normal.Signal)
	assert.Equal(t, "NEUTRAL", normal.Direction)
}

func TestEstimateDarkPoolEmptyVolumes(t *testing.T) {
	empty := EstimateDarkPool("AAPL", nil)
	assert.Equal(t, 1.0, empty.VolumeRatio)
	assert.Equal(t, 0.40, empty.EstimatedRatio)
	assert.Equal(t, "NORMAL", empty.Signal)
	assert.Equal(t, "NEUTRAL", empty.Direction)
	assert.False(t, empty.BlockTradeLikely)
}

func TestVolatilityRegimeBands(t *testing.T) {
	assert.Equal(t, "LOW", VolatilityRegime(12))
	assert.Equal(t, "NORMAL", VolatilityRegime(17))
	assert.Equal(t, "ELEVATED", VolatilityRegime(25))
	assert.Equal(t, "HIGH", VolatilityRegime(35))
}

func TestOptionsSentimentBands(t *testing.T) {
	assert.Equal(t, "BULLISH", OptionsSentiment(0.5))
	assert.Equal(t, "NEUTRAL", OptionsSentiment(1.0))
	assert.Equal(t, "BEARISH", OptionsSentiment(1.5))
}

func TestBuildInsiderData(t *testing.T) {
	buying := BuildInsiderData("AAPL", 4, 1, 8)
	assert.Equal(t, "BUYING", buying.Activity)
	assert.Equal(t, "BULLISH", buying.NetSentiment)

	selling := BuildInsiderData("AAPL", 1, 4, 8)
	assert.Equal(t, "SELLING", selling.Activity)
	assert.Equal(t, "BEARISH", selling.NetSentiment)

	flat := BuildInsiderData("AAPL", 2, 2, 8)
	assert.Equal(t, "NEUTRAL", flat.Activity)
	assert.Equal(t, "NEUTRAL", flat.NetSentiment)
}

func TestMemoryCacheTTL(t *testing.T) {
	c := NewMemoryCache()
	current := time.Now()
	c.now = func() time.Time { return current }

	c.Set(context.Background(), "k", []byte("v"), time.Minute)

	got, ok := c.Get(context.Background(), "k")
	require.True(t, ok)
	assert.Equal(t, []byte("v"), got)

	current = current.Add(2 * time.Minute)
	_, ok = c.Get(context.Background(), "k")
	assert.False(t, ok)
}
