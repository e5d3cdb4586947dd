package smartmoney

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const defaultCacheTTL = 15 * time.Minute

// Service aggregates the five smart-money axes into one Summary per symbol.
// Results are cached so every agent in a tick sees the same snapshot.
type Service struct {
	provider Provider
	cache    Cache
	ttl      time.Duration
	now      func() time.Time
	logger   zerolog.Logger
}

// NewService creates the aggregator. A nil cache falls back to in-process.
func NewService(provider Provider, cache Cache) *Service {
	if cache == nil {
		cache = NewMemoryCache()
	}
	return &Service{
		provider: provider,
		cache:    cache,
		ttl:      defaultCacheTTL,
		now:      time.Now,
		logger:   log.With().Str("component", "smartmoney").Logger(),
	}
}

// Summary fetches all axes concurrently and scores the composite signal.
// Individual axis failures degrade to neutral defaults rather than failing
// the whole summary.
func (s *Service) Summary(ctx context.Context, symbol string) (*Summary, error) {
	cacheKey := fmt.Sprintf("smartmoney:summary:%s", symbol)
	if cached, ok := s.cache.Get(ctx, cacheKey); ok {
		var summary Summary
		if err := json.Unmarshal(cached, &summary); err == nil {
			return &summary, nil
		}
	}

	if s.provider == nil {
		return nil, fmt.Errorf("no smart-money provider configured")
	}

	// Neutral defaults survive individual fetch failures
	vix := VIXData{VIX: 20, Regime: "NORMAL"}
	options := OptionsData{Symbol: symbol, PutCallRatio: 1.0, Sentiment: "NEUTRAL"}
	darkPool := DarkPoolData{Symbol: symbol, VolumeRatio: 1.0, EstimatedRatio: 0.40, Signal: "NORMAL", Direction: "NEUTRAL"}
	insider := InsiderData{Symbol: symbol, Activity: "UNKNOWN", NetSentiment: "NEUTRAL"}
	fearGreed := FearGreedData{Index: 50, Classification: "Neutral", MarketSentiment: "NEUTRAL"}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if v, err := s.provider.FetchVIX(gctx); err == nil {
			vix = v
		} else {
			s.logger.Warn().Err(err).Msg("VIX fetch failed, using neutral default")
		}
		return nil
	})
	g.Go(func() error {
		if o, err := s.provider.FetchOptions(gctx, symbol); err == nil {
			options = o
		} else {
			s.logger.Warn().Err(err).Str("symbol", symbol).Msg("Options fetch failed, using neutral default")
		}
		return nil
	})
	g.Go(func() error {
		if volumes, err := s.provider.FetchVolumes(gctx, symbol); err == nil {
			darkPool = EstimateDarkPool(symbol, volumes)
		} else {
			s.logger.Warn().Err(err).Str("symbol", symbol).Msg("Volume fetch failed, using neutral default")
		}
		return nil
	})
	g.Go(func() error {
		if in, err := s.provider.FetchInsiderFilings(gctx, symbol); err == nil {
			insider = in
		} else {
			s.logger.Warn().Err(err).Str("symbol", symbol).Msg("Insider fetch failed, using neutral default")
		}
		return nil
	})
	g.Go(func() error {
		if fg, err := s.provider.FetchFearGreed(gctx); err == nil {
			fearGreed = fg
		} else {
			s.logger.Warn().Err(err).Msg("Fear/greed fetch failed, using neutral default")
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("smart-money aggregation: %w", err)
	}

	summary := score(symbol, vix, options, darkPool, insider, fearGreed)
	summary.Timestamp = s.now()

	if data, err := json.Marshal(summary); err == nil {
		s.cache.Set(ctx, cacheKey, data, s.ttl)
	}

	s.logger.Info().
		Str("symbol", symbol).
		Str("signal", string(summary.OverallSignal)).
		Int("bullish", summary.BullishCount).
		Int("bearish", summary.BearishCount).
		Msg("Smart-money summary computed")

	return summary, nil
}

// Snapshot returns the symbol-independent market context used by the memory
// store and the regime guard
func (s *Service) Snapshot(ctx context.Context) (*MarketSnapshot, error) {
	const cacheKey = "smartmoney:snapshot"
	if cached, ok := s.cache.Get(ctx, cacheKey); ok {
		var snap MarketSnapshot
		if err := json.Unmarshal(cached, &snap); err == nil {
			return &snap, nil
		}
	}

	if s.provider == nil {
		return nil, fmt.Errorf("no smart-money provider configured")
	}

	vix := VIXData{VIX: 20, Regime: "NORMAL"}
	fearGreed := FearGreedData{Index: 50, Classification: "Neutral", MarketSentiment: "NEUTRAL"}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if v, err := s.provider.FetchVIX(gctx); err == nil {
			vix = v
		}
		return nil
	})
	g.Go(func() error {
		if fg, err := s.provider.FetchFearGreed(gctx); err == nil {
			fearGreed = fg
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("market snapshot: %w", err)
	}

	snap := &MarketSnapshot{
		VIX:       vix,
		FearGreed: fearGreed,
		Sentiment: marketSentiment(vix.VIX, fearGreed.Index),
		Timestamp: s.now(),
	}

	if data, err := json.Marshal(snap); err == nil {
		s.cache.Set(ctx, cacheKey, data, s.ttl)
	}

	return snap, nil
}

// EstimateDarkPool derives the off-exchange estimate from 5-day volumes
func EstimateDarkPool(symbol string, volumes []float64) DarkPoolData {
	if len(volumes) == 0 {
		return DarkPoolData{
			Symbol:         symbol,
			VolumeRatio:    1.0,
			EstimatedRatio: 0.40,
			Signal:         "NORMAL",
			Direction:      "NEUTRAL",
		}
	}
	current := volumes[len(volumes)-1]
	avg := current
	if len(volumes) > 1 {
		var sum float64
		for _, v := range volumes[:len(volumes)-1] {
			sum += v
		}
		avg = sum / float64(len(volumes)-1)
	}

	ratio := 1.0
	if avg > 0 {
		ratio = current / avg
	}

	estimated := 0.40
	signal := "NORMAL"
	switch {
	case ratio < 0.7:
		// Thin lit volume often hides in dark pools
		estimated = 0.50
		signal = "HIGH"
	case ratio > 1.5:
		estimated = 0.30
		signal = "LOW"
	}

	direction := "NEUTRAL"
	if ratio > 1.2 {
		direction = "BULLISH"
	} else if ratio < 0.8 {
		direction = "BEARISH"
	}

	return DarkPoolData{
		Symbol:           symbol,
		CurrentVolume:    current,
		AvgVolume5d:      avg,
		VolumeRatio:      ratio,
		EstimatedRatio:   estimated,
		Signal:           signal,
		BlockTradeLikely: ratio > 2.0,
		Direction:        direction,
	}
}

// score tallies the weighted axes into the composite signal
func score(symbol string, vix VIXData, options OptionsData, darkPool DarkPoolData, insider InsiderData, fearGreed FearGreedData) *Summary {
	bullish, bearish := 0, 0

	switch options.Sentiment {
	case "BULLISH":
		bullish += 2
	case "BEARISH":
		bearish += 2
	}
	switch darkPool.Direction {
	case "BULLISH":
		bullish++
	case "BEARISH":
		bearish++
	}
	switch insider.NetSentiment {
	case "BULLISH":
		bullish += 2
	case "BEARISH":
		bearish += 2
	}
	switch fearGreed.MarketSentiment {
	case "BULLISH":
		bullish++
	case "BEARISH":
		bearish++
	}

	var (
		signal Signal
		boost  int
	)
	switch {
	case bullish > bearish+2:
		signal, boost = StrongBullish, 10
	case bullish > bearish:
		signal, boost = Bullish, 5
	case bearish > bullish+2:
		signal, boost = StrongBearish, -10
	case bearish > bullish:
		signal, boost = Bearish, -5
	default:
		signal, boost = Neutral, 0
	}

	return &Summary{
		Symbol:               symbol,
		OverallSignal:        signal,
		ConfidenceAdjustment: boost,
		BullishCount:         bullish,
		BearishCount:         bearish,
		VIX:                  vix,
		Options:              options,
		DarkPool:             darkPool,
		Insider:              insider,
		FearGreed:            fearGreed,
	}
}

// marketSentiment classifies the overall regime from VIX and fear/greed
func marketSentiment(vix float64, fearGreed int) string {
	if vix < 18 && fearGreed > 55 {
		return "BULLISH"
	}
	if vix > 25 || fearGreed < 40 {
		return "BEARISH"
	}
	return "NEUTRAL"
}
