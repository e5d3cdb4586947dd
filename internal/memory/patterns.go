package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/alphadesk/alphadesk/internal/universe"
)

const (
	patternWindow     = 30 * 24 * time.Hour
	patternCacheTTL   = 30 * time.Minute
	bestSetupFloorPct = 2.0
)

// RSIRange maps an RSI value into its pattern bucket
func RSIRange(rsi float64) string {
	switch {
	case rsi < 30:
		return "0-30"
	case rsi < 40:
		return "30-40"
	case rsi < 60:
		return "40-60"
	case rsi < 70:
		return "60-70"
	default:
		return "70+"
	}
}

// VolumeBucket maps a volume ratio into its pattern bucket
func VolumeBucket(ratio float64) string {
	switch {
	case ratio < 0.8:
		return "low"
	case ratio <= 1.2:
		return "normal"
	case ratio <= 2.0:
		return "elevated"
	default:
		return "high"
	}
}

// Recommendation is the pattern-based verdict for a candidate entry
type Recommendation struct {
	Score          int      `json:"score"`
	Recommendation string   `json:"recommendation"` // FAVORABLE, NEUTRAL, UNFAVORABLE
	Reasons        []string `json:"reasons"`
}

type patternCache struct {
	all        []WinningPattern
	byHour     map[int][]WinningPattern
	bySector   map[string][]WinningPattern
	byRSIRange map[string][]WinningPattern
	byVolume   map[string][]WinningPattern
	bestSetups []WinningPattern
}

// PatternIndex aggregates the winning patterns of the last 30 days into
// lookup buckets, refreshed at most every 30 minutes
type PatternIndex struct {
	repo   Repository
	window time.Duration
	ttl    time.Duration
	now    func() time.Time
	logger zerolog.Logger

	mu        sync.Mutex
	cache     *patternCache
	fetchedAt time.Time
}

// NewPatternIndex creates an index over the repository's winning patterns
func NewPatternIndex(repo Repository) *PatternIndex {
	return &PatternIndex{
		repo:   repo,
		window: patternWindow,
		ttl:    patternCacheTTL,
		now:    time.Now,
		logger: log.With().Str("component", "patterns").Logger(),
	}
}

func (idx *PatternIndex) load(ctx context.Context) *patternCache {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.cache != nil && idx.now().Sub(idx.fetchedAt) < idx.ttl {
		return idx.cache
	}

	patterns, err := idx.repo.PatternsSince(ctx, idx.now().Add(-idx.window))
	if err != nil {
		idx.logger.Warn().Err(err).Msg("Failed to load winning patterns")
		if idx.cache != nil {
			return idx.cache
		}
		return &patternCache{
			byHour:     map[int][]WinningPattern{},
			bySector:   map[string][]WinningPattern{},
			byRSIRange: map[string][]WinningPattern{},
			byVolume:   map[string][]WinningPattern{},
		}
	}

	cache := &patternCache{
		all:        patterns,
		byHour:     make(map[int][]WinningPattern),
		bySector:   make(map[string][]WinningPattern),
		byRSIRange: make(map[string][]WinningPattern),
		byVolume:   make(map[string][]WinningPattern),
	}
	for _, p := range patterns {
		cache.byHour[p.EntryHour] = append(cache.byHour[p.EntryHour], p)
		if p.Sector != "" {
			cache.bySector[p.Sector] = append(cache.bySector[p.Sector], p)
		}
		if p.RSIAtEntry > 0 {
			rng := RSIRange(p.RSIAtEntry)
			cache.byRSIRange[rng] = append(cache.byRSIRange[rng], p)
		}
		if p.VolumeRatio > 0 {
			bucket := VolumeBucket(p.VolumeRatio)
			cache.byVolume[bucket] = append(cache.byVolume[bucket], p)
		}
		if p.PnLPercent > bestSetupFloorPct {
			cache.bestSetups = append(cache.bestSetups, p)
		}
	}
	sort.Slice(cache.bestSetups, func(i, j int) bool {
		return cache.bestSetups[i].PnLPercent > cache.bestSetups[j].PnLPercent
	})

	idx.cache = cache
	idx.fetchedAt = idx.now()
	idx.logger.Debug().Int("patterns", len(patterns)).Msg("Winning-pattern cache refreshed")
	return cache
}

// Invalidate drops the cached buckets so the next read reloads
func (idx *PatternIndex) Invalidate() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.cache = nil
}

// Recommendation scores a candidate entry against the recorded winning
// conditions. Score starts at 50 and moves with each matched or violated
// pattern; 70+ is FAVORABLE, below 50 UNFAVORABLE.
func (idx *PatternIndex) Recommendation(ctx context.Context, symbol string, rsi float64, hour int, volumeRatio float64) Recommendation {
	cache := idx.load(ctx)

	score := 50
	var reasons []string

	if hourPatterns := cache.byHour[hour]; len(hourPatterns) >= 3 {
		if avg := avgPnLPercent(hourPatterns); avg > 1 {
			score += 15
			reasons = append(reasons, fmt.Sprintf("Hour %dh historically good (%d wins, avg %+.1f%%)", hour, len(hourPatterns), avg))
		}
	}
	// Opening hour and the last half hour produced poor entries
	if hour == 9 || hour >= 15 {
		score -= 10
		reasons = append(reasons, "Risky time of day for an entry")
	}

	sector := universe.SectorFor(symbol)
	if sectorPatterns := cache.bySector[sector]; len(sectorPatterns) >= 3 {
		score += 10
		reasons = append(reasons, fmt.Sprintf("%s sector has %d recent wins", sector, len(sectorPatterns)))
	}

	if rsi > 0 {
		switch {
		case rsi < 35:
			if len(cache.byRSIRange["0-30"])+len(cache.byRSIRange["30-40"]) >= 2 {
				score += 15
				reasons = append(reasons, fmt.Sprintf("Low RSI (%.0f) matches winning dip-buy setups", rsi))
			}
		case rsi > 75:
			score -= 15
			reasons = append(reasons, fmt.Sprintf("Overbought RSI (%.0f), poor historical entries", rsi))
		}
	}

	if volumeRatio > 1.5 {
		score += 10
		reasons = append(reasons, fmt.Sprintf("High volume (%.1fx) matches breakout wins", volumeRatio))
	} else if volumeRatio > 0 && volumeRatio < 0.5 {
		score -= 10
		reasons = append(reasons, fmt.Sprintf("Very low volume (%.1fx), weak conviction", volumeRatio))
	}

	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}

	verdict := "UNFAVORABLE"
	switch {
	case score >= 70:
		verdict = "FAVORABLE"
	case score >= 50:
		verdict = "NEUTRAL"
	}

	return Recommendation{Score: score, Recommendation: verdict, Reasons: reasons}
}

// Context renders the winning-pattern block for the pre-decision prompt.
// Empty string when no patterns were recorded yet.
func (idx *PatternIndex) Context(ctx context.Context) string {
	cache := idx.load(ctx)
	if len(cache.all) == 0 {
		return ""
	}

	var parts []string
	parts = append(parts, fmt.Sprintf("WINNING PATTERNS (last 30 days, %d recorded):", len(cache.all)))

	if hours := topHours(cache.byHour, 3); len(hours) > 0 {
		var frags []string
		for _, h := range hours {
			frags = append(frags, fmt.Sprintf("%dh (%d wins)", h, len(cache.byHour[h])))
		}
		parts = append(parts, "  Best entry hours: "+strings.Join(frags, ", "))
	}

	if sectors := topSectors(cache.bySector, 3); len(sectors) > 0 {
		var frags []string
		for _, sec := range sectors {
			frags = append(frags, fmt.Sprintf("%s (%d wins, avg %+.1f%%)", sec, len(cache.bySector[sec]), avgPnLPercent(cache.bySector[sec])))
		}
		parts = append(parts, "  Best sectors: "+strings.Join(frags, ", "))
	}

	if len(cache.bestSetups) > 0 {
		parts = append(parts, "  Best recent setups:")
		limit := 3
		if len(cache.bestSetups) < limit {
			limit = len(cache.bestSetups)
		}
		for _, p := range cache.bestSetups[:limit] {
			parts = append(parts, fmt.Sprintf("    - %s %s (%s): %+.1f%% | RSI %.0f, volume %.1fx",
				p.Decision, p.Symbol, p.PatternType, p.PnLPercent, p.RSIAtEntry, p.VolumeRatio))
		}
	}

	return strings.Join(parts, "\n")
}

func avgPnLPercent(patterns []WinningPattern) float64 {
	if len(patterns) == 0 {
		return 0
	}
	sum := 0.0
	for _, p := range patterns {
		sum += p.PnLPercent
	}
	return sum / float64(len(patterns))
}

func topHours(byHour map[int][]WinningPattern, n int) []int {
	hours := make([]int, 0, len(byHour))
	for h := range byHour {
		hours = append(hours, h)
	}
	sort.Slice(hours, func(i, j int) bool {
		if len(byHour[hours[i]]) != len(byHour[hours[j]]) {
			return len(byHour[hours[i]]) > len(byHour[hours[j]])
		}
		return hours[i] < hours[j]
	})
	if len(hours) > n {
		hours = hours[:n]
	}
	return hours
}

func topSectors(bySector map[string][]WinningPattern, n int) []string {
	sectors := make([]string, 0, len(bySector))
	for s := range bySector {
		sectors = append(sectors, s)
	}
	sort.Slice(sectors, func(i, j int) bool {
		if len(bySector[sectors[i]]) != len(bySector[sectors[j]]) {
			return len(bySector[sectors[i]]) > len(bySector[sectors[j]])
		}
		return sectors[i] < sectors[j]
	})
	if len(sectors) > n {
		sectors = sectors[:n]
	}
	return sectors
}
