// Package earnings classifies earnings-date proximity risk per symbol
package earnings

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Risk grades how close the next earnings announcement is
type Risk string

const (
	RiskHigh   Risk = "HIGH"
	RiskMedium Risk = "MEDIUM"
	RiskLow    Risk = "LOW"
	RiskNone   Risk = "NONE"
)

// Event is one upcoming (or recent) earnings announcement
type Event struct {
	Symbol      string
	Date        time.Time
	Hour        string // "bmo" before open, "amc" after close
	Confirmed   bool
	EPSEstimate float64
}

// Info is the risk assessment consumed by the sizing pipeline
type Info struct {
	Symbol                 string     `json:"symbol"`
	EarningsDate           *time.Time `json:"earnings_date,omitempty"`
	Confirmed              bool       `json:"is_confirmed"`
	DaysUntil              *int       `json:"days_until_earnings,omitempty"`
	Risk                   Risk       `json:"risk_level"`
	ShouldAvoidBuy         bool       `json:"should_avoid_buy"`
	PositionSizeMultiplier float64    `json:"position_size_multiplier"`
	Message                string     `json:"message"`
}

// Provider looks up the next earnings event for a symbol.
// A nil event with nil error means no earnings are scheduled.
type Provider interface {
	NextEarnings(ctx context.Context, symbol string) (*Event, error)
}

type cacheEntry struct {
	info     *Info
	cachedAt time.Time
}

// Service answers earnings-risk queries with a per-symbol TTL cache.
// The cache bounds upstream calls to one per symbol per TTL window.
type Service struct {
	provider Provider
	ttl      time.Duration
	now      func() time.Time
	logger   zerolog.Logger

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

// NewService creates an earnings service with the default 6-hour cache
func NewService(provider Provider) *Service {
	return &Service{
		provider: provider,
		ttl:      6 * time.Hour,
		now:      time.Now,
		cache:    make(map[string]cacheEntry),
		logger:   log.With().Str("component", "earnings").Logger(),
	}
}

// Check returns the earnings risk assessment for a symbol
func (s *Service) Check(ctx context.Context, symbol string) (*Info, error) {
	s.mu.RLock()
	entry, ok := s.cache[symbol]
	s.mu.RUnlock()
	if ok && s.now().Sub(entry.cachedAt) < s.ttl {
		return entry.info, nil
	}

	info, err := s.lookup(ctx, symbol)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.cache[symbol] = cacheEntry{info: info, cachedAt: s.now()}
	s.mu.Unlock()

	return info, nil
}

func (s *Service) lookup(ctx context.Context, symbol string) (*Info, error) {
	if s.provider == nil {
		return &Info{
			Symbol:                 symbol,
			Risk:                   RiskNone,
			PositionSizeMultiplier: 1.0,
			Message:                "earnings calendar unavailable, no provider configured",
		}, nil
	}

	event, err := s.provider.NextEarnings(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch earnings for %s: %w", symbol, err)
	}

	if event == nil || event.Date.IsZero() {
		return &Info{
			Symbol:                 symbol,
			Risk:                   RiskNone,
			PositionSizeMultiplier: 1.0,
			Message:                "no earnings scheduled in the coming weeks",
		}, nil
	}

	daysUntil := int(event.Date.Sub(s.now()).Hours() / 24)
	risk, avoid, multiplier, message := classify(daysUntil)

	s.logger.Debug().
		Str("symbol", symbol).
		Int("days_until", daysUntil).
		Str("risk", string(risk)).
		Msg("Earnings risk assessed")

	date := event.Date
	return &Info{
		Symbol:                 symbol,
		EarningsDate:           &date,
		Confirmed:              event.Confirmed,
		DaysUntil:              &daysUntil,
		Risk:                   risk,
		ShouldAvoidBuy:         avoid,
		PositionSizeMultiplier: multiplier,
		Message:                message,
	}, nil
}

// classify maps days-until-earnings onto the risk ladder. Earnings inside the
// last two days still carry post-announcement volatility.
func classify(daysUntil int) (Risk, bool, float64, string) {
	switch {
	case daysUntil <= 0 && daysUntil >= -2:
		return RiskMedium, false, 0.75, fmt.Sprintf("earnings %d days ago, post-announcement volatility possible", -daysUntil)
	case daysUntil < -2:
		return RiskNone, false, 1.0, "earnings passed, no imminent risk"
	case daysUntil <= 3:
		return RiskHigh, true, 0.0, fmt.Sprintf("earnings in %d days, do not buy, gap risk", daysUntil)
	case daysUntil <= 7:
		return RiskMedium, false, 0.5, fmt.Sprintf("earnings in %d days, half position recommended", daysUntil)
	case daysUntil <= 14:
		return RiskLow, false, 0.75, fmt.Sprintf("earnings in %d days, reduced position recommended", daysUntil)
	default:
		return RiskNone, false, 1.0, fmt.Sprintf("earnings in %d days, no imminent risk", daysUntil)
	}
}
