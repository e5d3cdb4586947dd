package metrics

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// AgentSample is one agent's portfolio state at sampling time
type AgentSample struct {
	Name          string
	Cash          float64
	Equity        float64
	Performance   float64
	TotalFees     float64
	OpenPositions int
	BreakerPaused bool
}

// Sampler produces the current portfolio state for every agent
type Sampler interface {
	Sample() []AgentSample
}

// PoolStats reports connection pool usage; satisfied by pgxpool.Stat
type PoolStats interface {
	AcquiredConns() int32
	IdleConns() int32
}

// Updater periodically refreshes the portfolio gauges from a Sampler
type Updater struct {
	sampler  Sampler
	pool     func() PoolStats
	interval time.Duration
	stopCh   chan struct{}
}

// NewUpdater creates an updater; pool may be nil when no database is wired
func NewUpdater(sampler Sampler, pool func() PoolStats, interval time.Duration) *Updater {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Updater{
		sampler:  sampler,
		pool:     pool,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the update loop and blocks until stopped or cancelled
func (u *Updater) Start(ctx context.Context) {
	ticker := time.NewTicker(u.interval)
	defer ticker.Stop()

	u.update()

	for {
		select {
		case <-ticker.C:
			u.update()
		case <-u.stopCh:
			log.Info().Msg("Metrics updater stopped")
			return
		case <-ctx.Done():
			log.Info().Msg("Metrics updater context cancelled")
			return
		}
	}
}

// Stop stops the updater
func (u *Updater) Stop() {
	close(u.stopCh)
}

func (u *Updater) update() {
	for _, s := range u.sampler.Sample() {
		AgentEquity.WithLabelValues(s.Name).Set(s.Equity)
		AgentCash.WithLabelValues(s.Name).Set(s.Cash)
		AgentPerformance.WithLabelValues(s.Name).Set(s.Performance)
		AgentFees.WithLabelValues(s.Name).Set(s.TotalFees)
		AgentOpenPositions.WithLabelValues(s.Name).Set(float64(s.OpenPositions))
		SetBreakerStatus(s.Name, s.BreakerPaused)
	}
	if u.pool != nil {
		if stats := u.pool(); stats != nil {
			UpdateDatabaseConnections(stats.AcquiredConns(), stats.IdleConns())
		}
	}
}
