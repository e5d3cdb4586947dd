package memory

import (
	"context"
	"errors"
	"time"
)

// ErrMemoryNotFound is returned when no memory matches a lookup
var ErrMemoryNotFound = errors.New("trade memory not found")

// Repository is the persistence boundary for trade memories, agent
// statistics and winning patterns
type Repository interface {
	// SaveMemory inserts a new open memory and assigns its ID
	SaveMemory(ctx context.Context, m *TradeMemory) error
	// UpdateMemory persists the closed fields of a memory
	UpdateMemory(ctx context.Context, m *TradeMemory) error
	// OpenMemory returns the most recent open memory for (agent, symbol)
	OpenMemory(ctx context.Context, agentID, symbol string) (*TradeMemory, error)
	// OpenMemoryByTradeID returns the open memory created for a trade
	OpenMemoryByTradeID(ctx context.Context, tradeID string) (*TradeMemory, error)
	// ClosedMemories returns closed memories for an agent, newest first,
	// narrowed by the filter; limit <= 0 means no limit
	ClosedMemories(ctx context.Context, agentID string, f Filter, limit int) ([]TradeMemory, error)
	// RecentLosses returns the agent's most recent losing memories
	RecentLosses(ctx context.Context, agentID string, limit int) ([]TradeMemory, error)

	// SaveStatistics upserts the per-agent aggregates
	SaveStatistics(ctx context.Context, s *AgentStatistics) error
	// Statistics returns the aggregates, ErrMemoryNotFound when absent
	Statistics(ctx context.Context, agentID string) (*AgentStatistics, error)

	// SavePattern inserts a winning pattern
	SavePattern(ctx context.Context, p *WinningPattern) error
	// PatternsSince returns winning patterns created at or after the cutoff
	PatternsSince(ctx context.Context, cutoff time.Time) ([]WinningPattern, error)
}
