package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryRepository keeps everything in process. It backs paper-trading
// runs without a database and the test suite.
type InMemoryRepository struct {
	mu       sync.RWMutex
	memories []*TradeMemory
	stats    map[string]*AgentStatistics
	patterns []*WinningPattern
}

// NewInMemoryRepository creates an empty repository
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		stats: make(map[string]*AgentStatistics),
	}
}

// SaveMemory inserts a new open memory
func (r *InMemoryRepository) SaveMemory(_ context.Context, m *TradeMemory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	stored := *m
	r.memories = append(r.memories, &stored)
	return nil
}

// UpdateMemory replaces the stored memory with the same ID
func (r *InMemoryRepository) UpdateMemory(_ context.Context, m *TradeMemory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, stored := range r.memories {
		if stored.ID == m.ID {
			updated := *m
			r.memories[i] = &updated
			return nil
		}
	}
	return ErrMemoryNotFound
}

// OpenMemory returns the most recent open memory for (agent, symbol)
func (r *InMemoryRepository) OpenMemory(_ context.Context, agentID, symbol string) (*TradeMemory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var found *TradeMemory
	for _, m := range r.memories {
		if m.AgentID == agentID && m.Symbol == symbol && !m.IsClosed() {
			if found == nil || m.CreatedAt.After(found.CreatedAt) {
				found = m
			}
		}
	}
	if found == nil {
		return nil, ErrMemoryNotFound
	}
	copied := *found
	return &copied, nil
}

// OpenMemoryByTradeID returns the open memory created for a trade
func (r *InMemoryRepository) OpenMemoryByTradeID(_ context.Context, tradeID string) (*TradeMemory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, m := range r.memories {
		if m.TradeID == tradeID && !m.IsClosed() {
			copied := *m
			return &copied, nil
		}
	}
	return nil, ErrMemoryNotFound
}

// ClosedMemories returns closed memories newest first
func (r *InMemoryRepository) ClosedMemories(_ context.Context, agentID string, f Filter, limit int) ([]TradeMemory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []TradeMemory
	for _, m := range r.memories {
		if m.AgentID != agentID || !m.IsClosed() {
			continue
		}
		if f.Symbol != "" && m.Symbol != f.Symbol {
			continue
		}
		if f.Sector != "" && m.Sector != f.Sector {
			continue
		}
		if f.Sentiment != "" && m.MarketSentiment != f.Sentiment {
			continue
		}
		out = append(out, *m)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// RecentLosses returns the most recent losing memories
func (r *InMemoryRepository) RecentLosses(ctx context.Context, agentID string, limit int) ([]TradeMemory, error) {
	closed, err := r.ClosedMemories(ctx, agentID, Filter{}, 0)
	if err != nil {
		return nil, err
	}

	var losses []TradeMemory
	for _, m := range closed {
		if m.Success != nil && !*m.Success {
			losses = append(losses, m)
			if limit > 0 && len(losses) == limit {
				break
			}
		}
	}
	return losses, nil
}

// SaveStatistics upserts the per-agent aggregates
func (r *InMemoryRepository) SaveStatistics(_ context.Context, s *AgentStatistics) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *s
	r.stats[s.AgentID] = &stored
	return nil
}

// Statistics returns the aggregates for an agent
func (r *InMemoryRepository) Statistics(_ context.Context, agentID string) (*AgentStatistics, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.stats[agentID]
	if !ok {
		return nil, ErrMemoryNotFound
	}
	copied := *s
	return &copied, nil
}

// SavePattern inserts a winning pattern
func (r *InMemoryRepository) SavePattern(_ context.Context, p *WinningPattern) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	stored := *p
	r.patterns = append(r.patterns, &stored)
	return nil
}

// PatternsSince returns winning patterns created at or after the cutoff
func (r *InMemoryRepository) PatternsSince(_ context.Context, cutoff time.Time) ([]WinningPattern, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []WinningPattern
	for _, p := range r.patterns {
		if !p.CreatedAt.Before(cutoff) {
			out = append(out, *p)
		}
	}
	return out, nil
}
