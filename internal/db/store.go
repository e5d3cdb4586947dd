package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of pgxpool.Pool the store needs.
// pgxmock satisfies it in tests.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// AgentRow is an agent's persistent identity and running capital
type AgentRow struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Model          string    `json:"model"`
	Personality    string    `json:"personality"`
	InitialCapital float64   `json:"initial_capital"`
	CurrentCapital float64   `json:"current_capital"`
	TotalFees      float64   `json:"total_fees"`
	CreatedAt      time.Time `json:"created_at"`
}

// TradeRow is one executed trade
type TradeRow struct {
	ID         string    `json:"id"`
	AgentID    string    `json:"agent_id"`
	Symbol     string    `json:"symbol"`
	Decision   string    `json:"decision"`
	Quantity   float64   `json:"quantity"`
	Price      float64   `json:"price"`
	Amount     float64   `json:"amount"`
	Fee        float64   `json:"fee"`
	Confidence int       `json:"confidence"`
	Reasoning  string    `json:"reasoning"`
	ExitReason string    `json:"exit_reason,omitempty"`
	ExecutedAt time.Time `json:"executed_at"`
}

// SnapshotRow is one point of an agent's equity curve
type SnapshotRow struct {
	AgentID        string    `json:"agent_id"`
	Capital        float64   `json:"capital"`
	PerformancePct float64   `json:"performance_pct"`
	PositionsValue float64   `json:"positions_value"`
	SnapshotAt     time.Time `json:"snapshot_at"`
}

// PositionRow mirrors an open position for the dashboard
type PositionRow struct {
	AgentID    string    `json:"agent_id"`
	Symbol     string    `json:"symbol"`
	Quantity   float64   `json:"quantity"`
	EntryPrice float64   `json:"entry_price"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// AutocritiqueRow stores one self-review monologue
type AutocritiqueRow struct {
	ID        string    `json:"id"`
	AgentID   string    `json:"agent_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists agents, trades, snapshots, positions and autocritiques
type Store struct {
	q Querier
}

// NewStore wraps an existing pool
func NewStore(q Querier) *Store {
	return &Store{q: q}
}

// UpsertAgent registers an agent by name, keeping its capital across
// restarts, and returns its row
func (s *Store) UpsertAgent(ctx context.Context, name, model, personality string, initialCapital float64) (*AgentRow, error) {
	query := `
		INSERT INTO agents (name, model, personality, initial_capital, current_capital, total_fees, created_at)
		VALUES ($1, $2, $3, $4, $4, 0, NOW())
		ON CONFLICT (name) DO UPDATE SET model = EXCLUDED.model, personality = EXCLUDED.personality
		RETURNING id, name, model, personality, initial_capital, current_capital, total_fees, created_at`

	var a AgentRow
	err := s.q.QueryRow(ctx, query, name, model, personality, initialCapital).Scan(
		&a.ID, &a.Name, &a.Model, &a.Personality, &a.InitialCapital, &a.CurrentCapital, &a.TotalFees, &a.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert agent: %w", err)
	}
	return &a, nil
}

// UpdateAgentCapital persists an agent's running capital and fee total
func (s *Store) UpdateAgentCapital(ctx context.Context, agentID string, capital, totalFees float64) error {
	query := `UPDATE agents SET current_capital = $2, total_fees = $3 WHERE id = $1`
	if _, err := s.q.Exec(ctx, query, agentID, capital, totalFees); err != nil {
		return fmt.Errorf("failed to update agent capital: %w", err)
	}
	return nil
}

// InsertTrade appends one executed trade
func (s *Store) InsertTrade(ctx context.Context, t *TradeRow) error {
	query := `
		INSERT INTO trades (agent_id, symbol, decision, quantity, price, amount, fee, confidence, reasoning, exit_reason, executed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`

	err := s.q.QueryRow(ctx, query,
		t.AgentID, t.Symbol, t.Decision, t.Quantity, t.Price, t.Amount, t.Fee,
		t.Confidence, t.Reasoning, t.ExitReason, t.ExecutedAt,
	).Scan(&t.ID)
	if err != nil {
		return fmt.Errorf("failed to insert trade: %w", err)
	}
	return nil
}

// RecentTrades lists the latest trades, newest first. An empty agentID
// returns trades for every agent.
func (s *Store) RecentTrades(ctx context.Context, agentID string, limit int) ([]TradeRow, error) {
	query := `
		SELECT id, agent_id, symbol, decision, quantity, price, amount, fee, confidence, reasoning, COALESCE(exit_reason, ''), executed_at
		FROM trades
		WHERE ($1 = '' OR agent_id = $1)
		ORDER BY executed_at DESC
		LIMIT $2`

	rows, err := s.q.Query(ctx, query, agentID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var out []TradeRow
	for rows.Next() {
		var t TradeRow
		if err := rows.Scan(&t.ID, &t.AgentID, &t.Symbol, &t.Decision, &t.Quantity, &t.Price, &t.Amount,
			&t.Fee, &t.Confidence, &t.Reasoning, &t.ExitReason, &t.ExecutedAt); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// InsertSnapshot appends one equity-curve point
func (s *Store) InsertSnapshot(ctx context.Context, snap *SnapshotRow) error {
	query := `
		INSERT INTO performance_snapshots (agent_id, capital, performance_pct, positions_value, snapshot_at)
		VALUES ($1, $2, $3, $4, $5)`

	if _, err := s.q.Exec(ctx, query,
		snap.AgentID, snap.Capital, snap.PerformancePct, snap.PositionsValue, snap.SnapshotAt,
	); err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}
	return nil
}

// PerformanceHistory returns an agent's snapshots since the cutoff,
// oldest first
func (s *Store) PerformanceHistory(ctx context.Context, agentID string, since time.Time) ([]SnapshotRow, error) {
	query := `
		SELECT agent_id, capital, performance_pct, positions_value, snapshot_at
		FROM performance_snapshots
		WHERE agent_id = $1 AND snapshot_at >= $2
		ORDER BY snapshot_at ASC`

	rows, err := s.q.Query(ctx, query, agentID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	var out []SnapshotRow
	for rows.Next() {
		var snap SnapshotRow
		if err := rows.Scan(&snap.AgentID, &snap.Capital, &snap.PerformancePct, &snap.PositionsValue, &snap.SnapshotAt); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

// UpsertPosition mirrors an open position keyed by (agent, symbol)
func (s *Store) UpsertPosition(ctx context.Context, p *PositionRow) error {
	query := `
		INSERT INTO positions (agent_id, symbol, quantity, entry_price, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (agent_id, symbol) DO UPDATE SET
			quantity = EXCLUDED.quantity,
			entry_price = EXCLUDED.entry_price,
			updated_at = EXCLUDED.updated_at`

	if _, err := s.q.Exec(ctx, query, p.AgentID, p.Symbol, p.Quantity, p.EntryPrice, p.UpdatedAt); err != nil {
		return fmt.Errorf("failed to upsert position: %w", err)
	}
	return nil
}

// OpenPositions lists an agent's mirrored positions, used to reseed
// holdings after a restart
func (s *Store) OpenPositions(ctx context.Context, agentID string) ([]PositionRow, error) {
	query := `
		SELECT agent_id, symbol, quantity, entry_price, updated_at
		FROM positions
		WHERE agent_id = $1
		ORDER BY symbol ASC`

	rows, err := s.q.Query(ctx, query, agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	var out []PositionRow
	for rows.Next() {
		var p PositionRow
		if err := rows.Scan(&p.AgentID, &p.Symbol, &p.Quantity, &p.EntryPrice, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// DeletePosition removes a fully closed position
func (s *Store) DeletePosition(ctx context.Context, agentID, symbol string) error {
	query := `DELETE FROM positions WHERE agent_id = $1 AND symbol = $2`
	if _, err := s.q.Exec(ctx, query, agentID, symbol); err != nil {
		return fmt.Errorf("failed to delete position: %w", err)
	}
	return nil
}

// InsertAutocritique stores one self-review
func (s *Store) InsertAutocritique(ctx context.Context, a *AutocritiqueRow) error {
	query := `
		INSERT INTO autocritiques (agent_id, content, created_at)
		VALUES ($1, $2, $3)
		RETURNING id`

	if err := s.q.QueryRow(ctx, query, a.AgentID, a.Content, a.CreatedAt).Scan(&a.ID); err != nil {
		return fmt.Errorf("failed to insert autocritique: %w", err)
	}
	return nil
}

// RecentAutocritiques lists the latest self-reviews, newest first
func (s *Store) RecentAutocritiques(ctx context.Context, agentID string, limit int) ([]AutocritiqueRow, error) {
	query := `
		SELECT id, agent_id, content, created_at
		FROM autocritiques
		WHERE ($1 = '' OR agent_id = $1)
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := s.q.Query(ctx, query, agentID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query autocritiques: %w", err)
	}
	defer rows.Close()

	var out []AutocritiqueRow
	for rows.Next() {
		var a AutocritiqueRow
		if err := rows.Scan(&a.ID, &a.AgentID, &a.Content, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan autocritique: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
