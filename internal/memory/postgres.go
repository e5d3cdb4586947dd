package memory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PgxPool is the subset of pgxpool.Pool the repository needs.
// pgxmock satisfies it in tests.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository persists memories in PostgreSQL
type PostgresRepository struct {
	pool PgxPool
}

// NewPostgresRepository wraps an existing connection pool
func NewPostgresRepository(pool PgxPool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const memoryColumns = `id, agent_id, trade_id, symbol, sector, decision, entry_price, quantity,
	reasoning, confidence, created_at, closed_at, exit_price, pnl, pnl_percent, success,
	holding_duration_hours, lesson_learned, market_sentiment, vix_level, market_trend,
	rsi_value, volume_ratio, dark_pool_ratio, options_sentiment, insider_activity`

// SaveMemory inserts a new open memory
func (r *PostgresRepository) SaveMemory(ctx context.Context, m *TradeMemory) error {
	query := `
		INSERT INTO trade_memories (
			agent_id, trade_id, symbol, sector, decision, entry_price, quantity,
			reasoning, confidence, created_at, market_sentiment, vix_level, market_trend,
			rsi_value, volume_ratio, dark_pool_ratio, options_sentiment, insider_activity
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		RETURNING id`

	err := r.pool.QueryRow(ctx, query,
		m.AgentID, m.TradeID, m.Symbol, m.Sector, m.Decision, m.EntryPrice, m.Quantity,
		m.Reasoning, m.Confidence, m.CreatedAt, m.MarketSentiment, m.VIXLevel, m.MarketTrend,
		m.RSIValue, m.VolumeRatio, m.DarkPoolRatio, m.OptionsSentiment, m.InsiderActivity,
	).Scan(&m.ID)
	if err != nil {
		return fmt.Errorf("failed to insert trade memory: %w", err)
	}
	return nil
}

// UpdateMemory persists the closed fields of a memory
func (r *PostgresRepository) UpdateMemory(ctx context.Context, m *TradeMemory) error {
	query := `
		UPDATE trade_memories
		SET closed_at = $2, exit_price = $3, pnl = $4, pnl_percent = $5, success = $6,
			holding_duration_hours = $7, lesson_learned = $8
		WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query,
		m.ID, m.ClosedAt, m.ExitPrice, m.PnL, m.PnLPercent, m.Success,
		m.HoldingDurationHours, m.LessonLearned,
	)
	if err != nil {
		return fmt.Errorf("failed to update trade memory: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrMemoryNotFound
	}
	return nil
}

// OpenMemory returns the most recent open memory for (agent, symbol)
func (r *PostgresRepository) OpenMemory(ctx context.Context, agentID, symbol string) (*TradeMemory, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM trade_memories
		WHERE agent_id = $1 AND symbol = $2 AND success IS NULL
		ORDER BY created_at DESC
		LIMIT 1`, memoryColumns)

	m, err := scanMemory(r.pool.QueryRow(ctx, query, agentID, symbol))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMemoryNotFound
		}
		return nil, fmt.Errorf("failed to query open memory: %w", err)
	}
	return m, nil
}

// OpenMemoryByTradeID returns the open memory created for a trade
func (r *PostgresRepository) OpenMemoryByTradeID(ctx context.Context, tradeID string) (*TradeMemory, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM trade_memories
		WHERE trade_id = $1 AND success IS NULL
		LIMIT 1`, memoryColumns)

	m, err := scanMemory(r.pool.QueryRow(ctx, query, tradeID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMemoryNotFound
		}
		return nil, fmt.Errorf("failed to query memory by trade id: %w", err)
	}
	return m, nil
}

// ClosedMemories returns closed memories newest first
func (r *PostgresRepository) ClosedMemories(ctx context.Context, agentID string, f Filter, limit int) ([]TradeMemory, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM trade_memories
		WHERE agent_id = $1 AND success IS NOT NULL
			AND ($2 = '' OR symbol = $2)
			AND ($3 = '' OR sector = $3)
			AND ($4 = '' OR market_sentiment = $4)
		ORDER BY created_at DESC`, memoryColumns)
	args := []any{agentID, f.Symbol, f.Sector, f.Sentiment}
	if limit > 0 {
		query += " LIMIT $5"
		args = append(args, limit)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query closed memories: %w", err)
	}
	defer rows.Close()

	return collectMemories(rows)
}

// RecentLosses returns the most recent losing memories
func (r *PostgresRepository) RecentLosses(ctx context.Context, agentID string, limit int) ([]TradeMemory, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM trade_memories
		WHERE agent_id = $1 AND success = false
		ORDER BY created_at DESC
		LIMIT $2`, memoryColumns)

	rows, err := r.pool.Query(ctx, query, agentID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent losses: %w", err)
	}
	defer rows.Close()

	return collectMemories(rows)
}

// SaveStatistics upserts the per-agent aggregates
func (r *PostgresRepository) SaveStatistics(ctx context.Context, s *AgentStatistics) error {
	query := `
		INSERT INTO agent_statistics (agent_id, total_trades, win_rate, win_loss_ratio, avg_win_pct, avg_loss_pct, kelly_fraction)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (agent_id) DO UPDATE SET
			total_trades = EXCLUDED.total_trades,
			win_rate = EXCLUDED.win_rate,
			win_loss_ratio = EXCLUDED.win_loss_ratio,
			avg_win_pct = EXCLUDED.avg_win_pct,
			avg_loss_pct = EXCLUDED.avg_loss_pct,
			kelly_fraction = EXCLUDED.kelly_fraction`

	if _, err := r.pool.Exec(ctx, query,
		s.AgentID, s.TotalTrades, s.WinRate, s.WinLossRatio, s.AvgWinPct, s.AvgLossPct, s.KellyFraction,
	); err != nil {
		return fmt.Errorf("failed to upsert agent statistics: %w", err)
	}
	return nil
}

// Statistics returns the aggregates for an agent
func (r *PostgresRepository) Statistics(ctx context.Context, agentID string) (*AgentStatistics, error) {
	query := `
		SELECT agent_id, total_trades, win_rate, win_loss_ratio, avg_win_pct, avg_loss_pct, kelly_fraction
		FROM agent_statistics
		WHERE agent_id = $1`

	var s AgentStatistics
	err := r.pool.QueryRow(ctx, query, agentID).Scan(
		&s.AgentID, &s.TotalTrades, &s.WinRate, &s.WinLossRatio, &s.AvgWinPct, &s.AvgLossPct, &s.KellyFraction,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMemoryNotFound
		}
		return nil, fmt.Errorf("failed to query agent statistics: %w", err)
	}
	return &s, nil
}

// SavePattern inserts a winning pattern
func (r *PostgresRepository) SavePattern(ctx context.Context, p *WinningPattern) error {
	query := `
		INSERT INTO winning_patterns (
			agent_id, trade_id, symbol, sector, decision, entry_price, exit_price,
			pnl, pnl_percent, holding_hours, entry_hour, entry_minute, day_of_week,
			rsi_at_entry, macd_signal, volume_ratio, trend, vix_level, market_sentiment,
			catalyst_type, pattern_type, confidence, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
			$17, $18, $19, $20, $21, $22, $23)
		RETURNING id`

	err := r.pool.QueryRow(ctx, query,
		p.AgentID, p.TradeID, p.Symbol, p.Sector, p.Decision, p.EntryPrice, p.ExitPrice,
		p.PnL, p.PnLPercent, p.HoldingHours, p.EntryHour, p.EntryMinute, p.DayOfWeek,
		p.RSIAtEntry, p.MACDSignal, p.VolumeRatio, p.TrendAtEntry, p.VIXLevel, p.Sentiment,
		p.CatalystType, p.PatternType, p.Confidence, p.CreatedAt,
	).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("failed to insert winning pattern: %w", err)
	}
	return nil
}

// PatternsSince returns winning patterns created at or after the cutoff
func (r *PostgresRepository) PatternsSince(ctx context.Context, cutoff time.Time) ([]WinningPattern, error) {
	query := `
		SELECT id, agent_id, trade_id, symbol, sector, decision, entry_price, exit_price,
			pnl, pnl_percent, holding_hours, entry_hour, entry_minute, day_of_week,
			rsi_at_entry, macd_signal, volume_ratio, trend, vix_level, market_sentiment,
			catalyst_type, pattern_type, confidence, created_at
		FROM winning_patterns
		WHERE created_at >= $1
		ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query winning patterns: %w", err)
	}
	defer rows.Close()

	var out []WinningPattern
	for rows.Next() {
		var p WinningPattern
		var catalyst *string
		if err := rows.Scan(
			&p.ID, &p.AgentID, &p.TradeID, &p.Symbol, &p.Sector, &p.Decision, &p.EntryPrice, &p.ExitPrice,
			&p.PnL, &p.PnLPercent, &p.HoldingHours, &p.EntryHour, &p.EntryMinute, &p.DayOfWeek,
			&p.RSIAtEntry, &p.MACDSignal, &p.VolumeRatio, &p.TrendAtEntry, &p.VIXLevel, &p.Sentiment,
			&catalyst, &p.PatternType, &p.Confidence, &p.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan winning pattern: %w", err)
		}
		if catalyst != nil {
			p.CatalystType = *catalyst
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanMemory(row pgx.Row) (*TradeMemory, error) {
	var m TradeMemory
	var lesson *string
	err := row.Scan(
		&m.ID, &m.AgentID, &m.TradeID, &m.Symbol, &m.Sector, &m.Decision, &m.EntryPrice, &m.Quantity,
		&m.Reasoning, &m.Confidence, &m.CreatedAt, &m.ClosedAt, &m.ExitPrice, &m.PnL, &m.PnLPercent, &m.Success,
		&m.HoldingDurationHours, &lesson, &m.MarketSentiment, &m.VIXLevel, &m.MarketTrend,
		&m.RSIValue, &m.VolumeRatio, &m.DarkPoolRatio, &m.OptionsSentiment, &m.InsiderActivity,
	)
	if err != nil {
		return nil, err
	}
	if lesson != nil {
		m.LessonLearned = *lesson
	}
	return &m, nil
}

func collectMemories(rows pgx.Rows) ([]TradeMemory, error) {
	var out []TradeMemory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade memory: %w", err)
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}
