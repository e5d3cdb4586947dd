package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/alphadesk/alphadesk/internal/universe"
)

// winningPatternFloor is the pnl_percent above which a closed winner is
// also recorded as a WinningPattern
const winningPatternFloor = 0.5

// MarketContext is the snapshot stored on a memory at entry time
type MarketContext struct {
	Sentiment        string
	VIXLevel         float64
	Trend            string
	RSI              float64
	VolumeRatio      float64
	DarkPoolRatio    float64
	OptionsSentiment string
	InsiderActivity  string
	MACDSignal       string
}

// Service owns the learning-memory lifecycle: create on BUY, close on SELL,
// aggregate, and render prompt context
type Service struct {
	repo     Repository
	patterns *PatternIndex
	now      func() time.Time
	logger   zerolog.Logger
}

// NewService creates a memory service. The pattern index may be nil; the
// pattern sections of the context are then omitted.
func NewService(repo Repository, patterns *PatternIndex) *Service {
	return &Service{
		repo:     repo,
		patterns: patterns,
		now:      time.Now,
		logger:   log.With().Str("component", "memory").Logger(),
	}
}

// CreateTradeMemory persists an open memory for an executed BUY (or short
// SELL) with the market snapshot at entry
func (s *Service) CreateTradeMemory(ctx context.Context, agentID, tradeID, symbol, decision string,
	entryPrice, quantity float64, reasoning string, confidence int, mc MarketContext) (*TradeMemory, error) {

	m := &TradeMemory{
		AgentID:          agentID,
		TradeID:          tradeID,
		Symbol:           symbol,
		Sector:           universe.SectorFor(symbol),
		Decision:         decision,
		EntryPrice:       entryPrice,
		Quantity:         quantity,
		Reasoning:        reasoning,
		Confidence:       confidence,
		CreatedAt:        s.now(),
		MarketSentiment:  mc.Sentiment,
		VIXLevel:         mc.VIXLevel,
		MarketTrend:      mc.Trend,
		RSIValue:         mc.RSI,
		VolumeRatio:      mc.VolumeRatio,
		DarkPoolRatio:    mc.DarkPoolRatio,
		OptionsSentiment: mc.OptionsSentiment,
		InsiderActivity:  mc.InsiderActivity,
	}

	if err := s.repo.SaveMemory(ctx, m); err != nil {
		return nil, fmt.Errorf("failed to create trade memory: %w", err)
	}

	s.logger.Debug().
		Str("agent_id", agentID).
		Str("symbol", symbol).
		Str("memory_id", m.ID).
		Msg("Trade memory created")

	return m, nil
}

// CloseTradeMemory closes the most recent open memory for (agent, symbol),
// derives pnl when not supplied, refreshes the agent aggregates and records
// a winning pattern for profitable closes
func (s *Service) CloseTradeMemory(ctx context.Context, agentID, symbol string, exitPrice float64, pnl *float64, lesson string) (*TradeMemory, error) {
	m, err := s.repo.OpenMemory(ctx, agentID, symbol)
	if err != nil {
		return nil, err
	}
	return s.closeMemory(ctx, m, exitPrice, pnl, lesson)
}

// CloseTradeMemoryByTradeID closes the memory created for a specific trade
func (s *Service) CloseTradeMemoryByTradeID(ctx context.Context, tradeID string, exitPrice float64, pnl *float64, lesson string) (*TradeMemory, error) {
	m, err := s.repo.OpenMemoryByTradeID(ctx, tradeID)
	if err != nil {
		return nil, err
	}
	return s.closeMemory(ctx, m, exitPrice, pnl, lesson)
}

func (s *Service) closeMemory(ctx context.Context, m *TradeMemory, exitPrice float64, pnl *float64, lesson string) (*TradeMemory, error) {
	realized := 0.0
	if pnl != nil {
		realized = *pnl
	} else if m.Decision == "BUY" {
		realized = (exitPrice - m.EntryPrice) * m.Quantity
	} else {
		realized = (m.EntryPrice - exitPrice) * m.Quantity
	}

	pnlPercent := 0.0
	if basis := m.EntryPrice * m.Quantity; basis > 0 {
		pnlPercent = realized / basis * 100
	}

	success := realized > 0
	closedAt := s.now()
	holdingHours := int(closedAt.Sub(m.CreatedAt).Hours())

	if lesson == "" {
		lesson = defaultLesson(realized, "")
	}

	m.ClosedAt = &closedAt
	m.ExitPrice = &exitPrice
	m.PnL = &realized
	m.PnLPercent = &pnlPercent
	m.Success = &success
	m.HoldingDurationHours = holdingHours
	m.LessonLearned = lesson

	if err := s.repo.UpdateMemory(ctx, m); err != nil {
		return nil, fmt.Errorf("failed to close trade memory: %w", err)
	}

	if _, err := s.UpdateAgentStatistics(ctx, m.AgentID); err != nil {
		s.logger.Warn().Err(err).Str("agent_id", m.AgentID).Msg("Failed to refresh agent statistics")
	}

	if success && pnlPercent > winningPatternFloor {
		s.recordWinningPattern(ctx, m, exitPrice, realized, pnlPercent)
	}

	s.logger.Info().
		Str("agent_id", m.AgentID).
		Str("symbol", m.Symbol).
		Float64("pnl", realized).
		Float64("pnl_percent", pnlPercent).
		Msg("Trade memory closed")

	return m, nil
}

// DefaultLessonForExit derives a lesson from the exit reason and outcome
func DefaultLessonForExit(pnl float64, exitReason string) string {
	return defaultLesson(pnl, exitReason)
}

func defaultLesson(pnl float64, exitReason string) string {
	reason := strings.ToLower(exitReason)
	switch {
	case pnl < 0 && strings.Contains(reason, "stop"):
		return "Stop-loss triggered, entry timing was likely poor"
	case pnl < 0:
		return "Loss, review the technical indicators before the next entry"
	case pnl > 0 && strings.Contains(reason, "profit"):
		return "Profit taken on plan, good discipline"
	case pnl > 0:
		return "Gain, identify what worked to repeat it"
	default:
		return ""
	}
}

func (s *Service) recordWinningPattern(ctx context.Context, m *TradeMemory, exitPrice, pnl, pnlPercent float64) {
	p := &WinningPattern{
		AgentID:      m.AgentID,
		TradeID:      m.TradeID,
		Symbol:       m.Symbol,
		Sector:       m.Sector,
		Decision:     m.Decision,
		EntryPrice:   m.EntryPrice,
		ExitPrice:    exitPrice,
		PnL:          pnl,
		PnLPercent:   pnlPercent,
		HoldingHours: float64(m.HoldingDurationHours),
		EntryHour:    m.CreatedAt.Hour(),
		EntryMinute:  m.CreatedAt.Minute(),
		DayOfWeek:    int(m.CreatedAt.Weekday()),
		RSIAtEntry:   m.RSIValue,
		VolumeRatio:  m.VolumeRatio,
		TrendAtEntry: m.MarketTrend,
		VIXLevel:     m.VIXLevel,
		Sentiment:    m.MarketSentiment,
		PatternType:  DetectPatternType(m.Decision, m.RSIValue, m.VolumeRatio, pnlPercent),
		Confidence:   m.Confidence,
		CreatedAt:    m.CreatedAt,
	}

	if err := s.repo.SavePattern(ctx, p); err != nil {
		s.logger.Warn().Err(err).Str("symbol", m.Symbol).Msg("Failed to record winning pattern")
		return
	}

	s.logger.Info().
		Str("symbol", m.Symbol).
		Str("pattern_type", p.PatternType).
		Float64("pnl_percent", pnlPercent).
		Msg("Winning pattern recorded")
}

// GetSimilarTrades returns closed memories matching the filter, newest first
func (s *Service) GetSimilarTrades(ctx context.Context, agentID string, f Filter, limit int) ([]TradeMemory, error) {
	return s.repo.ClosedMemories(ctx, agentID, f, limit)
}

// Statistics returns the stored aggregates, ErrMemoryNotFound when absent
func (s *Service) Statistics(ctx context.Context, agentID string) (*AgentStatistics, error) {
	return s.repo.Statistics(ctx, agentID)
}

// UpdateAgentStatistics recomputes the per-agent aggregates from all closed
// memories and persists them
func (s *Service) UpdateAgentStatistics(ctx context.Context, agentID string) (*AgentStatistics, error) {
	closed, err := s.repo.ClosedMemories(ctx, agentID, Filter{}, 0)
	if err != nil {
		return nil, err
	}

	stats := &AgentStatistics{AgentID: agentID, TotalTrades: len(closed)}
	if len(closed) == 0 {
		if err := s.repo.SaveStatistics(ctx, stats); err != nil {
			return nil, err
		}
		return stats, nil
	}

	var wins int
	var winPctSum, lossPctSum float64
	var winCount, lossCount int
	for _, m := range closed {
		pct := 0.0
		if m.PnLPercent != nil {
			pct = *m.PnLPercent
		}
		if m.Success != nil && *m.Success {
			wins++
			winPctSum += pct
			winCount++
		} else {
			lossPctSum += -pct
			lossCount++
		}
	}

	stats.WinRate = float64(wins) / float64(len(closed))
	if winCount > 0 {
		stats.AvgWinPct = winPctSum / float64(winCount)
	}
	if lossCount > 0 {
		stats.AvgLossPct = lossPctSum / float64(lossCount)
	}

	// Floor the loss leg so one tiny loss cannot explode the ratio
	avgLoss := stats.AvgLossPct
	if avgLoss < 0.1 {
		avgLoss = 0.1
	}
	if winCount == 0 {
		stats.WinLossRatio = 0
	} else {
		stats.WinLossRatio = stats.AvgWinPct / avgLoss
	}

	if stats.WinLossRatio > 0 {
		stats.KellyFraction = stats.WinRate - (1-stats.WinRate)/stats.WinLossRatio
	}

	if err := s.repo.SaveStatistics(ctx, stats); err != nil {
		return nil, fmt.Errorf("failed to save agent statistics: %w", err)
	}
	return stats, nil
}

// PerformanceByCriteria groups closed memories by the criterion and
// aggregates each bucket
func (s *Service) PerformanceByCriteria(ctx context.Context, agentID string, criterion Criterion) (map[string]GroupStats, error) {
	closed, err := s.repo.ClosedMemories(ctx, agentID, Filter{}, 0)
	if err != nil {
		return nil, err
	}
	if len(closed) == 0 {
		return map[string]GroupStats{}, nil
	}

	stats := make(map[string]GroupStats)
	for _, m := range closed {
		var key string
		switch criterion {
		case BySector:
			key = m.Sector
		case ByConfidence:
			key = ConfidenceBucket(m.Confidence)
		case BySentiment:
			key = m.MarketSentiment
		case ByVIXLevel:
			key = VIXBucket(m.VIXLevel)
		}
		if key == "" {
			key = "unknown"
		}

		bucket := stats[key]
		bucket.Total++
		pnl := 0.0
		if m.PnL != nil {
			pnl = *m.PnL
		}
		bucket.TotalPnL += pnl
		if m.Success != nil && *m.Success {
			bucket.Wins++
		} else {
			bucket.Losses++
		}
		stats[key] = bucket
	}

	for key, bucket := range stats {
		bucket.WinRate = float64(bucket.Wins) / float64(bucket.Total)
		bucket.AvgPnL = bucket.TotalPnL / float64(bucket.Total)
		stats[key] = bucket
	}
	return stats, nil
}

// LessonsForSymbol renders the agent's closed history on one symbol as
// one-line lessons
func (s *Service) LessonsForSymbol(ctx context.Context, agentID, symbol string, limit int) ([]string, error) {
	closed, err := s.repo.ClosedMemories(ctx, agentID, Filter{Symbol: symbol}, limit)
	if err != nil {
		return nil, err
	}

	lessons := make([]string, 0, len(closed))
	for _, m := range closed {
		outcome := "LOSS"
		if m.Success != nil && *m.Success {
			outcome = "WIN"
		}
		pct := 0.0
		if m.PnLPercent != nil {
			pct = *m.PnLPercent
		}
		line := fmt.Sprintf("%s: %s %s, P&L %+.2f%% (confidence %d%%)", outcome, m.Decision, symbol, pct, m.Confidence)
		if m.LessonLearned != "" {
			line += " | Lesson: " + m.LessonLearned
		}
		lessons = append(lessons, line)
	}
	return lessons, nil
}

// FormatMemoryContext renders the prompt-ready memory block for an agent:
// symbol lessons, confidence performance, sector performance, similar
// trades. Empty string when there is no data.
func (s *Service) FormatMemoryContext(ctx context.Context, agentID, symbol, sector, sentiment string) string {
	var parts []string

	if symbol != "" {
		if lessons, err := s.LessonsForSymbol(ctx, agentID, symbol, 3); err == nil && len(lessons) > 0 {
			parts = append(parts, fmt.Sprintf("HISTORY ON %s:", symbol))
			parts = append(parts, lessons...)
		}
	}

	if confStats, err := s.PerformanceByCriteria(ctx, agentID, ByConfidence); err == nil && len(confStats) > 0 {
		parts = append(parts, "\nYOUR PERFORMANCE BY CONFIDENCE LEVEL:")
		for _, bucket := range sortedKeys(confStats) {
			st := confStats[bucket]
			parts = append(parts, fmt.Sprintf("  - %s: %d trades, win rate %.0f%%, avg P&L $%.2f",
				bucket, st.Total, st.WinRate*100, st.AvgPnL))
		}
	}

	if sector != "" && sector != "Unknown" {
		if sectorStats, err := s.PerformanceByCriteria(ctx, agentID, BySector); err == nil {
			if st, ok := sectorStats[sector]; ok {
				parts = append(parts, fmt.Sprintf("\nYOUR %s SECTOR RECORD: %d trades, win rate %.0f%%, total P&L $%.2f",
					sector, st.Total, st.WinRate*100, st.TotalPnL))
			}
		}
	}

	if similar, err := s.GetSimilarTrades(ctx, agentID, Filter{Sentiment: sentiment}, 3); err == nil && len(similar) > 0 {
		parts = append(parts, "\nRECENT TRADES IN SIMILAR CONDITIONS:")
		for _, m := range similar {
			outcome := "LOSS"
			if m.Success != nil && *m.Success {
				outcome = "WIN"
			}
			pct := 0.0
			if m.PnLPercent != nil {
				pct = *m.PnLPercent
			}
			parts = append(parts, fmt.Sprintf("  %s %s: %s %+.2f%%", outcome, m.Symbol, m.Decision, pct))
		}
	}

	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, "\n")
}

// PreDecisionContext renders the broader memory block used before the LLM
// picks a symbol: winning patterns, confidence and sector stats, last
// mistakes, global stats
func (s *Service) PreDecisionContext(ctx context.Context, agentID, sentiment string) string {
	var parts []string

	if s.patterns != nil {
		if pc := s.patterns.Context(ctx); pc != "" {
			parts = append(parts, pc)
		}
	}

	if confStats, err := s.PerformanceByCriteria(ctx, agentID, ByConfidence); err == nil && len(confStats) > 0 {
		parts = append(parts, "\nYOUR LEARNING HISTORY")
		parts = append(parts, "PERFORMANCE BY CONFIDENCE LEVEL:")
		for _, bucket := range sortedKeys(confStats) {
			st := confStats[bucket]
			parts = append(parts, fmt.Sprintf("  - %s: %d trades, win rate %.0f%%, avg P&L $%.2f",
				bucket, st.Total, st.WinRate*100, st.AvgPnL))
		}
	}

	if sectorStats, err := s.PerformanceByCriteria(ctx, agentID, BySector); err == nil && len(sectorStats) > 0 {
		parts = append(parts, "\nPERFORMANCE BY SECTOR:")
		type row struct {
			sector string
			stats  GroupStats
		}
		rows := make([]row, 0, len(sectorStats))
		for sector, st := range sectorStats {
			if sector != "unknown" && sector != "Unknown" {
				rows = append(rows, row{sector, st})
			}
		}
		sort.Slice(rows, func(i, j int) bool { return rows[i].stats.WinRate > rows[j].stats.WinRate })
		for _, r := range rows {
			parts = append(parts, fmt.Sprintf("  - %s: %d trades, win rate %.0f%%",
				r.sector, r.stats.Total, r.stats.WinRate*100))
		}
	}

	if losses, err := s.repo.RecentLosses(ctx, agentID, 3); err == nil && len(losses) > 0 {
		parts = append(parts, "\nYOUR LAST MISTAKES (learn from them):")
		for _, m := range losses {
			pct := 0.0
			if m.PnLPercent != nil {
				pct = *m.PnLPercent
			}
			line := fmt.Sprintf("  - %s %s (%s): %+.2f%%", m.Decision, m.Symbol, m.Sector, pct)
			if m.LessonLearned != "" {
				line += "\n    Lesson: " + m.LessonLearned
			}
			parts = append(parts, line)
		}
	}

	if stats, err := s.repo.Statistics(ctx, agentID); err == nil && stats.TotalTrades > 0 {
		parts = append(parts, fmt.Sprintf("\nGLOBAL STATS: %d trades, win rate %.1f%%, win/loss ratio %.2f",
			stats.TotalTrades, stats.WinRate*100, stats.WinLossRatio))
		if stats.WinRate < 0.45 {
			parts = append(parts, "Your win rate is low. Be more selective with your trades.")
		} else if stats.WinRate > 0.55 {
			parts = append(parts, "Good win rate. Keep the same discipline.")
		}
	}

	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, "\n")
}

// SymbolSpecificContext renders the post-symbol-choice memory block:
// pattern recommendation, symbol history, sector record, similar trades
func (s *Service) SymbolSpecificContext(ctx context.Context, agentID, symbol string, rsi float64, hour int, volumeRatio float64) string {
	if symbol == "" {
		return ""
	}

	sector := universe.SectorFor(symbol)
	parts := []string{fmt.Sprintf("SYMBOL MEMORY: %s (%s)", symbol, sector)}

	if s.patterns != nil {
		rec := s.patterns.Recommendation(ctx, symbol, rsi, hour, volumeRatio)
		if len(rec.Reasons) > 0 {
			parts = append(parts, fmt.Sprintf("\nWINNING-PATTERN SCORE for %s: %d/100 (%s)", symbol, rec.Score, rec.Recommendation))
			for _, reason := range rec.Reasons {
				parts = append(parts, "    "+reason)
			}
		}
	}

	if lessons, err := s.LessonsForSymbol(ctx, agentID, symbol, 5); err == nil {
		if len(lessons) > 0 {
			parts = append(parts, fmt.Sprintf("\nYOUR HISTORY ON %s:", symbol))
			parts = append(parts, lessons...)
		} else {
			parts = append(parts, fmt.Sprintf("\nNo history on %s, this is your first trade on it.", symbol))
		}
	}

	if sector != "Unknown" {
		if sectorStats, err := s.PerformanceByCriteria(ctx, agentID, BySector); err == nil {
			if st, ok := sectorStats[sector]; ok {
				line := fmt.Sprintf("\nYOUR %s SECTOR RECORD: %d trades, win rate %.0f%%, total P&L $%.2f",
					sector, st.Total, st.WinRate*100, st.TotalPnL)
				parts = append(parts, line)
				if st.WinRate < 0.40 {
					parts = append(parts, fmt.Sprintf("You underperform in %s. Think twice before trading it.", sector))
				} else if st.WinRate > 0.60 {
					parts = append(parts, fmt.Sprintf("You have good results in %s.", sector))
				}
			}
		}

		if similar, err := s.GetSimilarTrades(ctx, agentID, Filter{Sector: sector}, 3); err == nil && len(similar) > 0 {
			parts = append(parts, fmt.Sprintf("\nRECENT %s TRADES:", sector))
			for _, m := range similar {
				outcome := "LOSS"
				if m.Success != nil && *m.Success {
					outcome = "WIN"
				}
				pct := 0.0
				if m.PnLPercent != nil {
					pct = *m.PnLPercent
				}
				parts = append(parts, fmt.Sprintf("  %s %s: %s %+.2f%%", outcome, m.Symbol, m.Decision, pct))
			}
		}
	}

	if len(parts) <= 1 {
		return ""
	}
	return strings.Join(parts, "\n")
}

func sortedKeys(m map[string]GroupStats) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
