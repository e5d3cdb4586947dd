package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Bounded cardinality constants for metric labels.
// Free-form strings from errors and breaker reasons are normalized before
// being used as label values.
const (
	// Circuit breaker reasons (bounded set)
	ReasonConsecutiveLosses = "consecutive_losses"
	ReasonDailyDrawdown     = "daily_drawdown"
	ReasonTotalDrawdown     = "total_drawdown"
	ReasonManualHalt        = "manual_halt"
	ReasonOther             = "other"

	// Broker API error categories (bounded set)
	BrokerErrorTimeout     = "timeout"
	BrokerErrorRateLimit   = "rate_limit"
	BrokerErrorAuth        = "authentication"
	BrokerErrorNetwork     = "network"
	BrokerErrorInvalidReq  = "invalid_request"
	BrokerErrorServerError = "server_error"
	BrokerErrorOther       = "other"
)

// NormalizeBreakerReason maps arbitrary trip reasons to the bounded set
func NormalizeBreakerReason(reason string) string {
	lower := strings.ToLower(reason)
	switch {
	case strings.Contains(lower, "consecutive") || strings.Contains(lower, "losses"):
		return ReasonConsecutiveLosses
	case strings.Contains(lower, "daily"):
		return ReasonDailyDrawdown
	case strings.Contains(lower, "drawdown") || strings.Contains(lower, "total"):
		return ReasonTotalDrawdown
	case strings.Contains(lower, "manual") || strings.Contains(lower, "halt"):
		return ReasonManualHalt
	default:
		return ReasonOther
	}
}

// NormalizeBrokerError maps arbitrary broker error messages to the bounded set
func NormalizeBrokerError(err error) string {
	if err == nil {
		return ""
	}
	errStr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline"):
		return BrokerErrorTimeout
	case strings.Contains(errStr, "rate") || strings.Contains(errStr, "429"):
		return BrokerErrorRateLimit
	case strings.Contains(errStr, "auth") || strings.Contains(errStr, "401") || strings.Contains(errStr, "403"):
		return BrokerErrorAuth
	case strings.Contains(errStr, "network") || strings.Contains(errStr, "connection"):
		return BrokerErrorNetwork
	case strings.Contains(errStr, "400") || strings.Contains(errStr, "invalid"):
		return BrokerErrorInvalidReq
	case strings.Contains(errStr, "500") || strings.Contains(errStr, "502") || strings.Contains(errStr, "503"):
		return BrokerErrorServerError
	default:
		return BrokerErrorOther
	}
}

// Portfolio Metrics
var (
	// Agent equity (cash + marked positions)
	AgentEquity = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "alphadesk_agent_equity_usd",
		Help: "Agent equity in USD (cash plus marked positions)",
	}, []string{"agent"})

	// Agent cash
	AgentCash = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "alphadesk_agent_cash_usd",
		Help: "Agent free cash in USD",
	}, []string{"agent"})

	// Agent performance since inception
	AgentPerformance = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "alphadesk_agent_performance_pct",
		Help: "Agent performance since inception as a percentage",
	}, []string{"agent"})

	// Open positions per agent
	AgentOpenPositions = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "alphadesk_agent_open_positions",
		Help: "Number of currently open positions per agent",
	}, []string{"agent"})

	// Cumulative fees paid per agent
	AgentFees = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "alphadesk_agent_fees_usd",
		Help: "Cumulative transaction fees paid per agent in USD",
	}, []string{"agent"})

	// Executed trades
	TradesExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alphadesk_trades_executed_total",
		Help: "Total trades executed by agent and action",
	}, []string{"agent", "action"})

	// Decisions blocked before reaching the broker
	DecisionsBlocked = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alphadesk_decisions_blocked_total",
		Help: "Total decisions blocked by a safety layer",
	}, []string{"agent", "layer"})

	// Forced exits by reason
	AutoExits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alphadesk_auto_exits_total",
		Help: "Total forced position exits by reason",
	}, []string{"reason"})
)

// Cycle and LLM Metrics
var (
	// Trading cycle duration
	TickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "alphadesk_tick_duration_ms",
		Help:    "Full trading cycle duration in milliseconds",
		Buckets: []float64{250, 500, 1000, 2500, 5000, 10000, 30000, 60000},
	})

	// Ticks skipped by the market clock
	TicksBlocked = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alphadesk_ticks_blocked_total",
		Help: "Total ticks blocked by the market clock, by window",
	}, []string{"window"})

	// LLM decisions by model and action
	LLMDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alphadesk_llm_decisions_total",
		Help: "Total parsed LLM decisions by model and action",
	}, []string{"model", "decision"})

	// LLM request duration
	LLMRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "alphadesk_llm_request_duration_ms",
		Help:    "LLM completion latency in milliseconds",
		Buckets: []float64{250, 500, 1000, 2500, 5000, 10000, 30000},
	})

	// Consortium decisions
	ConsortiumDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alphadesk_consortium_decisions_total",
		Help: "Total consortium decisions by action",
	}, []string{"decision"})
)

// Risk Metrics
var (
	// Circuit breaker status per agent (1 = paused)
	BreakerStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "alphadesk_breaker_status",
		Help: "Circuit breaker status per agent (1 = paused, 0 = trading)",
	}, []string{"agent"})

	// Circuit breaker trips
	BreakerTrips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alphadesk_breaker_trips_total",
		Help: "Total circuit breaker trips by agent and reason",
	}, []string{"agent", "reason"})
)

// System Health Metrics
var (
	// HTTP requests
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alphadesk_http_requests_total",
		Help: "Total HTTP requests by method, path and status",
	}, []string{"method", "path", "status_code"})

	// API request duration
	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "alphadesk_api_request_duration_ms",
		Help:    "API request duration in milliseconds",
		Buckets: []float64{10, 25, 50, 100, 250, 500, 1000, 2500},
	}, []string{"method", "path", "status_code"})

	// Errors by component
	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alphadesk_errors_total",
		Help: "Total errors by type and component",
	}, []string{"type", "component"})

	// Database connections
	DatabaseConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "alphadesk_database_connections_active",
		Help: "Number of active database connections",
	})

	DatabaseConnectionsIdle = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "alphadesk_database_connections_idle",
		Help: "Number of idle database connections",
	})

	// Database query duration
	DatabaseQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "alphadesk_database_query_duration_ms",
		Help:    "Database query duration in milliseconds",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
	}, []string{"query_type"})

	// Broker API latency
	BrokerAPILatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "alphadesk_broker_api_latency_ms",
		Help:    "Broker API latency in milliseconds",
		Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000},
	}, []string{"endpoint"})

	// Broker API errors
	BrokerAPIErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alphadesk_broker_api_errors_total",
		Help: "Total broker API errors by category",
	}, []string{"endpoint", "error_type"})

	// Events published over NATS and to websocket subscribers
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alphadesk_events_published_total",
		Help: "Total events published by kind",
	}, []string{"kind"})

	// Snapshot cache hit rate
	CacheHitRate = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "alphadesk_cache_hit_rate",
		Help: "Smart-money cache hit rate as a ratio (0.0 to 1.0)",
	})

	// Cache operations
	CacheOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alphadesk_cache_operations_total",
		Help: "Total cache operations by type",
	}, []string{"operation"})
)

// Helper functions to update metrics

// RecordTrade records an executed trade
func RecordTrade(agent, action string) {
	TradesExecuted.WithLabelValues(agent, action).Inc()
}

// RecordBlockedDecision records a decision stopped by a safety layer
func RecordBlockedDecision(agent, layer string) {
	DecisionsBlocked.WithLabelValues(agent, layer).Inc()
}

// RecordAutoExit records a forced exit
func RecordAutoExit(reason string) {
	AutoExits.WithLabelValues(reason).Inc()
}

// RecordTick records a full trading cycle duration
func RecordTick(durationMs float64) {
	TickDuration.Observe(durationMs)
}

// RecordBlockedTick records a tick skipped by the market clock
func RecordBlockedTick(window string) {
	TicksBlocked.WithLabelValues(window).Inc()
}

// RecordLLMDecision records a parsed LLM decision with its latency
func RecordLLMDecision(model, decision string, durationMs float64) {
	LLMDecisions.WithLabelValues(model, decision).Inc()
	LLMRequestDuration.Observe(durationMs)
}

// RecordConsortiumDecision records a combined consortium decision
func RecordConsortiumDecision(decision string) {
	ConsortiumDecisions.WithLabelValues(decision).Inc()
}

// SetBreakerStatus sets an agent's circuit breaker gauge
func SetBreakerStatus(agent string, paused bool) {
	status := 0.0
	if paused {
		status = 1.0
	}
	BreakerStatus.WithLabelValues(agent).Set(status)
}

// RecordBreakerTrip records a circuit breaker trip with a normalized reason
func RecordBreakerTrip(agent, reason string) {
	BreakerTrips.WithLabelValues(agent, NormalizeBreakerReason(reason)).Inc()
}

// RecordAPIRequest records an API request with duration
func RecordAPIRequest(method, path, statusCode string, durationMs float64) {
	APIRequestDuration.WithLabelValues(method, path, statusCode).Observe(durationMs)
	HTTPRequests.WithLabelValues(method, path, statusCode).Inc()
}

// RecordError records an error
func RecordError(errorType, component string) {
	Errors.WithLabelValues(errorType, component).Inc()
}

// UpdateDatabaseConnections updates database connection metrics
func UpdateDatabaseConnections(active, idle int32) {
	DatabaseConnectionsActive.Set(float64(active))
	DatabaseConnectionsIdle.Set(float64(idle))
}

// RecordDatabaseQuery records a database query
func RecordDatabaseQuery(queryType string, durationMs float64) {
	DatabaseQueryDuration.WithLabelValues(queryType).Observe(durationMs)
}

// RecordBrokerAPICall records a broker API call with a normalized error category
func RecordBrokerAPICall(endpoint string, durationMs float64, err error) {
	BrokerAPILatency.WithLabelValues(endpoint).Observe(durationMs)
	if err != nil {
		BrokerAPIErrors.WithLabelValues(endpoint, NormalizeBrokerError(err)).Inc()
	}
}

// RecordEventPublished records a broadcast event
func RecordEventPublished(kind string) {
	EventsPublished.WithLabelValues(kind).Inc()
}

// RecordCacheOperation records a cache operation
func RecordCacheOperation(operation string) {
	CacheOperations.WithLabelValues(operation).Inc()
}
