package risk

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker"
)

// Per-service circuit defaults. The LLM circuit recovers slowly, the
// database one quickly.
const (
	BrokerMinRequests     = 5
	BrokerFailureRatio    = 0.6
	BrokerOpenTimeout     = 30 * time.Second
	BrokerHalfOpenMaxReqs = 3
	BrokerCountInterval   = 10 * time.Second

	LLMMinRequests     = 3
	LLMFailureRatio    = 0.6
	LLMOpenTimeout     = 60 * time.Second
	LLMHalfOpenMaxReqs = 2
	LLMCountInterval   = 10 * time.Second

	DBMinRequests     = 10
	DBFailureRatio    = 0.6
	DBOpenTimeout     = 15 * time.Second
	DBHalfOpenMaxReqs = 5
	DBCountInterval   = 10 * time.Second
)

// ServiceSettings configures one external-service circuit
type ServiceSettings struct {
	MinRequests     uint32
	FailureRatio    float64
	OpenTimeout     time.Duration
	HalfOpenMaxReqs uint32
	CountInterval   time.Duration
}

// ExternalBreakers wraps broker, LLM and database calls in circuit
// breakers so one failing dependency cannot stall the trading loop
type ExternalBreakers struct {
	broker   *gobreaker.CircuitBreaker
	llm      *gobreaker.CircuitBreaker
	database *gobreaker.CircuitBreaker
	metrics  *circuitMetrics
}

type circuitMetrics struct {
	state    *prometheus.GaugeVec
	requests *prometheus.CounterVec
}

var (
	globalCircuitMetrics *circuitMetrics
	circuitMetricsOnce   sync.Once
)

func initCircuitMetrics() *circuitMetrics {
	circuitMetricsOnce.Do(func() {
		globalCircuitMetrics = &circuitMetrics{
			state: promauto.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "external_circuit_state",
					Help: "External-service circuit state (0=closed, 1=open, 2=half_open)",
				},
				[]string{"service"},
			),
			requests: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "external_circuit_requests_total",
					Help: "Requests routed through external-service circuits",
				},
				[]string{"service", "result"},
			),
		}
	})
	return globalCircuitMetrics
}

// NewExternalBreakers creates circuits with the default settings; non-nil
// overrides replace the defaults per service
func NewExternalBreakers(broker, llm, db *ServiceSettings) *ExternalBreakers {
	if broker == nil {
		broker = &ServiceSettings{BrokerMinRequests, BrokerFailureRatio, BrokerOpenTimeout, BrokerHalfOpenMaxReqs, BrokerCountInterval}
	}
	if llm == nil {
		llm = &ServiceSettings{LLMMinRequests, LLMFailureRatio, LLMOpenTimeout, LLMHalfOpenMaxReqs, LLMCountInterval}
	}
	if db == nil {
		db = &ServiceSettings{DBMinRequests, DBFailureRatio, DBOpenTimeout, DBHalfOpenMaxReqs, DBCountInterval}
	}

	e := &ExternalBreakers{metrics: initCircuitMetrics()}
	e.broker = e.newCircuit("broker", broker)
	e.llm = e.newCircuit("llm", llm)
	e.database = e.newCircuit("database", db)
	return e
}

func (e *ExternalBreakers) newCircuit(name string, s *ServiceSettings) *gobreaker.CircuitBreaker {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: s.HalfOpenMaxReqs,
		Interval:    s.CountInterval,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= s.MinRequests && ratio >= s.FailureRatio
		},
		OnStateChange: func(_ string, _, to gobreaker.State) {
			e.recordState(name, to)
		},
	})
	e.recordState(name, cb.State())
	return cb
}

func (e *ExternalBreakers) recordState(service string, state gobreaker.State) {
	var v float64
	switch state {
	case gobreaker.StateOpen:
		v = 1
	case gobreaker.StateHalfOpen:
		v = 2
	}
	e.metrics.state.WithLabelValues(service).Set(v)
}

// RecordRequest counts a call outcome for the service
func (e *ExternalBreakers) RecordRequest(service string, success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	e.metrics.requests.WithLabelValues(service, result).Inc()
}

// Broker returns the broker circuit
func (e *ExternalBreakers) Broker() *gobreaker.CircuitBreaker { return e.broker }

// LLM returns the LLM circuit
func (e *ExternalBreakers) LLM() *gobreaker.CircuitBreaker { return e.llm }

// Database returns the database circuit
func (e *ExternalBreakers) Database() *gobreaker.CircuitBreaker { return e.database }

// NewPassthroughBreakers creates circuits that never trip, for tests
func NewPassthroughBreakers() *ExternalBreakers {
	never := &ServiceSettings{
		MinRequests:     1 << 30,
		FailureRatio:    1.1,
		OpenTimeout:     time.Millisecond,
		HalfOpenMaxReqs: 1000,
		CountInterval:   0,
	}
	e := &ExternalBreakers{metrics: initCircuitMetrics()}
	e.broker = e.newCircuit("broker_passthrough", never)
	e.llm = e.newCircuit("llm_passthrough", never)
	e.database = e.newCircuit("database_passthrough", never)
	return e
}
