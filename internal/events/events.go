// Package events broadcasts platform events over NATS and to in-process
// subscribers such as the websocket adapter.
package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/alphadesk/alphadesk/internal/metrics"
)

// Kind identifies an event type
type Kind string

const (
	KindTradingCycle       Kind = "trading_cycle"
	KindMarketClosed       Kind = "market_closed"
	KindMarketHoursBlocked Kind = "market_hours_blocked"
	KindAutoExit           Kind = "auto_exit"
	KindTradingEnabled     Kind = "trading_enabled"
	KindTradingDisabled    Kind = "trading_disabled"
	KindError              Kind = "error"
)

// Event is one broadcast message
type Event struct {
	Kind      Kind           `json:"event"`
	AgentName string         `json:"agent_name,omitempty"`
	Symbol    string         `json:"symbol,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Broadcaster fans events out to NATS and to local subscriber channels.
// A nil NATS connection keeps the in-process fan-out working on its own.
type Broadcaster struct {
	nc      *nats.Conn
	subject string
	logger  zerolog.Logger

	mu     sync.Mutex
	subs   map[int]chan Event
	nextID int
}

// NewBroadcaster creates a broadcaster publishing on the given subject
func NewBroadcaster(nc *nats.Conn, subject string) *Broadcaster {
	if subject == "" {
		subject = "alphadesk.events"
	}
	return &Broadcaster{
		nc:      nc,
		subject: subject,
		logger:  log.With().Str("component", "events").Logger(),
		subs:    make(map[int]chan Event),
	}
}

// Publish stamps and broadcasts an event. NATS failures are logged, not
// returned; a slow local subscriber drops the event rather than blocking
// the trading loop.
func (b *Broadcaster) Publish(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	metrics.RecordEventPublished(string(evt.Kind))

	if b.nc != nil {
		data, err := json.Marshal(evt)
		if err != nil {
			b.logger.Error().Err(err).Str("event", string(evt.Kind)).Msg("Failed to marshal event")
			return
		}
		if err := b.nc.Publish(b.subject, data); err != nil {
			b.logger.Warn().Err(err).Str("event", string(evt.Kind)).Msg("Failed to publish event to NATS")
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- evt:
		default:
		}
	}
}

// Subscribe registers a local subscriber. The returned cancel function
// removes the subscription and closes the channel.
func (b *Broadcaster) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}

// SubscriberCount reports the number of live local subscribers
func (b *Broadcaster) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
