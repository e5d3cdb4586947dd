package events

import (
	"encoding/json"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startEmbeddedNATS(t *testing.T) *natsserver.Server {
	t.Helper()
	opts := &natsserver.Options{
		Host:   "127.0.0.1",
		Port:   -1, // Random port
		NoLog:  true,
		NoSigs: true,
	}
	ns, err := natsserver.NewServer(opts)
	require.NoError(t, err)

	go ns.Start()
	if !ns.ReadyForConnections(4 * time.Second) {
		t.Fatal("NATS server did not start in time")
	}
	return ns
}

func TestPublishReachesNATSAndLocalSubscribers(t *testing.T) {
	ns := startEmbeddedNATS(t)
	defer ns.Shutdown()

	nc, err := nats.Connect(ns.ClientURL())
	require.NoError(t, err)
	defer nc.Close()

	received := make(chan *nats.Msg, 1)
	_, err = nc.Subscribe("alphadesk.events", func(msg *nats.Msg) { received <- msg })
	require.NoError(t, err)
	require.NoError(t, nc.Flush())

	b := NewBroadcaster(nc, "alphadesk.events")
	local, cancel := b.Subscribe(4)
	defer cancel()

	b.Publish(Event{
		Kind:      KindAutoExit,
		AgentName: "warren",
		Symbol:    "AAPL",
		Payload:   map[string]any{"reason": "TRAILING_STOP", "pnl_pct": 4.2},
	})

	select {
	case msg := <-received:
		var evt Event
		require.NoError(t, json.Unmarshal(msg.Data, &evt))
		assert.Equal(t, KindAutoExit, evt.Kind)
		assert.Equal(t, "AAPL", evt.Symbol)
		assert.False(t, evt.Timestamp.IsZero())
	case <-time.After(2 * time.Second):
		t.Fatal("NATS subscriber did not receive the event")
	}

	select {
	case evt := <-local:
		assert.Equal(t, "warren", evt.AgentName)
	case <-time.After(time.Second):
		t.Fatal("local subscriber did not receive the event")
	}
}

func TestBroadcasterWorksWithoutNATS(t *testing.T) {
	b := NewBroadcaster(nil, "")
	ch, cancel := b.Subscribe(1)

	b.Publish(Event{Kind: KindTradingCycle})

	select {
	case evt := <-ch:
		assert.Equal(t, KindTradingCycle, evt.Kind)
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive the event")
	}

	cancel()
	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, b.SubscriberCount())
}

func TestSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	b := NewBroadcaster(nil, "")
	ch, cancel := b.Subscribe(1)
	defer cancel()

	// Fill the buffer, then publish again; the second event is dropped
	b.Publish(Event{Kind: KindTradingEnabled})
	done := make(chan struct{})
	go func() {
		b.Publish(Event{Kind: KindTradingDisabled})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber channel")
	}

	evt := <-ch
	assert.Equal(t, KindTradingEnabled, evt.Kind)
}

func TestCancelIsIdempotent(t *testing.T) {
	b := NewBroadcaster(nil, "")
	_, cancel := b.Subscribe(1)
	cancel()
	cancel()
	assert.Equal(t, 0, b.SubscriberCount())
}
