package transport

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBroker() *BrokerChannel {
	return NewBrokerChannel(BrokerConfig{
		Brokers: []string{"127.0.0.1:1"},
		Topic:   "chat-messages",
		GroupID: "chat-alice",
	}, "room1", zerolog.Nop())
}

func TestBrokerConnectRequiresBrokers(t *testing.T) {
	ch := NewBrokerChannel(BrokerConfig{Topic: "chat-messages"}, "room1", zerolog.Nop())
	err := ch.Connect(context.Background())

	var connErr *ConnectError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, "room1", connErr.Room)
}

func TestBrokerReconnectAfterConsumerFailure(t *testing.T) {
	ch := newTestBroker()
	ch.OnMessage(func([]byte) error { return nil })
	closed := make(chan error, 1)
	ch.OnClose(func(err error) { closed <- err })

	require.NoError(t, ch.Connect(context.Background()))
	ch.mu.Lock()
	first := ch.reader
	ch.mu.Unlock()
	require.NotNil(t, first)

	// A fetch failure must clear the consumer state, or the next Connect
	// reports success against a reader with no consume loop behind it.
	boom := errors.New("fetch failed")
	ch.dropConsumer(first, boom)

	select {
	case err := <-closed:
		assert.ErrorIs(t, err, boom)
	case <-time.After(time.Second):
		t.Fatal("close handler never fired")
	}

	require.NoError(t, ch.Connect(context.Background()))
	ch.mu.Lock()
	second := ch.reader
	ch.mu.Unlock()
	require.NotNil(t, second)
	assert.NotSame(t, first, second, "reconnect must build a fresh consumer")

	require.NoError(t, ch.Disconnect())
}

func TestBrokerDropConsumerIgnoresStaleLoop(t *testing.T) {
	ch := newTestBroker()
	closed := make(chan error, 2)
	ch.OnClose(func(err error) { closed <- err })

	require.NoError(t, ch.Connect(context.Background()))
	ch.mu.Lock()
	first := ch.reader
	ch.mu.Unlock()

	ch.dropConsumer(first, errors.New("fetch failed"))
	<-closed

	// The replaced reader's loop winding down must not fire OnClose again.
	require.NoError(t, ch.Connect(context.Background()))
	ch.dropConsumer(first, errors.New("late failure"))

	select {
	case err := <-closed:
		t.Fatalf("stale consumer fired OnClose: %v", err)
	case <-time.After(50 * time.Millisecond):
	}
	require.NoError(t, ch.Disconnect())
}
