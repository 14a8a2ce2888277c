// Package transport abstracts live message delivery for one room behind a
// single capability set, independent of the concrete mechanism. Three
// variants are provided: a Redis pub/sub relay, a Kafka consumer-group
// broker and a multiplexed websocket.
package transport

import (
	"context"
	"fmt"

	"github.com/duochat/duochat/pkg/model"
)

// Handler consumes one inbound delivery event. The raw bytes are the wire
// payload, not the frame envelope. A non-nil error tells broker-style
// transports not to acknowledge the delivery, causing redelivery.
type Handler func(raw []byte) error

// CloseHandler is invoked once when the underlying subscription is lost
// for a reason other than Disconnect.
type CloseHandler func(err error)

// Channel is a live-delivery subscription bound to a single room at
// construction time.
//
// Publish is at-least-once from the transport's perspective: callers must
// be prepared for duplicate delivery of their own echoed message. Neither
// Connect nor Publish retries internally; retry policy belongs to the
// caller.
type Channel interface {
	// Connect establishes the subscription. OnMessage and OnClose must be
	// registered before calling Connect.
	Connect(ctx context.Context) error

	// Publish sends an outbound payload to the room.
	Publish(ctx context.Context, payload model.WirePayload) error

	// OnMessage registers the handler invoked once per inbound delivery.
	OnMessage(h Handler)

	// OnClose registers the handler notified of subscription loss.
	OnClose(h CloseHandler)

	// Disconnect releases the subscription. Idempotent.
	Disconnect() error
}

// ConnectError reports a failed subscribe. It is retryable at the caller's
// discretion.
type ConnectError struct {
	Transport string
	Room      string
	Err       error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("%s: connect room %s: %v", e.Transport, e.Room, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// PublishError reports a failed send. It is never retried by the
// transport; the caller surfaces it so the specific message can be retried
// manually.
type PublishError struct {
	Transport string
	Room      string
	Err       error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("%s: publish to room %s: %v", e.Transport, e.Room, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }
