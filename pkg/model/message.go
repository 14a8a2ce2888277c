package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"time"
)

// Message is the local, normalized form of a chat message. ID is the
// de-duplication key within a room; it is assigned by the authoritative
// store, never by a transport.
type Message struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"room_id"`
	SenderID  string    `json:"sender_id"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`

	// Pending marks an optimistic local entry that has not been confirmed
	// by an inbound echo yet. Failed marks a send whose publish failed so
	// the UI can offer a per-message retry.
	Pending bool `json:"-"`
	Failed  bool `json:"-"`
}

// Before reports whether m sorts strictly before other under the store
// ordering: timestamp, then id as tie-breaker.
func (m Message) Before(other Message) bool {
	if !m.Timestamp.Equal(other.Timestamp) {
		return m.Timestamp.Before(other.Timestamp)
	}
	return m.ID < other.ID
}

// DefaultSender is used when an inbound payload carries no sender field.
const DefaultSender = "other"

// WirePayload is the transport-independent message body. Sender and ID are
// optional on the inbound side.
type WirePayload struct {
	Message string `json:"message"`
	Time    string `json:"time"`
	Sender  string `json:"sender,omitempty"`
	ID      string `json:"id,omitempty"`
}

type FrameType string

const (
	FrameSubscribe   FrameType = "subscribe"
	FrameUnsubscribe FrameType = "unsubscribe"
	FrameMessage     FrameType = "message"
)

// Frame is the room-tagged envelope shared by the socket and broker
// transports. Data holds the raw WirePayload for message frames.
type Frame struct {
	Room string          `json:"room"`
	Type FrameType       `json:"type,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// ToWire converts a message to its outbound payload. Time is encoded as
// nanoseconds since the epoch, which is what the fan-out echoes back.
func (m Message) ToWire() WirePayload {
	return WirePayload{
		Message: m.Text,
		Time:    strconv.FormatInt(m.Timestamp.UnixNano(), 10),
		Sender:  m.SenderID,
	}
}

// FromWire normalizes a raw inbound payload into a Message. Degraded
// payloads are tolerated: non-JSON input becomes the message text, a
// missing sender defaults to DefaultSender, a missing or unparseable time
// falls back to receivedAt. When the payload carries no id, one is derived
// deterministically from its content so that redelivering the same payload
// collapses to a single stored message.
func FromWire(raw []byte, roomID string, receivedAt time.Time) Message {
	var p WirePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		p = WirePayload{Message: string(raw)}
	}

	sender := p.Sender
	if sender == "" {
		sender = DefaultSender
	}

	id := p.ID
	if id == "" {
		id = deriveID(roomID, sender, p.Time, p.Message)
	}

	return Message{
		ID:        id,
		RoomID:    roomID,
		SenderID:  sender,
		Text:      p.Message,
		Timestamp: parseWireTime(p.Time, receivedAt),
	}
}

// parseWireTime accepts RFC 3339 or a decimal unix-nanosecond string.
func parseWireTime(s string, fallback time.Time) time.Time {
	if s == "" {
		return fallback
	}
	if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return ts
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil && n > 0 {
		return time.Unix(0, n)
	}
	return fallback
}

func deriveID(roomID, sender, wireTime, text string) string {
	h := sha256.New()
	h.Write([]byte(roomID))
	h.Write([]byte{0})
	h.Write([]byte(sender))
	h.Write([]byte{0})
	h.Write([]byte(wireTime))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil)[:8])
}
