package model

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var receipt = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestFromWireDefaultsMissingSender(t *testing.T) {
	m := FromWire([]byte(`{"message":"hi","time":"2025-06-01T10:00:00Z"}`), "room1", receipt)
	assert.Equal(t, DefaultSender, m.SenderID)
	assert.Equal(t, "hi", m.Text)
}

func TestFromWireParsesRFC3339(t *testing.T) {
	m := FromWire([]byte(`{"message":"hi","time":"2025-06-01T10:30:00Z","sender":"bob"}`), "room1", receipt)
	assert.Equal(t, time.Date(2025, 6, 1, 10, 30, 0, 0, time.UTC), m.Timestamp.UTC())
	assert.Equal(t, "bob", m.SenderID)
}

func TestFromWireParsesUnixNanos(t *testing.T) {
	ts := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	raw := []byte(`{"message":"hi","time":"` + strconv.FormatInt(ts.UnixNano(), 10) + `"}`)
	m := FromWire(raw, "room1", receipt)
	assert.True(t, m.Timestamp.Equal(ts))
}

func TestFromWireFallsBackToReceiptTime(t *testing.T) {
	for _, raw := range []string{
		`{"message":"hi"}`,
		`{"message":"hi","time":"not-a-time"}`,
	} {
		m := FromWire([]byte(raw), "room1", receipt)
		assert.True(t, m.Timestamp.Equal(receipt), "raw %s", raw)
	}
}

func TestFromWireToleratesNonJSON(t *testing.T) {
	m := FromWire([]byte("plain text from a bare socket"), "room1", receipt)
	assert.Equal(t, "plain text from a bare socket", m.Text)
	assert.Equal(t, DefaultSender, m.SenderID)
	assert.True(t, m.Timestamp.Equal(receipt))
}

func TestFromWireDerivedIDIsStable(t *testing.T) {
	raw := []byte(`{"message":"hi","time":"2025-06-01T10:00:00Z","sender":"bob"}`)
	first := FromWire(raw, "room1", receipt)
	second := FromWire(raw, "room1", receipt.Add(time.Minute))

	// Same payload redelivered later must map to the same id.
	require.NotEmpty(t, first.ID)
	assert.Equal(t, first.ID, second.ID)

	otherRoom := FromWire(raw, "room2", receipt)
	assert.NotEqual(t, first.ID, otherRoom.ID)
}

func TestFromWireHonorsExplicitID(t *testing.T) {
	m := FromWire([]byte(`{"message":"hi","time":"1","id":"srv-42"}`), "room1", receipt)
	assert.Equal(t, "srv-42", m.ID)
}

func TestWireRoundTrip(t *testing.T) {
	ts := time.Date(2025, 6, 1, 9, 0, 0, 123, time.UTC)
	out := Message{SenderID: "alice", Text: "hello", Timestamp: ts}.ToWire()
	assert.Equal(t, "hello", out.Message)
	assert.Equal(t, "alice", out.Sender)
	assert.Equal(t, strconv.FormatInt(ts.UnixNano(), 10), out.Time)
}

func TestBeforeOrdering(t *testing.T) {
	a := Message{ID: "a", Timestamp: receipt}
	b := Message{ID: "b", Timestamp: receipt}
	later := Message{ID: "a", Timestamp: receipt.Add(time.Second)}

	assert.True(t, a.Before(b), "id tie-break")
	assert.False(t, b.Before(a))
	assert.True(t, a.Before(later))
	assert.False(t, a.Before(a))
}
