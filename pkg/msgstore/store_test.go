package msgstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duochat/duochat/pkg/model"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func msg(id string, offset time.Duration) model.Message {
	return model.Message{ID: id, SenderID: "alice", Text: "m-" + id, Timestamp: t0.Add(offset)}
}

func ids(msgs []model.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

func TestAppendKeepsOrder(t *testing.T) {
	s := New()
	require.True(t, s.Append(msg("b", 2*time.Second)))
	require.True(t, s.Append(msg("a", 1*time.Second)))
	require.True(t, s.Append(msg("c", 3*time.Second)))

	assert.Equal(t, []string{"a", "b", "c"}, ids(s.Snapshot()))
}

func TestAppendIdempotent(t *testing.T) {
	s := New()
	require.True(t, s.Append(msg("a", 0)))
	// Redelivery of the same id is a no-op even with different content.
	dup := msg("a", 5*time.Second)
	dup.Text = "changed"
	require.False(t, s.Append(dup))

	snap := s.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "m-a", snap[0].Text)
}

func TestAppendTimestampTieBreaksOnID(t *testing.T) {
	s := New()
	require.True(t, s.Append(msg("z", time.Second)))
	require.True(t, s.Append(msg("a", time.Second)))

	assert.Equal(t, []string{"a", "z"}, ids(s.Snapshot()))
}

func TestPrependPreservesRelativeOrder(t *testing.T) {
	s := New()
	s.Append(msg("d", 10*time.Second))
	s.Append(msg("e", 11*time.Second))
	before := ids(s.Snapshot())

	older := []model.Message{
		msg("a", 1*time.Second),
		msg("b", 2*time.Second),
		msg("d", 10*time.Second), // duplicate, dropped
	}
	assert.Equal(t, 2, s.Prepend(older))

	snap := ids(s.Snapshot())
	assert.Equal(t, []string{"a", "b", "d", "e"}, snap)
	assert.Equal(t, before, snap[2:], "previously-present messages must keep their relative order")
}

func TestConfirmSwapsOptimisticEntry(t *testing.T) {
	s := New()
	tmp := model.Message{ID: "tmp-1", SenderID: "alice", Text: "hello", Timestamp: t0, Pending: true}
	require.True(t, s.Append(tmp))

	confirmed := model.Message{ID: "real-1", SenderID: "alice", Text: "hello", Timestamp: t0.Add(time.Second)}
	require.True(t, s.Confirm(confirmed, DefaultConfirmWindow))

	snap := s.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "real-1", snap[0].ID)
	assert.False(t, snap[0].Pending)
}

func TestConfirmOutsideWindowFallsThrough(t *testing.T) {
	s := New()
	tmp := model.Message{ID: "tmp-1", SenderID: "alice", Text: "hello", Timestamp: t0, Pending: true}
	s.Append(tmp)

	late := model.Message{ID: "real-1", SenderID: "alice", Text: "hello", Timestamp: t0.Add(time.Minute)}
	assert.False(t, s.Confirm(late, DefaultConfirmWindow))

	// Caller falls back to append semantics.
	require.True(t, s.Append(late))
	assert.Len(t, s.Snapshot(), 2)
}

func TestConfirmIgnoresOtherSendersAndText(t *testing.T) {
	s := New()
	s.Append(model.Message{ID: "tmp-1", SenderID: "alice", Text: "hello", Timestamp: t0, Pending: true})

	other := model.Message{ID: "real-1", SenderID: "bob", Text: "hello", Timestamp: t0}
	assert.False(t, s.Confirm(other, DefaultConfirmWindow))

	different := model.Message{ID: "real-2", SenderID: "alice", Text: "bye", Timestamp: t0}
	assert.False(t, s.Confirm(different, DefaultConfirmWindow))
}

func TestConfirmAlreadyStoredIsNoop(t *testing.T) {
	s := New()
	confirmed := model.Message{ID: "real-1", SenderID: "alice", Text: "hello", Timestamp: t0}
	s.Append(confirmed)

	// The authoritative copy arrived twice (at-least-once delivery).
	assert.True(t, s.Confirm(confirmed, DefaultConfirmWindow))
	assert.Len(t, s.Snapshot(), 1)
}

func TestMarkFailed(t *testing.T) {
	s := New()
	s.Append(model.Message{ID: "tmp-1", SenderID: "alice", Text: "hello", Timestamp: t0, Pending: true})

	require.True(t, s.MarkFailed("tmp-1"))
	snap := s.Snapshot()
	assert.True(t, snap[0].Failed)
	assert.False(t, snap[0].Pending)

	assert.False(t, s.MarkFailed("missing"))
}

func TestSnapshotIsACopy(t *testing.T) {
	s := New()
	s.Append(msg("a", 0))

	snap := s.Snapshot()
	snap[0].Text = "mutated"

	assert.Equal(t, "m-a", s.Snapshot()[0].Text)
}
