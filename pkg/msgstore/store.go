// Package msgstore holds the authoritative in-memory view of one room's
// messages: ordered ascending by (timestamp, id) and de-duplicated by id.
package msgstore

import (
	"sort"
	"sync"
	"time"

	"github.com/duochat/duochat/pkg/model"
)

// DefaultConfirmWindow bounds how far a confirmed message's timestamp may
// drift from its optimistic echo and still be treated as the same send.
const DefaultConfirmWindow = 3 * time.Second

// Store is safe for concurrent use. A SyncController is the only writer;
// readers hold snapshots only.
type Store struct {
	mu   sync.RWMutex
	msgs []model.Message
	ids  map[string]struct{}
}

func New() *Store {
	return &Store{ids: make(map[string]struct{})}
}

// Append inserts msg at its sorted position. A message whose id is already
// present is dropped, making redelivery a no-op. Reports whether an
// insertion occurred.
func (s *Store) Append(msg model.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insert(msg)
}

// Prepend merges a page of older messages fetched via backfill. Duplicates
// by id are dropped. Messages already present keep their relative order.
// Returns the number of messages actually inserted.
func (s *Store) Prepend(older []model.Message) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	inserted := 0
	for _, m := range older {
		if s.insert(m) {
			inserted++
		}
	}
	return inserted
}

// Confirm reconciles an authoritative copy of a self-sent message with its
// optimistic entry. The pending entry is matched by sender and text with a
// timestamp within window; on a match it is swapped for confirmed and the
// method reports true. With no match the caller falls back to Append.
func (s *Store) Confirm(confirmed model.Message, window time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.ids[confirmed.ID]; dup {
		return true
	}
	for i, m := range s.msgs {
		if !m.Pending || m.SenderID != confirmed.SenderID || m.Text != confirmed.Text {
			continue
		}
		delta := confirmed.Timestamp.Sub(m.Timestamp)
		if delta < 0 {
			delta = -delta
		}
		if delta > window {
			continue
		}
		delete(s.ids, m.ID)
		s.msgs = append(s.msgs[:i], s.msgs[i+1:]...)
		s.insert(confirmed)
		return true
	}
	return false
}

// MarkFailed flags the message with the given id as failed so the UI can
// render a retry affordance. The entry stays in place.
func (s *Store) MarkFailed(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.msgs {
		if s.msgs[i].ID == id {
			s.msgs[i].Failed = true
			s.msgs[i].Pending = false
			return true
		}
	}
	return false
}

// Snapshot returns a copy of the current ordered sequence.
func (s *Store) Snapshot() []model.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Message, len(s.msgs))
	copy(out, s.msgs)
	return out
}

// insert does a sort-merge insertion. Caller holds the write lock.
func (s *Store) insert(msg model.Message) bool {
	if _, ok := s.ids[msg.ID]; ok {
		return false
	}
	i := sort.Search(len(s.msgs), func(i int) bool {
		return msg.Before(s.msgs[i])
	})
	s.msgs = append(s.msgs, model.Message{})
	copy(s.msgs[i+1:], s.msgs[i:])
	s.msgs[i] = msg
	s.ids[msg.ID] = struct{}{}
	return true
}
