// Package history reads and writes the persisted message store backing
// backward pagination.
package history

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gocql/gocql"

	"github.com/duochat/duochat/pkg/db"
	"github.com/duochat/duochat/pkg/model"
)

// Store pages a room's history out of ScyllaDB, newest first. Cursors are
// opaque to callers; an empty cursor means "from the newest message".
type Store struct {
	db *db.Session
}

func NewStore(session *db.Session) *Store {
	return &Store{db: session}
}

// Page fetches up to limit messages older than the cursor, returned in
// ascending store order along with the cursor for the next older page.
// The returned cursor is empty when the room's history is exhausted.
func (s *Store) Page(ctx context.Context, roomID, before string, limit int) ([]model.Message, string, error) {
	var iter *gocql.Iter
	if before == "" {
		iter = s.db.Query(
			`SELECT id, sender_id, content, ts FROM room_messages WHERE room_id = ? LIMIT ?`,
			roomID, limit,
		).WithContext(ctx).Iter()
	} else {
		ts, id, err := decodeCursor(before)
		if err != nil {
			return nil, "", err
		}
		iter = s.db.Query(
			`SELECT id, sender_id, content, ts FROM room_messages WHERE room_id = ? AND (ts, id) < (?, ?) LIMIT ?`,
			roomID, ts, id, limit,
		).WithContext(ctx).Iter()
	}

	var page []model.Message
	var m model.Message
	for iter.Scan(&m.ID, &m.SenderID, &m.Text, &m.Timestamp) {
		m.RoomID = roomID
		page = append(page, m)
	}
	if err := iter.Close(); err != nil {
		return nil, "", fmt.Errorf("history page for room %s: %w", roomID, err)
	}

	next := ""
	if len(page) == limit {
		oldest := page[len(page)-1]
		next = encodeCursor(oldest.Timestamp, oldest.ID)
	}

	// Rows come back newest first; the store merges ascending.
	reverse(page)
	return page, next, nil
}

// Save upserts one normalized message. The deterministic id doubles as the
// clustering key, so redelivered messages overwrite themselves instead of
// duplicating.
func (s *Store) Save(ctx context.Context, m model.Message) error {
	return s.db.Query(
		`INSERT INTO room_messages (room_id, ts, id, sender_id, content) VALUES (?, ?, ?, ?, ?)`,
		m.RoomID, m.Timestamp, m.ID, m.SenderID, m.Text,
	).WithContext(ctx).Exec()
}

func encodeCursor(ts time.Time, id string) string {
	return strconv.FormatInt(ts.UnixNano(), 10) + "|" + id
}

func decodeCursor(c string) (time.Time, string, error) {
	pipe := strings.IndexByte(c, '|')
	if pipe < 0 {
		return time.Time{}, "", fmt.Errorf("history: malformed cursor %q", c)
	}
	n, err := strconv.ParseInt(c[:pipe], 10, 64)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("history: malformed cursor %q", c)
	}
	return time.Unix(0, n), c[pipe+1:], nil
}

func reverse(msgs []model.Message) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}
