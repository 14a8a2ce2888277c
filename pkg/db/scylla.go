package db

import (
	"time"

	"github.com/gocql/gocql"
)

type Session struct {
	*gocql.Session
}

// NewSession connects to the ScyllaDB cluster backing message history.
func NewSession(hosts []string, keyspace string) (*Session, error) {
	cluster := gocql.NewCluster(hosts...)
	cluster.Keyspace = keyspace
	cluster.Consistency = gocql.Quorum
	cluster.Timeout = 5 * time.Second
	cluster.ConnectTimeout = 5 * time.Second

	// Retry policy
	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		NumRetries: 3,
		Min:        100 * time.Millisecond,
		Max:        1 * time.Second,
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, err
	}
	return &Session{Session: session}, nil
}

// EnsureSchema creates the keyspace-local tables used for message history.
// Schema migration proper is out of scope; this keeps dev setups working.
func (s *Session) EnsureSchema() error {
	return s.Query(`CREATE TABLE IF NOT EXISTS room_messages (
		room_id text,
		ts timestamp,
		id text,
		sender_id text,
		content text,
		PRIMARY KEY (room_id, ts, id)
	) WITH CLUSTERING ORDER BY (ts DESC, id DESC)`).Exec()
}
