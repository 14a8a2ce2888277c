// Package roomlist persists the ordered list of room ids the user has
// opened. Appends never de-duplicate; readers do, so the stored list is a
// faithful history of room creations.
package roomlist

import (
	"encoding/json"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"
)

// listKey is the single known key the serialized list lives under.
var listKey = []byte("chat/room-ids")

type List struct {
	db *badger.DB
}

// Open creates or opens the local room list at dir.
func Open(dir string) (*List, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("roomlist: open %s: %w", dir, err)
	}
	return &List{db: db}, nil
}

// Append records a room id at the end of the list.
func (l *List) Append(roomID string) error {
	return l.db.Update(func(txn *badger.Txn) error {
		ids, err := read(txn)
		if err != nil {
			return err
		}
		ids = append(ids, roomID)
		data, err := json.Marshal(ids)
		if err != nil {
			return err
		}
		return txn.Set(listKey, data)
	})
}

// All returns the recorded room ids, oldest first, de-duplicated.
func (l *List) All() ([]string, error) {
	var ids []string
	err := l.db.View(func(txn *badger.Txn) error {
		var err error
		ids, err = read(txn)
		return err
	})
	if err != nil {
		return nil, err
	}
	return lo.Uniq(ids), nil
}

func (l *List) Close() error {
	return l.db.Close()
}

func read(txn *badger.Txn) ([]string, error) {
	item, err := txn.Get(listKey)
	if err == badger.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ids []string
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &ids)
	})
	return ids, err
}
