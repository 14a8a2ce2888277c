// Package localid generates temporary identifiers for optimistic message
// entries. Ids are snowflake-style (millisecond timestamp, node, sequence)
// so they are unique per process and roughly time-ordered, and carry a
// "tmp-" prefix so they can never collide with store-assigned ids.
package localid

import (
	"errors"
	"strconv"
	"sync"
	"time"
)

const (
	nodeBits        = 10
	stepBits        = 12
	nodeMax         = -1 ^ (-1 << nodeBits)
	stepMask        = -1 ^ (-1 << stepBits)
	timeShift       = nodeBits + stepBits
	nodeShift       = stepBits
	epoch     int64 = 1704067200000 // 2024-01-01 00:00:00 UTC
)

// Prefix marks a temporary id.
const Prefix = "tmp-"

type Node struct {
	mu   sync.Mutex
	time int64
	node int64
	step int64
}

func NewNode(node int64) (*Node, error) {
	if node < 0 || node > nodeMax {
		return nil, errors.New("localid: node number must be between 0 and 1023")
	}
	return &Node{node: node}, nil
}

// Next returns a fresh temporary id.
func (n *Node) Next() string {
	n.mu.Lock()
	defer n.mu.Unlock()

	now := time.Now().UnixMilli()
	if now < n.time {
		// Clock moved backwards, hold the line instead of reusing ids
		now = n.time
	}

	if n.time == now {
		n.step = (n.step + 1) & stepMask
		if n.step == 0 {
			for now <= n.time {
				now = time.Now().UnixMilli()
			}
		}
	} else {
		n.step = 0
	}
	n.time = now

	raw := ((now - epoch) << timeShift) | (n.node << nodeShift) | n.step
	return Prefix + strconv.FormatInt(raw, 36)
}

// IsTemp reports whether id was produced by a Node.
func IsTemp(id string) bool {
	return len(id) > len(Prefix) && id[:len(Prefix)] == Prefix
}
