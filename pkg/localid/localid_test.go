package localid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextIsUnique(t *testing.T) {
	n, err := NewNode(1)
	require.NoError(t, err)

	seen := make(map[string]bool)
	for i := 0; i < 5000; i++ {
		id := n.Next()
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestIsTemp(t *testing.T) {
	n, err := NewNode(3)
	require.NoError(t, err)

	assert.True(t, IsTemp(n.Next()))
	assert.False(t, IsTemp("a1b2c3d4"))
	assert.False(t, IsTemp(""))
	assert.False(t, IsTemp("tmp-"))
}

func TestNodeRange(t *testing.T) {
	_, err := NewNode(-1)
	require.Error(t, err)
	_, err = NewNode(1024)
	require.Error(t, err)
	_, err = NewNode(1023)
	require.NoError(t, err)
}
