package blockchain

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewGenesisDraft(t *testing.T) {
	d := NewGenesisDraft([]byte("genesis"), testTimestamp, 0)
	require.Equal(t, GenesisSentinel, d.PrevHash())

	b, err := d.Mine(context.Background(), 2)
	require.NoError(t, err)
	require.Equal(t, uint64(484), b.Nonce())
	require.Equal(t, "005fd4daa14ef5341a044ac49769e0aa07e805bd397e902dd3e4da3b82ca1b99", b.Hash())

	require.True(t, Validate([]*Block{b}, 2, GenesisSentinel))
	// A genesis block only links to the sentinel it was mined against.
	require.False(t, Validate([]*Block{b}, 2, "genesis"))
}
