package blockchain

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/protobuf"
)

func TestChainFile(t *testing.T) {
	blocks := mineChain(t, 2, "genesis", "second", "third")
	buf, err := EncodeChain(NewChainFile(blocks, 2, GenesisSentinel))
	require.NoError(t, err)

	f, err := DecodeChain(buf)
	require.NoError(t, err)
	require.Equal(t, int32(2), f.Difficulty)
	require.Equal(t, GenesisSentinel, f.Sentinel)

	decoded := f.Blocks()
	require.Len(t, decoded, 3)
	for i := range blocks {
		require.Equal(t, blocks[i].Hash(), decoded[i].Hash())
	}
	require.True(t, Validate(decoded, int(f.Difficulty), f.Sentinel))
}

func TestChainFileTampered(t *testing.T) {
	blocks := mineChain(t, 2, "genesis", "second")
	f := NewChainFile(blocks, 2, GenesisSentinel)
	f.Records[0].Payload = []byte("rewritten")
	buf, err := EncodeChain(f)
	require.NoError(t, err)

	f, err = DecodeChain(buf)
	require.NoError(t, err)
	requireReason(t, Verify(f.Blocks(), 2, f.Sentinel), 0, ReasonHashMismatch)
}

func TestChainFileVersion(t *testing.T) {
	buf, err := protobuf.Encode(&ChainFile{Version: ChainFileVersion + 1})
	require.NoError(t, err)
	_, err = DecodeChain(buf)
	require.Error(t, err)

	_, err = DecodeChain([]byte{0xff, 0xff, 0xff})
	require.Error(t, err)
}
