package blockchain

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"
)

// mineChain mines payloads into a linked chain, one millisecond apart.
func mineChain(t *testing.T, difficulty int, payloads ...string) []*Block {
	var blocks []*Block
	prev := GenesisSentinel
	for i, p := range payloads {
		b, err := NewDraft([]byte(p), prev, testTimestamp+int64(i), 0).Mine(context.Background(), difficulty)
		require.NoError(t, err)
		blocks = append(blocks, b)
		prev = b.Hash()
	}
	return blocks
}

func requireReason(t *testing.T, err error, index int, reason Reason) {
	var verr *ValidationError
	require.True(t, xerrors.As(err, &verr), "unexpected error %v", err)
	require.Equal(t, index, verr.Index)
	require.Equal(t, reason, verr.Reason)
}

func TestValidateEmpty(t *testing.T) {
	require.True(t, Validate(nil, 4, GenesisSentinel))
	require.True(t, Validate([]*Block{}, 0, GenesisSentinel))
}

func TestValidateScenario(t *testing.T) {
	blocks := mineChain(t, 2, "genesis", "second")
	require.Equal(t, "005fd4daa14ef5341a044ac49769e0aa07e805bd397e902dd3e4da3b82ca1b99", blocks[0].Hash())
	require.Equal(t, blocks[0].Hash(), blocks[1].PrevHash())
	require.Equal(t, uint64(477), blocks[1].Nonce())
	require.Equal(t, "003e30a83c7d07eb8578eea4af7fbc3ededd98d965ee42eed3eb6edbf802dc57", blocks[1].Hash())
	require.True(t, Validate(blocks, 2, GenesisSentinel))

	// Payload edited in place, hash left as mined.
	blocks[1].payload = []byte("tampered")
	require.False(t, Validate(blocks, 2, GenesisSentinel))
	err := Verify(blocks, 2, GenesisSentinel)
	requireReason(t, err, 1, ReasonHashMismatch)
	require.Contains(t, err.Error(), "252e49cb392abec5c1d2132c9f27bd27c569394f8e10e77207268bb856ed23de")
}

func TestValidateLongChain(t *testing.T) {
	blocks := mineChain(t, 2, "a", "b", "c", "d", "e", "f")
	require.NoError(t, Verify(blocks, 2, GenesisSentinel))
	require.True(t, Validate(blocks[:1], 2, GenesisSentinel))
}

func TestValidateTamperedFields(t *testing.T) {
	for name, tamper := range map[string]func(r *Record){
		"payload":   func(r *Record) { r.Payload = append(r.Payload, '!') },
		"timestamp": func(r *Record) { r.Timestamp++ },
		"nonce":     func(r *Record) { r.Nonce++ },
		"prevHash":  func(r *Record) { r.PrevHash = "1" },
	} {
		blocks := mineChain(t, 2, "genesis", "second", "third")
		r := blocks[1].Record()
		tamper(&r)
		blocks[1] = FromRecord(r)
		requireReason(t, Verify(blocks, 2, GenesisSentinel), 1, ReasonHashMismatch)
		require.False(t, Validate(blocks, 2, GenesisSentinel), name)
	}
}

func TestValidateRemined(t *testing.T) {
	blocks := mineChain(t, 2, "genesis", "second", "third")

	// Re-mining a tampered block keeps it self-consistent but breaks the
	// link held by its successor.
	r := blocks[1].Record()
	forged, err := NewDraft([]byte("forged"), r.PrevHash, r.Timestamp, 0).Mine(context.Background(), 2)
	require.NoError(t, err)
	blocks[1] = forged
	requireReason(t, Verify(blocks, 2, GenesisSentinel), 2, ReasonLinkMismatch)
}

func TestValidateSentinel(t *testing.T) {
	blocks := mineChain(t, 1, "genesis")
	require.True(t, Validate(blocks, 1, GenesisSentinel))
	requireReason(t, Verify(blocks, 1, "genesis"), 0, ReasonLinkMismatch)
}

func TestValidateDifficulty(t *testing.T) {
	// Nonce 92 solves difficulty 1 with hash 04c6..., which fails 2.
	blocks := mineChain(t, 1, "genesis")
	require.Equal(t, "04c6b4fabd56dcc48dd3ddd99e81f30ccbc22f5d260c0f4b0f3fd879e420bf88", blocks[0].Hash())
	requireReason(t, Verify(blocks, 2, GenesisSentinel), 0, ReasonDifficulty)
	require.False(t, Validate(blocks, 2, GenesisSentinel))
}

func TestValidateMalformed(t *testing.T) {
	blocks := mineChain(t, 1, "genesis")
	requireReason(t, Verify(append(blocks, nil), 1, GenesisSentinel), 1, ReasonNilBlock)

	short := FromRecord(Record{PrevHash: GenesisSentinel, Hash: "0"})
	require.False(t, Validate([]*Block{short}, 4, GenesisSentinel))

	require.False(t, Validate(blocks, -1, GenesisSentinel))
	require.True(t, xerrors.Is(Verify(blocks, MaxDifficulty+1, GenesisSentinel), ErrInvalidDifficulty))
}

func TestVerifyBlock(t *testing.T) {
	blocks := mineChain(t, 2, "genesis", "second")
	require.NoError(t, VerifyBlock(1, blocks[1], blocks[0].Hash(), 2))
	requireReason(t, VerifyBlock(1, blocks[1], GenesisSentinel, 2), 1, ReasonLinkMismatch)
}
