package blockchain

import (
	"go.dedis.ch/onet/v3/network"
)

// HashSize is the size in bytes of a SHA-256 digest.
const HashSize = 32

// HashHexLen is the length of a hex-encoded block hash.
const HashHexLen = 2 * HashSize

// MaxDifficulty is the highest difficulty a hash can satisfy: every hex digit
// of the digest being '0'.
const MaxDifficulty = HashHexLen

// GenesisSentinel is the predecessor hash of the first block of a chain. It
// is not a real digest; callers and the validator must agree on it.
const GenesisSentinel = "0"

// Record is the wire form of a block: the four hashed fields plus the hash.
// A Record carries no guarantees; blocks built from one must be validated.
type Record struct {
	PrevHash  string
	Timestamp int64
	Nonce     uint64
	Payload   []byte
	Hash      string
}

func init() {
	network.RegisterMessage(&Record{})
}
