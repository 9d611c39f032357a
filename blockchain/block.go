package blockchain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// maxDecimalLen is the longest decimal rendering of an int64 or uint64.
const maxDecimalLen = 20

// Draft is a block under construction. Its fields may be changed freely until
// it is mined; a successful Mine consumes the draft into a sealed Block.
type Draft struct {
	prevHash  string
	timestamp int64
	nonce     uint64
	payload   []byte
	hash      string
	sealed    bool
}

// NewDraft returns a draft linked to prevHash. The timestamp is in
// milliseconds since the epoch and nonce is the seed the search starts from.
// Nothing is validated here.
func NewDraft(payload []byte, prevHash string, timestamp int64, nonce uint64) *Draft {
	return &Draft{
		prevHash:  prevHash,
		timestamp: timestamp,
		nonce:     nonce,
		payload:   copyBytes(payload),
	}
}

// Draft accessors. Payload returns a copy.
func (d *Draft) PrevHash() string { return d.prevHash }
func (d *Draft) Timestamp() int64 { return d.timestamp }
func (d *Draft) Nonce() uint64 { return d.nonce }
func (d *Draft) Hash() string { return d.hash }
func (d *Draft) Payload() []byte { return copyBytes(d.payload) }
func (d *Draft) Sealed() bool { return d.sealed }

// Setters change the draft before mining. Hash is only written by mining
// and by SetHash.
func (d *Draft) SetPrevHash(h string) { d.prevHash = h }
func (d *Draft) SetTimestamp(ts int64) { d.timestamp = ts }
func (d *Draft) SetNonce(n uint64) { d.nonce = n }
func (d *Draft) SetHash(h string) { d.hash = h }
func (d *Draft) SetPayload(p []byte) { d.payload = copyBytes(p) }

// CalculateHash hashes the current fields of the draft.
func (d *Draft) CalculateHash() string {
	return CalculateHash(d.prevHash, d.timestamp, d.nonce, d.payload)
}

// Block is a sealed chain record. It only exposes read access; the way to
// obtain one is mining a Draft or decoding a Record.
type Block struct {
	prevHash  string
	timestamp int64
	nonce     uint64
	payload   []byte
	hash      string
}

// FromRecord builds a block from its wire form without checking it.
func FromRecord(r Record) *Block {
	return &Block{
		prevHash:  r.PrevHash,
		timestamp: r.Timestamp,
		nonce:     r.Nonce,
		payload:   copyBytes(r.Payload),
		hash:      r.Hash,
	}
}

// Block accessors. Payload returns a copy.
func (b *Block) PrevHash() string { return b.prevHash }
func (b *Block) Timestamp() int64 { return b.timestamp }
func (b *Block) Nonce() uint64 { return b.nonce }
func (b *Block) Hash() string { return b.hash }

// Payload returns a copy of the block content.
func (b *Block) Payload() []byte { return copyBytes(b.payload) }

// CalculateHash recomputes the hash from the stored fields. It differs from
// Hash only when the block was not produced by mining.
func (b *Block) CalculateHash() string {
	return CalculateHash(b.prevHash, b.timestamp, b.nonce, b.payload)
}

// Record returns the wire form of the block.
func (b *Block) Record() Record {
	return Record{
		PrevHash:  b.prevHash,
		Timestamp: b.timestamp,
		Nonce:     b.nonce,
		Payload:   copyBytes(b.payload),
		Hash:      b.hash,
	}
}

func (b *Block) String() string {
	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("Block %s", b.hash))
	builder.WriteString(fmt.Sprintf("\n\tPrevHash: %s", b.prevHash))
	builder.WriteString(fmt.Sprintf("\n\tTimestamp: %s", time.Unix(0, b.timestamp*int64(time.Millisecond)).UTC().Format("2006-01-02 15:04:05.000")))
	builder.WriteString(fmt.Sprintf("\n\tNonce: %d", b.nonce))
	builder.WriteString(fmt.Sprintf("\n\tPayload: %q", b.payload))
	return builder.String()
}

// CalculateHash returns the lowercase hex SHA-256 of prevHash, the decimal
// timestamp, the decimal nonce and the payload, concatenated in that order.
func CalculateHash(prevHash string, timestamp int64, nonce uint64, payload []byte) string {
	buf := make([]byte, 0, len(prevHash)+2*maxDecimalLen+len(payload))
	buf = append(buf, prevHash...)
	buf = strconv.AppendInt(buf, timestamp, 10)
	buf = strconv.AppendUint(buf, nonce, 10)
	buf = append(buf, payload...)
	sum := sha256.Sum256(buf)
	return hex.EncodeToString(sum[:])
}

func copyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	c := make([]byte, len(b))
	copy(c, b)
	return c
}
