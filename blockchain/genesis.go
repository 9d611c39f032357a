package blockchain

// NewGenesisDraft returns the draft of a first block, linked to
// GenesisSentinel.
func NewGenesisDraft(payload []byte, timestamp int64, nonce uint64) *Draft {
	return NewDraft(payload, GenesisSentinel, timestamp, nonce)
}
