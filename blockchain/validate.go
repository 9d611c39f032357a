package blockchain

import (
	"fmt"
)

// Reason names the check a block failed.
type Reason int

// Checks in the order Verify runs them.
const (
	ReasonNilBlock Reason = iota + 1
	ReasonHashMismatch
	ReasonLinkMismatch
	ReasonDifficulty
)

func (r Reason) String() string {
	switch r {
	case ReasonNilBlock:
		return "missing block"
	case ReasonHashMismatch:
		return "invalid hash"
	case ReasonLinkMismatch:
		return "invalid prev hash"
	case ReasonDifficulty:
		return "insufficient work"
	default:
		return fmt.Sprintf("reason(%d)", int(r))
	}
}

// ValidationError reports the first block of a sequence that failed
// validation.
type ValidationError struct {
	Index  int
	Reason Reason
	Want   string
	Got    string
}

func (e *ValidationError) Error() string {
	if e.Want == "" && e.Got == "" {
		return fmt.Sprintf("block %d invalid: %s", e.Index, e.Reason)
	}
	return fmt.Sprintf("block %d invalid: %s: expected %s, got %s", e.Index, e.Reason, e.Want, e.Got)
}

// Validate reports whether blocks form a valid chain for the given
// difficulty and genesis sentinel. An empty sequence is valid.
func Validate(blocks []*Block, difficulty int, sentinel string) bool {
	return Verify(blocks, difficulty, sentinel) == nil
}

// Verify walks blocks in order and returns a *ValidationError for the first
// one whose stored hash is not its recomputed hash, whose prev hash does not
// match its predecessor (sentinel for the first block), or whose hash does
// not meet difficulty.
func Verify(blocks []*Block, difficulty int, sentinel string) error {
	if err := checkDifficulty(difficulty); err != nil {
		return err
	}
	prev := sentinel
	for i, b := range blocks {
		if err := verifyBlock(i, b, prev, difficulty); err != nil {
			return err
		}
		prev = b.hash
	}
	return nil
}

// VerifyBlock checks a single block at index against the hash of its
// predecessor.
func VerifyBlock(index int, b *Block, prevHash string, difficulty int) error {
	if err := checkDifficulty(difficulty); err != nil {
		return err
	}
	return verifyBlock(index, b, prevHash, difficulty)
}

func verifyBlock(index int, b *Block, prevHash string, difficulty int) error {
	if b == nil {
		return &ValidationError{Index: index, Reason: ReasonNilBlock}
	}
	if h := b.CalculateHash(); b.hash != h {
		return &ValidationError{Index: index, Reason: ReasonHashMismatch, Want: h, Got: b.hash}
	}
	if b.prevHash != prevHash {
		return &ValidationError{Index: index, Reason: ReasonLinkMismatch, Want: prevHash, Got: b.prevHash}
	}
	if !MeetsDifficulty(b.hash, difficulty) {
		return &ValidationError{Index: index, Reason: ReasonDifficulty, Want: Target(difficulty), Got: b.hash}
	}
	return nil
}
