package blockchain

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"golang.org/x/xerrors"
)

var (
	// ErrInvalidDifficulty is returned for a difficulty outside [0, MaxDifficulty].
	ErrInvalidDifficulty = xerrors.New("difficulty out of range")
	// ErrBudgetExhausted is returned when MineLimit ran out of iterations.
	ErrBudgetExhausted = xerrors.New("mining budget exhausted")
	// ErrDraftSealed is returned when mining a draft that was already mined.
	ErrDraftSealed = xerrors.New("draft already sealed")
)

// Target returns the required hash prefix for a difficulty.
func Target(difficulty int) string {
	if difficulty <= 0 {
		return ""
	}
	return strings.Repeat("0", difficulty)
}

// MeetsDifficulty reports whether hash starts with difficulty '0' characters.
func MeetsDifficulty(hash string, difficulty int) bool {
	if difficulty < 0 || difficulty > len(hash) {
		return false
	}
	for i := 0; i < difficulty; i++ {
		if hash[i] != '0' {
			return false
		}
	}
	return true
}

func checkDifficulty(difficulty int) error {
	if difficulty < 0 || difficulty > MaxDifficulty {
		return xerrors.Errorf("%d not in [0, %d]: %w", difficulty, MaxDifficulty, ErrInvalidDifficulty)
	}
	return nil
}

// Mine searches for a nonce whose hash satisfies difficulty. The search has
// no iteration cap and stops only on success or when ctx is done.
func (d *Draft) Mine(ctx context.Context, difficulty int) (*Block, error) {
	return d.MineLimit(ctx, difficulty, 0)
}

// MineLimit is Mine bounded to maxIterations hash attempts; zero means no
// bound. Each attempt increments the nonce before hashing, so a difficulty of
// zero is solved by the first attempt. On failure the draft keeps the last
// nonce tried and a later call resumes from there.
func (d *Draft) MineLimit(ctx context.Context, difficulty int, maxIterations uint64) (*Block, error) {
	if d.sealed {
		return nil, ErrDraftSealed
	}
	if err := checkDifficulty(difficulty); err != nil {
		return nil, err
	}

	// prevHash and timestamp never change during the search, only the
	// nonce digits and the payload after them are rewritten.
	buf := make([]byte, 0, len(d.prevHash)+2*maxDecimalLen+len(d.payload))
	buf = append(buf, d.prevHash...)
	buf = strconv.AppendInt(buf, d.timestamp, 10)
	prefix := len(buf)

	done := ctx.Done()
	for i := uint64(0); maxIterations == 0 || i < maxIterations; i++ {
		select {
		case <-done:
			return nil, xerrors.Errorf("mining stopped at nonce %d: %w", d.nonce, ctx.Err())
		default:
			// Non-blocking select to fall through
		}
		d.nonce++
		buf = strconv.AppendUint(buf[:prefix], d.nonce, 10)
		buf = append(buf, d.payload...)
		sum := sha256.Sum256(buf)
		if leadingZeroNibbles(&sum, difficulty) {
			d.hash = hex.EncodeToString(sum[:])
			d.sealed = true
			return &Block{
				prevHash:  d.prevHash,
				timestamp: d.timestamp,
				nonce:     d.nonce,
				payload:   d.payload,
				hash:      d.hash,
			}, nil
		}
	}
	return nil, xerrors.Errorf("%d iterations without a solution: %w", maxIterations, ErrBudgetExhausted)
}

// leadingZeroNibbles reports whether the first n hex digits of sum are zero,
// without hex-encoding it.
func leadingZeroNibbles(sum *[HashSize]byte, n int) bool {
	full := n / 2
	for i := 0; i < full; i++ {
		if sum[i] != 0 {
			return false
		}
	}
	return n%2 == 0 || sum[full]>>4 == 0
}
