package service

import (
	"context"
	"sync"
	"time"

	bc "github.com/hllywluis/powchain/blockchain"

	"go.dedis.ch/onet/v3/log"
	"golang.org/x/xerrors"
)

var (
	// ErrStaleTip is returned when a block does not extend the current tip.
	ErrStaleTip = xerrors.New("block does not extend the chain tip")
	// ErrNotEmpty is returned when importing into a chain that has blocks.
	ErrNotEmpty = xerrors.New("chain is not empty")
)

// Options configures a Chain.
type Options struct {
	Difficulty int
	// Sentinel is the genesis predecessor hash, bc.GenesisSentinel if empty.
	Sentinel string
	// MaxIterations bounds each block search, zero means unbounded.
	MaxIterations uint64
	// Timeout bounds each block search, zero means none.
	Timeout time.Duration
	// DB persists accepted blocks when set.
	DB *BlockDB
	// Seed returns the starting nonce of new drafts, zero if nil.
	Seed func() uint64
	// Now returns the creation time of new drafts, time.Now if nil.
	Now func() time.Time
}

// Chain owns an ordered, append-only sequence of sealed blocks. Appends and
// validation are serialized by the embedded lock, so a chain is never
// validated while it is being extended.
type Chain struct {
	sync.RWMutex
	opts   Options
	blocks []*bc.Block
}

// NewChain returns a chain with the blocks already stored in opts.DB. Stored
// blocks are loaded as is; call Verify to check them.
func NewChain(opts Options) (*Chain, error) {
	if opts.Difficulty < 0 || opts.Difficulty > bc.MaxDifficulty {
		return nil, xerrors.Errorf("difficulty %d: %w", opts.Difficulty, bc.ErrInvalidDifficulty)
	}
	if opts.Sentinel == "" {
		opts.Sentinel = bc.GenesisSentinel
	}
	if opts.Seed == nil {
		opts.Seed = func() uint64 { return 0 }
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	c := &Chain{opts: opts}
	if err := c.Load(); err != nil {
		return nil, err
	}
	return c, nil
}

// Load replaces the in-memory blocks with the ones stored in the DB.
func (c *Chain) Load() error {
	if c.opts.DB == nil {
		return nil
	}
	blocks, err := c.opts.DB.Blocks()
	if err != nil {
		return xerrors.Errorf("loading blocks: %v", err)
	}
	c.Lock()
	c.blocks = blocks
	c.Unlock()
	log.Lvlf2("Loaded %d blocks", len(blocks))
	return nil
}

func (c *Chain) Difficulty() int { return c.opts.Difficulty }
func (c *Chain) Sentinel() string { return c.opts.Sentinel }

// Len returns the number of blocks.
func (c *Chain) Len() int {
	c.RLock()
	defer c.RUnlock()
	return len(c.blocks)
}

// Tip returns the hash a new block must link to.
func (c *Chain) Tip() string {
	c.RLock()
	defer c.RUnlock()
	return c.tip()
}

func (c *Chain) tip() string {
	if len(c.blocks) == 0 {
		return c.opts.Sentinel
	}
	return c.blocks[len(c.blocks)-1].Hash()
}

// Get returns the block at height.
func (c *Chain) Get(height int) (*bc.Block, error) {
	c.RLock()
	defer c.RUnlock()
	if height < 0 || height >= len(c.blocks) {
		return nil, xerrors.Errorf("height %d: %w", height, ErrNoSuchBlock)
	}
	return c.blocks[height], nil
}

// Blocks returns a snapshot of the sequence.
func (c *Chain) Blocks() []*bc.Block {
	c.RLock()
	defer c.RUnlock()
	blocks := make([]*bc.Block, len(c.blocks))
	copy(blocks, c.blocks)
	return blocks
}

// NextDraft returns a draft linked to the current tip.
func (c *Chain) NextDraft(payload []byte) *bc.Draft {
	c.RLock()
	prev := c.tip()
	c.RUnlock()
	ts := c.opts.Now().UnixNano() / int64(time.Millisecond)
	return bc.NewDraft(payload, prev, ts, c.opts.Seed())
}

// Append adds a mined block on top of the tip. The block must hash to its
// stored hash, meet the difficulty and link to the tip.
func (c *Chain) Append(block *bc.Block) error {
	c.Lock()
	defer c.Unlock()

	height := len(c.blocks)
	if err := bc.VerifyBlock(height, block, c.tip(), c.opts.Difficulty); err != nil {
		var verr *bc.ValidationError
		if xerrors.As(err, &verr) && verr.Reason == bc.ReasonLinkMismatch {
			return xerrors.Errorf("%v: %w", err, ErrStaleTip)
		}
		return err
	}
	if c.opts.DB != nil {
		if err := c.opts.DB.Store(height, block); err != nil {
			return xerrors.Errorf("storing block %d: %w", height, err)
		}
	}
	c.blocks = append(c.blocks, block)
	return nil
}

// MineNext mines payload on top of the tip and appends the result.
func (c *Chain) MineNext(ctx context.Context, payload []byte) (*bc.Block, error) {
	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}

	draft := c.NextDraft(payload)
	seed := draft.Nonce()
	start := time.Now()
	block, err := draft.MineLimit(ctx, c.opts.Difficulty, c.opts.MaxIterations)
	if err != nil {
		return nil, xerrors.Errorf("mining block on %s: %w", draft.PrevHash(), err)
	}
	log.Lvlf2("Mined block %s in %v after %d attempts", block.Hash(), time.Since(start), block.Nonce()-seed)

	if err := c.Append(block); err != nil {
		return nil, err
	}
	return block, nil
}

// Verify runs the chain validator over all blocks.
func (c *Chain) Verify() error {
	c.RLock()
	defer c.RUnlock()
	return bc.Verify(c.blocks, c.opts.Difficulty, c.opts.Sentinel)
}

// Validate reports whether Verify succeeds.
func (c *Chain) Validate() bool {
	return c.Verify() == nil
}

// Export returns the portable form of the chain.
func (c *Chain) Export() bc.ChainFile {
	c.RLock()
	defer c.RUnlock()
	return bc.NewChainFile(c.blocks, c.opts.Difficulty, c.opts.Sentinel)
}

// Import replaces an empty chain with the blocks of f after verifying them
// under this chain's difficulty and sentinel.
func (c *Chain) Import(f bc.ChainFile) error {
	if int(f.Difficulty) != c.opts.Difficulty || f.Sentinel != c.opts.Sentinel {
		return xerrors.Errorf("chain file mined with difficulty %d and sentinel %q, want %d and %q",
			f.Difficulty, f.Sentinel, c.opts.Difficulty, c.opts.Sentinel)
	}
	blocks := f.Blocks()
	if err := bc.Verify(blocks, c.opts.Difficulty, c.opts.Sentinel); err != nil {
		return xerrors.Errorf("refusing import: %w", err)
	}

	c.Lock()
	defer c.Unlock()
	if len(c.blocks) > 0 {
		return ErrNotEmpty
	}
	if c.opts.DB != nil {
		if err := c.opts.DB.StoreBlocks(0, blocks); err != nil {
			return xerrors.Errorf("storing import: %w", err)
		}
	}
	c.blocks = blocks
	log.Lvlf1("Imported %d blocks", len(blocks))
	return nil
}
