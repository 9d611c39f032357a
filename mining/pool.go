package mining

import (
	"context"
	"runtime"
	"sync"

	bc "github.com/hllywluis/powchain/blockchain"

	"go.dedis.ch/onet/v3/log"
	"golang.org/x/xerrors"
)

// ErrNilDraft is returned by MineAll when a batch holds a nil draft.
var ErrNilDraft = xerrors.New("nil draft")

// defaultNumWorkers is the number of workers used when none is configured.
var defaultNumWorkers = runtime.NumCPU()

// Pool mines independent drafts concurrently. Drafts linked to one another
// must not be mined in the same batch: a block's hash is only known once it
// is solved.
type Pool struct {
	Difficulty    int
	NumWorkers    int
	MaxIterations uint64
}

// NewPool returns a pool; numWorkers <= 0 selects one worker per CPU.
func NewPool(difficulty, numWorkers int) *Pool {
	if numWorkers <= 0 {
		numWorkers = defaultNumWorkers
	}
	return &Pool{Difficulty: difficulty, NumWorkers: numWorkers}
}

// MineAll solves every draft and returns the blocks in input order. The
// first failure cancels the remaining work and is returned.
func (p *Pool) MineAll(ctx context.Context, drafts []*bc.Draft) ([]*bc.Block, error) {
	for i, d := range drafts {
		if d == nil {
			return nil, xerrors.Errorf("draft %d: %w", i, ErrNilDraft)
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	numWorkers := p.NumWorkers
	if numWorkers <= 0 {
		numWorkers = defaultNumWorkers
	}
	if numWorkers > len(drafts) {
		numWorkers = len(drafts)
	}

	blocks := make([]*bc.Block, len(drafts))
	jobs := make(chan int)
	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for i := range jobs {
				block, err := drafts[i].MineLimit(ctx, p.Difficulty, p.MaxIterations)
				if err != nil {
					errOnce.Do(func() {
						firstErr = xerrors.Errorf("draft %d: %w", i, err)
						cancel()
					})
					continue
				}
				log.Lvlf3("Worker %d solved draft %d: %s", worker, i, block.Hash())
				blocks[i] = block
			}
		}(w)
	}

out:
	for i := range drafts {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break out
		}
	}
	close(jobs)
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, xerrors.Errorf("mining batch: %w", err)
	}
	return blocks, nil
}
