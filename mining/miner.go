package mining

import (
	"context"
	"sync"

	bc "github.com/hllywluis/powchain/blockchain"

	"go.dedis.ch/onet/v3/log"
	"golang.org/x/xerrors"
)

var (
	// ErrMinerRunning is returned by Start while a search is in progress.
	ErrMinerRunning = xerrors.New("miner already running")
	// ErrNotStarted is returned by Wait before the first Start.
	ErrNotStarted = xerrors.New("miner never started")
)

// Listener is called with every block the miner solves.
type Listener func(block *bc.Block)

// run is the state of one search. Its result fields are written once by
// the worker before done is closed.
type run struct {
	done  chan struct{}
	block *bc.Block
	err   error
}

// Miner solves one draft at a time in a background goroutine.
type Miner struct {
	sync.Mutex
	difficulty    int
	maxIterations uint64
	started       bool
	cancel        context.CancelFunc
	current       *run
	callback      Listener
}

// New returns a miner for the given difficulty. callback may be nil.
func New(difficulty int, callback Listener) *Miner {
	return &Miner{
		difficulty: difficulty,
		callback:   callback,
	}
}

// SetMaxIterations bounds each search; zero means unbounded. It applies to
// the next Start.
func (m *Miner) SetMaxIterations(n uint64) {
	m.Lock()
	defer m.Unlock()
	m.maxIterations = n
}

// Start begins mining draft. The draft belongs to the miner until the search
// ends. It may be called from the Listener to chain the next block.
func (m *Miner) Start(draft *bc.Draft) error {
	m.Lock()
	defer m.Unlock()

	if m.started {
		return ErrMinerRunning
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &run{done: make(chan struct{})}
	m.cancel = cancel
	m.current = r
	m.started = true
	go m.miningWorker(ctx, cancel, draft, m.maxIterations, r)
	log.Lvl2("Miner started")
	return nil
}

func (m *Miner) miningWorker(ctx context.Context, cancel context.CancelFunc, draft *bc.Draft, maxIterations uint64, r *run) {
	defer close(r.done)
	defer cancel()

	r.block, r.err = draft.MineLimit(ctx, m.difficulty, maxIterations)

	m.Lock()
	m.started = false
	callback := m.callback
	m.Unlock()

	if r.err != nil {
		log.Lvl2("Mining worker done:", r.err)
		return
	}
	log.Lvlf2("Solved block %s with nonce %d", r.block.Hash(), r.block.Nonce())
	if callback != nil {
		callback(r.block)
	}
}

// Running reports whether a search is in progress.
func (m *Miner) Running() bool {
	m.Lock()
	defer m.Unlock()
	return m.started
}

// Wait blocks until the current or last search ends and returns its result.
// A search started meanwhile, from the Listener or elsewhere, does not
// change what Wait returns.
func (m *Miner) Wait() (*bc.Block, error) {
	m.Lock()
	r := m.current
	m.Unlock()
	if r == nil {
		return nil, ErrNotStarted
	}
	<-r.done
	return r.block, r.err
}

// Stop cancels the search and waits for the worker to exit.
// This function is safe for concurrent access.
func (m *Miner) Stop() {
	m.Lock()
	if !m.started {
		m.Unlock()
		return
	}
	cancel, r := m.cancel, m.current
	m.Unlock()

	cancel()
	<-r.done
	log.Lvl2("Miner stopped")
}
