package main

import (
	"context"
	"strings"
	"testing"

	bc "github.com/hllywluis/powchain/blockchain"
	"github.com/hllywluis/powchain/config"
	"github.com/hllywluis/powchain/mining"
	"github.com/hllywluis/powchain/service"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/onet/v3/log"
	"golang.org/x/xerrors"
)

func TestMain(m *testing.M) {
	log.MainTest(m)
}

func testConfig(t *testing.T) *config.Config {
	cfg := config.Default()
	cfg.Difficulty = 1
	cfg.DataDir = t.TempDir()
	return cfg
}

func TestBuildDemo(t *testing.T) {
	cfg := testConfig(t)
	chain, err := buildDemo(context.Background(), cfg, 4)
	require.NoError(t, err)
	require.Equal(t, 4, chain.Len())
	require.NoError(t, chain.Verify())

	blocks := chain.Blocks()
	require.Equal(t, []byte("genesis"), blocks[0].Payload())
	require.Equal(t, bc.GenesisSentinel, blocks[0].PrevHash())

	tampered := tamperLast(blocks)
	require.Equal(t, blocks[:3], tampered[:3])
	err = bc.Verify(tampered, cfg.Difficulty, cfg.Sentinel)
	var verr *bc.ValidationError
	require.True(t, xerrors.As(err, &verr))
	require.Equal(t, 3, verr.Index)
	require.Equal(t, bc.ReasonHashMismatch, verr.Reason)

	// Tampering works on a copy.
	require.NoError(t, bc.Verify(blocks, cfg.Difficulty, cfg.Sentinel))
}

func TestBuildDemoCancelled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Difficulty = 8
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := buildDemo(ctx, cfg, 1)
	require.True(t, xerrors.Is(err, context.Canceled))
}

func TestRenderChain(t *testing.T) {
	chain, err := buildDemo(context.Background(), testConfig(t), 2)
	require.NoError(t, err)
	out, err := renderChain(chain.Blocks())
	require.NoError(t, err)
	for _, b := range chain.Blocks() {
		require.Contains(t, out, b.Hash())
	}
	require.Contains(t, out, "Nonce")
	require.Contains(t, out, "genesis")
}

func TestShorten(t *testing.T) {
	require.Equal(t, "abc", shorten("abc", 5))
	require.Equal(t, "ab...", shorten("abcdefgh", 5))
}

func TestRunMiner(t *testing.T) {
	cfg := testConfig(t)
	chain, err := service.NewChain(chainOptions(cfg, nil))
	require.NoError(t, err)

	mined, err := runMiner(context.Background(), chain, cfg, "run", 3)
	require.NoError(t, err)
	require.Equal(t, 3, mined)
	require.Equal(t, 3, chain.Len())
	require.True(t, chain.Validate())
	require.Equal(t, []byte("run 2"), chain.Blocks()[2].Payload())
}

func TestRunMinerInterrupted(t *testing.T) {
	cfg := testConfig(t)
	cfg.Difficulty = 12
	chain, err := service.NewChain(chainOptions(cfg, nil))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	mined, err := runMiner(ctx, chain, cfg, "run", 0)
	require.NoError(t, err)
	require.Equal(t, 0, mined)
	require.Equal(t, 0, chain.Len())
}

func TestBench(t *testing.T) {
	cfg := testConfig(t)
	pool := mining.NewPool(cfg.Difficulty, 2)
	res, err := bench(context.Background(), pool, cfg, 5)
	require.NoError(t, err)
	require.Equal(t, 5, res.blocks)
	// Every search hashes at least once.
	require.True(t, res.hashes >= 5)
	require.True(t, res.rate() >= 0)
}

func TestOpenChainPersists(t *testing.T) {
	cfg := testConfig(t)
	chain, db, err := openChain(cfg)
	require.NoError(t, err)
	_, err = chain.MineNext(context.Background(), []byte("persisted"))
	require.NoError(t, err)
	require.NoError(t, db.Close())

	chain, db, err = openChain(cfg)
	require.NoError(t, err)
	defer db.Close()
	require.Equal(t, 1, chain.Len())
	require.True(t, strings.HasPrefix(chain.Tip(), "0"))
}
