package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"time"

	bc "github.com/hllywluis/powchain/blockchain"
	"github.com/hllywluis/powchain/config"
	"github.com/hllywluis/powchain/mining"
	"github.com/hllywluis/powchain/service"

	"github.com/pterm/pterm"
	"go.dedis.ch/onet/v3/log"
	"golang.org/x/xerrors"
	"gopkg.in/urfave/cli.v1"
)

var cmds = cli.Commands{
	{
		Name:      "mine",
		Usage:     "mine one block per payload onto the chain",
		Aliases:   []string{"m"},
		ArgsUsage: "PAYLOAD [PAYLOAD]...",
		Action:    cmdMine,
	},
	{
		Name:    "run",
		Usage:   "keep mining blocks until interrupted",
		Aliases: []string{"r"},
		Flags: []cli.Flag{
			cli.IntFlag{
				Name:  "count, n",
				Usage: "stop after this many blocks, 0 for no limit",
			},
			cli.StringFlag{
				Name:  "payload, p",
				Value: "block",
				Usage: "payload prefix, the height is appended",
			},
		},
		Action: cmdRun,
	},
	{
		Name:    "show",
		Usage:   "print the chain",
		Aliases: []string{"s"},
		Action:  cmdShow,
	},
	{
		Name:    "validate",
		Usage:   "check hashes, links and work of every block",
		Aliases: []string{"v"},
		Action:  cmdValidate,
	},
	{
		Name:      "export",
		Usage:     "write the chain to a file",
		ArgsUsage: "FILE",
		Action:    cmdExport,
	},
	{
		Name:      "import",
		Usage:     "load a chain file into an empty data directory",
		ArgsUsage: "FILE",
		Action:    cmdImport,
	},
	{
		Name:      "demo",
		Usage:     "build a chain in memory, validate it, optionally tamper with it",
		ArgsUsage: "[BLOCKS]",
		Flags: []cli.Flag{
			cli.BoolFlag{
				Name:  "tamper",
				Usage: "edit the last payload after mining and validate again",
			},
		},
		Action: cmdDemo,
	},
	{
		Name:      "bench",
		Usage:     "mine independent blocks on all workers and report the hash rate",
		ArgsUsage: "[BLOCKS]",
		Action:    cmdBench,
	},
}

func interruptContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

func countArg(c *cli.Context, def int) (int, error) {
	if c.NArg() == 0 {
		return def, nil
	}
	n, err := strconv.Atoi(c.Args().First())
	if err != nil || n < 0 {
		return 0, xerrors.Errorf("invalid block count %q", c.Args().First())
	}
	return n, nil
}

func cmdMine(c *cli.Context) error {
	if c.NArg() < 1 {
		return xerrors.New("please give the following arguments: PAYLOAD [PAYLOAD]...")
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	chain, db, err := openChain(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := chain.Verify(); err != nil {
		return xerrors.Errorf("refusing to extend an invalid chain: %v", err)
	}

	ctx, stop := interruptContext()
	defer stop()
	for _, payload := range c.Args() {
		height := chain.Len()
		spinner, _ := pterm.DefaultSpinner.Start(fmt.Sprintf("Mining block %d at difficulty %d ...", height, cfg.Difficulty))
		block, err := chain.MineNext(ctx, []byte(payload))
		if err != nil {
			spinner.Fail(err.Error())
			return err
		}
		spinner.Success(fmt.Sprintf("Block %d: %s (nonce %d)", height, block.Hash(), block.Nonce()))
	}
	return nil
}

func cmdRun(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	chain, db, err := openChain(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := chain.Verify(); err != nil {
		return xerrors.Errorf("refusing to extend an invalid chain: %v", err)
	}

	ctx, stop := interruptContext()
	defer stop()
	mined, err := runMiner(ctx, chain, cfg, c.String("payload"), c.Int("count"))
	pterm.Info.Printfln("Mined %d blocks, chain height %d", mined, chain.Len())
	return err
}

type mineResult struct {
	block *bc.Block
	err   error
}

// runMiner mines blocks onto chain with a background miner until count
// blocks are appended or ctx is done.
func runMiner(ctx context.Context, chain *service.Chain, cfg *config.Config, prefix string, count int) (int, error) {
	m := mining.New(cfg.Difficulty, func(block *bc.Block) {
		log.Lvlf1("Solved block %s", block.Hash())
	})
	m.SetMaxIterations(cfg.MaxIterations)

	mined := 0
	for count == 0 || mined < count {
		draft := chain.NextDraft([]byte(fmt.Sprintf("%s %d", prefix, chain.Len())))
		if err := m.Start(draft); err != nil {
			return mined, err
		}
		done := make(chan mineResult, 1)
		go func() {
			block, err := m.Wait()
			done <- mineResult{block, err}
		}()

		select {
		case <-ctx.Done():
			m.Stop()
			<-done
			log.Lvl1("Mining interrupted")
			return mined, nil
		case r := <-done:
			if r.err != nil && ctx.Err() != nil {
				log.Lvl1("Mining interrupted")
				return mined, nil
			}
			if r.err != nil {
				return mined, r.err
			}
			if err := chain.Append(r.block); err != nil {
				return mined, err
			}
			pterm.Success.Printfln("Block %d: %s", chain.Len()-1, r.block.Hash())
			mined++
		}
	}
	return mined, nil
}

func cmdShow(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	chain, db, err := openChain(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if chain.Len() == 0 {
		pterm.Info.Println("The chain is empty")
		return nil
	}
	table, err := renderChain(chain.Blocks())
	if err != nil {
		return err
	}
	pterm.Println(table)
	return nil
}

func cmdValidate(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	chain, db, err := openChain(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := chain.Verify(); err != nil {
		pterm.Error.Println(err)
		return cli.NewExitError("chain is invalid", 1)
	}
	pterm.Success.Printfln("Chain of %d blocks is valid at difficulty %d", chain.Len(), chain.Difficulty())
	return nil
}

func cmdExport(c *cli.Context) error {
	if c.NArg() != 1 {
		return xerrors.New("please give the following arguments: FILE")
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	chain, db, err := openChain(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	buf, err := bc.EncodeChain(chain.Export())
	if err != nil {
		return err
	}
	if err := os.WriteFile(c.Args().First(), buf, 0644); err != nil {
		return xerrors.Errorf("writing chain file: %v", err)
	}
	pterm.Success.Printfln("Exported %d blocks to %s", chain.Len(), c.Args().First())
	return nil
}

func cmdImport(c *cli.Context) error {
	if c.NArg() != 1 {
		return xerrors.New("please give the following arguments: FILE")
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	buf, err := os.ReadFile(c.Args().First())
	if err != nil {
		return xerrors.Errorf("reading chain file: %v", err)
	}
	f, err := bc.DecodeChain(buf)
	if err != nil {
		return err
	}
	chain, db, err := openChain(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := chain.Import(f); err != nil {
		return err
	}
	pterm.Success.Printfln("Imported %d blocks", chain.Len())
	return nil
}

func cmdDemo(c *cli.Context) error {
	n, err := countArg(c, 5)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	ctx, stop := interruptContext()
	defer stop()

	spinner, _ := pterm.DefaultSpinner.Start(fmt.Sprintf("Mining %d blocks at difficulty %d ...", n, cfg.Difficulty))
	chain, err := buildDemo(ctx, cfg, n)
	if err != nil {
		spinner.Fail(err.Error())
		return err
	}
	spinner.Success(fmt.Sprintf("Mined %d blocks", chain.Len()))

	blocks := chain.Blocks()
	if len(blocks) > 0 {
		table, err := renderChain(blocks)
		if err != nil {
			return err
		}
		pterm.Println(table)
	}
	reportValidation(bc.Verify(blocks, cfg.Difficulty, cfg.Sentinel))

	if c.Bool("tamper") && len(blocks) > 0 {
		blocks = tamperLast(blocks)
		pterm.Info.Printfln("Payload of block %d edited without mining", len(blocks)-1)
		reportValidation(bc.Verify(blocks, cfg.Difficulty, cfg.Sentinel))
	}
	return nil
}

// buildDemo mines n blocks into an in-memory chain.
func buildDemo(ctx context.Context, cfg *config.Config, n int) (*service.Chain, error) {
	chain, err := service.NewChain(chainOptions(cfg, nil))
	if err != nil {
		return nil, err
	}
	for i := 0; i < n; i++ {
		payload := fmt.Sprintf("block %d", i)
		if i == 0 {
			payload = "genesis"
		}
		if _, err := chain.MineNext(ctx, []byte(payload)); err != nil {
			return nil, err
		}
	}
	return chain, nil
}

// tamperLast returns a copy of blocks whose last payload was changed after
// mining.
func tamperLast(blocks []*bc.Block) []*bc.Block {
	tampered := make([]*bc.Block, len(blocks))
	copy(tampered, blocks)
	last := len(tampered) - 1
	r := tampered[last].Record()
	r.Payload = append(r.Payload, " (tampered)"...)
	tampered[last] = bc.FromRecord(r)
	return tampered
}

func reportValidation(err error) {
	if err != nil {
		pterm.Error.Printfln("Chain is invalid: %v", err)
		return
	}
	pterm.Success.Println("Chain is valid")
}

func cmdBench(c *cli.Context) error {
	n, err := countArg(c, 16)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	ctx, stop := interruptContext()
	defer stop()

	pool := mining.NewPool(cfg.Difficulty, cfg.Workers)
	pool.MaxIterations = cfg.MaxIterations
	res, err := bench(ctx, pool, cfg, n)
	if err != nil {
		return err
	}
	pterm.Success.Printfln("%d blocks, %d hashes in %v on %d workers: %.0f H/s",
		res.blocks, res.hashes, res.elapsed.Round(time.Millisecond), pool.NumWorkers, res.rate())
	return nil
}

type benchResult struct {
	blocks  int
	hashes  uint64
	elapsed time.Duration
}

func (r benchResult) rate() float64 {
	if r.elapsed <= 0 {
		return 0
	}
	return float64(r.hashes) / r.elapsed.Seconds()
}

// bench mines n independent genesis drafts on the pool.
func bench(ctx context.Context, pool *mining.Pool, cfg *config.Config, n int) (benchResult, error) {
	ts := time.Now().UnixNano() / int64(time.Millisecond)
	drafts := make([]*bc.Draft, n)
	seeds := make([]uint64, n)
	for i := range drafts {
		seeds[i] = cfg.Seed()
		drafts[i] = bc.NewDraft([]byte(fmt.Sprintf("bench %d", i)), cfg.Sentinel, ts, seeds[i])
	}

	start := time.Now()
	blocks, err := pool.MineAll(ctx, drafts)
	if err != nil {
		return benchResult{}, err
	}
	res := benchResult{blocks: len(blocks), elapsed: time.Since(start)}
	for i, b := range blocks {
		res.hashes += b.Nonce() - seeds[i]
	}
	return res, nil
}
