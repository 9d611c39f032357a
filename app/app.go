package main

import (
	"os"

	"github.com/hllywluis/powchain/config"
	"github.com/hllywluis/powchain/service"

	"go.dedis.ch/onet/v3/log"
	"golang.org/x/xerrors"
	"gopkg.in/urfave/cli.v1"
)

func main() {
	cliApp := cli.NewApp()
	cliApp.Name = config.DefaultName
	cliApp.Usage = "Mine and validate a proof-of-work ledger."
	cliApp.Version = "0.1"
	cliApp.Commands = cmds
	cliApp.Flags = []cli.Flag{
		cli.IntFlag{
			Name:  "debug, d",
			Value: 0,
			Usage: "debug-level: 1 for terse, 5 for maximal",
		},
		cli.StringFlag{
			Name:   "config, c",
			EnvVar: "POWCHAIN_CONFIG",
			Value:  config.DefaultPath(),
			Usage:  "path to the TOML configuration file",
		},
		cli.StringFlag{
			Name:   "data",
			EnvVar: "POWCHAIN_DATA",
			Usage:  "data directory holding the block database",
		},
		cli.IntFlag{
			Name:  "difficulty",
			Usage: "number of leading zero hex digits required in block hashes",
		},
	}
	cliApp.Before = func(c *cli.Context) error {
		log.SetDebugVisible(c.Int("debug"))
		return nil
	}
	log.ErrFatal(cliApp.Run(os.Args))
}

// loadConfig reads the configuration file, if any, and applies the global
// flags on top of it.
func loadConfig(c *cli.Context) (*config.Config, error) {
	path := c.GlobalString("config")
	var cfg *config.Config
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if c.GlobalIsSet("config") {
			return nil, xerrors.Errorf("configuration file %s does not exist", path)
		}
		log.Lvl2("No configuration file, using defaults")
		cfg = config.Default()
	} else {
		cfg, err = config.Load(path)
		if err != nil {
			return nil, err
		}
	}
	if c.GlobalIsSet("data") {
		cfg.DataDir = c.GlobalString("data")
	}
	if c.GlobalIsSet("difficulty") {
		cfg.Difficulty = c.GlobalInt("difficulty")
	}
	if c.GlobalIsSet("debug") {
		cfg.Debug = c.GlobalInt("debug")
	}
	log.SetDebugVisible(cfg.Debug)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func chainOptions(cfg *config.Config, db *service.BlockDB) service.Options {
	return service.Options{
		Difficulty:    cfg.Difficulty,
		Sentinel:      cfg.Sentinel,
		MaxIterations: cfg.MaxIterations,
		Timeout:       cfg.Timeout.Duration,
		DB:            db,
		Seed:          cfg.Seed,
	}
}

// openChain opens the persisted chain. The caller closes the database.
func openChain(cfg *config.Config) (*service.Chain, *service.BlockDB, error) {
	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, nil, xerrors.Errorf("creating data directory: %v", err)
	}
	db, err := service.Open(cfg.DBPath())
	if err != nil {
		return nil, nil, err
	}
	chain, err := service.NewChain(chainOptions(cfg, db))
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	log.Lvlf2("Opened chain of %d blocks at %s", chain.Len(), cfg.DBPath())
	return chain, db, nil
}
