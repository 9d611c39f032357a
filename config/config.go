package config

import (
	"encoding/binary"
	"path/filepath"
	"sort"
	"strings"
	"time"

	bc "github.com/hllywluis/powchain/blockchain"

	"github.com/BurntSushi/toml"
	"go.dedis.ch/kyber/v3/util/random"
	"go.dedis.ch/onet/v3/cfgpath"
	"golang.org/x/xerrors"
)

// DefaultName is the program name used for default directories.
const DefaultName = "powchain"

// DBFile is the name of the block database inside DataDir.
const DBFile = "chain.db"

// Duration is a time.Duration read from a TOML string such as "30s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Config holds the settings of the powchain tools.
type Config struct {
	// Difficulty is the number of leading '0' hex digits of every block hash.
	Difficulty int
	// Sentinel is the predecessor hash of the first block.
	Sentinel string
	DataDir  string
	// MaxIterations bounds the search of a single block, 0 for no bound.
	MaxIterations uint64
	// Timeout bounds the search of a single block, 0 for none.
	Timeout Duration
	// RandomSeed starts every nonce search from a random value instead of 0.
	RandomSeed bool
	// Workers is the mining pool size, 0 for one per CPU.
	Workers int
	// Debug is the onet log level.
	Debug int
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Difficulty: 4,
		Sentinel:   bc.GenesisSentinel,
		DataDir:    cfgpath.GetDataPath(DefaultName),
	}
}

// DefaultPath is where Load looks when no file is given.
func DefaultPath() string {
	return filepath.Join(cfgpath.GetConfigPath(DefaultName), DefaultName+".toml")
}

// Load reads a TOML file over the defaults. Unknown keys are an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, xerrors.Errorf("reading %s: %v", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)
		return nil, xerrors.Errorf("%s: unknown keys %s", path, strings.Join(keys, ", "))
	}
	if err := cfg.Validate(); err != nil {
		return nil, xerrors.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the ranges of all settings.
func (c *Config) Validate() error {
	if c.Difficulty < 0 || c.Difficulty > bc.MaxDifficulty {
		return xerrors.Errorf("Difficulty %d: %w", c.Difficulty, bc.ErrInvalidDifficulty)
	}
	if c.Sentinel == "" {
		return xerrors.New("Sentinel must not be empty")
	}
	if c.DataDir == "" {
		return xerrors.New("DataDir must not be empty")
	}
	if c.Timeout.Duration < 0 {
		return xerrors.Errorf("Timeout %v is negative", c.Timeout.Duration)
	}
	if c.Workers < 0 {
		return xerrors.Errorf("Workers %d is negative", c.Workers)
	}
	return nil
}

// DBPath returns the location of the block database.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, DBFile)
}

// Seed returns the starting nonce for a new draft.
func (c *Config) Seed() uint64 {
	if !c.RandomSeed {
		return 0
	}
	var n [8]byte
	random.Bytes(n[:], random.New())
	return binary.LittleEndian.Uint64(n[:])
}
