package service

import (
	"encoding/binary"
	"sync"
	"time"

	bc "github.com/hllywluis/powchain/blockchain"

	bbolt "go.etcd.io/bbolt"
	"go.dedis.ch/kyber/v3/suites"
	"go.dedis.ch/onet/v3/log"
	"go.dedis.ch/onet/v3/network"
	"golang.org/x/xerrors"
)

var (
	blocksBucket = []byte("blocks")
	indexBucket  = []byte("index")
)

// suite is only consulted by network.Unmarshal for kyber types, which
// records do not contain.
var suite = suites.MustFind("Ed25519")

var (
	// ErrNoSuchBlock is returned for lookups of unknown blocks.
	ErrNoSuchBlock = xerrors.New("no such block")
	// ErrHeightTaken is returned when storing over an existing height.
	ErrHeightTaken = xerrors.New("height already stored")
)

// BlockDB stores sealed blocks in bbolt: the blocks bucket maps a block hash
// to its marshalled record and the index bucket maps a big-endian height to
// a block hash.
type BlockDB struct {
	*bbolt.DB
	latestMutex   sync.Mutex
	latestBlockID string
	height        int
}

// Open opens or creates the database at path.
func Open(path string) (*BlockDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, xerrors.Errorf("opening %s: %v", path, err)
	}
	bdb, err := NewBlockDB(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return bdb, nil
}

// NewBlockDB wraps an open bbolt database, creating the buckets if needed,
// and builds the index.
func NewBlockDB(db *bbolt.DB) (*BlockDB, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{blocksBucket, indexBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, xerrors.Errorf("creating buckets: %v", err)
	}
	bdb := &BlockDB{DB: db}
	if err := bdb.BuildIndex(); err != nil {
		return nil, err
	}
	return bdb, nil
}

func heightKey(height int) []byte {
	var k [8]byte
	binary.BigEndian.PutUint64(k[:], uint64(height))
	return k[:]
}

// storeToTx stores the block at height into the database.
func (db *BlockDB) storeToTx(tx *bbolt.Tx, height int, block *bc.Block) error {
	log.Lvlf2("Storing block %d / %s", height, block.Hash())
	index := tx.Bucket(indexBucket)
	if index.Get(heightKey(height)) != nil {
		return xerrors.Errorf("height %d: %w", height, ErrHeightTaken)
	}
	rec := block.Record()
	val, err := network.Marshal(&rec)
	if err != nil {
		return err
	}
	if err := tx.Bucket(blocksBucket).Put([]byte(block.Hash()), val); err != nil {
		return err
	}
	return index.Put(heightKey(height), []byte(block.Hash()))
}

// getFromTx returns the block identified by id, or nil if the key does not
// exist.
func (db *BlockDB) getFromTx(tx *bbolt.Tx, id string) (*bc.Block, error) {
	if id == "" {
		return nil, xerrors.New("cannot look up block with empty ID")
	}

	val := tx.Bucket(blocksBucket).Get([]byte(id))
	if val == nil {
		return nil, nil
	}

	// bbolt values are only valid for the life of the transaction.
	buf := make([]byte, len(val))
	copy(buf, val)
	_, msg, err := network.Unmarshal(buf, suite)
	if err != nil {
		return nil, err
	}
	rec, ok := msg.(*bc.Record)
	if !ok {
		return nil, xerrors.Errorf("block %s: data of wrong type", id)
	}
	return bc.FromRecord(*rec), nil
}

// StoreBlocks stores blocks at consecutive heights starting at start, in a
// single transaction.
func (db *BlockDB) StoreBlocks(start int, blocks []*bc.Block) error {
	if len(blocks) == 0 {
		return nil
	}
	err := db.Update(func(tx *bbolt.Tx) error {
		for i, block := range blocks {
			if err := db.storeToTx(tx, start+i, block); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	db.latestMutex.Lock()
	if end := start + len(blocks); end > db.height {
		db.height = end
		db.latestBlockID = blocks[len(blocks)-1].Hash()
	}
	db.latestMutex.Unlock()
	return nil
}

// Store stores a single block at height.
func (db *BlockDB) Store(height int, block *bc.Block) error {
	return db.StoreBlocks(height, []*bc.Block{block})
}

// Height returns the number of stored blocks.
func (db *BlockDB) Height() int {
	db.latestMutex.Lock()
	defer db.latestMutex.Unlock()
	return db.height
}

// GetLatest returns the block with the highest height.
func (db *BlockDB) GetLatest() (*bc.Block, error) {
	db.latestMutex.Lock()
	id := db.latestBlockID
	db.latestMutex.Unlock()
	if id == "" {
		return nil, ErrNoSuchBlock
	}
	return db.GetByID(id)
}

// GetByID returns the block with the given hash.
func (db *BlockDB) GetByID(id string) (*bc.Block, error) {
	var result *bc.Block
	err := db.View(func(tx *bbolt.Tx) error {
		block, err := db.getFromTx(tx, id)
		if err != nil {
			return err
		}
		result = block
		return nil
	})
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, xerrors.Errorf("block %s: %w", id, ErrNoSuchBlock)
	}
	return result, nil
}

// GetByIndex returns the block stored at height.
func (db *BlockDB) GetByIndex(height int) (*bc.Block, error) {
	var result *bc.Block
	err := db.View(func(tx *bbolt.Tx) error {
		id := tx.Bucket(indexBucket).Get(heightKey(height))
		if id == nil {
			return nil
		}
		block, err := db.getFromTx(tx, string(id))
		if err != nil {
			return err
		}
		result = block
		return nil
	})
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, xerrors.Errorf("height %d: %w", height, ErrNoSuchBlock)
	}
	return result, nil
}

// Blocks returns every stored block in height order.
func (db *BlockDB) Blocks() ([]*bc.Block, error) {
	var blocks []*bc.Block
	err := db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(indexBucket).ForEach(func(k, v []byte) error {
			block, err := db.getFromTx(tx, string(v))
			if err != nil {
				return err
			}
			if block == nil {
				return xerrors.Errorf("height %d: %w", binary.BigEndian.Uint64(k), ErrNoSuchBlock)
			}
			blocks = append(blocks, block)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return blocks, nil
}

// BuildIndex scans the index bucket, checks that heights are contiguous from
// zero and records the latest block.
func (db *BlockDB) BuildIndex() error {
	height := 0
	var latest string
	err := db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(indexBucket)
		if b == nil {
			return xerrors.New("missing bucket")
		}
		return b.ForEach(func(k, v []byte) error {
			if len(k) != 8 || binary.BigEndian.Uint64(k) != uint64(height) {
				return xerrors.Errorf("index gap at height %d", height)
			}
			log.Lvlf3("Loading block %d / %s", height, v)
			latest = string(v)
			height++
			return nil
		})
	})
	if err != nil {
		return err
	}
	db.latestMutex.Lock()
	db.height = height
	db.latestBlockID = latest
	db.latestMutex.Unlock()
	return nil
}
