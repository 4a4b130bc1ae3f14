package store

import (
	"sync"

	bolt "go.etcd.io/bbolt"

	"github.com/drand/ledger-beacon/common/address"
	"github.com/drand/ledger-beacon/common/chaintypes"
	"github.com/drand/ledger-beacon/common/log"
	"github.com/drand/ledger-beacon/internal/mainchain"
	"github.com/drand/ledger-beacon/wire"
)

var blocksBucket = []byte("blocks")
var blockMetaBucket = []byte("block_meta")
var headKey = []byte("head")

// BlockStore is MainChain's durable tier: confirmed blocks keyed by hash,
// plus the head pointer, per spec.md §4.6's "content-addressed object
// store plus a head pointer".
//
//nolint:gocritic // belt-and-suspenders mutex around bbolt's own transaction locking.
type BlockStore struct {
	sync.Mutex
	db  *bolt.DB
	log log.Logger
}

// NewBlockStore wraps an already-open bolt.DB (see Open), creating its
// buckets if they don't exist yet.
func NewBlockStore(db *bolt.DB, l log.Logger) (*BlockStore, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(blocksBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(blockMetaBucket)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &BlockStore{db: db, log: l.Named("blockstore")}, nil
}

// PutBlock implements mainchain.PersistentStore. WARNING: like the
// teacher's Put, it does not check for an existing entry and will
// overwrite it.
func (s *BlockStore) PutBlock(block *chaintypes.Block) error {
	s.Lock()
	defer s.Unlock()
	return s.db.Update(func(tx *bolt.Tx) error {
		err := tx.Bucket(blocksBucket).Put(block.Hash[:], wire.EncodeBlockFull(*block))
		if err != nil {
			s.log.Warnw("storing block", "hash", block.Hash, "err", err)
		}
		return err
	})
}

// GetBlock looks up a previously-flushed block by hash, for LOAD_PERSISTENT_DB
// startup and sync-side lookups that miss the in-memory DAG.
func (s *BlockStore) GetBlock(hash address.Digest) (*chaintypes.Block, bool, error) {
	s.Lock()
	defer s.Unlock()
	var blk chaintypes.Block
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(blocksBucket).Get(hash[:])
		if v == nil {
			return nil
		}
		decoded, err := wire.DecodeBlockFull(v)
		if err != nil {
			return err
		}
		blk, found = decoded, true
		return nil
	})
	if err != nil || !found {
		return nil, found, err
	}
	return &blk, true, nil
}

// SetHead implements mainchain.PersistentStore.
func (s *BlockStore) SetHead(hash address.Digest) error {
	s.Lock()
	defer s.Unlock()
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(blockMetaBucket).Put(headKey, hash[:])
	})
}

// Head returns the most recently set head hash, for LOAD_PERSISTENT_DB
// startup.
func (s *BlockStore) Head() (address.Digest, bool, error) {
	s.Lock()
	defer s.Unlock()
	var digest address.Digest
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(blockMetaBucket).Get(headKey)
		if v == nil {
			return nil
		}
		copy(digest[:], v)
		found = true
		return nil
	})
	return digest, found, err
}

// Close releases the underlying database handle.
func (s *BlockStore) Close() error {
	return s.db.Close()
}

var _ mainchain.PersistentStore = (*BlockStore)(nil)
