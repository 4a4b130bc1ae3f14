// Package mainchain implements MainChain, the content-addressed block DAG
// described in spec.md §4.6: insertion with loose-block resolution,
// heaviest-tip tracking with a deterministic tie-break, fork switching,
// and the read-side queries a syncing peer or RPC handler needs.
//
// Grounded on the teacher's chain.Store/boltdb layering (a single-writer
// object store keyed by round, with a bolt-backed persistent tier and a
// separate in-memory cursor), generalized from drand's single linear
// beacon chain to this module's weighted, possibly-forking block DAG.
// Where the teacher's Go code only ever appends to one chain, this
// package's insertion path is new: grounded directly on spec.md §4.6's
// explicit ten-step algorithm rather than a teacher analogue.
package mainchain

import (
	"sync"

	"github.com/drand/ledger-beacon/common/address"
	"github.com/drand/ledger-beacon/common/chaintypes"
	"github.com/drand/ledger-beacon/common/log"
)

// AddStatus is AddBlock's outcome.
type AddStatus int

const (
	Added AddStatus = iota
	Loose
	Duplicate
	Invalid
)

// Validator is the subset of Consensus that AddBlock needs to check a
// candidate block against its parent before admitting it.
type Validator interface {
	ValidBlock(prev, block *chaintypes.Block) error
}

// PersistentStore is the optional durable tier a confirmed block is
// flushed to once it is buried deep enough under the heaviest tip not to
// be reasonably at risk of a reorg; see store.BlockStore.
type PersistentStore interface {
	PutBlock(block *chaintypes.Block) error
	SetHead(hash address.Digest) error
}

// Config holds MainChain's tunables.
type Config struct {
	// BlockConfirmation is the depth below the heaviest tip at which a
	// block is considered safe to flush to PersistentStore. Default 10
	// per spec.md §4.6.
	BlockConfirmation uint64
}

// DefaultConfig returns spec.md §4.6's default block_confirmation of 10.
func DefaultConfig() Config {
	return Config{BlockConfirmation: 10}
}

// MainChain is the block DAG manager. The zero value is not usable; build
// one with New.
//
// Concurrency: a single mutex guards blocks/tips/heaviest, mirroring the
// teacher's single-writer store discipline; Go has no re-entrant mutex, so
// where spec.md describes the insertion/loose-resolution path re-entering
// the lock, this implementation instead keeps the lock held for the whole
// operation and factors the recursive logic into unlocked helper methods
// called only while already holding it (insertLocked/resolveLooseLocked).
type MainChain struct {
	mu       sync.Mutex
	blocks   map[address.Digest]*chaintypes.Block
	tips     map[address.Digest]chaintypes.Tip
	heaviest chaintypes.HeaviestTip

	looseMu     sync.Mutex
	looseBlocks map[address.Digest][]*chaintypes.Block

	genesis address.Digest
	cfg     Config
	log     log.Logger
	valid   Validator
	persist PersistentStore
}

// New builds an empty MainChain seeded with genesis. persist may be nil
// for IN_MEMORY_DB mode.
func New(cfg Config, genesis *chaintypes.Block, valid Validator, persist PersistentStore, l log.Logger) *MainChain {
	mc := &MainChain{
		blocks:      map[address.Digest]*chaintypes.Block{genesis.Hash: genesis},
		tips:        map[address.Digest]chaintypes.Tip{genesis.Hash: {TotalWeight: genesis.Weight}},
		heaviest:    chaintypes.HeaviestTip{Weight: genesis.Weight, Hash: genesis.Hash},
		looseBlocks: map[address.Digest][]*chaintypes.Block{},
		genesis:     genesis.Hash,
		cfg:         cfg,
		log:         l.Named("mainchain"),
		valid:       valid,
		persist:     persist,
	}
	genesis.TotalWeight = genesis.Weight
	return mc
}
