// Package store implements the persistent tier spec.md §4.6 and §4.4 call
// for: a content-addressed block object store plus a "head" pointer for
// MainChain, and an optional per-aeon HEAD record for BeaconService to
// resume from after a crash restart.
//
// Grounded on the teacher's chain/boltdb.BoltStore: one bolt.DB, one bucket
// per concern created up front, a thin mutex wrapping each transaction for
// the same belt-and-suspenders reason the teacher keeps one despite bbolt
// already serializing its own writers. Where the teacher stores one
// JSON-encoded linear beacon round per key, this module stores one
// protowire-encoded DAG block per key (via wire.EncodeBlockFull, spec.md
// §6's fixed wire format) plus a separate gob-encoded aeon-resume record
// that has no such external contract.
package store

import (
	"fmt"
	"os"
	"path/filepath"

	bolt "go.etcd.io/bbolt"
)

// Mode selects how Open behaves relative to an existing database file,
// mirroring spec.md §4.6's CREATE_PERSISTENT_DB/LOAD_PERSISTENT_DB storage
// modes (IN_MEMORY_DB needs no file at all - callers simply pass a nil
// PersistentStore to mainchain.New in that mode).
type Mode int

const (
	CreatePersistentDB Mode = iota
	LoadPersistentDB
)

// boltFileName matches the teacher's BoltFileName constant in spirit: one
// fixed file name per data directory.
const boltFileName = "ledger-beacon.db"

// openPerm mirrors the teacher's BoltStoreOpenPerm.
const openPerm = 0o660

// Open opens (or creates) the bolt database backing both BlockStore and
// BeaconStateStore under folder, enforcing mode's existence contract.
func Open(mode Mode, folder string) (*bolt.DB, error) {
	path := filepath.Join(folder, boltFileName)
	switch mode {
	case LoadPersistentDB:
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("store: load persistent db: %w", err)
		}
	case CreatePersistentDB:
		if _, err := os.Stat(path); err == nil {
			return nil, fmt.Errorf("store: persistent db already exists at %s", path)
		}
	}
	return bolt.Open(path, openPerm, nil)
}
