package node

import (
	"sync"

	"github.com/drand/ledger-beacon/common/address"
	"github.com/drand/ledger-beacon/common/chaintypes"
)

// Directory is a mutable, concurrency-safe address.Identity lookup shared
// between BeaconSetupService and Consensus - both only need the read side
// (IdentityDirectory), populated as CONNECT_TO_ALL/WAIT_FOR_NOTARISATION_KEYS
// learns new members.
type Directory struct {
	mu sync.RWMutex
	m  map[address.Address]address.Identity
}

// NewDirectory builds a Directory pre-seeded with known members.
func NewDirectory(known ...address.Identity) *Directory {
	d := &Directory{m: make(map[address.Address]address.Identity, len(known))}
	for _, id := range known {
		d.m[id.Address()] = id
	}
	return d
}

// Identity implements beaconsetup.IdentityDirectory and
// consensus.IdentityDirectory.
func (d *Directory) Identity(addr address.Address) (address.Identity, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	id, ok := d.m[addr]
	return id, ok
}

// Set records or replaces a member's identity.
func (d *Directory) Set(id address.Identity) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.m[id.Address()] = id
}

// StaticStakeSource is a fixed StakeSnapshotSource for deployments where
// stake comes from a snapshot taken once at genesis rather than a live
// external ledger query - the ledger integration spec.md leaves out of
// scope. A real deployment replaces this with an adapter reading the
// actual staking ledger at the given block.
type StaticStakeSource struct {
	snapshot map[address.Address]uint64
}

// NewStaticStakeSource builds a StaticStakeSource from a fixed weight map.
func NewStaticStakeSource(weights map[address.Address]uint64) *StaticStakeSource {
	cp := make(map[address.Address]uint64, len(weights))
	for k, v := range weights {
		cp[k] = v
	}
	return &StaticStakeSource{snapshot: cp}
}

// StakeSnapshotAt implements consensus.StakeSnapshotSource, ignoring block
// since this source has only one snapshot to give.
func (s *StaticStakeSource) StakeSnapshotAt(_ *chaintypes.Block) chaintypes.StakeSnapshot {
	out := make(chaintypes.StakeSnapshot, len(s.snapshot))
	for k, v := range s.snapshot {
		out[k] = v
	}
	return out
}
