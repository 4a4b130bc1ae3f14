package beaconsvc

import (
	"time"

	"github.com/drand/ledger-beacon/common/address"
	"github.com/drand/ledger-beacon/common/chaintypes"
	"github.com/drand/ledger-beacon/internal/beaconsetup"
	"github.com/drand/ledger-beacon/internal/dkgmgr"
	"github.com/drand/ledger-beacon/internal/transport"
)

// aeonRun is the ephemeral per-aeon state the production loop accumulates
// as it walks blocks [aeon.RoundStart, aeon.RoundEnd].
type aeonRun struct {
	aeon     chaintypes.Aeon
	manager  *dkgmgr.DkgManager
	skeleton chaintypes.BlockEntropy // pre-filled aeon-beginning fields for RoundStart

	blockNumber   uint64
	previousGroup []byte // previous block's group_signature, the SHA-256 preimage
	randomCounter uint64 // random_number_, incremented on every peer pick

	verifyAttempts int

	pendingPeer    address.Address
	pendingPromise transport.RPCPromise
	pendingSince   time.Time
}

func newAeonRun(unit beaconsetup.AeonExecutionUnit, previousGroupSignature []byte) *aeonRun {
	return &aeonRun{
		aeon:          unit.Aeon,
		manager:       unit.Manager,
		skeleton:      unit.Skeleton,
		blockNumber:   unit.Aeon.RoundStart,
		previousGroup: previousGroupSignature,
	}
}

// qual returns the aeon's qualified set if non-empty (the normal
// case), falling back to the full membership - defensive only, since
// BeaconSetupService never hands over a unit with an empty Qualified set.
func (r *aeonRun) qual() []address.Address {
	if len(r.skeleton.Qualified) > 0 {
		return r.skeleton.Qualified
	}
	return r.aeon.Members
}
