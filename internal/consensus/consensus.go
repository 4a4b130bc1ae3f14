// Package consensus implements the weight formula, block-validity rules and
// next-block production logic of spec.md §4.5: the component that turns a
// stake snapshot plus a DKG-qualified set into a deterministic leader
// schedule, and enforces that schedule on every block the main chain
// accepts. Grounded on the teacher's beacon-round validity checks in
// core/beacon.go (Verify, the "is this the beacon this chain expects"
// shape), generalized from a single linear round number to this module's
// weighted DAG of miner-produced blocks.
package consensus

import (
	"github.com/jonboulle/clockwork"

	"github.com/drand/ledger-beacon/common/address"
	"github.com/drand/ledger-beacon/common/chaintypes"
	"github.com/drand/ledger-beacon/common/log"
	"github.com/drand/ledger-beacon/crypto/bls"
	"github.com/drand/ledger-beacon/crypto/ecdsa"
)

// EntropyStatus is BeaconService's answer to a GenerateEntropy lookup.
type EntropyStatus int

const (
	EntropyOK EntropyStatus = iota
	EntropyFailed
	EntropyNotReady
)

// BeaconSource is the subset of BeaconService that GenerateNextBlock needs.
type BeaconSource interface {
	GenerateEntropy(blockNumber uint64) (EntropyStatus, chaintypes.BlockEntropy)
}

// SetupNotifier is the subset of BeaconSetupService/BeaconService that
// UpdateCurrentBlock drives when an aeon-trigger block lands.
type SetupNotifier interface {
	StartNewCabinet(members []address.Address, roundStart, roundEnd uint64)
	AbortBelow(round uint64)
	MostRecentSeen(round uint64)
}

// StakeSnapshotSource supplies the stake snapshot a trigger block's cabinet
// is derived from; out of this package's scope (main-chain state or an
// external ledger query), so it is injected.
type StakeSnapshotSource interface {
	StakeSnapshotAt(block *chaintypes.Block) chaintypes.StakeSnapshot
}

// IdentityDirectory resolves a cabinet member's full Identity (including
// its ECDSA verification key) from its address; populated by whatever
// component learned it during BeaconSetupService's CONNECT_TO_ALL/
// WAIT_FOR_NOTARISATION_KEYS phases.
type IdentityDirectory interface {
	Identity(addr address.Address) (address.Identity, bool)
}

// Consensus holds this node's cabinet history and validity/production
// logic for a single main chain.
type Consensus struct {
	cfg       Config
	clock     clockwork.Clock
	log       log.Logger
	scheme    *bls.Scheme
	history   *CabinetHistory
	stakes    StakeSnapshotSource
	whitelist map[address.Address]struct{}

	beacon       BeaconSource
	setup        SetupNotifier
	identities   IdentityDirectory
	notarisation NotarisationProvider
	self         address.Identity
	current      currentBlockState
}

// New builds a Consensus. whitelist may be nil to admit every staked
// address; beacon/setup may be nil until those components are wired, since
// only GenerateNextBlock and UpdateCurrentBlock need them.
func New(cfg Config, scheme *bls.Scheme, stakes StakeSnapshotSource, identities IdentityDirectory, whitelist map[address.Address]struct{}, self address.Identity, l log.Logger) *Consensus {
	return &Consensus{
		cfg:        cfg,
		clock:      clockwork.NewRealClock(),
		log:        l.Named("consensus"),
		scheme:     scheme,
		history:    NewCabinetHistory(cfg.CabinetHistoryLength),
		stakes:     stakes,
		identities: identities,
		whitelist:  whitelist,
		self:       self,
	}
}

// SetClock overrides the real clock with an injectable one, for tests.
func (c *Consensus) SetClock(clock clockwork.Clock) {
	c.clock = clock
}

// Attach wires the beacon/setup dependencies once those components exist.
func (c *Consensus) Attach(beacon BeaconSource, setup SetupNotifier) {
	c.beacon = beacon
	c.setup = setup
}

// AttachNotarisation wires the optional aggregate-notarisation provider.
func (c *Consensus) AttachNotarisation(n NotarisationProvider) {
	c.notarisation = n
}

// CabinetHistory exposes the underlying bounded cabinet map, e.g. for a
// status RPC.
func (c *Consensus) CabinetHistory() *CabinetHistory {
	return c.history
}

// confirmationQuorum returns ceil(2n/3), the minimum confirmation count an
// aeon-beginning block's qualified set must carry.
func confirmationQuorum(n int) int {
	return (2*n + 2) / 3
}

// verifyECDSA is a small indirection so tests can swap in a fixed verifier;
// production callers always use crypto/ecdsa.Verify.
var verifyECDSA = ecdsa.Verify
