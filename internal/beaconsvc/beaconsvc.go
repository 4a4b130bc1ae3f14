// Package beaconsvc implements BeaconService, spec.md §4.4's per-block
// entropy production loop: once BeaconSetupService hands over a completed
// AeonExecutionUnit, it cycles PREPARE_ENTROPY_GENERATION ->
// COLLECT_SIGNATURES <-> VERIFY_SIGNATURES -> COMPLETE across every block
// of the aeon, merging threshold signature shares pulled from peer nodes
// until the group signature recovers, then waits for the next aeon.
//
// Grounded on the teacher's beacon.Handler (beacon/beacon.go): the
// cache-of-partial-signatures-by-round shape, the single mutex guarding it
// against both the RPC handler and the round loop, and "genesis seed as
// round 0's signature" bootstrapping for SHA-256(previous group signature)
// all come from there. The teacher drives its round loop off a live
// clockwork.Ticker and resigns/broadcasts instead of pulling shares from a
// single randomly-chosen peer per round; this module instead implements
// spec.md §4.4's pull-based COLLECT_SIGNATURES/VERIFY_SIGNATURES handshake
// on top of the same reactor.Task cooperative-step model as BeaconSetupService.
package beaconsvc

import (
	"sync"
	"time"

	"github.com/drand/ledger-beacon/common/address"
	"github.com/drand/ledger-beacon/common/chaintypes"
	"github.com/drand/ledger-beacon/common/log"
	"github.com/drand/ledger-beacon/crypto/bls"
	"github.com/drand/ledger-beacon/internal/beaconsetup"
	"github.com/drand/ledger-beacon/internal/consensus"
	"github.com/drand/ledger-beacon/internal/reactor"
	"github.com/drand/ledger-beacon/internal/transport"
)

// State is one node of spec.md §4.4's per-block state machine.
type State int

const (
	StateWaitForSetupCompletion State = iota
	StatePrepareEntropyGeneration
	StateCollectSignatures
	StateVerifySignatures
	StateComplete
)

func (s State) String() string {
	switch s {
	case StateWaitForSetupCompletion:
		return "WAIT_FOR_SETUP_COMPLETION"
	case StatePrepareEntropyGeneration:
		return "PREPARE_ENTROPY_GENERATION"
	case StateCollectSignatures:
		return "COLLECT_SIGNATURES"
	case StateVerifySignatures:
		return "VERIFY_SIGNATURES"
	case StateComplete:
		return "COMPLETE"
	default:
		return "UNKNOWN"
	}
}

// SignatureInformation is what GetSignatureShares(round) returns: every
// share this node currently holds for that round's message, keyed by the
// contributing member.
type SignatureInformation struct {
	BlockNumber uint64
	Shares      map[address.Address][]byte
}

// Persister optionally durably records the active execution unit under key
// "HEAD" on aeon roll-over, per spec.md §4.4, so a crash-restart can resume
// mid-aeon without re-running DKG.
type Persister interface {
	SaveHead(unit beaconsetup.AeonExecutionUnit) error
}

// Config holds BeaconService's tunables.
type Config struct {
	// EntropyLeadBlocks bounds how far ahead of the most-recently-seen
	// main-chain round this service will pre-generate entropy.
	EntropyLeadBlocks uint64
	// RPCTimeout bounds how long VERIFY_SIGNATURES waits for one
	// GET_SIGNATURE_SHARES round-trip before giving up on that peer.
	RPCTimeout time.Duration
	// MaxVerifyAttemptsPerBlock bounds COLLECT/VERIFY retries before a
	// block is abandoned and the service resets to WAIT_FOR_SETUP_COMPLETION -
	// the source's own TODO calls out this loop as otherwise unbounded.
	MaxVerifyAttemptsPerBlock int
	// CacheWindowMultiple sizes the completed/in-flight caches as a
	// multiple of the aeon's block span, per spec.md §4.4 COMPLETE.
	CacheWindowMultiple uint64
}

// DefaultConfig returns spec.md §4.4's stated defaults.
func DefaultConfig() Config {
	return Config{
		EntropyLeadBlocks:         2,
		RPCTimeout:                200 * time.Millisecond,
		MaxVerifyAttemptsPerBlock: 8,
		CacheWindowMultiple:       3,
	}
}

// clock is the subset of clockwork.Clock this package needs.
type clock interface {
	Now() time.Time
}

// Service is one node's BeaconService instance.
type Service struct {
	cfg    Config
	clock  clock
	log    log.Logger
	scheme *bls.Scheme
	self   address.Identity

	net       transport.Network
	persister Persister

	mu                    sync.Mutex
	state                 State
	queued                []beaconsetup.AeonExecutionUnit
	current               *aeonRun
	signaturesBeingBuilt  map[uint64]*SignatureInformation
	completedBlockEntropy map[uint64]chaintypes.BlockEntropy
	furthestCompleted     uint64
	mostRecentRoundSeen   uint64
}

// New builds a Service. Attach must be called before Step does anything.
func New(cfg Config, scheme *bls.Scheme, self address.Identity, l log.Logger) *Service {
	return &Service{
		cfg:                   cfg,
		log:                   l.Named("beaconsvc"),
		scheme:                scheme,
		self:                  self,
		state:                 StateWaitForSetupCompletion,
		signaturesBeingBuilt:  map[uint64]*SignatureInformation{},
		completedBlockEntropy: map[uint64]chaintypes.BlockEntropy{},
	}
}

// Attach wires the transport dependency and the optional HEAD persister.
func (s *Service) Attach(net transport.Network, persister Persister) {
	s.net = net
	s.persister = persister
}

// SetClock overrides the wall clock, for deterministic tests.
func (s *Service) SetClock(c clock) { s.clock = c }

func (s *Service) now() time.Time {
	if s.clock == nil {
		return time.Now()
	}
	return s.clock.Now()
}

// AeonReady is the beaconsetup.ReadyFunc this service registers with
// BeaconSetupService: a completed AeonExecutionUnit is queued for pickup
// the next time Step finds this service idle in WAIT_FOR_SETUP_COMPLETION.
func (s *Service) AeonReady(unit beaconsetup.AeonExecutionUnit) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queued = append(s.queued, unit)
}

// GenerateEntropy implements consensus.BeaconSource.
func (s *Service) GenerateEntropy(blockNumber uint64) (consensus.EntropyStatus, chaintypes.BlockEntropy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.completedBlockEntropy[blockNumber]; ok {
		return consensus.EntropyOK, e
	}
	if blockNumber <= s.furthestCompleted {
		return consensus.EntropyFailed, chaintypes.BlockEntropy{}
	}
	return consensus.EntropyNotReady, chaintypes.BlockEntropy{}
}

// MostRecentSeen implements consensus.SetupNotifier's companion call: the
// main-chain coordinator's advisory on how far production has progressed.
// Per spec.md §4.4's out-of-sync guard, a round past the current aeon's end
// aborts production back to WAIT_FOR_SETUP_COMPLETION.
func (s *Service) MostRecentSeen(round uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mostRecentRoundSeen = round
	if s.current != nil && round > s.current.aeon.RoundEnd {
		s.log.Infow("main chain ahead of aeon end, resetting beacon production",
			"round", round, "aeon_end", s.current.aeon.RoundEnd)
		s.current = nil
		s.state = StateWaitForSetupCompletion
	}
}

// GetSignatureShares is the beacon-RPC endpoint: it returns whatever shares
// this node currently holds for round, or an empty struct if none.
func (s *Service) GetSignatureShares(round uint64) SignatureInformation {
	s.mu.Lock()
	defer s.mu.Unlock()
	if info, ok := s.signaturesBeingBuilt[round]; ok {
		cp := SignatureInformation{BlockNumber: info.BlockNumber, Shares: make(map[address.Address][]byte, len(info.Shares))}
		for k, v := range info.Shares {
			cp.Shares[k] = v
		}
		return cp
	}
	return SignatureInformation{BlockNumber: round}
}

var _ reactor.Task = (*Service)(nil)
var _ consensus.BeaconSource = (*Service)(nil)
