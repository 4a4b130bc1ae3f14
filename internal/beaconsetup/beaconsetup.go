// Package beaconsetup implements BeaconSetupService, spec.md §4.3's
// single-threaded, cooperatively-scheduled DKG orchestrator: it drives one
// DkgManager through IDLE/RESET/CONNECT_TO_ALL/.../BEACON_READY on wall
// clock deadlines, exchanging setup messages over ReliableBroadcast (and,
// for the private share pairs, direct transport.Unicast), and hands a
// completed AeonExecutionUnit to BeaconService when an aeon goes live.
//
// Grounded on the teacher's internal/dkg state machine (state_machine.go's
// Status enum and RESET/abort handling, dkg_process.go's queued-request
// pattern) generalized from the teacher's propose/accept/execute group
// membership protocol to this module's threshold VSS handshake - the
// states themselves, the deadline/backoff arithmetic and the message set
// are spec.md's, since the teacher's DKG never runs a Pedersen VSS of its
// own (it drives kyber's single-shot DistKeyGenerator instead).
package beaconsetup

import (
	"sync"
	"time"

	"github.com/drand/ledger-beacon/common/address"
	"github.com/drand/ledger-beacon/common/chaintypes"
	"github.com/drand/ledger-beacon/common/log"
	"github.com/drand/ledger-beacon/crypto/bls"
	"github.com/drand/ledger-beacon/internal/dkgmgr"
	"github.com/drand/ledger-beacon/internal/rbc"
	"github.com/drand/ledger-beacon/internal/reactor"
	"github.com/drand/ledger-beacon/internal/transport"
)

// State is one node of spec.md §4.3's state machine.
type State int

const (
	StateIdle State = iota
	StateReset
	StateConnectToAll
	StateWaitForReadyConnections
	StateWaitForNotarisationKeys
	StateWaitForShares
	StateWaitForComplaints
	StateWaitForComplaintAnswers
	StateWaitForQualShares
	StateWaitForQualComplaints
	StateWaitForReconstructionShares
	StateComputePublicSignature
	StateDryRunSigning
	StateBeaconReady
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateReset:
		return "RESET"
	case StateConnectToAll:
		return "CONNECT_TO_ALL"
	case StateWaitForReadyConnections:
		return "WAIT_FOR_READY_CONNECTIONS"
	case StateWaitForNotarisationKeys:
		return "WAIT_FOR_NOTARISATION_KEYS"
	case StateWaitForShares:
		return "WAIT_FOR_SHARES"
	case StateWaitForComplaints:
		return "WAIT_FOR_COMPLAINTS"
	case StateWaitForComplaintAnswers:
		return "WAIT_FOR_COMPLAINT_ANSWERS"
	case StateWaitForQualShares:
		return "WAIT_FOR_QUAL_SHARES"
	case StateWaitForQualComplaints:
		return "WAIT_FOR_QUAL_COMPLAINTS"
	case StateWaitForReconstructionShares:
		return "WAIT_FOR_RECONSTRUCTION_SHARES"
	case StateComputePublicSignature:
		return "COMPUTE_PUBLIC_SIGNATURE"
	case StateDryRunSigning:
		return "DRY_RUN_SIGNING"
	case StateBeaconReady:
		return "BEACON_READY"
	default:
		return "UNKNOWN"
	}
}

// AeonExecutionUnit bundles a completed aeon's membership descriptor, the
// DkgManager now holding its secret share and group key, and a skeleton
// BlockEntropy for the aeon's first block (confirmations/digest already
// filled in; GroupSignature left for BeaconService to produce).
type AeonExecutionUnit struct {
	Aeon     chaintypes.Aeon
	Manager  *dkgmgr.DkgManager
	Skeleton chaintypes.BlockEntropy
}

// ReadyFunc receives a completed AeonExecutionUnit - BeaconService's
// queue-and-dequeue entry point, per spec.md §4.4.
type ReadyFunc func(unit AeonExecutionUnit)

// IdentityDirectory resolves a cabinet member's verification keys for
// setup-message validation.
type IdentityDirectory interface {
	Identity(addr address.Address) (address.Identity, bool)
}

// ECDSASigner is the local node's ECDSA signing capability, used to sign
// NotarisationKeyMessage (proof of possession) and FinalStateMessage.
type ECDSASigner interface {
	Sign(digest []byte) []byte
}

// Config holds BeaconSetupService's tunables.
type Config struct {
	CabinetSizeBuckets  []CabinetSizeBucket
	MaxTimespanMultiple float64 // bound on backoff growth, per spec.md §4.3
	NotarisationEnabled bool
}

// DefaultConfig returns sensible defaults: the built-in cabinet-size/time
// lookup table and a 6x bound on backoff growth.
func DefaultConfig() Config {
	return Config{
		CabinetSizeBuckets:  defaultCabinetSizeBuckets,
		MaxTimespanMultiple: 6,
	}
}

// Service is one node's BeaconSetupService instance.
type Service struct {
	cfg    Config
	clock  clock
	log    log.Logger
	scheme *bls.Scheme
	self   address.Identity
	signer ECDSASigner

	net        transport.Network
	bcast      *rbc.RBC
	identities IdentityDirectory
	onReady    ReadyFunc

	mu                   sync.Mutex
	state                State
	current              *attempt
	queued               []request
	seen                 map[address.Digest]struct{} // StartNewCabinet dedup, per (round_start,round_end,members)
	mostRecentAbortBelow uint64
}

// clock is the subset of clockwork.Clock this package needs; kept narrow so
// tests can fake it without importing clockwork.
type clock interface {
	Now() time.Time
}

type request struct {
	members              []address.Address
	roundStart, roundEnd uint64
	key                  address.Digest
}

// New builds a Service. Attach must be called before Step does anything
// useful.
func New(cfg Config, scheme *bls.Scheme, self address.Identity, signer ECDSASigner, l log.Logger) *Service {
	return &Service{
		cfg:    cfg,
		log:    l.Named("beaconsetup"),
		scheme: scheme,
		self:   self,
		signer: signer,
		state:  StateIdle,
		seen:   map[address.Digest]struct{}{},
	}
}

// Attach wires the transport/broadcast/identity dependencies and the
// beacon-ready callback. Must be called once before Run.
func (s *Service) Attach(net transport.Network, bcast *rbc.RBC, identities IdentityDirectory, onReady ReadyFunc) {
	s.net = net
	s.bcast = bcast
	s.identities = identities
	s.onReady = onReady
}

// SetClock overrides the wall clock, for deterministic tests.
func (s *Service) SetClock(c clock) { s.clock = c }

func (s *Service) now() time.Time {
	if s.clock == nil {
		return time.Now()
	}
	return s.clock.Now()
}

// StartNewCabinet queues a new DKG attempt spanning [roundStart, roundEnd]
// for members, per Consensus.UpdateCurrentBlock. Duplicate triggers -
// same (roundStart, roundEnd, members) - are silently dropped.
func (s *Service) StartNewCabinet(members []address.Address, roundStart, roundEnd uint64) {
	key := triggerKey(members, roundStart, roundEnd)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.seen[key]; dup {
		return
	}
	s.seen[key] = struct{}{}
	s.queued = append(s.queued, request{members: members, roundStart: roundStart, roundEnd: roundEnd, key: key})
}

// AbortBelow aborts any in-progress attempt whose round_start is strictly
// below round.
func (s *Service) AbortBelow(round uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mostRecentAbortBelow = round
	if s.current != nil && s.current.roundStart < round {
		s.log.Infow("aborting superseded DKG attempt", "round_start", s.current.roundStart, "below", round)
		s.current = nil
		s.state = StateIdle
	}
}

// MostRecentSeen is advisory; BeaconSetupService does not act on it beyond
// logging, per spec.md §4.3 (BeaconService is the consumer that matters).
func (s *Service) MostRecentSeen(round uint64) {
	s.log.Debugw("most recent round seen", "round", round)
}

var _ reactor.Task = (*Service)(nil)
