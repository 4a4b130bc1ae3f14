package beaconsetup

import (
	"crypto/sha256"
	"time"

	"github.com/drand/ledger-beacon/common/address"
	"github.com/drand/ledger-beacon/common/chaintypes"
	"github.com/drand/ledger-beacon/internal/dkgmgr"
)

// triggerKey hashes (members, roundStart, roundEnd) for StartNewCabinet's
// duplicate-trigger prevention, per spec.md §4.3.
func triggerKey(members []address.Address, roundStart, roundEnd uint64) address.Digest {
	h := sha256.New()
	for _, m := range members {
		h.Write(m[:])
	}
	var buf [16]byte
	be64(buf[:8], roundStart)
	be64(buf[8:], roundEnd)
	h.Write(buf[:])
	var out address.Digest
	copy(out[:], h.Sum(nil))
	return out
}

func be64(b []byte, v uint64) {
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
}

// attempt is the ephemeral per-round-window state a single DKG run
// accumulates as it walks the state machine. Thrown away on RESET/abort.
type attempt struct {
	members              []address.Address
	roundStart, roundEnd uint64
	threshold            int
	manager              *dkgmgr.DkgManager

	startReferenceTimepoint time.Time
	timespan                time.Duration
	stateEnteredAt          time.Time
	resetCount              int // RESET cycles this attempt has already been through

	connected       map[address.Address]struct{}
	contributedConn map[address.Address]struct{}

	notarisationEnabled bool
	notarKeys           map[address.Address]chaintypes.NotarisationKey

	ownCommits  [][]byte // this node's own Pedersen commitments, kept to rebroadcast at qual phase
	coeffsFrom  map[address.Address][][]byte
	sharesAdded map[address.Address]struct{}

	qualCoeffsFromRaw map[address.Address][][]byte

	complaintsFrom map[address.Address][]address.Address
	answersFrom    map[address.Address]sharesMessage
	qual           []address.Address

	qualComplaintsFrom map[address.Address][]address.Address

	finalConfirmations map[address.Address][]byte // member -> ECDSA sig over digest
	digest             address.Digest

	groupPublicKey []byte
	skeleton       chaintypes.BlockEntropy
	skeletonBuilt  bool

	// one-shot entry actions, so Step doesn't resend on every tick.
	connectionsSent     bool
	notarKeySent        bool
	sharesSent          bool
	complaintsSent      bool
	complaintAnswerSent bool
	qualSharesSent      bool
	qualComplaintsSent  bool
	finalStateSent      bool
}

func newAttempt(members []address.Address, roundStart, roundEnd uint64, threshold int, mgr *dkgmgr.DkgManager, notarisationEnabled bool) *attempt {
	return &attempt{
		members:             members,
		roundStart:          roundStart,
		roundEnd:            roundEnd,
		threshold:           threshold,
		manager:             mgr,
		connected:           map[address.Address]struct{}{},
		contributedConn:     map[address.Address]struct{}{},
		notarisationEnabled: notarisationEnabled,
		notarKeys:           map[address.Address]chaintypes.NotarisationKey{},
		coeffsFrom:          map[address.Address][][]byte{},
		sharesAdded:         map[address.Address]struct{}{},
		qualCoeffsFromRaw:   map[address.Address][][]byte{},
		complaintsFrom:      map[address.Address][]address.Address{},
		answersFrom:         map[address.Address]sharesMessage{},
		qualComplaintsFrom:  map[address.Address][]address.Address{},
		finalConfirmations:  map[address.Address][]byte{},
	}
}

// qualSize is spec.md §4.3's policy: max(ceil(2n/3), t+1).
func qualSize(n, t int) int {
	twoThirds := (2*n + 2) / 3
	if t+1 > twoThirds {
		return t + 1
	}
	return twoThirds
}

// connectionReadyThreshold is the count of contributed ConnectionsMessages
// needed before this node considers the network "ready": ceil(n/3)+t+1-1.
func connectionReadyThreshold(n, t int) int {
	return (n+2)/3 + t + 1 - 1
}
