// Package rbc implements ReliableBroadcast: a Bracha-style echo/ready
// broadcast that, for a cabinet of n participants with f Byzantine faults
// and n >= 3f+1, guarantees every correct participant eventually delivers
// the same payload for a given (origin, tag) pair, or none at all.
//
// Grounded on the teacher's internal/dkg.echoBroadcast (broadcast.go): the
// dedup-by-hash idea and the "sendout once, rebroadcast on first sight"
// shape come from there. This implementation adds the echo/ready
// amplification rounds the teacher's simpler rebroadcast-once scheme
// doesn't need, since the teacher accepts a weaker, timing-dependent
// guarantee while spec.md §4.1 requires the stronger Bracha agreement
// property.
package rbc

import (
	"context"
	"encoding/hex"
	"sync"

	lru "github.com/hashicorp/golang-lru"

	"github.com/drand/ledger-beacon/common/address"
	"github.com/drand/ledger-beacon/common/log"
	"github.com/drand/ledger-beacon/internal/transport"
)

// maxTrackedBroadcasts bounds the LRU of in-flight/delivered (origin, tag)
// states so a misbehaving cabinet member cannot grow memory unboundedly by
// spraying distinct tags.
const maxTrackedBroadcasts = 4096

// DeliverFunc is how RBC hands a validated, agreed-upon payload to the
// upper layer (BeaconSetupService), on behalf of the original broadcaster.
type DeliverFunc func(sender address.Address, tag string, payload []byte)

// RBC is one node's ReliableBroadcast endpoint.
type RBC struct {
	mu       sync.Mutex
	self     address.Address
	cabinet  map[address.Address]struct{}
	n, f     int
	enabled  bool
	net      transport.Broadcast
	log      log.Logger
	deliver  DeliverFunc
	states   *lru.Cache
	outbox   []func(context.Context) error
}

var _ transport.Inbound = (*RBC)(nil)

// New builds an RBC endpoint. The cabinet is empty until ResetCabinet is
// called; until then SetQuestion is a no-op and inbound messages are
// dropped, matching the "disabled channel" contract for an uninitialized
// instance.
func New(self address.Address, net transport.Broadcast, l log.Logger, deliver DeliverFunc) *RBC {
	cache, _ := lru.New(maxTrackedBroadcasts)
	return &RBC{
		self:    self,
		cabinet: map[address.Address]struct{}{},
		net:     net,
		log:     l.Named("rbc"),
		deliver: deliver,
		states:  cache,
	}
}

// Enable toggles message processing. A disabled channel silently drops
// inbound messages and ignores SetQuestion, per spec.md §4.1.
func (r *RBC) Enable(on bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enabled = on
}

func (r *RBC) isEnabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enabled
}

// ResetCabinet atomically replaces the cabinet and forgets all in-flight
// broadcast state, since tags are only unique within one aeon's cabinet.
func (r *RBC) ResetCabinet(members []address.Address) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cabinet = make(map[address.Address]struct{}, len(members))
	for _, m := range members {
		r.cabinet[m] = struct{}{}
	}
	r.n = len(members)
	r.f = (r.n - 1) / 3
	r.states.Purge()
	r.outbox = nil
}

// SetQuestion initiates a broadcast of payload tagged by tag, originated by
// this node. It both sends the initial VAL message and locally echoes it,
// exactly as a remote VAL would be handled on receipt.
func (r *RBC) SetQuestion(tag string, payload []byte) {
	if !r.isEnabled() {
		return
	}
	env := envelope{kind: kindVal, origin: r.self, tag: tag, payload: payload}
	r.enqueue(env)
	r.handle(context.Background(), r.self, env)
}

// GetRunnable returns the pending-send flush function the reactor should
// invoke on its next tick. RBC never performs network I/O inline from
// SetQuestion/Deliver so that a single-threaded cooperative scheduler stays
// in control of when sends actually happen.
func (r *RBC) GetRunnable() func(ctx context.Context) {
	return func(ctx context.Context) {
		r.mu.Lock()
		pending := r.outbox
		r.outbox = nil
		r.mu.Unlock()
		for _, send := range pending {
			if err := send(ctx); err != nil {
				r.log.Warnw("broadcast send failed", "err", err)
			}
		}
	}
}

func (r *RBC) enqueue(env envelope) {
	payload := encodeEnvelope(env)
	r.mu.Lock()
	r.outbox = append(r.outbox, func(ctx context.Context) error {
		return r.net.Broadcast(ctx, transport.ServiceRBCBroadcast, payload)
	})
	r.mu.Unlock()
}

// Deliver implements transport.Inbound for the RBC broadcast channel.
func (r *RBC) Deliver(ctx context.Context, from address.Address, svc transport.Service, payload []byte) error {
	if svc != transport.ServiceRBCBroadcast {
		return nil
	}
	if !r.isEnabled() {
		return nil
	}
	env, err := decodeEnvelope(payload)
	if err != nil {
		return err
	}
	r.handle(ctx, from, env)
	return nil
}

// bcState tracks echo/ready votes for one (origin, tag) broadcast instance,
// keyed within it by the hash of the payload actually being voted on - a
// Byzantine relayer cannot inflate its own vote by claiming two different
// payloads for the same origin/tag.
type bcState struct {
	votes     map[string]*voteCount
	delivered bool
}

type voteCount struct {
	payload   []byte
	echoFrom  map[address.Address]struct{}
	readyFrom map[address.Address]struct{}
	readySent bool
}

func stateKey(origin address.Address, tag string) string {
	return origin.String() + "|" + tag
}

func payloadKey(payload []byte) string {
	h := sha256sum(payload)
	return hex.EncodeToString(h[:])
}

func (r *RBC) stateFor(key string) *bcState {
	if v, ok := r.states.Get(key); ok {
		return v.(*bcState)
	}
	st := &bcState{votes: map[string]*voteCount{}}
	r.states.Add(key, st)
	return st
}

func (r *RBC) voteFor(st *bcState, payload []byte) *voteCount {
	pk := payloadKey(payload)
	vc, ok := st.votes[pk]
	if !ok {
		vc = &voteCount{
			payload:   payload,
			echoFrom:  map[address.Address]struct{}{},
			readyFrom: map[address.Address]struct{}{},
		}
		st.votes[pk] = vc
	}
	return vc
}

// handle runs the Bracha state transition for one received envelope. It
// holds r.mu for its whole body since votes/outbox are shared mutable
// state and the transport may deliver concurrently from several senders.
func (r *RBC) handle(ctx context.Context, from address.Address, env envelope) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.cabinet[from]; !ok && from != r.self {
		r.log.Debugw("dropping message from non-cabinet sender", "from", from)
		return
	}

	key := stateKey(env.origin, env.tag)
	st := r.stateFor(key)
	if st.delivered {
		return
	}

	switch env.kind {
	case kindVal:
		if from != env.origin {
			return // only the origin may introduce a VAL for its own tag
		}
		vc := r.voteFor(st, env.payload)
		if _, seen := vc.echoFrom[r.self]; seen {
			return
		}
		vc.echoFrom[r.self] = struct{}{}
		r.broadcastLocked(envelope{kind: kindEcho, origin: env.origin, tag: env.tag, payload: env.payload})
		r.tryReadyLocked(env.origin, env.tag, vc)

	case kindEcho:
		vc := r.voteFor(st, env.payload)
		vc.echoFrom[from] = struct{}{}
		r.tryReadyLocked(env.origin, env.tag, vc)

	case kindReady:
		vc := r.voteFor(st, env.payload)
		vc.readyFrom[from] = struct{}{}
		r.tryAmplifyAndDeliverLocked(st, env.origin, env.tag, vc)
	}
}

// echoThreshold is the number of matching ECHOes needed to send READY:
// more than (n+f)/2, i.e. at least one correct majority over the faulty
// set. readyAmplifyThreshold (f+1) guarantees at least one correct node
// saw enough echoes even if this node didn't. readyDeliverThreshold
// (2f+1) guarantees at most one payload can ever reach it for a given
// (origin, tag), since two conflicting sets of size 2f+1 out of n<=3f+1
// peers must overlap in a correct node.
func (r *RBC) tryReadyLocked(origin address.Address, tag string, vc *voteCount) {
	if vc.readySent {
		return
	}
	threshold := (r.n+r.f)/2 + 1
	if len(vc.echoFrom) < threshold {
		return
	}
	vc.readySent = true
	vc.readyFrom[r.self] = struct{}{}
	r.broadcastLocked(envelope{kind: kindReady, origin: origin, tag: tag, payload: vc.payload})
}

func (r *RBC) tryAmplifyAndDeliverLocked(st *bcState, origin address.Address, tag string, vc *voteCount) {
	if !vc.readySent && len(vc.readyFrom) >= r.f+1 {
		vc.readySent = true
		vc.readyFrom[r.self] = struct{}{}
		r.broadcastLocked(envelope{kind: kindReady, origin: origin, tag: tag, payload: vc.payload})
	}
	if !st.delivered && len(vc.readyFrom) >= 2*r.f+1 {
		st.delivered = true
		if r.deliver != nil {
			r.deliver(origin, tag, vc.payload)
		}
	}
}

func (r *RBC) broadcastLocked(env envelope) {
	payload := encodeEnvelope(env)
	r.outbox = append(r.outbox, func(ctx context.Context) error {
		return r.net.Broadcast(ctx, transport.ServiceRBCBroadcast, payload)
	})
}
