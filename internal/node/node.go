// Package node assembles one participant's full consensus stack -
// BeaconSetupService, BeaconService, Consensus, MainChain and the
// transport dispatch between them - into a single process-local unit,
// the way the teacher's core.Node (core/drand.go) wires together its own
// DKG, beacon and chain store components behind one struct. Unlike the
// teacher, this module ships no gRPC/libp2p listener of its own (see
// internal/transport's doc), so WireNetwork's Network argument is
// whatever concrete transport.Network the caller already built - in this
// repo's case, internal/transport/memnet for an in-process cluster.
package node

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/drand/ledger-beacon/common/address"
	"github.com/drand/ledger-beacon/common/chaintypes"
	"github.com/drand/ledger-beacon/common/log"
	"github.com/drand/ledger-beacon/crypto/bls"
	"github.com/drand/ledger-beacon/crypto/ecdsa"
	"github.com/drand/ledger-beacon/internal/beaconsetup"
	"github.com/drand/ledger-beacon/internal/beaconsvc"
	"github.com/drand/ledger-beacon/internal/consensus"
	"github.com/drand/ledger-beacon/internal/mainchain"
	"github.com/drand/ledger-beacon/internal/rbc"
	"github.com/drand/ledger-beacon/internal/reactor"
	"github.com/drand/ledger-beacon/internal/transport"
)

// rbcFlushInterval is how often the reactor flushes ReliableBroadcast's
// pending outbox, per rbc.GetRunnable's doc.
const rbcFlushInterval = 20 * time.Millisecond

// Config holds everything needed to build one Node beyond the network
// handle, which WireNetwork supplies once the transport is available.
type Config struct {
	Self          address.Identity
	ECDSAKey      *ecdsa.PrivateKey
	Scheme        *bls.Scheme
	Setup         beaconsetup.Config
	Service       beaconsvc.Config
	Consensus     consensus.Config
	Chain         mainchain.Config
	Stakes        consensus.StakeSnapshotSource
	Whitelist     map[address.Address]struct{}
	Genesis       *chaintypes.Block
	BlockPersist  mainchain.PersistentStore
	BeaconPersist beaconsvc.Persister
}

// Node bundles one participant's running services. The zero value is not
// usable; build one with New, then WireNetwork before Run.
type Node struct {
	cfg Config
	log log.Logger

	dir *Directory

	setup *beaconsetup.Service
	svc   *beaconsvc.Service
	cons  *consensus.Consensus
	chain *mainchain.MainChain
	rbc   *rbc.RBC

	reactor *reactor.Reactor
	net     transport.Network
}

// New constructs every service but does not wire the transport yet - call
// WireNetwork once a transport.Network for this node exists (this node
// itself must be registered as that network's Inbound handler first, and
// Node satisfies transport.Inbound for exactly that purpose).
func New(cfg Config, l log.Logger) *Node {
	l = l.Named(cfg.Self.Address().String())
	dir := NewDirectory(cfg.Self)

	setup := beaconsetup.New(cfg.Setup, cfg.Scheme, cfg.Self, cfg.ECDSAKey, l)
	svc := beaconsvc.New(cfg.Service, cfg.Scheme, cfg.Self, l)
	cons := consensus.New(cfg.Consensus, cfg.Scheme, cfg.Stakes, dir, cfg.Whitelist, cfg.Self, l)
	cons.Attach(svc, setup)
	chain := mainchain.New(cfg.Chain, cfg.Genesis, cons, cfg.BlockPersist, l)

	return &Node{
		cfg:     cfg,
		log:     l,
		dir:     dir,
		setup:   setup,
		svc:     svc,
		cons:    cons,
		chain:   chain,
		reactor: reactor.New(clockwork.NewRealClock(), l),
	}
}

// Directory exposes this node's identity directory, so a test harness or
// cmd can populate it with the rest of the cabinet's identities before the
// DKG begins.
func (n *Node) Directory() *Directory { return n.dir }

// Chain exposes the underlying MainChain for block submission/queries.
func (n *Node) Chain() *mainchain.MainChain { return n.chain }

// Consensus exposes the underlying Consensus for block production.
func (n *Node) Consensus() *consensus.Consensus { return n.cons }

// Self returns this node's address.
func (n *Node) Self() address.Address { return n.cfg.Self.Address() }

// WireNetwork attaches a concrete transport, builds this node's
// ReliableBroadcast instance over it, and registers every cooperative task
// on the reactor. Must be called exactly once, after net has been told
// about this Node as its Inbound handler (see memnet.Cluster.Join).
func (n *Node) WireNetwork(net transport.Network) {
	n.net = net
	n.rbc = rbc.New(n.cfg.Self.Address(), net, n.log, n.setup.DeliverSetup)

	n.setup.Attach(net, n.rbc, n.dir, n.svc.AeonReady)
	n.svc.Attach(net, n.cfg.BeaconPersist)

	n.reactor.Register(n.setup, 0)
	n.reactor.Register(n.svc, 0)
	n.reactor.Register(reactor.Periodic(rbcFlushInterval, n.rbc.GetRunnable()), rbcFlushInterval)
}

// Run drives this node's reactor until ctx is cancelled. WireNetwork must
// have been called first.
func (n *Node) Run(ctx context.Context) {
	n.reactor.Run(ctx)
}

// StartNewCabinet re-exports Consensus' cabinet trigger for direct test
// harness use, ahead of any real aeon-trigger block landing.
func (n *Node) StartNewCabinet(members []address.Address, roundStart, roundEnd uint64) {
	n.setup.StartNewCabinet(members, roundStart, roundEnd)
}

// Deliver implements transport.Inbound: it is this node's single entry
// point for every inbound message, dispatched by service channel to
// whichever component owns it. Grounded on the teacher's core.Node, which
// similarly demultiplexes one gRPC service implementation across DKG,
// beacon and chain-sync handlers.
func (n *Node) Deliver(ctx context.Context, from address.Address, svc transport.Service, payload []byte) error {
	switch svc {
	case transport.ServiceRBCBroadcast:
		return n.rbc.Deliver(ctx, from, svc, payload)
	case transport.ServiceDKGSecretKey:
		return n.setup.Deliver(ctx, from, svc, payload)
	case transport.ServiceBeaconRPC:
		return n.deliverBeaconRPC(ctx, from, payload)
	case transport.ServiceDKG, transport.ServiceMainChainRPC:
		// Reserved channels with no handler in this deployment: the DKG
		// handshake itself rides entirely over ServiceRBCBroadcast and
		// ServiceDKGSecretKey, and main-chain sync has no RPC server in
		// this module (see internal/transport's doc).
		return fmt.Errorf("node: no handler registered for service %d", svc)
	default:
		return fmt.Errorf("node: unknown service %d", svc)
	}
}

// deliverBeaconRPC answers a GET_SIGNATURE_SHARES request by replying
// directly over Unicast on the same channel, since memnet's Call does not
// carry a real asynchronous response path - see memnet.peerHandle.Call's
// doc. A production transport would instead return the encoded response
// from an RPC server adapter and never reach this method at all.
func (n *Node) deliverBeaconRPC(ctx context.Context, from address.Address, payload []byte) error {
	reply, err := n.svc.HandleGetSignatureShares(from, payload)
	if err != nil {
		return err
	}
	peer, ok := n.net.Peer(from)
	if !ok {
		return fmt.Errorf("node: cannot reply to %v, not reachable", from)
	}
	return peer.Send(ctx, from, transport.ServiceBeaconRPC, reply)
}

var _ transport.Inbound = (*Node)(nil)
var _ reactor.Task = (*beaconsetup.Service)(nil)
var _ reactor.Task = (*beaconsvc.Service)(nil)
