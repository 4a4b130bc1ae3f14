// Package transport declares the network-facing interfaces the consensus
// core depends on, without committing to any concrete transport. Grounded
// on the shape of the teacher's internal/net.Client split (one interface
// per concern: point-to-point RPC, broadcast dispatch), minus the gRPC
// plumbing that backs it there - this module has no server/listener of its
// own, since transport wiring is out of scope (see SPEC_FULL.md).
package transport

import (
	"context"

	"github.com/drand/ledger-beacon/common/address"
)

// Service identifies one of the opaque channels the core reserves, per
// spec.md §7: DKG-service, RBC-broadcast-channel, DKG-secret-key-channel,
// beacon-RPC-channel, main-chain-RPC-channel.
type Service uint16

const (
	ServiceDKG Service = iota
	ServiceRBCBroadcast
	ServiceDKGSecretKey
	ServiceBeaconRPC
	ServiceMainChainRPC
)

// Unicast sends an authenticated point-to-point message to a single peer on
// the given service channel. Implementations must not deliver a message to
// any peer other than to.
type Unicast interface {
	Send(ctx context.Context, to address.Address, svc Service, payload []byte) error
}

// Broadcast fans a message out to every member of the current cabinet on a
// service channel. Used by ReliableBroadcast's echo/ready dispatch.
type Broadcast interface {
	Broadcast(ctx context.Context, svc Service, payload []byte) error
}

// RPCPromise is the response half of a request/response exchange: a single
// value delivered asynchronously, grounded on how the teacher's protocol
// clients return a value or an error for calls like SyncChain/Status.
type RPCPromise interface {
	// Await blocks until the response arrives or ctx is done.
	Await(ctx context.Context) ([]byte, error)
}

// RPC issues a request to one peer on a service channel and returns a
// promise for its response - used for GET_SIGNATURE_SHARES and similar
// point-to-point request/response calls that are not plain fire-and-forget
// unicasts.
type RPC interface {
	Call(ctx context.Context, to address.Address, svc Service, request []byte) (RPCPromise, error)
}

// Inbound delivers messages received on a service channel to the local
// upper layer. Implementations of Unicast/Broadcast/RPC typically share one
// Inbound per node to hand received bytes up to ReliableBroadcast or to a
// direct per-peer channel handler.
type Inbound interface {
	// Deliver is called by the transport for every message addressed to
	// this node on svc. from is the authenticated sender.
	Deliver(ctx context.Context, from address.Address, svc Service, payload []byte) error
}

// Peer is the full network surface a single remote cabinet member exposes.
type Peer interface {
	Unicast
	RPC
}

// Network bundles everything the core needs from the transport layer for
// one local node: outbound broadcast/RPC to every peer, keyed by address.
type Network interface {
	Broadcast
	Peer(addr address.Address) (Peer, bool)
	Self() address.Address
}
