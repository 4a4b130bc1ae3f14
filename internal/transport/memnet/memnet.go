// Package memnet is an in-memory Network used by tests: every node in a
// memnet.Cluster is directly reachable from every other, with no simulated
// latency or loss, so DKG/RBC/consensus tests can exercise the real
// transport.Network contract without a socket. Grounded on the shape of
// the teacher's test harnesses, which wire up an in-process set of nodes
// rather than dialing real listeners for unit tests.
package memnet

import (
	"context"
	"fmt"
	"sync"

	"github.com/drand/ledger-beacon/common/address"
	"github.com/drand/ledger-beacon/internal/transport"
)

// Cluster is a shared registry of nodes that can reach each other.
type Cluster struct {
	mu    sync.RWMutex
	nodes map[address.Address]*Node
}

// NewCluster returns an empty cluster.
func NewCluster() *Cluster {
	return &Cluster{nodes: make(map[address.Address]*Node)}
}

// Join registers a new node under addr, wired with the given inbound
// handler, and returns its transport.Network handle.
func (c *Cluster) Join(addr address.Address, inbound transport.Inbound) *Node {
	n := &Node{cluster: c, self: addr, inbound: inbound}
	c.mu.Lock()
	c.nodes[addr] = n
	c.mu.Unlock()
	return n
}

// Drop removes a node, simulating it going offline: further sends to it
// fail and it stops receiving broadcasts.
func (c *Cluster) Drop(addr address.Address) {
	c.mu.Lock()
	delete(c.nodes, addr)
	c.mu.Unlock()
}

func (c *Cluster) lookup(addr address.Address) (*Node, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n, ok := c.nodes[addr]
	return n, ok
}

func (c *Cluster) members() []*Node {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Node, 0, len(c.nodes))
	for _, n := range c.nodes {
		out = append(out, n)
	}
	return out
}

// Node is one participant's transport.Network handle into the cluster.
type Node struct {
	cluster *Cluster
	self    address.Address
	inbound transport.Inbound
}

var _ transport.Network = (*Node)(nil)
var _ transport.Peer = peerHandle{}

func (n *Node) Self() address.Address { return n.self }

// Peer returns a handle usable to unicast/RPC a specific remote node.
func (n *Node) Peer(addr address.Address) (transport.Peer, bool) {
	if _, ok := n.cluster.lookup(addr); !ok {
		return nil, false
	}
	return peerHandle{cluster: n.cluster, from: n.self, to: addr}, true
}

// Broadcast delivers payload to every other node currently in the cluster.
func (n *Node) Broadcast(ctx context.Context, svc transport.Service, payload []byte) error {
	for _, peer := range n.cluster.members() {
		if peer.self == n.self {
			continue
		}
		if err := peer.inbound.Deliver(ctx, n.self, svc, payload); err != nil {
			return err
		}
	}
	return nil
}

type peerHandle struct {
	cluster *Cluster
	from    address.Address
	to      address.Address
}

func (p peerHandle) Send(ctx context.Context, to address.Address, svc transport.Service, payload []byte) error {
	target, ok := p.cluster.lookup(to)
	if !ok {
		return fmt.Errorf("memnet: peer %s not reachable", to)
	}
	return target.inbound.Deliver(ctx, p.from, svc, payload)
}

func (p peerHandle) Call(ctx context.Context, to address.Address, svc transport.Service, request []byte) (transport.RPCPromise, error) {
	target, ok := p.cluster.lookup(to)
	if !ok {
		return nil, fmt.Errorf("memnet: peer %s not reachable", to)
	}
	// The in-memory double delivers the request as a plain message; test
	// handlers that model RPCs reply out of band via their own inbound, so
	// Call only needs to hand off delivery here.
	if err := target.inbound.Deliver(ctx, p.from, svc, request); err != nil {
		return nil, err
	}
	return resolvedPromise{}, nil
}

// resolvedPromise is returned by Call: memnet has no real async reply path,
// so tests that need a response model it by inspecting the receiving
// node's state directly rather than awaiting this promise.
type resolvedPromise struct{}

func (resolvedPromise) Await(ctx context.Context) ([]byte, error) {
	return nil, nil
}
