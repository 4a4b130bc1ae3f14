package memnet

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/drand/ledger-beacon/common/address"
	"github.com/drand/ledger-beacon/internal/transport"
)

type recordingInbound struct {
	mu   sync.Mutex
	msgs []recorded
}

type recorded struct {
	from    address.Address
	svc     transport.Service
	payload []byte
}

func (r *recordingInbound) Deliver(ctx context.Context, from address.Address, svc transport.Service, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, recorded{from: from, svc: svc, payload: payload})
	return nil
}

func (r *recordingInbound) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}

func TestBroadcastFansOutToEveryoneButSelf(t *testing.T) {
	cluster := NewCluster()
	a, b, c := address.FromBytes([]byte("a")), address.FromBytes([]byte("b")), address.FromBytes([]byte("c"))

	inA, inB, inC := &recordingInbound{}, &recordingInbound{}, &recordingInbound{}
	nodeA := cluster.Join(a, inA)
	cluster.Join(b, inB)
	cluster.Join(c, inC)

	err := nodeA.Broadcast(context.Background(), transport.ServiceRBCBroadcast, []byte("hello"))
	require.NoError(t, err)

	require.Equal(t, 0, inA.len(), "broadcaster must not deliver to itself")
	require.Equal(t, 1, inB.len())
	require.Equal(t, 1, inC.len())
	require.Equal(t, []byte("hello"), inB.msgs[0].payload)
	require.True(t, inB.msgs[0].from.Equal(a))
}

func TestPeerSendDeliversToTargetOnly(t *testing.T) {
	cluster := NewCluster()
	a, b, c := address.FromBytes([]byte("a")), address.FromBytes([]byte("b")), address.FromBytes([]byte("c"))

	inA, inB, inC := &recordingInbound{}, &recordingInbound{}, &recordingInbound{}
	nodeA := cluster.Join(a, inA)
	cluster.Join(b, inB)
	cluster.Join(c, inC)

	peerB, ok := nodeA.Peer(b)
	require.True(t, ok)

	require.NoError(t, peerB.Send(context.Background(), b, transport.ServiceBeaconRPC, []byte("direct")))
	require.Equal(t, 1, inB.len())
	require.Equal(t, 0, inC.len())
	require.True(t, inB.msgs[0].from.Equal(a))
}

func TestPeerLookupFailsForUnknownOrDroppedNode(t *testing.T) {
	cluster := NewCluster()
	a, b := address.FromBytes([]byte("a")), address.FromBytes([]byte("b"))
	nodeA := cluster.Join(a, &recordingInbound{})

	_, ok := nodeA.Peer(b)
	require.False(t, ok, "unjoined peer must not resolve")

	inB := &recordingInbound{}
	cluster.Join(b, inB)
	peerB, ok := nodeA.Peer(b)
	require.True(t, ok)

	cluster.Drop(b)
	err := peerB.Send(context.Background(), b, transport.ServiceMainChainRPC, []byte("x"))
	require.Error(t, err, "sends to a dropped node must fail")
}

func TestCallDeliversRequestAndReturnsResolvedPromise(t *testing.T) {
	cluster := NewCluster()
	a, b := address.FromBytes([]byte("a")), address.FromBytes([]byte("b"))
	nodeA := cluster.Join(a, &recordingInbound{})
	inB := &recordingInbound{}
	cluster.Join(b, inB)

	peerB, ok := nodeA.Peer(b)
	require.True(t, ok)

	promise, err := peerB.Call(context.Background(), b, transport.ServiceDKG, []byte("request"))
	require.NoError(t, err)
	require.Equal(t, 1, inB.len())
	require.Equal(t, []byte("request"), inB.msgs[0].payload)

	resp, err := promise.Await(context.Background())
	require.NoError(t, err)
	require.Nil(t, resp, "memnet's Call has no real async reply path")
}

func TestBroadcastSkipsDroppedNodes(t *testing.T) {
	cluster := NewCluster()
	a, b := address.FromBytes([]byte("a")), address.FromBytes([]byte("b"))
	nodeA := cluster.Join(a, &recordingInbound{})
	inB := &recordingInbound{}
	cluster.Join(b, inB)

	cluster.Drop(b)
	require.NoError(t, nodeA.Broadcast(context.Background(), transport.ServiceRBCBroadcast, []byte("x")))
	require.Equal(t, 0, inB.len())
}
