package rbc

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/drand/ledger-beacon/common/address"
	"github.com/drand/ledger-beacon/common/log"
	"github.com/drand/ledger-beacon/internal/transport"
	"github.com/drand/ledger-beacon/internal/transport/memnet"
)

// deliveryLog collects every (sender, tag, payload) this node's RBC handed
// up to the application layer.
type deliveryLog struct {
	mu   sync.Mutex
	msgs []delivered
}

type delivered struct {
	sender  address.Address
	tag     string
	payload []byte
}

func (d *deliveryLog) record(sender address.Address, tag string, payload []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.msgs = append(d.msgs, delivered{sender: sender, tag: tag, payload: payload})
}

func (d *deliveryLog) len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.msgs)
}

// flushAll runs every node's outbox-flush runnable once; RBC's echo/ready
// amplification happens across several such rounds since each Broadcast
// only fans out messages already enqueued as of that flush.
func flushAll(ctx context.Context, rbcs []*RBC) {
	for _, r := range rbcs {
		r.GetRunnable()(ctx)
	}
}

// rbcHandle forwards transport.Inbound.Deliver to an RBC constructed after
// the handle is already registered with the cluster, breaking the
// construction cycle (RBC.New needs a transport.Network that only exists
// once the node is registered, but registration needs an Inbound).
type rbcHandle struct {
	r *RBC
}

func (h *rbcHandle) Deliver(ctx context.Context, from address.Address, svc transport.Service, payload []byte) error {
	if h.r == nil {
		return nil
	}
	return h.r.Deliver(ctx, from, svc, payload)
}

func newTestCluster(t *testing.T, n int) ([]address.Address, []*RBC, []*deliveryLog) {
	t.Helper()
	cluster := memnet.NewCluster()
	members := make([]address.Address, n)
	for i := range members {
		members[i] = address.FromBytes([]byte{byte('A' + i)})
	}

	rbcs := make([]*RBC, n)
	logs := make([]*deliveryLog, n)
	for i, addr := range members {
		dl := &deliveryLog{}
		logs[i] = dl
		handle := &rbcHandle{}
		net := cluster.Join(addr, handle)
		r := New(addr, net, log.DefaultLogger(), dl.record)
		handle.r = r
		rbcs[i] = r
	}
	for _, r := range rbcs {
		r.ResetCabinet(members)
		r.Enable(true)
	}
	return members, rbcs, logs
}

func TestReliableBroadcastDeliversToEveryMember(t *testing.T) {
	members, rbcs, logs := newTestCluster(t, 4)
	ctx := context.Background()

	payload := []byte("aeon-setup coefficients")
	rbcs[0].SetQuestion("round-1", payload)

	for round := 0; round < 6; round++ {
		flushAll(ctx, rbcs)
	}

	for i := range members {
		require.Equal(t, 1, logs[i].len(), "node %d should deliver exactly once", i)
		require.Equal(t, payload, logs[i].msgs[0].payload)
		require.Equal(t, "round-1", logs[i].msgs[0].tag)
		require.True(t, logs[i].msgs[0].sender.Equal(members[0]))
	}
}

func TestReliableBroadcastDisabledDropsMessages(t *testing.T) {
	_, rbcs, logs := newTestCluster(t, 4)
	ctx := context.Background()

	for _, r := range rbcs {
		r.Enable(false)
	}
	rbcs[0].SetQuestion("round-2", []byte("payload"))
	for round := 0; round < 4; round++ {
		flushAll(ctx, rbcs)
	}

	for i := range logs {
		require.Equal(t, 0, logs[i].len())
	}
}
