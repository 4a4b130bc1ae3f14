package node

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/drand/ledger-beacon/common/address"
	"github.com/drand/ledger-beacon/common/chaintypes"
	"github.com/drand/ledger-beacon/common/log"
	"github.com/drand/ledger-beacon/crypto/bls"
	"github.com/drand/ledger-beacon/internal/beaconsetup"
	"github.com/drand/ledger-beacon/internal/beaconsvc"
	"github.com/drand/ledger-beacon/internal/consensus"
	"github.com/drand/ledger-beacon/internal/mainchain"
	"github.com/drand/ledger-beacon/internal/transport/memnet"
)

func newTestConfig(t *testing.T) Config {
	t.Helper()
	self := address.NewIdentity(address.FromBytes([]byte("self")), nil, nil)
	genesis := &chaintypes.Block{BlockNumber: 0, Hash: address.Digest{0x01}}
	return Config{
		Self:      self,
		Scheme:    bls.NewDefaultScheme(),
		Setup:     beaconsetup.DefaultConfig(),
		Service:   beaconsvc.DefaultConfig(),
		Consensus: consensus.DefaultConfig(),
		Chain:     mainchain.DefaultConfig(),
		Stakes:    NewStaticStakeSource(map[address.Address]uint64{self.Address(): 1}),
		Genesis:   genesis,
	}
}

func TestNewAssemblesEveryService(t *testing.T) {
	cfg := newTestConfig(t)
	n := New(cfg, log.DefaultLogger())

	require.Equal(t, cfg.Self.Address(), n.Self())
	require.NotNil(t, n.Directory())
	require.NotNil(t, n.Chain())
	require.NotNil(t, n.Consensus())

	got, ok := n.Directory().Identity(cfg.Self.Address())
	require.True(t, ok)
	require.Equal(t, cfg.Self.Address(), got.Address())
}

func TestWireNetworkRegistersWithCluster(t *testing.T) {
	cfg := newTestConfig(t)
	n := New(cfg, log.DefaultLogger())

	cluster := memnet.NewCluster()
	net := cluster.Join(cfg.Self.Address(), n)
	n.WireNetwork(net)

	require.Equal(t, cfg.Self.Address(), net.Self())
}
