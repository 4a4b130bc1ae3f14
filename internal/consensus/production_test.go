package consensus

import (
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/drand/ledger-beacon/common/address"
	"github.com/drand/ledger-beacon/common/chaintypes"
	"github.com/drand/ledger-beacon/common/log"
)

type stubBeacon struct {
	status  EntropyStatus
	entropy chaintypes.BlockEntropy
}

func (s stubBeacon) GenerateEntropy(blockNumber uint64) (EntropyStatus, chaintypes.BlockEntropy) {
	return s.status, s.entropy
}

type stubSetup struct {
	started    bool
	members    []address.Address
	roundStart uint64
	roundEnd   uint64
	aborted    []uint64
	seen       []uint64
}

func (s *stubSetup) StartNewCabinet(members []address.Address, roundStart, roundEnd uint64) {
	s.started = true
	s.members = members
	s.roundStart = roundStart
	s.roundEnd = roundEnd
}
func (s *stubSetup) AbortBelow(round uint64)   { s.aborted = append(s.aborted, round) }
func (s *stubSetup) MostRecentSeen(round uint64) { s.seen = append(s.seen, round) }

type stubStakes struct {
	snapshot chaintypes.StakeSnapshot
}

func (s stubStakes) StakeSnapshotAt(block *chaintypes.Block) chaintypes.StakeSnapshot {
	return s.snapshot
}

func newProductionConsensus(t *testing.T, qual []address.Address, self address.Identity) (*Consensus, clockwork.FakeClock) {
	t.Helper()
	c := New(DefaultConfig(), nil, stubStakes{}, nil, nil, self, log.DefaultLogger())
	clock := clockwork.NewFakeClock()
	c.SetClock(clock)
	return c, clock
}

func TestGenerateNextBlockReturnsFalseWithoutBeaconAttached(t *testing.T) {
	self := address.NewIdentity(address.FromBytes([]byte("self")), nil, nil)
	c, _ := newProductionConsensus(t, nil, self)
	_, ok := c.GenerateNextBlock(&chaintypes.Block{BlockNumber: 1})
	require.False(t, ok)
}

func TestGenerateNextBlockReturnsFalseWhenEntropyNotReady(t *testing.T) {
	self := address.NewIdentity(address.FromBytes([]byte("self")), nil, nil)
	c, _ := newProductionConsensus(t, nil, self)
	c.Attach(stubBeacon{status: EntropyNotReady}, nil)

	_, ok := c.GenerateNextBlock(&chaintypes.Block{BlockNumber: 1})
	require.False(t, ok)
}

func TestGenerateNextBlockReturnsFalseWhenNotThisNodesTurn(t *testing.T) {
	self := address.NewIdentity(address.FromBytes([]byte("self")), nil, nil)
	other := address.FromBytes([]byte("other"))
	c, clock := newProductionConsensus(t, nil, self)
	clock.Advance(0)

	entropy := chaintypes.BlockEntropy{Qualified: []address.Address{other}}
	c.Attach(stubBeacon{status: EntropyOK, entropy: entropy}, nil)

	current := &chaintypes.Block{BlockNumber: 1, Timestamp: clock.Now().Unix() - 100}
	_, ok := c.GenerateNextBlock(current)
	require.False(t, ok, "self is not in the qualified set, so its weight is 0 and timing must reject it")
}

func TestUpdateCurrentBlockTracksTip(t *testing.T) {
	self := address.NewIdentity(address.FromBytes([]byte("self")), nil, nil)
	c, _ := newProductionConsensus(t, nil, self)

	block := &chaintypes.Block{BlockNumber: 5}
	require.NoError(t, c.UpdateCurrentBlock(block))
	require.Equal(t, block, c.CurrentBlock())
}

func TestUpdateCurrentBlockBuildsCabinetOnAeonTrigger(t *testing.T) {
	self := address.NewIdentity(address.FromBytes([]byte("self")), nil, nil)
	addrA := address.FromBytes([]byte("a"))
	addrB := address.FromBytes([]byte("b"))

	cfg := DefaultConfig()
	cfg.AeonPeriod = 10
	c := New(cfg, nil, stubStakes{snapshot: chaintypes.StakeSnapshot{addrA: 10, addrB: 5}}, nil, nil, self, log.DefaultLogger())

	setup := &stubSetup{}
	c.Attach(nil, setup)

	trigger := &chaintypes.Block{BlockNumber: 10, Hash: address.Digest{0x09}}
	require.NoError(t, c.UpdateCurrentBlock(trigger))

	require.True(t, setup.started)
	require.Equal(t, []address.Address{addrA, addrB}, setup.members)
	require.Equal(t, uint64(11), setup.roundStart)
	require.Equal(t, uint64(20), setup.roundEnd)
	require.Contains(t, setup.aborted, uint64(11))

	recorded, ok := c.CabinetHistory().At(10)
	require.True(t, ok)
	require.Equal(t, []address.Address{addrA, addrB}, recorded)
}

func TestUpdateCurrentBlockNonTriggerDoesNotBuildCabinet(t *testing.T) {
	self := address.NewIdentity(address.FromBytes([]byte("self")), nil, nil)
	c, _ := newProductionConsensus(t, nil, self)
	setup := &stubSetup{}
	c.Attach(nil, setup)

	require.NoError(t, c.UpdateCurrentBlock(&chaintypes.Block{BlockNumber: 3}))
	require.False(t, setup.started)
	require.Contains(t, setup.seen, uint64(3))
}

func TestUpdateCurrentBlockWithoutStakesFailsOnTrigger(t *testing.T) {
	self := address.NewIdentity(address.FromBytes([]byte("self")), nil, nil)
	cfg := DefaultConfig()
	cfg.AeonPeriod = 10
	c := New(cfg, nil, nil, nil, nil, self, log.DefaultLogger())

	err := c.UpdateCurrentBlock(&chaintypes.Block{BlockNumber: 10})
	require.Error(t, err)
}
