package beaconsetup

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/drand/ledger-beacon/common/address"
	"github.com/drand/ledger-beacon/common/log"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	self := address.NewIdentity(address.FromBytes([]byte("self")), nil, nil)
	return New(DefaultConfig(), nil, self, nil, log.DefaultLogger())
}

func TestStartNewCabinetQueuesRequest(t *testing.T) {
	s := newTestService(t)
	members := []address.Address{address.FromBytes([]byte("a")), address.FromBytes([]byte("b"))}

	s.StartNewCabinet(members, 1, 20)
	require.Len(t, s.queued, 1)
	require.Equal(t, uint64(1), s.queued[0].roundStart)
	require.Equal(t, uint64(20), s.queued[0].roundEnd)
}

func TestStartNewCabinetDropsDuplicateTrigger(t *testing.T) {
	s := newTestService(t)
	members := []address.Address{address.FromBytes([]byte("a")), address.FromBytes([]byte("b"))}

	s.StartNewCabinet(members, 1, 20)
	s.StartNewCabinet(members, 1, 20)
	require.Len(t, s.queued, 1, "duplicate (members, round_start, round_end) triggers must be deduped")
}

func TestStartNewCabinetDistinctRoundsBothQueue(t *testing.T) {
	s := newTestService(t)
	members := []address.Address{address.FromBytes([]byte("a"))}

	s.StartNewCabinet(members, 1, 20)
	s.StartNewCabinet(members, 21, 40)
	require.Len(t, s.queued, 2)
}

func TestAbortBelowClearsSupersededAttempt(t *testing.T) {
	s := newTestService(t)
	s.current = &attempt{roundStart: 10}
	s.state = StateWaitForShares

	s.AbortBelow(20)

	require.Nil(t, s.current)
	require.Equal(t, StateIdle, s.state)
}

func TestAbortBelowLeavesNewerAttemptAlone(t *testing.T) {
	s := newTestService(t)
	s.current = &attempt{roundStart: 30}
	s.state = StateWaitForShares

	s.AbortBelow(20)

	require.NotNil(t, s.current)
	require.Equal(t, StateWaitForShares, s.state)
}

func TestStateStringCoversEveryState(t *testing.T) {
	for st := StateIdle; st <= StateBeaconReady; st++ {
		require.NotEqual(t, "UNKNOWN", st.String())
	}
	require.Equal(t, "UNKNOWN", State(999).String())
}
