package beaconsvc

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/drand/ledger-beacon/common/address"
	"github.com/drand/ledger-beacon/common/chaintypes"
	"github.com/drand/ledger-beacon/common/log"
	"github.com/drand/ledger-beacon/internal/beaconsetup"
	"github.com/drand/ledger-beacon/internal/consensus"
)

func newTestSvc(t *testing.T) *Service {
	t.Helper()
	self := address.NewIdentity(address.FromBytes([]byte("self")), nil, nil)
	return New(DefaultConfig(), nil, self, log.DefaultLogger())
}

func TestGenerateEntropyUnknownFutureRoundNotReady(t *testing.T) {
	s := newTestSvc(t)
	status, _ := s.GenerateEntropy(5)
	require.Equal(t, consensus.EntropyNotReady, status)
}

func TestGenerateEntropyReturnsCompletedEntropy(t *testing.T) {
	s := newTestSvc(t)
	want := chaintypes.BlockEntropy{BlockNumber: 3, GroupSignature: []byte("sig")}
	s.completedBlockEntropy[3] = want

	status, got := s.GenerateEntropy(3)
	require.Equal(t, consensus.EntropyOK, status)
	require.Equal(t, want.GroupSignature, got.GroupSignature)
}

func TestGenerateEntropyPastRoundWithoutEntropyFails(t *testing.T) {
	s := newTestSvc(t)
	s.furthestCompleted = 10

	status, _ := s.GenerateEntropy(5)
	require.Equal(t, consensus.EntropyFailed, status)
}

func TestAeonReadyQueuesUnit(t *testing.T) {
	s := newTestSvc(t)
	unit := beaconsetup.AeonExecutionUnit{Aeon: chaintypes.Aeon{RoundStart: 1, RoundEnd: 20}}
	s.AeonReady(unit)

	require.Len(t, s.queued, 1)
	require.Equal(t, uint64(1), s.queued[0].Aeon.RoundStart)
}

func TestMostRecentSeenAbortsStaleAeon(t *testing.T) {
	s := newTestSvc(t)
	s.current = &aeonRun{aeon: chaintypes.Aeon{RoundStart: 1, RoundEnd: 20}}
	s.state = StateCollectSignatures

	s.MostRecentSeen(25)

	require.Nil(t, s.current)
	require.Equal(t, StateWaitForSetupCompletion, s.state)
}

func TestMostRecentSeenWithinAeonLeavesRunAlone(t *testing.T) {
	s := newTestSvc(t)
	s.current = &aeonRun{aeon: chaintypes.Aeon{RoundStart: 1, RoundEnd: 20}}
	s.state = StateCollectSignatures

	s.MostRecentSeen(10)

	require.NotNil(t, s.current)
	require.Equal(t, StateCollectSignatures, s.state)
}

func TestGetSignatureSharesReturnsCopyNotAliasingInternalMap(t *testing.T) {
	s := newTestSvc(t)
	self := address.FromBytes([]byte("self"))
	s.signaturesBeingBuilt[7] = &SignatureInformation{
		BlockNumber: 7,
		Shares:      map[address.Address][]byte{self: []byte("share")},
	}

	info := s.GetSignatureShares(7)
	require.Equal(t, uint64(7), info.BlockNumber)
	require.Equal(t, []byte("share"), info.Shares[self])

	info.Shares[self] = []byte("tampered")
	require.Equal(t, []byte("share"), s.signaturesBeingBuilt[7].Shares[self], "returned shares map must be a copy")
}

func TestGetSignatureSharesUnknownRoundIsEmpty(t *testing.T) {
	s := newTestSvc(t)
	info := s.GetSignatureShares(99)
	require.Equal(t, uint64(99), info.BlockNumber)
	require.Empty(t, info.Shares)
}

func TestStateStringCoversEveryState(t *testing.T) {
	for st := StateWaitForSetupCompletion; st <= StateComplete; st++ {
		require.NotEqual(t, "UNKNOWN", st.String())
	}
	require.Equal(t, "UNKNOWN", State(999).String())
}
