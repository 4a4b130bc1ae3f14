package stake

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/drand/ledger-beacon/common/address"
	"github.com/drand/ledger-beacon/common/chaintypes"
)

func TestBuildCabinetRanksByDescendingStake(t *testing.T) {
	a, b, c := address.FromBytes([]byte("a")), address.FromBytes([]byte("b")), address.FromBytes([]byte("c"))
	snapshot := chaintypes.StakeSnapshot{a: 10, b: 30, c: 20}

	got := BuildCabinet(snapshot, 0, nil)
	require.Equal(t, []address.Address{b, c, a}, got)
}

func TestBuildCabinetBreaksStakeTiesLexicographically(t *testing.T) {
	a, b := address.FromBytes([]byte("a")), address.FromBytes([]byte("b"))
	snapshot := chaintypes.StakeSnapshot{b: 10, a: 10}

	got := BuildCabinet(snapshot, 0, nil)
	require.Equal(t, []address.Address{a, b}, got)
}

func TestBuildCabinetRespectsMaxSize(t *testing.T) {
	a, b, c := address.FromBytes([]byte("a")), address.FromBytes([]byte("b")), address.FromBytes([]byte("c"))
	snapshot := chaintypes.StakeSnapshot{a: 10, b: 30, c: 20}

	got := BuildCabinet(snapshot, 2, nil)
	require.Equal(t, []address.Address{b, c}, got)
}

func TestBuildCabinetDropsNonWhitelistedAddresses(t *testing.T) {
	a, b, c := address.FromBytes([]byte("a")), address.FromBytes([]byte("b")), address.FromBytes([]byte("c"))
	snapshot := chaintypes.StakeSnapshot{a: 10, b: 30, c: 20}
	whitelist := map[address.Address]struct{}{a: {}, c: {}}

	got := BuildCabinet(snapshot, 0, whitelist)
	require.Equal(t, []address.Address{c, a}, got)
}

func TestBuildCabinetEmptySnapshotYieldsEmptyCabinet(t *testing.T) {
	got := BuildCabinet(chaintypes.StakeSnapshot{}, 5, nil)
	require.Empty(t, got)
}
