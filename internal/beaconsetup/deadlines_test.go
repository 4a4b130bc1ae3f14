package beaconsetup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPerStateTimePicksSmallestMatchingBucket(t *testing.T) {
	require.Equal(t, 2*time.Second, perStateTime(defaultCabinetSizeBuckets, 5))
	require.Equal(t, 2*time.Second, perStateTime(defaultCabinetSizeBuckets, 10))
	require.Equal(t, 4*time.Second, perStateTime(defaultCabinetSizeBuckets, 11))
	require.Equal(t, 8*time.Second, perStateTime(defaultCabinetSizeBuckets, 100))
}

func TestPerStateTimeFallsBackToLargestBucket(t *testing.T) {
	require.Equal(t, 15*time.Second, perStateTime(defaultCabinetSizeBuckets, 1<<31))
}

func TestBaseTimespanScalesWithPerStateTimeAndSlots(t *testing.T) {
	small := baseTimespan(defaultCabinetSizeBuckets, 5)
	large := baseTimespan(defaultCabinetSizeBuckets, 50)
	require.Greater(t, large, small)
	require.Equal(t, time.Duration(float64(2*time.Second)*totalSlots()), small)
}

func TestNextTimespanGrowsByOneAndAHalfUntilCapped(t *testing.T) {
	base := time.Second * 10
	current := base
	next := nextTimespan(base, current, 6)
	require.Equal(t, time.Duration(float64(current)*1.5), next)
}

func TestNextTimespanCapsAtMaxMultiple(t *testing.T) {
	base := time.Second
	current := base * 100
	next := nextTimespan(base, current, 6)
	require.Equal(t, base*6, next)
}

func TestStateDeadlineIsZeroForStatesWithoutASlotWeight(t *testing.T) {
	require.Equal(t, time.Duration(0), stateDeadline(time.Minute, StateIdle))
	require.Equal(t, time.Duration(0), stateDeadline(time.Minute, StateBeaconReady))
}

func TestStateDeadlineIsProportionalToSlotWeight(t *testing.T) {
	timespan := time.Duration(totalSlots() * float64(time.Second))
	require.Equal(t, time.Second, stateDeadline(timespan, StateConnectToAll))
	require.Equal(t, 2*time.Second, stateDeadline(timespan, StateWaitForShares))
}
