package consensus

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/drand/ledger-beacon/common/address"
)

func TestCabinetHistoryRecordAndAt(t *testing.T) {
	h := NewCabinetHistory(2)
	members := []address.Address{address.FromBytes([]byte("a")), address.FromBytes([]byte("b"))}

	h.Record(10, address.Digest{0x01}, members)
	got, ok := h.At(10)
	require.True(t, ok)
	require.Equal(t, members, got)

	_, ok = h.At(99)
	require.False(t, ok)
}

func TestCabinetHistoryDedupesSameTriggerBlock(t *testing.T) {
	h := NewCabinetHistory(4)
	hash := address.Digest{0x01}
	first := []address.Address{address.FromBytes([]byte("a"))}
	second := []address.Address{address.FromBytes([]byte("a")), address.FromBytes([]byte("b"))}

	h.Record(10, hash, first)
	h.Record(10, hash, second)

	got, ok := h.At(10)
	require.True(t, ok)
	require.Equal(t, first, got, "a repeated delivery of the same trigger block must not overwrite the recorded cabinet")
}

func TestCabinetHistoryTrimsOldestBeyondMaxLen(t *testing.T) {
	h := NewCabinetHistory(2)
	m := []address.Address{address.FromBytes([]byte("a"))}

	h.Record(1, address.Digest{0x01}, m)
	h.Record(2, address.Digest{0x02}, m)
	h.Record(3, address.Digest{0x03}, m)

	_, ok := h.At(1)
	require.False(t, ok, "oldest entry must be trimmed once maxLen is exceeded")
	_, ok = h.At(2)
	require.True(t, ok)
	_, ok = h.At(3)
	require.True(t, ok)
}

func TestCabinetHistoryAtReturnsIndependentCopy(t *testing.T) {
	h := NewCabinetHistory(2)
	m := []address.Address{address.FromBytes([]byte("a"))}
	h.Record(1, address.Digest{0x01}, m)

	got, ok := h.At(1)
	require.True(t, ok)
	got[0] = address.FromBytes([]byte("tampered"))

	got2, _ := h.At(1)
	require.Equal(t, m[0], got2[0], "At must not expose the internal slice for mutation")
}

func TestCabinetHistoryForAeonBeginning(t *testing.T) {
	h := NewCabinetHistory(4)
	m := []address.Address{address.FromBytes([]byte("a"))}
	h.Record(19, address.Digest{0x01}, m)

	got, ok := h.ForAeonBeginning(20)
	require.True(t, ok)
	require.Equal(t, m, got)

	_, ok = h.ForAeonBeginning(0)
	require.False(t, ok)
}
