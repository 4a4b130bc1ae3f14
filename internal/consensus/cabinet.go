package consensus

import (
	"sync"

	"github.com/drand/ledger-beacon/common/address"
)

// cabinetRecord is one aeon-trigger's worth of stake-derived cabinet
// membership.
type cabinetRecord struct {
	blockHash address.Digest
	members   []address.Address
}

// CabinetHistory is the ordered, bounded block_number → cabinet map built
// on aeon-trigger blocks, per spec.md §4.5.
type CabinetHistory struct {
	mu      sync.Mutex
	maxLen  int
	order   []uint64
	entries map[uint64]cabinetRecord
}

// NewCabinetHistory builds an empty history retaining at most maxLen
// entries.
func NewCabinetHistory(maxLen int) *CabinetHistory {
	if maxLen <= 0 {
		maxLen = 1
	}
	return &CabinetHistory{maxLen: maxLen, entries: map[uint64]cabinetRecord{}}
}

// Record stores the cabinet computed for the aeon-trigger block
// triggerBlockNumber/triggerBlockHash, deduplicating repeated deliveries of
// the same trigger block and trimming the oldest entry once maxLen is
// exceeded.
func (h *CabinetHistory) Record(triggerBlockNumber uint64, triggerBlockHash address.Digest, members []address.Address) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if existing, ok := h.entries[triggerBlockNumber]; ok && existing.blockHash == triggerBlockHash {
		return
	}
	if _, ok := h.entries[triggerBlockNumber]; !ok {
		h.order = append(h.order, triggerBlockNumber)
	}
	h.entries[triggerBlockNumber] = cabinetRecord{blockHash: triggerBlockHash, members: append([]address.Address(nil), members...)}
	for len(h.order) > h.maxLen {
		oldest := h.order[0]
		h.order = h.order[1:]
		delete(h.entries, oldest)
	}
}

// At returns the cabinet recorded for the aeon-trigger block
// triggerBlockNumber.
func (h *CabinetHistory) At(triggerBlockNumber uint64) ([]address.Address, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	rec, ok := h.entries[triggerBlockNumber]
	if !ok {
		return nil, false
	}
	return append([]address.Address(nil), rec.members...), true
}

// ForAeonBeginning returns the cabinet for the aeon that begins at
// aeonBeginBlockNumber, i.e. the cabinet recorded at the trigger block
// immediately preceding it.
func (h *CabinetHistory) ForAeonBeginning(aeonBeginBlockNumber uint64) ([]address.Address, bool) {
	if aeonBeginBlockNumber == 0 {
		return nil, false
	}
	return h.At(aeonBeginBlockNumber - 1)
}
