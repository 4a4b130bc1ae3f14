// Package stake builds the cabinet - the set of addresses eligible to
// participate in an aeon's DKG - from a block's stake snapshot. Grounded
// on the membership-set handling in
// _examples/drand-drand/internal/dkg/manager.go (computing the set of
// participants for a DKG round from externally supplied configuration),
// adapted here to derive that set from on-chain stake instead of a static
// config file.
package stake

import (
	"sort"

	"github.com/drand/ledger-beacon/common/address"
	"github.com/drand/ledger-beacon/common/chaintypes"
)

// BuildCabinet selects up to maxCabinetSize addresses from snapshot,
// dropping any address not present in whitelist (when whitelist is
// non-nil), ranked by descending stake with a lexicographic tie-break so
// every honest node derives the same cabinet from the same snapshot.
func BuildCabinet(snapshot chaintypes.StakeSnapshot, maxCabinetSize int, whitelist map[address.Address]struct{}) []address.Address {
	type entry struct {
		addr  address.Address
		stake uint64
	}
	entries := make([]entry, 0, len(snapshot))
	for addr, s := range snapshot {
		if whitelist != nil {
			if _, ok := whitelist[addr]; !ok {
				continue
			}
		}
		entries = append(entries, entry{addr: addr, stake: s})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].stake != entries[j].stake {
			return entries[i].stake > entries[j].stake
		}
		return entries[i].addr.Less(entries[j].addr)
	})
	if maxCabinetSize > 0 && len(entries) > maxCabinetSize {
		entries = entries[:maxCabinetSize]
	}
	out := make([]address.Address, len(entries))
	for i, e := range entries {
		out[i] = e.addr
	}
	return out
}
