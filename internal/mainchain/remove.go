package mainchain

import (
	"sort"

	"github.com/drand/ledger-beacon/common/address"
	"github.com/drand/ledger-beacon/common/chaintypes"
)

// RemoveBlock deletes hash and every descendant from the cache, scrubs
// them from the loose-blocks index, and rebuilds the tip set and heaviest
// tip from what remains, per spec.md §4.6.
func (mc *MainChain) RemoveBlock(hash address.Digest) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if _, ok := mc.blocks[hash]; !ok {
		return
	}

	children := map[address.Digest][]address.Digest{}
	for h, b := range mc.blocks {
		children[b.PreviousHash] = append(children[b.PreviousHash], h)
	}

	toRemove := map[address.Digest]struct{}{hash: {}}
	queue := []address.Digest{hash}
	for len(queue) > 0 {
		h := queue[0]
		queue = queue[1:]
		for _, child := range children[h] {
			if _, already := toRemove[child]; already {
				continue
			}
			toRemove[child] = struct{}{}
			queue = append(queue, child)
		}
	}

	for h := range toRemove {
		delete(mc.blocks, h)
		delete(mc.tips, h)
	}

	mc.looseMu.Lock()
	for parent, pending := range mc.looseBlocks {
		if _, gone := toRemove[parent]; gone {
			delete(mc.looseBlocks, parent)
			continue
		}
		kept := pending[:0]
		for _, b := range pending {
			if _, gone := toRemove[b.Hash]; !gone {
				kept = append(kept, b)
			}
		}
		if len(kept) == 0 {
			delete(mc.looseBlocks, parent)
		} else {
			mc.looseBlocks[parent] = kept
		}
	}
	mc.looseMu.Unlock()

	mc.reindexTipsLocked()
}

// reindexTipsLocked rebuilds tips and heaviest from mc.blocks: sort
// remaining blocks by (block_number, hash), then for each one remove its
// parent from the tip set and, if the block itself is non-loose, add it.
func (mc *MainChain) reindexTipsLocked() {
	remaining := make([]*chaintypes.Block, 0, len(mc.blocks))
	for _, b := range mc.blocks {
		remaining = append(remaining, b)
	}
	sort.Slice(remaining, func(i, j int) bool {
		if remaining[i].BlockNumber != remaining[j].BlockNumber {
			return remaining[i].BlockNumber < remaining[j].BlockNumber
		}
		return lessDigest(remaining[i].Hash, remaining[j].Hash)
	})

	mc.tips = map[address.Digest]chaintypes.Tip{}
	for _, b := range remaining {
		delete(mc.tips, b.PreviousHash)
		if !b.IsLoose {
			mc.tips[b.Hash] = chaintypes.Tip{TotalWeight: b.TotalWeight}
		}
	}

	var heaviest chaintypes.HeaviestTip
	first := true
	for h, t := range mc.tips {
		candidate := chaintypes.HeaviestTip{Weight: t.TotalWeight, Hash: h}
		if first || heaviest.Less(candidate) {
			heaviest = candidate
			first = false
		}
	}
	mc.heaviest = heaviest
}

func lessDigest(a, b address.Digest) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}
