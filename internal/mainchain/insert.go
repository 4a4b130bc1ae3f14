package mainchain

import (
	"crypto/sha256"

	"github.com/drand/ledger-beacon/common/address"
	"github.com/drand/ledger-beacon/common/chaintypes"
	"github.com/drand/ledger-beacon/wire"
)

// AddBlock inserts block per spec.md §4.6's ten-step algorithm. If valid
// (the Validator injected at construction) is non-nil, it is additionally
// consulted against the structural checks below the moment the parent is
// known to be present and non-loose - any rejection there also reports
// Invalid.
func (mc *MainChain) AddBlock(block *chaintypes.Block) (AddStatus, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return mc.insertLocked(block, true)
}

// insertLocked is AddBlock's body, callable recursively (via
// resolveLooseLocked) while already holding mu - the Go stand-in for the
// teacher's re-entrant mutex. allowLoose controls whether a missing/loose
// parent defers this block (top-level calls) or is itself a logic error
// (loose-resolution calls, which only ever re-drive blocks whose parent
// was *just* inserted).
func (mc *MainChain) insertLocked(block *chaintypes.Block, allowLoose bool) (AddStatus, error) {
	if block.Hash.IsEmpty() {
		computed := wire.EncodeBlockForHash(*block)
		block.Hash = sha256.Sum256(computed)
	}
	if block.Hash.IsEmpty() || block.Hash == block.PreviousHash {
		return Invalid, errInvalidHash
	}

	if _, dup := mc.blocks[block.Hash]; dup {
		return Duplicate, nil
	}

	prev, ok := mc.blocks[block.PreviousHash]
	if !ok || prev.IsLoose {
		if !allowLoose {
			return Invalid, errUnexpectedLoose
		}
		block.IsLoose = true
		mc.looseMu.Lock()
		mc.looseBlocks[block.PreviousHash] = append(mc.looseBlocks[block.PreviousHash], block)
		mc.looseMu.Unlock()
		return Loose, nil
	}
	if block.BlockNumber != prev.BlockNumber+1 {
		return Invalid, errBlockNumberGap
	}

	if mc.detectDuplicateTransactions(prev, block) {
		return Invalid, errDuplicateTransaction
	}

	if mc.valid != nil {
		if err := mc.valid.ValidBlock(prev, block); err != nil {
			return Invalid, err
		}
	}

	block.TotalWeight = prev.TotalWeight + block.Weight
	mc.blocks[block.Hash] = block

	if _, wasTip := mc.tips[prev.Hash]; wasTip {
		delete(mc.tips, prev.Hash)
	}
	mc.tips[block.Hash] = chaintypes.Tip{TotalWeight: block.TotalWeight}

	candidate := chaintypes.HeaviestTip{Weight: block.TotalWeight, Hash: block.Hash}
	if mc.heaviest.Less(candidate) {
		mc.heaviest = candidate
		mc.considerFlush()
	}

	mc.resolveLooseLocked(block.Hash)
	return Added, nil
}

// resolveLooseLocked completes, breadth-first, every block that was
// waiting on parent (the block whose hash was just accepted), using
// insertLocked with allowLoose=false to avoid re-entering the
// loose-deferral branch.
func (mc *MainChain) resolveLooseLocked(parent address.Digest) {
	queue := []address.Digest{parent}
	for len(queue) > 0 {
		h := queue[0]
		queue = queue[1:]

		mc.looseMu.Lock()
		pending := mc.looseBlocks[h]
		delete(mc.looseBlocks, h)
		mc.looseMu.Unlock()

		for _, child := range pending {
			child.IsLoose = false
			if _, err := mc.insertLocked(child, false); err == nil {
				queue = append(queue, child.Hash)
			}
		}
	}
}

// detectDuplicateTransactions walks back from prev collecting every
// transaction-layout digest already committed on this chain, and reports
// whether block's own slices repeat any of them.
func (mc *MainChain) detectDuplicateTransactions(prev *chaintypes.Block, block *chaintypes.Block) bool {
	seen := map[address.Digest]struct{}{}
	for cur := prev; cur != nil; cur = mc.blocks[cur.PreviousHash] {
		for _, slice := range cur.Slices {
			for _, tx := range slice {
				seen[tx.Digest] = struct{}{}
			}
		}
		if cur.Hash == mc.genesis {
			break
		}
	}
	for _, slice := range block.Slices {
		for _, tx := range slice {
			if _, ok := seen[tx.Digest]; ok {
				return true
			}
		}
	}
	return false
}

// considerFlush persists the block exactly BlockConfirmation blocks below
// the new heaviest tip and records it as the store's head. Only that one
// block is written per call; deeper blocks are not revisited. Called with
// mu held.
func (mc *MainChain) considerFlush() {
	if mc.persist == nil {
		return
	}
	tip, ok := mc.blocks[mc.heaviest.Hash]
	if !ok || tip.BlockNumber < mc.cfg.BlockConfirmation {
		return
	}
	cur := tip
	for i := uint64(0); i < mc.cfg.BlockConfirmation; i++ {
		parent, ok := mc.blocks[cur.PreviousHash]
		if !ok {
			return
		}
		cur = parent
	}
	if err := mc.persist.PutBlock(cur); err != nil {
		mc.log.Warnw("flush failed", "err", err, "hash", cur.Hash)
		return
	}
	if err := mc.persist.SetHead(cur.Hash); err != nil {
		mc.log.Warnw("set head failed", "err", err)
	}
}
