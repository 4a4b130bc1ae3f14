package consensus

import "github.com/drand/ledger-beacon/common/chaintypes"

// ValidBlockTiming checks proposed against spec.md §4.5's block-timing
// rule: proposed's miner must be a qualified member, its timestamp must
// fall within [prev.timestamp, now] with no clock-skew tolerance, and it
// must arrive no sooner than one rank-scaled interval past prev.
func (c *Consensus) ValidBlockTiming(prev, proposed *chaintypes.Block) bool {
	minerAddr := proposed.Miner.Address()
	if GetBlockGenerationWeight(proposed, minerAddr) == 0 {
		return false
	}
	now := c.clock.Now().Unix()
	if proposed.Timestamp < prev.Timestamp || proposed.Timestamp > now {
		return false
	}
	rank := Rank(proposed, minerAddr)
	if rank < 0 {
		return false
	}
	intervalMS := c.cfg.BlockInterval.Milliseconds()
	required := intervalMS + int64(rank)*intervalMS
	elapsedMS := (proposed.Timestamp - prev.Timestamp) * 1000
	return elapsedMS >= required
}
