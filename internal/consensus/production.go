package consensus

import (
	"fmt"
	"sync"

	"github.com/drand/ledger-beacon/common/chaintypes"
	"github.com/drand/ledger-beacon/internal/stake"
)

// NotarisationProvider supplies the optional aggregate notarisation
// signature for a proposed block; out of this package's core scope (it
// depends on whichever notarisation-key exchange the deployment runs), so
// it is injected like BeaconSource/SetupNotifier.
type NotarisationProvider interface {
	// Notarisation returns the aggregate signature for block, or ok=false
	// if it is not ready yet.
	Notarisation(block *chaintypes.Block) (sig []byte, ok bool)
}

// currentBlockState is UpdateCurrentBlock's cached view of the chain tip
// this node is building on.
type currentBlockState struct {
	mu    sync.Mutex
	block *chaintypes.Block
}

// GenerateNextBlock attempts to produce the next block atop current, per
// spec.md §4.5. It returns (nil, false) whenever production should not
// proceed yet: entropy not ready, or it is not this node's turn.
func (c *Consensus) GenerateNextBlock(current *chaintypes.Block) (*chaintypes.Block, bool) {
	if c.beacon == nil {
		return nil, false
	}
	nextNumber := current.BlockNumber + 1
	status, entropy := c.beacon.GenerateEntropy(nextNumber)
	if status != EntropyOK {
		return nil, false
	}

	proposed := &chaintypes.Block{
		PreviousHash: current.Hash,
		BlockNumber:  nextNumber,
		Miner:        c.self,
		Timestamp:    c.clock.Now().Unix(),
		BlockEntropy: entropy,
	}
	proposed.Weight = GetBlockGenerationWeight(proposed, c.self.Address())

	if !c.ValidBlockTiming(current, proposed) {
		return nil, false
	}

	if c.cfg.NotarisationEnabled && c.notarisation != nil {
		sig, ok := c.notarisation.Notarisation(proposed)
		if !ok {
			return nil, false
		}
		proposed.BlockEntropy.BlockNotarisation = sig
	}
	return proposed, true
}

// UpdateCurrentBlock advances the cached chain tip. When block's number is
// an aeon-trigger, it also builds the next cabinet, records it, and drives
// BeaconSetupService/BeaconService accordingly, per spec.md §4.5.
func (c *Consensus) UpdateCurrentBlock(block *chaintypes.Block) error {
	c.current.mu.Lock()
	c.current.block = block
	c.current.mu.Unlock()

	if c.setup != nil {
		c.setup.MostRecentSeen(block.BlockNumber)
	}

	if !c.cfg.IsAeonTrigger(block.BlockNumber) {
		return nil
	}
	if c.stakes == nil {
		return fmt.Errorf("consensus: no stake snapshot source configured")
	}
	snapshot := c.stakes.StakeSnapshotAt(block)
	members := stake.BuildCabinet(snapshot, c.cfg.MaxCabinetSize, c.whitelist)
	c.history.Record(block.BlockNumber, block.Hash, members)

	roundStart := block.BlockNumber + 1
	roundEnd := block.BlockNumber + c.cfg.AeonPeriod
	if c.setup != nil {
		c.setup.StartNewCabinet(members, roundStart, roundEnd)
		c.setup.AbortBelow(roundStart)
	}
	return nil
}

// CurrentBlock returns the most recently recorded chain tip, or nil if
// UpdateCurrentBlock has not been called yet.
func (c *Consensus) CurrentBlock() *chaintypes.Block {
	c.current.mu.Lock()
	defer c.current.mu.Unlock()
	return c.current.block
}
