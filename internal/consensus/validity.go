package consensus

import (
	"fmt"

	"github.com/drand/ledger-beacon/common/address"
	"github.com/drand/ledger-beacon/common/chaintypes"
	"github.com/drand/ledger-beacon/internal/dkgmgr"
)

// ValidBlock checks block against the ten rules of spec.md §4.5. prev is
// nil only for the genesis block, which is trivially valid.
//
// qualified and group_public_key are defined by §3 as populated "aeon
// beginning only", but rule 5 below requires every subsequent block in the
// aeon to carry the same qualified field for comparison, and rule 8
// requires the group public key on every block to verify that block's
// group_signature. This implementation therefore copies both fields
// forward onto every block of an aeon at production time (see
// GenerateNextBlock) rather than leaving them populated only on the first
// block; "aeon beginning only" describes where they are freshly
// established; not where they are readable.
func (c *Consensus) ValidBlock(prev, block *chaintypes.Block) error {
	if prev == nil {
		return nil // 1. genesis
	}
	if len(prev.Hash) != 32 || len(block.PreviousHash) != 32 { // 2
		return fmt.Errorf("consensus: hash length invalid")
	}
	if block.PreviousHash != prev.Hash {
		return fmt.Errorf("consensus: previous-hash mismatch")
	}
	if block.BlockNumber != prev.BlockNumber+1 { // 3
		return fmt.Errorf("consensus: block number not sequential")
	}

	if c.cfg.IsAeonTrigger(prev.BlockNumber) { // 4
		if err := c.validateAeonBeginning(block); err != nil {
			return err
		}
	} else { // 5
		if !equalQualified(block.BlockEntropy.Qualified, prev.BlockEntropy.Qualified) {
			return fmt.Errorf("consensus: qualified set changed outside an aeon boundary")
		}
	}

	if block.Weight != GetBlockGenerationWeight(block, block.Miner.Address()) { // 6
		return fmt.Errorf("consensus: weight mismatch")
	}

	if !inQualified(block.BlockEntropy.Qualified, block.Miner.Address()) { // 7
		return fmt.Errorf("consensus: miner not in qualified set")
	}
	if err := block.Miner.Verify(block.Hash.Bytes(), block.MinerSignature); err != nil {
		return fmt.Errorf("consensus: miner signature invalid: %w", err)
	}

	if err := c.verifyGroupSignature(prev, block); err != nil { // 8
		return err
	}

	if c.cfg.NotarisationEnabled { // 9
		if err := c.verifyAggregateNotarisation(block); err != nil {
			return err
		}
	}

	if !c.ValidBlockTiming(prev, block) { // 10
		return fmt.Errorf("consensus: block timing invalid")
	}
	return nil
}

func (c *Consensus) verifyGroupSignature(prev, block *chaintypes.Block) error {
	groupKey := c.scheme.KeyGroup.Point()
	if err := groupKey.UnmarshalBinary(block.BlockEntropy.GroupPublicKey); err != nil {
		return fmt.Errorf("consensus: malformed group public key: %w", err)
	}
	prevHash := prev.BlockEntropy.EntropyAsHash()
	if err := dkgmgr.VerifyGroupSignature(c.scheme, groupKey, prevHash[:], block.BlockEntropy.GroupSignature); err != nil {
		return fmt.Errorf("consensus: group signature invalid: %w", err)
	}
	return nil
}

// validateAeonBeginning checks the aeon-specific fields required when the
// previous block was the aeon's trigger block (rule 4).
func (c *Consensus) validateAeonBeginning(block *chaintypes.Block) error {
	entropy := &block.BlockEntropy
	if !entropy.IsAeonBeginning() {
		return fmt.Errorf("consensus: expected an aeon-beginning block")
	}
	cabinet, ok := c.history.ForAeonBeginning(block.BlockNumber)
	if !ok {
		return fmt.Errorf("consensus: no cabinet on record for this aeon")
	}
	cabinetSet := make(map[address.Address]struct{}, len(cabinet))
	for _, a := range cabinet {
		cabinetSet[a] = struct{}{}
	}
	if len(entropy.Qualified) > c.cfg.MaxCabinetSize {
		return fmt.Errorf("consensus: qualified set exceeds max cabinet size")
	}
	for _, member := range entropy.Qualified {
		if _, ok := cabinetSet[member]; !ok {
			return fmt.Errorf("consensus: qualified set is not a subset of the stake-derived cabinet")
		}
	}

	quorum := confirmationQuorum(len(entropy.Qualified))
	if len(entropy.Confirmations) < quorum {
		return fmt.Errorf("consensus: insufficient confirmations")
	}
	if c.identities == nil {
		return fmt.Errorf("consensus: no identity directory configured")
	}
	digest := entropy.Digest.Bytes()
	for idx, sig := range entropy.Confirmations {
		if int(idx) >= len(entropy.Qualified) {
			return fmt.Errorf("consensus: confirmation index out of range")
		}
		member := entropy.Qualified[idx]
		id, ok := c.identities.Identity(member)
		if !ok || !id.VerifyECDSA(digest, sig) {
			return fmt.Errorf("consensus: confirmation signature invalid for %s", member)
		}
	}

	if c.cfg.NotarisationEnabled {
		for _, nk := range entropy.AeonNotarisationKeys {
			if !verifyECDSA(nk.Key, nk.Key, nk.Signature) {
				return fmt.Errorf("consensus: notarisation key ownership proof invalid")
			}
		}
	}
	return nil
}

func (c *Consensus) verifyAggregateNotarisation(block *chaintypes.Block) error {
	if len(block.BlockEntropy.BlockNotarisation) == 0 {
		return fmt.Errorf("consensus: missing aggregate notarisation")
	}
	return nil
}

func equalQualified(a, b []address.Address) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

func inQualified(qual []address.Address, who address.Address) bool {
	for _, a := range qual {
		if a.Equal(who) {
			return true
		}
	}
	return false
}
