// Package chaintypes defines the wire-level data model shared by the DKG,
// beacon, consensus and main-chain components: blocks, per-block entropy,
// aeon descriptors and the small index/snapshot types that glue them
// together. Grounded on the teacher's common/chain (chain.Info) and
// common/key (key.Group), generalized to the DAG/weighted-block model this
// module implements instead of drand's single linear randomness chain.
package chaintypes

import (
	"github.com/drand/ledger-beacon/common/address"
)

// NotarisationKey pairs an aeon-notarisation public key with an ECDSA
// signature by its owner over that key. Optional feature (§3 BlockEntropy).
type NotarisationKey struct {
	Key       []byte
	Signature []byte
}

// BlockEntropy is the per-block randomness packet. Qualified and
// GroupPublicKey are carried on every block of an aeon; the other
// aeon-beginning fields (AeonNotarisationKeys, Confirmations, Digest) are
// populated only on the first block of an aeon; IsAeonBeginning is defined
// as "Confirmations is non-empty" per spec invariant.
type BlockEntropy struct {
	Qualified            []address.Address
	GroupPublicKey       []byte
	AeonNotarisationKeys []NotarisationKey
	BlockNumber          uint64
	Digest               address.Digest
	// Confirmations maps a qualified-set index to an ECDSA signature over Digest.
	Confirmations map[uint32][]byte
	// GroupSignature is the threshold BLS signature over SHA-256(previous GroupSignature).
	GroupSignature []byte
	// BlockNotarisation is the optional aggregate notarisation signature.
	BlockNotarisation []byte
}

// IsAeonBeginning reports whether this packet carries aeon-beginning fields.
func (e *BlockEntropy) IsAeonBeginning() bool {
	return len(e.Confirmations) > 0
}

// EntropyAsHash returns SHA-256(GroupSignature), the source of next-block
// entropy.
func (e *BlockEntropy) EntropyAsHash() [32]byte {
	return hashBytes(e.GroupSignature)
}

// EntropyAsU64 returns the first 8 bytes of EntropyAsHash, big-endian.
func (e *BlockEntropy) EntropyAsU64() uint64 {
	h := e.EntropyAsHash()
	var v uint64
	for i := 0; i < 8; i++ {
		v = v<<8 | uint64(h[i])
	}
	return v
}

// TransactionLayout is an ordered slice of transactions as packed by the
// (out-of-scope) transaction pool/block packer. The core only needs to hash
// it for duplicate-detection purposes, so it is kept opaque beyond that.
type TransactionLayout struct {
	// Digest identifies this layout for the duplicate-transaction filter.
	Digest address.Digest
	// Raw carries whatever bytes the packer produced; the consensus core
	// never interprets them.
	Raw []byte
}

// Block is one node of the main-chain DAG.
type Block struct {
	PreviousHash   address.Digest
	MerkleHash     address.Digest
	BlockNumber    uint64
	Miner          address.Identity
	Log2NumLanes   uint32
	Slices         [][]TransactionLayout
	Timestamp      int64 // unix seconds
	BlockEntropy   BlockEntropy
	Weight         uint64
	MinerSignature []byte
	Hash           address.Digest

	// Metadata: not serialized, not hashed.
	TotalWeight uint64
	IsLoose     bool
	ChainLabel  string
}

// Aeon describes one contiguous DKG epoch.
type Aeon struct {
	Members                 []address.Address
	RoundStart              uint64
	RoundEnd                uint64
	BlockEntropyPrevious    BlockEntropy
	StartReferenceTimepoint int64
}

// Equal compares members+round_start+round_end, per spec.
func (a Aeon) Equal(o Aeon) bool {
	if a.RoundStart != o.RoundStart || a.RoundEnd != o.RoundEnd {
		return false
	}
	if len(a.Members) != len(o.Members) {
		return false
	}
	for i := range a.Members {
		if !a.Members[i].Equal(o.Members[i]) {
			return false
		}
	}
	return true
}

// Tip is one leaf of the DAG of non-loose blocks.
type Tip struct {
	TotalWeight uint64
}

// HeaviestTip tracks the current canonical tip with its tie-break key.
type HeaviestTip struct {
	Weight uint64
	Hash   address.Digest
}

// Less reports whether h is strictly lighter than o under the spec's
// tie-break: larger weight wins; on a tie, the lexicographically larger
// hash wins.
func (h HeaviestTip) Less(o HeaviestTip) bool {
	if h.Weight != o.Weight {
		return h.Weight < o.Weight
	}
	for i := range h.Hash {
		if h.Hash[i] != o.Hash[i] {
			return h.Hash[i] < o.Hash[i]
		}
	}
	return false
}

// StakeSnapshot maps an address to its integer stake at some block.
type StakeSnapshot map[address.Address]uint64

// SignatureInformation is the peer-to-peer exchange unit for partial
// threshold signatures on a given round.
type SignatureInformation struct {
	Round               uint64
	ThresholdSignatures map[address.Address][]byte
}
