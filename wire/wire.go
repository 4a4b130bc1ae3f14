// Package wire implements the deterministic binary encoding of Block,
// BlockEntropy and Aeon described in spec.md §6. Field numbers are fixed
// there for wire compatibility; rather than generating types from a
// .proto file (which this module does not ship, since nothing here speaks
// gRPC), the encoder/decoder is hand-written directly against
// google.golang.org/protobuf's low-level protowire primitives - the exact
// building blocks protoc-generated marshal code itself expands to.
package wire

import (
	"crypto/sha256"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/drand/ledger-beacon/common/address"
	"github.com/drand/ledger-beacon/common/chaintypes"
)

// Field numbers, preserved verbatim from spec.md §6.
const (
	fBlockWeight         = 1
	fBlockTotalWeight    = 2
	fBlockMinerSignature = 3
	fBlockHash           = 4
	fBlockPreviousHash   = 5
	fBlockMerkleHash     = 6
	fBlockNumber         = 7
	fBlockMinerID        = 8
	fBlockLog2NumLanes   = 9
	fBlockSlices         = 10
	fBlockDagEpoch       = 11 // reserved, unused by this implementation
	fBlockTimestamp      = 12
	fBlockEntropy        = 13

	fEntropyQualified     = 1
	fEntropyGroupPubKey   = 2
	fEntropyBlockNumber   = 3
	fEntropyConfirmations = 4
	fEntropyGroupSig      = 5
	fEntropyNotarKeys     = 6
	fEntropyNotarisation  = 7
	fEntropyNotarMembers  = 8

	fAeonMembers    = 1
	fAeonRoundStart = 2
	fAeonRoundEnd   = 3
	fAeonBEPrevious = 4
	fAeonStartRef   = 5
)

func appendBytesField(b []byte, n protowire.Number, v []byte) []byte {
	b = protowire.AppendTag(b, n, protowire.BytesType)
	b = protowire.AppendBytes(b, v)
	return b
}

func appendVarintField(b []byte, n protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, n, protowire.VarintType)
	b = protowire.AppendVarint(b, v)
	return b
}

func appendAddressField(b []byte, n protowire.Number, a address.Address) []byte {
	return appendBytesField(b, n, a[:])
}

// EncodeAeon serializes an Aeon's fields in order (members, round_start,
// round_end, block_entropy_previous, start_reference_timepoint).
func EncodeAeon(a chaintypes.Aeon) []byte {
	var b []byte
	for _, m := range a.Members {
		b = appendAddressField(b, fAeonMembers, m)
	}
	b = appendVarintField(b, fAeonRoundStart, a.RoundStart)
	b = appendVarintField(b, fAeonRoundEnd, a.RoundEnd)
	b = appendBytesField(b, fAeonBEPrevious, EncodeBlockEntropy(a.BlockEntropyPrevious))
	b = appendVarintField(b, fAeonStartRef, uint64(a.StartReferenceTimepoint))
	return b
}

// EncodeBlockEntropy serializes a BlockEntropy. Empty fields are omitted,
// so a packet that is not aeon-beginning carries no confirmations or
// notarisation keys; qualified and group_public_key are written whenever
// they are set, which is on every block of an aeon.
func EncodeBlockEntropy(e chaintypes.BlockEntropy) []byte {
	var b []byte
	for _, q := range e.Qualified {
		b = appendAddressField(b, fEntropyQualified, q)
	}
	if len(e.GroupPublicKey) > 0 {
		b = appendBytesField(b, fEntropyGroupPubKey, e.GroupPublicKey)
	}
	b = appendVarintField(b, fEntropyBlockNumber, e.BlockNumber)
	for idx, sig := range e.Confirmations {
		entry := appendVarintField(nil, 1, uint64(idx))
		entry = appendBytesField(entry, 2, sig)
		b = appendBytesField(b, fEntropyConfirmations, entry)
	}
	if len(e.GroupSignature) > 0 {
		b = appendBytesField(b, fEntropyGroupSig, e.GroupSignature)
	}
	for _, nk := range e.AeonNotarisationKeys {
		entry := appendBytesField(nil, 1, nk.Key)
		entry = appendBytesField(entry, 2, nk.Signature)
		b = appendBytesField(b, fEntropyNotarKeys, entry)
	}
	if len(e.BlockNotarisation) > 0 {
		b = appendBytesField(b, fEntropyNotarisation, e.BlockNotarisation)
	}
	return b
}

// EntropyDigestFields is the subset of BlockEntropy hashed into Digest:
// exactly (qualified, group_public_key, block_number, aeon_notarisation_keys)
// in that order, per spec.md §6.
func EntropyDigestFields(e chaintypes.BlockEntropy) []byte {
	var b []byte
	for _, q := range e.Qualified {
		b = appendAddressField(b, fEntropyQualified, q)
	}
	if len(e.GroupPublicKey) > 0 {
		b = appendBytesField(b, fEntropyGroupPubKey, e.GroupPublicKey)
	}
	b = appendVarintField(b, fEntropyBlockNumber, e.BlockNumber)
	for _, nk := range e.AeonNotarisationKeys {
		entry := appendBytesField(nil, 1, nk.Key)
		entry = appendBytesField(entry, 2, nk.Signature)
		b = appendBytesField(b, fEntropyNotarKeys, entry)
	}
	return b
}

// EncodeBlockForHash serializes a Block's fields in wire order, eliding the
// unserialized metadata (total_weight, is_loose, chain_label) and the hash
// field itself - exactly the bytes that get hashed to produce Block.Hash.
func EncodeBlockForHash(blk chaintypes.Block) []byte {
	var b []byte
	b = appendVarintField(b, fBlockWeight, blk.Weight)
	b = appendBytesField(b, fBlockMinerSignature, blk.MinerSignature)
	b = appendBytesField(b, fBlockPreviousHash, blk.PreviousHash[:])
	b = appendBytesField(b, fBlockMerkleHash, blk.MerkleHash[:])
	b = appendVarintField(b, fBlockNumber, blk.BlockNumber)
	b = appendAddressField(b, fBlockMinerID, blk.Miner.Address())
	b = appendVarintField(b, fBlockLog2NumLanes, uint64(blk.Log2NumLanes))
	for _, slice := range blk.Slices {
		var s []byte
		for _, tx := range slice {
			s = appendBytesField(s, 1, tx.Digest[:])
		}
		b = appendBytesField(b, fBlockSlices, s)
	}
	b = appendVarintField(b, fBlockTimestamp, uint64(blk.Timestamp))
	b = appendBytesField(b, fBlockEntropy, EncodeBlockEntropy(blk.BlockEntropy))
	return b
}

// EncodeBlockFull serializes the complete wire representation of a block,
// including total_weight and hash - the form that goes over the network or
// into the persistent store.
func EncodeBlockFull(blk chaintypes.Block) []byte {
	var b []byte
	b = appendVarintField(b, fBlockWeight, blk.Weight)
	b = appendVarintField(b, fBlockTotalWeight, blk.TotalWeight)
	b = appendBytesField(b, fBlockMinerSignature, blk.MinerSignature)
	b = appendBytesField(b, fBlockHash, blk.Hash[:])
	b = appendBytesField(b, fBlockPreviousHash, blk.PreviousHash[:])
	b = appendBytesField(b, fBlockMerkleHash, blk.MerkleHash[:])
	b = appendVarintField(b, fBlockNumber, blk.BlockNumber)
	b = appendAddressField(b, fBlockMinerID, blk.Miner.Address())
	b = appendVarintField(b, fBlockLog2NumLanes, uint64(blk.Log2NumLanes))
	for _, slice := range blk.Slices {
		var s []byte
		for _, tx := range slice {
			s = appendBytesField(s, 1, tx.Digest[:])
		}
		b = appendBytesField(b, fBlockSlices, s)
	}
	b = appendVarintField(b, fBlockTimestamp, uint64(blk.Timestamp))
	b = appendBytesField(b, fBlockEntropy, EncodeBlockEntropy(blk.BlockEntropy))
	return b
}

// DecodeBlockFull parses the bytes produced by EncodeBlockFull. Unknown
// fields are skipped, matching protobuf's forward-compatibility contract.
func DecodeBlockFull(b []byte) (chaintypes.Block, error) {
	var blk chaintypes.Block
	var minerAddr address.Address
	var slices [][]byte

	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return blk, fmt.Errorf("wire: invalid tag")
		}
		b = b[n:]
		switch num {
		case fBlockWeight:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return blk, fmt.Errorf("wire: invalid weight")
			}
			blk.Weight = v
			b = b[n:]
		case fBlockTotalWeight:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return blk, fmt.Errorf("wire: invalid total_weight")
			}
			blk.TotalWeight = v
			b = b[n:]
		case fBlockNumber:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return blk, fmt.Errorf("wire: invalid block_number")
			}
			blk.BlockNumber = v
			b = b[n:]
		case fBlockLog2NumLanes:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return blk, fmt.Errorf("wire: invalid log2_num_lanes")
			}
			blk.Log2NumLanes = uint32(v)
			b = b[n:]
		case fBlockTimestamp:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return blk, fmt.Errorf("wire: invalid timestamp")
			}
			blk.Timestamp = int64(v)
			b = b[n:]
		case fBlockMinerSignature:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return blk, fmt.Errorf("wire: invalid miner_signature")
			}
			blk.MinerSignature = append([]byte(nil), v...)
			b = b[n:]
		case fBlockHash:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return blk, fmt.Errorf("wire: invalid hash")
			}
			copy(blk.Hash[:], v)
			b = b[n:]
		case fBlockPreviousHash:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return blk, fmt.Errorf("wire: invalid previous_hash")
			}
			copy(blk.PreviousHash[:], v)
			b = b[n:]
		case fBlockMerkleHash:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return blk, fmt.Errorf("wire: invalid merkle_hash")
			}
			copy(blk.MerkleHash[:], v)
			b = b[n:]
		case fBlockMinerID:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return blk, fmt.Errorf("wire: invalid miner_id")
			}
			copy(minerAddr[:], v)
			b = b[n:]
		case fBlockSlices:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return blk, fmt.Errorf("wire: invalid slices")
			}
			slices = append(slices, append([]byte(nil), v...))
			b = b[n:]
		case fBlockEntropy:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return blk, fmt.Errorf("wire: invalid block_entropy")
			}
			entropy, err := DecodeBlockEntropy(v)
			if err != nil {
				return blk, err
			}
			blk.BlockEntropy = entropy
			b = b[n:]
		default:
			n := skipField(typ, b)
			if n < 0 {
				return blk, fmt.Errorf("wire: cannot skip field %d", num)
			}
			b = b[n:]
		}
	}

	blk.Miner = address.NewIdentity(minerAddr, nil, nil)
	for _, s := range slices {
		layout, err := decodeSlice(s)
		if err != nil {
			return blk, err
		}
		blk.Slices = append(blk.Slices, layout)
	}
	if len(blk.BlockEntropy.Confirmations) > 0 {
		blk.BlockEntropy.Digest = address.Digest(chaintypesSum(EntropyDigestFields(blk.BlockEntropy)))
	}
	return blk, nil
}

func decodeSlice(b []byte) ([]chaintypes.TransactionLayout, error) {
	var out []chaintypes.TransactionLayout
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("wire: invalid slice tag")
		}
		b = b[n:]
		if num == 1 && typ == protowire.BytesType {
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("wire: invalid tx digest")
			}
			var d address.Digest
			copy(d[:], v)
			out = append(out, chaintypes.TransactionLayout{Digest: d})
			b = b[n:]
			continue
		}
		n2 := skipField(typ, b)
		if n2 < 0 {
			return nil, fmt.Errorf("wire: cannot skip slice field %d", num)
		}
		b = b[n2:]
	}
	return out, nil
}

// DecodeBlockEntropy parses the bytes produced by EncodeBlockEntropy. Per
// spec, the digest is recomputed from the deserialized fields whenever
// confirmations is non-empty - callers that need the digest should read it
// back off the returned value, which DecodeBlockFull already does.
func DecodeBlockEntropy(b []byte) (chaintypes.BlockEntropy, error) {
	var e chaintypes.BlockEntropy
	e.Confirmations = map[uint32][]byte{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return e, fmt.Errorf("wire: invalid entropy tag")
		}
		b = b[n:]
		switch num {
		case fEntropyQualified:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return e, fmt.Errorf("wire: invalid qualified entry")
			}
			var a address.Address
			copy(a[:], v)
			e.Qualified = append(e.Qualified, a)
			b = b[n:]
		case fEntropyGroupPubKey:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return e, fmt.Errorf("wire: invalid group_public_key")
			}
			e.GroupPublicKey = append([]byte(nil), v...)
			b = b[n:]
		case fEntropyBlockNumber:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return e, fmt.Errorf("wire: invalid entropy block_number")
			}
			e.BlockNumber = v
			b = b[n:]
		case fEntropyConfirmations:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return e, fmt.Errorf("wire: invalid confirmation entry")
			}
			idx, sig, err := decodeConfirmation(v)
			if err != nil {
				return e, err
			}
			e.Confirmations[idx] = sig
			b = b[n:]
		case fEntropyGroupSig:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return e, fmt.Errorf("wire: invalid group_signature")
			}
			e.GroupSignature = append([]byte(nil), v...)
			b = b[n:]
		case fEntropyNotarKeys:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return e, fmt.Errorf("wire: invalid notarisation key entry")
			}
			nk, err := decodeNotarisationKey(v)
			if err != nil {
				return e, err
			}
			e.AeonNotarisationKeys = append(e.AeonNotarisationKeys, nk)
			b = b[n:]
		case fEntropyNotarisation:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return e, fmt.Errorf("wire: invalid notarisation")
			}
			e.BlockNotarisation = append([]byte(nil), v...)
			b = b[n:]
		default:
			n := skipField(typ, b)
			if n < 0 {
				return e, fmt.Errorf("wire: cannot skip entropy field %d", num)
			}
			b = b[n:]
		}
	}
	if len(e.Confirmations) == 0 {
		e.Confirmations = nil
	} else {
		e.Digest = address.Digest(chaintypesSum(EntropyDigestFields(e)))
	}
	return e, nil
}

func decodeConfirmation(b []byte) (uint32, []byte, error) {
	var idx uint32
	var sig []byte
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return 0, nil, fmt.Errorf("wire: invalid confirmation tag")
		}
		b = b[n:]
		switch num {
		case 1:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return 0, nil, fmt.Errorf("wire: invalid confirmation index")
			}
			idx = uint32(v)
			b = b[n:]
		case 2:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return 0, nil, fmt.Errorf("wire: invalid confirmation signature")
			}
			sig = append([]byte(nil), v...)
			b = b[n:]
		default:
			n := skipField(typ, b)
			if n < 0 {
				return 0, nil, fmt.Errorf("wire: cannot skip confirmation field")
			}
			b = b[n:]
		}
	}
	return idx, sig, nil
}

func decodeNotarisationKey(b []byte) (chaintypes.NotarisationKey, error) {
	var nk chaintypes.NotarisationKey
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nk, fmt.Errorf("wire: invalid notarisation key tag")
		}
		b = b[n:]
		switch num {
		case 1:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nk, fmt.Errorf("wire: invalid notarisation key bytes")
			}
			nk.Key = append([]byte(nil), v...)
			b = b[n:]
		case 2:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nk, fmt.Errorf("wire: invalid notarisation key signature")
			}
			nk.Signature = append([]byte(nil), v...)
			b = b[n:]
		default:
			n := skipField(typ, b)
			if n < 0 {
				return nk, fmt.Errorf("wire: cannot skip notarisation key field")
			}
			b = b[n:]
		}
	}
	return nk, nil
}

func skipField(typ protowire.Type, b []byte) int {
	switch typ {
	case protowire.VarintType:
		_, n := protowire.ConsumeVarint(b)
		return n
	case protowire.Fixed32Type:
		_, n := protowire.ConsumeFixed32(b)
		return n
	case protowire.Fixed64Type:
		_, n := protowire.ConsumeFixed64(b)
		return n
	case protowire.BytesType:
		_, n := protowire.ConsumeBytes(b)
		return n
	default:
		return -1
	}
}

func chaintypesSum(b []byte) [32]byte {
	return sha256.Sum256(b)
}
