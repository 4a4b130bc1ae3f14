package beaconsvc

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"

	"github.com/drand/ledger-beacon/common/address"
)

// encodeRound packs a GET_SIGNATURE_SHARES request: a single round number,
// fixed-size, so plain big-endian beats pulling in a codec for one uint64.
func encodeRound(round uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], round)
	return buf[:]
}

func decodeRound(b []byte) (uint64, bool) {
	if len(b) != 8 {
		return 0, false
	}
	return binary.BigEndian.Uint64(b), true
}

// encodeSignatureInfo/decodeSignatureInfo carry the GET_SIGNATURE_SHARES
// response: a variable-size map, gob-encoded for the same reason
// beaconsetup's internal messages are - no cross-version or cross-language
// contract, same binary on both ends.
func encodeSignatureInfo(info SignatureInformation) []byte {
	var buf bytes.Buffer
	_ = gob.NewEncoder(&buf).Encode(info)
	return buf.Bytes()
}

func decodeSignatureInfo(b []byte) (SignatureInformation, error) {
	var info SignatureInformation
	err := gob.NewDecoder(bytes.NewReader(b)).Decode(&info)
	return info, err
}

// HandleGetSignatureShares is the ServiceBeaconRPC request handler a
// transport's RPC server adapter calls for an inbound GET_SIGNATURE_SHARES
// request; it decodes the round, looks up whatever shares this node holds,
// and returns the encoded response.
func (s *Service) HandleGetSignatureShares(from address.Address, request []byte) ([]byte, error) {
	round, ok := decodeRound(request)
	if !ok {
		return nil, fmt.Errorf("beaconsvc: malformed GET_SIGNATURE_SHARES request from %v", from)
	}
	info := s.GetSignatureShares(round)
	return encodeSignatureInfo(info), nil
}
