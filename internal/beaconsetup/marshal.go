package beaconsetup

import (
	"github.com/drand/kyber"

	"github.com/drand/ledger-beacon/common/address"
)

func marshalPoints(points []kyber.Point) [][]byte {
	out := make([][]byte, 0, len(points))
	for _, p := range points {
		b, err := p.MarshalBinary()
		if err != nil {
			continue
		}
		out = append(out, b)
	}
	return out
}

func (s *Service) unmarshalPointsLocked(raw [][]byte) ([]kyber.Point, error) {
	out := make([]kyber.Point, 0, len(raw))
	for _, b := range raw {
		p := s.scheme.KeyGroup.Point()
		if err := p.UnmarshalBinary(b); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *Service) unmarshalScalarLocked(raw []byte) (kyber.Scalar, error) {
	sc := s.scheme.KeyGroup.Scalar()
	if err := sc.UnmarshalBinary(raw); err != nil {
		return nil, err
	}
	return sc, nil
}

// unmarshalQualCoeffsLocked converts every sender's raw qual-phase
// commitment bytes collected this attempt into the map ComputeQualComplaints
// expects. Senders whose bytes fail to parse are skipped.
func (s *Service) unmarshalQualCoeffsLocked(a *attempt) map[address.Address][]kyber.Point {
	out := make(map[address.Address][]kyber.Point, len(a.qualCoeffsFromRaw))
	for sender, raw := range a.qualCoeffsFromRaw {
		points, err := s.unmarshalPointsLocked(raw)
		if err != nil {
			continue
		}
		out[sender] = points
	}
	return out
}
