package beaconsetup

import (
	"context"

	"github.com/drand/ledger-beacon/common/address"
	"github.com/drand/ledger-beacon/common/chaintypes"
	"github.com/drand/ledger-beacon/internal/transport"
)

// DeliverSetup is the rbc.DeliverFunc this service registers with its
// ReliableBroadcast endpoint: every agreed-upon setup message for the
// current attempt's round arrives here, tagged with the kind it carries.
func (s *Service) DeliverSetup(sender address.Address, tag string, payload []byte) {
	env, err := decodeEnvelope(payload)
	if err != nil {
		s.log.Warnw("malformed setup envelope", "from", sender, "err", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.current
	if a == nil || env.Round != a.roundStart {
		return
	}

	switch env.Kind {
	case kindConnections:
		var msg connectionsMessage
		if decodeBody(env.Body, &msg) != nil {
			return
		}
		a.contributedConn[sender] = struct{}{}
		a.connected[sender] = struct{}{}
		for _, p := range msg.Peers {
			a.connected[p] = struct{}{}
		}

	case kindNotarisationKey:
		var msg notarisationKeyMessage
		if decodeBody(env.Body, &msg) != nil {
			return
		}
		id, ok := s.identityLocked(sender)
		if !ok || !id.VerifyECDSA(msg.Key, msg.Signature) {
			s.log.Warnw("dropping notarisation key with invalid proof of possession", "from", sender)
			return
		}
		a.notarKeys[sender] = chaintypes.NotarisationKey{Key: msg.Key, Signature: msg.Signature}

	case kindCoefficients:
		var msg coefficientsMessage
		if decodeBody(env.Body, &msg) != nil {
			return
		}
		points, err := s.unmarshalPointsLocked(msg.Commits)
		if err != nil {
			s.log.Warnw("malformed coefficients", "from", sender, "err", err)
			return
		}
		if err := a.manager.AddCoefficients(sender, points); err != nil {
			s.log.Warnw("AddCoefficients rejected", "from", sender, "err", err)
			return
		}
		a.coeffsFrom[sender] = msg.Commits

	case kindQualCoefficients:
		var msg coefficientsMessage
		if decodeBody(env.Body, &msg) != nil {
			return
		}
		a.qualCoeffsFromRaw[sender] = msg.Commits
		points, err := s.unmarshalPointsLocked(msg.Commits)
		if err == nil {
			if err := a.manager.AddQualCoefficients(sender, points); err != nil {
				s.log.Debugw("AddQualCoefficients rejected", "from", sender, "err", err)
			}
		}

	case kindComplaints:
		var msg complaintsMessage
		if decodeBody(env.Body, &msg) != nil {
			return
		}
		a.complaintsFrom[sender] = msg.Accused

	case kindQualComplaints:
		var msg complaintsMessage
		if decodeBody(env.Body, &msg) != nil {
			return
		}
		a.qualComplaintsFrom[sender] = msg.Accused

	case kindShares:
		var msg sharesMessage
		if decodeBody(env.Body, &msg) != nil {
			return
		}
		a.answersFrom[sender] = msg

	case kindFinalState:
		var msg finalStateMessage
		if decodeBody(env.Body, &msg) != nil {
			return
		}
		if !bytesEqual(msg.Digest, a.digest[:]) {
			return
		}
		id, ok := s.identityLocked(sender)
		if !ok || !id.VerifyECDSA(msg.Digest, msg.Signature) {
			s.log.Warnw("dropping final-state confirmation with bad signature", "from", sender)
			return
		}
		a.finalConfirmations[sender] = msg.Signature
	}
}

func (s *Service) identityLocked(addr address.Address) (address.Identity, bool) {
	if s.identities == nil {
		return address.Identity{}, false
	}
	return s.identities.Identity(addr)
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Deliver implements transport.Inbound for the DKG secret-key channel: the
// (s, s') pair a dealer unicasts directly to this node. This is the only
// transport channel BeaconSetupService receives directly rather than
// through ReliableBroadcast - see DeliverSetup for the rest.
func (s *Service) Deliver(ctx context.Context, from address.Address, svc transport.Service, payload []byte) error {
	if svc != transport.ServiceDKGSecretKey {
		return nil
	}
	var msg privateShareMessage
	if err := decodeBody(payload, &msg); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.current
	if a == nil {
		return nil
	}
	sc, err := s.unmarshalScalarLocked(msg.S)
	if err != nil {
		return err
	}
	spc, err := s.unmarshalScalarLocked(msg.SPrime)
	if err != nil {
		return err
	}
	if err := a.manager.AddShares(from, sc, spc); err != nil {
		return err
	}
	a.sharesAdded[from] = struct{}{}
	return nil
}

var _ transport.Inbound = (*Service)(nil)
