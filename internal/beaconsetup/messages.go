package beaconsetup

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/drand/ledger-beacon/common/address"
)

// Message kinds tag every envelope exchanged during setup, phase-scoped by
// round so a stray message from an aborted attempt cannot be replayed into
// a later one.
type kind uint8

const (
	kindConnections kind = iota
	kindNotarisationKey
	kindCoefficients
	kindQualCoefficients
	kindComplaints
	kindQualComplaints
	kindShares // complaint-answer / qual-complaint-answer / reconstruction shares
	kindFinalState
)

// envelope wraps every RBC-broadcast setup message with the round start of
// the aeon it belongs to, so attempts for different aeons never share an
// RBC tag. The tag carries no failure count: every RESET cycle of one
// attempt reuses the same tags, and their RBC state is cleared only by the
// ResetCabinet call made on each RESET.
type envelope struct {
	Kind  kind
	Round uint64
	Body  []byte
}

func (k kind) tag(round uint64) string {
	return fmt.Sprintf("setup|%d|%d", round, k)
}

func encodeEnvelope(e envelope) []byte {
	var buf bytes.Buffer
	_ = gob.NewEncoder(&buf).Encode(e)
	return buf.Bytes()
}

func decodeEnvelope(b []byte) (envelope, error) {
	var e envelope
	err := gob.NewDecoder(bytes.NewReader(b)).Decode(&e)
	return e, err
}

// connectionsMessage reports peers is the subset of the cabinet this node
// can currently reach directly.
type connectionsMessage struct {
	Peers []address.Address
}

// notarisationKeyMessage attaches an additional notarisation public key,
// self-signed as a proof of possession.
type notarisationKeyMessage struct {
	Key       []byte
	Signature []byte
}

// coefficientsMessage carries one dealer's Pedersen commitments, marshaled
// point-by-point since kyber.Point doesn't gob-encode directly.
type coefficientsMessage struct {
	Commits [][]byte
}

// complaintsMessage names the peers this node is complaining against at
// the current phase (regular share phase or qual-coefficients phase).
type complaintsMessage struct {
	Accused []address.Address
}

// sharesMessage exposes raw (s, s') pairs for one or more accused dealers -
// used for complaint answers, qual-complaint answers, and reconstruction
// shares depending on the phase the envelope is tagged with.
type sharesMessage struct {
	Accused []address.Address
	S       [][]byte
	SPrime  [][]byte
}

// privateShareMessage carries one dealer's (s, s') pair to a single peer,
// sent via transport.Unicast rather than RBC - the only setup message that
// must not reach the whole cabinet.
type privateShareMessage struct {
	S      []byte
	SPrime []byte
}

// finalStateMessage is the sender's ECDSA signature over the
// aeon-beginning block's BlockEntropy.digest, offered as a confirmation
// that this node reached DRY_RUN_SIGNING successfully.
type finalStateMessage struct {
	Digest    []byte
	Signature []byte
}

func encodeBody(v interface{}) []byte {
	var buf bytes.Buffer
	_ = gob.NewEncoder(&buf).Encode(v)
	return buf.Bytes()
}

func decodeBody(b []byte, v interface{}) error {
	return gob.NewDecoder(bytes.NewReader(b)).Decode(v)
}
