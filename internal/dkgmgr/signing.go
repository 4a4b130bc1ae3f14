package dkgmgr

import (
	"fmt"

	"github.com/drand/kyber"
	"github.com/drand/kyber/share"

	"github.com/drand/ledger-beacon/common/address"
	"github.com/drand/ledger-beacon/crypto/bls"
)

// SetMessage records the digest this node will produce a threshold
// signature share for - the aeon-beginning block's BlockEntropy.digest
// during DRY_RUN_SIGNING, or a round's entropy hash during ongoing beacon
// operation.
func (m *DkgManager) SetMessage(digest []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.message = append([]byte(nil), digest...)
	m.signatureShares = map[address.Address][]byte{}
	m.groupSignature = nil
}

// Sign produces this node's threshold signature share over the
// previously-set message.
func (m *DkgManager) Sign() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.secretShare == nil {
		return nil, fmt.Errorf("dkgmgr: secret share not computed")
	}
	if m.message == nil {
		return nil, fmt.Errorf("dkgmgr: message not set")
	}
	priShare := &share.PriShare{I: m.index[m.self] - 1, V: m.secretShare}
	return m.scheme.ThresholdScheme.Sign(priShare, m.message)
}

// AddSignaturePart validates and records a threshold signature share from
// a cabinet member.
func (m *DkgManager) AddSignaturePart(from address.Address, sig []byte) AddShareStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.index[from]; !ok {
		return NotMember
	}
	if _, exists := m.signatureShares[from]; exists {
		return SignatureAlreadyAdded
	}
	if m.publicPoly != nil && m.message != nil {
		if err := m.scheme.ThresholdScheme.VerifyPartial(m.publicPoly, m.message, sig); err != nil {
			return InvalidSignature
		}
	}
	m.signatureShares[from] = sig
	return Added
}

// CanVerify reports whether at least t+1 signature shares have
// accumulated, the minimum needed to recover the group signature.
func (m *DkgManager) CanVerify() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.signatureShares) >= m.t+1
}

// Verify recovers the group signature from the accumulated shares and
// checks it against the group public key, caching the result for
// GroupSignature.
func (m *DkgManager) Verify() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.signatureShares) < m.t+1 {
		return fmt.Errorf("dkgmgr: not enough signature shares")
	}
	if m.publicPoly == nil {
		return fmt.Errorf("dkgmgr: public polynomial not computed")
	}
	sigs := make([][]byte, 0, len(m.signatureShares))
	for _, s := range m.signatureShares {
		sigs = append(sigs, s)
	}
	groupSig, err := m.scheme.ThresholdScheme.Recover(m.publicPoly, m.message, sigs, m.t+1, len(m.members))
	if err != nil {
		return fmt.Errorf("dkgmgr: recover group signature: %w", err)
	}
	if err := m.scheme.AuthScheme.Verify(m.groupPublicKey, m.message, groupSig); err != nil {
		return fmt.Errorf("dkgmgr: group signature failed verification: %w", err)
	}
	m.groupSignature = groupSig
	return nil
}

// GroupSignature returns the recovered group signature, or nil if Verify
// has not succeeded yet.
func (m *DkgManager) GroupSignature() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.groupSignature
}

// VerifyGroupSignature is the static form of group signature
// verification, usable by any party holding only the group public key.
func VerifyGroupSignature(scheme *bls.Scheme, groupPublicKey kyber.Point, message, signature []byte) error {
	return scheme.AuthScheme.Verify(groupPublicKey, message, signature)
}
