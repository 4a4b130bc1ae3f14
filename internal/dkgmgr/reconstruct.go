package dkgmgr

import (
	"fmt"

	"github.com/drand/kyber"
	"github.com/drand/kyber/share"

	"github.com/drand/ledger-beacon/common/address"
)

// ComputeSecretShare sums every qualified dealer's share to this node into
// its final secret share x_i = sum_{j in qual} s_ji. Must be called after
// qual is finalized (SetQual) and all qualified dealers' shares have been
// collected or reconstructed from complaint answers.
func (m *DkgManager) ComputeSecretShare() (kyber.Scalar, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.qual) == 0 {
		return nil, fmt.Errorf("dkgmgr: qual not set")
	}
	g := m.scheme.KeyGroup
	acc := g.Scalar().Zero()
	for dealer := range m.qual {
		sp, ok := m.sharesFrom[dealer]
		if !ok {
			return nil, fmt.Errorf("dkgmgr: missing share from qualified dealer %s", dealer)
		}
		acc = g.Scalar().Add(acc, sp.s)
	}
	m.secretShare = acc
	return acc, nil
}

// ComputePublicKeys derives every cabinet member's BLS verification key
// y_i = sum_{j in qual} C_j(i), and the group public key gpk = sum_{j in
// qual} C_j0, from the qual-phase commitments collected via
// AddQualCoefficients. Must be called after ComputeSecretShare.
func (m *DkgManager) ComputePublicKeys() (map[address.Address]kyber.Point, kyber.Point, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.qual) == 0 {
		return nil, nil, fmt.Errorf("dkgmgr: qual not set")
	}
	g := m.scheme.KeyGroup
	summed := make([]kyber.Point, m.t+1)
	for k := range summed {
		summed[k] = g.Point().Null()
	}
	for dealer := range m.qual {
		commits, ok := m.qualCommitsFrom[dealer]
		if !ok {
			return nil, nil, fmt.Errorf("dkgmgr: missing qual commitments from %s", dealer)
		}
		if len(commits) != m.t+1 {
			return nil, nil, fmt.Errorf("dkgmgr: malformed qual commitments from %s", dealer)
		}
		for k := range summed {
			summed[k] = g.Point().Add(summed[k], commits[k])
		}
	}
	keys := make(map[address.Address]kyber.Point, len(m.members))
	for _, member := range m.members {
		keys[member] = evalCommitment(g, summed, m.index[member])
	}
	m.publicKeys = keys
	m.groupPublicKey = summed[0]
	m.publicPoly = share.NewPubPoly(g, g.Point().Base(), summed)
	return keys, summed[0], nil
}

// GroupPublicKey returns the computed group public key, or nil if it has
// not been computed yet.
func (m *DkgManager) GroupPublicKey() kyber.Point {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.groupPublicKey
}

// SecretShare returns this node's reconstructed secret share.
func (m *DkgManager) SecretShare() kyber.Scalar {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.secretShare
}
