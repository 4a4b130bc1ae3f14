package dkgmgr

import (
	"github.com/drand/kyber"

	"github.com/drand/ledger-beacon/common/address"
)

// verifyShare checks the Pedersen VSS relation g^s * h^s' == sum_k C_k *
// i^k for the share dealer claims to have sent to self (index selfIdx).
func (m *DkgManager) verifyShare(commits []kyber.Point, s, sprime kyber.Scalar, selfIdx int) bool {
	g := m.scheme.KeyGroup
	lhs := g.Point().Add(
		g.Point().Mul(s, g.Point().Base()),
		g.Point().Mul(sprime, m.scheme.PedersenH()),
	)
	rhs := evalCommitment(g, commits, selfIdx)
	return lhs.Equal(rhs)
}

// ComputeComplaints returns the subset of validPeers whose delivered share
// fails Pedersen verification against their broadcast commitments, or who
// never delivered a share/commitment at all.
func (m *DkgManager) ComputeComplaints(validPeers []address.Address) []address.Address {
	m.mu.Lock()
	defer m.mu.Unlock()
	selfIdx := m.index[m.self]
	var complaints []address.Address
	for _, peer := range validPeers {
		commits, hasCommits := m.commitsFrom[peer]
		sp, hasShare := m.sharesFrom[peer]
		if !hasCommits || !hasShare || len(commits) != m.t+1 {
			complaints = append(complaints, peer)
			continue
		}
		if !m.verifyShare(commits, sp.s, sp.sprime, selfIdx) {
			complaints = append(complaints, peer)
		}
	}
	return complaints
}

// ComputeQualComplaints runs the same check against the qual-phase
// commitments re-broadcast by qualCoeffsReceived.
func (m *DkgManager) ComputeQualComplaints(qualCoeffsReceived map[address.Address][]kyber.Point) []address.Address {
	m.mu.Lock()
	defer m.mu.Unlock()
	selfIdx := m.index[m.self]
	var complaints []address.Address
	for peer, commits := range qualCoeffsReceived {
		sp, hasShare := m.sharesFrom[peer]
		if !hasShare || len(commits) != m.t+1 {
			complaints = append(complaints, peer)
			continue
		}
		if !m.verifyShare(commits, sp.s, sp.sprime, selfIdx) {
			complaints = append(complaints, peer)
		}
	}
	return complaints
}

// VerifyComplaintAnswer reports whether the share pair (s, sprime) exposed
// in accused's complaint answer verifies against accused's own broadcast
// commitments evaluated at accusedIdx (callers pass the complainant's
// cabinet index). True means the answer refutes the complaint; false means
// the complaint stands.
func (m *DkgManager) VerifyComplaintAnswer(accused address.Address, s, sprime kyber.Scalar, accusedIdx int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	commits, ok := m.commitsFrom[accused]
	if !ok {
		return false
	}
	return m.verifyShare(commits, s, sprime, accusedIdx)
}

// SetQual finalizes the qualified set for this aeon: the cabinet minus
// peers against whom complaints prevailed. Triggers on the caller when the
// resulting set is smaller than QualSize, or excludes self, per spec.md
// §4.3's RESET conditions - this function only records the set; the
// caller (BeaconSetupService) is responsible for checking those
// conditions and driving RESET.
func (m *DkgManager) SetQual(qual []address.Address) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.qual = make(map[address.Address]struct{}, len(qual))
	for _, a := range qual {
		m.qual[a] = struct{}{}
	}
}

// Qual returns the current qualified set.
func (m *DkgManager) Qual() []address.Address {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]address.Address, 0, len(m.qual))
	for a := range m.qual {
		out = append(out, a)
	}
	return out
}

// InQual reports whether addr is a member of the qualified set.
func (m *DkgManager) InQual(addr address.Address) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.qual[addr]
	return ok
}
