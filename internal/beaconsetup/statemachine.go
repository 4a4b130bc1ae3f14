package beaconsetup

import (
	"context"
	"crypto/sha256"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/drand/ledger-beacon/common/address"
	"github.com/drand/ledger-beacon/common/chaintypes"
	"github.com/drand/ledger-beacon/internal/dkgmgr"
	"github.com/drand/ledger-beacon/internal/transport"
	"github.com/drand/ledger-beacon/wire"
)

// pollInterval bounds how often Step re-checks a waiting state's condition
// between deadline recomputations.
const pollInterval = 200 * time.Millisecond

// Step implements reactor.Task: one cooperative advance of the state
// machine. It never blocks - long BLS operations here are the same kind of
// bounded inline work spec.md §5 calls out as acceptable on the reactor
// thread.
func (s *Service) Step(ctx context.Context) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateIdle:
		return s.stepIdleLocked()
	case StateReset:
		return s.stepResetLocked()
	case StateConnectToAll:
		return s.stepTimedLocked(StateConnectToAll, s.enterConnectToAllLocked, StateWaitForReadyConnections)
	case StateWaitForReadyConnections:
		return s.stepWaitForReadyConnectionsLocked()
	case StateWaitForNotarisationKeys:
		return s.stepWaitForNotarisationKeysLocked()
	case StateWaitForShares:
		return s.stepTimedLocked(StateWaitForShares, s.enterWaitForSharesLocked, StateWaitForComplaints)
	case StateWaitForComplaints:
		return s.stepTimedLocked(StateWaitForComplaints, s.enterWaitForComplaintsLocked, StateWaitForComplaintAnswers)
	case StateWaitForComplaintAnswers:
		return s.stepWaitForComplaintAnswersLocked()
	case StateWaitForQualShares:
		return s.stepTimedLocked(StateWaitForQualShares, s.enterWaitForQualSharesLocked, StateWaitForQualComplaints)
	case StateWaitForQualComplaints:
		return s.stepWaitForQualComplaintsLocked()
	case StateWaitForReconstructionShares:
		return s.stepReconstructionLocked()
	case StateComputePublicSignature:
		return s.stepComputePublicSignatureLocked()
	case StateDryRunSigning:
		return s.stepDryRunSigningLocked()
	case StateBeaconReady:
		s.current = nil
		s.state = StateIdle
		return pollInterval
	default:
		return pollInterval
	}
}

// stepIdleLocked dequeues the next request, if any, and begins RESET.
func (s *Service) stepIdleLocked() time.Duration {
	if len(s.queued) == 0 {
		return pollInterval
	}
	req := s.queued[0]
	s.queued = s.queued[1:]

	threshold := (len(req.members) - 1) / 3
	mgr := dkgmgr.NewCabinet(s.scheme, s.self.Address(), req.members, threshold)
	s.current = newAttempt(req.members, req.roundStart, req.roundEnd, threshold, mgr, s.cfg.NotarisationEnabled)
	s.current.startReferenceTimepoint = s.now()
	s.current.timespan = baseTimespan(s.cfg.CabinetSizeBuckets, len(req.members))
	s.transitionLocked(StateReset)
	return pollInterval
}

// stepResetLocked runs RESET's own deadline slot, then either aborts back
// to IDLE (superseded) or moves on to CONNECT_TO_ALL, resetting RBC and the
// DkgManager for the new attempt as it goes.
func (s *Service) stepResetLocked() time.Duration {
	a := s.current
	if a == nil {
		s.state = StateIdle
		return pollInterval
	}
	if a.roundStart < s.mostRecentAbortBelow {
		s.log.Infow("dropping superseded DKG request", "round_start", a.roundStart)
		s.current = nil
		s.state = StateIdle
		return pollInterval
	}

	if !s.deadlinePassedLocked(StateReset) {
		return pollInterval
	}
	a.manager.Reset(a.members, a.threshold)
	if s.bcast != nil {
		s.bcast.ResetCabinet(a.members)
		s.bcast.Enable(true)
	}
	s.transitionLocked(StateConnectToAll)
	return pollInterval
}

// stepTimedLocked runs entry (once) then waits out state's deadline slot
// unconditionally before advancing to next - the states spec.md §4.3 draws
// with a single outgoing arrow.
func (s *Service) stepTimedLocked(state State, entry func(*attempt), next State) time.Duration {
	a := s.current
	if a == nil {
		s.state = StateIdle
		return pollInterval
	}
	entry(a)
	if !s.deadlinePassedLocked(state) {
		return pollInterval
	}
	s.transitionLocked(next)
	return pollInterval
}

func (s *Service) enterConnectToAllLocked(a *attempt) {
	if a.connectionsSent {
		return
	}
	a.connectionsSent = true
	var connected []address.Address
	for _, m := range a.members {
		if m.Equal(s.self.Address()) {
			continue
		}
		if s.net != nil {
			if _, ok := s.net.Peer(m); ok {
				connected = append(connected, m)
			}
		}
	}
	a.connected[s.self.Address()] = struct{}{}
	for _, m := range connected {
		a.connected[m] = struct{}{}
	}
	s.broadcastLocked(a, kindConnections, connectionsMessage{Peers: connected})
}

func (s *Service) stepWaitForReadyConnectionsLocked() time.Duration {
	a := s.current
	if a == nil {
		s.state = StateIdle
		return pollInterval
	}
	if len(a.contributedConn) >= connectionReadyThreshold(len(a.members), a.threshold) {
		if a.notarisationEnabled {
			s.transitionLocked(StateWaitForNotarisationKeys)
		} else {
			s.transitionLocked(StateWaitForShares)
		}
		return pollInterval
	}
	if s.deadlinePassedLocked(StateWaitForReadyConnections) {
		s.resetLocked("connection readiness quorum not met")
	}
	return pollInterval
}

func (s *Service) stepWaitForNotarisationKeysLocked() time.Duration {
	a := s.current
	if a == nil {
		s.state = StateIdle
		return pollInterval
	}
	if !a.notarKeySent {
		a.notarKeySent = true
		if s.signer != nil {
			self := s.self.ECDSAKey
			sig := s.signer.Sign(self)
			s.broadcastLocked(a, kindNotarisationKey, notarisationKeyMessage{Key: self, Signature: sig})
		}
	}
	quorum := connectionReadyThreshold(len(a.members), a.threshold)
	if len(a.notarKeys) >= len(a.members) {
		s.transitionLocked(StateWaitForShares)
		return pollInterval
	}
	if s.deadlinePassedLocked(StateWaitForNotarisationKeys) {
		if len(a.notarKeys) >= quorum {
			s.transitionLocked(StateWaitForShares)
		} else {
			s.resetLocked("too few notarisation keys")
		}
	}
	return pollInterval
}

func (s *Service) enterWaitForSharesLocked(a *attempt) {
	if a.sharesSent {
		return
	}
	a.sharesSent = true
	commits, err := a.manager.GenerateCoefficients()
	if err != nil {
		s.log.Warnw("generate coefficients failed", "err", err)
		return
	}
	a.ownCommits = marshalPoints(commits)
	s.broadcastLocked(a, kindCoefficients, coefficientsMessage{Commits: a.ownCommits})

	var merr *multierror.Error
	for _, peer := range a.members {
		if peer.Equal(s.self.Address()) {
			continue
		}
		sh, shp, err := a.manager.GetOwnShares(peer)
		if err != nil {
			merr = multierror.Append(merr, err)
			continue
		}
		sb, _ := sh.MarshalBinary()
		spb, _ := shp.MarshalBinary()
		s.sendPrivateLocked(peer, privateShareMessage{S: sb, SPrime: spb})
	}
	if merr.ErrorOrNil() != nil {
		s.log.Warnw("some private shares failed to send", "err", merr)
	}
}

func (s *Service) enterWaitForComplaintsLocked(a *attempt) {
	if a.complaintsSent {
		return
	}
	a.complaintsSent = true
	complaints := a.manager.ComputeComplaints(a.members)
	s.broadcastLocked(a, kindComplaints, complaintsMessage{Accused: complaints})
}

func (s *Service) stepWaitForComplaintAnswersLocked() time.Duration {
	a := s.current
	if a == nil {
		s.state = StateIdle
		return pollInterval
	}
	if !a.complaintAnswerSent {
		a.complaintAnswerSent = true
		s.answerComplaintsLocked(a)
	}
	if !s.deadlinePassedLocked(StateWaitForComplaintAnswers) {
		return pollInterval
	}

	qual := s.buildQualLocked(a)
	a.qual = qual
	if len(qual) < qualSize(len(a.members), a.threshold) {
		s.resetLocked("qual smaller than QualSize")
		return pollInterval
	}
	if !containsAddr(qual, s.self.Address()) {
		s.resetLocked("self excluded from own qual")
		return pollInterval
	}
	a.manager.SetQual(qual)
	s.transitionLocked(StateWaitForQualShares)
	return pollInterval
}

// answerComplaintsLocked exposes the (s, s') pair this node dealt to every
// complainant that accused it, so any member can verify whether the
// accusation was genuine - the complaint-answer half of WAIT_FOR_COMPLAINT_ANSWERS.
func (s *Service) answerComplaintsLocked(a *attempt) {
	var msg sharesMessage
	for complainant, accused := range a.complaintsFrom {
		if !containsAddr(accused, s.self.Address()) {
			continue
		}
		sh, shp, err := a.manager.GetOwnShares(complainant)
		if err != nil {
			continue
		}
		sb, _ := sh.MarshalBinary()
		spb, _ := shp.MarshalBinary()
		msg.Accused = append(msg.Accused, complainant)
		msg.S = append(msg.S, sb)
		msg.SPrime = append(msg.SPrime, spb)
	}
	if len(msg.Accused) > 0 {
		s.broadcastLocked(a, kindShares, msg)
	}
}

// buildQualLocked is valid_dkg_members minus peers whose complaint
// prevailed: a peer this node itself complained about is excluded unless
// its broadcast answer demonstrably refutes the accusation (the exposed
// share verifies fine against that peer's own commitments after all).
func (s *Service) buildQualLocked(a *attempt) []address.Address {
	excluded := map[address.Address]struct{}{}
	for _, accused := range a.manager.ComputeComplaints(a.members) {
		excluded[accused] = struct{}{}
	}
	for dealer, answer := range a.answersFrom {
		for i, complainant := range answer.Accused {
			idx, ok := a.manager.CabinetIndex(complainant)
			if !ok || i >= len(answer.S) || i >= len(answer.SPrime) {
				continue
			}
			sc, errS := s.unmarshalScalarLocked(answer.S[i])
			spc, errSp := s.unmarshalScalarLocked(answer.SPrime[i])
			if errS != nil || errSp != nil {
				continue
			}
			if a.manager.VerifyComplaintAnswer(dealer, sc, spc, idx) {
				delete(excluded, dealer)
			}
		}
	}
	var qual []address.Address
	for _, m := range a.members {
		if _, out := excluded[m]; !out {
			qual = append(qual, m)
		}
	}
	return qual
}

func (s *Service) enterWaitForQualSharesLocked(a *attempt) {
	if a.qualSharesSent {
		return
	}
	a.qualSharesSent = true
	s.broadcastLocked(a, kindQualCoefficients, coefficientsMessage{Commits: a.ownCommits})
}

func (s *Service) stepWaitForQualComplaintsLocked() time.Duration {
	a := s.current
	if a == nil {
		s.state = StateIdle
		return pollInterval
	}
	if !a.qualComplaintsSent {
		a.qualComplaintsSent = true
		qualCoeffs := s.unmarshalQualCoeffsLocked(a)
		complaints := a.manager.ComputeQualComplaints(qualCoeffs)
		s.broadcastLocked(a, kindQualComplaints, complaintsMessage{Accused: complaints})
	}
	if !s.deadlinePassedLocked(StateWaitForQualComplaints) {
		return pollInterval
	}
	total := 0
	for _, c := range a.qualComplaintsFrom {
		total += len(c)
	}
	if total > a.threshold {
		s.resetLocked("qual complaints exceed threshold")
		return pollInterval
	}
	s.transitionLocked(StateWaitForReconstructionShares)
	return pollInterval
}

func (s *Service) stepReconstructionLocked() time.Duration {
	a := s.current
	if a == nil {
		s.state = StateIdle
		return pollInterval
	}
	if !s.deadlinePassedLocked(StateWaitForReconstructionShares) {
		return pollInterval
	}
	if _, err := a.manager.ComputeSecretShare(); err != nil {
		s.log.Warnw("secret share reconstruction failed", "err", err)
		s.resetLocked("secret share reconstruction failed")
		return pollInterval
	}
	keys, gpk, err := a.manager.ComputePublicKeys()
	_ = keys
	if err != nil {
		s.log.Warnw("public key computation failed", "err", err)
		s.resetLocked("public key computation failed")
		return pollInterval
	}
	gpkBytes, err := gpk.MarshalBinary()
	if err != nil {
		s.resetLocked("group public key marshal failed")
		return pollInterval
	}
	a.groupPublicKey = gpkBytes
	s.transitionLocked(StateComputePublicSignature)
	return pollInterval
}

func (s *Service) stepComputePublicSignatureLocked() time.Duration {
	a := s.current
	if a == nil {
		s.state = StateIdle
		return pollInterval
	}
	if !a.skeletonBuilt {
		a.skeletonBuilt = true
		skeleton := chaintypes.BlockEntropy{
			Qualified:      a.qual,
			GroupPublicKey: a.groupPublicKey,
			BlockNumber:    a.roundStart,
			Confirmations:  map[uint32][]byte{},
		}
		if a.notarisationEnabled {
			for _, m := range a.qual {
				if nk, ok := a.notarKeys[m]; ok {
					skeleton.AeonNotarisationKeys = append(skeleton.AeonNotarisationKeys, nk)
				}
			}
		}
		digest := sha256.Sum256(wire.EntropyDigestFields(skeleton))
		skeleton.Digest = digest
		a.skeleton = skeleton
		a.digest = digest
	}
	if !s.deadlinePassedLocked(StateComputePublicSignature) {
		return pollInterval
	}
	s.transitionLocked(StateDryRunSigning)
	return pollInterval
}

func (s *Service) stepDryRunSigningLocked() time.Duration {
	a := s.current
	if a == nil {
		s.state = StateIdle
		return pollInterval
	}
	if !a.finalStateSent {
		a.finalStateSent = true
		var sig []byte
		if s.signer != nil {
			sig = s.signer.Sign(a.digest[:])
		}
		a.finalConfirmations[s.self.Address()] = sig
		s.broadcastLocked(a, kindFinalState, finalStateMessage{Digest: a.digest[:], Signature: sig})
	}

	need := qualSize(len(a.members), a.threshold)
	if len(a.finalConfirmations) >= need {
		s.finishBeaconReadyLocked(a)
		return pollInterval
	}
	if s.deadlinePassedLocked(StateDryRunSigning) {
		s.resetLocked("insufficient dry-run confirmations")
	}
	return pollInterval
}

func (s *Service) finishBeaconReadyLocked(a *attempt) {
	confirmations := map[uint32][]byte{}
	for member, sig := range a.finalConfirmations {
		idx, ok := a.manager.CabinetIndex(member)
		if !ok {
			continue
		}
		confirmations[uint32(idx)] = sig
	}
	a.skeleton.Confirmations = confirmations

	unit := AeonExecutionUnit{
		Aeon: chaintypes.Aeon{
			Members:                 a.members,
			RoundStart:              a.roundStart,
			RoundEnd:                a.roundEnd,
			StartReferenceTimepoint: a.startReferenceTimepoint.Unix(),
		},
		Manager:  a.manager,
		Skeleton: a.skeleton,
	}
	if s.onReady != nil {
		s.onReady(unit)
	}
	s.transitionLocked(StateBeaconReady)
}

// resetLocked records a failed attempt and re-enters RESET with the
// bounded-exponential backoff applied.
func (s *Service) resetLocked(reason string) {
	a := s.current
	if a == nil {
		s.state = StateIdle
		return
	}
	s.log.Infow("DKG attempt failed, resetting", "reason", reason, "round_start", a.roundStart)
	a.resetCount++
	base := baseTimespan(s.cfg.CabinetSizeBuckets, len(a.members))
	a.timespan = nextTimespan(base, a.timespan, s.cfg.MaxTimespanMultiple)
	a.startReferenceTimepoint = a.startReferenceTimepoint.Add(a.timespan)
	a.connectionsSent = false
	a.notarKeySent = false
	a.sharesSent = false
	a.complaintsSent = false
	a.complaintAnswerSent = false
	a.qualSharesSent = false
	a.qualComplaintsSent = false
	a.finalStateSent = false
	a.skeleton = chaintypes.BlockEntropy{}
	a.skeletonBuilt = false
	s.transitionLocked(StateReset)
}

func (s *Service) transitionLocked(next State) {
	s.log.Debugw("state transition", "from", s.state, "to", next)
	s.state = next
	if s.current != nil {
		s.current.stateEnteredAt = s.now()
	}
}

func (s *Service) deadlinePassedLocked(state State) bool {
	a := s.current
	if a == nil {
		return true
	}
	d := stateDeadline(a.timespan, state)
	return s.now().Sub(a.stateEnteredAt) >= d
}

func (s *Service) broadcastLocked(a *attempt, k kind, body interface{}) {
	if s.bcast == nil {
		return
	}
	env := envelope{Kind: k, Round: a.roundStart, Body: encodeBody(body)}
	s.bcast.SetQuestion(k.tag(a.roundStart), encodeEnvelope(env))
}

func (s *Service) sendPrivateLocked(peer address.Address, msg privateShareMessage) {
	if s.net == nil {
		return
	}
	p, ok := s.net.Peer(peer)
	if !ok {
		return
	}
	payload := encodeBody(msg)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := p.Send(ctx, peer, transport.ServiceDKGSecretKey, payload); err != nil {
			s.log.Warnw("private share send failed", "to", peer, "err", err)
		}
	}()
}

func containsAddr(list []address.Address, who address.Address) bool {
	for _, a := range list {
		if a.Equal(who) {
			return true
		}
	}
	return false
}
