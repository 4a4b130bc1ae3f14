package beaconsvc

import (
	"context"
	"crypto/sha256"
	"errors"
	"time"

	"github.com/drand/ledger-beacon/common/address"
	"github.com/drand/ledger-beacon/common/chaintypes"
	"github.com/drand/ledger-beacon/internal/dkgmgr"
	"github.com/drand/ledger-beacon/internal/transport"
)

// pollInterval bounds how often Step re-checks a waiting state's condition.
const pollInterval = 50 * time.Millisecond

// verifyPollSlice is how long a single VERIFY_SIGNATURES tick waits on the
// outstanding RPC promise before yielding the reactor thread back - the
// overall 200ms budget is enforced across several such ticks, never by one
// blocking call.
const verifyPollSlice = 20 * time.Millisecond

// Step implements reactor.Task.
func (s *Service) Step(ctx context.Context) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateWaitForSetupCompletion:
		return s.stepWaitForSetupLocked()
	case StatePrepareEntropyGeneration:
		return s.stepPrepareLocked()
	case StateCollectSignatures:
		return s.stepCollectLocked()
	case StateVerifySignatures:
		return s.stepVerifyLocked()
	case StateComplete:
		return s.stepCompleteLocked()
	default:
		return pollInterval
	}
}

func (s *Service) stepWaitForSetupLocked() time.Duration {
	if len(s.queued) == 0 {
		return pollInterval
	}
	unit := s.queued[0]
	s.queued = s.queued[1:]

	previous := s.previousGroupSignatureLocked(unit.Aeon.RoundStart)
	s.current = newAeonRun(unit, previous)
	if s.persister != nil {
		if err := s.persister.SaveHead(unit); err != nil {
			s.log.Warnw("failed to persist aeon HEAD", "err", err)
		}
	}
	s.log.Infow("aeon ready, starting entropy production",
		"round_start", unit.Aeon.RoundStart, "round_end", unit.Aeon.RoundEnd)
	s.state = StatePrepareEntropyGeneration
	return pollInterval
}

// previousGroupSignatureLocked looks up the prior block's group signature
// to seed this aeon's first SHA-256(previous group_signature) message. A
// genesis aeon (no prior completed block) starts from an empty preimage.
func (s *Service) previousGroupSignatureLocked(roundStart uint64) []byte {
	if roundStart == 0 {
		return nil
	}
	if e, ok := s.completedBlockEntropy[roundStart-1]; ok {
		return e.GroupSignature
	}
	return nil
}

func (s *Service) stepPrepareLocked() time.Duration {
	r := s.current
	if r == nil {
		s.state = StateWaitForSetupCompletion
		return pollInterval
	}
	message := sha256.Sum256(r.previousGroup)
	r.manager.SetMessage(message[:])
	share, err := r.manager.Sign()
	if err != nil {
		s.log.Warnw("signing own entropy share failed, abandoning aeon", "err", err, "block_number", r.blockNumber)
		s.current = nil
		s.state = StateWaitForSetupCompletion
		return pollInterval
	}
	selfAddr := s.self.Address()
	r.manager.AddSignaturePart(selfAddr, share)
	s.signaturesBeingBuilt[r.blockNumber] = &SignatureInformation{
		BlockNumber: r.blockNumber,
		Shares:      map[address.Address][]byte{selfAddr: share},
	}
	r.verifyAttempts = 0
	s.state = StateCollectSignatures
	return pollInterval
}

func (s *Service) stepCollectLocked() time.Duration {
	r := s.current
	if r == nil {
		s.state = StateWaitForSetupCompletion
		return pollInterval
	}
	if r.blockNumber > s.mostRecentRoundSeen+s.cfg.EntropyLeadBlocks {
		return pollInterval
	}
	info := s.signaturesBeingBuilt[r.blockNumber]
	selfAddr := s.self.Address()

	var candidates []address.Address
	for _, m := range r.qual() {
		if m.Equal(selfAddr) {
			continue
		}
		if _, contributed := info.Shares[m]; contributed {
			continue
		}
		if s.net == nil {
			continue
		}
		if _, ok := s.net.Peer(m); ok {
			candidates = append(candidates, m)
		}
	}
	if len(candidates) == 0 {
		return pollInterval
	}

	idx := r.randomCounter % uint64(len(candidates))
	r.randomCounter++
	peer := candidates[idx]
	p, ok := s.net.Peer(peer)
	if !ok {
		return pollInterval
	}

	callCtx, cancel := context.WithTimeout(context.Background(), verifyPollSlice)
	defer cancel()
	promise, err := p.Call(callCtx, peer, transport.ServiceBeaconRPC, encodeRound(r.blockNumber))
	if err != nil {
		s.log.Debugw("GET_SIGNATURE_SHARES call failed", "peer", peer, "err", err)
		s.registerAttemptFailureLocked(r)
		return pollInterval
	}
	r.pendingPeer = peer
	r.pendingPromise = promise
	r.pendingSince = s.now()
	s.state = StateVerifySignatures
	return pollInterval
}

func (s *Service) stepVerifyLocked() time.Duration {
	r := s.current
	if r == nil {
		s.state = StateWaitForSetupCompletion
		return pollInterval
	}
	elapsed := s.now().Sub(r.pendingSince)
	remaining := s.cfg.RPCTimeout - elapsed
	if remaining <= 0 {
		s.log.Debugw("GET_SIGNATURE_SHARES timed out", "peer", r.pendingPeer, "block_number", r.blockNumber)
		r.pendingPromise = nil
		s.registerAttemptFailureLocked(r)
		return pollInterval
	}

	slice := verifyPollSlice
	if remaining < slice {
		slice = remaining
	}
	pollCtx, cancel := context.WithTimeout(context.Background(), slice)
	payload, err := r.pendingPromise.Await(pollCtx)
	cancel()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return pollInterval
		}
		s.log.Debugw("GET_SIGNATURE_SHARES promise failed", "peer", r.pendingPeer, "err", err)
		r.pendingPromise = nil
		s.registerAttemptFailureLocked(r)
		return pollInterval
	}

	r.pendingPromise = nil
	info, err := decodeSignatureInfo(payload)
	if err != nil {
		s.log.Warnw("malformed GET_SIGNATURE_SHARES response", "peer", r.pendingPeer, "err", err)
		s.registerAttemptFailureLocked(r)
		return pollInterval
	}
	local := s.signaturesBeingBuilt[r.blockNumber]
	for from, share := range info.Shares {
		if _, have := local.Shares[from]; have {
			continue
		}
		if r.manager.AddSignaturePart(from, share) == dkgmgr.Added {
			local.Shares[from] = share
		}
	}

	if !r.manager.CanVerify() {
		s.state = StateCollectSignatures
		return pollInterval
	}
	if err := r.manager.Verify(); err != nil {
		s.log.Debugw("group signature recovery failed", "err", err, "block_number", r.blockNumber)
		s.registerAttemptFailureLocked(r)
		return pollInterval
	}
	s.state = StateComplete
	return pollInterval
}

// registerAttemptFailureLocked implements the bounded-retry fix the source's
// own TODO calls for: VERIFY_SIGNATURES/COLLECT_SIGNATURES would otherwise
// cycle forever on a stuck block. After MaxVerifyAttemptsPerBlock failures
// the whole aeon is abandoned rather than just the one block, since a block
// that can never recover its group signature blocks every later block in
// the aeon too.
func (s *Service) registerAttemptFailureLocked(r *aeonRun) {
	r.verifyAttempts++
	if r.verifyAttempts < s.cfg.MaxVerifyAttemptsPerBlock {
		s.state = StateCollectSignatures
		return
	}
	s.log.Warnw("exhausted signature verification attempts, abandoning aeon",
		"block_number", r.blockNumber, "attempts", r.verifyAttempts)
	delete(s.signaturesBeingBuilt, r.blockNumber)
	s.current = nil
	s.state = StateWaitForSetupCompletion
}

func (s *Service) stepCompleteLocked() time.Duration {
	r := s.current
	if r == nil {
		s.state = StateWaitForSetupCompletion
		return pollInterval
	}
	var entropy chaintypes.BlockEntropy
	if r.blockNumber == r.aeon.RoundStart {
		entropy = r.skeleton
	} else {
		entropy = chaintypes.BlockEntropy{
			Qualified:      r.skeleton.Qualified,
			GroupPublicKey: r.skeleton.GroupPublicKey,
			BlockNumber:    r.blockNumber,
		}
	}
	entropy.GroupSignature = r.manager.GroupSignature()
	s.completedBlockEntropy[r.blockNumber] = entropy
	if r.blockNumber > s.furthestCompleted {
		s.furthestCompleted = r.blockNumber
	}
	delete(s.signaturesBeingBuilt, r.blockNumber)
	s.trimCachesLocked(r)

	if r.blockNumber < r.aeon.RoundEnd {
		r.previousGroup = entropy.GroupSignature
		r.blockNumber++
		s.state = StatePrepareEntropyGeneration
		return pollInterval
	}

	s.log.Infow("aeon production complete", "round_start", r.aeon.RoundStart, "round_end", r.aeon.RoundEnd)
	s.current = nil
	s.state = StateWaitForSetupCompletion
	return pollInterval
}

// trimCachesLocked bounds signaturesBeingBuilt and completedBlockEntropy to
// 3*(round_end-round_start+1) entries, per spec.md §4.4 COMPLETE.
func (s *Service) trimCachesLocked(r *aeonRun) {
	span := r.aeon.RoundEnd - r.aeon.RoundStart + 1
	window := s.cfg.CacheWindowMultiple * span
	if window == 0 || r.blockNumber < window {
		return
	}
	cutoff := r.blockNumber - window + 1
	for bn := range s.completedBlockEntropy {
		if bn < cutoff {
			delete(s.completedBlockEntropy, bn)
		}
	}
	for bn := range s.signaturesBeingBuilt {
		if bn < cutoff {
			delete(s.signaturesBeingBuilt, bn)
		}
	}
}
