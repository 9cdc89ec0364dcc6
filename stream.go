package iceagent

import (
	"net"

	"github.com/google/uuid"
)

// StreamState is a Stream's overall lifecycle state, per spec §3.
type StreamState int

const (
	StreamRunning StreamState = iota
	StreamCompleted
	StreamFailed
)

// Stream is one media stream's checklist: its bases, candidates, pairs,
// and DTLS/SRTP substate, per spec §3/§4.5.
type Stream struct {
	session *Session
	index   int

	ufrag          string
	localPassword  string
	remoteUfrag    string
	remotePassword string
	remoteFingerprint string

	localSSRC  uint32
	remoteSSRC uint32

	dtlsRole DTLSRole

	state         StreamState
	stunCompleted bool
	dtlsCompleted bool
	srtpCompleted bool

	bases            []*Base
	localCandidates  []*Candidate
	remoteCandidates []*Candidate

	pairs   []*Pair
	trigger []*Pair
	valid   []*Pair
	selected *Pair

	localGathered  bool
	remoteGathered bool
	trickled       map[*Candidate]bool
}

func newStream(session *Session, index int) *Stream {
	return &Stream{
		session:       session,
		index:         index,
		ufrag:         uuid.NewString(),
		localPassword: newICEString(24),
		trickled:      make(map[*Candidate]bool),
	}
}

func (s *Stream) localUfrag() string { return s.ufrag }

// addLocalCandidate appends a gathered local candidate, computes its
// priority and foundation, and rebuilds the checklist against every known
// remote candidate, per spec §4.2/§4.5.
func (s *Stream) addLocalCandidate(c *Candidate) {
	siblings := s.localCandidates
	slot := 0
	for _, sib := range siblings {
		if sib.Type == c.Type && isIPv6Addr(sib.Address) == isIPv6Addr(c.Address) {
			slot++
		}
	}
	c.Priority = ComputePriority(c, s.session.agent.interfaceCount(), isIPv6Addr(c.Address), slot)
	ComputeFoundation(c, append(append([]*Candidate{}, siblings...), s.remoteCandidates...))

	s.localCandidates = append(s.localCandidates, c)
	s.pairWithRemotes(c)
}

// addRemoteCandidate adds a remote candidate, enforcing idempotence per
// spec §8 invariant 11: a candidate matching an existing remote candidate's
// (address, port, related address, related port) is a no-op.
func (s *Stream) addRemoteCandidate(c *Candidate) bool {
	for _, existing := range s.remoteCandidates {
		if existing.Address == c.Address && existing.Port == c.Port &&
			existing.RelatedAddr == c.RelatedAddr && existing.RelatedPort == c.RelatedPort {
			return false
		}
	}
	if c.Foundation == "" {
		ComputeFoundation(c, append(append([]*Candidate{}, s.remoteCandidates...), s.localCandidates...))
	}
	s.remoteCandidates = append(s.remoteCandidates, c)
	s.pairWithLocals(c)
	return true
}

func (s *Stream) pairWithRemotes(local *Candidate) {
	for _, remote := range s.remoteCandidates {
		s.addPairIfCompatible(local, remote)
	}
	s.rebuildChecklist()
}

func (s *Stream) pairWithLocals(remote *Candidate) {
	for _, local := range s.localCandidates {
		s.addPairIfCompatible(local, remote)
	}
	s.rebuildChecklist()
}

func (s *Stream) addPairIfCompatible(local, remote *Candidate) {
	if isIPv6Addr(local.Address) != isIPv6Addr(remote.Address) {
		return
	}
	p := newPair(s, local, remote)
	p.priority = p.computePriority(s.session.controlling)
	s.pairs = append(s.pairs, p)
}

// rebuildChecklist orders pairs by descending priority (stable) and prunes
// lower-priority duplicates, per spec §4.5.
func (s *Stream) rebuildChecklist() {
	s.orderPairs()
	s.prunePairs()
}

func (s *Stream) orderPairs() {
	// stable insertion sort: stable for equal priorities, and the
	// checklist only grows by a handful of pairs per call.
	for i := 1; i < len(s.pairs); i++ {
		for j := i; j > 0 && s.pairs[j].priority > s.pairs[j-1].priority; j-- {
			s.pairs[j], s.pairs[j-1] = s.pairs[j-1], s.pairs[j]
		}
	}
}

func (s *Stream) prunePairs() {
	kept := make([]*Pair, 0, len(s.pairs))
	seen := make(map[[2]*Candidate]bool)
	for _, p := range s.pairs {
		if p == s.selected {
			kept = append(kept, p)
			continue
		}
		if p.state != PairFrozen && p.state != PairWaiting {
			kept = append(kept, p)
			continue
		}
		key := [2]*Candidate{p.local, p.remote}
		if seen[key] {
			continue
		}
		seen[key] = true
		kept = append(kept, p)
	}
	s.pairs = kept
}

// pushTrigger pushes p onto the FIFO trigger queue; pushing a pair already
// present is a no-op, per spec §4.5.
func (s *Stream) pushTrigger(p *Pair) {
	for _, existing := range s.trigger {
		if existing == p {
			return
		}
	}
	s.trigger = append(s.trigger, p)
}

// popTrigger dequeues the head of the trigger queue, or nil if empty.
func (s *Stream) popTrigger() *Pair {
	if len(s.trigger) == 0 {
		return nil
	}
	p := s.trigger[0]
	s.trigger = s.trigger[1:]
	return p
}

// markValid appends p to the valid list exactly once.
func (s *Stream) markValid(p *Pair) {
	for _, existing := range s.valid {
		if existing == p {
			return
		}
	}
	s.valid = append(s.valid, p)
}

// recalculatePriorities recomputes every pair's priority under the current
// controlling flag and re-orders the checklist, per spec §4.5 (invoked on
// role flip).
func (s *Stream) recalculatePriorities() {
	for _, p := range s.pairs {
		p.priority = p.computePriority(s.session.controlling)
	}
	s.orderPairs()
}

// pairsWithFoundation returns every pair sharing foundation.
func (s *Stream) pairsWithFoundation(foundation string) []*Pair {
	var out []*Pair
	for _, p := range s.pairs {
		if p.foundation == foundation {
			out = append(out, p)
		}
	}
	return out
}

func (s *Stream) removeBase(b *Base) {
	for i, existing := range s.bases {
		if existing == b {
			s.bases = append(s.bases[:i], s.bases[i+1:]...)
			break
		}
	}
	s.update()
}

// installSrtpKeys wires the pair's exported DTLS-SRTP keying material into
// the session's SRTP context, swapping client/server roles for the passive
// side, per spec S5.
func (s *Stream) installSrtpKeys(p *Pair) error {
	keys := p.srtpKeys
	if keys == nil {
		return nil
	}

	var localKey, localSalt, remoteKey, remoteSalt []byte
	if p.dtlsRole == DTLSRoleActive {
		localKey, localSalt = keys.ClientKey, keys.ClientSalt
		remoteKey, remoteSalt = keys.ServerKey, keys.ServerSalt
	} else {
		localKey, localSalt = keys.ServerKey, keys.ServerSalt
		remoteKey, remoteSalt = keys.ClientKey, keys.ClientSalt
	}

	if err := s.session.installSrtpPolicy(s.remoteSSRC, remoteKey, remoteSalt, keys.Profile); err != nil {
		return err
	}
	if err := s.session.installSrtpPolicy(s.localSSRC, localKey, localSalt, keys.Profile); err != nil {
		return err
	}
	s.srtpCompleted = true
	s.update()
	return nil
}

// update re-evaluates Stream.state per spec §4.5's reconciliation rules.
func (s *Stream) update() {
	if s.state != StreamRunning {
		return
	}
	if s.stunCompleted && s.dtlsCompleted && s.srtpCompleted {
		s.state = StreamCompleted
		return
	}
	if s.localGathered && s.remoteGathered && s.allPairsFailed() {
		s.state = StreamFailed
	}
}

func (s *Stream) allPairsFailed() bool {
	if len(s.pairs) == 0 {
		return false
	}
	for _, p := range s.pairs {
		if p.state != PairFailed {
			return false
		}
	}
	return true
}

// trickleSweep emits on_new_candidate for every not-yet-trickled local
// candidate whose gathering has reached success, then on_end_of_candidates
// once every local candidate is success-or-failed, per spec §4.5. It does
// nothing until the session's trickling_start timer has fired.
func (s *Stream) trickleSweep(cb Callbacks, sessionID string) {
	if !s.session.tricklingStarted {
		return
	}
	allDone := true
	for _, c := range s.localCandidates {
		switch c.Gathering {
		case GatheringSuccess:
			if !s.trickled[c] {
				s.trickled[c] = true
				cb.fireNewCandidate(sessionID, s.ufrag, s.index, FormatCandidate(c))
			}
		case GatheringInProgress:
			allDone = false
		}
	}
	if allDone && !s.localGathered {
		s.localGathered = true
		cb.fireEndOfCandidates(sessionID, s.index)
		s.update()
	}
}

func isIPv6Addr(addr string) bool {
	ip := net.ParseIP(addr)
	return ip != nil && ip.To4() == nil
}
