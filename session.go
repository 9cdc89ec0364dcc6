package iceagent

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pion/dtls/v3"
	"github.com/pion/rtp"
	"github.com/pion/srtp/v3"
)

// Session negotiates one offer/answer exchange's worth of streams, per
// spec §3/§4.6.
type Session struct {
	agent *Agent
	id    string

	controlling bool
	tiebreaker  uint64

	state SessionState

	streams []*Stream

	// round-robin cursor for connectivity-check pacing across streams.
	paceCursor int

	tricklingStarted bool
	nominateStarted  bool

	srtpSend map[uint32]*srtp.Context
	srtpRecv map[uint32]*srtp.Context

	// timers started by scheduleSessionTimers/schedulePacing; held so
	// destroy can unschedule them, per spec §5.
	timeoutTimer   *time.Timer
	tricklingTimer *time.Timer
	nominateTimer  *time.Timer
	paceTimer      *time.Timer
}

func newSession(agent *Agent, controlling bool) (*Session, error) {
	tb, err := randomTiebreaker()
	if err != nil {
		return nil, err
	}
	return &Session{
		agent:       agent,
		id:          uuid.NewString(),
		controlling: controlling,
		tiebreaker:  tb,
		state:       SessionInit,
		srtpSend:    make(map[uint32]*srtp.Context),
		srtpRecv:    make(map[uint32]*srtp.Context),
	}, nil
}

func randomTiebreaker() (uint64, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("iceagent: generate tiebreaker: %w", err)
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

// regenerateTiebreakerBelow generates a tiebreaker strictly less than peer,
// used when flipping to controlled per RFC 8445 §7.3.1.1.
func (s *Session) regenerateTiebreakerBelow(peer uint64) error {
	for {
		tb, err := randomTiebreaker()
		if err != nil {
			return err
		}
		if peer == 0 {
			continue
		}
		s.tiebreaker = tb % peer
		return nil
	}
}

// regenerateTiebreakerAbove generates a tiebreaker strictly greater than
// peer, used when flipping to controlling.
func (s *Session) regenerateTiebreakerAbove(peer uint64) error {
	tb, err := randomTiebreaker()
	if err != nil {
		return err
	}
	if tb <= peer {
		tb = peer + 1 + (tb % 1024)
	}
	s.tiebreaker = tb
	return nil
}

// handleRoleConflict resolves an inbound role-conflict candidate per RFC
// 8445 §7.3.1.1 / spec §4.6. It returns true if the request should be
// rejected with a 487 response instead of processed under the (possibly
// new) role.
func (s *Session) handleRoleConflict(peerControlling bool, peerTiebreaker uint64) (reject bool, err error) {
	if s.controlling && peerControlling {
		if s.tiebreaker >= peerTiebreaker {
			return true, nil
		}
		s.controlling = false
		if err := s.regenerateTiebreakerBelow(peerTiebreaker); err != nil {
			return false, err
		}
		s.onRoleFlipped()
		return false, nil
	}
	if !s.controlling && !peerControlling {
		if s.tiebreaker < peerTiebreaker {
			return true, nil
		}
		s.controlling = true
		if err := s.regenerateTiebreakerAbove(peerTiebreaker); err != nil {
			return false, err
		}
		s.onRoleFlipped()
		return false, nil
	}
	return false, nil
}

// onRoleFlipped recomputes every stream's pair priorities and clears
// in-progress checks, per spec §4.6/S3.
func (s *Session) onRoleFlipped() {
	for _, stream := range s.streams {
		stream.recalculatePriorities()
		for _, p := range stream.pairs {
			if p.state == PairInProgress {
				p.state = PairFrozen
			}
		}
		stream.trigger = nil
	}
}

// unfreezeInitial moves, for each distinct foundation across all streams,
// the lowest-component-id (highest-priority tiebreak) pair from frozen to
// waiting, per RFC 8445 §6.1.4.2/spec §4.6.
func (s *Session) unfreezeInitial() {
	seen := make(map[string]bool)
	for _, stream := range s.streams {
		for _, p := range stream.pairs {
			if seen[p.foundation] {
				continue
			}
			seen[p.foundation] = true
			s.unfreezeBestForFoundation(p.foundation)
		}
	}
}

func (s *Session) unfreezeBestForFoundation(foundation string) {
	var best *Pair
	for _, stream := range s.streams {
		for _, p := range stream.pairsWithFoundation(foundation) {
			if p.state != PairFrozen {
				continue
			}
			if best == nil || p.priority > best.priority {
				best = p
			}
		}
	}
	if best != nil {
		best.markWaiting()
	}
}

// unfreezeSharing unfreezes every frozen pair sharing succeeded's
// foundation, per spec §4.6 ("whenever a pair succeeds...").
func (s *Session) unfreezeSharing(succeeded *Pair) {
	for _, stream := range s.streams {
		for _, p := range stream.pairsWithFoundation(succeeded.foundation) {
			p.markWaiting()
		}
	}
}

// tick performs one connectivity-check pacing round: dequeue exactly one
// pair (trigger queue first) across streams in round-robin order and send
// one STUN binding request, per spec §4.6/§5/§8 invariant 14.
func (s *Session) tick() {
	if s.state != SessionRunning || len(s.streams) == 0 {
		return
	}
	n := len(s.streams)
	for i := 0; i < n; i++ {
		idx := (s.paceCursor + i) % n
		stream := s.streams[idx]
		if stream.state != StreamRunning {
			continue
		}
		if p := stream.popTrigger(); p != nil {
			s.sendCheck(stream, p)
			s.paceCursor = (idx + 1) % n
			return
		}
		if p := firstWaiting(stream.pairs); p != nil {
			s.sendCheck(stream, p)
			s.paceCursor = (idx + 1) % n
			return
		}
	}
}

func firstWaiting(pairs []*Pair) *Pair {
	for _, p := range pairs {
		if p.state == PairWaiting {
			return p
		}
	}
	return nil
}

func (s *Session) sendCheck(stream *Stream, p *Pair) {
	p.onSendRequest()
	if err := s.agent.sendStunBindingRequest(p); err != nil {
		s.agent.loggers.ice.Warnf("send binding request %s -> %s: %v", p.local.Address, p.remote.Address, err)
		p.onFailure()
		stream.update()
	}
}

// maybeNominate picks the highest-priority pair with success_count >= 5
// once nomination has started, per spec §4.4 ("regular nomination").
func (s *Session) maybeNominate(stream *Stream) {
	if !s.controlling || !s.nominateStarted || stream.selected != nil {
		return
	}
	var best *Pair
	for _, p := range stream.pairs {
		if p.state != PairSucceeded || p.successCount < 5 {
			continue
		}
		if best == nil || p.priority > best.priority {
			best = p
		}
	}
	if best != nil && !best.nominated {
		best.nominated = true
		stream.pushTrigger(best)
	}
}

// onNominationSuccess marks pair selected once its USE-CANDIDATE-bearing
// check succeeds, per spec §4.4.
func (s *Session) onNominationSuccess(stream *Stream, p *Pair) {
	stream.selected = p
	stream.markValid(p)
	stream.stunCompleted = true
	stream.update()
	if stream.dtlsRole == DTLSRoleActive {
		if err := p.beginDtlsConnect(s.agent); err != nil {
			s.agent.loggers.dtls.Warnf("dtls connect: %v", err)
			p.onFailure()
			stream.update()
		}
	}
}

// installSrtpPolicy creates an SRTP crypto context for ssrc using the
// exported key/salt and the negotiated DTLS-SRTP protection profile, per
// spec S5. pion/srtp's ProtectionProfile shares its numeric encoding with
// pion/dtls's SRTPProtectionProfile, so the two cast directly.
func (s *Session) installSrtpPolicy(ssrc uint32, key, salt []byte, profile dtls.SRTPProtectionProfile) error {
	ctx, err := srtp.CreateContext(key, salt, srtp.ProtectionProfile(profile))
	if err != nil {
		return fmt.Errorf("iceagent: create srtp context for ssrc %d: %w", ssrc, err)
	}
	s.srtpRecv[ssrc] = ctx
	s.srtpSend[ssrc] = ctx
	return nil
}

// protect encrypts an outbound plaintext RTP packet under ssrc's SRTP
// send context, per spec §4.3/S5.
func (s *Session) protect(packet []byte, ssrc uint32) ([]byte, error) {
	var header rtp.Header
	if _, err := header.Unmarshal(packet); err != nil {
		return nil, fmt.Errorf("iceagent: parse rtp header: %w", err)
	}
	ctx, ok := s.srtpSend[ssrc]
	if !ok {
		return nil, fmt.Errorf("iceagent: no srtp context for ssrc %d", ssrc)
	}
	return ctx.EncryptRTP(nil, packet, &header)
}

// unprotect decrypts an inbound SRTP datagram into a newly allocated buffer
// using the context installed for its header's SSRC, per spec §4.3.
func (s *Session) unprotect(datagram []byte) ([]byte, uint32, error) {
	var header rtp.Header
	if _, err := header.Unmarshal(datagram); err != nil {
		return nil, 0, fmt.Errorf("iceagent: parse rtp header: %w", err)
	}
	ctx, ok := s.srtpRecv[header.SSRC]
	if !ok {
		return nil, 0, fmt.Errorf("iceagent: no srtp context for ssrc %d", header.SSRC)
	}
	plaintext, err := ctx.DecryptRTP(nil, datagram, &header)
	if err != nil {
		return nil, 0, err
	}
	return plaintext, header.SSRC, nil
}

// rewriteSSRC overwrites the first 4 bytes of the RTP SSRC field so the
// stream presents a stable local SSRC to upper layers, per spec §4.3.
func rewriteSSRC(packet []byte, ssrc uint32) {
	if len(packet) < 12 {
		return
	}
	binary.BigEndian.PutUint32(packet[8:12], ssrc)
}

// destroy unschedules timers, drops transaction-table entries owned by this
// session's candidates/pairs, and closes every base, per spec §5
// cancellation semantics.
func (s *Session) destroy() {
	for _, timer := range []*time.Timer{s.timeoutTimer, s.tricklingTimer, s.nominateTimer, s.paceTimer} {
		if timer != nil {
			timer.Stop()
		}
	}

	for _, stream := range s.streams {
		for _, c := range stream.localCandidates {
			s.agent.txns.removeOwnedByCandidate(c)
		}
		for _, p := range stream.pairs {
			s.agent.txns.removeOwnedByPair(p)
		}
		for _, b := range stream.bases {
			b.conn.Close()
		}
	}
}

// Stats is a snapshot of a session's progress, supplementing spec §12's
// debug counters.
type Stats struct {
	State           SessionState
	Controlling     bool
	StreamCount     int
	CompletedStreams int
}

func (s *Session) Stats() Stats {
	completed := 0
	for _, stream := range s.streams {
		if stream.state == StreamCompleted {
			completed++
		}
	}
	return Stats{
		State:            s.state,
		Controlling:      s.controlling,
		StreamCount:      len(s.streams),
		CompletedStreams: completed,
	}
}
