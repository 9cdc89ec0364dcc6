package iceagent

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pion/sdp/v3"
)

// --- public API: offer/answer construction and processing (spec §4.7/§6) ---

// CreateSessionOffer builds a controlling Session from a template SDP
// (media sections already populated by the caller), fills in ICE/DTLS-SRTP
// attributes per spec §4.7, and begins candidate gathering. It returns the
// session id and the rewritten SDP to send as the offer.
func (a *Agent) CreateSessionOffer(tmpl *sdp.SessionDescription) (string, *sdp.SessionDescription, error) {
	var sessionID string
	var out *sdp.SessionDescription
	var outErr error
	a.runSync(func(ag *Agent) {
		sessionID, out, outErr = ag.createOffer(tmpl)
	})
	return sessionID, out, outErr
}

func (a *Agent) createOffer(tmpl *sdp.SessionDescription) (string, *sdp.SessionDescription, error) {
	session, err := newSession(a, true)
	if err != nil {
		return "", nil, err
	}

	tmpl.SessionName = sdp.SessionName(session.id)
	tmpl.WithValueAttribute("ice-options", "trickle")

	for i, media := range tmpl.MediaDescriptions {
		stream := newStream(session, i)
		stream.localSSRC = randomSSRC()
		session.streams = append(session.streams, stream)

		media.WithValueAttribute("ice-ufrag", stream.ufrag)
		media.WithValueAttribute("ice-pwd", stream.localPassword)
		media.WithValueAttribute("setup", "actpass")
		media.WithPropertyAttribute("rtcp-mux")
		media.WithValueAttribute("fingerprint", a.fingerprint)
		media.WithValueAttribute("ssrc", fmt.Sprintf("%d cname:%s", stream.localSSRC, stream.ufrag))
	}

	a.sessions[session.id] = session
	session.state = SessionRunning
	a.callbacks.fireSessionState(session.id, SessionRunning)

	for _, stream := range session.streams {
		a.beginGathering(stream)
	}
	for i, stream := range session.streams {
		setDefaultConnection(tmpl.MediaDescriptions[i], stream)
	}
	a.scheduleSessionTimers(session)

	return session.id, tmpl, nil
}

// CreateSessionAnswer mirrors an incoming offer into a controlled Session:
// consumes the remote's credentials/fingerprint/candidates and produces an
// answer SDP carrying this agent's own local credentials, per spec §4.7.
func (a *Agent) CreateSessionAnswer(offer *sdp.SessionDescription) (string, *sdp.SessionDescription, error) {
	var sessionID string
	var out *sdp.SessionDescription
	var outErr error
	a.runSync(func(ag *Agent) {
		sessionID, out, outErr = ag.createAnswer(offer)
	})
	return sessionID, out, outErr
}

func (a *Agent) createAnswer(offer *sdp.SessionDescription) (string, *sdp.SessionDescription, error) {
	session, err := newSession(a, false)
	if err != nil {
		return "", nil, err
	}

	answer := cloneSessionDescription(offer)
	answer.SessionName = sdp.SessionName(session.id)

	sessionUfrag, _ := offer.Attribute("ice-ufrag")
	sessionPwd, _ := offer.Attribute("ice-pwd")
	sessionFingerprint, _ := offer.Attribute("fingerprint")

	for i, media := range offer.MediaDescriptions {
		stream := newStream(session, i)
		stream.localSSRC = randomSSRC()
		session.streams = append(session.streams, stream)

		remoteUfrag, ok := media.Attribute("ice-ufrag")
		if !ok {
			remoteUfrag = sessionUfrag
		}
		remotePwd, ok := media.Attribute("ice-pwd")
		if !ok {
			remotePwd = sessionPwd
		}
		remoteFp, ok := media.Attribute("fingerprint")
		if !ok {
			remoteFp = sessionFingerprint
		}
		stream.remoteUfrag = remoteUfrag
		stream.remotePassword = remotePwd
		stream.remoteFingerprint = remoteFp
		stream.dtlsRole = mirrorSetup(attributeOrDefault(media, "setup", "actpass"))

		if ssrcAttr, ok := media.Attribute("ssrc"); ok {
			if ssrc, ok := parseSSRCAttr(ssrcAttr); ok {
				stream.remoteSSRC = ssrc
			}
		}

		for _, attr := range media.Attributes {
			if attr.Key == "candidate" {
				if c, err := ParseCandidate(attr.Value); err == nil {
					stream.addRemoteCandidate(c)
				}
			}
			if attr.Key == "end-of-candidates" {
				stream.remoteGathered = true
			}
		}

		out := answer.MediaDescriptions[i]
		out.Attributes = filterAttributes(out.Attributes)
		out.WithValueAttribute("ice-ufrag", stream.ufrag)
		out.WithValueAttribute("ice-pwd", stream.localPassword)
		out.WithValueAttribute("setup", answerSetup(stream.dtlsRole))
		out.WithPropertyAttribute("rtcp-mux")
		out.WithValueAttribute("fingerprint", a.fingerprint)
		out.WithValueAttribute("ssrc", fmt.Sprintf("%d cname:%s", stream.localSSRC, stream.ufrag))
	}

	a.sessions[session.id] = session
	session.state = SessionRunning
	a.callbacks.fireSessionState(session.id, SessionRunning)
	session.unfreezeInitial()

	for _, stream := range session.streams {
		a.beginGathering(stream)
	}
	for i, stream := range session.streams {
		setDefaultConnection(answer.MediaDescriptions[i], stream)
	}
	a.scheduleSessionTimers(session)

	return session.id, answer, nil
}

// ProcessAnswer validates and consumes a remote answer against a
// controlling Session created via CreateSessionOffer, per spec §4.7.
func (a *Agent) ProcessAnswer(sessionID string, answer *sdp.SessionDescription) error {
	var outErr error
	a.runSync(func(ag *Agent) {
		outErr = ag.processAnswer(sessionID, answer)
	})
	return outErr
}

func (a *Agent) processAnswer(sessionID string, answer *sdp.SessionDescription) error {
	session, ok := a.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}

	if opts, ok := answer.Attribute("ice-options"); !ok || !strings.Contains(opts, "trickle") {
		return fmt.Errorf("%w: missing ice-options:trickle", ErrAnswerRejected)
	}

	sessionUfrag, _ := answer.Attribute("ice-ufrag")
	sessionPwd, _ := answer.Attribute("ice-pwd")

	for i, media := range answer.MediaDescriptions {
		if i >= len(session.streams) {
			break
		}
		stream := session.streams[i]

		if _, ok := media.Attribute("rtcp-mux"); !ok {
			return fmt.Errorf("%w: media %d missing rtcp-mux", ErrAnswerRejected, i)
		}
		if !protosContainSAVP(media.MediaName.Protos) {
			return fmt.Errorf("%w: media %d protocol not SAVP(F)", ErrAnswerRejected, i)
		}

		remoteUfrag, ok := media.Attribute("ice-ufrag")
		if !ok {
			remoteUfrag = sessionUfrag
		}
		remotePwd, ok := media.Attribute("ice-pwd")
		if !ok {
			remotePwd = sessionPwd
		}
		if remoteUfrag == "" || remotePwd == "" {
			return fmt.Errorf("%w: media %d missing ice credentials", ErrAnswerRejected, i)
		}
		stream.remoteUfrag = remoteUfrag
		stream.remotePassword = remotePwd

		if fp, ok := media.Attribute("fingerprint"); ok {
			stream.remoteFingerprint = fp
		}

		ssrcAttr, ok := media.Attribute("ssrc")
		if !ok || !strings.Contains(ssrcAttr, "cname:") {
			return fmt.Errorf("%w: media %d missing ssrc/cname", ErrAnswerRejected, i)
		}
		ssrc, ok := parseSSRCAttr(ssrcAttr)
		if !ok {
			return fmt.Errorf("%w: media %d malformed ssrc", ErrAnswerRejected, i)
		}
		stream.remoteSSRC = ssrc

		setup := attributeOrDefault(media, "setup", "active")
		stream.dtlsRole = answererSetupToLocalRole(setup)

		for _, attr := range media.Attributes {
			if attr.Key == "candidate" {
				if c, err := ParseCandidate(attr.Value); err == nil {
					stream.addRemoteCandidate(c)
				}
			}
			if attr.Key == "end-of-candidates" {
				stream.remoteGathered = true
			}
		}
	}

	session.unfreezeInitial()
	return nil
}

// AddCandidate feeds one trickled remote candidate into stream streamIndex,
// per spec §4.7.
func (a *Agent) AddCandidate(sessionID string, streamIndex int, candidateLine string) error {
	var outErr error
	a.runSync(func(ag *Agent) {
		session, ok := ag.sessions[sessionID]
		if !ok {
			outErr = ErrSessionNotFound
			return
		}
		if streamIndex < 0 || streamIndex >= len(session.streams) {
			outErr = ErrStreamIndexOutOfRange
			return
		}
		c, err := ParseCandidate(candidateLine)
		if err != nil {
			outErr = err
			return
		}
		stream := session.streams[streamIndex]
		if stream.addRemoteCandidate(c) {
			session.unfreezeBestForFoundation(c.Foundation)
		}
	})
	return outErr
}

// AddEndOfCandidates marks stream streamIndex's remote candidates complete.
func (a *Agent) AddEndOfCandidates(sessionID string, streamIndex int) error {
	var outErr error
	a.runSync(func(ag *Agent) {
		session, ok := ag.sessions[sessionID]
		if !ok {
			outErr = ErrSessionNotFound
			return
		}
		if streamIndex < 0 || streamIndex >= len(session.streams) {
			outErr = ErrStreamIndexOutOfRange
			return
		}
		stream := session.streams[streamIndex]
		stream.remoteGathered = true
		stream.update()
	})
	return outErr
}

// mirrorSetup derives this agent's DTLS role from the offer's a=setup
// value when building an answer, per spec §4.7.
func mirrorSetup(remoteSetup string) DTLSRole {
	switch remoteSetup {
	case "active":
		return DTLSRolePassive
	case "passive":
		return DTLSRoleActive
	default: // actpass
		return DTLSRoleActive
	}
}

// answererSetupToLocalRole derives the offerer's own DTLS role from the
// answer's a=setup value once ProcessAnswer consumes it.
func answererSetupToLocalRole(remoteSetup string) DTLSRole {
	switch remoteSetup {
	case "active":
		return DTLSRolePassive
	case "passive":
		return DTLSRoleActive
	default:
		return DTLSRoleActive
	}
}

func answerSetup(role DTLSRole) string {
	if role == DTLSRoleActive {
		return "active"
	}
	return "passive"
}

// defaultCandidate picks a stream's default candidate per RFC 8445 §4.1.4:
// the highest-priority peer-reflexive candidate if one exists, else
// server-reflexive, else host, and relayed only when nothing else has
// finished gathering.
func defaultCandidate(candidates []*Candidate) *Candidate {
	best := map[CandidateType]*Candidate{}
	for _, c := range candidates {
		if c.Gathering != GatheringSuccess {
			continue
		}
		if cur, ok := best[c.Type]; !ok || c.Priority > cur.Priority {
			best[c.Type] = c
		}
	}
	for _, t := range []CandidateType{CandidateTypePeerReflexive, CandidateTypeServerReflexive, CandidateTypeHost, CandidateTypeRelayed} {
		if c, ok := best[t]; ok {
			return c
		}
	}
	return nil
}

// setDefaultConnection fills media's "c=" line from stream's current default
// candidate. Called at offer/answer construction time and safe to call
// again later as gathering progresses.
func setDefaultConnection(media *sdp.MediaDescription, stream *Stream) {
	c := defaultCandidate(stream.localCandidates)
	if c == nil {
		return
	}
	addrType := "IP4"
	if isIPv6Addr(c.Address) {
		addrType = "IP6"
	}
	media.ConnectionInformation = &sdp.ConnectionInformation{
		NetworkType: "IN",
		AddressType: addrType,
		Address:     sdp.NewAddress(c.Address, nil, nil),
	}
}

func attributeOrDefault(media *sdp.MediaDescription, key, def string) string {
	if v, ok := media.Attribute(key); ok {
		return v
	}
	return def
}

// protosContainSAVP reports whether a media section's proto tokens include
// an SRTP transport profile (SAVP or SAVPF), per spec §6.
func protosContainSAVP(protos []string) bool {
	for _, p := range protos {
		if strings.Contains(p, "SAVP") {
			return true
		}
	}
	return false
}

func parseSSRCAttr(v string) (uint32, bool) {
	fields := strings.Fields(v)
	if len(fields) == 0 {
		return 0, false
	}
	n, err := strconv.ParseUint(fields[0], 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(n), true
}

// filterAttributes drops ICE/DTLS attributes from a cloned offer's media
// section before the answer rewrites them with local values.
func filterAttributes(attrs []sdp.Attribute) []sdp.Attribute {
	out := attrs[:0:0]
	drop := map[string]bool{
		"ice-ufrag": true, "ice-pwd": true, "setup": true,
		"fingerprint": true, "ssrc": true, "candidate": true,
		"end-of-candidates": true, "rtcp-mux": true,
	}
	for _, attr := range attrs {
		if drop[attr.Key] {
			continue
		}
		out = append(out, attr)
	}
	return out
}

// cloneSessionDescription makes a shallow structural copy of desc so the
// offer's own media attribute slices are not mutated in place when the
// answer rewrites them.
func cloneSessionDescription(desc *sdp.SessionDescription) *sdp.SessionDescription {
	clone := *desc
	clone.MediaDescriptions = make([]*sdp.MediaDescription, len(desc.MediaDescriptions))
	for i, m := range desc.MediaDescriptions {
		mc := *m
		mc.Attributes = append([]sdp.Attribute(nil), m.Attributes...)
		clone.MediaDescriptions[i] = &mc
	}
	clone.Attributes = append([]sdp.Attribute(nil), desc.Attributes...)
	return &clone
}
