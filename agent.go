package iceagent

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"net"
	"strings"
	"time"

	"github.com/pion/dtls/v3"
	"github.com/pion/stun/v3"

	"github.com/rivermark/iceagent/internal/wire"
)

// task is one closure posted onto the Agent's task channel; every mutation
// of Agent/Session/Stream/Base/Pair state happens on the Agent's single
// taskLoop goroutine, mirroring the teacher's internal/ice taskChan/
// taskLoop actor (spec §5).
type task func(*Agent)

// Agent is the top-level registry described in spec §3/§4.7: configuration,
// certificate & DTLS context, STUN/TURN server list, transaction table, and
// session table, plus the public offer/answer/candidate/send/drop API.
type Agent struct {
	cfg       *Config
	loggers   *loggers
	callbacks Callbacks

	dtlsCertificate tls.Certificate
	fingerprint     string
	srtpProfiles    []dtls.SRTPProtectionProfile

	txns     *txnTable
	sessions map[string]*Session

	interfaceIPs []net.IP

	taskChan chan task
	done     chan struct{}

	gcTicker *time.Ticker
}

// NewAgent constructs an Agent from cfg: loads the DTLS certificate,
// computes its RFC 8122 fingerprint, resolves the local interface set, and
// starts the single-threaded task loop, per spec §4.7/§6.
func NewAgent(cfg *Config, callbacks Callbacks) (*Agent, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	cert, fingerprint, err := loadOrGenerateCertificate(cfg.DTLS)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfigInvalid, err)
	}

	profiles := srtpProfilesFromNames(cfg.DTLS.SRTPProfiles)
	if len(profiles) == 0 {
		profiles = []dtls.SRTPProtectionProfile{dtls.SRTP_AEAD_AES_128_GCM, dtls.SRTP_AES128_CM_HMAC_SHA1_80}
	}

	ips, err := resolveInterfaces(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfigInvalid, err)
	}

	a := &Agent{
		cfg:             cfg,
		loggers:         newLoggers(nil, cfg.Debug),
		callbacks:       callbacks,
		dtlsCertificate: cert,
		fingerprint:     fingerprint,
		srtpProfiles:    profiles,
		txns:            newTxnTable(cfg.Limits.TransactionLifetimeUsecs),
		sessions:        make(map[string]*Session),
		interfaceIPs:    ips,
		taskChan:        make(chan task),
		done:            make(chan struct{}),
		gcTicker:        time.NewTicker(time.Minute),
	}

	go a.taskLoop()
	return a, nil
}

// run posts t onto the task channel and blocks until the loop has picked it
// up (not until it has run); callers that need the result synchronously
// should use runSync.
func (a *Agent) run(t task) {
	select {
	case a.taskChan <- t:
	case <-a.done:
	}
}

// runSync posts t and waits for it to finish executing, for public API
// calls that need to return a value computed on the task loop.
func (a *Agent) runSync(t task) {
	done := make(chan struct{})
	a.run(func(ag *Agent) {
		t(ag)
		close(done)
	})
	select {
	case <-done:
	case <-a.done:
	}
}

func (a *Agent) taskLoop() {
	for {
		select {
		case t := <-a.taskChan:
			t(a)
		case now := <-a.gcTicker.C:
			a.txns.gc(now)
		case <-a.done:
			return
		}
	}
}

// Close tears down every session and stops the task loop.
func (a *Agent) Close() {
	a.runSync(func(ag *Agent) {
		for id, s := range ag.sessions {
			s.destroy()
			delete(ag.sessions, id)
		}
	})
	close(a.done)
	a.gcTicker.Stop()
}

// interfaceCount reports how many local interfaces gathering enumerates,
// feeding candidate §4.2 LOCAL_PREF computation.
func (a *Agent) interfaceCount() int {
	if len(a.interfaceIPs) == 0 {
		return 1
	}
	return len(a.interfaceIPs)
}

// listenUDP binds a UDP socket on ip, honoring the configured port range,
// per spec §4.7.
func (a *Agent) listenUDP(ip net.IP) (net.PacketConn, error) {
	if a.cfg.PortRange.Max == 0 && a.cfg.PortRange.Min == 0 {
		return net.ListenUDP("udp", &net.UDPAddr{IP: ip, Port: 0})
	}
	min, max := int(a.cfg.PortRange.Min), int(a.cfg.PortRange.Max)
	if min == 0 {
		min = 1
	}
	if max == 0 {
		max = 0xFFFF
	}
	for p := min; p <= max; p++ {
		conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: ip, Port: p})
		if err == nil {
			return conn, nil
		}
	}
	return nil, fmt.Errorf("iceagent: no free port in range %d-%d", min, max)
}

// resolveInterfaces implements spec §4.7's interface enumeration: explicit
// hostnames when autodiscovery is off, else every surviving system
// interface address (loopback/link-local/site-local/any/IPv4-compatible
// excluded; see usableInterfaceIP).
func resolveInterfaces(cfg *Config) ([]net.IP, error) {
	if !cfg.Autodiscovery {
		var ips []net.IP
		for _, host := range cfg.Interfaces {
			ip := net.ParseIP(host)
			if ip == nil {
				resolved, err := net.ResolveIPAddr("ip", host)
				if err != nil {
					return nil, fmt.Errorf("resolve interface %q: %w", host, err)
				}
				ip = resolved.IP
			}
			ips = append(ips, ip)
		}
		return ips, nil
	}

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	var ips []net.IP
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			var ip net.IP
			switch a := addr.(type) {
			case *net.IPNet:
				ip = a.IP
			case *net.IPAddr:
				ip = a.IP
			}
			if ip == nil || !usableInterfaceIP(ip) {
				continue
			}
			ips = append(ips, ip)
		}
	}
	return ips, nil
}

// usableInterfaceIP filters per spec §4.7: skip IPv4 127.0.0.0/8, IPv6
// link-local, site-local, loopback, any, and IPv4-compatible IPv6. An
// IPv4-mapped address (::ffff:a.b.c.d) is indistinguishable from plain IPv4
// in a net.IP, so it is judged, and kept, as IPv4.
func usableInterfaceIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsUnspecified() || ip.IsLinkLocalUnicast() {
		return false
	}
	if ip4 := ip.To4(); ip4 != nil {
		return true
	}
	if ip.IsLinkLocalMulticast() {
		return false
	}
	// IPv4-compatible (::a.b.c.d, deprecated); :: and ::1 were rejected above.
	if len(ip) == net.IPv6len {
		compatible := true
		for _, b := range ip[:12] {
			if b != 0 {
				compatible = false
				break
			}
		}
		if compatible {
			return false
		}
	}
	// site-local (fec0::/10, deprecated).
	if len(ip) == net.IPv6len && ip[0] == 0xfe && (ip[1]&0xc0) == 0xc0 {
		return false
	}
	return true
}

// certificateFingerprint computes the RFC 8122 sha-256 fingerprint string
// ("sha-256 XX:YY:...") of cert's leaf certificate.
func certificateFingerprint(cert tls.Certificate) (string, error) {
	if len(cert.Certificate) == 0 {
		return "", fmt.Errorf("iceagent: certificate has no DER bytes")
	}
	sum := sha256.Sum256(cert.Certificate[0])
	parts := make([]string, len(sum))
	for i, b := range sum {
		parts[i] = strings.ToUpper(hexByte(b))
	}
	return "sha-256 " + strings.Join(parts, ":"), nil
}

func hexByte(b byte) string {
	const hex = "0123456789abcdef"
	return string([]byte{hex[b>>4], hex[b&0xF]})
}

// loadOrGenerateCertificate reads dtls.cert_path/key_path from disk, or (for
// the common "no certificate configured" case) generates a throwaway
// self-signed ECDSA certificate, following the same x509.CreateCertificate
// template pattern as the teacher's own certificate generation.
func loadOrGenerateCertificate(cfg DTLSConfig) (tls.Certificate, string, error) {
	var cert tls.Certificate
	var err error
	if cfg.CertPath != "" && cfg.KeyPath != "" {
		cert, err = tls.LoadX509KeyPair(cfg.CertPath, cfg.KeyPath)
		if err != nil {
			return tls.Certificate{}, "", fmt.Errorf("load dtls certificate: %w", err)
		}
	} else {
		cert, err = generateSelfSignedCertificate()
		if err != nil {
			return tls.Certificate{}, "", fmt.Errorf("generate self-signed dtls certificate: %w", err)
		}
	}
	fp, err := certificateFingerprint(cert)
	if err != nil {
		return tls.Certificate{}, "", err
	}
	return cert, fp, nil
}

// generateSelfSignedCertificate produces an ephemeral ECDSA P-256
// certificate for DTLS, used whenever no cert_path/key_path is configured.
func generateSelfSignedCertificate() (tls.Certificate, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return tls.Certificate{}, err
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return tls.Certificate{}, err
	}
	tmpl := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: "iceagent"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * 365 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		return tls.Certificate{}, err
	}
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}, nil
}

// --- STUN inbound dispatch (spec §4.3/§4.6/§4.7/§7) ---

func (a *Agent) handleStunDatagram(b *Base, datagram []byte, from net.Addr) {
	msg, err := wire.ParseStun(datagram)
	if err != nil {
		return // DatagramMalformed: drop, no state change
	}

	switch msg.Class {
	case stun.ClassRequest:
		a.handleStunRequest(b, msg, from)
	case stun.ClassSuccessResponse, stun.ClassErrorResponse:
		a.handleStunResponse(b, msg)
	default:
		// indications are dropped, per spec §4.3
	}
}

func udpAddrOf(addr net.Addr) *net.UDPAddr {
	u, _ := addr.(*net.UDPAddr)
	return u
}

func (a *Agent) handleStunRequest(b *Base, msg *wire.StunMessage, from net.Addr) {
	stream := b.stream
	if stream == nil {
		return
	}

	role := wire.ParseRoleAttrs(msg.Raw)
	username, uerr := msg.Raw.Get(stun.AttrUsername)
	wantUsername := stream.localUfrag() + ":" + stream.remoteUfrag
	if uerr != nil || string(username) != wantUsername {
		a.sendStunError(b, msg, from, wire.CodeUnauthorized)
		return
	}
	if !wire.VerifyIntegrity(msg, stream.localPassword) {
		a.sendStunError(b, msg, from, wire.CodeUnauthorized)
		return
	}
	if !role.HasPriority || (!role.Controlling && !role.Controlled) {
		a.sendStunError(b, msg, from, wire.CodeBadRequest)
		return
	}

	session := stream.session
	if reject, err := session.handleRoleConflict(role.Controlling, role.Tiebreaker); err != nil {
		a.loggers.ice.Warnf("role conflict: %v", err)
		return
	} else if reject {
		a.sendStunError(b, msg, from, wire.CodeRoleConflict)
		return
	}

	p := a.findOrSynthesizePair(stream, b, from, role.PeerPriority)
	if p == nil {
		return
	}
	if p.state != PairFailed {
		if p.state == PairFrozen {
			p.state = PairWaiting
		}
		stream.pushTrigger(p)
	}
	if role.UseCandidate && !session.controlling && p.state == PairSucceeded {
		session.onNominationSuccess(stream, p)
	}

	a.sendStunSuccess(b, msg, from, stream.localPassword)
}

// findOrSynthesizePair locates the pair matching (base, remote address), or
// synthesizes a peer-reflexive remote candidate and its pairs if the
// request's source is not already a known remote candidate, per spec §4.4.
func (a *Agent) findOrSynthesizePair(stream *Stream, b *Base, from net.Addr, peerPriority uint32) *Pair {
	u := udpAddrOf(from)
	if u == nil {
		return nil
	}
	for _, p := range stream.pairs {
		if p.local.base == b && p.remote.Address == u.IP.String() && p.remote.Port == u.Port {
			return p
		}
	}

	remote := &Candidate{
		Type:        CandidateTypePeerReflexive,
		Transport:   "udp",
		ComponentID: 1,
		Priority:    peerPriority,
		Address:     u.IP.String(),
		Port:        u.Port,
		Gathering:   GatheringSuccess,
	}
	stream.addRemoteCandidate(remote)

	for _, p := range stream.pairs {
		if p.local.base == b && p.remote == remote {
			return p
		}
	}
	return nil
}

func (a *Agent) sendStunSuccess(b *Base, req *wire.StunMessage, from net.Addr, localPassword string) {
	u := udpAddrOf(from)
	if u == nil {
		return
	}
	resp, err := wire.EncodeSuccessResponse(req, u.IP, u.Port, localPassword)
	if err != nil {
		return
	}
	raw, err := resp.Marshal()
	if err != nil {
		return
	}
	_ = b.sendTo(raw, from)
}

func (a *Agent) sendStunError(b *Base, req *wire.StunMessage, from net.Addr, code wire.StunErrorCode) {
	resp, err := wire.EncodeErrorResponse(req, code)
	if err != nil {
		return
	}
	raw, err := resp.Marshal()
	if err != nil {
		return
	}
	_ = b.sendTo(raw, from)
}

func (a *Agent) handleStunResponse(b *Base, msg *wire.StunMessage) {
	owner, ok := a.txns.resolve(msg.TransactionID)
	if !ok {
		return // transaction unknown: stale, GC'd, or destroyed owner
	}
	if owner.pair != nil {
		a.handlePairResponse(owner.pair, msg)
		return
	}
	if owner.candidate != nil {
		a.handleGatherResponse(owner.candidate, msg)
	}
}

func (a *Agent) handlePairResponse(p *Pair, msg *wire.StunMessage) {
	stream := p.stream
	session := stream.session

	if msg.Class == stun.ClassErrorResponse {
		code := errorCode(msg.Raw)
		if code == int(wire.CodeRoleConflict) {
			newTb, err := randomTiebreaker()
			if err == nil {
				session.controlling = !session.controlling
				session.tiebreaker = newTb
				session.onRoleFlipped()
			}
			p.onFailure()
			stream.update()
			return
		}
		p.onFailure()
		stream.update()
		return
	}

	if !wire.VerifyIntegrity(msg, stream.remotePassword) {
		return
	}

	var mapped stun.XORMappedAddress
	if err := mapped.GetFrom(msg.Raw); err != nil {
		p.onFailure()
		stream.update()
		return
	}

	p.onSuccess()
	stream.markValid(p)
	session.unfreezeSharing(p)

	if mapped.IP.String() != p.local.Address || mapped.Port != p.local.Port {
		// peer-reflexive local candidate, per spec S2.
		prflx := &Candidate{
			Type:        CandidateTypePeerReflexive,
			Transport:   "udp",
			ComponentID: 1,
			Priority:    p.peerReflexivePriorityForLocal(),
			Address:     mapped.IP.String(),
			Port:        mapped.Port,
			RelatedAddr: p.local.Address,
			RelatedPort: p.local.Port,
			Gathering:   GatheringSuccess,
			base:        p.local.base,
		}
		stream.addLocalCandidate(prflx)
		for _, np := range stream.pairs {
			if np.local == prflx && np.remote == p.remote {
				stream.pushTrigger(np)
				break
			}
		}
	}

	if p.pendingUseCandidate {
		session.onNominationSuccess(stream, p)
	}
	session.maybeNominate(stream)
	stream.update()
}

func (a *Agent) handleGatherResponse(c *Candidate, msg *wire.StunMessage) {
	if msg.Class == stun.ClassErrorResponse {
		c.Gathering = GatheringFailed
		if c.base != nil && c.base.stream != nil {
			c.base.stream.update()
		}
		return
	}

	if c.Type == CandidateTypeRelayed {
		ip, port, err := wire.DecodeTurnAllocateResponse(msg.Raw)
		if err != nil {
			c.Gathering = GatheringFailed
			return
		}
		c.Address = ip.String()
		c.Port = port
	} else {
		var mapped stun.XORMappedAddress
		if err := mapped.GetFrom(msg.Raw); err != nil {
			c.Gathering = GatheringFailed
			return
		}
		c.Address = mapped.IP.String()
		c.Port = mapped.Port
	}
	c.Gathering = GatheringSuccess

	stream := c.base.stream
	siblings := append(append([]*Candidate{}, stream.localCandidates...))
	ComputeFoundation(c, siblings)
	c.Priority = ComputePriority(c, stream.session.agent.interfaceCount(), isIPv6Addr(c.Address), 0)
	stream.localCandidates = append(stream.localCandidates, c)
	stream.pairWithRemotes(c)
}

// --- DTLS inbound dispatch (spec §4.3) ---

func (a *Agent) handleDtlsDatagram(b *Base, datagram []byte, from net.Addr) {
	u := udpAddrOf(from)
	if u == nil || b.stream == nil {
		return
	}
	for _, p := range b.stream.pairs {
		if p.local.base == b && p.remote.Address == u.IP.String() && p.remote.Port == u.Port {
			if err := p.feedDtls(a, datagram); err != nil {
				a.loggers.dtls.Warnf("dtls handshake: %v", err)
				p.onFailure()
				b.stream.update()
			}
			return
		}
	}
}

// --- SRTP inbound dispatch (spec §4.3/S6) ---

func (a *Agent) handleSrtpDatagram(b *Base, datagram []byte, from net.Addr) {
	stream := b.stream
	if stream == nil || stream.selected == nil {
		return
	}
	session := stream.session
	plaintext, ssrc, err := session.unprotect(datagram)
	if err != nil {
		return // S6: wrong/unknown SSRC or auth failure, dropped silently
	}
	if ssrc != stream.remoteSSRC {
		return
	}
	rewriteSSRC(plaintext, stream.localSSRC)
	a.callbacks.fireStreamIO(stream.session.id, stream.index, plaintext)
}

// --- gathering (spec §4.7's "Control flow on gather") ---

func (a *Agent) beginGathering(stream *Stream) {
	ips := a.interfaceIPs
	if len(ips) == 0 {
		ips = []net.IP{net.IPv4zero}
	}
	for _, ip := range ips {
		base, err := newBase(a, stream, ip)
		if err != nil {
			a.loggers.ice.Warnf("bind base on %s: %v", ip, err)
			continue
		}
		stream.bases = append(stream.bases, base)
		stream.addLocalCandidate(base.candidates[0])

		for i := range a.cfg.Servers {
			server := &a.cfg.Servers[i]
			// a server entry with credentials is treated as a TURN relay;
			// a bare URL is treated as a plain STUN server, per spec §6.
			if server.Username != "" {
				relay := &Candidate{
					Type:        CandidateTypeRelayed,
					Transport:   "udp",
					ComponentID: 1,
					Gathering:   GatheringInProgress,
					base:        base,
					server:      server,
				}
				base.candidates = append(base.candidates, relay)
				if err := a.sendTurnAllocateRequest(relay); err != nil {
					relay.Gathering = GatheringFailed
				}
				continue
			}
			reflexive := &Candidate{
				Type:        CandidateTypeServerReflexive,
				Transport:   "udp",
				ComponentID: 1,
				Gathering:   GatheringInProgress,
				base:        base,
				server:      server,
			}
			base.candidates = append(base.candidates, reflexive)
			if err := a.sendStunBindingRequestForGather(reflexive); err != nil {
				reflexive.Gathering = GatheringFailed
			}
		}
	}
	stream.trickleSweep(a.callbacks, stream.session.id)
}

func (a *Agent) sendStunBindingRequestForGather(c *Candidate) error {
	if c.server == nil {
		return fmt.Errorf("iceagent: gather candidate missing server")
	}
	txnID, err := a.txns.insertCandidate(c)
	if err != nil {
		return err
	}
	msg, err := wire.EncodeGatherBindingRequest(txnID)
	if err != nil {
		return err
	}
	raw, err := msg.Marshal()
	if err != nil {
		return err
	}
	serverAddr, err := net.ResolveUDPAddr("udp", c.server.URL)
	if err != nil {
		return err
	}
	return c.base.sendTo(raw, serverAddr)
}

// --- session-level timers (spec §4.6) ---

func (a *Agent) scheduleSessionTimers(s *Session) {
	s.timeoutTimer = time.AfterFunc(a.cfg.Limits.Stun.SessionTimeoutUsecs, func() {
		a.run(func(ag *Agent) { ag.onSessionTimeout(s) })
	})
	s.tricklingTimer = time.AfterFunc(50*time.Millisecond, func() {
		a.run(func(ag *Agent) { ag.onTricklingStart(s) })
	})
	s.nominateTimer = time.AfterFunc(500*time.Millisecond, func() {
		a.run(func(ag *Agent) { ag.onNominateStart(s) })
	})
	a.schedulePacing(s)
}

func (a *Agent) schedulePacing(s *Session) {
	var tick func()
	tick = func() {
		a.run(func(ag *Agent) {
			if _, ok := ag.sessions[s.id]; !ok {
				return
			}
			s.tick()
			s.paceTimer = time.AfterFunc(ag.cfg.Limits.Stun.ConnectivityPaceUsecs, tick)
		})
	}
	s.paceTimer = time.AfterFunc(a.cfg.Limits.Stun.ConnectivityPaceUsecs, tick)
}

func (a *Agent) onSessionTimeout(s *Session) {
	if s.state == SessionRunning || s.state == SessionInit {
		a.failSession(s)
	}
}

func (a *Agent) onTricklingStart(s *Session) {
	s.tricklingStarted = true
	for _, stream := range s.streams {
		stream.trickleSweep(a.callbacks, s.id)
	}
}

func (a *Agent) onNominateStart(s *Session) {
	s.nominateStarted = true
	for _, stream := range s.streams {
		for _, c := range stream.localCandidates {
			if c.Gathering == GatheringInProgress {
				c.Gathering = GatheringFailed
			}
		}
		a.maybeCompleteOrFail(s, stream)
	}
}

func (a *Agent) maybeCompleteOrFail(s *Session, stream *Stream) {
	stream.update()
	s.updateState()
}

// updateState re-evaluates Session.state from its streams, per spec §4.6,
// and fires the session-state/drop callbacks on transition.
func (s *Session) updateState() {
	if s.state != SessionRunning {
		return
	}
	allCompleted, anyFailed := true, false
	for _, stream := range s.streams {
		switch stream.state {
		case StreamFailed:
			anyFailed = true
		case StreamCompleted:
		default:
			allCompleted = false
		}
	}
	switch {
	case anyFailed:
		s.agent.failSession(s)
	case allCompleted && len(s.streams) > 0:
		s.state = SessionCompleted
		s.agent.callbacks.fireSessionState(s.id, SessionCompleted)
		s.agent.dropSession(s)
	}
}

func (a *Agent) failSession(s *Session) {
	s.state = SessionFailed
	a.callbacks.fireSessionState(s.id, SessionFailed)
	a.dropSession(s)
}

func (a *Agent) dropSession(s *Session) {
	a.callbacks.fireSessionDrop(s.id)
	s.destroy()
	delete(a.sessions, s.id)
}

// --- public API (spec §4.7/§7), offer/answer construction lives in sdp.go ---

// Send writes an SRTP-protected RTP packet on stream streamIndex's selected
// pair. It returns the number of plaintext bytes accepted, or -1 on a
// precondition violation (no session, no selected pair), per spec §7.
func (a *Agent) Send(sessionID string, streamIndex int, rtpPacket []byte) int {
	n := -1
	a.runSync(func(ag *Agent) {
		session, ok := ag.sessions[sessionID]
		if !ok {
			return
		}
		if streamIndex < 0 || streamIndex >= len(session.streams) {
			return
		}
		stream := session.streams[streamIndex]
		if stream.selected == nil {
			return
		}
		protected, err := session.protect(rtpPacket, stream.localSSRC)
		if err != nil {
			return
		}
		p := stream.selected
		if p.local.Type == CandidateTypeRelayed {
			peerIP := net.ParseIP(p.remote.Address)
			msg, err := wire.EncodeTurnSend(peerIP, p.remote.Port, protected)
			if err != nil {
				return
			}
			raw, err := msg.Marshal()
			if err != nil {
				return
			}
			if err := p.localBase().sendTo(raw, p.remoteNetAddr()); err != nil {
				return
			}
		} else if err := p.localBase().sendTo(protected, p.remoteNetAddr()); err != nil {
			return
		}
		n = len(rtpPacket)
	})
	return n
}

// DropSession tears down a session and invokes the drop callback.
func (a *Agent) DropSession(sessionID string) error {
	var outErr error
	a.runSync(func(ag *Agent) {
		session, ok := ag.sessions[sessionID]
		if !ok {
			outErr = ErrSessionNotFound
			return
		}
		ag.dropSession(session)
	})
	return outErr
}

// randomSSRC generates a nonzero local SSRC for a newly created stream.
func randomSSRC() uint32 {
	id, err := stun.NewTransactionID()
	if err != nil {
		return 1
	}
	v := uint32(id[0])<<24 | uint32(id[1])<<16 | uint32(id[2])<<8 | uint32(id[3])
	if v == 0 {
		v = 1
	}
	return v
}

func errorCode(m *stun.Message) int {
	var ec stun.ErrorCodeAttribute
	if err := ec.GetFrom(m); err != nil {
		return 0
	}
	return int(ec.Code)
}

