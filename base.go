package iceagent

import (
	"net"

	"github.com/pion/dtls/v3"

	"github.com/rivermark/iceagent/internal/wire"
)

// Base is one bound local UDP socket plus the host candidate synthesised
// from it and any server-reflexive/relayed candidates discovered through
// it, per spec §4.3.
type Base struct {
	stream *Stream

	conn      net.PacketConn
	LocalAddr string
	localPort int

	// candidates lists every Candidate derived from this base; the host
	// candidate is always first.
	candidates []*Candidate

	closed bool
}

const maxDatagramSize = 1500

// newBase binds a UDP socket on ip (an ephemeral port, or one drawn from
// the agent's configured port range) and synthesises its host candidate.
// It registers a read loop that posts inbound datagrams onto the agent's
// single-threaded task queue, per spec §5.
func newBase(agent *Agent, stream *Stream, ip net.IP) (*Base, error) {
	conn, err := agent.listenUDP(ip)
	if err != nil {
		return nil, err
	}

	addr := conn.LocalAddr().(*net.UDPAddr)
	b := &Base{
		stream:    stream,
		conn:      conn,
		LocalAddr: addr.IP.String(),
		localPort: addr.Port,
	}

	host := &Candidate{
		Type:        CandidateTypeHost,
		Transport:   "udp",
		ComponentID: 1,
		Address:     b.LocalAddr,
		Port:        b.localPort,
		Gathering:   GatheringSuccess,
		base:        b,
	}
	b.candidates = append(b.candidates, host)

	go b.readLoop(agent)

	return b, nil
}

// readLoop owns the socket's recvfrom calls; every datagram is handed to
// the agent's task queue so all state mutation happens on the event-loop
// goroutine.
func (b *Base) readLoop(agent *Agent) {
	buf := make([]byte, maxDatagramSize)
	for {
		n, from, err := b.conn.ReadFrom(buf)
		if err != nil {
			agent.run(func(ag *Agent) { ag.handleBaseClosed(b, err) })
			return
		}
		datagram := append([]byte(nil), buf[:n]...)
		agent.run(func(ag *Agent) { ag.handleBaseRead(b, datagram, from) })
	}
}

// handleBaseRead classifies and routes one inbound datagram, per spec §4.3's
// inbound dispatch algorithm. Called on the event-loop goroutine.
func (a *Agent) handleBaseRead(b *Base, datagram []byte, from net.Addr) {
	if b.closed || len(datagram) == 0 {
		return
	}

	switch wire.Classify(datagram[0]) {
	case wire.ClassSTUN:
		a.handleStunDatagram(b, datagram, from)
	case wire.ClassDTLS:
		a.handleDtlsDatagram(b, datagram, from)
	case wire.ClassSRTP:
		a.handleSrtpDatagram(b, datagram, from)
	default:
		// discard
	}
}

func (a *Agent) handleBaseClosed(b *Base, _ error) {
	b.closed = true
	if b.stream != nil {
		b.stream.removeBase(b)
	}
}

// sendTo writes raw bytes directly to addr, bypassing any TURN relay.
func (b *Base) sendTo(data []byte, addr net.Addr) error {
	_, err := b.conn.WriteTo(data, addr)
	return err
}

// sendStunBindingRequest encodes and sends a fresh connectivity-check
// request from a pair's local candidate to its remote candidate, per
// spec §4.3/§4.4.
func (a *Agent) sendStunBindingRequest(p *Pair) error {
	txnID, err := a.txns.insertPair(p)
	if err != nil {
		return err
	}
	p.pendingTxnID = txnID
	p.pendingUseCandidate = p.nominated

	stream := p.stream
	username := stream.remoteUfrag + ":" + stream.localUfrag()

	msg, err := wire.EncodeBindingRequest(wire.BindingRequestParams{
		TransactionID: txnID,
		Username:      username,
		IntegrityKey:  stream.remotePassword,
		Priority:      p.peerReflexivePriorityForLocal(),
		Controlling:   stream.session.controlling,
		Tiebreaker:    stream.session.tiebreaker,
		UseCandidate:  p.pendingUseCandidate,
	})
	if err != nil {
		return err
	}

	raw, err := msg.Marshal()
	if err != nil {
		return err
	}
	return p.localBase().sendTo(raw, p.remoteNetAddr())
}

// sendTurnAllocateRequest sends a TURN Allocate request for a candidate
// still gathering against a relay server, per spec §4.3.
func (a *Agent) sendTurnAllocateRequest(c *Candidate) error {
	if c.server == nil {
		return ErrNotImplemented
	}
	txnID, err := a.txns.insertCandidate(c)
	if err != nil {
		return err
	}
	key := wire.LongTermCredential(c.server.Username, "", c.server.Password)
	msg, err := wire.EncodeTurnAllocateRequest(txnID, c.server.Username, "", "", key)
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

// srtpProfilesFromNames parses the colon-separated dtls.srtp_profiles
// configuration string into the library's profile enum.
func srtpProfilesFromNames(names string) []dtls.SRTPProtectionProfile {
	var out []dtls.SRTPProtectionProfile
	for _, n := range splitColon(names) {
		switch n {
		case "SRTP_AES128_CM_SHA1_80":
			out = append(out, dtls.SRTP_AES128_CM_HMAC_SHA1_80)
		case "SRTP_AES128_CM_SHA1_32":
			out = append(out, dtls.SRTP_AES128_CM_HMAC_SHA1_32)
		case "SRTP_AEAD_AES_128_GCM":
			out = append(out, dtls.SRTP_AEAD_AES_128_GCM)
		case "SRTP_AEAD_AES_256_GCM":
			out = append(out, dtls.SRTP_AEAD_AES_256_GCM)
		}
	}
	return out
}

func splitColon(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == ':' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}
