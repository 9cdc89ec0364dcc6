package iceagent

import (
	"crypto/sha256"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/pion/dtls/v3"
	"github.com/pion/stun/v3"
	"github.com/pion/transport/v4/packetio"

	"github.com/rivermark/iceagent/internal/wire"
)

// PairState is a connectivity-check pair's position in the RFC 8445 §6.1.2
// state machine.
type PairState int

const (
	PairFrozen PairState = iota
	PairWaiting
	PairInProgress
	PairSucceeded
	PairFailed
)

func (s PairState) String() string {
	switch s {
	case PairFrozen:
		return "frozen"
	case PairWaiting:
		return "waiting"
	case PairInProgress:
		return "in-progress"
	case PairSucceeded:
		return "succeeded"
	case PairFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// maxProgressCount caps retransmissions per pair, per spec §4.4/§5.
const maxProgressCount = 100

// Pair is a (local, remote) candidate pairing undergoing connectivity
// checking, per spec §3/§4.4. It borrows its candidates; it never owns
// them.
type Pair struct {
	stream *Stream
	local  *Candidate
	remote *Candidate

	state      PairState
	priority   uint64
	nominated  bool
	foundation string

	successCount int
	progressCount int

	pendingTxnID        [stun.TransactionIDSize]byte
	pendingUseCandidate bool

	dtlsRole DTLSRole
	dtlsConn *dtls.Conn
	conn     *pairConn
	srtpKeys *wire.ExportedSrtpKeys

	lastSent     time.Time
	lastReceived time.Time
}

// DTLSRole is the DTLS handshake role a stream (and, once selected, its
// pair) plays, derived from the SDP a=setup negotiation, per spec §4.7.
type DTLSRole int

const (
	DTLSRoleActive DTLSRole = iota
	DTLSRolePassive
)

// newPair creates a pair for a compatible (local, remote) candidate
// combination; it does not compute priority or insert into the stream's
// checklist — callers do that (see Stream.addPairIfCompatible).
func newPair(stream *Stream, local, remote *Candidate) *Pair {
	return &Pair{
		stream:     stream,
		local:      local,
		remote:     remote,
		state:      PairFrozen,
		foundation: local.Foundation + ":" + remote.Foundation,
	}
}

// computePriority implements RFC 8445 §6.1.2.3.
func (p *Pair) computePriority(controlling bool) uint64 {
	g, d := uint64(p.remote.Priority), uint64(p.local.Priority)
	if controlling {
		g, d = uint64(p.local.Priority), uint64(p.remote.Priority)
	}
	min, max := g, d
	var gtd uint64
	if g > d {
		min, max = d, g
		gtd = 1
	}
	return (uint64(1)<<32)*min + 2*max + gtd
}

func (p *Pair) localBase() *Base { return p.local.base }

func (p *Pair) remoteNetAddr() net.Addr {
	return &net.UDPAddr{IP: net.ParseIP(p.remote.Address), Port: p.remote.Port}
}

// peerReflexivePriorityForLocal computes the PRIORITY attribute value
// carried on outbound connectivity checks: the priority our peer should
// assign us if it learns this address as peer-reflexive, per spec §4.4.
// The local-preference and component terms are unchanged from our actual
// local candidate; only the type preference is fixed to peer-reflexive.
func (p *Pair) peerReflexivePriorityForLocal() uint32 {
	localPref := (p.local.Priority >> 8) & 0xFFFF
	typePref := CandidateTypePeerReflexive.typePreference()
	return typePref<<24 | localPref<<8 | uint32(256-p.local.ComponentID)
}

// markWaiting transitions frozen -> waiting, per spec §4.4.
func (p *Pair) markWaiting() {
	if p.state == PairFrozen {
		p.state = PairWaiting
	}
}

// onSendRequest transitions waiting -> in-progress when the scheduler
// dequeues and sends a request for this pair.
func (p *Pair) onSendRequest() {
	p.state = PairInProgress
	p.progressCount++
	p.lastSent = time.Now()
}

// onSuccess transitions in-progress -> succeeded on a verified symmetric
// STUN success response.
func (p *Pair) onSuccess() {
	p.state = PairSucceeded
	p.successCount++
	p.lastReceived = time.Now()
}

// onFailure transitions in-progress -> failed.
func (p *Pair) onFailure() {
	p.state = PairFailed
}

// retransmissionsExhausted reports whether the pair has exceeded the
// per-pair retransmission cap.
func (p *Pair) retransmissionsExhausted() bool {
	return p.progressCount > maxProgressCount
}

// beginDtlsConnect initiates the pair's DTLS handshake once it becomes selected,
// per spec §4.4/S5. The passive side instead waits for the first inbound
// DTLS datagram (handled in agent.go's handleDtlsDatagram).
func (p *Pair) beginDtlsConnect(agent *Agent) error {
	p.conn = newPairConn(p.localBase(), p.remoteNetAddr())

	cert := agent.dtlsCertificate
	profiles := agent.srtpProfiles

	conn, err := wire.DtlsClient(p.conn, cert, profiles)
	if err != nil {
		return fmt.Errorf("iceagent: dtls connect: %w", err)
	}
	p.dtlsConn = conn
	return p.finishDtls()
}

// feedDtls delivers an inbound DTLS datagram to the pair's handshake
// connection; on the passive side the first datagram lazily starts the
// server handshake.
func (p *Pair) feedDtls(agent *Agent, datagram []byte) error {
	if p.conn == nil {
		p.conn = newPairConn(p.localBase(), p.remoteNetAddr())
	}
	p.conn.deliver(datagram)

	if p.dtlsConn == nil {
		if p.stream.dtlsRole != DTLSRolePassive {
			return nil
		}
		p.dtlsRole = DTLSRolePassive
		conn, err := wire.DtlsServer(p.conn, agent.dtlsCertificate, agent.srtpProfiles)
		if err != nil {
			return fmt.Errorf("iceagent: dtls accept: %w", err)
		}
		p.dtlsConn = conn
		return p.finishDtls()
	}
	return nil
}

// finishDtls verifies the peer's certificate against the fingerprint
// negotiated over SDP, exports SRTP keying material, and installs the
// stream's SRTP policies once the handshake has completed. A fingerprint
// mismatch fails the pair per spec §7.
func (p *Pair) finishDtls() error {
	if err := verifyRemoteFingerprint(p.dtlsConn, p.stream.remoteFingerprint); err != nil {
		return err
	}

	keys, err := wire.ExportSrtpKeys(p.dtlsConn)
	if err != nil {
		return err
	}
	p.srtpKeys = keys
	p.stream.dtlsCompleted = true
	return p.stream.installSrtpKeys(p)
}

// verifyRemoteFingerprint checks the DTLS peer's leaf certificate against
// an RFC 8122 "sha-256 XX:YY:..." fingerprint string negotiated over SDP.
// An empty expected fingerprint (no remote fingerprint was ever parsed)
// skips verification rather than always failing.
func verifyRemoteFingerprint(conn *dtls.Conn, expected string) error {
	if expected == "" {
		return nil
	}
	certs := conn.RemoteCertificate()
	if len(certs) == 0 {
		return fmt.Errorf("iceagent: peer presented no dtls certificate")
	}
	sum := sha256.Sum256(certs[0])
	parts := make([]string, len(sum))
	for i, b := range sum {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	actual := "sha-256 " + strings.Join(parts, ":")
	if !strings.EqualFold(actual, expected) {
		return fmt.Errorf("iceagent: dtls fingerprint mismatch: want %s got %s", expected, actual)
	}
	return nil
}

// pairConnBufferSize bounds the packetio.Buffer backing a pairConn, the same
// way the teacher's internal/mux.Endpoint bounds its own demux buffer.
const pairConnBufferSize = maxDatagramSize * 16

// pairConn adapts a Base's UDP socket plus an inbound packetio.Buffer into a
// net.Conn, so the DTLS library can drive its handshake over the same
// demultiplexed UDP port the STUN/SRTP traffic shares, following the same
// pattern as the teacher's internal/mux.Endpoint.
type pairConn struct {
	base  *Base
	raddr net.Addr
	buf   *packetio.Buffer
}

func newPairConn(base *Base, raddr net.Addr) *pairConn {
	buf := packetio.NewBuffer()
	buf.SetLimitSize(pairConnBufferSize)
	return &pairConn{base: base, raddr: raddr, buf: buf}
}

// deliver hands an inbound DTLS datagram to the connection's Read side. A
// write error means the buffer is closed (pair torn down); the datagram is
// simply dropped.
func (c *pairConn) deliver(b []byte) {
	_, _ = c.buf.Write(b)
}

func (c *pairConn) Read(b []byte) (int, error) {
	return c.buf.Read(b)
}

func (c *pairConn) Write(b []byte) (int, error) {
	return len(b), c.base.sendTo(b, c.raddr)
}

func (c *pairConn) Close() error { return c.buf.Close() }

func (c *pairConn) LocalAddr() net.Addr { return c.base.conn.LocalAddr() }

func (c *pairConn) RemoteAddr() net.Addr { return c.raddr }

func (c *pairConn) SetDeadline(t time.Time) error {
	if err := c.SetReadDeadline(t); err != nil {
		return err
	}
	return c.SetWriteDeadline(t)
}

func (c *pairConn) SetReadDeadline(t time.Time) error {
	return c.buf.SetReadDeadline(t)
}

func (c *pairConn) SetWriteDeadline(t time.Time) error {
	return c.base.conn.SetWriteDeadline(t)
}
