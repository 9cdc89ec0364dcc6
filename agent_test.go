package iceagent

import (
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAgentCloseRoundTrip(t *testing.T) {
	agent, err := NewAgent(DefaultConfig(), Callbacks{})
	require.NoError(t, err)
	require.NotEmpty(t, agent.fingerprint)
	assert.True(t, strings.HasPrefix(agent.fingerprint, "sha-256 "))
	agent.Close()
}

func TestAgentInterfaceCountDefaultsToOne(t *testing.T) {
	a := &Agent{}
	assert.Equal(t, 1, a.interfaceCount())

	a.interfaceIPs = []net.IP{net.ParseIP("10.0.0.1"), net.ParseIP("10.0.0.2")}
	assert.Equal(t, 2, a.interfaceCount())
}

func TestUsableInterfaceIPFiltersLoopbackAndLinkLocal(t *testing.T) {
	cases := []struct {
		addr string
		want bool
	}{
		{"127.0.0.1", false},
		{"0.0.0.0", false},
		{"169.254.1.1", false},
		{"192.0.2.1", true},
		{"::1", false},
		{"fe80::1", false},
		{"2001:db8::1", true},
		{"::ffff:192.0.2.1", true},
	}
	for _, c := range cases {
		ip := net.ParseIP(c.addr)
		require.NotNil(t, ip, c.addr)
		assert.Equal(t, c.want, usableInterfaceIP(ip), c.addr)
	}
}

func TestResolveInterfacesExplicitList(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Autodiscovery = false
	cfg.Interfaces = []string{"192.0.2.10", "198.51.100.20"}

	ips, err := resolveInterfaces(cfg)
	require.NoError(t, err)
	require.Len(t, ips, 2)
	assert.Equal(t, "192.0.2.10", ips[0].String())
	assert.Equal(t, "198.51.100.20", ips[1].String())
}

func TestCertificateFingerprintFormat(t *testing.T) {
	cert, err := generateSelfSignedCertificate()
	require.NoError(t, err)

	fp, err := certificateFingerprint(cert)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(fp, "sha-256 "))
	// sha-256 + space + 32 uppercase-hex byte pairs joined by ':'
	hexPart := strings.TrimPrefix(fp, "sha-256 ")
	assert.Len(t, strings.Split(hexPart, ":"), 32)
}

// onNominateStart runs synchronously on the task-loop goroutine (via the
// nominate_start timer's a.run call); it must never itself post back onto
// a.taskChan, or the single-reader task loop deadlocks permanently.
func TestOnNominateStartDoesNotDeadlock(t *testing.T) {
	agent := newTestAgent()
	session := newTestSession(true)
	session.agent = agent
	session.id = "s1"
	agent.sessions[session.id] = session

	stream := newTestStream(session)
	session.streams = []*Stream{stream}
	pending := hostCandidate("10.0.0.1", 1000, 1)
	pending.Gathering = GatheringInProgress
	stream.localCandidates = []*Candidate{pending}

	done := make(chan struct{})
	go func() {
		agent.onNominateStart(session)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("onNominateStart did not return; it likely tried to re-post onto the task channel")
	}

	assert.True(t, session.nominateStarted)
	assert.Equal(t, GatheringFailed, pending.Gathering)
}

func TestHexByte(t *testing.T) {
	assert.Equal(t, "00", hexByte(0x00))
	assert.Equal(t, "ff", hexByte(0xFF))
	assert.Equal(t, "a1", hexByte(0xA1))
}
