package iceagent

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBaseSynthesizesHostCandidate(t *testing.T) {
	agent, err := NewAgent(DefaultConfig(), Callbacks{})
	require.NoError(t, err)
	t.Cleanup(agent.Close)

	b, err := newBase(agent, nil, net.ParseIP("127.0.0.1"))
	require.NoError(t, err)
	require.Len(t, b.candidates, 1)

	host := b.candidates[0]
	assert.Equal(t, CandidateTypeHost, host.Type)
	assert.Equal(t, "127.0.0.1", host.Address)
	assert.Equal(t, b.localPort, host.Port)
	assert.Equal(t, GatheringSuccess, host.Gathering)
}

func TestBaseSendTo(t *testing.T) {
	agent, err := NewAgent(DefaultConfig(), Callbacks{})
	require.NoError(t, err)
	t.Cleanup(agent.Close)

	sender, err := newBase(agent, nil, net.ParseIP("127.0.0.1"))
	require.NoError(t, err)

	receiver, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { receiver.Close() })

	err = sender.sendTo([]byte("hello"), receiver.LocalAddr())
	require.NoError(t, err)

	buf := make([]byte, 16)
	receiver.SetReadDeadline(time.Now().Add(time.Second))
	n, _, err := receiver.ReadFrom(buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:n]))
}

func TestSplitColon(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, splitColon("a:b:c"))
	assert.Equal(t, []string{"solo"}, splitColon("solo"))
	assert.Equal(t, []string{"", ""}, splitColon(":"))
}
