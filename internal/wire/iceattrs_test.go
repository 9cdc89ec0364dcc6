package wire

import (
	"testing"

	"github.com/pion/stun/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriorityAttrRoundTrip(t *testing.T) {
	m := new(stun.Message)
	require.NoError(t, m.Build(stun.BindingRequest, PriorityAttr(1234567)))

	var got PriorityAttr
	require.NoError(t, got.GetFrom(m))
	assert.Equal(t, PriorityAttr(1234567), got)
}

func TestUseCandidateAttrPresence(t *testing.T) {
	with := new(stun.Message)
	require.NoError(t, with.Build(stun.BindingRequest, UseCandidateAttr{}))
	assert.True(t, hasUseCandidate(with))

	without := new(stun.Message)
	require.NoError(t, without.Build(stun.BindingRequest))
	assert.False(t, hasUseCandidate(without))
}

func TestICEControllingAttrRoundTrip(t *testing.T) {
	m := new(stun.Message)
	require.NoError(t, m.Build(stun.BindingRequest, ICEControllingAttr(42)))

	var got ICEControllingAttr
	require.NoError(t, got.GetFrom(m))
	assert.Equal(t, ICEControllingAttr(42), got)

	var controlled ICEControlledAttr
	assert.Error(t, controlled.GetFrom(m))
}

func TestICEControlledAttrRoundTrip(t *testing.T) {
	m := new(stun.Message)
	require.NoError(t, m.Build(stun.BindingRequest, ICEControlledAttr(99)))

	var got ICEControlledAttr
	require.NoError(t, got.GetFrom(m))
	assert.Equal(t, ICEControlledAttr(99), got)
}

func TestParseRoleAttrsMissingPriority(t *testing.T) {
	m := new(stun.Message)
	require.NoError(t, m.Build(stun.BindingRequest, ICEControllingAttr(1)))

	attrs := ParseRoleAttrs(m)
	assert.False(t, attrs.HasPriority)
	assert.True(t, attrs.Controlling)
}

func TestParseRoleAttrsBothPresentKeepsLastSeen(t *testing.T) {
	m := new(stun.Message)
	require.NoError(t, m.Build(stun.BindingRequest, PriorityAttr(5), ICEControllingAttr(1), ICEControlledAttr(2)))

	attrs := ParseRoleAttrs(m)
	assert.True(t, attrs.HasPriority)
	assert.Equal(t, uint32(5), attrs.PeerPriority)
	assert.True(t, attrs.Controlling)
	assert.True(t, attrs.Controlled)
	assert.Equal(t, uint64(2), attrs.Tiebreaker)
}
