package iceagent

import (
	"testing"

	"github.com/pion/sdp/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMirrorSetup(t *testing.T) {
	assert.Equal(t, DTLSRolePassive, mirrorSetup("active"))
	assert.Equal(t, DTLSRoleActive, mirrorSetup("passive"))
	assert.Equal(t, DTLSRoleActive, mirrorSetup("actpass"))
	assert.Equal(t, DTLSRoleActive, mirrorSetup(""))
}

func TestAnswererSetupToLocalRole(t *testing.T) {
	assert.Equal(t, DTLSRolePassive, answererSetupToLocalRole("active"))
	assert.Equal(t, DTLSRoleActive, answererSetupToLocalRole("passive"))
}

func TestAnswerSetup(t *testing.T) {
	assert.Equal(t, "active", answerSetup(DTLSRoleActive))
	assert.Equal(t, "passive", answerSetup(DTLSRolePassive))
}

func TestParseSSRCAttr(t *testing.T) {
	ssrc, ok := parseSSRCAttr("1234567890 cname:abc-def")
	require.True(t, ok)
	assert.Equal(t, uint32(1234567890), ssrc)

	_, ok = parseSSRCAttr("notanumber cname:abc")
	assert.False(t, ok)

	_, ok = parseSSRCAttr("")
	assert.False(t, ok)
}

func TestProtosContainSAVP(t *testing.T) {
	assert.True(t, protosContainSAVP([]string{"UDP", "TLS", "RTP", "SAVPF"}))
	assert.True(t, protosContainSAVP([]string{"UDP", "TLS", "RTP", "SAVP"}))
	assert.False(t, protosContainSAVP([]string{"UDP", "TLS", "RTP", "AVP"}))
}

func TestFilterAttributesDropsICEAttributes(t *testing.T) {
	attrs := []sdp.Attribute{
		{Key: "ice-ufrag", Value: "x"},
		{Key: "mid", Value: "0"},
		{Key: "candidate", Value: "..."},
		{Key: "sendrecv"},
	}
	out := filterAttributes(attrs)
	require.Len(t, out, 2)
	assert.Equal(t, "mid", out[0].Key)
	assert.Equal(t, "sendrecv", out[1].Key)
}

func TestCloneSessionDescriptionIsIndependent(t *testing.T) {
	orig := &sdp.SessionDescription{
		MediaDescriptions: []*sdp.MediaDescription{
			{Attributes: []sdp.Attribute{{Key: "ice-ufrag", Value: "a"}}},
		},
	}
	clone := cloneSessionDescription(orig)
	clone.MediaDescriptions[0].Attributes[0].Value = "b"
	assert.Equal(t, "a", orig.MediaDescriptions[0].Attributes[0].Value)
}

func TestDefaultCandidate_PrefersPeerReflexiveOverServerReflexiveOverHost(t *testing.T) {
	host := &Candidate{Type: CandidateTypeHost, Priority: 100, Gathering: GatheringSuccess}
	srflx := &Candidate{Type: CandidateTypeServerReflexive, Priority: 200, Gathering: GatheringSuccess}
	prflx := &Candidate{Type: CandidateTypePeerReflexive, Priority: 50, Gathering: GatheringSuccess}

	assert.Same(t, host, defaultCandidate([]*Candidate{host}))
	assert.Same(t, srflx, defaultCandidate([]*Candidate{host, srflx}))
	assert.Same(t, prflx, defaultCandidate([]*Candidate{host, srflx, prflx}))
}

func TestDefaultCandidate_RelayOnlyWhenNothingElseGathered(t *testing.T) {
	relay := &Candidate{Type: CandidateTypeRelayed, Priority: 1, Gathering: GatheringSuccess}
	pending := &Candidate{Type: CandidateTypeHost, Priority: 999, Gathering: GatheringInProgress}

	assert.Same(t, relay, defaultCandidate([]*Candidate{relay, pending}))
}

func TestDefaultCandidate_NoneGatheredReturnsNil(t *testing.T) {
	pending := &Candidate{Type: CandidateTypeHost, Gathering: GatheringInProgress}
	assert.Nil(t, defaultCandidate([]*Candidate{pending}))
}

func TestSetDefaultConnection_PopulatesConnectionInformation(t *testing.T) {
	session := newTestSession(true)
	stream := newTestStream(session)
	stream.localCandidates = append(stream.localCandidates, &Candidate{
		Type: CandidateTypeHost, Priority: 100, Gathering: GatheringSuccess, Address: "192.0.2.1",
	})

	media := &sdp.MediaDescription{}
	setDefaultConnection(media, stream)
	require.NotNil(t, media.ConnectionInformation)
	assert.Equal(t, "IN", media.ConnectionInformation.NetworkType)
	assert.Equal(t, "IP4", media.ConnectionInformation.AddressType)
	assert.Equal(t, "192.0.2.1", media.ConnectionInformation.Address.Address)
}

func TestSetDefaultConnection_IPv6(t *testing.T) {
	session := newTestSession(true)
	stream := newTestStream(session)
	stream.localCandidates = append(stream.localCandidates, &Candidate{
		Type: CandidateTypeHost, Priority: 100, Gathering: GatheringSuccess, Address: "2001:db8::1",
	})

	media := &sdp.MediaDescription{}
	setDefaultConnection(media, stream)
	require.NotNil(t, media.ConnectionInformation)
	assert.Equal(t, "IP6", media.ConnectionInformation.AddressType)
}

func TestSetDefaultConnection_NoCandidateLeavesConnectionInformationNil(t *testing.T) {
	session := newTestSession(true)
	stream := newTestStream(session)
	media := &sdp.MediaDescription{}
	setDefaultConnection(media, stream)
	assert.Nil(t, media.ConnectionInformation)
}

func TestAttributeOrDefault(t *testing.T) {
	m := &sdp.MediaDescription{Attributes: []sdp.Attribute{{Key: "setup", Value: "active"}}}
	assert.Equal(t, "active", attributeOrDefault(m, "setup", "actpass"))
	assert.Equal(t, "actpass", attributeOrDefault(m, "missing", "actpass"))
}
