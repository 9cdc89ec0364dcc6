package iceagent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSession(controlling bool) *Session {
	return &Session{
		agent:       &Agent{},
		controlling: controlling,
		state:       SessionRunning,
	}
}

func newTestStream(session *Session) *Stream {
	return newStream(session, 0)
}

func hostCandidate(addr string, port int, priority uint32) *Candidate {
	return &Candidate{
		Type:        CandidateTypeHost,
		Transport:   "udp",
		ComponentID: 1,
		Address:     addr,
		Port:        port,
		Priority:    priority,
		Gathering:   GatheringSuccess,
	}
}

// Invariant 5: pairs in a stream's list are priority-descending.
func TestStreamChecklistOrdering(t *testing.T) {
	stream := newTestStream(newTestSession(true))

	remote := hostCandidate("203.0.113.1", 5000, 500)
	stream.addRemoteCandidate(remote)

	low := hostCandidate("10.0.0.1", 1000, 100)
	high := hostCandidate("10.0.0.2", 1001, 900)
	mid := hostCandidate("10.0.0.3", 1002, 500)

	stream.addLocalCandidate(low)
	stream.addLocalCandidate(high)
	stream.addLocalCandidate(mid)

	require.Len(t, stream.pairs, 3)
	for i := 1; i < len(stream.pairs); i++ {
		assert.GreaterOrEqual(t, stream.pairs[i-1].priority, stream.pairs[i].priority)
	}
}

// Invariant 11: adding an already-known remote candidate is a no-op.
func TestAddRemoteCandidateIdempotent(t *testing.T) {
	stream := newTestStream(newTestSession(true))
	stream.addLocalCandidate(hostCandidate("10.0.0.1", 1000, 100))

	remote := hostCandidate("203.0.113.1", 5000, 500)
	added := stream.addRemoteCandidate(remote)
	assert.True(t, added)
	assert.Len(t, stream.pairs, 1)

	dup := hostCandidate("203.0.113.1", 5000, 999)
	added = stream.addRemoteCandidate(dup)
	assert.False(t, added)
	assert.Len(t, stream.remoteCandidates, 1)
	assert.Len(t, stream.pairs, 1)
}

// Invariant 4: trigger queue contains no duplicates.
func TestPushTriggerDeduplicates(t *testing.T) {
	stream := newTestStream(newTestSession(true))
	p := newPair(stream, hostCandidate("a", 1, 1), hostCandidate("b", 2, 2))

	stream.pushTrigger(p)
	stream.pushTrigger(p)
	assert.Len(t, stream.trigger, 1)

	popped := stream.popTrigger()
	assert.Same(t, p, popped)
	assert.Nil(t, stream.popTrigger())
}

func TestMarkValidAppendsOnce(t *testing.T) {
	stream := newTestStream(newTestSession(true))
	p := newPair(stream, hostCandidate("a", 1, 1), hostCandidate("b", 2, 2))
	stream.markValid(p)
	stream.markValid(p)
	assert.Len(t, stream.valid, 1)
}

// Address-family mismatches never produce a pair.
func TestAddPairSkipsFamilyMismatch(t *testing.T) {
	stream := newTestStream(newTestSession(true))
	stream.addLocalCandidate(hostCandidate("10.0.0.1", 1000, 100))
	stream.addRemoteCandidate(hostCandidate("2001:db8::1", 5000, 200))
	assert.Empty(t, stream.pairs)
}

// Pruning never removes the selected pair even if lower priority.
func TestPrunePairsKeepsSelected(t *testing.T) {
	stream := newTestStream(newTestSession(true))
	remote := hostCandidate("203.0.113.1", 5000, 500)
	stream.addRemoteCandidate(remote)
	low := hostCandidate("10.0.0.1", 1000, 100)
	stream.addLocalCandidate(low)
	require.Len(t, stream.pairs, 1)

	sel := stream.pairs[0]
	stream.selected = sel
	sel.state = PairSucceeded

	dup := newPair(stream, low, remote)
	dup.priority = sel.priority + 1
	dup.state = PairWaiting
	stream.pairs = append(stream.pairs, dup)
	stream.prunePairs()

	found := false
	for _, p := range stream.pairs {
		if p == sel {
			found = true
		}
	}
	assert.True(t, found, "selected pair must survive pruning")
}

func TestStreamUpdateCompletesWhenAllSubstatesDone(t *testing.T) {
	stream := newTestStream(newTestSession(true))
	stream.stunCompleted = true
	stream.dtlsCompleted = true
	stream.srtpCompleted = true
	stream.update()
	assert.Equal(t, StreamCompleted, stream.state)
}

func TestStreamUpdateFailsWhenGatheredAndAllPairsFailed(t *testing.T) {
	stream := newTestStream(newTestSession(true))
	remote := hostCandidate("203.0.113.1", 5000, 500)
	stream.addRemoteCandidate(remote)
	stream.addLocalCandidate(hostCandidate("10.0.0.1", 1000, 100))
	require.Len(t, stream.pairs, 1)
	stream.pairs[0].state = PairFailed

	stream.localGathered = true
	stream.remoteGathered = true
	stream.update()
	assert.Equal(t, StreamFailed, stream.state)
}
