package iceagent

import (
	"errors"
	"strconv"
)

// Sentinel errors returned by the public API. Per spec.md §7, datagram- and
// pair-level failures never propagate past the Base/Pair boundary; only
// these reach callers.
var (
	// ErrAgentClosed indicates an operation was attempted on a closed Agent.
	ErrAgentClosed = errors.New("iceagent: agent is closed")

	// ErrSessionNotFound indicates the session id is unknown to the agent.
	ErrSessionNotFound = errors.New("iceagent: session not found")

	// ErrStreamIndexOutOfRange indicates the given stream index does not
	// exist in the session.
	ErrStreamIndexOutOfRange = errors.New("iceagent: stream index out of range")

	// ErrConfigInvalid indicates an unreadable certificate or unparsable
	// configuration. The agent refuses to construct in this case.
	ErrConfigInvalid = errors.New("iceagent: invalid configuration")

	// ErrNotImplemented is returned when a relayed candidate has no TURN
	// server to allocate from. The TURN Refresh and ChannelBind stubs in
	// internal/wire return that package's own ErrNotImplemented.
	ErrNotImplemented = errors.New("iceagent: not implemented")

	// ErrNoCompatibleCandidate indicates a remote candidate could not be
	// paired with any local candidate (address family mismatch).
	ErrNoCompatibleCandidate = errors.New("iceagent: no compatible local candidate")

	// ErrMalformedCandidate indicates a candidate-line failed to parse.
	ErrMalformedCandidate = errors.New("iceagent: malformed candidate line")

	// ErrAnswerRejected indicates ProcessAnswer found the remote SDP did
	// not satisfy the required attributes (trickle, rtcp-mux, SAVP(F),
	// credentials, ssrc/cname).
	ErrAnswerRejected = errors.New("iceagent: answer missing required ICE/SRTP attributes")
)

// RoleConflictError describes an ICE role conflict (spec.md §4.6). No code
// path in this package constructs it: role conflicts are resolved inside
// Session.handleRoleConflict (answering with a 487 error response where
// needed) and never reach the public API.
type RoleConflictError struct {
	// PeerTiebreaker is the tiebreaker value carried by the conflicting
	// ICE-CONTROLLING/ICE-CONTROLLED attribute.
	PeerTiebreaker uint64
}

func (e *RoleConflictError) Error() string {
	return "iceagent: ICE role conflict"
}

// StunError wraps a STUN error-response code (400 bad request, 401
// unauthorized, 487 role conflict). No code path in this package or in
// internal/wire constructs it.
type StunError struct {
	Code int
	Err  error
}

func (e *StunError) Error() string {
	return "iceagent: stun error " + strconv.Itoa(e.Code) + ": " + e.Err.Error()
}

func (e *StunError) Unwrap() error { return e.Err }
