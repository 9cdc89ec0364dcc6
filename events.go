package iceagent

// SessionState is the overall lifecycle state of a Session, per spec §3.
type SessionState int

const (
	SessionInit SessionState = iota
	SessionRunning
	SessionCompleted
	SessionFailed
)

func (s SessionState) String() string {
	switch s {
	case SessionInit:
		return "init"
	case SessionRunning:
		return "running"
	case SessionCompleted:
		return "completed"
	case SessionFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Callbacks bundles the user-facing notification surface an Agent invokes,
// per spec §6 ("Trickle callback surface"). Every callback is invoked from
// the event-loop goroutine and never re-entrantly; implementations must not
// block.
type Callbacks struct {
	// OnNewCandidate fires once a local candidate's gathering reaches
	// success, after the session's trickling_start timer has fired.
	OnNewCandidate func(sessionID, streamUfrag string, streamIndex int, candidateLine string)

	// OnEndOfCandidates fires once every local candidate on a stream is
	// success-or-failed.
	OnEndOfCandidates func(sessionID string, streamIndex int)

	// OnSessionState fires on every Session.state transition.
	OnSessionState func(sessionID string, state SessionState)

	// OnSessionDrop fires immediately before a completed or failed session
	// is destroyed.
	OnSessionDrop func(sessionID string)

	// OnStreamIO fires once per successfully SRTP-unprotected datagram on
	// the stream's selected pair.
	OnStreamIO func(sessionID string, streamIndex int, plaintext []byte)
}

func (cb Callbacks) fireNewCandidate(sessionID, ufrag string, streamIndex int, line string) {
	if cb.OnNewCandidate != nil {
		cb.OnNewCandidate(sessionID, ufrag, streamIndex, line)
	}
}

func (cb Callbacks) fireEndOfCandidates(sessionID string, streamIndex int) {
	if cb.OnEndOfCandidates != nil {
		cb.OnEndOfCandidates(sessionID, streamIndex)
	}
}

func (cb Callbacks) fireSessionState(sessionID string, state SessionState) {
	if cb.OnSessionState != nil {
		cb.OnSessionState(sessionID, state)
	}
}

func (cb Callbacks) fireSessionDrop(sessionID string) {
	if cb.OnSessionDrop != nil {
		cb.OnSessionDrop(sessionID)
	}
}

func (cb Callbacks) fireStreamIO(sessionID string, streamIndex int, plaintext []byte) {
	if cb.OnStreamIO != nil {
		cb.OnStreamIO(sessionID, streamIndex, plaintext)
	}
}
