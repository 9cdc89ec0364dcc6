package wire

import (
	"fmt"

	"github.com/pion/stun/v3"
)

// StunMessage is the decoded shape handed back by ParseStun.
type StunMessage struct {
	Method        stun.Method
	Class         stun.MessageClass
	TransactionID [stun.TransactionIDSize]byte
	Raw           *stun.Message
}

// txnIDSetter pins a message to a caller-supplied transaction id instead of
// a freshly generated one, so the Agent's transaction table stays the
// source of truth for outstanding ids.
type txnIDSetter [stun.TransactionIDSize]byte

func (t txnIDSetter) AddTo(m *stun.Message) error {
	m.TransactionID = t
	m.WriteTransactionID()
	return nil
}

// ParseStun decodes a STUN frame, verifying the magic cookie and (if
// present) the FINGERPRINT attribute. It does not verify MESSAGE-INTEGRITY;
// call VerifyIntegrity separately once the caller knows which password
// applies (local for inbound requests, remote for inbound responses).
func ParseStun(b []byte) (*StunMessage, error) {
	if !stun.IsMessage(b) {
		return nil, fmt.Errorf("wire: not a stun message")
	}
	m := new(stun.Message)
	m.Raw = append([]byte(nil), b...)
	if err := m.Decode(); err != nil {
		return nil, fmt.Errorf("wire: decode stun message: %w", err)
	}
	if err := stun.Fingerprint.Check(m); err != nil && m.Contains(stun.AttrFingerprint) {
		return nil, fmt.Errorf("wire: fingerprint check: %w", err)
	}
	return &StunMessage{
		Method:        m.Type.Method,
		Class:         m.Type.Class,
		TransactionID: m.TransactionID,
		Raw:           m,
	}, nil
}

// VerifyIntegrity checks the MESSAGE-INTEGRITY attribute (HMAC-SHA1 over a
// short-term credential password), per RFC 5389 §15.4.
func VerifyIntegrity(m *StunMessage, password string) bool {
	return stun.NewShortTermIntegrity(password).Check(m.Raw) == nil
}

// BindingRequestParams carries everything EncodeBindingRequest needs to
// build a connectivity-check request per RFC 8445 §7.2.
type BindingRequestParams struct {
	TransactionID [stun.TransactionIDSize]byte
	Username      string
	IntegrityKey  string
	Priority      uint32
	Controlling   bool
	Tiebreaker    uint64
	UseCandidate  bool
}

// EncodeBindingRequest builds a connectivity-check binding request:
// USERNAME, PRIORITY, ICE-CONTROLLING or ICE-CONTROLLED, optionally
// USE-CANDIDATE, MESSAGE-INTEGRITY keyed by the remote password, then
// FINGERPRINT.
func EncodeBindingRequest(p BindingRequestParams) (*stun.Message, error) {
	setters := []stun.Setter{
		txnIDSetter(p.TransactionID),
		stun.BindingRequest,
		stun.NewUsername(p.Username),
		PriorityAttr(p.Priority),
	}
	if p.Controlling {
		setters = append(setters, ICEControllingAttr(p.Tiebreaker))
		if p.UseCandidate {
			setters = append(setters, UseCandidateAttr{})
		}
	} else {
		setters = append(setters, ICEControlledAttr(p.Tiebreaker))
	}
	setters = append(setters,
		stun.NewShortTermIntegrity(p.IntegrityKey),
		stun.Fingerprint,
	)
	return stun.Build(setters...)
}

// EncodeSuccessResponse builds a binding success response carrying
// XOR-MAPPED-ADDRESS for the observed source address/port, keyed by the
// local password.
func EncodeSuccessResponse(request *StunMessage, mappedIP []byte, mappedPort int, integrityKey string) (*stun.Message, error) {
	return stun.Build(
		txnIDSetter(request.TransactionID),
		stun.BindingSuccess,
		&stun.XORMappedAddress{IP: mappedIP, Port: mappedPort},
		stun.NewShortTermIntegrity(integrityKey),
		stun.Fingerprint,
	)
}

// StunErrorCode enumerates the error responses this agent emits.
type StunErrorCode int

const (
	CodeBadRequest    StunErrorCode = 400
	CodeUnauthorized  StunErrorCode = 401
	CodeRoleConflict  StunErrorCode = 487
)

// EncodeErrorResponse builds a binding error response with the given code,
// per spec §4.1/§7.
func EncodeErrorResponse(request *StunMessage, code StunErrorCode) (*stun.Message, error) {
	return stun.Build(
		txnIDSetter(request.TransactionID),
		stun.BindingError,
		&stun.ErrorCodeAttribute{Code: stun.ErrorCode(code)},
		stun.Fingerprint,
	)
}

// EncodeGatherBindingRequest builds a plain, unauthenticated Binding
// request for server-reflexive candidate gathering: no USERNAME, PRIORITY
// or role attributes, just FINGERPRINT, per RFC 5389 §10.1.
func EncodeGatherBindingRequest(txnID [stun.TransactionIDSize]byte) (*stun.Message, error) {
	return stun.Build(
		txnIDSetter(txnID),
		stun.BindingRequest,
		stun.Fingerprint,
	)
}
