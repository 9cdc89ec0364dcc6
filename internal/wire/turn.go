package wire

import (
	"encoding/binary"
	"fmt"
	"net"

	"github.com/pion/stun/v3"
	"github.com/pion/turn/v4"
)

// TURN message methods (RFC 8656 §18) not defined by pion/stun/v3, which
// only knows the STUN Binding method.
var (
	methodAllocate         = stun.NewType(stun.Method(0x003), stun.ClassRequest)
	methodCreatePermission = stun.NewType(stun.Method(0x008), stun.ClassRequest)
	methodSend             = stun.NewType(stun.Method(0x006), stun.ClassIndication)
)

// TURN attributes (RFC 8656 §18.2) not defined by pion/stun/v3.
const (
	attrChannelNumber      stun.AttrType = 0x000C
	attrXorPeerAddress     stun.AttrType = 0x0012
	attrData               stun.AttrType = 0x0013
	attrXorRelayedAddr     stun.AttrType = 0x0016
	attrRequestedTransport stun.AttrType = 0x0019
)

const requestedTransportUDP = 17 // IANA protocol number for UDP

// LongTermCredential derives the long-term-credential key for a TURN
// realm/username/password triple (RFC 8656 §9.1's
// MD5(username:realm:password) construction TURN servers expect).
func LongTermCredential(username, realm, password string) []byte {
	return turn.GenerateAuthKey(username, realm, password)
}

// xorAddrAttr encodes/decodes XOR-PEER-ADDRESS and XOR-RELAYED-ADDRESS,
// which use the same XOR-over-magic-cookie scheme as XOR-MAPPED-ADDRESS
// (RFC 8656 §14.3) but live under a different attribute number.
type xorAddrAttr struct {
	attrType stun.AttrType
	ip       net.IP
	port     int
}

func (a xorAddrAttr) AddTo(m *stun.Message) error {
	xored := &stun.XORMappedAddress{IP: a.ip, Port: a.port}
	tmp := new(stun.Message)
	if err := xored.AddTo(tmp); err != nil {
		return err
	}
	v, err := tmp.Get(stun.AttrXORMappedAddress)
	if err != nil {
		return err
	}
	m.Add(a.attrType, v)
	return nil
}

func decodeXorAddr(m *stun.Message, attrType stun.AttrType) (net.IP, int, error) {
	v, err := m.Get(attrType)
	if err != nil {
		return nil, 0, err
	}
	tmp := new(stun.Message)
	tmp.TransactionID = m.TransactionID
	tmp.Add(stun.AttrXORMappedAddress, v)
	var addr stun.XORMappedAddress
	if err := addr.GetFrom(tmp); err != nil {
		return nil, 0, err
	}
	return addr.IP, addr.Port, nil
}

// EncodeTurnAllocateRequest builds an Allocate request for a UDP relayed
// transport allocation, authenticated with a long-term credential.
func EncodeTurnAllocateRequest(txnID [stun.TransactionIDSize]byte, username, realm, nonce string, key []byte) (*stun.Message, error) {
	requestedTransport := make([]byte, 4)
	requestedTransport[0] = requestedTransportUDP

	return stun.Build(
		txnIDSetter(txnID),
		methodAllocate,
		rawAttr{attrRequestedTransport, requestedTransport},
		stun.NewUsername(username),
		stun.NewRealm(realm),
		stun.NewNonce(nonce),
		stun.MessageIntegrity(key),
		stun.Fingerprint,
	)
}

// EncodeTurnCreatePermission builds a CreatePermission request installing a
// permission for peerAddr on an existing allocation.
func EncodeTurnCreatePermission(txnID [stun.TransactionIDSize]byte, peerAddr net.IP, username, realm, nonce string, key []byte) (*stun.Message, error) {
	return stun.Build(
		txnIDSetter(txnID),
		methodCreatePermission,
		xorAddrAttr{attrXorPeerAddress, peerAddr, 0},
		stun.NewUsername(username),
		stun.NewRealm(realm),
		stun.NewNonce(nonce),
		stun.MessageIntegrity(key),
		stun.Fingerprint,
	)
}

// EncodeTurnSend builds a Send indication wrapping payload for delivery to
// peerAddr:peerPort through the relay (no response expected).
func EncodeTurnSend(peerAddr net.IP, peerPort int, payload []byte) (*stun.Message, error) {
	txnID, err := stun.NewTransactionID()
	if err != nil {
		return nil, fmt.Errorf("wire: generate turn send transaction id: %w", err)
	}
	return stun.Build(
		txnIDSetter(txnID),
		methodSend,
		xorAddrAttr{attrXorPeerAddress, peerAddr, peerPort},
		rawAttr{attrData, payload},
	)
}

// DecodeTurnAllocateResponse extracts the relayed transport address from an
// Allocate success response.
func DecodeTurnAllocateResponse(m *stun.Message) (relayIP net.IP, relayPort int, err error) {
	return decodeXorAddr(m, attrXorRelayedAddr)
}

// rawAttr adds a raw, already-encoded attribute value; used for TURN
// attributes pion/stun/v3 has no typed Setter for.
type rawAttr struct {
	t stun.AttrType
	v []byte
}

func (a rawAttr) AddTo(m *stun.Message) error {
	m.Add(a.t, a.v)
	return nil
}

// decodeChannelNumber reads a CHANNEL-NUMBER attribute value.
func decodeChannelNumber(v []byte) (uint16, error) {
	if len(v) < 2 {
		return 0, fmt.Errorf("wire: malformed channel number")
	}
	return binary.BigEndian.Uint16(v), nil
}

// EncodeTurnRefresh is not implemented and always returns
// ErrNotImplemented. The agent allocates once per relayed candidate; it
// neither refreshes an allocation nor re-allocates after a failure (a failed
// Allocate marks the candidate failed).
func EncodeTurnRefresh(_ [stun.TransactionIDSize]byte, _ int) (*stun.Message, error) {
	return nil, ErrNotImplemented
}

// HandleTurnData decodes an inbound Data indication's peer address and
// payload. Inbound ChannelData fast-path framing is not implemented; only
// the Data-indication form is recognized.
func HandleTurnData(m *stun.Message) (peerIP net.IP, peerPort int, payload []byte, err error) {
	peerIP, peerPort, err = decodeXorAddr(m, attrXorPeerAddress)
	if err != nil {
		return nil, 0, nil, fmt.Errorf("wire: turn data missing peer address: %w", err)
	}
	data, getErr := m.Get(attrData)
	if getErr != nil {
		return nil, 0, nil, fmt.Errorf("wire: turn data missing DATA attribute: %w", getErr)
	}
	return peerIP, peerPort, data, nil
}

// HandleTurnChannelBind and inbound channel-data framing are not
// implemented; see spec §9 open questions (TURN Channel-Bind left
// implementer-defined).
func HandleTurnChannelBind(_ *stun.Message) error {
	return ErrNotImplemented
}

// ErrNotImplemented marks the deliberately-stubbed TURN operations.
var ErrNotImplemented = fmt.Errorf("wire: not implemented")
