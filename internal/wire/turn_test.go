package wire

import (
	"net"
	"testing"

	"github.com/pion/stun/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLongTermCredentialIsDeterministic(t *testing.T) {
	a := LongTermCredential("user", "realm", "pass")
	b := LongTermCredential("user", "realm", "pass")
	assert.Equal(t, a, b)

	c := LongTermCredential("user", "realm", "other")
	assert.NotEqual(t, a, c)
}

func TestEncodeTurnAllocateRequest(t *testing.T) {
	txnID, err := stun.NewTransactionID()
	require.NoError(t, err)
	key := LongTermCredential("user", "realm", "pass")

	m, err := EncodeTurnAllocateRequest(txnID, "user", "realm", "nonce", key)
	require.NoError(t, err)

	parsed, err := ParseStun(m.Raw)
	require.NoError(t, err)
	assert.Equal(t, txnID, parsed.TransactionID)
	assert.Equal(t, stun.ClassRequest, parsed.Class)

	var username stun.Username
	require.NoError(t, username.GetFrom(parsed.Raw))
	assert.Equal(t, "user", username.String())
}

func TestEncodeTurnCreatePermission(t *testing.T) {
	txnID, err := stun.NewTransactionID()
	require.NoError(t, err)
	key := LongTermCredential("user", "realm", "pass")
	peer := net.ParseIP("203.0.113.5")

	m, err := EncodeTurnCreatePermission(txnID, peer, "user", "realm", "nonce", key)
	require.NoError(t, err)

	parsed, err := ParseStun(m.Raw)
	require.NoError(t, err)
	ip, _, err := decodeXorAddr(parsed.Raw, attrXorPeerAddress)
	require.NoError(t, err)
	assert.True(t, peer.Equal(ip))
}

func TestEncodeTurnSendAndHandleTurnData(t *testing.T) {
	peer := net.ParseIP("203.0.113.5")
	m, err := EncodeTurnSend(peer, 4000, []byte("payload"))
	require.NoError(t, err)

	parsed, err := ParseStun(m.Raw)
	require.NoError(t, err)
	ip, port, payload, err := HandleTurnData(parsed.Raw)
	require.NoError(t, err)
	assert.True(t, peer.Equal(ip))
	assert.Equal(t, 4000, port)
	assert.Equal(t, []byte("payload"), payload)
}

func TestDecodeTurnAllocateResponse(t *testing.T) {
	txnID, err := stun.NewTransactionID()
	require.NoError(t, err)
	relayed := xorAddrAttr{attrType: attrXorRelayedAddr, ip: net.ParseIP("198.51.100.9"), port: 7000}

	m, err := stun.Build(
		txnIDSetter(txnID),
		stun.BindingSuccess,
		relayed,
	)
	require.NoError(t, err)

	parsed, err := ParseStun(m.Raw)
	require.NoError(t, err)
	ip, port, err := DecodeTurnAllocateResponse(parsed.Raw)
	require.NoError(t, err)
	assert.Equal(t, "198.51.100.9", ip.String())
	assert.Equal(t, 7000, port)
}

func TestEncodeTurnRefreshIsUnimplemented(t *testing.T) {
	_, err := EncodeTurnRefresh([stun.TransactionIDSize]byte{}, 600)
	assert.ErrorIs(t, err, ErrNotImplemented)
}

func TestHandleTurnChannelBindIsUnimplemented(t *testing.T) {
	err := HandleTurnChannelBind(new(stun.Message))
	assert.ErrorIs(t, err, ErrNotImplemented)
}

func TestDecodeChannelNumber(t *testing.T) {
	n, err := decodeChannelNumber([]byte{0x40, 0x00})
	require.NoError(t, err)
	assert.Equal(t, uint16(0x4000), n)

	_, err = decodeChannelNumber([]byte{0x01})
	assert.Error(t, err)
}
