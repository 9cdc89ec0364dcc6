package wire

import (
	"testing"

	"github.com/pion/stun/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTxnID(t *testing.T) [stun.TransactionIDSize]byte {
	t.Helper()
	id, err := stun.NewTransactionID()
	require.NoError(t, err)
	return id
}

func TestEncodeBindingRequestParseRoundTrip(t *testing.T) {
	txnID := newTxnID(t)
	m, err := EncodeBindingRequest(BindingRequestParams{
		TransactionID: txnID,
		Username:      "lfrag:rfrag",
		IntegrityKey:  "password",
		Priority:      12345,
		Controlling:   true,
		Tiebreaker:    99,
		UseCandidate:  true,
	})
	require.NoError(t, err)

	parsed, err := ParseStun(m.Raw)
	require.NoError(t, err)
	assert.Equal(t, stun.MethodBinding, parsed.Method)
	assert.Equal(t, stun.ClassRequest, parsed.Class)
	assert.Equal(t, txnID, parsed.TransactionID)
	assert.True(t, VerifyIntegrity(parsed, "password"))
	assert.False(t, VerifyIntegrity(parsed, "wrong-password"))

	attrs := ParseRoleAttrs(parsed.Raw)
	assert.True(t, attrs.Controlling)
	assert.False(t, attrs.Controlled)
	assert.Equal(t, uint64(99), attrs.Tiebreaker)
	assert.True(t, attrs.UseCandidate)
	require.True(t, attrs.HasPriority)
	assert.Equal(t, uint32(12345), attrs.PeerPriority)
}

func TestEncodeBindingRequestControlled(t *testing.T) {
	m, err := EncodeBindingRequest(BindingRequestParams{
		TransactionID: newTxnID(t),
		Username:      "a:b",
		IntegrityKey:  "pw",
		Priority:      1,
		Controlling:   false,
		Tiebreaker:    7,
	})
	require.NoError(t, err)

	parsed, err := ParseStun(m.Raw)
	require.NoError(t, err)
	attrs := ParseRoleAttrs(parsed.Raw)
	assert.False(t, attrs.Controlling)
	assert.True(t, attrs.Controlled)
	assert.Equal(t, uint64(7), attrs.Tiebreaker)
	assert.False(t, attrs.UseCandidate)
}

func TestEncodeSuccessResponse(t *testing.T) {
	txnID := newTxnID(t)
	req, err := EncodeGatherBindingRequest(txnID)
	require.NoError(t, err)
	parsedReq, err := ParseStun(req.Raw)
	require.NoError(t, err)

	resp, err := EncodeSuccessResponse(parsedReq, []byte{192, 0, 2, 1}, 5000, "localpw")
	require.NoError(t, err)

	parsedResp, err := ParseStun(resp.Raw)
	require.NoError(t, err)
	assert.Equal(t, stun.MethodBinding, parsedResp.Method)
	assert.Equal(t, stun.ClassSuccessResponse, parsedResp.Class)
	assert.Equal(t, txnID, parsedResp.TransactionID)
	assert.True(t, VerifyIntegrity(parsedResp, "localpw"))

	var mapped stun.XORMappedAddress
	require.NoError(t, mapped.GetFrom(parsedResp.Raw))
	assert.Equal(t, 5000, mapped.Port)
	assert.Equal(t, "192.0.2.1", mapped.IP.String())
}

func TestEncodeErrorResponse(t *testing.T) {
	txnID := newTxnID(t)
	req, err := EncodeGatherBindingRequest(txnID)
	require.NoError(t, err)
	parsedReq, err := ParseStun(req.Raw)
	require.NoError(t, err)

	resp, err := EncodeErrorResponse(parsedReq, CodeRoleConflict)
	require.NoError(t, err)

	parsed, err := ParseStun(resp.Raw)
	require.NoError(t, err)
	assert.Equal(t, stun.ClassErrorResponse, parsed.Class)
	assert.Equal(t, txnID, parsed.TransactionID)

	var code stun.ErrorCodeAttribute
	require.NoError(t, code.GetFrom(parsed.Raw))
	assert.Equal(t, int(CodeRoleConflict), code.Code)
}

func TestParseStunRejectsNonStunBytes(t *testing.T) {
	_, err := ParseStun([]byte{0x01, 0x02, 0x03})
	assert.Error(t, err)
}

func TestEncodeGatherBindingRequestHasNoRoleAttrs(t *testing.T) {
	txnID := newTxnID(t)
	m, err := EncodeGatherBindingRequest(txnID)
	require.NoError(t, err)

	parsed, err := ParseStun(m.Raw)
	require.NoError(t, err)
	attrs := ParseRoleAttrs(parsed.Raw)
	assert.False(t, attrs.Controlling)
	assert.False(t, attrs.Controlled)
	assert.False(t, attrs.HasPriority)
}
