package wire

import (
	"testing"

	"github.com/pion/dtls/v3"
	"github.com/stretchr/testify/assert"
)

// Spec §4.1's key/salt length table for the four supported SRTP protection
// profiles.
func TestSrtpKeyLengths(t *testing.T) {
	cases := []struct {
		name            string
		profile         dtls.SRTPProtectionProfile
		keyLen, saltLen int
	}{
		{"AES128_CM_SHA1_80", dtls.SRTP_AES128_CM_HMAC_SHA1_80, 16, 14},
		{"AES128_CM_SHA1_32", dtls.SRTP_AES128_CM_HMAC_SHA1_32, 16, 14},
		{"AEAD_AES_128_GCM", dtls.SRTP_AEAD_AES_128_GCM, 16, 12},
		{"AEAD_AES_256_GCM", dtls.SRTP_AEAD_AES_256_GCM, 32, 12},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			keyLen, saltLen, err := SrtpKeyLengths(c.profile)
			assert.NoError(t, err)
			assert.Equal(t, c.keyLen, keyLen)
			assert.Equal(t, c.saltLen, saltLen)
		})
	}
}

func TestSrtpKeyLengthsUnsupportedProfile(t *testing.T) {
	_, _, err := SrtpKeyLengths(dtls.SRTPProtectionProfile(0xFFFF))
	assert.Error(t, err)
}
