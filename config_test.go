package iceagent

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, validateConfig(cfg))
	assert.True(t, cfg.Autodiscovery)
	assert.Equal(t, 50*time.Millisecond, cfg.Limits.Stun.ConnectivityPaceUsecs)
	assert.Equal(t, 60*time.Second, cfg.Limits.Stun.SessionTimeoutUsecs)
	assert.Equal(t, 15*time.Second, cfg.Limits.Stun.KeepaliveUsecs)
	assert.Equal(t, 5*time.Minute, cfg.Limits.TransactionLifetimeUsecs)
}

func TestValidateConfig_AutodiscoveryOffRequiresInterfaces(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Autodiscovery = false
	assert.Error(t, validateConfig(cfg))

	cfg.Interfaces = []string{"192.0.2.1"}
	assert.NoError(t, validateConfig(cfg))
}

func TestValidateConfig_PortRangeOrdering(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PortRange = PortRange{Min: 40000, Max: 30000}
	assert.Error(t, validateConfig(cfg))

	cfg.PortRange = PortRange{Min: 30000, Max: 40000}
	assert.NoError(t, validateConfig(cfg))
}

func TestValidateConfig_CertPathRequiresKeyPath(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DTLS.CertPath = "/tmp/cert.pem"
	assert.Error(t, validateConfig(cfg))

	cfg.DTLS.KeyPath = "/tmp/key.pem"
	assert.NoError(t, validateConfig(cfg))
}

func TestEnvKeyMapper(t *testing.T) {
	assert.Equal(t, "limits.stun.keepalive_usecs",
		envKeyMapper("ICEAGENT_LIMITS_STUN_KEEPALIVE_USECS"))
	assert.Equal(t, "dtls.cert_path", envKeyMapper("ICEAGENT_DTLS_CERT_PATH"))
}

func TestLoadConfig_MissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.True(t, cfg.Autodiscovery)
}

func TestSrtpProfilesFromNames(t *testing.T) {
	profiles := srtpProfilesFromNames("SRTP_AEAD_AES_128_GCM:SRTP_AES128_CM_SHA1_80")
	require.Len(t, profiles, 2)
}

func TestSrtpProfilesFromNames_UnknownNamesIgnored(t *testing.T) {
	profiles := srtpProfilesFromNames("bogus")
	assert.Empty(t, profiles)
}
