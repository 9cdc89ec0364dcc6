package iceagent

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DTLSConfig holds the DTLS/SRTP keying configuration recognized in
// spec.md §6.
type DTLSConfig struct {
	CertPath string `koanf:"cert_path"`
	KeyPath  string `koanf:"key_path"`
	CAFile   string `koanf:"ca_file"`
	CAPath   string `koanf:"ca_path"`

	// SRTPProfiles is a colon-separated SRTP profile list, e.g.
	// "SRTP_AEAD_AES_128_GCM:SRTP_AES128_CM_SHA1_80".
	SRTPProfiles string `koanf:"srtp_profiles"`

	CookieQuantity      int           `koanf:"cookie_quantity"`
	CookieLength        int           `koanf:"cookie_length"`
	CookieLifetimeUsec  time.Duration `koanf:"cookie_lifetime_usec"`
	ReconnectIntervalUs time.Duration `koanf:"reconnect_interval_usec"`
}

// StunLimits holds the STUN/ICE pacing limits recognized in spec.md §6.
type StunLimits struct {
	ConnectivityPaceUsecs time.Duration `koanf:"connectivity_pace_usecs"`
	SessionTimeoutUsecs   time.Duration `koanf:"session_timeout_usecs"`
	KeepaliveUsecs        time.Duration `koanf:"keepalive_usecs"`
}

// Limits holds the transaction/STUN limits recognized in spec.md §6.
type Limits struct {
	TransactionLifetimeUsecs time.Duration `koanf:"transaction_lifetime_usecs"`
	Stun                     StunLimits    `koanf:"stun"`
}

// PortRange optionally restricts local UDP socket binding.
type PortRange struct {
	Min uint16 `koanf:"min"`
	Max uint16 `koanf:"max"`
}

// DebugConfig toggles verbose per-subsystem logging, per spec.md §6
// `debug.{stun,ice,dtls}`.
type DebugConfig struct {
	STUN bool `koanf:"stun"`
	ICE  bool `koanf:"ice"`
	DTLS bool `koanf:"dtls"`
}

// Config is the complete Agent configuration, recognized keys exactly per
// spec.md §6.
type Config struct {
	DTLS          DTLSConfig  `koanf:"dtls"`
	Limits        Limits      `koanf:"limits"`
	PortRange     PortRange   `koanf:"port_range"`
	Autodiscovery bool        `koanf:"autodiscovery"`
	Debug         DebugConfig `koanf:"debug"`

	// Interfaces lists explicit hostnames to bind when Autodiscovery is
	// false (spec.md §4.7).
	Interfaces []string `koanf:"interfaces"`

	// Servers lists STUN/TURN server URLs available for gathering.
	Servers []ServerConfig `koanf:"servers"`
}

// ServerConfig describes one STUN/TURN server entry.
type ServerConfig struct {
	URL      string `koanf:"url"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
}

// DefaultConfig returns a Config populated with the defaults named
// throughout spec.md §4.6/§4.7/§5/§6.
func DefaultConfig() *Config {
	return &Config{
		DTLS: DTLSConfig{
			SRTPProfiles:        "SRTP_AEAD_AES_128_GCM:SRTP_AES128_CM_SHA1_80",
			CookieQuantity:      4,
			CookieLength:        32,
			CookieLifetimeUsec:  60 * time.Second,
			ReconnectIntervalUs: 500 * time.Millisecond,
		},
		Limits: Limits{
			TransactionLifetimeUsecs: 5 * time.Minute,
			Stun: StunLimits{
				ConnectivityPaceUsecs: 50 * time.Millisecond,
				SessionTimeoutUsecs:   60 * time.Second,
				KeepaliveUsecs:        15 * time.Second,
			},
		},
		Autodiscovery: true,
	}
}

// envPrefix is the environment variable prefix for iceagent configuration,
// e.g. ICEAGENT_DTLS_CERT_PATH -> dtls.cert_path.
const envPrefix = "ICEAGENT_"

// LoadConfig reads configuration from a YAML file at path, overlays
// environment variable overrides, and merges on top of DefaultConfig().
// Missing fields inherit defaults. Mirrors the defaults->file->env->
// validate pipeline used throughout the reference pack's koanf-based
// config loaders.
func LoadConfig(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := DefaultConfig()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("%w: load defaults: %w", ErrConfigInvalid, err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: load config from %s: %w", ErrConfigInvalid, path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("%w: load env overrides: %w", ErrConfigInvalid, err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("%w: unmarshal config: %w", ErrConfigInvalid, err)
	}

	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfigInvalid, err)
	}

	return cfg, nil
}

func validateConfig(cfg *Config) error {
	if !cfg.Autodiscovery && len(cfg.Interfaces) == 0 {
		return fmt.Errorf("autodiscovery disabled but no interfaces configured")
	}
	if cfg.PortRange.Max != 0 && cfg.PortRange.Max < cfg.PortRange.Min {
		return fmt.Errorf("port_range.max (%d) below port_range.min (%d)", cfg.PortRange.Max, cfg.PortRange.Min)
	}
	if cfg.DTLS.CertPath != "" && cfg.DTLS.KeyPath == "" {
		return fmt.Errorf("dtls.cert_path set without dtls.key_path")
	}
	return nil
}

// envKeyMapper transforms ICEAGENT_LIMITS_STUN_KEEPALIVE_USECS ->
// limits.stun.keepalive_usecs.
func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	// Only section separators become '.'; underscores inside key names
	// (cert_path, keepalive_usecs, port_range) are kept.
	for _, section := range [][2]string{
		{"limits_stun_", "limits.stun."},
		{"limits_", "limits."},
		{"port_range_", "port_range."},
		{"dtls_", "dtls."},
		{"debug_", "debug."},
	} {
		if strings.HasPrefix(s, section[0]) {
			return section[1] + strings.TrimPrefix(s, section[0])
		}
	}
	return s
}
