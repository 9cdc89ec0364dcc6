package wire

import (
	"crypto/tls"
	"fmt"
	"net"

	"github.com/pion/dtls/v3"
)

// dtlsExporterLabel is the RFC 5764 keying-material exporter label used to
// derive SRTP master keys/salts from the DTLS handshake.
const dtlsExporterLabel = "EXTRACTOR-dtls_srtp"

// DtlsServer drives the passive side of a DTLS 1.2 handshake (cookie
// exchange handled internally by the library) over conn.
func DtlsServer(conn net.Conn, cert tls.Certificate, profiles []dtls.SRTPProtectionProfile) (*dtls.Conn, error) {
	cfg := &dtls.Config{
		Certificates:           []tls.Certificate{cert},
		SRTPProtectionProfiles: profiles,
		ClientAuth:             dtls.RequireAnyClientCert,
		InsecureSkipVerify:     true,
	}
	c, err := dtls.Server(conn, cfg)
	if err != nil {
		return nil, fmt.Errorf("wire: dtls server handshake: %w", err)
	}
	return c, nil
}

// DtlsClient drives the active side of a DTLS 1.2 handshake over conn.
func DtlsClient(conn net.Conn, cert tls.Certificate, profiles []dtls.SRTPProtectionProfile) (*dtls.Conn, error) {
	cfg := &dtls.Config{
		Certificates:           []tls.Certificate{cert},
		SRTPProtectionProfiles: profiles,
		InsecureSkipVerify:     true,
	}
	c, err := dtls.Client(conn, cfg)
	if err != nil {
		return nil, fmt.Errorf("wire: dtls client handshake: %w", err)
	}
	return c, nil
}

// SrtpKeyLengths returns the (key length, salt length) in bytes for a
// negotiated SRTP protection profile, per spec §4.1.
func SrtpKeyLengths(profile dtls.SRTPProtectionProfile) (keyLen, saltLen int, err error) {
	switch profile {
	case dtls.SRTP_AES128_CM_HMAC_SHA1_80, dtls.SRTP_AES128_CM_HMAC_SHA1_32:
		return 16, 14, nil
	case dtls.SRTP_AEAD_AES_128_GCM:
		return 16, 12, nil
	case dtls.SRTP_AEAD_AES_256_GCM:
		return 32, 12, nil
	default:
		return 0, 0, fmt.Errorf("wire: unsupported srtp protection profile %v", profile)
	}
}

// ExportedSrtpKeys holds the keying material extracted from a completed DTLS
// handshake, per RFC 5764 §4.2.
type ExportedSrtpKeys struct {
	Profile     dtls.SRTPProtectionProfile
	ClientKey   []byte
	ClientSalt  []byte
	ServerKey   []byte
	ServerSalt  []byte
}

// ExportSrtpKeys exports keying material via the "EXTRACTOR-dtls_srtp"
// label and splits it into client/server key/salt quadruples per the
// profile's key lengths (RFC 5764 §4.2 layout: client_key, server_key,
// client_salt, server_salt).
func ExportSrtpKeys(conn *dtls.Conn) (*ExportedSrtpKeys, error) {
	state := conn.ConnectionState()
	profile := state.SRTPProtectionProfile

	keyLen, saltLen, err := SrtpKeyLengths(profile)
	if err != nil {
		return nil, err
	}

	total := 2*keyLen + 2*saltLen
	material, err := conn.ExportKeyingMaterial(dtlsExporterLabel, nil, total)
	if err != nil {
		return nil, fmt.Errorf("wire: export keying material: %w", err)
	}

	clientKey := material[:keyLen]
	serverKey := material[keyLen : 2*keyLen]
	clientSalt := material[2*keyLen : 2*keyLen+saltLen]
	serverSalt := material[2*keyLen+saltLen : 2*keyLen+2*saltLen]

	return &ExportedSrtpKeys{
		Profile:    profile,
		ClientKey:  append([]byte(nil), clientKey...),
		ClientSalt: append([]byte(nil), clientSalt...),
		ServerKey:  append([]byte(nil), serverKey...),
		ServerSalt: append([]byte(nil), serverSalt...),
	}, nil
}
