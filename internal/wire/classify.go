// Package wire hides the STUN/TURN/DTLS wire-level libraries behind a small
// set of typed operations, per the wire codec facade design.
package wire

// PacketClass is the result of demultiplexing one inbound UDP datagram by
// its first octet, per RFC 7983.
type PacketClass int

const (
	ClassOther PacketClass = iota
	ClassSTUN
	ClassDTLS
	ClassSRTP
)

// Classify routes a datagram by its first octet: [0..3] = STUN, [20..63] =
// DTLS, [128..191] = SRTP/SRTCP, anything else is discarded.
func Classify(firstOctet byte) PacketClass {
	switch {
	case firstOctet <= 3:
		return ClassSTUN
	case firstOctet >= 20 && firstOctet <= 63:
		return ClassDTLS
	case firstOctet >= 128 && firstOctet <= 191:
		return ClassSRTP
	default:
		return ClassOther
	}
}
