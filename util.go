package iceagent

import "github.com/pion/randutil"

// iceChars is the RFC 8445 §5.4 ice-char alphabet: ALPHA / DIGIT / "+" / "/".
const iceChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"

// newICEString generates a random ICE-char token of length n, used for
// ufrag/password generation (spec §4.5, §8 invariant 13) and as a fallback
// foundation when no sibling candidate shares a candidate's origin tuple
// (spec §4.2).
func newICEString(n int) string {
	s, err := randutil.GenerateCryptoRandomString(n, iceChars)
	if err != nil {
		// GenerateCryptoRandomString only fails if crypto/rand itself is
		// broken; there is nothing sensible to do but fall back to the
		// math/rand-backed generator used elsewhere in the pack.
		s = randutil.NewMathRandomGenerator().GenerateString(n, iceChars)
	}
	return s
}
