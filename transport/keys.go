package transport

import (
	"crypto/sha256"
)

// Key derivation letters (RFC 4253 §7.2).
const (
	keyLetterIvClientToServer  = 'A'
	keyLetterIvServerToClient  = 'B'
	keyLetterEncClientToServer = 'C'
	keyLetterEncServerToClient = 'D'
	keyLetterMacClientToServer = 'E'
	keyLetterMacServerToClient = 'F'
)

// keyStream derives key material from the shared secret K, the exchange
// hash H and the session ID:
//
//	K1 = HASH(K || H || letter || session_id)
//	Kn = HASH(K || H || K1 || ... || K(n-1))
//
// K enters the hash in its mpint encoding, precomputed by the caller.
type keyStream struct {
	k         []byte // mpint-encoded shared secret
	h         []byte
	sessionID []byte
}

// derive produces size bytes of key material for the given letter.
func (s *keyStream) derive(letter byte, size int) []byte {
	out := make([]byte, 0, size)

	d := sha256.New()
	d.Write(s.k)
	d.Write(s.h)
	d.Write([]byte{letter})
	d.Write(s.sessionID)
	block := d.Sum(nil)
	out = append(out, block...)

	for len(out) < size {
		d = sha256.New()
		d.Write(s.k)
		d.Write(s.h)
		d.Write(out)
		block = d.Sum(nil)
		out = append(out, block...)
	}
	return out[:size]
}

// encodeMPInt renders a big-endian magnitude as an SSH mpint.
func encodeMPInt(p []byte) []byte {
	for len(p) > 0 && p[0] == 0 {
		p = p[1:]
	}
	pad := 0
	if len(p) > 0 && p[0]&0x80 != 0 {
		pad = 1
	}
	out := make([]byte, 4+pad+len(p))
	n := pad + len(p)
	out[0] = byte(n >> 24)
	out[1] = byte(n >> 16)
	out[2] = byte(n >> 8)
	out[3] = byte(n)
	copy(out[4+pad:], p)
	return out
}
