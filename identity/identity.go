// Package identity provides public-key identities, signatures and the
// ed25519 algorithm views used for host keys and user authentication.
package identity

import (
	"bytes"
	"encoding/hex"
	"errors"

	"github.com/postalsys/sshmux/wire"
)

// Algorithm names.
const (
	AlgorithmSshEd25519     = "ssh-ed25519"
	AlgorithmSshRsa         = "ssh-rsa"
	AlgorithmSshEd25519Cert = "ssh-ed25519-cert-v01@openssh.com"
)

var (
	// ErrInvalidIdentity is returned when an identity blob cannot be
	// parsed or has an unexpected algorithm.
	ErrInvalidIdentity = errors.New("identity: invalid identity blob")

	// ErrInvalidSignature is returned when a signature blob is
	// malformed or does not verify.
	ErrInvalidSignature = errors.New("identity: invalid signature")
)

// Identity is an opaque public-key blob whose first framed string names
// the algorithm. Equality is byte equality.
type Identity []byte

// Algorithm returns the algorithm name framed at the start of the blob,
// or "" if the blob is malformed.
func (id Identity) Algorithm() string {
	d := wire.NewDecoder(id)
	name, ok := d.TakeString()
	if !ok {
		return ""
	}
	return name
}

// Equal reports byte equality.
func (id Identity) Equal(other Identity) bool {
	return bytes.Equal(id, other)
}

// ShortString returns a truncated hex rendering for logging.
func (id Identity) ShortString() string {
	if len(id) <= 12 {
		return hex.EncodeToString(id)
	}
	return hex.EncodeToString(id[:12]) + "..."
}

// Encode writes the identity as a framed blob.
func (id Identity) Encode(e wire.Encoder) {
	e.PushFramed(id)
}

// Size returns the framed size of the identity.
func (id Identity) Size() int {
	return 4 + len(id)
}
