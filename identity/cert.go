package identity

import (
	"fmt"

	"github.com/postalsys/sshmux/wire"
)

// Certificate types.
const (
	CertTypeUser uint32 = 1
	CertTypeHost uint32 = 2
)

// Ed25519Certificate is the typed view of an
// ssh-ed25519-cert-v01@openssh.com identity. Parsing is supported so
// certificates can be inspected and logged; signature-chain verification
// is not yet supported, so certificates never pass host or user
// verification.
type Ed25519Certificate struct {
	Nonce           []byte
	PublicKey       Ed25519PublicKey
	Serial          uint64
	Type            uint32
	KeyID           string
	ValidPrincipals []string
	ValidAfter      uint64
	ValidBefore     uint64
	CriticalOptions []byte
	Extensions      []byte
	SignatureKey    Identity
	Signature       Signature
}

// Ed25519Certificate projects the identity into a certificate view.
func (id Identity) Ed25519Certificate() (*Ed25519Certificate, error) {
	d := wire.NewDecoder(id)
	name, ok := d.TakeString()
	if !ok || name != AlgorithmSshEd25519Cert {
		return nil, fmt.Errorf("%w: not %s", ErrInvalidIdentity, AlgorithmSshEd25519Cert)
	}
	c := &Ed25519Certificate{}
	if c.Nonce, ok = d.TakeFramed(); !ok {
		return nil, ErrInvalidIdentity
	}
	key, ok := d.TakeFramed()
	if !ok || len(key) != Ed25519PublicKeySize {
		return nil, ErrInvalidIdentity
	}
	copy(c.PublicKey[:], key)
	if c.Serial, ok = d.TakeU64(); !ok {
		return nil, ErrInvalidIdentity
	}
	if c.Type, ok = d.TakeU32(); !ok {
		return nil, ErrInvalidIdentity
	}
	if c.KeyID, ok = d.TakeString(); !ok {
		return nil, ErrInvalidIdentity
	}
	principals, ok := d.TakeFramed()
	if !ok {
		return nil, ErrInvalidIdentity
	}
	pd := wire.NewDecoder(principals)
	for pd.Remaining() > 0 {
		p, ok := pd.TakeString()
		if !ok {
			return nil, ErrInvalidIdentity
		}
		c.ValidPrincipals = append(c.ValidPrincipals, p)
	}
	if c.ValidAfter, ok = d.TakeU64(); !ok {
		return nil, ErrInvalidIdentity
	}
	if c.ValidBefore, ok = d.TakeU64(); !ok {
		return nil, ErrInvalidIdentity
	}
	if c.CriticalOptions, ok = d.TakeFramed(); !ok {
		return nil, ErrInvalidIdentity
	}
	if c.Extensions, ok = d.TakeFramed(); !ok {
		return nil, ErrInvalidIdentity
	}
	if _, ok = d.TakeFramed(); !ok { // reserved
		return nil, ErrInvalidIdentity
	}
	sigKey, ok := d.TakeFramed()
	if !ok {
		return nil, ErrInvalidIdentity
	}
	c.SignatureKey = Identity(sigKey)
	sigBlob, ok := d.TakeFramed()
	if !ok || d.Remaining() != 0 {
		return nil, ErrInvalidIdentity
	}
	sig, err := DecodeSignatureBlob(sigBlob)
	if err != nil {
		return nil, ErrInvalidIdentity
	}
	c.Signature = sig
	return c, nil
}

// IsCertificate reports whether the identity carries a certificate
// algorithm name.
func (id Identity) IsCertificate() bool {
	return id.Algorithm() == AlgorithmSshEd25519Cert
}
