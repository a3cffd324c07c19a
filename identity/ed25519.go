package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	"github.com/postalsys/sshmux/wire"
)

const (
	// Ed25519PublicKeySize is the size of ed25519 public keys in bytes.
	Ed25519PublicKeySize = 32

	// Ed25519SeedSize is the size of an ed25519 private key seed.
	Ed25519SeedSize = 32

	// Ed25519SignatureSize is the size of detached ed25519 signatures.
	Ed25519SignatureSize = 64
)

// Ed25519PublicKey is the typed view of a plain ssh-ed25519 identity.
type Ed25519PublicKey [Ed25519PublicKeySize]byte

// NewEd25519Identity frames a raw public key as an identity blob.
func NewEd25519Identity(pub Ed25519PublicKey) Identity {
	blob := make([]byte, 0, 4+len(AlgorithmSshEd25519)+4+Ed25519PublicKeySize)
	blob = appendFramed(blob, []byte(AlgorithmSshEd25519))
	blob = appendFramed(blob, pub[:])
	return blob
}

// Ed25519PublicKey projects the identity into a plain ed25519 key view.
// It fails for certificates and any other algorithm.
func (id Identity) Ed25519PublicKey() (Ed25519PublicKey, error) {
	var pub Ed25519PublicKey
	d := wire.NewDecoder(id)
	name, ok := d.TakeString()
	if !ok || name != AlgorithmSshEd25519 {
		return pub, fmt.Errorf("%w: not %s", ErrInvalidIdentity, AlgorithmSshEd25519)
	}
	key, ok := d.TakeFramed()
	if !ok || len(key) != Ed25519PublicKeySize || d.Remaining() != 0 {
		return pub, fmt.Errorf("%w: malformed %s blob", ErrInvalidIdentity, AlgorithmSshEd25519)
	}
	copy(pub[:], key)
	return pub, nil
}

// Ed25519Keypair is a local ed25519 key, used for server host keys and
// by the in-memory auth agent.
type Ed25519Keypair struct {
	private ed25519.PrivateKey
	public  Ed25519PublicKey
}

// GenerateEd25519Keypair draws a fresh keypair from crypto/rand.
func GenerateEd25519Keypair() (*Ed25519Keypair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate ed25519 keypair: %w", err)
	}
	kp := &Ed25519Keypair{private: priv}
	copy(kp.public[:], pub)
	return kp, nil
}

// Ed25519KeypairFromSeed derives a keypair from a 32-byte seed.
func Ed25519KeypairFromSeed(seed [Ed25519SeedSize]byte) *Ed25519Keypair {
	priv := ed25519.NewKeyFromSeed(seed[:])
	kp := &Ed25519Keypair{private: priv}
	copy(kp.public[:], priv.Public().(ed25519.PublicKey))
	return kp
}

// PublicKey returns the raw public key.
func (kp *Ed25519Keypair) PublicKey() Ed25519PublicKey {
	return kp.public
}

// Identity returns the framed ssh-ed25519 identity blob.
func (kp *Ed25519Keypair) Identity() Identity {
	return NewEd25519Identity(kp.public)
}

// Sign produces a detached ssh-ed25519 signature over data.
func (kp *Ed25519Keypair) Sign(data []byte) Signature {
	sig := ed25519.Sign(kp.private, data)
	return Signature{Algorithm: AlgorithmSshEd25519, Blob: sig}
}

func appendFramed(dst, p []byte) []byte {
	dst = append(dst, byte(len(p)>>24), byte(len(p)>>16), byte(len(p)>>8), byte(len(p)))
	return append(dst, p...)
}
