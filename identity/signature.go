package identity

import (
	"crypto/ed25519"
	"fmt"

	"github.com/postalsys/sshmux/wire"
)

// Signature is a tagged signature blob: the algorithm name plus the
// detached signature bytes.
type Signature struct {
	Algorithm string
	Blob      []byte
}

// MarshalBlob returns the signature blob: the framed algorithm name
// followed by the framed signature bytes. Messages frame this blob as a
// whole.
func (s *Signature) MarshalBlob() []byte {
	blob := make([]byte, 0, 4+len(s.Algorithm)+4+len(s.Blob))
	blob = appendFramed(blob, []byte(s.Algorithm))
	return appendFramed(blob, s.Blob)
}

// DecodeSignatureBlob parses a signature blob produced by MarshalBlob.
func DecodeSignatureBlob(p []byte) (Signature, error) {
	var s Signature
	d := wire.NewDecoder(p)
	alg, ok := d.TakeString()
	if !ok {
		return Signature{}, ErrInvalidSignature
	}
	blob, ok := d.TakeFramed()
	if !ok || d.Remaining() != 0 {
		return Signature{}, ErrInvalidSignature
	}
	s.Algorithm = alg
	s.Blob = blob
	return s, nil
}

// Verify checks the signature over data against an identity of
// compatible algorithm. Only plain ssh-ed25519 identities verify;
// certificates are rejected until CA plumbing exists.
func (s *Signature) Verify(id Identity, data []byte) error {
	if s.Algorithm != AlgorithmSshEd25519 {
		return fmt.Errorf("%w: unsupported algorithm %q", ErrInvalidSignature, s.Algorithm)
	}
	if len(s.Blob) != Ed25519SignatureSize {
		return fmt.Errorf("%w: bad length %d", ErrInvalidSignature, len(s.Blob))
	}
	pub, err := id.Ed25519PublicKey()
	if err != nil {
		return err
	}
	if !ed25519.Verify(ed25519.PublicKey(pub[:]), data, s.Blob) {
		return ErrInvalidSignature
	}
	return nil
}
