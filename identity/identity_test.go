package identity

import (
	"bytes"
	"testing"
)

var testSeed = [Ed25519SeedSize]byte{
	157, 97, 177, 157, 239, 253, 90, 96, 186, 132, 74, 244, 146, 236, 44, 196,
	68, 73, 197, 105, 123, 50, 105, 25, 112, 59, 172, 3, 28, 174, 127, 96,
}

func TestEd25519IdentityRoundTrip(t *testing.T) {
	kp := Ed25519KeypairFromSeed(testSeed)
	id := kp.Identity()

	if got := id.Algorithm(); got != AlgorithmSshEd25519 {
		t.Fatalf("Algorithm() = %q", got)
	}
	pub, err := id.Ed25519PublicKey()
	if err != nil {
		t.Fatal(err)
	}
	if pub != kp.PublicKey() {
		t.Fatal("projected key differs from keypair public key")
	}
	if !id.Equal(NewEd25519Identity(pub)) {
		t.Fatal("identity not byte-equal to re-framed key")
	}
}

func TestIdentityEquality(t *testing.T) {
	a, err := GenerateEd25519Keypair()
	if err != nil {
		t.Fatal(err)
	}
	b, err := GenerateEd25519Keypair()
	if err != nil {
		t.Fatal(err)
	}
	if a.Identity().Equal(b.Identity()) {
		t.Fatal("distinct keypairs compare equal")
	}
	if !a.Identity().Equal(a.Identity()) {
		t.Fatal("identity not equal to itself")
	}
}

func TestSignatureVerify(t *testing.T) {
	kp := Ed25519KeypairFromSeed(testSeed)
	data := []byte("exchange hash")

	sig := kp.Sign(data)
	if sig.Algorithm != AlgorithmSshEd25519 {
		t.Fatalf("algorithm %q", sig.Algorithm)
	}
	if len(sig.Blob) != Ed25519SignatureSize {
		t.Fatalf("signature length %d", len(sig.Blob))
	}
	if err := sig.Verify(kp.Identity(), data); err != nil {
		t.Fatal(err)
	}

	// Tampered data fails.
	if err := sig.Verify(kp.Identity(), []byte("other")); err == nil {
		t.Fatal("tampered data verified")
	}

	// Wrong key fails.
	other, err := GenerateEd25519Keypair()
	if err != nil {
		t.Fatal(err)
	}
	if err := sig.Verify(other.Identity(), data); err == nil {
		t.Fatal("wrong key verified")
	}
}

func TestSignatureBlobRoundTrip(t *testing.T) {
	kp := Ed25519KeypairFromSeed(testSeed)
	sig := kp.Sign([]byte("data"))

	blob := sig.MarshalBlob()
	got, err := DecodeSignatureBlob(blob)
	if err != nil {
		t.Fatal(err)
	}
	if got.Algorithm != sig.Algorithm || !bytes.Equal(got.Blob, sig.Blob) {
		t.Fatalf("got %+v", got)
	}

	if _, err := DecodeSignatureBlob(blob[:len(blob)-1]); err == nil {
		t.Fatal("truncated blob decoded")
	}
	if _, err := DecodeSignatureBlob(append(blob, 0)); err == nil {
		t.Fatal("oversized blob decoded")
	}
}

func TestMalformedIdentity(t *testing.T) {
	tests := []struct {
		name string
		blob []byte
	}{
		{"empty", nil},
		{"truncated algorithm", []byte{0, 0, 0, 20, 's'}},
		{"wrong algorithm", append([]byte{0, 0, 0, 7}, []byte("ssh-rsa")...)},
		{"short key", append(append([]byte{0, 0, 0, 11}, []byte("ssh-ed25519")...), 0, 0, 0, 2, 1, 2)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Identity(tt.blob).Ed25519PublicKey(); err == nil {
				t.Fatal("malformed identity projected")
			}
		})
	}
}

func TestCertificateDetection(t *testing.T) {
	kp := Ed25519KeypairFromSeed(testSeed)
	if kp.Identity().IsCertificate() {
		t.Fatal("plain key detected as certificate")
	}
	if _, err := kp.Identity().Ed25519Certificate(); err == nil {
		t.Fatal("plain key projected as certificate")
	}
}
