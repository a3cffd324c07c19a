package transport

import (
	"bufio"
	"bytes"
	"crypto/rand"
	"errors"
	"testing"
)

func TestPaddingLength(t *testing.T) {
	tests := []struct {
		alignedLen int
		blockSize  int
	}{
		{5, 8}, {6, 8}, {12, 8}, {13, 8}, {100, 8}, {1, 8}, {8, 8},
	}
	for _, tt := range tests {
		pad := paddingLength(tt.alignedLen, tt.blockSize)
		if pad < minPaddingLength {
			t.Errorf("paddingLength(%d, %d) = %d < 4", tt.alignedLen, tt.blockSize, pad)
		}
		if (tt.alignedLen+pad)%tt.blockSize != 0 {
			t.Errorf("paddingLength(%d, %d) = %d not aligned", tt.alignedLen, tt.blockSize, pad)
		}
	}
}

func TestPlainCipherRoundTrip(t *testing.T) {
	c := &plainCipher{rand: rand.Reader}
	payloads := [][]byte{
		{21},
		[]byte("some longer payload for the plain cipher"),
		bytes.Repeat([]byte{0x55}, 1000),
	}
	for _, payload := range payloads {
		var buf bytes.Buffer
		w := bufio.NewWriter(&buf)
		if err := c.writePacket(0, w, payload); err != nil {
			t.Fatal(err)
		}
		w.Flush()

		if buf.Len() < minPacketLength {
			t.Fatalf("packet of %d bytes under the minimum", buf.Len())
		}
		if (buf.Len())%8 != 0 {
			t.Fatalf("packet of %d bytes not block aligned", buf.Len())
		}

		got, err := c.readPacket(0, &buf)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(got, payload) {
			t.Fatalf("got %x, want %x", got, payload)
		}
	}
}

func TestPlainCipherRejectsOversizedLength(t *testing.T) {
	c := &plainCipher{rand: rand.Reader}
	// packet_length way beyond the limit
	buf := bytes.NewReader([]byte{0xff, 0xff, 0xff, 0xff})
	_, err := c.readPacket(0, buf)
	if !errors.Is(err, ErrInvalidPacketLength) {
		t.Fatalf("err = %v", err)
	}
}

func newChachaPair(t *testing.T) (*chacha20Poly1305Cipher, *chacha20Poly1305Cipher) {
	t.Helper()
	key := make([]byte, chacha20Poly1305KeySize)
	if _, err := rand.Read(key); err != nil {
		t.Fatal(err)
	}
	seal, err := newChacha20Poly1305Cipher(key, rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	open, err := newChacha20Poly1305Cipher(key, rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	return seal, open
}

func TestChachaRoundTrip(t *testing.T) {
	seal, open := newChachaPair(t)
	payloads := [][]byte{
		{21},
		[]byte("hello"),
		bytes.Repeat([]byte{0xaa}, 4096),
	}
	for seq, payload := range payloads {
		var buf bytes.Buffer
		w := bufio.NewWriter(&buf)
		if err := seal.writePacket(uint64(seq), w, payload); err != nil {
			t.Fatal(err)
		}
		w.Flush()

		got, err := open.readPacket(uint64(seq), &buf)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(got, payload) {
			t.Fatalf("seq %d: got %x, want %x", seq, got, payload)
		}
	}
}

func TestChachaRejectsWrongSequence(t *testing.T) {
	seal, open := newChachaPair(t)
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	if err := seal.writePacket(3, w, []byte("payload")); err != nil {
		t.Fatal(err)
	}
	w.Flush()

	if _, err := open.readPacket(4, &buf); err == nil {
		t.Fatal("packet decrypted under the wrong sequence number")
	}
}

func TestChachaRejectsTamperedPacket(t *testing.T) {
	seal, open := newChachaPair(t)
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	if err := seal.writePacket(0, w, []byte("payload")); err != nil {
		t.Fatal(err)
	}
	w.Flush()

	raw := buf.Bytes()
	raw[len(raw)-1] ^= 1
	_, err := open.readPacket(0, bytes.NewReader(raw))
	if !errors.Is(err, ErrInvalidEncryption) {
		t.Fatalf("err = %v", err)
	}
}

func TestChachaRejectsWrongKeySize(t *testing.T) {
	if _, err := newChacha20Poly1305Cipher(make([]byte, 32), rand.Reader); err == nil {
		t.Fatal("short key accepted")
	}
}
