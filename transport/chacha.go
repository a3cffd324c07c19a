package transport

import (
	"bufio"
	"crypto/subtle"
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20"
	"golang.org/x/crypto/poly1305"
)

// chacha20Poly1305KeySize is the key material consumed by
// chacha20-poly1305@openssh.com: 32 bytes for the payload instance and
// 32 bytes for the length instance.
const chacha20Poly1305KeySize = 64

// chacha20Poly1305Cipher implements chacha20-poly1305@openssh.com
// (PROTOCOL.chacha20poly1305). The packet length field is encrypted
// under a separate key and authenticated but not part of the aligned
// region; the Poly1305 tag covers the whole encrypted packet. The
// per-packet nonce is the 64-bit sequence number.
type chacha20Poly1305Cipher struct {
	contentKey [32]byte
	lengthKey  [32]byte
	rand       io.Reader
}

func newChacha20Poly1305Cipher(key []byte, rand io.Reader) (*chacha20Poly1305Cipher, error) {
	if len(key) != chacha20Poly1305KeySize {
		return nil, fmt.Errorf("%w: chacha20-poly1305 needs %d key bytes", ErrInvalidEncryption, chacha20Poly1305KeySize)
	}
	c := &chacha20Poly1305Cipher{rand: rand}
	copy(c.contentKey[:], key[:32])
	copy(c.lengthKey[:], key[32:])
	return c, nil
}

func packetNonce(seq uint64) []byte {
	nonce := make([]byte, 12)
	binary.BigEndian.PutUint64(nonce[4:], seq)
	return nonce
}

func (c *chacha20Poly1305Cipher) writePacket(seq uint64, w *bufio.Writer, payload []byte) error {
	nonce := packetNonce(seq)

	content, err := chacha20.NewUnauthenticatedCipher(c.contentKey[:], nonce)
	if err != nil {
		return fmt.Errorf("chacha20: %w", err)
	}
	var polyKey [32]byte
	content.XORKeyStream(polyKey[:], polyKey[:])
	content.SetCounter(1)

	// The aligned region excludes the separately encrypted length.
	pad := paddingLength(1+len(payload), 8)
	length := 1 + len(payload) + pad

	packet := make([]byte, 4+length+poly1305.TagSize)
	binary.BigEndian.PutUint32(packet[:4], uint32(length))
	packet[4] = byte(pad)
	copy(packet[5:], payload)
	if _, err := io.ReadFull(c.rand, packet[5+len(payload):4+length]); err != nil {
		return fmt.Errorf("draw padding: %w", err)
	}

	lengthCipher, err := chacha20.NewUnauthenticatedCipher(c.lengthKey[:], nonce)
	if err != nil {
		return fmt.Errorf("chacha20: %w", err)
	}
	lengthCipher.XORKeyStream(packet[:4], packet[:4])
	content.XORKeyStream(packet[4:4+length], packet[4:4+length])

	var tag [poly1305.TagSize]byte
	poly1305.Sum(&tag, packet[:4+length], &polyKey)
	copy(packet[4+length:], tag[:])

	if _, err := w.Write(packet); err != nil {
		return fmt.Errorf("write packet: %w", err)
	}
	return nil
}

func (c *chacha20Poly1305Cipher) readPacket(seq uint64, r io.Reader) ([]byte, error) {
	nonce := packetNonce(seq)

	var encLength [4]byte
	if _, err := io.ReadFull(r, encLength[:]); err != nil {
		return nil, err
	}
	lengthCipher, err := chacha20.NewUnauthenticatedCipher(c.lengthKey[:], nonce)
	if err != nil {
		return nil, fmt.Errorf("chacha20: %w", err)
	}
	var lengthBytes [4]byte
	lengthCipher.XORKeyStream(lengthBytes[:], encLength[:])
	length := binary.BigEndian.Uint32(lengthBytes[:])
	if uint64(length)+poly1305.TagSize > MaxPacketLength {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPacketLength, length)
	}
	if length < 1+minPaddingLength {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPacketLength, length)
	}

	packet := make([]byte, 4+length+poly1305.TagSize)
	copy(packet[:4], encLength[:])
	if _, err := io.ReadFull(r, packet[4:]); err != nil {
		return nil, err
	}

	content, err := chacha20.NewUnauthenticatedCipher(c.contentKey[:], nonce)
	if err != nil {
		return nil, fmt.Errorf("chacha20: %w", err)
	}
	var polyKey [32]byte
	content.XORKeyStream(polyKey[:], polyKey[:])
	content.SetCounter(1)

	var expected [poly1305.TagSize]byte
	poly1305.Sum(&expected, packet[:4+length], &polyKey)
	if subtle.ConstantTimeCompare(expected[:], packet[4+length:]) != 1 {
		return nil, fmt.Errorf("%w: tag mismatch", ErrInvalidEncryption)
	}

	body := packet[4 : 4+length]
	content.XORKeyStream(body, body)
	pad := int(body[0])
	if pad < minPaddingLength || pad >= int(length) {
		return nil, fmt.Errorf("%w: padding %d", ErrInvalidPacket, pad)
	}
	return body[1 : int(length)-pad], nil
}
