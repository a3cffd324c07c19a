package transport

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// MaxPacketLength is the largest accepted value of the packet_length
// field. Packets claiming more are rejected before any allocation.
const MaxPacketLength = 35000

const (
	minPaddingLength = 4
	maxPaddingLength = 255
	minPacketLength  = 16
)

// packetCipher seals and opens one SSH binary packet per call. The
// sequence number is the per-direction packet counter.
type packetCipher interface {
	writePacket(seq uint64, w *bufio.Writer, payload []byte) error
	readPacket(seq uint64, r io.Reader) ([]byte, error)
}

// paddingLength computes the padding for a packet whose aligned region
// is alignedLen bytes before padding, for the given block size. The
// aligned region plus padding must be a multiple of max(blockSize, 8)
// and padding must be at least 4 bytes.
func paddingLength(alignedLen, blockSize int) int {
	if blockSize < 8 {
		blockSize = 8
	}
	pad := blockSize - alignedLen%blockSize
	if pad < minPaddingLength {
		pad += blockSize
	}
	return pad
}

// plainCipher is the null cipher used for pre-KEX traffic only. The
// aligned region includes the length field and the minimum total packet
// size of 16 bytes applies.
type plainCipher struct {
	rand io.Reader
}

func (c *plainCipher) writePacket(seq uint64, w *bufio.Writer, payload []byte) error {
	pad := paddingLength(4+1+len(payload), 8)
	for 4+1+len(payload)+pad < minPacketLength {
		pad += 8
	}
	length := 1 + len(payload) + pad

	var header [5]byte
	binary.BigEndian.PutUint32(header[:4], uint32(length))
	header[4] = byte(pad)
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("write packet: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("write packet: %w", err)
	}
	padding := make([]byte, pad)
	if _, err := io.ReadFull(c.rand, padding); err != nil {
		return fmt.Errorf("draw padding: %w", err)
	}
	if _, err := w.Write(padding); err != nil {
		return fmt.Errorf("write packet: %w", err)
	}
	return nil
}

func (c *plainCipher) readPacket(seq uint64, r io.Reader) ([]byte, error) {
	var header [5]byte
	if _, err := io.ReadFull(r, header[:4]); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(header[:4])
	if length > MaxPacketLength {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPacketLength, length)
	}
	if length < 1+minPaddingLength {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPacketLength, length)
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	pad := int(body[0])
	if pad < minPaddingLength || pad >= int(length) {
		return nil, fmt.Errorf("%w: padding %d", ErrInvalidPacket, pad)
	}
	return body[1 : int(length)-pad], nil
}
