// Package wire implements the SSH-2 binary codec and wire messages.
package wire

import (
	"encoding/binary"
	"errors"
)

var (
	// ErrDecodingFailed is returned when a message cannot be decoded.
	ErrDecodingFailed = errors.New("ssh: decoding failed")

	// ErrEncodingFailed is returned when a message does not fit its
	// pre-computed size. It indicates a bug in a Size method.
	ErrEncodingFailed = errors.New("ssh: encoding failed")
)

// Message is any SSH wire message. Encode must write exactly Size bytes,
// including the leading message number.
type Message interface {
	Encode(e Encoder)
	Size() int
}

// Decodable is implemented by messages that can be decoded from a payload.
type Decodable interface {
	Decode(d *Decoder) bool
}

// Marshal encodes a message into a freshly allocated buffer of exactly
// the right size.
func Marshal(m Message) ([]byte, error) {
	buf := make([]byte, m.Size())
	e := &bufEncoder{buf: buf}
	m.Encode(e)
	if e.overflow || e.off != len(buf) {
		return nil, ErrEncodingFailed
	}
	return buf, nil
}

// MarshalInto encodes a message into buf, which must be exactly
// m.Size() bytes long.
func MarshalInto(buf []byte, m Message) error {
	if len(buf) != m.Size() {
		return ErrEncodingFailed
	}
	e := &bufEncoder{buf: buf}
	m.Encode(e)
	if e.overflow || e.off != len(buf) {
		return ErrEncodingFailed
	}
	return nil
}

// Unmarshal decodes a complete payload into m. Trailing bytes are an
// error: a payload carries exactly one message.
func Unmarshal(payload []byte, m Decodable) error {
	d := NewDecoder(payload)
	if !m.Decode(&d) || d.Remaining() != 0 {
		return ErrDecodingFailed
	}
	return nil
}

// Encoder is the push interface shared by the counting and the buffer
// encoder. Size methods and Encode methods must walk the same fields so
// the two phases agree.
type Encoder interface {
	PushU8(v uint8)
	PushU32(v uint32)
	PushU64(v uint64)
	PushBool(v bool)
	PushBytes(p []byte)
	PushFramed(p []byte)
	PushString(s string)
	PushNameList(names []string)
	PushMPInt(p []byte)
}

// bufEncoder writes into a fixed buffer. Overflow is sticky and turned
// into ErrEncodingFailed by Marshal.
type bufEncoder struct {
	buf      []byte
	off      int
	overflow bool
}

func (e *bufEncoder) reserve(n int) []byte {
	if e.overflow || e.off+n > len(e.buf) {
		e.overflow = true
		return nil
	}
	p := e.buf[e.off : e.off+n]
	e.off += n
	return p
}

func (e *bufEncoder) PushU8(v uint8) {
	if p := e.reserve(1); p != nil {
		p[0] = v
	}
}

func (e *bufEncoder) PushU32(v uint32) {
	if p := e.reserve(4); p != nil {
		binary.BigEndian.PutUint32(p, v)
	}
}

func (e *bufEncoder) PushU64(v uint64) {
	if p := e.reserve(8); p != nil {
		binary.BigEndian.PutUint64(p, v)
	}
}

func (e *bufEncoder) PushBool(v bool) {
	if v {
		e.PushU8(1)
	} else {
		e.PushU8(0)
	}
}

func (e *bufEncoder) PushBytes(p []byte) {
	if dst := e.reserve(len(p)); dst != nil {
		copy(dst, p)
	}
}

func (e *bufEncoder) PushFramed(p []byte) {
	e.PushU32(uint32(len(p)))
	e.PushBytes(p)
}

func (e *bufEncoder) PushString(s string) {
	e.PushU32(uint32(len(s)))
	if dst := e.reserve(len(s)); dst != nil {
		copy(dst, s)
	}
}

func (e *bufEncoder) PushNameList(names []string) {
	e.PushU32(uint32(nameListLen(names)))
	for i, name := range names {
		if i > 0 {
			e.PushU8(',')
		}
		if dst := e.reserve(len(name)); dst != nil {
			copy(dst, name)
		}
	}
}

func (e *bufEncoder) PushMPInt(p []byte) {
	p = trimLeadingZeros(p)
	if len(p) > 0 && p[0]&0x80 != 0 {
		e.PushU32(uint32(len(p) + 1))
		e.PushU8(0)
	} else {
		e.PushU32(uint32(len(p)))
	}
	e.PushBytes(p)
}

// countEncoder implements the size phase: it counts bytes without
// allocating or copying.
type countEncoder struct {
	n int
}

func (e *countEncoder) PushU8(uint8)     { e.n++ }
func (e *countEncoder) PushU32(uint32)   { e.n += 4 }
func (e *countEncoder) PushU64(uint64)   { e.n += 8 }
func (e *countEncoder) PushBool(bool)    { e.n++ }
func (e *countEncoder) PushBytes(p []byte) { e.n += len(p) }
func (e *countEncoder) PushFramed(p []byte) { e.n += 4 + len(p) }
func (e *countEncoder) PushString(s string) { e.n += 4 + len(s) }

func (e *countEncoder) PushNameList(names []string) {
	e.n += 4 + nameListLen(names)
}

func (e *countEncoder) PushMPInt(p []byte) {
	p = trimLeadingZeros(p)
	e.n += 4 + len(p)
	if len(p) > 0 && p[0]&0x80 != 0 {
		e.n++
	}
}

// EncodedSize runs the counting phase over m. Message Size methods are
// implemented in terms of it so size and encode cannot drift apart.
func EncodedSize(m interface{ Encode(Encoder) }) int {
	var c countEncoder
	m.Encode(&c)
	return c.n
}

func nameListLen(names []string) int {
	n := 0
	for i, name := range names {
		if i > 0 {
			n++
		}
		n += len(name)
	}
	return n
}

func trimLeadingZeros(p []byte) []byte {
	for len(p) > 0 && p[0] == 0 {
		p = p[1:]
	}
	return p
}

// Decoder is a cursor over a payload. It is a value type: copying a
// Decoder clones its position, so alternatives can be tried on the copy
// without consuming input from the original.
type Decoder struct {
	buf []byte
	off int
}

// NewDecoder returns a decoder positioned at the start of p.
func NewDecoder(p []byte) Decoder {
	return Decoder{buf: p}
}

// Remaining returns the number of unconsumed bytes.
func (d *Decoder) Remaining() int {
	return len(d.buf) - d.off
}

// TakeU8 consumes one byte.
func (d *Decoder) TakeU8() (uint8, bool) {
	if d.Remaining() < 1 {
		return 0, false
	}
	v := d.buf[d.off]
	d.off++
	return v, true
}

// TakeU32 consumes a big-endian uint32.
func (d *Decoder) TakeU32() (uint32, bool) {
	if d.Remaining() < 4 {
		return 0, false
	}
	v := binary.BigEndian.Uint32(d.buf[d.off:])
	d.off += 4
	return v, true
}

// TakeU64 consumes a big-endian uint64.
func (d *Decoder) TakeU64() (uint64, bool) {
	if d.Remaining() < 8 {
		return 0, false
	}
	v := binary.BigEndian.Uint64(d.buf[d.off:])
	d.off += 8
	return v, true
}

// TakeBool consumes one byte; any non-zero value is true.
func (d *Decoder) TakeBool() (bool, bool) {
	v, ok := d.TakeU8()
	return v != 0, ok
}

// TakeBytes consumes exactly n raw bytes. The returned slice aliases the
// payload.
func (d *Decoder) TakeBytes(n int) ([]byte, bool) {
	if n < 0 || d.Remaining() < n {
		return nil, false
	}
	p := d.buf[d.off : d.off+n]
	d.off += n
	return p, true
}

// TakeFramed consumes a u32-length-prefixed byte string.
func (d *Decoder) TakeFramed() ([]byte, bool) {
	n, ok := d.TakeU32()
	if !ok {
		return nil, false
	}
	return d.TakeBytes(int(n))
}

// TakeString consumes a u32-length-prefixed string.
func (d *Decoder) TakeString() (string, bool) {
	p, ok := d.TakeFramed()
	return string(p), ok
}

// TakeNameList consumes a framed comma-separated name list.
func (d *Decoder) TakeNameList() ([]string, bool) {
	p, ok := d.TakeFramed()
	if !ok {
		return nil, false
	}
	if len(p) == 0 {
		return nil, true
	}
	names := []string{}
	start := 0
	for i := 0; i <= len(p); i++ {
		if i == len(p) || p[i] == ',' {
			names = append(names, string(p[start:i]))
			start = i + 1
		}
	}
	return names, true
}

// TakeMPInt consumes a framed two's-complement big-endian integer and
// returns its magnitude with any sign byte stripped.
func (d *Decoder) TakeMPInt() ([]byte, bool) {
	p, ok := d.TakeFramed()
	if !ok {
		return nil, false
	}
	if len(p) > 0 && p[0]&0x80 != 0 {
		// Negative numbers do not occur in this protocol subset.
		return nil, false
	}
	return trimLeadingZeros(p), true
}

// TakeRemaining consumes everything left in the payload.
func (d *Decoder) TakeRemaining() []byte {
	p := d.buf[d.off:]
	d.off = len(d.buf)
	return p
}
