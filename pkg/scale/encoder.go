package scale

import (
	"encoding/binary"

	"github.com/tchajed/marshal"
)

// Encoder appends SCALE encodings to an internal buffer.
//
// Encoding never fails: every in-memory value of a fixed-size type has
// exactly one encoding.
type Encoder struct {
	buf []byte
}

// NewEncoder creates an encoder with the given capacity hint.
func NewEncoder(sizeHint int) *Encoder {
	return &Encoder{buf: make([]byte, 0, sizeHint)}
}

// Bytes returns the encoded bytes.
func (e *Encoder) Bytes() []byte {
	return e.buf
}

// Len returns the number of bytes written so far.
func (e *Encoder) Len() int {
	return len(e.buf)
}

// WriteBool writes a bool as 0x00 or 0x01.
func (e *Encoder) WriteBool(v bool) {
	if v {
		e.buf = append(e.buf, 1)
	} else {
		e.buf = append(e.buf, 0)
	}
}

// WriteU8 writes a single byte.
func (e *Encoder) WriteU8(v uint8) {
	e.buf = append(e.buf, v)
}

// WriteU64 writes a little-endian u64.
func (e *Encoder) WriteU64(v uint64) {
	e.buf = marshal.WriteInt(e.buf, v)
}

// WriteFixed writes a fixed-size byte array verbatim.
func (e *Encoder) WriteFixed(b []byte) {
	e.buf = marshal.WriteBytes(e.buf, b)
}

// WriteCompact writes v in compact form.
func (e *Encoder) WriteCompact(v uint64) {
	switch {
	case v < 1<<6:
		e.buf = append(e.buf, byte(v<<2))
	case v < 1<<14:
		e.buf = binary.LittleEndian.AppendUint16(e.buf, uint16(v<<2)|0b01)
	case v < 1<<30:
		e.buf = binary.LittleEndian.AppendUint32(e.buf, uint32(v<<2)|0b10)
	default:
		n := bigIntLen(v)
		e.buf = append(e.buf, byte((n-4)<<2)|0b11)
		for i := 0; i < n; i++ {
			e.buf = append(e.buf, byte(v>>(8*i)))
		}
	}
}

// WriteOption writes the presence byte of an Option.
// The caller writes the value itself when present.
func (e *Encoder) WriteOption(present bool) {
	e.WriteBool(present)
}

// WriteBytes writes a compact-length-prefixed byte sequence (Vec<u8>).
func (e *Encoder) WriteBytes(b []byte) {
	e.WriteCompact(uint64(len(b)))
	e.buf = marshal.WriteBytes(e.buf, b)
}

// WriteString writes a compact-length-prefixed UTF-8 string.
func (e *Encoder) WriteString(s string) {
	e.WriteBytes([]byte(s))
}

// bigIntLen returns the minimal number of bytes (at least 4) holding v.
func bigIntLen(v uint64) int {
	n := 8
	for n > 4 && v>>(8*(n-1)) == 0 {
		n--
	}
	return n
}

// CompactLen returns the encoded size of v in compact form.
func CompactLen(v uint64) int {
	switch {
	case v < 1<<6:
		return 1
	case v < 1<<14:
		return 2
	case v < 1<<30:
		return 4
	default:
		return 1 + bigIntLen(v)
	}
}
