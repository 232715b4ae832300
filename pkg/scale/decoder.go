package scale

import (
	"encoding/binary"
	"fmt"
	"unicode/utf8"

	"github.com/tchajed/marshal"
)

// Decoder reads SCALE values from a byte slice, tracking the offset of
// every read for error reporting.
type Decoder struct {
	buf []byte
	off int
}

// NewDecoder creates a decoder over b. The slice is not copied.
func NewDecoder(b []byte) *Decoder {
	return &Decoder{buf: b}
}

// Offset returns the number of bytes consumed.
func (d *Decoder) Offset() int {
	return d.off
}

// Len returns the number of unconsumed bytes.
func (d *Decoder) Len() int {
	return len(d.buf)
}

// Remaining returns the unconsumed bytes.
func (d *Decoder) Remaining() []byte {
	return d.buf
}

// Finish fails with ErrTrailingBytes if any input is left.
func (d *Decoder) Finish(op string) error {
	if len(d.buf) != 0 {
		return d.fail(op, ErrTrailingBytes, "%d unconsumed bytes", len(d.buf))
	}
	return nil
}

func (d *Decoder) need(op string, n int) error {
	if len(d.buf) < n {
		return d.fail(op, ErrTruncatedInput, "need %d bytes, have %d", n, len(d.buf))
	}
	return nil
}

func (d *Decoder) fail(op string, err error, format string, args ...any) error {
	de := &DecodeError{Op: op, Offset: d.off, Err: err}
	if format != "" {
		de.Detail = fmt.Sprintf(format, args...)
	}
	return de
}

func (d *Decoder) take(n int) []byte {
	data, rest := marshal.ReadBytes(d.buf, uint64(n))
	d.buf = rest
	d.off += n
	return data
}

// ReadBool reads a bool. Bytes other than 0x00 and 0x01 are rejected.
func (d *Decoder) ReadBool() (bool, error) {
	if err := d.need("bool", 1); err != nil {
		return false, err
	}
	switch b := d.buf[0]; b {
	case 0, 1:
		d.take(1)
		return b == 1, nil
	default:
		return false, d.fail("bool", ErrInvalidDiscriminant, "byte 0x%02x", d.buf[0])
	}
}

// ReadU8 reads a single byte.
func (d *Decoder) ReadU8() (uint8, error) {
	if err := d.need("u8", 1); err != nil {
		return 0, err
	}
	return d.take(1)[0], nil
}

// ReadU64 reads a little-endian u64.
func (d *Decoder) ReadU64() (uint64, error) {
	if err := d.need("u64", 8); err != nil {
		return 0, err
	}
	v, rest := marshal.ReadInt(d.buf)
	d.buf = rest
	d.off += 8
	return v, nil
}

// ReadFixed fills dst with the next len(dst) bytes. op names the field in errors.
func (d *Decoder) ReadFixed(op string, dst []byte) error {
	if err := d.need(op, len(dst)); err != nil {
		return err
	}
	copy(dst, d.take(len(dst)))
	return nil
}

// ReadCompact reads a compact-encoded integer that fits in 64 bits.
func (d *Decoder) ReadCompact() (uint64, error) {
	const op = "compact"
	if err := d.need(op, 1); err != nil {
		return 0, err
	}
	start := d.off
	switch d.buf[0] & 0b11 {
	case 0b00:
		return uint64(d.take(1)[0] >> 2), nil
	case 0b01:
		if err := d.need(op, 2); err != nil {
			return 0, err
		}
		v := uint64(binary.LittleEndian.Uint16(d.buf) >> 2)
		if v < 1<<6 {
			return 0, d.fail(op, ErrNonCanonical, "value %d in two-byte mode", v)
		}
		d.take(2)
		return v, nil
	case 0b10:
		if err := d.need(op, 4); err != nil {
			return 0, err
		}
		v := uint64(binary.LittleEndian.Uint32(d.buf) >> 2)
		if v < 1<<14 {
			return 0, d.fail(op, ErrNonCanonical, "value %d in four-byte mode", v)
		}
		d.take(4)
		return v, nil
	default:
		n := int(d.buf[0]>>2) + 4
		if n > 8 {
			return 0, d.fail(op, ErrNonCanonical, "%d-byte integer exceeds 64 bits", n)
		}
		if err := d.need(op, 1+n); err != nil {
			return 0, err
		}
		var v uint64
		for i := 0; i < n; i++ {
			v |= uint64(d.buf[1+i]) << (8 * i)
		}
		if v < 1<<30 || d.buf[n] == 0 {
			return 0, &DecodeError{Op: op, Offset: start, Err: ErrNonCanonical, Detail: fmt.Sprintf("value %d in %d-byte big-integer mode", v, n)}
		}
		d.take(1 + n)
		return v, nil
	}
}

// ReadOption reads the presence byte of an Option.
func (d *Decoder) ReadOption() (bool, error) {
	if err := d.need("option", 1); err != nil {
		return false, err
	}
	switch d.buf[0] {
	case 0:
		d.take(1)
		return false, nil
	case 1:
		d.take(1)
		return true, nil
	default:
		return false, d.fail("option", ErrInvalidDiscriminant, "tag 0x%02x", d.buf[0])
	}
}

// ReadLen reads a sequence length prefix and checks that the remaining
// input can hold that many elements of at least minElemSize bytes each.
func (d *Decoder) ReadLen(op string, minElemSize int) (int, error) {
	start := d.off
	n, err := d.ReadCompact()
	if err != nil {
		return 0, err
	}
	if minElemSize < 1 {
		minElemSize = 1
	}
	if n > uint64(len(d.buf)/minElemSize) {
		return 0, &DecodeError{
			Op:     op,
			Offset: start,
			Err:    ErrLengthMismatch,
			Detail: fmt.Sprintf("declared %d elements of %d bytes, %d bytes remain", n, minElemSize, len(d.buf)),
		}
	}
	return int(n), nil
}

// ReadBytes reads a compact-length-prefixed byte sequence. The result is a copy.
func (d *Decoder) ReadBytes() ([]byte, error) {
	n, err := d.ReadLen("Vec<u8>", 1)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, d.take(n))
	return out, nil
}

// ReadString reads a compact-length-prefixed UTF-8 string.
func (d *Decoder) ReadString() (string, error) {
	start := d.off
	b, err := d.ReadBytes()
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", &DecodeError{Op: "String", Offset: start, Err: ErrInvalidUTF8}
	}
	return string(b), nil
}
