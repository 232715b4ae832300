package scale

import (
	"encoding/hex"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCompact_Vectors(t *testing.T) {
	tests := []struct {
		value uint64
		hex   string
	}{
		{0, "00"},
		{1, "04"},
		{42, "a8"},
		{63, "fc"},
		{64, "0101"},
		{69, "1501"},
		{16383, "fdff"},
		{16384, "02000100"},
		{1<<30 - 1, "feffffff"},
		{1 << 30, "0300000040"},
		{math.MaxUint32, "03ffffffff"},
		{1 << 32, "070000000001"},
		{1 << 48, "0f00000000000001"},
		{math.MaxUint64, "13ffffffffffffffff"},
	}

	for _, tt := range tests {
		e := NewEncoder(0)
		e.WriteCompact(tt.value)
		require.Equal(t, tt.hex, hex.EncodeToString(e.Bytes()), "encode %d", tt.value)
		require.Equal(t, len(e.Bytes()), CompactLen(tt.value))

		d := NewDecoder(e.Bytes())
		got, err := d.ReadCompact()
		require.NoError(t, err)
		require.Equal(t, tt.value, got)
		require.NoError(t, d.Finish("compact"))
	}
}

func TestCompact_RejectsNonCanonical(t *testing.T) {
	tests := []struct {
		name string
		hex  string
	}{
		{"small value in two-byte mode", "0500"},
		{"small value in four-byte mode", "02000000"},
		{"small value in big-integer mode", "03ffffff3f"},
		{"padded big integer", "0700000040" + "00"},
		{"more than 64 bits", "17" + "000000000000000001"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := hex.DecodeString(tt.hex)
			require.NoError(t, err)
			_, err = NewDecoder(b).ReadCompact()
			require.ErrorIs(t, err, ErrNonCanonical)
		})
	}
}

func TestCompact_Truncated(t *testing.T) {
	for _, h := range []string{"", "01", "020001", "03000000", "13ffffffffffffff"} {
		b, _ := hex.DecodeString(h)
		_, err := NewDecoder(b).ReadCompact()
		require.ErrorIs(t, err, ErrTruncatedInput, "input %q", h)
	}
}

func TestDecoder_Bool(t *testing.T) {
	d := NewDecoder([]byte{0, 1, 2})

	v, err := d.ReadBool()
	require.NoError(t, err)
	require.False(t, v)

	v, err = d.ReadBool()
	require.NoError(t, err)
	require.True(t, v)

	_, err = d.ReadBool()
	require.ErrorIs(t, err, ErrInvalidDiscriminant)
	require.Equal(t, 2, Offset(err))
}

func TestDecoder_Option(t *testing.T) {
	for tag, want := range map[byte]bool{0: false, 1: true} {
		got, err := NewDecoder([]byte{tag}).ReadOption()
		require.NoError(t, err)
		require.Equal(t, want, got)
	}

	_, err := NewDecoder([]byte{7}).ReadOption()
	require.ErrorIs(t, err, ErrInvalidDiscriminant)
}

func TestDecoder_U64LittleEndian(t *testing.T) {
	e := NewEncoder(8)
	e.WriteU64(0x0102030405060708)
	require.Equal(t, "0807060504030201", hex.EncodeToString(e.Bytes()))

	got, err := NewDecoder(e.Bytes()).ReadU64()
	require.NoError(t, err)
	require.Equal(t, uint64(0x0102030405060708), got)

	_, err = NewDecoder(e.Bytes()[:7]).ReadU64()
	require.ErrorIs(t, err, ErrTruncatedInput)
}

func TestDecoder_Bytes(t *testing.T) {
	e := NewEncoder(0)
	e.WriteBytes([]byte("hello"))
	e.WriteString("wörld")

	d := NewDecoder(e.Bytes())
	b, err := d.ReadBytes()
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), b)

	s, err := d.ReadString()
	require.NoError(t, err)
	require.Equal(t, "wörld", s)
	require.NoError(t, d.Finish("test"))
}

func TestDecoder_StringRejectsInvalidUTF8(t *testing.T) {
	e := NewEncoder(0)
	e.WriteBytes([]byte{0xff, 0xfe})
	_, err := NewDecoder(e.Bytes()).ReadString()
	require.ErrorIs(t, err, ErrInvalidUTF8)
}

func TestDecoder_LengthMismatchIsTruncation(t *testing.T) {
	e := NewEncoder(0)
	e.WriteCompact(10)
	e.WriteFixed([]byte{1, 2, 3})

	_, err := NewDecoder(e.Bytes()).ReadLen("Vec<[u8; 4]>", 4)
	require.ErrorIs(t, err, ErrLengthMismatch)
	require.ErrorIs(t, err, ErrTruncatedInput)
	require.Equal(t, 0, Offset(err))

	var de *DecodeError
	require.True(t, errors.As(err, &de))
	require.Equal(t, "Vec<[u8; 4]>", de.Op)
}

func TestDecoder_Finish(t *testing.T) {
	d := NewDecoder([]byte{1, 2})
	_, err := d.ReadU8()
	require.NoError(t, err)

	err = d.Finish("u8")
	require.ErrorIs(t, err, ErrTrailingBytes)
	require.Equal(t, 1, Offset(err))
	require.NotErrorIs(t, err, ErrTruncatedInput)
}

func TestOffset_NotDecodeError(t *testing.T) {
	require.Equal(t, -1, Offset(errors.New("other")))
}
