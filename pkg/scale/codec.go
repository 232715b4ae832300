package scale

// Encodable is implemented by every type with a SCALE encoding.
type Encodable interface {
	EncodeTo(e *Encoder)
}

// Decodable is implemented by pointers to types with a SCALE decoding.
type Decodable interface {
	DecodeFrom(d *Decoder) error
}

// DecodablePtr constrains P to be *T implementing Decodable.
type DecodablePtr[T any] interface {
	*T
	Decodable
}

// Sized is implemented by fixed-size types and reports their encoded size.
// It is used to pre-size buffers and to bound sequence lengths.
type Sized interface {
	EncodedSize() int
}

// Encode returns the SCALE encoding of v.
func Encode[T Encodable](v T) []byte {
	e := NewEncoder(sizeHint(v))
	v.EncodeTo(e)
	return e.Bytes()
}

// Decode decodes one T from the front of b and returns the unconsumed rest.
// No partial value is returned on error.
func Decode[T any, P DecodablePtr[T]](b []byte) (T, []byte, error) {
	var v T
	d := NewDecoder(b)
	if err := P(&v).DecodeFrom(d); err != nil {
		var zero T
		return zero, nil, err
	}
	return v, d.Remaining(), nil
}

// DecodeExact decodes exactly one T from b and fails with ErrTrailingBytes
// if anything is left over.
func DecodeExact[T any, P DecodablePtr[T]](b []byte) (T, error) {
	var v T
	d := NewDecoder(b)
	if err := P(&v).DecodeFrom(d); err != nil {
		var zero T
		return zero, err
	}
	if err := d.Finish(typeName(v)); err != nil {
		var zero T
		return zero, err
	}
	return v, nil
}

// EncodeVec writes a Vec<T>: compact length then each element.
func EncodeVec[T Encodable](e *Encoder, items []T) {
	e.WriteCompact(uint64(len(items)))
	for _, it := range items {
		it.EncodeTo(e)
	}
}

// DecodeVec reads a Vec<T> whose elements are at least minElemSize bytes.
// An empty sequence decodes to nil.
func DecodeVec[T any, P DecodablePtr[T]](d *Decoder, op string, minElemSize int) ([]T, error) {
	n, err := d.ReadLen(op, minElemSize)
	if err != nil || n == 0 {
		return nil, err
	}
	out := make([]T, n)
	for i := range out {
		if err := P(&out[i]).DecodeFrom(d); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func sizeHint(v any) int {
	if s, ok := v.(Sized); ok {
		return s.EncodedSize()
	}
	return 64
}

func typeName(v any) string {
	if n, ok := v.(interface{ TypeName() string }); ok {
		return n.TypeName()
	}
	return "value"
}
