package snapshot

import (
	"github.com/yndnr/ledgersnap/internal/core/domain"
	"github.com/yndnr/ledgersnap/pkg/scale"
)

// Entry is one storage key and its value at the snapshot block. A nil
// Value means the node had no value for the key.
type Entry struct {
	Key   domain.StorageKey
	Value []byte
}

// Missing reports whether the key had no value.
func (e Entry) Missing() bool { return e.Value == nil }

func (Entry) TypeName() string { return "SnapshotEntry" }

// EncodeTo writes (Vec<u8>, Option<Vec<u8>>).
func (e Entry) EncodeTo(enc *scale.Encoder) {
	enc.WriteBytes(e.Key)
	enc.WriteOption(e.Value != nil)
	if e.Value != nil {
		enc.WriteBytes(e.Value)
	}
}

func (e *Entry) DecodeFrom(d *scale.Decoder) error {
	key, err := d.ReadBytes()
	if err != nil {
		return err
	}
	present, err := d.ReadOption()
	if err != nil {
		return err
	}
	var value []byte
	if present {
		if value, err = d.ReadBytes(); err != nil {
			return err
		}
		if value == nil {
			value = []byte{}
		}
	}
	*e = Entry{Key: key, Value: value}
	return nil
}

// entryMinSize is the smallest encoded entry: an empty key and None.
const entryMinSize = 2

// Entries pairs keys with fetched values.
func Entries(keys []domain.StorageKey, values [][]byte) []Entry {
	out := make([]Entry, len(keys))
	for i, k := range keys {
		out[i] = Entry{Key: k}
		if i < len(values) {
			out[i].Value = values[i]
		}
	}
	return out
}

func encodeEntries(entries []Entry) []byte {
	size := 1
	for _, e := range entries {
		size += len(e.Key) + len(e.Value) + 10
	}
	enc := scale.NewEncoder(size)
	scale.EncodeVec(enc, entries)
	return enc.Bytes()
}

func decodeEntries(b []byte) ([]Entry, error) {
	d := scale.NewDecoder(b)
	entries, err := scale.DecodeVec[Entry](d, "Vec<SnapshotEntry>", entryMinSize)
	if err != nil {
		return nil, err
	}
	if err := d.Finish("Vec<SnapshotEntry>"); err != nil {
		return nil, err
	}
	return entries, nil
}
