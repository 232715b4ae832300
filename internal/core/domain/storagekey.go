package domain

import (
	"encoding/binary"
	"encoding/json"
	"io"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"golang.org/x/crypto/blake2b"
)

// StorageKey is an opaque address in the node's key-value store.
type StorageKey []byte

// ParseStorageKey parses a 0x-prefixed hex key.
func ParseStorageKey(s string) (StorageKey, error) {
	b, err := hexutil.Decode(strings.TrimSpace(s))
	if err != nil {
		return nil, ErrInvalidStorageKey.WithDetails(s).WithCause(err)
	}
	return StorageKey(b), nil
}

// String returns the 0x-hex form.
func (k StorageKey) String() string {
	return hexutil.Encode(k)
}

// HasPrefix reports whether k starts with prefix.
func (k StorageKey) HasPrefix(prefix StorageKey) bool {
	return len(k) >= len(prefix) && string(k[:len(prefix)]) == string(prefix)
}

func (k StorageKey) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

func (k StorageKey) MarshalYAML() (any, error) {
	return k.String(), nil
}

func (k *StorageKey) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return ErrInvalidStorageKey.WithCause(err)
	}
	parsed, err := ParseStorageKey(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// KeyGroup names one of the three storage areas a snapshot extracts.
type KeyGroup string

const (
	GroupShards      KeyGroup = "shards"
	GroupShardTrees  KeyGroup = "shard_trees"
	GroupVoidNumbers KeyGroup = "void_number_set_insertion_order"
)

// KeyGroups lists the groups in extraction order.
func KeyGroups() []KeyGroup {
	return []KeyGroup{GroupShards, GroupShardTrees, GroupVoidNumbers}
}

// ParseKeyGroup validates a group name.
func ParseKeyGroup(s string) (KeyGroup, error) {
	for _, g := range KeyGroups() {
		if string(g) == s {
			return g, nil
		}
	}
	return "", ErrUnknownKeyGroup.WithDetails(s)
}

// StorageItem returns the pallet storage item holding the group.
func (g KeyGroup) StorageItem() string {
	switch g {
	case GroupShards:
		return "Shards"
	case GroupShardTrees:
		return "ShardTrees"
	case GroupVoidNumbers:
		return "VoidNumberSetInsertionOrder"
	default:
		return ""
	}
}

// ExportName is the JSON export file name used for the group.
func (g KeyGroup) ExportName() string {
	if g == GroupShardTrees {
		return "shards_trees.json"
	}
	return string(g) + ".json"
}

// DefaultPallet is the pallet that owns the shielded-pool storage.
const DefaultPallet = "MantaPay"

// KeyListing holds the ordered keys of each group.
type KeyListing struct {
	Shards      []StorageKey `json:"shards"`
	ShardTrees  []StorageKey `json:"shard_trees"`
	VoidNumbers []StorageKey `json:"void_number_set_insertion_order"`
}

// Keys returns the keys of one group.
func (l *KeyListing) Keys(g KeyGroup) []StorageKey {
	switch g {
	case GroupShards:
		return l.Shards
	case GroupShardTrees:
		return l.ShardTrees
	case GroupVoidNumbers:
		return l.VoidNumbers
	default:
		return nil
	}
}

// Set replaces the keys of one group.
func (l *KeyListing) Set(g KeyGroup, keys []StorageKey) error {
	switch g {
	case GroupShards:
		l.Shards = keys
	case GroupShardTrees:
		l.ShardTrees = keys
	case GroupVoidNumbers:
		l.VoidNumbers = keys
	default:
		return ErrUnknownKeyGroup.WithDetails(string(g))
	}
	return nil
}

// Len returns the total number of keys.
func (l *KeyListing) Len() int {
	return len(l.Shards) + len(l.ShardTrees) + len(l.VoidNumbers)
}

// ReadKeyListing decodes a JSON key listing.
func ReadKeyListing(r io.Reader) (*KeyListing, error) {
	var l KeyListing
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&l); err != nil {
		return nil, ErrKeyListing.WithCause(err)
	}
	return &l, nil
}

// Hasher is a storage map key hasher.
type Hasher string

const (
	HasherIdentity         Hasher = "identity"
	HasherTwox64Concat     Hasher = "twox64concat"
	HasherBlake2_128Concat Hasher = "blake2_128concat"
)

// Hash applies h to an encoded map key.
func (h Hasher) Hash(key []byte) ([]byte, error) {
	switch h {
	case HasherIdentity:
		return append([]byte(nil), key...), nil
	case HasherTwox64Concat:
		out := binary.LittleEndian.AppendUint64(nil, xxhash.Sum64(key))
		return append(out, key...), nil
	case HasherBlake2_128Concat:
		d, err := blake2b.New(16, nil)
		if err != nil {
			return nil, err
		}
		d.Write(key)
		return append(d.Sum(nil), key...), nil
	default:
		return nil, ErrUnknownHasher.WithDetails(string(h))
	}
}

// Twox128 is the 128-bit xxhash used for storage prefixes: two 64-bit
// xxhash digests with seeds 0 and 1, little-endian.
func Twox128(data []byte) []byte {
	out := make([]byte, 0, 16)
	for seed := uint64(0); seed < 2; seed++ {
		h := xxhash.NewWithSeed(seed)
		h.Write(data)
		out = binary.LittleEndian.AppendUint64(out, h.Sum64())
	}
	return out
}

// StoragePrefix returns twox128(pallet) ++ twox128(item).
func StoragePrefix(pallet, item string) StorageKey {
	return StorageKey(append(Twox128([]byte(pallet)), Twox128([]byte(item))...))
}

// MapKey returns the full key of one map entry under prefix.
func MapKey(prefix StorageKey, h Hasher, key []byte) (StorageKey, error) {
	hashed, err := h.Hash(key)
	if err != nil {
		return nil, err
	}
	out := make(StorageKey, 0, len(prefix)+len(hashed))
	out = append(out, prefix...)
	return append(out, hashed...), nil
}
