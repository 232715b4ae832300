package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"math/rand"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/yndnr/ledgersnap/pkg/scale"
)

func fill(rng *rand.Rand, b []byte) {
	rng.Read(b)
}

func randomAsset(rng *rand.Rand) Asset {
	var a Asset
	fill(rng, a.ID[:])
	fill(rng, a.Value[:])
	return a
}

func randomReceiver(rng *rand.Rand) Receiver {
	var r Receiver
	r.Utxo.IsTransparent = rng.Intn(2) == 1
	r.Utxo.PublicAsset = randomAsset(rng)
	fill(rng, r.Utxo.Commitment[:])
	r.Note.AddressPartition = uint8(rng.Intn(256))
	fill(rng, r.Note.IncomingNote.EphemeralPublicKey[:])
	fill(rng, r.Note.IncomingNote.Tag[:])
	for i := range r.Note.IncomingNote.Ciphertext {
		fill(rng, r.Note.IncomingNote.Ciphertext[i][:])
	}
	fill(rng, r.Note.LightIncomingNote.EphemeralPublicKey[:])
	for i := range r.Note.LightIncomingNote.Ciphertext {
		fill(rng, r.Note.LightIncomingNote.Ciphertext[i][:])
	}
	return r
}

func randomSender(rng *rand.Rand) Sender {
	var s Sender
	fill(rng, s.VoidNumber[:])
	fill(rng, s.Note.EphemeralPublicKey[:])
	for i := range s.Note.Ciphertext {
		fill(rng, s.Note.Ciphertext[i][:])
	}
	return s
}

func randomCheckpoint(rng *rand.Rand) Checkpoint {
	var c Checkpoint
	for i := range c.ReceiverIndex {
		c.ReceiverIndex[i] = rng.Uint64() >> uint(rng.Intn(64))
	}
	c.SenderIndex = rng.Uint64()
	return c
}

// checkCodec runs the round-trip, truncation and trailing-byte properties for v.
func checkCodec[T any, P scale.DecodablePtr[T]](t *testing.T, v T, encoded []byte, wantSize int) {
	t.Helper()

	if wantSize > 0 {
		require.Len(t, encoded, wantSize)
	}

	got, err := scale.DecodeExact[T, P](encoded)
	require.NoError(t, err)
	require.Equal(t, v, got)

	for cut := 1; cut <= len(encoded); cut++ {
		_, err := scale.DecodeExact[T, P](encoded[:len(encoded)-cut])
		require.ErrorIs(t, err, scale.ErrTruncatedInput, "truncated by %d", cut)
	}

	for _, extra := range []byte{0x00, 0x01, 0xff} {
		_, err := scale.DecodeExact[T, P](append(bytes.Clone(encoded), extra))
		require.ErrorIs(t, err, scale.ErrTrailingBytes)
		require.Equal(t, len(encoded), scale.Offset(err))
	}

	rest := []byte{0xaa, 0xbb}
	decoded, remainder, err := scale.Decode[T, P](append(bytes.Clone(encoded), rest...))
	require.NoError(t, err)
	require.Equal(t, v, decoded)
	require.Equal(t, rest, remainder)
}

func TestRecords_CodecProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	for i := 0; i < 5; i++ {
		r := randomReceiver(rng)
		s := randomSender(rng)
		cp := randomCheckpoint(rng)

		checkCodec[Asset](t, r.Utxo.PublicAsset, scale.Encode(r.Utxo.PublicAsset), AssetSize)
		checkCodec[Utxo](t, r.Utxo, scale.Encode(r.Utxo), UtxoSize)
		checkCodec[IncomingNote](t, r.Note.IncomingNote, scale.Encode(r.Note.IncomingNote), IncomingNoteSize)
		checkCodec[LightIncomingNote](t, r.Note.LightIncomingNote, scale.Encode(r.Note.LightIncomingNote), LightIncomingNoteSize)
		checkCodec[FullIncomingNote](t, r.Note, scale.Encode(r.Note), FullIncomingNoteSize)
		checkCodec[OutgoingNote](t, s.Note, scale.Encode(s.Note), OutgoingNoteSize)
		checkCodec[Receiver](t, r, scale.Encode(r), ReceiverSize)
		checkCodec[Sender](t, s, scale.Encode(s), SenderSize)
		checkCodec[Checkpoint](t, cp, scale.Encode(cp), CheckpointSize)
	}
}

func TestRecords_Sizes(t *testing.T) {
	require.Equal(t, 48, AssetSize)
	require.Equal(t, 81, UtxoSize)
	require.Equal(t, 160, IncomingNoteSize)
	require.Equal(t, 128, LightIncomingNoteSize)
	require.Equal(t, 289, FullIncomingNoteSize)
	require.Equal(t, 96, OutgoingNoteSize)
	require.Equal(t, 370, ReceiverSize)
	require.Equal(t, 128, SenderSize)
	require.Equal(t, 2056, CheckpointSize)
}

func TestAsset_ZeroEncodesTo48Bytes(t *testing.T) {
	a, err := NewAsset(make([]byte, 32), make([]byte, 16))
	require.NoError(t, err)

	b := scale.Encode(a)
	require.Len(t, b, 48)
	require.Equal(t, make([]byte, 48), b)
}

func TestNewAsset_RejectsWrongLengths(t *testing.T) {
	tests := []struct {
		name      string
		id, value []byte
	}{
		{"short id", make([]byte, 31), make([]byte, 16)},
		{"long id", make([]byte, 33), make([]byte, 16)},
		{"short value", make([]byte, 32), make([]byte, 15)},
		{"long value", make([]byte, 32), make([]byte, 17)},
		{"nil id", nil, make([]byte, 16)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewAsset(tt.id, tt.value)
			require.ErrorIs(t, err, ErrInvalidLength)
		})
	}
}

func TestNewUtxoAndSender_RejectWrongLengths(t *testing.T) {
	_, err := NewUtxo(false, Asset{}, make([]byte, 31))
	require.ErrorIs(t, err, ErrInvalidLength)

	_, err = NewSender(make([]byte, 64), OutgoingNote{})
	require.ErrorIs(t, err, ErrInvalidLength)

	s, err := NewSender(bytes.Repeat([]byte{7}, 32), OutgoingNote{})
	require.NoError(t, err)
	require.Equal(t, byte(7), s.VoidNumber[31])
}

func TestUtxo_Layout(t *testing.T) {
	u := Utxo{IsTransparent: true}
	u.PublicAsset.ID[0] = 0x11
	u.PublicAsset.Value[0] = 0x22
	u.Commitment[31] = 0x33

	b := scale.Encode(u)
	require.Equal(t, byte(1), b[0])
	require.Equal(t, byte(0x11), b[1])
	require.Equal(t, byte(0x22), b[1+32])
	require.Equal(t, byte(0x33), b[UtxoSize-1])
}

func TestUtxo_RejectsInvalidBool(t *testing.T) {
	b := scale.Encode(Utxo{})
	b[0] = 2

	_, err := scale.DecodeExact[Utxo](b)
	require.ErrorIs(t, err, scale.ErrInvalidDiscriminant)
	require.Equal(t, 0, scale.Offset(err))
}

func TestAsset_Amount(t *testing.T) {
	var a Asset
	a.Value[0] = 0x10
	a.Value[1] = 0x27
	require.Equal(t, uint64(10000), a.Amount().Uint64())

	limit := new(uint256.Int).Lsh(uint256.NewInt(1), 128)
	limit.SubUint64(limit, 1)
	a.Value = PutU128(limit)
	require.Equal(t, limit, a.Amount())
	for _, b := range a.Value {
		require.Equal(t, byte(0xff), b)
	}
}

func TestReceiverSender_JSONTuples(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	r := randomReceiver(rng)
	s := randomSender(rng)

	b, err := json.Marshal(r)
	require.NoError(t, err)
	var parts []json.RawMessage
	require.NoError(t, json.Unmarshal(b, &parts))
	require.Len(t, parts, 2)

	var r2 Receiver
	require.NoError(t, json.Unmarshal(b, &r2))
	require.Equal(t, r, r2)

	b, err = json.Marshal(s)
	require.NoError(t, err)
	var s2 Sender
	require.NoError(t, json.Unmarshal(b, &s2))
	require.Equal(t, s, s2)

	require.Error(t, json.Unmarshal([]byte(`{"utxo":{}}`), &r2))
}

func TestDecodeError_CarriesField(t *testing.T) {
	b := scale.Encode(Sender{})
	_, err := scale.DecodeExact[Sender](b[:40])

	var de *scale.DecodeError
	require.True(t, errors.As(err, &de))
	require.Equal(t, "OutgoingNote.ephemeral_public_key", de.Op)
	require.Equal(t, 32, de.Offset)
}
