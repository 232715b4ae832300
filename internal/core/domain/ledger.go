package domain

import (
	"encoding/json"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/yndnr/ledgersnap/pkg/scale"
)

// Encoded sizes of the fixed-size ledger records.
const (
	AssetSize             = 32 + 16
	UtxoSize              = 1 + AssetSize + 32
	IncomingNoteSize      = 32 + 32 + 3*32
	LightIncomingNoteSize = 32 + 3*32
	FullIncomingNoteSize  = 1 + IncomingNoteSize + LightIncomingNoteSize
	OutgoingNoteSize      = 32 + 2*32
	ReceiverSize          = UtxoSize + FullIncomingNoteSize
	VoidNumberSize        = 32
	SenderSize            = VoidNumberSize + OutgoingNoteSize
)

// Asset is an asset id and a little-endian u128 value.
type Asset struct {
	ID    [32]byte `json:"id"`
	Value [16]byte `json:"value"`
}

// NewAsset builds an Asset, rejecting id/value slices of the wrong length.
func NewAsset(id, value []byte) (Asset, error) {
	var a Asset
	if err := copyFixed("asset.id", a.ID[:], id); err != nil {
		return Asset{}, err
	}
	if err := copyFixed("asset.value", a.Value[:], value); err != nil {
		return Asset{}, err
	}
	return a, nil
}

// Amount returns the asset value as an integer.
func (a Asset) Amount() *uint256.Int {
	return U128(a.Value)
}

// TypeName names Asset in decode errors.
func (Asset) TypeName() string { return "Asset" }

// EncodedSize is the fixed size of an encoded Asset.
func (Asset) EncodedSize() int { return AssetSize }

// EncodeTo writes the id then the little-endian value.
func (a Asset) EncodeTo(e *scale.Encoder) {
	e.WriteFixed(a.ID[:])
	e.WriteFixed(a.Value[:])
}

// DecodeFrom reads an Asset.
func (a *Asset) DecodeFrom(d *scale.Decoder) error {
	if err := d.ReadFixed("Asset.id", a.ID[:]); err != nil {
		return err
	}
	return d.ReadFixed("Asset.value", a.Value[:])
}

// Utxo is an unspent output: transparency flag, public asset and commitment.
type Utxo struct {
	IsTransparent bool     `json:"is_transparent"`
	PublicAsset   Asset    `json:"public_asset"`
	Commitment    [32]byte `json:"commitment"`
}

// NewUtxo builds a Utxo, rejecting a commitment of the wrong length.
func NewUtxo(isTransparent bool, asset Asset, commitment []byte) (Utxo, error) {
	u := Utxo{IsTransparent: isTransparent, PublicAsset: asset}
	if err := copyFixed("utxo.commitment", u.Commitment[:], commitment); err != nil {
		return Utxo{}, err
	}
	return u, nil
}

// TypeName names Utxo in decode errors.
func (Utxo) TypeName() string { return "Utxo" }

// EncodedSize is the fixed size of an encoded Utxo.
func (Utxo) EncodedSize() int { return UtxoSize }

// EncodeTo writes the utxo fields in declaration order.
func (u Utxo) EncodeTo(e *scale.Encoder) {
	e.WriteBool(u.IsTransparent)
	u.PublicAsset.EncodeTo(e)
	e.WriteFixed(u.Commitment[:])
}

// DecodeFrom reads a Utxo.
func (u *Utxo) DecodeFrom(d *scale.Decoder) error {
	var err error
	if u.IsTransparent, err = d.ReadBool(); err != nil {
		return err
	}
	if err = u.PublicAsset.DecodeFrom(d); err != nil {
		return err
	}
	return d.ReadFixed("Utxo.commitment", u.Commitment[:])
}

// IncomingNote is the encrypted note addressed to a receiver.
type IncomingNote struct {
	EphemeralPublicKey [32]byte    `json:"ephemeral_public_key"`
	Tag                [32]byte    `json:"tag"`
	Ciphertext         [3][32]byte `json:"ciphertext"`
}

// TypeName names IncomingNote in decode errors.
func (IncomingNote) TypeName() string { return "IncomingNote" }

// EncodedSize is the fixed size of an encoded IncomingNote.
func (IncomingNote) EncodedSize() int { return IncomingNoteSize }

// EncodeTo writes the ephemeral key, tag and ciphertext.
func (n IncomingNote) EncodeTo(e *scale.Encoder) {
	e.WriteFixed(n.EphemeralPublicKey[:])
	e.WriteFixed(n.Tag[:])
	for i := range n.Ciphertext {
		e.WriteFixed(n.Ciphertext[i][:])
	}
}

// DecodeFrom reads an IncomingNote.
func (n *IncomingNote) DecodeFrom(d *scale.Decoder) error {
	if err := d.ReadFixed("IncomingNote.ephemeral_public_key", n.EphemeralPublicKey[:]); err != nil {
		return err
	}
	if err := d.ReadFixed("IncomingNote.tag", n.Tag[:]); err != nil {
		return err
	}
	for i := range n.Ciphertext {
		if err := d.ReadFixed("IncomingNote.ciphertext", n.Ciphertext[i][:]); err != nil {
			return err
		}
	}
	return nil
}

// LightIncomingNote is the light-client copy of an incoming note.
type LightIncomingNote struct {
	EphemeralPublicKey [32]byte    `json:"ephemeral_public_key"`
	Ciphertext         [3][32]byte `json:"ciphertext"`
}

// TypeName names LightIncomingNote in decode errors.
func (LightIncomingNote) TypeName() string { return "LightIncomingNote" }

// EncodedSize is the fixed size of an encoded LightIncomingNote.
func (LightIncomingNote) EncodedSize() int { return LightIncomingNoteSize }

// EncodeTo writes the light note fields in declaration order.
func (n LightIncomingNote) EncodeTo(e *scale.Encoder) {
	e.WriteFixed(n.EphemeralPublicKey[:])
	for i := range n.Ciphertext {
		e.WriteFixed(n.Ciphertext[i][:])
	}
}

// DecodeFrom reads a LightIncomingNote.
func (n *LightIncomingNote) DecodeFrom(d *scale.Decoder) error {
	if err := d.ReadFixed("LightIncomingNote.ephemeral_public_key", n.EphemeralPublicKey[:]); err != nil {
		return err
	}
	for i := range n.Ciphertext {
		if err := d.ReadFixed("LightIncomingNote.ciphertext", n.Ciphertext[i][:]); err != nil {
			return err
		}
	}
	return nil
}

// FullIncomingNote carries both note forms; AddressPartition selects the shard.
type FullIncomingNote struct {
	AddressPartition  uint8             `json:"address_partition"`
	IncomingNote      IncomingNote      `json:"incoming_note"`
	LightIncomingNote LightIncomingNote `json:"light_incoming_note"`
}

// TypeName names FullIncomingNote in decode errors.
func (FullIncomingNote) TypeName() string { return "FullIncomingNote" }

// EncodedSize is the fixed size of an encoded FullIncomingNote.
func (FullIncomingNote) EncodedSize() int { return FullIncomingNoteSize }

// EncodeTo writes the address partition followed by both notes.
func (n FullIncomingNote) EncodeTo(e *scale.Encoder) {
	e.WriteU8(n.AddressPartition)
	n.IncomingNote.EncodeTo(e)
	n.LightIncomingNote.EncodeTo(e)
}

// DecodeFrom reads a FullIncomingNote.
func (n *FullIncomingNote) DecodeFrom(d *scale.Decoder) error {
	var err error
	if n.AddressPartition, err = d.ReadU8(); err != nil {
		return err
	}
	if err = n.IncomingNote.DecodeFrom(d); err != nil {
		return err
	}
	return n.LightIncomingNote.DecodeFrom(d)
}

// OutgoingNote is the encrypted note kept by the sender.
type OutgoingNote struct {
	EphemeralPublicKey [32]byte    `json:"ephemeral_public_key"`
	Ciphertext         [2][32]byte `json:"ciphertext"`
}

// TypeName names OutgoingNote in decode errors.
func (OutgoingNote) TypeName() string { return "OutgoingNote" }

// EncodedSize is the fixed size of an encoded OutgoingNote.
func (OutgoingNote) EncodedSize() int { return OutgoingNoteSize }

// EncodeTo writes the ephemeral key then the ciphertext.
func (n OutgoingNote) EncodeTo(e *scale.Encoder) {
	e.WriteFixed(n.EphemeralPublicKey[:])
	for i := range n.Ciphertext {
		e.WriteFixed(n.Ciphertext[i][:])
	}
}

// DecodeFrom reads an OutgoingNote.
func (n *OutgoingNote) DecodeFrom(d *scale.Decoder) error {
	if err := d.ReadFixed("OutgoingNote.ephemeral_public_key", n.EphemeralPublicKey[:]); err != nil {
		return err
	}
	for i := range n.Ciphertext {
		if err := d.ReadFixed("OutgoingNote.ciphertext", n.Ciphertext[i][:]); err != nil {
			return err
		}
	}
	return nil
}

// Receiver is the (Utxo, FullIncomingNote) pair returned by a ledger diff.
// It encodes as a tuple and renders in JSON as a two-element array.
type Receiver struct {
	Utxo Utxo
	Note FullIncomingNote
}

// Shard returns the shard the receiver belongs to.
func (r Receiver) Shard() uint8 {
	return r.Note.AddressPartition
}

// TypeName names Receiver in decode errors.
func (Receiver) TypeName() string { return "Receiver" }

// EncodedSize is ReceiverSize; every receiver encodes to the same length.
func (Receiver) EncodedSize() int { return ReceiverSize }

// EncodeTo writes the (Utxo, FullIncomingNote) tuple.
func (r Receiver) EncodeTo(e *scale.Encoder) {
	r.Utxo.EncodeTo(e)
	r.Note.EncodeTo(e)
}

// DecodeFrom reads the tuple written by EncodeTo.
func (r *Receiver) DecodeFrom(d *scale.Decoder) error {
	if err := r.Utxo.DecodeFrom(d); err != nil {
		return err
	}
	return r.Note.DecodeFrom(d)
}

// MarshalJSON renders r as [utxo, note].
func (r Receiver) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{r.Utxo, r.Note})
}

// UnmarshalJSON accepts the [utxo, note] form of MarshalJSON.
func (r *Receiver) UnmarshalJSON(b []byte) error {
	var parts [2]json.RawMessage
	if err := json.Unmarshal(b, &parts); err != nil {
		return fmt.Errorf("receiver: %w", err)
	}
	if err := json.Unmarshal(parts[0], &r.Utxo); err != nil {
		return fmt.Errorf("receiver utxo: %w", err)
	}
	if err := json.Unmarshal(parts[1], &r.Note); err != nil {
		return fmt.Errorf("receiver note: %w", err)
	}
	return nil
}

// Sender is the (void number, OutgoingNote) pair returned by a ledger diff.
type Sender struct {
	VoidNumber [32]byte
	Note       OutgoingNote
}

// NewSender builds a Sender, rejecting a void number of the wrong length.
func NewSender(voidNumber []byte, note OutgoingNote) (Sender, error) {
	s := Sender{Note: note}
	if err := copyFixed("sender.void_number", s.VoidNumber[:], voidNumber); err != nil {
		return Sender{}, err
	}
	return s, nil
}

// TypeName names Sender in decode errors.
func (Sender) TypeName() string { return "Sender" }

// EncodedSize is SenderSize.
func (Sender) EncodedSize() int { return SenderSize }

// EncodeTo writes the void number then the outgoing note.
func (s Sender) EncodeTo(e *scale.Encoder) {
	e.WriteFixed(s.VoidNumber[:])
	s.Note.EncodeTo(e)
}

// DecodeFrom reads the tuple written by EncodeTo.
func (s *Sender) DecodeFrom(d *scale.Decoder) error {
	if err := d.ReadFixed("Sender.void_number", s.VoidNumber[:]); err != nil {
		return err
	}
	return s.Note.DecodeFrom(d)
}

// MarshalJSON renders s as [void_number, note].
func (s Sender) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{s.VoidNumber, s.Note})
}

// UnmarshalJSON accepts the [void_number, note] form of MarshalJSON.
func (s *Sender) UnmarshalJSON(b []byte) error {
	var parts [2]json.RawMessage
	if err := json.Unmarshal(b, &parts); err != nil {
		return fmt.Errorf("sender: %w", err)
	}
	if err := json.Unmarshal(parts[0], &s.VoidNumber); err != nil {
		return fmt.Errorf("sender void number: %w", err)
	}
	if err := json.Unmarshal(parts[1], &s.Note); err != nil {
		return fmt.Errorf("sender note: %w", err)
	}
	return nil
}

// U128 interprets a little-endian u128.
func U128(le [16]byte) *uint256.Int {
	var be [16]byte
	for i := range le {
		be[15-i] = le[i]
	}
	return new(uint256.Int).SetBytes(be[:])
}

// PutU128 writes v as a little-endian u128. Bits above 128 are dropped.
func PutU128(v *uint256.Int) [16]byte {
	be := v.Bytes32()
	var le [16]byte
	for i := range le {
		le[i] = be[31-i]
	}
	return le
}

func copyFixed(field string, dst, src []byte) error {
	if len(src) != len(dst) {
		return ErrInvalidLength.WithDetailsf("%s: got %d bytes, want %d", field, len(src), len(dst))
	}
	copy(dst, src)
	return nil
}
