package domain

import (
	"encoding/base64"

	"github.com/holiman/uint256"

	"github.com/yndnr/ledgersnap/pkg/scale"
)

// PullRequest is the argument tuple of a ledger diff pull.
type PullRequest struct {
	Checkpoint   Checkpoint
	MaxReceivers uint64
	MaxSenders   uint64
}

// TypeName names PullRequest in decode errors.
func (PullRequest) TypeName() string { return "PullRequest" }

// EncodedSize is a checkpoint plus two u64 limits.
func (PullRequest) EncodedSize() int { return CheckpointSize + 16 }

// EncodeTo writes the request as the node expects its arguments.
func (r PullRequest) EncodeTo(e *scale.Encoder) {
	r.Checkpoint.EncodeTo(e)
	e.WriteU64(r.MaxReceivers)
	e.WriteU64(r.MaxSenders)
}

// DecodeFrom reads a PullRequest.
func (r *PullRequest) DecodeFrom(d *scale.Decoder) error {
	if err := r.Checkpoint.DecodeFrom(d); err != nil {
		return err
	}
	var err error
	if r.MaxReceivers, err = d.ReadU64(); err != nil {
		return err
	}
	r.MaxSenders, err = d.ReadU64()
	return err
}

// PullResponse is the sparse diff response: records decoded inline and no
// next checkpoint.
type PullResponse struct {
	ShouldContinue        bool       `json:"should_continue"`
	Receivers             []Receiver `json:"receivers"`
	Senders               []Sender   `json:"senders"`
	SendersReceiversTotal [16]byte   `json:"senders_receivers_total"`
}

// TypeName names PullResponse in decode errors.
func (PullResponse) TypeName() string { return "PullResponse" }

// EncodedSize is the exact encoded length of p.
func (p PullResponse) EncodedSize() int {
	return 1 +
		scale.CompactLen(uint64(len(p.Receivers))) + len(p.Receivers)*ReceiverSize +
		scale.CompactLen(uint64(len(p.Senders))) + len(p.Senders)*SenderSize +
		16
}

// EncodeTo writes the flag, both record vectors and the total.
func (p PullResponse) EncodeTo(e *scale.Encoder) {
	e.WriteBool(p.ShouldContinue)
	scale.EncodeVec(e, p.Receivers)
	scale.EncodeVec(e, p.Senders)
	e.WriteFixed(p.SendersReceiversTotal[:])
}

// DecodeFrom reads a PullResponse. Vector lengths are checked against
// the remaining input before any record is allocated.
func (p *PullResponse) DecodeFrom(d *scale.Decoder) error {
	var err error
	if p.ShouldContinue, err = d.ReadBool(); err != nil {
		return err
	}
	if p.Receivers, err = scale.DecodeVec[Receiver](d, "Vec<Receiver>", ReceiverSize); err != nil {
		return err
	}
	if p.Senders, err = scale.DecodeVec[Sender](d, "Vec<Sender>", SenderSize); err != nil {
		return err
	}
	return d.ReadFixed("PullResponse.senders_receivers_total", p.SendersReceiversTotal[:])
}

// Round converts the response into a round without a next checkpoint.
func (p *PullResponse) Round() *Round {
	return &Round{
		ShouldContinue: p.ShouldContinue,
		Receivers:      p.Receivers,
		Senders:        p.Senders,
		Total:          p.SendersReceiversTotal,
	}
}

// DenseResponse is the dense diff response. Receivers and Senders hold the
// base64 text of the encoded Vec<Receiver> and Vec<Sender>.
type DenseResponse struct {
	ShouldContinue        bool        `json:"should_continue"`
	Receivers             string      `json:"receivers"`
	Senders               string      `json:"senders"`
	SendersReceiversTotal [16]byte    `json:"senders_receivers_total"`
	NextCheckpoint        *Checkpoint `json:"next_checkpoint"`
}

// TypeName names DenseResponse in decode errors.
func (DenseResponse) TypeName() string { return "DenseResponse" }

// EncodedSize is the exact encoded length of p, including the optional
// next checkpoint.
func (p DenseResponse) EncodedSize() int {
	n := 1 +
		scale.CompactLen(uint64(len(p.Receivers))) + len(p.Receivers) +
		scale.CompactLen(uint64(len(p.Senders))) + len(p.Senders) +
		16 + 1
	if p.NextCheckpoint != nil {
		n += CheckpointSize
	}
	return n
}

// EncodeTo writes the flag, the two base64 payloads as strings, the
// total and the optional next checkpoint.
func (p DenseResponse) EncodeTo(e *scale.Encoder) {
	e.WriteBool(p.ShouldContinue)
	e.WriteString(p.Receivers)
	e.WriteString(p.Senders)
	e.WriteFixed(p.SendersReceiversTotal[:])
	e.WriteOption(p.NextCheckpoint != nil)
	if p.NextCheckpoint != nil {
		p.NextCheckpoint.EncodeTo(e)
	}
}

// DecodeFrom reads a DenseResponse. The payloads stay base64; see
// DecodeReceivers and DecodeSenders.
func (p *DenseResponse) DecodeFrom(d *scale.Decoder) error {
	var err error
	if p.ShouldContinue, err = d.ReadBool(); err != nil {
		return err
	}
	if p.Receivers, err = d.ReadString(); err != nil {
		return err
	}
	if p.Senders, err = d.ReadString(); err != nil {
		return err
	}
	if err = d.ReadFixed("DenseResponse.senders_receivers_total", p.SendersReceiversTotal[:]); err != nil {
		return err
	}
	present, err := d.ReadOption()
	if err != nil {
		return err
	}
	p.NextCheckpoint = nil
	if present {
		var cp Checkpoint
		if err := cp.DecodeFrom(d); err != nil {
			return err
		}
		p.NextCheckpoint = &cp
	}
	return nil
}

// Round decodes the dense payloads into a round. Either both payloads decode
// exactly or no round is returned.
func (p *DenseResponse) Round() (*Round, error) {
	receivers, err := DecodeReceivers(p.Receivers)
	if err != nil {
		return nil, err
	}
	senders, err := DecodeSenders(p.Senders)
	if err != nil {
		return nil, err
	}
	r := &Round{
		ShouldContinue: p.ShouldContinue,
		Receivers:      receivers,
		Senders:        senders,
		Total:          p.SendersReceiversTotal,
	}
	if p.NextCheckpoint != nil {
		next := *p.NextCheckpoint
		r.Next = &next
	}
	return r, nil
}

// NewDenseResponse encodes a round in dense form.
func NewDenseResponse(r *Round) *DenseResponse {
	return &DenseResponse{
		ShouldContinue:        r.ShouldContinue,
		Receivers:             EncodeReceivers(r.Receivers),
		Senders:               EncodeSenders(r.Senders),
		SendersReceiversTotal: r.Total,
		NextCheckpoint:        r.Next,
	}
}

// EncodeReceivers returns the dense payload text for receivers.
func EncodeReceivers(rs []Receiver) string {
	e := scale.NewEncoder(scale.CompactLen(uint64(len(rs))) + len(rs)*ReceiverSize)
	scale.EncodeVec(e, rs)
	return base64.StdEncoding.EncodeToString(e.Bytes())
}

// EncodeSenders returns the dense payload text for senders.
func EncodeSenders(ss []Sender) string {
	e := scale.NewEncoder(scale.CompactLen(uint64(len(ss))) + len(ss)*SenderSize)
	scale.EncodeVec(e, ss)
	return base64.StdEncoding.EncodeToString(e.Bytes())
}

// DecodeReceivers decodes a dense receivers payload.
func DecodeReceivers(payload string) ([]Receiver, error) {
	return decodePayload[Receiver]("receivers", "Vec<Receiver>", payload, ReceiverSize)
}

// DecodeSenders decodes a dense senders payload.
func DecodeSenders(payload string) ([]Sender, error) {
	return decodePayload[Sender]("senders", "Vec<Sender>", payload, SenderSize)
}

func decodePayload[T any, P scale.DecodablePtr[T]](field, op, payload string, elemSize int) ([]T, error) {
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, ErrInvalidPayload.WithDetails(field).WithCause(err)
	}
	d := scale.NewDecoder(raw)
	items, err := scale.DecodeVec[T, P](d, op, elemSize)
	if err == nil {
		err = d.Finish(op)
	}
	if err != nil {
		return nil, ErrDecodeFailed.WithDetails(field).WithCause(err)
	}
	return items, nil
}

// Round is one request/response cycle of a diff pull, with the records
// decoded in response order.
type Round struct {
	// Seq is the 1-based position of the round within its session.
	Seq uint64 `json:"seq"`
	// From is the checkpoint the round was pulled from.
	From Checkpoint `json:"-"`

	ShouldContinue bool        `json:"should_continue"`
	Receivers      []Receiver  `json:"receivers"`
	Senders        []Sender    `json:"senders"`
	Total          [16]byte    `json:"senders_receivers_total"`
	Next           *Checkpoint `json:"next_checkpoint,omitempty"`
}

// Empty reports whether the round carried no records.
func (r *Round) Empty() bool {
	return len(r.Receivers) == 0 && len(r.Senders) == 0
}

// TotalAmount returns the senders/receivers total as an integer.
func (r *Round) TotalAmount() *uint256.Int {
	return U128(r.Total)
}
