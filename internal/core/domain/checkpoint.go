package domain

import (
	"github.com/yndnr/ledgersnap/pkg/scale"
)

// ShardCount is the number of UTXO shards, one receiver index each.
const ShardCount = 256

// CheckpointSize is the encoded size of a Checkpoint.
const CheckpointSize = ShardCount*8 + 8

// Checkpoint is the resumable progress marker of a ledger diff pull.
//
// A Checkpoint is a plain value. It is threaded through pull calls and
// returned to the caller, who owns persisting it between sessions.
type Checkpoint struct {
	ReceiverIndex [ShardCount]uint64 `json:"receiver_index"`
	SenderIndex   uint64             `json:"sender_index"`
}

// InitialCheckpoint returns the zero checkpoint a full extraction starts from.
func InitialCheckpoint() Checkpoint {
	return Checkpoint{}
}

// IsZero reports whether every index is zero.
func (c Checkpoint) IsZero() bool {
	return c == Checkpoint{}
}

// Receivers returns the number of receivers covered across all shards.
func (c Checkpoint) Receivers() uint64 {
	var n uint64
	for _, v := range c.ReceiverIndex {
		n += v
	}
	return n
}

// Advance returns the checkpoint that follows c after a round.
//
// next is the authoritative checkpoint embedded in the round, if any. It is
// adopted verbatim unless it moves some index backwards. Without it the
// checkpoint cannot be derived safely, so Advance fails unless the round
// consumed nothing, in which case c is returned unchanged.
func (c Checkpoint) Advance(next *Checkpoint, consumed bool) (Checkpoint, error) {
	if next == nil {
		if consumed {
			return c, ErrCheckpointUnavailable
		}
		return c, nil
	}
	switch c.Compare(*next) {
	case OrderAhead, OrderDiverged:
		return c, ErrCheckpointRegressed.WithDetailsf("from sender_index %d to %d", c.SenderIndex, next.SenderIndex)
	}
	return *next, nil
}

// CheckpointOrder is the result of comparing two checkpoints component-wise.
type CheckpointOrder int

const (
	// OrderEqual means every index is equal.
	OrderEqual CheckpointOrder = iota
	// OrderBehind means no index is greater and at least one is smaller.
	OrderBehind
	// OrderAhead means no index is smaller and at least one is greater.
	OrderAhead
	// OrderDiverged means some indices are greater and others smaller.
	OrderDiverged
)

func (o CheckpointOrder) String() string {
	switch o {
	case OrderEqual:
		return "equal"
	case OrderBehind:
		return "behind"
	case OrderAhead:
		return "ahead"
	case OrderDiverged:
		return "diverged"
	default:
		return "unknown"
	}
}

// Compare orders c relative to other. Checkpoints have no total order: two
// pulls that progressed on different shards are Diverged.
func (c Checkpoint) Compare(other Checkpoint) CheckpointOrder {
	var less, greater bool
	cmp := func(a, b uint64) {
		if a < b {
			less = true
		} else if a > b {
			greater = true
		}
	}
	for i := range c.ReceiverIndex {
		cmp(c.ReceiverIndex[i], other.ReceiverIndex[i])
	}
	cmp(c.SenderIndex, other.SenderIndex)

	switch {
	case less && greater:
		return OrderDiverged
	case less:
		return OrderBehind
	case greater:
		return OrderAhead
	default:
		return OrderEqual
	}
}

// Covers reports whether c has reached other on every component.
func (c Checkpoint) Covers(other Checkpoint) bool {
	o := c.Compare(other)
	return o == OrderEqual || o == OrderAhead
}

// TypeName names Checkpoint in decode errors.
func (Checkpoint) TypeName() string { return "Checkpoint" }

// EncodedSize is 256 receiver indices plus the sender index, eight bytes each.
func (Checkpoint) EncodedSize() int { return CheckpointSize }

// EncodeTo writes the receiver indices in shard order, then the sender index.
func (c Checkpoint) EncodeTo(e *scale.Encoder) {
	for _, v := range c.ReceiverIndex {
		e.WriteU64(v)
	}
	e.WriteU64(c.SenderIndex)
}

// DecodeFrom reads a checkpoint in EncodeTo order.
func (c *Checkpoint) DecodeFrom(d *scale.Decoder) error {
	for i := range c.ReceiverIndex {
		v, err := d.ReadU64()
		if err != nil {
			return err
		}
		c.ReceiverIndex[i] = v
	}
	v, err := d.ReadU64()
	if err != nil {
		return err
	}
	c.SenderIndex = v
	return nil
}
