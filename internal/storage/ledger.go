package storage

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v3"

	"github.com/yndnr/ledgersnap/internal/core/domain"
	"github.com/yndnr/ledgersnap/internal/telemetry/logger"
	"github.com/yndnr/ledgersnap/internal/telemetry/metric"
	"github.com/yndnr/ledgersnap/pkg/scale"
)

// Key layout.
var (
	keyCheckpoint = []byte("m/checkpoint")
	keyReceivers  = []byte("m/receivers")
	keySenders    = []byte("m/senders")
	keyRounds     = []byte("m/rounds")

	prefixMeta      = []byte("m/")
	prefixReceivers = []byte("r/")
	prefixSenders   = []byte("s/")
)

// ErrCheckpointConflict indicates a round was pulled from a checkpoint
// other than the one stored.
var ErrCheckpointConflict = errors.New("round does not continue the stored checkpoint")

// LedgerStore persists pulled rounds. Records are stored under sequence
// keys in pull order, and every round commits its records and its next
// checkpoint in one transaction, so the stored checkpoint always covers
// exactly the stored records.
type LedgerStore struct {
	engine *BadgerEngine
	logger logger.Logger

	// mu serializes appends.
	mu sync.Mutex
}

// OpenLedgerStore opens or creates a ledger store.
func OpenLedgerStore(cfg KVConfig, l logger.Logger) (*LedgerStore, error) {
	if l == nil {
		l = logger.Discard()
	}
	engine, err := NewBadgerEngine(cfg, l)
	if err != nil {
		return nil, err
	}
	return &LedgerStore{engine: engine, logger: l}, nil
}

// Close closes the store.
func (s *LedgerStore) Close() error {
	return s.engine.Close()
}

// Engine returns the underlying KV engine.
func (s *LedgerStore) Engine() *BadgerEngine {
	return s.engine
}

func seqKey(prefix []byte, seq uint64) []byte {
	return binary.BigEndian.AppendUint64(append([]byte(nil), prefix...), seq)
}

func readU64(txn *badger.Txn, key []byte) (uint64, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var n uint64
	err = item.Value(func(v []byte) error {
		if len(v) != 8 {
			return fmt.Errorf("counter %s has %d bytes", key, len(v))
		}
		n = binary.BigEndian.Uint64(v)
		return nil
	})
	return n, err
}

func readCheckpoint(txn *badger.Txn) (domain.Checkpoint, error) {
	item, err := txn.Get(keyCheckpoint)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.InitialCheckpoint(), nil
	}
	if err != nil {
		return domain.Checkpoint{}, err
	}

	var cp domain.Checkpoint
	err = item.Value(func(v []byte) error {
		var derr error
		cp, derr = scale.DecodeExact[domain.Checkpoint](v)
		return derr
	})
	if err != nil {
		return domain.Checkpoint{}, fmt.Errorf("stored checkpoint: %w", err)
	}
	return cp, nil
}

// AppendRound stores a committed-to-be round: its receivers and senders
// after the existing records, and round.Next as the new checkpoint.
// round.From must equal the stored checkpoint.
func (s *LedgerStore) AppendRound(ctx context.Context, round *domain.Round) error {
	if round.Next == nil {
		return domain.ErrCheckpointUnavailable.WithDetailsf("round %d", round.Seq)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	var receivers, senders uint64
	err := s.engine.Update(ctx, func(txn *badger.Txn) error {
		stored, err := readCheckpoint(txn)
		if err != nil {
			return err
		}
		if stored != round.From {
			return fmt.Errorf("%w: stored sender_index %d, round from %d",
				ErrCheckpointConflict, stored.SenderIndex, round.From.SenderIndex)
		}

		if receivers, err = readU64(txn, keyReceivers); err != nil {
			return err
		}
		if senders, err = readU64(txn, keySenders); err != nil {
			return err
		}
		rounds, err := readU64(txn, keyRounds)
		if err != nil {
			return err
		}

		for _, r := range round.Receivers {
			if err := txn.Set(seqKey(prefixReceivers, receivers), scale.Encode(r)); err != nil {
				return err
			}
			receivers++
		}
		for _, sd := range round.Senders {
			if err := txn.Set(seqKey(prefixSenders, senders), scale.Encode(sd)); err != nil {
				return err
			}
			senders++
		}

		if err := txn.Set(keyReceivers, binary.BigEndian.AppendUint64(nil, receivers)); err != nil {
			return err
		}
		if err := txn.Set(keySenders, binary.BigEndian.AppendUint64(nil, senders)); err != nil {
			return err
		}
		if err := txn.Set(keyRounds, binary.BigEndian.AppendUint64(nil, rounds+1)); err != nil {
			return err
		}
		return txn.Set(keyCheckpoint, scale.Encode(*round.Next))
	})
	if err != nil {
		return fmt.Errorf("append round %d: %w", round.Seq, err)
	}

	s.logger.Debug("round stored",
		"round", round.Seq,
		"receivers", len(round.Receivers),
		"senders", len(round.Senders),
		"total_receivers", receivers,
		"total_senders", senders,
		"elapsed", time.Since(start))
	return nil
}

// Checkpoint returns the stored checkpoint, or the initial checkpoint for
// an empty store.
func (s *LedgerStore) Checkpoint(ctx context.Context) (domain.Checkpoint, error) {
	var cp domain.Checkpoint
	err := s.view(ctx, func(txn *badger.Txn) error {
		var err error
		cp, err = readCheckpoint(txn)
		return err
	})
	return cp, err
}

// Counts returns the number of stored receivers and senders.
func (s *LedgerStore) Counts(ctx context.Context) (receivers, senders uint64, err error) {
	err = s.view(ctx, func(txn *badger.Txn) error {
		if receivers, err = readU64(txn, keyReceivers); err != nil {
			return err
		}
		senders, err = readU64(txn, keySenders)
		return err
	})
	return receivers, senders, err
}

// Stats summarizes the store.
type Stats struct {
	Rounds     uint64            `json:"rounds" yaml:"rounds"`
	Receivers  uint64            `json:"receivers" yaml:"receivers"`
	Senders    uint64            `json:"senders" yaml:"senders"`
	Checkpoint domain.Checkpoint `json:"-" yaml:"-"`
	DiskBytes  uint64            `json:"disk_bytes" yaml:"disk_bytes"`
}

// Stats returns counts, the checkpoint and disk usage in one read.
func (s *LedgerStore) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{}
	err := s.view(ctx, func(txn *badger.Txn) error {
		var err error
		if st.Rounds, err = readU64(txn, keyRounds); err != nil {
			return err
		}
		if st.Receivers, err = readU64(txn, keyReceivers); err != nil {
			return err
		}
		if st.Senders, err = readU64(txn, keySenders); err != nil {
			return err
		}
		st.Checkpoint, err = readCheckpoint(txn)
		return err
	})
	if err != nil {
		return nil, err
	}
	st.DiskBytes = s.engine.Stats().TotalSize()
	return st, nil
}

func (s *LedgerStore) view(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if s.engine.closed.Load() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.engine.db.View(fn)
}

// ScanReceivers calls fn for stored receivers in pull order, starting at
// sequence number from.
func (s *LedgerStore) ScanReceivers(ctx context.Context, from uint64, fn func(seq uint64, r domain.Receiver) error) error {
	return scanRecords(ctx, s.engine, prefixReceivers, from, fn)
}

// ScanSenders calls fn for stored senders in pull order, starting at
// sequence number from.
func (s *LedgerStore) ScanSenders(ctx context.Context, from uint64, fn func(seq uint64, sd domain.Sender) error) error {
	return scanRecords(ctx, s.engine, prefixSenders, from, fn)
}

func scanRecords[T any, P scale.DecodablePtr[T]](ctx context.Context, e *BadgerEngine, prefix []byte, from uint64, fn func(uint64, T) error) error {
	return e.Scan(ctx, prefix, seqKey(prefix, from), func(key, value []byte) (bool, error) {
		seq := binary.BigEndian.Uint64(key[len(prefix):])
		rec, err := scale.DecodeExact[T, P](value)
		if err != nil {
			return false, fmt.Errorf("record %s%d: %w", prefix, seq, err)
		}
		if err := fn(seq, rec); err != nil {
			return false, err
		}
		return true, nil
	})
}

// Reset deletes all records and the checkpoint.
func (s *LedgerStore) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.engine.DropPrefix(prefixMeta, prefixReceivers, prefixSenders); err != nil {
		return fmt.Errorf("reset ledger store: %w", err)
	}
	s.logger.Info("ledger store reset")
	return nil
}

// RegisterMetrics exposes store record counts and engine size gauges.
func (s *LedgerStore) RegisterMetrics(reg *metric.Registry) {
	if reg == nil {
		return
	}
	reg.MustRegister(metric.NewCollector(s))
	s.engine.RegisterMetrics(reg.Prometheus(), 15*time.Second)
}
