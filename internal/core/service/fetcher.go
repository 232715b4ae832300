package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/yndnr/ledgersnap/internal/core/domain"
	"github.com/yndnr/ledgersnap/internal/telemetry/logger"
	"github.com/yndnr/ledgersnap/internal/telemetry/metric"
)

// DefaultBatchSize is the number of keys sent in one storage query.
const DefaultBatchSize = 4096

// StorageQuerier looks up many storage keys as of one block.
//
// QueryStorageAt returns one value per key, in key order; a missing value
// is nil. An empty at means the node's latest block.
type StorageQuerier interface {
	QueryStorageAt(ctx context.Context, keys []domain.StorageKey, at string) ([][]byte, error)
}

// Fetcher partitions key lookups into bounded chunks.
//
// Chunks are issued sequentially and their results concatenated in input
// order, so the result is indistinguishable from one unbounded query.
// Nothing is cached between calls.
type Fetcher struct {
	querier   StorageQuerier
	batchSize int
	minBatch  int
	limiter   *rate.Limiter
	progress  func(chunk, done, total int)
	metrics   *metric.Registry
	logger    logger.Logger
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithBatchSize sets the maximum number of keys per chunk.
// Non-positive values keep the default.
func WithBatchSize(n int) FetcherOption {
	return func(f *Fetcher) {
		if n > 0 {
			f.batchSize = n
		}
	}
}

// WithAdaptiveShrink retries a failing chunk at half the size, down to
// floor keys. A chunk that fails at floor keys fails the call.
func WithAdaptiveShrink(floor int) FetcherOption {
	return func(f *Fetcher) {
		if floor > 0 {
			f.minBatch = floor
		}
	}
}

// WithFetchLimiter paces chunk requests.
func WithFetchLimiter(l *rate.Limiter) FetcherOption {
	return func(f *Fetcher) {
		f.limiter = l
	}
}

// WithProgress sets a callback invoked after every chunk with the chunk
// length and the number of keys of the call fetched so far. It may be
// called from several goroutines when the fetcher is shared.
func WithProgress(fn func(chunk, done, total int)) FetcherOption {
	return func(f *Fetcher) {
		f.progress = fn
	}
}

// WithFetchMetrics records chunk metrics.
func WithFetchMetrics(m *metric.Registry) FetcherOption {
	return func(f *Fetcher) {
		f.metrics = m
	}
}

// WithFetchLogger sets the logger.
func WithFetchLogger(l logger.Logger) FetcherOption {
	return func(f *Fetcher) {
		f.logger = l
	}
}

// NewFetcher creates a Fetcher over querier.
func NewFetcher(querier StorageQuerier, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		querier:   querier,
		batchSize: DefaultBatchSize,
		logger:    logger.Discard(),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.minBatch > f.batchSize {
		f.minBatch = f.batchSize
	}
	f.metrics.SetBatchSize(f.batchSize)
	return f
}

// BatchSize returns the configured chunk size.
func (f *Fetcher) BatchSize() int {
	return f.batchSize
}

// Fetch returns the values of keys in input order, all read at block at.
//
// A chunk failure fails the whole call with ErrBatchLookupFailed; no
// partial result is returned. The call is idempotent and may be retried.
func (f *Fetcher) Fetch(ctx context.Context, keys []domain.StorageKey, at string) ([][]byte, error) {
	out := make([][]byte, 0, len(keys))
	size := f.batchSize
	l := logger.L(ctx, f.logger)

	for off := 0; off < len(keys); {
		end := off + size
		if end > len(keys) {
			end = len(keys)
		}
		chunk := keys[off:end]

		values, err := f.fetchChunk(ctx, l, chunk, at)
		if err != nil {
			if f.canShrink(ctx, size) {
				size = max(size/2, f.minBatch)
				f.metrics.SetBatchSize(size)
				l.Warn("storage query failed, shrinking batch",
					"offset", off,
					"batch_size", size,
					"error", err)
				continue
			}
			return nil, domain.ErrBatchLookupFailed.
				WithDetailsf("chunk at offset %d (%d keys, first %s)", off, len(chunk), chunk[0]).
				WithCause(err)
		}

		out = append(out, values...)
		off = end

		if f.progress != nil {
			f.progress(len(chunk), off, len(keys))
		}
	}

	return out, nil
}

func (f *Fetcher) canShrink(ctx context.Context, size int) bool {
	return f.minBatch > 0 && size > f.minBatch && ctx.Err() == nil
}

func (f *Fetcher) fetchChunk(ctx context.Context, l logger.Logger, chunk []domain.StorageKey, at string) ([][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	values, err := f.querier.QueryStorageAt(ctx, chunk, at)
	if err == nil && len(values) != len(chunk) {
		err = fmt.Errorf("querier returned %d values for %d keys", len(values), len(chunk))
	}
	f.metrics.ObserveChunk(len(chunk), time.Since(start), err)

	if err != nil {
		return nil, err
	}
	l.Debug("storage chunk fetched",
		"keys", len(chunk),
		"elapsed", time.Since(start))
	return values, nil
}

// IsBatchLookupFailure reports whether err came from a failed chunk.
func IsBatchLookupFailure(err error) bool {
	return errors.Is(err, domain.ErrBatchLookupFailed)
}
