package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yndnr/ledgersnap/internal/core/domain"
	"github.com/yndnr/ledgersnap/internal/telemetry/logger"
	"github.com/yndnr/ledgersnap/pkg/scale"
)

// GroupResult holds the fetched values of one key group.
type GroupResult struct {
	Group  domain.KeyGroup
	Keys   []domain.StorageKey
	Values [][]byte

	// Missing counts keys the node had no value for.
	Missing int
	// Receivers and VoidNumbers count values that passed verification.
	Receivers   int
	VoidNumbers int
	Elapsed     time.Duration
}

// GroupSink consumes a finished group. Sinks for different groups may run
// concurrently.
type GroupSink func(ctx context.Context, r *GroupResult) error

// Sinks runs sinks in order for each group, stopping at the first error.
// Nil sinks are skipped.
func Sinks(sinks ...GroupSink) GroupSink {
	return func(ctx context.Context, r *GroupResult) error {
		for _, s := range sinks {
			if s == nil {
				continue
			}
			if err := s(ctx, r); err != nil {
				return err
			}
		}
		return nil
	}
}

// ExtractResult is the outcome of one extraction.
type ExtractResult struct {
	At     string
	Groups map[domain.KeyGroup]*GroupResult
}

// Entries returns the total number of fetched values.
func (r *ExtractResult) Entries() int {
	n := 0
	for _, g := range r.Groups {
		n += len(g.Values)
	}
	return n
}

// Extractor fetches every key group of a listing at one block.
type Extractor struct {
	fetcher *Fetcher
	verify  bool
	logger  logger.Logger
}

// ExtractorOption configures an Extractor.
type ExtractorOption func(*Extractor)

// WithVerify decodes shard values as receivers and checks void number
// values are 32 bytes, failing the extraction on the first malformed value.
func WithVerify(verify bool) ExtractorOption {
	return func(e *Extractor) {
		e.verify = verify
	}
}

// WithExtractLogger sets the logger.
func WithExtractLogger(l logger.Logger) ExtractorOption {
	return func(e *Extractor) {
		e.logger = l
	}
}

// NewExtractor creates an Extractor that fetches through f.
func NewExtractor(f *Fetcher, opts ...ExtractorOption) *Extractor {
	e := &Extractor{
		fetcher: f,
		logger:  logger.Discard(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract fetches the three groups concurrently, each through its own
// chunked Fetch, and hands every finished group to sink. The first error
// cancels the remaining groups.
func (e *Extractor) Extract(ctx context.Context, listing *domain.KeyListing, at string, sink GroupSink) (*ExtractResult, error) {
	res := &ExtractResult{
		At:     at,
		Groups: make(map[domain.KeyGroup]*GroupResult, len(domain.KeyGroups())),
	}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, group := range domain.KeyGroups() {
		g.Go(func() error {
			gr, err := e.extractGroup(gctx, group, listing.Keys(group), at)
			if err != nil {
				return fmt.Errorf("extract %s: %w", group, err)
			}
			if sink != nil {
				if err := sink(gctx, gr); err != nil {
					return fmt.Errorf("store %s: %w", group, err)
				}
			}

			mu.Lock()
			res.Groups[group] = gr
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return res, nil
}

func (e *Extractor) extractGroup(ctx context.Context, group domain.KeyGroup, keys []domain.StorageKey, at string) (*GroupResult, error) {
	ctx = logger.WithGroup(ctx, string(group))
	l := logger.L(ctx, e.logger)
	l.Info("fetching group", "keys", len(keys))
	start := time.Now()

	values, err := e.fetcher.Fetch(ctx, keys, at)
	if err != nil {
		return nil, err
	}

	gr := &GroupResult{
		Group:  group,
		Keys:   keys,
		Values: values,
	}
	for i, v := range values {
		if v == nil {
			gr.Missing++
			continue
		}
		if !e.verify {
			continue
		}
		if err := verifyValue(gr, v); err != nil {
			return nil, domain.ErrDecodeFailed.
				WithDetailsf("%s value of key %s", group, keys[i]).
				WithCause(err)
		}
	}
	gr.Elapsed = time.Since(start)

	l.Info("group fetched",
		"keys", len(keys),
		"missing", gr.Missing,
		"elapsed", gr.Elapsed)
	return gr, nil
}

func verifyValue(gr *GroupResult, v []byte) error {
	switch gr.Group {
	case domain.GroupShards:
		if _, err := scale.DecodeExact[domain.Receiver](v); err != nil {
			return err
		}
		gr.Receivers++
	case domain.GroupVoidNumbers:
		if len(v) != domain.VoidNumberSize {
			return fmt.Errorf("void number is %d bytes, want %d", len(v), domain.VoidNumberSize)
		}
		gr.VoidNumbers++
	}
	return nil
}
