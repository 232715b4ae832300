package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/time/rate"

	"github.com/yndnr/ledgersnap/internal/core/domain"
	"github.com/yndnr/ledgersnap/internal/telemetry/logger"
	"github.com/yndnr/ledgersnap/internal/telemetry/metric"
	"github.com/yndnr/ledgersnap/pkg/scale"
)

// Default per-round record limits.
const (
	DefaultMaxReceivers uint64 = 1024
	DefaultMaxSenders   uint64 = 1024
)

// DiffSource performs one ledger diff round starting at from.
//
// A source may also implement Mode() string to label its rounds in logs and
// metrics; sources without it are labelled "dense".
type DiffSource interface {
	PullDiff(ctx context.Context, from domain.Checkpoint, maxReceivers, maxSenders uint64) (*domain.Round, error)
}

type modeSource interface {
	Mode() string
}

// PullState is the lifecycle state of a PullSession.
type PullState int

const (
	StateIdle PullState = iota
	StatePulling
	StateContinuing
	StateDone
	StateFailed
)

func (s PullState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePulling:
		return "pulling"
	case StateContinuing:
		return "continuing"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("PullState(%d)", int(s))
	}
}

// Terminal reports whether no further rounds may be pulled.
func (s PullState) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// RoundError describes a failed round. The session checkpoint is the one
// the round was pulled from.
type RoundError struct {
	Round      uint64
	Checkpoint domain.Checkpoint
	Err        error
}

func (e *RoundError) Error() string {
	return fmt.Sprintf("round %d (sender_index %d): %v", e.Round, e.Checkpoint.SenderIndex, e.Err)
}

func (e *RoundError) Unwrap() error {
	return e.Err
}

// Puller drives diff rounds against a DiffSource.
type Puller struct {
	source       DiffSource
	mode         string
	maxReceivers uint64
	maxSenders   uint64
	maxRounds    int
	limiter      *rate.Limiter
	metrics      *metric.Registry
	logger       logger.Logger
}

// PullerOption configures a Puller.
type PullerOption func(*Puller)

// WithLimits sets the per-round record limits. Zero values keep the defaults.
func WithLimits(maxReceivers, maxSenders uint64) PullerOption {
	return func(p *Puller) {
		if maxReceivers > 0 {
			p.maxReceivers = maxReceivers
		}
		if maxSenders > 0 {
			p.maxSenders = maxSenders
		}
	}
}

// WithMaxRounds stops Run after n rounds. The session is left Continuing
// and can be resumed from its checkpoint. Zero means unlimited.
func WithMaxRounds(n int) PullerOption {
	return func(p *Puller) {
		p.maxRounds = n
	}
}

// WithPullLimiter paces rounds.
func WithPullLimiter(l *rate.Limiter) PullerOption {
	return func(p *Puller) {
		p.limiter = l
	}
}

// WithPullMetrics records round and checkpoint metrics.
func WithPullMetrics(m *metric.Registry) PullerOption {
	return func(p *Puller) {
		p.metrics = m
	}
}

// WithPullLogger sets the logger.
func WithPullLogger(l logger.Logger) PullerOption {
	return func(p *Puller) {
		p.logger = l
	}
}

// NewPuller creates a Puller over source.
func NewPuller(source DiffSource, opts ...PullerOption) *Puller {
	p := &Puller{
		source:       source,
		mode:         "dense",
		maxReceivers: DefaultMaxReceivers,
		maxSenders:   DefaultMaxSenders,
		logger:       logger.Discard(),
	}
	if m, ok := source.(modeSource); ok {
		p.mode = m.Mode()
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Mode returns the transport label of the source.
func (p *Puller) Mode() string {
	return p.mode
}

// Start opens a session at from. Sessions are independent; a Puller may
// run several concurrently.
func (p *Puller) Start(from domain.Checkpoint) *PullSession {
	id := ulid.Make().String()
	return &PullSession{
		puller:     p,
		runID:      id,
		checkpoint: from,
		logger:     p.logger.With("run_id", id, "mode", p.mode),
	}
}

// PullResult summarizes a session.
type PullResult struct {
	RunID      string            `json:"run_id" yaml:"run_id"`
	State      string            `json:"state" yaml:"state"`
	Checkpoint domain.Checkpoint `json:"-" yaml:"-"`
	Rounds     uint64            `json:"rounds" yaml:"rounds"`
	Receivers  uint64            `json:"receivers" yaml:"receivers"`
	Senders    uint64            `json:"senders" yaml:"senders"`
}

// PullSession is the state of one pull run. The checkpoint only moves
// when a round is committed, so a failed or cancelled session can be
// resumed from Checkpoint().
type PullSession struct {
	puller *Puller
	runID  string
	logger logger.Logger

	mu         sync.Mutex
	state      PullState
	checkpoint domain.Checkpoint
	rounds     uint64
	receivers  uint64
	senders    uint64
	err        error
}

// RunID returns the session identifier.
func (s *PullSession) RunID() string {
	return s.runID
}

// State returns the current state.
func (s *PullSession) State() PullState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Checkpoint returns the last committed checkpoint.
func (s *PullSession) Checkpoint() domain.Checkpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkpoint
}

// Err returns the error that failed the session, if any.
func (s *PullSession) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Result returns a summary of the session so far.
func (s *PullSession) Result() *PullResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &PullResult{
		RunID:      s.runID,
		State:      s.state.String(),
		Checkpoint: s.checkpoint,
		Rounds:     s.rounds,
		Receivers:  s.receivers,
		Senders:    s.senders,
	}
}

// Next pulls and commits one round. It returns io.EOF once the session is
// Done, and the failing error once it has Failed.
func (s *PullSession) Next(ctx context.Context) (*domain.Round, error) {
	round, err := s.pull(ctx)
	if err != nil {
		return nil, err
	}
	s.commit(round)
	return round, nil
}

// pull performs one round without committing it.
func (s *PullSession) pull(ctx context.Context) (*domain.Round, error) {
	s.mu.Lock()
	switch s.state {
	case StateDone:
		s.mu.Unlock()
		return nil, io.EOF
	case StateFailed:
		err := s.err
		s.mu.Unlock()
		return nil, err
	case StatePulling:
		s.mu.Unlock()
		return nil, domain.ErrSessionClosed.WithDetails("round already in flight")
	}
	s.state = StatePulling
	from := s.checkpoint
	seq := s.rounds + 1
	s.mu.Unlock()

	p := s.puller
	start := time.Now()

	round, err := p.pullRound(ctx, from)
	if err == nil {
		var next domain.Checkpoint
		next, err = from.Advance(round.Next, round.ShouldContinue || !round.Empty())
		if err == nil && round.ShouldContinue && next == from {
			err = domain.ErrCheckpointStalled.WithDetailsf("sender_index %d", from.SenderIndex)
		}
		if err == nil {
			round.Seq = seq
			round.From = from
			round.Next = &next
		}
	}

	if err != nil {
		p.metrics.ObserveRound(p.mode, time.Since(start), 0, 0, err)
		return nil, s.fail(&RoundError{Round: seq, Checkpoint: from, Err: err})
	}

	p.metrics.ObserveRound(p.mode, time.Since(start), len(round.Receivers), len(round.Senders), nil)
	return round, nil
}

func (p *Puller) pullRound(ctx context.Context, from domain.Checkpoint) (*domain.Round, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	round, err := p.source.PullDiff(ctx, from, p.maxReceivers, p.maxSenders)
	if err != nil {
		return nil, classifyPullError(err)
	}
	if round == nil {
		return nil, domain.ErrRemoteProcedureFailed.WithDetails("empty response")
	}
	return round, nil
}

// classifyPullError keeps codec and cancellation errors as they are and
// reports everything else as a remote failure.
func classifyPullError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if domain.IsDomainError(err, "") {
		return err
	}
	var de *scale.DecodeError
	if errors.As(err, &de) {
		return domain.ErrDecodeFailed.WithDetails(de.Op).WithCause(err)
	}
	return domain.ErrRemoteProcedureFailed.WithCause(err)
}

func (s *PullSession) fail(err error) error {
	s.mu.Lock()
	s.state = StateFailed
	s.err = err
	s.mu.Unlock()

	s.logger.Warn("pull round failed", "error", err)
	return err
}

// commit adopts the round's next checkpoint.
func (s *PullSession) commit(round *domain.Round) {
	s.mu.Lock()
	s.checkpoint = *round.Next
	s.rounds = round.Seq
	s.receivers += uint64(len(round.Receivers))
	s.senders += uint64(len(round.Senders))
	if round.ShouldContinue {
		s.state = StateContinuing
	} else {
		s.state = StateDone
	}
	cp := s.checkpoint
	state := s.state
	s.mu.Unlock()

	s.puller.metrics.SetCheckpoint(cp.SenderIndex, cp.Receivers())
	s.logger.Debug("pull round committed",
		"round", round.Seq,
		"receivers", len(round.Receivers),
		"senders", len(round.Senders),
		"sender_index", cp.SenderIndex,
		"state", state.String())
}

// Run pulls rounds from from until the source reports no more data.
//
// emit is called with each round before its checkpoint is committed; an
// emit error fails the session and leaves the checkpoint at the round's
// From. Cancellation is observed between rounds and fails the session with
// the context error.
func (p *Puller) Run(ctx context.Context, from domain.Checkpoint, emit func(*domain.Round) error) (*PullResult, error) {
	s := p.Start(from)
	ctx = logger.WithRunID(ctx, s.runID)
	s.logger.Info("pull started",
		"sender_index", from.SenderIndex,
		"receivers", from.Receivers())

	for {
		if p.maxRounds > 0 && s.Result().Rounds >= uint64(p.maxRounds) {
			s.logger.Info("pull paused at round limit", "rounds", p.maxRounds)
			return s.Result(), nil
		}

		round, err := s.pull(ctx)
		if err != nil {
			return s.Result(), err
		}
		if emit != nil {
			if err := emit(round); err != nil {
				err = s.fail(&RoundError{Round: round.Seq, Checkpoint: round.From, Err: err})
				return s.Result(), err
			}
		}
		s.commit(round)

		if s.State() == StateDone {
			res := s.Result()
			s.logger.Info("pull finished",
				"rounds", res.Rounds,
				"receivers", res.Receivers,
				"senders", res.Senders,
				"sender_index", res.Checkpoint.SenderIndex)
			return res, nil
		}
	}
}
