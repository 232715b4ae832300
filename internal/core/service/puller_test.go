package service

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/yndnr/ledgersnap/internal/core/domain"
	"github.com/yndnr/ledgersnap/pkg/scale"
)

// scriptedSource replays a fixed sequence of rounds.
type scriptedSource struct {
	rounds []*domain.Round
	errs   map[int]error
	calls  []domain.Checkpoint
	mode   string
}

func (s *scriptedSource) PullDiff(ctx context.Context, from domain.Checkpoint, maxReceivers, maxSenders uint64) (*domain.Round, error) {
	i := len(s.calls)
	s.calls = append(s.calls, from)
	if err := s.errs[i]; err != nil {
		return nil, err
	}
	if i >= len(s.rounds) {
		return &domain.Round{}, nil
	}
	r := *s.rounds[i]
	return &r, nil
}

func (s *scriptedSource) Mode() string {
	if s.mode == "" {
		return "dense"
	}
	return s.mode
}

func checkpointAt(shard0, sender uint64) *domain.Checkpoint {
	cp := domain.InitialCheckpoint()
	cp.ReceiverIndex[0] = shard0
	cp.SenderIndex = sender
	return &cp
}

func records(receivers, senders int) ([]domain.Receiver, []domain.Sender) {
	rs := make([]domain.Receiver, receivers)
	for i := range rs {
		rs[i].Utxo.Commitment[0] = byte(i + 1)
	}
	ss := make([]domain.Sender, senders)
	for i := range ss {
		ss[i].VoidNumber[0] = byte(i + 1)
	}
	return rs, ss
}

func TestPuller_TwoRoundContinuation(t *testing.T) {
	r1, s1 := records(10, 5)
	r2, s2 := records(2, 1)
	first := checkpointAt(10, 5)
	second := checkpointAt(12, 6)

	src := &scriptedSource{rounds: []*domain.Round{
		{ShouldContinue: true, Receivers: r1, Senders: s1, Next: first},
		{ShouldContinue: false, Receivers: r2, Senders: s2, Next: second},
	}}

	var emitted []*domain.Round
	res, err := NewPuller(src).Run(context.Background(), domain.InitialCheckpoint(), func(r *domain.Round) error {
		emitted = append(emitted, r)
		return nil
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(src.calls) != 2 {
		t.Fatalf("PullDiff called %d times, want 2", len(src.calls))
	}
	if !src.calls[0].IsZero() {
		t.Errorf("first round from %+v, want zero checkpoint", src.calls[0])
	}
	if src.calls[1] != *first {
		t.Errorf("second round from sender_index %d, receiver_index[0] %d; want 5, 10",
			src.calls[1].SenderIndex, src.calls[1].ReceiverIndex[0])
	}

	if len(emitted) != 2 || emitted[0].Seq != 1 || emitted[1].Seq != 2 {
		t.Fatalf("emitted rounds out of order: %d", len(emitted))
	}
	if emitted[1].From != *first {
		t.Error("round 2 From is not the round 1 checkpoint")
	}

	if res.State != StateDone.String() {
		t.Errorf("State = %s, want done", res.State)
	}
	if res.Checkpoint != *second {
		t.Errorf("Checkpoint = %+v, want %+v", res.Checkpoint, *second)
	}
	if res.Rounds != 2 || res.Receivers != 12 || res.Senders != 6 {
		t.Errorf("Result = %+v, want 2 rounds, 12 receivers, 6 senders", res)
	}
	if res.RunID == "" {
		t.Error("RunID is empty")
	}
}

func TestPuller_TerminatesOnEmptyRound(t *testing.T) {
	src := &scriptedSource{}
	res, err := NewPuller(src).Run(context.Background(), *checkpointAt(3, 3), nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Rounds != 1 {
		t.Errorf("Rounds = %d, want 1", res.Rounds)
	}
	if res.Checkpoint != *checkpointAt(3, 3) {
		t.Error("empty final round without next checkpoint must keep the checkpoint")
	}
}

func TestPuller_TerminatesOnSingleRound(t *testing.T) {
	r, snd := records(3, 2)
	next := checkpointAt(3, 2)
	src := &scriptedSource{rounds: []*domain.Round{
		{ShouldContinue: false, Receivers: r, Senders: snd, Next: next},
	}}

	var gotR []domain.Receiver
	var gotS []domain.Sender
	res, err := NewPuller(src).Run(context.Background(), domain.InitialCheckpoint(), func(rd *domain.Round) error {
		gotR = append(gotR, rd.Receivers...)
		gotS = append(gotS, rd.Senders...)
		return nil
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(src.calls) != 1 {
		t.Errorf("PullDiff called %d times, want 1", len(src.calls))
	}
	if res.State != StateDone.String() || res.Rounds != 1 {
		t.Errorf("State = %s after %d rounds, want done after 1", res.State, res.Rounds)
	}
	if len(gotR) != 3 || len(gotS) != 2 {
		t.Fatalf("emitted %d receivers and %d senders, want 3 and 2", len(gotR), len(gotS))
	}
	for i := range gotR {
		if gotR[i] != r[i] {
			t.Errorf("receiver %d differs from the response", i)
		}
	}
	for i := range gotS {
		if gotS[i] != snd[i] {
			t.Errorf("sender %d differs from the response", i)
		}
	}
	if res.Checkpoint != *next {
		t.Errorf("Checkpoint = %+v, want %+v", res.Checkpoint, *next)
	}
}

func TestPuller_StalledCheckpoint(t *testing.T) {
	from := checkpointAt(4, 4)
	r, snd := records(1, 1)
	src := &scriptedSource{rounds: []*domain.Round{
		{ShouldContinue: true, Next: from},
		{ShouldContinue: true, Receivers: r, Senders: snd, Next: from},
	}}

	emitted := 0
	res, err := NewPuller(src).Run(context.Background(), *from, func(*domain.Round) error {
		emitted++
		return nil
	})
	if !errors.Is(err, domain.ErrCheckpointStalled) {
		t.Fatalf("Run() error = %v, want ErrCheckpointStalled", err)
	}
	if len(src.calls) != 1 {
		t.Errorf("PullDiff called %d times, want the session to stop after 1", len(src.calls))
	}
	if emitted != 0 {
		t.Errorf("emitted %d rounds, want 0", emitted)
	}
	if res == nil || res.State != StateFailed.String() || res.Checkpoint != *from {
		t.Errorf("result = %+v, want failed at the starting checkpoint", res)
	}
}

func TestPuller_StalledNonEmptyRound(t *testing.T) {
	from := checkpointAt(4, 4)
	r, snd := records(1, 1)
	src := &scriptedSource{rounds: []*domain.Round{
		{ShouldContinue: true, Receivers: r, Senders: snd, Next: from},
	}}

	sess := NewPuller(src).Start(*from)
	if _, err := sess.Next(context.Background()); !errors.Is(err, domain.ErrCheckpointStalled) {
		t.Fatalf("Next() error = %v, want ErrCheckpointStalled", err)
	}
	if sess.State() != StateFailed {
		t.Errorf("State() = %s, want failed", sess.State())
	}
}

func TestPuller_MissingCheckpoint(t *testing.T) {
	r, s := records(1, 0)
	src := &scriptedSource{rounds: []*domain.Round{
		{ShouldContinue: true, Receivers: r, Senders: s},
	}}

	sess := NewPuller(src).Start(domain.InitialCheckpoint())
	_, err := sess.Next(context.Background())
	if !errors.Is(err, domain.ErrCheckpointUnavailable) {
		t.Fatalf("Next() error = %v, want ErrCheckpointUnavailable", err)
	}
	if sess.State() != StateFailed {
		t.Errorf("State() = %s, want failed", sess.State())
	}
	if !sess.Checkpoint().IsZero() {
		t.Error("checkpoint advanced on failure")
	}

	var re *RoundError
	if !errors.As(err, &re) || re.Round != 1 {
		t.Errorf("error = %v, want RoundError for round 1", err)
	}

	// Failed sessions keep returning the terminal error.
	if _, again := sess.Next(context.Background()); again != err {
		t.Errorf("Next() after failure = %v, want %v", again, err)
	}
}

func TestPuller_RegressedCheckpoint(t *testing.T) {
	src := &scriptedSource{rounds: []*domain.Round{
		{ShouldContinue: true, Next: checkpointAt(1, 1)},
	}}
	_, err := NewPuller(src).Run(context.Background(), *checkpointAt(5, 5), nil)
	if !errors.Is(err, domain.ErrCheckpointRegressed) {
		t.Fatalf("Run() error = %v, want ErrCheckpointRegressed", err)
	}
}

func TestPuller_TransportFailureKeepsCheckpoint(t *testing.T) {
	src := &scriptedSource{
		rounds: []*domain.Round{{ShouldContinue: true, Next: checkpointAt(4, 2)}},
		errs:   map[int]error{1: errors.New("EOF")},
	}

	res, err := NewPuller(src).Run(context.Background(), domain.InitialCheckpoint(), nil)
	if !errors.Is(err, domain.ErrRemoteProcedureFailed) {
		t.Fatalf("Run() error = %v, want ErrRemoteProcedureFailed", err)
	}
	if res.State != StateFailed.String() {
		t.Errorf("State = %s, want failed", res.State)
	}
	if res.Checkpoint != *checkpointAt(4, 2) {
		t.Errorf("Checkpoint = %+v, want the round 1 checkpoint", res.Checkpoint)
	}
}

func TestPuller_DecodeErrorIsNotRemote(t *testing.T) {
	decodeErr := &scale.DecodeError{Op: "Vec<Receiver>", Offset: 3, Err: scale.ErrTruncatedInput}
	src := &scriptedSource{errs: map[int]error{0: decodeErr}}

	_, err := NewPuller(src).Run(context.Background(), domain.InitialCheckpoint(), nil)
	if errors.Is(err, domain.ErrRemoteProcedureFailed) {
		t.Error("decode error classified as remote failure")
	}
	if !errors.Is(err, domain.ErrDecodeFailed) || !errors.Is(err, scale.ErrTruncatedInput) {
		t.Errorf("Run() error = %v, want decode failure", err)
	}
}

func TestPuller_CancelBetweenRounds(t *testing.T) {
	src := &scriptedSource{rounds: []*domain.Round{
		{ShouldContinue: true, Next: checkpointAt(1, 0)},
		{ShouldContinue: true, Next: checkpointAt(2, 0)},
		{ShouldContinue: true, Next: checkpointAt(3, 0)},
	}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	res, err := NewPuller(src).Run(ctx, domain.InitialCheckpoint(), func(r *domain.Round) error {
		if r.Seq == 2 {
			cancel()
		}
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if len(src.calls) != 2 {
		t.Errorf("PullDiff called %d times, want 2", len(src.calls))
	}
	if res.Checkpoint != *checkpointAt(2, 0) {
		t.Errorf("Checkpoint = %+v, want the round 2 checkpoint", res.Checkpoint)
	}
}

func TestPuller_EmitErrorDoesNotAdvance(t *testing.T) {
	src := &scriptedSource{rounds: []*domain.Round{
		{ShouldContinue: true, Next: checkpointAt(1, 1)},
		{ShouldContinue: false, Next: checkpointAt(2, 2)},
	}}
	sinkErr := errors.New("disk full")

	res, err := NewPuller(src).Run(context.Background(), domain.InitialCheckpoint(), func(r *domain.Round) error {
		if r.Seq == 2 {
			return sinkErr
		}
		return nil
	})
	if !errors.Is(err, sinkErr) {
		t.Fatalf("Run() error = %v, want %v", err, sinkErr)
	}
	if res.Checkpoint != *checkpointAt(1, 1) {
		t.Errorf("Checkpoint = %+v, want the round 1 checkpoint", res.Checkpoint)
	}
	if res.Rounds != 1 {
		t.Errorf("Rounds = %d, want 1", res.Rounds)
	}
}

func TestPuller_MaxRounds(t *testing.T) {
	src := &scriptedSource{rounds: []*domain.Round{
		{ShouldContinue: true, Next: checkpointAt(1, 0)},
		{ShouldContinue: true, Next: checkpointAt(2, 0)},
		{ShouldContinue: true, Next: checkpointAt(3, 0)},
	}}

	res, err := NewPuller(src, WithMaxRounds(2)).Run(context.Background(), domain.InitialCheckpoint(), nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.State != StateContinuing.String() || res.Rounds != 2 {
		t.Errorf("Result = %+v, want continuing after 2 rounds", res)
	}
}

func TestPullSession_NextAfterDone(t *testing.T) {
	sess := NewPuller(&scriptedSource{}).Start(domain.InitialCheckpoint())
	if sess.State() != StateIdle {
		t.Errorf("State() = %s, want idle", sess.State())
	}

	if _, err := sess.Next(context.Background()); err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if sess.State() != StateDone {
		t.Fatalf("State() = %s, want done", sess.State())
	}
	if _, err := sess.Next(context.Background()); err != io.EOF {
		t.Errorf("Next() after done = %v, want io.EOF", err)
	}
}

func TestPuller_Mode(t *testing.T) {
	if got := NewPuller(&scriptedSource{mode: "sparse"}).Mode(); got != "sparse" {
		t.Errorf("Mode() = %q, want sparse", got)
	}
}

func TestPullState_String(t *testing.T) {
	tests := map[PullState]string{
		StateIdle:       "idle",
		StatePulling:    "pulling",
		StateContinuing: "continuing",
		StateDone:       "done",
		StateFailed:     "failed",
	}
	for s, want := range tests {
		if s.String() != want {
			t.Errorf("String() = %q, want %q", s.String(), want)
		}
	}
	if !StateDone.Terminal() || StateContinuing.Terminal() {
		t.Error("Terminal() mismatch")
	}
}
