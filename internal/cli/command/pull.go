package command

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/ledgersnap/internal/cli/connection"
	"github.com/yndnr/ledgersnap/internal/core/domain"
	"github.com/yndnr/ledgersnap/internal/core/service"
	"github.com/yndnr/ledgersnap/internal/infra/shutdown"
	"github.com/yndnr/ledgersnap/internal/storage"
)

// PullCommand returns the pull command.
func PullCommand() *cli.Command {
	return &cli.Command{
		Name:  "pull",
		Usage: "Pull ledger diffs from the stored checkpoint into the ledger store",
		Description: `Pulls dense ledger diff rounds until the node reports no more data,
storing each round together with its next checkpoint. An interrupted
pull resumes from the last stored round.

With --sparse a single round is pulled through the runtime API and
summarised without touching the store.`,
		Flags: append(pullFlags(),
			&cli.BoolFlag{
				Name:  "from-zero",
				Usage: "clear the ledger store and pull from the initial checkpoint",
			},
			&cli.BoolFlag{
				Name:  "sparse",
				Usage: "inspect a single sparse round instead of pulling",
			},
			&cli.StringFlag{
				Name:  "at",
				Usage: "block hash for --sparse (default: best block)",
			},
		),
		Action: runPull,
	}
}

func pullFlags() []cli.Flag {
	return []cli.Flag{
		&cli.Uint64Flag{
			Name:  "max-receivers",
			Usage: "receivers per round",
		},
		&cli.Uint64Flag{
			Name:  "max-senders",
			Usage: "senders per round",
		},
		&cli.IntFlag{
			Name:  "max-rounds",
			Usage: "stop after this many rounds (0: until drained)",
		},
		&cli.Float64Flag{
			Name:  "rounds-per-second",
			Usage: "pace rounds (0: unpaced)",
		},
	}
}

// pullSummary is the result of one pull session.
type pullSummary struct {
	RunID       string         `json:"run_id" yaml:"run_id"`
	State       string         `json:"state" yaml:"state"`
	Rounds      uint64         `json:"rounds" yaml:"rounds"`
	Receivers   uint64         `json:"receivers" yaml:"receivers"`
	Senders     uint64         `json:"senders" yaml:"senders"`
	SenderIndex uint64         `json:"sender_index" yaml:"sender_index"`
	Stored      *storage.Stats `json:"stored,omitempty" yaml:"stored,omitempty" table:"-"`
	Elapsed     time.Duration  `json:"elapsed" yaml:"elapsed" table:"wide"`
}

func runPull(c *cli.Context) (err error) {
	e, err := loadEnv(c)
	if err != nil {
		return err
	}

	h := shutdown.NewHandler(shutdown.DefaultTimeout)
	ctx, stop := h.Context(c.Context)
	defer stop()

	if c.Bool("sparse") || e.cfg.Pull.Mode == connection.ModeSparse {
		return runSparse(ctx, e, c.String("at"))
	}

	store, err := e.openStore()
	if err != nil {
		return err
	}
	h.OnShutdown("ledger store", func(context.Context) error { return store.Close() })
	defer func() {
		if serr := h.Shutdown(); err == nil {
			err = serr
		}
	}()

	if c.Bool("from-zero") {
		if err := store.Reset(ctx); err != nil {
			return err
		}
		e.log.Info("ledger store cleared")
	}

	summary, err := pullSession(ctx, e, store)
	if summary != nil {
		if perr := e.print(summary); perr != nil && err == nil {
			err = perr
		}
	}
	return err
}

// pullSession runs one dense pull from the stored checkpoint, appending
// every round to store before it is committed.
func pullSession(ctx context.Context, e *env, store *storage.LedgerStore) (*pullSummary, error) {
	from, err := store.Checkpoint(ctx)
	if err != nil {
		return nil, err
	}
	client, err := e.client(ctx)
	if err != nil {
		return nil, err
	}
	src, err := connection.NewLedgerSource(client, connection.ModeDense, "")
	if err != nil {
		return nil, err
	}

	p := service.NewPuller(src,
		service.WithLimits(e.cfg.Pull.MaxReceivers, e.cfg.Pull.MaxSenders),
		service.WithMaxRounds(e.cfg.Pull.MaxRounds),
		service.WithPullLimiter(limiter(e.cfg.Pull.RoundsPerSecond)),
		service.WithPullMetrics(e.metrics),
		service.WithPullLogger(e.log),
	)

	start := time.Now()
	res, err := p.Run(ctx, from, func(r *domain.Round) error {
		return store.AppendRound(ctx, r)
	})

	summary := &pullSummary{
		RunID:       res.RunID,
		State:       res.State,
		Rounds:      res.Rounds,
		Receivers:   res.Receivers,
		Senders:     res.Senders,
		SenderIndex: res.Checkpoint.SenderIndex,
		Elapsed:     time.Since(start).Round(time.Millisecond),
	}
	if stats, serr := store.Stats(context.WithoutCancel(ctx)); serr == nil {
		summary.Stored = stats
	}
	return summary, err
}

// sparseRound summarises one sparse diff round.
type sparseRound struct {
	At             string `json:"at,omitempty" yaml:"at,omitempty"`
	SenderIndex    uint64 `json:"from_sender_index" yaml:"from_sender_index"`
	ShouldContinue bool   `json:"should_continue" yaml:"should_continue"`
	Receivers      int    `json:"receivers" yaml:"receivers"`
	Senders        int    `json:"senders" yaml:"senders"`
	Shards         int    `json:"shards" yaml:"shards"`
	Total          string `json:"senders_receivers_total" yaml:"senders_receivers_total"`
}

// runSparse pulls one sparse round from the stored checkpoint.
func runSparse(ctx context.Context, e *env, at string) error {
	store, err := e.openStore()
	if err != nil {
		return err
	}
	from, err := store.Checkpoint(ctx)
	store.Close()
	if err != nil {
		return err
	}

	client, err := e.client(ctx)
	if err != nil {
		return err
	}
	resp, err := client.SparsePull(ctx, from, e.cfg.Pull.MaxReceivers, e.cfg.Pull.MaxSenders, at)
	if err != nil {
		return fmt.Errorf("sparse pull: %w", err)
	}

	round := resp.Round()
	shards := make(map[uint8]struct{})
	for _, r := range round.Receivers {
		shards[r.Shard()] = struct{}{}
	}
	return e.print(&sparseRound{
		At:             at,
		SenderIndex:    from.SenderIndex,
		ShouldContinue: round.ShouldContinue,
		Receivers:      len(round.Receivers),
		Senders:        len(round.Senders),
		Shards:         len(shards),
		Total:          round.TotalAmount().Dec(),
	})
}
