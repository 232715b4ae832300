package command

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/urfave/cli/v2"

	"github.com/yndnr/ledgersnap/internal/cli/config"
	"github.com/yndnr/ledgersnap/internal/cli/connection"
	"github.com/yndnr/ledgersnap/internal/cli/output"
	"github.com/yndnr/ledgersnap/internal/core/domain"
	"github.com/yndnr/ledgersnap/internal/core/service"
	"github.com/yndnr/ledgersnap/internal/infra/shutdown"
	"github.com/yndnr/ledgersnap/internal/storage/snapshot"
	"github.com/yndnr/ledgersnap/internal/telemetry/logger"
)

// ExtractCommand returns the extract command.
func ExtractCommand() *cli.Command {
	return &cli.Command{
		Name:  "extract",
		Usage: "Snapshot the shard, shard tree and void number groups at one block",
		Description: `Lists the keys of every group, from --keys-file or by enumerating
chain storage, and fetches their values in batches, all pinned to one
block (the finalized head unless --at is given). Each group is written
as a .snap file, a JSON array, or both.`,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "at", Usage: "block hash (default: finalized head)"},
			&cli.StringFlag{Name: "keys-file", Aliases: []string{"k"}, Usage: "JSON key listing instead of on-chain enumeration"},
			&cli.StringFlag{Name: "pallet", Usage: "pallet owning the storage items"},
			&cli.IntFlag{Name: "page-size", Usage: "keys per enumeration page"},
			&cli.IntFlag{Name: "batch-size", Usage: "keys per storage query"},
			&cli.BoolFlag{Name: "adaptive-shrink", Usage: "halve the batch after a failed query"},
			&cli.IntFlag{Name: "min-batch-size", Usage: "smallest batch for --adaptive-shrink"},
			&cli.Float64Flag{Name: "chunks-per-second", Usage: "pace storage queries (0: unpaced)"},
			&cli.BoolFlag{Name: "verify", Usage: "decode values and fail on malformed ones"},
			&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Usage: "snap, json or both"},
			&cli.StringFlag{Name: "snapshot-dir", Usage: "directory for .snap files"},
			&cli.StringFlag{Name: "json-dir", Usage: "directory for JSON exports"},
			&cli.IntFlag{Name: "retention", Usage: "snapshots kept per group"},
			&cli.BoolFlag{Name: "quiet", Aliases: []string{"q"}, Usage: "no progress bar"},
		},
		Action: runExtract,
	}
}

// groupRow summarises one extracted group.
type groupRow struct {
	Group       domain.KeyGroup `json:"group" yaml:"group"`
	Keys        int             `json:"keys" yaml:"keys"`
	Missing     int             `json:"missing" yaml:"missing"`
	Receivers   int             `json:"receivers,omitempty" yaml:"receivers,omitempty"`
	VoidNumbers int             `json:"void_numbers,omitempty" yaml:"void_numbers,omitempty"`
	Elapsed     time.Duration   `json:"elapsed" yaml:"elapsed"`
	Snapshot    string          `json:"snapshot,omitempty" yaml:"snapshot,omitempty"`
	CID         string          `json:"cid,omitempty" yaml:"cid,omitempty"`
}

// extractSummary is the result of an extraction.
type extractSummary struct {
	RunID  string     `json:"run_id" yaml:"run_id"`
	At     string     `json:"at" yaml:"at"`
	Groups []groupRow `json:"groups" yaml:"groups"`
	Pruned int        `json:"pruned,omitempty" yaml:"pruned,omitempty"`
}

func (s *extractSummary) Table() *output.Table {
	t := output.NewTable("GROUP", "KEYS", "MISSING", "ELAPSED", "SNAPSHOT")
	for _, g := range s.Groups {
		snap := g.Snapshot
		if snap == "" {
			snap = "-"
		}
		t.AddRow(string(g.Group),
			strconv.Itoa(g.Keys),
			strconv.Itoa(g.Missing),
			g.Elapsed.Round(time.Millisecond).String(),
			snap)
	}
	return t
}

func runExtract(c *cli.Context) error {
	e, err := loadEnv(c)
	if err != nil {
		return err
	}

	ctx, stop := shutdown.NewHandler(shutdown.DefaultTimeout).Context(c.Context)
	defer stop()

	client, err := e.client(ctx)
	if err != nil {
		return err
	}

	at := c.String("at")
	if at == "" {
		if at, err = client.FinalizedHead(ctx); err != nil {
			return fmt.Errorf("finalized head: %w", err)
		}
	}
	l := e.log.With("at", at)

	listing, err := keyListing(ctx, e, client, at)
	if err != nil {
		return err
	}
	l.Info("keys listed",
		"shards", len(listing.Shards),
		"shard_trees", len(listing.ShardTrees),
		"void_numbers", len(listing.VoidNumbers))

	fetchOpts := []service.FetcherOption{
		service.WithBatchSize(e.cfg.Fetch.BatchSize),
		service.WithFetchLimiter(limiter(e.cfg.Fetch.ChunksPerSecond)),
		service.WithFetchMetrics(e.metrics),
		service.WithFetchLogger(l),
	}
	if e.cfg.Fetch.AdaptiveShrink {
		fetchOpts = append(fetchOpts, service.WithAdaptiveShrink(e.cfg.Fetch.MinBatchSize))
	}
	var bar *output.ProgressBar
	if e.interactive() && !c.Bool("quiet") && listing.Len() > 0 {
		bar = output.NewProgressBar(e.errOut, "fetching", int64(listing.Len()))
		fetchOpts = append(fetchOpts, service.WithProgress(func(chunk, _, _ int) {
			bar.Add(int64(chunk))
		}))
	}

	runID := ulid.Make().String()
	ctx = logger.WithRunID(ctx, runID)
	sink, mgr, snaps, err := extractSinks(e, runID, at)
	if err != nil {
		return err
	}

	ex := service.NewExtractor(service.NewFetcher(client, fetchOpts...),
		service.WithVerify(e.cfg.Fetch.Verify),
		service.WithExtractLogger(l),
	)
	res, err := ex.Extract(ctx, listing, at, sink)
	if bar != nil {
		bar.Finish()
	}
	if err != nil {
		return err
	}

	summary := &extractSummary{RunID: runID, At: at}
	for _, g := range domain.KeyGroups() {
		gr := res.Groups[g]
		row := groupRow{
			Group:       g,
			Keys:        len(gr.Keys),
			Missing:     gr.Missing,
			Receivers:   gr.Receivers,
			VoidNumbers: gr.VoidNumbers,
			Elapsed:     gr.Elapsed,
		}
		if info := snaps.get(g); info != nil {
			row.Snapshot = info.ID
			row.CID = info.CID
		}
		summary.Groups = append(summary.Groups, row)
	}

	if mgr != nil {
		if summary.Pruned, err = mgr.Prune(); err != nil {
			l.Warn("snapshot prune failed", "error", err)
		}
	}

	l.Info("extraction finished", "run_id", runID, "entries", res.Entries())
	return e.print(summary)
}

// keyListing reads the key file, or enumerates every group on chain.
func keyListing(ctx context.Context, e *env, client *connection.NodeClient, at string) (*domain.KeyListing, error) {
	if e.cfg.Keys.File != "" {
		return service.LoadKeyListing(e.cfg.Keys.File)
	}
	scanner := service.NewKeyScanner(client, e.cfg.Keys.Pallet, e.cfg.Keys.PageSize, e.log)
	return scanner.Listing(ctx, at)
}

// createdSnapshots collects the snapshot infos written by a sink.
type createdSnapshots struct {
	mu    sync.Mutex
	infos map[domain.KeyGroup]*snapshot.Info
}

func (s *createdSnapshots) add(info *snapshot.Info) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.infos[info.Group] = info
}

func (s *createdSnapshots) get(g domain.KeyGroup) *snapshot.Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.infos[g]
}

// extractSinks builds the sinks for the configured snapshot format. The
// returned manager is nil when no .snap files are written.
func extractSinks(e *env, runID, at string) (service.GroupSink, *snapshot.Manager, *createdSnapshots, error) {
	snaps := &createdSnapshots{infos: make(map[domain.KeyGroup]*snapshot.Info)}
	var (
		mgr   *snapshot.Manager
		sinks []service.GroupSink
	)

	format := e.cfg.Snapshot.Format
	if format == config.FormatSnap || format == config.FormatBoth {
		var err error
		if mgr, err = newSnapshotManager(e); err != nil {
			return nil, nil, nil, err
		}
		sinks = append(sinks, mgr.Sink(runID, at, snaps.add))
	}
	if format == config.FormatJSON || format == config.FormatBoth {
		sinks = append(sinks, snapshot.JSONSink(e.cfg.Snapshot.JSONDir))
	}
	return service.Sinks(sinks...), mgr, snaps, nil
}

func newSnapshotManager(e *env) (*snapshot.Manager, error) {
	return snapshot.NewManager(snapshot.Config{
		Dir:            e.cfg.Snapshot.Dir,
		RetentionCount: e.cfg.Snapshot.RetentionCount,
		Encryption: snapshot.EncryptionConfig{
			Passphrase: []byte(e.cfg.Snapshot.Passphrase),
			Algorithm:  e.cfg.Snapshot.Algorithm,
		},
		Logger:  e.log,
		Metrics: e.metrics,
	})
}
