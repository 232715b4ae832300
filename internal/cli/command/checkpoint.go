package command

import (
	"errors"
	"strconv"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/ledgersnap/internal/cli/output"
	"github.com/yndnr/ledgersnap/internal/core/domain"
)

// CheckpointCommand returns the checkpoint command group.
func CheckpointCommand() *cli.Command {
	return &cli.Command{
		Name:  "checkpoint",
		Usage: "Inspect or clear the stored pull checkpoint",
		Subcommands: []*cli.Command{
			{
				Name:  "show",
				Usage: "Show the stored checkpoint and store totals",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "shards", Usage: "list the receiver index of every non-empty shard"},
				},
				Action: runCheckpointShow,
			},
			{
				Name:  "reset",
				Usage: "Delete all stored rounds and the checkpoint",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "confirm the reset"},
				},
				Action: runCheckpointReset,
			},
		},
	}
}

// checkpointView is the stored checkpoint with store totals.
type checkpointView struct {
	SenderIndex     uint64        `json:"sender_index" yaml:"sender_index"`
	ReceiverIndex   uint64        `json:"receiver_index_total" yaml:"receiver_index_total"`
	ActiveShards    int           `json:"active_shards" yaml:"active_shards"`
	Rounds          uint64        `json:"rounds" yaml:"rounds"`
	StoredReceivers uint64        `json:"stored_receivers" yaml:"stored_receivers"`
	StoredSenders   uint64        `json:"stored_senders" yaml:"stored_senders"`
	DiskBytes       uint64        `json:"disk_bytes" yaml:"disk_bytes" table:"wide"`
	Shards          []shardCursor `json:"shards,omitempty" yaml:"shards,omitempty" table:"-"`
}

// shardCursor is the receiver index of one shard.
type shardCursor struct {
	Shard int    `json:"shard" yaml:"shard"`
	Index uint64 `json:"index" yaml:"index"`
}

// shardTable lists shard cursors.
type shardTable []shardCursor

func (s shardTable) Table() *output.Table {
	t := output.NewTable("SHARD", "RECEIVER_INDEX")
	for _, c := range s {
		t.AddRow(strconv.Itoa(c.Shard), strconv.FormatUint(c.Index, 10))
	}
	return t
}

func newCheckpointView(cp domain.Checkpoint) *checkpointView {
	v := &checkpointView{
		SenderIndex:   cp.SenderIndex,
		ReceiverIndex: cp.Receivers(),
	}
	for shard, idx := range cp.ReceiverIndex {
		if idx > 0 {
			v.ActiveShards++
			v.Shards = append(v.Shards, shardCursor{Shard: shard, Index: idx})
		}
	}
	return v
}

func runCheckpointShow(c *cli.Context) error {
	e, err := loadEnv(c)
	if err != nil {
		return err
	}
	store, err := e.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	stats, err := store.Stats(c.Context)
	if err != nil {
		return err
	}

	v := newCheckpointView(stats.Checkpoint)
	v.Rounds = stats.Rounds
	v.StoredReceivers = stats.Receivers
	v.StoredSenders = stats.Senders
	v.DiskBytes = stats.DiskBytes

	if c.Bool("shards") && e.format == output.FormatTable {
		return e.print(shardTable(v.Shards))
	}
	if !c.Bool("shards") {
		v.Shards = nil
	}
	return e.print(v)
}

func runCheckpointReset(c *cli.Context) error {
	if !c.Bool("yes") {
		return errors.New("refusing to delete the ledger store without --yes")
	}
	e, err := loadEnv(c)
	if err != nil {
		return err
	}
	store, err := e.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Reset(c.Context); err != nil {
		return err
	}
	e.log.Info("ledger store cleared", "dir", e.cfg.Storage.Dir)
	return e.print(newCheckpointView(domain.InitialCheckpoint()))
}
