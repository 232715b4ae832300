package command

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/ledgersnap/internal/cli/output"
	"github.com/yndnr/ledgersnap/internal/core/domain"
	"github.com/yndnr/ledgersnap/internal/storage/snapshot"
	"github.com/yndnr/ledgersnap/pkg/scale"
)

// InspectCommand returns the inspect command.
func InspectCommand() *cli.Command {
	return &cli.Command{
		Name:      "inspect",
		Usage:     "Verify a snapshot file and show its header",
		ArgsUsage: "<file.snap> | --latest <group>",
		Description: `Checks the file checksum and header. With --decode the data block is
decrypted if needed, checked against its CID and decoded; --verify also
decodes every shard value as a receiver. --export writes the values as
a JSON array ("-" for stdout).

--latest loads the newest readable snapshot of a group from the snapshot
directory instead of a named file, skipping corrupted ones.`,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "latest", Usage: "inspect the newest snapshot of this key group (implies --decode)"},
			&cli.StringFlag{Name: "snapshot-dir", Usage: "directory searched by --latest"},
			&cli.BoolFlag{Name: "decode", Usage: "decode the data block"},
			&cli.BoolFlag{Name: "verify", Usage: "decode every value of the group (implies --decode)"},
			&cli.StringFlag{Name: "export", Usage: "write values as JSON to this file (implies --decode)"},
		},
		Action: runInspect,
	}
}

// inspectResult adds decode results to the snapshot header.
type inspectResult struct {
	snapshot.Info `yaml:",inline"`
	Decoded       bool `json:"decoded" yaml:"decoded"`
	Verified      int  `json:"verified,omitempty" yaml:"verified,omitempty"`
}

func (r *inspectResult) Table() *output.Table {
	t := output.NewTable("FIELD", "VALUE")
	t.AddRow("id", r.ID)
	t.AddRow("group", string(r.Group))
	t.AddRow("block_hash", r.BlockHash)
	t.AddRow("entries", strconv.FormatUint(r.EntryCount, 10))
	t.AddRow("missing", strconv.FormatUint(r.MissingCount, 10))
	t.AddRow("encrypted", strconv.FormatBool(r.Encrypted))
	t.AddRow("size", output.FormatBytes(r.Size))
	t.AddRow("cid", r.CID)
	t.AddRow("verified", strconv.Itoa(r.Verified))
	return t
}

func runInspect(c *cli.Context) error {
	path := c.Args().First()
	latest := c.String("latest")
	switch {
	case path == "" && latest == "":
		return errors.New("inspect: snapshot file required")
	case path != "" && latest != "":
		return errors.New("inspect: give a snapshot file or --latest, not both")
	}
	e, err := loadEnv(c)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if latest != "" {
		if dir = e.cfg.Snapshot.Dir; dir == "" {
			return errors.New("inspect: --latest needs snapshot.dir")
		}
	}
	mgr, err := snapshot.NewManager(snapshot.Config{
		Dir: dir,
		Encryption: snapshot.EncryptionConfig{
			Passphrase: []byte(e.cfg.Snapshot.Passphrase),
			Algorithm:  e.cfg.Snapshot.Algorithm,
		},
		Logger: e.log,
	})
	if err != nil {
		return err
	}

	exportPath := c.String("export")
	var (
		entries []snapshot.Entry
		info    *snapshot.Info
	)
	switch {
	case latest != "":
		group, err := domain.ParseKeyGroup(latest)
		if err != nil {
			return err
		}
		if entries, info, err = mgr.Latest(group); err != nil {
			return fmt.Errorf("latest %s snapshot: %w", group, err)
		}
	case !c.Bool("decode") && !c.Bool("verify") && exportPath == "":
		info, err := mgr.Inspect(path)
		if err != nil {
			return err
		}
		return e.print(info)
	default:
		if entries, info, err = mgr.Load(path); err != nil {
			return err
		}
	}
	res := &inspectResult{Info: *info, Decoded: true}

	if c.Bool("verify") {
		if res.Verified, err = verifyEntries(info.Group, entries); err != nil {
			return err
		}
	}

	switch exportPath {
	case "":
	case "-":
		return snapshot.ExportEntries(e.out, entries)
	default:
		f, err := os.Create(exportPath)
		if err != nil {
			return err
		}
		if err := snapshot.ExportEntries(f, entries); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		e.log.Info("values exported", "path", exportPath, "entries", len(entries))
	}

	return e.print(res)
}

// verifyEntries decodes every present value of group and returns how
// many were checked.
func verifyEntries(group domain.KeyGroup, entries []snapshot.Entry) (int, error) {
	n := 0
	for _, en := range entries {
		if en.Missing() {
			continue
		}
		var err error
		switch group {
		case domain.GroupShards:
			_, err = scale.DecodeExact[domain.Receiver](en.Value)
		case domain.GroupVoidNumbers:
			if len(en.Value) != domain.VoidNumberSize {
				err = fmt.Errorf("void number is %d bytes, want %d", len(en.Value), domain.VoidNumberSize)
			}
		default:
			continue
		}
		if err != nil {
			return n, domain.ErrDecodeFailed.WithDetailsf("%s value of key %s", group, en.Key).WithCause(err)
		}
		n++
	}
	return n, nil
}
