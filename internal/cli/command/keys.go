package command

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/ledgersnap/internal/cli/output"
	"github.com/yndnr/ledgersnap/internal/core/domain"
	"github.com/yndnr/ledgersnap/internal/core/service"
	"github.com/yndnr/ledgersnap/internal/infra/shutdown"
)

// KeysCommand returns the keys command group.
func KeysCommand() *cli.Command {
	return &cli.Command{
		Name:  "keys",
		Usage: "List the storage keys of the extracted groups",
		Subcommands: []*cli.Command{
			keysListCommand(),
			keysPrefixCommand(),
		},
	}
}

func keysListCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "Enumerate group keys on chain",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "group", Aliases: []string{"g"}, Usage: "only this group"},
			&cli.StringFlag{Name: "at", Usage: "block hash (default: finalized head)"},
			&cli.StringFlag{Name: "pallet", Usage: "pallet owning the storage items"},
			&cli.IntFlag{Name: "page-size", Usage: "keys per page"},
			&cli.StringFlag{Name: "save", Aliases: []string{"s"}, Usage: "write the listing to this JSON file"},
		},
		Action: runKeysList,
	}
}

// keyCount is one row of keys list.
type keyCount struct {
	Group  domain.KeyGroup   `json:"group" yaml:"group"`
	Keys   int               `json:"keys" yaml:"keys"`
	Prefix domain.StorageKey `json:"prefix" yaml:"prefix" table:"wide"`
}

func runKeysList(c *cli.Context) error {
	e, err := loadEnv(c)
	if err != nil {
		return err
	}
	ctx, stop := shutdown.NewHandler(shutdown.DefaultTimeout).Context(c.Context)
	defer stop()

	groups := domain.KeyGroups()
	if name := c.String("group"); name != "" {
		g, err := domain.ParseKeyGroup(name)
		if err != nil {
			return err
		}
		groups = []domain.KeyGroup{g}
	}

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

	scanner := service.NewKeyScanner(client, e.cfg.Keys.Pallet, e.cfg.Keys.PageSize, e.log)
	listing := &domain.KeyListing{}
	var rows []keyCount
	for _, g := range groups {
		var spin *output.Spinner
		if e.interactive() {
			spin = output.NewSpinner(e.errOut, "enumerating "+string(g))
			spin.Start()
		}
		keys, err := scanner.ListGroup(ctx, g, at)
		if spin != nil {
			if err != nil {
				spin.Fail(string(g))
			} else {
				spin.Success(fmt.Sprintf("%s: %d keys", g, len(keys)))
			}
		}
		if err != nil {
			return err
		}
		if err := listing.Set(g, keys); err != nil {
			return err
		}
		rows = append(rows, keyCount{Group: g, Keys: len(keys), Prefix: scanner.Prefix(g)})
	}

	if path := c.String("save"); path != "" {
		if err := writeListing(path, listing); err != nil {
			return err
		}
		e.log.Info("key listing saved", "path", path, "keys", listing.Len(), "at", at)
	}
	return e.print(rows)
}

// writeListing writes listing in the key file format read by extract.
func writeListing(path string, listing *domain.KeyListing) error {
	data, err := json.MarshalIndent(listing, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, append(data, '\n'), 0640); err != nil {
		return fmt.Errorf("write key listing: %w", err)
	}
	return nil
}

func keysPrefixCommand() *cli.Command {
	return &cli.Command{
		Name:  "prefix",
		Usage: "Print the storage prefix of each group",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "pallet", Usage: "pallet owning the storage items"},
		},
		Action: runKeysPrefix,
	}
}

// groupPrefix is one row of keys prefix.
type groupPrefix struct {
	Group  domain.KeyGroup   `json:"group" yaml:"group"`
	Item   string            `json:"item" yaml:"item"`
	Prefix domain.StorageKey `json:"prefix" yaml:"prefix"`
}

func runKeysPrefix(c *cli.Context) error {
	e, err := loadEnv(c)
	if err != nil {
		return err
	}

	scanner := service.NewKeyScanner(nil, e.cfg.Keys.Pallet, e.cfg.Keys.PageSize, e.log)
	var rows []groupPrefix
	for _, g := range domain.KeyGroups() {
		rows = append(rows, groupPrefix{Group: g, Item: g.StorageItem(), Prefix: scanner.Prefix(g)})
	}
	return e.print(rows)
}
