package command

import (
	"github.com/urfave/cli/v2"

	"github.com/yndnr/ledgersnap/internal/cli/output"
	"github.com/yndnr/ledgersnap/internal/infra/buildinfo"
)

// VersionCommand returns the version command. It does not read the
// configuration.
func VersionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Show build information",
		Action: func(c *cli.Context) error {
			format, err := output.ParseFormat(c.String("output"))
			if err != nil {
				return err
			}
			return output.Print(c.App.Writer, format, buildinfo.Get())
		},
	}
}
