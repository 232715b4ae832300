package command

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/ledgersnap/internal/cli/config"
	"github.com/yndnr/ledgersnap/internal/cli/repl"
)

// ShellCommand returns the shell command. Every line runs as a ledgersnap
// command line with the global flags given to shell itself.
func ShellCommand() *cli.Command {
	return &cli.Command{
		Name:  "shell",
		Usage: "Run commands interactively",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "history-file",
				Usage: "history file (default ~/.ledgersnap/history)",
			},
		},
		Action: func(c *cli.Context) error {
			globals := forwardedFlags(c)
			exec := func(ctx context.Context, args []string) error {
				app := App()
				app.Reader = c.App.Reader
				app.Writer = c.App.Writer
				app.ErrWriter = c.App.ErrWriter
				app.ExitErrHandler = func(*cli.Context, error) {}

				argv := append([]string{c.App.Name}, globals...)
				return app.RunContext(ctx, append(argv, args...))
			}

			historyFile := c.String("history-file")
			if historyFile == "" {
				historyFile = filepath.Join(filepath.Dir(config.DefaultConfigPath()), "history")
			}

			r := repl.New(exec, commandPaths(c.App.Commands),
				repl.WithIO(c.App.Reader, c.App.Writer),
				repl.WithHistory(repl.NewHistory(historyFile)))
			return r.Run(c.Context)
		},
	}
}

// forwardedFlags renders the global flags set on the command line.
func forwardedFlags(c *cli.Context) []string {
	var args []string
	for _, f := range globalFlags() {
		name := f.Names()[0]
		if c.IsSet(name) {
			args = append(args, fmt.Sprintf("--%s=%v", name, c.Value(name)))
		}
	}
	return args
}

// commandPaths lists the visible commands and their subcommands.
func commandPaths(cmds []*cli.Command) []string {
	paths := []string{"help"}
	for _, cmd := range cmds {
		if cmd.Hidden || cmd.Name == "shell" || cmd.Name == "help" {
			continue
		}
		paths = append(paths, cmd.Name)
		for _, sub := range cmd.Subcommands {
			if !sub.Hidden && sub.Name != "help" {
				paths = append(paths, cmd.Name+" "+sub.Name)
			}
		}
	}
	return paths
}
