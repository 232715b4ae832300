package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v2"
	"golang.org/x/time/rate"

	"github.com/yndnr/ledgersnap/internal/cli/config"
	"github.com/yndnr/ledgersnap/internal/cli/connection"
	"github.com/yndnr/ledgersnap/internal/cli/output"
	"github.com/yndnr/ledgersnap/internal/infra/buildinfo"
	"github.com/yndnr/ledgersnap/internal/storage"
	"github.com/yndnr/ledgersnap/internal/telemetry/logger"
	"github.com/yndnr/ledgersnap/internal/telemetry/metric"
)

// metaConnMgr is the App.Metadata key of the shared connection manager.
const metaConnMgr = "connMgr"

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:    "ledgersnap",
		Usage:   "Pull and snapshot shielded-pool ledger state from a node",
		Version: buildinfo.String(),
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			PullCommand(),
			FollowCommand(),
			ExtractCommand(),
			KeysCommand(),
			CheckpointCommand(),
			LedgerCommand(),
			InspectCommand(),
			ShellCommand(),
			VersionCommand(),
		},
		Before: func(c *cli.Context) error {
			if c.IsSet("output") {
				if _, err := output.ParseFormat(c.String("output")); err != nil {
					return err
				}
			}
			return nil
		},
		After: func(c *cli.Context) error {
			if mgr := GetConnectionManager(c); mgr != nil {
				mgr.Close()
			}
			return nil
		},
	}
}

// globalFlags returns the flags available to every command. Flags carry
// no defaults of their own; unset flags leave the configuration alone.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "config file (default ~/.ledgersnap/config.yaml)",
			EnvVars: []string{"LEDGERSNAP_CONFIG"},
		},
		&cli.StringFlag{
			Name:    "endpoint",
			Aliases: []string{"e"},
			Usage:   "node endpoint (http, ws, or IPC path)",
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "per-call node timeout",
		},
		&cli.BoolFlag{
			Name:  "insecure",
			Usage: "skip TLS certificate verification",
		},
		&cli.StringFlag{
			Name:  "ca-file",
			Usage: "PEM bundle trusted for https and wss endpoints",
		},
		&cli.StringFlag{
			Name:    "data-dir",
			Aliases: []string{"d"},
			Usage:   "ledger store directory",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "output format: table, json, yaml",
		},
		&cli.BoolFlag{
			Name:    "wide",
			Aliases: []string{"w"},
			Usage:   "show more columns",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "trace, debug, info, warn or error",
		},
		&cli.StringFlag{
			Name:  "log-format",
			Usage: "text or json",
		},
	}
}

// flagKeys maps flag names to configuration keys.
var flagKeys = map[string]string{
	"endpoint":          "node.endpoint",
	"timeout":           "node.timeout",
	"insecure":          "node.insecure",
	"ca-file":           "node.ca_file",
	"data-dir":          "storage.dir",
	"output":            "output",
	"log-level":         "log.level",
	"log-format":        "log.format",
	"max-receivers":     "pull.max_receivers",
	"max-senders":       "pull.max_senders",
	"max-rounds":        "pull.max_rounds",
	"rounds-per-second": "pull.rounds_per_second",
	"interval":          "pull.follow_interval",
	"metrics-addr":      "metrics.addr",
	"batch-size":        "fetch.batch_size",
	"adaptive-shrink":   "fetch.adaptive_shrink",
	"min-batch-size":    "fetch.min_batch_size",
	"chunks-per-second": "fetch.chunks_per_second",
	"verify":            "fetch.verify",
	"snapshot-dir":      "snapshot.dir",
	"format":            "snapshot.format",
	"json-dir":          "snapshot.json_dir",
	"retention":         "snapshot.retention_count",
	"keys-file":         "keys.file",
	"pallet":            "keys.pallet",
	"page-size":         "keys.page_size",
}

// flagOverrides returns the configuration keys of every flag set on the
// command line, global or command level.
func flagOverrides(c *cli.Context) map[string]any {
	m := make(map[string]any)
	for name, key := range flagKeys {
		if c.IsSet(name) {
			m[key] = c.Value(name)
		}
	}
	return m
}

// env is what a command needs after configuration is resolved.
type env struct {
	cfg        *config.Config
	configPath string
	overrides  map[string]any
	log        logger.Logger
	out        io.Writer
	errOut     io.Writer
	format     output.Format
	wide       bool
	conn       *connection.Manager
	metrics    *metric.Registry
}

// loadEnv resolves the configuration for the running command and sets up
// logging and the node connection manager.
func loadEnv(c *cli.Context) (*env, error) {
	path := c.String("config")
	overrides := flagOverrides(c)
	cfg, err := config.Load(path, overrides)
	if err != nil {
		return nil, err
	}
	if err := cfg.Verify(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	format, err := output.ParseFormat(cfg.Output)
	if err != nil {
		return nil, err
	}

	errOut := c.App.ErrWriter
	if errOut == nil {
		errOut = os.Stderr
	}
	log, err := logger.New(logger.Config{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Output:  errOut,
		Command: commandName(c),
	})
	if err != nil {
		return nil, err
	}
	logger.SetDefault(log)

	if path == "" {
		if _, err := os.Stat(config.DefaultConfigPath()); err == nil {
			path = config.DefaultConfigPath()
		}
	}

	mgr := connection.NewManager(connection.Config{
		Endpoint: cfg.Node.Endpoint,
		Timeout:  cfg.Node.Timeout,
		Headers:  cfg.Node.Headers,
		Insecure: cfg.Node.Insecure,
		CAFile:   cfg.Node.CAFile,
		CertFile: cfg.Node.CertFile,
		KeyFile:  cfg.Node.KeyFile,
	}, log)
	c.App.Metadata[metaConnMgr] = mgr

	out := c.App.Writer
	if out == nil {
		out = os.Stdout
	}

	return &env{
		cfg:        cfg,
		configPath: path,
		overrides:  overrides,
		log:        log,
		out:        out,
		errOut:     errOut,
		format:     format,
		wide:       c.Bool("wide"),
		conn:       mgr,
		metrics:    metric.NewRegistry(),
	}, nil
}

// GetConnectionManager returns the connection manager of the running
// command, if it has created one.
func GetConnectionManager(c *cli.Context) *connection.Manager {
	if mgr, ok := c.App.Metadata[metaConnMgr].(*connection.Manager); ok {
		return mgr
	}
	return nil
}

// client returns the shared node client.
func (e *env) client(ctx context.Context) (*connection.NodeClient, error) {
	return e.conn.Client(ctx)
}

// openStore opens the ledger store described by the configuration.
func (e *env) openStore() (*storage.LedgerStore, error) {
	kv := storage.DefaultKVConfig(e.cfg.Storage.Dir)
	kv.InMemory = e.cfg.Storage.InMemory
	kv.Badger.SyncWrites = e.cfg.Storage.SyncWrites
	if e.cfg.Storage.GCInterval > 0 {
		kv.Badger.GCInterval = e.cfg.Storage.GCInterval
	}
	if e.cfg.Storage.CacheSize > 0 {
		kv.Badger.CacheSize = e.cfg.Storage.CacheSize
	}

	store, err := storage.OpenLedgerStore(kv, e.log)
	if err != nil {
		return nil, fmt.Errorf("open ledger store: %w", err)
	}
	return store, nil
}

// print writes a command result in the configured format.
func (e *env) print(data any) error {
	return output.NewFormatter(e.format, e.wide).Format(e.out, data)
}

// interactive reports whether progress output makes sense: table output
// with stderr on a terminal.
func (e *env) interactive() bool {
	if e.format != output.FormatTable {
		return false
	}
	f, ok := e.errOut.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}

// limiter returns a limiter allowing perSecond events, or nil when pacing
// is disabled.
func limiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(perSecond), 1)
}

// commandName is the space separated path of the running subcommand.
func commandName(c *cli.Context) string {
	if c.Command == nil {
		return ""
	}
	return c.Command.FullName()
}

// PrintError prints an error message to stderr.
func PrintError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
}

// ExitCode maps an error returned by App().Run to a process exit code.
// Interrupted runs exit with 130 like a shell does.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, context.Canceled):
		return 130
	default:
		return 1
	}
}
