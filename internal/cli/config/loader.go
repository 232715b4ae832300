package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/yndnr/ledgersnap/internal/cli/connection"
	"github.com/yndnr/ledgersnap/internal/infra/confloader"
	"github.com/yndnr/ledgersnap/internal/telemetry/logger"
)

// EnvPassphrase holds the snapshot passphrase when it is not in the
// config file.
const EnvPassphrase = "LEDGERSNAP_SNAPSHOT_PASSPHRASE"

// passphraseKey is where the loader files EnvPassphrase, which has no
// section separator.
const passphraseKey = "snapshot_passphrase"

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".ledgersnap", "config.yaml")
}

// Load builds the configuration from defaults, the file at path,
// LEDGERSNAP_* environment variables and flags (dotted keys), in
// increasing priority. An empty path uses DefaultConfigPath and tolerates
// its absence; an explicit path must exist.
func Load(path string, flags map[string]any) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultConfigPath()
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			path = ""
		}
	}

	cfg := Default()
	l := confloader.NewLoader(confloader.WithConfigFile(path))
	if err := l.Load(cfg); err != nil {
		return nil, err
	}
	if err := l.LoadMap(flags); err != nil {
		return nil, err
	}
	if err := l.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if p := l.GetString(passphraseKey); p != "" && cfg.Snapshot.Passphrase == "" {
		cfg.Snapshot.Passphrase = p
	}

	return cfg, nil
}

// Verify checks the configuration for values no command can run with.
func (c *Config) Verify() error {
	var errs []error

	if c.Node.Endpoint == "" {
		errs = append(errs, errors.New("node.endpoint is required"))
	} else if !strings.HasPrefix(c.Node.Endpoint, "/") && !strings.HasPrefix(c.Node.Endpoint, "./") {
		if _, err := url.Parse(c.Node.Endpoint); err != nil {
			errs = append(errs, fmt.Errorf("node.endpoint: %w", err))
		}
	}
	if (c.Node.CertFile == "") != (c.Node.KeyFile == "") {
		errs = append(errs, errors.New("node.cert_file and node.key_file must be set together"))
	}
	if c.Node.Timeout < 0 {
		errs = append(errs, errors.New("node.timeout must not be negative"))
	}

	switch c.Pull.Mode {
	case connection.ModeDense, connection.ModeSparse:
	default:
		errs = append(errs, fmt.Errorf("pull.mode %q: want dense or sparse", c.Pull.Mode))
	}
	if c.Pull.MaxReceivers == 0 && c.Pull.MaxSenders == 0 {
		errs = append(errs, errors.New("pull.max_receivers and pull.max_senders cannot both be 0"))
	}
	if c.Pull.MaxRounds < 0 {
		errs = append(errs, errors.New("pull.max_rounds must not be negative"))
	}
	if c.Pull.RoundsPerSecond < 0 || c.Fetch.ChunksPerSecond < 0 {
		errs = append(errs, errors.New("rate limits must not be negative"))
	}

	if c.Fetch.BatchSize <= 0 {
		errs = append(errs, errors.New("fetch.batch_size must be positive"))
	}
	if c.Fetch.AdaptiveShrink && (c.Fetch.MinBatchSize <= 0 || c.Fetch.MinBatchSize > c.Fetch.BatchSize) {
		errs = append(errs, errors.New("fetch.min_batch_size must be in (0, batch_size]"))
	}

	if c.Storage.Dir == "" && !c.Storage.InMemory {
		errs = append(errs, errors.New("storage.dir is required unless storage.in_memory is set"))
	}

	switch c.Snapshot.Format {
	case FormatSnap, FormatJSON, FormatBoth:
	default:
		errs = append(errs, fmt.Errorf("snapshot.format %q: want snap, json or both", c.Snapshot.Format))
	}
	if c.Snapshot.Format != FormatJSON && c.Snapshot.Dir == "" {
		errs = append(errs, errors.New("snapshot.dir is required"))
	}
	if c.Snapshot.Format != FormatSnap && c.Snapshot.JSONDir == "" {
		errs = append(errs, errors.New("snapshot.json_dir is required"))
	}

	if c.Keys.PageSize <= 0 {
		errs = append(errs, errors.New("keys.page_size must be positive"))
	}

	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}

	switch c.Output {
	case "table", "json", "yaml":
	default:
		errs = append(errs, fmt.Errorf("output %q: want table, json or yaml", c.Output))
	}

	return errors.Join(errs...)
}
