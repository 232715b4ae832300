package config

import (
	"time"

	"github.com/yndnr/ledgersnap/internal/cli/connection"
	"github.com/yndnr/ledgersnap/internal/core/domain"
	"github.com/yndnr/ledgersnap/internal/core/service"
	"github.com/yndnr/ledgersnap/internal/storage/snapshot"
)

// Config is the complete ledgersnap configuration.
type Config struct {
	Node     NodeConfig     `koanf:"node" yaml:"node" json:"node"`
	Pull     PullConfig     `koanf:"pull" yaml:"pull" json:"pull"`
	Fetch    FetchConfig    `koanf:"fetch" yaml:"fetch" json:"fetch"`
	Storage  StorageConfig  `koanf:"storage" yaml:"storage" json:"storage"`
	Snapshot SnapshotConfig `koanf:"snapshot" yaml:"snapshot" json:"snapshot"`
	Keys     KeysConfig     `koanf:"keys" yaml:"keys" json:"keys"`
	Log      LogConfig      `koanf:"log" yaml:"log" json:"log"`
	Metrics  MetricsConfig  `koanf:"metrics" yaml:"metrics" json:"metrics"`
	Output   string         `koanf:"output" yaml:"output" json:"output"` // table, json, yaml
}

// NodeConfig describes the node to talk to.
type NodeConfig struct {
	Endpoint string            `koanf:"endpoint" yaml:"endpoint" json:"endpoint"`
	Timeout  time.Duration     `koanf:"timeout" yaml:"timeout" json:"timeout"`
	Headers  map[string]string `koanf:"headers" yaml:"headers,omitempty" json:"headers,omitempty"`
	Insecure bool              `koanf:"insecure" yaml:"insecure" json:"insecure"`
	// CAFile is trusted in addition to the system roots.
	CAFile string `koanf:"ca_file" yaml:"ca_file,omitempty" json:"ca_file,omitempty"`
	// CertFile and KeyFile are a client certificate for mutual TLS.
	CertFile string `koanf:"cert_file" yaml:"cert_file,omitempty" json:"cert_file,omitempty"`
	KeyFile  string `koanf:"key_file" yaml:"key_file,omitempty" json:"key_file,omitempty"`
}

// PullConfig configures ledger diff pulls.
type PullConfig struct {
	// Mode is "dense" or "sparse".
	Mode         string `koanf:"mode" yaml:"mode" json:"mode"`
	MaxReceivers uint64 `koanf:"max_receivers" yaml:"max_receivers" json:"max_receivers"`
	MaxSenders   uint64 `koanf:"max_senders" yaml:"max_senders" json:"max_senders"`
	// MaxRounds bounds one pull session; 0 means until the node is drained.
	MaxRounds int `koanf:"max_rounds" yaml:"max_rounds" json:"max_rounds"`
	// RoundsPerSecond paces rounds; 0 disables pacing.
	RoundsPerSecond float64 `koanf:"rounds_per_second" yaml:"rounds_per_second" json:"rounds_per_second"`
	// FollowInterval is the pause between sessions in follow mode.
	FollowInterval time.Duration `koanf:"follow_interval" yaml:"follow_interval" json:"follow_interval"`
}

// FetchConfig configures batched storage lookups.
type FetchConfig struct {
	BatchSize      int  `koanf:"batch_size" yaml:"batch_size" json:"batch_size"`
	AdaptiveShrink bool `koanf:"adaptive_shrink" yaml:"adaptive_shrink" json:"adaptive_shrink"`
	MinBatchSize   int  `koanf:"min_batch_size" yaml:"min_batch_size" json:"min_batch_size"`
	// ChunksPerSecond paces storage queries; 0 disables pacing.
	ChunksPerSecond float64 `koanf:"chunks_per_second" yaml:"chunks_per_second" json:"chunks_per_second"`
	// Verify decodes fetched values and fails on malformed ones.
	Verify bool `koanf:"verify" yaml:"verify" json:"verify"`
}

// StorageConfig configures the ledger store.
type StorageConfig struct {
	Dir        string        `koanf:"dir" yaml:"dir" json:"dir"`
	InMemory   bool          `koanf:"in_memory" yaml:"in_memory" json:"in_memory"`
	SyncWrites bool          `koanf:"sync_writes" yaml:"sync_writes" json:"sync_writes"`
	GCInterval time.Duration `koanf:"gc_interval" yaml:"gc_interval" json:"gc_interval"`
	CacheSize  int64         `koanf:"cache_size" yaml:"cache_size" json:"cache_size"`
}

// SnapshotConfig configures snapshot extraction output.
type SnapshotConfig struct {
	Dir string `koanf:"dir" yaml:"dir" json:"dir"`
	// Format is "snap", "json" or "both".
	Format         string `koanf:"format" yaml:"format" json:"format"`
	JSONDir        string `koanf:"json_dir" yaml:"json_dir" json:"json_dir"`
	RetentionCount int    `koanf:"retention_count" yaml:"retention_count" json:"retention_count"`
	// Passphrase enables encryption of snapshot data blocks.
	Passphrase string `koanf:"passphrase" yaml:"passphrase,omitempty" json:"-"`
	Algorithm  string `koanf:"algorithm" yaml:"algorithm,omitempty" json:"algorithm,omitempty"`
}

// KeysConfig configures where storage keys come from.
type KeysConfig struct {
	// File is a JSON key listing; empty means enumerate keys on chain.
	File     string `koanf:"file" yaml:"file" json:"file"`
	Pallet   string `koanf:"pallet" yaml:"pallet" json:"pallet"`
	PageSize int    `koanf:"page_size" yaml:"page_size" json:"page_size"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `koanf:"level" yaml:"level" json:"level"`
	Format string `koanf:"format" yaml:"format" json:"format"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Addr is the listen address for /metrics; empty disables it.
	Addr string `koanf:"addr" yaml:"addr" json:"addr"`
}

// Snapshot output formats.
const (
	FormatSnap = "snap"
	FormatJSON = "json"
	FormatBoth = "both"
)

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Node: NodeConfig{
			Endpoint: "http://127.0.0.1:9933",
			Timeout:  connection.DefaultTimeout,
		},
		Pull: PullConfig{
			Mode:           connection.ModeDense,
			MaxReceivers:   service.DefaultMaxReceivers,
			MaxSenders:     service.DefaultMaxSenders,
			FollowInterval: 12 * time.Second,
		},
		Fetch: FetchConfig{
			BatchSize:    service.DefaultBatchSize,
			MinBatchSize: 64,
		},
		Storage: StorageConfig{
			Dir:        "data/ledger",
			SyncWrites: true,
			GCInterval: 10 * time.Minute,
			CacheSize:  64 << 20,
		},
		Snapshot: SnapshotConfig{
			Dir:            "data/snapshots",
			Format:         FormatSnap,
			JSONDir:        "data/json",
			RetentionCount: snapshot.DefaultRetentionCount,
		},
		Keys: KeysConfig{
			Pallet:   domain.DefaultPallet,
			PageSize: service.DefaultPageSize,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Output: "table",
	}
}
