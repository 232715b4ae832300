package connection

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/yndnr/ledgersnap/internal/core/domain"
	"github.com/yndnr/ledgersnap/internal/infra/buildinfo"
	"github.com/yndnr/ledgersnap/internal/infra/tlsroots"
	"github.com/yndnr/ledgersnap/internal/telemetry/logger"
	"github.com/yndnr/ledgersnap/pkg/scale"
)

// Node RPC methods.
const (
	MethodQueryStorageAt = "state_queryStorageAt"
	MethodGetKeysPaged   = "state_getKeysPaged"
	MethodStateCall      = "state_call"
	MethodFinalizedHead  = "chain_getFinalizedHead"
	MethodDensePull      = "mantaPay_dense_pull_ledger_diff"

	// RuntimeAPISparsePull is the runtime API invoked through state_call.
	RuntimeAPISparsePull = "PullLedgerDiffApi_pull_ledger_diff"
)

const (
	DefaultTimeout = 60 * time.Second
	maxDialTimeout = 30 * time.Second
)

// Config describes how to reach a node.
type Config struct {
	// Endpoint is an http(s), ws(s), unix:// or filesystem IPC endpoint.
	// Bare host:port endpoints default to http.
	Endpoint string
	// Timeout bounds every call. Zero means DefaultTimeout.
	Timeout time.Duration
	// Headers are sent with every HTTP and WebSocket request.
	Headers map[string]string
	// Insecure disables TLS certificate verification.
	Insecure bool
	// CAFile adds a PEM bundle to the trusted roots.
	CAFile string
	// CertFile and KeyFile present a client certificate, reloaded when
	// the files change.
	CertFile string
	KeyFile  string
}

func (c Config) tlsRoots() tlsroots.Config {
	return tlsroots.Config{
		CAFile:   c.CAFile,
		CertFile: c.CertFile,
		KeyFile:  c.KeyFile,
		Insecure: c.Insecure,
	}
}

// NodeClient calls a ledger node over JSON-RPC. It is safe for concurrent
// use.
type NodeClient struct {
	endpoint string
	rpc      *rpc.Client
	timeout  time.Duration
	logger   logger.Logger
	certs    *tlsroots.Watcher
}

// Dial connects to the node described by cfg. HTTP endpoints connect
// lazily; WebSocket and IPC endpoints connect immediately.
func Dial(ctx context.Context, cfg Config, l logger.Logger) (*NodeClient, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("node endpoint is empty")
	}
	if l == nil {
		l = logger.Discard()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	endpoint := normalizeEndpoint(cfg.Endpoint)
	target := endpoint
	opts := []rpc.ClientOption{rpc.WithHeader("User-Agent", buildinfo.UserAgent())}

	var certs *tlsroots.Watcher
	if p, ok := ipcPath(endpoint); ok {
		target = p
	} else {
		for k, v := range cfg.Headers {
			opts = append(opts, rpc.WithHeader(k, v))
		}
		tlsCfg, w, err := tlsroots.ClientConfig(cfg.tlsRoots(), tlsroots.WithLogger(l))
		if err != nil {
			return nil, fmt.Errorf("node tls: %w", err)
		}
		certs = w
		if isHTTP(endpoint) {
			opts = append(opts, rpc.WithHTTPClient(newHTTPClient(timeout, tlsCfg)))
		} else {
			opts = append(opts, rpc.WithWebsocketDialer(newWebsocketDialer(tlsCfg)))
		}
	}

	dialCtx, cancel := context.WithTimeout(ctx, min(timeout, maxDialTimeout))
	defer cancel()

	c, err := rpc.DialOptions(dialCtx, target, opts...)
	if err != nil {
		if certs != nil {
			certs.Stop()
		}
		return nil, fmt.Errorf("dial %s: %w", logger.RedactURL(endpoint), err)
	}
	if certs != nil {
		certs.StartAsync()
	}

	l.Debug("node client ready", "endpoint", logger.RedactURL(endpoint), "timeout", timeout)
	nc := newNodeClient(c, endpoint, timeout, l)
	nc.certs = certs
	return nc, nil
}

func newNodeClient(c *rpc.Client, endpoint string, timeout time.Duration, l logger.Logger) *NodeClient {
	return &NodeClient{
		endpoint: endpoint,
		rpc:      c,
		timeout:  timeout,
		logger:   l,
	}
}

// Endpoint returns the normalized endpoint.
func (c *NodeClient) Endpoint() string {
	return c.endpoint
}

// Close releases the connection.
func (c *NodeClient) Close() {
	c.rpc.Close()
	if c.certs != nil {
		c.certs.Stop()
	}
}

func (c *NodeClient) call(ctx context.Context, result any, method string, args ...any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	err := c.rpc.CallContext(ctx, result, method, args...)

	l := logger.L(ctx, c.logger)
	var rpcErr rpc.Error
	switch {
	case err == nil:
		l.Debug("rpc call", "method", method, "elapsed", time.Since(start))
		return nil
	case errors.As(err, &rpcErr):
		l.Debug("rpc call rejected", "method", method, "code", rpcErr.ErrorCode(), "error", err)
	default:
		l.Debug("rpc call failed", "method", method, "error", err)
	}
	return fmt.Errorf("%s: %w", method, err)
}

// optionalHash maps an empty block hash to JSON null, which nodes read as
// their best block.
func optionalHash(at string) any {
	if at == "" {
		return nil
	}
	return at
}

// FinalizedHead returns the hash of the latest finalized block.
func (c *NodeClient) FinalizedHead(ctx context.Context) (string, error) {
	var hash string
	if err := c.call(ctx, &hash, MethodFinalizedHead); err != nil {
		return "", err
	}
	return hash, nil
}

type storageChangeSet struct {
	Block   string              `json:"block"`
	Changes [][2]*hexutil.Bytes `json:"changes"`
}

// QueryStorageAt returns the values of keys at block at, in key order.
// Keys the node has no value for map to nil.
func (c *NodeClient) QueryStorageAt(ctx context.Context, keys []domain.StorageKey, at string) ([][]byte, error) {
	if len(keys) == 0 {
		return [][]byte{}, nil
	}

	var sets []storageChangeSet
	if err := c.call(ctx, &sets, MethodQueryStorageAt, keys, optionalHash(at)); err != nil {
		return nil, err
	}

	byKey := make(map[string][]byte, len(keys))
	for _, set := range sets {
		for _, change := range set.Changes {
			if change[0] == nil {
				return nil, fmt.Errorf("%s: change without key", MethodQueryStorageAt)
			}
			var value []byte
			if change[1] != nil {
				value = []byte(*change[1])
			}
			byKey[string(*change[0])] = value
		}
	}

	values := make([][]byte, len(keys))
	for i, k := range keys {
		values[i] = byKey[string(k)]
	}
	return values, nil
}

// GetKeysPaged lists up to count keys under prefix that sort after
// startKey.
func (c *NodeClient) GetKeysPaged(ctx context.Context, prefix domain.StorageKey, count int, startKey domain.StorageKey, at string) ([]domain.StorageKey, error) {
	var start any
	if len(startKey) > 0 {
		start = startKey
	}

	var keys []domain.StorageKey
	if err := c.call(ctx, &keys, MethodGetKeysPaged, prefix, count, start, optionalHash(at)); err != nil {
		return nil, err
	}
	return keys, nil
}

// DensePull performs one dense diff round.
func (c *NodeClient) DensePull(ctx context.Context, from domain.Checkpoint, maxReceivers, maxSenders uint64) (*domain.DenseResponse, error) {
	var resp domain.DenseResponse
	if err := c.call(ctx, &resp, MethodDensePull, from, maxReceivers, maxSenders); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SparsePull performs one sparse diff round through the runtime API at
// block at.
func (c *NodeClient) SparsePull(ctx context.Context, from domain.Checkpoint, maxReceivers, maxSenders uint64, at string) (*domain.PullResponse, error) {
	req := domain.PullRequest{
		Checkpoint:   from,
		MaxReceivers: maxReceivers,
		MaxSenders:   maxSenders,
	}

	var raw hexutil.Bytes
	if err := c.call(ctx, &raw, MethodStateCall, RuntimeAPISparsePull, hexutil.Bytes(scale.Encode(req)), optionalHash(at)); err != nil {
		return nil, err
	}

	resp, err := scale.DecodeExact[domain.PullResponse](raw)
	if err != nil {
		return nil, domain.ErrDecodeFailed.WithDetails(RuntimeAPISparsePull).WithCause(err)
	}
	return &resp, nil
}
