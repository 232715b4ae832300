// Package fakenode is an in-process ledger node for tests.
//
// It serves the JSON-RPC methods the node client uses from an in-memory
// ledger and storage map, over HTTP (Handler) or any listener.
package fakenode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/holiman/uint256"

	"github.com/yndnr/ledgersnap/internal/core/domain"
	"github.com/yndnr/ledgersnap/pkg/scale"
)

// Node is a fake ledger node. All methods are safe for concurrent use.
type Node struct {
	mu        sync.Mutex
	head      string
	shards    [domain.ShardCount][]domain.Receiver
	senders   []domain.Sender
	storage   map[string][]byte
	failures  map[string]error
	calls     map[string]int
	omitNext  bool
	server    *rpc.Server
	lastAtArg []string
}

// New returns an empty node with finalized head head.
func New(head string) *Node {
	n := &Node{
		head:     head,
		storage:  make(map[string][]byte),
		failures: make(map[string]error),
		calls:    make(map[string]int),
		server:   rpc.NewServer(),
	}
	must(n.server.RegisterName("state", &stateAPI{n}))
	must(n.server.RegisterName("chain", &chainAPI{n}))
	must(n.server.RegisterName("mantaPay", &mantaPayAPI{n}))
	return n
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

// Handler serves JSON-RPC over HTTP.
func (n *Node) Handler() http.Handler {
	return n.server
}

// Server returns the underlying RPC server.
func (n *Node) Server() *rpc.Server {
	return n.server
}

// Stop stops the RPC server.
func (n *Node) Stop() {
	n.server.Stop()
}

// AddReceivers appends receivers to the shards named by their notes.
func (n *Node) AddReceivers(rs ...domain.Receiver) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, r := range rs {
		n.shards[r.Shard()] = append(n.shards[r.Shard()], r)
	}
}

// AddSenders appends senders to the void number log.
func (n *Node) AddSenders(ss ...domain.Sender) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.senders = append(n.senders, ss...)
}

// SetStorage stores value under key; a nil value deletes it.
func (n *Node) SetStorage(key domain.StorageKey, value []byte) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if value == nil {
		delete(n.storage, string(key))
		return
	}
	n.storage[string(key)] = value
}

// Fail makes every call of method fail with err until cleared with nil.
func (n *Node) Fail(method string, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err == nil {
		delete(n.failures, method)
		return
	}
	n.failures[method] = err
}

// OmitNextCheckpoint makes dense rounds return a null next checkpoint.
func (n *Node) OmitNextCheckpoint(omit bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.omitNext = omit
}

// Calls returns how often method was called.
func (n *Node) Calls(method string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[method]
}

// AtArgs returns the block hashes passed to storage queries, in call order.
// An absent hash is recorded as "".
func (n *Node) AtArgs() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.lastAtArg...)
}

func (n *Node) enter(method string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls[method]++
	return n.failures[method]
}

// diff computes one round from cp, walking shards in order and then the
// void number log.
func (n *Node) diff(cp domain.Checkpoint, maxReceivers, maxSenders uint64) (domain.PullResponse, domain.Checkpoint) {
	n.mu.Lock()
	defer n.mu.Unlock()

	var resp domain.PullResponse
	next := cp
	total := domain.U128([16]byte{})
	more := false

	for shard := 0; shard < domain.ShardCount; shard++ {
		list := n.shards[shard]
		for i := next.ReceiverIndex[shard]; i < uint64(len(list)); i++ {
			if uint64(len(resp.Receivers)) == maxReceivers {
				more = true
				break
			}
			resp.Receivers = append(resp.Receivers, list[i])
			total.Add(total, list[i].Utxo.PublicAsset.Amount())
			next.ReceiverIndex[shard] = i + 1
		}
	}

	for i := next.SenderIndex; i < uint64(len(n.senders)); i++ {
		if uint64(len(resp.Senders)) == maxSenders {
			more = true
			break
		}
		resp.Senders = append(resp.Senders, n.senders[i])
		next.SenderIndex = i + 1
	}

	resp.ShouldContinue = more
	resp.SendersReceiversTotal = domain.PutU128(total)
	return resp, next
}

type stateAPI struct{ n *Node }

type changeSet struct {
	Block   string              `json:"block"`
	Changes [][2]*hexutil.Bytes `json:"changes"`
}

func (s *stateAPI) QueryStorageAt(keys []hexutil.Bytes, at *string) ([]changeSet, error) {
	if err := s.n.enter("state_queryStorageAt"); err != nil {
		return nil, err
	}

	s.n.mu.Lock()
	defer s.n.mu.Unlock()
	block := s.n.head
	if at != nil {
		block = *at
		s.n.lastAtArg = append(s.n.lastAtArg, *at)
	} else {
		s.n.lastAtArg = append(s.n.lastAtArg, "")
	}

	set := changeSet{Block: block}
	for _, k := range keys {
		key := k
		var value *hexutil.Bytes
		if v, ok := s.n.storage[string(k)]; ok {
			b := hexutil.Bytes(v)
			value = &b
		}
		set.Changes = append(set.Changes, [2]*hexutil.Bytes{&key, value})
	}
	return []changeSet{set}, nil
}

func (s *stateAPI) GetKeysPaged(prefix hexutil.Bytes, count int, startKey *hexutil.Bytes, at *string) ([]hexutil.Bytes, error) {
	if err := s.n.enter("state_getKeysPaged"); err != nil {
		return nil, err
	}

	s.n.mu.Lock()
	defer s.n.mu.Unlock()

	var keys []hexutil.Bytes
	for k := range s.n.storage {
		kb := []byte(k)
		if !bytes.HasPrefix(kb, prefix) {
			continue
		}
		if startKey != nil && bytes.Compare(kb, *startKey) <= 0 {
			continue
		}
		keys = append(keys, kb)
	}
	sort.Slice(keys, func(i, j int) bool { return bytes.Compare(keys[i], keys[j]) < 0 })
	if len(keys) > count {
		keys = keys[:count]
	}
	return keys, nil
}

func (s *stateAPI) Call(method string, data hexutil.Bytes, at *string) (hexutil.Bytes, error) {
	if err := s.n.enter("state_call"); err != nil {
		return nil, err
	}
	if method != "PullLedgerDiffApi_pull_ledger_diff" {
		return nil, fmt.Errorf("unknown runtime api %s", method)
	}

	req, err := scale.DecodeExact[domain.PullRequest](data)
	if err != nil {
		return nil, fmt.Errorf("decode request: %w", err)
	}
	resp, _ := s.n.diff(req.Checkpoint, req.MaxReceivers, req.MaxSenders)
	return scale.Encode(resp), nil
}

type chainAPI struct{ n *Node }

func (c *chainAPI) GetFinalizedHead() (string, error) {
	if err := c.n.enter("chain_getFinalizedHead"); err != nil {
		return "", err
	}
	c.n.mu.Lock()
	defer c.n.mu.Unlock()
	return c.n.head, nil
}

type mantaPayAPI struct{ n *Node }

// Dense_pull_ledger_diff serves mantaPay_dense_pull_ledger_diff.
func (m *mantaPayAPI) Dense_pull_ledger_diff(ctx context.Context, cp domain.Checkpoint, maxReceivers, maxSenders uint64) (*domain.DenseResponse, error) { //nolint:revive,stylecheck // RPC method name
	if err := m.n.enter("mantaPay_dense_pull_ledger_diff"); err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	resp, next := m.n.diff(cp, maxReceivers, maxSenders)
	dense := &domain.DenseResponse{
		ShouldContinue:        resp.ShouldContinue,
		Receivers:             domain.EncodeReceivers(resp.Receivers),
		Senders:               domain.EncodeSenders(resp.Senders),
		SendersReceiversTotal: resp.SendersReceiversTotal,
		NextCheckpoint:        &next,
	}

	m.n.mu.Lock()
	if m.n.omitNext {
		dense.NextCheckpoint = nil
	}
	m.n.mu.Unlock()
	return dense, nil
}

// ErrUnavailable is a convenience failure for Fail.
var ErrUnavailable = errors.New("node unavailable")

// Receiver builds a receiver in shard with a distinguishable commitment and
// a public amount.
func Receiver(shard uint8, seed byte, amount uint64) domain.Receiver {
	var r domain.Receiver
	r.Utxo.Commitment[0] = seed
	r.Utxo.Commitment[31] = shard
	r.Utxo.PublicAsset.Value = domain.PutU128(uint256.NewInt(amount))
	r.Note.AddressPartition = shard
	return r
}

// Sender builds a sender with a distinguishable void number.
func Sender(seed byte) domain.Sender {
	var s domain.Sender
	s.VoidNumber[0] = seed
	s.VoidNumber[31] = 0xff
	return s
}
