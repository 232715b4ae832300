package connection

import (
	"context"
	"fmt"

	"github.com/yndnr/ledgersnap/internal/core/domain"
)

// Diff pull modes.
const (
	ModeDense  = "dense"
	ModeSparse = "sparse"
)

// LedgerSource adapts a NodeClient to the puller's DiffSource.
//
// Sparse rounds carry no next checkpoint, so a sparse source can only
// serve a single round or a final round; continuing rounds fail with
// ErrCheckpointUnavailable in the puller.
type LedgerSource struct {
	client *NodeClient
	mode   string
	at     string
}

// NewLedgerSource returns a source pulling in the given mode. at pins
// sparse rounds to a block and is ignored in dense mode.
func NewLedgerSource(c *NodeClient, mode, at string) (*LedgerSource, error) {
	switch mode {
	case "":
		mode = ModeDense
	case ModeDense, ModeSparse:
	default:
		return nil, fmt.Errorf("unknown pull mode %q", mode)
	}
	return &LedgerSource{client: c, mode: mode, at: at}, nil
}

// Mode returns "dense" or "sparse".
func (s *LedgerSource) Mode() string {
	return s.mode
}

// PullDiff performs one round from the given checkpoint.
func (s *LedgerSource) PullDiff(ctx context.Context, from domain.Checkpoint, maxReceivers, maxSenders uint64) (*domain.Round, error) {
	if s.mode == ModeSparse {
		resp, err := s.client.SparsePull(ctx, from, maxReceivers, maxSenders, s.at)
		if err != nil {
			return nil, err
		}
		return resp.Round(), nil
	}

	resp, err := s.client.DensePull(ctx, from, maxReceivers, maxSenders)
	if err != nil {
		return nil, err
	}
	return resp.Round()
}
