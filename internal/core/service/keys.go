package service

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/yndnr/ledgersnap/internal/core/domain"
	"github.com/yndnr/ledgersnap/internal/telemetry/logger"
)

// DefaultPageSize is the number of keys requested per listing page.
const DefaultPageSize = 1000

// KeyLister enumerates storage keys under a prefix, in key order, starting
// after startKey (or at the prefix when startKey is empty).
type KeyLister interface {
	GetKeysPaged(ctx context.Context, prefix domain.StorageKey, count int, startKey domain.StorageKey, at string) ([]domain.StorageKey, error)
}

// KeyScanner builds key listings from chain state.
type KeyScanner struct {
	lister   KeyLister
	pallet   string
	pageSize int
	logger   logger.Logger
}

// NewKeyScanner creates a scanner for the given pallet. An empty pallet
// means domain.DefaultPallet; a non-positive page size means DefaultPageSize.
func NewKeyScanner(lister KeyLister, pallet string, pageSize int, l logger.Logger) *KeyScanner {
	if pallet == "" {
		pallet = domain.DefaultPallet
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if l == nil {
		l = logger.Discard()
	}
	return &KeyScanner{
		lister:   lister,
		pallet:   pallet,
		pageSize: pageSize,
		logger:   l,
	}
}

// Prefix returns the storage prefix of a group.
func (s *KeyScanner) Prefix(group domain.KeyGroup) domain.StorageKey {
	return domain.StoragePrefix(s.pallet, group.StorageItem())
}

// ListGroup returns every key of a group at block at.
func (s *KeyScanner) ListGroup(ctx context.Context, group domain.KeyGroup, at string) ([]domain.StorageKey, error) {
	if _, err := domain.ParseKeyGroup(string(group)); err != nil {
		return nil, err
	}
	prefix := s.Prefix(group)

	var (
		keys  []domain.StorageKey
		start domain.StorageKey
	)
	for {
		page, err := s.lister.GetKeysPaged(ctx, prefix, s.pageSize, start, at)
		if err != nil {
			return nil, fmt.Errorf("list %s after %d keys: %w", group, len(keys), err)
		}
		for _, k := range page {
			if !k.HasPrefix(prefix) {
				return nil, domain.ErrInvalidStorageKey.
					WithDetailsf("%s outside prefix %s", k, prefix)
			}
		}
		if len(page) > 0 && start != nil && bytes.Compare(page[0], start) <= 0 {
			return nil, fmt.Errorf("list %s: page did not advance past %s", group, start)
		}

		keys = append(keys, page...)
		if len(page) < s.pageSize {
			break
		}
		start = page[len(page)-1]
	}

	s.logger.Debug("keys listed", "group", string(group), "keys", len(keys))
	return keys, nil
}

// Listing lists all three groups.
func (s *KeyScanner) Listing(ctx context.Context, at string) (*domain.KeyListing, error) {
	l := &domain.KeyListing{}
	for _, g := range domain.KeyGroups() {
		keys, err := s.ListGroup(ctx, g, at)
		if err != nil {
			return nil, err
		}
		if err := l.Set(g, keys); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// LoadKeyListing reads a key listing file.
func LoadKeyListing(path string) (*domain.KeyListing, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, domain.ErrKeyListing.WithDetails(path).WithCause(err)
	}
	defer f.Close()

	l, err := domain.ReadKeyListing(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return l, nil
}
