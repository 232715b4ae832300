package service

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/yndnr/ledgersnap/internal/core/domain"
)

// sortedLister pages over a sorted in-memory key set.
type sortedLister struct {
	keys  []domain.StorageKey
	pages int
	stuck bool
}

func (s *sortedLister) GetKeysPaged(ctx context.Context, prefix domain.StorageKey, count int, startKey domain.StorageKey, at string) ([]domain.StorageKey, error) {
	s.pages++
	var out []domain.StorageKey
	for _, k := range s.keys {
		if !k.HasPrefix(prefix) {
			continue
		}
		if !s.stuck && startKey != nil && bytes.Compare(k, startKey) <= 0 {
			continue
		}
		out = append(out, k)
		if len(out) == count {
			break
		}
	}
	return out, nil
}

func newSortedLister(n int) *sortedLister {
	l := &sortedLister{}
	for _, g := range domain.KeyGroups() {
		for i := 0; i < n; i++ {
			l.keys = append(l.keys, groupKey(g, byte(i)))
		}
	}
	sort.Slice(l.keys, func(i, j int) bool { return bytes.Compare(l.keys[i], l.keys[j]) < 0 })
	return l
}

func TestKeyScanner_ListGroup(t *testing.T) {
	lister := newSortedLister(7)
	s := NewKeyScanner(lister, "", 3, nil)

	keys, err := s.ListGroup(context.Background(), domain.GroupShards, "")
	if err != nil {
		t.Fatalf("ListGroup() error = %v", err)
	}
	if len(keys) != 7 {
		t.Fatalf("ListGroup() = %d keys, want 7", len(keys))
	}
	for i, k := range keys {
		if !bytes.Equal(k, groupKey(domain.GroupShards, byte(i))) {
			t.Errorf("keys[%d] = %s", i, k)
		}
	}
	// 3 + 3 + 1
	if lister.pages != 3 {
		t.Errorf("pages = %d, want 3", lister.pages)
	}
}

func TestKeyScanner_ExactPageMultiple(t *testing.T) {
	lister := newSortedLister(6)
	keys, err := NewKeyScanner(lister, "", 3, nil).ListGroup(context.Background(), domain.GroupVoidNumbers, "")
	if err != nil {
		t.Fatalf("ListGroup() error = %v", err)
	}
	if len(keys) != 6 || lister.pages != 3 {
		t.Errorf("got %d keys in %d pages, want 6 in 3", len(keys), lister.pages)
	}
}

func TestKeyScanner_StuckPaging(t *testing.T) {
	lister := newSortedLister(5)
	lister.stuck = true

	_, err := NewKeyScanner(lister, "", 2, nil).ListGroup(context.Background(), domain.GroupShards, "")
	if err == nil {
		t.Fatal("ListGroup() should fail when paging does not advance")
	}
}

func TestKeyScanner_UnknownGroup(t *testing.T) {
	_, err := NewKeyScanner(newSortedLister(1), "", 0, nil).ListGroup(context.Background(), "accounts", "")
	if !errors.Is(err, domain.ErrUnknownKeyGroup) {
		t.Errorf("ListGroup() error = %v, want ErrUnknownKeyGroup", err)
	}
}

func TestKeyScanner_Listing(t *testing.T) {
	l, err := NewKeyScanner(newSortedLister(4), "", 0, nil).Listing(context.Background(), "")
	if err != nil {
		t.Fatalf("Listing() error = %v", err)
	}
	if l.Len() != 12 {
		t.Errorf("Len() = %d, want 12", l.Len())
	}
	for _, g := range domain.KeyGroups() {
		if len(l.Keys(g)) != 4 {
			t.Errorf("%s has %d keys, want 4", g, len(l.Keys(g)))
		}
	}
}

func TestLoadKeyListing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "manta_pay_keys.json")
	body := `{"shards":["0x0a"],"shard_trees":[],"void_number_set_insertion_order":["0x0b","0x0c"]}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	l, err := LoadKeyListing(path)
	if err != nil {
		t.Fatalf("LoadKeyListing() error = %v", err)
	}
	if l.Len() != 3 {
		t.Errorf("Len() = %d, want 3", l.Len())
	}

	_, err = LoadKeyListing(filepath.Join(dir, "absent.json"))
	if !errors.Is(err, domain.ErrKeyListing) {
		t.Errorf("LoadKeyListing(absent) error = %v, want ErrKeyListing", err)
	}
}
