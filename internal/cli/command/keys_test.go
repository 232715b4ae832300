package command

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/yndnr/ledgersnap/internal/core/domain"
	"github.com/yndnr/ledgersnap/internal/core/service"
)

func TestKeysPrefix(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	out, _, err := runCLI(t, "-o", "json", "keys", "prefix")
	if err != nil {
		t.Fatalf("keys prefix error = %v", err)
	}

	var got []groupPrefix
	decodeJSON(t, out, &got)
	if len(got) != len(domain.KeyGroups()) {
		t.Fatalf("got %d groups, want %d", len(got), len(domain.KeyGroups()))
	}
	for i, g := range domain.KeyGroups() {
		want := domain.StoragePrefix(domain.DefaultPallet, g.StorageItem())
		if got[i].Group != g {
			t.Errorf("row %d group = %s, want %s", i, got[i].Group, g)
		}
		if !bytes.Equal(got[i].Prefix, want) {
			t.Errorf("%s prefix = %s, want %s", g, got[i].Prefix, want)
		}
	}
}

func TestKeysList(t *testing.T) {
	node := startNode(t)
	want := node.seedStorage()
	path := filepath.Join(t.TempDir(), "keys.json")

	out, _, err := runCLI(t, "--endpoint", node.URL, "-o", "json", "keys", "list", "--save", path)
	if err != nil {
		t.Fatalf("keys list error = %v", err)
	}

	var rows []keyCount
	decodeJSON(t, out, &rows)
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}
	for _, r := range rows {
		if r.Keys != 2 {
			t.Errorf("%s keys = %d, want 2", r.Group, r.Keys)
		}
	}

	listing, err := service.LoadKeyListing(path)
	if err != nil {
		t.Fatalf("LoadKeyListing() error = %v", err)
	}
	for _, g := range domain.KeyGroups() {
		got, exp := listing.Keys(g), want.Keys(g)
		if len(got) != len(exp) {
			t.Fatalf("%s: %d keys, want %d", g, len(got), len(exp))
		}
		for i := range exp {
			if !bytes.Equal(got[i], exp[i]) {
				t.Errorf("%s key %d = %s, want %s", g, i, got[i], exp[i])
			}
		}
	}

	if args := node.AtArgs(); len(args) > 0 {
		t.Errorf("keys list should not query storage, got %v", args)
	}
}

func TestKeysList_Group(t *testing.T) {
	node := startNode(t)
	node.seedStorage()

	out, _, err := runCLI(t, "--endpoint", node.URL, "-o", "json", "keys", "list", "-g", string(domain.GroupVoidNumbers))
	if err != nil {
		t.Fatalf("keys list error = %v", err)
	}
	var rows []keyCount
	decodeJSON(t, out, &rows)
	if len(rows) != 1 || rows[0].Group != domain.GroupVoidNumbers || rows[0].Keys != 2 {
		t.Errorf("rows = %+v", rows)
	}
}

func TestKeysList_UnknownGroup(t *testing.T) {
	node := startNode(t)
	if _, _, err := runCLI(t, "--endpoint", node.URL, "keys", "list", "-g", "nope"); err == nil {
		t.Fatal("expected error for unknown group")
	}
}
