package command

import (
	"strings"
	"testing"
)

func TestCheckpointShow(t *testing.T) {
	node := startNode(t)
	node.seedLedger()
	dir := t.TempDir()

	if _, _, err := runCLI(t, pullArgs(node, dir)...); err != nil {
		t.Fatalf("pull error = %v", err)
	}

	out, _, err := runCLI(t, "--data-dir", dir, "-o", "json", "checkpoint", "show", "--shards")
	if err != nil {
		t.Fatalf("checkpoint show error = %v", err)
	}

	var got checkpointView
	decodeJSON(t, out, &got)
	if got.SenderIndex != 3 {
		t.Errorf("SenderIndex = %d, want 3", got.SenderIndex)
	}
	if got.ReceiverIndex != 5 {
		t.Errorf("ReceiverIndex = %d, want 5", got.ReceiverIndex)
	}
	if got.ActiveShards != 2 {
		t.Errorf("ActiveShards = %d, want 2", got.ActiveShards)
	}
	if got.Rounds != 3 || got.StoredReceivers != 5 || got.StoredSenders != 3 {
		t.Errorf("stored = %d rounds, %d receivers, %d senders", got.Rounds, got.StoredReceivers, got.StoredSenders)
	}
	want := []shardCursor{{Shard: 0, Index: 3}, {Shard: 7, Index: 2}}
	if len(got.Shards) != len(want) {
		t.Fatalf("Shards = %v, want %v", got.Shards, want)
	}
	for i := range want {
		if got.Shards[i] != want[i] {
			t.Errorf("Shards[%d] = %v, want %v", i, got.Shards[i], want[i])
		}
	}
}

func TestCheckpointShow_ShardTable(t *testing.T) {
	node := startNode(t)
	node.seedLedger()
	dir := t.TempDir()

	if _, _, err := runCLI(t, pullArgs(node, dir)...); err != nil {
		t.Fatalf("pull error = %v", err)
	}

	out, _, err := runCLI(t, "--data-dir", dir, "checkpoint", "show", "--shards")
	if err != nil {
		t.Fatalf("checkpoint show error = %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want header and 2 shards:\n%s", len(lines), out)
	}
	if !strings.Contains(lines[0], "SHARD") || !strings.Contains(lines[0], "RECEIVER_INDEX") {
		t.Errorf("header = %q", lines[0])
	}
}

func TestCheckpointShow_Empty(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	out, _, err := runCLI(t, "--data-dir", t.TempDir(), "-o", "json", "checkpoint", "show")
	if err != nil {
		t.Fatalf("checkpoint show error = %v", err)
	}
	var got checkpointView
	decodeJSON(t, out, &got)
	if got.SenderIndex != 0 || got.ReceiverIndex != 0 || got.Rounds != 0 {
		t.Errorf("got %+v, want the initial checkpoint", got)
	}
	if got.Shards != nil {
		t.Errorf("Shards = %v, want omitted without --shards", got.Shards)
	}
}

func TestCheckpointReset(t *testing.T) {
	node := startNode(t)
	node.seedLedger()
	dir := t.TempDir()

	if _, _, err := runCLI(t, pullArgs(node, dir)...); err != nil {
		t.Fatalf("pull error = %v", err)
	}

	_, _, err := runCLI(t, "--data-dir", dir, "checkpoint", "reset")
	if err == nil || !strings.Contains(err.Error(), "--yes") {
		t.Fatalf("reset without --yes error = %v", err)
	}

	if _, _, err := runCLI(t, "--data-dir", dir, "-o", "json", "checkpoint", "reset", "--yes"); err != nil {
		t.Fatalf("reset error = %v", err)
	}

	out, _, err := runCLI(t, "--data-dir", dir, "-o", "json", "checkpoint", "show")
	if err != nil {
		t.Fatalf("checkpoint show error = %v", err)
	}
	var got checkpointView
	decodeJSON(t, out, &got)
	if got.SenderIndex != 0 || got.StoredReceivers != 0 || got.Rounds != 0 {
		t.Errorf("after reset got %+v", got)
	}
}
