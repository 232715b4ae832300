package command

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestFollow(t *testing.T) {
	node := startNode(t)
	node.seedLedger()
	dir := t.TempDir()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	type result struct {
		out, errOut string
		err         error
	}
	done := make(chan result, 1)
	go func() {
		out, errOut, err := runCLIContext(ctx, t,
			"--endpoint", node.URL, "--data-dir", dir, "-o", "json",
			"follow",
			"--max-receivers", "2", "--max-senders", "2", "--max-rounds", "1",
			"--interval", "20ms", "--metrics-addr", "127.0.0.1:0")
		done <- result{out, errOut, err}
	}()

	// Three rounds drain the ledger; later calls are idle polls.
	deadline := time.Now().Add(10 * time.Second)
	for node.Calls("mantaPay_dense_pull_ledger_diff") < 5 {
		if time.Now().After(deadline) {
			t.Fatal("follow did not poll the node")
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()

	var res result
	select {
	case res = <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("follow did not stop after cancellation")
	}
	if res.err != nil {
		t.Fatalf("follow error = %v\n%s", res.err, res.errOut)
	}
	if n := strings.Count(res.out, `"run_id"`); n != 3 {
		t.Errorf("printed %d summaries, want one per non-empty round (3)", n)
	}
	if !strings.Contains(res.errOut, "serving metrics") {
		t.Errorf("metrics server not started:\n%s", res.errOut)
	}

	out, _, err := runCLI(t, "--data-dir", dir, "-o", "json", "checkpoint", "show")
	if err != nil {
		t.Fatalf("checkpoint show error = %v", err)
	}
	var got checkpointView
	decodeJSON(t, out, &got)
	if got.SenderIndex != 3 || got.StoredReceivers != 5 {
		t.Errorf("after follow got %+v", got)
	}
}
