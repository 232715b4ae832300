package command

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/ledgersnap/internal/core/domain"
	"github.com/yndnr/ledgersnap/internal/tests/fakenode"
	"github.com/yndnr/ledgersnap/pkg/scale"
)

var testHead = "0x" + strings.Repeat("ab", 32)

// testNode is a fake node served over HTTP.
type testNode struct {
	*fakenode.Node
	URL string
}

// startNode starts a fake node and isolates the test from any user
// configuration.
func startNode(t *testing.T) *testNode {
	t.Helper()
	t.Setenv("HOME", t.TempDir())

	node := fakenode.New(testHead)
	srv := httptest.NewServer(node.Handler())
	t.Cleanup(func() {
		srv.Close()
		node.Stop()
	})
	return &testNode{Node: node, URL: srv.URL}
}

// seedLedger adds five receivers over two shards and three senders.
func (n *testNode) seedLedger() {
	n.AddReceivers(
		fakenode.Receiver(0, 1, 10),
		fakenode.Receiver(0, 2, 20),
		fakenode.Receiver(0, 3, 30),
		fakenode.Receiver(7, 4, 40),
		fakenode.Receiver(7, 5, 50),
	)
	n.AddSenders(fakenode.Sender(1), fakenode.Sender(2), fakenode.Sender(3))
}

// groupKey returns the storage key of entry i in group g.
func groupKey(g domain.KeyGroup, i byte) domain.StorageKey {
	prefix := domain.StoragePrefix(domain.DefaultPallet, g.StorageItem())
	return append(append(domain.StorageKey{}, prefix...), 0x00, i)
}

// seedStorage stores two valid values in every group and returns the
// keys.
func (n *testNode) seedStorage() *domain.KeyListing {
	listing := &domain.KeyListing{}
	for _, g := range domain.KeyGroups() {
		keys := []domain.StorageKey{groupKey(g, 1), groupKey(g, 2)}
		for i, k := range keys {
			var value []byte
			switch g {
			case domain.GroupShards:
				value = scale.Encode(fakenode.Receiver(0, byte(i+1), 100))
			case domain.GroupVoidNumbers:
				v := fakenode.Sender(byte(i + 1)).VoidNumber
				value = v[:]
			default:
				value = []byte{0x04, byte(i)}
			}
			n.SetStorage(k, value)
		}
		if err := listing.Set(g, keys); err != nil {
			panic(err)
		}
	}
	return listing
}

// runCLI runs the application with args and captures its output.
func runCLI(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	return runCLIContext(context.Background(), t, args...)
}

func runCLIContext(ctx context.Context, t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	var out, errOut bytes.Buffer
	app := App()
	app.Writer = &out
	app.ErrWriter = &errOut
	app.ExitErrHandler = func(*cli.Context, error) {}

	err = app.RunContext(ctx, append([]string{"ledgersnap"}, args...))
	return out.String(), errOut.String(), err
}

// decodeJSON unmarshals command output into v.
func decodeJSON(t *testing.T, out string, v any) {
	t.Helper()
	if err := json.Unmarshal([]byte(out), v); err != nil {
		t.Fatalf("decode output: %v\noutput:\n%s", err, out)
	}
}
