package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/yndnr/ledgersnap/internal/core/service"
)

// ExportJSON writes values as a JSON array of 0x-hex strings, with null
// for missing values, in key order.
func ExportJSON(w io.Writer, values [][]byte) error {
	out := make([]*hexutil.Bytes, len(values))
	for i, v := range values {
		if v != nil {
			b := hexutil.Bytes(v)
			out[i] = &b
		}
	}
	return json.NewEncoder(w).Encode(out)
}

// WriteJSON exports values to path, replacing any existing file.
func WriteJSON(path string, values [][]byte) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("snapshot: create %s: %w", tmp, err)
	}
	defer os.Remove(tmp)

	if err := ExportJSON(f, values); err != nil {
		f.Close()
		return fmt.Errorf("snapshot: export %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// JSONSink returns a group sink writing each group to dir under its
// export file name.
func JSONSink(dir string) service.GroupSink {
	return func(_ context.Context, r *service.GroupResult) error {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("snapshot: create dir: %w", err)
		}
		return WriteJSON(filepath.Join(dir, r.Group.ExportName()), r.Values)
	}
}

// ExportEntries is ExportJSON for decoded snapshot entries.
func ExportEntries(w io.Writer, entries []Entry) error {
	values := make([][]byte, len(entries))
	for i, e := range entries {
		values[i] = e.Value
	}
	return ExportJSON(w, values)
}
