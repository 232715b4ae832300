package output

import (
	"bytes"
	"reflect"
	"strings"
	"testing"
	"time"
)

type snapshotRow struct {
	ID      string        `json:"id"`
	Entries int           `json:"entries"`
	Hash    []byte        `json:"block_hash"`
	Elapsed time.Duration `json:"elapsed" table:"wide"`
	Path    string        `json:"path" table:"-"`
	secret  string
}

func lines(s string) []string {
	return strings.Split(strings.TrimRight(s, "\n"), "\n")
}

func TestTableFormatter_Slice(t *testing.T) {
	rows := []snapshotRow{
		{ID: "shards-1", Entries: 3, Hash: []byte{0xab, 0xcd}, Elapsed: time.Second, Path: "/x", secret: "s"},
		{ID: "shard_trees-1", Entries: 0},
	}

	var buf bytes.Buffer
	if err := (&TableFormatter{}).Format(&buf, rows); err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	got := lines(buf.String())
	if len(got) != 3 {
		t.Fatalf("got %d lines, want 3:\n%s", len(got), buf.String())
	}
	if fields := strings.Fields(got[0]); !reflect.DeepEqual(fields, []string{"ID", "ENTRIES", "BLOCK_HASH"}) {
		t.Errorf("headers = %v", fields)
	}
	if fields := strings.Fields(got[1]); !reflect.DeepEqual(fields, []string{"shards-1", "3", "0xabcd"}) {
		t.Errorf("row 1 = %v", fields)
	}
	if fields := strings.Fields(got[2]); !reflect.DeepEqual(fields, []string{"shard_trees-1", "0", "-"}) {
		t.Errorf("row 2 = %v", fields)
	}
}

func TestTableFormatter_SliceWide(t *testing.T) {
	rows := []*snapshotRow{{ID: "a", Elapsed: 1500 * time.Millisecond}, nil}

	var buf bytes.Buffer
	if err := (&TableFormatter{Wide: true}).Format(&buf, rows); err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	got := lines(buf.String())
	if len(got) != 2 {
		t.Fatalf("got %d lines, want 2 (nil skipped):\n%s", len(got), buf.String())
	}
	if !strings.Contains(got[0], "ELAPSED") || !strings.Contains(got[1], "1.5s") {
		t.Errorf("wide column missing:\n%s", buf.String())
	}
}

func TestTableFormatter_Struct(t *testing.T) {
	var buf bytes.Buffer
	if err := (&TableFormatter{}).Format(&buf, &snapshotRow{ID: "x", Entries: 2}); err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	out := buf.String()
	for _, want := range []string{"FIELD", "id", "entries", "2"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "path") || strings.Contains(out, "secret") {
		t.Errorf("hidden field rendered:\n%s", out)
	}
}

func TestTableFormatter_MapSorted(t *testing.T) {
	var buf bytes.Buffer
	data := map[string]uint64{"senders": 2, "receivers": 5, "rounds": 1}
	if err := (&TableFormatter{NoHeaders: true}).Format(&buf, data); err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	got := lines(buf.String())
	want := []string{"receivers", "rounds", "senders"}
	for i, line := range got {
		if !strings.HasPrefix(line, want[i]) {
			t.Errorf("line %d = %q, want prefix %q", i, line, want[i])
		}
	}
}

type tabular struct{}

func (tabular) Table() *Table {
	t := NewTable("GROUP", "KEYS")
	t.AddRow("shards", "12")
	return t
}

func TestTableFormatter_Tabular(t *testing.T) {
	var buf bytes.Buffer
	if err := (&TableFormatter{}).Format(&buf, tabular{}); err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	got := lines(buf.String())
	if len(got) != 2 || !strings.HasPrefix(got[1], "shards") {
		t.Errorf("unexpected output:\n%s", buf.String())
	}
}

func TestTableFormatter_FallbackToJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := (&TableFormatter{}).Format(&buf, 42); err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	if strings.TrimSpace(buf.String()) != "42" {
		t.Errorf("Format(42) = %q", buf.String())
	}
}

func TestFormatValue(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	var nilPtr *int
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"empty string", "", "-"},
		{"uint", uint64(7), "7"},
		{"bool", true, "true"},
		{"bytes", []byte{1, 2}, "0x0102"},
		{"nil bytes", []byte(nil), "-"},
		{"byte array", [2]byte{0xff, 0}, "0xff00"},
		{"time", ts, "2024-05-01T12:00:00Z"},
		{"zero time", time.Time{}, "-"},
		{"duration", 2 * time.Second, "2s"},
		{"slice", []int{1, 2}, "[2 items]"},
		{"nil pointer", nilPtr, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatValue(reflect.ValueOf(tt.in)); got != tt.want {
				t.Errorf("formatValue(%v) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestToSnakeCase(t *testing.T) {
	for in, want := range map[string]string{
		"EntryCount": "entry_count",
		"ID":         "i_d",
		"at":         "at",
	} {
		if got := toSnakeCase(in); got != want {
			t.Errorf("toSnakeCase(%q) = %q, want %q", in, got, want)
		}
	}
}
