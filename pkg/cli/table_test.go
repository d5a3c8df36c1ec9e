package cli

import (
	"bytes"
	"strings"
	"testing"
)

func TestTable(t *testing.T) {
	var buf bytes.Buffer
	tbl := NewTableTo(&buf, "DRIVER", "STATE")
	tbl.Row("l2vpn:pe1", "COMMITTED")
	tbl.Row("rest-cli:csr1", "COMMITTED")
	tbl.Flush()

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("got %d lines: %q", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[0], "DRIVER") || !strings.Contains(lines[1], "------") {
		t.Errorf("header or divider missing: %q", buf.String())
	}
	// columns are aligned
	if strings.Index(lines[2], "COMMITTED") != strings.Index(lines[3], "COMMITTED") {
		t.Errorf("columns not aligned: %q", buf.String())
	}
	if tbl.Rows() != 2 {
		t.Errorf("Rows() = %d, want 2", tbl.Rows())
	}
}

func TestTable_EmptyPrintsNothing(t *testing.T) {
	var buf bytes.Buffer
	tbl := NewTableTo(&buf, "A", "B")
	tbl.Flush()
	if buf.Len() != 0 {
		t.Errorf("empty table wrote %q", buf.String())
	}
}

func TestTable_Prefix(t *testing.T) {
	var buf bytes.Buffer
	tbl := NewTableTo(&buf, "KEY").WithPrefix("  ")
	tbl.Row("value")
	tbl.Flush()
	for _, line := range strings.Split(strings.TrimRight(buf.String(), "\n"), "\n") {
		if !strings.HasPrefix(line, "  ") {
			t.Errorf("line %q lacks prefix", line)
		}
	}
}
