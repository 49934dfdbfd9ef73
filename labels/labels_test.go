package labels

import (
	"os"
	"path/filepath"
	"testing"
)

const tumorTable = `
classes:
  0: glioma
  1: meningioma
  2: pituitary
`

func TestParse(t *testing.T) {
	table, err := Parse([]byte(tumorTable))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if table.Len() != 3 {
		t.Fatalf("Len = %d, want 3", table.Len())
	}
	if name, ok := table.Lookup(1); !ok || name != "meningioma" {
		t.Errorf("Lookup(1) = %q, %v", name, ok)
	}
	if _, ok := table.Lookup(7); ok {
		t.Error("Lookup(7) should miss")
	}
	got := table.Indices()
	if len(got) != 3 || got[0] != 0 || got[2] != 2 {
		t.Errorf("Indices = %v", got)
	}
}

func TestParseRejects(t *testing.T) {
	for name, data := range map[string]string{
		"negative index": "classes:\n  -1: glioma\n",
		"empty name":     "classes:\n  0: \"\"\n",
		"not yaml":       "classes: [unterminated",
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(data)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "labels.yaml")
	if err := os.WriteFile(path, []byte(tumorTable), 0o644); err != nil {
		t.Fatal(err)
	}

	table, err := Load(path, true)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if name, _ := table.Lookup(0); name != "glioma" {
		t.Errorf("Lookup(0) = %q", name)
	}

	missing := filepath.Join(dir, "nope.yaml")
	empty, err := Load(missing, false)
	if err != nil {
		t.Fatalf("optional missing table: %v", err)
	}
	if empty.Len() != 0 {
		t.Errorf("expected empty table, got %d entries", empty.Len())
	}
	if _, err := Load(missing, true); err == nil {
		t.Error("required missing table should fail")
	}
}

func TestNilTable(t *testing.T) {
	var table *Table
	if _, ok := table.Lookup(0); ok {
		t.Error("nil table lookup should miss")
	}
	if table.Len() != 0 {
		t.Error("nil table should be empty")
	}
}
