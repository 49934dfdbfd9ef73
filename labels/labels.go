// Package labels maps model class indices to human readable names.
//
// The table is always supplied from a YAML file; nothing is inferred from
// the model itself.
package labels

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Table is a read-only class index to label mapping. The zero value is an
// empty table.
type Table struct {
	names map[int]string
}

type file struct {
	Classes map[int]string `yaml:"classes"`
}

// Parse reads a table from YAML of the form
//
//	classes:
//	  0: glioma
//	  1: meningioma
func Parse(data []byte) (*Table, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse label table: %w", err)
	}
	for idx, name := range f.Classes {
		if idx < 0 {
			return nil, fmt.Errorf("parse label table: negative class index %d", idx)
		}
		if name == "" {
			return nil, fmt.Errorf("parse label table: empty name for class %d", idx)
		}
	}
	return &Table{names: f.Classes}, nil
}

// Load reads the table at path. When required is false a missing file
// yields an empty table.
func Load(path string, required bool) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !required && errors.Is(err, fs.ErrNotExist) {
			return &Table{}, nil
		}
		return nil, fmt.Errorf("read label table %s: %w", path, err)
	}
	return Parse(data)
}

// Lookup returns the name for class idx.
func (t *Table) Lookup(idx int) (string, bool) {
	if t == nil {
		return "", false
	}
	name, ok := t.names[idx]
	return name, ok
}

func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.names)
}

// Indices returns the configured class indices in ascending order.
func (t *Table) Indices() []int {
	if t == nil {
		return nil
	}
	out := make([]int, 0, len(t.names))
	for idx := range t.names {
		out = append(out, idx)
	}
	sort.Ints(out)
	return out
}
