package cases

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed demo_cases.yaml
var demoCasesYAML []byte

// Table is the set of demo fixtures, kept in load order.
type Table struct {
	order []string
	byID  map[string]*Fixture
}

// ParseTable decodes a YAML list of fixtures, validating and filling every row.
func ParseTable(data []byte) (*Table, error) {
	var rows []*Fixture
	if err := yaml.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("decode case table: %w", err)
	}
	t := &Table{byID: make(map[string]*Fixture, len(rows))}
	if err := t.add(rows); err != nil {
		return nil, err
	}
	return t, nil
}

// LoadTable returns the embedded demo cases, extended with the cases in
// extraPath when it is not empty. Extra rows may not reuse an existing id.
func LoadTable(extraPath string) (*Table, error) {
	t, err := ParseTable(demoCasesYAML)
	if err != nil {
		return nil, err
	}
	if extraPath == "" {
		return t, nil
	}

	data, err := os.ReadFile(extraPath)
	if err != nil {
		return nil, fmt.Errorf("read case file: %w", err)
	}
	var rows []*Fixture
	if err := yaml.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("decode case file %s: %w", extraPath, err)
	}
	if err := t.add(rows); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Table) add(rows []*Fixture) error {
	for _, f := range rows {
		if err := f.Validate(); err != nil {
			return err
		}
		if _, dup := t.byID[f.ID]; dup {
			return fmt.Errorf("duplicate case id %q", f.ID)
		}
		f.Source = SourceDemo
		f.Fill()
		t.byID[f.ID] = f
		t.order = append(t.order, f.ID)
	}
	return nil
}

func (t *Table) Get(id string) (*Fixture, error) {
	f, ok := t.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCaseNotFound, id)
	}
	return f, nil
}

func (t *Table) All() []*Fixture {
	out := make([]*Fixture, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.byID[id])
	}
	return out
}

func (t *Table) Len() int { return len(t.order) }
