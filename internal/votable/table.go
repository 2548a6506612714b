package votable

// Table is a decoded TABLE with string cells. Column typing and unit handling
// are left to callers.
type Table struct {
	Name   string
	Fields []Field
	Rows   [][]string

	index map[string]int
}

// Record is one row keyed by field name.
type Record map[string]string

func (t *Table) reindex() {
	t.index = make(map[string]int, len(t.Fields))
	for i, f := range t.Fields {
		if _, dup := t.index[f.Name]; !dup {
			t.index[f.Name] = i
		}
	}
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.Rows) }

// Column returns the index of the named field.
func (t *Table) Column(name string) (int, bool) {
	if t.index == nil {
		t.reindex()
	}
	i, ok := t.index[name]
	return i, ok
}

// Value returns the cell at row for the named field.
func (t *Table) Value(row int, name string) (string, bool) {
	i, ok := t.Column(name)
	if !ok || row < 0 || row >= len(t.Rows) {
		return "", false
	}
	return t.Rows[row][i], true
}

// Records returns every row keyed by field name, in document order.
func (t *Table) Records() []Record {
	out := make([]Record, 0, len(t.Rows))
	for _, row := range t.Rows {
		rec := make(Record, len(t.Fields))
		for i, f := range t.Fields {
			rec[f.Name] = row[i]
		}
		out = append(out, rec)
	}
	return out
}
