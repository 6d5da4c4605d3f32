package mapping

// Table is the mapping table for one parameter type: every mapping, in
// declaration order, with live mappings indexed by control identifier.
// A given control maps to exactly one field; re-registering a control
// replaces the prior binding (last registration wins).
//
// Tables are built once at registration time and immutable afterwards, so
// lookups need no locking.
type Table struct {
	ordered   []Mapping
	byControl map[uint8]Mapping
}

// NewTable creates an empty mapping table.
func NewTable() *Table {
	return &Table{
		byControl: make(map[uint8]Mapping),
	}
}

// Add validates and inserts a mapping. For live mappings it reports whether
// an existing binding for the same control was replaced - callers log this
// as a likely configuration bug rather than failing, since reusing a
// control id is legal but usually unintended.
func (t *Table) Add(m Mapping) (replaced bool, err error) {
	if err := m.Validate(); err != nil {
		return false, err
	}

	if m.Live() {
		_, replaced = t.byControl[*m.Control]
		t.byControl[*m.Control] = m
		if replaced {
			// Swap out the prior binding in place so the table never
			// holds two live mappings for one control.
			for i, prev := range t.ordered {
				if prev.Live() && *prev.Control == *m.Control {
					t.ordered[i] = m
					return true, nil
				}
			}
		}
	}
	t.ordered = append(t.ordered, m)
	return replaced, nil
}

// Lookup returns the live mapping for a control identifier.
func (t *Table) Lookup(control uint8) (Mapping, bool) {
	m, ok := t.byControl[control]
	return m, ok
}

// Mappings returns all mappings in declaration order, including
// persist-only entries.
func (t *Table) Mappings() []Mapping {
	return t.ordered
}

// Controls returns the set of live control identifiers in the table.
func (t *Table) Controls() []uint8 {
	controls := make([]uint8, 0, len(t.byControl))
	for c := range t.byControl {
		controls = append(controls, c)
	}
	return controls
}

// Len returns the number of mappings, including persist-only entries.
func (t *Table) Len() int {
	return len(t.ordered)
}
