package param

import "github.com/c360/paramsync/valuestore"

// Sync walks every live mapping in the type's table, reads the current
// normalized value for its control, and offers it to the type. Range
// mappings receive the scaled value; toggles receive the raw normalized
// value so the press latch can see the control release. Returns true if
// any field changed.
//
// Sync is idempotent between input events: with no new control movement
// it reports false, which is what keeps the persistence loop quiet.
func Sync(p Params, store *valuestore.Store) bool {
	changed := false
	for _, m := range store.Table().Mappings() {
		if !m.Live() {
			continue
		}
		// Untouched controls sit at their eager 0.0 entry; applying
		// that would stomp values seeded from persistence.
		if !store.Touched(*m.Control) {
			continue
		}
		normalized := store.Get(*m.Control)
		value := normalized
		if !m.Domain.IsToggle() {
			value = m.Scale(normalized)
		}
		if p.ApplyControl(*m.Control, value) {
			changed = true
		}
	}
	return changed
}
