// Package param defines the capability a tunable parameter type exposes
// and the sync engine that drives its fields from live control values.
// Most types are wired with a Binder rather than implementing the
// interface by hand.
package param

import "github.com/c360/paramsync/persist"

// Params is the surface the reconciliation controller works against.
// A parameter type that implements it can be driven by control input,
// snapshotted to a persisted document, and restored from one.
type Params interface {
	// TypeName is the stable persistence key for this type. It must be
	// unique across all registered types and survive renames of the Go
	// type itself.
	TypeName() string

	// ToDocument snapshots every persisted field into a document.
	ToDocument() persist.Document

	// FromDocument restores fields from a document. Missing or
	// type-mismatched fields leave the in-memory value untouched.
	FromDocument(doc persist.Document)

	// ApplyControl offers a control value to the type and reports
	// whether any field actually changed. Range controls receive the
	// scaled value; toggle controls receive the raw normalized value.
	ApplyControl(control uint8, value float64) bool
}
