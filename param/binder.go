package param

import (
	"fmt"
	"math"

	"github.com/c360/paramsync/errors"
	"github.com/c360/paramsync/mapping"
	"github.com/c360/paramsync/persist"
)

// epsilon is the tolerance for deciding a scaled range value actually
// moved. Control hardware re-sends identical positions constantly;
// treating sub-epsilon deltas as no-ops keeps the dirty flag honest.
const epsilon = 1e-9

// Binder wires the fields of a parameter struct to control channels and
// persistence keys without code generation. Bindings hold pointers into
// the caller's struct, so applying a control or restoring a document
// mutates the struct directly.
//
// Construction is fluent; errors accumulate and surface from Err:
//
//	p := &Synth{Cutoff: 1000, Drive: false}
//	b := param.NewBinder("synth").
//		Range("cutoff", 16, 20, 20000, &p.Cutoff).
//		Toggle("drive", 24, &p.Drive)
//	if err := b.Err(); err != nil { ... }
//
// Binder implements Params and is safe to register once built. It is not
// safe for concurrent use; the controller serializes all access.
type Binder struct {
	typeName  string
	table     *mapping.Table
	bindings  []binding
	byControl map[uint8]controlBinding
	err       error
}

// binding persists one field of the bound struct.
type binding interface {
	snapshot(doc persist.Document)
	restore(doc persist.Document)
}

// controlBinding additionally reacts to live control values.
type controlBinding interface {
	binding
	apply(value float64) bool
}

// NewBinder starts a binder for the given persistence type name.
func NewBinder(typeName string) *Binder {
	b := &Binder{
		table:     mapping.NewTable(),
		byControl: make(map[uint8]controlBinding),
	}
	if typeName == "" {
		b.fail(fmt.Errorf("%w: empty type name", errors.ErrInvalidConfig), "type name check")
		return b
	}
	b.typeName = typeName
	return b
}

func (b *Binder) fail(err error, action string) {
	if b.err == nil {
		b.err = errors.WrapInvalid(err, "Binder", b.typeName, action)
	}
}

func (b *Binder) addControl(m mapping.Mapping, cb controlBinding) {
	if _, err := b.table.Add(m); err != nil {
		b.fail(err, fmt.Sprintf("bind field %q", m.Field))
		return
	}
	// Last registration wins, matching the table. A displaced field
	// keeps persisting, it just stops receiving input.
	b.byControl[*m.Control] = cb
	b.bindings = append(b.bindings, cb)
}

// Range binds a float64 field to a control channel scaled into [min, max].
func (b *Binder) Range(field string, control uint8, min, max float64, ptr *float64) *Binder {
	if b.err != nil {
		return b
	}
	if ptr == nil {
		b.fail(fmt.Errorf("%w: nil pointer for field %q", errors.ErrInvalidMapping, field), "bind range")
		return b
	}
	b.addControl(mapping.NewRange(control, field, min, max), &rangeBinding{field: field, ptr: ptr})
	return b
}

// Toggle binds a bool field to a control channel. Each press (value
// crossing above the threshold) flips the field once; the control must
// return below the threshold before the next press registers.
func (b *Binder) Toggle(field string, control uint8, ptr *bool) *Binder {
	if b.err != nil {
		return b
	}
	if ptr == nil {
		b.fail(fmt.Errorf("%w: nil pointer for field %q", errors.ErrInvalidMapping, field), "bind toggle")
		return b
	}
	b.addControl(mapping.NewToggle(control, field), &toggleBinding{field: field, ptr: ptr})
	return b
}

// Float binds a persist-only float64 field with no live control.
func (b *Binder) Float(field string, ptr *float64) *Binder {
	return b.persisted(field, ptr == nil, &floatBinding{field: field, ptr: ptr})
}

// Bool binds a persist-only bool field with no live control.
func (b *Binder) Bool(field string, ptr *bool) *Binder {
	return b.persisted(field, ptr == nil, &boolBinding{field: field, ptr: ptr})
}

// Int binds a persist-only int field with no live control.
func (b *Binder) Int(field string, ptr *int) *Binder {
	return b.persisted(field, ptr == nil, &intBinding{field: field, ptr: ptr})
}

// String binds a persist-only string field with no live control.
func (b *Binder) String(field string, ptr *string) *Binder {
	return b.persisted(field, ptr == nil, &stringBinding{field: field, ptr: ptr})
}

func (b *Binder) persisted(field string, nilPtr bool, bd binding) *Binder {
	if b.err != nil {
		return b
	}
	if field == "" {
		b.fail(fmt.Errorf("%w: empty field name", errors.ErrInvalidMapping), "bind field")
		return b
	}
	if nilPtr {
		b.fail(fmt.Errorf("%w: nil pointer for field %q", errors.ErrInvalidMapping, field), "bind field")
		return b
	}
	b.bindings = append(b.bindings, bd)
	return b
}

// Err returns the first error accumulated during construction.
func (b *Binder) Err() error {
	return b.err
}

// Table returns the mapping table built from the live bindings.
func (b *Binder) Table() *mapping.Table {
	return b.table
}

// TypeName implements Params.
func (b *Binder) TypeName() string {
	return b.typeName
}

// ToDocument implements Params.
func (b *Binder) ToDocument() persist.Document {
	doc := persist.NewDocument()
	for _, bd := range b.bindings {
		bd.snapshot(doc)
	}
	return doc
}

// FromDocument implements Params. Fields absent from the document or
// stored with the wrong type keep their current value.
func (b *Binder) FromDocument(doc persist.Document) {
	for _, bd := range b.bindings {
		bd.restore(doc)
	}
}

// ApplyControl implements Params.
func (b *Binder) ApplyControl(control uint8, value float64) bool {
	cb, ok := b.byControl[control]
	if !ok {
		return false
	}
	return cb.apply(value)
}

type rangeBinding struct {
	field string
	ptr   *float64
}

func (r *rangeBinding) snapshot(doc persist.Document) { doc.Set(r.field, *r.ptr) }

func (r *rangeBinding) restore(doc persist.Document) {
	if v, ok := doc.GetFloat64(r.field); ok {
		*r.ptr = v
	}
}

func (r *rangeBinding) apply(value float64) bool {
	if math.Abs(value-*r.ptr) <= epsilon {
		return false
	}
	*r.ptr = value
	return true
}

type toggleBinding struct {
	field   string
	ptr     *bool
	latched bool
}

func (t *toggleBinding) snapshot(doc persist.Document) { doc.Set(t.field, *t.ptr) }

func (t *toggleBinding) restore(doc persist.Document) {
	if v, ok := doc.GetBool(t.field); ok {
		*t.ptr = v
	}
}

func (t *toggleBinding) apply(value float64) bool {
	if value > mapping.ToggleThreshold {
		if !t.latched {
			t.latched = true
			*t.ptr = !*t.ptr
			return true
		}
		return false
	}
	t.latched = false
	return false
}

type floatBinding struct {
	field string
	ptr   *float64
}

func (f *floatBinding) snapshot(doc persist.Document) { doc.Set(f.field, *f.ptr) }

func (f *floatBinding) restore(doc persist.Document) {
	if v, ok := doc.GetFloat64(f.field); ok {
		*f.ptr = v
	}
}

type boolBinding struct {
	field string
	ptr   *bool
}

func (b *boolBinding) snapshot(doc persist.Document) { doc.Set(b.field, *b.ptr) }

func (b *boolBinding) restore(doc persist.Document) {
	if v, ok := doc.GetBool(b.field); ok {
		*b.ptr = v
	}
}

type intBinding struct {
	field string
	ptr   *int
}

func (i *intBinding) snapshot(doc persist.Document) { doc.Set(i.field, *i.ptr) }

func (i *intBinding) restore(doc persist.Document) {
	if v, ok := doc.GetInt(i.field); ok {
		*i.ptr = v
	}
}

type stringBinding struct {
	field string
	ptr   *string
}

func (s *stringBinding) snapshot(doc persist.Document) { doc.Set(s.field, *s.ptr) }

func (s *stringBinding) restore(doc persist.Document) {
	if v, ok := doc.GetString(s.field); ok {
		*s.ptr = v
	}
}
