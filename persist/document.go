// Package persist stores parameter documents durably. A Document is the
// flat field-to-scalar record for one parameter type; a File bundles the
// documents of every registered type together with save metadata. Store
// implementations back the File with the filesystem or a NATS key-value
// bucket.
package persist

import (
	"math"
	"reflect"
)

// Document is the persisted record for one parameter type: field name to
// scalar value. Values are the JSON scalar types (float64, bool, string),
// so a document round-trips losslessly through serialization.
//
// Typed accessors return ok=false for missing fields and for fields whose
// stored value does not match the requested type. A single unreadable
// field never fails the whole document; this lets a type grow new fields
// across versions without invalidating data persisted by older builds.
type Document map[string]any

// NewDocument creates an empty document.
func NewDocument() Document {
	return make(Document)
}

// Set stores a field value.
func (d Document) Set(key string, value any) {
	d[key] = value
}

// GetFloat64 returns the named field as a float64.
func (d Document) GetFloat64(key string) (float64, bool) {
	switch v := d[key].(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, false
		}
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// GetInt returns the named field as an int. JSON decoding stores numbers
// as float64; a fractional stored value is not an int and reports false.
func (d Document) GetInt(key string) (int, bool) {
	switch v := d[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) || v != math.Trunc(v) {
			return 0, false
		}
		return int(v), true
	}
	return 0, false
}

// GetBool returns the named field as a bool.
func (d Document) GetBool(key string) (bool, bool) {
	b, ok := d[key].(bool)
	return b, ok
}

// GetString returns the named field as a string.
func (d Document) GetString(key string) (string, bool) {
	s, ok := d[key].(string)
	return s, ok
}

// Has reports whether the named field exists.
func (d Document) Has(key string) bool {
	_, ok := d[key]
	return ok
}

// Clone returns a shallow copy. Document values are scalars, so a shallow
// copy is a full copy.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	clone := make(Document, len(d))
	for k, v := range d {
		clone[k] = v
	}
	return clone
}

// Equal reports whether two documents hold the same fields and values.
func (d Document) Equal(other Document) bool {
	if len(d) != len(other) {
		return false
	}
	return reflect.DeepEqual(map[string]any(d), map[string]any(other))
}
