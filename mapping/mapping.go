// Package mapping declares how control-surface channels bind to parameter
// fields. A Mapping ties an optional control identifier to a field name and
// a value domain; a Table collects the mappings for one parameter type.
//
// Scaling is pure math: a Range domain interpolates a normalized [0, 1]
// control position into [min, max], a Toggle domain applies a hard press
// threshold. Validation happens once at registration time so the hot path
// never re-checks.
package mapping

import (
	"fmt"
	"math"

	"github.com/c360/paramsync/errors"
)

// MaxControl is the highest valid control identifier. Control surfaces
// address channels with a small 7-bit namespace.
const MaxControl = 127

// ToggleThreshold is the normalized value above which a toggle control
// counts as pressed.
const ToggleThreshold = 0.5

// Kind distinguishes the value domains a control can map into.
type Kind int

const (
	// KindRange is a continuous domain scaled between fixed bounds.
	KindRange Kind = iota
	// KindToggle is a boolean domain driven by a press threshold.
	KindToggle
)

// String returns the string representation of Kind
func (k Kind) String() string {
	switch k {
	case KindRange:
		return "range"
	case KindToggle:
		return "toggle"
	default:
		return "unknown"
	}
}

// Domain describes the value domain of one mapped field.
// The zero value is a Range over [0, 0], which fails validation;
// construct domains with RangeDomain or ToggleDomain.
type Domain struct {
	kind     Kind
	min, max float64
}

// RangeDomain returns a continuous domain over [min, max].
func RangeDomain(min, max float64) Domain {
	return Domain{kind: KindRange, min: min, max: max}
}

// ToggleDomain returns a boolean press-threshold domain.
func ToggleDomain() Domain {
	return Domain{kind: KindToggle, min: 0, max: 1}
}

// Kind returns the domain kind.
func (d Domain) Kind() Kind { return d.kind }

// IsToggle reports whether the domain is a toggle.
func (d Domain) IsToggle() bool { return d.kind == KindToggle }

// Bounds returns the domain bounds. Toggles report [0, 1].
func (d Domain) Bounds() (min, max float64) { return d.min, d.max }

// Validate checks the domain invariants: range bounds must be finite and
// strictly ordered.
func (d Domain) Validate() error {
	if d.kind == KindToggle {
		return nil
	}

	if math.IsNaN(d.min) || math.IsInf(d.min, 0) ||
		math.IsNaN(d.max) || math.IsInf(d.max, 0) {
		return errors.WrapInvalid(
			fmt.Errorf("%w: non-finite bounds [%v, %v]", errors.ErrInvalidMapping, d.min, d.max),
			"Domain", "Validate", "bounds check")
	}
	if d.min >= d.max {
		return errors.WrapInvalid(
			fmt.Errorf("%w: min %v must be less than max %v", errors.ErrInvalidMapping, d.min, d.max),
			"Domain", "Validate", "bounds ordering")
	}
	return nil
}

// Scale converts a normalized control position into the domain.
//
// Range domains interpolate affinely, so Scale(0) = min and Scale(1) = max.
// Toggle domains collapse to 1.0 above the press threshold and 0.0 at or
// below it; the boolean flip semantics live one layer up in the sync
// engine. The input is assumed pre-clamped to [0, 1] by the value store.
func (d Domain) Scale(normalized float64) float64 {
	if d.kind == KindToggle {
		if normalized > ToggleThreshold {
			return 1.0
		}
		return 0.0
	}
	return d.min + normalized*(d.max-d.min)
}

// String returns a short description, e.g. "range[0,10]" or "toggle".
func (d Domain) String() string {
	if d.kind == KindToggle {
		return "toggle"
	}
	return fmt.Sprintf("range[%v,%v]", d.min, d.max)
}

// Mapping binds one parameter field to its value domain and, optionally,
// to a live control channel. A nil Control marks a persist-only field:
// stored and restored with the rest of the type but never driven by input.
type Mapping struct {
	Control *uint8
	Field   string
	Domain  Domain
}

// NewRange creates a live mapping from a control channel into [min, max].
func NewRange(control uint8, field string, min, max float64) Mapping {
	c := control
	return Mapping{Control: &c, Field: field, Domain: RangeDomain(min, max)}
}

// NewToggle creates a live toggle mapping for a control channel.
func NewToggle(control uint8, field string) Mapping {
	c := control
	return Mapping{Control: &c, Field: field, Domain: ToggleDomain()}
}

// NewPersisted creates a persist-only mapping with no live control.
func NewPersisted(field string, domain Domain) Mapping {
	return Mapping{Field: field, Domain: domain}
}

// Live reports whether the mapping is driven by a control channel.
func (m Mapping) Live() bool { return m.Control != nil }

// Scale converts a normalized control position through the mapping's domain.
func (m Mapping) Scale(normalized float64) float64 {
	return m.Domain.Scale(normalized)
}

// Validate checks the mapping invariants. Malformed mappings are rejected
// here, at registration time, never at use time.
func (m Mapping) Validate() error {
	if m.Field == "" {
		return errors.WrapInvalid(
			fmt.Errorf("%w: empty field name", errors.ErrInvalidMapping),
			"Mapping", "Validate", "field name check")
	}
	if m.Control != nil && *m.Control > MaxControl {
		return errors.WrapInvalid(
			fmt.Errorf("%w: control %d outside 0-%d", errors.ErrInvalidMapping, *m.Control, MaxControl),
			"Mapping", "Validate", "control id check")
	}
	if err := m.Domain.Validate(); err != nil {
		return errors.Wrap(err, "Mapping", "Validate", fmt.Sprintf("domain check for field %q", m.Field))
	}
	return nil
}
