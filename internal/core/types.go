// Package core defines the shared data model and interfaces for the wave trader
package core

import (
	"encoding/json"
	"fmt"
)

// Well-known venue field names. The venue carries no fixed schema; these are
// the fields the engine reads from event field bags.
const (
	FieldUnreleased = "Unreleased"
	FieldText       = "Text"
	FieldLeaves     = "Leaves"
	FieldOrdPx      = "OrdPx"
	FieldOrdType    = "OrdType"
	FieldMidPx      = "MidPx"
	FieldLastPx     = "LastPx"
	FieldTgtID      = "TgtID"
	FieldInstrument = "Instrument"
)

// TextStop is the Text field value that stops trading of a target.
const TextStop = "STOP"

// OrderType represents a venue order type
type OrderType string

const (
	OrderTypeLimit  OrderType = "Limit"
	OrderTypeMarket OrderType = "Market"
)

// FieldKind tags the type held by a FieldValue
type FieldKind int

const (
	KindNumber FieldKind = iota
	KindString
)

// FieldValue is a tagged string-or-number field value
type FieldValue struct {
	kind FieldKind
	num  float64
	str  string
}

// Num constructs a numeric field value
func Num(v float64) FieldValue {
	return FieldValue{kind: KindNumber, num: v}
}

// Str constructs a string field value
func Str(v string) FieldValue {
	return FieldValue{kind: KindString, str: v}
}

// Kind returns the tag of the value
func (v FieldValue) Kind() FieldKind { return v.kind }

// Fields is a named bag of string and numeric values. Absent fields are
// always read through the Or accessors with an explicit default; there is no
// implicit zero.
type Fields map[string]FieldValue

// Number returns the numeric value of a field and whether it is present
// with a numeric kind.
func (f Fields) Number(name string) (float64, bool) {
	v, ok := f[name]
	if !ok || v.kind != KindNumber {
		return 0, false
	}
	return v.num, true
}

// NumberOr returns the numeric value of a field, or def if the field is
// absent or not numeric.
func (f Fields) NumberOr(name string, def float64) float64 {
	if v, ok := f.Number(name); ok {
		return v
	}
	return def
}

// String returns the string value of a field and whether it is present
// with a string kind.
func (f Fields) String(name string) (string, bool) {
	v, ok := f[name]
	if !ok || v.kind != KindString {
		return "", false
	}
	return v.str, true
}

// StringOr returns the string value of a field, or def if the field is
// absent or not a string.
func (f Fields) StringOr(name string, def string) string {
	if v, ok := f.String(name); ok {
		return v
	}
	return def
}

// MarshalJSON encodes the bag as a flat JSON object with native types.
func (f Fields) MarshalJSON() ([]byte, error) {
	flat := make(map[string]interface{}, len(f))
	for name, v := range f {
		switch v.kind {
		case KindNumber:
			flat[name] = v.num
		case KindString:
			flat[name] = v.str
		}
	}
	return json.Marshal(flat)
}

// UnmarshalJSON decodes a flat JSON object, tagging numbers and strings.
func (f *Fields) UnmarshalJSON(data []byte) error {
	var flat map[string]interface{}
	if err := json.Unmarshal(data, &flat); err != nil {
		return err
	}
	fields := make(Fields, len(flat))
	for name, raw := range flat {
		switch v := raw.(type) {
		case float64:
			fields[name] = Num(v)
		case string:
			fields[name] = Str(v)
		default:
			return fmt.Errorf("field %q: unsupported value type %T", name, raw)
		}
	}
	*f = fields
	return nil
}
