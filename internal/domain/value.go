package domain

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// ValueType discriminates the wire representation of a data value
type ValueType string

const (
	ValueString      ValueType = "string"
	ValueMonolingual ValueType = "monolingualtext"
	ValueQuantity    ValueType = "quantity"
	ValueTime        ValueType = "time"
	ValueCoordinate  ValueType = "globecoordinate"
	ValueEntity      ValueType = "wikibase-entityid"
	ValueSomeValue   ValueType = "somevalue"
	ValueNoValue     ValueType = "novalue"
)

// LastPlaceholder is the entity id placeholder resolved at run time to the
// id most recently created earlier in the same batch.
const LastPlaceholder = "LAST"

var entityIDRegex = regexp.MustCompile(`^(Q\d+|P\d+|M\d+|L\d+(-[FS]\d+)?)$`)

// EntityRef is a typed reference to an addressable knowledge-base record.
type EntityRef struct {
	Type string `json:"entity-type"`
	ID   string `json:"id"`
}

// NewEntityRef builds a reference from a bare id, inferring the entity type.
// The id must already be validated (or be the LAST placeholder).
func NewEntityRef(id string) EntityRef {
	return EntityRef{Type: EntityTypeOf(id), ID: id}
}

// EntityTypeOf infers the entity type from an id prefix
func EntityTypeOf(id string) string {
	switch {
	case id == LastPlaceholder:
		return "item"
	case strings.HasPrefix(id, "Q"):
		return "item"
	case strings.HasPrefix(id, "P"):
		return "property"
	case strings.HasPrefix(id, "M"):
		return "mediainfo"
	case strings.HasPrefix(id, "L") && strings.Contains(id, "-F"):
		return "form"
	case strings.HasPrefix(id, "L") && strings.Contains(id, "-S"):
		return "sense"
	case strings.HasPrefix(id, "L"):
		return "lexeme"
	}
	return ""
}

// IsEntityID reports whether s is a well-formed entity id
func IsEntityID(s string) bool {
	return entityIDRegex.MatchString(s)
}

// IsLast reports whether the reference is the unresolved LAST placeholder
func (r EntityRef) IsLast() bool {
	return r.ID == LastPlaceholder
}

// MonolingualText is a language-tagged string value
type MonolingualText struct {
	Language string `json:"language"`
	Text     string `json:"text"`
}

// Quantity is a decimal amount with an optional unit and uncertainty bounds.
// Amount and bounds are kept as signed decimal strings, never floats.
type Quantity struct {
	Amount     string `json:"amount"`
	Unit       string `json:"unit"`
	LowerBound string `json:"lowerBound,omitempty"`
	UpperBound string `json:"upperBound,omitempty"`
}

// TimeValue is a point in time with precision and calendar model
type TimeValue struct {
	Time          string `json:"time"`
	Precision     int    `json:"precision"`
	CalendarModel string `json:"calendarmodel"`
}

// Coordinate is a point on a globe
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Precision float64 `json:"precision"`
	Globe     string  `json:"globe"`
}

// Value is the tagged union of all data value kinds. Exactly one of the
// pointer fields is set, matching Type; plain strings live in Str.
type Value struct {
	Type   ValueType
	Str    string
	Mono   *MonolingualText
	Qty    *Quantity
	Time   *TimeValue
	Coord  *Coordinate
	Entity *EntityRef
}

// StringValue builds a plain string value
func StringValue(s string) Value { return Value{Type: ValueString, Str: s} }

// EntityValue builds an entity reference value
func EntityValue(id string) Value {
	ref := NewEntityRef(id)
	return Value{Type: ValueEntity, Entity: &ref}
}

// SomeValue is the unknown-value sentinel
func SomeValue() Value { return Value{Type: ValueSomeValue} }

// NoValue is the no-value sentinel
func NoValue() Value { return Value{Type: ValueNoValue} }

// IsLast reports whether the value is an unresolved LAST entity reference
func (v Value) IsLast() bool {
	return v.Type == ValueEntity && v.Entity != nil && v.Entity.IsLast()
}

type valueWire struct {
	Type  ValueType       `json:"type"`
	Value json.RawMessage `json:"value,omitempty"`
}

// MarshalJSON writes the stable {type, value} wire shape
func (v Value) MarshalJSON() ([]byte, error) {
	var inner interface{}
	switch v.Type {
	case ValueString:
		inner = v.Str
	case ValueMonolingual:
		inner = v.Mono
	case ValueQuantity:
		inner = v.Qty
	case ValueTime:
		inner = v.Time
	case ValueCoordinate:
		inner = v.Coord
	case ValueEntity:
		inner = v.Entity
	case ValueSomeValue, ValueNoValue:
		return json.Marshal(valueWire{Type: v.Type})
	default:
		return nil, fmt.Errorf("unknown value type %q", v.Type)
	}
	raw, err := json.Marshal(inner)
	if err != nil {
		return nil, err
	}
	return json.Marshal(valueWire{Type: v.Type, Value: raw})
}

// UnmarshalJSON reads the {type, value} wire shape back into the union
func (v *Value) UnmarshalJSON(data []byte) error {
	var w valueWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	v.Type = w.Type
	switch w.Type {
	case ValueString:
		return json.Unmarshal(w.Value, &v.Str)
	case ValueMonolingual:
		v.Mono = &MonolingualText{}
		return json.Unmarshal(w.Value, v.Mono)
	case ValueQuantity:
		v.Qty = &Quantity{}
		return json.Unmarshal(w.Value, v.Qty)
	case ValueTime:
		v.Time = &TimeValue{}
		return json.Unmarshal(w.Value, v.Time)
	case ValueCoordinate:
		v.Coord = &Coordinate{}
		return json.Unmarshal(w.Value, v.Coord)
	case ValueEntity:
		v.Entity = &EntityRef{}
		return json.Unmarshal(w.Value, v.Entity)
	case ValueSomeValue, ValueNoValue:
		return nil
	}
	return fmt.Errorf("unknown value type %q", w.Type)
}

// ExpectedValueType maps a property data type to the value type its
// statements must carry. Unknown data types return ok=false.
func ExpectedValueType(dataType string) (ValueType, bool) {
	switch dataType {
	case "string", "url", "commonsMedia", "external-id", "math",
		"geo-shape", "musical-notation", "tabular-data", "entity-schema":
		return ValueString, true
	case "wikibase-item", "wikibase-property", "wikibase-lexeme",
		"wikibase-form", "wikibase-sense":
		return ValueEntity, true
	case "quantity":
		return ValueQuantity, true
	case "time":
		return ValueTime, true
	case "globe-coordinate":
		return ValueCoordinate, true
	case "monolingualtext":
		return ValueMonolingual, true
	}
	return "", false
}

// Equal reports whether two values have identical content
func (v Value) Equal(o Value) bool {
	if v.Type != o.Type {
		return false
	}
	switch v.Type {
	case ValueString:
		return v.Str == o.Str
	case ValueMonolingual:
		return v.Mono != nil && o.Mono != nil && *v.Mono == *o.Mono
	case ValueQuantity:
		return v.Qty != nil && o.Qty != nil && *v.Qty == *o.Qty
	case ValueTime:
		return v.Time != nil && o.Time != nil && *v.Time == *o.Time
	case ValueCoordinate:
		return v.Coord != nil && o.Coord != nil && *v.Coord == *o.Coord
	case ValueEntity:
		return v.Entity != nil && o.Entity != nil && *v.Entity == *o.Entity
	case ValueSomeValue, ValueNoValue:
		return true
	}
	return false
}
