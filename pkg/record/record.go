// Package record models the dynamically typed records relayed into the
// engine. Values form a small tagged union (null, bool, int, float, string,
// vector) so type guessing and wire encoding are exhaustive switches rather
// than scattered runtime type checks. Records preserve field insertion order
// so encodings are deterministic.
package record

import (
	"fmt"
	"math"
	"time"

	gojson "github.com/goccy/go-json"

	"github.com/grnrelay/grnrelay/pkg/errors"
	"github.com/grnrelay/grnrelay/pkg/json"
)

// Kind identifies the variant held by a Value
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindVector
)

// String returns the kind name
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindVector:
		return "vector"
	default:
		return "unknown"
	}
}

// Value is a dynamically typed record value.
// The zero Value is null.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
	vec  []Value
}

// Null returns the null value
func Null() Value { return Value{kind: KindNull} }

// Bool returns a boolean value
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Int returns an integer value
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Float returns a float value
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// String returns a string value
func String(s string) Value { return Value{kind: KindString, s: s} }

// Vector returns a list value holding the given elements
func Vector(elems ...Value) Value { return Value{kind: KindVector, vec: elems} }

// Kind returns the variant held by the value
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether the value is null
func (v Value) IsNull() bool { return v.kind == KindNull }

// BoolValue returns the boolean payload; valid only for KindBool
func (v Value) BoolValue() bool { return v.b }

// IntValue returns the integer payload; valid only for KindInt
func (v Value) IntValue() int64 { return v.i }

// FloatValue returns the float payload; valid only for KindFloat
func (v Value) FloatValue() float64 { return v.f }

// StringValue returns the string payload; valid only for KindString
func (v Value) StringValue() string { return v.s }

// VectorValue returns the element slice; valid only for KindVector
func (v Value) VectorValue() []Value { return v.vec }

// Interface converts the value to its plain Go representation for
// JSON encoding and argument stringification.
func (v Value) Interface() interface{} {
	switch v.kind {
	case KindNull:
		return nil
	case KindBool:
		return v.b
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindString:
		return v.s
	case KindVector:
		out := make([]interface{}, len(v.vec))
		for i, e := range v.vec {
			out[i] = e.Interface()
		}
		return out
	default:
		return nil
	}
}

// MarshalJSON implements json.Marshaler
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

// FromInterface converts a decoded JSON value (or plain Go value handed in
// by the host framework) into a Value. Unsupported shapes are rejected with
// a data error so the caller can skip the record and keep the batch alive.
func FromInterface(raw interface{}) (Value, error) {
	switch x := raw.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(x), nil
	case int:
		return Int(int64(x)), nil
	case int32:
		return Int(int64(x)), nil
	case int64:
		return Int(x), nil
	case uint:
		return fromUint(uint64(x)), nil
	case uint32:
		return Int(int64(x)), nil
	case uint64:
		return fromUint(x), nil
	case float32:
		return Float(float64(x)), nil
	case float64:
		return Float(x), nil
	case string:
		return String(x), nil
	case gojson.Number:
		if i, err := x.Int64(); err == nil {
			return Int(i), nil
		}
		f, err := x.Float64()
		if err != nil {
			return Value{}, errors.Wrap(err, errors.ErrorTypeData, "unparseable number").
				WithDetail("value", x.String())
		}
		return Float(f), nil
	case []interface{}:
		elems := make([]Value, 0, len(x))
		for _, e := range x {
			ev, err := FromInterface(e)
			if err != nil {
				return Value{}, err
			}
			elems = append(elems, ev)
		}
		return Vector(elems...), nil
	default:
		return Value{}, errors.New(errors.ErrorTypeData, "unsupported value type").
			WithDetail("go_type", fmt.Sprintf("%T", raw))
	}
}

// fromUint converts an unsigned integer; values above MaxInt64 would wrap
// negative, so they degrade to Float instead.
func fromUint(x uint64) Value {
	if x > math.MaxInt64 {
		return Float(float64(x))
	}
	return Int(int64(x))
}

// Field is a single named value within a record
type Field struct {
	Name  string
	Value Value
}

// Record is an ordered mapping from field name to Value. Immutable once
// handed to the relay core by convention; Set is for construction only.
type Record struct {
	fields []Field
	index  map[string]int
}

// NewRecord creates an empty record
func NewRecord() *Record {
	return &Record{index: make(map[string]int)}
}

// Set adds or replaces a field, preserving first-insertion order
func (r *Record) Set(name string, v Value) *Record {
	if i, ok := r.index[name]; ok {
		r.fields[i].Value = v
		return r
	}
	r.index[name] = len(r.fields)
	r.fields = append(r.fields, Field{Name: name, Value: v})
	return r
}

// Get returns the value for a field name
func (r *Record) Get(name string) (Value, bool) {
	i, ok := r.index[name]
	if !ok {
		return Value{}, false
	}
	return r.fields[i].Value, true
}

// Fields returns the fields in insertion order
func (r *Record) Fields() []Field {
	return r.fields
}

// Len returns the number of fields
func (r *Record) Len() int {
	return len(r.fields)
}

// MarshalJSON encodes the record as a JSON object preserving field order
func (r *Record) MarshalJSON() ([]byte, error) {
	buf := json.GetBuffer()
	defer json.PutBuffer(buf)

	buf.WriteByte('{')
	for i, f := range r.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(f.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')

	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, nil
}

// Entry is one (tag, timestamp, record) triple delivered by the host
type Entry struct {
	Tag    string
	Time   time.Time
	Record *Record
}

// Batch is an ordered sequence of entries delivered together
type Batch []Entry
