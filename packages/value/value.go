package value

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
)

// Value is a sealed interface. Only the types in this package implement it.
type Value interface {
	jsonValue()
}

// Null is the JSON null literal.
type Null struct{}

func (Null) jsonValue() {}

// MarshalJSON implements json.Marshaler.
func (Null) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

type Bool bool

func (Bool) jsonValue() {}

// Number holds every JSON number as float64, the same coercion encoding/json applies.
type Number float64

func (Number) jsonValue() {}

// MarshalJSON writes integral numbers without an exponent.
func (n Number) MarshalJSON() ([]byte, error) {
	f := float64(n)
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return nil, fmt.Errorf("unsupported number: %v", f)
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return []byte(strconv.FormatInt(int64(f), 10)), nil
	}
	return []byte(strconv.FormatFloat(f, 'g', -1, 64)), nil
}

type String string

func (String) jsonValue() {}

type Array []Value

func (Array) jsonValue() {}

// Object is a string-keyed map that remembers insertion order.
type Object struct {
	keys   []string
	fields map[string]Value
}

func (*Object) jsonValue() {}

// Pair is a key/value pair used to build objects.
type Pair struct {
	Key   string
	Value Value
}

// O is a shorthand for Pair.
func O(key string, v Value) Pair {
	return Pair{Key: key, Value: v}
}

// NewObject creates an object from pairs, in order.
func NewObject(pairs ...Pair) *Object {
	obj := &Object{fields: make(map[string]Value, len(pairs))}
	for _, p := range pairs {
		obj.Set(p.Key, p.Value)
	}
	return obj
}

// Set adds or replaces a field. Replacing keeps the original position.
func (o *Object) Set(key string, v Value) {
	if o.fields == nil {
		o.fields = make(map[string]Value)
	}
	if _, ok := o.fields[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.fields[key] = v
}

// Get returns the field and whether it exists.
func (o *Object) Get(key string) (Value, bool) {
	if o == nil {
		return nil, false
	}
	v, ok := o.fields[key]
	return v, ok
}

// Delete removes a field.
func (o *Object) Delete(key string) {
	if _, ok := o.fields[key]; !ok {
		return
	}
	delete(o.fields, key)
	for i, k := range o.keys {
		if k == key {
			o.keys = append(o.keys[:i], o.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the keys in insertion order.
func (o *Object) Keys() []string {
	if o == nil {
		return nil
	}
	out := make([]string, len(o.keys))
	copy(out, o.keys)
	return out
}

func (o *Object) Len() int {
	if o == nil {
		return 0
	}
	return len(o.keys)
}

// MarshalJSON writes fields in insertion order.
func (o *Object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range o.Keys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(o.fields[k])
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// TypeName returns the JSON type name of v ("null", "boolean", "number",
// "string", "array", "object"), or "undefined" for a nil Value.
func TypeName(v Value) string {
	switch v.(type) {
	case Null:
		return "null"
	case Bool:
		return "boolean"
	case Number:
		return "number"
	case String:
		return "string"
	case Array:
		return "array"
	case *Object:
		return "object"
	default:
		return "undefined"
	}
}

// Equal reports deep equality. Object key order is ignored.
func Equal(a, b Value) bool {
	switch av := a.(type) {
	case nil:
		return b == nil
	case Null:
		_, ok := b.(Null)
		return ok
	case Bool:
		bv, ok := b.(Bool)
		return ok && av == bv
	case Number:
		bv, ok := b.(Number)
		return ok && av == bv
	case String:
		bv, ok := b.(String)
		return ok && av == bv
	case Array:
		bv, ok := b.(Array)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case *Object:
		bv, ok := b.(*Object)
		if !ok || av.Len() != bv.Len() {
			return false
		}
		for _, k := range av.keys {
			other, ok := bv.fields[k]
			if !ok || !Equal(av.fields[k], other) {
				return false
			}
		}
		return true
	}
	return false
}

// Clone returns a deep copy of v.
func Clone(v Value) Value {
	switch tv := v.(type) {
	case Array:
		out := make(Array, len(tv))
		for i, item := range tv {
			out[i] = Clone(item)
		}
		return out
	case *Object:
		out := NewObject()
		for _, k := range tv.keys {
			out.Set(k, Clone(tv.fields[k]))
		}
		return out
	default:
		return v
	}
}

// ToGo converts v to the encoding/json representation
// (nil, bool, float64, string, []any, map[string]any).
func ToGo(v Value) any {
	switch tv := v.(type) {
	case nil, Null:
		return nil
	case Bool:
		return bool(tv)
	case Number:
		return float64(tv)
	case String:
		return string(tv)
	case Array:
		out := make([]any, len(tv))
		for i, item := range tv {
			out[i] = ToGo(item)
		}
		return out
	case *Object:
		out := make(map[string]any, tv.Len())
		for _, k := range tv.keys {
			out[k] = ToGo(tv.fields[k])
		}
		return out
	}
	return nil
}

// FromGo converts a Go value to a Value. Maps are ordered by sorted key.
// Types it does not know are round-tripped through encoding/json.
func FromGo(v any) Value {
	switch tv := v.(type) {
	case nil:
		return Null{}
	case Value:
		return tv
	case bool:
		return Bool(tv)
	case string:
		return String(tv)
	case int:
		return Number(tv)
	case int32:
		return Number(tv)
	case int64:
		return Number(tv)
	case uint:
		return Number(tv)
	case uint64:
		return Number(tv)
	case float32:
		return Number(tv)
	case float64:
		return Number(tv)
	case json.Number:
		f, err := tv.Float64()
		if err != nil {
			return String(tv.String())
		}
		return Number(f)
	case []any:
		out := make(Array, len(tv))
		for i, item := range tv {
			out[i] = FromGo(item)
		}
		return out
	case []string:
		out := make(Array, len(tv))
		for i, item := range tv {
			out[i] = String(item)
		}
		return out
	case []map[string]any:
		out := make(Array, len(tv))
		for i, item := range tv {
			out[i] = FromGo(item)
		}
		return out
	case map[string]any:
		keys := make([]string, 0, len(tv))
		for k := range tv {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		obj := NewObject()
		for _, k := range keys {
			obj.Set(k, FromGo(tv[k]))
		}
		return obj
	case map[string]string:
		keys := make([]string, 0, len(tv))
		for k := range tv {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		obj := NewObject()
		for _, k := range keys {
			obj.Set(k, String(tv[k]))
		}
		return obj
	}

	data, err := json.Marshal(v)
	if err != nil {
		return String(fmt.Sprint(v))
	}
	parsed, err := Parse(data)
	if err != nil {
		return String(fmt.Sprint(v))
	}
	return parsed
}

// Format renders v as compact JSON. A nil Value renders as "<undefined>".
func Format(v Value) string {
	if v == nil {
		return "<undefined>"
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
