package value

import (
	"errors"

	"github.com/tidwall/gjson"
)

// ErrInvalidJSON is returned by Parse for malformed documents.
var ErrInvalidJSON = errors.New("invalid JSON document")

// Parse decodes a JSON document.
func Parse(data []byte) (Value, error) {
	if !gjson.ValidBytes(data) {
		return nil, ErrInvalidJSON
	}
	return fromResult(gjson.ParseBytes(data)), nil
}

// ParseString is Parse for strings.
func ParseString(s string) (Value, error) {
	return Parse([]byte(s))
}

func fromResult(r gjson.Result) Value {
	switch r.Type {
	case gjson.Null:
		return Null{}
	case gjson.False:
		return Bool(false)
	case gjson.True:
		return Bool(true)
	case gjson.Number:
		return Number(r.Num)
	case gjson.String:
		return String(r.Str)
	case gjson.JSON:
		if r.IsArray() {
			arr := Array{}
			r.ForEach(func(_, item gjson.Result) bool {
				arr = append(arr, fromResult(item))
				return true
			})
			return arr
		}
		obj := NewObject()
		r.ForEach(func(key, item gjson.Result) bool {
			obj.Set(key.Str, fromResult(item))
			return true
		})
		return obj
	}
	return Null{}
}
