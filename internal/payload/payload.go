// Package payload synthesizes baseline request payloads from schemas and
// enumerates mutated variants of them.
package payload

import (
	"encoding/json"
	"strconv"

	"github.com/mohae/deepcopy"
)

// Object is a JSON object payload. Values are string, float64, bool, nil,
// Undefined, Object or []any.
type Object = map[string]any

type undefinedValue struct{}

func (undefinedValue) String() string { return "undefined" }

// Undefined marks a field that is present in a payload but has no value. It
// is dropped from encoded objects, encoded as null inside arrays, rendered
// as "undefined" in paths and left out of query strings.
var Undefined any = undefinedValue{}

// IsUndefined reports whether v is the Undefined sentinel.
func IsUndefined(v any) bool {
	_, ok := v.(undefinedValue)
	return ok
}

// Clone returns a deep copy of v.
func Clone(v any) any {
	if v == nil {
		return nil
	}
	return deepcopy.Copy(v)
}

// CloneObject returns a deep copy of o. A nil object clones to an empty one.
func CloneObject(o Object) Object {
	if o == nil {
		return Object{}
	}
	return deepcopy.Copy(o).(Object)
}

// Prune returns a copy of v that can be handed to encoding/json: Undefined
// object members are removed and Undefined array elements become nil.
func Prune(v any) any {
	switch t := v.(type) {
	case Object:
		out := make(Object, len(t))
		for k, val := range t {
			if IsUndefined(val) {
				continue
			}
			out[k] = Prune(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			if IsUndefined(val) {
				continue
			}
			out[i] = Prune(val)
		}
		return out
	case undefinedValue:
		return nil
	}
	return v
}

// Encode renders v as JSON.
func Encode(v any) ([]byte, error) {
	return json.Marshal(Prune(v))
}

// Stringify renders a single value for substitution into a URL path or a
// query string. Strings are used verbatim, everything else as JSON.
func Stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case undefinedValue:
		return "undefined"
	case nil:
		return "null"
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	}
	b, err := Encode(v)
	if err != nil {
		return ""
	}
	return string(b)
}
