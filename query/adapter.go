package query

import (
	"fmt"
	"math"
)

// FromAny converts a native Go value into a typed Value. It accepts the types
// produced by encoding/json and gopkg.in/yaml.v3 as well as plain Go scalars.
func FromAny(v any) (Value, error) {
	switch x := v.(type) {
	case nil:
		return Null(), nil
	case Value:
		return x, nil
	case bool:
		return Bool(x), nil
	case string:
		return String(x), nil
	case float64:
		return Float(x), nil
	case float32:
		return Float(float64(x)), nil
	case int:
		return Int(int64(x)), nil
	case int32:
		return Int(int64(x)), nil
	case int64:
		return Int(x), nil
	case uint:
		return Int(int64(x)), nil
	case uint64:
		if x > math.MaxInt64 {
			return Value{}, fmt.Errorf("query: uint64 value out of range: %d", x)
		}
		return Int(int64(x)), nil
	case []Value:
		return Array(x...), nil
	case []any:
		arr := make([]Value, len(x))
		for i := range x {
			el, err := FromAny(x[i])
			if err != nil {
				return Value{}, err
			}
			arr[i] = el
		}
		return Array(arr...), nil
	case []string:
		return Strings(x...), nil
	default:
		return Value{}, fmt.Errorf("query: unsupported value type %T", v)
	}
}

// DocumentFromAny converts an untyped map, as decoded from JSON or YAML, to
// a typed Document.
func DocumentFromAny(m map[string]any) (Document, error) {
	d := make(Document, len(m))
	for k, v := range m {
		vv, err := FromAny(v)
		if err != nil {
			return nil, fmt.Errorf("query: field %q: %w", k, err)
		}
		d[k] = vv
	}
	return d, nil
}

// Any converts the value back to its native Go representation, suitable for
// encoding/json.
func (v Value) Any() any {
	switch v.Kind {
	case KindInt:
		return v.I64
	case KindFloat:
		return v.F64
	case KindString:
		return v.S
	case KindBool:
		return v.B
	case KindArray:
		arr := make([]any, len(v.A))
		for i := range v.A {
			arr[i] = v.A[i].Any()
		}
		return arr
	default:
		return nil
	}
}

// AnyMap converts the document to an untyped map for JSON persistence.
func (d Document) AnyMap() map[string]any {
	if d == nil {
		return nil
	}
	m := make(map[string]any, len(d))
	for k, v := range d {
		m[k] = v.Any()
	}
	return m
}

// Normalize coerces values to the kinds the schema declares. JSON decodes
// every number as float64; integral floats on fields declared int are folded
// back so that equality against Int operands keeps working.
func (d Document) Normalize(s Schema) Document {
	for k, v := range d {
		want, ok := s[k]
		if !ok {
			continue
		}
		if want == KindInt && v.Kind == KindFloat && v.F64 == math.Trunc(v.F64) {
			d[k] = Int(int64(v.F64))
		}
	}
	return d
}

// Validate checks every document field against the schema. Unknown fields
// are rejected; declared fields must carry a compatible kind.
func (s Schema) Validate(d Document) error {
	for k, v := range d {
		want, ok := s[k]
		if !ok {
			return fmt.Errorf("query: undeclared field %q", k)
		}
		if v.Kind == KindNull {
			continue
		}
		if !kindAccepts(want, v.Kind) {
			return fmt.Errorf("query: field %q is declared %s, got %s", k, want, v.Kind)
		}
	}
	return nil
}
