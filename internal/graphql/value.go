package graphql

import (
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"sort"
)

// Value is a GraphQL variable value: a Scalar, List, Object or File.
//
// The set of implementations is closed so encoders can switch on it
// exhaustively.
type Value interface {
	json.Marshaler
	value()
}

// Variables are the top-level variables of an operation.
type Variables map[string]Value

var (
	_ Value = Scalar{}
	_ Value = List(nil)
	_ Value = Object(nil)
	_ Value = File{}
)

// Scalar is a string, number, boolean or null.
type Scalar struct {
	v any
}

func (Scalar) value() {}

func (s Scalar) MarshalJSON() ([]byte, error) { return json.Marshal(s.v) }

// Interface returns the underlying Go value.
func (s Scalar) Interface() any { return s.v }

func String(s string) Scalar { return Scalar{v: s} }
func Int(i int) Scalar { return Scalar{v: i} }
func Float(f float64) Scalar { return Scalar{v: f} }
func Bool(b bool) Scalar { return Scalar{v: b} }
func Null() Scalar { return Scalar{} }
func ID[T ~string](id T) Scalar { return Scalar{v: string(id)} }

// OptionalString is a String when s is non-empty, and Null otherwise.
func OptionalString(s string) Scalar {
	if s == "" {
		return Null()
	}
	return String(s)
}

// List is a GraphQL list value.
type List []Value

func (List) value() {}

func (l List) MarshalJSON() ([]byte, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]Value(l))
}

// Object is a GraphQL input object.
type Object map[string]Value

func (Object) value() {}

func (o Object) MarshalJSON() ([]byte, error) { return json.Marshal(map[string]Value(o)) }

// File is a binary upload. It can only be sent with the multipart encoding.
type File struct {
	Name   string
	Reader io.Reader
}

func (File) value() {}

func (f File) MarshalJSON() ([]byte, error) {
	return nil, fmt.Errorf("%w: %q", ErrFileInJSONBody, f.Name)
}

// NewFile creates a File value.
func NewFile(name string, r io.Reader) File { return File{Name: name, Reader: r} }

// HasFiles reports whether any top-level variable is a File. Callers use it to
// choose between Mutate and MutateMultipart when building their variables.
func (v Variables) HasFiles() bool {
	for _, value := range v {
		if _, ok := value.(File); ok {
			return true
		}
	}
	return false
}

// Keys returns the variable names in sorted order.
func (v Variables) Keys() []string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (v Variables) clone() Variables {
	out := make(Variables, len(v))
	for k, value := range v {
		out[k] = value
	}
	return out
}

// FromAny converts decoded JSON (or plain Go values) into a Value.
func FromAny(in any) (Value, error) {
	switch in := in.(type) {
	case nil:
		return Null(), nil
	case Value:
		return in, nil
	case string:
		return String(in), nil
	case bool:
		return Bool(in), nil
	case int:
		return Int(in), nil
	case int32:
		return Int(int(in)), nil
	case int64:
		return Int(int(in)), nil
	case float64:
		return Float(in), nil
	case json.Number:
		if i, err := in.Int64(); err == nil {
			return Int(int(i)), nil
		}
		f, err := in.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", in, err)
		}
		return Float(f), nil
	case []any:
		out := make(List, 0, len(in))
		for i, item := range in {
			v, err := FromAny(item)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out = append(out, v)
		}
		return out, nil
	case map[string]any:
		out := make(Object, len(in))
		for k, item := range in {
			v, err := FromAny(item)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			out[k] = v
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported variable type %s", reflect.TypeOf(in))
	}
}

// VariablesFromMap converts a decoded JSON object into Variables.
func VariablesFromMap(in map[string]any) (Variables, error) {
	out := make(Variables, len(in))
	for k, item := range in {
		v, err := FromAny(item)
		if err != nil {
			return nil, fmt.Errorf("variable %s: %w", k, err)
		}
		out[k] = v
	}
	return out, nil
}
