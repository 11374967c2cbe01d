// Package value defines the property value model for Grafito.
//
// A property value is a tagged union over the kinds the storage layer can
// persist: null, bool, int (64-bit), float (IEEE-754 double), string, list,
// map, and the temporal kinds date, datetime, time and duration. Node,
// relationship and path values exist only at the query layer and never enter
// the property codec.
//
// Values are represented with plain Go types so they stay cheap to pass
// around: nil, bool, int64, float64, string, []any, map[string]any, plus the
// temporal wrapper types defined here. Normalize coerces the common Go
// numeric variants (int, int32, float32, ...) onto that canonical set.
package value

import (
	"fmt"
	"time"
)

// Kind identifies the runtime type of a value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindList
	KindMap
	KindDate
	KindDateTime
	KindLocalTime
	KindDuration
	KindNode
	KindRelationship
	KindPath
	KindInvalid
)

// String returns the lowercase kind name used in error messages and the
// codec's $kind markers.
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
	case KindList:
		return "list"
	case KindMap:
		return "map"
	case KindDate:
		return "date"
	case KindDateTime:
		return "datetime"
	case KindLocalTime:
		return "time"
	case KindDuration:
		return "duration"
	case KindNode:
		return "node"
	case KindRelationship:
		return "relationship"
	case KindPath:
		return "path"
	default:
		return "invalid"
	}
}

// TypeError reports a value of an unsupported or unexpected kind.
type TypeError struct {
	Got  string
	Want string
}

func (e *TypeError) Error() string {
	if e.Want == "" {
		return fmt.Sprintf("unsupported value type %s", e.Got)
	}
	return fmt.Sprintf("expected %s, got %s", e.Want, e.Got)
}

// NodeRef is implemented by the storage layer's node type so the value
// package can rank nodes in the total order without importing storage.
type NodeRef interface {
	NodeID() int64
}

// RelRef is implemented by the storage layer's relationship type.
type RelRef interface {
	RelID() int64
}

// PathRef is implemented by the query layer's path type.
type PathRef interface {
	PathNodeIDs() []int64
}

// KindOf returns the Kind of a canonical runtime value.
func KindOf(v any) Kind {
	switch v.(type) {
	case nil:
		return KindNull
	case bool:
		return KindBool
	case int64, int, int32, int16, int8, uint, uint32, uint16, uint8:
		return KindInt
	case float64, float32:
		return KindFloat
	case string:
		return KindString
	case []any:
		return KindList
	case map[string]any:
		return KindMap
	case Date:
		return KindDate
	case DateTime:
		return KindDateTime
	case LocalTime:
		return KindLocalTime
	case Duration:
		return KindDuration
	}
	switch v.(type) {
	case NodeRef:
		return KindNode
	case RelRef:
		return KindRelationship
	case PathRef:
		return KindPath
	}
	return KindInvalid
}

// Normalize coerces v onto the canonical representation (int64 for integers,
// float64 for floats, []any for slices, map[string]any for maps) and rejects
// kinds the property model does not admit.
//
// Node, relationship and path values are rejected: they are query-layer
// values and cannot be stored as properties.
func Normalize(v any) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case bool, int64, float64, string, Date, DateTime, LocalTime, Duration:
		return x, nil
	case int:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case uint8:
		return int64(x), nil
	case uint16:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case uint64:
		return int64(x), nil
	case float32:
		return float64(x), nil
	case time.Time:
		return DateTime{Time: x}, nil
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			n, err := Normalize(e)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	case []string:
		out := make([]any, len(x))
		for i, s := range x {
			out[i] = s
		}
		return out, nil
	case []int64:
		out := make([]any, len(x))
		for i, n := range x {
			out[i] = n
		}
		return out, nil
	case []int:
		out := make([]any, len(x))
		for i, n := range x {
			out[i] = int64(n)
		}
		return out, nil
	case []float64:
		out := make([]any, len(x))
		for i, f := range x {
			out[i] = f
		}
		return out, nil
	case []float32:
		out := make([]any, len(x))
		for i, f := range x {
			out[i] = float64(f)
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			n, err := Normalize(e)
			if err != nil {
				return nil, err
			}
			out[k] = n
		}
		return out, nil
	default:
		return nil, &TypeError{Got: fmt.Sprintf("%T", v)}
	}
}

// NormalizeProperties normalizes every entry of a property map.
func NormalizeProperties(props map[string]any) (map[string]any, error) {
	if props == nil {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(props))
	for k, v := range props {
		n, err := Normalize(v)
		if err != nil {
			return nil, fmt.Errorf("property %q: %w", k, err)
		}
		out[k] = n
	}
	return out, nil
}

// Validate reports whether v is storable as a property value.
func Validate(v any) error {
	_, err := Normalize(v)
	return err
}

// AsFloat converts a numeric value to float64. The second return is false
// for non-numeric values.
func AsFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int64:
		return float64(x), true
	case float64:
		return x, true
	case int:
		return float64(x), true
	case float32:
		return float64(x), true
	case int32:
		return float64(x), true
	}
	return 0, false
}

// AsInt converts an integer value to int64. Floats are not truncated; they
// report false.
func AsInt(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case int32:
		return int64(x), true
	}
	return 0, false
}
