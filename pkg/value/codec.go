package value

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// The property codec serializes a normalized property map to a canonical JSON
// byte form. Canonical means: object keys sorted, no insignificant whitespace,
// floats always carry a decimal point or exponent so the int/float distinction
// survives a round-trip, and temporal kinds are wrapped in a {"$kind": ...}
// sidecar object. Two equal property maps encode to identical bytes, which
// lets the storage layer compare stored properties byte-wise.

const kindKey = "$kind"

// EncodeProperties encodes a normalized property map canonically.
func EncodeProperties(props map[string]any) ([]byte, error) {
	var b bytes.Buffer
	if err := encodeMap(&b, props); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

// EncodeValue encodes a single normalized value canonically.
func EncodeValue(v any) ([]byte, error) {
	var b bytes.Buffer
	if err := encodeValue(&b, v); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

func encodeMap(b *bytes.Buffer, m map[string]any) error {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		writeJSONString(b, k)
		b.WriteByte(':')
		if err := encodeValue(b, m[k]); err != nil {
			return err
		}
	}
	b.WriteByte('}')
	return nil
}

func encodeValue(b *bytes.Buffer, v any) error {
	switch x := v.(type) {
	case nil:
		b.WriteString("null")
	case bool:
		if x {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}
	case int64:
		b.WriteString(strconv.FormatInt(x, 10))
	case float64:
		return encodeFloat(b, x)
	case string:
		writeJSONString(b, x)
	case Date:
		return encodeSidecar(b, "date", x.String())
	case DateTime:
		return encodeSidecar(b, "datetime", x.String())
	case LocalTime:
		return encodeSidecar(b, "time", x.String())
	case Duration:
		return encodeSidecar(b, "duration", x.String())
	case []any:
		b.WriteByte('[')
		for i, e := range x {
			if i > 0 {
				b.WriteByte(',')
			}
			if err := encodeValue(b, e); err != nil {
				return err
			}
		}
		b.WriteByte(']')
	case map[string]any:
		// A user map that happens to contain "$kind" is escaped so decode
		// does not mistake it for a temporal sidecar.
		if _, clash := x[kindKey]; clash {
			return encodeEscapedMap(b, x)
		}
		return encodeMap(b, x)
	default:
		return &TypeError{Got: fmt.Sprintf("%T", v)}
	}
	return nil
}

func encodeFloat(b *bytes.Buffer, f float64) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return &TypeError{Got: "non-finite float"}
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	b.WriteString(s)
	if !strings.ContainsAny(s, ".eE") {
		b.WriteString(".0")
	}
	return nil
}

func encodeSidecar(b *bytes.Buffer, kind, v string) error {
	b.WriteString(`{"$kind":`)
	writeJSONString(b, kind)
	b.WriteString(`,"v":`)
	writeJSONString(b, v)
	b.WriteByte('}')
	return nil
}

// encodeEscapedMap wraps a map whose keys collide with the sidecar marker:
// {"$kind":"map","v":{...}}.
func encodeEscapedMap(b *bytes.Buffer, m map[string]any) error {
	b.WriteString(`{"$kind":"map","v":`)
	if err := encodeMap(b, m); err != nil {
		return err
	}
	b.WriteByte('}')
	return nil
}

func writeJSONString(b *bytes.Buffer, s string) {
	enc, _ := json.Marshal(s)
	b.Write(enc)
}

// DecodeProperties decodes a canonical property blob back to a property map.
// Integers decode as int64 and floats as float64; the distinction is carried
// by the presence of a decimal point or exponent in the stored text.
func DecodeProperties(data []byte) (map[string]any, error) {
	if len(data) == 0 {
		return map[string]any{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode properties: %w", err)
	}
	v, err := decodeValue(raw)
	if err != nil {
		return nil, err
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("decode properties: not an object")
	}
	return m, nil
}

// DecodeValue decodes a single canonical value.
func DecodeValue(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode value: %w", err)
	}
	return decodeValue(raw)
}

func decodeValue(raw any) (any, error) {
	switch x := raw.(type) {
	case nil, bool, string:
		return x, nil
	case json.Number:
		if !strings.ContainsAny(x.String(), ".eE") {
			if n, err := x.Int64(); err == nil {
				return n, nil
			}
		}
		f, err := x.Float64()
		if err != nil {
			return nil, fmt.Errorf("decode number %q: %w", x.String(), err)
		}
		return f, nil
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			v, err := decodeValue(e)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case map[string]any:
		if kind, ok := x[kindKey].(string); ok {
			return decodeSidecar(kind, x["v"])
		}
		out := make(map[string]any, len(x))
		for k, e := range x {
			v, err := decodeValue(e)
			if err != nil {
				return nil, err
			}
			out[k] = v
		}
		return out, nil
	default:
		return nil, fmt.Errorf("decode: unexpected %T", raw)
	}
}

func decodeSidecar(kind string, v any) (any, error) {
	if kind == "map" {
		inner, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("decode: escaped map payload is %T", v)
		}
		out := make(map[string]any, len(inner))
		for k, e := range inner {
			dv, err := decodeValue(e)
			if err != nil {
				return nil, err
			}
			out[k] = dv
		}
		return out, nil
	}
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("decode: %s payload is %T", kind, v)
	}
	switch kind {
	case "date":
		return ParseDate(s)
	case "datetime":
		return ParseDateTime(s)
	case "time":
		return ParseLocalTime(s)
	case "duration":
		return ParseDuration(s)
	default:
		return nil, fmt.Errorf("decode: unknown kind %q", kind)
	}
}
