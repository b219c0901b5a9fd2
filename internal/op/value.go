package op

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"unicode/utf16"
)

// Value is the sealed interface for operand payload values.
// Only VNull, VString, VInt, VBool, VArray, and VObject implement it.
// There is deliberately no float variant: operands that carry money use
// integer minor units, and floats break deterministic serialization.
type Value interface {
	operandValue() // sealed
}

// VNull represents an explicit JSON null inside an operand.
type VNull struct{}

func (VNull) operandValue() {}

// MarshalJSON implements json.Marshaler for VNull.
func (VNull) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// VString represents a string operand value.
type VString string

func (VString) operandValue() {}

// VInt represents an integer operand value. Always int64, never float64.
type VInt int64

func (VInt) operandValue() {}

// VBool represents a boolean operand value.
type VBool bool

func (VBool) operandValue() {}

// VArray represents an ordered list of operand values.
type VArray []Value

func (VArray) operandValue() {}

// VObject represents a map of string keys to operand values.
// Use SortedKeys for deterministic iteration.
type VObject map[string]Value

func (VObject) operandValue() {}

// Operand is the structured payload of an operation record.
// Its shape depends on the operator: INS carries {value}, ALT carries
// {from,to}, NUL carries {reason}, SUP carries {states}, DES carries
// {designation}.
type Operand = VObject

// Pair is a key-value pair for typed VObject construction.
type Pair struct {
	Key   string
	Value Value
}

// Obj builds a VObject from typed pairs. Compile-time safe: floats cannot
// be passed.
//
// Example: Obj(P("value", VString("Ana")), P("quantity", VInt(3)))
func Obj(pairs ...Pair) VObject {
	obj := make(VObject, len(pairs))
	for _, p := range pairs {
		obj[p.Key] = p.Value
	}
	return obj
}

// P is shorthand for Pair construction.
func P(key string, value Value) Pair {
	return Pair{Key: key, Value: value}
}

// SortedKeys returns keys in RFC 8785 canonical order (UTF-16 code units).
// Go's sort.Strings compares UTF-8 bytes, which produces a different order
// for strings outside the BMP.
func (obj VObject) SortedKeys() []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysRFC8785)
	return keys
}

// compareKeysRFC8785 compares strings by UTF-16 code units as RFC 8785
// requires. Surrogate pairs must be compared unit by unit, which
// utf16.Encode handles.
func compareKeysRFC8785(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))

	minLen := len(a16)
	if len(b16) < minLen {
		minLen = len(b16)
	}
	for i := 0; i < minLen; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}
	if len(a16) < len(b16) {
		return -1
	}
	if len(a16) > len(b16) {
		return 1
	}
	return 0
}

// MarshalJSON implements json.Marshaler for VObject with RFC 8785 key
// ordering. This is display serialization; use MarshalCanonical for
// anything that feeds a hash or a golden trace.
func (obj VObject) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range obj.SortedKeys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyBytes, err := json.Marshal(k)
		if err != nil {
			return nil, fmt.Errorf("marshal key %q: %w", k, err)
		}
		valBytes, err := json.Marshal(obj[k])
		if err != nil {
			return nil, fmt.Errorf("marshal value for key %q: %w", k, err)
		}
		buf.Write(keyBytes)
		buf.WriteByte(':')
		buf.Write(valBytes)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON implements json.Unmarshaler for VObject.
func (obj *VObject) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*obj = make(VObject, len(raw))
	for k, v := range raw {
		val, err := unmarshalValue(v)
		if err != nil {
			return fmt.Errorf("operand key %q: %w", k, err)
		}
		(*obj)[k] = val
	}
	return nil
}

// UnmarshalJSON implements json.Unmarshaler for VArray.
func (arr *VArray) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*arr = make(VArray, len(raw))
	for i, v := range raw {
		val, err := unmarshalValue(v)
		if err != nil {
			return fmt.Errorf("operand index %d: %w", i, err)
		}
		(*arr)[i] = val
	}
	return nil
}

// unmarshalValue decodes a JSON value into the matching sealed type.
// Floats are rejected; integers are parsed through json.Number to avoid
// precision loss above 2^53.
func unmarshalValue(data []byte) (Value, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty JSON value")
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, err
		}
		return VString(s), nil

	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return nil, err
		}
		return VBool(b), nil

	case 'n':
		return VNull{}, nil

	case '[':
		var arr VArray
		if err := json.Unmarshal(data, &arr); err != nil {
			return nil, err
		}
		return arr, nil

	case '{':
		var obj VObject
		if err := json.Unmarshal(data, &obj); err != nil {
			return nil, err
		}
		return obj, nil

	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return nil, err
		}
		i, err := n.Int64()
		if err != nil {
			return nil, fmt.Errorf("floats not allowed in operands: %s", string(data))
		}
		return VInt(i), nil
	}
}

// FromGo converts a plain Go value (as produced by yaml or json decoding)
// into a sealed Value. Floats and unsupported types are rejected.
func FromGo(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return VNull{}, nil
	case Value:
		return val, nil
	case string:
		return VString(val), nil
	case int:
		return VInt(int64(val)), nil
	case int64:
		return VInt(val), nil
	case bool:
		return VBool(val), nil
	case json.Number:
		i, err := val.Int64()
		if err != nil {
			return nil, fmt.Errorf("floats not allowed in operands: %s", val.String())
		}
		return VInt(i), nil
	case []any:
		arr := make(VArray, len(val))
		for i, elem := range val {
			converted, err := FromGo(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			arr[i] = converted
		}
		return arr, nil
	case map[string]any:
		obj := make(VObject, len(val))
		for k, elem := range val {
			converted, err := FromGo(elem)
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", k, err)
			}
			obj[k] = converted
		}
		return obj, nil
	case float64, float32:
		return nil, fmt.Errorf("floats not allowed in operands: %v", val)
	default:
		return nil, fmt.Errorf("unsupported operand type: %T", v)
	}
}
