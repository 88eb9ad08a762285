// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package zerorpc

import (
	"bytes"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

// Kind identifies the type held by a Value.
type Kind uint8

const (
	KindNil Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindBytes
	KindList
	KindMap
)

var kindNames = [...]string{
	KindNil:    "nil",
	KindBool:   "bool",
	KindInt:    "int",
	KindFloat:  "float",
	KindString: "string",
	KindBytes:  "bytes",
	KindList:   "list",
	KindMap:    "map",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Value is an argument or header value carried by an Event.
//
// Empty lists, maps and byte strings are held as nil so two Values that
// encode identically are also deeply equal.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
	raw  []byte
	list []Value
	m    map[string]Value
}

// Nil returns the nil Value.
func Nil() Value { return Value{} }

// Bool returns a boolean Value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Int returns an integer Value.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Float returns a floating point Value.
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// String returns a string Value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Bytes returns a binary Value. The slice is copied.
func Bytes(b []byte) Value {
	if len(b) == 0 {
		return Value{kind: KindBytes}
	}
	return Value{kind: KindBytes, raw: bytes.Clone(b)}
}

// List returns a sequence Value.
func List(items ...Value) Value {
	if len(items) == 0 {
		return Value{kind: KindList}
	}
	return Value{kind: KindList, list: append([]Value(nil), items...)}
}

// Map returns a mapping Value. The map is copied.
func Map(m map[string]Value) Value {
	if len(m) == 0 {
		return Value{kind: KindMap}
	}
	cp := make(map[string]Value, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return Value{kind: KindMap, m: cp}
}

// ValueOf converts a Go value into a Value. Supported inputs are nil, bool,
// every integer and float width, string, []byte, Value, []Value, []any,
// map[string]any and map[string]Value, nested arbitrarily.
func ValueOf(x any) (Value, error) {
	switch v := x.(type) {
	case nil:
		return Nil(), nil
	case Value:
		return v, nil
	case bool:
		return Bool(v), nil
	case int:
		return Int(int64(v)), nil
	case int8:
		return Int(int64(v)), nil
	case int16:
		return Int(int64(v)), nil
	case int32:
		return Int(int64(v)), nil
	case int64:
		return Int(v), nil
	case uint:
		return uintValue(uint64(v))
	case uint8:
		return Int(int64(v)), nil
	case uint16:
		return Int(int64(v)), nil
	case uint32:
		return Int(int64(v)), nil
	case uint64:
		return uintValue(v)
	case float32:
		return Float(float64(v)), nil
	case float64:
		return Float(v), nil
	case string:
		return String(v), nil
	case []byte:
		return Bytes(v), nil
	case []Value:
		return List(v...), nil
	case []any:
		items := make([]Value, 0, len(v))
		for i, item := range v {
			iv, err := ValueOf(item)
			if err != nil {
				return Value{}, fmt.Errorf("index %d: %w", i, err)
			}
			items = append(items, iv)
		}
		return List(items...), nil
	case map[string]Value:
		return Map(v), nil
	case map[string]any:
		m := make(map[string]Value, len(v))
		for k, item := range v {
			iv, err := ValueOf(item)
			if err != nil {
				return Value{}, fmt.Errorf("key %q: %w", k, err)
			}
			m[k] = iv
		}
		return Map(m), nil
	case map[any]any:
		m := make(map[string]Value, len(v))
		for k, item := range v {
			ks, ok := k.(string)
			if !ok {
				return Value{}, fmt.Errorf("map key %v: want string, got %T", k, k)
			}
			iv, err := ValueOf(item)
			if err != nil {
				return Value{}, fmt.Errorf("key %q: %w", ks, err)
			}
			m[ks] = iv
		}
		return Map(m), nil
	}
	return Value{}, fmt.Errorf("zerorpc: unsupported value type %T", x)
}

func uintValue(u uint64) (Value, error) {
	if u > math.MaxInt64 {
		return Value{}, fmt.Errorf("zerorpc: integer %d overflows int64", u)
	}
	return Int(int64(u)), nil
}

// Args converts its arguments into an argument list.
func Args(xs ...any) ([]Value, error) {
	if len(xs) == 0 {
		return nil, nil
	}
	out := make([]Value, 0, len(xs))
	for i, x := range xs {
		v, err := ValueOf(x)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// MustArgs is like Args but panics on unsupported types.
func MustArgs(xs ...any) []Value {
	out, err := Args(xs...)
	if err != nil {
		panic(err)
	}
	return out
}

// Kind reports the type held by v.
func (v Value) Kind() Kind { return v.kind }

// IsNil reports whether v is the nil Value.
func (v Value) IsNil() bool { return v.kind == KindNil }

func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

func (v Value) AsInt() (int64, bool) { return v.i, v.kind == KindInt }

func (v Value) AsFloat() (float64, bool) { return v.f, v.kind == KindFloat }

func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }

func (v Value) AsBytes() ([]byte, bool) { return v.raw, v.kind == KindBytes }

func (v Value) AsList() ([]Value, bool) { return v.list, v.kind == KindList }

func (v Value) AsMap() (map[string]Value, bool) { return v.m, v.kind == KindMap }

// Interface returns the plain Go representation of v: nil, bool, int64,
// float64, string, []byte, []any or map[string]any.
func (v Value) Interface() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindString:
		return v.s
	case KindBytes:
		return v.raw
	case KindList:
		out := make([]any, len(v.list))
		for i, item := range v.list {
			out[i] = item.Interface()
		}
		return out
	case KindMap:
		out := make(map[string]any, len(v.m))
		for k, item := range v.m {
			out[k] = item.Interface()
		}
		return out
	}
	return nil
}

// Equal reports whether v and o hold the same kind and contents.
func (v Value) Equal(o Value) bool {
	return reflect.DeepEqual(v, o)
}

func (v Value) String() string {
	var sb strings.Builder
	v.format(&sb)
	return sb.String()
}

func (v Value) format(sb *strings.Builder) {
	switch v.kind {
	case KindNil:
		sb.WriteString("nil")
	case KindBool:
		sb.WriteString(strconv.FormatBool(v.b))
	case KindInt:
		sb.WriteString(strconv.FormatInt(v.i, 10))
	case KindFloat:
		sb.WriteString(strconv.FormatFloat(v.f, 'g', -1, 64))
	case KindString:
		sb.WriteString(strconv.Quote(v.s))
	case KindBytes:
		fmt.Fprintf(sb, "%q", v.raw)
	case KindList:
		sb.WriteByte('[')
		for i, item := range v.list {
			if i > 0 {
				sb.WriteString(", ")
			}
			item.format(sb)
		}
		sb.WriteByte(']')
	case KindMap:
		sb.WriteByte('{')
		for i, k := range sortedKeys(v.m) {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(strconv.Quote(k))
			sb.WriteString(": ")
			item := v.m[k]
			item.format(sb)
		}
		sb.WriteByte('}')
	}
}

var (
	_ msgpack.CustomEncoder = Value{}
	_ msgpack.CustomDecoder = (*Value)(nil)
)

// EncodeMsgpack implements msgpack.CustomEncoder.
func (v Value) EncodeMsgpack(enc *msgpack.Encoder) error {
	switch v.kind {
	case KindNil:
		return enc.EncodeNil()
	case KindBool:
		return enc.EncodeBool(v.b)
	case KindInt:
		return enc.EncodeInt(v.i)
	case KindFloat:
		return enc.EncodeFloat64(v.f)
	case KindString:
		return enc.EncodeString(v.s)
	case KindBytes:
		return enc.EncodeBytes(v.raw)
	case KindList:
		if err := enc.EncodeArrayLen(len(v.list)); err != nil {
			return err
		}
		for _, item := range v.list {
			if err := item.EncodeMsgpack(enc); err != nil {
				return err
			}
		}
		return nil
	case KindMap:
		if err := enc.EncodeMapLen(len(v.m)); err != nil {
			return err
		}
		for _, k := range sortedKeys(v.m) {
			if err := enc.EncodeString(k); err != nil {
				return err
			}
			if err := v.m[k].EncodeMsgpack(enc); err != nil {
				return err
			}
		}
		return nil
	}
	return fmt.Errorf("zerorpc: cannot encode value of %s", v.kind)
}

// DecodeMsgpack implements msgpack.CustomDecoder.
func (v *Value) DecodeMsgpack(dec *msgpack.Decoder) error {
	raw, err := dec.DecodeInterface()
	if err != nil {
		return err
	}
	// DecodeInterface reports integers with the width used on the wire;
	// ValueOf folds them all into KindInt.
	out, err := ValueOf(raw)
	if err != nil {
		return err
	}
	*v = out
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
