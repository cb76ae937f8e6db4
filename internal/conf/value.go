// Package conf holds the merged configuration tree built up during the
// configure pass: a tagged-union value type, the recursive override merge,
// expression expansion for string scalars, and the snapshot writer.
package conf

import (
	"fmt"
	"math"
	"slices"
)

type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindList
	KindRecord
	KindFunc
)

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
	case KindRecord:
		return "record"
	case KindFunc:
		return "func"
	}
	return "invalid"
}

// Transform derives a new value from the one it is merged over. A Transform
// never survives a merge: applying it yields a concrete value.
type Transform func(base Value) (Value, error)

// Value is one node of the configuration tree. The zero Value is null.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
	list []Value
	rec  map[string]Value
	fn   Transform
}

func Null() Value             { return Value{} }
func Bool(b bool) Value       { return Value{kind: KindBool, b: b} }
func Int(i int64) Value       { return Value{kind: KindInt, i: i} }
func Float(f float64) Value   { return Value{kind: KindFloat, f: f} }
func String(s string) Value   { return Value{kind: KindString, s: s} }
func Func(fn Transform) Value { return Value{kind: KindFunc, fn: fn} }

func List(items ...Value) Value {
	return Value{kind: KindList, list: items}
}

func Record(fields map[string]Value) Value {
	if fields == nil {
		fields = map[string]Value{}
	}
	return Value{kind: KindRecord, rec: fields}
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) BoolVal() bool     { return v.b }
func (v Value) IntVal() int64     { return v.i }
func (v Value) FloatVal() float64 { return v.f }
func (v Value) StringVal() string { return v.s }

func (v Value) Len() int {
	switch v.kind {
	case KindList:
		return len(v.list)
	case KindRecord:
		return len(v.rec)
	}
	return 0
}

func (v Value) Index(i int) Value { return v.list[i] }

// Items returns the elements of a list value.
func (v Value) Items() []Value { return v.list }

// Field looks up a record key.
func (v Value) Field(key string) (Value, bool) {
	if v.kind != KindRecord {
		return Value{}, false
	}
	f, ok := v.rec[key]
	return f, ok
}

// Keys returns the record's keys in sorted order. Key order carries no
// meaning, sorting just makes output deterministic.
func (v Value) Keys() []string {
	keys := make([]string, 0, len(v.rec))
	for k := range v.rec {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Lookup walks a dotted path ("cc.path") through nested records.
func (v Value) Lookup(path []string) (Value, bool) {
	cur := v
	for _, key := range path {
		next, ok := cur.Field(key)
		if !ok {
			return Value{}, false
		}
		cur = next
	}
	return cur, true
}

// ToAny converts the value to plain Go data for snapshot encoders. Transform
// values never end up in the running configuration, so hitting one is a bug.
func (v Value) ToAny() any {
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
	case KindList:
		out := make([]any, len(v.list))
		for i, item := range v.list {
			out[i] = item.ToAny()
		}
		return out
	case KindRecord:
		out := make(map[string]any, len(v.rec))
		for k, item := range v.rec {
			out[k] = item.ToAny()
		}
		return out
	}
	panic("conf: cannot convert " + v.kind.String() + " value to plain data")
}

// FromAny converts plain Go data (as produced by script evaluation or a
// decoder) into a Value.
func FromAny(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(val), nil
	case int:
		return Int(int64(val)), nil
	case int64:
		return Int(val), nil
	case float64:
		if val == math.Trunc(val) && math.Abs(val) < 1<<53 {
			return Int(int64(val)), nil
		}
		return Float(val), nil
	case string:
		return String(val), nil
	case []any:
		items := make([]Value, len(val))
		for i, item := range val {
			conv, err := FromAny(item)
			if err != nil {
				return Value{}, err
			}
			items[i] = conv
		}
		return List(items...), nil
	case map[string]any:
		fields := make(map[string]Value, len(val))
		for k, item := range val {
			conv, err := FromAny(item)
			if err != nil {
				return Value{}, err
			}
			fields[k] = conv
		}
		return Record(fields), nil
	case Value:
		return val, nil
	default:
		return Value{}, fmt.Errorf("unsupported configuration value type %T", v)
	}
}
