package driver

import (
	"fmt"

	"go.starlark.net/starlark"

	"github.com/genja-build/genja/internal/conf"
	"github.com/genja-build/genja/internal/graph"
)

// targetHandle is the script-side view of a registered target. Scripts use
// it to wire dependencies and to read or extend the metadata bag.
type targetHandle struct {
	t *graph.Target
}

var _ starlark.HasAttrs = targetHandle{}

func (h targetHandle) String() string        { return "<target " + h.t.ID() + ">" }
func (h targetHandle) Type() string          { return "target" }
func (h targetHandle) Freeze()               {}
func (h targetHandle) Truth() starlark.Bool  { return starlark.True }
func (h targetHandle) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: target") }

func (h targetHandle) AttrNames() []string {
	return []string{"metadata", "outputs", "set_metadata"}
}

func (h targetHandle) Attr(name string) (starlark.Value, error) {
	switch name {
	case "outputs":
		items := make([]starlark.Value, len(h.t.Outputs))
		for i, out := range h.t.Outputs {
			items[i] = starlark.String(out)
		}
		return starlark.NewList(items), nil

	case "set_metadata":
		return starlark.NewBuiltin("set_metadata", func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var key string
			var value starlark.Value
			if err := starlark.UnpackArgs(b.Name(), args, kwargs, "key", &key, "value", &value); err != nil {
				return nil, err
			}
			goVal, err := fromStarlark(value)
			if err != nil {
				return nil, err
			}
			h.t.SetMetadata(key, goVal)
			return starlark.None, nil
		}), nil

	case "metadata":
		return starlark.NewBuiltin("metadata", func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var key string
			var fallback starlark.Value = starlark.None
			if err := starlark.UnpackArgs(b.Name(), args, kwargs, "key", &key, "default?", &fallback); err != nil {
				return nil, err
			}
			v, ok := h.t.MetadataValue(key)
			if !ok {
				return fallback, nil
			}
			return toStarlark(v)
		}), nil
	}
	return nil, nil
}

// fromStarlark converts a script value into plain Go data (for metadata).
func fromStarlark(v starlark.Value) (any, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(val), nil
	case starlark.Int:
		i, ok := val.Int64()
		if !ok {
			return nil, fmt.Errorf("integer %s does not fit in 64 bits", val)
		}
		return i, nil
	case starlark.Float:
		return float64(val), nil
	case starlark.String:
		return string(val), nil
	case *starlark.List:
		out := make([]any, val.Len())
		for i := 0; i < val.Len(); i++ {
			item, err := fromStarlark(val.Index(i))
			if err != nil {
				return nil, err
			}
			out[i] = item
		}
		return out, nil
	case starlark.Tuple:
		out := make([]any, len(val))
		for i, item := range val {
			conv, err := fromStarlark(item)
			if err != nil {
				return nil, err
			}
			out[i] = conv
		}
		return out, nil
	case *starlark.Dict:
		out := make(map[string]any, val.Len())
		for _, item := range val.Items() {
			key, ok := starlark.AsString(item[0])
			if !ok {
				return nil, fmt.Errorf("dict key %s is not a string", item[0].Type())
			}
			value, err := fromStarlark(item[1])
			if err != nil {
				return nil, err
			}
			out[key] = value
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported script value of type %s", v.Type())
	}
}

// toStarlark converts plain Go data back into a script value.
func toStarlark(v any) (starlark.Value, error) {
	switch val := v.(type) {
	case nil:
		return starlark.None, nil
	case bool:
		return starlark.Bool(val), nil
	case int:
		return starlark.MakeInt(val), nil
	case int64:
		return starlark.MakeInt64(val), nil
	case float64:
		return starlark.Float(val), nil
	case string:
		return starlark.String(val), nil
	case []any:
		items := make([]starlark.Value, len(val))
		for i, item := range val {
			conv, err := toStarlark(item)
			if err != nil {
				return nil, err
			}
			items[i] = conv
		}
		return starlark.NewList(items), nil
	case map[string]any:
		dict := starlark.NewDict(len(val))
		for k, item := range val {
			conv, err := toStarlark(item)
			if err != nil {
				return nil, err
			}
			if err := dict.SetKey(starlark.String(k), conv); err != nil {
				return nil, err
			}
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported metadata value of type %T", v)
	}
}

// confFromStarlark converts a configuration delta. Callables become
// transform values: merged by application to the base they override.
func confFromStarlark(thread *starlark.Thread, v starlark.Value) (conf.Value, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return conf.Null(), nil
	case starlark.Bool:
		return conf.Bool(bool(val)), nil
	case starlark.Int:
		i, ok := val.Int64()
		if !ok {
			return conf.Value{}, fmt.Errorf("integer %s does not fit in 64 bits", val)
		}
		return conf.Int(i), nil
	case starlark.Float:
		return conf.Float(float64(val)), nil
	case starlark.String:
		return conf.String(string(val)), nil
	case *starlark.List:
		items := make([]conf.Value, val.Len())
		for i := 0; i < val.Len(); i++ {
			item, err := confFromStarlark(thread, val.Index(i))
			if err != nil {
				return conf.Value{}, err
			}
			items[i] = item
		}
		return conf.List(items...), nil
	case starlark.Tuple:
		items := make([]conf.Value, len(val))
		for i, item := range val {
			conv, err := confFromStarlark(thread, item)
			if err != nil {
				return conf.Value{}, err
			}
			items[i] = conv
		}
		return conf.List(items...), nil
	case *starlark.Dict:
		fields := make(map[string]conf.Value, val.Len())
		for _, item := range val.Items() {
			key, ok := starlark.AsString(item[0])
			if !ok {
				return conf.Value{}, fmt.Errorf("configuration key %s is not a string", item[0].Type())
			}
			value, err := confFromStarlark(thread, item[1])
			if err != nil {
				return conf.Value{}, err
			}
			fields[key] = value
		}
		return conf.Record(fields), nil
	case starlark.Callable:
		return conf.Func(func(base conf.Value) (conf.Value, error) {
			result, err := starlark.Call(thread, val, starlark.Tuple{confToStarlark(base)}, nil)
			if err != nil {
				return conf.Value{}, fmt.Errorf("configuration transform %s: %w", val.Name(), err)
			}
			return confFromStarlark(thread, result)
		}), nil
	default:
		return conf.Value{}, fmt.Errorf("unsupported configuration value of type %s", v.Type())
	}
}

// confToStarlark exposes the merged configuration tree to scripts.
func confToStarlark(v conf.Value) starlark.Value {
	switch v.Kind() {
	case conf.KindBool:
		return starlark.Bool(v.BoolVal())
	case conf.KindInt:
		return starlark.MakeInt64(v.IntVal())
	case conf.KindFloat:
		return starlark.Float(v.FloatVal())
	case conf.KindString:
		return starlark.String(v.StringVal())
	case conf.KindList:
		items := make([]starlark.Value, v.Len())
		for i, item := range v.Items() {
			items[i] = confToStarlark(item)
		}
		return starlark.NewList(items)
	case conf.KindRecord:
		dict := starlark.NewDict(v.Len())
		for _, key := range v.Keys() {
			field, _ := v.Field(key)
			// keys come from Keys(), SetKey cannot fail on strings
			_ = dict.SetKey(starlark.String(key), confToStarlark(field))
		}
		return dict
	default:
		return starlark.None
	}
}

// sequenceItems flattens a list or tuple into a slice of values.
func sequenceItems(v starlark.Value) ([]starlark.Value, bool) {
	switch val := v.(type) {
	case *starlark.List:
		items := make([]starlark.Value, val.Len())
		for i := 0; i < val.Len(); i++ {
			items[i] = val.Index(i)
		}
		return items, true
	case starlark.Tuple:
		return []starlark.Value(val), true
	}
	return nil, false
}

// stringList accepts a string, a list of strings, or None.
func stringList(v starlark.Value) ([]string, error) {
	if v == nil || v == starlark.None {
		return nil, nil
	}
	if s, ok := starlark.AsString(v); ok {
		return []string{s}, nil
	}
	items, ok := sequenceItems(v)
	if !ok {
		return nil, fmt.Errorf("expected a string or a list of strings, got %s", v.Type())
	}
	out := make([]string, len(items))
	for i, item := range items {
		s, ok := starlark.AsString(item)
		if !ok {
			return nil, fmt.Errorf("list element %d is %s, want string", i, item.Type())
		}
		out[i] = s
	}
	return out, nil
}

// stringMap accepts a dict of string keys to string values, or None.
func stringMap(v starlark.Value) (map[string]string, error) {
	if v == nil || v == starlark.None {
		return nil, nil
	}
	dict, ok := v.(*starlark.Dict)
	if !ok {
		return nil, fmt.Errorf("expected a dict, got %s", v.Type())
	}
	out := make(map[string]string, dict.Len())
	for _, item := range dict.Items() {
		key, ok := starlark.AsString(item[0])
		if !ok {
			return nil, fmt.Errorf("dict key %s is not a string", item[0].Type())
		}
		value, ok := starlark.AsString(item[1])
		if !ok {
			return nil, fmt.Errorf("value for key %q is %s, want string", key, item[1].Type())
		}
		out[key] = value
	}
	return out, nil
}

// depList accepts a dependency, a list of dependencies, or None; each entry
// is a target handle or a path string.
func depList(v starlark.Value) ([]graph.Dep, error) {
	if v == nil || v == starlark.None {
		return nil, nil
	}
	if d, ok := singleDep(v); ok {
		return []graph.Dep{d}, nil
	}
	items, ok := sequenceItems(v)
	if !ok {
		return nil, fmt.Errorf("expected a dependency or a list of dependencies, got %s", v.Type())
	}
	out := make([]graph.Dep, 0, len(items))
	for i, item := range items {
		d, ok := singleDep(item)
		if !ok {
			return nil, fmt.Errorf("dependency %d is %s, want target or path string", i, item.Type())
		}
		out = append(out, d)
	}
	return out, nil
}

func singleDep(v starlark.Value) (graph.Dep, bool) {
	if h, ok := v.(targetHandle); ok {
		return graph.TargetRef(h.t), true
	}
	if s, ok := starlark.AsString(v); ok {
		return graph.PathRef(s), true
	}
	return graph.Dep{}, false
}
