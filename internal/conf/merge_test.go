package conf

import (
	"reflect"
	"testing"
)

func TestMergeScalarDeltaReplaces(t *testing.T) {
	tests := []struct {
		name string
		base Value
	}{
		{"over scalar", String("old")},
		{"over list", List(Int(1), Int(2))},
		{"over record", Record(map[string]Value{"a": Int(1)})},
		{"over null", Null()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Merge(tt.base, String("new"))
			if err != nil {
				t.Fatal(err)
			}
			if got.Kind() != KindString || got.StringVal() != "new" {
				t.Errorf("got %v %q, want string \"new\"", got.Kind(), got.StringVal())
			}
		})
	}
}

func TestMergeDisjointRecordsUnion(t *testing.T) {
	base := Record(map[string]Value{"a": Int(1), "b": String("x")})
	delta := Record(map[string]Value{"c": Bool(true), "d": List(Int(2))})

	got, err := Merge(base, delta)
	if err != nil {
		t.Fatal(err)
	}

	wantKeys := []string{"a", "b", "c", "d"}
	if !reflect.DeepEqual(got.Keys(), wantKeys) {
		t.Fatalf("keys = %v, want %v", got.Keys(), wantKeys)
	}
	if v, _ := got.Field("a"); v.IntVal() != 1 {
		t.Errorf("a = %v, want 1", v.IntVal())
	}
	if v, _ := got.Field("b"); v.StringVal() != "x" {
		t.Errorf("b = %q, want x", v.StringVal())
	}
	if v, _ := got.Field("c"); !v.BoolVal() {
		t.Errorf("c = false, want true")
	}
}

func TestMergeNestedRecordsRecurse(t *testing.T) {
	base := Record(map[string]Value{
		"cc": Record(map[string]Value{"path": String("gcc"), "keep": Int(7)}),
	})
	delta := Record(map[string]Value{
		"cc": Record(map[string]Value{"path": String("clang")}),
	})

	got, err := Merge(base, delta)
	if err != nil {
		t.Fatal(err)
	}
	cc, _ := got.Field("cc")
	if v, _ := cc.Field("path"); v.StringVal() != "clang" {
		t.Errorf("cc.path = %q, want clang", v.StringVal())
	}
	if v, ok := cc.Field("keep"); !ok || v.IntVal() != 7 {
		t.Errorf("cc.keep = %v (present %v), want 7", v.IntVal(), ok)
	}
}

// Type mismatch replaces silently; pinned on purpose, see the merge contract.
func TestMergeReplacesOnTypeMismatch(t *testing.T) {
	base := Record(map[string]Value{"a": Int(1)})

	got, err := Merge(base, Int(42))
	if err != nil {
		t.Fatal(err)
	}
	if got.Kind() != KindInt || got.IntVal() != 42 {
		t.Fatalf("merge(record, scalar) = %v, want the scalar 42", got.Kind())
	}

	got, err = Merge(Int(42), List(Int(1)))
	if err != nil {
		t.Fatal(err)
	}
	if got.Kind() != KindList {
		t.Fatalf("merge(scalar, list) = %v, want the list", got.Kind())
	}
}

func TestMergeTransformDelta(t *testing.T) {
	double := Func(func(base Value) (Value, error) {
		return Int(base.IntVal() * 2), nil
	})

	got, err := Merge(Int(21), double)
	if err != nil {
		t.Fatal(err)
	}
	if got.IntVal() != 42 {
		t.Errorf("transform result = %d, want 42", got.IntVal())
	}

	// transforms apply at any depth
	base := Record(map[string]Value{"n": Int(10)})
	delta := Record(map[string]Value{"n": double})
	got, err = Merge(base, delta)
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := got.Field("n"); v.IntVal() != 20 {
		t.Errorf("nested transform = %d, want 20", v.IntVal())
	}
}

// A transform stored under a key the base lacks must still resolve to a
// concrete value (applied to null), never land in the merged tree raw.
func TestMergeTransformOnMissingKey(t *testing.T) {
	seed := Func(func(base Value) (Value, error) {
		if base.Kind() != KindNull {
			t.Errorf("transform base = %v, want null", base.Kind())
		}
		return String("fresh"), nil
	})

	got, err := Merge(Record(nil), Record(map[string]Value{"newkey": seed}))
	if err != nil {
		t.Fatal(err)
	}
	v, ok := got.Field("newkey")
	if !ok || v.Kind() != KindString || v.StringVal() != "fresh" {
		t.Fatalf("newkey = %v %q, want string \"fresh\"", v.Kind(), v.StringVal())
	}
	// the merged tree must be snapshot-encodable
	got.ToAny()
}

// Transforms embedded in a record or list that replaces its base wholesale
// resolve too.
func TestMergeTransformInsideReplacement(t *testing.T) {
	seed := Func(func(Value) (Value, error) { return Int(7), nil })

	got, err := Merge(String("scalar"), Record(map[string]Value{"n": seed}))
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := got.Field("n"); v.IntVal() != 7 {
		t.Errorf("n = %v, want 7", v.IntVal())
	}
	got.ToAny()

	got, err = Merge(Null(), List(Int(1), seed))
	if err != nil {
		t.Fatal(err)
	}
	if got.Index(1).IntVal() != 7 {
		t.Errorf("list element = %v, want 7", got.Index(1).IntVal())
	}
	got.ToAny()
}

func TestFromAnyRoundTrip(t *testing.T) {
	in := map[string]any{
		"s": "str",
		"n": int64(3),
		"l": []any{true, "x"},
		"r": map[string]any{"k": int64(1)},
	}
	v, err := FromAny(in)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(v.ToAny(), in) {
		t.Errorf("round trip = %#v, want %#v", v.ToAny(), in)
	}
}
