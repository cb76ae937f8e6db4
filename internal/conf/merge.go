package conf

// Merge folds delta into base and returns the combined value. Delta wins:
//
//   - a Transform delta is applied to base,
//   - two records merge key-wise (union of keys, recursing on every delta
//     key; a key the base lacks merges against null, so a transform there
//     still resolves to a concrete value),
//   - anything else replaces base outright, type mismatch included. Silent
//     replacement is intentional; scripts are expected to be internally
//     consistent about the shapes they write.
//
// The result never contains a transform: every delta position passes through
// Merge, so embedded transforms are applied even when the surrounding record
// or list replaces its base wholesale.
func Merge(base, delta Value) (Value, error) {
	switch delta.kind {
	case KindFunc:
		return delta.fn(base)

	case KindRecord:
		if base.kind != KindRecord {
			base = Record(nil)
		}
		merged := make(map[string]Value, len(base.rec)+len(delta.rec))
		for k, bv := range base.rec {
			merged[k] = bv
		}
		for k, dv := range delta.rec {
			mv, err := Merge(base.rec[k], dv)
			if err != nil {
				return Value{}, err
			}
			merged[k] = mv
		}
		return Record(merged), nil

	case KindList:
		items := make([]Value, len(delta.list))
		for i, dv := range delta.list {
			mv, err := Merge(Null(), dv)
			if err != nil {
				return Value{}, err
			}
			items[i] = mv
		}
		return List(items...), nil
	}

	return delta, nil
}
