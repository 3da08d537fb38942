package db

import (
	"reflect"
	"sort"
	"strings"
	"time"
)

// ResolveCreate returns a copy of fields with every operator resolved against
// an empty document. ArrayRemove on an empty field yields an empty set.
func ResolveCreate(fields Fields, now time.Time) Fields {
	return MergeFields(nil, fields, now)
}

// MergeFields merges partial into existing (last writer wins per field) and
// returns the result. existing is not modified.
func MergeFields(existing, partial Fields, now time.Time) Fields {
	out := cloneFields(existing)
	if out == nil {
		out = Fields{}
	}
	for key, v := range partial {
		switch op := v.(type) {
		case ArrayUnionOp:
			out[key] = unionValues(toSlice(out[key]), op.Values)
		case ArrayRemoveOp:
			out[key] = removeValues(toSlice(out[key]), op.Values)
		case ServerTimestampOp:
			out[key] = now.UTC()
		default:
			out[key] = cloneValue(v)
		}
	}
	return out
}

func toSlice(v any) []any {
	if v == nil {
		return []any{}
	}
	if s, ok := v.([]any); ok {
		cp := make([]any, len(s))
		copy(cp, s)
		return cp
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		// a scalar field turned into a set keeps its old value as the first member
		return []any{v}
	}
	out := make([]any, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		out[i] = rv.Index(i).Interface()
	}
	return out
}

func containsValue(set []any, v any) bool {
	for _, s := range set {
		if reflect.DeepEqual(s, v) {
			return true
		}
	}
	return false
}

func unionValues(set []any, add []any) []any {
	for _, v := range add {
		if !containsValue(set, v) {
			set = append(set, v)
		}
	}
	return set
}

func removeValues(set []any, remove []any) []any {
	out := set[:0]
	for _, v := range set {
		if !containsValue(remove, v) {
			out = append(out, v)
		}
	}
	return out
}

// SortDocuments orders docs in place by the query's field.
// Documents missing the field compare as nil; ties keep their input order.
func SortDocuments(docs []Document, q Query) {
	if q.OrderBy == "" {
		return
	}
	sort.SliceStable(docs, func(i, j int) bool {
		c := CompareValues(docs[i].Fields[q.OrderBy], docs[j].Fields[q.OrderBy])
		if q.Direction == Desc {
			return c > 0
		}
		return c < 0
	})
}

// type ranks: nil < bool < number < timestamp < string < other
func rank(v any) int {
	switch t := v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return 2
	case time.Time:
		return 3
	case string:
		if _, ok := parseTime(t); ok {
			return 3
		}
		return 4
	default:
		return 5
	}
}

func parseTime(s string) (time.Time, bool) {
	// ISO dates like "2025-12-30" must stay strings so date fields sort lexically.
	if len(s) < len("2006-01-02T15:04:05Z") || !strings.ContainsRune(s, 'T') {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func asTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		ts, _ := parseTime(t)
		return ts
	}
	return time.Time{}
}

func asFloat(v any) float64 {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	}
	return 0
}

// CompareValues returns -1, 0 or 1 comparing two field values.
func CompareValues(a, b any) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	switch ra {
	case 1:
		ab, bb := a.(bool), b.(bool)
		switch {
		case ab == bb:
			return 0
		case !ab:
			return -1
		default:
			return 1
		}
	case 2:
		fa, fb := asFloat(a), asFloat(b)
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	case 3:
		return asTime(a).Compare(asTime(b))
	case 4:
		return strings.Compare(a.(string), b.(string))
	}
	return 0
}
