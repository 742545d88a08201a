package wire

import (
	"errors"
	"fmt"
	"math"
	"reflect"
)

// ErrSerializationMismatch is returned when a value cannot be extracted
// as the requested type.
var ErrSerializationMismatch = errors.New("serialization mismatch")

// As extracts v as T.
//
// Values decoded from CBOR arrive in their generic form ([]any, uint64, ...),
// so a direct type assertion is tried first and a re-decode second.
// A failure only concerns this extraction.
func As[T any](v any) (T, error) {
	var zero T
	if t, ok := v.(T); ok {
		return t, nil
	}
	if v == nil {
		return zero, fmt.Errorf("%w: no value, want %T", ErrSerializationMismatch, zero)
	}
	data, err := Marshal(v)
	if err != nil {
		return zero, fmt.Errorf("%w: %v", ErrSerializationMismatch, err)
	}
	var out T
	if err := Unmarshal(data, &out); err != nil {
		return zero, fmt.Errorf("%w: have %T, want %T", ErrSerializationMismatch, v, zero)
	}
	return out, nil
}

// AttributeAs extracts the value of an attribute reading as T.
func AttributeAs[T any](av *AttributeValue) (T, error) {
	var zero T
	if av == nil {
		return zero, fmt.Errorf("%w: no attribute value", ErrSerializationMismatch)
	}
	if err := av.Err(); err != nil {
		return zero, err
	}
	return As[T](av.Value)
}

// ToFloat64 converts a numeric scalar to float64.
func ToFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	case DevState:
		return float64(n), true
	}
	return math.NaN(), false
}

// Numbers flattens a numeric scalar or slice into float64 values.
// ok is false if v contains a non-numeric element.
func Numbers(v any) (nums []float64, ok bool) {
	if f, isNum := ToFloat64(v); isNum {
		return []float64{f}, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	nums = make([]float64, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		f, isNum := ToFloat64(rv.Index(i).Interface())
		if !isNum {
			return nil, false
		}
		nums[i] = f
	}
	return nums, true
}

// Len returns the number of elements of a slice value, or 1 for a scalar.
func Len(v any) int {
	if v == nil {
		return 0
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		return rv.Len()
	}
	return 1
}

// CloneValue returns a deep copy of v. Slices and maps are copied,
// scalars are returned as is.
func CloneValue(v any) any {
	if v == nil {
		return nil
	}
	return cloneReflect(reflect.ValueOf(v)).Interface()
}

func cloneReflect(rv reflect.Value) reflect.Value {
	switch rv.Kind() {
	case reflect.Slice:
		if rv.IsNil() {
			return rv
		}
		c := reflect.MakeSlice(rv.Type(), rv.Len(), rv.Len())
		for i := 0; i < rv.Len(); i++ {
			c.Index(i).Set(cloneReflect(rv.Index(i)))
		}
		return c
	case reflect.Map:
		if rv.IsNil() {
			return rv
		}
		c := reflect.MakeMapWithSize(rv.Type(), rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			c.SetMapIndex(iter.Key(), cloneReflect(iter.Value()))
		}
		return c
	case reflect.Interface:
		if rv.IsNil() {
			return rv
		}
		inner := cloneReflect(rv.Elem())
		c := reflect.New(rv.Type()).Elem()
		c.Set(inner)
		return c
	default:
		return rv
	}
}
