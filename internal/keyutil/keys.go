package keyutil

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// ClassName folds an entity class name into a flat, backend-safe form:
// lower case, with package/namespace separators collapsed to '.'.
func ClassName(name string) string {
	r := strings.NewReplacer(`\`, ".", "/", ".")
	return r.Replace(strings.ToLower(name))
}

// JoinSorted renders the values of m ordered by key, space separated.
func JoinSorted(m map[string]any) string {
	ks := SortedKeys(m)
	vals := make([]string, len(ks))
	for i, k := range ks {
		vals[i] = Value(m[k])
	}
	return strings.Join(vals, " ")
}

func SortedKeys[V any](m map[string]V) []string {
	ks := make([]string, 0, len(m))
	for k := range m {
		ks = append(ks, k)
	}
	sort.Strings(ks)
	return ks
}

// Digest returns a 16 hex char xxhash64 digest of parts. Parts are length
// prefixed so ("ab","c") and ("a","bc") differ.
func Digest(parts ...string) string {
	d := xxhash.New()
	for _, p := range parts {
		_, _ = d.WriteString(strconv.Itoa(len(p)))
		_, _ = d.WriteString(":")
		_, _ = d.WriteString(p)
	}
	return fmt.Sprintf("%016x", d.Sum64())
}

// Value renders one key component. Integral floats, which is what JSON and
// structpb decode every number into, render like the integer they came from.
func Value(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return formatFloat(x, 64)
	case float32:
		return formatFloat(float64(x), 32)
	}
	return fmt.Sprint(v)
}

func formatFloat(f float64, bits int) string {
	if f == math.Trunc(f) && !math.IsInf(f, 0) {
		return strconv.FormatFloat(f, 'f', -1, bits)
	}
	return strconv.FormatFloat(f, 'g', -1, bits)
}

// Typed renders v prefixed with its kind so 1 and "1" stay distinct. All
// numeric kinds share one tag.
func Typed(v any) string {
	switch x := v.(type) {
	case nil:
		return "nil"
	case string:
		return "s:" + x
	case bool:
		return "b:" + Value(v)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return "n:" + Value(v)
	}
	return fmt.Sprintf("%T:%v", v, v)
}

// ParamParts flattens a parameter map into name, typed value pairs ordered by
// name, ready to be fed to Digest as separate parts.
func ParamParts(m map[string]any) []string {
	ks := SortedKeys(m)
	parts := make([]string, 0, 2*len(ks))
	for _, k := range ks {
		parts = append(parts, k, Typed(m[k]))
	}
	return parts
}
