package derive

import (
	"encoding/base64"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
)

// Leaf codecs. Scalars reject Null, so a required scalar field that is absent
// from its object fails through the product decode's null fallback; wrap the
// codec in Optional to make the field nullable.

// StringCodec returns the codec for string.
func StringCodec() Codec[string] { return stringCodec{} }

type stringCodec struct{}

func (stringCodec) Encode(s string) Value { return String(s) }

func (stringCodec) Decode(v Value) (string, error) {
	s, ok := v.AsString()
	if !ok {
		return "", shapeError(KindString, v)
	}
	return s, nil
}

// BoolCodec returns the codec for bool.
func BoolCodec() Codec[bool] { return boolCodec{} }

type boolCodec struct{}

func (boolCodec) Encode(b bool) Value { return Bool(b) }

func (boolCodec) Decode(v Value) (bool, error) {
	b, ok := v.AsBool()
	if !ok {
		return false, shapeError(KindBool, v)
	}
	return b, nil
}

// IntCodec returns the codec for int.
func IntCodec() Codec[int] {
	return Func(
		func(i int) Value { return Int(int64(i)) },
		func(v Value) (int, error) {
			n, err := decodeInt(v, strconv.IntSize)
			return int(n), err
		},
	)
}

// Int64Codec returns the codec for int64.
func Int64Codec() Codec[int64] {
	return Func(Int, func(v Value) (int64, error) { return decodeInt(v, 64) })
}

// Uint64Codec returns the codec for uint64.
func Uint64Codec() Codec[uint64] {
	return Func(Uint, func(v Value) (uint64, error) { return decodeUint(v, 64) })
}

// Float64Codec returns the codec for float64. NaN and infinities have no JSON
// form and encode as Null.
func Float64Codec() Codec[float64] {
	return Func(Float, func(v Value) (float64, error) { return decodeFloat(v, 64) })
}

func numberLiteral(v Value) (string, error) {
	lit, ok := v.AsNumber()
	if !ok {
		return "", shapeError(KindNumber, v)
	}
	return lit, nil
}

func decodeInt(v Value, bits int) (int64, error) {
	lit, err := numberLiteral(v)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(lit, 10, bits)
	if err != nil {
		// Integral literals written with a fraction or exponent ("3.0", "1e3").
		f, ferr := strconv.ParseFloat(lit, 64)
		if ferr != nil || f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
			return 0, fmt.Errorf("number %s: not an int%d", lit, bits)
		}
		n = int64(f)
		if bits < 64 && (n < -1<<(bits-1) || n > 1<<(bits-1)-1) {
			return 0, fmt.Errorf("number %s: not an int%d", lit, bits)
		}
	}
	return n, nil
}

func decodeUint(v Value, bits int) (uint64, error) {
	lit, err := numberLiteral(v)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseUint(lit, 10, bits)
	if err != nil {
		f, ferr := strconv.ParseFloat(lit, 64)
		if ferr != nil || f != math.Trunc(f) || f < 0 || f >= math.MaxUint64 {
			return 0, fmt.Errorf("number %s: not a uint%d", lit, bits)
		}
		n = uint64(f)
		if bits < 64 && n > 1<<bits-1 {
			return 0, fmt.Errorf("number %s: not a uint%d", lit, bits)
		}
	}
	return n, nil
}

func decodeFloat(v Value, bits int) (float64, error) {
	lit, err := numberLiteral(v)
	if err != nil {
		return 0, err
	}
	f, err := strconv.ParseFloat(lit, bits)
	if err != nil {
		return 0, fmt.Errorf("number %s: not a float%d", lit, bits)
	}
	return f, nil
}

// formatFloat renders f so that integral values keep a fractional part
// ("2.0", not "2"), which keeps the number visibly a float on the wire.
func formatFloat(f float64, bits int) string {
	s := strconv.FormatFloat(f, 'g', -1, bits)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}

// BytesCodec returns the codec for []byte: standard base64 in a String. A nil
// slice encodes as Null.
func BytesCodec() Codec[[]byte] { return bytesCodec{} }

type bytesCodec struct{}

func (bytesCodec) Encode(b []byte) Value {
	if b == nil {
		return Null()
	}
	return String(base64.StdEncoding.EncodeToString(b))
}

func (bytesCodec) Decode(v Value) ([]byte, error) {
	if v.IsNull() {
		return nil, nil
	}
	s, ok := v.AsString()
	if !ok {
		return nil, shapeError(KindString, v)
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("base64: %w", err)
	}
	return b, nil
}

// RawCodec returns the identity codec for Value.
func RawCodec() Codec[Value] { return rawCodec{} }

type rawCodec struct{}

func (rawCodec) Encode(v Value) Value { return v }

func (rawCodec) Decode(v Value) (Value, error) { return v, nil }

// Slice returns a codec for []E. A nil slice encodes as Null and Null decodes
// to a nil slice; an empty slice round-trips as [].
func Slice[E any](elem Codec[E]) Codec[[]E] { return sliceCodec[E]{elem: elem} }

type sliceCodec[E any] struct {
	elem Codec[E]
}

func (c sliceCodec[E]) Encode(s []E) Value {
	if s == nil {
		return Null()
	}
	items := make([]Value, len(s))
	for i, e := range s {
		items[i] = c.elem.Encode(e)
	}
	return Array(items...)
}

func (c sliceCodec[E]) Decode(v Value) ([]E, error) {
	if v.IsNull() {
		return nil, nil
	}
	if v.Kind() != KindArray {
		return nil, shapeError(KindArray, v)
	}
	out := make([]E, len(v.Items()))
	for i, item := range v.Items() {
		e, err := c.elem.Decode(item)
		if err != nil {
			return nil, &IndexError{Index: i, Cause: err}
		}
		out[i] = e
	}
	return out, nil
}

// Optional returns a codec for *E where nil and Null correspond.
func Optional[E any](elem Codec[E]) Codec[*E] { return optionalCodec[E]{elem: elem} }

type optionalCodec[E any] struct {
	elem Codec[E]
}

func (c optionalCodec[E]) Encode(p *E) Value {
	if p == nil {
		return Null()
	}
	return c.elem.Encode(*p)
}

func (c optionalCodec[E]) Decode(v Value) (*E, error) {
	if v.IsNull() {
		return nil, nil
	}
	e, err := c.elem.Decode(v)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Map returns a codec for map[string]E. Members are written in key order so
// output is deterministic; a nil map encodes as Null. On decode a repeated
// key keeps its last value.
func Map[E any](elem Codec[E]) Codec[map[string]E] { return mapCodec[E]{elem: elem} }

type mapCodec[E any] struct {
	elem Codec[E]
}

func (c mapCodec[E]) Encode(m map[string]E) Value {
	if m == nil {
		return Null()
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	members := make([]Member, len(keys))
	for i, k := range keys {
		members[i] = Member{Key: k, Value: c.elem.Encode(m[k])}
	}
	return Object(members...)
}

func (c mapCodec[E]) Decode(v Value) (map[string]E, error) {
	if v.IsNull() {
		return nil, nil
	}
	if v.Kind() != KindObject {
		return nil, shapeError(KindObject, v)
	}
	out := make(map[string]E, v.Len())
	for _, m := range v.Members() {
		e, err := c.elem.Decode(m.Value)
		if err != nil {
			return nil, &FieldError{Key: m.Key, Cause: err}
		}
		out[m.Key] = e
	}
	return out, nil
}
