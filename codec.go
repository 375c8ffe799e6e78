package derive

import "fmt"

// Codec converts between T and its JSON tree.
//
// Encode is total for values of T. Decode returns the first failure it meets;
// failures carry positional context (see Path). Codecs built by this package
// are immutable and safe for concurrent use.
type Codec[T any] interface {
	Encode(v T) Value
	Decode(v Value) (T, error)
}

// Format provides content-type aware conversion between Values and bytes.
type Format interface {
	// ContentType returns the MIME type for this format (e.g., "application/json").
	ContentType() string

	// Format renders v as bytes.
	Format(v Value) ([]byte, error)

	// Parse reads a single document.
	Parse(data []byte) (Value, error)
}

// Marshal encodes v with c and renders it with f.
func Marshal[T any](f Format, c Codec[T], v T) ([]byte, error) {
	data, err := f.Format(c.Encode(v))
	if err != nil {
		return nil, fmt.Errorf("format %s: %w", f.ContentType(), err)
	}
	return data, nil
}

// Unmarshal parses data with f and decodes the tree with c.
func Unmarshal[T any](f Format, c Codec[T], data []byte) (T, error) {
	var zero T
	tree, err := f.Parse(data)
	if err != nil {
		return zero, fmt.Errorf("parse %s: %w", f.ContentType(), err)
	}
	return c.Decode(tree)
}

// Func adapts a pair of functions into a Codec.
func Func[T any](encode func(T) Value, decode func(Value) (T, error)) Codec[T] {
	return funcCodec[T]{encode: encode, decode: decode}
}

type funcCodec[T any] struct {
	encode func(T) Value
	decode func(Value) (T, error)
}

func (c funcCodec[T]) Encode(v T) Value { return c.encode(v) }

func (c funcCodec[T]) Decode(v Value) (T, error) { return c.decode(v) }
