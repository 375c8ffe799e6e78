package derive

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Sentinel errors for programmatic error handling.
// Use errors.Is() to check for these error types.
var (
	// ErrShape indicates a JSON value of the wrong kind for its target.
	ErrShape = errors.New("shape mismatch")

	// ErrMissingField indicates a required object key was absent.
	ErrMissingField = errors.New("missing field")

	// ErrUnknownVariant indicates a discriminator with no registered variant.
	ErrUnknownVariant = errors.New("unknown variant")

	// ErrDiscriminator indicates the discriminator entry was absent or not a string.
	ErrDiscriminator = errors.New("invalid discriminator")

	// ErrFieldDecode indicates a nested field, element, or payload failed to decode.
	ErrFieldDecode = errors.New("field decode failed")

	// ErrDuplicateKey indicates two fields of one product resolved to the same JSON key.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrDuplicateHint indicates two variants of one sum resolved to the same hint.
	ErrDuplicateHint = errors.New("duplicate hint")

	// ErrDuplicateVariant indicates one Go type was registered twice in a sum.
	ErrDuplicateVariant = errors.New("duplicate variant")

	// ErrInvalidDefault indicates a default value that the field codec rejects.
	ErrInvalidDefault = errors.New("invalid default")

	// ErrUnsupportedType indicates a type the reflective driver cannot derive.
	ErrUnsupportedType = errors.New("unsupported type")

	// ErrInvalidVariant indicates a variant type that does not implement its sum.
	ErrInvalidVariant = errors.New("invalid variant")

	// ErrInvalidTag indicates a struct tag the reflective driver cannot read.
	ErrInvalidTag = errors.New("invalid struct tag")

	// ErrSealed indicates a registration for a type whose codec already exists.
	ErrSealed = errors.New("type already derived")
)

// ShapeError reports a decode target that required one kind of JSON value
// and received another.
type ShapeError struct {
	Expected Kind
	Actual   Kind
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("expected %s, got %s", e.Expected, e.Actual)
}

func (e *ShapeError) Unwrap() error { return ErrShape }

// MissingFieldError reports a key that had to be present.
type MissingFieldError struct {
	Key string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing field %q", e.Key)
}

func (e *MissingFieldError) Unwrap() error { return ErrMissingField }

// UnknownVariantError reports a discriminator value with no matching variant.
type UnknownVariantError struct {
	Hint string
}

func (e *UnknownVariantError) Error() string {
	return fmt.Sprintf("unknown variant %q", e.Hint)
}

func (e *UnknownVariantError) Unwrap() error { return ErrUnknownVariant }

// DiscriminatorError reports an absent or non-string discriminator entry.
// It matches both ErrDiscriminator and ErrShape.
type DiscriminatorError struct {
	Field string
	Cause error
}

func (e *DiscriminatorError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("discriminator %q: %v", e.Field, e.Cause)
	}
	return fmt.Sprintf("discriminator %q", e.Field)
}

func (e *DiscriminatorError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrDiscriminator, ErrShape}
	}
	return []error{ErrDiscriminator, ErrShape, e.Cause}
}

// FieldError wraps a failure decoding the value under Key.
type FieldError struct {
	Key   string
	Cause error
}

func (e *FieldError) Error() string { return renderPath(e) }

func (e *FieldError) Unwrap() error { return e.Cause }

func (e *FieldError) Is(target error) bool { return target == ErrFieldDecode }

// IndexError wraps a failure decoding element Index of an array.
type IndexError struct {
	Index int
	Cause error
}

func (e *IndexError) Error() string { return renderPath(e) }

func (e *IndexError) Unwrap() error { return e.Cause }

func (e *IndexError) Is(target error) bool { return target == ErrFieldDecode }

// VariantError wraps a failure decoding the payload of the variant named Hint.
type VariantError struct {
	Hint  string
	Cause error
}

func (e *VariantError) Error() string { return renderPath(e) }

func (e *VariantError) Unwrap() error { return e.Cause }

func (e *VariantError) Is(target error) bool { return target == ErrFieldDecode }

// Path returns the position of a decode failure, e.g. "shapes[2].radius".
// Variant payloads appear as "<Hint>". Errors without positional context
// return "".
func Path(err error) string {
	var b strings.Builder
	for err != nil {
		switch e := err.(type) {
		case *FieldError:
			if b.Len() > 0 {
				b.WriteByte('.')
			}
			b.WriteString(e.Key)
			err = e.Cause
		case *IndexError:
			b.WriteByte('[')
			b.WriteString(strconv.Itoa(e.Index))
			b.WriteByte(']')
			err = e.Cause
		case *VariantError:
			b.WriteByte('<')
			b.WriteString(e.Hint)
			b.WriteByte('>')
			err = e.Cause
		default:
			return b.String()
		}
	}
	return b.String()
}

// rootCause strips positional wrappers.
func rootCause(err error) error {
	for {
		switch e := err.(type) {
		case *FieldError:
			err = e.Cause
		case *IndexError:
			err = e.Cause
		case *VariantError:
			err = e.Cause
		default:
			return err
		}
	}
}

func renderPath(err error) string {
	cause := rootCause(err)
	if cause == nil {
		return "decode " + Path(err)
	}
	return fmt.Sprintf("decode %s: %v", Path(err), cause)
}

// ConfigError represents a derivation error.
// It wraps a sentinel error with the type and, where relevant, the field or
// variant that triggered it.
type ConfigError struct {
	Err   error  // Underlying sentinel error (ErrDuplicateKey, etc.)
	Type  string // Type being derived
	Field string // Field, key, or hint involved
	Cause error  // Original error, if any
}

func (e *ConfigError) Error() string {
	msg := e.Err.Error()
	if e.Field != "" {
		msg = fmt.Sprintf("%s %q", msg, e.Field)
	}
	if e.Type != "" {
		msg = fmt.Sprintf("%s (type %s)", msg, e.Type)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// newConfigError creates a ConfigError for derivation failures.
func newConfigError(sentinel error, typeName, field string, cause error) error {
	return &ConfigError{
		Err:   sentinel,
		Type:  typeName,
		Field: field,
		Cause: cause,
	}
}

func shapeError(expected Kind, got Value) error {
	return &ShapeError{Expected: expected, Actual: got.Kind()}
}
