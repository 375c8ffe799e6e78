package derive

import (
	"reflect"
	"strings"
)

// NullPolicy controls how a field whose encoding is Null is written.
type NullPolicy uint8

const (
	// NullSkip omits the entry on encode; an absent key decodes through the
	// field's default or its codec's Null handling.
	NullSkip NullPolicy = iota
	// NullWrite writes "key": null on encode and requires the key on decode.
	NullWrite
)

func (p NullPolicy) String() string {
	if p == NullWrite {
		return "write"
	}
	return "skip"
}

const (
	// DefaultDiscriminator is the discriminator key used when a sum sets none.
	DefaultDiscriminator = "type"
	// DefaultPayloadField wraps variant payloads that do not encode to an object.
	DefaultPayloadField = "xvalue"
)

// FieldSpec is the resolved metadata of one product field.
type FieldSpec struct {
	Name       string     // declared identifier
	Key        string     // effective JSON key
	Nulls      NullPolicy // null-write policy
	HasDefault bool
	Default    Value // default as a JSON value; meaningful when HasDefault
	Index      int   // declaration order
}

// VariantSpec is the resolved metadata of one sum variant.
type VariantSpec struct {
	Type         reflect.Type
	Hint         string // discriminator value
	PayloadField string // wraps non-object payloads
	Index        int    // declaration order
}

// SumSpec is the resolved metadata of a sum type.
type SumSpec struct {
	Discriminator string
	Variants      []VariantSpec
}

// fieldConfig collects field customization before resolution.
type fieldConfig struct {
	writeNulls bool
	rename     string
	hasDefault bool
	def        any
}

// FieldOption customizes a product field.
type FieldOption func(*fieldConfig)

// WriteNulls writes the field as an explicit null when it encodes to Null,
// and makes its key required on decode.
func WriteNulls() FieldOption {
	return func(c *fieldConfig) { c.writeNulls = true }
}

// Rename sets the JSON key of a field. The declared identifier is used when
// no rename is given.
func Rename(key string) FieldOption {
	return func(c *fieldConfig) { c.rename = key }
}

// Default supplies the value used when the field's key is absent. The value
// must have the field's Go type.
func Default(v any) FieldOption {
	return func(c *fieldConfig) {
		c.hasDefault = true
		c.def = v
	}
}

// variantConfig collects variant customization before resolution.
type variantConfig struct {
	hint         string
	payloadField string
}

// VariantOption customizes a sum variant.
type VariantOption func(*variantConfig)

// Hint sets the discriminator value of a variant. The variant's short type
// name is used when no hint is given.
func Hint(h string) VariantOption {
	return func(c *variantConfig) { c.hint = h }
}

// PayloadField sets the key wrapping a payload that does not encode to an
// object. Defaults to "xvalue".
func PayloadField(key string) VariantOption {
	return func(c *variantConfig) { c.payloadField = key }
}

// SumOptions customizes a sum type.
type SumOptions struct {
	// Discriminator is the key holding the variant hint. Defaults to "type".
	Discriminator string
}

func applyFieldOptions(opts []FieldOption) fieldConfig {
	var c fieldConfig
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

func applyVariantOptions(opts []VariantOption) variantConfig {
	var c variantConfig
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// resolveField applies field defaults. The Default value is filled in by the
// caller, which owns the field codec.
func resolveField(name string, index int, c fieldConfig) FieldSpec {
	spec := FieldSpec{
		Name:       name,
		Key:        coalesce(c.rename, name),
		HasDefault: c.hasDefault,
		Index:      index,
	}
	if c.writeNulls {
		spec.Nulls = NullWrite
	}
	return spec
}

func resolveVariant(t reflect.Type, index int, c variantConfig) VariantSpec {
	return VariantSpec{
		Type:         t,
		Hint:         coalesce(c.hint, shortTypeName(t)),
		PayloadField: coalesce(c.payloadField, DefaultPayloadField),
		Index:        index,
	}
}

func resolveSum(opts SumOptions, variants []VariantSpec) SumSpec {
	return SumSpec{
		Discriminator: coalesce(opts.Discriminator, DefaultDiscriminator),
		Variants:      variants,
	}
}

// checkKeys enforces unique effective keys within one product.
func checkKeys(typeName string, fields []FieldSpec) error {
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		if seen[f.Key] {
			return newConfigError(ErrDuplicateKey, typeName, f.Key, nil)
		}
		seen[f.Key] = true
	}
	return nil
}

// checkVariants enforces unique hints and unique Go types within one sum.
func checkVariants(typeName string, spec SumSpec) error {
	hints := make(map[string]bool, len(spec.Variants))
	types := make(map[reflect.Type]bool, len(spec.Variants))
	for _, v := range spec.Variants {
		if types[v.Type] {
			return newConfigError(ErrDuplicateVariant, typeName, v.Type.String(), nil)
		}
		types[v.Type] = true
		if hints[v.Hint] {
			return newConfigError(ErrDuplicateHint, typeName, v.Hint, nil)
		}
		hints[v.Hint] = true
	}
	return nil
}

// shortTypeName returns the unqualified name of t with pointers removed and
// type arguments stripped: *pkg.Circle and pkg.Box[int] give "Circle" and "Box".
func shortTypeName(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	name := t.Name()
	if i := strings.IndexByte(name, '['); i >= 0 {
		name = name[:i]
	}
	if name == "" {
		name = t.String()
	}
	return name
}
