package derive

import (
	"context"
	"reflect"
	"time"
)

// variantPlan binds a resolved VariantSpec to payload encode/decode over the
// sum's holder S. The typed builder uses the sum interface itself; the
// reflective driver uses reflect.Value.
type variantPlan[S any] struct {
	spec   VariantSpec
	encode func(S) Value
	decode func(Value) (S, error)
}

// sumCore is the variant table shared by both front-ends.
type sumCore[S any] struct {
	discriminator string
	variants      []variantPlan[S]
	byType        map[reflect.Type]int
	byHint        map[string]int
	typeOf        func(S) reflect.Type // dynamic type of a value, nil when unset
}

func newSumCore[S any](spec SumSpec, plans []variantPlan[S], typeOf func(S) reflect.Type) *sumCore[S] {
	c := &sumCore[S]{
		discriminator: spec.Discriminator,
		variants:      plans,
		byType:        make(map[reflect.Type]int, len(plans)),
		byHint:        make(map[string]int, len(plans)),
		typeOf:        typeOf,
	}
	for i := range plans {
		c.byType[plans[i].spec.Type] = i
		c.byHint[plans[i].spec.Hint] = i
	}
	return c
}

// encode writes the discriminator first, followed by the payload's members
// when the payload is an Object, or by the payload under its payload field.
// Values outside the closed variant set (including a nil interface) encode
// as Null.
func (c *sumCore[S]) encode(v S) Value {
	t := c.typeOf(v)
	if t == nil {
		return Null()
	}
	i, ok := c.byType[t]
	if !ok {
		return Null()
	}
	vp := &c.variants[i]
	tag := Member{Key: c.discriminator, Value: String(vp.spec.Hint)}
	payload := vp.encode(v)
	if payload.Kind() == KindObject {
		return payload.Prepend(tag)
	}
	return Object(tag, Member{Key: vp.spec.PayloadField, Value: payload})
}

// decode selects the variant by discriminator and decodes its payload: the
// payload field's value when present, otherwise the whole object, whose
// product decode ignores the discriminator as an unknown key. Null decodes
// to the zero S, mirroring encode.
func (c *sumCore[S]) decode(j Value) (S, error) {
	var zero S
	if j.IsNull() {
		return zero, nil
	}
	if j.Kind() != KindObject {
		return zero, shapeError(KindObject, j)
	}
	d, ok := j.Lookup(c.discriminator)
	if !ok {
		return zero, &DiscriminatorError{Field: c.discriminator, Cause: &MissingFieldError{Key: c.discriminator}}
	}
	hint, ok := d.AsString()
	if !ok {
		return zero, &DiscriminatorError{Field: c.discriminator, Cause: shapeError(KindString, d)}
	}
	i, ok := c.byHint[hint]
	if !ok {
		return zero, &UnknownVariantError{Hint: hint}
	}
	vp := &c.variants[i]
	payload := j
	if inner, ok := j.Lookup(vp.spec.PayloadField); ok {
		payload = inner
	}
	v, err := vp.decode(payload)
	if err != nil {
		return zero, &VariantError{Hint: hint, Cause: err}
	}
	return v, nil
}

func (c *sumCore[S]) spec() SumSpec {
	out := SumSpec{
		Discriminator: c.discriminator,
		Variants:      make([]VariantSpec, len(c.variants)),
	}
	for i := range c.variants {
		out.Variants[i] = c.variants[i].spec
	}
	return out
}

// fielded is implemented by codecs that expose their product fields.
type fielded interface {
	Fields() []FieldSpec
}

// checkPayloadKeys rejects a product variant that owns a field under the
// discriminator key or under its own payload field. The first would carry
// the key twice; the second would be read back as a wrapped payload.
func checkPayloadKeys(typeName, discriminator string, spec VariantSpec, fields []FieldSpec) error {
	for _, f := range fields {
		if f.Key == discriminator || f.Key == spec.PayloadField {
			return newConfigError(ErrDuplicateKey, typeName, spec.Hint+"."+f.Key, nil)
		}
	}
	return nil
}

// VariantDef declares one variant of sum S. Build with Variant.
type VariantDef[S any] struct {
	typ    reflect.Type
	cfg    variantConfig
	encode func(S) Value
	decode func(Value) (S, error)
	fields func() []FieldSpec
}

// Variant declares V, encoded by codec, as a variant of the sum interface S.
func Variant[S, V any](codec Codec[V], opts ...VariantOption) VariantDef[S] {
	def := VariantDef[S]{
		typ: reflect.TypeFor[V](),
		cfg: applyVariantOptions(opts),
		encode: func(s S) Value {
			return codec.Encode(any(s).(V))
		},
		decode: func(j Value) (S, error) {
			v, err := codec.Decode(j)
			if err != nil {
				var zero S
				return zero, err
			}
			return any(v).(S), nil
		},
	}
	if f, ok := codec.(fielded); ok {
		def.fields = f.Fields
	}
	return def
}

// SumCodec is the derived codec of a closed sum type S.
type SumCodec[S any] struct {
	typeName string
	core     *sumCore[S]
}

// Sum derives the codec of the interface S from its closed, ordered variant
// list. It fails when S is not an interface, a variant does not implement S,
// a Go type repeats, two hints collide, or a product variant has a field
// under the discriminator key.
func Sum[S any](opts SumOptions, variants ...VariantDef[S]) (*SumCodec[S], error) {
	start := time.Now()
	st := reflect.TypeFor[S]()
	typeName := st.String()

	fail := func(err error) (*SumCodec[S], error) {
		emitDeriveFailed(context.Background(), typeName, err)
		return nil, err
	}

	if st.Kind() != reflect.Interface {
		return fail(newConfigError(ErrInvalidVariant, typeName, "", nil))
	}
	specs := make([]VariantSpec, len(variants))
	for i, def := range variants {
		if def.typ.Kind() == reflect.Interface || !def.typ.Implements(st) {
			return fail(newConfigError(ErrInvalidVariant, typeName, def.typ.String(), nil))
		}
		specs[i] = resolveVariant(def.typ, i, def.cfg)
	}
	spec := resolveSum(opts, specs)
	if err := checkVariants(typeName, spec); err != nil {
		return fail(err)
	}

	plans := make([]variantPlan[S], len(variants))
	for i, def := range variants {
		if def.fields != nil {
			if err := checkPayloadKeys(typeName, spec.Discriminator, specs[i], def.fields()); err != nil {
				return fail(err)
			}
		}
		plans[i] = variantPlan[S]{spec: specs[i], encode: def.encode, decode: def.decode}
	}

	c := &SumCodec[S]{
		typeName: typeName,
		core: newSumCore(spec, plans, func(s S) reflect.Type {
			return reflect.TypeOf(any(s))
		}),
	}
	emitCodecDerived(context.Background(), typeName, ShapeSum, 0, len(plans), time.Since(start))
	return c, nil
}

// MustSum is like Sum but panics on error.
func MustSum[S any](opts SumOptions, variants ...VariantDef[S]) *SumCodec[S] {
	c, err := Sum(opts, variants...)
	if err != nil {
		panic(err)
	}
	return c
}

// Encode writes v tagged with its variant's hint.
func (c *SumCodec[S]) Encode(v S) Value { return c.core.encode(v) }

// Decode reads a tagged Object into the matching variant.
func (c *SumCodec[S]) Decode(j Value) (S, error) { return c.core.decode(j) }

// Spec returns the resolved discriminator and variant metadata.
func (c *SumCodec[S]) Spec() SumSpec { return c.core.spec() }
