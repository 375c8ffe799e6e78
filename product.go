package derive

import (
	"context"
	"fmt"
	"reflect"
	"time"
)

// fieldPlan binds a resolved FieldSpec to accessors on a holder P. The typed
// builder uses P = *T; the reflective driver uses P = reflect.Value.
type fieldPlan[P any] struct {
	spec       FieldSpec
	encode     func(P) Value
	decode     func(P, Value) error
	setDefault func(P)
}

// objectIndexThreshold is the member count above which product decode builds
// a key index instead of scanning the member list per field.
const objectIndexThreshold = 16

// encodeProduct writes fields in declaration order, omitting Null results of
// NullSkip fields.
func encodeProduct[P any](plans []fieldPlan[P], p P) Value {
	members := make([]Member, 0, len(plans))
	for i := range plans {
		f := &plans[i]
		v := f.encode(p)
		if v.IsNull() && f.spec.Nulls == NullSkip {
			continue
		}
		members = append(members, Member{Key: f.spec.Key, Value: v})
	}
	return Object(members...)
}

// decodeProduct fills p from an Object. Per field: a present key is decoded
// (last occurrence wins); otherwise the default applies; otherwise a
// NullWrite field is missing; otherwise Null is decoded by the field codec.
// Unknown keys are ignored.
func decodeProduct[P any](plans []fieldPlan[P], j Value, p P) error {
	if j.Kind() != KindObject {
		return shapeError(KindObject, j)
	}
	lookup := j.Lookup
	if j.Len() > objectIndexThreshold {
		index := make(map[string]Value, j.Len())
		for _, m := range j.Members() {
			index[m.Key] = m.Value
		}
		lookup = func(key string) (Value, bool) {
			v, ok := index[key]
			return v, ok
		}
	}

	for i := range plans {
		f := &plans[i]
		if v, ok := lookup(f.spec.Key); ok {
			if err := f.decode(p, v); err != nil {
				return &FieldError{Key: f.spec.Key, Cause: err}
			}
			continue
		}
		if f.spec.HasDefault {
			f.setDefault(p)
			continue
		}
		if f.spec.Nulls == NullWrite {
			return &MissingFieldError{Key: f.spec.Key}
		}
		if err := f.decode(p, Null()); err != nil {
			return &FieldError{Key: f.spec.Key, Cause: err}
		}
	}
	return nil
}

// FieldDef declares one field of product T. Build with Field.
type FieldDef[T any] struct {
	name string
	cfg  fieldConfig
	bind func(spec *FieldSpec) (fieldPlan[*T], error)
}

// Field declares a field of T named name, encoded by codec. ref returns the
// address of the field inside a *T and is used both to read on encode and to
// write on decode.
//
//	derive.Field("radius", derive.Float64Codec(), func(c *Circle) *float64 { return &c.Radius })
func Field[T, F any](name string, codec Codec[F], ref func(*T) *F, opts ...FieldOption) FieldDef[T] {
	cfg := applyFieldOptions(opts)
	return FieldDef[T]{
		name: name,
		cfg:  cfg,
		bind: func(spec *FieldSpec) (fieldPlan[*T], error) {
			plan := fieldPlan[*T]{
				encode: func(p *T) Value { return codec.Encode(*ref(p)) },
				decode: func(p *T, v Value) error {
					f, err := codec.Decode(v)
					if err != nil {
						return err
					}
					*ref(p) = f
					return nil
				},
			}
			if cfg.hasDefault {
				def, ok := cfg.def.(F)
				if !ok {
					return plan, fmt.Errorf("default is %T, field is %s", cfg.def, reflect.TypeFor[F]())
				}
				dv := codec.Encode(def)
				if _, err := codec.Decode(dv); err != nil {
					return plan, fmt.Errorf("default does not decode: %w", err)
				}
				spec.Default = dv
				// Decoded per use so reference-typed defaults are never shared.
				plan.setDefault = func(p *T) {
					f, _ := codec.Decode(dv)
					*ref(p) = f
				}
			}
			return plan, nil
		},
	}
}

// ProductCodec is the derived codec of a record type T.
type ProductCodec[T any] struct {
	typeName string
	fields   []fieldPlan[*T]
}

// Product derives the codec of T from its ordered field declarations.
// It fails when two fields resolve to the same JSON key or a default does not
// have its field's type.
func Product[T any](fields ...FieldDef[T]) (*ProductCodec[T], error) {
	start := time.Now()
	typeName := reflect.TypeFor[T]().String()

	c := &ProductCodec[T]{
		typeName: typeName,
		fields:   make([]fieldPlan[*T], len(fields)),
	}
	specs := make([]FieldSpec, len(fields))
	for i, def := range fields {
		specs[i] = resolveField(def.name, i, def.cfg)
	}
	if err := checkKeys(typeName, specs); err != nil {
		emitDeriveFailed(context.Background(), typeName, err)
		return nil, err
	}
	for i, def := range fields {
		plan, err := def.bind(&specs[i])
		if err != nil {
			err = newConfigError(ErrInvalidDefault, typeName, specs[i].Key, err)
			emitDeriveFailed(context.Background(), typeName, err)
			return nil, err
		}
		plan.spec = specs[i]
		c.fields[i] = plan
	}

	emitCodecDerived(context.Background(), typeName, ShapeProduct, len(specs), 0, time.Since(start))
	return c, nil
}

// MustProduct is like Product but panics on error.
// Handy for package-level codecs of non-recursive types.
func MustProduct[T any](fields ...FieldDef[T]) *ProductCodec[T] {
	c, err := Product(fields...)
	if err != nil {
		panic(err)
	}
	return c
}

// Encode writes v as an Object in field declaration order.
func (c *ProductCodec[T]) Encode(v T) Value {
	return encodeProduct(c.fields, &v)
}

// Decode reads an Object into a new T.
func (c *ProductCodec[T]) Decode(j Value) (T, error) {
	var v T
	if err := decodeProduct(c.fields, j, &v); err != nil {
		var zero T
		return zero, err
	}
	return v, nil
}

// Fields returns the resolved field metadata in declaration order.
func (c *ProductCodec[T]) Fields() []FieldSpec {
	return fieldSpecs(c.fields)
}

func fieldSpecs[P any](plans []fieldPlan[P]) []FieldSpec {
	out := make([]FieldSpec, len(plans))
	for i := range plans {
		out[i] = plans[i].spec
	}
	return out
}
