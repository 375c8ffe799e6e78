package derive

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"time"

	"github.com/zoobzio/sentinel"
)

// Registry derives and caches reflective codecs, one per Go type.
//
// Derivation runs under the registry's write lock; the codecs it returns are
// immutable and safe for concurrent use. A type's codec is built once and
// every later request, including recursive references made while it was
// being built, resolves to the same instance.
type Registry struct {
	mu        sync.RWMutex
	nodes     map[reflect.Type]node
	typed     map[reflect.Type]any
	overrides map[reflect.Type]node
	sums      map[reflect.Type]sumDecl
}

// sumDecl is a registered closed variant set awaiting derivation.
type sumDecl struct {
	opts     SumOptions
	variants []SumVariant
}

// SumVariant declares one variant type of a registered sum. Build with
// VariantOf.
type SumVariant struct {
	typ  reflect.Type
	opts []VariantOption
}

// VariantOf declares V as a variant of a sum registered with RegisterSum.
func VariantOf[V any](opts ...VariantOption) SumVariant {
	return SumVariant{typ: reflect.TypeFor[V](), opts: opts}
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	r := &Registry{}
	r.reset()
	return r
}

func (r *Registry) reset() {
	r.nodes = make(map[reflect.Type]node)
	r.typed = make(map[reflect.Type]any)
	r.overrides = make(map[reflect.Type]node)
	r.sums = make(map[reflect.Type]sumDecl)
}

var defaultRegistry = NewRegistry()

// DefaultRegistry returns the registry used by Use.
func DefaultRegistry() *Registry { return defaultRegistry }

// Use returns the cached codec for T from the default registry, deriving it
// on first request.
func Use[T any]() (Codec[T], error) {
	return Derive[T](defaultRegistry)
}

// Reset clears the default registry.
// This is primarily useful for test isolation.
func Reset() {
	defaultRegistry.mu.Lock()
	defer defaultRegistry.mu.Unlock()
	defaultRegistry.reset()
}

// Register makes c the codec for T in r, both for direct requests and for
// fields of type T met during derivation. Registering a type that r has
// already derived fails with ErrSealed.
func Register[T any](r *Registry, c Codec[T]) error {
	t := reflect.TypeFor[T]()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.nodes[t]; ok {
		return newConfigError(ErrSealed, t.String(), "", nil)
	}
	if _, ok := r.typed[t]; ok {
		return newConfigError(ErrSealed, t.String(), "", nil)
	}
	r.overrides[t] = overrideNode[T]{codec: c}
	r.typed[t] = c
	return nil
}

// RegisterSum declares the interface S as a closed sum over variants. The
// set is fixed once S is derived; registering S again afterwards fails with
// ErrSealed.
func RegisterSum[S any](r *Registry, opts SumOptions, variants ...SumVariant) error {
	st := reflect.TypeFor[S]()
	if st.Kind() != reflect.Interface {
		return newConfigError(ErrInvalidVariant, st.String(), "", nil)
	}
	for _, v := range variants {
		if v.typ.Kind() == reflect.Interface || !v.typ.Implements(st) {
			return newConfigError(ErrInvalidVariant, st.String(), v.typ.String(), nil)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.nodes[st]; ok {
		return newConfigError(ErrSealed, st.String(), "", nil)
	}
	r.sums[st] = sumDecl{opts: opts, variants: append([]SumVariant(nil), variants...)}
	return nil
}

// Derive returns the codec for T from r, deriving it and every type it
// reaches on first request. A failed derivation leaves r unchanged.
func Derive[T any](r *Registry) (Codec[T], error) {
	t := reflect.TypeFor[T]()

	// Fast path: read-lock cache check
	r.mu.RLock()
	if cached, ok := r.typed[t]; ok {
		r.mu.RUnlock()
		return cached.(Codec[T]), nil
	}
	r.mu.RUnlock()

	// Slow path: derive and cache with write-lock
	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check pattern
	if cached, ok := r.typed[t]; ok {
		return cached.(Codec[T]), nil
	}

	if t.Kind() == reflect.Struct {
		// Populate sentinel's metadata cache for T before scanning.
		sentinel.Scan[T]()
	}

	d := &derivation{r: r}
	n, err := d.nodeFor(t)
	if err == nil {
		err = d.runChecks()
	}
	if err != nil {
		d.rollback()
		emitDeriveFailed(context.Background(), t.String(), err)
		return nil, err
	}

	c := &reflectCodec[T]{node: n}
	r.typed[t] = c
	return c, nil
}

// reflectCodec exposes a node as a Codec[T].
type reflectCodec[T any] struct {
	node node
}

func (c *reflectCodec[T]) Encode(v T) Value {
	return c.node.encode(reflect.ValueOf(&v).Elem())
}

func (c *reflectCodec[T]) Decode(j Value) (T, error) {
	var v T
	if err := c.node.decode(j, reflect.ValueOf(&v).Elem()); err != nil {
		var zero T
		return zero, err
	}
	return v, nil
}

// Fields returns the resolved field metadata when T is a struct or a
// pointer to one, and nil otherwise.
func (c *reflectCodec[T]) Fields() []FieldSpec {
	return productFields(c.node)
}

// derivation tracks one top-level Derive call so that a failure can undo
// every type it added.
type derivation struct {
	r      *Registry
	added  []reflect.Type
	checks []func() error
}

func (d *derivation) rollback() {
	for _, t := range d.added {
		delete(d.r.nodes, t)
	}
}

func (d *derivation) runChecks() error {
	for _, check := range d.checks {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

// nodeFor returns the memoized node for t, deriving it when absent. While a
// composite type is being derived its entry is a placeholder, so recursive
// references terminate and later resolve to the finished node.
func (d *derivation) nodeFor(t reflect.Type) (node, error) {
	if n, ok := d.r.overrides[t]; ok {
		return n, nil
	}
	if n, ok := d.r.nodes[t]; ok {
		if p, ok := n.(*placeholder); ok {
			p.refs++
		}
		return n, nil
	}

	switch t.Kind() {
	case reflect.Bool:
		return d.leaf(t, boolNode{}), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return d.leaf(t, intNode{bits: t.Bits()}), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return d.leaf(t, uintNode{bits: t.Bits()}), nil
	case reflect.Float32, reflect.Float64:
		return d.leaf(t, floatNode{bits: t.Bits()}), nil
	case reflect.String:
		return d.leaf(t, stringNode{}), nil
	}
	if t == valueType {
		return d.leaf(t, rawNode{}), nil
	}
	if t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Uint8 {
		return d.leaf(t, bytesNode{typ: t}), nil
	}

	switch t.Kind() {
	case reflect.Pointer, reflect.Slice, reflect.Array, reflect.Map, reflect.Struct, reflect.Interface:
	default:
		return nil, newConfigError(ErrUnsupportedType, t.String(), "", nil)
	}

	p := &placeholder{typ: t}
	d.r.nodes[t] = p
	d.added = append(d.added, t)

	n, err := d.build(t)
	if err != nil {
		return nil, err
	}
	p.bind(n)
	d.r.nodes[t] = n
	if p.refs > 0 {
		emitPlaceholderBound(context.Background(), t.String())
	}
	return n, nil
}

func (d *derivation) leaf(t reflect.Type, n node) node {
	d.r.nodes[t] = n
	d.added = append(d.added, t)
	emitCodecDerived(context.Background(), t.String(), ShapeLeaf, 0, 0, 0)
	return n
}

func (d *derivation) build(t reflect.Type) (node, error) {
	switch t.Kind() {
	case reflect.Pointer:
		elem, err := d.nodeFor(t.Elem())
		if err != nil {
			return nil, err
		}
		return &pointerNode{typ: t, elem: elem}, nil
	case reflect.Slice:
		elem, err := d.nodeFor(t.Elem())
		if err != nil {
			return nil, err
		}
		return &sliceNode{typ: t, elem: elem}, nil
	case reflect.Array:
		elem, err := d.nodeFor(t.Elem())
		if err != nil {
			return nil, err
		}
		return &arrayNode{typ: t, elem: elem}, nil
	case reflect.Map:
		if t.Key().Kind() != reflect.String {
			return nil, newConfigError(ErrUnsupportedType, t.String(), "", nil)
		}
		elem, err := d.nodeFor(t.Elem())
		if err != nil {
			return nil, err
		}
		return &mapNode{typ: t, elem: elem}, nil
	case reflect.Struct:
		return d.buildProduct(t)
	case reflect.Interface:
		return d.buildSum(t)
	}
	return nil, newConfigError(ErrUnsupportedType, t.String(), "", nil)
}

func (d *derivation) buildProduct(t reflect.Type) (node, error) {
	start := time.Now()
	typeName := t.String()

	scanned := scanStruct(t)
	specs := make([]FieldSpec, 0, len(scanned))
	plans := make([]fieldPlan[reflect.Value], 0, len(scanned))
	for _, sf := range scanned {
		cfg, defaultText, skip, err := fieldConfigFromTags(sf.tags)
		if err != nil {
			return nil, newConfigError(ErrInvalidTag, typeName, sf.name, err)
		}
		if skip {
			continue
		}
		spec := resolveField(sf.name, len(specs), cfg)

		fn, err := d.nodeFor(sf.typ)
		if err != nil {
			var ce *ConfigError
			if errors.As(err, &ce) && ce.Field == "" {
				ce.Field = sf.name
			}
			return nil, err
		}

		index := sf.index
		plan := fieldPlan[reflect.Value]{
			encode: func(v reflect.Value) Value { return fn.encode(v.FieldByIndex(index)) },
			decode: func(v reflect.Value, j Value) error { return fn.decode(j, v.FieldByIndex(index)) },
		}
		if spec.HasDefault {
			def, err := ParseJSON([]byte(defaultText))
			if err != nil {
				return nil, newConfigError(ErrInvalidDefault, typeName, spec.Key, err)
			}
			spec.Default = def
			fieldType, key := sf.typ, spec.Key
			d.checks = append(d.checks, func() error {
				scratch := reflect.New(fieldType).Elem()
				if err := fn.decode(def, scratch); err != nil {
					return newConfigError(ErrInvalidDefault, typeName, key, err)
				}
				return nil
			})
			// Decoded per use so defaults of reference type are never shared.
			plan.setDefault = func(v reflect.Value) {
				_ = fn.decode(def, v.FieldByIndex(index))
			}
		}
		specs = append(specs, spec)
		plans = append(plans, plan)
	}

	if err := checkKeys(typeName, specs); err != nil {
		return nil, err
	}
	for i := range plans {
		plans[i].spec = specs[i]
	}

	emitCodecDerived(context.Background(), typeName, ShapeProduct, len(plans), 0, time.Since(start))
	return &productNode{typ: t, fields: plans}, nil
}

func (d *derivation) buildSum(t reflect.Type) (node, error) {
	start := time.Now()
	typeName := t.String()

	decl, ok := d.r.sums[t]
	if !ok {
		return nil, newConfigError(ErrUnsupportedType, typeName, "", errors.New("interface is not a registered sum"))
	}

	specs := make([]VariantSpec, len(decl.variants))
	for i, v := range decl.variants {
		specs[i] = resolveVariant(v.typ, i, applyVariantOptions(v.opts))
	}
	spec := resolveSum(decl.opts, specs)
	if err := checkVariants(typeName, spec); err != nil {
		return nil, err
	}

	plans := make([]variantPlan[reflect.Value], len(specs))
	for i, vs := range specs {
		vn, err := d.nodeFor(vs.Type)
		if err != nil {
			return nil, err
		}
		// A variant still under construction has no fields yet; check once
		// the whole graph is bound.
		d.checks = append(d.checks, func() error {
			return checkPayloadKeys(typeName, spec.Discriminator, vs, productFields(vn))
		})
		vt := vs.Type
		plans[i] = variantPlan[reflect.Value]{
			spec:   vs,
			encode: func(v reflect.Value) Value { return vn.encode(v.Elem()) },
			decode: func(j Value) (reflect.Value, error) {
				nv := reflect.New(vt).Elem()
				if err := vn.decode(j, nv); err != nil {
					return reflect.Value{}, err
				}
				return nv, nil
			},
		}
	}

	core := newSumCore(spec, plans, func(v reflect.Value) reflect.Type {
		if v.IsNil() {
			return nil
		}
		return v.Elem().Type()
	})
	emitCodecDerived(context.Background(), typeName, ShapeSum, 0, len(plans), time.Since(start))
	return &sumNode{core: core}, nil
}
