package derive

import (
	"encoding/base64"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/zoobzio/sentinel"
)

// Struct tags read by the reflective driver.
const (
	tagJSON    = "json"    // json:"key" renames, json:"-" skips
	tagNulls   = "nulls"   // nulls:"write" or nulls:"skip"
	tagDefault = "default" // default:"<json text>"
)

func init() {
	// Register tags with sentinel so scanned metadata carries them
	sentinel.Tag(tagJSON)
	sentinel.Tag(tagNulls)
	sentinel.Tag(tagDefault)
}

// node is a derived codec over reflect.Value. decode writes into dst, which
// must be settable, and leaves it untouched on failure.
type node interface {
	encode(v reflect.Value) Value
	decode(j Value, dst reflect.Value) error
}

var valueType = reflect.TypeFor[Value]()

// placeholder stands in for a type while its body is derived. It is bound
// exactly once, before the registry lock that guards derivation is released.
type placeholder struct {
	typ    reflect.Type
	target atomic.Pointer[node]
	refs   int
}

func (p *placeholder) bind(n node) { p.target.Store(&n) }

func (p *placeholder) resolve() node {
	n := p.target.Load()
	if n == nil {
		panic(fmt.Sprintf("derive: codec for %s used before derivation completed", p.typ))
	}
	return *n
}

func (p *placeholder) encode(v reflect.Value) Value { return p.resolve().encode(v) }

func (p *placeholder) decode(j Value, dst reflect.Value) error { return p.resolve().decode(j, dst) }

type boolNode struct{}

func (boolNode) encode(v reflect.Value) Value { return Bool(v.Bool()) }

func (boolNode) decode(j Value, dst reflect.Value) error {
	b, ok := j.AsBool()
	if !ok {
		return shapeError(KindBool, j)
	}
	dst.SetBool(b)
	return nil
}

type intNode struct{ bits int }

func (intNode) encode(v reflect.Value) Value { return Int(v.Int()) }

func (n intNode) decode(j Value, dst reflect.Value) error {
	i, err := decodeInt(j, n.bits)
	if err != nil {
		return err
	}
	dst.SetInt(i)
	return nil
}

type uintNode struct{ bits int }

func (uintNode) encode(v reflect.Value) Value { return Uint(v.Uint()) }

func (n uintNode) decode(j Value, dst reflect.Value) error {
	u, err := decodeUint(j, n.bits)
	if err != nil {
		return err
	}
	dst.SetUint(u)
	return nil
}

type floatNode struct{ bits int }

func (n floatNode) encode(v reflect.Value) Value {
	f := v.Float()
	if n.bits == 32 {
		if Float(f).IsNull() {
			return Null()
		}
		return Number(formatFloat(f, 32))
	}
	return Float(f)
}

func (n floatNode) decode(j Value, dst reflect.Value) error {
	f, err := decodeFloat(j, n.bits)
	if err != nil {
		return err
	}
	dst.SetFloat(f)
	return nil
}

type stringNode struct{}

func (stringNode) encode(v reflect.Value) Value { return String(v.String()) }

func (stringNode) decode(j Value, dst reflect.Value) error {
	s, ok := j.AsString()
	if !ok {
		return shapeError(KindString, j)
	}
	dst.SetString(s)
	return nil
}

type rawNode struct{}

func (rawNode) encode(v reflect.Value) Value { return v.Interface().(Value) }

func (rawNode) decode(j Value, dst reflect.Value) error {
	dst.Set(reflect.ValueOf(j))
	return nil
}

type bytesNode struct{ typ reflect.Type }

func (bytesNode) encode(v reflect.Value) Value {
	if v.IsNil() {
		return Null()
	}
	return String(base64.StdEncoding.EncodeToString(v.Bytes()))
}

func (n bytesNode) decode(j Value, dst reflect.Value) error {
	b, err := bytesCodec{}.Decode(j)
	if err != nil {
		return err
	}
	if b == nil {
		dst.Set(reflect.Zero(n.typ))
		return nil
	}
	dst.SetBytes(b)
	return nil
}

type pointerNode struct {
	typ  reflect.Type
	elem node
}

func (n *pointerNode) encode(v reflect.Value) Value {
	if v.IsNil() {
		return Null()
	}
	return n.elem.encode(v.Elem())
}

func (n *pointerNode) decode(j Value, dst reflect.Value) error {
	if j.IsNull() {
		dst.Set(reflect.Zero(n.typ))
		return nil
	}
	p := reflect.New(n.typ.Elem())
	if err := n.elem.decode(j, p.Elem()); err != nil {
		return err
	}
	dst.Set(p)
	return nil
}

type sliceNode struct {
	typ  reflect.Type
	elem node
}

func (n *sliceNode) encode(v reflect.Value) Value {
	if v.IsNil() {
		return Null()
	}
	items := make([]Value, v.Len())
	for i := range items {
		items[i] = n.elem.encode(v.Index(i))
	}
	return Array(items...)
}

func (n *sliceNode) decode(j Value, dst reflect.Value) error {
	if j.IsNull() {
		dst.Set(reflect.Zero(n.typ))
		return nil
	}
	if j.Kind() != KindArray {
		return shapeError(KindArray, j)
	}
	items := j.Items()
	s := reflect.MakeSlice(n.typ, len(items), len(items))
	for i, item := range items {
		if err := n.elem.decode(item, s.Index(i)); err != nil {
			return &IndexError{Index: i, Cause: err}
		}
	}
	dst.Set(s)
	return nil
}

type arrayNode struct {
	typ  reflect.Type
	elem node
}

func (n *arrayNode) encode(v reflect.Value) Value {
	items := make([]Value, v.Len())
	for i := range items {
		items[i] = n.elem.encode(v.Index(i))
	}
	return Array(items...)
}

func (n *arrayNode) decode(j Value, dst reflect.Value) error {
	if j.IsNull() {
		dst.Set(reflect.Zero(n.typ))
		return nil
	}
	if j.Kind() != KindArray {
		return shapeError(KindArray, j)
	}
	if j.Len() != n.typ.Len() {
		return fmt.Errorf("array of %d elements, want %d", j.Len(), n.typ.Len())
	}
	a := reflect.New(n.typ).Elem()
	for i, item := range j.Items() {
		if err := n.elem.decode(item, a.Index(i)); err != nil {
			return &IndexError{Index: i, Cause: err}
		}
	}
	dst.Set(a)
	return nil
}

type mapNode struct {
	typ  reflect.Type
	elem node
}

func (n *mapNode) encode(v reflect.Value) Value {
	if v.IsNil() {
		return Null()
	}
	keys := v.MapKeys()
	slices.SortFunc(keys, func(a, b reflect.Value) int {
		return strings.Compare(a.String(), b.String())
	})
	members := make([]Member, len(keys))
	for i, k := range keys {
		members[i] = Member{Key: k.String(), Value: n.elem.encode(v.MapIndex(k))}
	}
	return Object(members...)
}

func (n *mapNode) decode(j Value, dst reflect.Value) error {
	if j.IsNull() {
		dst.Set(reflect.Zero(n.typ))
		return nil
	}
	if j.Kind() != KindObject {
		return shapeError(KindObject, j)
	}
	m := reflect.MakeMapWithSize(n.typ, j.Len())
	keyType := n.typ.Key()
	for _, member := range j.Members() {
		e := reflect.New(n.typ.Elem()).Elem()
		if err := n.elem.decode(member.Value, e); err != nil {
			return &FieldError{Key: member.Key, Cause: err}
		}
		m.SetMapIndex(reflect.ValueOf(member.Key).Convert(keyType), e)
	}
	dst.Set(m)
	return nil
}

// productNode is a struct codec; its plans address fields by index.
type productNode struct {
	typ    reflect.Type
	fields []fieldPlan[reflect.Value]
}

func (n *productNode) encode(v reflect.Value) Value {
	return encodeProduct(n.fields, v)
}

func (n *productNode) decode(j Value, dst reflect.Value) error {
	tmp := reflect.New(n.typ).Elem()
	if err := decodeProduct(n.fields, j, tmp); err != nil {
		return err
	}
	dst.Set(tmp)
	return nil
}

// sumNode is an interface codec over a registered closed variant set.
type sumNode struct {
	core *sumCore[reflect.Value]
}

func (n *sumNode) encode(v reflect.Value) Value { return n.core.encode(v) }

func (n *sumNode) decode(j Value, dst reflect.Value) error {
	v, err := n.core.decode(j)
	if err != nil {
		return err
	}
	if !v.IsValid() {
		dst.Set(reflect.Zero(dst.Type()))
		return nil
	}
	dst.Set(v)
	return nil
}

// overrideNode adapts an explicitly registered Codec[T].
type overrideNode[T any] struct {
	codec Codec[T]
}

func (n overrideNode[T]) encode(v reflect.Value) Value {
	x, _ := v.Interface().(T)
	return n.codec.Encode(x)
}

func (n overrideNode[T]) decode(j Value, dst reflect.Value) error {
	x, err := n.codec.Decode(j)
	if err != nil {
		return err
	}
	dst.Set(reflect.ValueOf(&x).Elem())
	return nil
}

// productFields returns the field metadata of n when it is (a pointer to) a
// product.
func productFields(n node) []FieldSpec {
	switch p := n.(type) {
	case *productNode:
		return fieldSpecs(p.fields)
	case *pointerNode:
		return productFields(p.elem)
	case *placeholder:
		if t := p.target.Load(); t != nil {
			return productFields(*t)
		}
	}
	return nil
}

// structField is the part of a scanned field the driver needs.
type structField struct {
	name  string
	index []int
	typ   reflect.Type
	tags  map[string]string
}

// scanStruct lists the exported fields of rt in declaration order, using
// sentinel metadata when the type is known to it. Sentinel caches by bare
// type name, so the metadata is checked against rt before use.
func scanStruct(rt reflect.Type) []structField {
	if spec, ok := sentinel.Lookup(rt.Name()); ok && metadataMatches(rt, spec) {
		fields := make([]structField, 0, len(spec.Fields))
		for _, fm := range spec.Fields {
			sf := rt.FieldByIndex(fm.Index)
			if !sf.IsExported() {
				continue
			}
			tags := parseDeriveTags(sf.Tag)
			for _, key := range []string{tagJSON, tagNulls, tagDefault} {
				if val, ok := fm.Tags[key]; ok {
					tags[key] = val
				}
			}
			fields = append(fields, structField{
				name:  fm.Name,
				index: fm.Index,
				typ:   fm.ReflectType,
				tags:  tags,
			})
		}
		return fields
	}

	fields := make([]structField, 0, rt.NumField())
	for i := 0; i < rt.NumField(); i++ {
		sf := rt.Field(i)
		if !sf.IsExported() {
			continue
		}
		fields = append(fields, structField{
			name:  sf.Name,
			index: sf.Index,
			typ:   sf.Type,
			tags:  parseDeriveTags(sf.Tag),
		})
	}
	return fields
}

// metadataMatches reports whether cached metadata describes rt. Types from
// different packages (or function-local types) can share a name.
func metadataMatches(rt reflect.Type, spec sentinel.Metadata) bool {
	exported := 0
	for i := 0; i < rt.NumField(); i++ {
		if rt.Field(i).IsExported() {
			exported++
		}
	}
	if len(spec.Fields) != exported {
		return false
	}
	for _, fm := range spec.Fields {
		if len(fm.Index) != 1 || fm.Index[0] >= rt.NumField() {
			return false
		}
		sf := rt.Field(fm.Index[0])
		if sf.Name != fm.Name || sf.Type != fm.ReflectType {
			return false
		}
	}
	return true
}

// parseDeriveTags extracts the tags the driver reads from a struct tag.
func parseDeriveTags(tag reflect.StructTag) map[string]string {
	tags := make(map[string]string)
	for _, key := range []string{tagJSON, tagNulls, tagDefault} {
		if val, ok := tag.Lookup(key); ok {
			tags[key] = val
		}
	}
	return tags
}

// fieldConfigFromTags maps tags onto field customization. skip reports a
// json:"-" field. The default text is returned separately; it is parsed and
// checked against the field codec by the caller.
func fieldConfigFromTags(tags map[string]string) (cfg fieldConfig, defaultText string, skip bool, err error) {
	if name, ok := tags[tagJSON]; ok {
		name, _, _ = strings.Cut(name, ",")
		if name == "-" {
			return cfg, "", true, nil
		}
		cfg.rename = name
	}
	switch tags[tagNulls] {
	case "", "skip":
	case "write":
		cfg.writeNulls = true
	default:
		return cfg, "", false, fmt.Errorf("nulls tag %q: want \"write\" or \"skip\"", tags[tagNulls])
	}
	if text, ok := tags[tagDefault]; ok {
		cfg.hasDefault = true
		defaultText = text
	}
	return cfg, defaultText, false, nil
}
