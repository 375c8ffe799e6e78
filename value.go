package derive

import (
	"math"
	"strconv"
)

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

var kindNames = [...]string{
	KindNull:   "Null",
	KindBool:   "Bool",
	KindNumber: "Number",
	KindString: "String",
	KindArray:  "Array",
	KindObject: "Object",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "Kind(" + strconv.Itoa(int(k)) + ")"
}

// Member is a single key/value entry of an Object.
type Member struct {
	Key   string
	Value Value
}

// Value is an immutable JSON tree node.
//
// Numbers keep their literal text so that a parsed document prints back
// byte-for-byte. Objects are ordered member lists; keys are not required to
// be unique, and Lookup resolves duplicates to the last occurrence.
//
// The zero Value is Null.
type Value struct {
	kind    Kind
	boolean bool
	text    string // number literal or string contents
	items   []Value
	members []Member
}

// Null returns the JSON null value.
func Null() Value { return Value{} }

// Bool returns a JSON boolean.
func Bool(b bool) Value { return Value{kind: KindBool, boolean: b} }

// Number returns a JSON number from its literal text. The literal is not
// validated; use ParseJSON for untrusted input.
func Number(literal string) Value { return Value{kind: KindNumber, text: literal} }

// Int returns a JSON number holding i.
func Int(i int64) Value { return Number(strconv.FormatInt(i, 10)) }

// Uint returns a JSON number holding u.
func Uint(u uint64) Value { return Number(strconv.FormatUint(u, 10)) }

// Float returns a JSON number holding f in its shortest round-trip form,
// keeping a fractional part for integral values. NaN and infinities have no
// JSON form and return Null.
func Float(f float64) Value {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Null()
	}
	return Number(formatFloat(f, 64))
}

// String returns a JSON string.
func String(s string) Value { return Value{kind: KindString, text: s} }

// Array returns a JSON array of items.
func Array(items ...Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{kind: KindArray, items: items}
}

// Object returns a JSON object with members in the given order.
func Object(members ...Member) Value {
	if members == nil {
		members = []Member{}
	}
	return Value{kind: KindObject, members: members}
}

// Kind reports which variant v holds.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is JSON null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsBool returns the boolean and whether v is a Bool.
func (v Value) AsBool() (bool, bool) { return v.boolean, v.kind == KindBool }

// AsNumber returns the number literal and whether v is a Number.
func (v Value) AsNumber() (string, bool) {
	if v.kind != KindNumber {
		return "", false
	}
	return v.text, true
}

// AsString returns the string contents and whether v is a String.
func (v Value) AsString() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.text, true
}

// Items returns the elements of an Array, or nil for any other kind.
// The returned slice must not be modified.
func (v Value) Items() []Value { return v.items }

// Members returns the entries of an Object in order, or nil for any other
// kind. The returned slice must not be modified.
func (v Value) Members() []Member { return v.members }

// Len returns the number of elements of an Array or members of an Object.
func (v Value) Len() int {
	switch v.kind {
	case KindArray:
		return len(v.items)
	case KindObject:
		return len(v.members)
	}
	return 0
}

// Lookup returns the value stored under key in an Object.
//
// When key occurs more than once the last occurrence wins. This matches what
// a decoder gets by folding the member list into a map in order, and it is
// the only duplicate-key policy used anywhere in this package.
func (v Value) Lookup(key string) (Value, bool) {
	if v.kind != KindObject {
		return Value{}, false
	}
	for i := len(v.members) - 1; i >= 0; i-- {
		if v.members[i].Key == key {
			return v.members[i].Value, true
		}
	}
	return Value{}, false
}

// Prepend returns a copy of an Object with m placed before its existing
// members. v is not modified.
func (v Value) Prepend(m Member) Value {
	members := make([]Member, 0, len(v.members)+1)
	members = append(members, m)
	members = append(members, v.members...)
	return Value{kind: KindObject, members: members}
}

// Equal reports whether v and w are the same tree. Numbers compare by literal
// text and objects by member order.
func (v Value) Equal(w Value) bool {
	if v.kind != w.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.boolean == w.boolean
	case KindNumber, KindString:
		return v.text == w.text
	case KindArray:
		if len(v.items) != len(w.items) {
			return false
		}
		for i := range v.items {
			if !v.items[i].Equal(w.items[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if len(v.members) != len(w.members) {
			return false
		}
		for i := range v.members {
			if v.members[i].Key != w.members[i].Key || !v.members[i].Value.Equal(w.members[i].Value) {
				return false
			}
		}
		return true
	}
	return false
}

// String renders v as compact JSON.
func (v Value) String() string {
	return string(FormatJSON(v))
}
