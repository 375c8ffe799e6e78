// Package testing provides shared fixtures for derive tests: a closed Shape
// sum, a recursive Tree and a tagged Profile, each with both an explicitly
// built codec and a reflective registration.
package testing

import (
	"testing"

	"github.com/zoobzio/derive"
)

// Shape is a closed sum over Circle and Square.
type Shape interface {
	isShape()
}

// Circle is a Shape variant.
type Circle struct {
	Radius float64 `json:"radius"`
}

// Square is a Shape variant.
type Square struct {
	Side float64 `json:"side"`
}

func (Circle) isShape() {}
func (Square) isShape() {}

// CircleCodec builds the Circle product explicitly.
func CircleCodec() *derive.ProductCodec[Circle] {
	return derive.MustProduct(
		derive.Field("radius", derive.Float64Codec(), func(c *Circle) *float64 { return &c.Radius }),
	)
}

// SquareCodec builds the Square product explicitly.
func SquareCodec() *derive.ProductCodec[Square] {
	return derive.MustProduct(
		derive.Field("side", derive.Float64Codec(), func(s *Square) *float64 { return &s.Side }),
	)
}

// ShapeCodec builds the Shape sum explicitly with default discriminator and
// hints.
func ShapeCodec() *derive.SumCodec[Shape] {
	return derive.MustSum[Shape](derive.SumOptions{},
		derive.Variant[Shape, Circle](CircleCodec()),
		derive.Variant[Shape, Square](SquareCodec()),
	)
}

// RegisterShapes declares Shape as a sum in r for reflective derivation.
func RegisterShapes(r *derive.Registry) error {
	return derive.RegisterSum[Shape](r, derive.SumOptions{},
		derive.VariantOf[Circle](),
		derive.VariantOf[Square](),
	)
}

// Drawing is a product holding a list of sums.
type Drawing struct {
	Title  string  `json:"title"`
	Shapes []Shape `json:"shapes"`
}

// Tree is a self-referential product.
type Tree struct {
	Value    int    `json:"value"`
	Children []Tree `json:"children"`
}

// TreeCodec builds the Tree product explicitly, closing the cycle with Lazy.
func TreeCodec() derive.Codec[Tree] {
	var c derive.Codec[Tree]
	c = derive.MustProduct(
		derive.Field("value", derive.IntCodec(), func(t *Tree) *int { return &t.Value }),
		derive.Field("children", derive.Slice(derive.Lazy(func() derive.Codec[Tree] { return c })),
			func(t *Tree) *[]Tree { return &t.Children }),
	)
	return c
}

// SampleTree returns a three-level tree.
func SampleTree() Tree {
	return Tree{
		Value: 1,
		Children: []Tree{
			{Value: 2},
			{Value: 3, Children: []Tree{{Value: 4}}},
		},
	}
}

// Profile exercises renaming, the write-nulls policy, defaults and skipped
// fields on the reflective path.
type Profile struct {
	Name     string            `json:"name"`
	Email    *string           `json:"email" nulls:"write"`
	Nickname *string           `json:"nickname"`
	Role     string            `json:"role" default:"\"member\""`
	Tags     []string          `json:"tags"`
	Labels   map[string]string `json:"labels"`
	Secret   string            `json:"-"`
}

// ProfileCodec builds the Profile product explicitly, matching the tags.
func ProfileCodec() *derive.ProductCodec[Profile] {
	return derive.MustProduct(
		derive.Field("Name", derive.StringCodec(), func(p *Profile) *string { return &p.Name },
			derive.Rename("name")),
		derive.Field("Email", derive.Optional(derive.StringCodec()), func(p *Profile) **string { return &p.Email },
			derive.Rename("email"), derive.WriteNulls()),
		derive.Field("Nickname", derive.Optional(derive.StringCodec()), func(p *Profile) **string { return &p.Nickname },
			derive.Rename("nickname")),
		derive.Field("Role", derive.StringCodec(), func(p *Profile) *string { return &p.Role },
			derive.Rename("role"), derive.Default("member")),
		derive.Field("Tags", derive.Slice(derive.StringCodec()), func(p *Profile) *[]string { return &p.Tags },
			derive.Rename("tags")),
		derive.Field("Labels", derive.Map(derive.StringCodec()), func(p *Profile) *map[string]string { return &p.Labels },
			derive.Rename("labels")),
	)
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T { return &v }

// MustParse parses JSON text, failing tb on error.
func MustParse(tb testing.TB, text string) derive.Value {
	tb.Helper()
	v, err := derive.ParseJSON([]byte(text))
	if err != nil {
		tb.Fatalf("ParseJSON(%q) error: %v", text, err)
	}
	return v
}

// AssertJSON fails tb when v does not render as want.
func AssertJSON(tb testing.TB, v derive.Value, want string) {
	tb.Helper()
	if got := v.String(); got != want {
		tb.Errorf("JSON = %s, want %s", got, want)
	}
}
