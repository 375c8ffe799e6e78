package derive

import (
	"errors"
	"reflect"
	"testing"
)

type figure interface{ isFigure() }

type Circle struct{ Radius float64 }
type Square struct{ Side float64 }
type Triangle struct{ Base, Height float64 }
type Label string
type Tagged struct{ Type string }
type Boxed struct {
	Label string
	X     int
}

func (Circle) isFigure()   {}
func (Square) isFigure()   {}
func (Triangle) isFigure() {}
func (Label) isFigure()    {}
func (Tagged) isFigure()   {}
func (Boxed) isFigure()    {}

type notFigure struct{}

var (
	circleCodec = MustProduct(
		Field("radius", Float64Codec(), func(c *Circle) *float64 { return &c.Radius }),
	)
	squareCodec = MustProduct(
		Field("side", Float64Codec(), func(s *Square) *float64 { return &s.Side }),
	)
	labelCodec = Func(
		func(l Label) Value { return String(string(l)) },
		func(v Value) (Label, error) {
			s, err := StringCodec().Decode(v)
			return Label(s), err
		},
	)
)

func figureCodec(t *testing.T, opts SumOptions, variants ...VariantDef[figure]) *SumCodec[figure] {
	t.Helper()
	if variants == nil {
		variants = []VariantDef[figure]{
			Variant[figure, Circle](circleCodec),
			Variant[figure, Square](squareCodec),
			Variant[figure, Label](labelCodec),
		}
	}
	c, err := Sum(opts, variants...)
	if err != nil {
		t.Fatalf("Sum() error: %v", err)
	}
	return c
}

func TestSum_Encode(t *testing.T) {
	c := figureCodec(t, SumOptions{})

	tests := []struct {
		name string
		in   figure
		want string
	}{
		{"object payload", Circle{Radius: 1.5}, `{"type":"Circle","radius":1.5}`},
		{"second variant", Square{Side: 2}, `{"type":"Square","side":2.0}`},
		{"scalar payload wrapped", Label("hi"), `{"type":"Label","xvalue":"hi"}`},
		{"nil", nil, `null`},
		{"outside the variant set", Triangle{}, `null`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.Encode(tt.in).String(); got != tt.want {
				t.Errorf("Encode() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestSum_Decode(t *testing.T) {
	c := figureCodec(t, SumOptions{})

	tests := []struct {
		name string
		in   string
		want figure
	}{
		{"object payload", `{"type":"Circle","radius":1.5}`, Circle{Radius: 1.5}},
		{"discriminator anywhere", `{"side":3,"type":"Square"}`, Square{Side: 3}},
		{"foreign keys ignored", `{"type":"Circle","radius":2,"color":"red"}`, Circle{Radius: 2}},
		{"wrapped payload", `{"type":"Label","xvalue":"hi"}`, Label("hi")},
		{"wrapped object payload", `{"type":"Circle","xvalue":{"radius":4}}`, Circle{Radius: 4}},
		{"null", `null`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.Decode(parse(t, tt.in))
			if err != nil {
				t.Fatalf("Decode() error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Decode() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestSum_DecodeErrors(t *testing.T) {
	c := figureCodec(t, SumOptions{})

	tests := []struct {
		name string
		in   string
		is   error
		path string
	}{
		{"not an object", `"Circle"`, ErrShape, ""},
		{"missing discriminator", `{"radius":1}`, ErrDiscriminator, ""},
		{"non-string discriminator", `{"type":1}`, ErrDiscriminator, ""},
		{"unknown hint", `{"type":"Triangle"}`, ErrUnknownVariant, ""},
		{"payload failure", `{"type":"Circle","radius":"big"}`, ErrShape, "<Circle>.radius"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.Decode(parse(t, tt.in))
			if !errors.Is(err, tt.is) {
				t.Fatalf("Decode() error = %v, want %v", err, tt.is)
			}
			if p := Path(err); p != tt.path {
				t.Errorf("Path() = %q, want %q", p, tt.path)
			}
			if got != nil {
				t.Errorf("failed Decode() returned %#v", got)
			}
		})
	}
}

func TestSum_DiscriminatorIsShapeError(t *testing.T) {
	c := figureCodec(t, SumOptions{})

	for _, in := range []string{`{"radius":1}`, `{"type":null}`, `{"type":["Circle"]}`} {
		_, err := c.Decode(parse(t, in))
		if !errors.Is(err, ErrDiscriminator) || !errors.Is(err, ErrShape) {
			t.Errorf("Decode(%s) error = %v, want ErrDiscriminator and ErrShape", in, err)
		}
	}
}

func TestSum_NilRoundTrip(t *testing.T) {
	type holder struct {
		Fig figure
		N   int
	}
	c := MustProduct(
		Field[holder, figure]("fig", figureCodec(t, SumOptions{}), func(h *holder) *figure { return &h.Fig }),
		Field("n", IntCodec(), func(h *holder) *int { return &h.N }),
	)

	v := c.Encode(holder{})
	if got := v.String(); got != `{"n":0}` {
		t.Fatalf("Encode() = %s, want %s", got, `{"n":0}`)
	}
	got, err := c.Decode(v)
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if got.Fig != nil {
		t.Errorf("Fig = %#v, want nil", got.Fig)
	}
}

func TestSum_UnknownVariantHint(t *testing.T) {
	c := figureCodec(t, SumOptions{})

	_, err := c.Decode(parse(t, `{"type":"Triangle"}`))
	var uv *UnknownVariantError
	if !errors.As(err, &uv) {
		t.Fatalf("Decode() error = %v, want *UnknownVariantError", err)
	}
	if uv.Hint != "Triangle" {
		t.Errorf("Hint = %q, want %q", uv.Hint, "Triangle")
	}
}

func TestSum_CustomDiscriminatorAndHints(t *testing.T) {
	c := figureCodec(t, SumOptions{Discriminator: "kind"},
		Variant[figure, Circle](circleCodec, Hint("circle")),
		Variant[figure, Label](labelCodec, Hint("label"), PayloadField("text")),
	)

	if got := c.Encode(Circle{Radius: 1}).String(); got != `{"kind":"circle","radius":1.0}` {
		t.Errorf("Encode(Circle) = %s", got)
	}
	if got := c.Encode(Label("x")).String(); got != `{"kind":"label","text":"x"}` {
		t.Errorf("Encode(Label) = %s", got)
	}

	got, err := c.Decode(parse(t, `{"kind":"label","text":"y"}`))
	if err != nil || got != Label("y") {
		t.Errorf("Decode() = %#v, %v", got, err)
	}
	if _, err := c.Decode(parse(t, `{"type":"circle"}`)); !errors.Is(err, ErrDiscriminator) {
		t.Errorf("Decode() with the default key should fail, got %v", err)
	}
}

func TestSum_RoundTrip(t *testing.T) {
	c := figureCodec(t, SumOptions{})

	for _, in := range []figure{Circle{Radius: 0.25}, Square{Side: 10}, Label("")} {
		got, err := c.Decode(c.Encode(in))
		if err != nil {
			t.Fatalf("Decode(Encode(%#v)) error: %v", in, err)
		}
		if got != in {
			t.Errorf("round trip = %#v, want %#v", got, in)
		}
	}
}

func TestSum_ConfigErrors(t *testing.T) {
	taggedCodec := MustProduct(
		Field("type", StringCodec(), func(t *Tagged) *string { return &t.Type }),
	)
	boxedCodec := MustProduct(
		Field("label", StringCodec(), func(b *Boxed) *string { return &b.Label }),
		Field("x", IntCodec(), func(b *Boxed) *int { return &b.X }),
	)
	wrappedCodec := MustProduct(
		Field("xvalue", StringCodec(), func(b *Boxed) *string { return &b.Label }),
		Field("x", IntCodec(), func(b *Boxed) *int { return &b.X }),
	)

	tests := []struct {
		name     string
		variants []VariantDef[figure]
		opts     SumOptions
		is       error
	}{
		{
			name: "duplicate hint",
			variants: []VariantDef[figure]{
				Variant[figure, Circle](circleCodec, Hint("x")),
				Variant[figure, Square](squareCodec, Hint("x")),
			},
			is: ErrDuplicateHint,
		},
		{
			name: "duplicate variant",
			variants: []VariantDef[figure]{
				Variant[figure, Circle](circleCodec),
				Variant[figure, Circle](circleCodec, Hint("other")),
			},
			is: ErrDuplicateVariant,
		},
		{
			name:     "variant does not implement the sum",
			variants: []VariantDef[figure]{Variant[figure, notFigure](Func(func(notFigure) Value { return Null() }, func(Value) (notFigure, error) { return notFigure{}, nil }))},
			is:       ErrInvalidVariant,
		},
		{
			name:     "payload field under the discriminator key",
			variants: []VariantDef[figure]{Variant[figure, Tagged](taggedCodec)},
			is:       ErrDuplicateKey,
		},
		{
			name:     "product field under the default payload field",
			variants: []VariantDef[figure]{Variant[figure, Boxed](wrappedCodec)},
			is:       ErrDuplicateKey,
		},
		{
			name:     "product field under a custom payload field",
			variants: []VariantDef[figure]{Variant[figure, Boxed](boxedCodec, PayloadField("x"))},
			is:       ErrDuplicateKey,
		},
		{
			name:     "payload field under a custom discriminator",
			variants: []VariantDef[figure]{Variant[figure, Circle](circleCodec)},
			opts:     SumOptions{Discriminator: "radius"},
			is:       ErrDuplicateKey,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Sum(tt.opts, tt.variants...)
			if !errors.Is(err, tt.is) {
				t.Fatalf("Sum() error = %v, want %v", err, tt.is)
			}
			var ce *ConfigError
			if !errors.As(err, &ce) {
				t.Errorf("Sum() error %T is not a *ConfigError", err)
			}
		})
	}
}

func TestSum_NotAnInterface(t *testing.T) {
	_, err := Sum[Circle](SumOptions{}, Variant[Circle, Circle](circleCodec))
	if !errors.Is(err, ErrInvalidVariant) {
		t.Fatalf("Sum[Circle]() error = %v, want ErrInvalidVariant", err)
	}
}

func TestMustSum_Panics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("MustSum() should panic on duplicate hints")
		}
	}()
	MustSum[figure](SumOptions{},
		Variant[figure, Circle](circleCodec, Hint("x")),
		Variant[figure, Square](squareCodec, Hint("x")),
	)
}

func TestSum_Spec(t *testing.T) {
	c := figureCodec(t, SumOptions{})

	spec := c.Spec()
	if spec.Discriminator != "type" {
		t.Errorf("Discriminator = %q, want %q", spec.Discriminator, "type")
	}
	if len(spec.Variants) != 3 {
		t.Fatalf("Variants len = %d, want 3", len(spec.Variants))
	}
	want := []VariantSpec{
		{Type: reflect.TypeFor[Circle](), Hint: "Circle", PayloadField: "xvalue", Index: 0},
		{Type: reflect.TypeFor[Square](), Hint: "Square", PayloadField: "xvalue", Index: 1},
		{Type: reflect.TypeFor[Label](), Hint: "Label", PayloadField: "xvalue", Index: 2},
	}
	for i, w := range want {
		if spec.Variants[i] != w {
			t.Errorf("Variants[%d] = %+v, want %+v", i, spec.Variants[i], w)
		}
	}
}
