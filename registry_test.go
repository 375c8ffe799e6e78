package derive_test

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/zoobzio/derive"
	derivetest "github.com/zoobzio/derive/testing"
)

type CacheTestUser struct {
	Name string `json:"name"`
}

// Department and Employee reference each other.
type Department struct {
	Name  string     `json:"name"`
	Staff []Employee `json:"staff"`
}

type Employee struct {
	Name string      `json:"name"`
	Dept *Department `json:"dept"`
}

// Celsius is encoded by a registered override.
type Celsius float64

type Reading struct {
	Sensor string  `json:"sensor"`
	Temp   Celsius `json:"temp"`
}

var celsiusCodec = derive.Func(
	func(c Celsius) derive.Value { return derive.String(fmt.Sprintf("%gC", float64(c))) },
	func(v derive.Value) (Celsius, error) {
		s, ok := v.AsString()
		if !ok {
			return 0, errors.New("want a string")
		}
		var f float64
		if _, err := fmt.Sscanf(s, "%gC", &f); err != nil {
			return 0, err
		}
		return Celsius(f), nil
	},
)

type Kitchen struct {
	Ptr    *int         `json:"ptr"`
	Pair   [2]string    `json:"pair"`
	Blob   []byte       `json:"blob"`
	Raw    derive.Value `json:"raw"`
	Small  uint8        `json:"small"`
	Ratio  float32      `json:"ratio"`
	Flag   bool         `json:"flag,omitempty"`
	Plain  string
	hidden string
}

type (
	WithChan   struct{ C chan int }
	BadDefault struct {
		N int `default:"\"x\""`
	}
	BadJSON struct {
		N int `default:"{"`
	}
	BadNulls struct {
		N *int `nulls:"maybe"`
	}
	DupKeys struct {
		A int `json:"x"`
		B int `json:"x"`
	}
	Inner  struct{ V int }
	Broken struct {
		Ok  Inner
		Bad chan int
	}
)

// Tagged carries a field under the default discriminator key.
type Tagged struct {
	Type string `json:"type"`
}

func (Tagged) isMark() {}

type Mark interface{ isMark() }

// Labeled carries a field under the default payload key.
type Labeled struct {
	Label string `json:"xvalue"`
	X     int    `json:"x"`
}

func (Labeled) isMark() {}

// Link is reached through its own sum, so the sum sees it half-built.
type Link struct {
	Type string `json:"type"`
	Next Chain  `json:"next"`
}

func (Link) isChain() {}

type Chain interface{ isChain() }

// Holder has a sum-typed field that is nil in the zero value.
type Holder struct {
	S derivetest.Shape
	N int
}

func TestUse_Caching(t *testing.T) {
	derive.Reset()

	c1, err := derive.Use[CacheTestUser]()
	if err != nil {
		t.Fatalf("Use() error: %v", err)
	}
	c2, err := derive.Use[CacheTestUser]()
	if err != nil {
		t.Fatalf("Use() error: %v", err)
	}
	if c1 != c2 {
		t.Error("Use() should return the cached codec")
	}

	derive.Reset()
	c3, err := derive.Use[CacheTestUser]()
	if err != nil {
		t.Fatalf("Use() error: %v", err)
	}
	if c1 == c3 {
		t.Error("Reset() should clear the cache")
	}
}

func TestDerive_Profile(t *testing.T) {
	r := derive.NewRegistry()
	c, err := derive.Derive[derivetest.Profile](r)
	if err != nil {
		t.Fatalf("Derive() error: %v", err)
	}

	p := derivetest.Profile{Name: "ada", Role: "admin", Secret: "s3cret"}
	derivetest.AssertJSON(t, c.Encode(p), `{"name":"ada","email":null,"role":"admin"}`)

	got, err := c.Decode(derivetest.MustParse(t, `{"name":"bob","email":"b@x","tags":["a"],"labels":{"k":"v"},"Secret":"x"}`))
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if got.Role != "member" {
		t.Errorf("Role = %q, want default %q", got.Role, "member")
	}
	if got.Email == nil || *got.Email != "b@x" || got.Nickname != nil {
		t.Errorf("Email/Nickname = %v/%v", got.Email, got.Nickname)
	}
	if got.Secret != "" || got.Labels["k"] != "v" || got.Tags[0] != "a" {
		t.Errorf("Decode() = %+v", got)
	}

	_, err = c.Decode(derivetest.MustParse(t, `{"name":"bob"}`))
	if !errors.Is(err, derive.ErrMissingField) {
		t.Errorf("Decode() without email error = %v, want ErrMissingField", err)
	}
}

func TestDerive_MatchesBuilder(t *testing.T) {
	r := derive.NewRegistry()
	derived, err := derive.Derive[derivetest.Profile](r)
	if err != nil {
		t.Fatalf("Derive() error: %v", err)
	}
	built := derivetest.ProfileCodec()

	p := derivetest.Profile{
		Name:     "cy",
		Nickname: derivetest.Ptr("c"),
		Tags:     []string{},
		Labels:   map[string]string{"b": "2", "a": "1"},
	}
	if a, b := derived.Encode(p), built.Encode(p); !a.Equal(b) {
		t.Errorf("derived %s != built %s", a, b)
	}
}

func TestDerive_Memoized(t *testing.T) {
	r := derive.NewRegistry()
	c1, err := derive.Derive[derivetest.Tree](r)
	if err != nil {
		t.Fatalf("Derive() error: %v", err)
	}
	c2, _ := derive.Derive[derivetest.Tree](r)
	if c1 != c2 {
		t.Error("Derive() should return the same codec per registry")
	}

	other, _ := derive.Derive[derivetest.Tree](derive.NewRegistry())
	if c1 == other {
		t.Error("registries should not share codecs")
	}
}

func TestDerive_Recursive(t *testing.T) {
	c, err := derive.Derive[derivetest.Tree](derive.NewRegistry())
	if err != nil {
		t.Fatalf("Derive() error: %v", err)
	}

	in := derivetest.SampleTree()
	v := c.Encode(in)
	derivetest.AssertJSON(t, v, `{"value":1,"children":[{"value":2},{"value":3,"children":[{"value":4}]}]}`)

	got, err := c.Decode(v)
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if got.Children[1].Children[0].Value != 4 {
		t.Errorf("Decode() = %+v", got)
	}
}

func TestDerive_MutualRecursion(t *testing.T) {
	r := derive.NewRegistry()
	c, err := derive.Derive[Department](r)
	if err != nil {
		t.Fatalf("Derive() error: %v", err)
	}

	d := Department{Name: "eng", Staff: []Employee{{Name: "ada", Dept: &Department{Name: "ops"}}}}
	v := c.Encode(d)
	derivetest.AssertJSON(t, v, `{"name":"eng","staff":[{"name":"ada","dept":{"name":"ops"}}]}`)

	got, err := c.Decode(v)
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if got.Staff[0].Dept.Name != "ops" {
		t.Errorf("Decode() = %+v", got)
	}

	ec, err := derive.Derive[Employee](r)
	if err != nil {
		t.Fatalf("Derive[Employee]() error: %v", err)
	}
	derivetest.AssertJSON(t, ec.Encode(Employee{Name: "bo"}), `{"name":"bo"}`)
}

func TestDerive_Sum(t *testing.T) {
	r := derive.NewRegistry()
	if err := derivetest.RegisterShapes(r); err != nil {
		t.Fatalf("RegisterShapes() error: %v", err)
	}
	c, err := derive.Derive[derivetest.Drawing](r)
	if err != nil {
		t.Fatalf("Derive() error: %v", err)
	}

	d := derivetest.Drawing{
		Title:  "two",
		Shapes: []derivetest.Shape{derivetest.Circle{Radius: 1.5}, derivetest.Square{Side: 2}, nil},
	}
	v := c.Encode(d)
	derivetest.AssertJSON(t, v, `{"title":"two","shapes":[{"type":"Circle","radius":1.5},{"type":"Square","side":2.0},null]}`)

	got, err := c.Decode(derivetest.MustParse(t, `{"title":"t","shapes":[{"type":"Square","side":1,"color":"red"}]}`))
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if got.Shapes[0] != (derivetest.Square{Side: 1}) {
		t.Errorf("Shapes[0] = %#v", got.Shapes[0])
	}

	_, err = c.Decode(derivetest.MustParse(t, `{"title":"t","shapes":[{"type":"Circle","radius":1},{"type":"Square","side":"x"}]}`))
	if p := derive.Path(err); p != "shapes[1]<Square>.side" {
		t.Errorf("Path() = %q, want %q", p, "shapes[1]<Square>.side")
	}

	_, err = c.Decode(derivetest.MustParse(t, `{"title":"t","shapes":[{"type":"Triangle"}]}`))
	var uv *derive.UnknownVariantError
	if !errors.As(err, &uv) || uv.Hint != "Triangle" {
		t.Errorf("Decode() error = %v, want unknown variant Triangle", err)
	}
}

func TestDerive_SumOptions(t *testing.T) {
	r := derive.NewRegistry()
	err := derive.RegisterSum[derivetest.Shape](r, derive.SumOptions{Discriminator: "kind"},
		derive.VariantOf[derivetest.Circle](),
		derive.VariantOf[derivetest.Square](derive.Hint("sq")),
	)
	if err != nil {
		t.Fatalf("RegisterSum() error: %v", err)
	}
	c, err := derive.Derive[derivetest.Shape](r)
	if err != nil {
		t.Fatalf("Derive() error: %v", err)
	}

	derivetest.AssertJSON(t, c.Encode(derivetest.Square{Side: 3}), `{"kind":"sq","side":3.0}`)

	got, err := c.Decode(derivetest.MustParse(t, `{"kind":"Circle","radius":2}`))
	if err != nil || got != (derivetest.Circle{Radius: 2}) {
		t.Errorf("Decode() = %#v, %v", got, err)
	}
}

func TestDerive_UnregisteredInterface(t *testing.T) {
	r := derive.NewRegistry()

	_, err := derive.Derive[derivetest.Drawing](r)
	if !errors.Is(err, derive.ErrUnsupportedType) {
		t.Fatalf("Derive() error = %v, want ErrUnsupportedType", err)
	}
	var ce *derive.ConfigError
	if !errors.As(err, &ce) || ce.Field != "Shapes" {
		t.Errorf("ConfigError = %+v, want Field Shapes", ce)
	}

	// The failed attempt leaves nothing behind; registering now succeeds.
	if err := derivetest.RegisterShapes(r); err != nil {
		t.Fatalf("RegisterShapes() after failure error: %v", err)
	}
	if _, err := derive.Derive[derivetest.Drawing](r); err != nil {
		t.Errorf("Derive() after registering error: %v", err)
	}
}

func TestDerive_Rollback(t *testing.T) {
	r := derive.NewRegistry()

	if _, err := derive.Derive[Broken](r); !errors.Is(err, derive.ErrUnsupportedType) {
		t.Fatalf("Derive[Broken]() error = %v, want ErrUnsupportedType", err)
	}

	// Inner was derived during the failed attempt but not kept.
	override := derive.Func(
		func(Inner) derive.Value { return derive.String("inner") },
		func(derive.Value) (Inner, error) { return Inner{}, nil },
	)
	if err := derive.Register[Inner](r, override); err != nil {
		t.Errorf("Register[Inner]() error = %v, want nil after rollback", err)
	}
}

func TestDerive_Unsupported(t *testing.T) {
	r := derive.NewRegistry()

	tests := []struct {
		name  string
		fn    func() error
		field string
	}{
		{"chan", func() error { _, err := derive.Derive[chan int](r); return err }, ""},
		{"func", func() error { _, err := derive.Derive[func()](r); return err }, ""},
		{"complex", func() error { _, err := derive.Derive[complex128](r); return err }, ""},
		{"non-string map key", func() error { _, err := derive.Derive[map[int]string](r); return err }, ""},
		{"chan field", func() error { _, err := derive.Derive[WithChan](r); return err }, "C"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.fn()
			if !errors.Is(err, derive.ErrUnsupportedType) {
				t.Fatalf("Derive() error = %v, want ErrUnsupportedType", err)
			}
			var ce *derive.ConfigError
			if !errors.As(err, &ce) {
				t.Fatalf("error %T is not a *ConfigError", err)
			}
			if ce.Field != tt.field {
				t.Errorf("Field = %q, want %q", ce.Field, tt.field)
			}
		})
	}
}

func TestDerive_TagErrors(t *testing.T) {
	r := derive.NewRegistry()

	tests := []struct {
		name string
		fn   func() error
		is   error
	}{
		{"default of the wrong type", func() error { _, err := derive.Derive[BadDefault](r); return err }, derive.ErrInvalidDefault},
		{"default that is not JSON", func() error { _, err := derive.Derive[BadJSON](r); return err }, derive.ErrInvalidDefault},
		{"unknown nulls policy", func() error { _, err := derive.Derive[BadNulls](r); return err }, derive.ErrInvalidTag},
		{"duplicate key", func() error { _, err := derive.Derive[DupKeys](r); return err }, derive.ErrDuplicateKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.fn(); !errors.Is(err, tt.is) {
				t.Errorf("Derive() error = %v, want %v", err, tt.is)
			}
		})
	}
}

func TestDerive_Kitchen(t *testing.T) {
	c, err := derive.Derive[Kitchen](derive.NewRegistry())
	if err != nil {
		t.Fatalf("Derive() error: %v", err)
	}

	in := Kitchen{
		Pair:   [2]string{"x", "y"},
		Blob:   []byte("hi"),
		Raw:    derivetest.MustParse(t, `{"k":[1]}`),
		Small:  7,
		Ratio:  0.5,
		Plain:  "p",
		hidden: "h",
	}
	v := c.Encode(in)
	derivetest.AssertJSON(t, v, `{"pair":["x","y"],"blob":"aGk=","raw":{"k":[1]},"small":7,"ratio":0.5,"flag":false,"Plain":"p"}`)

	got, err := c.Decode(v)
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if got.Ptr != nil || got.Pair != in.Pair || string(got.Blob) != "hi" || !got.Raw.Equal(in.Raw) ||
		got.Small != 7 || got.Ratio != 0.5 || got.Plain != "p" || got.hidden != "" {
		t.Errorf("Decode() = %+v", got)
	}

	tests := []struct {
		name string
		in   string
		path string
	}{
		{"short array", `{"pair":["x"],"small":1,"ratio":1,"flag":true,"Plain":""}`, "pair"},
		{"uint8 overflow", `{"pair":["x","y"],"small":256,"ratio":1,"flag":true,"Plain":""}`, "small"},
		{"bad base64", `{"pair":["x","y"],"blob":"!","small":1,"ratio":1,"flag":true,"Plain":""}`, "blob"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Decode(derivetest.MustParse(t, tt.in))
			if err == nil {
				t.Fatal("Decode() should fail")
			}
			if p := derive.Path(err); p != tt.path {
				t.Errorf("Path() = %q, want %q", p, tt.path)
			}
		})
	}
}

func TestRegister_Override(t *testing.T) {
	r := derive.NewRegistry()
	if err := derive.Register[Celsius](r, celsiusCodec); err != nil {
		t.Fatalf("Register() error: %v", err)
	}

	c, err := derive.Derive[Reading](r)
	if err != nil {
		t.Fatalf("Derive() error: %v", err)
	}
	v := c.Encode(Reading{Sensor: "s1", Temp: 21.5})
	derivetest.AssertJSON(t, v, `{"sensor":"s1","temp":"21.5C"}`)

	got, err := c.Decode(v)
	if err != nil || got.Temp != 21.5 {
		t.Errorf("Decode() = %+v, %v", got, err)
	}

	direct, err := derive.Derive[Celsius](r)
	if err != nil {
		t.Fatalf("Derive[Celsius]() error: %v", err)
	}
	derivetest.AssertJSON(t, direct.Encode(3), `"3C"`)
}

func TestRegister_Sealed(t *testing.T) {
	r := derive.NewRegistry()
	if _, err := derive.Derive[Reading](r); err != nil {
		t.Fatalf("Derive() error: %v", err)
	}

	if err := derive.Register[Reading](r, derive.Func(
		func(Reading) derive.Value { return derive.Null() },
		func(derive.Value) (Reading, error) { return Reading{}, nil },
	)); !errors.Is(err, derive.ErrSealed) {
		t.Errorf("Register[Reading]() error = %v, want ErrSealed", err)
	}

	// Celsius was derived as a field of Reading.
	if err := derive.Register[Celsius](r, celsiusCodec); !errors.Is(err, derive.ErrSealed) {
		t.Errorf("Register[Celsius]() error = %v, want ErrSealed", err)
	}
}

func TestRegisterSum_Sealed(t *testing.T) {
	r := derive.NewRegistry()
	if err := derivetest.RegisterShapes(r); err != nil {
		t.Fatalf("RegisterShapes() error: %v", err)
	}
	if err := derivetest.RegisterShapes(r); err != nil {
		t.Errorf("re-registering before derivation error = %v, want nil", err)
	}
	if _, err := derive.Derive[derivetest.Shape](r); err != nil {
		t.Fatalf("Derive() error: %v", err)
	}
	if err := derivetest.RegisterShapes(r); !errors.Is(err, derive.ErrSealed) {
		t.Errorf("RegisterSum() after derivation error = %v, want ErrSealed", err)
	}
}

func TestRegisterSum_Invalid(t *testing.T) {
	r := derive.NewRegistry()

	tests := []struct {
		name string
		fn   func() error
	}{
		{"sum is not an interface", func() error {
			return derive.RegisterSum[derivetest.Circle](r, derive.SumOptions{}, derive.VariantOf[derivetest.Circle]())
		}},
		{"variant does not implement the sum", func() error {
			return derive.RegisterSum[derivetest.Shape](r, derive.SumOptions{}, derive.VariantOf[Reading]())
		}},
		{"variant is an interface", func() error {
			return derive.RegisterSum[derivetest.Shape](r, derive.SumOptions{}, derive.VariantOf[derivetest.Shape]())
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.fn(); !errors.Is(err, derive.ErrInvalidVariant) {
				t.Errorf("RegisterSum() error = %v, want ErrInvalidVariant", err)
			}
		})
	}
}

func TestRegisterSum_DerivationErrors(t *testing.T) {
	tests := []struct {
		name     string
		opts     derive.SumOptions
		variants []derive.SumVariant
		is       error
	}{
		{
			name:     "duplicate hint",
			variants: []derive.SumVariant{derive.VariantOf[derivetest.Circle](derive.Hint("x")), derive.VariantOf[derivetest.Square](derive.Hint("x"))},
			is:       derive.ErrDuplicateHint,
		},
		{
			name:     "duplicate variant",
			variants: []derive.SumVariant{derive.VariantOf[derivetest.Circle](), derive.VariantOf[derivetest.Circle](derive.Hint("c2"))},
			is:       derive.ErrDuplicateVariant,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := derive.NewRegistry()
			if err := derive.RegisterSum[derivetest.Shape](r, tt.opts, tt.variants...); err != nil {
				t.Fatalf("RegisterSum() error: %v", err)
			}
			if _, err := derive.Derive[derivetest.Shape](r); !errors.Is(err, tt.is) {
				t.Errorf("Derive() error = %v, want %v", err, tt.is)
			}
		})
	}

	t.Run("payload field under the discriminator", func(t *testing.T) {
		r := derive.NewRegistry()
		if err := derive.RegisterSum[Mark](r, derive.SumOptions{}, derive.VariantOf[Tagged]()); err != nil {
			t.Fatalf("RegisterSum() error: %v", err)
		}
		if _, err := derive.Derive[Mark](r); !errors.Is(err, derive.ErrDuplicateKey) {
			t.Errorf("Derive() error = %v, want ErrDuplicateKey", err)
		}
	})

	t.Run("payload field under the wrapper key", func(t *testing.T) {
		r := derive.NewRegistry()
		if err := derive.RegisterSum[Mark](r, derive.SumOptions{}, derive.VariantOf[Labeled]()); err != nil {
			t.Fatalf("RegisterSum() error: %v", err)
		}
		if _, err := derive.Derive[Mark](r); !errors.Is(err, derive.ErrDuplicateKey) {
			t.Errorf("Derive() error = %v, want ErrDuplicateKey", err)
		}
	})

	t.Run("collision in a variant still being derived", func(t *testing.T) {
		r := derive.NewRegistry()
		if err := derive.RegisterSum[Chain](r, derive.SumOptions{}, derive.VariantOf[Link]()); err != nil {
			t.Fatalf("RegisterSum() error: %v", err)
		}
		if _, err := derive.Derive[Link](r); !errors.Is(err, derive.ErrDuplicateKey) {
			t.Errorf("Derive[Link]() error = %v, want ErrDuplicateKey", err)
		}
		// The failed attempt is rolled back, so the sum fails the same way.
		if _, err := derive.Derive[Chain](r); !errors.Is(err, derive.ErrDuplicateKey) {
			t.Errorf("Derive[Chain]() error = %v, want ErrDuplicateKey", err)
		}
	})
}

func TestDerive_NilSumField(t *testing.T) {
	r := derive.NewRegistry()
	if err := derivetest.RegisterShapes(r); err != nil {
		t.Fatalf("RegisterShapes() error: %v", err)
	}
	c, err := derive.Derive[Holder](r)
	if err != nil {
		t.Fatalf("Derive() error: %v", err)
	}

	v := c.Encode(Holder{})
	derivetest.AssertJSON(t, v, `{"N":0}`)
	got, err := c.Decode(v)
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if got.S != nil || got.N != 0 {
		t.Errorf("Decode() = %+v, want zero Holder", got)
	}

	got, err = c.Decode(derivetest.MustParse(t, `{"S":null,"N":2}`))
	if err != nil || got.S != nil || got.N != 2 {
		t.Errorf("Decode(null S) = %+v, %v", got, err)
	}
}

func TestDerive_Fields(t *testing.T) {
	c, err := derive.Derive[*derivetest.Profile](derive.NewRegistry())
	if err != nil {
		t.Fatalf("Derive() error: %v", err)
	}
	fc, ok := c.(interface{ Fields() []derive.FieldSpec })
	if !ok {
		t.Fatalf("codec %T does not expose Fields", c)
	}

	fields := fc.Fields()
	keys := make([]string, len(fields))
	for i, f := range fields {
		keys[i] = f.Key
	}
	if fmt.Sprint(keys) != "[name email nickname role tags labels]" {
		t.Errorf("keys = %v", keys)
	}
	if fields[1].Nulls != derive.NullWrite {
		t.Errorf("email Nulls = %v, want write", fields[1].Nulls)
	}
	if !fields[3].HasDefault || !fields[3].Default.Equal(derive.String("member")) {
		t.Errorf("role = %+v", fields[3])
	}
}

func TestDerive_Concurrent(t *testing.T) {
	r := derive.NewRegistry()
	if err := derivetest.RegisterShapes(r); err != nil {
		t.Fatalf("RegisterShapes() error: %v", err)
	}

	const n = 16
	codecs := make([]derive.Codec[derivetest.Drawing], n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := derive.Derive[derivetest.Drawing](r)
			if err != nil {
				t.Errorf("Derive() error: %v", err)
				return
			}
			codecs[i] = c
			d := derivetest.Drawing{Title: "t", Shapes: []derivetest.Shape{derivetest.Circle{Radius: float64(i)}}}
			got, err := c.Decode(c.Encode(d))
			if err != nil || got.Shapes[0] != d.Shapes[0] {
				t.Errorf("round trip %d = %+v, %v", i, got, err)
			}
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		if codecs[i] != codecs[0] {
			t.Fatal("concurrent Derive() returned different codecs")
		}
	}
}
