// Package derive builds JSON codecs for Go types from a description of their
// shape.
//
// A product (struct) encodes as a JSON object with one member per field, in
// declaration order. A sum (a closed set of variant types behind an
// interface) encodes as a tagged object whose discriminator names the
// variant. Codecs convert between Go values and an ordered JSON tree (Value);
// a Format renders that tree as bytes.
//
// # Explicit Builders
//
// Products and sums can be declared field by field:
//
//	type Circle struct{ Radius float64 }
//	type Square struct{ Side float64 }
//
//	circle := derive.MustProduct(
//	    derive.Field("radius", derive.Float64Codec(), func(c *Circle) *float64 { return &c.Radius }),
//	)
//	square := derive.MustProduct(
//	    derive.Field("side", derive.Float64Codec(), func(s *Square) *float64 { return &s.Side }),
//	)
//	shapes := derive.MustSum[Shape](derive.SumOptions{},
//	    derive.Variant[Shape, Circle](circle),
//	    derive.Variant[Shape, Square](square),
//	)
//
//	shapes.Encode(Circle{Radius: 1.5})
//	// {"type":"Circle","radius":1.5}
//
// # Reflective Derivation
//
// Derive and Use build the same codecs from struct definitions:
//
//	type Profile struct {
//	    Name  string  `json:"name"`
//	    Email *string `json:"email" nulls:"write"`
//	    Role  string  `json:"role" default:"\"member\""`
//	}
//
//	c, err := derive.Use[Profile]()
//
// Recognized tags:
//
//	json:"key"        - Member key (json:"-" skips the field)
//	nulls:"write"     - Emit null members; the key becomes required on decode
//	default:"<json>"  - Value decoded when the key is absent
//
// Interfaces become sums once their variants are registered:
//
//	derive.RegisterSum[Shape](derive.DefaultRegistry(), derive.SumOptions{},
//	    derive.VariantOf[Circle](),
//	    derive.VariantOf[Square](derive.Hint("sq")),
//	)
//
// Each type is derived once per Registry; recursive types resolve through a
// placeholder that is bound before Derive returns.
//
// # Null Handling
//
// Fields skip null members by default. On decode, an absent key falls back to
// the field's default, then fails for NullWrite fields, and otherwise decodes
// null with the field codec (so optional fields become nil).
//
// # Sum Encoding
//
// The discriminator (default "type") comes first. Object payloads contribute
// their members after it; any other payload sits under the variant's payload
// field (default "xvalue"). Hints default to the variant's short type name.
//
// # Formats
//
// The following Format implementations are available as subpackages:
//
//   - json - JSON text (application/json), with a JSONC variant
//   - yaml - YAML documents (application/yaml)
//
// # Errors
//
// Decode failures carry their position; Path renders it:
//
//	_, err := c.Decode(v)
//	derive.Path(err) // "shapes[2]<Circle>.radius"
//
// Derivation failures are *ConfigError values wrapping a sentinel such as
// ErrDuplicateKey or ErrDuplicateHint.
//
// # Observability
//
// Derivation emits capitan signals (SignalCodecDerived, SignalDeriveFailed,
// SignalPlaceholderBound). Encode and Decode emit nothing.
package derive
