package derive

import (
	"context"
	"time"

	"github.com/zoobzio/capitan"
)

// Shape names the kind of codec a derivation produced.
type Shape string

const (
	ShapeProduct Shape = "product"
	ShapeSum     Shape = "sum"
	ShapeLeaf    Shape = "leaf"
)

// Signals for derivation events. Encode and Decode emit nothing.
var (
	SignalCodecDerived     = capitan.NewSignal("derive.codec.derived", "Codec derived for a type")
	SignalDeriveFailed     = capitan.NewSignal("derive.codec.failed", "Codec derivation failed")
	SignalPlaceholderBound = capitan.NewSignal("derive.placeholder.bound", "Recursive reference bound to its codec")
)

// Keys for typed event data.
var (
	KeyTypeName     = capitan.NewStringKey("type_name")
	KeyShape        = capitan.NewStringKey("shape")
	KeyFieldCount   = capitan.NewIntKey("field_count")
	KeyVariantCount = capitan.NewIntKey("variant_count")
	KeyDuration     = capitan.NewDurationKey("duration")
	KeyError        = capitan.NewErrorKey("error")
)

// emitCodecDerived emits an event when a product or sum codec is built.
func emitCodecDerived(ctx context.Context, typeName string, shape Shape, fields, variants int, duration time.Duration) {
	capitan.Emit(ctx, SignalCodecDerived,
		KeyTypeName.Field(typeName),
		KeyShape.Field(string(shape)),
		KeyFieldCount.Field(fields),
		KeyVariantCount.Field(variants),
		KeyDuration.Field(duration),
	)
}

// emitDeriveFailed emits an event when derivation of a type fails.
func emitDeriveFailed(ctx context.Context, typeName string, err error) {
	capitan.Error(ctx, SignalDeriveFailed,
		KeyTypeName.Field(typeName),
		KeyError.Field(err),
	)
}

// emitPlaceholderBound emits an event when a recursive type's placeholder
// receives its codec.
func emitPlaceholderBound(ctx context.Context, typeName string) {
	capitan.Emit(ctx, SignalPlaceholderBound,
		KeyTypeName.Field(typeName),
	)
}
