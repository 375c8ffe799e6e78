package derive

import "sync/atomic"

// Lazy returns a placeholder that binds to build's codec on first use. Use it
// to close a cycle in hand-declared recursive types:
//
//	func treeCodec() derive.Codec[Tree] {
//	    var c derive.Codec[Tree]
//	    c = derive.MustProduct(
//	        derive.Field("value", derive.IntCodec(), func(t *Tree) *int { return &t.Value }),
//	        derive.Field("children", derive.Slice(derive.Lazy(func() derive.Codec[Tree] { return c })),
//	            func(t *Tree) *[]Tree { return &t.Children }),
//	    )
//	    return c
//	}
//
// build runs until it returns a non-nil codec; the first non-nil result is
// stored once and every later call, from any goroutine, uses that instance.
// Using the placeholder before its target exists panics.
func Lazy[T any](build func() Codec[T]) Codec[T] {
	return &lazyCodec[T]{build: build}
}

type lazyCodec[T any] struct {
	build  func() Codec[T]
	target atomic.Pointer[Codec[T]]
}

func (c *lazyCodec[T]) resolve() Codec[T] {
	if p := c.target.Load(); p != nil {
		return *p
	}
	t := c.build()
	if t == nil {
		panic("derive: lazy codec used before its target was built")
	}
	c.target.CompareAndSwap(nil, &t)
	return *c.target.Load()
}

func (c *lazyCodec[T]) Encode(v T) Value { return c.resolve().Encode(v) }

func (c *lazyCodec[T]) Decode(v Value) (T, error) { return c.resolve().Decode(v) }
