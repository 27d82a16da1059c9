package async

import "sync/atomic"

// Op is a one-shot continuation. It owns a callable and any bound argument,
// and may be moved between goroutines until it is run.
type Op struct {
	fn  func()
	ran atomic.Bool
}

// New wraps fn in an Op.
func New(fn func()) *Op {
	if fn == nil {
		panic("async: nil op")
	}
	return &Op{fn: fn}
}

// Bind returns an Op that calls fn(v) when run.
func Bind[T any](fn func(T), v T) *Op {
	if fn == nil {
		panic("async: nil op")
	}
	return &Op{fn: func() { fn(v) }}
}

// Run invokes the callable. An Op runs exactly once; running it again panics.
func (o *Op) Run() {
	if !o.ran.CompareAndSwap(false, true) {
		panic("async: op already run")
	}
	fn := o.fn
	o.fn = nil
	fn()
}

// Done reports whether the op has been run.
func (o *Op) Done() bool {
	return o.ran.Load()
}

// CountFunc receives the number of bytes a request transferred, or
// stream.EOF.
type CountFunc func(n int)

// ByteFunc receives a byte value in 0..255, or stream.EOF.
type ByteFunc func(c int)

// Count binds a count completion.
func Count(fn CountFunc, n int) *Op {
	return Bind(fn, n)
}

// Byte binds a byte completion.
func Byte(fn ByteFunc, c int) *Op {
	return Bind(fn, c)
}
