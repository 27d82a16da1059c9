package stream

import (
	"errors"

	"github.com/vnykmshr/mediaflow/pkg/async"
)

// Integer sentinels shared by every buffer in mediaflow.
const (
	// EOF is delivered in place of a count or byte when the stream has ended.
	EOF = -1

	// RequiresAsync is returned by the Try* operations when the request
	// cannot be satisfied now and must be issued through the queueing form.
	RequiresAsync = -2
)

var (
	// ErrRequiresAsync is the error form of RequiresAsync.
	ErrRequiresAsync = errors.New("stream: request requires async completion")

	// ErrNotSeekable is returned when seeking a buffer that cannot seek.
	ErrNotSeekable = errors.New("stream: buffer is not seekable")

	// ErrInvalidPosition is returned when a seek target lies outside the stream.
	ErrInvalidPosition = errors.New("stream: invalid position")
)

// Buffer is the consumer side of a byte stream with async completion.
//
// Queueing operations (Get, Bump, Peek, Next, Unget) complete through the
// buffer's dispatcher, possibly before they return. Try operations never
// queue: they either complete on the spot or return RequiresAsync.
type Buffer interface {
	CanRead() bool
	CanWrite() bool
	CanSeek() bool
	HasSize() bool

	// InAvail is the number of bytes readable without blocking.
	InAvail() int

	// Pos is the read position, in bytes from the start of the stream.
	Pos() int64

	// Seek moves the read position and returns it, or EOF when the target
	// is out of range or the buffer cannot seek. whence is io.SeekStart,
	// io.SeekCurrent or io.SeekEnd.
	Seek(offset int64, whence int) int64

	// Get fills up to len(p) bytes and reports the count, or EOF.
	Get(p []byte, done async.CountFunc)

	// Bump consumes one byte and delivers it.
	Bump(done async.ByteFunc)

	// Peek delivers the next byte without consuming it.
	Peek(done async.ByteFunc)

	// Next consumes one byte and delivers the byte after it.
	Next(done async.ByteFunc)

	// Unget moves the read position back by one byte and delivers it.
	Unget(done async.ByteFunc)

	// TryGet copies and consumes up to len(p) bytes.
	TryGet(p []byte) int

	// TryCopy copies up to len(p) bytes without consuming them.
	TryCopy(p []byte) int

	TryBump() int
	TryPeek() int

	// Acquire exposes the unread head region without consuming it. When ok
	// is false the stream has ended; an empty slice with ok true means more
	// data may still arrive. Every Acquire that reports ok must be paired
	// with Release, even when the region is empty.
	Acquire() (p []byte, ok bool)

	// Release consumes n bytes of the region returned by Acquire.
	Release(n int)

	// CloseRead stops reading. Pending requests complete with EOF.
	CloseRead() error
}
