package stream

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
)

// Reader is a blocking view of a Buffer.
type Reader struct {
	buf Buffer

	mu       sync.Mutex
	scratch  []byte
	pending  chan int // non-nil while a queued request is outstanding
	leftover []byte
	held     atomic.Int64 // len(leftover), readable without mu
	closed   atomic.Bool
}

var (
	_ io.Reader     = (*Reader)(nil)
	_ io.ByteReader = (*Reader)(nil)
	_ io.Seeker     = (*Reader)(nil)
	_ io.Closer     = (*Reader)(nil)
)

// NewReader wraps buf.
func NewReader(buf Buffer) *Reader {
	if buf == nil {
		panic("stream: nil buffer")
	}
	return &Reader{buf: buf}
}

// Buffer returns the wrapped buffer.
func (r *Reader) Buffer() Buffer {
	return r.buf
}

// IsOpen reports whether the reader can still deliver bytes. It does not
// wait for a read in progress.
func (r *Reader) IsOpen() bool {
	if r.closed.Load() {
		return false
	}
	return r.held.Load() > 0 || r.buf.CanRead()
}

// Read implements io.Reader.
func (r *Reader) Read(p []byte) (int, error) {
	return r.ReadContext(context.Background(), p)
}

// ReadContext reads up to len(p) bytes, waiting until at least one byte is
// available, the stream ends, or ctx is done.
func (r *Reader) ReadContext(ctx context.Context, p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed.Load() {
		return 0, io.ErrClosedPipe
	}
	if n := r.drainLeftover(p); n > 0 {
		return n, nil
	}

	if r.pending == nil {
		// Fast path: no queueing when the buffer can answer now.
		if n := r.buf.TryGet(p); n != RequiresAsync {
			if n <= 0 {
				return 0, io.EOF
			}
			return n, nil
		}
		r.issue(len(p))
	}

	n, err := r.wait(ctx)
	if err != nil {
		return 0, err
	}
	if n == EOF {
		return 0, io.EOF
	}
	r.setLeftover(r.scratch[:n])
	return r.drainLeftover(p), nil
}

// TryRead reads without waiting. It returns ErrRequiresAsync when no bytes
// can be delivered yet.
func (r *Reader) TryRead(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed.Load() {
		return 0, io.ErrClosedPipe
	}
	if n := r.drainLeftover(p); n > 0 {
		return n, nil
	}
	if r.pending != nil {
		select {
		case n := <-r.pending:
			r.pending = nil
			if n == EOF {
				return 0, io.EOF
			}
			r.setLeftover(r.scratch[:n])
			return r.drainLeftover(p), nil
		default:
			return 0, ErrRequiresAsync
		}
	}

	switch n := r.buf.TryGet(p); {
	case n == RequiresAsync:
		return 0, ErrRequiresAsync
	case n <= 0:
		return 0, io.EOF
	default:
		return n, nil
	}
}

// ReadByte implements io.ByteReader.
func (r *Reader) ReadByte() (byte, error) {
	return r.ReadByteContext(context.Background())
}

// ReadByteContext reads a single byte.
func (r *Reader) ReadByteContext(ctx context.Context) (byte, error) {
	var b [1]byte
	if _, err := r.ReadContext(ctx, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

// Seek implements io.Seeker for seekable buffers. An outstanding request is
// allowed to finish first and its bytes are discarded.
func (r *Reader) Seek(offset int64, whence int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed.Load() {
		return 0, io.ErrClosedPipe
	}
	if !r.buf.CanSeek() {
		return 0, ErrNotSeekable
	}
	if r.pending != nil {
		if n, _ := r.wait(context.Background()); n > 0 {
			r.setLeftover(r.scratch[:n])
		}
	}
	if whence == io.SeekCurrent {
		// The buffer has already moved past bytes we still hold.
		offset -= int64(len(r.leftover))
	}
	r.setLeftover(nil)

	pos := r.buf.Seek(offset, whence)
	if pos == EOF {
		return 0, ErrInvalidPosition
	}
	return pos, nil
}

// Close closes the read side of the buffer. A read blocked in another
// goroutine returns io.EOF.
func (r *Reader) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	return r.buf.CloseRead()
}

func (r *Reader) drainLeftover(p []byte) int {
	n := copy(p, r.leftover)
	if n == len(r.leftover) {
		r.setLeftover(nil)
	} else {
		r.setLeftover(r.leftover[n:])
	}
	return n
}

func (r *Reader) setLeftover(b []byte) {
	r.leftover = b
	r.held.Store(int64(len(b)))
}

// issue queues a request into the reader's own scratch space, so a caller
// that gives up never has its slice written later.
func (r *Reader) issue(n int) {
	if cap(r.scratch) < n {
		r.scratch = make([]byte, n)
	}
	r.scratch = r.scratch[:n]

	done := make(chan int, 1)
	r.pending = done
	r.buf.Get(r.scratch, func(n int) { done <- n })
}

func (r *Reader) wait(ctx context.Context) (int, error) {
	select {
	case n := <-r.pending:
		r.pending = nil
		return n, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// IsRequiresAsync reports whether err means a non-blocking read found no data.
func IsRequiresAsync(err error) bool {
	return errors.Is(err, ErrRequiresAsync)
}
