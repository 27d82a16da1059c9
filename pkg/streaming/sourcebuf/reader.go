package sourcebuf

import (
	"io"
	"sync"
	"sync/atomic"

	"github.com/vnykmshr/mediaflow/pkg/async"
	"github.com/vnykmshr/mediaflow/pkg/metrics"
	"github.com/vnykmshr/mediaflow/pkg/streaming/stream"
)

// Continue asks a Source to read from where its previous read ended.
const Continue = -1

// Source is a random-access byte source of known size.
type Source interface {
	// Size returns the total length in bytes.
	Size() int64

	// Read fills p from offset, or from the end of the previous read when
	// offset is Continue. A zero count means there is no more data.
	Read(p []byte, offset int64) (int, error)

	Close() error
}

// Reader is a seekable stream over a Source with a read-ahead window.
// Source reads happen synchronously inside each request; completions are
// still delivered through the dispatcher.
type Reader struct {
	src    Source
	config Config
	m      *metrics.Registry
	q      *async.Queue

	mu       sync.Mutex
	window   []byte
	pos      int64 // read position
	off      int64 // stream offset of window[0]
	fill     int   // valid bytes in window
	srcPos   int64 // where the source's last read ended, -1 if unknown
	atEnd    bool
	shortRun int
	err      error
	closed   bool
	done     atomic.Bool // mirrors closed for CanRead
	acquired int // length of the exposed region, -1 when none
}

var _ stream.Buffer = (*Reader)(nil)

// New creates a reader over src with the given window size.
func New(src Source, windowSize int) *Reader {
	if windowSize <= 0 {
		panic("window size must be positive")
	}
	r, err := NewWithConfig(src, Config{WindowSize: windowSize})
	if err != nil {
		panic(err)
	}
	return r
}

// NewWithConfig creates a reader with the specified configuration.
func NewWithConfig(src Source, config Config) (*Reader, error) {
	if src == nil {
		panic("sourcebuf: nil source")
	}
	config, err := config.withDefaults()
	if err != nil {
		return nil, err
	}
	return &Reader{
		src:      src,
		config:   config,
		m:        config.Metrics,
		q:        async.NewQueue(config.Dispatcher),
		window:   make([]byte, config.WindowSize),
		srcPos:   -1,
		acquired: -1,
	}, nil
}

// Err returns the error that ended the stream, if the source failed.
func (r *Reader) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Size returns the source length.
func (r *Reader) Size() int64 { return r.src.Size() }

// CanRead reports whether the reader is open.
func (r *Reader) CanRead() bool {
	return !r.done.Load()
}

// CanWrite is always false.
func (r *Reader) CanWrite() bool { return false }

// CanSeek is always true.
func (r *Reader) CanSeek() bool { return true }

// HasSize is always true.
func (r *Reader) HasSize() bool { return true }

// InAvail returns the unread bytes left in the window.
func (r *Reader) InAvail() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inAvail()
}

// Pos returns the read position.
func (r *Reader) Pos() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pos
}

// Seek moves the read position within [0, Size()] and returns it, or
// stream.EOF if the target is out of range. A target inside the current
// window costs no I/O; any other target refills the window there.
func (r *Reader) Seek(offset int64, whence int) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return stream.EOF
	}

	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		target = r.pos + offset
	case io.SeekEnd:
		target = r.src.Size() + offset
	default:
		r.seekResult("rejected")
		return stream.EOF
	}
	if target < 0 || target > r.src.Size() {
		r.seekResult("rejected")
		return stream.EOF
	}

	inWindow := r.fill > 0 && target >= r.off && target <= r.off+int64(r.fill)
	r.pos = target
	r.atEnd = false
	r.shortRun = 0
	if inWindow {
		r.seekResult("window")
		return r.pos
	}
	r.seekResult("refill")
	r.refill("seek")
	return r.pos
}

// Get reads up to len(p) bytes and delivers the count, or stream.EOF.
func (r *Reader) Get(p []byte, done async.CountFunc) {
	defer r.q.Flush()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.q.Push(async.Count(done, r.get(p)))
}

// Bump consumes one byte and delivers it.
func (r *Reader) Bump(done async.ByteFunc) {
	r.deliver(done, r.bump)
}

// Peek delivers the next byte without consuming it.
func (r *Reader) Peek(done async.ByteFunc) {
	r.deliver(done, r.peek)
}

// Next consumes one byte and delivers the byte after it.
func (r *Reader) Next(done async.ByteFunc) {
	r.deliver(done, r.next)
}

// Unget steps back one byte and delivers it, or stream.EOF at position 0.
func (r *Reader) Unget(done async.ByteFunc) {
	r.deliver(done, r.unget)
}

func (r *Reader) deliver(done async.ByteFunc, op func() int) {
	defer r.q.Flush()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.q.Push(async.Byte(done, op()))
}

// TryGet reads up to len(p) bytes. Source reads are synchronous, so it
// never returns stream.RequiresAsync.
func (r *Reader) TryGet(p []byte) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.get(p)
}

// TryCopy reads up to len(p) bytes without moving the read position.
func (r *Reader) TryCopy(p []byte) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	pos, atEnd, shortRun := r.pos, r.atEnd, r.shortRun
	n := r.get(p)
	r.pos, r.atEnd, r.shortRun = pos, atEnd, shortRun
	return n
}

// TryBump consumes and returns one byte.
func (r *Reader) TryBump() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bump()
}

// TryPeek returns the next byte without consuming it.
func (r *Reader) TryPeek() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.peek()
}

// Acquire exposes the unread part of the window, refilling it first if it
// is empty.
func (r *Reader) Acquire() ([]byte, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.acquired >= 0 {
		panic("sourcebuf: acquire already outstanding")
	}
	if r.closed || !r.ensure() {
		return nil, false
	}
	p := r.window[r.pos-r.off : r.fill]
	r.acquired = len(p)
	return p, true
}

// Release consumes n bytes of the region returned by Acquire.
func (r *Reader) Release(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.acquired < 0 {
		panic("sourcebuf: release without acquire")
	}
	if n < 0 || n > r.acquired {
		panic("sourcebuf: release exceeds acquired region")
	}
	r.acquired = -1
	r.pos += int64(n)
}

// CloseRead closes the reader and the underlying source.
func (r *Reader) CloseRead() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	r.done.Store(true)
	r.fill = 0
	return r.src.Close()
}

// Internals. All of the following run with r.mu held.

// inAvail is fill - (pos - off), or zero when pos is outside the window.
func (r *Reader) inAvail() int {
	if r.closed || r.fill == 0 || r.pos < r.off || r.pos > r.off+int64(r.fill) {
		return 0
	}
	return r.fill - int(r.pos-r.off)
}

func (r *Reader) get(p []byte) int {
	if r.closed {
		return stream.EOF
	}
	n := r.read(p)
	if n == 0 && len(p) > 0 {
		return stream.EOF
	}
	return n
}

// read copies from the window, refilling it from the source until p is full
// or the source is exhausted.
func (r *Reader) read(p []byte) int {
	n := 0
	for n < len(p) {
		if avail := r.inAvail(); avail > 0 {
			start := int(r.pos - r.off)
			k := copy(p[n:], r.window[start:r.fill])
			r.pos += int64(k)
			n += k
			continue
		}
		if r.atEnd || !r.refill("read") {
			break
		}
	}
	return n
}

// ensure makes at least one byte available at pos if the source has one.
func (r *Reader) ensure() bool {
	if r.inAvail() > 0 {
		return true
	}
	if r.atEnd || !r.refill("byte") {
		return false
	}
	return r.inAvail() > 0
}

// refill loads a full window starting at pos. It reports whether any bytes
// arrived. Two short reads in a row mark the end of the source.
func (r *Reader) refill(cause string) bool {
	if r.err != nil {
		return false
	}
	if r.acquired >= 0 {
		// The exposed region must stay intact until Release.
		r.window = make([]byte, len(r.window))
	}

	offset := r.pos
	arg := offset
	if offset == r.srcPos {
		arg = Continue
	}
	n, err := r.src.Read(r.window, arg)
	if n < 0 {
		n = 0
	}
	r.record(cause, n, err)

	if err != nil {
		r.err = err
		r.atEnd = true
		r.fill = 0
		return false
	}
	r.off = offset
	r.fill = n
	r.srcPos = offset + int64(n)
	if n == 0 {
		r.atEnd = true
		return false
	}
	if n < len(r.window) {
		r.shortRun++
		if r.shortRun >= 2 {
			r.atEnd = true
		}
	} else {
		r.shortRun = 0
	}
	return true
}

func (r *Reader) peek() int {
	if r.closed || !r.ensure() {
		return stream.EOF
	}
	return int(r.window[r.pos-r.off])
}

func (r *Reader) bump() int {
	c := r.peek()
	if c != stream.EOF {
		r.pos++
	}
	return c
}

func (r *Reader) next() int {
	if r.bump() == stream.EOF {
		return stream.EOF
	}
	return r.peek()
}

func (r *Reader) unget() int {
	if r.closed || r.pos == 0 {
		return stream.EOF
	}
	r.pos--
	// Stepping back before the window start drops the end marker.
	if r.pos < r.off {
		r.atEnd = false
		r.shortRun = 0
	}
	return r.peek()
}

func (r *Reader) record(cause string, n int, err error) {
	if r.m == nil {
		return
	}
	name := r.config.Name
	r.m.SourceReads.WithLabelValues(name).Inc()
	r.m.SourceBytesRead.WithLabelValues(name).Add(float64(n))
	r.m.SourceWindowRefills.WithLabelValues(name, cause).Inc()
	if err != nil {
		r.m.SourceReadErrors.WithLabelValues(name).Inc()
	}
}

func (r *Reader) seekResult(result string) {
	if r.m != nil {
		r.m.SourceSeeks.WithLabelValues(r.config.Name, result).Inc()
	}
}
