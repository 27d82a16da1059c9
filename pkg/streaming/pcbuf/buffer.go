package pcbuf

import (
	"sync"

	"github.com/valyala/bytebufferpool"

	"github.com/vnykmshr/mediaflow/pkg/async"
	"github.com/vnykmshr/mediaflow/pkg/metrics"
	"github.com/vnykmshr/mediaflow/pkg/streaming/stream"
)

var blockPool bytebufferpool.Pool

// block is a contiguous run of written bytes. Unread bytes are data[rd:].
type block struct {
	bb *bytebufferpool.ByteBuffer
	rd int
}

func newBlock(size int) *block {
	bb := blockPool.Get()
	if cap(bb.B) < size {
		bb.B = make([]byte, 0, size)
	}
	// Pooled buffers may be larger; blocks hold exactly size bytes.
	bb.B = bb.B[:0:size]
	return &block{bb: bb}
}

func (b *block) unread() []byte { return b.bb.B[b.rd:] }
func (b *block) room() int      { return cap(b.bb.B) - len(b.bb.B) }
func (b *block) free()          { blockPool.Put(b.bb); b.bb = nil }

type requestKind int

const (
	kindGet requestKind = iota
	kindBump
	kindPeek
	kindNext
	kindUnget
)

var kindNames = [...]string{"get", "bump", "peek", "next", "unget"}

func (k requestKind) String() string { return kindNames[k] }

// request is a queued read waiting for data.
type request struct {
	kind  requestKind
	p     []byte
	count async.CountFunc
	char  async.ByteFunc
}

func (r *request) need() int {
	switch r.kind {
	case kindGet:
		return len(r.p)
	case kindNext:
		return 2
	case kindUnget:
		return 0
	default:
		return 1
	}
}

// Stats is a point-in-time snapshot of a buffer's counters.
type Stats struct {
	Available    int
	TotalRead    int64
	TotalWritten int64
	Synced       int
	Blocks       int
	Pending      int
}

// Buffer is an unbounded producer/consumer byte buffer. One producer
// writes, one consumer reads through stream.Buffer operations, and queued
// reads are satisfied strictly in arrival order.
type Buffer struct {
	config Config
	m      *metrics.Registry

	mu           sync.Mutex
	blocks       []*block
	available    int
	synced       int
	totalRead    int64
	totalWritten int64
	canRead      bool
	canWrite     bool
	requests     []*request
	allocated    *block
	acquired     bool

	// Completions leave through q, never under mu.
	q *async.Queue
}

var _ stream.Buffer = (*Buffer)(nil)

// New creates a buffer with the given default block size.
func New(blockSize int) *Buffer {
	if blockSize <= 0 {
		panic("block size must be positive")
	}
	b, err := NewWithConfig(Config{BlockSize: blockSize})
	if err != nil {
		panic(err)
	}
	return b
}

// NewWithConfig creates a buffer with the specified configuration.
func NewWithConfig(config Config) (*Buffer, error) {
	config, err := config.withDefaults()
	if err != nil {
		return nil, err
	}
	return &Buffer{
		config:   config,
		m:        config.Metrics,
		q:        async.NewQueue(config.Dispatcher),
		canRead:  true,
		canWrite: true,
	}, nil
}

func (b *Buffer) flush() { b.q.Flush() }

func (b *Buffer) completeCount(fn async.CountFunc, n int) {
	b.q.Push(async.Count(fn, n))
}

func (b *Buffer) completeByte(fn async.ByteFunc, c int) {
	b.q.Push(async.Byte(fn, c))
}

// Producer side

// Write appends p and reports how many bytes were accepted. It returns 0
// when the write side is closed. After CloseRead the bytes are dropped but
// still reported as written.
func (b *Buffer) Write(p []byte) int {
	defer b.flush()
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.write(p)
}

func (b *Buffer) write(p []byte) int {
	if !b.canWrite || len(p) == 0 {
		return 0
	}
	if !b.canRead {
		b.discarded(len(p))
		return len(p)
	}

	var tail *block
	if len(b.blocks) > 0 {
		tail = b.blocks[len(b.blocks)-1]
	}
	if tail == nil || tail.room() < len(p) {
		tail = newBlock(max(len(p), b.config.BlockSize))
		b.blocks = append(b.blocks, tail)
	}
	tail.bb.B = append(tail.bb.B, p...)
	b.wrote(len(p))
	b.fulfill()
	return len(p)
}

// Put writes p and delivers the accepted count through the dispatcher, or
// stream.EOF when the write side is closed.
func (b *Buffer) Put(p []byte, done async.CountFunc) {
	defer b.flush()
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.write(p)
	if n == 0 && len(p) > 0 {
		n = stream.EOF
	}
	b.countRequest("put")
	b.completeCount(done, n)
}

// PutByte writes a single byte and delivers it back, or stream.EOF when the
// write side is closed.
func (b *Buffer) PutByte(c byte, done async.ByteFunc) {
	defer b.flush()
	b.mu.Lock()
	defer b.mu.Unlock()

	r := stream.EOF
	if b.write([]byte{c}) == 1 {
		r = int(c)
	}
	b.countRequest("put")
	b.completeByte(done, r)
}

// Alloc reserves a writable region of n bytes in a fresh block. The region
// becomes readable on Commit. Only one Alloc may be outstanding; a second
// one panics. Alloc returns nil when the write side is closed.
func (b *Buffer) Alloc(n int) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.allocated != nil {
		panic("pcbuf: alloc already outstanding")
	}
	if !b.canWrite || n <= 0 {
		return nil
	}
	b.allocated = newBlock(n)
	return b.allocated.bb.B[:n]
}

// Commit publishes the first n bytes of the region returned by Alloc.
// Commit(0) abandons the region.
func (b *Buffer) Commit(n int) {
	defer b.flush()
	b.mu.Lock()
	defer b.mu.Unlock()

	blk := b.allocated
	if blk == nil {
		panic("pcbuf: commit without alloc")
	}
	if n < 0 || n > cap(blk.bb.B) {
		panic("pcbuf: commit exceeds allocation")
	}
	b.allocated = nil

	switch {
	case n == 0 || !b.canWrite:
		blk.free()
	case !b.canRead:
		blk.free()
		b.discarded(n)
	default:
		blk.bb.B = blk.bb.B[:n]
		b.blocks = append(b.blocks, blk)
		b.wrote(n)
		b.fulfill()
	}
}

// Sync makes every byte written so far deliverable to queued reads that
// would otherwise wait for a full request.
func (b *Buffer) Sync() {
	defer b.flush()
	b.mu.Lock()
	defer b.mu.Unlock()

	b.synced = b.available
	if b.m != nil {
		b.m.BufferSyncs.WithLabelValues(b.config.Name).Inc()
	}
	b.fulfill()
}

// CloseWrite ends the stream. Every queued read is completed with whatever
// bytes remain, or stream.EOF once none do.
func (b *Buffer) CloseWrite() error {
	defer b.flush()
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.canWrite {
		return nil
	}
	b.canWrite = false
	if b.m != nil {
		b.m.BufferWriteCloses.WithLabelValues(b.config.Name).Inc()
	}
	b.fulfill()
	return nil
}

// Consumer side

// CanRead reports whether the read side is open.
func (b *Buffer) CanRead() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.canRead
}

// CanWrite reports whether the write side is open.
func (b *Buffer) CanWrite() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.canWrite
}

// CanSeek is always false.
func (b *Buffer) CanSeek() bool { return false }

// HasSize is always false; the stream length is unknown until CloseWrite.
func (b *Buffer) HasSize() bool { return false }

// InAvail returns the number of unread bytes.
func (b *Buffer) InAvail() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.available
}

// Pos returns the total number of bytes consumed.
func (b *Buffer) Pos() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.totalRead
}

// WritePos returns the total number of bytes written.
func (b *Buffer) WritePos() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.totalWritten
}

// Seek always fails with stream.EOF.
func (b *Buffer) Seek(offset int64, whence int) int64 { return stream.EOF }

// Get queues a read of up to len(p) bytes. It completes once len(p) bytes
// are available, Sync was called, or the write side closed.
func (b *Buffer) Get(p []byte, done async.CountFunc) {
	b.enqueue(&request{kind: kindGet, p: p, count: done})
}

// Bump queues a read that consumes and delivers one byte.
func (b *Buffer) Bump(done async.ByteFunc) {
	b.enqueue(&request{kind: kindBump, char: done})
}

// Peek queues a read that delivers the next byte without consuming it.
func (b *Buffer) Peek(done async.ByteFunc) {
	b.enqueue(&request{kind: kindPeek, char: done})
}

// Next queues a read that skips one byte and delivers the one after it.
func (b *Buffer) Next(done async.ByteFunc) {
	b.enqueue(&request{kind: kindNext, char: done})
}

// Unget is not supported: consumed bytes are already released, so it
// delivers stream.EOF in queue order.
func (b *Buffer) Unget(done async.ByteFunc) {
	b.enqueue(&request{kind: kindUnget, char: done})
}

func (b *Buffer) enqueue(r *request) {
	defer b.flush()
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.canRead {
		b.cancel(r)
		return
	}
	b.requests = append(b.requests, r)
	outcome := "queued"
	if len(b.requests) == 1 && !b.acquired && b.canSatisfy(r) {
		outcome = "immediate"
	}
	b.countRequest(r.kind.String(), outcome)
	b.fulfill()
}

// TryGet copies and consumes up to len(p) bytes if a Get would complete now.
func (b *Buffer) TryGet(p []byte) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := b.try(len(p))
	if n != 0 {
		return n
	}
	if n = b.drain(p); n == 0 && len(p) > 0 {
		return stream.EOF
	}
	return n
}

// TryCopy is TryGet without consuming.
func (b *Buffer) TryCopy(p []byte) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := b.try(len(p))
	if n != 0 {
		return n
	}
	if n = b.copyOut(p); n == 0 && len(p) > 0 {
		return stream.EOF
	}
	return n
}

// TryBump consumes and returns one byte.
func (b *Buffer) TryBump() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n := b.try(1); n != 0 {
		return n
	}
	return b.bump()
}

// TryPeek returns the next byte without consuming it.
func (b *Buffer) TryPeek() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n := b.try(1); n != 0 {
		return n
	}
	return b.peek()
}

// try returns 0 when a non-queueing read of need bytes may proceed, and the
// sentinel to return otherwise. Queued requests keep their place ahead of
// any synchronous read.
func (b *Buffer) try(need int) int {
	switch {
	case !b.canRead:
		return stream.EOF
	case len(b.requests) > 0 || b.acquired:
		return stream.RequiresAsync
	case b.synced > 0 || b.available >= need || !b.canWrite:
		return 0
	default:
		return stream.RequiresAsync
	}
}

// Acquire exposes the unread part of the head block.
func (b *Buffer) Acquire() ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.acquired {
		panic("pcbuf: acquire already outstanding")
	}
	if !b.canRead || (b.available == 0 && !b.canWrite) {
		return nil, false
	}
	b.acquired = true
	for _, blk := range b.blocks {
		if p := blk.unread(); len(p) > 0 {
			return p, true
		}
	}
	return nil, true
}

// Release consumes n bytes of the region returned by Acquire.
func (b *Buffer) Release(n int) {
	defer b.flush()
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.acquired {
		panic("pcbuf: release without acquire")
	}
	b.acquired = false
	if !b.canRead {
		return
	}
	if n < 0 || n > b.headLen() {
		panic("pcbuf: release exceeds acquired region")
	}
	b.consume(n)
	b.fulfill()
}

// CloseRead closes the read side. Every queued read completes with 0 or
// stream.EOF, all blocks are released, and later writes are discarded.
func (b *Buffer) CloseRead() error {
	defer b.flush()
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.canRead {
		return nil
	}
	b.canRead = false
	for _, r := range b.requests {
		b.cancel(r)
	}
	b.requests = nil
	if !b.acquired {
		for _, blk := range b.blocks {
			blk.free()
		}
	}
	b.blocks = nil
	b.available = 0
	b.synced = 0
	b.gauges()
	return nil
}

// Stats returns a snapshot of the buffer's counters.
func (b *Buffer) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		Available:    b.available,
		TotalRead:    b.totalRead,
		TotalWritten: b.totalWritten,
		Synced:       b.synced,
		Blocks:       len(b.blocks),
		Pending:      len(b.requests),
	}
}

// Internals. All of the following run with b.mu held.

func (b *Buffer) canSatisfy(r *request) bool {
	if !b.canWrite {
		return true
	}
	if r.kind == kindNext {
		return b.available >= 2
	}
	return b.synced > 0 || b.available >= r.need()
}

// fulfill completes queued requests from the head until one cannot be
// satisfied. Later requests never overtake an earlier one.
func (b *Buffer) fulfill() {
	for len(b.requests) > 0 && !b.acquired {
		r := b.requests[0]
		if !b.canSatisfy(r) {
			break
		}
		b.requests[0] = nil
		b.requests = b.requests[1:]
		b.satisfy(r)
	}
	if len(b.requests) == 0 {
		b.requests = nil
	}
	b.gauges()
}

func (b *Buffer) satisfy(r *request) {
	switch r.kind {
	case kindGet:
		n := b.drain(r.p)
		if n == 0 && len(r.p) > 0 {
			n = stream.EOF
		}
		b.completeCount(r.count, n)
	case kindBump:
		b.completeByte(r.char, b.bump())
	case kindPeek:
		b.completeByte(r.char, b.peek())
	case kindNext:
		c := stream.EOF
		if b.bump() != stream.EOF {
			c = b.peek()
		}
		b.completeByte(r.char, c)
	case kindUnget:
		b.completeByte(r.char, stream.EOF)
	}
}

func (b *Buffer) cancel(r *request) {
	if r.kind == kindGet {
		n := stream.EOF
		if len(r.p) == 0 {
			n = 0
		}
		b.completeCount(r.count, n)
		return
	}
	b.completeByte(r.char, stream.EOF)
}

func (b *Buffer) headLen() int {
	for _, blk := range b.blocks {
		if n := len(blk.unread()); n > 0 {
			return n
		}
	}
	return 0
}

func (b *Buffer) copyOut(p []byte) int {
	n := 0
	for _, blk := range b.blocks {
		if n == len(p) {
			break
		}
		n += copy(p[n:], blk.unread())
	}
	return n
}

func (b *Buffer) drain(p []byte) int {
	n := b.copyOut(p)
	b.consume(n)
	return n
}

func (b *Buffer) bump() int {
	c := b.peek()
	if c != stream.EOF {
		b.consume(1)
	}
	return c
}

func (b *Buffer) peek() int {
	for _, blk := range b.blocks {
		if p := blk.unread(); len(p) > 0 {
			return int(p[0])
		}
	}
	return stream.EOF
}

// consume advances the read cursor by n bytes, releasing drained blocks.
// The tail block stays while it still has room for writes.
func (b *Buffer) consume(n int) {
	b.available -= n
	b.totalRead += int64(n)
	b.synced = max(0, b.synced-n)
	if b.m != nil && n > 0 {
		b.m.BufferBytesRead.WithLabelValues(b.config.Name).Add(float64(n))
	}

	for n > 0 || (len(b.blocks) > 1 && len(b.blocks[0].unread()) == 0) {
		blk := b.blocks[0]
		k := min(n, len(blk.unread()))
		blk.rd += k
		n -= k
		if len(blk.unread()) == 0 && (len(b.blocks) > 1 || blk.room() == 0) {
			b.blocks[0] = nil
			b.blocks = b.blocks[1:]
			blk.free()
		}
	}
	if len(b.blocks) == 0 {
		b.blocks = nil
	}
	b.gauges()
}

func (b *Buffer) wrote(n int) {
	b.available += n
	b.totalWritten += int64(n)
	if b.m != nil {
		b.m.BufferBytesWritten.WithLabelValues(b.config.Name).Add(float64(n))
	}
}

func (b *Buffer) discarded(n int) {
	b.totalWritten += int64(n)
	if b.m != nil {
		b.m.BufferBytesDiscarded.WithLabelValues(b.config.Name).Add(float64(n))
	}
}

func (b *Buffer) countRequest(kind string, outcome ...string) {
	if b.m == nil {
		return
	}
	o := "immediate"
	if len(outcome) > 0 {
		o = outcome[0]
	}
	b.m.BufferRequests.WithLabelValues(b.config.Name, kind, o).Inc()
}

func (b *Buffer) gauges() {
	if b.m == nil {
		return
	}
	b.m.BufferAvailable.WithLabelValues(b.config.Name).Set(float64(b.available))
	b.m.BufferBlocks.WithLabelValues(b.config.Name).Set(float64(len(b.blocks)))
	b.m.BufferPending.WithLabelValues(b.config.Name).Set(float64(len(b.requests)))
}
