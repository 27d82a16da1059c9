package sourcebuf

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/vnykmshr/mediaflow/internal/testutil"
	mferrors "github.com/vnykmshr/mediaflow/pkg/common/errors"
	"github.com/vnykmshr/mediaflow/pkg/metrics"
	"github.com/vnykmshr/mediaflow/pkg/streaming/stream"
)

func sequence(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i % 251)
	}
	return data
}

func TestNew(t *testing.T) {
	src := testutil.NewMockSource(nil)
	testutil.AssertPanics(t, func() { New(src, 0) })
	testutil.AssertPanics(t, func() { New(nil, 16) })

	_, err := NewWithConfig(src, Config{WindowSize: -1})
	testutil.AssertEqual(t, mferrors.IsValidationError(err), true)

	r, err := NewWithConfig(src, Config{})
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, len(r.window), DefaultWindowSize)
	testutil.AssertEqual(t, r.CanSeek(), true)
	testutil.AssertEqual(t, r.HasSize(), true)
	testutil.AssertEqual(t, r.CanWrite(), false)
}

func TestWindowReuse(t *testing.T) {
	data := sequence(1000)
	src := testutil.NewMockSource(data)
	r := New(src, 512)

	p := make([]byte, 100)
	testutil.AssertEqual(t, r.TryGet(p), 100)
	testutil.AssertBytes(t, p, data[:100])
	testutil.AssertEqual(t, src.ReadCount(), 1)

	testutil.AssertEqual(t, r.Seek(50, io.SeekStart), int64(50))
	testutil.AssertEqual(t, src.ReadCount(), 1)

	testutil.AssertEqual(t, r.Seek(900, io.SeekStart), int64(900))
	testutil.AssertEqual(t, src.ReadCount(), 2)
	testutil.AssertEqual(t, src.Offsets()[1], int64(900))

	n := r.TryGet(p)
	testutil.AssertEqual(t, n, 100)
	testutil.AssertBytes(t, p, data[900:1000])
	testutil.AssertEqual(t, src.ReadCount(), 2)
}

func TestReadAcrossWindowBoundary(t *testing.T) {
	data := sequence(1000)
	src := testutil.NewMockSource(data)
	r := New(src, 512)

	p := make([]byte, 600)
	testutil.AssertEqual(t, r.TryGet(p), 600)
	testutil.AssertBytes(t, p, data[:600])
	if src.ReadCount() < 2 {
		t.Fatalf("expected at least 2 source reads, got %d", src.ReadCount())
	}

	lengths := src.Lengths()
	testutil.AssertEqual(t, lengths[0], 512)
	offsets := src.Offsets()
	testutil.AssertEqual(t, offsets[1], int64(Continue))
}

func TestReadToEnd(t *testing.T) {
	data := sequence(700)
	r := New(testutil.NewMockSource(data), 128)

	var out []byte
	p := make([]byte, 77)
	for {
		n := r.TryGet(p)
		if n == stream.EOF {
			break
		}
		out = append(out, p[:n]...)
	}
	testutil.AssertBytes(t, out, data)
	testutil.AssertEqual(t, r.Pos(), int64(700))
	testutil.AssertEqual(t, r.TryBump(), stream.EOF)
}

func TestTwoShortReadsEndStream(t *testing.T) {
	src := testutil.NewMockSource(sequence(100))
	src.SetMaxRead(10)
	r := New(src, 64)

	p := make([]byte, 100)
	testutil.AssertEqual(t, r.TryGet(p), 20)
	testutil.AssertEqual(t, src.ReadCount(), 2)
}

func TestSeekBounds(t *testing.T) {
	src := testutil.NewMockSource(sequence(100))
	r := New(src, 32)

	testutil.AssertEqual(t, r.Seek(-1, io.SeekStart), int64(stream.EOF))
	testutil.AssertEqual(t, r.Seek(101, io.SeekStart), int64(stream.EOF))
	testutil.AssertEqual(t, r.Seek(0, 42), int64(stream.EOF))
	testutil.AssertEqual(t, src.ReadCount(), 0)

	testutil.AssertEqual(t, r.Seek(0, io.SeekEnd), int64(100))
	testutil.AssertEqual(t, r.TryPeek(), stream.EOF)

	testutil.AssertEqual(t, r.Seek(-10, io.SeekEnd), int64(90))
	testutil.AssertEqual(t, r.Seek(5, io.SeekCurrent), int64(95))
	testutil.AssertEqual(t, r.TryPeek(), int(sequence(100)[95]))
}

func TestSeekClearsEnd(t *testing.T) {
	data := sequence(50)
	r := New(testutil.NewMockSource(data), 16)

	io.Copy(io.Discard, stream.NewReader(r))
	testutil.AssertEqual(t, r.TryBump(), stream.EOF)

	testutil.AssertEqual(t, r.Seek(10, io.SeekStart), int64(10))
	testutil.AssertEqual(t, r.TryBump(), int(data[10]))
}

func TestByteOperations(t *testing.T) {
	data := []byte("abcdef")
	r := New(testutil.NewMockSource(data), 4)
	got := testutil.NewCallbackTracker()

	r.Unget(got.Int())
	r.Peek(got.Int())
	r.Bump(got.Int())
	r.Next(got.Int())
	r.Bump(got.Int())
	r.Unget(got.Int())

	values := got.Values()
	testutil.AssertEqual(t, len(values), 6)
	testutil.AssertEqual(t, values[0], any(stream.EOF))
	testutil.AssertEqual(t, values[1], any(int('a')))
	testutil.AssertEqual(t, values[2], any(int('a')))
	testutil.AssertEqual(t, values[3], any(int('c')))
	testutil.AssertEqual(t, values[4], any(int('c')))
	testutil.AssertEqual(t, values[5], any(int('c')))
	testutil.AssertEqual(t, r.Pos(), int64(2))
}

func TestUngetAcrossWindow(t *testing.T) {
	data := sequence(20)
	src := testutil.NewMockSource(data)
	r := New(src, 8)

	r.Seek(12, io.SeekStart)
	testutil.AssertEqual(t, r.TryBump(), int(data[12]))
	r.Seek(8, io.SeekStart)

	got := testutil.NewCallbackTracker()
	r.Unget(got.Int())
	testutil.AssertEqual(t, got.Value(), any(int(data[7])))
	testutil.AssertEqual(t, r.Pos(), int64(7))
}

func TestGetDeliversThroughDispatcher(t *testing.T) {
	data := sequence(40)
	r := New(testutil.NewMockSource(data), 16)

	got := testutil.NewCallbackTracker()
	p := make([]byte, 30)
	r.Get(p, got.Int())
	testutil.AssertEqual(t, got.Value(), any(30))
	testutil.AssertBytes(t, p, data[:30])

	r.Get(p, got.Int())
	testutil.AssertEqual(t, got.Value(), any(10))
	r.Get(p, got.Int())
	testutil.AssertEqual(t, got.Value(), any(stream.EOF))
}

func TestTryCopy(t *testing.T) {
	data := sequence(10)
	r := New(testutil.NewMockSource(data), 4)

	p := make([]byte, 6)
	testutil.AssertEqual(t, r.TryCopy(p), 6)
	testutil.AssertBytes(t, p, data[:6])
	testutil.AssertEqual(t, r.Pos(), int64(0))
	testutil.AssertEqual(t, r.TryBump(), int(data[0]))
}

func TestTryCopyPastEnd(t *testing.T) {
	data := sequence(1000)
	r := New(testutil.NewMockSource(data), 512)

	head := make([]byte, 500)
	testutil.AssertEqual(t, r.TryGet(head), 500)

	ahead := make([]byte, 600)
	testutil.AssertEqual(t, r.TryCopy(ahead), 500)
	testutil.AssertBytes(t, ahead[:500], data[500:])
	testutil.AssertEqual(t, r.Pos(), int64(500))

	p := make([]byte, 10)
	testutil.AssertEqual(t, r.TryGet(p), 10)
	testutil.AssertBytes(t, p, data[500:510])

	rest := make([]byte, 1000)
	testutil.AssertEqual(t, r.TryGet(rest), 490)
	testutil.AssertBytes(t, rest[:490], data[510:])
	testutil.AssertEqual(t, r.TryGet(rest), stream.EOF)
}

func TestAcquireRelease(t *testing.T) {
	data := sequence(10)
	r := New(testutil.NewMockSource(data), 4)

	p, ok := r.Acquire()
	testutil.AssertEqual(t, ok, true)
	testutil.AssertBytes(t, p, data[:4])
	testutil.AssertPanics(t, func() { r.Acquire() })
	testutil.AssertPanics(t, func() { r.Release(5) })

	r.Release(4)
	testutil.AssertEqual(t, r.Pos(), int64(4))
	testutil.AssertPanics(t, func() { r.Release(0) })

	p, ok = r.Acquire()
	testutil.AssertEqual(t, ok, true)
	held := append([]byte(nil), p...)
	// Refilling while the region is exposed keeps it intact.
	r.Seek(9, io.SeekStart)
	testutil.AssertBytes(t, p, held)
	r.Release(0)

	r.Seek(10, io.SeekStart)
	_, ok = r.Acquire()
	testutil.AssertEqual(t, ok, false)
}

func TestSourceError(t *testing.T) {
	src := testutil.NewMockSource(sequence(100))
	src.SetErrorOnNth(2)
	r := New(src, 32)

	p := make([]byte, 64)
	testutil.AssertEqual(t, r.TryGet(p), 32)
	testutil.AssertEqual(t, errors.Is(r.Err(), testutil.ErrSimulated), true)
	testutil.AssertEqual(t, r.TryGet(p), stream.EOF)
	testutil.AssertEqual(t, src.ReadCount(), 2)
}

func TestCloseRead(t *testing.T) {
	src := testutil.NewMockSource(sequence(10))
	r := New(src, 4)

	testutil.AssertNoError(t, r.CloseRead())
	testutil.AssertNoError(t, r.CloseRead())
	testutil.AssertEqual(t, src.CloseCount(), 1)
	testutil.AssertEqual(t, r.CanRead(), false)
	testutil.AssertEqual(t, r.TryGet(make([]byte, 1)), stream.EOF)
	testutil.AssertEqual(t, r.Seek(0, io.SeekStart), int64(stream.EOF))
	testutil.AssertEqual(t, r.InAvail(), 0)
}

func TestStreamReaderSeek(t *testing.T) {
	data := sequence(300)
	r := stream.NewReader(New(testutil.NewMockSource(data), 64))

	p := make([]byte, 10)
	_, err := io.ReadFull(r, p)
	testutil.AssertNoError(t, err)

	pos, err := r.Seek(-5, io.SeekCurrent)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, pos, int64(5))

	rest, err := io.ReadAll(r)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, bytes.Equal(rest, data[5:]), true)

	_, err = r.Seek(1000, io.SeekStart)
	testutil.AssertEqual(t, err, stream.ErrInvalidPosition)
}

func TestMetrics(t *testing.T) {
	reg := metrics.NewRegistry(prometheus.NewRegistry())
	src := testutil.NewMockSource(sequence(1000))
	r, err := NewWithConfig(src, Config{WindowSize: 512, Name: "clip", Metrics: reg})
	testutil.AssertNoError(t, err)

	r.TryGet(make([]byte, 100))
	r.Seek(50, io.SeekStart)
	r.Seek(900, io.SeekStart)
	r.Seek(5000, io.SeekStart)

	testutil.AssertEqual(t, promtest.ToFloat64(reg.SourceReads.WithLabelValues("clip")), 2.0)
	testutil.AssertEqual(t, promtest.ToFloat64(reg.SourceBytesRead.WithLabelValues("clip")), 612.0)
	testutil.AssertEqual(t, promtest.ToFloat64(reg.SourceWindowRefills.WithLabelValues("clip", "seek")), 1.0)
	testutil.AssertEqual(t, promtest.ToFloat64(reg.SourceSeeks.WithLabelValues("clip", "window")), 1.0)
	testutil.AssertEqual(t, promtest.ToFloat64(reg.SourceSeeks.WithLabelValues("clip", "refill")), 1.0)
	testutil.AssertEqual(t, promtest.ToFloat64(reg.SourceSeeks.WithLabelValues("clip", "rejected")), 1.0)
}
