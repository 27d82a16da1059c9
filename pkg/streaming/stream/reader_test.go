package stream_test

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/vnykmshr/mediaflow/internal/testutil"
	"github.com/vnykmshr/mediaflow/pkg/streaming/pcbuf"
	"github.com/vnykmshr/mediaflow/pkg/streaming/stream"
)

func TestReaderReadsUntilEOF(t *testing.T) {
	buf := pcbuf.New(pcbuf.DefaultBlockSize)
	buf.Write([]byte("hello world"))
	buf.CloseWrite()

	r := stream.NewReader(buf)
	data, err := io.ReadAll(r)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, string(data), "hello world")
	testutil.AssertEqual(t, r.IsOpen(), true)

	testutil.AssertNoError(t, r.Close())
	testutil.AssertEqual(t, r.IsOpen(), false)
	_, err = r.Read(make([]byte, 1))
	testutil.AssertEqual(t, errors.Is(err, io.ErrClosedPipe), true)
}

func TestReaderBlocksForProducer(t *testing.T) {
	buf := pcbuf.New(pcbuf.DefaultBlockSize)
	r := stream.NewReader(buf)

	go func() {
		time.Sleep(20 * time.Millisecond)
		buf.Write([]byte("abc"))
		buf.CloseWrite()
	}()

	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	p := make([]byte, 8)
	n, err := r.ReadContext(ctx, p)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, string(p[:n]), "abc")

	_, err = r.ReadContext(ctx, p)
	testutil.AssertEqual(t, err, io.EOF)
}

func TestReaderCancelKeepsBytes(t *testing.T) {
	buf := pcbuf.New(pcbuf.DefaultBlockSize)
	r := stream.NewReader(buf)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	p := make([]byte, 6)
	_, err := r.ReadContext(ctx, p)
	testutil.AssertEqual(t, errors.Is(err, context.DeadlineExceeded), true)
	testutil.AssertEqual(t, buf.Stats().Pending, 1)

	// The caller's slice is never written after ReadContext returns.
	copy(p, "caller")
	buf.Write([]byte("stream"))
	testutil.AssertEqual(t, string(p), "caller")

	q := make([]byte, 4)
	n, err := r.Read(q)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, string(q[:n]), "stre")

	n, err = r.Read(q)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, string(q[:n]), "am")
}

func TestReaderTryRead(t *testing.T) {
	buf := pcbuf.New(pcbuf.DefaultBlockSize)
	r := stream.NewReader(buf)

	_, err := r.TryRead(make([]byte, 2))
	testutil.AssertEqual(t, stream.IsRequiresAsync(err), true)

	buf.Write([]byte("ok"))
	p := make([]byte, 2)
	n, err := r.TryRead(p)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, string(p[:n]), "ok")

	n, err = r.TryRead(nil)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, n, 0)

	buf.CloseWrite()
	_, err = r.TryRead(p)
	testutil.AssertEqual(t, err, io.EOF)
}

func TestReaderReadByte(t *testing.T) {
	buf := pcbuf.New(pcbuf.DefaultBlockSize)
	buf.Write([]byte{0x47, 0x1f})
	buf.CloseWrite()

	r := stream.NewReader(buf)
	c, err := r.ReadByte()
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, c, byte(0x47))

	c, err = r.ReadByte()
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, c, byte(0x1f))

	_, err = r.ReadByte()
	testutil.AssertEqual(t, err, io.EOF)
}

func TestReaderSeekUnseekable(t *testing.T) {
	r := stream.NewReader(pcbuf.New(16))
	_, err := r.Seek(0, io.SeekStart)
	testutil.AssertEqual(t, err, stream.ErrNotSeekable)
}

func TestReaderCloseUnblocksRead(t *testing.T) {
	buf := pcbuf.New(pcbuf.DefaultBlockSize)
	r := stream.NewReader(buf)

	errc := make(chan error, 1)
	go func() {
		_, err := r.Read(make([]byte, 4))
		errc <- err
	}()

	testutil.AssertEventually(t, func() bool { return buf.Stats().Pending == 1 })
	testutil.AssertNoError(t, r.Close())

	select {
	case err := <-errc:
		testutil.AssertEqual(t, err, io.EOF)
	case <-time.After(testutil.TestTimeout):
		t.Fatal("read did not return after Close")
	}
}

func TestNewReaderNilPanics(t *testing.T) {
	testutil.AssertPanics(t, func() { stream.NewReader(nil) })
}
