package live

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/vnykmshr/mediaflow/internal/testutil"
	"github.com/vnykmshr/mediaflow/pkg/streaming/pcbuf"
	"github.com/vnykmshr/mediaflow/pkg/streaming/stream"
)

type tailResult struct {
	n   int64
	err error
}

func startTail(ctx context.Context, t *testing.T, path string, buf *pcbuf.Buffer) <-chan tailResult {
	t.Helper()
	done := make(chan tailResult, 1)
	go func() {
		n, err := Tail(ctx, path, buf, Config{Name: "log"})
		done <- tailResult{n, err}
	}()
	return done
}

func appendFile(t *testing.T, path, s string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	testutil.AssertNoError(t, err)
	_, err = f.WriteString(s)
	testutil.AssertNoError(t, err)
	testutil.AssertNoError(t, f.Close())
}

func readN(t *testing.T, r io.Reader, n int) string {
	t.Helper()
	p := make([]byte, n)
	_, err := io.ReadFull(r, p)
	testutil.AssertNoError(t, err)
	return string(p)
}

func TestTailFollowsAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feed.log")
	testutil.AssertNoError(t, os.WriteFile(path, []byte("hello "), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	buf := pcbuf.New(64)
	r := stream.NewReader(buf)
	defer r.Close()
	done := startTail(ctx, t, path, buf)

	testutil.AssertEqual(t, readN(t, r, 6), "hello ")
	appendFile(t, path, "world")
	testutil.AssertEqual(t, readN(t, r, 5), "world")

	cancel()
	res := <-done
	testutil.AssertEqual(t, errors.Is(res.err, context.Canceled), true)
	testutil.AssertEqual(t, res.n, int64(11))

	_, err := r.Read(make([]byte, 1))
	testutil.AssertEqual(t, err, io.EOF)
}

func TestTailEndsOnRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feed.log")
	testutil.AssertNoError(t, os.WriteFile(path, []byte("abc"), 0o644))

	buf := pcbuf.New(64)
	r := stream.NewReader(buf)
	defer r.Close()
	done := startTail(context.Background(), t, path, buf)

	testutil.AssertEqual(t, readN(t, r, 3), "abc")
	testutil.AssertNoError(t, os.Remove(path))

	res := <-done
	testutil.AssertNoError(t, res.err)
	rest, err := io.ReadAll(r)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, len(rest), 0)
}

func TestTailIgnoresSiblings(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "feed.log")
	other := filepath.Join(dir, "other.log")
	testutil.AssertNoError(t, os.WriteFile(path, []byte("a"), 0o644))
	testutil.AssertNoError(t, os.WriteFile(other, nil, 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	buf := pcbuf.New(64)
	r := stream.NewReader(buf)
	defer r.Close()
	done := startTail(ctx, t, path, buf)

	testutil.AssertEqual(t, readN(t, r, 1), "a")
	appendFile(t, other, "noise")
	testutil.AssertNoError(t, os.Remove(other))
	appendFile(t, path, "b")
	testutil.AssertEqual(t, readN(t, r, 1), "b")

	cancel()
	testutil.AssertEqual(t, (<-done).n, int64(2))
}

func TestTailMissingFile(t *testing.T) {
	buf := pcbuf.New(64)
	_, err := Tail(context.Background(), filepath.Join(t.TempDir(), "absent"), buf, DefaultConfig())
	testutil.AssertEqual(t, errors.Is(err, os.ErrNotExist), true)
	testutil.AssertEqual(t, buf.CanWrite(), false)
}
