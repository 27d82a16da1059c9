package memory

import (
	"bytes"
	"io"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/vnykmshr/mediaflow/internal/testutil"
	"github.com/vnykmshr/mediaflow/pkg/media"
	"github.com/vnykmshr/mediaflow/pkg/media/live"
	"github.com/vnykmshr/mediaflow/pkg/streaming/stream"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func liveConfig(chunk int) live.Config {
	cfg := live.DefaultConfig()
	cfg.ChunkSize = chunk
	return cfg
}

func readerOf(buf stream.Buffer) *stream.Reader { return stream.NewReader(buf) }

func TestBoundedStream(t *testing.T) {
	data := bytes.Repeat([]byte("memory"), 2000)
	impl, err := New(data, Options{})
	testutil.AssertNoError(t, err)

	src := media.New(Kind, impl, media.WithWindowSize(1000))
	defer src.Close()
	testutil.AssertEqual(t, src.Size(), int64(len(data)))

	r, err := src.Stream()
	testutil.AssertNoError(t, err)
	got, err := io.ReadAll(r)
	testutil.AssertNoError(t, err)
	testutil.AssertBytes(t, got, data)

	pos, err := r.Seek(6, io.SeekStart)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, pos, int64(6))
	c, err := r.ReadByte()
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, c, byte('m'))
}

func TestLiveStreamReplays(t *testing.T) {
	data := bytes.Repeat([]byte("0123456789"), 300)
	impl, err := New(data, Options{BlockSize: 128})
	testutil.AssertNoError(t, err)
	src := media.New(Kind, impl)
	defer src.Close()

	r, err := src.LiveStream()
	testutil.AssertNoError(t, err)
	got, err := io.ReadAll(r)
	testutil.AssertNoError(t, err)
	testutil.AssertBytes(t, got, data)

	// A closed live stream is rebuilt as a fresh replay.
	testutil.AssertNoError(t, r.Close())
	r2, err := src.LiveStream()
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, r2 != r, true)
	got, err = io.ReadAll(r2)
	testutil.AssertNoError(t, err)
	testutil.AssertBytes(t, got, data)
}

func TestLiveStreamPaced(t *testing.T) {
	data := bytes.Repeat([]byte("x"), 4096)
	impl, err := New(data, Options{Rate: 64 * 1024, Feed: liveConfig(1024)})
	testutil.AssertNoError(t, err)
	defer impl.Close()

	buf, err := impl.LiveStream()
	testutil.AssertNoError(t, err)

	start := time.Now()
	r := readerOf(buf)
	got, err := io.ReadAll(r)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, len(got), len(data))
	// The burst covers the first chunk; the rest is paced at 64KiB/s.
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("replay finished in %v, expected pacing", elapsed)
	}
}

func TestCloseStopsReplay(t *testing.T) {
	impl, err := New(bytes.Repeat([]byte("y"), 1<<20), Options{Rate: 1024})
	testutil.AssertNoError(t, err)
	src := media.New(Kind, impl)

	r, err := src.LiveStream()
	testutil.AssertNoError(t, err)
	_, err = r.Read(make([]byte, 16))
	testutil.AssertNoError(t, err)

	// Close cancels the paced replay instead of waiting for a megabyte.
	testutil.AssertNoError(t, src.Close())
	_, err = impl.LiveStream()
	testutil.AssertError(t, err)
}

func TestCreate(t *testing.T) {
	src, err := media.Create(media.Config{Kind: Kind, Location: "inline content"})
	testutil.AssertNoError(t, err)
	defer src.Close()

	impl, ok := media.ImplOf[*Source](src)
	testutil.AssertEqual(t, ok, true)
	testutil.AssertEqual(t, string(impl.Bytes()), "inline content")

	_, err = media.Create(media.Config{Kind: Kind, Params: map[string]string{"rate": "fast"}})
	testutil.AssertError(t, err)
}

func TestLiveStreamRacesClose(t *testing.T) {
	impl, err := New(bytes.Repeat([]byte("z"), 1<<20), Options{Rate: 1024})
	testutil.AssertNoError(t, err)

	var callers sync.WaitGroup
	for range 8 {
		callers.Add(1)
		go func() {
			defer callers.Done()
			for {
				if _, err := impl.LiveStream(); err != nil {
					return
				}
			}
		}()
	}

	time.Sleep(10 * time.Millisecond)
	testutil.AssertNoError(t, impl.Close())
	callers.Wait()

	// Every replay started before Close has finished.
	_, err = impl.LiveStream()
	testutil.AssertError(t, err)
}
