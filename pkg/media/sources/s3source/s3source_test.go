package s3source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/vnykmshr/mediaflow/internal/testutil"
	"github.com/vnykmshr/mediaflow/pkg/media"
	"github.com/vnykmshr/mediaflow/pkg/streaming/sourcebuf"
)

// apiError implements smithy.APIError for not-found responses.
type apiError struct{ code string }

func (e *apiError) Error() string                 { return e.code }
func (e *apiError) ErrorCode() string             { return e.code }
func (e *apiError) ErrorMessage() string          { return e.code }
func (e *apiError) ErrorFault() smithy.ErrorFault { return smithy.FaultClient }

// mockS3 serves objects from memory and records requested ranges.
type mockS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	ranges  []string
	getErr  error
}

func newMockS3() *mockS3 {
	return &mockS3{objects: make(map[string][]byte)}
}

func (m *mockS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[*in.Bucket+"/"+*in.Key]
	if !ok {
		return nil, &apiError{code: "NotFound"}
	}
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(int64(len(data)))}, nil
}

func (m *mockS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	data, ok := m.objects[*in.Bucket+"/"+*in.Key]
	if !ok {
		return nil, &apiError{code: "NoSuchKey"}
	}
	rng := aws.ToString(in.Range)
	m.ranges = append(m.ranges, rng)

	var start, end int
	if _, err := fmt.Sscanf(rng, "bytes=%d-%d", &start, &end); err != nil {
		return nil, err
	}
	end = min(end, len(data)-1)
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data[start : end+1]))}, nil
}

func (m *mockS3) Ranges() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.ranges...)
}

func TestRangedReads(t *testing.T) {
	client := newMockS3()
	client.objects["media/clip.ts"] = []byte("abcdefghijklmnopqrstuvwxyz")

	s, err := Open(context.Background(), client, "media", "clip.ts")
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, s.Size(), int64(26))

	p := make([]byte, 5)
	n, err := s.Read(p, 10)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, string(p[:n]), "klmno")

	n, err = s.Read(p, sourcebuf.Continue)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, string(p[:n]), "pqrst")

	n, err = s.Read(make([]byte, 100), 24)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, n, 2)

	n, err = s.Read(p, 26)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, n, 0)

	testutil.AssertEqual(t, len(client.Ranges()), 3)
	testutil.AssertEqual(t, client.Ranges()[0], "bytes=10-14")
	testutil.AssertEqual(t, client.Ranges()[2], "bytes=24-25")
}

func TestStreamThroughWindow(t *testing.T) {
	client := newMockS3()
	data := bytes.Repeat([]byte("s3"), 5000)
	client.objects["bucket/big"] = data

	src := media.New(Kind, mustOpen(t, client, "bucket", "big"), media.WithWindowSize(4096))
	defer src.Close()

	r, err := src.Stream()
	testutil.AssertNoError(t, err)
	got, err := io.ReadAll(r)
	testutil.AssertNoError(t, err)
	testutil.AssertBytes(t, got, data)

	// 10000 bytes in 4096-byte windows.
	testutil.AssertEqual(t, len(client.Ranges()), 3)

	_, err = src.LiveStream()
	testutil.AssertEqual(t, errors.Is(err, media.ErrNoLiveStream), true)
}

func TestOpenNotFound(t *testing.T) {
	_, err := Open(context.Background(), newMockS3(), "bucket", "absent")
	testutil.AssertEqual(t, errors.Is(err, os.ErrNotExist), true)
}

func TestReadError(t *testing.T) {
	client := newMockS3()
	client.objects["b/k"] = []byte("data")
	s := mustOpen(t, client, "b", "k")

	client.getErr = testutil.ErrSimulated
	_, err := s.Read(make([]byte, 4), 0)
	testutil.AssertEqual(t, errors.Is(err, testutil.ErrSimulated), true)
}

func TestFactory(t *testing.T) {
	client := newMockS3()
	client.objects["bucket/path/to/key"] = []byte("payload")
	Register(client)

	src, err := media.Create(media.Config{Kind: Kind, Location: "s3://bucket/path/to/key"})
	testutil.AssertNoError(t, err)
	defer src.Close()
	impl, ok := media.ImplOf[*Source](src)
	testutil.AssertEqual(t, ok, true)
	testutil.AssertEqual(t, impl.key, "path/to/key")

	for _, cfg := range []media.Config{
		{Kind: Kind, Location: "no-key"},
		{Kind: Kind, Location: "bucket/"},
		{Kind: Kind, Location: "bucket/path/to/key", Params: map[string]string{"timeout": "soon"}},
		{Kind: Kind, Location: "bucket/missing"},
	} {
		_, err := media.Create(cfg)
		testutil.AssertError(t, err)
	}
}

func mustOpen(t *testing.T, client Client, bucket, key string) *Source {
	t.Helper()
	s, err := Open(context.Background(), client, bucket, key)
	testutil.AssertNoError(t, err)
	return s
}
