// Package s3source provides a media source over an S3 object.
//
// Reads are served with ranged GetObject calls, so the buffered adapter's
// read-ahead window decides how much is fetched per request. The package
// does not register a factory on its own because it needs a client; call
// Register with a configured *s3.Client, or anything satisfying Client.
package s3source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/vnykmshr/mediaflow/pkg/media"
	"github.com/vnykmshr/mediaflow/pkg/streaming/sourcebuf"
)

// Kind is the registry name of this source.
const Kind = "s3"

// DefaultTimeout bounds each S3 request.
const DefaultTimeout = 30 * time.Second

// Client abstracts the S3 API operations used by Source.
// The *s3.Client type satisfies this interface.
type Client interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// Source reads one S3 object.
type Source struct {
	media.NoLive

	client  Client
	bucket  string
	key     string
	size    int64
	timeout time.Duration

	mu  sync.Mutex
	pos int64
}

// Open looks up the object's size and returns a source over it.
func Open(ctx context.Context, client Client, bucket, key string) (*Source, error) {
	out, err := client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("s3source: head %s/%s: %w", bucket, key, os.ErrNotExist)
		}
		return nil, fmt.Errorf("s3source: head %s/%s: %w", bucket, key, err)
	}
	return &Source{
		client:  client,
		bucket:  bucket,
		key:     key,
		size:    aws.ToInt64(out.ContentLength),
		timeout: DefaultTimeout,
	}, nil
}

// Factory returns a media.Factory creating sources through client.
// Location is "bucket/key"; the "timeout" param overrides DefaultTimeout.
func Factory(client Client) media.Factory {
	return func(cfg media.Config) (media.Impl, error) {
		bucket, key, ok := strings.Cut(strings.TrimPrefix(cfg.Location, "s3://"), "/")
		if !ok || bucket == "" || key == "" {
			return nil, fmt.Errorf("s3source: location %q is not bucket/key", cfg.Location)
		}
		timeout := DefaultTimeout
		if v := cfg.Param("timeout", ""); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return nil, fmt.Errorf("s3source: invalid timeout %q: %w", v, err)
			}
			timeout = d
		}

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		s, err := Open(ctx, client, bucket, key)
		if err != nil {
			return nil, err
		}
		s.timeout = timeout
		return s, nil
	}
}

// Register makes the "s3" kind available, backed by client.
func Register(client Client) {
	media.Register(Kind, Factory(client))
}

// Size returns the object length reported when the source was opened.
func (s *Source) Size() int64 { return s.size }

// Read fetches len(p) bytes from offset, or from where the previous read
// ended, using a ranged GetObject.
func (s *Source) Read(p []byte, offset int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if offset == sourcebuf.Continue {
		offset = s.pos
	}
	if len(p) == 0 || offset >= s.size {
		return 0, nil
	}
	if offset < 0 {
		return 0, fmt.Errorf("s3source: negative offset %d", offset)
	}
	end := min(offset+int64(len(p)), s.size) - 1

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
		Range:  aws.String(fmt.Sprintf("bytes=%d-%d", offset, end)),
	})
	if err != nil {
		return 0, fmt.Errorf("s3source: get %s/%s: %w", s.bucket, s.key, err)
	}
	defer out.Body.Close()

	n, err := io.ReadFull(out.Body, p[:end-offset+1])
	s.pos = offset + int64(n)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return n, fmt.Errorf("s3source: read %s/%s: %w", s.bucket, s.key, err)
	}
	return n, nil
}

// Close releases nothing; the client is owned by the caller.
func (s *Source) Close() error { return nil }

func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return false
}
