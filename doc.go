/*
Package mediaflow provides asynchronous buffered stream I/O for media
sources.

Streaming (pkg/streaming):
  - pcbuf: Producer/consumer byte buffer with ordered request completion
  - sourcebuf: Read-ahead adapter over seekable random-access sources
  - stream: Shared buffer contract and a blocking io.Reader adapter

Completion (pkg/async):
  - Op: One-shot continuation
  - Dispatcher: Inline and Serial completion executors

Sources (pkg/media):
  - Source: Handle over a concrete source with bounded and live streams
  - live: Producers feeding live buffers (pumps, replays, file tails)
  - sources: memory, file, s3, redis and websocket implementations

Example usage:

	import (
		"github.com/vnykmshr/mediaflow/pkg/media"
		_ "github.com/vnykmshr/mediaflow/pkg/media/sources/file"
	)

	src, err := media.Create(media.Config{Kind: "file", Location: "clip.ts"})
	if err != nil {
		return err
	}
	defer src.Close()

	r, _ := src.Stream()
	io.Copy(os.Stdout, r)
*/
package mediaflow
