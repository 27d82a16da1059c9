/*
Package streaming groups the buffered stream components.

This package provides three streaming components:

  - stream: Buffer contract shared by both buffers, plus a blocking Reader
  - pcbuf: Producer/consumer buffer for live, append-only data
  - sourcebuf: Read-ahead adapter for bounded, seekable sources

Both buffers complete asynchronous requests through an async.Dispatcher,
in the order they were made:

	buf := pcbuf.New(4096)
	buf.Get(p, func(n int) {
		// n bytes of p are filled, or n is stream.EOF
	})
	buf.Write(data)

Callers that prefer blocking io interfaces wrap either buffer in a
stream.Reader.
*/
package streaming
