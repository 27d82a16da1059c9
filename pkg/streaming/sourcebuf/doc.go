/*
Package sourcebuf adapts a random-access Source into a seekable stream with a
read-ahead window.

Reads are served from the window while it covers the read position. When it
runs dry the adapter refills a full window from the source at the current
position, so sequential reads cost one source call per window:

	r := sourcebuf.New(src, 64*1024)
	p := make([]byte, 600)
	n := r.TryGet(p) // one or more source reads, then copies

Seeking inside the window only moves the cursor. Seeking anywhere else
refills the window at the target straight away:

	r.Seek(50, io.SeekStart)  // no I/O if 50 is still buffered
	r.Seek(900, io.SeekStart) // exactly one source read at offset 900

End of source is a zero-byte read, a source error, or two short reads in a
row. A source error is reported by Err and is never retried.

The adapter implements stream.Buffer, so it can be wrapped in a
stream.Reader for io.Reader and io.Seeker access.
*/
package sourcebuf
