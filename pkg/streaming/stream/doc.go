/*
Package stream defines the byte-stream contract shared by mediaflow buffers
and a blocking reader on top of it.

A Buffer is read through requests that complete asynchronously. A request is
handed a completion function and a destination; the buffer invokes the
function through its dispatcher once it can deliver:

	buf.Get(p, func(n int) {
		if n == stream.EOF {
			return
		}
		consume(p[:n])
	})

The Try forms never wait. They return stream.RequiresAsync when the request
has to be queued instead:

	if n := buf.TryGet(p); n != stream.RequiresAsync {
		consume(p[:n])
	}

Both producer/consumer buffers (pcbuf) and buffered source adapters
(sourcebuf) implement Buffer.

Blocking Reads:

Reader adapts a Buffer to io.Reader, io.ByteReader, io.Seeker and io.Closer
for code that expects the standard interfaces:

	r := stream.NewReader(buf)
	defer r.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	n, err := r.ReadContext(ctx, p)

A Reader has at most one request outstanding. If the context ends first,
ReadContext returns ctx.Err() and keeps the request queued; the bytes it
eventually receives are returned by the next read, so nothing is lost or
reordered.

Thread Safety:

Buffers are safe for concurrent use. A Reader serializes its own callers.
*/
package stream
