/*
Package pcbuf provides a producer/consumer byte buffer with asynchronous,
strictly ordered reads.

A producer writes bytes as they arrive. A consumer issues read requests that
complete through a dispatcher once enough data is present, the producer calls
Sync, or the producer closes the write side with CloseWrite:

	buf := pcbuf.New(pcbuf.DefaultBlockSize)

	p := make([]byte, 188)
	buf.Get(p, func(n int) {
		if n == stream.EOF {
			return
		}
		handlePacket(p[:n])
	})

	buf.Write(chunk) // completes the request once 188 bytes are buffered
	buf.CloseWrite()

Ordering:

Requests are served strictly first in, first out. A large request at the head
of the queue holds back smaller ones behind it, so bytes are always delivered
in stream order.

CloseWrite guarantees termination: every queued request completes with the
bytes left, possibly short, and then with stream.EOF.

Zero-copy access:

Alloc/Commit let a producer fill a fresh block in place, and Acquire/Release
let a consumer read the head block without copying. Only one of each may be
outstanding; violating that panics.

Completions:

Handlers are never called while the buffer's lock is held, and they may call
back into the buffer. With the default async.Inline dispatcher a handler runs
on whichever goroutine completed the request, usually the producer.
*/
package pcbuf
