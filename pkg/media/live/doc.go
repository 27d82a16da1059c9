/*
Package live feeds producer-consumer buffers from live origins.

Every producer in this package writes into a Sink, normally a
*pcbuf.Buffer, and closes its write side when it returns so readers of the
buffer always see end of stream:

	buf := pcbuf.New(4096)
	go live.Pump(ctx, conn, buf, live.DefaultConfig())

	r := stream.NewReader(buf)
	io.Copy(os.Stdout, r)

The producers are:

  - Pump copies an io.Reader.
  - PumpMessages copies discrete messages from a channel, syncing after each.
  - Replay re-plays a bounded source, optionally paced by a pace.Limiter.
  - Tail follows a growing file through fsnotify.

Feeds that write without syncing can be flushed on a schedule with a
Syncer, which drives pcbuf.Buffer.Sync from cron expressions.
*/
package live
