/*
Package async provides the continuation plumbing shared by mediaflow buffers.

An Op is a one-shot callable: a completion handler together with the value it
will be handed. Buffers never run handlers while holding their own locks.
They build an Op for each finished request and pass it to a Dispatcher, which
decides where the handler runs.

	buf, _ := pcbuf.NewWithConfig(pcbuf.Config{Dispatcher: async.Inline})

Inline runs ops on the goroutine that completed the request, typically the
producer. Serial moves them onto one executor goroutine in FIFO order:

	d := async.NewSerial(async.SerialConfig{Name: "decoder"})
	defer func() { <-d.Shutdown() }()

Handlers may call back into the buffer that completed them with either
dispatcher.
*/
package async
