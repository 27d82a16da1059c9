/*
Package pace provides a byte-rate token bucket for pacing media into live
buffers.

A Limiter releases Rate bytes per second and lets up to Burst bytes through
at once. Replaying a recorded clip at its natural bitrate looks like:

	lim, err := pace.New(pace.BitsPerSecond(4_000_000), 188*7)
	if err != nil {
		return err
	}
	for {
		n, err := src.Read(chunk)
		if err := lim.WaitN(ctx, n); err != nil {
			return err
		}
		buf.Write(chunk[:n])
	}

WaitN splits requests larger than Burst into burst-sized pieces. ReserveN and
AllowN are the non-blocking forms; all three take time from Config.Clock so
tests can drive them with a mock clock.
*/
package pace
