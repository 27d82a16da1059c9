package testutil

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestEventually(t *testing.T) {
	var ready atomic.Bool
	go func() {
		time.Sleep(30 * time.Millisecond)
		ready.Store(true)
	}()

	Eventually(t, ready.Load, 500*time.Millisecond, 5*time.Millisecond)
	AssertEventually(t, ready.Load)
}

func TestCallbackTracker(t *testing.T) {
	tracker := NewCallbackTracker()
	tracker.AssertNotCalled(t)

	h := tracker.Int()
	h(3)
	tracker.Mark("done")

	tracker.AssertCalled(t)
	tracker.AssertCallCount(t, 2)
	AssertEqual(t, tracker.Value(), any("done"))

	values := tracker.Values()
	AssertEqual(t, len(values), 2)
	AssertEqual(t, values[0], any(3))
}

func TestCallbackTrackerConcurrent(t *testing.T) {
	tracker := NewCallbackTracker()

	const goroutines = 10
	done := make(chan struct{}, goroutines)
	for range goroutines {
		go func() {
			for range 100 {
				tracker.Mark()
			}
			done <- struct{}{}
		}()
	}
	for range goroutines {
		<-done
	}
	tracker.AssertCallCount(t, goroutines*100)
}

func TestMockSource(t *testing.T) {
	src := NewMockSource([]byte("0123456789"))
	p := make([]byte, 4)

	n, err := src.Read(p, 2)
	AssertNoError(t, err)
	AssertBytes(t, p[:n], []byte("2345"))

	n, err = src.Read(p, Continue)
	AssertNoError(t, err)
	AssertBytes(t, p[:n], []byte("6789"))

	n, err = src.Read(p, Continue)
	AssertNoError(t, err)
	AssertEqual(t, n, 0)

	offsets := src.Offsets()
	AssertEqual(t, len(offsets), 3)
	AssertEqual(t, offsets[0], int64(2))
	AssertEqual(t, offsets[1], int64(Continue))
	AssertEqual(t, src.Lengths()[0], 4)

	src.SetMaxRead(1)
	n, _ = src.Read(p, 0)
	AssertEqual(t, n, 1)

	src.SetErrorOnNth(5)
	_, err = src.Read(p, 0)
	AssertError(t, err)

	AssertNoError(t, src.Close())
	AssertEqual(t, src.CloseCount(), 1)
}

func TestMockClock(t *testing.T) {
	start := time.Unix(100, 0)
	clock := NewMockClock(start)
	clock.Advance(time.Second)
	AssertEqual(t, clock.Now(), start.Add(time.Second))
}
