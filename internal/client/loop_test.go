package client

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestRunPendingKeepsOrderAndDrainsNested(t *testing.T) {
	l := NewLoop(60)
	var got []int
	l.Schedule(func() {
		got = append(got, 1)
		l.Schedule(func() { got = append(got, 3) })
	})
	l.Schedule(func() { got = append(got, 2) })

	if n := l.RunPending(); n != 3 {
		t.Fatalf("ran %d tasks", n)
	}
	if len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Fatalf("order %v", got)
	}
	if n := l.RunPending(); n != 0 {
		t.Fatalf("empty queue ran %d", n)
	}
}

func TestScheduleFromManyGoroutines(t *testing.T) {
	l := NewLoop(60)
	var wg sync.WaitGroup
	count := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				l.Schedule(func() { count++ })
			}
		}()
	}
	wg.Wait()
	l.RunPending()
	if count != 800 {
		t.Fatalf("count=%d", count)
	}
}

func TestRunCallsFrameUntilCancelled(t *testing.T) {
	l := NewLoop(200)
	ctx, cancel := context.WithCancel(context.Background())
	frames := 0
	ran := false
	l.Schedule(func() { ran = true })

	err := l.Run(ctx, func(time.Time) {
		frames++
		if frames == 3 {
			cancel()
		}
	})
	if err != context.Canceled {
		t.Fatalf("Run returned %v", err)
	}
	if !ran || frames != 3 {
		t.Fatalf("ran=%v frames=%d", ran, frames)
	}
}

func TestNewLoopClampsFrameRate(t *testing.T) {
	if got := NewLoop(0).Interval(); got != time.Second/30 {
		t.Fatalf("default interval %v", got)
	}
	if got := NewLoop(10000).Interval(); got != time.Second/240 {
		t.Fatalf("clamped interval %v", got)
	}
}
