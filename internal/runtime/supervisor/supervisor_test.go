package supervisor

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestGoReportsFirstError(t *testing.T) {
	t.Parallel()

	sup := NewSupervisor(context.Background(), WithCancelOnError(true))
	sup.Go("worker", func(ctx context.Context) error {
		return errors.New("boom")
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := sup.Wait(ctx)
	if err == nil || !strings.Contains(err.Error(), "worker") || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("Wait() = %v, want wrapped worker error", err)
	}
	select {
	case <-sup.Context().Done():
	default:
		t.Fatal("expected supervisor context cancelled on error")
	}
}

func TestGoRecoversPanic(t *testing.T) {
	t.Parallel()

	sup := NewSupervisor(context.Background())
	sup.Go0("crasher", func(ctx context.Context) {
		panic("kaboom")
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := sup.Wait(ctx)
	if err == nil || !strings.Contains(err.Error(), "panic") {
		t.Fatalf("Wait() = %v, want panic error", err)
	}

	snap := sup.Snapshot()
	var found bool
	for _, g := range snap.Goroutines {
		if g.Name == "crasher" && g.Panics == 1 {
			found = true
		}
	}
	if !found {
		t.Fatalf("snapshot missing panic record: %+v", snap.Goroutines)
	}
}

func TestGoRestartRetriesOnError(t *testing.T) {
	t.Parallel()

	sup := NewSupervisor(context.Background())
	var runs int64
	sup.GoRestart("flaky", func(ctx context.Context) error {
		atomic.AddInt64(&runs, 1)
		return errors.New("transient")
	}, WithRestartBackoff(time.Millisecond, 2*time.Millisecond), WithPublishFirstError(true))

	waitFor(t, func() bool { return atomic.LoadInt64(&runs) >= 3 })
	sup.Cancel()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := sup.Wait(ctx); err == nil || !strings.Contains(err.Error(), "transient") {
		t.Fatalf("Wait() = %v, want published first error", err)
	}
}

func TestGoRestartStopsOnCleanExit(t *testing.T) {
	t.Parallel()

	sup := NewSupervisor(context.Background())
	var runs int64
	sup.GoRestart("oneshot", func(ctx context.Context) error {
		atomic.AddInt64(&runs, 1)
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := sup.Wait(ctx); err != nil {
		t.Fatalf("Wait() = %v", err)
	}
	if got := atomic.LoadInt64(&runs); got != 1 {
		t.Fatalf("runs = %d, want 1", got)
	}
}

func TestGoRestartRestartsCleanExitWhenConfigured(t *testing.T) {
	t.Parallel()

	sup := NewSupervisor(context.Background())
	var runs int64
	sup.GoRestart("looper", func(ctx context.Context) error {
		atomic.AddInt64(&runs, 1)
		return nil
	}, WithRestartBackoff(time.Millisecond, 2*time.Millisecond), WithStopOnCleanExit(false))

	waitFor(t, func() bool { return atomic.LoadInt64(&runs) >= 2 })
	sup.Cancel()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = sup.Wait(ctx)
}

func TestWaitHonorsContext(t *testing.T) {
	t.Parallel()

	sup := NewSupervisor(context.Background())
	sup.Go0("blocked", func(ctx context.Context) {
		<-ctx.Done()
	})

	short, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := sup.Wait(short); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Wait() = %v, want deadline exceeded", err)
	}

	sup.Cancel()
	ctx, cancel2 := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel2()
	if err := sup.Wait(ctx); err != nil {
		t.Fatalf("Wait() after cancel = %v", err)
	}
}

func TestCountersTrackLifecycle(t *testing.T) {
	t.Parallel()

	sup := NewSupervisor(context.Background())
	release := make(chan struct{})
	sup.Go0("held", func(ctx context.Context) {
		<-release
	})

	waitFor(t, func() bool { return sup.Counters().Active == 1 })
	if got := sup.Counters().Started; got != 1 {
		t.Fatalf("Started = %d, want 1", got)
	}
	close(release)
	waitFor(t, func() bool { return sup.Counters().Active == 0 })
}
