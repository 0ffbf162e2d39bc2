package core

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestUploadLimiter_Counts(t *testing.T) {
	limiter := NewUploadLimiter(2, time.Second)
	ctx := context.Background()

	steps := []struct {
		name          string
		do            func()
		wantActive    int
		wantAvailable int
	}{
		{"initial", func() {}, 0, 2},
		{"first acquire", func() { mustAcquire(t, limiter, ctx) }, 1, 1},
		{"second acquire", func() { mustAcquire(t, limiter, ctx) }, 2, 0},
		{"first release", limiter.Release, 1, 1},
		{"second release", limiter.Release, 0, 2},
	}

	for _, s := range steps {
		s.do()
		st := limiter.Status()
		if st.Active != s.wantActive || st.Available != s.wantAvailable {
			t.Errorf("%s: status = %+v, want active=%d available=%d",
				s.name, st, s.wantActive, s.wantAvailable)
		}
	}
}

func mustAcquire(t *testing.T, l *UploadLimiter, ctx context.Context) {
	t.Helper()
	if err := l.Acquire(ctx); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
}

func TestUploadLimiter_TimesOutWhenFull(t *testing.T) {
	limiter := NewUploadLimiter(1, 50*time.Millisecond)
	mustAcquire(t, limiter, context.Background())
	defer limiter.Release()

	err := limiter.Acquire(context.Background())
	if !errors.Is(err, ErrTooManyUploads) {
		t.Fatalf("Acquire on full limiter = %v, want ErrTooManyUploads", err)
	}
	if limiter.TryAcquire() {
		t.Fatal("TryAcquire on full limiter succeeded")
	}
}

func TestUploadLimiter_ContextCancelled(t *testing.T) {
	limiter := NewUploadLimiter(1, 5*time.Second)
	mustAcquire(t, limiter, context.Background())
	defer limiter.Release()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- limiter.Acquire(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Acquire = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Acquire did not return after cancellation")
	}
}

func TestUploadLimiter_NeverExceedsMax(t *testing.T) {
	const maxSlots = 3
	limiter := NewUploadLimiter(maxSlots, 5*time.Second)

	var current, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := limiter.Acquire(context.Background()); err != nil {
				t.Errorf("Acquire: %v", err)
				return
			}
			n := current.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			current.Add(-1)
			limiter.Release()
		}()
	}
	wg.Wait()

	if got := peak.Load(); got > maxSlots {
		t.Errorf("peak concurrency = %d, want <= %d", got, maxSlots)
	}
	if got := limiter.ActiveCount(); got != 0 {
		t.Errorf("ActiveCount after all released = %d, want 0", got)
	}
}

func TestUploadLimiter_WaitForDrain(t *testing.T) {
	limiter := NewUploadLimiter(2, time.Second)

	if err := limiter.WaitForDrain(context.Background()); err != nil {
		t.Fatalf("WaitForDrain on idle limiter: %v", err)
	}

	mustAcquire(t, limiter, context.Background())
	mustAcquire(t, limiter, context.Background())

	done := make(chan error, 1)
	go func() { done <- limiter.WaitForDrain(context.Background()) }()

	limiter.Release()
	select {
	case <-done:
		t.Fatal("WaitForDrain returned with one upload active")
	case <-time.After(30 * time.Millisecond):
	}

	limiter.Release()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("WaitForDrain: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("WaitForDrain did not return after all released")
	}
}

func TestUploadLimiter_WaitForDrainCancelled(t *testing.T) {
	limiter := NewUploadLimiter(1, time.Second)
	mustAcquire(t, limiter, context.Background())
	defer limiter.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := limiter.WaitForDrain(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("WaitForDrain = %v, want context.DeadlineExceeded", err)
	}
}

func TestUploadLimiter_Defaults(t *testing.T) {
	limiter := NewUploadLimiter(0, 0)
	if got := limiter.MaxConcurrent(); got != DefaultMaxConcurrentUploads {
		t.Errorf("MaxConcurrent = %d, want %d", got, DefaultMaxConcurrentUploads)
	}
}
