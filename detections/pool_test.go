package detections

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fakeOpen() (*ModelSession, error) {
	return &ModelSession{}, nil
}

func TestPoolAcquireRelease(t *testing.T) {
	pool, err := newSessionPool(2, 50*time.Millisecond, fakeOpen)
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Destroy()

	ctx := context.Background()
	a, err := pool.Acquire(ctx)
	if err != nil {
		t.Fatal(err)
	}
	b, err := pool.Acquire(ctx)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := pool.Acquire(ctx); !errors.Is(err, ErrAcquireTimeout) {
		t.Fatalf("third acquire err = %v, want timeout", err)
	}

	m := pool.Metrics()
	if m.InUse != 2 || m.TotalAcquired != 2 || m.AcquireFailures != 1 || m.Size != 2 {
		t.Errorf("metrics = %+v", m)
	}

	pool.Release(a)
	pool.Release(b)
	if m := pool.Metrics(); m.InUse != 0 || m.TotalReleased != 2 {
		t.Errorf("metrics after release = %+v", m)
	}
}

func TestPoolContextCancel(t *testing.T) {
	pool, err := newSessionPool(1, time.Second, fakeOpen)
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Destroy()

	s, _ := pool.Acquire(context.Background())
	defer pool.Release(s)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := pool.Acquire(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestPoolClosed(t *testing.T) {
	pool, err := newSessionPool(1, time.Second, fakeOpen)
	if err != nil {
		t.Fatal(err)
	}
	s, _ := pool.Acquire(context.Background())
	pool.Destroy()
	pool.Release(s) // destroyed instead of returned

	if _, err := pool.Acquire(context.Background()); !errors.Is(err, ErrPoolClosed) {
		t.Fatalf("err = %v, want ErrPoolClosed", err)
	}
}

func TestPoolOpenFailure(t *testing.T) {
	calls := 0
	open := func() (*ModelSession, error) {
		calls++
		if calls == 2 {
			return nil, errors.New("bad weights")
		}
		return &ModelSession{}, nil
	}
	if _, err := newSessionPool(3, time.Second, open); err == nil {
		t.Fatal("expected error")
	}
}
