package downloadqueue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestPushThenWaitForResult(t *testing.T) {
	q := New(2, nil)
	ctx := context.Background()

	q.Push(ctx, "k1", func(ctx context.Context) ([]byte, error) {
		return []byte("hello"), nil
	})

	res, err := q.WaitForResult(ctx, "k1")
	if err != nil {
		t.Fatalf("WaitForResult = %v", err)
	}

	if string(res.Value) != "hello" {
		t.Errorf("Value = %q, want hello", res.Value)
	}
}

func TestWaitForResultUnknownKey(t *testing.T) {
	q := New(1, nil)

	_, err := q.WaitForResult(context.Background(), "missing")
	if err == nil {
		t.Fatal("expected error for a key that was never pushed")
	}
}

func TestPushSameKeyTwiceRunsOnce(t *testing.T) {
	q := New(2, nil)
	ctx := context.Background()

	var calls int32

	fn := func(ctx context.Context) ([]byte, error) {
		atomic.AddInt32(&calls, 1)
		return []byte("x"), nil
	}

	q.Push(ctx, "k1", fn)
	q.Push(ctx, "k1", fn)

	if _, err := q.WaitForResult(ctx, "k1"); err != nil {
		t.Fatalf("WaitForResult = %v", err)
	}

	q.Wait()

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("fetch ran %d times, want 1", got)
	}
}

func TestBoundedConcurrency(t *testing.T) {
	q := New(1, nil)
	ctx := context.Background()

	var inFlight, maxInFlight int32

	fn := func(ctx context.Context) ([]byte, error) {
		n := atomic.AddInt32(&inFlight, 1)
		if n > atomic.LoadInt32(&maxInFlight) {
			atomic.StoreInt32(&maxInFlight, n)
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return nil, nil
	}

	q.Push(ctx, "a", fn)
	q.Push(ctx, "b", fn)

	if _, err := q.WaitForResult(ctx, "a"); err != nil {
		t.Fatalf("WaitForResult(a) = %v", err)
	}
	if _, err := q.WaitForResult(ctx, "b"); err != nil {
		t.Fatalf("WaitForResult(b) = %v", err)
	}

	if got := atomic.LoadInt32(&maxInFlight); got > 1 {
		t.Errorf("max concurrent fetches = %d, want <= 1", got)
	}
}

func TestStopStillReturnsInFlightResults(t *testing.T) {
	q := New(2, nil)
	ctx := context.Background()

	q.Push(ctx, "k1", func(ctx context.Context) ([]byte, error) {
		return []byte("ok"), nil
	})

	q.Stop()
	q.Wait()

	res, err := q.WaitForResult(ctx, "k1")
	if err != nil {
		t.Fatalf("WaitForResult after Stop = %v", err)
	}

	if string(res.Value) != "ok" {
		t.Errorf("Value = %q, want ok", res.Value)
	}
}

func TestPushAfterStopIsNoOp(t *testing.T) {
	q := New(2, nil)
	ctx := context.Background()

	q.Stop()
	q.Push(ctx, "k1", func(ctx context.Context) ([]byte, error) {
		return []byte("late"), nil
	})

	_, err := q.WaitForResult(ctx, "k1")
	if err == nil {
		t.Fatal("expected WaitForResult to report no job for a key pushed after Stop")
	}
}

func TestFetchErrorPropagates(t *testing.T) {
	q := New(1, nil)
	ctx := context.Background()

	wantErr := errors.New("boom")
	q.Push(ctx, "k1", func(ctx context.Context) ([]byte, error) {
		return nil, wantErr
	})

	res, err := q.WaitForResult(ctx, "k1")
	if err != nil {
		t.Fatalf("WaitForResult = %v", err)
	}

	if !errors.Is(res.Err, wantErr) {
		t.Errorf("res.Err = %v, want %v", res.Err, wantErr)
	}
}
