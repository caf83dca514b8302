package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/devilkun/joplin/internal/fileapi/fileapitest"
)

func TestAcquireSyncLockThenExclusiveFails(t *testing.T) {
	ctx := context.Background()
	client := fileapitest.New(1)
	h := New(client, time.Hour, nil)

	l, err := h.AcquireLock(ctx, KindSync, "desktop", "client-a")
	if err != nil {
		t.Fatalf("AcquireLock(sync) = %v", err)
	}

	if _, err := h.AcquireLock(ctx, KindExclusive, "desktop", "client-b"); err == nil {
		t.Fatal("expected Exclusive acquire to fail while a Sync lock is active")
	}

	if err := h.ReleaseLock(ctx, l); err != nil {
		t.Fatalf("ReleaseLock = %v", err)
	}

	if _, err := h.AcquireLock(ctx, KindExclusive, "desktop", "client-b"); err != nil {
		t.Fatalf("expected Exclusive acquire to succeed once Sync lock released, got %v", err)
	}
}

func TestAcquireSyncLockFailsUnderExclusive(t *testing.T) {
	ctx := context.Background()
	client := fileapitest.New(1)
	h := New(client, time.Hour, nil)

	excl, err := h.AcquireLock(ctx, KindExclusive, "desktop", "client-a")
	if err != nil {
		t.Fatalf("AcquireLock(exclusive) = %v", err)
	}

	_, err = h.AcquireLock(ctx, KindSync, "desktop", "client-b")
	if !errors.Is(err, ErrHasExclusiveLock) {
		t.Fatalf("expected ErrHasExclusiveLock, got %v", err)
	}

	if err := h.ReleaseLock(ctx, excl); err != nil {
		t.Fatalf("ReleaseLock = %v", err)
	}
}

func TestReleaseLockIdempotent(t *testing.T) {
	h := New(fileapitest.New(1), time.Hour, nil)

	if err := h.ReleaseLock(context.Background(), nil); err != nil {
		t.Fatalf("ReleaseLock(nil) = %v", err)
	}
}

func TestExpiredLockIsNotActive(t *testing.T) {
	ctx := context.Background()
	client := fileapitest.New(1)
	h := New(client, time.Millisecond, nil)

	l, err := h.AcquireLock(ctx, KindSync, "desktop", "client-a")
	if err != nil {
		t.Fatalf("AcquireLock = %v", err)
	}
	defer h.ReleaseLock(ctx, l)

	time.Sleep(5 * time.Millisecond)

	active, err := h.HasActiveLock(ctx, KindSync, "client-a")
	if err != nil {
		t.Fatalf("HasActiveLock = %v", err)
	}

	if active {
		t.Error("expected lock past its TTL to be reported inactive")
	}
}

func TestAutoLockRefreshStopsCleanly(t *testing.T) {
	ctx := context.Background()
	client := fileapitest.New(1)
	h := New(client, time.Hour, nil)

	l, err := h.AcquireLock(ctx, KindSync, "desktop", "client-a")
	if err != nil {
		t.Fatalf("AcquireLock = %v", err)
	}

	errCh := make(chan error, 1)
	h.StartAutoLockRefresh(l, 2*time.Millisecond, func(err error) { errCh <- err })

	time.Sleep(10 * time.Millisecond)
	h.StopAutoLockRefresh(l)

	select {
	case err := <-errCh:
		t.Fatalf("unexpected refresh error: %v", err)
	default:
	}

	if err := h.ReleaseLock(ctx, l); err != nil {
		t.Fatalf("ReleaseLock = %v", err)
	}
}

func TestStatusClassifiesLockErrors(t *testing.T) {
	if got := Status(ErrSyncLockGone); got != "syncLockGone" {
		t.Errorf("Status(ErrSyncLockGone) = %q", got)
	}

	if got := Status(ErrHasExclusiveLock); got != "hasExclusiveLock" {
		t.Errorf("Status(ErrHasExclusiveLock) = %q", got)
	}

	if got := Status(errors.New("unrelated")); got != "" {
		t.Errorf("Status(unrelated) = %q, want empty", got)
	}
}
