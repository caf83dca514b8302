// Package lock implements the Lock Handler (spec section 4.2): Sync and
// Exclusive locks on a remote sync target, with client-id attribution and
// auto-refresh. Grounded on the teacher's SessionProvider mutex-protected
// cache pattern (internal/driveops/session.go), generalized from a
// token-source cache to a lock-file cache on the File API.
package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/devilkun/joplin/internal/fileapi"
)

// Kind discriminates the two lock kinds a target recognizes.
type Kind int

const (
	// KindSync is client-identified and refreshable; concurrent Sync
	// locks from different clients are allowed.
	KindSync Kind = iota
	// KindExclusive is mutually exclusive with every other lock,
	// including other clients' Sync locks.
	KindExclusive
)

func (k Kind) String() string {
	if k == KindExclusive {
		return "exclusive"
	}

	return "sync"
}

// Sentinel errors. ErrSyncLockGone and ErrHasExclusiveLock distinguish a
// dropped Sync lock from an adversarial Exclusive lock held by another
// client — the Synchronizer needs this distinction to decide whether
// retrying is ever useful (spec section 4.2).
var (
	ErrLockError        = errors.New("lock: operation failed")
	ErrSyncLockGone      = fmt.Errorf("%w: sync lock lost", ErrLockError)
	ErrHasExclusiveLock  = fmt.Errorf("%w: target holds an exclusive lock", ErrLockError)
)

// Lock is a held lock handle, returned by AcquireLock and passed back to
// ReleaseLock/StartAutoLockRefresh.
type Lock struct {
	Kind     Kind
	ClientID string
	AppType  string
	Path     string
	token    string
}

// Handler manages lock files on a fileapi.Client under the ".sync/"
// prefix (spec section 6 path conventions).
type Handler struct {
	client fileapi.Client
	logger *slog.Logger
	ttl    time.Duration

	mu       sync.Mutex
	refresh  map[string]*refreshLoop // lock path -> running auto-refresh
}

type refreshLoop struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// New returns a Handler. ttl is the duration after which an un-refreshed
// lock is considered expired by other clients.
func New(client fileapi.Client, ttl time.Duration, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		client:  client,
		logger:  logger,
		ttl:     ttl,
		refresh: make(map[string]*refreshLoop),
	}
}

func lockPath(kind Kind, clientID string) string {
	if kind == KindExclusive {
		return ".sync/exclusive.lock"
	}

	return fmt.Sprintf(".sync/%s.sync.lock", clientID)
}

// AcquireLock acquires a lock of the given kind for clientID/appType.
// Exclusive locks fail if any lock (of either kind) is currently active;
// Sync locks fail only if an Exclusive lock is currently active.
func (h *Handler) AcquireLock(ctx context.Context, kind Kind, appType, clientID string) (*Lock, error) {
	if active, err := h.hasExclusiveLock(ctx); err != nil {
		return nil, err
	} else if active {
		return nil, ErrHasExclusiveLock
	}

	if kind == KindExclusive {
		if anyActive, err := h.anySyncLockActive(ctx); err != nil {
			return nil, err
		} else if anyActive {
			return nil, fmt.Errorf("%w: a sync lock is currently active", ErrLockError)
		}
	}

	path := lockPath(kind, clientID)
	token := uuid.NewString()

	content := []byte(fmt.Sprintf("%s\n%s\n%s\n%d\n", token, clientID, appType, time.Now().UnixMilli()))

	if err := h.client.Put(ctx, path, content, nil); err != nil {
		return nil, fmt.Errorf("lock: acquire %s: %w", kind, err)
	}

	h.logger.Info("lock acquired", slog.String("kind", kind.String()), slog.String("client_id", clientID))

	return &Lock{Kind: kind, ClientID: clientID, AppType: appType, Path: path, token: token}, nil
}

// ReleaseLock releases a previously acquired lock. Idempotent: releasing
// an already-released lock is not an error.
func (h *Handler) ReleaseLock(ctx context.Context, l *Lock) error {
	if l == nil {
		return nil
	}

	h.StopAutoLockRefresh(l)

	if err := h.client.Delete(ctx, l.Path); err != nil {
		return fmt.Errorf("lock: release %s: %w", l.Kind, err)
	}

	h.logger.Info("lock released", slog.String("kind", l.Kind.String()), slog.String("client_id", l.ClientID))

	return nil
}

// HasActiveLock reports whether a lock of kind is active. clientID
// narrows the check to a specific client's Sync lock when non-empty;
// ignored for KindExclusive.
func (h *Handler) HasActiveLock(ctx context.Context, kind Kind, clientID string) (bool, error) {
	if kind == KindExclusive {
		return h.hasExclusiveLock(ctx)
	}

	if clientID == "" {
		return h.anySyncLockActive(ctx)
	}

	stat, err := h.client.Stat(ctx, lockPath(KindSync, clientID))
	if err != nil {
		return false, fmt.Errorf("lock: stat sync lock: %w", err)
	}

	return stat != nil && !h.expired(stat.UpdatedTime), nil
}

func (h *Handler) hasExclusiveLock(ctx context.Context) (bool, error) {
	stat, err := h.client.Stat(ctx, lockPath(KindExclusive, ""))
	if err != nil {
		return false, fmt.Errorf("lock: stat exclusive lock: %w", err)
	}

	return stat != nil && !h.expired(stat.UpdatedTime), nil
}

// anySyncLockActive checks whether any client's sync lock is active, by
// listing the .sync/ prefix. Used only when acquiring an Exclusive lock.
func (h *Handler) anySyncLockActive(ctx context.Context) (bool, error) {
	page, err := h.client.Delta(ctx, "", fileapi.DeltaOptions{})
	if err != nil {
		return false, fmt.Errorf("lock: list sync locks: %w", err)
	}

	for _, it := range page.Items {
		if strings.HasPrefix(it.Path, ".sync/") && strings.HasSuffix(it.Path, ".sync.lock") && !it.IsDeleted {
			if !h.expired(it.UpdatedTime) {
				return true, nil
			}
		}
	}

	return false, nil
}

func (h *Handler) expired(updatedTime int64) bool {
	if h.ttl <= 0 {
		return false
	}

	age := time.Since(time.UnixMilli(updatedTime))

	return age > h.ttl
}

// StartAutoLockRefresh periodically rewrites the lock's timestamp so
// other clients do not consider it expired. onError is invoked from the
// refresh goroutine when a refresh attempt fails; the Synchronizer
// responds by flagging the target locked and initiating cancellation.
func (h *Handler) StartAutoLockRefresh(l *Lock, interval time.Duration, onError func(error)) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, running := h.refresh[l.Path]; running {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	h.refresh[l.Path] = &refreshLoop{cancel: cancel, done: done}

	go h.runRefreshLoop(ctx, l, interval, onError, done)
}

func (h *Handler) runRefreshLoop(ctx context.Context, l *Lock, interval time.Duration, onError func(error), done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			content := []byte(fmt.Sprintf("%s\n%s\n%s\n%d\n", l.token, l.ClientID, l.AppType, time.Now().UnixMilli()))
			if err := h.client.Put(ctx, l.Path, content, nil); err != nil {
				h.logger.Warn("lock refresh failed", slog.String("path", l.Path), slog.String("error", err.Error()))
				if onError != nil {
					onError(fmt.Errorf("%w: %s", ErrSyncLockGone, err))
				}

				return
			}
		}
	}
}

// StopAutoLockRefresh halts a running auto-refresh loop for l, if any.
func (h *Handler) StopAutoLockRefresh(l *Lock) {
	if l == nil {
		return
	}

	h.mu.Lock()
	rl, ok := h.refresh[l.Path]
	if ok {
		delete(h.refresh, l.Path)
	}
	h.mu.Unlock()

	if ok {
		rl.cancel()
		<-rl.done
	}
}

// Status re-examines an API error to distinguish a dropped Sync lock
// from an adversarial Exclusive lock, per spec section 7 "re-wrapping
// under lock loss". Returns "" when err is not lock-related.
func Status(err error) string {
	switch {
	case errors.Is(err, ErrSyncLockGone):
		return "syncLockGone"
	case errors.Is(err, ErrHasExclusiveLock):
		return "hasExclusiveLock"
	default:
		return ""
	}
}
