// Package migration implements the Migration Handler (spec section 4.3):
// probing a sync target's layout version and upgrading it when empty or
// outdated. Grounded on the teacher's bootstrap sequencing in
// internal/sync's NewBaselineManager/runMigrations (probe, then
// transactionally bring the store up to the expected schema) — here
// applied to an opaque remote target instead of a local database.
package migration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/devilkun/joplin/internal/fileapi"
	"github.com/devilkun/joplin/internal/lock"
)

// CurrentVersion is the layout version this client writes and expects.
const CurrentVersion = 3

// ErrOutdatedSyncTarget is raised when the target reports a version
// newer than this client supports.
var ErrOutdatedSyncTarget = errors.New("migration: sync target is newer than this client supports")

const versionPath = ".sync/version.txt"

// Status is the result of CheckCanSync.
type Status struct {
	Version     int  // 0 when the target is empty
	NeedsUpgrade bool // true when Version < CurrentVersion
}

// Handler probes and upgrades a target's layout.
type Handler struct {
	client fileapi.Client
	locks  *lock.Handler
	logger *slog.Logger
}

// New returns a Handler.
func New(client fileapi.Client, locks *lock.Handler, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{client: client, locks: locks, logger: logger}
}

// CheckCanSync probes the target's version. An absent version file means
// the target is empty (fresh bootstrap); a version newer than
// CurrentVersion returns ErrOutdatedSyncTarget.
func (h *Handler) CheckCanSync(ctx context.Context) (Status, error) {
	stat, err := h.client.Stat(ctx, versionPath)
	if err != nil {
		return Status{}, fmt.Errorf("migration: stat version: %w", err)
	}

	if stat == nil {
		return Status{Version: 0, NeedsUpgrade: true}, nil
	}

	raw, err := h.client.Get(ctx, versionPath)
	if err != nil {
		return Status{}, fmt.Errorf("migration: read version: %w", err)
	}

	version, err := strconv.Atoi(string(raw))
	if err != nil {
		return Status{}, fmt.Errorf("migration: parse version %q: %w", raw, err)
	}

	if version > CurrentVersion {
		return Status{Version: version}, fmt.Errorf("%w: target version %d, client supports up to %d",
			ErrOutdatedSyncTarget, version, CurrentVersion)
	}

	return Status{Version: version, NeedsUpgrade: version < CurrentVersion}, nil
}

// Upgrade atomically bootstraps or rewrites the target layout to
// targetVersion, holding the Exclusive lock for the duration so no other
// client observes a half-upgraded target.
func (h *Handler) Upgrade(ctx context.Context, clientID string, targetVersion int) error {
	l, err := h.locks.AcquireLock(ctx, lock.KindExclusive, "", clientID)
	if err != nil {
		return fmt.Errorf("migration: acquire exclusive lock: %w", err)
	}
	defer h.locks.ReleaseLock(ctx, l) //nolint:errcheck

	h.logger.Info("upgrading sync target layout", slog.Int("target_version", targetVersion))

	if err := h.client.Initialize(ctx); err != nil {
		return fmt.Errorf("migration: initialize target: %w", err)
	}

	if err := h.client.Put(ctx, versionPath, []byte(strconv.Itoa(targetVersion)), nil); err != nil {
		return fmt.Errorf("migration: write version: %w", err)
	}

	h.logger.Info("sync target layout upgraded", slog.Int("version", targetVersion))

	return nil
}
