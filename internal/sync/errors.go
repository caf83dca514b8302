// Package sync implements the Synchronizer (spec section 4.1): the core
// orchestrator running the three-phase UPLOAD / DELETE_REMOTE / DELTA
// protocol against an injected File API and Item Store. Grounded on the
// teacher's Engine/RunOnce orchestration shape (internal/sync/engine.go),
// generalized from SyncMode{Bidirectional,DownloadOnly,UploadOnly} file
// phases to this spec's UPLOAD/DELETE_REMOTE/DELTA item phases.
package sync

import (
	"errors"
	"fmt"

	"github.com/devilkun/joplin/internal/lock"
)

// Error kinds surfaced by Start (spec section 7).
var (
	ErrAlreadyStarted        = errors.New("sync: already started")
	ErrProcessingPathTwice   = errors.New("sync: path processed twice in a single upload pass")
	ErrFailSafe              = errors.New("sync: delta fail-safe triggered")
	ErrCannotEncryptEncrypted = errors.New("sync: cannot encrypt an already-encrypted item")
	ErrNoActiveMasterKey     = errors.New("sync: no active master key")
	ErrUnknownItemType       = errors.New("sync: unknown item type; please upgrade")
	ErrCannotSyncItem        = errors.New("sync: item cannot be synced")
)

// tier classifies an error for the purposes of the Classification policy
// in spec section 7.
type tier int

const (
	tierFatal tier = iota
	tierInfo
	tierSkipItem
)

// classifyError maps an error encountered inside a run to a handling
// tier, mirroring the teacher's classifyError in
// internal/sync/executor.go but over this domain's error taxonomy
// instead of HTTP status codes.
func classifyError(err error) tier {
	switch {
	case err == nil:
		return tierInfo
	case errors.Is(err, ErrCannotEncryptEncrypted),
		errors.Is(err, ErrNoActiveMasterKey),
		errors.Is(err, ErrProcessingPathTwice),
		errors.Is(err, ErrFailSafe):
		return tierInfo
	case errors.Is(err, ErrUnknownItemType):
		return tierFatal
	default:
		return tierSkipItem
	}
}

// wrapLockLoss replaces err with a lockError-flavored error when status
// (from lock.Status) is non-empty, so downstream handlers do not
// misinterpret a lock-induced failure as a plain item-level rejection
// (spec section 7 "Re-wrapping under lock loss").
func wrapLockLoss(err error, lockStatus string) error {
	if lockStatus == "" {
		return err
	}

	return fmt.Errorf("%w (%s): %w", lock.ErrLockError, lockStatus, err)
}
