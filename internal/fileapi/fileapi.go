// Package fileapi defines the contract every remote storage backend must
// satisfy to act as a sync target. The engine never talks to a concrete
// backend directly — it depends only on this interface, so any blob store
// (S3, WebDAV, a local directory, a test fake) can stand in as long as it
// implements Client.
package fileapi

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors surfaced by a Client implementation. The engine
// type-switches on these (via errors.Is) to decide per-item vs. fatal
// handling — see internal/sync's error classification.
var (
	ErrFileNotFound    = errors.New("fileapi: file not found")
	ErrRejectedByTarget = errors.New("fileapi: rejected by target")
	ErrRequestTimeout  = errors.New("fileapi: request timeout")
)

// RejectedError carries the backend's stated reason for refusing a put,
// e.g. a size cap or a forbidden character in the path.
type RejectedError struct {
	Path   string
	Reason string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("fileapi: %s: rejected: %s", e.Path, e.Reason)
}

func (e *RejectedError) Unwrap() error {
	return ErrRejectedByTarget
}

// RemoteItem is the shape returned by Stat and Delta.
type RemoteItem struct {
	ID             string
	Path           string
	IsDeleted      bool
	UpdatedTime    int64 // wall-clock mtime on the target; may drift
	JopUpdatedTime int64 // authoritative client updated_time, when advertised
	HasJopUpdatedTime bool
	Size           int64
}

// PutOptions customizes a Put call. When Source is set, content is
// streamed from a local file path instead of the in-memory Content
// buffer — used for large resource blobs.
type PutOptions struct {
	Source  string // local file path; when non-empty, stream from here
	ShareID string
}

// DeltaOptions configures a single Delta call.
type DeltaOptions struct {
	// AllItemIDsHandler is invoked only by backends without native delta
	// support: it supplies the caller's known id set so the backend can
	// diff against it to discover deletions.
	AllItemIDsHandler func(ctx context.Context) (map[string]struct{}, error)

	// WipeOutFailSafe aborts the delta phase if the page reports more
	// deletions than this threshold (0 disables the check).
	WipeOutFailSafe int
}

// DeltaPage is one page of the delta feed.
type DeltaPage struct {
	Items   []RemoteItem
	Context string // opaque continuation; pass back verbatim on the next call
	HasMore bool
}

// Client is the File API contract (spec section 6).
type Client interface {
	// Initialize performs idempotent setup: directory scaffolding,
	// scratch-space creation.
	Initialize(ctx context.Context) error

	// SetTempDirName configures the scratch directory name used under
	// the target root for partial uploads and downloads.
	SetTempDirName(name string)

	// Stat returns metadata for path, or (nil, nil) if absent.
	Stat(ctx context.Context, path string) (*RemoteItem, error)

	// Get retrieves serialized content at path. Returns ErrFileNotFound
	// or a *RejectedError on backend refusal.
	Get(ctx context.Context, path string) ([]byte, error)

	// Put writes content to path, or streams it from a local file when
	// opts.Source is set.
	Put(ctx context.Context, path string, content []byte, opts *PutOptions) error

	// Delete removes path. Idempotent: deleting an absent path is not
	// an error.
	Delete(ctx context.Context, path string) error

	// Delta returns the next page of changes since context (empty
	// string requests a fresh delta from the beginning).
	Delta(ctx context.Context, context string, opts DeltaOptions) (*DeltaPage, error)

	// SyncTargetID returns the stable identifier of this backend.
	SyncTargetID() int

	// SupportsAccurateTimestamp reports whether JopUpdatedTime in
	// listing output exactly equals the client-written updated_time,
	// permitting a skip-if-unchanged optimization during DELTA.
	SupportsAccurateTimestamp() bool

	// SupportsMultiPut reports whether the backend accepts batched
	// small-item uploads in a single request.
	SupportsMultiPut() bool

	// LastRequests returns a diagnostics buffer of recent requests, for
	// inclusion in failSafe/lockError user-visible reports. May return nil.
	LastRequests() []string
}
