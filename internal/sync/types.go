package sync

import (
	"context"

	"github.com/devilkun/joplin/internal/events"
	"github.com/devilkun/joplin/internal/fileapi"
	"github.com/devilkun/joplin/internal/lock"
	"github.com/devilkun/joplin/internal/migration"
	"github.com/devilkun/joplin/internal/model"
	"github.com/devilkun/joplin/internal/store"
	"github.com/devilkun/joplin/internal/uploader"
)

// Hook is a typed testing-hook name (spec design notes: "promote the
// whitelist strings to a typed enum"). Hooks are consulted only when
// Config.Hooks is set; production use leaves Hooks nil and every check
// below is skipped.
type Hook int

const (
	// HookCancelDeltaLoop2 cancels the run after the second delta page
	// is processed, for testing mid-delta cancellation (scenario S6).
	HookCancelDeltaLoop2 Hook = iota
	// HookNotesRejectedByTarget forces every note upload to fail with
	// fileapi.ErrRejectedByTarget, for testing cannotSyncItem handling.
	HookNotesRejectedByTarget
	// HookSkipRevisions skips Revision items entirely during UPLOAD, for
	// tests that don't want revision churn in their counts. DELTA does
	// not consult it.
	HookSkipRevisions
)

// Hooks is a set of active test hooks, supplied through Config.Hooks.
// Only tests set it.
type Hooks map[Hook]bool

// SaveContextHandler persists a SyncContext so an interrupted run
// resumes without re-scanning (spec section 3 "Sync Context").
type SaveContextHandler func(ctx context.Context, sc model.SyncContext) error

// OnProgress is invoked with a Report snapshot after each upload batch,
// after the delete-remote phase, after each delta page, and at the end
// of the run.
type OnProgress func(model.Report)

// Options configures a single Start call (spec section 4.1).
type Options struct {
	OnProgress         OnProgress
	Context            model.SyncContext
	SyncSteps          []string // subset of "update_remote","delete_remote","delta"; nil = all three
	ThrowOnError       bool
	SaveContextHandler SaveContextHandler
}

func (o Options) hasStep(step string) bool {
	if len(o.SyncSteps) == 0 {
		return true
	}

	for _, s := range o.SyncSteps {
		if s == step {
			return true
		}
	}

	return false
}

// Config holds the collaborators a Synchronizer needs. Client, Store and
// Dispatcher are interfaces, so any File API backend, Item Store or
// event sink can be substituted in tests; Locks, Migration and Uploader
// are the concrete handlers from their packages.
type Config struct {
	Client     fileapi.Client
	Store      store.Store
	Locks      *lock.Handler
	Migration  *migration.Handler
	Uploader   *uploader.Uploader
	Dispatcher events.Dispatcher

	ClientID string
	AppType  string // "desktop", "mobile", "cli" — governs maxResourceSize

	WipeOutFailSafe       int
	MaxResourceSize       int64 // 0 = unbounded
	MaxResourceSizeMobile int64

	Hooks Hooks
}
