package sync

import "github.com/devilkun/joplin/internal/store"

// saveOptsSync builds SaveOptions for a write sourced from the sync
// engine itself (overwriting local with remote content, or materializing
// a delta item) rather than from user interaction.
func saveOptsSync(targetID int, syncTime int64) store.SaveOptions {
	return store.SaveOptions{
		AutoTimestamp: false,
		ChangeSource:  store.ChangeSourceSync,
		SyncTime:      syncTime,
		SyncTargetID:  targetID,
	}
}

// saveOptsLocal builds SaveOptions for a purely local write (a conflict
// duplicate): it carries no sync-time bump of its own, and is sourced as
// a user change since it is a new, user-visible note that must be
// queued outbound to other clients rather than treated as already
// in sync.
func saveOptsLocal() store.SaveOptions {
	return store.SaveOptions{
		AutoTimestamp: false,
		ChangeSource:  store.ChangeSourceUser,
	}
}
