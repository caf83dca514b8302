// Package store defines the Item Store contract (spec section 2, 6) and
// ships a SQLite-backed reference implementation so internal/sync can be
// exercised end-to-end against a real embedded database, the way the
// teacher's engine_integration_test.go exercises SQLiteStore and
// BaselineManager together rather than only a fake.
package store

import (
	"context"

	"github.com/devilkun/joplin/internal/model"
)

// UploadBatch is the next slice of items needing sync for a target,
// returned by NextUploadBatch.
type UploadBatch struct {
	Items       []model.Item
	NeverSynced map[string]bool // item id -> true if sync_time == 0
	HasMore     bool
}

// ChangeSource records why a local mutation happened, so the store can
// decide whether to re-queue it for outbound sync.
type ChangeSource int

// Change sources.
const (
	ChangeSourceUser ChangeSource = iota
	ChangeSourceSync
)

// SaveOptions controls how Save persists an item coming from the sync
// engine rather than user interaction.
type SaveOptions struct {
	AutoTimestamp bool
	ChangeSource  ChangeSource
	SyncTime      int64 // when > 0, also upserts the sync_items row
	SyncTargetID  int
}

// Store is the Item Store contract. Implementations back the engine's
// local persistent database of items, sync metadata, deleted items, and
// resource fetch state.
type Store interface {
	// NextUploadBatch returns the next batch of items needing sync for
	// targetID, in a stable processing order.
	NextUploadBatch(ctx context.Context, targetID int, offset int, limit int) (*UploadBatch, error)

	// GetByID returns the local item for id, or (nil, nil) if absent.
	GetByID(ctx context.Context, id string) (*model.Item, error)

	// FolderChildren returns the notes whose ParentID is folderID.
	FolderChildren(ctx context.Context, folderID string) ([]model.Item, error)

	// Save persists item under opts, and when opts.SyncTime > 0 also
	// records that sync_time for (item.ID, opts.SyncTargetID).
	Save(ctx context.Context, item model.Item, opts SaveOptions) error

	// Delete removes item by id. When trackDeleted is true, a
	// DeletedItem row is queued for remote removal; set false for
	// deletions originating from DELTA (already reflected remotely).
	Delete(ctx context.Context, id string, itemType model.ItemType, targetID int, trackDeleted bool) error

	// SyncItem returns the per-(target, item) join row, or (nil, nil)
	// if the item has never been seen for this target.
	SyncItem(ctx context.Context, targetID int, itemID string) (*model.SyncItem, error)

	// SetSyncTime records sync_time = updatedTime for (targetID, itemID)
	// after a successful upload.
	SetSyncTime(ctx context.Context, targetID int, itemID string, updatedTime int64) error

	// DisableSync marks an item sync-disabled for targetID with a
	// machine reason code and human message, excluding it from future
	// upload batches until cleared.
	DisableSync(ctx context.Context, targetID int, itemID string, code, msg string) error

	// PendingDeletions returns the Deleted Items queue for targetID.
	PendingDeletions(ctx context.Context, targetID int) ([]model.DeletedItem, error)

	// ConsumeDeletion marks a Deleted Items queue entry handled.
	ConsumeDeletion(ctx context.Context, targetID int, itemID string) error

	// ResourceState returns the fetch state for a resource, or nil if
	// no row exists yet (treated as IDLE by callers).
	ResourceState(ctx context.Context, resourceID string) (*model.ResourceLocalState, error)

	// SetResourceState upserts the fetch state for a resource.
	SetResourceState(ctx context.Context, state model.ResourceLocalState) error

	// MasterKeyCount returns the number of master keys known locally,
	// used to detect the "first observed master key" transition.
	MasterKeyCount(ctx context.Context) (int, error)

	// SaveMasterKey persists a master key observed during DELTA.
	SaveMasterKey(ctx context.Context, id string, content string, createdTime int64) error

	// DeltaContext returns the persisted continuation for targetID, or
	// "" if none has been saved yet.
	DeltaContext(ctx context.Context, targetID int) (string, error)

	// SaveDeltaContext persists the continuation for targetID.
	SaveDeltaContext(ctx context.Context, targetID int, cursor string) error

	// RecordConflict stores a conflict record, returning its generated id.
	RecordConflict(ctx context.Context, targetID int, itemID string, conflictCopyID string, kind string, createdTime int64) (string, error)

	// PurgeOrphanedSyncItems deletes sync_items rows whose item no
	// longer exists in the items table, for targetID.
	PurgeOrphanedSyncItems(ctx context.Context, targetID int) (int, error)

	// Close releases underlying resources.
	Close() error
}
