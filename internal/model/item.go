// Package model defines the item graph synchronized by the engine:
// folders, notes, resources, tags, note-tag links, revisions, and master
// keys, plus the per-target bookkeeping rows (sync state, deletions,
// resource fetch state) that drive reconciliation.
package model

import (
	"golang.org/x/text/unicode/norm"
)

// ItemType discriminates the polymorphic Item variants.
type ItemType int

// Item variants, per data-model section 3.
const (
	ItemTypeFolder ItemType = iota + 1
	ItemTypeNote
	ItemTypeResource
	ItemTypeTag
	ItemTypeNoteTag
	ItemTypeRevision
	ItemTypeMasterKey
)

// String renders the item type for logging and path derivation.
func (t ItemType) String() string {
	switch t {
	case ItemTypeFolder:
		return "folder"
	case ItemTypeNote:
		return "note"
	case ItemTypeResource:
		return "resource"
	case ItemTypeTag:
		return "tag"
	case ItemTypeNoteTag:
		return "note_tag"
	case ItemTypeRevision:
		return "revision"
	case ItemTypeMasterKey:
		return "master_key"
	default:
		return "unknown"
	}
}

// Item is the common envelope shared by every variant. Variant-specific
// payload (note body, resource blob reference, tag title, ...) is carried
// in Props, which the uploader/store serialize per-variant rather than
// this package modeling each variant's fields individually — the engine
// never inspects note/tag content, only the attributes below.
type Item struct {
	ID       string
	Type     ItemType
	ParentID string // Folder.ID for Note; Note.ID for Resource/NoteTag; "" otherwise
	ShareID  string

	UpdatedTime     int64 // client-assigned epoch millis
	CreatedTime     int64
	UserUpdatedTime int64 // defaults to UpdatedTime when absent
	UserCreatedTime int64 // defaults to CreatedTime when absent

	EncryptionApplied bool

	// Props carries variant-specific fields opaque to the engine (note
	// title/body, tag title, resource mime type/size, ...). Stored as a
	// map so the engine's serialization layer (uploader) can round-trip
	// arbitrary variant schemas without this package knowing them.
	Props map[string]any
}

// NormalizedTitle returns the NFC-normalized title for hashing/path
// derivation. Titles arrive from heterogeneous clients (desktop, mobile,
// web) whose input methods can produce non-canonical Unicode for the same
// visible string; comparing canonical forms keeps systemPath() stable
// across clients.
func (it *Item) NormalizedTitle() string {
	title, _ := it.Props["title"].(string)
	return norm.NFC.String(title)
}

// EffectiveUserUpdatedTime returns UserUpdatedTime, defaulting to
// UpdatedTime when unset (data-model section 3).
func (it *Item) EffectiveUserUpdatedTime() int64 {
	if it.UserUpdatedTime != 0 {
		return it.UserUpdatedTime
	}

	return it.UpdatedTime
}

// EffectiveUserCreatedTime returns UserCreatedTime, defaulting to
// CreatedTime when unset.
func (it *Item) EffectiveUserCreatedTime() int64 {
	if it.UserCreatedTime != 0 {
		return it.UserCreatedTime
	}

	return it.CreatedTime
}

// SyncItem is the per-(target, item) join row (data-model section 3).
// SyncTime == 0 marks a never-synced item.
type SyncItem struct {
	ItemID           string
	ItemType         ItemType
	SyncTargetID     int
	SyncTime         int64
	SyncDisabled     bool
	SyncDisabledCode string // reason machine code, e.g. "tooLargeForSync"
	SyncDisabledMsg  string
}

// NeverSynced reports whether this item has never been uploaded to its target.
func (si *SyncItem) NeverSynced() bool {
	return si.SyncTime == 0
}

// DeletedItem records a local deletion pending remote removal.
type DeletedItem struct {
	ItemID       string
	ItemType     ItemType
	SyncTargetID int
}

// FetchStatus is the Resource Local State fetch lifecycle.
type FetchStatus int

// Resource fetch states (data-model section 3). Uploading requires Done;
// downloading sets Idle so a subsequent fetcher can pick the blob up.
const (
	FetchStatusIdle FetchStatus = iota
	FetchStatusStarted
	FetchStatusDone
	FetchStatusError
)

// ResourceLocalState tracks blob-fetch progress for a Resource item.
type ResourceLocalState struct {
	ResourceID string
	FetchStatus FetchStatus
	FetchError  string
}

// RemoteItem is the shape returned by the File API's Stat/Delta
// operations (data-model section 3).
type RemoteItem struct {
	ID              string
	Path            string
	Type            ItemType
	IsDeleted       bool
	UpdatedTime     int64 // wall-clock mtime on the target; may drift
	JopUpdatedTime  int64 // authoritative client updated_time, when advertised
	HasJopUpdatedTime bool
}

// SyncContext is the opaque continuation handed to/from the delta API.
// Large derived caches are stripped (see StripForPersistence) before the
// engine persists it via the caller-supplied save hook.
type SyncContext struct {
	TargetID int
	Cursor   string         // backend-opaque page/continuation token
	Caches   map[string]any // derived scratch state, not persisted
}

// StripForPersistence returns a copy of the context with Caches removed,
// per data-model invariant: "Large derived caches inside the context are
// stripped before persistence."
func (c SyncContext) StripForPersistence() SyncContext {
	return SyncContext{TargetID: c.TargetID, Cursor: c.Cursor}
}
