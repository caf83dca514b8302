package sync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/devilkun/joplin/internal/events"
	"github.com/devilkun/joplin/internal/fileapi"
	"github.com/devilkun/joplin/internal/model"
)

// conflictsFolderID is the well-known folder id conflict duplicates are
// filed under. A real deployment would resolve this via the Item Store
// (creating it on first use); the engine treats it as opaque.
const conflictsFolderID = "__conflicts__"

// handleConflict implements the UPLOAD-phase conflict branches of spec
// section 4.1: itemConflict overwrites local with remote (or deletes
// local if remote is gone); noteConflict additionally duplicates the
// local note into the Conflicts folder when the divergence is user-
// material; resourceConflict always records a conflict row and forces a
// re-download.
func (s *Synchronizer) handleConflict(ctx context.Context, local model.Item, remote *fileapi.RemoteItem, kind model.ActionKind) error {
	switch kind {
	case model.ActionNoteConflict:
		return s.resolveNoteConflict(ctx, local, remote)
	case model.ActionResourceConflict:
		return s.resolveResourceConflict(ctx, local, remote)
	default:
		return s.resolveItemConflict(ctx, local, remote)
	}
}

// resolveItemConflict overwrites local with remote content when present,
// or deletes the local copy when the remote is gone — tagged as a
// sync-sourced change so it is not re-queued outbound.
func (s *Synchronizer) resolveItemConflict(ctx context.Context, local model.Item, remote *fileapi.RemoteItem) error {
	targetID := s.cfg.Client.SyncTargetID()

	if remote == nil {
		if err := s.cfg.Store.Delete(ctx, local.ID, local.Type, targetID, false); err != nil {
			return fmt.Errorf("sync: delete local %s after item conflict: %w", local.ID, err)
		}
	} else {
		content, err := s.cfg.Client.Get(ctx, remote.Path)
		if err != nil {
			return err
		}

		var remoteItem model.Item
		if err := unmarshalItem(content, &remoteItem); err != nil {
			return fmt.Errorf("%w: decode remote %s", ErrUnknownItemType, local.ID)
		}

		if err := s.cfg.Store.Save(ctx, remoteItem, saveOptsSync(targetID, remoteItem.UpdatedTime)); err != nil {
			return fmt.Errorf("sync: overwrite local %s from remote: %w", local.ID, err)
		}
	}

	s.record(model.ActionItemConflict)

	return nil
}

// resolveNoteConflict duplicates the note into the Conflicts folder when
// mustHandleConflict reports the divergence is user-material, then
// always behaves as resolveItemConflict for the original note.
func (s *Synchronizer) resolveNoteConflict(ctx context.Context, local model.Item, remote *fileapi.RemoteItem) error {
	targetID := s.cfg.Client.SyncTargetID()

	if mustHandleConflict(local, remote) {
		dup := duplicateNote(local)

		if err := s.cfg.Store.Save(ctx, dup, saveOptsLocal()); err != nil {
			return fmt.Errorf("sync: create conflict duplicate for %s: %w", local.ID, err)
		}

		if _, err := s.cfg.Store.RecordConflict(ctx, targetID, local.ID, dup.ID, "note", time.Now().UnixMilli()); err != nil {
			s.logger.Warn("failed to record conflict", slog.String("item_id", local.ID), slog.String("error", err.Error()))
		}

		s.record(model.ActionCreateLocal)
	}

	if err := s.resolveItemConflict(ctx, local, remote); err != nil {
		return err
	}

	s.record(model.ActionNoteConflict)

	return nil
}

// resolveResourceConflict unconditionally records a "resource" conflict
// row for the Resource (with no duplicate id: no conflict note is
// created), overwrites local metadata when a remote exists, and forces
// fetch_status back to IDLE so a later fetcher redownloads the blob.
func (s *Synchronizer) resolveResourceConflict(ctx context.Context, local model.Item, remote *fileapi.RemoteItem) error {
	targetID := s.cfg.Client.SyncTargetID()

	if _, err := s.cfg.Store.RecordConflict(ctx, targetID, local.ID, "", "resource", time.Now().UnixMilli()); err != nil {
		s.logger.Warn("failed to record resource conflict", slog.String("item_id", local.ID), slog.String("error", err.Error()))
	}

	if remote != nil {
		content, err := s.cfg.Client.Get(ctx, remote.Path)
		if err != nil {
			return err
		}

		var remoteItem model.Item
		if err := unmarshalItem(content, &remoteItem); err != nil {
			return fmt.Errorf("%w: decode remote resource %s", ErrUnknownItemType, local.ID)
		}

		if err := s.cfg.Store.Save(ctx, remoteItem, saveOptsSync(targetID, remoteItem.UpdatedTime)); err != nil {
			return fmt.Errorf("sync: overwrite local resource %s: %w", local.ID, err)
		}
	}

	if err := s.cfg.Store.SetResourceState(ctx, model.ResourceLocalState{ResourceID: local.ID, FetchStatus: model.FetchStatusIdle}); err != nil {
		return fmt.Errorf("sync: reset resource_local_state for %s: %w", local.ID, err)
	}

	s.record(model.ActionResourceConflict)
	s.dispatch(events.Event{Kind: events.KindCreatedOrUpdatedResource, ResourceID: local.ID})

	return nil
}

// mustHandleConflict reports whether a conflicting local note warrants a
// duplicate: always when the remote is gone, otherwise whenever the
// local note has a non-empty title or body. It does not compare the
// local note with the remote content, so a divergence confined to other
// fields (e.g. todo_completed) still produces a duplicate.
func mustHandleConflict(local model.Item, remote *fileapi.RemoteItem) bool {
	if remote == nil {
		return true
	}

	localBody, _ := local.Props["body"].(string)
	localTitle := local.NormalizedTitle()

	return localBody != "" || localTitle != ""
}

// duplicateNote clones local into a new item under the Conflicts
// folder, with a fresh id so both copies survive independently.
func duplicateNote(local model.Item) model.Item {
	dup := local
	dup.ID = uuid.NewString()
	dup.ParentID = conflictsFolderID
	dup.Props = cloneProps(local.Props)
	now := time.Now().UnixMilli()
	dup.UpdatedTime = now
	dup.CreatedTime = now

	return dup
}

func cloneProps(props map[string]any) map[string]any {
	if props == nil {
		return nil
	}

	cp := make(map[string]any, len(props))
	for k, v := range props {
		cp[k] = v
	}

	return cp
}
