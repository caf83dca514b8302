package sync

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/devilkun/joplin/internal/downloadqueue"
	"github.com/devilkun/joplin/internal/events"
	"github.com/devilkun/joplin/internal/fileapi"
	"github.com/devilkun/joplin/internal/model"
)

const defaultDownloadQueueConcurrency = 8

// runDelta drives Phase 3 (spec section 4.1): the remote→local
// direction, paginated via an opaque continuation persisted after each
// fully-processed page.
func (s *Synchronizer) runDelta(ctx context.Context, opts Options) (model.SyncContext, error) {
	queue := downloadqueue.New(defaultDownloadQueueConcurrency, s.logger)
	defer queue.Stop()

	targetID := s.cfg.Client.SyncTargetID()
	cursor := opts.Context.Cursor

	var localFoldersToDelete []string

	masterKeyCountBefore, err := s.cfg.Store.MasterKeyCount(ctx)
	if err != nil {
		return opts.Context, fmt.Errorf("sync: count master keys: %w", err)
	}

	pageNum := 0

	for {
		if s.isCancelling() {
			return model.SyncContext{TargetID: targetID, Cursor: cursor}, nil
		}

		page, err := s.cfg.Client.Delta(ctx, cursor, fileapi.DeltaOptions{WipeOutFailSafe: s.cfg.WipeOutFailSafe})
		if err != nil {
			return model.SyncContext{TargetID: targetID, Cursor: cursor}, s.checkLockStatus(classifyDeltaError(err))
		}

		pageNum++

		if err := s.processDeltaPage(ctx, queue, page, targetID, masterKeyCountBefore, &localFoldersToDelete); err != nil {
			return model.SyncContext{TargetID: targetID, Cursor: cursor}, err
		}

		s.snapshot(opts)

		if s.isCancelling() {
			// The in-flight page's context is discarded: resume re-visits
			// this page from the last fully-processed cursor (spec
			// section 4.1 step 5, section 5 "Cancellation semantics").
			return model.SyncContext{TargetID: targetID, Cursor: cursor}, nil
		}

		cursor = page.Context

		if opts.SaveContextHandler != nil {
			persisted := model.SyncContext{TargetID: targetID, Cursor: cursor}.StripForPersistence()
			if err := opts.SaveContextHandler(ctx, persisted); err != nil {
				s.logger.Warn("failed to persist delta context", slog.String("error", err.Error()))
			}
		}

		if s.hookCancelAfterPage2() && pageNum >= 2 {
			s.mu.Lock()
			s.cancelling = true
			s.mu.Unlock()
		}

		if !page.HasMore {
			break
		}
	}

	if err := s.finishFolderDeletions(ctx, targetID, localFoldersToDelete); err != nil {
		return model.SyncContext{TargetID: targetID, Cursor: cursor}, err
	}

	purged, err := s.cfg.Store.PurgeOrphanedSyncItems(ctx, targetID)
	if err != nil {
		s.logger.Warn("failed to purge orphaned sync_items", slog.String("error", err.Error()))
	} else if purged > 0 {
		s.logger.Debug("purged orphaned sync_items", slog.Int("count", purged))
	}

	return model.SyncContext{TargetID: targetID, Cursor: cursor}, nil
}

func (s *Synchronizer) hookCancelAfterPage2() bool {
	return s.cfg.Hooks != nil && s.cfg.Hooks[HookCancelDeltaLoop2]
}

// classifyDeltaError wraps every error returned by a Delta call as
// ErrFailSafe, whatever its cause, so the top-level classification
// policy treats it as informational rather than a generic fatal error.
func classifyDeltaError(err error) error {
	return fmt.Errorf("%w: %s", ErrFailSafe, err)
}

func isSystemPath(path string) bool {
	if strings.HasPrefix(path, ".sync/") || strings.HasPrefix(path, ".resource/") {
		return false
	}

	return strings.HasSuffix(path, ".md") || strings.HasPrefix(path, "Resources/")
}

// processDeltaPage implements spec section 4.1 steps 3-4: precompute
// needsToDownload, enqueue fetches, then process each remote in list
// order.
func (s *Synchronizer) processDeltaPage(
	ctx context.Context,
	queue *downloadqueue.Queue,
	page *fileapi.DeltaPage,
	targetID int,
	masterKeyCountBefore int,
	localFoldersToDelete *[]string,
) error {
	accurate := s.cfg.Client.SupportsAccurateTimestamp()

	for _, remote := range page.Items {
		if !isSystemPath(remote.Path) || remote.IsDeleted {
			continue
		}

		local, err := s.cfg.Store.GetByID(ctx, remote.ID)
		if err != nil {
			return fmt.Errorf("sync: load local %s: %w", remote.ID, err)
		}

		if needsToDownload(local, remote, accurate) {
			rp := remote.Path
			queue.Push(ctx, remote.ID, func(ctx context.Context) ([]byte, error) {
				return s.cfg.Client.Get(ctx, rp)
			})
		}
	}

	for _, remote := range page.Items {
		if s.isCancelling() {
			return nil
		}

		if !isSystemPath(remote.Path) {
			continue
		}

		if err := s.processDeltaItem(ctx, queue, remote, targetID, masterKeyCountBefore, localFoldersToDelete); err != nil {
			if classifyError(err) == tierFatal {
				return err
			}

			s.logger.Warn("delta item failed", slog.String("item_id", remote.ID), slog.String("error", err.Error()))
		}
	}

	return nil
}

func needsToDownload(local *model.Item, remote fileapi.RemoteItem, accurateTimestamps bool) bool {
	if remote.IsDeleted {
		return false
	}

	if local == nil {
		return true
	}

	if accurateTimestamps && remote.HasJopUpdatedTime && local.UpdatedTime == remote.JopUpdatedTime {
		return false
	}

	return true
}

func (s *Synchronizer) processDeltaItem(
	ctx context.Context,
	queue *downloadqueue.Queue,
	remote fileapi.RemoteItem,
	targetID int,
	masterKeyCountBefore int,
	localFoldersToDelete *[]string,
) error {
	local, err := s.cfg.Store.GetByID(ctx, remote.ID)
	if err != nil {
		return fmt.Errorf("sync: load local %s: %w", remote.ID, err)
	}

	switch {
	case local == nil && !remote.IsDeleted:
		return s.deltaCreateLocal(ctx, queue, remote, targetID, masterKeyCountBefore)

	case local != nil && remote.IsDeleted:
		return s.deltaDeleteLocal(ctx, *local, targetID, localFoldersToDelete)

	case local != nil && !remote.IsDeleted:
		res, err := queue.WaitForResult(ctx, remote.ID)
		if err != nil {
			return nil // not enqueued: nothing changed (needsToDownload said skip)
		}
		if res.Err != nil {
			return res.Err
		}

		var remoteItem model.Item
		if err := unmarshalItem(res.Value, &remoteItem); err != nil {
			return fmt.Errorf("%w: decode %s", ErrUnknownItemType, remote.ID)
		}

		if remoteItem.UpdatedTime <= local.UpdatedTime {
			return nil
		}

		return s.deltaUpdateLocal(ctx, remoteItem, targetID, masterKeyCountBefore)

	default:
		return nil
	}
}

func (s *Synchronizer) deltaCreateLocal(ctx context.Context, queue *downloadqueue.Queue, remote fileapi.RemoteItem, targetID int, masterKeyCountBefore int) error {
	res, err := queue.WaitForResult(ctx, remote.ID)
	if err != nil {
		return fmt.Errorf("sync: no download queued for %s: %w", remote.ID, err)
	}
	if res.Err != nil {
		return res.Err
	}

	var item model.Item
	if err := unmarshalItem(res.Value, &item); err != nil {
		return fmt.Errorf("%w: decode %s", ErrUnknownItemType, remote.ID)
	}

	backfillUserTimestamps(&item)

	if item.Type == model.ItemTypeResource {
		if rejected, reason := s.resourceExceedsLimit(item); rejected {
			if err := s.cfg.Store.DisableSync(ctx, targetID, item.ID, "tooLargeForSync", reason); err != nil {
				return fmt.Errorf("sync: disable oversized resource %s: %w", item.ID, err)
			}

			s.dispatch(events.Event{Kind: events.KindHasDisabledSyncItems})

			return nil
		}

		if err := s.cfg.Store.SetResourceState(ctx, model.ResourceLocalState{ResourceID: item.ID, FetchStatus: model.FetchStatusIdle}); err != nil {
			return fmt.Errorf("sync: seed resource_local_state for %s: %w", item.ID, err)
		}
	}

	if err := s.cfg.Store.Save(ctx, item, saveOptsSync(targetID, item.UpdatedTime)); err != nil {
		return fmt.Errorf("sync: save new local item %s: %w", item.ID, err)
	}

	s.maybeAutoEnableEncryption(ctx, item, masterKeyCountBefore)

	s.record(model.ActionCreateLocal)

	if item.Type == model.ItemTypeResource {
		s.dispatch(events.Event{Kind: events.KindCreatedOrUpdatedResource, ResourceID: item.ID})
	}

	return nil
}

func (s *Synchronizer) deltaUpdateLocal(ctx context.Context, item model.Item, targetID int, masterKeyCountBefore int) error {
	backfillUserTimestamps(&item)

	if item.Type == model.ItemTypeResource {
		if rejected, reason := s.resourceExceedsLimit(item); rejected {
			if err := s.cfg.Store.DisableSync(ctx, targetID, item.ID, "tooLargeForSync", reason); err != nil {
				return fmt.Errorf("sync: disable oversized resource %s: %w", item.ID, err)
			}

			s.dispatch(events.Event{Kind: events.KindHasDisabledSyncItems})

			return nil
		}
	}

	if err := s.cfg.Store.Save(ctx, item, saveOptsSync(targetID, item.UpdatedTime)); err != nil {
		return fmt.Errorf("sync: save updated local item %s: %w", item.ID, err)
	}

	s.maybeAutoEnableEncryption(ctx, item, masterKeyCountBefore)

	s.record(model.ActionUpdateLocal)

	if item.Type == model.ItemTypeResource {
		s.dispatch(events.Event{Kind: events.KindCreatedOrUpdatedResource, ResourceID: item.ID})
	}

	return nil
}

// deltaDeleteLocal defers folders to localFoldersToDelete (processed
// after the whole run); other types delete immediately, untracked so
// the deletion is not re-queued outbound.
func (s *Synchronizer) deltaDeleteLocal(ctx context.Context, local model.Item, targetID int, localFoldersToDelete *[]string) error {
	if local.Type == model.ItemTypeFolder {
		*localFoldersToDelete = append(*localFoldersToDelete, local.ID)
		return nil
	}

	if err := s.cfg.Store.Delete(ctx, local.ID, local.Type, targetID, false); err != nil {
		return fmt.Errorf("sync: delete local %s: %w", local.ID, err)
	}

	s.record(model.ActionDeleteLocal)

	return nil
}

// finishFolderDeletions implements spec section 4.1 step 6: a folder
// whose note-set is non-empty at this point is a cross-client conflict
// (notes there were not simultaneously deleted) — its contained notes
// are marked as conflicts, then the folder is deleted without recursing
// into children and without tracking the deletion.
func (s *Synchronizer) finishFolderDeletions(ctx context.Context, targetID int, folderIDs []string) error {
	for _, folderID := range folderIDs {
		if s.isCancelling() {
			return nil
		}

		children, err := s.folderNotes(ctx, folderID)
		if err != nil {
			return err
		}

		for _, note := range children {
			if _, err := s.cfg.Store.RecordConflict(ctx, targetID, note.ID, "", "note", time.Now().UnixMilli()); err != nil {
				s.logger.Warn("failed to record folder-deletion conflict", slog.String("item_id", note.ID), slog.String("error", err.Error()))
			}

			s.record(model.ActionNoteConflict)
		}

		if err := s.cfg.Store.Delete(ctx, folderID, model.ItemTypeFolder, targetID, false); err != nil {
			return fmt.Errorf("sync: delete folder %s: %w", folderID, err)
		}

		s.record(model.ActionDeleteLocal)
	}

	return nil
}

// folderNotes returns the notes still filed under folderID.
func (s *Synchronizer) folderNotes(ctx context.Context, folderID string) ([]model.Item, error) {
	return s.cfg.Store.FolderChildren(ctx, folderID)
}

func (s *Synchronizer) resourceExceedsLimit(item model.Item) (bool, string) {
	limit := s.cfg.MaxResourceSize
	if s.cfg.AppType == "mobile" {
		limit = s.cfg.MaxResourceSizeMobile
	}

	if limit <= 0 {
		return false, ""
	}

	size, _ := item.Props["size"].(float64)
	if int64(size) >= limit {
		return true, fmt.Sprintf("resource size %d exceeds limit %d", int64(size), limit)
	}

	return false, ""
}

func (s *Synchronizer) maybeAutoEnableEncryption(ctx context.Context, item model.Item, countBefore int) {
	if item.Type != model.ItemTypeMasterKey {
		if item.EncryptionApplied {
			s.dispatch(events.Event{Kind: events.KindGotEncryptedItem})
		}

		return
	}

	content, _ := item.Props["content"].(string)
	if err := s.cfg.Store.SaveMasterKey(ctx, item.ID, content, item.CreatedTime); err != nil {
		s.logger.Warn("failed to save master key", slog.String("item_id", item.ID), slog.String("error", err.Error()))
		return
	}

	if countBefore == 0 {
		s.logger.Info("first master key observed", slog.String("item_id", item.ID))
		s.dispatch(events.Event{Kind: events.KindGotEncryptedItem})
	}
}

func backfillUserTimestamps(item *model.Item) {
	if item.UserUpdatedTime == 0 {
		item.UserUpdatedTime = item.UpdatedTime
	}
	if item.UserCreatedTime == 0 {
		item.UserCreatedTime = item.CreatedTime
	}
}
