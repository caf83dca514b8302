package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/devilkun/joplin/internal/events"
	"github.com/devilkun/joplin/internal/fileapi"
	"github.com/devilkun/joplin/internal/model"
	"github.com/devilkun/joplin/internal/uploader"
)

const uploadBatchSize = 200

// runUpload drives Phase 1 (spec section 4.1 UPLOAD): local changes are
// pushed to the target, one item at a time, with a "done paths" safety
// set guarding against livelock from remote clocks drifting into the
// future or concurrent edits racing the upload.
func (s *Synchronizer) runUpload(ctx context.Context, opts Options) error {
	donePaths := make(map[string]bool)
	offset := 0

	for {
		if s.isCancelling() {
			return nil
		}

		batch, err := s.cfg.Store.NextUploadBatch(ctx, s.cfg.Client.SyncTargetID(), offset, uploadBatchSize)
		if err != nil {
			return s.checkLockStatus(fmt.Errorf("sync: fetch upload batch: %w", err))
		}

		if err := s.cfg.Uploader.PreUploadItems(ctx, neverSyncedItems(batch.Items, batch.NeverSynced)); err != nil {
			s.logger.Warn("pre-upload batch failed, falling back to per-item upload", slog.String("error", err.Error()))
		}

		for _, item := range batch.Items {
			if s.isCancelling() {
				return nil
			}

			if s.hookSkipRevisions() && item.Type == model.ItemTypeRevision {
				continue
			}

			path := uploader.SystemPath(item)

			if donePaths[path] {
				return s.checkLockStatus(fmt.Errorf("%w: %s", ErrProcessingPathTwice, path))
			}

			if err := s.uploadOne(ctx, item, batch.NeverSynced[item.ID]); err != nil {
				if classifyError(err) == tierFatal {
					return s.checkLockStatus(err)
				}

				s.logger.Warn("upload item failed, disabling item", slog.String("item_id", item.ID), slog.String("error", err.Error()))

				if markErr := s.cfg.Store.DisableSync(ctx, s.cfg.Client.SyncTargetID(), item.ID, "cannotSyncItem", err.Error()); markErr != nil {
					s.logger.Error("failed to mark item sync-disabled", slog.String("item_id", item.ID), slog.String("error", markErr.Error()))
				}

				s.dispatch(events.Event{Kind: events.KindHasDisabledSyncItems})
			}

			donePaths[path] = true
		}

		s.snapshot(opts)

		offset += len(batch.Items)

		if !batch.HasMore {
			return nil
		}
	}
}

func neverSyncedItems(items []model.Item, neverSynced map[string]bool) []model.Item {
	out := make([]model.Item, 0, len(items))

	for _, it := range items {
		if neverSynced[it.ID] {
			out = append(out, it)
		}
	}

	return out
}

func (s *Synchronizer) hookSkipRevisions() bool {
	return s.cfg.Hooks != nil && s.cfg.Hooks[HookSkipRevisions]
}

// uploadOne processes a single item per the UPLOAD decision tree of
// spec section 4.1.
func (s *Synchronizer) uploadOne(ctx context.Context, item model.Item, neverSynced bool) error {
	targetID := s.cfg.Client.SyncTargetID()
	path := uploader.SystemPath(item)

	var remote *fileapi.RemoteItem

	if !neverSynced {
		r, err := s.cfg.Client.Stat(ctx, path)
		if err != nil {
			return err
		}

		remote = r
	}

	syncItem, err := s.cfg.Store.SyncItem(ctx, targetID, item.ID)
	if err != nil {
		return fmt.Errorf("sync: load sync_item for %s: %w", item.ID, err)
	}

	syncTime := int64(0)
	if syncItem != nil {
		syncTime = syncItem.SyncTime
	}

	switch {
	case remote == nil && syncTime == 0:
		return s.uploadCreateOrUpdate(ctx, item, path, model.ActionCreateRemote)

	case remote == nil && syncTime > 0:
		return s.handleConflict(ctx, item, nil, conflictKindFor(item.Type))

	default:
		content, err := s.cfg.Client.Get(ctx, path)
		if err != nil {
			return err
		}

		remoteUpdated, remoteHasContent := decodeRemoteUpdatedTime(content)

		if remoteHasContent && remoteUpdated > syncTime {
			return s.handleConflict(ctx, item, remote, conflictKindFor(item.Type))
		}

		return s.uploadCreateOrUpdate(ctx, item, path, model.ActionUpdateRemote)
	}
}

// decodeRemoteUpdatedTime extracts updated_time from a serialized
// remote item's content. The uploader's JSONSerializer round-trips a
// model.Item, so a plain unmarshal of the UpdatedTime field suffices;
// a domain-specific serializer would replace this with its own parse.
func decodeRemoteUpdatedTime(content []byte) (int64, bool) {
	var it model.Item
	if err := unmarshalItem(content, &it); err != nil {
		return 0, false
	}

	return it.UpdatedTime, true
}

func conflictKindFor(t model.ItemType) model.ActionKind {
	switch t {
	case model.ItemTypeNote:
		return model.ActionNoteConflict
	case model.ItemTypeResource:
		return model.ActionResourceConflict
	default:
		return model.ActionItemConflict
	}
}

func (s *Synchronizer) uploadCreateOrUpdate(ctx context.Context, item model.Item, path string, kind model.ActionKind) error {
	if item.Type == model.ItemTypeResource {
		state, err := s.cfg.Store.ResourceState(ctx, item.ID)
		if err != nil {
			return fmt.Errorf("sync: load resource_local_state for %s: %w", item.ID, err)
		}

		if state == nil || state.FetchStatus != model.FetchStatusDone {
			return s.cfg.Store.DisableSync(ctx, s.cfg.Client.SyncTargetID(), item.ID, "resourceNotFetched", "resource blob not yet downloaded locally")
		}

		blobPath, ok := item.Props["localBlobPath"].(string)
		if !ok || blobPath == "" {
			return fmt.Errorf("sync: resource %s missing local blob path", item.ID)
		}

		if err := s.cfg.Uploader.UploadResourceBlob(ctx, item.ID, blobPath); err != nil {
			return rejectOrWrap(err)
		}
	}

	if s.hookNotesRejected(item) {
		return &fileapi.RejectedError{Path: path, Reason: "test hook: notes rejected by target"}
	}

	if err := s.cfg.Uploader.SerializeAndUploadItem(ctx, path, item); err != nil {
		return rejectOrWrap(err)
	}

	if err := s.cfg.Store.SetSyncTime(ctx, s.cfg.Client.SyncTargetID(), item.ID, item.UpdatedTime); err != nil {
		return fmt.Errorf("sync: persist sync_time for %s: %w", item.ID, err)
	}

	s.record(kind)

	s.mu.Lock()
	snap := s.report.Snapshot()
	s.mu.Unlock()

	s.dispatch(events.Event{Kind: events.KindReportUpdate, Report: snap})

	return nil
}

func (s *Synchronizer) hookNotesRejected(item model.Item) bool {
	return s.cfg.Hooks != nil && s.cfg.Hooks[HookNotesRejectedByTarget] && item.Type == model.ItemTypeNote
}

func rejectOrWrap(err error) error {
	var rej *fileapi.RejectedError
	if errors.As(err, &rej) {
		return err
	}

	if errors.Is(err, fileapi.ErrRequestTimeout) {
		return fmt.Errorf("%w: %s", ErrCannotSyncItem, err)
	}

	return err
}
