package sync

import (
	"context"
	"fmt"

	"github.com/devilkun/joplin/internal/model"
	"github.com/devilkun/joplin/internal/uploader"
)

// runDeleteRemote drives Phase 2 (spec section 4.1): the Deleted Items
// queue for this target is applied to the remote, then consumed.
func (s *Synchronizer) runDeleteRemote(ctx context.Context, opts Options) error {
	targetID := s.cfg.Client.SyncTargetID()

	pending, err := s.cfg.Store.PendingDeletions(ctx, targetID)
	if err != nil {
		return s.checkLockStatus(fmt.Errorf("sync: load pending deletions: %w", err))
	}

	for _, del := range pending {
		if s.isCancelling() {
			return nil
		}

		path := uploader.SystemPath(model.Item{ID: del.ItemID, Type: del.ItemType})

		if err := s.cfg.Client.Delete(ctx, path); err != nil {
			if classifyError(err) == tierFatal {
				return s.checkLockStatus(err)
			}

			continue
		}

		if del.ItemType == model.ItemTypeResource {
			if err := s.cfg.Client.Delete(ctx, "Resources/"+del.ItemID); err != nil && classifyError(err) == tierFatal {
				return s.checkLockStatus(err)
			}
		}

		if err := s.cfg.Store.ConsumeDeletion(ctx, targetID, del.ItemID); err != nil {
			return fmt.Errorf("sync: consume deletion for %s: %w", del.ItemID, err)
		}

		s.record(model.ActionDeleteRemote)
	}

	s.snapshot(opts)

	return nil
}
