package sync

import (
	"context"
	"testing"
	"time"

	"github.com/devilkun/joplin/internal/events"
	"github.com/devilkun/joplin/internal/fileapi/fileapitest"
	"github.com/devilkun/joplin/internal/lock"
	"github.com/devilkun/joplin/internal/model"
	"github.com/devilkun/joplin/internal/store"
	"github.com/devilkun/joplin/internal/uploader"
)

func newTestEngineWithConfig(t *testing.T, client *fileapitest.Client, mutate func(*Config)) (*Synchronizer, store.Store) {
	t.Helper()

	st, err := store.NewSQLiteStore(context.Background(), ":memory:", nil)
	if err != nil {
		t.Fatalf("NewSQLiteStore = %v", err)
	}
	t.Cleanup(func() { st.Close() })

	cfg := Config{
		Client:   client,
		Store:    st,
		Locks:    lock.New(client, time.Hour, nil),
		Uploader: uploader.New(client, nil, nil),
		ClientID: "client-a",
		AppType:  "desktop",
	}
	if mutate != nil {
		mutate(&cfg)
	}

	return New(cfg, nil), st
}

func TestOversizedResourceIsDisabledNotDownloaded(t *testing.T) {
	ctx := context.Background()
	client := fileapitest.New(1)

	resource := model.Item{ID: "res1", Type: model.ItemTypeResource, UpdatedTime: 10, Props: map[string]any{"size": float64(500)}}
	client.Seed("Resources/res1", "res1", itemJSON(t, resource), 10, 10, false)

	engine, st := newTestEngineWithConfig(t, client, func(c *Config) {
		c.AppType = "mobile"
		c.MaxResourceSizeMobile = 100
	})

	if _, err := engine.Start(ctx, Options{SyncSteps: []string{"delta"}, ThrowOnError: true}); err != nil {
		t.Fatalf("Start = %v", err)
	}

	got, err := st.GetByID(ctx, "res1")
	if err != nil {
		t.Fatalf("GetByID = %v", err)
	}
	if got != nil {
		t.Fatal("oversized resource should not be saved locally")
	}

	si, err := st.SyncItem(ctx, 1, "res1")
	if err != nil {
		t.Fatalf("SyncItem = %v", err)
	}
	if si == nil || !si.SyncDisabled || si.SyncDisabledCode != "tooLargeForSync" {
		t.Fatalf("SyncItem = %+v, want sync-disabled with tooLargeForSync", si)
	}
}

func TestFirstMasterKeyTriggersEncryptionEvent(t *testing.T) {
	ctx := context.Background()
	client := fileapitest.New(1)

	mk := model.Item{ID: "mk1", Type: model.ItemTypeMasterKey, UpdatedTime: 10, CreatedTime: 10, Props: map[string]any{"content": "cipher-blob"}}
	client.Seed("mk1.md", "mk1", itemJSON(t, mk), 10, 10, false)

	var gotEncryptedEvents int
	engine, st := newTestEngineWithConfig(t, client, func(c *Config) {
		c.Dispatcher = events.Func(func(e events.Event) {
			if e.Kind == events.KindGotEncryptedItem {
				gotEncryptedEvents++
			}
		})
	})

	if _, err := engine.Start(ctx, Options{SyncSteps: []string{"delta"}, ThrowOnError: true}); err != nil {
		t.Fatalf("Start = %v", err)
	}

	n, err := st.MasterKeyCount(ctx)
	if err != nil {
		t.Fatalf("MasterKeyCount = %v", err)
	}
	if n != 1 {
		t.Fatalf("MasterKeyCount = %d, want 1", n)
	}

	if gotEncryptedEvents != 1 {
		t.Errorf("GotEncryptedItem dispatches = %d, want 1 for the first observed master key", gotEncryptedEvents)
	}
}

func TestRemoteDeletedFolderWithNotesMarksConflictsBeforeDeleting(t *testing.T) {
	ctx := context.Background()
	client := fileapitest.New(1)
	client.SeedDeleted("folder1.md", "folder1", 500)

	engine, st := newTestEngineWithConfig(t, client, nil)

	folder := model.Item{ID: "folder1", Type: model.ItemTypeFolder, Props: map[string]any{}}
	if err := st.Save(ctx, folder, store.SaveOptions{SyncTime: 100, SyncTargetID: 1}); err != nil {
		t.Fatalf("Save folder = %v", err)
	}

	note := model.Item{ID: "note1", Type: model.ItemTypeNote, ParentID: "folder1", Props: map[string]any{}}
	if err := st.Save(ctx, note, store.SaveOptions{SyncTime: 100, SyncTargetID: 1}); err != nil {
		t.Fatalf("Save note = %v", err)
	}

	if _, err := engine.Start(ctx, Options{SyncSteps: []string{"delta"}, ThrowOnError: true}); err != nil {
		t.Fatalf("Start = %v", err)
	}

	gotFolder, err := st.GetByID(ctx, "folder1")
	if err != nil {
		t.Fatalf("GetByID(folder1) = %v", err)
	}
	if gotFolder != nil {
		t.Error("folder deleted remotely should be deleted locally once delta completes")
	}

	snap := engine.report.Snapshot()
	if snap.NoteConflict != 1 {
		t.Errorf("NoteConflict = %d, want 1 for the note orphaned by the folder deletion", snap.NoteConflict)
	}
}

func TestRemoteDeletedFolderDeletedAfterDelta(t *testing.T) {
	ctx := context.Background()
	client := fileapitest.New(1)
	client.SeedDeleted("folder1.md", "folder1", 500)

	engine, st := newTestEngineWithConfig(t, client, nil)

	folder := model.Item{ID: "folder1", Type: model.ItemTypeFolder, Props: map[string]any{}}
	if err := st.Save(ctx, folder, store.SaveOptions{SyncTime: 100, SyncTargetID: 1}); err != nil {
		t.Fatalf("Save = %v", err)
	}

	if _, err := engine.Start(ctx, Options{SyncSteps: []string{"delta"}, ThrowOnError: true}); err != nil {
		t.Fatalf("Start = %v", err)
	}

	got, err := st.GetByID(ctx, "folder1")
	if err != nil {
		t.Fatalf("GetByID = %v", err)
	}
	if got != nil {
		t.Error("folder deleted remotely should be deleted locally once delta completes")
	}
}
