package sync

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/devilkun/joplin/internal/fileapi"
	"github.com/devilkun/joplin/internal/fileapi/fileapitest"
	"github.com/devilkun/joplin/internal/lock"
	"github.com/devilkun/joplin/internal/model"
	"github.com/devilkun/joplin/internal/store"
	"github.com/devilkun/joplin/internal/uploader"
)

func newTestEngine(t *testing.T, client *fileapitest.Client) (*Synchronizer, store.Store) {
	t.Helper()

	st, err := store.NewSQLiteStore(context.Background(), ":memory:", nil)
	if err != nil {
		t.Fatalf("NewSQLiteStore = %v", err)
	}
	t.Cleanup(func() { st.Close() })

	locks := lock.New(client, time.Hour, nil)
	up := uploader.New(client, nil, nil)

	return New(Config{
		Client:   client,
		Store:    st,
		Locks:    locks,
		Uploader: up,
		ClientID: "client-a",
		AppType:  "desktop",
	}, nil), st
}

func itemJSON(t *testing.T, item model.Item) []byte {
	t.Helper()

	b, err := json.Marshal(item)
	if err != nil {
		t.Fatalf("marshal item: %v", err)
	}

	return b
}

func TestFreshBootstrapDownloadsRemoteNote(t *testing.T) {
	ctx := context.Background()
	client := fileapitest.New(1)

	remoteNote := model.Item{ID: "note1", Type: model.ItemTypeNote, UpdatedTime: 1000, CreatedTime: 1000, Props: map[string]any{"title": "hello"}}
	client.Seed("note1.md", "note1", itemJSON(t, remoteNote), 1000, 1000, false)

	engine, st := newTestEngine(t, client)

	out, err := engine.Start(ctx, Options{SyncSteps: []string{"delta"}, ThrowOnError: true})
	if err != nil {
		t.Fatalf("Start = %v", err)
	}

	if out.TargetID != 1 {
		t.Errorf("SyncContext.TargetID = %d, want 1", out.TargetID)
	}

	got, err := st.GetByID(ctx, "note1")
	if err != nil {
		t.Fatalf("GetByID = %v", err)
	}
	if got == nil {
		t.Fatal("expected note1 to be created locally")
	}
	if got.Props["title"] != "hello" {
		t.Errorf("Props[title] = %v, want hello", got.Props["title"])
	}
}

func TestSecondRunIsIdempotent(t *testing.T) {
	ctx := context.Background()
	client := fileapitest.New(1)

	remoteNote := model.Item{ID: "note1", Type: model.ItemTypeNote, UpdatedTime: 1000, CreatedTime: 1000, Props: map[string]any{"title": "hello"}}
	client.Seed("note1.md", "note1", itemJSON(t, remoteNote), 1000, 1000, false)

	engine, _ := newTestEngine(t, client)

	if _, err := engine.Start(ctx, Options{SyncSteps: []string{"delta"}, ThrowOnError: true}); err != nil {
		t.Fatalf("first Start = %v", err)
	}

	first := engine.report.Snapshot()
	if first.CreateLocal != 1 {
		t.Errorf("first run CreateLocal = %d, want 1", first.CreateLocal)
	}

	if _, err := engine.Start(ctx, Options{SyncSteps: []string{"delta"}, ThrowOnError: true}); err != nil {
		t.Fatalf("second Start = %v", err)
	}

	// The report is reset at the start of every run, so this snapshot
	// holds the second run's counters only.
	snap := engine.report.Snapshot()
	if snap.CreateLocal != 0 {
		t.Errorf("second run CreateLocal = %d, want 0 (second run must not re-create)", snap.CreateLocal)
	}
	if snap.UpdateLocal != 0 {
		t.Errorf("second run UpdateLocal = %d, want 0", snap.UpdateLocal)
	}
}

func TestStartWhileInProgressReturnsErrAlreadyStarted(t *testing.T) {
	client := fileapitest.New(1)
	engine, _ := newTestEngine(t, client)

	if err := engine.enter(); err != nil {
		t.Fatalf("enter = %v", err)
	}
	defer engine.leave()

	_, err := engine.Start(context.Background(), Options{ThrowOnError: true})
	if !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("Start while in_progress = %v, want ErrAlreadyStarted", err)
	}
}

func TestUploadNewLocalItemCreatesRemote(t *testing.T) {
	ctx := context.Background()
	client := fileapitest.New(1)
	engine, st := newTestEngine(t, client)

	item := model.Item{ID: "note1", Type: model.ItemTypeNote, UpdatedTime: 500, CreatedTime: 500, Props: map[string]any{"title": "local note"}}
	if err := st.Save(ctx, item, store.SaveOptions{}); err != nil {
		t.Fatalf("Save = %v", err)
	}

	if _, err := engine.Start(ctx, Options{SyncSteps: []string{"update_remote"}, ThrowOnError: true}); err != nil {
		t.Fatalf("Start = %v", err)
	}

	if _, err := client.Get(ctx, "note1.md"); err != nil {
		t.Fatalf("expected note1.md uploaded, Get = %v", err)
	}

	si, err := st.SyncItem(ctx, 1, "note1")
	if err != nil {
		t.Fatalf("SyncItem = %v", err)
	}
	if si == nil || si.SyncTime != 500 {
		t.Fatalf("SyncItem after upload = %+v, want SyncTime 500", si)
	}
}

func TestUploadSecondRunOfUnchangedItemWritesNothing(t *testing.T) {
	ctx := context.Background()
	client := fileapitest.New(1)
	engine, st := newTestEngine(t, client)

	item := model.Item{ID: "note1", Type: model.ItemTypeNote, UpdatedTime: 500, CreatedTime: 500, Props: map[string]any{"title": "local note"}}
	if err := st.Save(ctx, item, store.SaveOptions{}); err != nil {
		t.Fatalf("Save = %v", err)
	}

	if _, err := engine.Start(ctx, Options{SyncSteps: []string{"update_remote"}, ThrowOnError: true}); err != nil {
		t.Fatalf("first Start = %v", err)
	}

	first := engine.report.Snapshot()
	if first.CreateRemote != 1 {
		t.Errorf("first run CreateRemote = %d, want 1", first.CreateRemote)
	}

	if _, err := engine.Start(ctx, Options{SyncSteps: []string{"update_remote"}, ThrowOnError: true}); err != nil {
		t.Fatalf("second Start = %v", err)
	}

	// The report is reset at the start of every run, so this snapshot
	// holds the second run's counters only.
	snap := engine.report.Snapshot()
	if snap.CreateRemote != 0 {
		t.Errorf("second run CreateRemote = %d, want 0", snap.CreateRemote)
	}
	if snap.UpdateRemote != 0 {
		t.Errorf("second run UpdateRemote = %d, want 0 (unchanged item must not be re-uploaded)", snap.UpdateRemote)
	}

	requests := client.LastRequests()
	putCount := 0
	for _, req := range requests {
		if req == "PUT note1.md" {
			putCount++
		}
	}
	if putCount != 1 {
		t.Errorf("PUT note1.md issued %d times across two runs, want 1", putCount)
	}
}

func TestCancelMidDeltaResumesAfterLastCompletedPage(t *testing.T) {
	ctx := context.Background()
	client := fileapitest.New(1)

	page1 := &fileapi.DeltaPage{
		Items:   []fileapi.RemoteItem{{ID: "n1", Path: "n1.md", UpdatedTime: 1}},
		Context: "after-page1",
		HasMore: true,
	}
	page2 := &fileapi.DeltaPage{
		Items:   []fileapi.RemoteItem{{ID: "n2", Path: "n2.md", UpdatedTime: 1}},
		Context: "after-page2",
		HasMore: true,
	}
	page3 := &fileapi.DeltaPage{
		Items:   []fileapi.RemoteItem{{ID: "n3", Path: "n3.md", UpdatedTime: 1}},
		Context: "after-page3",
		HasMore: false,
	}
	client.Pages = []*fileapi.DeltaPage{page1, page2, page3}
	client.Seed("n1.md", "n1", itemJSON(t, model.Item{ID: "n1", Type: model.ItemTypeNote, UpdatedTime: 1}), 1, 1, false)
	client.Seed("n2.md", "n2", itemJSON(t, model.Item{ID: "n2", Type: model.ItemTypeNote, UpdatedTime: 1}), 1, 1, false)
	client.Seed("n3.md", "n3", itemJSON(t, model.Item{ID: "n3", Type: model.ItemTypeNote, UpdatedTime: 1}), 1, 1, false)

	st, err := store.NewSQLiteStore(ctx, ":memory:", nil)
	if err != nil {
		t.Fatalf("NewSQLiteStore = %v", err)
	}
	defer st.Close()

	locks := lock.New(client, time.Hour, nil)
	up := uploader.New(client, nil, nil)

	engine := New(Config{
		Client:   client,
		Store:    st,
		Locks:    locks,
		Uploader: up,
		ClientID: "client-a",
		AppType:  "desktop",
		Hooks:    Hooks{HookCancelDeltaLoop2: true},
	}, nil)

	out, err := engine.Start(ctx, Options{SyncSteps: []string{"delta"}, ThrowOnError: true})
	if err != nil {
		t.Fatalf("Start = %v", err)
	}

	if out.Cursor != "after-page2" {
		t.Errorf("resume cursor = %q, want after-page2 (page3 must not be fetched)", out.Cursor)
	}

	n3, err := st.GetByID(ctx, "n3")
	if err != nil {
		t.Fatalf("GetByID(n3) = %v", err)
	}
	if n3 != nil {
		t.Error("n3 should not have been created before cancellation, page3 was never fetched")
	}

	for _, req := range client.LastRequests() {
		if req == "DELTA after-page2" {
			t.Error("delta loop fetched a third page after cancellation was requested")
		}
	}
}
