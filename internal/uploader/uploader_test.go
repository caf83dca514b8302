package uploader

import (
	"context"
	"testing"

	"github.com/devilkun/joplin/internal/fileapi/fileapitest"
	"github.com/devilkun/joplin/internal/model"
)

func TestSystemPath(t *testing.T) {
	note := model.Item{ID: "abc123", Type: model.ItemTypeNote}
	if got := SystemPath(note); got != "abc123.md" {
		t.Errorf("SystemPath(note) = %q", got)
	}

	res := model.Item{ID: "res456", Type: model.ItemTypeResource}
	if got := SystemPath(res); got != "Resources/res456" {
		t.Errorf("SystemPath(resource) = %q", got)
	}
}

func TestSerializeAndUploadItem(t *testing.T) {
	ctx := context.Background()
	client := fileapitest.New(1)
	u := New(client, nil, nil)

	item := model.Item{ID: "n1", Type: model.ItemTypeNote, Props: map[string]any{"title": "hi"}}

	if err := u.SerializeAndUploadItem(ctx, SystemPath(item), item); err != nil {
		t.Fatalf("SerializeAndUploadItem = %v", err)
	}

	content, err := client.Get(ctx, "n1.md")
	if err != nil {
		t.Fatalf("Get = %v", err)
	}

	if len(content) == 0 {
		t.Error("expected non-empty serialized content")
	}
}

func TestPreUploadItemsSkipsWithoutMultiPut(t *testing.T) {
	ctx := context.Background()
	client := fileapitest.New(1)
	u := New(client, nil, nil)

	items := []model.Item{{ID: "n1", Type: model.ItemTypeNote, Props: map[string]any{}}}

	if err := u.PreUploadItems(ctx, items); err != nil {
		t.Fatalf("PreUploadItems = %v", err)
	}

	if len(client.LastRequests()) != 0 {
		t.Errorf("expected no requests when SupportsMultiPut is false, got %v", client.LastRequests())
	}
}

func TestPreUploadItemsBatchesWhenMultiPutSupported(t *testing.T) {
	ctx := context.Background()
	client := fileapitest.New(1)
	client.SetMultiPut(true)
	u := New(client, nil, nil)

	items := []model.Item{
		{ID: "n1", Type: model.ItemTypeNote, Props: map[string]any{}},
		{ID: "r1", Type: model.ItemTypeResource, Props: map[string]any{}},
	}

	if err := u.PreUploadItems(ctx, items); err != nil {
		t.Fatalf("PreUploadItems = %v", err)
	}

	if _, err := client.Get(ctx, "n1.md"); err != nil {
		t.Errorf("expected n1.md uploaded, Get = %v", err)
	}

	if _, err := client.Get(ctx, "Resources/r1"); err == nil {
		t.Error("resources should not be part of the metadata pre-upload batch")
	}
}

func TestUploadResourceBlobStreamsFromSource(t *testing.T) {
	ctx := context.Background()
	client := fileapitest.New(1)
	u := New(client, nil, nil)

	if err := u.UploadResourceBlob(ctx, "res1", "/tmp/fake-blob"); err != nil {
		t.Fatalf("UploadResourceBlob = %v", err)
	}

	reqs := client.LastRequests()
	if len(reqs) != 1 || reqs[0] != "PUT Resources/res1" {
		t.Errorf("LastRequests = %v, want [PUT Resources/res1]", reqs)
	}
}
