// Package uploader implements the Item Uploader (spec section 4.4):
// serializing items for a target and batching small-item uploads when
// the backend supports multi-put. Grounded on the teacher's upload path
// in internal/sync/executor_transfer.go (simple vs. batched transfer,
// .partial-file-then-rename pattern for large blobs).
package uploader

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/devilkun/joplin/internal/fileapi"
	"github.com/devilkun/joplin/internal/model"
)

// preUploadConcurrency bounds how many batched Put calls run at once
// during PreUploadItems.
const preUploadConcurrency = 4

// Serializer renders an item to its canonical on-target form. The
// engine never hand-rolls per-variant serialization here; it is kept
// pluggable so a consumer can supply the notes app's actual note/
// resource/tag markdown-with-frontmatter format.
type Serializer interface {
	Serialize(item model.Item) ([]byte, error)
}

// JSONSerializer is the default Serializer, used when no domain-specific
// format is supplied (e.g. in tests, or a consumer that has not wired
// its own markdown+frontmatter serializer yet).
type JSONSerializer struct{}

func (JSONSerializer) Serialize(item model.Item) ([]byte, error) {
	return json.Marshal(item)
}

// Uploader drives the two Item Uploader entry points against a
// fileapi.Client.
type Uploader struct {
	client     fileapi.Client
	serializer Serializer
	logger     *slog.Logger
}

// New returns an Uploader. A nil serializer defaults to JSONSerializer.
func New(client fileapi.Client, serializer Serializer, logger *slog.Logger) *Uploader {
	if serializer == nil {
		serializer = JSONSerializer{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Uploader{client: client, serializer: serializer, logger: logger}
}

// SystemPath derives the canonical on-target path for item — top-level
// items live at "{id}.md", resources at "Resources/{id}" (spec section 6
// path conventions).
func SystemPath(item model.Item) string {
	if item.Type == model.ItemTypeResource {
		return "Resources/" + item.ID
	}

	return item.ID + ".md"
}

// PreUploadItems pre-serializes and batch-uploads items for backends
// advertising SupportsMultiPut; a no-op otherwise, since the caller will
// fall through to per-item SerializeAndUploadItem.
func (u *Uploader) PreUploadItems(ctx context.Context, items []model.Item) error {
	if !u.client.SupportsMultiPut() || len(items) == 0 {
		return nil
	}

	batch := make(map[string][]byte, len(items))

	for _, it := range items {
		if it.Type == model.ItemTypeResource {
			continue // resource blobs are never part of the metadata batch
		}

		content, err := u.serializer.Serialize(it)
		if err != nil {
			return fmt.Errorf("uploader: serialize %s for pre-upload: %w", it.ID, err)
		}

		batch[SystemPath(it)] = content
	}

	u.logger.Debug("pre-uploading batch", slog.Int("count", len(batch)))

	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(preUploadConcurrency)

	for path, content := range batch {
		path, content := path, content

		group.Go(func() error {
			if err := u.client.Put(gctx, path, content, nil); err != nil {
				return fmt.Errorf("uploader: pre-upload %s: %w", path, err)
			}

			return nil
		})
	}

	return group.Wait()
}

// SerializeAndUploadItem serializes item per its canonical form and
// writes it to the remote at path. A *fileapi.RejectedError is wrapped
// with %w, so callers can still find it with errors.As and reclassify it
// as cannotSyncItem (spec section 7).
func (u *Uploader) SerializeAndUploadItem(ctx context.Context, path string, item model.Item) error {
	content, err := u.serializer.Serialize(item)
	if err != nil {
		return fmt.Errorf("uploader: serialize %s: %w", item.ID, err)
	}

	if err := u.client.Put(ctx, path, content, nil); err != nil {
		return fmt.Errorf("uploader: upload %s: %w", path, err)
	}

	return nil
}

// UploadResourceBlob streams a resource's local blob to Resources/{id}.
func (u *Uploader) UploadResourceBlob(ctx context.Context, resourceID, localBlobPath string) error {
	if err := u.client.Put(ctx, "Resources/"+resourceID, nil, &fileapi.PutOptions{Source: localBlobPath}); err != nil {
		return fmt.Errorf("uploader: upload resource blob %s: %w", resourceID, err)
	}

	return nil
}
