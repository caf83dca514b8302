// Package fileapitest provides an in-memory fake of fileapi.Client for use
// across the engine's test suites, the way the teacher's internal/graph
// interfaces (DeltaFetcher, ItemClient, TransferClient) are faked directly
// in internal/sync's own tests — generalized here into a standalone,
// reusable fake since multiple packages (uploader, lock, migration, sync)
// all need the same backend double.
package fileapitest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/devilkun/joplin/internal/fileapi"
)

// object is one stored path's content plus metadata.
type object struct {
	content        []byte
	updatedTime    int64
	jopUpdatedTime int64
	hasJop         bool
	deleted        bool
}

// Client is an in-memory fileapi.Client. Safe for concurrent use; the
// Download Queue exercises it from multiple goroutines.
type Client struct {
	mu sync.Mutex

	targetID       int
	accurateStamps bool
	multiPut       bool
	tempDir        string

	objects map[string]*object // path -> object
	deltaID map[string]string  // path -> item id, for delta page construction

	// RejectPaths, when non-empty, makes Put fail for the given path
	// with a *fileapi.RejectedError carrying Reason.
	RejectPaths map[string]string

	// sequence of delta pages returned on successive Delta calls, for
	// tests that want to control pagination precisely. When nil, Delta
	// synthesizes a single page from the current object set.
	Pages []*fileapi.DeltaPage

	requests []string
}

// New returns an empty fake backend.
func New(targetID int) *Client {
	return &Client{
		targetID: targetID,
		objects:  make(map[string]*object),
		deltaID:  make(map[string]string),
	}
}

// SetAccurateTimestamps toggles SupportsAccurateTimestamp's return value.
func (c *Client) SetAccurateTimestamps(v bool) { c.accurateStamps = v }

// SetMultiPut toggles SupportsMultiPut's return value.
func (c *Client) SetMultiPut(v bool) { c.multiPut = v }

// Seed inserts an object directly, bypassing Put, for test setup.
func (c *Client) Seed(path, id string, content []byte, updatedTime int64, jopUpdatedTime int64, hasJop bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.objects[path] = &object{
		content:        content,
		updatedTime:    updatedTime,
		jopUpdatedTime: jopUpdatedTime,
		hasJop:         hasJop,
	}
	c.deltaID[path] = id
}

// SeedDeleted marks path as deleted in the backend's change feed without
// removing any prior content, so a delta page can surface the deletion.
func (c *Client) SeedDeleted(path, id string, updatedTime int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.objects[path] = &object{deleted: true, updatedTime: updatedTime}
	c.deltaID[path] = id
}

func (c *Client) Initialize(_ context.Context) error { return nil }

func (c *Client) SetTempDirName(name string) { c.tempDir = name }

func (c *Client) Stat(_ context.Context, path string) (*fileapi.RemoteItem, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.requests = append(c.requests, "STAT "+path)

	obj, ok := c.objects[path]
	if !ok || obj.deleted {
		return nil, nil
	}

	return &fileapi.RemoteItem{
		ID:                c.deltaID[path],
		Path:              path,
		UpdatedTime:       obj.updatedTime,
		JopUpdatedTime:    obj.jopUpdatedTime,
		HasJopUpdatedTime: obj.hasJop,
		Size:              int64(len(obj.content)),
	}, nil
}

func (c *Client) Get(_ context.Context, path string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.requests = append(c.requests, "GET "+path)

	obj, ok := c.objects[path]
	if !ok || obj.deleted {
		return nil, fileapi.ErrFileNotFound
	}

	cp := make([]byte, len(obj.content))
	copy(cp, obj.content)

	return cp, nil
}

func (c *Client) Put(_ context.Context, path string, content []byte, _ *fileapi.PutOptions) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.requests = append(c.requests, "PUT "+path)

	if reason, rejected := c.RejectPaths[path]; rejected {
		return &fileapi.RejectedError{Path: path, Reason: reason}
	}

	existing, had := c.objects[path]
	obj := &object{content: content, updatedTime: time.Now().UnixMilli()}
	if had {
		obj.jopUpdatedTime = existing.jopUpdatedTime
		obj.hasJop = existing.hasJop
	}

	c.objects[path] = obj

	if _, ok := c.deltaID[path]; !ok {
		c.deltaID[path] = path
	}

	return nil
}

func (c *Client) Delete(_ context.Context, path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.requests = append(c.requests, "DELETE "+path)

	delete(c.objects, path)

	return nil
}

func (c *Client) Delta(_ context.Context, token string, opts fileapi.DeltaOptions) (*fileapi.DeltaPage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.requests = append(c.requests, "DELTA "+token)

	if len(c.Pages) > 0 {
		page := c.Pages[0]
		c.Pages = c.Pages[1:]

		if opts.WipeOutFailSafe > 0 {
			deletions := 0
			for _, it := range page.Items {
				if it.IsDeleted {
					deletions++
				}
			}
			if deletions > opts.WipeOutFailSafe {
				return nil, fileapi.ErrRequestTimeout
			}
		}

		return page, nil
	}

	paths := make([]string, 0, len(c.objects))
	for p := range c.objects {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	items := make([]fileapi.RemoteItem, 0, len(paths))
	for _, p := range paths {
		obj := c.objects[p]
		items = append(items, fileapi.RemoteItem{
			ID:                c.deltaID[p],
			Path:              p,
			IsDeleted:         obj.deleted,
			UpdatedTime:       obj.updatedTime,
			JopUpdatedTime:    obj.jopUpdatedTime,
			HasJopUpdatedTime: obj.hasJop,
			Size:              int64(len(obj.content)),
		})
	}

	return &fileapi.DeltaPage{Items: items, Context: "end", HasMore: false}, nil
}

func (c *Client) SyncTargetID() int { return c.targetID }

func (c *Client) SupportsAccurateTimestamp() bool { return c.accurateStamps }

func (c *Client) SupportsMultiPut() bool { return c.multiPut }

func (c *Client) LastRequests() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]string(nil), c.requests...)
}
