package viewer

import (
	"context"
	"sync"

	"github.com/amankumarsingh77/mhr-streamer/internal/models"
	"github.com/pkg/errors"
)

// MaxCachedFrames bounds the cache. Once full, new frames are served but not
// stored; nothing is ever evicted.
const MaxCachedFrames = 50

type FrameSource interface {
	Frame(ctx context.Context, name string) (*models.FrameRecord, error)
	Faces(ctx context.Context) (models.Faces, error)
}

// FrameCache holds merged frame records, so every cached entry carries its
// faces inline.
type FrameCache struct {
	src FrameSource

	mu      sync.Mutex
	entries map[string]*models.FrameRecord
	shared  models.Faces
	fetches int
}

func NewFrameCache(src FrameSource) *FrameCache {
	return &FrameCache{
		src:     src,
		entries: make(map[string]*models.FrameRecord, MaxCachedFrames),
	}
}

func (c *FrameCache) Get(ctx context.Context, name string) (*models.FrameRecord, error) {
	c.mu.Lock()
	if rec, ok := c.entries[name]; ok {
		c.mu.Unlock()
		return rec, nil
	}
	c.fetches++
	c.mu.Unlock()

	rec, err := c.src.Frame(ctx, name)
	if err != nil {
		return nil, err
	}
	shared, err := c.sharedFaces(ctx, rec)
	if err != nil {
		return nil, err
	}
	merged, err := rec.Merged(shared)
	if err != nil {
		return nil, errors.Wrapf(err, "frame %s", name)
	}

	c.mu.Lock()
	if len(c.entries) < MaxCachedFrames {
		c.entries[name] = merged
	}
	c.mu.Unlock()
	return merged, nil
}

// sharedFaces returns the job topology, taking it from the first inline
// record seen or fetching it once from the server.
func (c *FrameCache) sharedFaces(ctx context.Context, rec *models.FrameRecord) (models.Faces, error) {
	c.mu.Lock()
	shared := c.shared
	c.mu.Unlock()
	if shared != nil {
		return shared, nil
	}
	if rec.Faces.IsInline() {
		c.mu.Lock()
		c.shared = rec.Faces.Faces()
		c.mu.Unlock()
		return rec.Faces.Faces(), nil
	}

	faces, err := c.src.Faces(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "fetch shared faces")
	}
	if faces == nil {
		return nil, models.ErrMissingTopology
	}
	c.mu.Lock()
	c.shared = faces
	c.mu.Unlock()
	return faces, nil
}

func (c *FrameCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Fetches counts frame requests that missed the cache.
func (c *FrameCache) Fetches() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fetches
}

// Reset drops every entry and the shared topology, for a new job.
func (c *FrameCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*models.FrameRecord, MaxCachedFrames)
	c.shared = nil
	c.fetches = 0
}
