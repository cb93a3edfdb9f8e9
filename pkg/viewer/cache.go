package viewer

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ritzau/dfgraph/pkg/dfgraph"
	"github.com/ritzau/dfgraph/pkg/model"
)

// DefaultCacheSize is used when a non-positive size is configured
const DefaultCacheSize = 128

// CacheObserver is told whether a render came from the cache
type CacheObserver interface {
	RenderHit()
	RenderMiss()
}

type renderKey struct {
	session  string
	revision uint64
	opts     Options
}

// Renderer memoizes dependency views per session revision. Any graph mutation
// bumps the revision, so stale entries are never served; they age out.
type Renderer struct {
	views    *lru.Cache[renderKey, *model.Graph]
	observer CacheObserver
}

// NewRenderer creates a renderer holding at most size views
func NewRenderer(size int, observer CacheObserver) (*Renderer, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	views, err := lru.New[renderKey, *model.Graph](size)
	if err != nil {
		return nil, fmt.Errorf("create render cache: %w", err)
	}
	return &Renderer{views: views, observer: observer}, nil
}

// DepView returns the dependency view of g, building it only when the graph
// changed since the last render with the same options. Callers must not
// modify the returned graph.
func (r *Renderer) DepView(session string, g *dfgraph.Graph, opts Options) *model.Graph {
	key := renderKey{session: session, revision: g.Revision(), opts: opts}
	if v, ok := r.views.Get(key); ok {
		if r.observer != nil {
			r.observer.RenderHit()
		}
		return v
	}
	if r.observer != nil {
		r.observer.RenderMiss()
	}

	snap := g.Snapshot()
	v := DepView(session, snap, opts)
	key.revision = snap.Revision
	r.views.Add(key, v)
	return v
}

// Diff returns what changed in the view since revision. When that render is
// no longer cached the diff carries the full graph.
func (r *Renderer) Diff(session string, g *dfgraph.Graph, opts Options, since uint64) *GraphDiff {
	current := r.DepView(session, g, opts)
	old, ok := r.views.Peek(renderKey{session: session, revision: since, opts: opts})
	if !ok {
		return ComputeDiff(nil, current)
	}
	return ComputeDiff(old, current)
}

// Len returns the number of cached views
func (r *Renderer) Len() int {
	return r.views.Len()
}

// Purge drops every cached view, e.g. when a session is unregistered
func (r *Renderer) Purge() {
	r.views.Purge()
}
