package dfgraph

import (
	"slices"

	"github.com/ritzau/dfgraph/pkg/cellid"
)

// AllDownstream returns every cell that transitively reads from id.
//
// The walk is iterative and visited-guarded so cyclic link sets terminate.
// Closures already computed for intermediate cells are spliced in without being
// re-walked, and the result is memoized for id until the next epoch. Cells with
// no downlinks entry (deleted, or never executed) are never part of the result.
func (g *Graph) AllDownstream(id cellid.ID) []cellid.ID {
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Clone(g.allDownstreamLocked(id))
}

func (g *Graph) allDownstreamLocked(id cellid.ID) []cellid.ID {
	cached, ok := g.cachedClosureLocked(id)
	if g.observer != nil {
		if ok {
			g.observer.CacheHit()
		} else {
			g.observer.CacheMiss()
		}
	}
	if ok {
		return cached
	}

	visited := newIDSet()
	result := newIDSet()
	work := slices.Clone(g.downlinks[id])

	for len(work) > 0 {
		cid := work[len(work)-1]
		work = work[:len(work)-1]
		if !visited.add(cid) {
			continue
		}
		result.add(cid)

		if cached, ok := g.cachedClosureLocked(cid); ok {
			for _, pid := range cached {
				result.add(pid)
				visited.add(pid)
			}
			continue
		}

		downs, ok := g.downlinks[cid]
		if !ok {
			result.remove(cid)
			continue
		}
		for _, pid := range downs {
			if !visited.has(pid) {
				work = append(work, pid)
			}
		}
	}

	// Excision applies to spliced members as well as walked ones.
	ids := slices.DeleteFunc(result.items(), func(c cellid.ID) bool {
		_, ok := g.downlinks[c]
		return !ok
	})
	g.downstreamLists[id] = closure{ids: ids, epoch: g.epoch}
	return ids
}

func (g *Graph) cachedClosureLocked(id cellid.ID) ([]cellid.ID, bool) {
	c, ok := g.downstreamLists[id]
	if ok && c.epoch == g.epoch {
		return c.ids, true
	}
	if ok {
		delete(g.downstreamLists, id)
	}
	return nil, false
}

// AllUpstreamCellIDs walks uplinks to find every cell id reads from, directly
// or transitively. It is not memoized; GetAllUpstreams prefers the list the
// kernel supplied and only falls back to this walk.
func (g *Graph) AllUpstreamCellIDs(id cellid.ID) []cellid.ID {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.allUpstreamLocked(id)
}

func (g *Graph) allUpstreamLocked(id cellid.ID) []cellid.ID {
	visited := newIDSet()
	work := sortedKeys(g.uplinks[id])

	for len(work) > 0 {
		cid := work[len(work)-1]
		work = work[:len(work)-1]
		if !visited.add(cid) {
			continue
		}
		for _, up := range sortedKeys(g.uplinks[cid]) {
			if !visited.has(up) {
				work = append(work, up)
			}
		}
	}

	return slices.DeleteFunc(visited.items(), func(c cellid.ID) bool {
		return !g.knownLocked(c)
	})
}

// GetAllUpstreams returns the transitive upstream list the kernel supplied for
// id, or the client-side walk when the kernel never supplied one.
func (g *Graph) GetAllUpstreams(id cellid.ID) []cellid.ID {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.getAllUpstreamsLocked(id)
}

func (g *Graph) getAllUpstreamsLocked(id cellid.ID) []cellid.ID {
	ups, ok := g.upstreamList[id]
	if !ok {
		return g.allUpstreamLocked(id)
	}
	out := make([]cellid.ID, 0, len(ups))
	seen := newIDSet()
	for _, up := range ups {
		if g.knownLocked(up) && seen.add(up) {
			out = append(out, up)
		}
	}
	return out
}

func (g *Graph) knownLocked(id cellid.ID) bool {
	if g.cells.has(id) {
		return true
	}
	_, ok := g.uplinks[id]
	return ok
}
