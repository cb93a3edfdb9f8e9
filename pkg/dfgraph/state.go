package dfgraph

import (
	"github.com/ritzau/dfgraph/pkg/cellid"
)

// State is the staleness classification of a cell
type State string

const (
	StateNone          State = "None"
	StateFresh         State = "Fresh"
	StateStale         State = "Stale"
	StateUpstreamStale State = "Upstream Stale"
	StateChanged       State = "Changed"
)

// State returns the classification of id, StateNone when it has none
func (g *Graph) State(id cellid.ID) State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stateLocked(id)
}

func (g *Graph) stateLocked(id cellid.ID) State {
	if s, ok := g.states[id]; ok {
		return s
	}
	return StateNone
}

// States returns a copy of every recorded classification
func (g *Graph) States() map[cellid.ID]State {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[cellid.ID]State, len(g.states))
	for id, s := range g.states {
		out[id] = s
	}
	return out
}

// Executed reports whether id has completed at least one execution
func (g *Graph) Executed(id cellid.ID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.executed[id]
}

// UpstreamFresh reports whether every immediate upstream of id is Fresh.
// Ancestors further up are already reflected in their children's state.
func (g *Graph) UpstreamFresh(id cellid.ID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.upstreamFreshLocked(id)
}

func (g *Graph) upstreamFreshLocked(id cellid.ID) bool {
	for up := range g.uplinks[id] {
		if g.stateLocked(up) != StateFresh {
			return false
		}
	}
	return true
}

// UpdateStale records an edit of id: the cell becomes Changed and everything
// downstream of it Upstream Stale.
func (g *Graph) UpdateStale(id cellid.ID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.states[id] = StateChanged
	g.markDownstreamLocked(id)
	g.touchLocked()
}

// MarkStale flags id as Stale after its source drifted from the executed text.
// The previous classification is kept so RevertStale can restore it.
func (g *Graph) MarkStale(id cellid.ID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s := g.stateLocked(id)
	if s == StateStale {
		return
	}
	g.previous[id] = s
	g.states[id] = StateStale
	g.markDownstreamLocked(id)
	g.touchLocked()
}

// RevertStale undoes MarkStale once the source matches the executed text again.
// It does nothing unless id is currently Stale.
func (g *Graph) RevertStale(id cellid.ID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.stateLocked(id) != StateStale {
		return
	}

	prev, ok := g.previous[id]
	delete(g.previous, id)
	switch {
	case !ok || prev == StateFresh:
		g.updateFreshLocked(id, true)
	case prev == StateNone:
		delete(g.states, id)
	default:
		g.states[id] = prev
	}
	g.touchLocked()
}

// UpdateFresh records that id now matches what was executed. On a real
// execution (revert false) its immediate upstreams were evaluated too and
// become Fresh. On a revert nothing happens for a cell that never executed,
// and downstream cells whose inputs are all fresh again are restored.
func (g *Graph) UpdateFresh(id cellid.ID, revert bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.updateFreshLocked(id, revert)
	g.touchLocked()
}

func (g *Graph) updateFreshLocked(id cellid.ID, revert bool) {
	if revert && !g.executed[id] {
		return
	}
	g.executed[id] = true
	delete(g.previous, id)

	if !revert {
		for _, up := range sortedKeys(g.uplinks[id]) {
			if g.cells.has(up) {
				g.states[up] = StateFresh
			}
		}
	}

	if g.upstreamFreshLocked(id) {
		g.states[id] = StateFresh
	} else {
		g.states[id] = StateUpstreamStale
	}

	if !revert {
		return
	}
	// Restoring one cell can free the cells below it, so repeat until settled.
	downstream := g.allDownstreamLocked(id)
	for changed := true; changed; {
		changed = false
		for _, d := range downstream {
			if g.states[d] == StateUpstreamStale && g.upstreamFreshLocked(d) {
				g.states[d] = StateFresh
				changed = true
			}
		}
	}
}

func (g *Graph) markDownstreamLocked(id cellid.ID) {
	for _, d := range g.allDownstreamLocked(id) {
		g.states[d] = StateUpstreamStale
	}
}
