// Package output prints human readable reports for the command line.
package output

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/ritzau/dfgraph/pkg/cellid"
	"github.com/ritzau/dfgraph/pkg/cycles"
	"github.com/ritzau/dfgraph/pkg/dfgraph"
	"github.com/ritzau/dfgraph/pkg/graph"
)

// PrintGraphReport prints the cells of one session with their state, the
// dependency cycles, and an evaluation order when one exists
func PrintGraphReport(w io.Writer, session string, snap *dfgraph.Snapshot) {
	// Color definitions
	bold := color.New(color.Bold)
	red := color.New(color.FgRed)
	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan)

	// Header
	bold.Fprintf(w, "Session %s\n", session)
	bold.Fprintln(w, strings.Repeat("=", len(session)+8))
	fmt.Fprintf(w, "Revision: %d\n", snap.Revision)
	fmt.Fprintf(w, "Cells: %d\n", len(snap.Cells))
	fmt.Fprintln(w)

	ordered := snap.Ordered()
	for _, id := range ordered {
		state := snap.State(id)
		stateColor(state).Fprintf(w, "  %s  %-14s", id, stateLabel(state))
		if ups := snap.UpstreamCells(id); len(ups) > 0 {
			cyan.Fprintf(w, "  reads %s", joinIDs(ups, ", "))
		}
		if names := snap.Nodes[id]; len(names) > 0 {
			fmt.Fprintf(w, "  exports %s", strings.Join(names, ", "))
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintln(w)

	cg := graph.BuildCellGraph(snap)
	found := cycles.FindCellCycles(cg)
	if len(found) > 0 {
		red.Fprintf(w, "CYCLES: %d\n", len(found))
		for _, c := range found {
			red.Fprintf(w, "  %s\n", joinIDs(c.Cells, " <-> "))
		}
		fmt.Fprintln(w)
	}

	order, err := cg.EvaluationOrder()
	switch {
	case errors.Is(err, graph.ErrUnorderable):
		red.Fprintln(w, "No evaluation order: the notebook has cycles")
	case err != nil:
		red.Fprintf(w, "No evaluation order: %v\n", err)
	default:
		fmt.Fprintf(w, "Evaluation order: %s\n", joinIDs(order, " -> "))
	}

	// Summary with color based on how much needs re-running
	stale := 0
	for _, id := range ordered {
		if s := snap.State(id); s != dfgraph.StateFresh && s != dfgraph.StateNone {
			stale++
		}
	}
	switch {
	case len(found) > 0:
		red.Fprintf(w, "Summary: %d cycle(s), %d cell(s) out of date\n", len(found), stale)
	case stale > 0:
		color.New(color.FgYellow).Fprintf(w, "Summary: %d of %d cell(s) out of date\n", stale, len(ordered))
	default:
		green.Fprintln(w, "✓ All cells are up to date")
	}
}

func stateColor(s dfgraph.State) *color.Color {
	switch s {
	case dfgraph.StateFresh:
		return color.New(color.FgGreen)
	case dfgraph.StateStale, dfgraph.StateChanged:
		return color.New(color.FgYellow)
	case dfgraph.StateUpstreamStale:
		return color.New(color.FgRed)
	default:
		return color.New(color.Faint)
	}
}

func stateLabel(s dfgraph.State) string {
	if s == dfgraph.StateNone {
		return "-"
	}
	return string(s)
}

func joinIDs(ids []cellid.ID, sep string) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.String()
	}
	return strings.Join(parts, sep)
}
