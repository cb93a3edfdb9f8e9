package cycles

import (
	"testing"

	"github.com/ritzau/dfgraph/pkg/cellid"
	"github.com/ritzau/dfgraph/pkg/graph"
)

const (
	a cellid.ID = "aaaaaaaa"
	b cellid.ID = "bbbbbbbb"
	c cellid.ID = "cccccccc"
	d cellid.ID = "dddddddd"
	e cellid.ID = "eeeeeeee"
)

func TestFindCellCycles_NoCycles(t *testing.T) {
	cg := graph.NewCellGraph()

	// A simple chain: A -> B -> C
	cg.AddDependency(b, a)
	cg.AddDependency(c, b)

	cycles := FindCellCycles(cg)

	if len(cycles) != 0 {
		t.Errorf("Expected no cycles, but found %d", len(cycles))
	}
}

func TestFindCellCycles_SimpleCycle(t *testing.T) {
	cg := graph.NewCellGraph()

	// A reads B and B reads A
	cg.AddDependency(a, b)
	cg.AddDependency(b, a)

	cycles := FindCellCycles(cg)

	if len(cycles) != 1 {
		t.Fatalf("Expected 1 cycle, but found %d", len(cycles))
	}

	cycle := cycles[0]
	if len(cycle.Cells) != 2 {
		t.Errorf("Expected cycle of length 2, got %d", len(cycle.Cells))
	}
	if !cycle.Contains(a) || !cycle.Contains(b) {
		t.Errorf("Expected cycle to contain a and b, got %v", cycle.Cells)
	}
}

func TestFindCellCycles_MultipleCycles(t *testing.T) {
	cg := graph.NewCellGraph()

	// Cycle 1: A -> B -> A
	cg.AddDependency(b, a)
	cg.AddDependency(a, b)

	// Cycle 2: C -> D -> E -> C
	cg.AddDependency(d, c)
	cg.AddDependency(e, d)
	cg.AddDependency(c, e)

	cycles := FindCellCycles(cg)

	if len(cycles) != 2 {
		t.Fatalf("Expected 2 cycles, but found %d", len(cycles))
	}

	cycleSizes := make(map[int]int)
	for _, cycle := range cycles {
		cycleSizes[len(cycle.Cells)]++
	}

	if cycleSizes[2] != 1 || cycleSizes[3] != 1 {
		t.Errorf("Expected one 2-cell cycle and one 3-cell cycle, got: %v", cycleSizes)
	}
}

func TestRejectedEdges(t *testing.T) {
	cg := graph.NewCellGraph()

	// A -> B -> C acyclic, C <-> D cyclic
	cg.AddDependency(b, a)
	cg.AddDependency(c, b)
	cg.AddDependency(d, c)
	cg.AddDependency(c, d)

	cycles := FindCellCycles(cg)
	rejected := RejectedEdges(cg, cycles)

	if len(rejected) != 2 {
		t.Fatalf("Expected 2 rejected edges, got %v", rejected)
	}
	if !rejected[[2]cellid.ID{c, d}] || !rejected[[2]cellid.ID{d, c}] {
		t.Errorf("Expected c<->d to be rejected, got %v", rejected)
	}
	if rejected[[2]cellid.ID{b, c}] {
		t.Error("Edge into a cycle is not part of it")
	}
}
