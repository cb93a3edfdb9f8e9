package dfgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ritzau/dfgraph/pkg/cellid"
)

func TestExecutionMarksCellAndUpstreamsFresh(t *testing.T) {
	g := buildChain(t, cellA, cellB, cellC)

	for _, id := range []cellid.ID{cellA, cellB, cellC} {
		assert.Equal(t, StateFresh, g.State(id), "cell %s", id)
		assert.True(t, g.Executed(id))
	}
}

func TestUpdateStaleMarksDownstream(t *testing.T) {
	g := buildChain(t, cellA, cellB, cellC)

	g.UpdateStale(cellB)

	assert.Equal(t, StateFresh, g.State(cellA))
	assert.Equal(t, StateChanged, g.State(cellB))
	assert.Equal(t, StateUpstreamStale, g.State(cellC))
	assert.False(t, g.UpstreamFresh(cellC))
	assert.True(t, g.UpstreamFresh(cellB))
}

func TestMarkStaleThenRevertRestoresFresh(t *testing.T) {
	g := buildChain(t, cellA, cellB, cellC)

	g.MarkStale(cellA)
	require.Equal(t, StateStale, g.State(cellA))
	require.Equal(t, StateUpstreamStale, g.State(cellB))
	require.Equal(t, StateUpstreamStale, g.State(cellC))

	g.RevertStale(cellA)

	assert.Equal(t, StateFresh, g.State(cellA))
	assert.Equal(t, StateFresh, g.State(cellB))
	assert.Equal(t, StateFresh, g.State(cellC))
}

func TestRevertStaleRestoresChanged(t *testing.T) {
	g := buildChain(t, cellA, cellB)
	g.UpdateStale(cellA)
	g.MarkStale(cellA)

	g.RevertStale(cellA)

	assert.Equal(t, StateChanged, g.State(cellA))
	assert.Equal(t, StateUpstreamStale, g.State(cellB))
}

func TestRevertStaleIgnoresOtherStates(t *testing.T) {
	g := buildChain(t, cellA, cellB)
	g.UpdateStale(cellA)

	g.RevertStale(cellA)

	assert.Equal(t, StateChanged, g.State(cellA))
}

func TestRevertKeepsUnexecutedCellStale(t *testing.T) {
	g := NewFrom(Snapshot{Cells: []cellid.ID{cellA, cellB}})

	g.RevertStale(cellA)

	assert.Equal(t, StateStale, g.State(cellA))
	assert.False(t, g.Executed(cellA))
}

func TestRevertRestoresUnexecutedCell(t *testing.T) {
	g := New()
	g.SetCellContent(cellA, "x = 1")

	g.MarkStale(cellA)
	require.Equal(t, StateStale, g.State(cellA))

	g.RevertStale(cellA)
	assert.Equal(t, StateNone, g.State(cellA))
	assert.False(t, g.Executed(cellA))
}

func TestRevertWithStaleUpstreamStaysUpstreamStale(t *testing.T) {
	g := buildChain(t, cellA, cellB, cellC)
	g.UpdateStale(cellA)
	g.MarkStale(cellB)

	g.RevertStale(cellB)

	assert.Equal(t, StateUpstreamStale, g.State(cellB))
	assert.Equal(t, StateUpstreamStale, g.State(cellC))
}

func TestReexecutionClearsStaleness(t *testing.T) {
	g := buildChain(t, cellA, cellB)
	g.UpdateStale(cellA)
	require.Equal(t, StateUpstreamStale, g.State(cellB))

	require.True(t, g.Apply(Update{
		CellID:  cellB,
		Nodes:   []string{"vb"},
		Uplinks: map[cellid.ID][]string{cellA: {"va"}},
	}, []DownUpdate{{Key: "aaaaaaaa", Data: []cellid.ID{cellB}}}))

	assert.Equal(t, StateFresh, g.State(cellA))
	assert.Equal(t, StateFresh, g.State(cellB))
}

func TestStatesReturnsCopy(t *testing.T) {
	g := buildChain(t, cellA, cellB)
	states := g.States()
	states[cellA] = StateStale

	assert.Equal(t, StateFresh, g.State(cellA))
}
