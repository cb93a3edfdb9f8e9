package viewer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ritzau/dfgraph/pkg/cellid"
	"github.com/ritzau/dfgraph/pkg/dfgraph"
)

func TestComputeDiffWithoutBaseIsFull(t *testing.T) {
	v := DepView("s1", buildNotebook(t).Snapshot(), DefaultOptions())

	diff := ComputeDiff(nil, v)
	assert.True(t, diff.FullGraph)
	assert.Len(t, diff.AddedNodes, len(v.Nodes))
	assert.Equal(t, "aaaaaaaa-Cell", diff.AddedNodes[0].ID)
	assert.Len(t, diff.AddedEdges, len(v.Edges))
	assert.False(t, diff.Empty())
}

func TestComputeDiff(t *testing.T) {
	g := buildNotebook(t)
	before := DepView("s1", g.Snapshot(), DefaultOptions())

	assert.True(t, ComputeDiff(before, before).Empty())

	// C now reads A instead of B, and A changed since it ran
	require.True(t, g.UpdateGraph(dfgraph.Update{
		CellID:  cellC,
		Uplinks: map[cellid.ID][]string{cellA: {"x"}},
	}))
	g.UpdateStale(cellA)
	after := DepView("s1", g.Snapshot(), DefaultOptions())

	diff := ComputeDiff(before, after)
	assert.False(t, diff.FullGraph)
	assert.Equal(t, before.Revision, diff.From)
	assert.Equal(t, after.Revision, diff.To)
	assert.Empty(t, diff.AddedNodes)
	assert.Empty(t, diff.RemovedNodes)
	require.Len(t, diff.ModifiedNodes, 1)
	assert.Equal(t, "cluster_aaaaaaaa", diff.ModifiedNodes[0].ID)
	require.Len(t, diff.AddedEdges, 1)
	assert.Equal(t, "aaaaaaaax|cccccccc-Cell|link", EdgeKey(diff.AddedEdges[0]))
	assert.Equal(t, []string{"bbbbbbbby|cccccccc-Cell|link"}, diff.RemovedEdges)
}

func TestRendererDiff(t *testing.T) {
	r, err := NewRenderer(4, nil)
	require.NoError(t, err)
	g := buildNotebook(t)

	first := r.DepView("s1", g, DefaultOptions())
	require.True(t, g.UpdateGraph(dfgraph.Update{CellID: cellD, Nodes: []string{"p"}}))

	diff := r.Diff("s1", g, DefaultOptions(), first.Revision)
	assert.False(t, diff.FullGraph)
	assert.Len(t, diff.AddedNodes, 3)

	evicted := r.Diff("s1", g, DefaultOptions(), first.Revision+1000)
	assert.True(t, evicted.FullGraph)
}
