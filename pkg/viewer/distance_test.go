package viewer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ritzau/dfgraph/pkg/cellid"
	"github.com/ritzau/dfgraph/pkg/dfgraph"
)

func TestDistances(t *testing.T) {
	g := buildNotebook(t)
	require.True(t, g.UpdateGraph(dfgraph.Update{CellID: cellD, Nodes: []string{"lonely"}}))
	v := DepView("s1", g.Snapshot(), DefaultOptions())

	assert.Equal(t, map[cellid.ID]int{
		cellA: 0, cellB: 1, cellC: 2, cellD: Unreachable,
	}, Distances(v, cellA))
	assert.Equal(t, map[cellid.ID]int{
		cellA: 1, cellB: 0, cellC: 1, cellD: Unreachable,
	}, Distances(v, cellB))

	none := Distances(v)
	assert.Equal(t, Unreachable, none[cellA])
	assert.Equal(t, Unreachable, Distances(v, cellE)[cellA], "unknown selections reach nothing")
}

func TestDepViewRadius(t *testing.T) {
	v := DepView("s1", buildNotebook(t).Snapshot(), Options{Dataflow: true, Selected: cellA, Radius: 1})

	assert.Equal(t, []string{
		"aaaaaaaa-Cell", "aaaaaaaax",
		"bbbbbbbb-Cell", "bbbbbbbby",
		"cluster_aaaaaaaa", "cluster_bbbbbbbb",
	}, v.NodeIDs())
	assert.Equal(t, [][2]string{{"aaaaaaaax", "bbbbbbbb-Cell"}}, edgePairs(v))
	assert.Equal(t, 0, v.Nodes["cluster_aaaaaaaa"].Metadata["distance"])
	assert.Equal(t, 1, v.Nodes["cluster_bbbbbbbb"].Metadata["distance"])
}

func TestDepViewRadiusNeedsSelection(t *testing.T) {
	v := DepView("s1", buildNotebook(t).Snapshot(), Options{Dataflow: true, Radius: 1})
	assert.True(t, v.HasNode("cluster_cccccccc"))
}
