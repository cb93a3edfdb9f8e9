package dfgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ritzau/dfgraph/pkg/cellid"
)

func TestSeedRecoversLinksFromSource(t *testing.T) {
	g := Seed([]SeedCell{
		{ID: cellA, Source: "a = 3", Outputs: []string{"a"}},
		{ID: cellB, Source: "6"},
		{ID: cellC, Source: "c = a$aaaaaaaa + 4", Outputs: []string{"c"}},
		{ID: cellD, Source: "bbbbbbbb$bbbbbbbb + c$cccccccc + c$cccccccc"},
	}, nil)

	assert.Equal(t, []cellid.ID{cellA, cellB, cellC, cellD}, g.GetCells())
	assert.Equal(t, []cellid.ID{cellC}, g.GetDownstreams(cellA))
	assert.Equal(t, []cellid.ID{cellD}, g.GetDownstreams(cellB))
	assert.Equal(t, []string{"bbbbbbbb", "ccccccccc"}, g.GetUpstreams(cellD))
	assert.Equal(t, "c = a$aaaaaaaa + 4", g.GetText(cellC))
	assert.ElementsMatch(t, []cellid.ID{cellC, cellD}, g.AllDownstream(cellA))

	for _, id := range g.GetCells() {
		assert.Equal(t, StateStale, g.State(id), "cell %s", id)
	}
}

func TestSeedResolvesTagsAndIgnoresUnknownReferences(t *testing.T) {
	tags := cellid.NewTags(nil)
	require.NoError(t, tags.Bind("loader", cellA))

	g := Seed([]SeedCell{
		{ID: cellA, Source: "rows = 10", Outputs: []string{"rows"}},
		{ID: cellB, Source: "n = rows$loader + x$ffffffff + rows$nobody + me$bbbbbbbb", Outputs: []string{"n"}},
	}, tags)

	assert.Equal(t, []cellid.ID{cellA}, g.GetImmUpstreams(cellB))
	assert.Equal(t, []string{"rows"}, g.GetImmUpstreamNames(cellB))
	assert.Equal(t, []cellid.ID{cellB}, g.GetDownstreams(cellA))
}

func TestSeedThenExecute(t *testing.T) {
	g := Seed([]SeedCell{
		{ID: cellA, Source: "a = 1", Outputs: []string{"a"}},
		{ID: cellB, Source: "b = a$aaaaaaaa", Outputs: []string{"b"}},
	}, nil)

	require.True(t, g.Apply(Update{
		Cells:   []cellid.ID{cellA, cellB},
		CellID:  cellB,
		Nodes:   []string{"b"},
		Uplinks: map[cellid.ID][]string{cellA: {"a"}},
	}, []DownUpdate{{Key: "aaaaaaaa", Data: []cellid.ID{cellB}}}))

	assert.Equal(t, StateFresh, g.State(cellA))
	assert.Equal(t, StateFresh, g.State(cellB))
	assert.Equal(t, []cellid.ID{cellB}, g.GetDownstreams(cellA))
}
