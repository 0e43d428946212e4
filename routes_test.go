package cnsim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nodeID(t *testing.T, topo *Topology, name string) int {
	t.Helper()
	node, present := topo.NodeByName(name)
	require.True(t, present)
	return node.NodeID()
}

func TestShortestPath(t *testing.T) {
	topo := buildTriangle(t)
	rtr := CreateRouter(topo)
	a := nodeID(t, topo, "A")
	c := nodeID(t, topo, "C")

	t.Run("latency beats hop count", func(t *testing.T) {
		// direct A-C costs 20, the two-hop way through B costs 12
		pathNodes, found, err := rtr.ShortestPath(a, c)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, []int{a, nodeID(t, topo, "B"), c}, pathNodes)
	})

	t.Run("path info aggregates", func(t *testing.T) {
		pathNodes, _, _ := rtr.ShortestPath(a, c)
		info, err := rtr.PathInfo(pathNodes)
		require.NoError(t, err)
		assert.Equal(t, 2, info.HopCount)
		assert.InDelta(t, 12.0, info.TotalLatency, 1e-9)
		assert.InDelta(t, 50.0, info.BottleneckBw, 1e-9)
		assert.Equal(t, []float64{5.0, 7.0}, info.PerHopLatency)
	})

	t.Run("cost is additive over hops", func(t *testing.T) {
		b := nodeID(t, topo, "B")
		infoAB, err := rtr.PathInfo([]int{a, b})
		require.NoError(t, err)
		infoBC, err := rtr.PathInfo([]int{b, c})
		require.NoError(t, err)
		infoAC, err := rtr.PathInfo([]int{a, b, c})
		require.NoError(t, err)
		assert.InDelta(t, infoAB.TotalLatency+infoBC.TotalLatency, infoAC.TotalLatency, 1e-9)
	})

	t.Run("invalid input", func(t *testing.T) {
		_, _, err := rtr.ShortestPath(a, a)
		assert.Error(t, err)
		_, _, err = rtr.ShortestPath(a, 9999)
		assert.Error(t, err)
	})
}

func TestRouterInvalidation(t *testing.T) {
	topo := buildTriangle(t)
	rtr := CreateRouter(topo)
	a := nodeID(t, topo, "A")
	b := nodeID(t, topo, "B")
	c := nodeID(t, topo, "C")

	pathNodes, _, _ := rtr.ShortestPath(a, c)
	assert.Equal(t, []int{a, b, c}, pathNodes)

	// retuning the direct link makes it the cheaper way
	require.NoError(t, topo.UpdateLink("ac", 2.0, 200.0, 10, "tail-drop"))
	pathNodes, found, err := rtr.ShortestPath(a, c)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []int{a, c}, pathNodes)

	// removing it forces traffic back through B
	require.NoError(t, topo.RemoveLink("ac"))
	pathNodes, _, _ = rtr.ShortestPath(a, c)
	assert.Equal(t, []int{a, b, c}, pathNodes)
}

func TestDisconnected(t *testing.T) {
	topo := buildTriangle(t)
	rtr := CreateRouter(topo)
	_, err := topo.AddNode("island", 0.0, 0.0)
	require.NoError(t, err)

	pathNodes, found, err := rtr.ShortestPath(nodeID(t, topo, "A"), nodeID(t, topo, "island"))
	assert.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, pathNodes)
}

func TestHopCountMetric(t *testing.T) {
	topo := buildTriangle(t)
	rtr := CreateRouter(topo)
	a := nodeID(t, topo, "A")
	c := nodeID(t, topo, "C")

	rtr.SetMetric(MetricHops)
	pathNodes, found, err := rtr.ShortestPath(a, c)
	require.NoError(t, err)
	require.True(t, found)

	// one expensive hop beats two cheap ones under this metric
	assert.Equal(t, []int{a, c}, pathNodes)
}
