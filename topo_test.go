package cnsim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildTriangle(t *testing.T) *Topology {
	t.Helper()
	topo := CreateTopology()
	for _, name := range []string{"A", "B", "C"} {
		_, err := topo.AddNode(name, 0.0, 0.0)
		require.NoError(t, err)
	}
	_, err := topo.AddLink("ab", "A", "B", 5.0, 100.0, 10, "tail-drop")
	require.NoError(t, err)
	_, err = topo.AddLink("bc", "B", "C", 7.0, 50.0, 10, "tail-drop")
	require.NoError(t, err)
	_, err = topo.AddLink("ac", "A", "C", 20.0, 200.0, 10, "tail-drop")
	require.NoError(t, err)
	return topo
}

func TestTopologyBuild(t *testing.T) {
	topo := buildTriangle(t)

	t.Run("lookups", func(t *testing.T) {
		node, present := topo.NodeByName("B")
		require.True(t, present)
		assert.Equal(t, "B", node.NodeName())

		lnk, present := topo.LinkByName("ab")
		require.True(t, present)
		assert.Equal(t, 5.0, lnk.Latency())
		assert.Equal(t, 100.0, lnk.Bandwidth())
		assert.Equal(t, 10, lnk.QueueCapacity())
		assert.Equal(t, "tail-drop", lnk.DropPolicy())

		a, _ := topo.NodeByName("A")
		b, _ := topo.NodeByName("B")
		between, present := topo.linkBetween(b.NodeID(), a.NodeID())
		require.True(t, present)
		assert.Equal(t, lnk.LinkID(), between.LinkID())

		assert.Equal(t, 3, topo.NumNodes())
		assert.Equal(t, 3, topo.NumLinks())
	})

	t.Run("incidence", func(t *testing.T) {
		b, _ := topo.NodeByName("B")
		assert.Len(t, b.LinkIDs(), 2)

		adj := topo.connections()
		assert.ElementsMatch(t,
			[]int{nodeID(t, topo, "A"), nodeID(t, topo, "C")}, adj[b.NodeID()])
	})
}

func TestTopologyValidation(t *testing.T) {
	topo := buildTriangle(t)

	t.Run("duplicate node name", func(t *testing.T) {
		_, err := topo.AddNode("A", 1.0, 1.0)
		assert.Error(t, err)
	})

	t.Run("duplicate link name", func(t *testing.T) {
		_, err := topo.AddNode("D", 0.0, 0.0)
		require.NoError(t, err)
		_, err = topo.AddLink("ab", "A", "D", 1.0, 1.0, 1, "tail-drop")
		assert.Error(t, err)
	})

	t.Run("unknown endpoint", func(t *testing.T) {
		_, err := topo.AddLink("ax", "A", "X", 1.0, 1.0, 1, "tail-drop")
		assert.Error(t, err)
	})

	t.Run("self link", func(t *testing.T) {
		_, err := topo.AddLink("aa", "A", "A", 1.0, 1.0, 1, "tail-drop")
		assert.Error(t, err)
	})

	t.Run("already linked", func(t *testing.T) {
		_, err := topo.AddLink("ab2", "B", "A", 1.0, 1.0, 1, "tail-drop")
		assert.Error(t, err)
	})

	t.Run("nonpositive attributes", func(t *testing.T) {
		_, err := topo.AddLink("ad", "A", "D", 0.0, 1.0, 1, "tail-drop")
		assert.Error(t, err)
		_, err = topo.AddLink("ad", "A", "D", 1.0, -1.0, 1, "tail-drop")
		assert.Error(t, err)
		_, err = topo.AddLink("ad", "A", "D", 1.0, 1.0, 0, "tail-drop")
		assert.Error(t, err)
	})
}

func TestUpdateLink(t *testing.T) {
	topo := buildTriangle(t)

	require.NoError(t, topo.UpdateLink("ab", 2.0, 10.0, 4, "head-drop"))
	lnk, _ := topo.LinkByName("ab")
	assert.Equal(t, 2.0, lnk.Latency())
	assert.Equal(t, 10.0, lnk.Bandwidth())
	assert.Equal(t, 4, lnk.QueueCapacity())
	assert.Equal(t, "head-drop", lnk.DropPolicy())

	assert.Error(t, topo.UpdateLink("nope", 1.0, 1.0, 1, "tail-drop"))
	assert.Error(t, topo.UpdateLink("ab", -1.0, 1.0, 1, "tail-drop"))
}

func TestRemoveLinkAndNode(t *testing.T) {
	topo := buildTriangle(t)

	require.NoError(t, topo.RemoveLink("ac"))
	_, present := topo.LinkByName("ac")
	assert.False(t, present)
	a, _ := topo.NodeByName("A")
	assert.Len(t, a.LinkIDs(), 1)
	assert.Error(t, topo.RemoveLink("ac"))

	// removing B takes its two incident links with it
	require.NoError(t, topo.RemoveNode("B"))
	_, present = topo.NodeByName("B")
	assert.False(t, present)
	assert.Equal(t, 0, topo.NumLinks())
	assert.Error(t, topo.RemoveNode("B"))
}
