package cnsim

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTopoCfg() *TopoCfg {
	tc := CreateTopoCfg("sample")
	tc.AddNodeDesc("A", 0.0, 0.0)
	tc.AddNodeDesc("B", 1.0, 0.0)
	tc.AddNodeDesc("C", 2.0, 0.0)
	tc.AddLinkDesc("ab", "A", "B", 5.0, 100.0, 10, "tail-drop")
	tc.AddLinkDesc("bc", "B", "C", 7.0, 50.0, 5, "head-drop")
	return tc
}

func TestTopoCfgFiles(t *testing.T) {
	dir := t.TempDir()

	t.Run("yaml", func(t *testing.T) {
		file := filepath.Join(dir, "topo.yaml")
		require.NoError(t, sampleTopoCfg().WriteToFile(file))
		tc, err := ReadTopoCfg(file, true, []byte{})
		require.NoError(t, err)
		assert.Equal(t, "sample", tc.Name)
		assert.Len(t, tc.Nodes, 3)
		assert.Len(t, tc.Links, 2)
		assert.Equal(t, "head-drop", tc.Links[1].Policy)
	})

	t.Run("json", func(t *testing.T) {
		file := filepath.Join(dir, "topo.json")
		require.NoError(t, sampleTopoCfg().WriteToFile(file))
		tc, err := ReadTopoCfg(file, false, []byte{})
		require.NoError(t, err)
		assert.Len(t, tc.Links, 2)
		assert.Equal(t, 5.0, tc.Links[0].Latency)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := ReadTopoCfg(filepath.Join(dir, "absent.yaml"), true, []byte{})
		assert.Error(t, err)
	})
}

func TestBuildTopologyFromCfg(t *testing.T) {
	topo, err := BuildTopology(sampleTopoCfg())
	require.NoError(t, err)
	assert.Equal(t, 3, topo.NumNodes())
	assert.Equal(t, 2, topo.NumLinks())

	lnk, present := topo.LinkByName("bc")
	require.True(t, present)
	assert.Equal(t, "head-drop", lnk.DropPolicy())

	t.Run("bad link surfaces the error", func(t *testing.T) {
		tc := sampleTopoCfg()
		tc.AddLinkDesc("ax", "A", "X", 1.0, 1.0, 1, "tail-drop")
		_, err := BuildTopology(tc)
		assert.Error(t, err)
	})
}

func TestValidateParameter(t *testing.T) {
	assert.NoError(t, ValidateParameter("Link", "*", "latency"))
	assert.NoError(t, ValidateParameter("Link", "name%%ab", "capacity"))
	assert.NoError(t, ValidateParameter("Link", "head-drop", "policy"))
	assert.Error(t, ValidateParameter("Switch", "*", "latency"))
	assert.Error(t, ValidateParameter("Link", "slow", "latency"))
	assert.Error(t, ValidateParameter("Link", "*", "color"))
}

func TestSetModelParameters(t *testing.T) {
	topo, err := BuildTopology(sampleTopoCfg())
	require.NoError(t, err)

	expCfg := CreateExpCfg("tuning")

	// listed most specific first to show ordering is by rank, not position
	require.NoError(t, expCfg.AddParameter("Link", "name%%ab", "latency", "2"))
	require.NoError(t, expCfg.AddParameter("Link", "head-drop", "capacity", "3"))
	require.NoError(t, expCfg.AddParameter("Link", "*", "latency", "9"))

	require.NoError(t, setModelParameters(topo, expCfg))

	ab, _ := topo.LinkByName("ab")
	bc, _ := topo.LinkByName("bc")
	assert.InDelta(t, 2.0, ab.Latency(), 1e-9)
	assert.InDelta(t, 9.0, bc.Latency(), 1e-9)
	assert.Equal(t, 3, bc.QueueCapacity())
	assert.Equal(t, 10, ab.QueueCapacity())

	t.Run("bad value surfaces the error", func(t *testing.T) {
		bad := CreateExpCfg("bad")
		require.NoError(t, bad.AddParameter("Link", "*", "capacity", "many"))
		assert.Error(t, setModelParameters(topo, bad))
	})
}

func TestExpCfgFiles(t *testing.T) {
	dir := t.TempDir()
	expCfg := CreateExpCfg("exp")
	require.NoError(t, expCfg.AddParameter("Link", "*", "bandwidth", "25"))

	file := filepath.Join(dir, "exp.json")
	require.NoError(t, expCfg.WriteToFile(file))

	read, err := ReadExpCfg(file, false, []byte{})
	require.NoError(t, err)
	assert.Equal(t, "exp", read.Name)
	require.Len(t, read.Parameters, 1)
	assert.Equal(t, "bandwidth", read.Parameters[0].Param)
}
