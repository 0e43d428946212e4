package cnsim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func metricsFixture() (*MetricsEngine, *Packet, *PathInfo) {
	mets := CreateMetricsEngine()
	pckt := testPacket(0)
	pckt.srcID = 1
	pckt.dstID = 3
	pckt.sizeBytes = 1000.0
	pckt.pathNodes = []int{1, 2, 3}

	info := &PathInfo{
		PathNodes:     []int{1, 2, 3},
		HopCount:      2,
		TotalLatency:  12.0,
		BottleneckBw:  50.0,
		Throughput:    50.0,
		PerHopLatency: []float64{5.0, 7.0},
		LinkIDs:       []int{10, 11},
	}
	return mets, pckt, info
}

func TestCreationOpensRecord(t *testing.T) {
	mets, pckt, info := metricsFixture()
	mets.recordCreation(pckt, info, 0.0)

	pm, present := mets.PacketMetrics(pckt.packetID)
	require.True(t, present)
	assert.InDelta(t, 12.0, pm.TheoreticalLatency, 1e-9)
	assert.InDelta(t, 50.0, pm.BottleneckBw, 1e-9)
	assert.Equal(t, 2, pm.HopCount)
	assert.False(t, pm.Delivered)
	assert.Equal(t, 1, mets.Summary().TotalSent)
}

func TestDeliveryMeasurement(t *testing.T) {
	mets, pckt, info := metricsFixture()
	mets.recordCreation(pckt, info, 0.0)
	pckt.sentTime = 0.0
	mets.recordDelivery(pckt, 12.0)

	pm, _ := mets.PacketMetrics(pckt.packetID)
	assert.True(t, pm.Delivered)
	assert.InDelta(t, 12.0, pm.ActualLatency, 1e-9)

	// 1000 bytes over 12 ms
	assert.InDelta(t, (1000.0*8.0)/0.012/1e6, pm.ThroughputMbps, 1e-9)

	t.Run("links share the latency evenly", func(t *testing.T) {
		for _, linkID := range []int{10, 11} {
			lm, present := mets.LinkMetrics(linkID)
			require.True(t, present)
			assert.Equal(t, 1, lm.PacketsForwarded)
			assert.InDelta(t, 1000.0, lm.BytesForwarded, 1e-9)
			assert.InDelta(t, 6.0, lm.AvgLatency(), 1e-9)
		}
	})
}

func TestDropMeasurement(t *testing.T) {
	mets, pckt, info := metricsFixture()
	mets.recordCreation(pckt, info, 0.0)
	mets.recordDrop(pckt, 3.0)

	pm, _ := mets.PacketMetrics(pckt.packetID)
	assert.True(t, pm.Dropped)
	assert.False(t, pm.Delivered)

	// dropped packets leave no per-link footprint
	_, present := mets.LinkMetrics(10)
	assert.False(t, present)
}

func TestSummary(t *testing.T) {
	mets := CreateMetricsEngine()

	info := &PathInfo{HopCount: 1, TotalLatency: 5.0, BottleneckBw: 100.0, LinkIDs: []int{10}}
	for idx := 0; idx < 3; idx++ {
		pckt := testPacket(idx)
		pckt.sizeBytes = 1000.0
		mets.recordCreation(pckt, info, 0.0)
		if idx < 2 {
			pckt.sentTime = 0.0
			mets.recordDelivery(pckt, float64(5+idx))
		} else {
			mets.recordDrop(pckt, 1.0)
		}
	}

	ms := mets.Summary()
	assert.Equal(t, 3, ms.TotalSent)
	assert.Equal(t, 2, ms.TotalDelivered)
	assert.Equal(t, 1, ms.TotalDropped)
	assert.InDelta(t, 200.0/3.0, ms.DeliveryPcnt, 1e-9)
	assert.InDelta(t, 100.0/3.0, ms.DropPcnt, 1e-9)
	assert.InDelta(t, 5.0, ms.MinLatency, 1e-9)
	assert.InDelta(t, 6.0, ms.MaxLatency, 1e-9)
	assert.InDelta(t, 5.5, ms.AvgLatency, 1e-9)
	assert.InDelta(t, 5.0, ms.AvgTheoretical, 1e-9)
}

func TestEmptySummary(t *testing.T) {
	mets := CreateMetricsEngine()
	ms := mets.Summary()
	assert.Equal(t, 0, ms.TotalSent)
	assert.Equal(t, 0.0, ms.MinLatency)
	assert.Equal(t, 0.0, ms.DeliveryPcnt)
}

func TestClear(t *testing.T) {
	mets, pckt, info := metricsFixture()
	mets.recordCreation(pckt, info, 0.0)
	mets.clear()

	assert.Equal(t, 0, mets.Summary().TotalSent)
	_, present := mets.PacketMetrics(pckt.packetID)
	assert.False(t, present)
}
