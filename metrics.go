package cnsim

// metrics.go implements the measurement layer.  Each packet gets a
// metrics record at creation holding the theoretical quantities its
// route promises; delivery fills in what actually happened.  Per-link
// counters accumulate on delivery only, with the packet's measured
// latency apportioned evenly across the hops it crossed.

import (
	"fmt"
	"math"
)

// A PacketMetrics record pairs a packet's promised and measured performance
type PacketMetrics struct {
	PacketID  int     `json:"packetid" yaml:"packetid"`
	SrcID     int     `json:"srcid" yaml:"srcid"`
	DstID     int     `json:"dstid" yaml:"dstid"`
	SizeBytes float64 `json:"sizebytes" yaml:"sizebytes"`
	HopCount  int     `json:"hopcount" yaml:"hopcount"`
	PathNodes []int   `json:"pathnodes" yaml:"pathnodes"`

	// promised by the route, known at creation
	TheoreticalLatency float64 `json:"theoreticallatency" yaml:"theoreticallatency"`
	BottleneckBw       float64 `json:"bottleneckbw" yaml:"bottleneckbw"`

	// measured, filled in at delivery
	Delivered      bool    `json:"delivered" yaml:"delivered"`
	Dropped        bool    `json:"dropped" yaml:"dropped"`
	ActualLatency  float64 `json:"actuallatency" yaml:"actuallatency"`
	ThroughputMbps float64 `json:"throughputmbps" yaml:"throughputmbps"`

	linkIDs []int
}

// A LinkMetrics record accumulates a link's share of delivered traffic
type LinkMetrics struct {
	LinkID           int     `json:"linkid" yaml:"linkid"`
	PacketsForwarded int     `json:"packetsforwarded" yaml:"packetsforwarded"`
	BytesForwarded   float64 `json:"bytesforwarded" yaml:"bytesforwarded"`
	LatencySum       float64 `json:"latencysum" yaml:"latencysum"`
}

// AvgLatency returns the mean per-hop latency attributed to the link (ms)
func (lm *LinkMetrics) AvgLatency() float64 {
	if lm.PacketsForwarded == 0 {
		return 0.0
	}
	return lm.LatencySum / float64(lm.PacketsForwarded)
}

// A MetricsSummary folds the whole run into one report
type MetricsSummary struct {
	TotalSent      int     `json:"totalsent" yaml:"totalsent"`
	TotalDelivered int     `json:"totaldelivered" yaml:"totaldelivered"`
	TotalDropped   int     `json:"totaldropped" yaml:"totaldropped"`
	DeliveryPcnt   float64 `json:"deliverypcnt" yaml:"deliverypcnt"`
	DropPcnt       float64 `json:"droppcnt" yaml:"droppcnt"`

	MinLatency     float64 `json:"minlatency" yaml:"minlatency"`
	MaxLatency     float64 `json:"maxlatency" yaml:"maxlatency"`
	AvgLatency     float64 `json:"avglatency" yaml:"avglatency"`
	AvgThroughput  float64 `json:"avgthroughput" yaml:"avgthroughput"`
	AvgTheoretical float64 `json:"avgtheoretical" yaml:"avgtheoretical"`
}

// A MetricsEngine owns the per-packet and per-link measurement records
type MetricsEngine struct {
	pcktMetrics map[int]*PacketMetrics
	linkMetrics map[int]*LinkMetrics

	totalSent      int
	totalDelivered int
	totalDropped   int
}

// CreateMetricsEngine is a constructor
func CreateMetricsEngine() *MetricsEngine {
	mets := new(MetricsEngine)
	mets.pcktMetrics = make(map[int]*PacketMetrics)
	mets.linkMetrics = make(map[int]*LinkMetrics)
	return mets
}

// recordCreation opens the packet's metrics record with the route's
// promised quantities and counts the packet as sent
func (mets *MetricsEngine) recordCreation(pckt *Packet, info *PathInfo, now float64) {
	pm := new(PacketMetrics)
	pm.PacketID = pckt.packetID
	pm.SrcID = pckt.srcID
	pm.DstID = pckt.dstID
	pm.SizeBytes = pckt.sizeBytes
	pm.HopCount = info.HopCount
	pm.PathNodes = pckt.Path()
	pm.TheoreticalLatency = info.TotalLatency
	pm.BottleneckBw = info.BottleneckBw
	pm.linkIDs = make([]int, len(info.LinkIDs))
	copy(pm.linkIDs, info.LinkIDs)

	mets.pcktMetrics[pckt.packetID] = pm
	mets.totalSent += 1
}

// recordDelivery measures the completed transit and folds the packet
// into the per-link counters, apportioning its latency evenly over the
// hops it crossed
func (mets *MetricsEngine) recordDelivery(pckt *Packet, now float64) {
	pm, present := mets.pcktMetrics[pckt.packetID]
	if !present {
		panic(fmt.Errorf("delivery of packet %d with no metrics record", pckt.packetID))
	}

	pm.Delivered = true
	pm.ActualLatency = now - pckt.sentTime
	if pm.ActualLatency > 0.0 {
		pm.ThroughputMbps = (pckt.sizeBytes * 8.0) / (pm.ActualLatency / 1000.0) / 1e6
	}
	mets.totalDelivered += 1

	perHop := 0.0
	if pm.HopCount > 0 {
		perHop = pm.ActualLatency / float64(pm.HopCount)
	}
	for _, linkID := range pm.linkIDs {
		lm, present := mets.linkMetrics[linkID]
		if !present {
			lm = new(LinkMetrics)
			lm.LinkID = linkID
			mets.linkMetrics[linkID] = lm
		}
		lm.PacketsForwarded += 1
		lm.BytesForwarded += pckt.sizeBytes
		lm.LatencySum += perHop
	}
}

// recordDrop marks the packet's record as lost
func (mets *MetricsEngine) recordDrop(pckt *Packet, now float64) {
	pm, present := mets.pcktMetrics[pckt.packetID]
	if !present {
		return
	}
	pm.Dropped = true
	mets.totalDropped += 1
}

// PacketMetrics looks a packet's record up by id
func (mets *MetricsEngine) PacketMetrics(packetID int) (*PacketMetrics, bool) {
	pm, present := mets.pcktMetrics[packetID]
	return pm, present
}

// LinkMetrics looks a link's accumulated counters up by id.  A link
// that has forwarded nothing has no record yet.
func (mets *MetricsEngine) LinkMetrics(linkID int) (*LinkMetrics, bool) {
	lm, present := mets.linkMetrics[linkID]
	return lm, present
}

// Summary folds every record into one report.  Latency statistics
// cover delivered packets only.
func (mets *MetricsEngine) Summary() MetricsSummary {
	var ms MetricsSummary
	ms.TotalSent = mets.totalSent
	ms.TotalDelivered = mets.totalDelivered
	ms.TotalDropped = mets.totalDropped
	if ms.TotalSent > 0 {
		ms.DeliveryPcnt = 100.0 * float64(ms.TotalDelivered) / float64(ms.TotalSent)
		ms.DropPcnt = 100.0 * float64(ms.TotalDropped) / float64(ms.TotalSent)
	}

	ms.MinLatency = math.Inf(1)
	latencySum := 0.0
	throughputSum := 0.0
	theoreticalSum := 0.0
	for _, pm := range mets.pcktMetrics {
		if !pm.Delivered {
			continue
		}
		latencySum += pm.ActualLatency
		throughputSum += pm.ThroughputMbps
		theoreticalSum += pm.TheoreticalLatency
		if pm.ActualLatency < ms.MinLatency {
			ms.MinLatency = pm.ActualLatency
		}
		if pm.ActualLatency > ms.MaxLatency {
			ms.MaxLatency = pm.ActualLatency
		}
	}
	if ms.TotalDelivered > 0 {
		ms.AvgLatency = latencySum / float64(ms.TotalDelivered)
		ms.AvgThroughput = throughputSum / float64(ms.TotalDelivered)
		ms.AvgTheoretical = theoreticalSum / float64(ms.TotalDelivered)
	} else {
		ms.MinLatency = 0.0
	}
	return ms
}

// clear discards every record and zeroes the counters
func (mets *MetricsEngine) clear() {
	mets.pcktMetrics = make(map[int]*PacketMetrics)
	mets.linkMetrics = make(map[int]*LinkMetrics)
	mets.totalSent = 0
	mets.totalDelivered = 0
	mets.totalDropped = 0
}
