package cnsim

// packet.go implements the packet lifecycle.  A packet is created with
// a route already resolved, waits in QUEUED until transit starts, then
// moves hop by hop: each hop admits the packet to the link's queue and
// schedules an arrival event one link latency into the virtual future.
// The arrival event dequeues the packet and either delivers it or
// offers it to the next link.  A full queue anywhere along the way ends
// the packet in DROPPED.

import (
	"errors"
	"fmt"

	"github.com/iti/evt/evtm"
	"github.com/iti/evt/vrtime"
)

// ErrNoRoute reports that the topology holds no path between the
// requested endpoints.  Callers distinguish it from invalid-input
// errors with errors.Is.
var ErrNoRoute = errors.New("no route between endpoints")

// PacketState enumerates the lifecycle states.  A packet is in exactly
// one state at a time, and DELIVERED and DROPPED are terminal.
type PacketState int

const (
	QUEUED PacketState = iota
	IN_TRANSIT
	DELIVERED
	DROPPED
)

func (ps PacketState) String() string {
	switch ps {
	case QUEUED:
		return "queued"
	case IN_TRANSIT:
		return "in-transit"
	case DELIVERED:
		return "delivered"
	case DROPPED:
		return "dropped"
	}
	return "unknown"
}

// terminal reports whether the state admits no further transitions
func (ps PacketState) terminal() bool {
	return ps == DELIVERED || ps == DROPPED
}

// A Packet is one unit of traffic moving through the topology
type Packet struct {
	packetID  int
	srcID     int
	dstID     int
	sizeBytes float64

	// pathNodes holds the resolved route, source first.
	// pathIdx is the index of the node the packet has reached.
	pathNodes []int
	pathIdx   int

	state    PacketState
	currLink int // link being traversed while IN_TRANSIT, else -1

	createTime  float64
	sentTime    float64
	deliverTime float64
	dropTime    float64
}

// accessors for the read-only view of a packet
func (pckt *Packet) PacketID() int      { return pckt.packetID }
func (pckt *Packet) SrcID() int         { return pckt.srcID }
func (pckt *Packet) DstID() int         { return pckt.dstID }
func (pckt *Packet) SizeBytes() float64 { return pckt.sizeBytes }
func (pckt *Packet) State() PacketState { return pckt.state }

// Path returns a copy of the resolved route
func (pckt *Packet) Path() []int {
	rtn := make([]int, len(pckt.pathNodes))
	copy(rtn, pckt.pathNodes)
	return rtn
}

// arrivalData is the payload of a scheduled hop-arrival event
type arrivalData struct {
	packetID int
	linkID   int
	epoch    int
}

// A PacketEngine drives packets through their lifecycles.  The epoch
// counter rises on every reset so that arrival events scheduled before
// a reset recognize themselves as stale and do nothing.
type PacketEngine struct {
	topo  *Topology
	rtr   *Router
	cc    *CongestionController
	mets  *MetricsEngine
	trace *TraceManager

	pcktByID map[int]*Packet
	nxtID    int
	epoch    int
}

// CreatePacketEngine is a constructor.  The engine observes the
// topology so that removing a link invalidates packets depending on it.
func CreatePacketEngine(topo *Topology, rtr *Router, cc *CongestionController,
	mets *MetricsEngine, trace *TraceManager) *PacketEngine {
	pe := new(PacketEngine)
	pe.topo = topo
	pe.rtr = rtr
	pe.cc = cc
	pe.mets = mets
	pe.trace = trace
	pe.pcktByID = make(map[int]*Packet)
	topo.addObserver(pe)
	return pe
}

// topology growth and tuning don't touch packets already in flight
func (pe *PacketEngine) linkAdded(lnk *Link)   {}
func (pe *PacketEngine) linkChanged(lnk *Link) {}

// linkRemoved invalidates the packets that can no longer complete:
// queued packets routed over the link, and in-transit packets currently
// on it.  A packet in transit elsewhere with the removed link later in
// its route is dropped when its next hop fails to resolve.
func (pe *PacketEngine) linkRemoved(lnk *Link) {
	for _, pckt := range pe.pcktByID {
		if pckt.state.terminal() {
			continue
		}
		if pckt.state == IN_TRANSIT && pckt.currLink == lnk.linkID {
			pe.dropPacket(pckt, 0.0, "link removed")
			continue
		}
		if pckt.state == QUEUED && pathUsesLink(pckt.pathNodes, lnk) {
			pe.dropPacket(pckt, 0.0, "link removed")
		}
	}
}

// pathUsesLink reports whether any step of the route crosses the link
func pathUsesLink(pathNodes []int, lnk *Link) bool {
	for idx := 1; idx < len(pathNodes); idx++ {
		pair := orderedPair(pathNodes[idx-1], pathNodes[idx])
		if pair == orderedPair(lnk.nodeA, lnk.nodeB) {
			return true
		}
	}
	return false
}

// CreatePacket validates the request, resolves a route, and registers
// the packet in QUEUED.  The packet's theoretical metrics are computed
// here, before any queueing can happen to it.
func (pe *PacketEngine) CreatePacket(evtMgr *evtm.EventManager, srcName, dstName string, sizeBytes float64) (*Packet, error) {
	src, present := pe.topo.NodeByName(srcName)
	if !present {
		return nil, fmt.Errorf("source node %s not in topology", srcName)
	}
	dst, present := pe.topo.NodeByName(dstName)
	if !present {
		return nil, fmt.Errorf("destination node %s not in topology", dstName)
	}
	if src.nodeID == dst.nodeID {
		return nil, fmt.Errorf("source and destination must be different")
	}
	if sizeBytes <= 0.0 {
		return nil, fmt.Errorf("packet size must be positive, got %f", sizeBytes)
	}

	pathNodes, found, err := pe.rtr.ShortestPath(src.nodeID, dst.nodeID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%s to %s: %w", srcName, dstName, ErrNoRoute)
	}

	info, err := pe.rtr.PathInfo(pathNodes)
	if err != nil {
		return nil, err
	}

	now := evtMgr.CurrentSeconds()

	pckt := new(Packet)
	pckt.packetID = pe.nxtID
	pe.nxtID += 1
	pckt.srcID = src.nodeID
	pckt.dstID = dst.nodeID
	pckt.sizeBytes = sizeBytes
	pckt.pathNodes = pathNodes
	pckt.state = QUEUED
	pckt.currLink = -1
	pckt.createTime = now

	pe.pcktByID[pckt.packetID] = pckt
	pe.mets.recordCreation(pckt, info, now)
	pe.trace.AddTrace(now, pckt.packetID, "created",
		fmt.Sprintf("%s->%s over %d hops", srcName, dstName, info.HopCount))

	return pckt, nil
}

// StartTransit offers a queued packet to the first link of its route.
// Acceptance moves it to IN_TRANSIT and schedules its first arrival;
// rejection at the very first queue drops it on the spot.
func (pe *PacketEngine) StartTransit(evtMgr *evtm.EventManager, packetID int) error {
	pckt, present := pe.pcktByID[packetID]
	if !present {
		return fmt.Errorf("no packet with id %d", packetID)
	}
	if pckt.state != QUEUED {
		return fmt.Errorf("packet %d is %s, not awaiting transit", packetID, pckt.state)
	}
	if len(pckt.pathNodes) < 2 {
		pe.dropPacket(pckt, evtMgr.CurrentSeconds(), "degenerate route")
		return fmt.Errorf("packet %d has no traversable route", packetID)
	}

	now := evtMgr.CurrentSeconds()
	pckt.sentTime = now
	pe.trace.AddTrace(now, pckt.packetID, "sent", "")

	pe.offerToLink(evtMgr, pckt, pckt.pathNodes[0], pckt.pathNodes[1], now)
	return nil
}

// offerToLink admits the packet to the queue of the link joining two
// adjacent route nodes, schedules the hop's arrival on acceptance, and
// settles the fates of the packet and any eviction victim
func (pe *PacketEngine) offerToLink(evtMgr *evtm.EventManager, pckt *Packet, fromID, toID int, now float64) {
	lnk, present := pe.topo.linkBetween(fromID, toID)
	if !present {
		pe.dropPacket(pckt, now, "route step has no link")
		return
	}

	accepted, victim, err := pe.cc.Admit(pckt, lnk, now)
	if err != nil {
		pe.dropPacket(pckt, now, err.Error())
		return
	}
	if victim != nil {
		pe.trace.AddTrace(now, victim.packetID, "evict", lnk.linkName)
		pe.dropPacket(victim, now, fmt.Sprintf("evicted at %s", lnk.linkName))
	}
	if !accepted {
		pe.dropPacket(pckt, now, fmt.Sprintf("queue full at %s", lnk.linkName))
		return
	}

	pckt.state = IN_TRANSIT
	pckt.currLink = lnk.linkID
	pe.trace.AddTrace(now, pckt.packetID, "enqueue", lnk.linkName)

	evtMgr.Schedule(pe, arrivalData{packetID: pckt.packetID, linkID: lnk.linkID, epoch: pe.epoch},
		handleHopArrival, vrtime.SecondsToTime(lnk.latency))
}

// handleHopArrival fires when a packet finishes crossing a link.  The
// packet leaves the link's queue and is either delivered or offered to
// the next link of its route.  Events from a past epoch, or for packets
// no longer in transit, are ignored.
func handleHopArrival(evtMgr *evtm.EventManager, context any, data any) any {
	pe := context.(*PacketEngine)
	ad := data.(arrivalData)

	if ad.epoch != pe.epoch {
		return nil
	}
	pckt, present := pe.pcktByID[ad.packetID]
	if !present || pckt.state != IN_TRANSIT || pckt.currLink != ad.linkID {
		return nil
	}

	now := evtMgr.CurrentSeconds()
	pe.cc.Release(ad.linkID, pckt.packetID, now)

	pckt.pathIdx += 1
	pe.trace.AddTrace(now, pckt.packetID, "hop",
		fmt.Sprintf("reached node %d", pckt.pathNodes[pckt.pathIdx]))

	if pckt.pathIdx == len(pckt.pathNodes)-1 {
		pckt.state = DELIVERED
		pckt.currLink = -1
		pckt.deliverTime = now
		pe.mets.recordDelivery(pckt, now)
		pe.trace.AddTrace(now, pckt.packetID, "delivered", "")
		return nil
	}

	pe.offerToLink(evtMgr, pckt, pckt.pathNodes[pckt.pathIdx], pckt.pathNodes[pckt.pathIdx+1], now)
	return nil
}

// dropPacket moves a packet to its DROPPED terminal state
func (pe *PacketEngine) dropPacket(pckt *Packet, now float64, why string) {
	if pckt.state.terminal() {
		return
	}
	pckt.state = DROPPED
	pckt.currLink = -1
	pckt.dropTime = now
	pe.mets.recordDrop(pckt, now)
	pe.trace.AddTrace(now, pckt.packetID, "dropped", why)
}

// CreateBurst creates a run of identical packets and starts them all,
// returning the packets in creation order.  Creation failures abort the
// burst; a packet lost to a full queue during its start does not.
func (pe *PacketEngine) CreateBurst(evtMgr *evtm.EventManager, srcName, dstName string, count int, sizeBytes float64) ([]*Packet, error) {
	if count <= 0 {
		return nil, fmt.Errorf("burst count must be positive, got %d", count)
	}
	burst := make([]*Packet, 0, count)
	for idx := 0; idx < count; idx++ {
		pckt, err := pe.CreatePacket(evtMgr, srcName, dstName, sizeBytes)
		if err != nil {
			return burst, err
		}
		burst = append(burst, pckt)
	}
	for _, pckt := range burst {
		pe.StartTransit(evtMgr, pckt.packetID)
	}
	return burst, nil
}

// Packet looks a packet up by id
func (pe *PacketEngine) Packet(packetID int) (*Packet, bool) {
	pckt, present := pe.pcktByID[packetID]
	return pckt, present
}

// Packets returns every packet the engine knows, keyed by id
func (pe *PacketEngine) Packets() map[int]*Packet {
	rtn := make(map[int]*Packet, len(pe.pcktByID))
	for packetID, pckt := range pe.pcktByID {
		rtn[packetID] = pckt
	}
	return rtn
}

// countByState tallies packets per lifecycle state
func (pe *PacketEngine) countByState() map[PacketState]int {
	rtn := make(map[PacketState]int)
	for _, pckt := range pe.pcktByID {
		rtn[pckt.state] += 1
	}
	return rtn
}

// clearAll forgets every packet and advances the epoch so that arrival
// events already in the event queue do nothing when they fire
func (pe *PacketEngine) clearAll() {
	pe.pcktByID = make(map[int]*Packet)
	pe.nxtID = 0
	pe.epoch += 1
}
