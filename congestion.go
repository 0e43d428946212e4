package cnsim

// congestion.go implements the congestion control layer.  Every link
// gets a bounded queue and a congestion window that reacts to the
// admission outcome in the style of TCP Reno: additive increase on a
// successful enqueue, multiplicative decrease on a loss.  The window is
// an observable signal of sustained congestion rather than an admission
// gate; whether a packet gets in is decided by the queue itself.

import (
	"fmt"
)

const (
	// cwndIncrement is added to a link's window on every accepted packet
	cwndIncrement = 0.1

	// cwndFloor is the smallest value a window is cut to on loss
	cwndFloor = 1.0
)

// A CongestionEvent records one multiplicative-decrease step
type CongestionEvent struct {
	LinkID    int     `json:"linkid" yaml:"linkid"`
	NewWindow float64 `json:"newwindow" yaml:"newwindow"`
	Time      float64 `json:"time" yaml:"time"`
}

// A DropRecord remembers a packet lost at a full queue
type DropRecord struct {
	PacketID int     `json:"packetid" yaml:"packetid"`
	LinkID   int     `json:"linkid" yaml:"linkid"`
	Time     float64 `json:"time" yaml:"time"`
}

// CongestionStats aggregates the controller's counters for reporting
type CongestionStats struct {
	TotalAttempts    int     `json:"totalattempts" yaml:"totalattempts"`
	TotalEnqueued    int     `json:"totalenqueued" yaml:"totalenqueued"`
	TotalDropped     int     `json:"totaldropped" yaml:"totaldropped"`
	DropRatePcnt     float64 `json:"dropratepcnt" yaml:"dropratepcnt"`
	AvgQueueDepth    float64 `json:"avgqueuedepth" yaml:"avgqueuedepth"`
	CongestionEvents int     `json:"congestionevents" yaml:"congestionevents"`
}

// A CongestionController owns the per-link queues and windows.  It
// observes the topology so that queues appear and disappear with their
// links.
type CongestionController struct {
	topo    *Topology
	queues  map[int]*LinkQueue
	windows map[int]float64

	events  []CongestionEvent
	dropLog []DropRecord
}

// CreateCongestionController is a constructor.  Queues for links
// already present in the topology are materialized immediately.
func CreateCongestionController(topo *Topology) *CongestionController {
	cc := new(CongestionController)
	cc.topo = topo
	cc.queues = make(map[int]*LinkQueue)
	cc.windows = make(map[int]float64)
	cc.events = make([]CongestionEvent, 0)
	cc.dropLog = make([]DropRecord, 0)
	for _, lnk := range topo.linkByID {
		cc.linkAdded(lnk)
	}
	topo.addObserver(cc)
	return cc
}

// linkAdded materializes a queue and a window for a new link.  The
// window starts at the queue capacity.
func (cc *CongestionController) linkAdded(lnk *Link) {
	cc.queues[lnk.linkID] = createLinkQueue(lnk.linkName, lnk.linkID, lnk.capacity, lnk.policy)
	cc.windows[lnk.linkID] = float64(lnk.capacity)
}

// linkChanged resizes the link's queue and clamps its window into the
// new capacity
func (cc *CongestionController) linkChanged(lnk *Link) {
	lq, present := cc.queues[lnk.linkID]
	if !present {
		cc.linkAdded(lnk)
		return
	}
	lq.setCapacity(lnk.capacity)
	lq.policy = lnk.policy
	if cc.windows[lnk.linkID] > float64(lnk.capacity) {
		cc.windows[lnk.linkID] = float64(lnk.capacity)
	}
}

// linkRemoved discards the link's queue and window
func (cc *CongestionController) linkRemoved(lnk *Link) {
	delete(cc.queues, lnk.linkID)
	delete(cc.windows, lnk.linkID)
}

// Admit offers a packet to the link's queue and adjusts the window by
// the outcome.  The returns are whether the offered packet got in, and
// the victim evicted to make room for it (nil except under the
// head-drop and random-drop policies at a full queue).
func (cc *CongestionController) Admit(pckt *Packet, lnk *Link, now float64) (bool, *Packet, error) {
	lq, present := cc.queues[lnk.linkID]
	if !present {
		return false, nil, fmt.Errorf("no queue for link %s", lnk.linkName)
	}

	accepted, victim := lq.enqueue(pckt, now)

	if accepted && victim == nil {
		// clean acceptance, additive increase capped at capacity
		w := cc.windows[lnk.linkID] + cwndIncrement
		if w > float64(lq.capacity) {
			w = float64(lq.capacity)
		}
		cc.windows[lnk.linkID] = w
		return true, nil, nil
	}

	// a full queue was hit, whether the arrival or a victim was lost
	w := cc.windows[lnk.linkID] / 2.0
	if w < cwndFloor {
		w = cwndFloor
	}
	cc.windows[lnk.linkID] = w
	cc.events = append(cc.events, CongestionEvent{LinkID: lnk.linkID, NewWindow: w, Time: now})

	lostID := pckt.packetID
	if victim != nil {
		lostID = victim.packetID
	}
	cc.dropLog = append(cc.dropLog, DropRecord{PacketID: lostID, LinkID: lnk.linkID, Time: now})

	return accepted, victim, nil
}

// Release takes a specific packet out of the link's queue, returning it
// along with its queueing delay
func (cc *CongestionController) Release(linkID, packetID int, now float64) (*Packet, float64, bool) {
	lq, present := cc.queues[linkID]
	if !present {
		return nil, 0.0, false
	}
	return lq.remove(packetID, now)
}

// Window reports a link's current congestion window
func (cc *CongestionController) Window(linkID int) (float64, bool) {
	w, present := cc.windows[linkID]
	return w, present
}

// Windows reports every link's congestion window, keyed by link id
func (cc *CongestionController) Windows() map[int]float64 {
	rtn := make(map[int]float64, len(cc.windows))
	for linkID, w := range cc.windows {
		rtn[linkID] = w
	}
	return rtn
}

// Queue exposes a link's queue, used by the packet engine and the query surface
func (cc *CongestionController) Queue(linkID int) (*LinkQueue, bool) {
	lq, present := cc.queues[linkID]
	return lq, present
}

// QueueSnapshots reports the state of every link queue
func (cc *CongestionController) QueueSnapshots() []LinkQueueSnapshot {
	rtn := make([]LinkQueueSnapshot, 0, len(cc.queues))
	for _, lq := range cc.queues {
		rtn = append(rtn, lq.snapshot())
	}
	return rtn
}

// Events returns the accumulated multiplicative-decrease events
func (cc *CongestionController) Events() []CongestionEvent {
	return cc.events
}

// DropLog returns the accumulated loss records
func (cc *CongestionController) DropLog() []DropRecord {
	return cc.dropLog
}

// Statistics folds the per-queue counters into one report
func (cc *CongestionController) Statistics() CongestionStats {
	var cs CongestionStats
	depthSum := 0.0
	for _, lq := range cc.queues {
		cs.TotalAttempts += lq.enqueued
		cs.TotalEnqueued += lq.enqueued - lq.dropped
		cs.TotalDropped += lq.dropped
		depthSum += float64(lq.size())
	}
	if cs.TotalAttempts > 0 {
		cs.DropRatePcnt = 100.0 * float64(cs.TotalDropped) / float64(cs.TotalAttempts)
	}
	if len(cc.queues) > 0 {
		cs.AvgQueueDepth = depthSum / float64(len(cc.queues))
	}
	cs.CongestionEvents = len(cc.events)
	return cs
}

// clearAll empties every queue, resets every window to its link's
// capacity, and discards the event and drop histories
func (cc *CongestionController) clearAll() {
	for linkID, lq := range cc.queues {
		lq.clear()
		lnk := cc.topo.linkByID[linkID]
		cc.windows[linkID] = float64(lnk.capacity)
	}
	cc.events = cc.events[:0]
	cc.dropLog = cc.dropLog[:0]
}
