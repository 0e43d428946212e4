package cnsim

// queue.go holds the LinkQueue type, a bounded FIFO buffer attached
// to a network link, and the drop policies applied when the buffer
// is full at enqueue time.

import (
	"github.com/iti/rngstream"
)

// dropPolicy is the base type for an enumerated type of queue drop policies
type dropPolicy int

const (
	// TailDrop rejects the arriving packet and leaves the queue unchanged
	TailDrop dropPolicy = iota

	// HeadDrop evicts the oldest queued packet to make room for the arrival
	HeadDrop

	// RandomDrop evicts a uniformly chosen queued packet to make room for the arrival
	RandomDrop
)

// dropPolicyFromStr returns the dropPolicy corresponding to a string name for it
func dropPolicyFromStr(policy string) dropPolicy {
	switch policy {
	case "head-drop", "head_drop", "head":
		return HeadDrop
	case "random-drop", "random_drop", "random":
		return RandomDrop
	default:
		return TailDrop
	}
}

// dropPolicyToStr returns a string name that corresponds to an input dropPolicy
func dropPolicyToStr(policy dropPolicy) string {
	switch policy {
	case HeadDrop:
		return "head-drop"
	case RandomDrop:
		return "random-drop"
	default:
		return "tail-drop"
	}
}

// a queueItem pairs a buffered packet with the time it entered the queue
type queueItem struct {
	pckt    *Packet
	entered float64
}

// A LinkQueue models the buffer of a network link.  Packets from either
// direction of the (bidirectional) link share the one queue.  The queue
// is bounded by the link's capacity; what happens on arrival to a full
// queue depends on the configured drop policy.  LinkQueues are owned by
// the CongestionController and created lazily, when a link first carries
// traffic.
type LinkQueue struct {
	linkID   int
	capacity int
	policy   dropPolicy

	// buffered packets, oldest first.  len(items) never exceeds capacity
	items []queueItem

	// counters reported through the queue snapshot
	enqueued   int     // total enqueue attempts
	dequeued   int     // total successful dequeues
	dropped    int     // total packets lost at this queue
	delaySum   float64 // accumulated queuing delay over all dequeues (ms)

	rngstrm *rngstream.RngStream // samples the victim under RandomDrop
}

// createLinkQueue is a constructor.  The rng stream is seeded by the
// queue name, so a fixed topology built in a fixed order replays the
// same eviction choices run after run.
func createLinkQueue(name string, linkID, capacity int, policy dropPolicy) *LinkQueue {
	lq := new(LinkQueue)
	lq.linkID = linkID
	lq.capacity = capacity
	lq.policy = policy
	lq.items = make([]queueItem, 0, capacity)
	lq.rngstrm = rngstream.New(name)
	return lq
}

// enqueue offers a packet to the queue at the given simulation time.
// The first return value reports whether the arriving packet was accepted.
// The second is non-nil when the drop policy evicted a previously queued
// packet to make room: the caller owns the eviction and must mark that
// packet dropped, since it can no longer be delivered.
//
// Every call counts as an attempt.  Every packet lost here, whether the
// arrival (tail-drop) or a victim (head/random drop), counts in the drop
// counter so queue-level accounting matches the lifecycle layer's.
func (lq *LinkQueue) enqueue(pckt *Packet, now float64) (bool, *Packet) {
	lq.enqueued += 1

	// room available, no policy decision to make
	if len(lq.items) < lq.capacity {
		lq.items = append(lq.items, queueItem{pckt: pckt, entered: now})
		return true, nil
	}

	// queue is full; apply the drop policy
	lq.dropped += 1

	switch lq.policy {
	case TailDrop:
		// reject the arrival, queue unchanged
		return false, nil

	case HeadDrop:
		victim := lq.items[0].pckt
		lq.items = append(lq.items[:0], lq.items[1:]...)
		lq.items = append(lq.items, queueItem{pckt: pckt, entered: now})
		return true, victim

	case RandomDrop:
		idx := int(lq.rngstrm.RandU01() * float64(len(lq.items)))
		if idx >= len(lq.items) {
			idx = len(lq.items) - 1
		}
		victim := lq.items[idx].pckt
		lq.items = append(lq.items[:idx], lq.items[idx+1:]...)
		lq.items = append(lq.items, queueItem{pckt: pckt, entered: now})
		return true, victim
	}

	return false, nil
}

// dequeue removes the oldest buffered packet and reports the queuing
// delay it experienced.  The boolean is false when the queue is empty.
func (lq *LinkQueue) dequeue(now float64) (*Packet, float64, bool) {
	if len(lq.items) == 0 {
		return nil, 0.0, false
	}

	item := lq.items[0]
	lq.items = append(lq.items[:0], lq.items[1:]...)

	delay := now - item.entered
	lq.delaySum += delay
	lq.dequeued += 1

	return item.pckt, delay, true
}

// remove takes a specific packet out of the queue, wherever it sits,
// and reports the queuing delay it experienced.  The boolean is false
// when the packet isn't buffered here.
func (lq *LinkQueue) remove(packetID int, now float64) (*Packet, float64, bool) {
	for idx, item := range lq.items {
		if item.pckt.packetID != packetID {
			continue
		}
		lq.items = append(lq.items[:idx], lq.items[idx+1:]...)
		delay := now - item.entered
		lq.delaySum += delay
		lq.dequeued += 1
		return item.pckt, delay, true
	}
	return nil, 0.0, false
}

// size returns the number of packets currently buffered
func (lq *LinkQueue) size() int {
	return len(lq.items)
}

// isFull reports whether an arrival now would trigger the drop policy
func (lq *LinkQueue) isFull() bool {
	return len(lq.items) >= lq.capacity
}

// utilization returns the occupied fraction of the buffer, in [0,1]
func (lq *LinkQueue) utilization() float64 {
	if lq.capacity == 0 {
		return 0.0
	}
	return float64(len(lq.items)) / float64(lq.capacity)
}

// avgDelay returns the mean queuing delay over all dequeued packets (ms)
func (lq *LinkQueue) avgDelay() float64 {
	if lq.dequeued == 0 {
		return 0.0
	}
	return lq.delaySum / float64(lq.dequeued)
}

// setCapacity adjusts the buffer bound when the owning link is reconfigured.
// Packets already buffered beyond the new bound stay put; the bound applies
// to arrivals.
func (lq *LinkQueue) setCapacity(capacity int) {
	lq.capacity = capacity
}

// clear empties the buffer and resets every counter, used between runs
func (lq *LinkQueue) clear() {
	lq.items = lq.items[:0]
	lq.enqueued = 0
	lq.dequeued = 0
	lq.dropped = 0
	lq.delaySum = 0.0
}

// A LinkQueueSnapshot is the serializable view of a LinkQueue offered
// through the query surface
type LinkQueueSnapshot struct {
	LinkID      int     `json:"linkid" yaml:"linkid"`
	Capacity    int     `json:"capacity" yaml:"capacity"`
	Policy      string  `json:"policy" yaml:"policy"`
	CurrentSize int     `json:"currentsize" yaml:"currentsize"`
	Utilization float64 `json:"utilization" yaml:"utilization"`
	Enqueued    int     `json:"enqueued" yaml:"enqueued"`
	Dequeued    int     `json:"dequeued" yaml:"dequeued"`
	Dropped     int     `json:"dropped" yaml:"dropped"`
	AvgDelay    float64 `json:"avgdelay" yaml:"avgdelay"`
}

// snapshot captures the queue's externally visible state
func (lq *LinkQueue) snapshot() LinkQueueSnapshot {
	return LinkQueueSnapshot{
		LinkID:      lq.linkID,
		Capacity:    lq.capacity,
		Policy:      dropPolicyToStr(lq.policy),
		CurrentSize: lq.size(),
		Utilization: lq.utilization(),
		Enqueued:    lq.enqueued,
		Dequeued:    lq.dequeued,
		Dropped:     lq.dropped,
		AvgDelay:    lq.avgDelay(),
	}
}
