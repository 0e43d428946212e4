package cnsim

// cnsim.go assembles the simulator.  A Simulator owns the topology, the
// router, the congestion controller, the packet engine, the metrics
// engine, the trace manager, and the event manager that drives virtual
// time.  Virtual time is measured in milliseconds.  All commands and
// queries pass through one mutex, so callers on different goroutines
// see a consistent simulation.
//
// Virtual time only moves inside Advance, which runs the event manager
// up to a requested boundary.  An optional wall-clock driver calls
// Advance on a real-time ticker, giving the simulation a live,
// pausable clock.

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/iti/evt/evtm"
	"github.com/iti/evt/vrtime"
)

// NullHandler is an event handler that does nothing.  Scheduling it at
// a time boundary forces the event manager to advance exactly there.
func NullHandler(evtMgr *evtm.EventManager, context any, data any) any {
	return nil
}

// A Simulator bundles the simulation's components behind one lock
type Simulator struct {
	mu sync.Mutex

	evtMgr *evtm.EventManager
	topo   *Topology
	rtr    *Router
	cc     *CongestionController
	pe     *PacketEngine
	mets   *MetricsEngine
	trace  *TraceManager

	// simTime is the virtual-time boundary reached by Advance (ms)
	simTime float64

	// wall-clock driver state
	clockRunning bool
	clockPaused  bool
	clockStop    chan struct{}
	clockDone    chan struct{}
}

// CreateSimulator assembles a simulator around an existing topology.
// Component creation order matters: the congestion controller registers
// with the topology before the packet engine, so queues vanish before
// the engine invalidates the packets that used them.
func CreateSimulator(topo *Topology, expName string, useTrace bool) *Simulator {
	sim := new(Simulator)
	sim.evtMgr = evtm.New()
	sim.topo = topo
	sim.trace = CreateTraceManager(expName, useTrace)
	sim.rtr = CreateRouter(topo)
	sim.cc = CreateCongestionController(topo)
	sim.mets = CreateMetricsEngine()
	sim.pe = CreatePacketEngine(topo, sim.rtr, sim.cc, sim.mets, sim.trace)

	for _, lnk := range topo.Links() {
		sim.trace.AddName(lnk.linkID, lnk.linkName, "link")
	}
	for nodeID, node := range topo.nodeByID {
		sim.trace.AddName(nodeID, node.nodeName, "node")
	}
	return sim
}

// BuildExperiment creates a simulator from input files.  The syn map
// carries synonyms for file names and settings:
//
//	"topoInput"  file holding the TopoCfg (required)
//	"expInput"   file holding an ExpCfg of run-time overrides (optional)
//	"expName"    experiment name for the trace (optional)
//	"trace"      "true" activates trace gathering (optional)
//
// Files with a .yaml/.yml extension deserialize as yaml, others as json.
func BuildExperiment(syn map[string]string) (*Simulator, error) {
	topoFile, present := syn["topoInput"]
	if !present {
		return nil, fmt.Errorf("experiment build requires a topoInput file")
	}

	tc, err := ReadTopoCfg(topoFile, yamlExt(topoFile), []byte{})
	if err != nil {
		return nil, err
	}
	topo, err := BuildTopology(tc)
	if err != nil {
		return nil, err
	}

	expFile, present := syn["expInput"]
	if present {
		expCfg, err := ReadExpCfg(expFile, yamlExt(expFile), []byte{})
		if err != nil {
			return nil, err
		}
		err = setModelParameters(topo, expCfg)
		if err != nil {
			return nil, err
		}
	}

	expName := syn["expName"]
	if len(expName) == 0 {
		expName = tc.Name
	}
	useTrace := syn["trace"] == "true"

	return CreateSimulator(topo, expName, useTrace), nil
}

// yamlExt reports whether a file name selects yaml serialization
func yamlExt(filename string) bool {
	return strings.HasSuffix(filename, ".yaml") || strings.HasSuffix(filename, ".yml") ||
		strings.HasSuffix(filename, ".YAML")
}

// Now reports the virtual-time boundary reached so far (ms)
func (sim *Simulator) Now() float64 {
	sim.mu.Lock()
	defer sim.mu.Unlock()
	return sim.simTime
}

// Advance runs the simulation forward by delta milliseconds of virtual
// time, executing every event scheduled within the window
func (sim *Simulator) Advance(delta float64) error {
	sim.mu.Lock()
	defer sim.mu.Unlock()
	if delta <= 0.0 {
		return fmt.Errorf("advance delta must be positive, got %f", delta)
	}
	sim.advance(delta)
	return nil
}

// advance does the work of Advance with the lock already held.  A
// do-nothing event pinned at the boundary makes the event manager's
// clock land exactly there even when no real event does.
func (sim *Simulator) advance(delta float64) {
	boundary := sim.simTime + delta
	offset := boundary - sim.evtMgr.CurrentSeconds()
	sim.evtMgr.Schedule(sim, nil, NullHandler, vrtime.SecondsToTime(offset))
	sim.evtMgr.Run(boundary)
	sim.simTime = boundary
}

// StartClock begins driving virtual time from a wall-clock ticker: each
// real interval advances the simulation by tick milliseconds.  One
// clock at a time.
func (sim *Simulator) StartClock(tick float64, interval time.Duration) error {
	sim.mu.Lock()
	defer sim.mu.Unlock()
	if sim.clockRunning {
		return fmt.Errorf("clock is already running")
	}
	if tick <= 0.0 || interval <= 0 {
		return fmt.Errorf("clock tick and interval must be positive")
	}

	sim.clockRunning = true
	sim.clockPaused = false
	sim.clockStop = make(chan struct{})
	sim.clockDone = make(chan struct{})

	go func(stop, done chan struct{}) {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				sim.mu.Lock()
				if !sim.clockPaused {
					sim.advance(tick)
				}
				sim.mu.Unlock()
			}
		}
	}(sim.clockStop, sim.clockDone)

	return nil
}

// Pause suspends the wall-clock driver without discarding it
func (sim *Simulator) Pause() {
	sim.mu.Lock()
	defer sim.mu.Unlock()
	sim.clockPaused = true
}

// Resume lets a paused wall-clock driver tick again
func (sim *Simulator) Resume() {
	sim.mu.Lock()
	defer sim.mu.Unlock()
	sim.clockPaused = false
}

// StopClock halts the wall-clock driver and waits for it to finish
func (sim *Simulator) StopClock() {
	sim.mu.Lock()
	if !sim.clockRunning {
		sim.mu.Unlock()
		return
	}
	sim.clockRunning = false
	close(sim.clockStop)
	done := sim.clockDone
	sim.mu.Unlock()
	<-done
}

// ClockRunning reports whether the wall-clock driver is active
func (sim *Simulator) ClockRunning() bool {
	sim.mu.Lock()
	defer sim.mu.Unlock()
	return sim.clockRunning
}

// CreatePacket creates a packet between named nodes and returns its id
func (sim *Simulator) CreatePacket(srcName, dstName string, sizeBytes float64) (int, error) {
	sim.mu.Lock()
	defer sim.mu.Unlock()
	pckt, err := sim.pe.CreatePacket(sim.evtMgr, srcName, dstName, sizeBytes)
	if err != nil {
		return -1, err
	}
	return pckt.packetID, nil
}

// StartTransit launches a created packet onto its route
func (sim *Simulator) StartTransit(packetID int) error {
	sim.mu.Lock()
	defer sim.mu.Unlock()
	return sim.pe.StartTransit(sim.evtMgr, packetID)
}

// Send creates a packet and launches it in one step
func (sim *Simulator) Send(srcName, dstName string, sizeBytes float64) (int, error) {
	sim.mu.Lock()
	defer sim.mu.Unlock()
	pckt, err := sim.pe.CreatePacket(sim.evtMgr, srcName, dstName, sizeBytes)
	if err != nil {
		return -1, err
	}
	err = sim.pe.StartTransit(sim.evtMgr, pckt.packetID)
	return pckt.packetID, err
}

// SendBurst creates and launches a run of identical packets, returning
// their ids in creation order
func (sim *Simulator) SendBurst(srcName, dstName string, count int, sizeBytes float64) ([]int, error) {
	sim.mu.Lock()
	defer sim.mu.Unlock()
	burst, err := sim.pe.CreateBurst(sim.evtMgr, srcName, dstName, count, sizeBytes)
	ids := make([]int, 0, len(burst))
	for _, pckt := range burst {
		ids = append(ids, pckt.packetID)
	}
	return ids, err
}

// AddNode adds a node to the topology
func (sim *Simulator) AddNode(name string, x, y float64) error {
	sim.mu.Lock()
	defer sim.mu.Unlock()
	node, err := sim.topo.AddNode(name, x, y)
	if err != nil {
		return err
	}
	sim.trace.AddName(node.nodeID, node.nodeName, "node")
	return nil
}

// AddLink adds a link to the topology, materializing its queue
func (sim *Simulator) AddLink(name, nodeA, nodeB string, latency, bndwdth float64, capacity int, policy string) error {
	sim.mu.Lock()
	defer sim.mu.Unlock()
	lnk, err := sim.topo.AddLink(name, nodeA, nodeB, latency, bndwdth, capacity, policy)
	if err != nil {
		return err
	}
	sim.trace.AddName(lnk.linkID, lnk.linkName, "link")
	return nil
}

// UpdateLink retunes a link's parameters
func (sim *Simulator) UpdateLink(name string, latency, bndwdth float64, capacity int, policy string) error {
	sim.mu.Lock()
	defer sim.mu.Unlock()
	return sim.topo.UpdateLink(name, latency, bndwdth, capacity, policy)
}

// RemoveLink removes a link, invalidating packets that depended on it
func (sim *Simulator) RemoveLink(name string) error {
	sim.mu.Lock()
	defer sim.mu.Unlock()
	return sim.topo.RemoveLink(name)
}

// RemoveNode removes a node and its incident links
func (sim *Simulator) RemoveNode(name string) error {
	sim.mu.Lock()
	defer sim.mu.Unlock()
	return sim.topo.RemoveNode(name)
}

// PacketState reports a packet's lifecycle state
func (sim *Simulator) PacketState(packetID int) (PacketState, error) {
	sim.mu.Lock()
	defer sim.mu.Unlock()
	pckt, present := sim.pe.Packet(packetID)
	if !present {
		return DROPPED, fmt.Errorf("no packet with id %d", packetID)
	}
	return pckt.state, nil
}

// PacketMetrics reports a packet's metrics record
func (sim *Simulator) PacketMetrics(packetID int) (*PacketMetrics, error) {
	sim.mu.Lock()
	defer sim.mu.Unlock()
	pm, present := sim.mets.PacketMetrics(packetID)
	if !present {
		return nil, fmt.Errorf("no metrics for packet id %d", packetID)
	}
	return pm, nil
}

// Summary reports the run's aggregate metrics
func (sim *Simulator) Summary() MetricsSummary {
	sim.mu.Lock()
	defer sim.mu.Unlock()
	return sim.mets.Summary()
}

// CongestionStatistics reports the controller's aggregate counters
func (sim *Simulator) CongestionStatistics() CongestionStats {
	sim.mu.Lock()
	defer sim.mu.Unlock()
	return sim.cc.Statistics()
}

// QueueSnapshots reports the state of every link queue
func (sim *Simulator) QueueSnapshots() []LinkQueueSnapshot {
	sim.mu.Lock()
	defer sim.mu.Unlock()
	return sim.cc.QueueSnapshots()
}

// Windows reports every link's congestion window, keyed by link id
func (sim *Simulator) Windows() map[int]float64 {
	sim.mu.Lock()
	defer sim.mu.Unlock()
	return sim.cc.Windows()
}

// CongestionEvents reports the accumulated window-halving events
func (sim *Simulator) CongestionEvents() []CongestionEvent {
	sim.mu.Lock()
	defer sim.mu.Unlock()
	return sim.cc.Events()
}

// CountByState tallies packets per lifecycle state
func (sim *Simulator) CountByState() map[PacketState]int {
	sim.mu.Lock()
	defer sim.mu.Unlock()
	return sim.pe.countByState()
}

// ShortestPath resolves the minimum-latency route between named nodes
func (sim *Simulator) ShortestPath(srcName, dstName string) (*PathInfo, error) {
	sim.mu.Lock()
	defer sim.mu.Unlock()
	src, present := sim.topo.NodeByName(srcName)
	if !present {
		return nil, fmt.Errorf("source node %s not in topology", srcName)
	}
	dst, present := sim.topo.NodeByName(dstName)
	if !present {
		return nil, fmt.Errorf("destination node %s not in topology", dstName)
	}
	pathNodes, found, err := sim.rtr.ShortestPath(src.nodeID, dst.nodeID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%s to %s: %w", srcName, dstName, ErrNoRoute)
	}
	return sim.rtr.PathInfo(pathNodes)
}

// WriteTrace serializes the gathered trace to a file, yaml or json by extension
func (sim *Simulator) WriteTrace(filename string) bool {
	sim.mu.Lock()
	defer sim.mu.Unlock()
	return sim.trace.WriteToFile(filename)
}

// ClearAll resets packets, queues, windows, metrics, and traces while
// leaving the topology and the virtual clock in place.  Events already
// scheduled belong to a finished epoch and do nothing when they fire.
func (sim *Simulator) ClearAll() {
	sim.mu.Lock()
	defer sim.mu.Unlock()
	sim.pe.clearAll()
	sim.cc.clearAll()
	sim.mets.clear()
	sim.trace.clear()
}
