package cnsim

// topo.go contains the run-time representation of the simulated network
// topology: nodes, the bidirectional links between them, and the lookup
// structures the rest of the simulator navigates by.  The Topology owns
// all Node and Link records; other components hold ids and look records
// up here, never duplicating them.

import (
	"fmt"

	"golang.org/x/exp/slices"
)

// intPair packages two integer ids, used as a map key for link endpoints
type intPair struct {
	i, j int
}

// orderedPair normalizes an endpoint pair so either direction of a
// bidirectional link keys the same map entry
func orderedPair(i, j int) intPair {
	if j < i {
		i, j = j, i
	}
	return intPair{i: i, j: j}
}

// A Node is a point in the topology packets originate at, pass through,
// or terminate at.  The position fields exist for path geometry in
// external viewers and play no part in the core logic.
type Node struct {
	nodeID   int
	nodeName string
	x, y     float64
	linkIDs  []int // ids of incident links
}

// NodeID returns the node's unique integer id
func (node *Node) NodeID() int {
	return node.nodeID
}

// NodeName returns the node's unique name
func (node *Node) NodeName() string {
	return node.nodeName
}

// Position returns the node's 2-D placement
func (node *Node) Position() (float64, float64) {
	return node.x, node.y
}

// LinkIDs returns the ids of the links incident to the node
func (node *Node) LinkIDs() []int {
	return slices.Clone(node.linkIDs)
}

// A Link is a bidirectional connection between two nodes with fixed
// latency (ms per traversal), bandwidth (Mbps), and queue capacity
// (packets).  Both directions share the same queue instance, held by
// the CongestionController and keyed by the link id.
type Link struct {
	linkID   int
	linkName string
	nodeA    int
	nodeB    int
	latency  float64
	bndwdth  float64
	capacity int
	policy   dropPolicy
}

// LinkID returns the link's unique integer id
func (lnk *Link) LinkID() int {
	return lnk.linkID
}

// LinkName returns the link's unique name
func (lnk *Link) LinkName() string {
	return lnk.linkName
}

// Endpoints returns the ids of the two nodes the link connects
func (lnk *Link) Endpoints() (int, int) {
	return lnk.nodeA, lnk.nodeB
}

// Latency returns the fixed per-traversal latency, in ms
func (lnk *Link) Latency() float64 {
	return lnk.latency
}

// Bandwidth returns the link capacity in Mbps
func (lnk *Link) Bandwidth() float64 {
	return lnk.bndwdth
}

// QueueCapacity returns the bound on the link's buffer, in packets
func (lnk *Link) QueueCapacity() int {
	return lnk.capacity
}

// DropPolicy returns the string form of the link's configured drop policy
func (lnk *Link) DropPolicy() string {
	return dropPolicyToStr(lnk.policy)
}

// peer returns the id of the endpoint opposite the one given
func (lnk *Link) peer(nodeID int) int {
	if lnk.nodeA == nodeID {
		return lnk.nodeB
	}
	return lnk.nodeA
}

// A topoObserver is notified of topology mutations.  The congestion
// controller uses these to (re)materialize queues and windows, the
// packet engine to invalidate in-flight paths that reference a removed
// link, and the router to discard cached shortest-path trees.
type topoObserver interface {
	linkAdded(lnk *Link)
	linkChanged(lnk *Link)
	linkRemoved(lnk *Link)
}

// Topology holds the node and link records and the adjacency structure
// derived from them.  All mutation flows through its methods so that
// observers see every change.
type Topology struct {
	nodeByID   map[int]*Node
	nodeByName map[string]*Node
	linkByID   map[int]*Link
	linkByName map[string]*Link

	// link id between a pair of node ids, normalized by orderedPair
	linkByEnds map[intPair]int

	observers []topoObserver

	// numIds generates unique ids for nodes and links created here
	numIds int
}

// CreateTopology is a constructor
func CreateTopology() *Topology {
	topo := new(Topology)
	topo.nodeByID = make(map[int]*Node)
	topo.nodeByName = make(map[string]*Node)
	topo.linkByID = make(map[int]*Link)
	topo.linkByName = make(map[string]*Link)
	topo.linkByEnds = make(map[intPair]int)
	topo.observers = make([]topoObserver, 0)
	return topo
}

// nxtID creates an id unique among the objects this topology created
func (topo *Topology) nxtID() int {
	topo.numIds += 1
	return topo.numIds
}

// addObserver registers for mutation notifications
func (topo *Topology) addObserver(obs topoObserver) {
	topo.observers = append(topo.observers, obs)
}

// AddNode creates a node with the given unique name and position and
// returns it.  An error results if the name is already in use.
func (topo *Topology) AddNode(name string, x, y float64) (*Node, error) {
	_, present := topo.nodeByName[name]
	if present {
		return nil, fmt.Errorf("node name %s over-used in topology", name)
	}

	node := new(Node)
	node.nodeID = topo.nxtID()
	node.nodeName = name
	node.x = x
	node.y = y
	node.linkIDs = make([]int, 0)

	topo.nodeByID[node.nodeID] = node
	topo.nodeByName[name] = node
	return node, nil
}

// AddLink creates a bidirectional link between two named nodes and
// returns it.  Latency, bandwidth, and capacity must all be positive;
// the endpoints must exist, differ, and not already be linked.
func (topo *Topology) AddLink(name, nodeA, nodeB string, latency, bndwdth float64, capacity int, policy string) (*Link, error) {
	_, present := topo.linkByName[name]
	if present {
		return nil, fmt.Errorf("link name %s over-used in topology", name)
	}

	na, aok := topo.nodeByName[nodeA]
	nb, bok := topo.nodeByName[nodeB]
	if !aok || !bok {
		return nil, fmt.Errorf("link %s names an unknown endpoint", name)
	}
	if na.nodeID == nb.nodeID {
		return nil, fmt.Errorf("link %s connects node %s to itself", name, nodeA)
	}

	_, present = topo.linkByEnds[orderedPair(na.nodeID, nb.nodeID)]
	if present {
		return nil, fmt.Errorf("nodes %s and %s are already linked", nodeA, nodeB)
	}

	if latency <= 0.0 || bndwdth <= 0.0 || capacity <= 0 {
		return nil, fmt.Errorf("link %s requires positive latency, bandwidth, and queue capacity", name)
	}

	lnk := new(Link)
	lnk.linkID = topo.nxtID()
	lnk.linkName = name
	lnk.nodeA = na.nodeID
	lnk.nodeB = nb.nodeID
	lnk.latency = latency
	lnk.bndwdth = bndwdth
	lnk.capacity = capacity
	lnk.policy = dropPolicyFromStr(policy)

	topo.linkByID[lnk.linkID] = lnk
	topo.linkByName[name] = lnk
	topo.linkByEnds[orderedPair(na.nodeID, nb.nodeID)] = lnk.linkID

	na.linkIDs = append(na.linkIDs, lnk.linkID)
	nb.linkIDs = append(nb.linkIDs, lnk.linkID)

	for _, obs := range topo.observers {
		obs.linkAdded(lnk)
	}
	return lnk, nil
}

// UpdateLink reconfigures an existing link's performance attributes.
// Invariants on the attributes are the same as at creation.
func (topo *Topology) UpdateLink(name string, latency, bndwdth float64, capacity int, policy string) error {
	lnk, present := topo.linkByName[name]
	if !present {
		return fmt.Errorf("no link named %s in topology", name)
	}
	if latency <= 0.0 || bndwdth <= 0.0 || capacity <= 0 {
		return fmt.Errorf("link %s requires positive latency, bandwidth, and queue capacity", name)
	}

	lnk.latency = latency
	lnk.bndwdth = bndwdth
	lnk.capacity = capacity
	lnk.policy = dropPolicyFromStr(policy)

	for _, obs := range topo.observers {
		obs.linkChanged(lnk)
	}
	return nil
}

// RemoveLink deletes a link from the topology.  Observers learn of the
// removal after the lookup structures are updated, so a notified
// component re-querying the topology sees the link gone.
func (topo *Topology) RemoveLink(name string) error {
	lnk, present := topo.linkByName[name]
	if !present {
		return fmt.Errorf("no link named %s in topology", name)
	}

	delete(topo.linkByID, lnk.linkID)
	delete(topo.linkByName, name)
	delete(topo.linkByEnds, orderedPair(lnk.nodeA, lnk.nodeB))

	for _, endpt := range []int{lnk.nodeA, lnk.nodeB} {
		node := topo.nodeByID[endpt]
		idx := slices.Index(node.linkIDs, lnk.linkID)
		if idx >= 0 {
			node.linkIDs = append(node.linkIDs[:idx], node.linkIDs[idx+1:]...)
		}
	}

	for _, obs := range topo.observers {
		obs.linkRemoved(lnk)
	}
	return nil
}

// RemoveNode deletes a node and every link incident to it
func (topo *Topology) RemoveNode(name string) error {
	node, present := topo.nodeByName[name]
	if !present {
		return fmt.Errorf("no node named %s in topology", name)
	}

	// RemoveLink edits node.linkIDs, so iterate over a copy
	for _, linkID := range slices.Clone(node.linkIDs) {
		lnk := topo.linkByID[linkID]
		err := topo.RemoveLink(lnk.linkName)
		if err != nil {
			return err
		}
	}

	delete(topo.nodeByID, node.nodeID)
	delete(topo.nodeByName, name)
	return nil
}

// NodeByName looks a node up by its unique name
func (topo *Topology) NodeByName(name string) (*Node, bool) {
	node, present := topo.nodeByName[name]
	return node, present
}

// NodeByID looks a node up by its unique integer id
func (topo *Topology) NodeByID(nodeID int) (*Node, bool) {
	node, present := topo.nodeByID[nodeID]
	return node, present
}

// LinkByName looks a link up by its unique name
func (topo *Topology) LinkByName(name string) (*Link, bool) {
	lnk, present := topo.linkByName[name]
	return lnk, present
}

// LinkByID looks a link up by its unique integer id
func (topo *Topology) LinkByID(linkID int) (*Link, bool) {
	lnk, present := topo.linkByID[linkID]
	return lnk, present
}

// linkBetween returns the link joining two node ids, if one exists
func (topo *Topology) linkBetween(nodeA, nodeB int) (*Link, bool) {
	linkID, present := topo.linkByEnds[orderedPair(nodeA, nodeB)]
	if !present {
		return nil, false
	}
	return topo.linkByID[linkID], true
}

// connections reports the adjacency structure as a map from node id to
// the ids of directly connected nodes.  The router turns this into the
// graph representation its path algorithms want.
func (topo *Topology) connections() map[int][]int {
	tg := make(map[int][]int)
	for nodeID, node := range topo.nodeByID {
		peers := make([]int, 0, len(node.linkIDs))
		for _, linkID := range node.linkIDs {
			peers = append(peers, topo.linkByID[linkID].peer(nodeID))
		}
		tg[nodeID] = peers
	}
	return tg
}

// NumNodes returns the number of nodes currently in the topology
func (topo *Topology) NumNodes() int {
	return len(topo.nodeByID)
}

// NumLinks returns the number of links currently in the topology
func (topo *Topology) NumLinks() int {
	return len(topo.linkByID)
}

// Links returns the link records, for iteration by snapshot builders
func (topo *Topology) Links() []*Link {
	links := make([]*Link, 0, len(topo.linkByID))
	for _, lnk := range topo.linkByID {
		links = append(links, lnk)
	}
	return links
}
