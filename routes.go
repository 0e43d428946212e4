package cnsim

// routes.go provides functions to create and access minimum-latency
// routes through the simulated topology.
//
// The approach is to convert our topology representation into the data
// structures of a graph package that has built-in path discovery
// algorithms.  Weighting each edge by the link latency, Dijkstra's
// algorithm finds the minimum-latency path; weighting each edge by 1
// instead minimizes hop count, offered as an alternate metric but not
// what the packet engine uses.
//
// DijkstraFrom computes a tree of shortest paths from a named node, so
// to answer a (src,dst) query we compute (or fetch from cache) the tree
// rooted in src and read the path to dst out of it.  Any topology
// mutation discards the cache and the graph, since either may be stale.

import (
	"fmt"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
)

// routeMetric selects the edge weighting used for path discovery
type routeMetric int

const (
	// MetricLatency weights each edge by its link's latency (the default)
	MetricLatency routeMetric = iota

	// MetricHops weights each edge by 1, minimizing hop count
	MetricHops
)

// A PathInfo carries the path-level quantities derived from a resolved route
type PathInfo struct {
	PathNodes     []int     // node ids, source first
	HopCount      int       // number of links traversed
	TotalLatency  float64   // sum of per-link latencies (ms)
	BottleneckBw  float64   // minimum per-link bandwidth (Mbps)
	Throughput    float64   // throughput estimate, equal to the bottleneck bandwidth
	PerHopLatency []float64 // latency of each link on the path, in order
	LinkIDs       []int     // ids of each link on the path, in order
}

// A Router answers shortest-path queries over a Topology.  It keeps the
// graph-package representation of the topology and a cache of computed
// shortest-path trees, both discarded whenever the topology mutates.
type Router struct {
	topo   *Topology
	metric routeMetric

	// gNodes[i] is the graph-package node for our node with id i
	gNodes    map[int]simple.Node
	connGraph graph.Graph
	built     bool

	// cachedSP saves shortest-path trees keyed by the source node id
	cachedSP map[int]path.Shortest
}

// CreateRouter is a constructor.  The router registers with the
// topology so that mutations invalidate its caches.
func CreateRouter(topo *Topology) *Router {
	rtr := new(Router)
	rtr.topo = topo
	rtr.metric = MetricLatency
	rtr.gNodes = make(map[int]simple.Node)
	rtr.cachedSP = make(map[int]path.Shortest)
	topo.addObserver(rtr)
	return rtr
}

// SetMetric selects between latency-weighted and hop-count routing,
// discarding anything computed under the previous metric
func (rtr *Router) SetMetric(metric routeMetric) {
	if rtr.metric != metric {
		rtr.metric = metric
		rtr.invalidate()
	}
}

// invalidate discards the graph representation and the tree cache
func (rtr *Router) invalidate() {
	rtr.built = false
	rtr.connGraph = nil
	rtr.gNodes = make(map[int]simple.Node)
	rtr.cachedSP = make(map[int]path.Shortest)
}

// the router's topoObserver methods all reduce to cache invalidation
func (rtr *Router) linkAdded(lnk *Link)   { rtr.invalidate() }
func (rtr *Router) linkChanged(lnk *Link) { rtr.invalidate() }
func (rtr *Router) linkRemoved(lnk *Link) { rtr.invalidate() }

// buildConnGraph transforms the topology's adjacency structure into the
// graph package's weighted undirected representation
func (rtr *Router) buildConnGraph() {
	cg := simple.NewWeightedUndirectedGraph(0, 0)

	for nodeID := range rtr.topo.nodeByID {
		_, present := rtr.gNodes[nodeID]
		if present {
			continue
		}
		rtr.gNodes[nodeID] = simple.Node(nodeID)
	}

	for _, lnk := range rtr.topo.linkByID {
		weight := lnk.latency
		if rtr.metric == MetricHops {
			weight = 1.0
		}
		weightedEdge := simple.WeightedEdge{F: rtr.gNodes[lnk.nodeA], T: rtr.gNodes[lnk.nodeB], W: weight}
		cg.SetWeightedEdge(weightedEdge)
	}

	rtr.connGraph = cg
	rtr.built = true
}

// getSPTree returns the shortest path tree rooted in the input node id,
// computing and caching it if it isn't cached already
func (rtr *Router) getSPTree(from int) path.Shortest {
	spTree, present := rtr.cachedSP[from]
	if present {
		return spTree
	}

	spTree = path.DijkstraFrom(rtr.gNodes[from], rtr.connGraph)
	rtr.cachedSP[from] = spTree

	return spTree
}

// convertNodeSeq extracts our node ids from a sequence of graph nodes
func convertNodeSeq(nsQ []graph.Node) []int {
	rtn := make([]int, 0, len(nsQ))
	for _, node := range nsQ {
		rtn = append(rtn, int(node.ID()))
	}
	return rtn
}

// ShortestPath computes the minimum-cost path between two node ids
// under the current metric.  The error return flags invalid input: an
// unknown endpoint, or identical source and destination.  A nil error
// with found == false is the expected outcome when the topology is
// disconnected between the endpoints; it is not a fault.
func (rtr *Router) ShortestPath(srcID, dstID int) ([]int, bool, error) {
	_, srcKnown := rtr.topo.nodeByID[srcID]
	if !srcKnown {
		return nil, false, fmt.Errorf("source node %d not in topology", srcID)
	}
	_, dstKnown := rtr.topo.nodeByID[dstID]
	if !dstKnown {
		return nil, false, fmt.Errorf("destination node %d not in topology", dstID)
	}
	if srcID == dstID {
		return nil, false, fmt.Errorf("source and destination must be different")
	}

	if !rtr.built {
		rtr.buildConnGraph()
	}

	// a node with no links never made it into the connection graph
	if rtr.connGraph.Node(int64(srcID)) == nil || rtr.connGraph.Node(int64(dstID)) == nil {
		return nil, false, nil
	}

	spTree := rtr.getSPTree(srcID)
	nodeSeq, _ := spTree.To(int64(dstID))
	if len(nodeSeq) == 0 {
		return nil, false, nil
	}

	return convertNodeSeq(nodeSeq), true, nil
}

// PathInfo derives the path-level metrics for a resolved route: total
// latency, bottleneck bandwidth, and the per-hop breakdown.  The
// throughput estimate at this stage is the bottleneck bandwidth itself.
func (rtr *Router) PathInfo(pathNodes []int) (*PathInfo, error) {
	info := new(PathInfo)
	info.PathNodes = pathNodes
	info.PerHopLatency = make([]float64, 0)
	info.LinkIDs = make([]int, 0)

	if len(pathNodes) < 2 {
		return info, nil
	}

	minBw := -1.0
	for idx := 1; idx < len(pathNodes); idx++ {
		lnk, present := rtr.topo.linkBetween(pathNodes[idx-1], pathNodes[idx])
		if !present {
			return nil, fmt.Errorf("no link between path steps %d and %d", pathNodes[idx-1], pathNodes[idx])
		}
		info.TotalLatency += lnk.latency
		info.PerHopLatency = append(info.PerHopLatency, lnk.latency)
		info.LinkIDs = append(info.LinkIDs, lnk.linkID)
		if minBw < 0.0 || lnk.bndwdth < minBw {
			minBw = lnk.bndwdth
		}
	}

	info.HopCount = len(pathNodes) - 1
	info.BottleneckBw = minBw
	info.Throughput = minBw
	return info, nil
}
