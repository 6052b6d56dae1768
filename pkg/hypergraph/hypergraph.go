package hypergraph

import (
	"fmt"

	"github.com/gilchrisn/hypergraph-partitioning-service/pkg/parallel"
)

// vertex is one CSR vertex record: weight, first entry into the incident
// nets array and degree.
type vertex struct {
	weight  Weight
	begin   int32
	size    int32
	enabled bool
}

// edge is one CSR hyperedge record: weight, first entry into the incidence
// array and number of pins.
type edge struct {
	weight  Weight
	begin   int32
	size    int32
	enabled bool
}

// Hypergraph is an immutable compressed sparse row hypergraph. Vertices map
// to slices of incident net IDs, hyperedges map to slices of pin IDs.
// Disabled vertices and edges remain in the arrays but are skipped by the
// iteration helpers.
type Hypergraph struct {
	numNodes        int32
	numEdges        int32
	numPins         int32
	numRemovedNodes int32
	numRemovedEdges int32
	maxEdgeSize     int32
	totalWeight     int64

	vertices       []vertex
	edges          []edge
	incidentNets   []EdgeID
	incidenceArray []NodeID
	communityIDs   []int32
}

// InitialNumNodes returns the number of vertices including disabled ones.
func (h *Hypergraph) InitialNumNodes() int32 { return h.numNodes }

// InitialNumEdges returns the number of hyperedges including removed ones.
func (h *Hypergraph) InitialNumEdges() int32 { return h.numEdges }

// InitialNumPins returns the total number of pins.
func (h *Hypergraph) InitialNumPins() int32 { return h.numPins }

// CurrentNumNodes returns the number of enabled vertices.
func (h *Hypergraph) CurrentNumNodes() int32 { return h.numNodes - h.numRemovedNodes }

// CurrentNumEdges returns the number of enabled hyperedges.
func (h *Hypergraph) CurrentNumEdges() int32 { return h.numEdges - h.numRemovedEdges }

// TotalWeight returns the sum of all enabled vertex weights.
func (h *Hypergraph) TotalWeight() int64 { return h.totalWeight }

// MaxEdgeSize returns the largest pin count over all hyperedges.
func (h *Hypergraph) MaxEdgeSize() int32 { return h.maxEdgeSize }

// NodeIsEnabled reports whether vertex u is not tombstoned.
func (h *Hypergraph) NodeIsEnabled(u NodeID) bool { return h.vertices[u].enabled }

// EdgeIsEnabled reports whether hyperedge e is not tombstoned.
func (h *Hypergraph) EdgeIsEnabled(e EdgeID) bool { return h.edges[e].enabled }

// NodeWeight returns the weight of vertex u.
func (h *Hypergraph) NodeWeight(u NodeID) Weight { return h.vertices[u].weight }

// SetNodeWeight overwrites the weight of vertex u. The caller is responsible
// for keeping TotalWeight consistent via RecomputeTotalWeight.
func (h *Hypergraph) SetNodeWeight(u NodeID, w Weight) { h.vertices[u].weight = w }

// NodeDegree returns the number of incident nets of vertex u.
func (h *Hypergraph) NodeDegree(u NodeID) int32 { return h.vertices[u].size }

// EdgeWeight returns the weight of hyperedge e.
func (h *Hypergraph) EdgeWeight(e EdgeID) Weight { return h.edges[e].weight }

// SetEdgeWeight overwrites the weight of hyperedge e.
func (h *Hypergraph) SetEdgeWeight(e EdgeID, w Weight) { h.edges[e].weight = w }

// EdgeSize returns the number of pins of hyperedge e.
func (h *Hypergraph) EdgeSize(e EdgeID) int32 { return h.edges[e].size }

// IncidentEdges returns the incident nets of vertex u as a shared subslice.
// The slice must not be modified.
func (h *Hypergraph) IncidentEdges(u NodeID) []EdgeID {
	v := &h.vertices[u]
	return h.incidentNets[v.begin : v.begin+v.size]
}

// Pins returns the pins of hyperedge e as a shared subslice. The slice must
// not be modified.
func (h *Hypergraph) Pins(e EdgeID) []NodeID {
	he := &h.edges[e]
	return h.incidenceArray[he.begin : he.begin+he.size]
}

// CommunityID returns the community label of vertex u.
func (h *Hypergraph) CommunityID(u NodeID) int32 { return h.communityIDs[u] }

// SetCommunityID assigns a community label to vertex u.
func (h *Hypergraph) SetCommunityID(u NodeID, c int32) { h.communityIDs[u] = c }

// ForNodes calls fn for every enabled vertex.
func (h *Hypergraph) ForNodes(fn func(u NodeID)) {
	for u := int32(0); u < h.numNodes; u++ {
		if h.vertices[u].enabled {
			fn(u)
		}
	}
}

// ForEdges calls fn for every enabled hyperedge.
func (h *Hypergraph) ForEdges(fn func(e EdgeID)) {
	for e := int32(0); e < h.numEdges; e++ {
		if h.edges[e].enabled {
			fn(e)
		}
	}
}

// ForNodesParallel calls fn for every enabled vertex from numWorkers
// goroutines.
func (h *Hypergraph) ForNodesParallel(numWorkers int, fn func(u NodeID)) {
	parallel.For(int(h.numNodes), numWorkers, func(i int) {
		if h.vertices[i].enabled {
			fn(NodeID(i))
		}
	})
}

// ForEdgesParallel calls fn for every enabled hyperedge from numWorkers
// goroutines.
func (h *Hypergraph) ForEdgesParallel(numWorkers int, fn func(e EdgeID)) {
	parallel.For(int(h.numEdges), numWorkers, func(i int) {
		if h.edges[i].enabled {
			fn(EdgeID(i))
		}
	})
}

// RemoveDegreeZeroNode tombstones an isolated vertex. Its weight leaves the
// total weight.
func (h *Hypergraph) RemoveDegreeZeroNode(u NodeID) error {
	if h.vertices[u].size != 0 {
		return fmt.Errorf("%w: node %d has degree %d", ErrInvariant, u, h.vertices[u].size)
	}
	h.vertices[u].enabled = false
	h.numRemovedNodes++
	h.totalWeight -= int64(h.vertices[u].weight)
	return nil
}

// DisableEdge tombstones hyperedge e. Iteration skips it afterwards; the
// incidence arrays are left untouched.
func (h *Hypergraph) DisableEdge(e EdgeID) {
	if h.edges[e].enabled {
		h.edges[e].enabled = false
		h.numRemovedEdges++
	}
}

// RecomputeTotalWeight recomputes the total vertex weight in parallel.
func (h *Hypergraph) RecomputeTotalWeight(numWorkers int) {
	h.totalWeight = parallel.Reduce(int(h.numNodes), numWorkers, int64(0),
		func(lo, hi int, acc int64) int64 {
			for u := lo; u < hi; u++ {
				if h.vertices[u].enabled {
					acc += int64(h.vertices[u].weight)
				}
			}
			return acc
		},
		func(a, b int64) int64 { return a + b })
}

// Copy clones the hypergraph with all CSR arrays duplicated in parallel.
func (h *Hypergraph) Copy(_ int) *Hypergraph {
	clone := &Hypergraph{
		numNodes:        h.numNodes,
		numEdges:        h.numEdges,
		numPins:         h.numPins,
		numRemovedNodes: h.numRemovedNodes,
		numRemovedEdges: h.numRemovedEdges,
		maxEdgeSize:     h.maxEdgeSize,
		totalWeight:     h.totalWeight,
	}
	parallel.Invoke(
		func() { clone.vertices = append([]vertex(nil), h.vertices...) },
		func() { clone.edges = append([]edge(nil), h.edges...) },
		func() { clone.incidentNets = append([]EdgeID(nil), h.incidentNets...) },
		func() { clone.incidenceArray = append([]NodeID(nil), h.incidenceArray...) },
		func() { clone.communityIDs = append([]int32(nil), h.communityIDs...) },
	)
	return clone
}

// CopySequential clones the hypergraph on the calling goroutine. The result
// is bitwise equal to a parallel Copy.
func (h *Hypergraph) CopySequential() *Hypergraph {
	clone := &Hypergraph{
		numNodes:        h.numNodes,
		numEdges:        h.numEdges,
		numPins:         h.numPins,
		numRemovedNodes: h.numRemovedNodes,
		numRemovedEdges: h.numRemovedEdges,
		maxEdgeSize:     h.maxEdgeSize,
		totalWeight:     h.totalWeight,
	}
	clone.vertices = append([]vertex(nil), h.vertices...)
	clone.edges = append([]edge(nil), h.edges...)
	clone.incidentNets = append([]EdgeID(nil), h.incidentNets...)
	clone.incidenceArray = append([]NodeID(nil), h.incidenceArray...)
	clone.communityIDs = append([]int32(nil), h.communityIDs...)
	return clone
}

// MemoryConsumption reports the size in bytes of each CSR array.
func (h *Hypergraph) MemoryConsumption() map[string]int64 {
	return map[string]int64{
		"hypernodes":      int64(len(h.vertices)) * 16,
		"hyperedges":      int64(len(h.edges)) * 16,
		"incident_nets":   int64(len(h.incidentNets)) * 4,
		"incidence_array": int64(len(h.incidenceArray)) * 4,
		"communities":     int64(len(h.communityIDs)) * 4,
	}
}
