package hypergraph

import (
	"fmt"
	"runtime"
	"sort"
	"sync/atomic"

	"github.com/gilchrisn/hypergraph-partitioning-service/pkg/parallel"
)

// HalfEdge is one directed half of an undirected graph edge. backEdge is the
// index of the reverse half-edge in the edge array.
type HalfEdge struct {
	target   NodeID
	backEdge int32
	weight   Weight
}

// Target returns the head vertex of the half-edge.
func (e *HalfEdge) Target() NodeID { return e.target }

// BackEdge returns the index of the reverse half-edge.
func (e *HalfEdge) BackEdge() int32 { return e.backEdge }

// Weight returns the edge weight.
func (e *HalfEdge) Weight() Weight { return e.weight }

// Graph is the CSR specialization for hypergraphs whose edges all have
// exactly two pins. Each undirected edge is stored as two half-edges that
// cross-reference each other.
type Graph struct {
	numNodes    int32
	numEdges    int32
	totalWeight int64

	nodes     []vertex
	halfEdges []HalfEdge
}

// InitialNumNodes returns the number of vertices.
func (g *Graph) InitialNumNodes() int32 { return g.numNodes }

// InitialNumEdges returns the number of undirected edges.
func (g *Graph) InitialNumEdges() int32 { return g.numEdges }

// InitialNumPins returns the number of pins (two per edge).
func (g *Graph) InitialNumPins() int32 { return 2 * g.numEdges }

// TotalWeight returns the sum of all vertex weights.
func (g *Graph) TotalWeight() int64 { return g.totalWeight }

// MaxEdgeSize returns 2 for any non-empty graph.
func (g *Graph) MaxEdgeSize() int32 {
	if g.numEdges == 0 {
		return 0
	}
	return 2
}

// NodeWeight returns the weight of vertex u.
func (g *Graph) NodeWeight(u NodeID) Weight { return g.nodes[u].weight }

// NodeDegree returns the number of incident half-edges of vertex u.
func (g *Graph) NodeDegree(u NodeID) int32 { return g.nodes[u].size }

// IncidentHalfEdges returns the outgoing half-edges of vertex u as a shared
// subslice.
func (g *Graph) IncidentHalfEdges(u NodeID) []HalfEdge {
	v := &g.nodes[u]
	return g.halfEdges[v.begin : v.begin+v.size]
}

// ConstructGraph builds the graph specialization from 2-element pin lists.
// Any pin list whose size differs from two fails with ErrInvalidInput.
func ConstructGraph(numNodes int32, edgeVector [][]NodeID, edgeWeights, nodeWeights []Weight,
	stable bool, numWorkers int) (*Graph, error) {

	numEdges := int32(len(edgeVector))
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	if err := parallel.ForErr(int(numEdges), numWorkers, func(i int) error {
		if len(edgeVector[i]) != 2 {
			return fmt.Errorf("%w: using graph data structure, but edge %d has %d pins",
				ErrInvalidInput, i, len(edgeVector[i]))
		}
		return nil
	}); err != nil {
		return nil, err
	}

	degrees, _, err := countDegrees(numNodes, edgeVector, numWorkers)
	if err != nil {
		return nil, err
	}

	g := &Graph{
		numNodes:  numNodes,
		numEdges:  numEdges,
		nodes:     make([]vertex, numNodes),
		halfEdges: make([]HalfEdge, 2*numEdges),
	}

	offsets := parallel.ExclusiveOffsets(degrees, numWorkers)
	parallel.For(int(numNodes), numWorkers, func(i int) {
		v := &g.nodes[i]
		v.enabled = true
		v.begin = offsets[i]
		v.size = degrees[i]
		v.weight = 1
		if nodeWeights != nil {
			v.weight = nodeWeights[i]
		}
	})

	// Each endpoint reserves its next slot with an atomic fetch-add; the two
	// half-edges cross-reference each other. halfEdgeIDs remembers which
	// original half landed in which slot so stable mode can restore the
	// back-references after sorting.
	cursors := make([]atomic.Int32, numNodes)
	halfEdgeIDs := make([]int32, 2*numEdges)
	parallel.For(int(numEdges), numWorkers, func(i int) {
		u, v := edgeVector[i][0], edgeVector[i][1]
		w := Weight(1)
		if edgeWeights != nil {
			w = edgeWeights[i]
		}
		posU := offsets[u] + cursors[u].Add(1) - 1
		posV := offsets[v] + cursors[v].Add(1) - 1
		g.halfEdges[posU] = HalfEdge{target: v, backEdge: posV, weight: w}
		g.halfEdges[posV] = HalfEdge{target: u, backEdge: posU, weight: w}
		halfEdgeIDs[posU] = int32(2 * i)
		halfEdgeIDs[posV] = int32(2*i + 1)
	})

	if stable {
		// Sort incident half-edges by target to eliminate scheduling-induced
		// orderings, then rebuild the cross-references from slot positions.
		parallel.For(int(numNodes), numWorkers, func(i int) {
			v := &g.nodes[i]
			lo, hi := v.begin, v.begin+v.size
			slice := g.halfEdges[lo:hi]
			ids := halfEdgeIDs[lo:hi]
			sort.Sort(&halfEdgeSorter{edges: slice, ids: ids})
		})
		slotOf := make([]int32, 2*numEdges)
		parallel.For(int(2*numEdges), numWorkers, func(p int) {
			slotOf[halfEdgeIDs[p]] = int32(p)
		})
		parallel.For(int(2*numEdges), numWorkers, func(p int) {
			g.halfEdges[p].backEdge = slotOf[halfEdgeIDs[p]^1]
		})
	}

	g.totalWeight = parallel.Reduce(int(numNodes), numWorkers, int64(0),
		func(lo, hi int, acc int64) int64 {
			for u := lo; u < hi; u++ {
				acc += int64(g.nodes[u].weight)
			}
			return acc
		},
		func(a, b int64) int64 { return a + b })
	return g, nil
}

type halfEdgeSorter struct {
	edges []HalfEdge
	ids   []int32
}

func (s *halfEdgeSorter) Len() int { return len(s.edges) }
func (s *halfEdgeSorter) Less(i, j int) bool {
	if s.edges[i].target != s.edges[j].target {
		return s.edges[i].target < s.edges[j].target
	}
	return s.ids[i] < s.ids[j]
}
func (s *halfEdgeSorter) Swap(i, j int) {
	s.edges[i], s.edges[j] = s.edges[j], s.edges[i]
	s.ids[i], s.ids[j] = s.ids[j], s.ids[i]
}
