package hypergraph

import (
	"fmt"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/gilchrisn/hypergraph-partitioning-service/pkg/parallel"
)

// Construct builds a CSR hypergraph from a list of pin lists. edgeWeights and
// nodeWeights may be nil, in which case unit weights are used. If stable is
// set, each vertex's incident nets are sorted by edge ID so the layout is
// independent of goroutine scheduling.
func Construct(numNodes int32, edgeVector [][]NodeID, edgeWeights, nodeWeights []Weight,
	stable bool, numWorkers int) (*Hypergraph, error) {

	numEdges := int32(len(edgeVector))
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}

	h := &Hypergraph{
		numNodes:     numNodes,
		numEdges:     numEdges,
		vertices:     make([]vertex, numNodes),
		edges:        make([]edge, numEdges),
		communityIDs: make([]int32, numNodes),
	}

	// Degree counting with thread-local counters, summed into the shared
	// degree array afterwards.
	degrees, numPins, err := countDegrees(numNodes, edgeVector, numWorkers)
	if err != nil {
		return nil, err
	}
	h.numPins = numPins

	// Prefix sum over edge sizes yields the first-entry offset of every
	// hyperedge in the incidence array.
	edgeSizes := make([]int32, numEdges)
	parallel.For(int(numEdges), numWorkers, func(i int) {
		edgeSizes[i] = int32(len(edgeVector[i]))
	})
	edgeOffsets := parallel.ExclusiveOffsets(edgeSizes, numWorkers)

	h.incidenceArray = make([]NodeID, numPins)
	var maxEdgeSize atomic.Int32
	parallel.For(int(numEdges), numWorkers, func(i int) {
		e := &h.edges[i]
		e.enabled = true
		e.begin = edgeOffsets[i]
		e.size = edgeSizes[i]
		e.weight = 1
		if edgeWeights != nil {
			e.weight = edgeWeights[i]
		}
		copy(h.incidenceArray[e.begin:e.begin+e.size], edgeVector[i])
		for {
			cur := maxEdgeSize.Load()
			if e.size <= cur || maxEdgeSize.CompareAndSwap(cur, e.size) {
				break
			}
		}
	})
	h.maxEdgeSize = maxEdgeSize.Load()

	// Prefix sum over degrees yields incident-net offsets; pins then reserve
	// write slots via atomic fetch-add on per-vertex cursors.
	nodeOffsets := parallel.ExclusiveOffsets(degrees, numWorkers)
	h.incidentNets = make([]EdgeID, numPins)
	cursors := make([]atomic.Int32, numNodes)
	parallel.For(int(numNodes), numWorkers, func(i int) {
		v := &h.vertices[i]
		v.enabled = true
		v.begin = nodeOffsets[i]
		v.size = degrees[i]
		v.weight = 1
		if nodeWeights != nil {
			v.weight = nodeWeights[i]
		}
	})
	parallel.For(int(numEdges), numWorkers, func(i int) {
		for _, pin := range edgeVector[i] {
			pos := nodeOffsets[pin] + cursors[pin].Add(1) - 1
			h.incidentNets[pos] = EdgeID(i)
		}
	})

	if stable {
		parallel.For(int(numNodes), numWorkers, func(i int) {
			nets := h.IncidentEdges(NodeID(i))
			sort.Slice(nets, func(a, b int) bool { return nets[a] < nets[b] })
		})
	}

	h.RecomputeTotalWeight(numWorkers)
	return h, nil
}

// countDegrees accumulates per-vertex degree increments into thread-local
// counters and sums them into a shared degree array. Reports the total pin
// count and validates pin ranges.
func countDegrees(numNodes int32, edgeVector [][]NodeID, numWorkers int) ([]int32, int32, error) {
	chunk := (len(edgeVector) + numWorkers - 1) / numWorkers
	if chunk == 0 {
		chunk = 1
	}

	type localCount struct {
		degrees []int32
		pins    int32
		err     error
	}
	numChunks := (len(edgeVector) + chunk - 1) / chunk
	locals := make([]localCount, numChunks)

	var wg sync.WaitGroup
	for c := 0; c < numChunks; c++ {
		wg.Add(1)
		go func(c int) {
			defer wg.Done()
			local := &locals[c]
			local.degrees = make([]int32, numNodes)
			lo := c * chunk
			hi := lo + chunk
			if hi > len(edgeVector) {
				hi = len(edgeVector)
			}
			for i := lo; i < hi; i++ {
				for _, pin := range edgeVector[i] {
					if pin < 0 || pin >= numNodes {
						local.err = fmt.Errorf("%w: pin %d of edge %d out of range [0, %d)",
							ErrInvalidInput, pin, i, numNodes)
						return
					}
					local.degrees[pin]++
					local.pins++
				}
			}
		}(c)
	}
	wg.Wait()

	degrees := make([]int32, numNodes)
	var numPins int32
	for c := range locals {
		if locals[c].err != nil {
			return nil, 0, locals[c].err
		}
		numPins += locals[c].pins
		parallel.For(int(numNodes), numWorkers, func(i int) {
			degrees[i] += locals[c].degrees[i]
		})
	}
	return degrees, numPins, nil
}
