package hypergraph

import (
	"runtime"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/gilchrisn/hypergraph-partitioning-service/pkg/parallel"
)

// contractedEdgeInfo drives parallel-net detection during coarsening. Edges
// are sorted by (hash, size, id) so nets with identical pin sets become
// neighbors.
type contractedEdgeInfo struct {
	he    EdgeID
	hash  uint64
	size  int32
	valid bool
}

// Contract collapses all vertices with the same cluster representative into a
// single coarse vertex. clusters maps each fine vertex to a representative
// vertex ID; it is rewritten in place to dense coarse IDs (InvalidNode for
// disabled vertices). Single-pin nets are dropped and parallel nets are
// merged with their weights aggregated.
func (h *Hypergraph) Contract(clusters []NodeID, numWorkers int) (*Hypergraph, error) {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	n := int(h.numNodes)
	m := int(h.numEdges)

	// Phase 1: compactify cluster IDs with an inclusive prefix sum.
	mapping := make([]int32, n)
	parallel.For(n, numWorkers, func(i int) {
		if h.vertices[i].enabled {
			mapping[clusters[i]] = 1
		}
	})
	numCoarseNodes := parallel.PrefixSum(mapping, numWorkers)
	parallel.For(n, numWorkers, func(i int) {
		if h.vertices[i].enabled {
			clusters[i] = mapping[clusters[i]] - 1
		} else {
			clusters[i] = InvalidNode
		}
	})

	// Phase 2: contract pin lists. Pins are mapped through the clustering and
	// deduplicated with a thread-local reset bitset. Nets of coarse size < 2
	// are dropped; survivors get a commutative fingerprint over their pins.
	coarsePinLists := make([][]NodeID, m)
	permutation := make([]contractedEdgeInfo, m)
	bitsets := parallel.NewBitsetPool(int(numCoarseNodes))

	parallel.For(m, numWorkers, func(i int) {
		e := EdgeID(i)
		if !h.edges[e].enabled {
			permutation[i] = contractedEdgeInfo{he: e, hash: ^uint64(0), valid: false}
			return
		}
		contained := bitsets.Get()
		pinList := make([]NodeID, 0, h.edges[e].size/2+1)
		for _, pin := range h.Pins(e) {
			cv := clusters[pin]
			if cv != InvalidNode && contained.Set(cv) {
				pinList = append(pinList, cv)
			}
		}
		contained.Reset()
		bitsets.Put(contained)

		if len(pinList) > 1 {
			hash := edgeHashSeed
			for _, v := range pinList {
				hash += uint64(v+1) * uint64(v+1)
			}
			coarsePinLists[i] = pinList
			permutation[i] = contractedEdgeInfo{he: e, hash: hash, size: int32(len(pinList)), valid: true}
		} else {
			permutation[i] = contractedEdgeInfo{he: e, hash: ^uint64(0), valid: false}
		}
	})

	// Phase 3: parallel-net elimination. Each hash equivalence class is
	// scanned by one goroutine; candidates of equal size are compared by set
	// equality against the representative's pins marked in a scratch bitset.
	sort.Slice(permutation, func(a, b int) bool {
		pa, pb := &permutation[a], &permutation[b]
		if pa.hash != pb.hash {
			return pa.hash < pb.hash
		}
		if pa.size != pb.size {
			return pa.size < pb.size
		}
		return pa.he < pb.he
	})

	coarseEdgeWeights := make([]Weight, m)
	var numCoarseNets, numCoarsePins atomic.Int32
	parallel.For(m, numWorkers, func(pos int) {
		if !permutation[pos].valid || (pos > 0 && permutation[pos].hash == permutation[pos-1].hash) {
			return
		}
		var localNets, localPins int32
		hash := permutation[pos].hash
		contained := bitsets.Get()
		for ; pos < m && permutation[pos].hash == hash; pos++ {
			rep := &permutation[pos]
			if !rep.valid {
				continue
			}
			repWeight := h.edges[rep.he].weight
			repPins := coarsePinLists[rep.he]
			for _, v := range repPins {
				contained.Set(v)
			}
			for j := pos + 1; j < m && permutation[j].hash == hash && permutation[j].size == rep.size; j++ {
				cand := &permutation[j]
				if !cand.valid {
					continue
				}
				allContained := true
				for _, v := range coarsePinLists[cand.he] {
					if !contained.IsSet(v) {
						allContained = false
						break
					}
				}
				if allContained {
					cand.valid = false
					repWeight += h.edges[cand.he].weight
					coarsePinLists[cand.he] = nil
				}
			}
			coarseEdgeWeights[rep.he] = repWeight
			localNets++
			localPins += rep.size
			contained.Reset()
		}
		bitsets.Put(contained)
		numCoarseNets.Add(localNets)
		numCoarsePins.Add(localPins)
	})

	// Phase 4: allocate and fill the coarse CSR.
	chg := &Hypergraph{
		numNodes:     numCoarseNodes,
		numEdges:     numCoarseNets.Load(),
		numPins:      numCoarsePins.Load(),
		totalWeight:  h.totalWeight,
		vertices:     make([]vertex, numCoarseNodes),
		edges:        make([]edge, numCoarseNets.Load()),
		incidentNets: make([]EdgeID, numCoarsePins.Load()),
		communityIDs: make([]int32, numCoarseNodes),
	}
	chg.incidenceArray = make([]NodeID, chg.numPins)

	// Prefix sum over surviving edge sizes (in fine-edge order) yields both
	// the coarse edge IDs and the incidence-array offsets.
	edgeSizes := make([]int32, m)
	survives := make([]int32, m)
	parallel.For(m, numWorkers, func(i int) {
		if coarsePinLists[i] != nil {
			edgeSizes[i] = int32(len(coarsePinLists[i]))
			survives[i] = 1
		}
	})
	pinOffsets := parallel.ExclusiveOffsets(edgeSizes, numWorkers)
	coarseEdgeIDs := parallel.ExclusiveOffsets(survives, numWorkers)

	degreeCounters := make([]atomic.Int32, numCoarseNodes)
	parallel.For(m, numWorkers, func(i int) {
		if coarsePinLists[i] == nil {
			return
		}
		ce := coarseEdgeIDs[i]
		he := &chg.edges[ce]
		he.enabled = true
		he.begin = pinOffsets[i]
		he.size = edgeSizes[i]
		he.weight = coarseEdgeWeights[i]
		pos := he.begin
		for _, v := range coarsePinLists[i] {
			chg.incidenceArray[pos] = v
			pos++
			degreeCounters[v].Add(1)
		}
	})

	degrees := make([]int32, numCoarseNodes)
	parallel.For(int(numCoarseNodes), numWorkers, func(i int) {
		degrees[i] = degreeCounters[i].Load()
	})
	netOffsets := parallel.ExclusiveOffsets(degrees, numWorkers)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		cursors := make([]atomic.Int32, numCoarseNodes)
		parallel.For(int(chg.numEdges), numWorkers, func(i int) {
			for _, v := range chg.Pins(EdgeID(i)) {
				pos := netOffsets[v] + cursors[v].Add(1) - 1
				chg.incidentNets[pos] = EdgeID(i)
			}
		})
	}()
	var maxEdgeSize int32
	go func() {
		defer wg.Done()
		maxEdgeSize = parallel.Reduce(int(chg.numEdges), numWorkers, int32(0),
			func(lo, hi int, acc int32) int32 {
				for e := lo; e < hi; e++ {
					if chg.edges[e].size > acc {
						acc = chg.edges[e].size
					}
				}
				return acc
			},
			func(a, b int32) int32 {
				if a > b {
					return a
				}
				return b
			})
	}()
	wg.Wait()
	chg.maxEdgeSize = maxEdgeSize

	// Pins are fully scattered; the edges slice above was written before the
	// incident nets, so the vertex records can now be finalized. Incident
	// nets are sorted so the layout is independent of scheduling.
	parallel.For(int(numCoarseNodes), numWorkers, func(i int) {
		v := &chg.vertices[i]
		v.enabled = true
		v.begin = netOffsets[i]
		v.size = degrees[i]
		nets := chg.incidentNets[v.begin : v.begin+v.size]
		sort.Slice(nets, func(a, b int) bool { return nets[a] < nets[b] })
	})

	// Coarse vertex weights aggregate over fine vertices; communities are
	// inherited from the fine members.
	weightCounters := make([]atomic.Int32, numCoarseNodes)
	parallel.For(n, numWorkers, func(i int) {
		if !h.vertices[i].enabled {
			return
		}
		cv := clusters[i]
		weightCounters[cv].Add(h.vertices[i].weight)
		chg.communityIDs[cv] = h.communityIDs[i]
	})
	parallel.For(int(numCoarseNodes), numWorkers, func(i int) {
		chg.vertices[i].weight = weightCounters[i].Load()
	})

	return chg, nil
}
