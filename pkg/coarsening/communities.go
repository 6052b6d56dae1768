package coarsening

import (
	"math/rand"
	"sync/atomic"

	hg "github.com/gilchrisn/hypergraph-partitioning-service/pkg/hypergraph"
	"github.com/gilchrisn/hypergraph-partitioning-service/pkg/parallel"
	"github.com/gilchrisn/hypergraph-partitioning-service/pkg/partition"
	"github.com/gilchrisn/hypergraph-partitioning-service/pkg/refinement/flow"
)

const invalidDepth = int32(-1)

// DetectNaturalCutCommunities derives community labels from natural cuts: the
// hypergraph is pre-contracted along biconnectivity structure, min cuts are
// computed around randomly chosen cores, and the connected components that
// remain after removing all cut hyperedges become the communities.
//
// The pin sampling RNG is seeded per core from the partition seed, but the
// parallel scheduling of the flow computations still makes the result
// scheduling-dependent; run-to-run reproducibility is not guaranteed.
func DetectNaturalCutCommunities(h *hg.Hypergraph, ctx *partition.Context) []int32 {
	n := int(h.InitialNumNodes())

	// Stage 1: group vertices that share biconnectivity structure.
	components := articulationComponents(h)

	// Oversized groups are split back into singletons so a single component
	// cannot swallow a constant fraction of the hypergraph.
	sizes := make(map[hg.NodeID]int32, n)
	for u := 0; u < n; u++ {
		sizes[components[u]]++
	}
	for u := 0; u < n; u++ {
		if sizes[components[u]] >= int32(n/20) {
			components[u] = hg.NodeID(u)
		}
	}

	// Stage 2: contract the groups. Contract densifies the component IDs in
	// place, leaving the fine-to-coarse mapping behind.
	coarse, err := h.Contract(components, ctx.NumThreads)
	if err != nil {
		// Community detection is best effort; fall back to one community.
		return make([]int32, n)
	}

	// Stage 3: min cuts around shuffled cores.
	cn := int(coarse.InitialNumNodes())
	vertices := make([]hg.NodeID, cn)
	for i := range vertices {
		vertices[i] = hg.NodeID(i)
	}
	rng := rand.New(rand.NewSource(ctx.Seed))
	rng.Shuffle(cn, func(i, j int) { vertices[i], vertices[j] = vertices[j], vertices[i] })

	processed := make([]atomic.Bool, cn)
	cutEdge := make([]atomic.Bool, coarse.InitialNumEdges())
	coreSize := ctx.Config.FlowCoreSize()
	maxSize := ctx.Config.FlowMaxInstanceSize()
	sampleSize := ctx.Config.FlowPinSampleSize()

	parallel.For(cn, ctx.NumThreads, func(i int) {
		v := vertices[i]
		if processed[v].Load() {
			return
		}
		instRNG := rand.New(rand.NewSource(ctx.Seed ^ int64(v)<<13))
		core, cut := naturalCutAround(coarse, v, coreSize, maxSize, sampleSize, instRNG)
		for _, he := range cut {
			cutEdge[he].Store(true)
		}
		for _, u := range core {
			processed[u].Store(true)
		}
	})

	// Stage 4: connected components after removing the cut hyperedges.
	communities := make([]int32, cn)
	visited := make([]bool, cn)
	visitedEdge := make([]bool, coarse.InitialNumEdges())
	current := int32(0)
	queue := make([]hg.NodeID, 0, cn)
	for v := 0; v < cn; v++ {
		if visited[v] {
			continue
		}
		queue = append(queue[:0], hg.NodeID(v))
		visited[v] = true
		communities[v] = current
		for head := 0; head < len(queue); head++ {
			u := queue[head]
			for _, e := range coarse.IncidentEdges(u) {
				if visitedEdge[e] || cutEdge[e].Load() {
					continue
				}
				visitedEdge[e] = true
				for _, pin := range coarse.Pins(e) {
					if !visited[pin] {
						visited[pin] = true
						communities[pin] = current
						queue = append(queue, pin)
					}
				}
			}
		}
		current++
	}

	// Project back through the contraction mapping.
	result := make([]int32, n)
	parallel.For(n, ctx.NumThreads, func(u int) {
		if components[u] != hg.InvalidNode {
			result[u] = communities[components[u]]
		}
	})
	return result
}

// articulationComponents runs an iterative depth-first search computing
// depths and low points, grouping a finished vertex with the previously
// finished one when both share a low point and the finished vertex is
// neither an articulation point nor a root with several DFS children; the
// previously finished vertex is not re-checked. The traversal treats
// parent[u] == v as the child test.
func articulationComponents(h *hg.Hypergraph) []hg.NodeID {
	n := int(h.InitialNumNodes())
	components := make([]hg.NodeID, n)
	for u := range components {
		components[u] = hg.NodeID(u)
	}
	visited := make([]bool, n)
	depth := make([]int32, n)
	lowPoint := make([]int32, n)
	parent := make([]hg.NodeID, n)
	for u := range parent {
		parent[u] = hg.InvalidNode
		depth[u] = invalidDepth
	}

	pushedChildren := make([]bool, n)
	var stack []hg.NodeID
	for start := 0; start < n; start++ {
		if visited[start] || !h.NodeIsEnabled(hg.NodeID(start)) {
			continue
		}
		visited[start] = true
		stack = append(stack[:0], hg.NodeID(start))
		previous := hg.InvalidNode

		for len(stack) > 0 {
			v := stack[len(stack)-1]
			if !pushedChildren[v] {
				pushedChildren[v] = true
				if v != hg.NodeID(start) {
					depth[v] = depth[parent[v]] + 1
				} else {
					depth[v] = 0
				}
				lowPoint[v] = depth[v]
				for _, e := range h.IncidentEdges(v) {
					for _, u := range h.Pins(e) {
						if !visited[u] {
							visited[u] = true
							parent[u] = v
							stack = append(stack, u)
						}
					}
				}
				continue
			}

			stack = stack[:len(stack)-1]
			children := 0
			isArticulationPoint := false
			for _, e := range h.IncidentEdges(v) {
				for _, u := range h.Pins(e) {
					if parent[u] == v {
						children++
						if lowPoint[u] >= depth[v] {
							isArticulationPoint = true
						}
						if lowPoint[u] < lowPoint[v] {
							lowPoint[v] = lowPoint[u]
						}
					} else if parent[v] != u && depth[u] != invalidDepth && depth[u] < lowPoint[v] {
						lowPoint[v] = depth[u]
					}
				}
			}
			rootWithBranches := parent[v] == hg.InvalidNode && children > 1
			innerArticulation := parent[v] != hg.InvalidNode && isArticulationPoint
			if !rootWithBranches && !innerArticulation {
				if previous != hg.InvalidNode && lowPoint[previous] == lowPoint[v] {
					components[v] = previous
				}
			}
			previous = v
		}
	}
	return components
}

// naturalCutAround grows a BFS core from start, folds everything beyond the
// size budget into a super target and returns the core together with the
// hyperedges of the min cut separating them.
func naturalCutAround(h *hg.Hypergraph, start hg.NodeID,
	coreSize, maxSize, sampleSize int, rng *rand.Rand) ([]hg.NodeID, []hg.EdgeID) {

	flowIDOf := map[hg.NodeID]int32{}
	var region []hg.NodeID
	queue := []hg.NodeID{start}
	flowIDOf[start] = 2
	region = append(region, start)

	visitedEdge := map[hg.EdgeID]bool{}
	var instanceEdges []hg.EdgeID
	targetConnected := false

	for head := 0; head < len(queue) && len(region) < maxSize; head++ {
		v := queue[head]
		for _, e := range h.IncidentEdges(v) {
			if visitedEdge[e] {
				continue
			}
			visitedEdge[e] = true
			instanceEdges = append(instanceEdges, e)
			pins := h.Pins(e)
			if len(pins) > sampleSize {
				sampled := make([]hg.NodeID, sampleSize)
				for i, p := range rng.Perm(len(pins))[:sampleSize] {
					sampled[i] = pins[p]
				}
				pins = sampled
			}
			for _, u := range pins {
				if _, ok := flowIDOf[u]; ok {
					continue
				}
				if len(region) < maxSize {
					flowIDOf[u] = int32(2 + len(region))
					region = append(region, u)
					queue = append(queue, u)
				} else {
					targetConnected = true
				}
			}
		}
	}
	if !targetConnected {
		// The whole component fits in the budget; nothing to cut.
		return region, nil
	}

	core := region
	if len(core) > coreSize {
		core = region[:coreSize]
	}

	net := flow.NewNetwork(2 + len(region) + 2*len(instanceEdges))
	source, target := int32(0), int32(1)
	bridgeBase := int32(2 + len(region))
	for i, e := range instanceEdges {
		eIn := bridgeBase + int32(2*i)
		eOut := eIn + 1
		net.AddArc(eIn, eOut, int64(h.EdgeWeight(e)))
		attachedTarget := false
		for _, pin := range h.Pins(e) {
			if id, ok := flowIDOf[pin]; ok {
				net.AddArc(id, eIn, flow.InfiniteCapacity)
				net.AddArc(eOut, id, flow.InfiniteCapacity)
			} else if !attachedTarget {
				attachedTarget = true
				net.AddArc(eOut, target, flow.InfiniteCapacity)
			}
		}
	}
	for _, v := range core {
		net.AddArc(source, flowIDOf[v], flow.InfiniteCapacity)
	}

	d := flow.NewDinic(net, source, target)
	d.MaxFlow()
	sourceSide := d.MinCutSourceSide()

	var cut []hg.EdgeID
	for i, e := range instanceEdges {
		eIn := bridgeBase + int32(2*i)
		eOut := eIn + 1
		if sourceSide[eIn] && !sourceSide[eOut] {
			cut = append(cut, e)
		}
	}
	return core, cut
}
