package flow

import (
	"math/rand"

	hg "github.com/gilchrisn/hypergraph-partitioning-service/pkg/hypergraph"
	"github.com/gilchrisn/hypergraph-partitioning-service/pkg/partition"
)

// flowInstance is the directed flow network for one block pair, grown by BFS
// from the boundary between the blocks. Region vertices are movable; pins of
// the pair outside the region are folded into the super source (block b0) or
// super target (block b1) via infinite-capacity arcs.
type flowInstance struct {
	phg  *partition.PartitionedHypergraph
	pair BlockPair

	region     []hg.NodeID
	flowIDOf   map[hg.NodeID]int32
	hyperedges []hg.EdgeID

	net           *Network
	source        int32
	target        int32
	pairCutBefore int64
	shouldCompute bool
}

// nodeAcquirer filters which vertices an instance may claim; the optimistic
// scheduler backs this with its per-vertex reservation slots.
type nodeAcquirer interface {
	tryAcquireNode(u hg.NodeID, pair BlockPair) bool
	releaseNode(u hg.NodeID)
}

// buildFlowInstance grows the core by breadth-first search over the two
// blocks' vertices starting from the cut boundary, up to maxSize vertices.
// Pins of huge hyperedges are subsampled with the given RNG.
func buildFlowInstance(phg *partition.PartitionedHypergraph, pair BlockPair,
	cutEdges []hg.EdgeID, coreSize, maxSize, pinSampleSize int,
	acquirer nodeAcquirer, rng *rand.Rand) *flowInstance {

	inst := &flowInstance{
		phg:      phg,
		pair:     pair,
		flowIDOf: make(map[hg.NodeID]int32),
	}
	if len(cutEdges) == 0 {
		return inst
	}
	h := phg.Hypergraph()

	inPair := func(u hg.NodeID) bool {
		p := phg.PartID(u)
		return p == pair.B0 || p == pair.B1
	}

	// Seed the BFS with the boundary vertices of the cut.
	var queue []hg.NodeID
	enqueued := make(map[hg.NodeID]bool)
	for _, he := range cutEdges {
		for _, pin := range h.Pins(he) {
			if inPair(pin) && !enqueued[pin] {
				enqueued[pin] = true
				queue = append(queue, pin)
			}
		}
		if len(queue) >= coreSize {
			break
		}
	}

	visitedEdge := make(map[hg.EdgeID]bool)
	numVisited := 0
	for head := 0; head < len(queue) && len(inst.region) < maxSize; head++ {
		v := queue[head]
		if acquirer != nil && !acquirer.tryAcquireNode(v, pair) {
			// Held by an overlapping search; treated as immovable.
			continue
		}
		inst.flowIDOf[v] = int32(2 + len(inst.region))
		inst.region = append(inst.region, v)
		numVisited++
		if numVisited < maxSize {
			for _, e := range h.IncidentEdges(v) {
				if visitedEdge[e] {
					continue
				}
				visitedEdge[e] = true
				for _, u := range samplePins(h.Pins(e), pinSampleSize, rng) {
					if inPair(u) && !enqueued[u] {
						enqueued[u] = true
						queue = append(queue, u)
					}
				}
			}
		}
	}
	// The super source and target are anchored by pins outside the region.
	// If the BFS swallowed an entire block, the last-added vertex of that
	// block is dropped from the region to keep its side anchored.
	dropAnchor := func(block hg.PartID) {
		var regionWeight int64
		for _, v := range inst.region {
			if phg.PartID(v) == block {
				regionWeight += int64(h.NodeWeight(v))
			}
		}
		if regionWeight < phg.PartWeight(block) {
			return
		}
		for i := len(inst.region) - 1; i >= 0; i-- {
			v := inst.region[i]
			if phg.PartID(v) == block {
				inst.region = append(inst.region[:i], inst.region[i+1:]...)
				delete(inst.flowIDOf, v)
				if acquirer != nil {
					acquirer.releaseNode(v)
				}
				return
			}
		}
	}
	dropAnchor(pair.B0)
	dropAnchor(pair.B1)
	for i, v := range inst.region {
		inst.flowIDOf[v] = int32(2 + i)
	}
	if len(inst.region) == 0 {
		return inst
	}

	// Collect the instance hyperedges: everything incident to the region
	// that touches the pair.
	edgeSeen := make(map[hg.EdgeID]bool)
	for _, v := range inst.region {
		for _, e := range h.IncidentEdges(v) {
			if !edgeSeen[e] {
				edgeSeen[e] = true
				inst.hyperedges = append(inst.hyperedges, e)
			}
		}
	}

	inst.buildNetwork()
	inst.shouldCompute = true
	return inst
}

// buildNetwork expands each hyperedge into a bridge-node pair carrying the
// hyperedge weight and wires pins with infinite-capacity arcs.
func (inst *flowInstance) buildNetwork() {
	h := inst.phg.Hypergraph()
	numNodes := 2 + len(inst.region) + 2*len(inst.hyperedges)
	inst.net = NewNetwork(numNodes)
	inst.source = 0
	inst.target = 1

	bridgeBase := int32(2 + len(inst.region))
	for i, e := range inst.hyperedges {
		eIn := bridgeBase + int32(2*i)
		eOut := eIn + 1
		inst.net.AddArc(eIn, eOut, int64(h.EdgeWeight(e)))

		hasB0, hasB1 := false, false
		sourceAttached, targetAttached := false, false
		for _, pin := range h.Pins(e) {
			switch inst.phg.PartID(pin) {
			case inst.pair.B0:
				hasB0 = true
			case inst.pair.B1:
				hasB1 = true
			default:
				continue
			}
			if id, ok := inst.flowIDOf[pin]; ok {
				inst.net.AddArc(id, eIn, InfiniteCapacity)
				inst.net.AddArc(eOut, id, InfiniteCapacity)
			} else if inst.phg.PartID(pin) == inst.pair.B0 && !sourceAttached {
				sourceAttached = true
				inst.net.AddArc(inst.source, eIn, InfiniteCapacity)
				inst.net.AddArc(eOut, inst.source, InfiniteCapacity)
			} else if inst.phg.PartID(pin) == inst.pair.B1 && !targetAttached {
				targetAttached = true
				inst.net.AddArc(eOut, inst.target, InfiniteCapacity)
				inst.net.AddArc(inst.target, eIn, InfiniteCapacity)
			}
		}
		if hasB0 && hasB1 {
			inst.pairCutBefore += int64(h.EdgeWeight(e))
		}
	}
}

// computeBipartition runs the max-flow and returns, per region vertex, its
// new block, along with the min-cut value between the pair.
func (inst *flowInstance) computeBipartition() ([]hg.PartID, int64) {
	d := NewDinic(inst.net, inst.source, inst.target)
	flowValue := d.MaxFlow()
	sourceSide := d.MinCutSourceSide()

	sides := make([]hg.PartID, len(inst.region))
	for i, v := range inst.region {
		if sourceSide[inst.flowIDOf[v]] {
			sides[i] = inst.pair.B0
		} else {
			sides[i] = inst.pair.B1
		}
	}
	return sides, flowValue
}

// release returns all acquired region vertices to the scheduler.
func (inst *flowInstance) release(acquirer nodeAcquirer) {
	if acquirer == nil {
		return
	}
	for _, v := range inst.region {
		acquirer.releaseNode(v)
	}
}

// samplePins draws up to sampleSize pins without replacement. Small pin sets
// pass through untouched.
func samplePins(pins []hg.NodeID, sampleSize int, rng *rand.Rand) []hg.NodeID {
	if len(pins) <= sampleSize {
		return pins
	}
	sampled := make([]hg.NodeID, sampleSize)
	perm := rng.Perm(len(pins))
	for i := 0; i < sampleSize; i++ {
		sampled[i] = pins[perm[i]]
	}
	return sampled
}
