package partition

import (
	"math/bits"
	"sync/atomic"

	hg "github.com/gilchrisn/hypergraph-partitioning-service/pkg/hypergraph"
	"github.com/gilchrisn/hypergraph-partitioning-service/pkg/parallel"
)

// DeltaFunc is invoked by ChangeNodePart for every incident edge of a moved
// vertex, after the edge's pin counts were updated. pinCountInFromAfter and
// pinCountInToAfter are the counts after the move.
type DeltaFunc func(he hg.EdgeID, edgeWeight hg.Weight, edgeSize int32,
	pinCountInFromAfter, pinCountInToAfter int32)

// PartitionedHypergraph wraps a hypergraph with a block assignment. It
// maintains per-edge per-block pin counts and connectivity sets, all updated
// atomically so that many concurrent searches can move vertices through the
// narrow ChangeNodePart interface.
type PartitionedHypergraph struct {
	hypergraph *hg.Hypergraph
	k          int32

	parts        []atomic.Int32
	partWeights  []atomic.Int64
	pinCounts    []atomic.Int32
	connectivity []atomic.Uint64
	wordsPerEdge int32

	gainCache *GainCache
}

// NewPartitionedHypergraph creates a partitioned view with every vertex
// unassigned.
func NewPartitionedHypergraph(h *hg.Hypergraph, k int32) *PartitionedHypergraph {
	wordsPerEdge := (k + 63) / 64
	p := &PartitionedHypergraph{
		hypergraph:   h,
		k:            k,
		parts:        make([]atomic.Int32, h.InitialNumNodes()),
		partWeights:  make([]atomic.Int64, k),
		pinCounts:    make([]atomic.Int32, int64(h.InitialNumEdges())*int64(k)),
		connectivity: make([]atomic.Uint64, int64(h.InitialNumEdges())*int64(wordsPerEdge)),
		wordsPerEdge: wordsPerEdge,
	}
	for u := range p.parts {
		p.parts[u].Store(hg.InvalidPartition)
	}
	return p
}

// Hypergraph returns the underlying hypergraph.
func (p *PartitionedHypergraph) Hypergraph() *hg.Hypergraph { return p.hypergraph }

// K returns the number of blocks.
func (p *PartitionedHypergraph) K() int32 { return p.k }

// PartID returns the block of vertex u, or InvalidPartition if unassigned.
func (p *PartitionedHypergraph) PartID(u hg.NodeID) hg.PartID { return p.parts[u].Load() }

// PartWeight returns the total vertex weight currently assigned to block b.
func (p *PartitionedHypergraph) PartWeight(b hg.PartID) int64 { return p.partWeights[b].Load() }

// PinCountInPart returns the number of pins of edge e assigned to block b.
func (p *PartitionedHypergraph) PinCountInPart(e hg.EdgeID, b hg.PartID) int32 {
	return p.pinCounts[int64(e)*int64(p.k)+int64(b)].Load()
}

// Connectivity returns the number of distinct blocks touched by edge e.
func (p *PartitionedHypergraph) Connectivity(e hg.EdgeID) int32 {
	var c int32
	base := int64(e) * int64(p.wordsPerEdge)
	for w := int32(0); w < p.wordsPerEdge; w++ {
		c += int32(bits.OnesCount64(p.connectivity[base+int64(w)].Load()))
	}
	return c
}

// ForConnectivitySet calls fn for every block with at least one pin of e.
func (p *PartitionedHypergraph) ForConnectivitySet(e hg.EdgeID, fn func(b hg.PartID)) {
	base := int64(e) * int64(p.wordsPerEdge)
	for w := int32(0); w < p.wordsPerEdge; w++ {
		word := p.connectivity[base+int64(w)].Load()
		for word != 0 {
			bit := bits.TrailingZeros64(word)
			fn(hg.PartID(64*w + int32(bit)))
			word &= word - 1
		}
	}
}

// AttachGainCache registers a gain cache to be maintained by the delta hook.
func (p *PartitionedHypergraph) AttachGainCache(gc *GainCache) { p.gainCache = gc }

// GainCache returns the attached gain cache, or nil.
func (p *PartitionedHypergraph) GainCache() *GainCache { return p.gainCache }

// SetNodePart assigns an unassigned vertex to block b and updates pin counts,
// connectivity sets and part weights. There is no balance check; this is the
// path used by the initial partitioner and by uncontraction. Returns false if
// the vertex was already assigned (another worker won the race).
func (p *PartitionedHypergraph) SetNodePart(u hg.NodeID, b hg.PartID) bool {
	if !p.parts[u].CompareAndSwap(hg.InvalidPartition, b) {
		return false
	}
	p.partWeights[b].Add(int64(p.hypergraph.NodeWeight(u)))
	for _, he := range p.hypergraph.IncidentEdges(u) {
		p.incrementPinCount(he, b)
	}
	return true
}

// ChangeNodePart atomically moves vertex u from block `from` to block `to`.
// The move is rejected if u is no longer in `from` (another search moved it)
// or if the target block would exceed maxToWeight. For every incident edge
// the pin counts are updated before delta is invoked.
func (p *PartitionedHypergraph) ChangeNodePart(u hg.NodeID, from, to hg.PartID,
	maxToWeight int64, delta DeltaFunc) bool {

	if from == to {
		return false
	}
	w := int64(p.hypergraph.NodeWeight(u))

	// Linearization point: one winner per vertex.
	if !p.parts[u].CompareAndSwap(from, to) {
		return false
	}
	if p.partWeights[to].Add(w) > maxToWeight {
		p.partWeights[to].Add(-w)
		p.parts[u].Store(from)
		return false
	}
	p.partWeights[from].Add(-w)

	for _, he := range p.hypergraph.IncidentEdges(u) {
		pinsInFrom := p.decrementPinCount(he, from)
		pinsInTo := p.incrementPinCount(he, to)
		if p.gainCache != nil {
			p.gainCache.applyDelta(u, he, from, to, pinsInFrom, pinsInTo)
		}
		if delta != nil {
			delta(he, p.hypergraph.EdgeWeight(he), p.hypergraph.EdgeSize(he), pinsInFrom, pinsInTo)
		}
	}
	if p.gainCache != nil {
		p.gainCache.recomputePenalty(u)
	}
	return true
}

// atomicOr64 and atomicAnd64 replicate atomic.Uint64's Or/And methods
// (added in Go 1.23) via a compare-and-swap loop, for toolchains that
// predate them.
func atomicOr64(v *atomic.Uint64, mask uint64) {
	for {
		old := v.Load()
		if v.CompareAndSwap(old, old|mask) {
			return
		}
	}
}

func atomicAnd64(v *atomic.Uint64, mask uint64) {
	for {
		old := v.Load()
		if v.CompareAndSwap(old, old&mask) {
			return
		}
	}
}

func (p *PartitionedHypergraph) incrementPinCount(e hg.EdgeID, b hg.PartID) int32 {
	after := p.pinCounts[int64(e)*int64(p.k)+int64(b)].Add(1)
	if after == 1 {
		word := int64(e)*int64(p.wordsPerEdge) + int64(b/64)
		atomicOr64(&p.connectivity[word], uint64(1)<<uint(b%64))
	}
	return after
}

func (p *PartitionedHypergraph) decrementPinCount(e hg.EdgeID, b hg.PartID) int32 {
	after := p.pinCounts[int64(e)*int64(p.k)+int64(b)].Add(-1)
	if after == 0 {
		word := int64(e)*int64(p.wordsPerEdge) + int64(b/64)
		atomicAnd64(&p.connectivity[word], ^(uint64(1) << uint(b%64)))
	}
	return after
}

// ExtractPartIDs copies the current block assignment into a dense slice.
func (p *PartitionedHypergraph) ExtractPartIDs() []hg.PartID {
	out := make([]hg.PartID, len(p.parts))
	for u := range p.parts {
		out[u] = p.parts[u].Load()
	}
	return out
}

// ResetPartition clears all assignments, pin counts and part weights.
func (p *PartitionedHypergraph) ResetPartition(numWorkers int) {
	parallel.For(len(p.parts), numWorkers, func(i int) {
		p.parts[i].Store(hg.InvalidPartition)
	})
	parallel.For(len(p.pinCounts), numWorkers, func(i int) {
		p.pinCounts[i].Store(0)
	})
	parallel.For(len(p.connectivity), numWorkers, func(i int) {
		p.connectivity[i].Store(0)
	})
	for b := range p.partWeights {
		p.partWeights[b].Store(0)
	}
}

// IsBorderNode reports whether vertex u has an incident edge spanning more
// than one block.
func (p *PartitionedHypergraph) IsBorderNode(u hg.NodeID) bool {
	for _, he := range p.hypergraph.IncidentEdges(u) {
		if p.Connectivity(he) > 1 {
			return true
		}
	}
	return false
}
