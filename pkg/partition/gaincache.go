package partition

import (
	"sync/atomic"

	hg "github.com/gilchrisn/hypergraph-partitioning-service/pkg/hypergraph"
)

// GainCache serves the move gains of the configured objective.
//
// For km1 it stores, per vertex, cached aggregates that decompose the gain as
// gain(v, to) = benefit(v, to) - penalty(v):
//
//	penalty(v)     = sum of w(e) over incident e with pinCount(e, part(v)) > 1
//	benefit(v, to) = sum of w(e) over incident e with pinCount(e, to) > 0
//
// Both aggregates are updated by the ChangeNodePart delta hook. Entries can
// be momentarily stale under concurrent moves; searches re-validate gains
// against live pin counts before applying a move.
//
// For the cut objective no incremental aggregate exists (a cut gain depends
// on pin counts reaching the full edge size, which the 0/1/2 transition hook
// cannot track); every lookup falls back to recomputing against live pin
// counts.
type GainCache struct {
	phg       *PartitionedHypergraph
	objective Objective
	k         int32

	penalty []atomic.Int32
	benefit []atomic.Int32
}

// NewGainCache allocates a gain cache for the given partitioned hypergraph
// and objective.
func NewGainCache(phg *PartitionedHypergraph, objective Objective) *GainCache {
	n := int64(phg.Hypergraph().InitialNumNodes())
	g := &GainCache{
		phg:       phg,
		objective: objective,
		k:         phg.K(),
	}
	if objective != ObjectiveCut {
		g.penalty = make([]atomic.Int32, n)
		g.benefit = make([]atomic.Int32, n*int64(phg.K()))
	}
	return g
}

// Initialize computes all aggregates from the current assignment in parallel.
func (g *GainCache) Initialize(numWorkers int) {
	if g.objective == ObjectiveCut {
		return
	}
	h := g.phg.Hypergraph()
	h.ForNodesParallel(numWorkers, func(u hg.NodeID) {
		g.recomputeNode(u)
	})
}

func (g *GainCache) recomputeNode(u hg.NodeID) {
	h := g.phg.Hypergraph()
	from := g.phg.PartID(u)
	var penalty int32
	base := int64(u) * int64(g.k)
	for b := int64(0); b < int64(g.k); b++ {
		g.benefit[base+b].Store(0)
	}
	for _, he := range h.IncidentEdges(u) {
		w := int32(h.EdgeWeight(he))
		if from != hg.InvalidPartition && g.phg.PinCountInPart(he, from) > 1 {
			penalty += w
		}
		g.phg.ForConnectivitySet(he, func(b hg.PartID) {
			g.benefit[base+int64(b)].Add(w)
		})
	}
	g.penalty[u].Store(penalty)
}

// Gain returns the objective improvement of moving u to block `to`: the
// cached value for km1, a live recompute for cut. Positive gains reduce the
// objective.
func (g *GainCache) Gain(u hg.NodeID, to hg.PartID) int32 {
	if g.objective == ObjectiveCut {
		return g.recomputeCutGain(u, to)
	}
	return g.benefit[int64(u)*int64(g.k)+int64(to)].Load() - g.penalty[u].Load()
}

// RecomputeGain evaluates the gain of moving u to `to` against live pin
// counts, bypassing any cached aggregates. Used to detect stale entries at
// pop time.
func (g *GainCache) RecomputeGain(u hg.NodeID, to hg.PartID) int32 {
	if g.objective == ObjectiveCut {
		return g.recomputeCutGain(u, to)
	}
	h := g.phg.Hypergraph()
	from := g.phg.PartID(u)
	var gain int32
	for _, he := range h.IncidentEdges(u) {
		w := int32(h.EdgeWeight(he))
		if g.phg.PinCountInPart(he, from) == 1 {
			gain += w
		}
		if g.phg.PinCountInPart(he, to) == 0 {
			gain -= w
		}
	}
	return gain
}

// recomputeCutGain evaluates the edge-cut gain of moving u to `to`: an edge
// leaves the cut when all of its other pins already sit in `to`, and enters
// it when it currently lies entirely in u's block.
func (g *GainCache) recomputeCutGain(u hg.NodeID, to hg.PartID) int32 {
	h := g.phg.Hypergraph()
	from := g.phg.PartID(u)
	var gain int32
	for _, he := range h.IncidentEdges(u) {
		w := int32(h.EdgeWeight(he))
		size := h.EdgeSize(he)
		if size > 1 && g.phg.PinCountInPart(he, to) == size-1 {
			gain += w
		}
		if size > 1 && g.phg.PinCountInPart(he, from) == size {
			gain -= w
		}
	}
	return gain
}

// applyDelta is invoked by ChangeNodePart for one incident edge of the moved
// vertex, after the edge's pin counts were updated. The km1 contribution of
// the edge changes only when a pin count reaches 0 or 1 in the source block
// or 1 or 2 in the target block.
func (g *GainCache) applyDelta(mover hg.NodeID, he hg.EdgeID, from, to hg.PartID,
	pinsInFromAfter, pinsInToAfter int32) {

	if g.objective == ObjectiveCut {
		return
	}
	h := g.phg.Hypergraph()
	w := int32(h.EdgeWeight(he))

	switch pinsInFromAfter {
	case 0:
		// Block `from` left the connectivity set of he.
		for _, pin := range h.Pins(he) {
			g.benefit[int64(pin)*int64(g.k)+int64(from)].Add(-w)
		}
	case 1:
		// A single pin remains in `from`; he no longer penalizes its move.
		for _, pin := range h.Pins(he) {
			if pin != mover && g.phg.PartID(pin) == from {
				g.penalty[pin].Add(-w)
			}
		}
	}

	switch pinsInToAfter {
	case 1:
		// Block `to` entered the connectivity set of he.
		for _, pin := range h.Pins(he) {
			g.benefit[int64(pin)*int64(g.k)+int64(to)].Add(w)
		}
	case 2:
		// The pin previously alone in `to` is no longer free to leave.
		for _, pin := range h.Pins(he) {
			if pin != mover && g.phg.PartID(pin) == to {
				g.penalty[pin].Add(w)
			}
		}
	}
}

// recomputePenalty rebuilds the moved vertex's own penalty aggregate, which
// is relative to its (changed) source block.
func (g *GainCache) recomputePenalty(u hg.NodeID) {
	if g.objective == ObjectiveCut {
		return
	}
	h := g.phg.Hypergraph()
	part := g.phg.PartID(u)
	var penalty int32
	for _, he := range h.IncidentEdges(u) {
		if g.phg.PinCountInPart(he, part) > 1 {
			penalty += int32(h.EdgeWeight(he))
		}
	}
	g.penalty[u].Store(penalty)
}

// InvalidateNode rebuilds all cached aggregates of vertex u. Used after
// uncontraction restores a vertex's incident nets.
func (g *GainCache) InvalidateNode(u hg.NodeID) {
	if g.objective == ObjectiveCut {
		return
	}
	g.recomputeNode(u)
}

// BestGain returns the block with the highest gain for u among all blocks
// except its own, together with the gain value. km1 reads the cached
// aggregates; cut scans live pin counts per block.
func (g *GainCache) BestGain(u hg.NodeID) (hg.PartID, int32) {
	from := g.phg.PartID(u)
	best := hg.InvalidPartition
	bestGain := int32(-1 << 30)
	if g.objective == ObjectiveCut {
		for b := int32(0); b < g.k; b++ {
			if hg.PartID(b) == from {
				continue
			}
			if gain := g.recomputeCutGain(u, hg.PartID(b)); gain > bestGain {
				bestGain = gain
				best = hg.PartID(b)
			}
		}
		return best, bestGain
	}
	base := int64(u) * int64(g.k)
	penalty := g.penalty[u].Load()
	for b := int32(0); b < g.k; b++ {
		if hg.PartID(b) == from {
			continue
		}
		gain := g.benefit[base+int64(b)].Load() - penalty
		if gain > bestGain {
			bestGain = gain
			best = hg.PartID(b)
		}
	}
	return best, bestGain
}
