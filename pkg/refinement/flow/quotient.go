package flow

import (
	"sync"

	"gonum.org/v1/gonum/graph/simple"

	hg "github.com/gilchrisn/hypergraph-partitioning-service/pkg/hypergraph"
	"github.com/gilchrisn/hypergraph-partitioning-service/pkg/parallel"
	"github.com/gilchrisn/hypergraph-partitioning-service/pkg/partition"
)

// BlockPair is an unordered pair of adjacent blocks with b0 < b1.
type BlockPair struct {
	B0, B1 hg.PartID
}

// QuotientGraph is the k-way quotient graph of a partition: one node per
// block, one edge per block pair connected by at least one cut hyperedge.
// The topology lives in a gonum weighted graph; per pair the bag of cut
// hyperedges is kept separately and refreshed lazily, so entries may point
// at hyperedges that are no longer cut between the pair.
type QuotientGraph struct {
	phg *partition.PartitionedHypergraph
	k   int32

	topology *simple.WeightedUndirectedGraph

	mu       sync.Mutex
	cutEdges map[int64][]hg.EdgeID
}

// NewQuotientGraph builds the quotient graph of the current partition.
func NewQuotientGraph(phg *partition.PartitionedHypergraph) *QuotientGraph {
	q := &QuotientGraph{
		phg:      phg,
		k:        phg.K(),
		topology: simple.NewWeightedUndirectedGraph(0, 0),
		cutEdges: make(map[int64][]hg.EdgeID),
	}
	for b := int32(0); b < q.k; b++ {
		q.topology.AddNode(simple.Node(b))
	}
	phg.Hypergraph().ForEdges(func(he hg.EdgeID) {
		if phg.Connectivity(he) <= 1 {
			return
		}
		var blocks []hg.PartID
		phg.ForConnectivitySet(he, func(b hg.PartID) { blocks = append(blocks, b) })
		for i := 0; i < len(blocks); i++ {
			for j := i + 1; j < len(blocks); j++ {
				q.addCutEdgeLocked(he, blocks[i], blocks[j])
			}
		}
	})
	return q
}

func (q *QuotientGraph) pairKey(b0, b1 hg.PartID) int64 {
	if b0 > b1 {
		b0, b1 = b1, b0
	}
	return int64(b0)*int64(q.k) + int64(b1)
}

func (q *QuotientGraph) addCutEdgeLocked(he hg.EdgeID, b0, b1 hg.PartID) {
	if b0 == b1 {
		return
	}
	if b0 > b1 {
		b0, b1 = b1, b0
	}
	key := q.pairKey(b0, b1)
	bag := q.cutEdges[key]
	q.cutEdges[key] = append(bag, he)
	if len(bag) == 0 {
		q.topology.SetWeightedEdge(q.topology.NewWeightedEdge(
			simple.Node(b0), simple.Node(b1), 1))
	}
}

// AddCutEdge records that a concurrent move made hyperedge he cut between
// block `to` and every other block it touches. Edges missed because of racy
// interleavings are tolerated and picked up on the next full rebuild.
func (q *QuotientGraph) AddCutEdge(he hg.EdgeID, to hg.PartID) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.phg.ForConnectivitySet(he, func(b hg.PartID) {
		if b != to {
			q.addCutEdgeLocked(he, to, b)
		}
	})
}

// Pairs returns all block pairs currently connected by cut hyperedges.
func (q *QuotientGraph) Pairs() []BlockPair {
	q.mu.Lock()
	defer q.mu.Unlock()
	pairs := make([]BlockPair, 0, len(q.cutEdges))
	for key, bag := range q.cutEdges {
		if len(bag) == 0 {
			continue
		}
		pairs = append(pairs, BlockPair{B0: hg.PartID(key / int64(q.k)), B1: hg.PartID(key % int64(q.k))})
	}
	return pairs
}

// BlockPairCutHyperedges returns the cut hyperedges between a pair, compacting
// stale entries on demand: entries whose hyperedge no longer has pins in both
// blocks are swap-popped, as are duplicates.
func (q *QuotientGraph) BlockPairCutHyperedges(b0, b1 hg.PartID) []hg.EdgeID {
	if b0 > b1 {
		b0, b1 = b1, b0
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	key := q.pairKey(b0, b1)
	bag := q.cutEdges[key]
	seen := parallel.NewFastResetBitset(int(q.phg.Hypergraph().InitialNumEdges()))
	n := len(bag)
	for i := 0; i < n; i++ {
		he := bag[i]
		if q.phg.PinCountInPart(he, b0) == 0 || q.phg.PinCountInPart(he, b1) == 0 || seen.IsSet(he) {
			bag[i] = bag[n-1]
			n--
			i--
			continue
		}
		seen.Set(he)
	}
	bag = bag[:n]
	q.cutEdges[key] = bag
	return append([]hg.EdgeID(nil), bag...)
}

// Degree returns the number of quotient neighbors of block b. The scheduler
// uses it to order each round's pairs: blocks with many quotient neighbors
// are matched first.
func (q *QuotientGraph) Degree(b hg.PartID) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.topology.From(int64(b)).Len()
}
