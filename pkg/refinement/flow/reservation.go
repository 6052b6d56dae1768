package flow

import (
	"sync"

	hg "github.com/gilchrisn/hypergraph-partitioning-service/pkg/hypergraph"
	"github.com/gilchrisn/hypergraph-partitioning-service/pkg/partition"
)

// BlockWeightReservation lets concurrent pair refinements reason about
// balance independently. A search acquires a slice of a block's weight (the
// weight of the vertices it may move) and books it against its counterpart
// block; other searches only see the remaining, not-acquired weight. The
// table is guarded by one reader/writer lock per block.
//
// Two searches increasing the same block's weight concurrently can overshoot
// epsilon by at most the largest acquired slice; the excess is corrected by
// the next FM round.
type BlockWeightReservation struct {
	k       int32
	locks   []sync.RWMutex
	weights [][]int64
}

// NewBlockWeightReservation creates an empty reservation table for k blocks.
func NewBlockWeightReservation(k int32) *BlockWeightReservation {
	weights := make([][]int64, k)
	for i := range weights {
		weights[i] = make([]int64, k)
	}
	return &BlockWeightReservation{
		k:       k,
		locks:   make([]sync.RWMutex, k),
		weights: weights,
	}
}

// Init loads the current block weights; entry [b][b] holds the unreserved
// weight of block b.
func (r *BlockWeightReservation) Init(phg *partition.PartitionedHypergraph) {
	for b := int32(0); b < r.k; b++ {
		r.locks[b].Lock()
		for o := int32(0); o < r.k; o++ {
			r.weights[b][o] = 0
		}
		r.weights[b][b] = phg.PartWeight(hg.PartID(b))
		r.locks[b].Unlock()
	}
}

// Acquire books amount of block target's weight against block other.
func (r *BlockWeightReservation) Acquire(target, other hg.PartID, amount int64) {
	r.locks[target].Lock()
	r.weights[target][other] = amount
	r.weights[target][target] -= amount
	r.locks[target].Unlock()
}

// Release returns amount of weight to block target. amount reflects the
// weight the finishing search left in the block, which may differ from the
// acquired slice when vertices moved.
func (r *BlockWeightReservation) Release(target, other hg.PartID, amount int64) {
	r.locks[target].Lock()
	r.weights[target][other] = 0
	r.weights[target][target] += amount
	r.locks[target].Unlock()
}

// NotAcquiredWeight returns the weight of block b visible to a search whose
// counterpart is other: everything except the slice booked against other.
func (r *BlockWeightReservation) NotAcquiredWeight(b, other hg.PartID) int64 {
	r.locks[b].RLock()
	defer r.locks[b].RUnlock()
	var weight int64
	for o := int32(0); o < r.k; o++ {
		if hg.PartID(o) != other {
			weight += r.weights[b][o]
		}
	}
	return weight
}

// AcquiredPairWeight returns the slices the two blocks of a pair have booked
// against each other.
func (r *BlockWeightReservation) AcquiredPairWeight(b0, b1 hg.PartID) (int64, int64) {
	r.locks[b0].RLock()
	w0 := r.weights[b0][b1]
	r.locks[b0].RUnlock()
	r.locks[b1].RLock()
	w1 := r.weights[b1][b0]
	r.locks[b1].RUnlock()
	return w0, w1
}
