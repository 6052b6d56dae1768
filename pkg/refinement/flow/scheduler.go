package flow

import (
	"sync"
	"sync/atomic"

	hg "github.com/gilchrisn/hypergraph-partitioning-service/pkg/hypergraph"
)

// scheduler hands out block pairs for concurrent pair refinements. A round
// starts with the pairs whose blocks are active; when a task finishes the
// scheduler feeds the next eligible pairs.
type scheduler interface {
	nodeAcquirer

	// startRound filters the round pairs and returns the initial batch to
	// run in parallel. Active flags are reset; tasks re-activate blocks on
	// improvement.
	startRound(pairs []BlockPair, numTasks int) []BlockPair

	// finishPair releases the blocks of a finished pair and returns follow-up
	// pairs to feed.
	finishPair(pair BlockPair) []BlockPair

	// setBlockActive flags a block as improved in this round.
	setBlockActive(b hg.PartID)

	// blockActive reports whether a block was flagged during the round.
	blockActive(b hg.PartID) bool

	// numActiveBlocks reports how many blocks were flagged during the round.
	numActiveBlocks() int
}

// schedulerBase carries the state shared by both scheduler variants.
type schedulerBase struct {
	k            int32
	mu           sync.Mutex
	roundPairs   []BlockPair
	activeBlocks []atomic.Bool
}

func (s *schedulerBase) init(k int32) {
	s.k = k
	s.activeBlocks = make([]atomic.Bool, k)
}

func (s *schedulerBase) setBlockActive(b hg.PartID) { s.activeBlocks[b].Store(true) }

func (s *schedulerBase) blockActive(b hg.PartID) bool { return s.activeBlocks[b].Load() }

func (s *schedulerBase) numActiveBlocks() int {
	n := 0
	for b := range s.activeBlocks {
		if s.activeBlocks[b].Load() {
			n++
		}
	}
	return n
}

func (s *schedulerBase) resetActiveBlocks() {
	for b := range s.activeBlocks {
		s.activeBlocks[b].Store(false)
	}
}

func (s *schedulerBase) removeRoundPair(i int) {
	last := len(s.roundPairs) - 1
	s.roundPairs[i] = s.roundPairs[last]
	s.roundPairs = s.roundPairs[:last]
}

// matchingScheduler greedily maximum-matches pairs on lock-free blocks: a
// block participates in at most one running refinement at a time.
type matchingScheduler struct {
	schedulerBase
	lockedBlocks []bool
}

func newMatchingScheduler(k int32) *matchingScheduler {
	s := &matchingScheduler{lockedBlocks: make([]bool, k)}
	s.init(k)
	return s
}

func (s *matchingScheduler) startRound(pairs []BlockPair, _ int) []BlockPair {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roundPairs = append(s.roundPairs[:0], pairs...)
	for b := range s.lockedBlocks {
		s.lockedBlocks[b] = false
	}
	s.resetActiveBlocks()

	var initial []BlockPair
	for i := 0; i < len(s.roundPairs); i++ {
		p := s.roundPairs[i]
		if !s.lockedBlocks[p.B0] && !s.lockedBlocks[p.B1] {
			s.lockedBlocks[p.B0] = true
			s.lockedBlocks[p.B1] = true
			initial = append(initial, p)
			s.removeRoundPair(i)
			i--
		}
	}
	return initial
}

func (s *matchingScheduler) finishPair(pair BlockPair) []BlockPair {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lockedBlocks[pair.B0] = false
	s.lockedBlocks[pair.B1] = false

	var next []BlockPair
	for i := 0; i < len(s.roundPairs); i++ {
		p := s.roundPairs[i]
		if !s.lockedBlocks[p.B0] && !s.lockedBlocks[p.B1] {
			s.lockedBlocks[p.B0] = true
			s.lockedBlocks[p.B1] = true
			next = append(next, p)
			s.removeRoundPair(i)
			i--
		}
	}
	return next
}

// The matching scheduler keeps searches disjoint by block, so vertex-level
// reservations are unnecessary.
func (s *matchingScheduler) tryAcquireNode(hg.NodeID, BlockPair) bool { return true }
func (s *matchingScheduler) releaseNode(hg.NodeID)                    {}

// optimisticScheduler allows a block to participate in several concurrent
// refinements, bounded by tasksPerBlock, and keeps overlapping searches from
// touching the same vertex through per-vertex CAS reservation slots whose
// value encodes the owning pair as b0*k + b1 + 1 (0 marks a free slot).
type optimisticScheduler struct {
	schedulerBase
	tasksPerBlock int
	tasksOnBlock  []int
	nodeSlots     []atomic.Int32
}

func newOptimisticScheduler(k int32, numNodes int32, tasksPerBlock int) *optimisticScheduler {
	s := &optimisticScheduler{
		tasksPerBlock: tasksPerBlock,
		tasksOnBlock:  make([]int, k),
		nodeSlots:     make([]atomic.Int32, numNodes),
	}
	s.init(k)
	return s
}

func (s *optimisticScheduler) startRound(pairs []BlockPair, numTasks int) []BlockPair {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roundPairs = append(s.roundPairs[:0], pairs...)
	for b := range s.tasksOnBlock {
		s.tasksOnBlock[b] = 0
	}
	s.resetActiveBlocks()

	var initial []BlockPair
	for t := 0; t < numTasks; t++ {
		p, ok := s.mostIndependentPairLocked()
		if !ok {
			break
		}
		initial = append(initial, p)
	}
	return initial
}

func (s *optimisticScheduler) finishPair(pair BlockPair) []BlockPair {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasksOnBlock[pair.B0]--
	s.tasksOnBlock[pair.B1]--
	if p, ok := s.mostIndependentPairLocked(); ok {
		return []BlockPair{p}
	}
	return nil
}

// mostIndependentPairLocked picks the round pair minimizing the maximum
// number of tasks already running on its blocks.
func (s *optimisticScheduler) mostIndependentPairLocked() (BlockPair, bool) {
	bestIdx := -1
	bestIndependence := int(^uint(0) >> 1)
	for i, p := range s.roundPairs {
		independence := s.tasksOnBlock[p.B0]
		if s.tasksOnBlock[p.B1] > independence {
			independence = s.tasksOnBlock[p.B1]
		}
		if independence < bestIndependence && independence < s.tasksPerBlock {
			bestIndependence = independence
			bestIdx = i
		}
	}
	if bestIdx < 0 {
		return BlockPair{}, false
	}
	pair := s.roundPairs[bestIdx]
	s.tasksOnBlock[pair.B0]++
	s.tasksOnBlock[pair.B1]++
	s.removeRoundPair(bestIdx)
	return pair, true
}

func (s *optimisticScheduler) pairSlot(pair BlockPair) int32 {
	return int32(pair.B0)*s.k + int32(pair.B1) + 1
}

func (s *optimisticScheduler) tryAcquireNode(u hg.NodeID, pair BlockPair) bool {
	slot := s.pairSlot(pair)
	return s.nodeSlots[u].CompareAndSwap(0, slot) || s.nodeSlots[u].Load() == slot
}

func (s *optimisticScheduler) releaseNode(u hg.NodeID) {
	s.nodeSlots[u].Store(0)
}
