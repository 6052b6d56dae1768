package fm

import (
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	hg "github.com/gilchrisn/hypergraph-partitioning-service/pkg/hypergraph"
	"github.com/gilchrisn/hypergraph-partitioning-service/pkg/partition"
	"github.com/gilchrisn/hypergraph-partitioning-service/pkg/refinement"
	"github.com/gilchrisn/hypergraph-partitioning-service/pkg/utils"
)

// Refiner is the localized k-way FM engine. Thread-local searches grow
// frontiers from seed vertices and apply moves through the shared partitioned
// hypergraph; conflicts between searches are tolerated and resolved by the
// atomic move interface.
type Refiner struct {
	ctx        *partition.Context
	shared     *SharedData
	delta      deltaGainFunc
	tracker    *utils.MoveTracker
	numThreads int
}

// NewRefiner creates an FM refiner for the given context.
func NewRefiner(ctx *partition.Context) *Refiner {
	delta := km1DeltaGain
	if ctx.Objective == partition.ObjectiveCut {
		delta = cutDeltaGain
	}
	return &Refiner{ctx: ctx, delta: delta, tracker: ctx.MoveTracker, numThreads: ctx.NumThreads}
}

// SetMoveTracker attaches an analysis journal for applied moves.
func (r *Refiner) SetMoveTracker(tracker *utils.MoveTracker) { r.tracker = tracker }

// Initialize allocates the shared search state and the gain cache.
func (r *Refiner) Initialize(phg *partition.PartitionedHypergraph) {
	n := phg.Hypergraph().InitialNumNodes()
	r.shared = NewSharedData(n, 4*int(n)+1)
	if phg.GainCache() == nil {
		gc := partition.NewGainCache(phg, r.ctx.Objective)
		gc.Initialize(r.ctx.NumThreads)
		phg.AttachGainCache(gc)
	}
}

// SharedState exposes the cross-search state for the uncoarsening driver.
func (r *Refiner) SharedState() *SharedData { return r.shared }

// Refine runs one round of parallel localized searches seeded from the given
// nodes (all border nodes when none are given). best is updated when the
// objective improved.
func (r *Refiner) Refine(phg *partition.PartitionedHypergraph, refinementNodes []hg.NodeID,
	best *partition.Metrics, timeLimit time.Duration) (bool, error) {

	if r.shared == nil {
		r.Initialize(phg)
	}
	r.shared.Reset()

	seeds := refinementNodes
	if len(seeds) == 0 {
		seeds = collectBorderNodes(phg)
	}
	if len(seeds) == 0 {
		return false, nil
	}
	shuffleSeeds(seeds, r.ctx)

	var deadline time.Time
	if timeLimit > 0 {
		deadline = time.Now().Add(timeLimit)
	}

	numSeeds := r.ctx.Config.FMNumSeeds()
	if numSeeds < 1 {
		numSeeds = 1
	}
	groups := make(chan []hg.NodeID, len(seeds)/numSeeds+1)
	for begin := 0; begin < len(seeds); begin += numSeeds {
		end := begin + numSeeds
		if end > len(seeds) {
			end = len(seeds)
		}
		groups <- seeds[begin:end]
	}
	close(groups)

	var totalGain atomic.Int64
	var wg sync.WaitGroup
	for t := 0; t < r.numThreads; t++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			search := newLocalizedSearch(phg, r.ctx, r.shared, r.delta, r.tracker)
			for group := range groups {
				totalGain.Add(search.run(group, deadline))
				if !deadline.IsZero() && time.Now().After(deadline) {
					return
				}
			}
		}()
	}
	wg.Wait()

	if totalGain.Load() <= 0 {
		return false, nil
	}
	*best = partition.ComputeMetrics(phg, r.ctx)
	return true, nil
}

// RefineLocalized runs a single localized search from the given seeds on the
// calling goroutine and returns the attributed gain of the kept prefix. Used
// by the uncoarsening workers for the vertices a group uncontraction touched.
func (r *Refiner) RefineLocalized(phg *partition.PartitionedHypergraph, seeds []hg.NodeID,
	deadline time.Time) int64 {

	if r.shared == nil {
		r.Initialize(phg)
	}
	search := newLocalizedSearch(phg, r.ctx, r.shared, r.delta, r.tracker)
	return search.run(seeds, deadline)
}

// MaxBlocksPerSearch reports that a localized search may touch all blocks.
func (r *Refiner) MaxBlocksPerSearch() int32 { return r.ctx.K }

// SetNumThreads bounds the number of concurrent searches.
func (r *Refiner) SetNumThreads(numThreads int) {
	if numThreads > 0 {
		r.numThreads = numThreads
	}
}

// IsMaximumProblemSizeReached bounds a search by the step budget.
func (r *Refiner) IsMaximumProblemSizeReached(stats refinement.ProblemStats) bool {
	return int(stats.NumNodes) >= r.ctx.Config.FMMaxMoves()
}

func collectBorderNodes(phg *partition.PartitionedHypergraph) []hg.NodeID {
	var border []hg.NodeID
	phg.Hypergraph().ForNodes(func(u hg.NodeID) {
		if phg.PartID(u) != hg.InvalidPartition && phg.IsBorderNode(u) {
			border = append(border, u)
		}
	})
	return border
}

// shuffleSeeds permutes the seed order. With localized shuffling enabled only
// block-local windows are permuted, preserving rough locality of the input
// order.
func shuffleSeeds(seeds []hg.NodeID, ctx *partition.Context) {
	rng := rand.New(rand.NewSource(ctx.Seed))
	if !ctx.Config.UseLocalizedShuffle() {
		rng.Shuffle(len(seeds), func(i, j int) { seeds[i], seeds[j] = seeds[j], seeds[i] })
		return
	}
	block := ctx.Config.ShuffleBlockSize()
	if block < 2 {
		block = 2
	}
	for begin := 0; begin < len(seeds); begin += block {
		end := begin + block
		if end > len(seeds) {
			end = len(seeds)
		}
		window := seeds[begin:end]
		rng.Shuffle(len(window), func(i, j int) { window[i], window[j] = window[j], window[i] })
	}
}
