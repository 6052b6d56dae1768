package flow

import (
	"math"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	hg "github.com/gilchrisn/hypergraph-partitioning-service/pkg/hypergraph"
	"github.com/gilchrisn/hypergraph-partitioning-service/pkg/partition"
	"github.com/gilchrisn/hypergraph-partitioning-service/pkg/refinement"
)

// Refiner runs flow-based refinements on pairs of adjacent blocks, scheduled
// over the quotient graph with a block-weight reservation protocol.
type Refiner struct {
	ctx        *partition.Context
	logger     zerolog.Logger
	numThreads int

	quotient     *QuotientGraph
	reservations *BlockWeightReservation
	sched        scheduler
	seedCounter  atomic.Int64
}

// NewRefiner creates a flow refiner for the given context.
func NewRefiner(ctx *partition.Context) *Refiner {
	return &Refiner{
		ctx:        ctx,
		logger:     ctx.Logger.With().Str("component", "flow_refiner").Logger(),
		numThreads: ctx.NumThreads,
	}
}

// Initialize allocates the reservation table for the hypergraph.
func (r *Refiner) Initialize(phg *partition.PartitionedHypergraph) {
	r.reservations = NewBlockWeightReservation(phg.K())
}

// MaxBlocksPerSearch reports that one search refines exactly two blocks.
func (r *Refiner) MaxBlocksPerSearch() int32 { return 2 }

// SetNumThreads bounds the number of concurrent pair refinements.
func (r *Refiner) SetNumThreads(numThreads int) {
	if numThreads > 0 {
		r.numThreads = numThreads
	}
}

// IsMaximumProblemSizeReached bounds the BFS-grown instance size.
func (r *Refiner) IsMaximumProblemSizeReached(stats refinement.ProblemStats) bool {
	return int(stats.NumNodes) >= r.ctx.Config.FlowMaxInstanceSize()
}

// Refine schedules pair refinements in rounds until a round completes with no
// block flagged active, the round budget is exhausted or the deadline passes.
func (r *Refiner) Refine(phg *partition.PartitionedHypergraph, _ []hg.NodeID,
	best *partition.Metrics, timeLimit time.Duration) (bool, error) {

	algorithm := r.ctx.Config.FlowAlgorithmName()
	if algorithm == partition.FlowOff {
		return false, nil
	}
	if r.reservations == nil {
		r.Initialize(phg)
	}

	switch algorithm {
	case partition.FlowMatching:
		r.sched = newMatchingScheduler(phg.K())
	case partition.FlowOptimistic:
		r.sched = newOptimisticScheduler(phg.K(), phg.Hypergraph().InitialNumNodes(),
			r.ctx.Config.FlowTasksPerBlock())
	default:
		return false, nil
	}

	var deadline time.Time
	if timeLimit > 0 {
		deadline = time.Now().Add(timeLimit)
	}

	r.quotient = NewQuotientGraph(phg)
	r.reservations.Init(phg)

	improvedOverall := false
	active := make(map[hg.PartID]bool, phg.K())
	for b := int32(0); b < phg.K(); b++ {
		active[hg.PartID(b)] = true
	}

	for round := 0; round < r.ctx.Config.FlowMaxRounds(); round++ {
		if !deadline.IsZero() && time.Now().After(deadline) {
			break
		}
		var roundPairs []BlockPair
		for _, p := range r.quotient.Pairs() {
			if active[p.B0] && active[p.B1] {
				roundPairs = append(roundPairs, p)
			}
		}
		if len(roundPairs) == 0 {
			break
		}
		// Pairs whose blocks have many quotient neighbors go first: they are
		// the hardest to place once other searches have locked their blocks.
		sort.Slice(roundPairs, func(i, j int) bool {
			di := r.quotient.Degree(roundPairs[i].B0) + r.quotient.Degree(roundPairs[i].B1)
			dj := r.quotient.Degree(roundPairs[j].B0) + r.quotient.Degree(roundPairs[j].B1)
			if di != dj {
				return di > dj
			}
			if roundPairs[i].B0 != roundPairs[j].B0 {
				return roundPairs[i].B0 < roundPairs[j].B0
			}
			return roundPairs[i].B1 < roundPairs[j].B1
		})

		improved := r.runRound(phg, roundPairs, deadline)
		improvedOverall = improvedOverall || improved

		for b := range active {
			active[b] = false
		}
		numActive := 0
		for b := int32(0); b < phg.K(); b++ {
			if r.sched.blockActive(hg.PartID(b)) {
				active[hg.PartID(b)] = true
				numActive++
			}
		}
		if numActive == 0 {
			break
		}
	}

	if improvedOverall {
		*best = partition.ComputeMetrics(phg, r.ctx)
	}
	return improvedOverall, nil
}

// runRound feeds pairs into a worker pool; each finished task asks the
// scheduler for follow-up pairs until the round drains.
func (r *Refiner) runRound(phg *partition.PartitionedHypergraph, pairs []BlockPair, deadline time.Time) bool {
	feeder := make(chan BlockPair, len(pairs)+r.numThreads)
	initial := r.sched.startRound(pairs, r.numThreads)
	if len(initial) == 0 {
		return false
	}

	var pending sync.WaitGroup
	var mu sync.Mutex
	improvedRound := false

	feed := func(ps []BlockPair) {
		for _, p := range ps {
			pending.Add(1)
			feeder <- p
		}
	}
	feed(initial)

	var workers sync.WaitGroup
	for t := 0; t < r.numThreads; t++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			for pair := range feeder {
				improved := false
				if deadline.IsZero() || time.Now().Before(deadline) {
					improved = r.refinePair(phg, pair)
				}
				if improved {
					mu.Lock()
					improvedRound = true
					mu.Unlock()
					r.sched.setBlockActive(pair.B0)
					r.sched.setBlockActive(pair.B1)
				}
				feed(r.sched.finishPair(pair))
				pending.Done()
			}
		}()
	}

	pending.Wait()
	close(feeder)
	workers.Wait()
	return improvedRound
}

// refinePair builds the flow instance for one block pair, solves the min cut
// and applies the induced bipartition if it strictly improves the objective
// while respecting the reserved block weights.
func (r *Refiner) refinePair(phg *partition.PartitionedHypergraph, pair BlockPair) bool {
	searchID := uuid.New()
	cutEdges := r.quotient.BlockPairCutHyperedges(pair.B0, pair.B1)
	if len(cutEdges) == 0 {
		return false
	}

	invocation := r.seedCounter.Add(1)
	rng := rand.New(rand.NewSource(r.ctx.Seed ^ invocation<<17 ^ int64(pair.B0)<<8 ^ int64(pair.B1)))

	var acquirer nodeAcquirer
	if opt, ok := r.sched.(*optimisticScheduler); ok {
		acquirer = opt
	}
	inst := buildFlowInstance(phg, pair, cutEdges,
		r.ctx.Config.FlowCoreSize(), r.ctx.Config.FlowMaxInstanceSize(),
		r.ctx.Config.FlowPinSampleSize(), acquirer, rng)
	defer inst.release(acquirer)
	if !inst.shouldCompute {
		return false
	}

	// Reserve the region weight of both blocks so overlapping searches
	// reason about balance independently.
	h := phg.Hypergraph()
	var regionWeightB0, regionWeightB1 int64
	for _, v := range inst.region {
		if phg.PartID(v) == pair.B0 {
			regionWeightB0 += int64(h.NodeWeight(v))
		} else {
			regionWeightB1 += int64(h.NodeWeight(v))
		}
	}
	r.reservations.Acquire(pair.B0, pair.B1, regionWeightB0)
	r.reservations.Acquire(pair.B1, pair.B0, regionWeightB1)

	sides, flowValue := inst.computeBipartition()

	var sideWeightB0, sideWeightB1 int64
	for i, v := range inst.region {
		if sides[i] == pair.B0 {
			sideWeightB0 += int64(h.NodeWeight(v))
		} else {
			sideWeightB1 += int64(h.NodeWeight(v))
		}
	}

	improved := false
	balanced := r.reservations.NotAcquiredWeight(pair.B0, pair.B1)+sideWeightB0 <= r.ctx.MaxPartWeights[pair.B0] &&
		r.reservations.NotAcquiredWeight(pair.B1, pair.B0)+sideWeightB1 <= r.ctx.MaxPartWeights[pair.B1]

	if flowValue < inst.pairCutBefore && balanced {
		improved = r.applyBipartition(phg, inst, sides)
	}

	r.reservations.Release(pair.B0, pair.B1, sideWeightB0)
	r.reservations.Release(pair.B1, pair.B0, sideWeightB1)

	if improved {
		r.logger.Debug().
			Str("search_id", searchID.String()).
			Int32("block0", pair.B0).
			Int32("block1", pair.B1).
			Int64("cut_before", inst.pairCutBefore).
			Int64("cut_after", flowValue).
			Msg("flow refinement improved pair")
	}
	return improved
}

// applyBipartition moves every region vertex to its min-cut side, attributing
// the objective delta per move. If the accumulated delta does not improve the
// objective (concurrent moves can invalidate the computed cut) the moves are
// reverted.
func (r *Refiner) applyBipartition(phg *partition.PartitionedHypergraph,
	inst *flowInstance, sides []hg.PartID) bool {

	attributeDelta := func(he hg.EdgeID, w hg.Weight, size, pinsFrom, pinsTo int32) int32 {
		if r.ctx.Objective == partition.ObjectiveCut {
			var gain int32
			if pinsTo == size && size > 1 {
				gain += int32(w)
			}
			if pinsFrom == size-1 && size > 1 {
				gain -= int32(w)
			}
			return gain
		}
		var gain int32
		if pinsFrom == 0 {
			gain += int32(w)
		}
		if pinsTo == 1 {
			gain -= int32(w)
		}
		return gain
	}

	type appliedMove struct {
		node     hg.NodeID
		from, to hg.PartID
	}
	var applied []appliedMove
	var totalGain int64

	for i, v := range inst.region {
		from := phg.PartID(v)
		to := sides[i]
		if from == to || (from != inst.pair.B0 && from != inst.pair.B1) {
			continue
		}
		var moveGain int32
		if phg.ChangeNodePart(v, from, to, math.MaxInt64,
			func(he hg.EdgeID, w hg.Weight, size, pinsFrom, pinsTo int32) {
				moveGain += attributeDelta(he, w, size, pinsFrom, pinsTo)
				if pinsTo == 1 {
					r.quotient.AddCutEdge(he, to)
				}
			}) {
			applied = append(applied, appliedMove{node: v, from: from, to: to})
			totalGain += int64(moveGain)
		}
	}

	if totalGain <= 0 {
		for i := len(applied) - 1; i >= 0; i-- {
			m := applied[i]
			phg.ChangeNodePart(m.node, m.to, m.from, math.MaxInt64, nil)
		}
		return false
	}
	return len(applied) > 0
}
