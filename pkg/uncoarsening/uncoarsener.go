package uncoarsening

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/gilchrisn/hypergraph-partitioning-service/pkg/coarsening"
	hg "github.com/gilchrisn/hypergraph-partitioning-service/pkg/hypergraph"
	"github.com/gilchrisn/hypergraph-partitioning-service/pkg/parallel"
	"github.com/gilchrisn/hypergraph-partitioning-service/pkg/partition"
	"github.com/gilchrisn/hypergraph-partitioning-service/pkg/refinement"
	"github.com/gilchrisn/hypergraph-partitioning-service/pkg/refinement/flow"
	"github.com/gilchrisn/hypergraph-partitioning-service/pkg/refinement/fm"
	"github.com/gilchrisn/hypergraph-partitioning-service/pkg/validation"
)

// Uncoarsener walks the coarsening hierarchy in reverse. Each level is
// uncontracted asynchronously over a pool of contraction groups guarded by
// per-node locks, with localized FM invoked on the boundary vertices that
// change meaning; the level then gets a full FM round and, if configured,
// flow-based refinement on the quotient graph.
type Uncoarsener struct {
	ctx    *partition.Context
	logger zerolog.Logger
}

// NewUncoarsener creates the uncoarsening driver.
func NewUncoarsener(ctx *partition.Context) *Uncoarsener {
	return &Uncoarsener{
		ctx:    ctx,
		logger: ctx.Logger.With().Str("component", "uncoarsener").Logger(),
	}
}

// UncoarsenAndRefine lifts the partition of the coarsest hypergraph through
// all hierarchy levels and returns the refined partition of the finest one.
func (u *Uncoarsener) UncoarsenAndRefine(hierarchy *coarsening.Hierarchy,
	coarsePHG *partition.PartitionedHypergraph) (*partition.PartitionedHypergraph, error) {

	phg := coarsePHG
	best := partition.ComputeMetrics(phg, u.ctx)
	u.refineLevel(phg, &best)

	for li := hierarchy.NumLevels() - 1; li >= 0; li-- {
		level := hierarchy.Level(li)
		finePHG := partition.NewPartitionedHypergraph(level.Fine, u.ctx.K)
		gc := partition.NewGainCache(finePHG, u.ctx.Objective)
		finePHG.AttachGainCache(gc)

		fmRefiner := fm.NewRefiner(u.ctx)
		fmRefiner.Initialize(finePHG)

		if err := u.uncontractLevel(level, phg, finePHG, fmRefiner); err != nil {
			return nil, err
		}

		if u.ctx.Config.VerifyInvariants() {
			if err := validation.VerifyPartitionedHypergraph(finePHG); err != nil {
				return nil, fmt.Errorf("after uncontracting level %d: %w", li, err)
			}
		}

		best = partition.ComputeMetrics(finePHG, u.ctx)
		u.refineLevel(finePHG, &best)

		if u.ctx.Config.EnableProgress() {
			u.logger.Info().
				Int("level", li).
				Int32("nodes", level.Fine.CurrentNumNodes()).
				Int64("objective", best.Objective(u.ctx.Objective)).
				Float64("imbalance", best.Imbalance).
				Msg("uncontracted and refined level")
		}

		hierarchy.FreeLevel(li)
		phg = finePHG
	}
	return phg, nil
}

// uncontractLevel runs the asynchronous group uncontraction of one level.
// Workers repeatedly pick a ready group, lock its vertices (with rollback on
// conflict), assign the coarse block to every member, refresh gain cache
// entries, and run localized FM on the members that ended up on the cut.
func (u *Uncoarsener) uncontractLevel(level *coarsening.Level,
	coarsePHG, finePHG *partition.PartitionedHypergraph, fmRefiner *fm.Refiner) error {

	groups := buildGroups(level)
	pool := NewGroupPool(groups)
	pool.Activate()
	locks := parallel.NewNodeLockManager(int(level.Fine.InitialNumNodes()))

	var deadline time.Time
	if limit := u.ctx.Config.FMTimeLimit(); limit > 0 {
		deadline = time.Now().Add(limit)
	}

	var wg sync.WaitGroup
	for t := 0; t < u.ctx.NumThreads; t++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			seeds := make([]hg.NodeID, 0, 16)
			for {
				group, ok := pool.PickAnyActive()
				if !ok {
					return
				}
				if !locks.TryAcquireAll(group.Members, group.ID) {
					pool.Retry(group)
					continue
				}

				block := coarsePHG.PartID(group.CoarseVertex)
				for _, member := range group.Members {
					finePHG.SetNodePart(member, block)
				}
				gc := finePHG.GainCache()
				for _, member := range group.Members {
					gc.InvalidateNode(member)
				}

				// Boundary members seed localized refinement; locks on
				// interior members are released first.
				seeds = seeds[:0]
				for _, member := range group.Members {
					if finePHG.IsBorderNode(member) {
						seeds = append(seeds, member)
					} else {
						locks.Release(member)
					}
				}
				if len(seeds) > 0 {
					fmRefiner.RefineLocalized(finePHG, seeds, deadline)
					locks.ReleaseAll(seeds)
				}
				pool.MarkFinished(group)
			}
		}()
	}
	wg.Wait()
	return nil
}

// buildGroups collects the fine members of every coarse vertex. Members[0]
// is the representative whose identity the coarse vertex carried.
func buildGroups(level *coarsening.Level) []*ContractionGroup {
	memberLists := make([][]hg.NodeID, level.Coarse.InitialNumNodes())
	for u := int32(0); u < level.Fine.InitialNumNodes(); u++ {
		coarse := level.Clustering[u]
		if coarse != hg.InvalidNode {
			memberLists[coarse] = append(memberLists[coarse], u)
		}
	}
	groups := make([]*ContractionGroup, 0, len(memberLists))
	for coarse, members := range memberLists {
		if len(members) == 0 {
			continue
		}
		groups = append(groups, &ContractionGroup{
			ID:           uint32(len(groups)),
			CoarseVertex: hg.NodeID(coarse),
			Members:      members,
		})
	}
	return groups
}

// refineLevel runs the configured refiners on the full level through the
// phase-boundary interface.
func (u *Uncoarsener) refineLevel(phg *partition.PartitionedHypergraph, best *partition.Metrics) {
	refiners := []refinement.Refiner{}

	fmRefiner := fm.NewRefiner(u.ctx)
	fmRefiner.Initialize(phg)
	refiners = append(refiners, fmRefiner)

	if u.ctx.Config.FlowAlgorithmName() != partition.FlowOff {
		flowRefiner := flow.NewRefiner(u.ctx)
		flowRefiner.Initialize(phg)
		refiners = append(refiners, flowRefiner)
	} else {
		refiners = append(refiners, refinement.DoNothingRefiner{})
	}

	for _, r := range refiners {
		timeLimit := u.ctx.Config.FMTimeLimit()
		if _, ok := r.(*flow.Refiner); ok {
			timeLimit = u.ctx.Config.FlowTimeLimit()
		}
		if _, err := r.Refine(phg, nil, best, timeLimit); err != nil {
			u.logger.Warn().Err(err).Msg("refinement phase failed, continuing")
		}
	}
}
