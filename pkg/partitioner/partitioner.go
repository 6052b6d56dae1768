// Package partitioner orchestrates the multilevel pipeline: coarsen the
// input hypergraph until it is small, partition the coarsest level, then
// uncoarsen while refining with localized FM and flow-based improvement.
package partitioner

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/gilchrisn/hypergraph-partitioning-service/pkg/coarsening"
	hg "github.com/gilchrisn/hypergraph-partitioning-service/pkg/hypergraph"
	"github.com/gilchrisn/hypergraph-partitioning-service/pkg/partition"
	"github.com/gilchrisn/hypergraph-partitioning-service/pkg/uncoarsening"
	"github.com/gilchrisn/hypergraph-partitioning-service/pkg/utils"
	"github.com/gilchrisn/hypergraph-partitioning-service/pkg/validation"
)

// Result is the outcome of a partitioning run.
type Result struct {
	Partition *partition.PartitionedHypergraph
	Metrics   partition.Metrics
	Runtime   time.Duration
}

// Partitioner runs the complete multilevel pipeline for one context.
type Partitioner struct {
	ctx     *partition.Context
	initial partition.InitialPartitioner
	logger  zerolog.Logger
}

// New creates a partitioner with the default BFS initial partitioner.
func New(ctx *partition.Context) *Partitioner {
	return &Partitioner{
		ctx:     ctx,
		initial: partition.BFSInitialPartitioner{},
		logger:  ctx.Logger.With().Str("component", "partitioner").Logger(),
	}
}

// SetInitialPartitioner replaces the black-box initial partitioner.
func (p *Partitioner) SetInitialPartitioner(ip partition.InitialPartitioner) {
	p.initial = ip
}

// Partition runs coarsening, initial partitioning and uncoarsening with
// refinement on the given hypergraph.
func (p *Partitioner) Partition(h *hg.Hypergraph) (*Result, error) {
	start := time.Now()

	if p.ctx.Config.EnableMoveTracking() && p.ctx.MoveTracker == nil {
		p.ctx.MoveTracker = utils.NewMoveTracker(p.ctx.Config.TrackingOutputFile())
		defer p.ctx.MoveTracker.Close()
	}

	if p.ctx.Config.UseCommunityDetection() {
		p.logger.Info().Msg("running natural-cut community detection")
		communities := coarsening.DetectNaturalCutCommunities(h, p.ctx)
		h.ForNodes(func(u hg.NodeID) { h.SetCommunityID(u, communities[u]) })
	}

	p.logger.Info().
		Int32("nodes", h.CurrentNumNodes()).
		Int32("edges", h.CurrentNumEdges()).
		Int32("pins", h.InitialNumPins()).
		Int32("k", p.ctx.K).
		Float64("epsilon", p.ctx.Epsilon).
		Msg("starting multilevel partitioning")

	hierarchy, err := coarsening.NewCoarsener(p.ctx).Coarsen(h)
	if err != nil {
		return nil, fmt.Errorf("coarsening: %w", err)
	}

	top := hierarchy.Top()
	topPHG := partition.NewPartitionedHypergraph(top, p.ctx.K)
	if err := p.initial.InitialPartition(topPHG, p.ctx); err != nil {
		return nil, fmt.Errorf("initial partitioning: %w", err)
	}
	if p.ctx.Config.VerifyInvariants() {
		if err := validation.VerifyPartitionedHypergraph(topPHG); err != nil {
			return nil, fmt.Errorf("after initial partitioning: %w", err)
		}
	}
	initialMetrics := partition.ComputeMetrics(topPHG, p.ctx)
	p.logger.Info().
		Int32("coarse_nodes", top.CurrentNumNodes()).
		Int64("objective", initialMetrics.Objective(p.ctx.Objective)).
		Float64("imbalance", initialMetrics.Imbalance).
		Msg("initial partition computed")

	final, err := uncoarsening.NewUncoarsener(p.ctx).UncoarsenAndRefine(hierarchy, topPHG)
	if err != nil {
		return nil, fmt.Errorf("uncoarsening: %w", err)
	}
	if p.ctx.Config.VerifyInvariants() {
		if err := validation.VerifyPartitionedHypergraph(final); err != nil {
			return nil, fmt.Errorf("final partition: %w", err)
		}
	}

	result := &Result{
		Partition: final,
		Metrics:   partition.ComputeMetrics(final, p.ctx),
		Runtime:   time.Since(start),
	}
	p.logger.Info().
		Int64("cut", result.Metrics.Cut).
		Int64("km1", result.Metrics.Km1).
		Float64("imbalance", result.Metrics.Imbalance).
		Dur("runtime", result.Runtime).
		Msg("partitioning finished")
	return result, nil
}
