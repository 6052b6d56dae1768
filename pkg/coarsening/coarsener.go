package coarsening

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	hg "github.com/gilchrisn/hypergraph-partitioning-service/pkg/hypergraph"
	"github.com/gilchrisn/hypergraph-partitioning-service/pkg/partition"
)

// Level is one step of the coarsening hierarchy: the clustering that maps the
// finer hypergraph onto the coarser one. Clustering[u] is the dense coarse ID
// of fine vertex u (InvalidNode for disabled vertices).
type Level struct {
	Fine       *hg.Hypergraph
	Coarse     *hg.Hypergraph
	Clustering []hg.NodeID
}

// Hierarchy is the explicit stack of coarsening levels. Levels are owned by
// the hierarchy and freed once the finer level's refinement completed.
type Hierarchy struct {
	finest *hg.Hypergraph
	levels []*Level
}

// Finest returns the input hypergraph.
func (hy *Hierarchy) Finest() *hg.Hypergraph { return hy.finest }

// Top returns the coarsest hypergraph.
func (hy *Hierarchy) Top() *hg.Hypergraph {
	if len(hy.levels) == 0 {
		return hy.finest
	}
	return hy.levels[len(hy.levels)-1].Coarse
}

// NumLevels returns the number of contraction steps taken.
func (hy *Hierarchy) NumLevels() int { return len(hy.levels) }

// Level returns the i-th contraction step (0 is the finest).
func (hy *Hierarchy) Level(i int) *Level { return hy.levels[i] }

// FreeLevel releases the arrays of a level after the finer refinement
// completed.
func (hy *Hierarchy) FreeLevel(i int) {
	hy.levels[i].Coarse = nil
	hy.levels[i].Clustering = nil
}

// Coarsener runs the coarsening loop: compute a clustering, contract, push
// the level, until the contraction limit is reached or the hypergraph stops
// shrinking.
type Coarsener struct {
	ctx    *partition.Context
	policy ClusteringPolicy
	logger zerolog.Logger
}

// NewCoarsener creates a coarsener with the heavy-edge clustering policy.
func NewCoarsener(ctx *partition.Context) *Coarsener {
	return &Coarsener{
		ctx:    ctx,
		policy: HeavyEdgeClustering{},
		logger: ctx.Logger.With().Str("component", "coarsener").Logger(),
	}
}

// Coarsen builds the hierarchy for the given hypergraph.
func (c *Coarsener) Coarsen(input *hg.Hypergraph) (*Hierarchy, error) {
	hierarchy := &Hierarchy{finest: input}
	current := input
	contractionLimit := c.ctx.Config.ContractionLimit()
	shrink := c.ctx.Config.MinimumShrinkFactor()

	// The cluster weight cap keeps single coarse vertices from exceeding the
	// block weight limit.
	maxClusterWeight := c.ctx.Config.MaxAllowedNodeWeight()
	if maxClusterWeight <= 0 {
		maxClusterWeight = hg.Weight(c.ctx.MaxPartWeights[0] / 2)
	}

	pass := 0
	for current.CurrentNumNodes() > contractionLimit {
		seed := c.ctx.Seed + int64(pass)
		clustering := c.policy.ComputeClustering(current, maxClusterWeight, seed, c.ctx.NumThreads)

		coarse, err := current.Contract(clustering, c.ctx.NumThreads)
		if errors.Is(err, hg.ErrResource) {
			// Retry once on a smaller coarsening step.
			c.logger.Warn().Err(err).Msg("contraction failed, retrying with halved cluster weight")
			clustering = c.policy.ComputeClustering(current, maxClusterWeight/2, seed, c.ctx.NumThreads)
			coarse, err = current.Contract(clustering, c.ctx.NumThreads)
		}
		if err != nil {
			return nil, fmt.Errorf("contracting level %d: %w", pass, err)
		}

		if float64(current.CurrentNumNodes()) < float64(coarse.CurrentNumNodes())*shrink {
			c.logger.Debug().
				Int32("nodes", current.CurrentNumNodes()).
				Msg("no further compression, stopping coarsening")
			break
		}

		if c.ctx.Config.EnableProgress() {
			c.logger.Info().
				Int("level", pass).
				Int32("nodes", coarse.CurrentNumNodes()).
				Int32("edges", coarse.CurrentNumEdges()).
				Int32("pins", coarse.InitialNumPins()).
				Msg("contracted level")
		}

		hierarchy.levels = append(hierarchy.levels, &Level{
			Fine:       current,
			Coarse:     coarse,
			Clustering: clustering,
		})
		current = coarse
		pass++
	}
	return hierarchy, nil
}
