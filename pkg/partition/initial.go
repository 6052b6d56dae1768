package partition

import (
	"fmt"
	"math/rand"

	hg "github.com/gilchrisn/hypergraph-partitioning-service/pkg/hypergraph"
)

// InitialPartitioner computes an assignment for the coarsest hypergraph. The
// multilevel engine treats it as a black box: it must assign every enabled
// vertex to a block within the context's block weight limits.
type InitialPartitioner interface {
	InitialPartition(phg *PartitionedHypergraph, ctx *Context) error
}

// BFSInitialPartitioner grows blocks one after another by breadth-first
// search from pseudo-random seed vertices. Vertices unreachable within the
// weight budget are assigned greedily to the lightest feasible block.
type BFSInitialPartitioner struct{}

// InitialPartition implements InitialPartitioner.
func (BFSInitialPartitioner) InitialPartition(phg *PartitionedHypergraph, ctx *Context) error {
	h := phg.Hypergraph()
	rng := rand.New(rand.NewSource(ctx.Seed))

	order := make([]hg.NodeID, 0, h.CurrentNumNodes())
	h.ForNodes(func(u hg.NodeID) { order = append(order, u) })
	rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

	visited := make([]bool, h.InitialNumNodes())
	queue := make([]hg.NodeID, 0, len(order))
	next := 0

	// Each block grows while its weight is below its perfect balance weight;
	// a vertex is added only if the block stays within its maximum weight,
	// so a block can end above its perfect weight.
	for b := int32(0); b < ctx.K; b++ {
		budget := ctx.PerfectBalancePartWeights[b]
		queue = queue[:0]
		for next < len(order) && visited[order[next]] {
			next++
		}
		if next == len(order) {
			break
		}
		queue = append(queue, order[next])
		visited[order[next]] = true

		for len(queue) > 0 && phg.PartWeight(hg.PartID(b)) < budget {
			u := queue[0]
			queue = queue[1:]
			if phg.PartWeight(hg.PartID(b))+int64(h.NodeWeight(u)) > ctx.MaxPartWeights[b] {
				visited[u] = false
				continue
			}
			phg.SetNodePart(u, hg.PartID(b))
			for _, he := range h.IncidentEdges(u) {
				for _, pin := range h.Pins(he) {
					if !visited[pin] {
						visited[pin] = true
						queue = append(queue, pin)
					}
				}
			}
		}
		// Vertices left in the queue overflow into later blocks.
		for _, u := range queue {
			visited[u] = false
		}
	}

	// Greedy cleanup for everything the BFS passes did not place.
	var err error
	h.ForNodes(func(u hg.NodeID) {
		if err != nil || phg.PartID(u) != hg.InvalidPartition {
			return
		}
		best := hg.InvalidPartition
		var bestWeight int64
		for b := int32(0); b < ctx.K; b++ {
			w := phg.PartWeight(hg.PartID(b))
			if w+int64(h.NodeWeight(u)) <= ctx.MaxPartWeights[b] && (best == hg.InvalidPartition || w < bestWeight) {
				best = hg.PartID(b)
				bestWeight = w
			}
		}
		if best == hg.InvalidPartition {
			err = fmt.Errorf("%w: no block can accommodate vertex %d of weight %d",
				hg.ErrInfeasible, u, h.NodeWeight(u))
			return
		}
		phg.SetNodePart(u, best)
	})
	return err
}
