package partition

import (
	hg "github.com/gilchrisn/hypergraph-partitioning-service/pkg/hypergraph"
)

// Cut returns the sum of weights of edges spanning more than one block.
func Cut(phg *PartitionedHypergraph) int64 {
	var cut int64
	phg.Hypergraph().ForEdges(func(e hg.EdgeID) {
		if phg.Connectivity(e) > 1 {
			cut += int64(phg.Hypergraph().EdgeWeight(e))
		}
	})
	return cut
}

// Km1 returns the connectivity metric sum (lambda(e)-1)*w(e).
func Km1(phg *PartitionedHypergraph) int64 {
	var km1 int64
	phg.Hypergraph().ForEdges(func(e hg.EdgeID) {
		if c := phg.Connectivity(e); c > 1 {
			km1 += int64(c-1) * int64(phg.Hypergraph().EdgeWeight(e))
		}
	})
	return km1
}

// SOED returns the sum-of-external-degrees metric sum lambda(e)*w(e) over
// cut edges.
func SOED(phg *PartitionedHypergraph) int64 {
	var soed int64
	phg.Hypergraph().ForEdges(func(e hg.EdgeID) {
		if c := phg.Connectivity(e); c > 1 {
			soed += int64(c) * int64(phg.Hypergraph().EdgeWeight(e))
		}
	})
	return soed
}

// ObjectiveValue returns the configured objective of the current partition.
func ObjectiveValue(phg *PartitionedHypergraph, objective Objective) int64 {
	if objective == ObjectiveCut {
		return Cut(phg)
	}
	return Km1(phg)
}

// Imbalance returns max_b partWeight(b)/perfectBalance(b) - 1.
func Imbalance(phg *PartitionedHypergraph, ctx *Context) float64 {
	maxBalance := 0.0
	for b := int32(0); b < phg.K(); b++ {
		balance := float64(phg.PartWeight(hg.PartID(b))) / float64(ctx.PerfectBalancePartWeights[b])
		if balance > maxBalance {
			maxBalance = balance
		}
	}
	return maxBalance - 1.0
}

// Metrics bundles the quality measures reported after each phase.
type Metrics struct {
	Cut       int64   `json:"cut"`
	Km1       int64   `json:"km1"`
	Imbalance float64 `json:"imbalance"`
}

// ComputeMetrics evaluates all quality measures of the current partition.
func ComputeMetrics(phg *PartitionedHypergraph, ctx *Context) Metrics {
	return Metrics{
		Cut:       Cut(phg),
		Km1:       Km1(phg),
		Imbalance: Imbalance(phg, ctx),
	}
}

// Objective returns the configured objective from a metrics bundle.
func (m Metrics) Objective(objective Objective) int64 {
	if objective == ObjectiveCut {
		return m.Cut
	}
	return m.Km1
}
