package coarsening

import (
	"math/rand"
	"sync/atomic"

	hg "github.com/gilchrisn/hypergraph-partitioning-service/pkg/hypergraph"
	"github.com/gilchrisn/hypergraph-partitioning-service/pkg/parallel"
)

// maxRatedEdgeSize caps which hyperedges contribute to the heavy-edge
// rating; huge nets carry almost no locality signal and dominate the scan.
const maxRatedEdgeSize = 1000

// ClusteringPolicy computes a clustering vector for one coarsening step.
// clusters[u] is the representative vertex u merges into.
type ClusteringPolicy interface {
	ComputeClustering(h *hg.Hypergraph, maxClusterWeight hg.Weight, seed int64, numWorkers int) []hg.NodeID
}

// HeavyEdgeClustering merges each vertex with the neighbor maximizing the
// heavy-edge rating sum w(e)/(|e|-1) over shared nets. Merges never cross
// community boundaries and respect the cluster weight cap.
type HeavyEdgeClustering struct{}

// ComputeClustering proposes merges in parallel. Each vertex CASes itself
// onto its best-rated neighbor's slot; chains and two-cycles created by
// concurrent proposals are resolved in a path-compression postpass.
func (HeavyEdgeClustering) ComputeClustering(h *hg.Hypergraph, maxClusterWeight hg.Weight,
	seed int64, numWorkers int) []hg.NodeID {

	n := int(h.InitialNumNodes())
	clusters := make([]atomic.Int32, n)
	clusterWeights := make([]atomic.Int32, n)
	for u := 0; u < n; u++ {
		clusters[u].Store(int32(u))
		clusterWeights[u].Store(h.NodeWeight(hg.NodeID(u)))
	}

	order := make([]hg.NodeID, 0, n)
	h.ForNodes(func(u hg.NodeID) { order = append(order, u) })
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

	parallel.For(len(order), numWorkers, func(i int) {
		u := order[i]
		if clusters[u].Load() != u {
			return
		}
		target := bestRatedNeighbor(h, u)
		if target == hg.InvalidNode {
			return
		}
		// Joins only point towards smaller representatives. This keeps the
		// proposal graph acyclic under concurrent CAS updates.
		rep := resolveRoot(clusters, target)
		if rep >= u {
			return
		}
		uWeight := clusterWeights[u].Load()
		joined := clusterWeights[rep].Load() + uWeight
		if maxClusterWeight > 0 && joined > maxClusterWeight {
			return
		}
		if clusters[u].CompareAndSwap(u, rep) {
			clusterWeights[rep].Add(uWeight)
		}
	})

	// Compress proposal chains to their roots.
	resolved := make([]hg.NodeID, n)
	for u := 0; u < n; u++ {
		resolved[u] = resolveRoot(clusters, hg.NodeID(u))
	}
	return resolved
}

func bestRatedNeighbor(h *hg.Hypergraph, u hg.NodeID) hg.NodeID {
	ratings := make(map[hg.NodeID]float64)
	for _, he := range h.IncidentEdges(u) {
		size := h.EdgeSize(he)
		if size < 2 || size > maxRatedEdgeSize {
			continue
		}
		rating := float64(h.EdgeWeight(he)) / float64(size-1)
		for _, pin := range h.Pins(he) {
			if pin != u && h.NodeIsEnabled(pin) && h.CommunityID(pin) == h.CommunityID(u) {
				ratings[pin] += rating
			}
		}
	}
	best := hg.InvalidNode
	bestRating := 0.0
	for v, rating := range ratings {
		if rating > bestRating || (rating == bestRating && best != hg.InvalidNode && v < best) {
			best = v
			bestRating = rating
		}
	}
	return best
}

func resolveRoot(clusters []atomic.Int32, u hg.NodeID) hg.NodeID {
	for {
		next := clusters[u].Load()
		if next == u {
			return u
		}
		u = next
	}
}
