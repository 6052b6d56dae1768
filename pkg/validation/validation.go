// Package validation provides debug-only invariant checks over hypergraphs
// and partitions. The checks are expensive; they are enabled by the
// debug.verify_invariants option and in tests.
package validation

import (
	"fmt"

	hg "github.com/gilchrisn/hypergraph-partitioning-service/pkg/hypergraph"
	"github.com/gilchrisn/hypergraph-partitioning-service/pkg/partition"
)

// VerifyHypergraph checks the CSR cross-reference invariants: degree sums
// match pin sums, and every pin of an edge lists that edge exactly once.
func VerifyHypergraph(h *hg.Hypergraph) error {
	var degreeSum, pinSum int64
	h.ForNodes(func(u hg.NodeID) { degreeSum += int64(h.NodeDegree(u)) })
	h.ForEdges(func(e hg.EdgeID) { pinSum += int64(h.EdgeSize(e)) })
	if degreeSum != pinSum {
		return fmt.Errorf("%w: degree sum %d != pin sum %d", hg.ErrInvariant, degreeSum, pinSum)
	}

	var err error
	h.ForEdges(func(e hg.EdgeID) {
		if err != nil {
			return
		}
		for _, pin := range h.Pins(e) {
			occurrences := 0
			for _, he := range h.IncidentEdges(pin) {
				if he == e {
					occurrences++
				}
			}
			if occurrences != 1 {
				err = fmt.Errorf("%w: vertex %d lists edge %d %d times",
					hg.ErrInvariant, pin, e, occurrences)
				return
			}
		}
	})
	return err
}

// VerifyPartitionedHypergraph checks that the incrementally maintained pin
// counts and connectivity sets match the actual block assignment.
func VerifyPartitionedHypergraph(phg *partition.PartitionedHypergraph) error {
	h := phg.Hypergraph()
	var err error
	h.ForEdges(func(e hg.EdgeID) {
		if err != nil {
			return
		}
		counts := make(map[hg.PartID]int32)
		assigned := int32(0)
		for _, pin := range h.Pins(e) {
			if p := phg.PartID(pin); p != hg.InvalidPartition {
				counts[p]++
				assigned++
			}
		}
		var total, connectivity int32
		for b := int32(0); b < phg.K(); b++ {
			pcip := phg.PinCountInPart(e, hg.PartID(b))
			if pcip != counts[hg.PartID(b)] {
				err = fmt.Errorf("%w: edge %d block %d has pin count %d, expected %d",
					hg.ErrInvariant, e, b, pcip, counts[hg.PartID(b)])
				return
			}
			total += pcip
			if pcip > 0 {
				connectivity++
			}
		}
		if total != assigned {
			err = fmt.Errorf("%w: edge %d pin counts sum to %d, %d pins assigned",
				hg.ErrInvariant, e, total, assigned)
			return
		}
		if c := phg.Connectivity(e); c != connectivity {
			err = fmt.Errorf("%w: edge %d connectivity %d, expected %d",
				hg.ErrInvariant, e, c, connectivity)
		}
	})
	return err
}

// VerifyClustering checks that a densified clustering maps enabled vertices
// onto [0, numCoarseNodes) with every coarse ID hit at least once.
func VerifyClustering(h *hg.Hypergraph, clusters []hg.NodeID, numCoarseNodes int32) error {
	seen := make([]bool, numCoarseNodes)
	var err error
	h.ForNodes(func(u hg.NodeID) {
		if err != nil {
			return
		}
		c := clusters[u]
		if c < 0 || c >= numCoarseNodes {
			err = fmt.Errorf("%w: vertex %d has coarse ID %d outside [0, %d)",
				hg.ErrInvariant, u, c, numCoarseNodes)
			return
		}
		seen[c] = true
	})
	if err != nil {
		return err
	}
	for c, ok := range seen {
		if !ok {
			return fmt.Errorf("%w: coarse ID %d has no fine vertex", hg.ErrInvariant, c)
		}
	}
	return nil
}
