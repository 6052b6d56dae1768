package hypergraph

import (
	"fmt"
	"reflect"
	"sort"
	"testing"
)

func canonicalEdgeSet(h *Hypergraph) [][]NodeID {
	var out [][]NodeID
	h.ForEdges(func(e EdgeID) {
		pins := append([]NodeID(nil), h.Pins(e)...)
		sort.Slice(pins, func(a, b int) bool { return pins[a] < pins[b] })
		out = append(out, pins)
	})
	sort.Slice(out, func(a, b int) bool {
		x, y := out[a], out[b]
		for i := 0; i < len(x) && i < len(y); i++ {
			if x[i] != y[i] {
				return x[i] < y[i]
			}
		}
		return len(x) < len(y)
	})
	return out
}

func TestContractionIdentityClustering(t *testing.T) {
	h := toyHypergraph(t, true)
	clusters := make([]NodeID, h.InitialNumNodes())
	for u := range clusters {
		clusters[u] = NodeID(u)
	}
	coarse, err := h.Contract(clusters, 2)
	if err != nil {
		t.Fatalf("Contract failed: %v", err)
	}
	if coarse.InitialNumNodes() != h.InitialNumNodes() ||
		coarse.InitialNumEdges() != h.InitialNumEdges() ||
		coarse.InitialNumPins() != h.InitialNumPins() {
		t.Fatalf("identity contraction changed stats: %d/%d/%d vs %d/%d/%d",
			coarse.InitialNumNodes(), coarse.InitialNumEdges(), coarse.InitialNumPins(),
			h.InitialNumNodes(), h.InitialNumEdges(), h.InitialNumPins())
	}
	if !reflect.DeepEqual(canonicalEdgeSet(coarse), canonicalEdgeSet(h)) {
		t.Fatalf("identity contraction changed edges:\n%v\nvs\n%v",
			canonicalEdgeSet(coarse), canonicalEdgeSet(h))
	}
	if coarse.TotalWeight() != h.TotalWeight() {
		t.Errorf("totalWeight changed: %d vs %d", coarse.TotalWeight(), h.TotalWeight())
	}
}

func TestContractionMergesParallelNets(t *testing.T) {
	// Contracting {2,3} and {4,5} makes the two middle nets identical; their
	// weights 3 and 5 must merge into one net of weight 8.
	edges := [][]NodeID{{0, 1}, {2, 4}, {3, 5}, {0, 5}}
	weights := []Weight{1, 3, 5, 2}
	h, err := Construct(6, edges, weights, nil, true, 1)
	if err != nil {
		t.Fatalf("Construct failed: %v", err)
	}
	clusters := []NodeID{0, 1, 2, 2, 4, 4}
	coarse, err := h.Contract(clusters, 1)
	if err != nil {
		t.Fatalf("Contract failed: %v", err)
	}

	if coarse.CurrentNumEdges() != 3 {
		t.Fatalf("coarse edges = %d, want 3 (parallel nets merged)", coarse.CurrentNumEdges())
	}
	foundMerged := false
	coarse.ForEdges(func(e EdgeID) {
		if coarse.EdgeSize(e) == 2 && coarse.EdgeWeight(e) == 8 {
			foundMerged = true
		}
	})
	if !foundMerged {
		t.Fatal("no surviving net with aggregated weight 8")
	}
}

func TestContractionDropsSinglePinNets(t *testing.T) {
	edges := [][]NodeID{{0, 1}, {2, 3}}
	h, err := Construct(4, edges, nil, nil, true, 1)
	if err != nil {
		t.Fatalf("Construct failed: %v", err)
	}
	// Merging 0 and 1 shrinks the first net to a single pin.
	clusters := []NodeID{0, 0, 2, 3}
	coarse, err := h.Contract(clusters, 1)
	if err != nil {
		t.Fatalf("Contract failed: %v", err)
	}
	if coarse.InitialNumNodes() != 3 {
		t.Fatalf("coarse nodes = %d, want 3", coarse.InitialNumNodes())
	}
	coarse.ForEdges(func(e EdgeID) {
		if coarse.EdgeSize(e) < 2 {
			t.Errorf("coarse edge %d has size %d", e, coarse.EdgeSize(e))
		}
	})
	if coarse.CurrentNumEdges() != 1 {
		t.Fatalf("coarse edges = %d, want 1", coarse.CurrentNumEdges())
	}
}

func TestContractionInvariants(t *testing.T) {
	h := toyHypergraph(t, true)
	clusters := []NodeID{0, 0, 2, 3, 3, 5, 5}
	coarse, err := h.Contract(clusters, 2)
	if err != nil {
		t.Fatalf("Contract failed: %v", err)
	}

	if coarse.TotalWeight() != h.TotalWeight() {
		t.Errorf("total weight changed across contraction: %d vs %d",
			coarse.TotalWeight(), h.TotalWeight())
	}

	var coarseWeightSum int64
	coarse.ForNodes(func(u NodeID) { coarseWeightSum += int64(coarse.NodeWeight(u)) })
	if coarseWeightSum != h.TotalWeight() {
		t.Errorf("coarse vertex weights sum to %d, want %d", coarseWeightSum, h.TotalWeight())
	}

	seen := make(map[string]bool)
	coarse.ForEdges(func(e EdgeID) {
		if coarse.EdgeSize(e) < 2 {
			t.Errorf("coarse edge %d has size %d", e, coarse.EdgeSize(e))
		}
		pins := append([]NodeID(nil), coarse.Pins(e)...)
		sort.Slice(pins, func(a, b int) bool { return pins[a] < pins[b] })
		key := fmt.Sprint(pins)
		if seen[key] {
			t.Errorf("duplicate coarse pin set %v", pins)
		}
		seen[key] = true
	})

	// Clustering was densified in place.
	for u, c := range clusters {
		if c < 0 || c >= coarse.InitialNumNodes() {
			t.Errorf("clusters[%d] = %d not densified", u, c)
		}
	}
}

func TestContractionInheritsCommunities(t *testing.T) {
	h := toyHypergraph(t, true)
	h.ForNodes(func(u NodeID) { h.SetCommunityID(u, int32(u)%2) })
	clusters := []NodeID{0, 0, 2, 2, 4, 4, 6}
	coarse, err := h.Contract(clusters, 1)
	if err != nil {
		t.Fatalf("Contract failed: %v", err)
	}
	for u := NodeID(0); u < 7; u++ {
		cu := clusters[u]
		if got := coarse.CommunityID(cu); got != 0 && got != 1 {
			t.Errorf("coarse community %d out of range", got)
		}
	}
}
