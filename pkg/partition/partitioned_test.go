package partition

import (
	"math"
	"testing"

	hg "github.com/gilchrisn/hypergraph-partitioning-service/pkg/hypergraph"
)

// testHypergraph is the 7-vertex, 4-net fixture used across the partition
// tests.
func testHypergraph(t *testing.T) *hg.Hypergraph {
	t.Helper()
	edges := [][]hg.NodeID{{0, 2}, {0, 1, 3, 4}, {3, 4, 6}, {2, 5, 6}}
	h, err := hg.Construct(7, edges, nil, nil, true, 1)
	if err != nil {
		t.Fatalf("Construct failed: %v", err)
	}
	return h
}

func testContext(t *testing.T, h *hg.Hypergraph, k int32, eps float64) *Context {
	t.Helper()
	cfg := NewConfig()
	cfg.Set("partition.k", k)
	cfg.Set("partition.epsilon", eps)
	cfg.Set("logging.level", "error")
	ctx, err := NewContext(cfg, h.TotalWeight(), 1)
	if err != nil {
		t.Fatalf("NewContext failed: %v", err)
	}
	return ctx
}

func bisect(t *testing.T, h *hg.Hypergraph) *PartitionedHypergraph {
	t.Helper()
	phg := NewPartitionedHypergraph(h, 2)
	for u := hg.NodeID(0); u < h.InitialNumNodes(); u++ {
		phg.SetNodePart(u, hg.PartID(int(u)%2))
	}
	return phg
}

func verifyPinCounts(t *testing.T, phg *PartitionedHypergraph) {
	t.Helper()
	h := phg.Hypergraph()
	h.ForEdges(func(e hg.EdgeID) {
		var total, connectivity int32
		for b := int32(0); b < phg.K(); b++ {
			pcip := phg.PinCountInPart(e, hg.PartID(b))
			var expected int32
			for _, pin := range h.Pins(e) {
				if phg.PartID(pin) == hg.PartID(b) {
					expected++
				}
			}
			if pcip != expected {
				t.Fatalf("edge %d block %d: pinCount %d, want %d", e, b, pcip, expected)
			}
			total += pcip
			if pcip > 0 {
				connectivity++
			}
		}
		if total != h.EdgeSize(e) {
			t.Fatalf("edge %d: pin counts sum %d != size %d", e, total, h.EdgeSize(e))
		}
		if c := phg.Connectivity(e); c != connectivity {
			t.Fatalf("edge %d: connectivity %d, want %d", e, c, connectivity)
		}
	})
}

func TestSetNodePartMaintainsPinCounts(t *testing.T) {
	phg := bisect(t, testHypergraph(t))
	verifyPinCounts(t, phg)
	if phg.PartWeight(0) != 4 || phg.PartWeight(1) != 3 {
		t.Fatalf("part weights = %d, %d; want 4, 3", phg.PartWeight(0), phg.PartWeight(1))
	}
}

func TestSetNodePartSingleWinner(t *testing.T) {
	h := testHypergraph(t)
	phg := NewPartitionedHypergraph(h, 2)
	if !phg.SetNodePart(0, 0) {
		t.Fatal("first SetNodePart failed")
	}
	if phg.SetNodePart(0, 1) {
		t.Fatal("second SetNodePart on same vertex succeeded")
	}
	if phg.PartID(0) != 0 {
		t.Fatalf("part = %d, want 0", phg.PartID(0))
	}
}

func TestChangeNodePartUpdatesBookkeeping(t *testing.T) {
	phg := bisect(t, testHypergraph(t))
	deltaCalls := 0
	moved := phg.ChangeNodePart(1, 1, 0, math.MaxInt64,
		func(he hg.EdgeID, w hg.Weight, size, pinsFrom, pinsTo int32) { deltaCalls++ })
	if !moved {
		t.Fatal("ChangeNodePart failed")
	}
	if deltaCalls != int(phg.Hypergraph().NodeDegree(1)) {
		t.Fatalf("delta hook called %d times, want %d", deltaCalls, phg.Hypergraph().NodeDegree(1))
	}
	verifyPinCounts(t, phg)
}

func TestChangeNodePartRejectsOverflow(t *testing.T) {
	phg := bisect(t, testHypergraph(t))
	weightBefore := phg.PartWeight(0)
	if phg.ChangeNodePart(1, 1, 0, weightBefore, nil) {
		t.Fatal("move should be rejected when the target block would overflow")
	}
	if phg.PartID(1) != 1 {
		t.Fatal("rejected move changed the vertex's block")
	}
	if phg.PartWeight(0) != weightBefore {
		t.Fatal("rejected move leaked weight into the target block")
	}
	verifyPinCounts(t, phg)
}

func TestChangeNodePartStaleFrom(t *testing.T) {
	phg := bisect(t, testHypergraph(t))
	if phg.ChangeNodePart(1, 0, 1, math.MaxInt64, nil) {
		t.Fatal("move with wrong source block succeeded")
	}
}

func TestMetricsRelations(t *testing.T) {
	h := testHypergraph(t)
	phg := bisect(t, h)
	cut := Cut(phg)
	km1 := Km1(phg)
	if cut > km1 {
		t.Fatalf("cut %d > km1 %d", cut, km1)
	}
	if km1 > cut*int64(h.MaxEdgeSize()) {
		t.Fatalf("km1 %d > cut*maxEdgeSize %d", km1, cut*int64(h.MaxEdgeSize()))
	}
	if soed := SOED(phg); soed != cut+km1 {
		t.Fatalf("soed %d != cut+km1 %d", soed, cut+km1)
	}
}

func TestImbalance(t *testing.T) {
	h := testHypergraph(t)
	ctx := testContext(t, h, 2, 0.0)
	phg := bisect(t, h)
	// Weights 4 and 3 against perfect balance ceil(7/2)=4.
	if imb := Imbalance(phg, ctx); imb != 0.0 {
		t.Fatalf("imbalance = %f, want 0", imb)
	}
}

func TestGainCacheMatchesRecompute(t *testing.T) {
	h := testHypergraph(t)
	phg := bisect(t, h)
	gc := NewGainCache(phg, ObjectiveKm1)
	phg.AttachGainCache(gc)
	gc.Initialize(1)

	check := func() {
		t.Helper()
		h.ForNodes(func(u hg.NodeID) {
			from := phg.PartID(u)
			for b := int32(0); b < phg.K(); b++ {
				to := hg.PartID(b)
				if to == from {
					continue
				}
				if cached, live := gc.Gain(u, to), gc.RecomputeGain(u, to); cached != live {
					t.Errorf("gain(%d, %d): cached %d, live %d", u, to, cached, live)
				}
			}
		})
	}
	check()

	// The delta hook must keep the cache exact under sequential moves.
	if !phg.ChangeNodePart(3, 1, 0, math.MaxInt64, nil) {
		t.Fatal("move failed")
	}
	check()
	if !phg.ChangeNodePart(6, 0, 1, math.MaxInt64, nil) {
		t.Fatal("move failed")
	}
	check()
}

func TestGainCacheBestGain(t *testing.T) {
	h := testHypergraph(t)
	phg := bisect(t, h)
	gc := NewGainCache(phg, ObjectiveKm1)
	phg.AttachGainCache(gc)
	gc.Initialize(1)

	h.ForNodes(func(u hg.NodeID) {
		to, gain := gc.BestGain(u)
		if to == phg.PartID(u) {
			t.Fatalf("BestGain(%d) returned the current block", u)
		}
		if gain != gc.RecomputeGain(u, to) {
			t.Fatalf("BestGain(%d) = %d disagrees with recompute %d", u, gain, gc.RecomputeGain(u, to))
		}
	})
}

func TestGainCacheCutObjective(t *testing.T) {
	h := testHypergraph(t)
	phg := bisect(t, h)
	gc := NewGainCache(phg, ObjectiveCut)
	phg.AttachGainCache(gc)
	gc.Initialize(1)

	// The reported gain must equal the actual edge-cut change of the move.
	h.ForNodes(func(u hg.NodeID) {
		from := phg.PartID(u)
		for b := int32(0); b < phg.K(); b++ {
			to := hg.PartID(b)
			if to == from {
				continue
			}
			gain := gc.RecomputeGain(u, to)
			before := Cut(phg)
			if !phg.ChangeNodePart(u, from, to, math.MaxInt64, nil) {
				t.Fatalf("trial move of %d failed", u)
			}
			after := Cut(phg)
			if !phg.ChangeNodePart(u, to, from, math.MaxInt64, nil) {
				t.Fatalf("reverting trial move of %d failed", u)
			}
			if int64(gain) != before-after {
				t.Errorf("cut gain(%d, %d) = %d, actual cut change %d", u, to, gain, before-after)
			}
		}
	})

	h.ForNodes(func(u hg.NodeID) {
		to, gain := gc.BestGain(u)
		if to == phg.PartID(u) {
			t.Fatalf("BestGain(%d) returned the current block", u)
		}
		if gain != gc.RecomputeGain(u, to) {
			t.Fatalf("BestGain(%d) = %d disagrees with recompute %d", u, gain, gc.RecomputeGain(u, to))
		}
	})
}

func TestBFSInitialPartitionerRespectsLimits(t *testing.T) {
	h := testHypergraph(t)
	for _, k := range []int32{2, 3} {
		ctx := testContext(t, h, k, 0.5)
		phg := NewPartitionedHypergraph(h, k)
		if err := (BFSInitialPartitioner{}).InitialPartition(phg, ctx); err != nil {
			t.Fatalf("k=%d: InitialPartition failed: %v", k, err)
		}
		h.ForNodes(func(u hg.NodeID) {
			if phg.PartID(u) == hg.InvalidPartition {
				t.Fatalf("k=%d: vertex %d unassigned", k, u)
			}
		})
		for b := int32(0); b < k; b++ {
			if phg.PartWeight(hg.PartID(b)) > ctx.MaxPartWeights[b] {
				t.Fatalf("k=%d: block %d overweight: %d > %d",
					k, b, phg.PartWeight(hg.PartID(b)), ctx.MaxPartWeights[b])
			}
		}
		verifyPinCounts(t, phg)
	}
}

func TestContextValidation(t *testing.T) {
	h := testHypergraph(t)
	cfg := NewConfig()
	cfg.Set("partition.k", 1)
	if _, err := NewContext(cfg, h.TotalWeight(), 1); err == nil {
		t.Fatal("k=1 should be rejected")
	}
	cfg = NewConfig()
	cfg.Set("partition.epsilon", -0.5)
	if _, err := NewContext(cfg, h.TotalWeight(), 1); err == nil {
		t.Fatal("negative epsilon should be rejected")
	}
	cfg = NewConfig()
	cfg.Set("partition.k", 4)
	cfg.Set("partition.epsilon", 0.0)
	if _, err := NewContext(cfg, 4, 3); err == nil {
		t.Fatal("max node weight above the block limit should be infeasible")
	}
}
