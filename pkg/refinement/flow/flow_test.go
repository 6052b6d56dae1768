package flow

import (
	"testing"

	hg "github.com/gilchrisn/hypergraph-partitioning-service/pkg/hypergraph"
	"github.com/gilchrisn/hypergraph-partitioning-service/pkg/partition"
)

func testSetup(t *testing.T, k int32, eps float64, algorithm string) (*hg.Hypergraph, *partition.Context) {
	t.Helper()
	edges := [][]hg.NodeID{
		{0, 1}, {0, 2}, {1, 2},
		{3, 4}, {3, 5}, {4, 5},
		{2, 3}, {2, 3},
	}
	h, err := hg.Construct(6, edges, nil, nil, true, 1)
	if err != nil {
		t.Fatalf("Construct failed: %v", err)
	}
	cfg := partition.NewConfig()
	cfg.Set("partition.k", k)
	cfg.Set("partition.epsilon", eps)
	cfg.Set("refinement.flow.algorithm", algorithm)
	cfg.Set("logging.level", "error")
	cfg.Set("shared_memory.num_threads", 2)
	ctx, err := partition.NewContext(cfg, h.TotalWeight(), 1)
	if err != nil {
		t.Fatalf("NewContext failed: %v", err)
	}
	return h, ctx
}

func TestDinicSimplePath(t *testing.T) {
	// source -> a -> b -> target with bottleneck 3.
	net := NewNetwork(4)
	net.AddArc(0, 2, 5)
	net.AddArc(2, 3, 3)
	net.AddArc(3, 1, 5)
	d := NewDinic(net, 0, 1)
	if flow := d.MaxFlow(); flow != 3 {
		t.Fatalf("max flow = %d, want 3", flow)
	}
	side := d.MinCutSourceSide()
	if !side[0] || !side[2] || side[3] || side[1] {
		t.Fatalf("min cut side = %v, want source and a only", side)
	}
}

func TestDinicParallelPaths(t *testing.T) {
	net := NewNetwork(4)
	net.AddArc(0, 2, 2)
	net.AddArc(0, 3, 4)
	net.AddArc(2, 1, 3)
	net.AddArc(3, 1, 3)
	d := NewDinic(net, 0, 1)
	if flow := d.MaxFlow(); flow != 5 {
		t.Fatalf("max flow = %d, want 5", flow)
	}
}

func TestQuotientGraphPairsAndCutEdges(t *testing.T) {
	h, _ := testSetup(t, 2, 1.0, "matching")
	phg := partition.NewPartitionedHypergraph(h, 2)
	for u := hg.NodeID(0); u < 6; u++ {
		block := hg.PartID(0)
		if u >= 3 {
			block = 1
		}
		phg.SetNodePart(u, block)
	}
	q := NewQuotientGraph(phg)

	pairs := q.Pairs()
	if len(pairs) != 1 || pairs[0] != (BlockPair{B0: 0, B1: 1}) {
		t.Fatalf("pairs = %v, want [{0 1}]", pairs)
	}
	cut := q.BlockPairCutHyperedges(0, 1)
	// The two parallel bridge nets {2,3} are the only cut edges.
	if len(cut) != 2 {
		t.Fatalf("cut edges = %v, want the two bridge nets", cut)
	}
	for _, he := range cut {
		if phg.PinCountInPart(he, 0) == 0 || phg.PinCountInPart(he, 1) == 0 {
			t.Fatalf("edge %d reported cut but is not", he)
		}
	}
	if q.Degree(0) != 1 || q.Degree(1) != 1 {
		t.Fatalf("quotient degrees = %d, %d; want 1, 1", q.Degree(0), q.Degree(1))
	}
}

func TestQuotientGraphCompactsStaleEntries(t *testing.T) {
	h, _ := testSetup(t, 2, 1.0, "matching")
	phg := partition.NewPartitionedHypergraph(h, 2)
	for u := hg.NodeID(0); u < 6; u++ {
		block := hg.PartID(0)
		if u >= 3 {
			block = 1
		}
		phg.SetNodePart(u, block)
	}
	q := NewQuotientGraph(phg)

	// Moving vertex 3 to block 0 makes the bridge nets interior.
	if !phg.ChangeNodePart(3, 1, 0, 1<<40, nil) {
		t.Fatal("move failed")
	}
	cut := q.BlockPairCutHyperedges(0, 1)
	for _, he := range cut {
		if phg.PinCountInPart(he, 0) == 0 || phg.PinCountInPart(he, 1) == 0 {
			t.Fatalf("stale edge %d survived compaction", he)
		}
	}
}

func TestBlockWeightReservation(t *testing.T) {
	h, _ := testSetup(t, 2, 1.0, "matching")
	phg := partition.NewPartitionedHypergraph(h, 2)
	for u := hg.NodeID(0); u < 6; u++ {
		block := hg.PartID(0)
		if u >= 3 {
			block = 1
		}
		phg.SetNodePart(u, block)
	}

	r := NewBlockWeightReservation(2)
	r.Init(phg)
	if w := r.NotAcquiredWeight(0, 1); w != 3 {
		t.Fatalf("not-acquired weight = %d, want 3", w)
	}
	r.Acquire(0, 1, 2)
	if w := r.NotAcquiredWeight(0, 1); w != 1 {
		t.Fatalf("after acquire: not-acquired weight = %d, want 1", w)
	}
	a0, a1 := r.AcquiredPairWeight(0, 1)
	if a0 != 2 || a1 != 0 {
		t.Fatalf("acquired pair = %d, %d; want 2, 0", a0, a1)
	}
	r.Release(0, 1, 2)
	if w := r.NotAcquiredWeight(0, 1); w != 3 {
		t.Fatalf("after release: not-acquired weight = %d, want 3", w)
	}
}

func TestMatchingSchedulerLocksBlocks(t *testing.T) {
	s := newMatchingScheduler(4)
	pairs := []BlockPair{{0, 1}, {0, 2}, {2, 3}}
	initial := s.startRound(pairs, 4)
	// {0,1} and {2,3} are block-disjoint; {0,2} must wait.
	if len(initial) != 2 {
		t.Fatalf("initial batch = %v, want two disjoint pairs", initial)
	}
	next := s.finishPair(initial[0])
	if len(next)+len(s.roundPairs) == 0 {
		t.Fatal("finishing a pair should eventually release the deferred pair")
	}
}

func TestOptimisticSchedulerNodeReservation(t *testing.T) {
	s := newOptimisticScheduler(4, 10, 2)
	pair := BlockPair{B0: 1, B1: 2}
	other := BlockPair{B0: 0, B1: 3}
	if !s.tryAcquireNode(7, pair) {
		t.Fatal("acquire on free vertex failed")
	}
	if s.tryAcquireNode(7, other) {
		t.Fatal("overlapping search acquired a reserved vertex")
	}
	if !s.tryAcquireNode(7, pair) {
		t.Fatal("same search must be able to re-acquire its vertex")
	}
	s.releaseNode(7)
	if !s.tryAcquireNode(7, other) {
		t.Fatal("acquire after release failed")
	}
}

func TestOptimisticSchedulerPicksMostIndependent(t *testing.T) {
	s := newOptimisticScheduler(4, 10, 2)
	pairs := []BlockPair{{0, 1}, {2, 3}, {0, 2}}
	initial := s.startRound(pairs, 2)
	if len(initial) != 2 {
		t.Fatalf("initial = %v, want 2 pairs", initial)
	}
	// Both picks must be block-disjoint: tasks_on_block drives the choice.
	if initial[0].B0 == initial[1].B0 || initial[0].B1 == initial[1].B1 {
		t.Fatalf("initial pairs %v share blocks despite independent choices", initial)
	}
}

func flowRefineOnce(t *testing.T, algorithm string) {
	t.Helper()
	h, ctx := testSetup(t, 2, 1.0, algorithm)
	phg := partition.NewPartitionedHypergraph(h, 2)
	// Bad split: both triangles are torn apart.
	blocks := []hg.PartID{0, 0, 1, 1, 0, 1}
	for u, b := range blocks {
		phg.SetNodePart(hg.NodeID(u), b)
	}

	before := partition.ComputeMetrics(phg, ctx)
	refiner := NewRefiner(ctx)
	refiner.Initialize(phg)
	best := before
	if _, err := refiner.Refine(phg, nil, &best, 0); err != nil {
		t.Fatalf("Refine failed: %v", err)
	}
	after := partition.ComputeMetrics(phg, ctx)
	if after.Km1 > before.Km1 {
		t.Fatalf("%s: flow refinement worsened km1: %d -> %d", algorithm, before.Km1, after.Km1)
	}
	if after.Imbalance > ctx.Epsilon+1e-9 {
		t.Fatalf("%s: imbalance %f exceeds epsilon %f", algorithm, after.Imbalance, ctx.Epsilon)
	}
}

func TestFlowRefinementNeverWorsens(t *testing.T) {
	for _, algorithm := range []string{"matching", "optimistic"} {
		t.Run(algorithm, func(t *testing.T) { flowRefineOnce(t, algorithm) })
	}
}
