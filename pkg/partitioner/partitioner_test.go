package partitioner

import (
	"os"
	"path/filepath"
	"testing"

	hg "github.com/gilchrisn/hypergraph-partitioning-service/pkg/hypergraph"
	"github.com/gilchrisn/hypergraph-partitioning-service/pkg/partition"
	"github.com/gilchrisn/hypergraph-partitioning-service/pkg/refinement/flow"
	"github.com/gilchrisn/hypergraph-partitioning-service/pkg/validation"
)

func buildTestHypergraph(t *testing.T) *hg.Hypergraph {
	t.Helper()
	var edges [][]hg.NodeID
	const cliques = 10
	for c := 0; c < cliques; c++ {
		base := hg.NodeID(4 * c)
		edges = append(edges,
			[]hg.NodeID{base, base + 1, base + 2, base + 3},
			[]hg.NodeID{base, base + 1},
			[]hg.NodeID{base + 1, base + 2},
			[]hg.NodeID{base + 2, base + 3},
		)
		next := hg.NodeID((4 * (c + 1)) % (4 * cliques))
		edges = append(edges, []hg.NodeID{base + 3, next})
	}
	h, err := hg.Construct(4*cliques, edges, nil, nil, true, 2)
	if err != nil {
		t.Fatalf("Construct failed: %v", err)
	}
	return h
}

func buildContext(t *testing.T, h *hg.Hypergraph, k int32, eps float64, flow string) *partition.Context {
	t.Helper()
	cfg := partition.NewConfig()
	cfg.Set("partition.k", k)
	cfg.Set("partition.epsilon", eps)
	cfg.Set("coarsening.contraction_limit", 8)
	cfg.Set("refinement.flow.algorithm", flow)
	cfg.Set("logging.level", "error")
	cfg.Set("shared_memory.num_threads", 2)
	cfg.Set("debug.verify_invariants", true)
	ctx, err := partition.NewContext(cfg, h.TotalWeight(), 1)
	if err != nil {
		t.Fatalf("NewContext failed: %v", err)
	}
	return ctx
}

func TestPartitionEndToEnd(t *testing.T) {
	for _, tc := range []struct {
		name string
		k    int32
		flow string
	}{
		{"k2_flow_off", 2, "off"},
		{"k2_matching", 2, "matching"},
		{"k4_optimistic", 4, "optimistic"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			h := buildTestHypergraph(t)
			ctx := buildContext(t, h, tc.k, 0.25, tc.flow)
			result, err := New(ctx).Partition(h)
			if err != nil {
				t.Fatalf("Partition failed: %v", err)
			}

			phg := result.Partition
			h.ForNodes(func(u hg.NodeID) {
				p := phg.PartID(u)
				if p < 0 || p >= tc.k {
					t.Fatalf("vertex %d assigned to invalid block %d", u, p)
				}
			})
			if err := validation.VerifyPartitionedHypergraph(phg); err != nil {
				t.Fatalf("final partition invalid: %v", err)
			}

			delta := 1.0 / float64(ctx.PerfectBalancePartWeights[0])
			if result.Metrics.Imbalance > ctx.Epsilon+delta {
				t.Errorf("imbalance %f exceeds %f", result.Metrics.Imbalance, ctx.Epsilon+delta)
			}
			if result.Metrics.Cut > result.Metrics.Km1 {
				t.Errorf("cut %d > km1 %d", result.Metrics.Cut, result.Metrics.Km1)
			}
		})
	}
}

func TestPartitionWithCommunityDetection(t *testing.T) {
	h := buildTestHypergraph(t)
	ctx := buildContext(t, h, 2, 0.25, "off")
	ctx.Config.Set("preprocessing.use_community_detection", true)
	result, err := New(ctx).Partition(h)
	if err != nil {
		t.Fatalf("Partition failed: %v", err)
	}
	if err := validation.VerifyPartitionedHypergraph(result.Partition); err != nil {
		t.Fatalf("final partition invalid: %v", err)
	}
}

func TestPartitionWritesMoveJournal(t *testing.T) {
	h := buildTestHypergraph(t)
	ctx := buildContext(t, h, 2, 0.25, "off")
	journal := filepath.Join(t.TempDir(), "moves.jsonl")
	ctx.Config.Set("analysis.track_moves", true)
	ctx.Config.Set("analysis.output_file", journal)

	if _, err := New(ctx).Partition(h); err != nil {
		t.Fatalf("Partition failed: %v", err)
	}
	if _, err := os.Stat(journal); err != nil {
		t.Fatalf("move journal not written: %v", err)
	}
}

// TestFlowRefinementOnIBM01 exercises the k=2 flow scenario on the ibm01
// benchmark when it is present as test_instances/ibm01.hgr at the
// repository root.
func TestFlowRefinementOnIBM01(t *testing.T) {
	path := filepath.Join("..", "..", "test_instances", "ibm01.hgr")
	if _, err := os.Stat(path); err != nil {
		t.Skipf("benchmark instance %s not available", path)
	}
	h, err := hg.BuildFromFile(path, true, 4)
	if err != nil {
		t.Fatalf("BuildFromFile failed: %v", err)
	}
	cfg := partition.NewConfig()
	cfg.Set("partition.k", 2)
	cfg.Set("partition.epsilon", 0.25)
	cfg.Set("refinement.flow.algorithm", "matching")
	cfg.Set("refinement.flow.max_rounds", 1)
	cfg.Set("logging.level", "error")
	ctx, err := partition.NewContext(cfg, h.TotalWeight(), 1)
	if err != nil {
		t.Fatalf("NewContext failed: %v", err)
	}

	phg := partition.NewPartitionedHypergraph(h, 2)
	if err := (partition.BFSInitialPartitioner{}).InitialPartition(phg, ctx); err != nil {
		t.Fatalf("InitialPartition failed: %v", err)
	}
	before := partition.ComputeMetrics(phg, ctx)

	refiner := flow.NewRefiner(ctx)
	refiner.Initialize(phg)
	best := before
	if _, err := refiner.Refine(phg, nil, &best, 0); err != nil {
		t.Fatalf("Refine failed: %v", err)
	}
	after := partition.ComputeMetrics(phg, ctx)
	if after.Imbalance > 0.25+0.05 {
		t.Errorf("imbalance %f exceeds 0.30", after.Imbalance)
	}
	if after.Objective(ctx.Objective) > before.Objective(ctx.Objective) {
		t.Errorf("objective worsened: %d -> %d",
			before.Objective(ctx.Objective), after.Objective(ctx.Objective))
	}
}
