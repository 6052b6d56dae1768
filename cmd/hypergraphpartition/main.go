package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	hg "github.com/gilchrisn/hypergraph-partitioning-service/pkg/hypergraph"
	"github.com/gilchrisn/hypergraph-partitioning-service/pkg/partition"
	"github.com/gilchrisn/hypergraph-partitioning-service/pkg/partitioner"
)

const (
	exitInvalidInput = 1
	exitInfeasible   = 2
	exitInvariant    = 3
)

func main() {
	var (
		configFile   string
		k            int32
		epsilon      float64
		objective    string
		seed         int64
		numThreads   int
		flowVariant  string
		outputFile   string
		stable       bool
		verify       bool
		useNaturCuts bool
	)

	root := &cobra.Command{
		Use:   "hypergraphpartition <hypergraph.hgr>",
		Short: "Shared-memory parallel multilevel hypergraph partitioner",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			cfg := partition.NewConfig()
			if configFile != "" {
				if err := cfg.LoadFromFile(configFile); err != nil {
					return fmt.Errorf("%w: loading config %s: %v", hg.ErrInvalidInput, configFile, err)
				}
			}
			cfg.Set("partition.k", k)
			cfg.Set("partition.epsilon", epsilon)
			cfg.Set("partition.objective", objective)
			cfg.Set("partition.seed", seed)
			if numThreads > 0 {
				cfg.Set("shared_memory.num_threads", numThreads)
			}
			cfg.Set("refinement.flow.algorithm", flowVariant)
			cfg.Set("debug.verify_invariants", verify)
			cfg.Set("preprocessing.use_community_detection", useNaturCuts)

			hypergraph, err := hg.BuildFromFile(args[0], stable, cfg.NumThreads())
			if err != nil {
				return err
			}

			maxNodeWeight := hg.Weight(0)
			hypergraph.ForNodes(func(u hg.NodeID) {
				if w := hypergraph.NodeWeight(u); w > maxNodeWeight {
					maxNodeWeight = w
				}
			})
			ctx, err := partition.NewContext(cfg, hypergraph.TotalWeight(), maxNodeWeight)
			if err != nil {
				return err
			}

			result, err := partitioner.New(ctx).Partition(hypergraph)
			if err != nil {
				return err
			}

			fmt.Printf("cut       = %d\n", result.Metrics.Cut)
			fmt.Printf("km1       = %d\n", result.Metrics.Km1)
			fmt.Printf("imbalance = %.4f\n", result.Metrics.Imbalance)
			fmt.Printf("runtime   = %s\n", result.Runtime)

			if outputFile != "" {
				if err := hg.WritePartitionFile(result.Partition.ExtractPartIDs(), outputFile); err != nil {
					return err
				}
			}
			return nil
		},
	}

	root.Flags().StringVar(&configFile, "config", "", "configuration file")
	root.Flags().Int32Var(&k, "k", 2, "number of blocks")
	root.Flags().Float64Var(&epsilon, "epsilon", 0.03, "imbalance tolerance")
	root.Flags().StringVar(&objective, "objective", "km1", "objective: cut or km1")
	root.Flags().Int64Var(&seed, "seed", 42, "random seed")
	root.Flags().IntVar(&numThreads, "threads", 0, "worker threads (0 = all CPUs)")
	root.Flags().StringVar(&flowVariant, "flow", "matching", "flow scheduler: off, matching or optimistic")
	root.Flags().StringVarP(&outputFile, "output", "o", "", "partition output file")
	root.Flags().BoolVar(&stable, "stable-construction", false, "deterministic incident-net ordering")
	root.Flags().BoolVar(&verify, "verify", false, "verify invariants after each phase")
	root.Flags().BoolVar(&useNaturCuts, "natural-cuts", false, "natural-cut community detection preprocessing")

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		switch {
		case errors.Is(err, hg.ErrInfeasible):
			os.Exit(exitInfeasible)
		case errors.Is(err, hg.ErrInvariant):
			os.Exit(exitInvariant)
		default:
			os.Exit(exitInvalidInput)
		}
	}
}
