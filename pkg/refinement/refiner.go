package refinement

import (
	"time"

	hg "github.com/gilchrisn/hypergraph-partitioning-service/pkg/hypergraph"
	"github.com/gilchrisn/hypergraph-partitioning-service/pkg/partition"
)

// ProblemStats describes the size of a refinement problem grown so far, used
// by refiners to bound their instance construction.
type ProblemStats struct {
	NumNodes int32
	NumPins  int32
}

// Refiner is the capability set every refinement algorithm implements.
// Concrete implementations are chosen by configuration; hot-path calls are
// made on the concrete type, phase boundaries dispatch through the interface.
type Refiner interface {
	// Initialize prepares per-hypergraph state (gain caches, scratch).
	Initialize(phg *partition.PartitionedHypergraph)

	// Refine improves the partition starting from the given nodes. Passing
	// no nodes refines all border vertices. best is updated in place when an
	// improvement is found; the return value reports whether one was.
	Refine(phg *partition.PartitionedHypergraph, refinementNodes []hg.NodeID,
		best *partition.Metrics, timeLimit time.Duration) (bool, error)

	// MaxBlocksPerSearch returns how many blocks one search may touch.
	MaxBlocksPerSearch() int32

	// SetNumThreads bounds the worker count for subsequent Refine calls.
	SetNumThreads(numThreads int)

	// IsMaximumProblemSizeReached reports whether an instance of the given
	// size should stop growing.
	IsMaximumProblemSizeReached(stats ProblemStats) bool
}

// DoNothingRefiner satisfies Refiner without changing the partition.
type DoNothingRefiner struct{}

func (DoNothingRefiner) Initialize(*partition.PartitionedHypergraph) {}

func (DoNothingRefiner) Refine(*partition.PartitionedHypergraph, []hg.NodeID,
	*partition.Metrics, time.Duration) (bool, error) {
	return false, nil
}

func (DoNothingRefiner) MaxBlocksPerSearch() int32                 { return 0 }
func (DoNothingRefiner) SetNumThreads(int)                         {}
func (DoNothingRefiner) IsMaximumProblemSizeReached(ProblemStats) bool { return true }
