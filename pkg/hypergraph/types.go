package hypergraph

import "errors"

// ID and weight types shared across the partitioning pipeline. Aliases keep
// indexing and arithmetic free of conversions.
type (
	// NodeID identifies a hypernode.
	NodeID = int32
	// EdgeID identifies a hyperedge (net).
	EdgeID = int32
	// PartID identifies a block of the partition.
	PartID = int32
	// Weight is a vertex or edge weight.
	Weight = int32
)

const (
	// InvalidNode marks a disabled or unmapped vertex.
	InvalidNode NodeID = -1
	// InvalidEdge marks a removed hyperedge.
	InvalidEdge EdgeID = -1
	// InvalidPartition marks an unassigned vertex.
	InvalidPartition PartID = -1
)

// Error kinds surfaced at the package boundary. Callers classify with
// errors.Is and map the class to an exit code.
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrInfeasible   = errors.New("infeasible balance constraint")
	ErrResource     = errors.New("resource exhausted")
	ErrInvariant    = errors.New("internal invariant violation")
)

// edgeHashSeed is the base value of the commutative pin-set fingerprint used
// for parallel-net detection.
const edgeHashSeed uint64 = 420
