package uncoarsening

import (
	"runtime"
	"sync"
	"sync/atomic"

	hg "github.com/gilchrisn/hypergraph-partitioning-service/pkg/hypergraph"
	"github.com/gilchrisn/hypergraph-partitioning-service/pkg/parallel"
)

// ContractionGroup batches the mergers that share a representative: one
// coarse vertex together with the fine vertices that were collapsed into it.
// Groups form a DAG through predecessor counts; a group becomes ready once
// every group it depends on has been uncontracted.
type ContractionGroup struct {
	ID           uint32
	CoarseVertex hg.NodeID
	// Members are the fine vertices of the cluster; Members[0] is the
	// representative that keeps the coarse vertex's block.
	Members []hg.NodeID

	preds      atomic.Int32
	successors []uint32
}

// AddDependency records that group succ can only run after this group.
func (g *ContractionGroup) AddDependency(succ *ContractionGroup) {
	g.successors = append(g.successors, succ.ID)
	succ.preds.Add(1)
}

// GroupPool presents contraction groups in a partial order derived from the
// uncontraction DAG. Ready group IDs are distributed through an unordered
// bag backed by the two-list handoff queue: finishing workers write ready
// successors, picking workers drain under a light reader lock and spin
// briefly when the bag runs dry.
type GroupPool struct {
	groups    []*ContractionGroup
	ready     *parallel.Queue[uint32]
	readMu    sync.Mutex
	remaining atomic.Int32
}

// NewGroupPool creates a pool over the given groups. Dependencies must be
// fully wired before Activate is called.
func NewGroupPool(groups []*ContractionGroup) *GroupPool {
	return &GroupPool{
		groups: groups,
		ready:  parallel.NewQueue[uint32](),
	}
}

// Activate seeds the ready bag with all groups without open predecessors.
func (p *GroupPool) Activate() {
	p.remaining.Store(int32(len(p.groups)))
	for _, g := range p.groups {
		if g.preds.Load() == 0 {
			p.push(g.ID)
		}
	}
}

func (p *GroupPool) push(id uint32) {
	for !p.ready.Write(id) {
		runtime.Gosched()
	}
}

// PickAnyActive returns a ready group, spinning until one becomes available.
// Returns false once all groups have completed.
func (p *GroupPool) PickAnyActive() (*ContractionGroup, bool) {
	for {
		p.readMu.Lock()
		id, ok := p.ready.Read()
		p.readMu.Unlock()
		if ok {
			return p.groups[id], true
		}
		if p.remaining.Load() == 0 {
			return nil, false
		}
		runtime.Gosched()
	}
}

// Retry returns a group whose lock acquisition failed to the active set.
func (p *GroupPool) Retry(g *ContractionGroup) {
	p.push(g.ID)
}

// MarkFinished completes a group and activates its successors.
func (p *GroupPool) MarkFinished(g *ContractionGroup) {
	for _, succ := range g.successors {
		if p.groups[succ].preds.Add(-1) == 0 {
			p.push(succ)
		}
	}
	p.remaining.Add(-1)
}
