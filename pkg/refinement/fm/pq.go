package fm

import (
	hg "github.com/gilchrisn/hypergraph-partitioning-service/pkg/hypergraph"
)

const invalidPosition int32 = -1

type pqEntry struct {
	node hg.NodeID
	to   hg.PartID
	gain int32
}

// VertexPriorityQueue is an addressable max-heap of frontier vertices keyed
// by their best outgoing gain. Heap positions live in the shared per-vertex
// handle array, which also prevents a vertex from being queued by two
// searches at once.
type VertexPriorityQueue struct {
	heap      []pqEntry
	positions []int32
}

// NewVertexPriorityQueue creates a queue backed by the shared position
// handles.
func NewVertexPriorityQueue(positions []int32) *VertexPriorityQueue {
	return &VertexPriorityQueue{positions: positions}
}

// Len returns the number of queued vertices.
func (pq *VertexPriorityQueue) Len() int { return len(pq.heap) }

// Contains reports whether vertex u is queued.
func (pq *VertexPriorityQueue) Contains(u hg.NodeID) bool {
	return pq.positions[u] != invalidPosition
}

// Insert queues vertex u with the given target block and gain key.
func (pq *VertexPriorityQueue) Insert(u hg.NodeID, to hg.PartID, gain int32) {
	pq.heap = append(pq.heap, pqEntry{node: u, to: to, gain: gain})
	pq.positions[u] = int32(len(pq.heap) - 1)
	pq.siftUp(len(pq.heap) - 1)
}

// AdjustKey updates the gain key and target of a queued vertex.
func (pq *VertexPriorityQueue) AdjustKey(u hg.NodeID, to hg.PartID, gain int32) {
	pos := pq.positions[u]
	old := pq.heap[pos].gain
	pq.heap[pos].gain = gain
	pq.heap[pos].to = to
	if gain > old {
		pq.siftUp(int(pos))
	} else {
		pq.siftDown(int(pos))
	}
}

// PopMax removes and returns the vertex with the highest gain.
func (pq *VertexPriorityQueue) PopMax() (hg.NodeID, hg.PartID, int32) {
	top := pq.heap[0]
	last := len(pq.heap) - 1
	pq.swap(0, last)
	pq.heap = pq.heap[:last]
	pq.positions[top.node] = invalidPosition
	if last > 0 {
		pq.siftDown(0)
	}
	return top.node, top.to, top.gain
}

// Clear removes all entries and resets their handles.
func (pq *VertexPriorityQueue) Clear() {
	for _, e := range pq.heap {
		pq.positions[e.node] = invalidPosition
	}
	pq.heap = pq.heap[:0]
}

func (pq *VertexPriorityQueue) swap(i, j int) {
	pq.heap[i], pq.heap[j] = pq.heap[j], pq.heap[i]
	pq.positions[pq.heap[i].node] = int32(i)
	pq.positions[pq.heap[j].node] = int32(j)
}

func (pq *VertexPriorityQueue) siftUp(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if pq.heap[parent].gain >= pq.heap[i].gain {
			break
		}
		pq.swap(i, parent)
		i = parent
	}
}

func (pq *VertexPriorityQueue) siftDown(i int) {
	n := len(pq.heap)
	for {
		largest := i
		left, right := 2*i+1, 2*i+2
		if left < n && pq.heap[left].gain > pq.heap[largest].gain {
			largest = left
		}
		if right < n && pq.heap[right].gain > pq.heap[largest].gain {
			largest = right
		}
		if largest == i {
			return
		}
		pq.swap(i, largest)
		i = largest
	}
}
