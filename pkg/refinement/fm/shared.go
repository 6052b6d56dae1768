package fm

import (
	"sync/atomic"

	hg "github.com/gilchrisn/hypergraph-partitioning-service/pkg/hypergraph"
)

// Move is one applied vertex move together with its attributed gain.
type Move struct {
	Node hg.NodeID
	From hg.PartID
	To   hg.PartID
	Gain int32
	ID   int32
}

// noSearch marks a vertex not owned by any active search.
const noSearch int32 = 0

// MoveTracker is a lock-free append-only log of all moves applied by
// concurrent searches. Move IDs are monotonic and unique.
type MoveTracker struct {
	moves  []Move
	cursor atomic.Int32
}

// NewMoveTracker preallocates capacity move slots.
func NewMoveTracker(capacity int) *MoveTracker {
	return &MoveTracker{moves: make([]Move, capacity)}
}

// Append publishes a move and returns its ID. Returns -1 when the log is
// full; the caller treats this as a step budget and stops its search.
func (t *MoveTracker) Append(m Move) int32 {
	id := t.cursor.Add(1) - 1
	if int(id) >= len(t.moves) {
		t.cursor.Add(-1)
		return -1
	}
	m.ID = id
	t.moves[id] = m
	return id
}

// NumMoves returns the number of published moves.
func (t *MoveTracker) NumMoves() int32 {
	n := t.cursor.Load()
	if int(n) > len(t.moves) {
		return int32(len(t.moves))
	}
	return n
}

// Get returns the move with the given ID.
func (t *MoveTracker) Get(id int32) Move { return t.moves[id] }

// Reset clears the log for the next refinement round.
func (t *MoveTracker) Reset() { t.cursor.Store(0) }

// SharedData is the state shared by all concurrent localized searches on one
// partitioned hypergraph.
type SharedData struct {
	Tracker *MoveTracker

	// searchOfNode gives each vertex a single cross-search ownership slot: a
	// vertex is queued by at most one search at a time. 0 means unowned;
	// otherwise the owning search ID (search IDs start at 1).
	searchOfNode []atomic.Int32

	// pqPositions is the per-vertex heap position handle; only the owning
	// search reads or writes an entry, so no atomics are needed.
	pqPositions []int32

	nextSearch atomic.Int32
}

// NewSharedData allocates shared search state for numNodes vertices.
func NewSharedData(numNodes int32, trackerCapacity int) *SharedData {
	sd := &SharedData{
		Tracker:      NewMoveTracker(trackerCapacity),
		searchOfNode: make([]atomic.Int32, numNodes),
		pqPositions:  make([]int32, numNodes),
	}
	for i := range sd.pqPositions {
		sd.pqPositions[i] = invalidPosition
	}
	return sd
}

// NewSearchID hands out a fresh nonzero search identifier.
func (sd *SharedData) NewSearchID() int32 { return sd.nextSearch.Add(1) }

// TryClaim attempts to take ownership of vertex u for the given search.
func (sd *SharedData) TryClaim(u hg.NodeID, search int32) bool {
	return sd.searchOfNode[u].CompareAndSwap(noSearch, search)
}

// OwnedBy reports whether vertex u is owned by the given search.
func (sd *SharedData) OwnedBy(u hg.NodeID, search int32) bool {
	return sd.searchOfNode[u].Load() == search
}

// ReleaseClaim releases ownership of vertex u.
func (sd *SharedData) ReleaseClaim(u hg.NodeID) {
	sd.searchOfNode[u].Store(noSearch)
}

// Reset prepares the shared state for the next refinement round.
func (sd *SharedData) Reset() {
	sd.Tracker.Reset()
	for i := range sd.searchOfNode {
		sd.searchOfNode[i].Store(noSearch)
	}
	for i := range sd.pqPositions {
		sd.pqPositions[i] = invalidPosition
	}
	sd.nextSearch.Store(0)
}
