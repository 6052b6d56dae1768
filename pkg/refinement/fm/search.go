package fm

import (
	"math"
	"time"

	hg "github.com/gilchrisn/hypergraph-partitioning-service/pkg/hypergraph"
	"github.com/gilchrisn/hypergraph-partitioning-service/pkg/partition"
	"github.com/gilchrisn/hypergraph-partitioning-service/pkg/utils"
)

// maxExpansionEdgeSize bounds frontier expansion: pins of larger hyperedges
// are not inserted, keeping searches localized on hypergraphs with huge nets.
const maxExpansionEdgeSize = 1000

// deltaGainFunc attributes the objective change of one incident edge of a
// moved vertex. Positive values reduce the objective.
type deltaGainFunc func(w hg.Weight, size, pinsInFromAfter, pinsInToAfter int32) int32

// km1DeltaGain attributes the connectivity-metric change of a move.
func km1DeltaGain(w hg.Weight, _, pinsInFromAfter, pinsInToAfter int32) int32 {
	var gain int32
	if pinsInFromAfter == 0 {
		gain += int32(w)
	}
	if pinsInToAfter == 1 {
		gain -= int32(w)
	}
	return gain
}

// cutDeltaGain attributes the edge-cut change of a move.
func cutDeltaGain(w hg.Weight, size, pinsInFromAfter, pinsInToAfter int32) int32 {
	var gain int32
	if pinsInToAfter == size && size > 1 {
		gain += int32(w)
	}
	if pinsInFromAfter == size-1 && size > 1 {
		gain -= int32(w)
	}
	return gain
}

// localizedSearch is one thread-local FM search: a seed set, an addressable
// priority queue over the frontier and a journal of performed moves.
type localizedSearch struct {
	phg       *partition.PartitionedHypergraph
	ctx       *partition.Context
	shared    *SharedData
	gainCache *partition.GainCache
	pq        *VertexPriorityQueue
	delta     deltaGainFunc
	tracker   *utils.MoveTracker
	searchID  int32

	journal []Move
	claimed []hg.NodeID
}

func newLocalizedSearch(phg *partition.PartitionedHypergraph, ctx *partition.Context,
	shared *SharedData, delta deltaGainFunc, tracker *utils.MoveTracker) *localizedSearch {
	return &localizedSearch{
		phg:       phg,
		ctx:       ctx,
		shared:    shared,
		gainCache: phg.GainCache(),
		pq:        NewVertexPriorityQueue(shared.pqPositions),
		delta:     delta,
		tracker:   tracker,
		searchID:  shared.NewSearchID(),
	}
}

// run performs one localized search from the given seeds and returns the net
// attributed gain of the kept move prefix.
func (s *localizedSearch) run(seeds []hg.NodeID, deadline time.Time) int64 {
	for _, seed := range seeds {
		s.tryInsert(seed)
	}

	maxMoves := s.ctx.Config.FMMaxMoves()
	stallLimit := s.ctx.Config.FMStallMoves()
	var cumulative, bestSoFar int64
	stall := 0
	steps := 0

	for s.pq.Len() > 0 && steps < maxMoves && stall <= stallLimit {
		if !deadline.IsZero() && steps%64 == 0 && time.Now().After(deadline) {
			break
		}
		steps++

		v, to, cachedGain := s.pq.PopMax()
		from := s.phg.PartID(v)
		if from == to || from == hg.InvalidPartition {
			continue
		}

		// Stale gains are detected by re-evaluating against live pin counts.
		// A stale vertex is re-queued under its live gain and retried.
		liveGain := s.gainCache.RecomputeGain(v, to)
		if liveGain != cachedGain {
			bestTo, _ := s.gainCache.BestGain(v)
			if bestTo != hg.InvalidPartition {
				s.pq.Insert(v, bestTo, s.gainCache.RecomputeGain(v, bestTo))
			}
			continue
		}

		var attributed int32
		moved := s.phg.ChangeNodePart(v, from, to, s.ctx.MaxPartWeights[to],
			func(he hg.EdgeID, w hg.Weight, size, pinsFrom, pinsTo int32) {
				attributed += s.delta(w, size, pinsFrom, pinsTo)
			})
		if !moved {
			// Rejected by balance or lost to a concurrent mover; skip the step.
			continue
		}

		s.tracker.LogMove("fm", v, from, to, attributed)
		move := Move{Node: v, From: from, To: to, Gain: attributed}
		move.ID = s.shared.Tracker.Append(move)
		s.journal = append(s.journal, move)

		cumulative += int64(attributed)
		if cumulative > bestSoFar {
			bestSoFar = cumulative
			stall = 0
		} else {
			stall++
		}
		if move.ID == -1 {
			// Move log full: stop this search after the applied move.
			break
		}

		s.expand(v)
	}

	prefixLen, prefixGain := bestGainPrefix(s.journal)
	s.rollbackToBestPrefix(prefixLen)
	s.finish()
	return prefixGain
}

// bestGainPrefix returns the length and cumulative gain of the journal
// prefix maximizing the attributed gain sum. A journal whose best prefix is
// not positive yields length zero, reverting every move.
func bestGainPrefix(moves []Move) (int, int64) {
	var cumulative, best int64
	length := 0
	for i, m := range moves {
		cumulative += int64(m.Gain)
		if cumulative > best {
			best = cumulative
			length = i + 1
		}
	}
	return length, best
}

// tryInsert claims a vertex for this search and queues it with its best
// outgoing gain.
func (s *localizedSearch) tryInsert(u hg.NodeID) {
	if s.phg.PartID(u) == hg.InvalidPartition {
		return
	}
	if !s.shared.TryClaim(u, s.searchID) {
		return
	}
	s.claimed = append(s.claimed, u)
	to, gain := s.gainCache.BestGain(u)
	if to != hg.InvalidPartition {
		s.pq.Insert(u, to, gain)
	}
}

// expand inserts the neighbors of a moved vertex into the frontier. A vertex
// already owned by this search gets its key refreshed instead.
func (s *localizedSearch) expand(v hg.NodeID) {
	h := s.phg.Hypergraph()
	for _, he := range h.IncidentEdges(v) {
		if h.EdgeSize(he) > maxExpansionEdgeSize {
			continue
		}
		for _, pin := range h.Pins(he) {
			if pin == v || s.phg.PartID(pin) == hg.InvalidPartition {
				continue
			}
			if s.shared.TryClaim(pin, s.searchID) {
				s.claimed = append(s.claimed, pin)
				to, gain := s.gainCache.BestGain(pin)
				if to != hg.InvalidPartition {
					s.pq.Insert(pin, to, gain)
				}
			} else if s.shared.OwnedBy(pin, s.searchID) && s.pq.Contains(pin) {
				to, gain := s.gainCache.BestGain(pin)
				if to != hg.InvalidPartition {
					s.pq.AdjustKey(pin, to, gain)
				}
			}
		}
	}
}

// rollbackToBestPrefix reverts all journal moves after the best-gain prefix.
// If no prefix has positive gain the whole journal is reverted.
func (s *localizedSearch) rollbackToBestPrefix(bestPrefixLen int) {
	for i := len(s.journal) - 1; i >= bestPrefixLen; i-- {
		m := s.journal[i]
		s.phg.ChangeNodePart(m.Node, m.To, m.From, math.MaxInt64, nil)
	}
	s.journal = s.journal[:bestPrefixLen]
}

// finish releases all claims and clears the queue for reuse.
func (s *localizedSearch) finish() {
	s.pq.Clear()
	for _, u := range s.claimed {
		s.shared.ReleaseClaim(u)
	}
	s.claimed = s.claimed[:0]
	s.journal = s.journal[:0]
}
