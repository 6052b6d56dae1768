package hypergraph

import (
	"reflect"
	"testing"
)

// toyHypergraph is the standard 7-vertex, 4-net test fixture.
func toyHypergraph(t *testing.T, stable bool) *Hypergraph {
	t.Helper()
	edges := [][]NodeID{{0, 2}, {0, 1, 3, 4}, {3, 4, 6}, {2, 5, 6}}
	h, err := Construct(7, edges, nil, nil, stable, 2)
	if err != nil {
		t.Fatalf("Construct failed: %v", err)
	}
	return h
}

func TestHypergraphStats(t *testing.T) {
	h := toyHypergraph(t, false)
	if h.InitialNumNodes() != 7 || h.InitialNumEdges() != 4 {
		t.Fatalf("got %d nodes, %d edges; want 7, 4", h.InitialNumNodes(), h.InitialNumEdges())
	}
	if h.InitialNumPins() != 12 {
		t.Errorf("initialNumPins = %d, want 12", h.InitialNumPins())
	}
	if h.TotalWeight() != 7 {
		t.Errorf("totalWeight = %d, want 7", h.TotalWeight())
	}
	if h.MaxEdgeSize() != 4 {
		t.Errorf("maxEdgeSize = %d, want 4", h.MaxEdgeSize())
	}
}

func TestDegreeSumEqualsPinSum(t *testing.T) {
	h := toyHypergraph(t, false)
	var degreeSum, pinSum int32
	h.ForNodes(func(u NodeID) { degreeSum += h.NodeDegree(u) })
	h.ForEdges(func(e EdgeID) { pinSum += h.EdgeSize(e) })
	if degreeSum != pinSum || degreeSum != h.InitialNumPins() {
		t.Fatalf("degree sum %d, pin sum %d, numPins %d should all agree",
			degreeSum, pinSum, h.InitialNumPins())
	}
}

func TestIncidentNetsCrossReferencePins(t *testing.T) {
	h := toyHypergraph(t, true)
	h.ForEdges(func(e EdgeID) {
		for _, pin := range h.Pins(e) {
			occurrences := 0
			for _, he := range h.IncidentEdges(pin) {
				if he == e {
					occurrences++
				}
			}
			if occurrences != 1 {
				t.Errorf("vertex %d lists edge %d %d times, want once", pin, e, occurrences)
			}
		}
	})
}

func TestStableConstructionSortsIncidentNets(t *testing.T) {
	h := toyHypergraph(t, true)
	h.ForNodes(func(u NodeID) {
		nets := h.IncidentEdges(u)
		for i := 1; i < len(nets); i++ {
			if nets[i-1] > nets[i] {
				t.Fatalf("incident nets of %d not sorted: %v", u, nets)
			}
		}
	})
}

func TestIterationSkipsDisabledIDs(t *testing.T) {
	edges := [][]NodeID{{1, 2}, {2, 3}}
	h, err := Construct(4, edges, nil, nil, false, 1)
	if err != nil {
		t.Fatalf("Construct failed: %v", err)
	}
	if err := h.RemoveDegreeZeroNode(0); err != nil {
		t.Fatalf("RemoveDegreeZeroNode failed: %v", err)
	}
	var seen []NodeID
	h.ForNodes(func(u NodeID) { seen = append(seen, u) })
	if !reflect.DeepEqual(seen, []NodeID{1, 2, 3}) {
		t.Fatalf("node iteration = %v, want [1 2 3]", seen)
	}
	if h.CurrentNumNodes() != 3 {
		t.Errorf("currentNumNodes = %d, want 3", h.CurrentNumNodes())
	}
	if h.TotalWeight() != 3 {
		t.Errorf("totalWeight after removal = %d, want 3", h.TotalWeight())
	}

	h.DisableEdge(0)
	var edgesSeen []EdgeID
	h.ForEdges(func(e EdgeID) { edgesSeen = append(edgesSeen, e) })
	if !reflect.DeepEqual(edgesSeen, []EdgeID{1}) {
		t.Fatalf("edge iteration = %v, want [1]", edgesSeen)
	}
}

func TestCopyLaws(t *testing.T) {
	h := toyHypergraph(t, true)
	par := h.Copy(4)
	seq := h.CopySequential()

	if !reflect.DeepEqual(par.vertices, seq.vertices) ||
		!reflect.DeepEqual(par.edges, seq.edges) ||
		!reflect.DeepEqual(par.incidentNets, seq.incidentNets) ||
		!reflect.DeepEqual(par.incidenceArray, seq.incidenceArray) ||
		!reflect.DeepEqual(par.communityIDs, seq.communityIDs) {
		t.Fatal("parallel and sequential copies differ")
	}
	if par.TotalWeight() != h.TotalWeight() || par.InitialNumPins() != h.InitialNumPins() {
		t.Fatal("copy changed metrics")
	}
	if !reflect.DeepEqual(par.incidenceArray, h.incidenceArray) {
		t.Fatal("copy is not bitwise equal to the original incidence array")
	}
}

func TestCommunityIDs(t *testing.T) {
	h := toyHypergraph(t, false)
	h.SetCommunityID(3, 7)
	if h.CommunityID(3) != 7 {
		t.Fatalf("communityID(3) = %d, want 7", h.CommunityID(3))
	}
	if h.CommunityID(2) != 0 {
		t.Fatalf("communityID default = %d, want 0", h.CommunityID(2))
	}
}
