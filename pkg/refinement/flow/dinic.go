package flow

import "math"

// InfiniteCapacity marks arcs that can never saturate.
const InfiniteCapacity = int64(math.MaxInt64) / 4

type arc struct {
	to  int32
	rev int32
	cap int64
}

// Network is a directed flow network in adjacency-list form. Hyperedges are
// expanded into bridge node pairs whose connecting arc carries the hyperedge
// weight, so a min cut saturates hyperedges rather than pins.
type Network struct {
	adj [][]arc
}

// NewNetwork creates a network with numNodes nodes and no arcs.
func NewNetwork(numNodes int) *Network {
	return &Network{adj: make([][]arc, numNodes)}
}

// AddArc inserts a directed arc and its zero-capacity reverse.
func (n *Network) AddArc(from, to int32, capacity int64) {
	n.adj[from] = append(n.adj[from], arc{to: to, rev: int32(len(n.adj[to])), cap: capacity})
	n.adj[to] = append(n.adj[to], arc{to: from, rev: int32(len(n.adj[from]) - 1), cap: 0})
}

// Dinic computes the max flow between source and target with Dinic's
// algorithm: repeated BFS level graphs and blocking flows via DFS.
type Dinic struct {
	net    *Network
	level  []int32
	iter   []int32
	queue  []int32
	source int32
	target int32
}

// NewDinic prepares a solver on the given network.
func NewDinic(net *Network, source, target int32) *Dinic {
	return &Dinic{
		net:    net,
		level:  make([]int32, len(net.adj)),
		iter:   make([]int32, len(net.adj)),
		source: source,
		target: target,
	}
}

// MaxFlow exhausts all augmenting paths and returns the flow value.
func (d *Dinic) MaxFlow() int64 {
	var flow int64
	for d.bfs() {
		for i := range d.iter {
			d.iter[i] = 0
		}
		for {
			pushed := d.dfs(d.source, InfiniteCapacity)
			if pushed == 0 {
				break
			}
			flow += pushed
		}
	}
	return flow
}

func (d *Dinic) bfs() bool {
	for i := range d.level {
		d.level[i] = -1
	}
	d.level[d.source] = 0
	d.queue = d.queue[:0]
	d.queue = append(d.queue, d.source)
	for head := 0; head < len(d.queue); head++ {
		u := d.queue[head]
		for _, a := range d.net.adj[u] {
			if a.cap > 0 && d.level[a.to] < 0 {
				d.level[a.to] = d.level[u] + 1
				d.queue = append(d.queue, a.to)
			}
		}
	}
	return d.level[d.target] >= 0
}

func (d *Dinic) dfs(u int32, limit int64) int64 {
	if u == d.target {
		return limit
	}
	for ; d.iter[u] < int32(len(d.net.adj[u])); d.iter[u]++ {
		a := &d.net.adj[u][d.iter[u]]
		if a.cap <= 0 || d.level[a.to] != d.level[u]+1 {
			continue
		}
		pushed := d.dfs(a.to, min64(limit, a.cap))
		if pushed > 0 {
			a.cap -= pushed
			d.net.adj[a.to][a.rev].cap += pushed
			return pushed
		}
	}
	return 0
}

// MinCutSourceSide returns which nodes are reachable from the source in the
// residual network after MaxFlow; these form the source side of the min cut.
func (d *Dinic) MinCutSourceSide() []bool {
	reachable := make([]bool, len(d.net.adj))
	reachable[d.source] = true
	d.queue = d.queue[:0]
	d.queue = append(d.queue, d.source)
	for head := 0; head < len(d.queue); head++ {
		u := d.queue[head]
		for _, a := range d.net.adj[u] {
			if a.cap > 0 && !reachable[a.to] {
				reachable[a.to] = true
				d.queue = append(d.queue, a.to)
			}
		}
	}
	return reachable
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
