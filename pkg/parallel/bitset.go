package parallel

import "sync"

// FastResetBitset is a bitset with O(marked) reset. The positions set since
// the last reset are remembered so Reset only clears those.
type FastResetBitset struct {
	bits   []bool
	marked []int32
}

// NewFastResetBitset creates a bitset covering positions [0, size).
func NewFastResetBitset(size int) *FastResetBitset {
	return &FastResetBitset{bits: make([]bool, size), marked: make([]int32, 0, 64)}
}

// Set marks position i. Returns false if it was already marked.
func (b *FastResetBitset) Set(i int32) bool {
	if b.bits[i] {
		return false
	}
	b.bits[i] = true
	b.marked = append(b.marked, i)
	return true
}

// IsSet reports whether position i is marked.
func (b *FastResetBitset) IsSet(i int32) bool { return b.bits[i] }

// Reset clears all marked positions.
func (b *FastResetBitset) Reset() {
	for _, i := range b.marked {
		b.bits[i] = false
	}
	b.marked = b.marked[:0]
}

// Resize grows the bitset to cover [0, size). Marked positions survive.
func (b *FastResetBitset) Resize(size int) {
	if size <= len(b.bits) {
		return
	}
	grown := make([]bool, size)
	copy(grown, b.bits)
	b.bits = grown
}

// BitsetPool hands out scratch bitsets sized to cover the live hypergraph.
// Bitsets are returned reset so a Get never observes stale marks.
type BitsetPool struct {
	size int
	pool sync.Pool
}

// NewBitsetPool creates a pool of bitsets of at least the given size.
func NewBitsetPool(size int) *BitsetPool {
	p := &BitsetPool{size: size}
	p.pool.New = func() any { return NewFastResetBitset(p.size) }
	return p
}

// Get borrows a bitset from the pool.
func (p *BitsetPool) Get() *FastResetBitset {
	b := p.pool.Get().(*FastResetBitset)
	b.Resize(p.size)
	return b
}

// Put resets the bitset and returns it to the pool.
func (p *BitsetPool) Put(b *FastResetBitset) {
	b.Reset()
	p.pool.Put(b)
}
