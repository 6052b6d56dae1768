package parallel

import "sync/atomic"

// unlocked is the value of a free lock slot. Owner IDs are stored shifted by
// one so that owner 0 is representable.
const unlocked uint32 = 0

// NodeLockManager is a dense array of per-node lock slots. A slot stores the
// ID of the owning contraction group (or search) while held. Acquire is a
// single CAS, release a store.
type NodeLockManager struct {
	slots []atomic.Uint32
}

// NewNodeLockManager creates a manager covering nodes [0, numNodes).
func NewNodeLockManager(numNodes int) *NodeLockManager {
	return &NodeLockManager{slots: make([]atomic.Uint32, numNodes)}
}

// TryAcquire attempts to lock node u for owner. Returns true on success or
// if owner already holds the lock.
func (m *NodeLockManager) TryAcquire(u int32, owner uint32) bool {
	if m.slots[u].CompareAndSwap(unlocked, owner+1) {
		return true
	}
	return m.slots[u].Load() == owner+1
}

// TryAcquireAll locks every node in nodes for owner. On the first failure all
// locks taken by this call are rolled back and false is returned.
func (m *NodeLockManager) TryAcquireAll(nodes []int32, owner uint32) bool {
	taken := make([]int32, 0, len(nodes))
	for _, u := range nodes {
		if !m.slots[u].CompareAndSwap(unlocked, owner+1) {
			if m.slots[u].Load() == owner+1 {
				continue
			}
			for _, v := range taken {
				m.slots[v].Store(unlocked)
			}
			return false
		}
		taken = append(taken, u)
	}
	return true
}

// Release frees the lock on node u. The caller must be the owner.
func (m *NodeLockManager) Release(u int32) {
	m.slots[u].Store(unlocked)
}

// ReleaseAll frees the locks on all given nodes.
func (m *NodeLockManager) ReleaseAll(nodes []int32) {
	for _, u := range nodes {
		m.slots[u].Store(unlocked)
	}
}

// Owner returns the current owner of node u and whether it is locked.
func (m *NodeLockManager) Owner(u int32) (uint32, bool) {
	v := m.slots[u].Load()
	if v == unlocked {
		return 0, false
	}
	return v - 1, true
}

// IsLocked reports whether node u is currently held.
func (m *NodeLockManager) IsLocked(u int32) bool {
	return m.slots[u].Load() != unlocked
}
