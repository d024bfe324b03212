package multibody

// SlotAllocator hands out contiguous ranges in the tree's flat generalized
// coordinate (q) and speed (u) vectors. Passing it explicitly into node
// construction keeps slot assignment a function of the allocator's state
// rather than of package-level counters.
type SlotAllocator struct {
	nextU int
	nextQ int
}

func NewSlotAllocator() *SlotAllocator {
	return &SlotAllocator{}
}

// Alloc reserves dof speed slots and nq coordinate slots and returns the
// start index of each range.
func (a *SlotAllocator) Alloc(dof, nq int) (uIndex, qIndex int) {
	uIndex, qIndex = a.nextU, a.nextQ
	a.nextU += dof
	a.nextQ += nq
	return uIndex, qIndex
}

// Allocated reports the totals handed out so far.
func (a *SlotAllocator) Allocated() (nu, nq int) {
	return a.nextU, a.nextQ
}
