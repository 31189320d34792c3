package heap

// AllocationHandle identifies a live allocation within its heap
type AllocationHandle uint64

// Extent is an inclusive range of addresses belonging to an allocation
type Extent struct {
	Begin uint64
	End   uint64
}

// Size returns the number of bytes covered by the extent
func (e Extent) Size() uint64 {
	return e.End - e.Begin + 1
}

// Allocation represents a single successful Allocate call. It remains valid until it is passed to
// Heap.Free (once per reference) or the heap is destroyed.
type Allocation struct {
	handle     AllocationHandle
	owner      Owner
	client     ClientID
	allocType  AllocationType
	offset     uint64
	size       uint64
	contiguous bool
	pageSize   uint64
	extents    []Extent
	pages      []uint64
	userData   any
}

// Handle is the allocation's identity within its heap
func (a *Allocation) Handle() AllocationHandle {
	return a.handle
}

func (a *Allocation) Owner() Owner {
	return a.owner
}

func (a *Allocation) Type() AllocationType {
	return a.allocType
}

// Offset is the address returned to the caller: the aligned start of the first extent plus the
// requested alignment pad
func (a *Allocation) Offset() uint64 {
	return a.offset
}

// Size is the number of bytes requested, not including the alignment pad
func (a *Allocation) Size() uint64 {
	return a.size
}

// Contiguous reports whether the allocation occupies a single extent
func (a *Allocation) Contiguous() bool {
	return a.contiguous
}

// PageSize is the page granularity of a non-contiguous allocation. It is zero for contiguous allocations.
func (a *Allocation) PageSize() uint64 {
	return a.pageSize
}

// Extents returns the blocks the allocation occupies, in carve order
func (a *Allocation) Extents() []Extent {
	extents := make([]Extent, len(a.extents))
	copy(extents, a.extents)
	return extents
}

// Pages returns the 4KiB page addresses backing a non-contiguous allocation, in the order they should be
// mapped. It is nil for contiguous allocations.
func (a *Allocation) Pages() []uint64 {
	if a.pages == nil {
		return nil
	}

	pages := make([]uint64, len(a.pages))
	copy(pages, a.pages)
	return pages
}

func (a *Allocation) UserData() any {
	return a.userData
}

// SetUserData replaces the user data attached to the allocation
func (a *Allocation) SetUserData(userData any) {
	a.userData = userData
}

func (h *Heap) registerAllocation(alloc *Allocation, head *block) {
	h.nextHandle++
	alloc.handle = h.nextHandle
	h.handles.Put(alloc.handle, head)
}

func (h *Heap) unregisterAllocation(alloc *Allocation) {
	h.handles.Delete(alloc.handle)
}

// allocationHead finds the first block of a live allocation
func (h *Heap) allocationHead(alloc *Allocation) (*block, bool) {
	if alloc == nil {
		return nil, false
	}

	head, ok := h.handles.Get(alloc.handle)
	if !ok || head.owned == nil || head.owned.allocation != alloc {
		return nil, false
	}

	return head, true
}
