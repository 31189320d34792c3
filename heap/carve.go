package heap

// carveRequest is a placement that has already been validated against a free block
type carveRequest struct {
	lo       uint64
	hi       uint64
	align    uint64
	alignPad uint64
}

// carve converts [req.lo, req.hi] of the free block into a new owned block. free must contain the
// whole range.
func (h *Heap) carve(free *block, req carveRequest, owned *ownership) *block {
	var b *block

	switch {
	case free.begin == req.lo && free.end == req.hi:
		h.removeFree(free)
		b = free
		b.owned = owned
		h.update(b, blockFreeStateChanged)

	case free.begin < req.lo && free.end > req.hi:
		b = h.allocateBlock(req.lo, req.hi)
		b.owned = owned
		remainder := h.allocateBlock(req.hi+1, free.end)

		h.update(free, blockRemove)
		free.end = req.lo - 1
		h.update(free, blockAdd)

		h.insertBlockAfter(free, b)
		h.insertBlockAfter(b, remainder)
		h.insertFreeAfter(free, remainder)
		h.update(remainder, blockAdd)
		h.update(b, blockAdd)

	case free.end == req.hi:
		b = h.allocateBlock(req.lo, req.hi)
		b.owned = owned

		h.update(free, blockRemove)
		free.end = req.lo - 1
		h.update(free, blockAdd)

		h.insertBlockAfter(free, b)
		h.update(b, blockAdd)

	default:
		b = h.allocateBlock(req.lo, req.hi)
		b.owned = owned

		h.update(free, blockRemove)
		free.begin = req.hi + 1
		free.align = free.begin
		h.update(free, blockAdd)

		h.insertBlockBefore(free, b)
		h.update(b, blockAdd)
	}

	b.align = req.align
	b.alignPad = req.alignPad
	owned.refCount = 1
	h.free -= b.size()

	h.callbacks.Allocate(owned.owner, b.begin, b.end)

	return b
}
