package heap

type blockAction int

const (
	// blockAdd indexes a block that was just created or whose range just changed
	blockAdd blockAction = iota
	// blockRemove drops a block from the indexes before it is destroyed or its range changes
	blockRemove
	// blockFreeStateChanged moves a block in or out of the size-ranked list
	blockFreeStateChanged
)

// update keeps the address index and the size-ranked list in step with the block list. Callers must
// remove a block before changing its range and add it again afterward.
func (h *Heap) update(b *block, action blockAction) {
	switch action {
	case blockAdd:
		h.index.insert(b)
		if b.IsFree() {
			h.ranked.insert(b)
		}
	case blockRemove:
		h.index.remove(b)
		h.ranked.remove(b)
	case blockFreeStateChanged:
		if b.IsFree() {
			if !b.ranked {
				h.ranked.insert(b)
			}
		} else {
			h.ranked.remove(b)
		}
	}
}
