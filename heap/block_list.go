package heap

// insertBlockAfter links b into the block list directly after prev
func (h *Heap) insertBlockAfter(prev, b *block) {
	b.prev = prev
	b.next = prev.next
	if prev.next != nil {
		prev.next.prev = b
	} else {
		h.blockTail = b
	}
	prev.next = b
	h.blockCount++
}

// insertBlockBefore links b into the block list directly before next
func (h *Heap) insertBlockBefore(next, b *block) {
	b.next = next
	b.prev = next.prev
	if next.prev != nil {
		next.prev.next = b
	} else {
		h.blockHead = b
	}
	next.prev = b
	h.blockCount++
}

func (h *Heap) unlinkBlock(b *block) {
	if b.prev != nil {
		b.prev.next = b.next
	} else {
		h.blockHead = b.next
	}

	if b.next != nil {
		b.next.prev = b.prev
	} else {
		h.blockTail = b.prev
	}

	b.prev = nil
	b.next = nil
	h.blockCount--
}

// insertFreeAfter links b into the free list directly after prev, which must already be in the list
func (h *Heap) insertFreeAfter(prev, b *block) {
	b.prevFree = prev
	b.nextFree = prev.nextFree
	if prev.nextFree != nil {
		prev.nextFree.prevFree = b
	} else {
		h.freeTail = b
	}
	prev.nextFree = b
	b.inFree = true
	h.freeCount++
}

// insertFreeSorted links b into the free list at its address-ordered position
func (h *Heap) insertFreeSorted(b *block) {
	// The nearest free block below b in the block list is b's free list predecessor
	var prev *block
	for candidate := b.prev; candidate != nil; candidate = candidate.prev {
		if candidate.inFree {
			prev = candidate
			break
		}
	}

	if prev != nil {
		h.insertFreeAfter(prev, b)
		return
	}

	b.prevFree = nil
	b.nextFree = h.freeHead
	if h.freeHead != nil {
		h.freeHead.prevFree = b
	} else {
		h.freeTail = b
	}
	h.freeHead = b
	b.inFree = true
	h.freeCount++
}

func (h *Heap) removeFree(b *block) {
	if !b.inFree {
		return
	}

	if b.prevFree != nil {
		b.prevFree.nextFree = b.nextFree
	} else {
		h.freeHead = b.nextFree
	}

	if b.nextFree != nil {
		b.nextFree.prevFree = b.prevFree
	} else {
		h.freeTail = b.prevFree
	}

	b.prevFree = nil
	b.nextFree = nil
	b.inFree = false
	h.freeCount--
}

// replaceFree puts b into old's position in the free list
func (h *Heap) replaceFree(old, b *block) {
	b.prevFree = old.prevFree
	b.nextFree = old.nextFree

	if old.prevFree != nil {
		old.prevFree.nextFree = b
	} else {
		h.freeHead = b
	}

	if old.nextFree != nil {
		old.nextFree.prevFree = b
	} else {
		h.freeTail = b
	}

	b.inFree = true
	old.prevFree = nil
	old.nextFree = nil
	old.inFree = false
}
