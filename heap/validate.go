package heap

import (
	"github.com/pkg/errors"
	"github.com/vkngwrapper/fbheap/memutils"
)

type unlockedHeap Heap

func (h *unlockedHeap) Validate() error {
	return (*Heap)(h).validate()
}

func (h *Heap) debugValidate() {
	memutils.DebugValidate((*unlockedHeap)(h))
}

// Validate walks every view of the block set and returns an error describing the first inconsistency
// found. It is expensive and intended for tests and diagnostics.
func (h *Heap) Validate() error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	return h.validate()
}

func (h *Heap) validate() error {
	if h.blockHead == nil || h.blockTail == nil {
		return errors.New("the heap has no blocks")
	}
	if h.blockHead.prev != nil || h.blockTail.next != nil {
		return errors.New("the block list is not terminated")
	}
	if h.blockHead.begin != h.base {
		return errors.Errorf("the first block begins at 0x%x but the heap begins at 0x%x", h.blockHead.begin, h.base)
	}
	if h.blockTail.end != h.base+h.total-1 {
		return errors.Errorf("the last block ends at 0x%x but the heap ends at 0x%x", h.blockTail.end, h.base+h.total-1)
	}
	if h.free > h.total {
		return errors.Errorf("free bytes 0x%x exceed the heap size 0x%x", h.free, h.total)
	}
	if h.reserved > h.total {
		return errors.Errorf("reserved bytes 0x%x exceed the heap size 0x%x", h.reserved, h.total)
	}

	blockCount := 0
	freeBlocks := 0
	freeBytes := uint64(0)
	for b := h.blockHead; b != nil; b = b.next {
		blockCount++

		if b.begin > b.end {
			return errors.Errorf("block [0x%x, 0x%x] is inverted", b.begin, b.end)
		}
		if b.next != nil {
			if b.next.prev != b {
				return errors.Errorf("block at 0x%x is not linked back from its successor", b.begin)
			}
			if b.end+1 != b.next.begin {
				return errors.Errorf("block [0x%x, 0x%x] is not adjacent to the block at 0x%x", b.begin, b.end, b.next.begin)
			}
			if b.IsFree() && b.next.IsFree() {
				return errors.Errorf("free blocks at 0x%x and 0x%x were not coalesced", b.begin, b.next.begin)
			}
		}

		indexed, found := h.index.lookup(b.begin)
		if !found || indexed != b {
			return errors.Errorf("block at 0x%x is missing from the address index", b.begin)
		}

		if b.IsFree() {
			freeBlocks++
			freeBytes += b.size()
			if !b.inFree || !b.ranked {
				return errors.Errorf("free block at 0x%x is missing from the free lists", b.begin)
			}
			if !h.ranked.holds(b) {
				return errors.Errorf("free block [0x%x, 0x%x] is ranked under a stale key", b.begin, b.end)
			}
			if b.align != b.begin || b.alignPad != 0 {
				return errors.Errorf("free block at 0x%x has a stale alignment", b.begin)
			}
		} else {
			if b.inFree || b.ranked {
				return errors.Errorf("owned block at 0x%x is present in the free lists", b.begin)
			}
			if b.align < b.begin || b.offset() > b.end {
				return errors.Errorf("owned block [0x%x, 0x%x] has offset 0x%x outside of it", b.begin, b.end, b.offset())
			}
			if b.owned.allocation == nil {
				return errors.Errorf("owned block at 0x%x has no allocation", b.begin)
			}
		}
	}

	if blockCount != h.blockCount {
		return errors.Errorf("the block list holds %d blocks but the heap counts %d", blockCount, h.blockCount)
	}
	if h.index.len() != blockCount {
		return errors.Errorf("the address index holds %d blocks but the block list holds %d", h.index.len(), blockCount)
	}
	if freeBytes != h.free {
		return errors.Errorf("free blocks add up to 0x%x bytes but the heap counts 0x%x", freeBytes, h.free)
	}

	listed := 0
	var prev *block
	for b := h.freeHead; b != nil; b = b.nextFree {
		listed++
		if !b.IsFree() {
			return errors.Errorf("owned block at 0x%x is in the free list", b.begin)
		}
		if b.prevFree != prev {
			return errors.Errorf("free block at 0x%x is not linked back from its successor", b.begin)
		}
		if prev != nil && prev.begin >= b.begin {
			return errors.Errorf("the free list is out of order at 0x%x", b.begin)
		}
		prev = b
	}
	if prev != h.freeTail {
		return errors.New("the free list tail is stale")
	}
	if listed != freeBlocks || listed != h.freeCount {
		return errors.Errorf("the free list holds %d blocks but %d blocks are free", listed, freeBlocks)
	}
	if h.ranked.len() != freeBlocks {
		return errors.Errorf("the size-ranked list holds %d blocks but %d blocks are free", h.ranked.len(), freeBlocks)
	}

	if h.handles.Count() != h.allocCount {
		return errors.Errorf("%d allocation handles are registered but the heap counts %d allocations", h.handles.Count(), h.allocCount)
	}

	return nil
}
