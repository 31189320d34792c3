package heap

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/fbheap/memutils"
)

// Info summarizes the state of a heap
type Info struct {
	Type      HeapType
	Base      uint64
	Size      uint64
	Free      uint64
	Usable    uint64
	Reserved  uint64
	Allocated uint64

	LargestFreeOffset uint64
	LargestFreeSize   uint64

	Allocations int
	Blocks      int

	StaticBlacklistBytes  uint64
	DynamicBlacklistBytes uint64
}

// Info returns a snapshot of the heap's counters
func (h *Heap) Info() Info {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	offset, size := h.largestFreeExtent()
	return Info{
		Type:                  h.heapType,
		Base:                  h.base,
		Size:                  h.total,
		Free:                  h.free,
		Usable:                h.total - h.reserved,
		Reserved:              h.reserved,
		Allocated:             h.total - h.free,
		LargestFreeOffset:     offset,
		LargestFreeSize:       size,
		Allocations:           h.allocCount,
		Blocks:                h.blockCount,
		StaticBlacklistBytes:  h.blacklist.staticBytes,
		DynamicBlacklistBytes: h.blacklist.dynamicBytes,
	}
}

// FreeBytes returns the number of bytes not covered by any owned block
func (h *Heap) FreeBytes() uint64 {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	return h.free
}

// LargestFreeExtent returns the lowest-addressed of the largest free blocks. The size is zero if
// the heap is full.
func (h *Heap) LargestFreeExtent() (offset, size uint64) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	return h.largestFreeExtent()
}

func (h *Heap) largestFreeExtent() (uint64, uint64) {
	b, ok := h.ranked.largest()
	if !ok {
		return 0, 0
	}
	return b.begin, b.size()
}

// Size returns the number of bytes managed by the heap
func (h *Heap) Size() uint64 {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	return h.total
}

// Base returns the lowest address managed by the heap
func (h *Heap) Base() uint64 {
	return h.base
}

// UsableSize returns the number of bytes not held by reserved regions
func (h *Heap) UsableSize() uint64 {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	return h.total - h.reserved
}

// Type returns the kind of range the heap manages
func (h *Heap) Type() HeapType {
	return h.heapType
}

// BlockAt returns the block containing offset
func (h *Heap) BlockAt(offset uint64) (BlockInfo, error) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	b, found := h.index.lookup(offset)
	if !found {
		return BlockInfo{}, errors.Wrapf(memutils.ErrInvalidArgument, "offset 0x%x is outside of the heap", offset)
	}

	return b.info(), nil
}

// AddRef adds a reference to the heap itself
func (h *Heap) AddRef() {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.refCount++
}

// RemoveRef drops a reference to the heap. The heap is destroyed when the last reference is removed.
func (h *Heap) RemoveRef() error {
	h.mutex.Lock()
	h.refCount--
	remaining := h.refCount
	h.mutex.Unlock()

	if remaining > 0 {
		return nil
	}
	return h.Destroy()
}

func hexString(value uint64) string {
	return fmt.Sprintf("0x%x", value)
}
