package heap

import (
	"math"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/fbheap/memutils"
)

// Reference adds a reference to the allocation that owner received at offset. Each reference must be
// dropped with Free or FreeAt before the allocation's blocks are returned to the heap.
func (h *Heap) Reference(owner Owner, offset uint64) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if err := h.checkAlive(); err != nil {
		return err
	}

	head, err := h.findOwnedHead(owner, offset)
	if err != nil {
		return err
	}

	if head.owned.refCount == math.MaxUint32 {
		return errors.Wrapf(memutils.ErrInsufficientResources, "reference count of the allocation at 0x%x is saturated", offset)
	}

	head.owned.refCount++
	return nil
}
