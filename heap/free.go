package heap

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/hashicorp/go-multierror"
	"github.com/vkngwrapper/fbheap/memutils"
	"golang.org/x/exp/slog"
)

// Free drops one reference to an allocation. Its blocks return to the heap when the last reference
// is dropped.
func (h *Heap) Free(alloc *Allocation) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if err := h.checkAlive(); err != nil {
		return err
	}

	head, ok := h.allocationHead(alloc)
	if !ok {
		return errors.Wrap(memutils.ErrInvalidArgument, "allocation does not belong to this heap or was already freed")
	}

	err := h.release(head)
	h.debugValidate()
	return err
}

// FreeAt drops one reference to the allocation that owner received at offset
func (h *Heap) FreeAt(owner Owner, offset uint64) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if err := h.checkAlive(); err != nil {
		return err
	}

	head, err := h.findOwnedHead(owner, offset)
	if err != nil {
		return err
	}

	err = h.release(head)
	h.debugValidate()
	return err
}

// findOwnedHead finds the first block of the allocation that owner received at offset
func (h *Heap) findOwnedHead(owner Owner, offset uint64) (*block, error) {
	if owner.heapInternal() {
		return nil, errors.Wrapf(memutils.ErrInvalidArgument, "owner %s is reserved for the heap", owner)
	}

	b, found := h.index.lookup(offset)
	if !found || b.IsFree() {
		return nil, errors.Wrapf(memutils.ErrInvalidArgument, "no allocation at offset 0x%x", offset)
	}
	if b.owned.owner != owner || b.offset() != offset {
		return nil, errors.Wrapf(memutils.ErrInvalidArgument, "no allocation for owner %s at offset 0x%x", owner.String(), offset)
	}

	head, ok := h.allocationHead(b.owned.allocation)
	if !ok || head != b {
		return nil, errors.Wrapf(memutils.ErrInvalidArgument, "offset 0x%x is not the start of an allocation", offset)
	}

	return head, nil
}

// release drops a reference to the allocation headed by head and frees its blocks when none remain
func (h *Heap) release(head *block) error {
	head.owned.refCount--
	if head.owned.refCount > 0 {
		return nil
	}

	alloc := head.owned.allocation
	h.unregisterAllocation(alloc)
	h.allocCount--

	h.logger.LogAttrs(context.Background(), slog.LevelDebug, "Heap::Free",
		slog.String("owner", alloc.owner.String()),
		slog.String("offset", hexString(alloc.offset)),
		slog.Int("extents", len(alloc.extents)),
	)

	var result *multierror.Error
	for b := head; b != nil; {
		next := b.owned.noncontigNext
		begin, end := b.begin, b.end
		blacklistOff := b.owned.blacklistOff

		if err := h.blockFree(b); err != nil {
			result = multierror.Append(result, err)
		}

		if blacklistOff && h.pageRetirementEnabled() {
			if err := h.blacklistChunks(begin, end-begin+1); err != nil {
				result = multierror.Append(result, err)
			}
		}
		if err := h.retirePending(begin, end); err != nil {
			result = multierror.Append(result, err)
		}

		b = next
	}

	return result.ErrorOrNil()
}

// blockFree returns a single owned block to the free lists, merging it with free neighbors
func (h *Heap) blockFree(b *block) error {
	if b.IsFree() {
		return errors.Wrapf(memutils.ErrInvalidState, "block [0x%x, 0x%x] is already free", b.begin, b.end)
	}

	var err error
	owned := b.owned
	info := b.resourceInfo()

	b.owned = nil
	h.free += b.size()

	if owned.bound {
		if freeErr := h.resources.FreeResources(info, owned.hwResource); freeErr != nil {
			h.logger.LogAttrs(context.Background(), slog.LevelError, "failed to release hardware resources",
				slog.String("begin", hexString(b.begin)),
				slog.String("end", hexString(b.end)),
				slog.Any("error", freeErr),
			)
			err = errors.Wrapf(freeErr, "failed to release resources of [0x%x, 0x%x]", b.begin, b.end)
		}
	}

	if owned.textureSlot >= 0 {
		h.textures.release(owned.textureSlot, owned.textureClient)
	}

	if owned.reservedRegion {
		h.reserved -= b.size()
	}

	h.callbacks.Free(owned.owner, b.begin, b.end)

	merged := false
	if prev := b.prev; prev != nil && prev.IsFree() {
		h.update(b, blockRemove)
		h.update(prev, blockRemove)

		prev.end = b.end
		h.unlinkBlock(b)
		h.releaseBlockObject(b)
		b = prev

		h.update(b, blockAdd)
		merged = true
	}

	if next := b.next; next != nil && next.IsFree() {
		h.update(b, blockRemove)
		h.update(next, blockRemove)

		if merged {
			h.removeFree(next)
		} else {
			h.replaceFree(next, b)
		}

		b.end = next.end
		h.unlinkBlock(next)
		h.releaseBlockObject(next)

		h.update(b, blockAdd)
		merged = true
	}

	if !merged {
		h.insertFreeSorted(b)
		h.update(b, blockFreeStateChanged)
	}

	b.align = b.begin
	b.alignPad = 0

	return err
}
