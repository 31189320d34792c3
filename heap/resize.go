package heap

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/fbheap/memutils"
	"golang.org/x/exp/slog"
)

// Resize grows or shrinks the top of the heap by delta bytes. Only HeapTypePhysMemSuballocator heaps
// can be resized, and a heap can only shrink into free space at its top.
func (h *Heap) Resize(delta int64) error {
	if h.heapType != HeapTypePhysMemSuballocator {
		return errors.Wrapf(memutils.ErrNotSupported, "heaps of type %s cannot be resized", h.heapType)
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()

	if err := h.checkAlive(); err != nil {
		return err
	}

	if err := h.freeBlacklistedPages(); err != nil {
		return err
	}

	err := h.resize(delta)
	if rebuildErr := h.rebuildBlacklist(); rebuildErr != nil && err == nil {
		err = rebuildErr
	}

	h.debugValidate()
	return err
}

func (h *Heap) resize(delta int64) error {
	last := h.blockTail

	if delta < 0 {
		shrink := uint64(-(delta + 1)) + 1
		if !last.IsFree() {
			return errors.Wrapf(memutils.ErrOutOfMemory, "cannot shrink: the top of the heap at [0x%x, 0x%x] is in use", last.begin, last.end)
		}
		if last.end-last.begin < shrink {
			return errors.Wrapf(memutils.ErrInvalidArgument, "cannot shrink by 0x%x: only 0x%x bytes are free at the top of the heap", shrink, last.size())
		}

		h.update(last, blockRemove)
		last.end -= shrink
		h.update(last, blockAdd)

		h.total -= shrink
		h.free -= shrink
	} else if delta > 0 {
		grow := uint64(delta)
		if memutils.AddOverflows(last.end, grow) {
			return errors.Wrapf(memutils.ErrInvalidArgument, "cannot grow by 0x%x: the heap would wrap the address space", grow)
		}

		if last.IsFree() {
			h.update(last, blockRemove)
			last.end += grow
			h.update(last, blockAdd)
		} else {
			b := h.allocateBlock(last.end+1, last.end+grow)
			h.insertBlockAfter(last, b)
			h.insertFreeSorted(b)
			h.update(b, blockAdd)
		}

		h.total += grow
		h.free += grow
	}

	h.logger.LogAttrs(context.Background(), slog.LevelDebug, "Heap::Resize",
		slog.Int64("delta", delta),
		slog.Uint64("size", h.total),
	)

	return nil
}

// rebuildBlacklist asks the retirement reporter for the bad pages of the current range
func (h *Heap) rebuildBlacklist() error {
	if !h.pageRetirementEnabled() {
		return nil
	}

	pages, err := h.retirement.BlacklistAddresses(h.base, h.total)
	if err != nil {
		h.logger.LogAttrs(context.Background(), slog.LevelWarn, "failed to read blacklisted pages",
			slog.Any("error", err))
		return nil
	}

	return h.blacklistPages(pages)
}
