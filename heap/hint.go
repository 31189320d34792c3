package heap

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/fbheap/memutils"
)

// HintRequest describes an allocation that a caller is planning to make
type HintRequest struct {
	Type  AllocationType
	Flags AllocationFlags
	Size  uint64
	// Alignment is only honored alongside AllocAlignmentHint or AllocAlignmentForce
	Alignment uint64
}

// HintResult is the size and alignment that the heap would use for a HintRequest
type HintResult struct {
	Size      uint64
	Alignment uint64
}

// AllocateHint reports the size and alignment an allocation would be given, without changing the heap
func (h *Heap) AllocateHint(req HintRequest) (HintResult, error) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if !req.Type.Valid() {
		return HintResult{}, errors.Wrapf(memutils.ErrInvalidArgument, "unknown allocation type %s", req.Type)
	}
	if req.Size == 0 {
		return HintResult{}, errors.Wrap(memutils.ErrInvalidArgument, "allocation size must be greater than zero")
	}

	alignment := PageSize
	if req.Flags&(AllocAlignmentHint|AllocAlignmentForce) != 0 && req.Alignment != 0 {
		alignment = req.Alignment
	}
	if err := memutils.CheckPow2(alignment, "alignment"); err != nil {
		return HintResult{}, errors.Wrap(memutils.ErrInvalidArgument, err.Error())
	}

	if memutils.AddOverflows(req.Size, alignment-1) {
		return HintResult{}, errors.Wrapf(memutils.ErrInvalidArgument, "size 0x%x cannot be aligned to 0x%x", req.Size, alignment)
	}
	size := memutils.AlignUp(req.Size, alignment)

	if req.Flags&AllocForceAlignHostPage != 0 {
		alignment = memutils.LeastCommonAlignment(alignment, h.hostPageSize)
	}

	if alignment >= h.total {
		return HintResult{}, errors.Wrapf(memutils.ErrInvalidArgument, "alignment 0x%x does not fit in a heap of 0x%x bytes", alignment, h.total)
	}

	return HintResult{
		Size:      size,
		Alignment: alignment,
	}, nil
}
