package heap

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/fbheap/memutils"
	"golang.org/x/exp/slog"
)

// AllocationRequest describes a single allocation
type AllocationRequest struct {
	// Owner tags the allocation. It must be non-zero and is checked again by FreeAt and Reference.
	Owner Owner
	// Client identifies the producer of texture allocations for the texture-client ring. Zero disables
	// tracking.
	Client ClientID
	Type   AllocationType
	Flags  AllocationFlags

	// Size is the number of bytes requested. It must be greater than zero.
	Size uint64
	// Alignment must be a power of two. Zero means PageSize.
	Alignment uint64
	// AlignPad is a number of bytes reserved before the returned offset
	AlignPad uint64
	// Offset is the address to place the allocation at when AllocFixedAddress is set
	Offset uint64

	// RangeLo and RangeHi restrict placement to an inclusive address range. Leaving both at zero allows
	// the whole heap.
	RangeLo uint64
	RangeHi uint64

	// PageSize selects the page granularity of a non-contiguous allocation
	PageSize    PageSizeAttr
	Compression Compression
	Priority    Priority

	// BlacklistOff lifts blacklisted pages inside [Offset, Offset+Size) for the duration of the
	// allocation. The pages are blacklisted again when the allocation is freed.
	BlacklistOff bool

	UserData any

	// internal allocations skip the region checks and the resource manager
	internal bool
}

// Allocate carves a new allocation out of the heap
func (h *Heap) Allocate(request AllocationRequest) (*Allocation, error) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if err := h.checkAlive(); err != nil {
		return nil, err
	}

	request.internal = false
	alloc, err := h.allocate(&request)
	h.debugValidate()

	return alloc, err
}

func (h *Heap) checkRequest(req *AllocationRequest) error {
	if req.Size == 0 {
		return errors.Wrap(memutils.ErrInvalidArgument, "allocation size must be greater than zero")
	}
	if req.Owner == 0 {
		return errors.Wrap(memutils.ErrInvalidArgument, "allocation owner must not be zero")
	}
	if req.Owner.heapInternal() && !req.internal {
		return errors.Wrapf(memutils.ErrInvalidArgument, "owner %s is reserved for the heap", req.Owner)
	}
	if !req.Type.Valid() {
		return errors.Wrapf(memutils.ErrInvalidArgument, "unknown allocation type %s", req.Type)
	}
	if err := memutils.CheckPow2(req.Alignment, "alignment"); err != nil {
		return errors.Wrap(memutils.ErrInvalidArgument, err.Error())
	}
	if memutils.AddOverflows(req.Size, req.AlignPad) {
		return errors.Wrapf(memutils.ErrInvalidArgument, "size 0x%x plus alignment pad 0x%x overflows", req.Size, req.AlignPad)
	}

	return nil
}

func (h *Heap) allocate(req *AllocationRequest) (*Allocation, error) {
	err := h.checkRequest(req)
	if err != nil {
		return nil, err
	}

	alignment := req.Alignment
	if alignment == 0 {
		alignment = PageSize
	}
	allocSize := req.Size + req.AlignPad
	fixed := req.Flags&AllocFixedAddress != 0

	carveStart := req.Offset
	if fixed {
		if carveStart < req.AlignPad {
			return nil, errors.Wrapf(memutils.ErrInvalidArgument, "offset 0x%x is below the alignment pad 0x%x", req.Offset, req.AlignPad)
		}
		carveStart -= req.AlignPad
	}

	if req.BlacklistOff && h.pageRetirementEnabled() {
		h.freeBlacklistRange(req.Offset, req.Size)
		defer h.blacklistChunks(req.Offset, req.Size)
	}

	top := h.base + h.total - 1
	rangeLo, rangeHi := req.RangeLo, req.RangeHi
	if rangeLo == 0 && rangeHi == 0 {
		rangeLo, rangeHi = h.base, top
	}
	if rangeHi > top {
		rangeHi = top
	}
	if rangeLo > rangeHi {
		return nil, errors.Wrapf(memutils.ErrInvalidArgument, "allocation range [0x%x, 0x%x] is empty", rangeLo, rangeHi)
	}

	flags := req.Flags
	if rangeLo > h.base || rangeHi < top {
		flags |= AllocIgnoreBankPlacement
	}

	check := &placementCheck{
		allocType:   req.Type,
		owner:       req.Owner,
		compression: req.Compression,
		protected:   req.Flags&AllocProtected != 0,
		bypass:      req.internal,
	}

	if fixed {
		return h.allocateFixed(req, check, carveStart, allocSize, alignment)
	}

	direction, flags := h.bankPlacement(req.Type, flags)
	ignoreBankPlacement := flags&AllocIgnoreBankPlacement != 0

	textureSlot := -1
	if req.Type == TypeTexture && req.Client != 0 && flags&textureTrackedMask == 0 {
		textureSlot, direction, ignoreBankPlacement = h.textures.place(req.Client, direction, ignoreBankPlacement)
	}
	direction = hintedDirection(direction, flags, ignoreBankPlacement)

	if flags&AllocNoncontiguous == 0 {
		for _, pass := range h.placementPasses(rangeLo, rangeHi, req.Priority) {
			free, carveReq, found := h.scanFreeList(direction, pass, allocSize, alignment, check)
			if !found {
				continue
			}
			carveReq.alignPad = req.AlignPad

			return h.finishContiguous(req, free, carveReq, textureSlot)
		}
	}

	if flags&(AllocNoncontiguousAllowed|AllocNoncontiguous) == 0 {
		return nil, errors.Wrapf(memutils.ErrOutOfMemory, "no free extent of 0x%x bytes aligned to 0x%x in [0x%x, 0x%x]", allocSize, alignment, rangeLo, rangeHi)
	}

	return h.allocateNoncontiguous(req, addressRange{rangeLo, rangeHi}, alignment, textureSlot, check)
}

func (h *Heap) allocateFixed(req *AllocationRequest, check *placementCheck, lo, size, alignment uint64) (*Allocation, error) {
	if lo%alignment != 0 {
		return nil, errors.Wrapf(memutils.ErrOutOfMemory, "fixed address 0x%x is not aligned to 0x%x", lo, alignment)
	}
	if memutils.AddOverflows(lo, size-1) {
		return nil, errors.Wrapf(memutils.ErrOutOfMemory, "fixed range at 0x%x of 0x%x bytes wraps the address space", lo, size)
	}
	hi := lo + size - 1

	for free := h.freeHead; free != nil; free = free.nextFree {
		if lo < free.begin || hi > free.end {
			continue
		}
		if !h.validForRegion(check, lo, hi) {
			break
		}

		return h.finishContiguous(req, free, carveRequest{lo: lo, hi: hi, align: lo, alignPad: req.AlignPad}, -1)
	}

	return nil, errors.Wrapf(memutils.ErrOutOfMemory, "fixed range [0x%x, 0x%x] is not free", lo, hi)
}

// scanFreeList looks for the first placement of size bytes within pass, walking up from the lowest
// free block or down from the highest
func (h *Heap) scanFreeList(direction GrowDirection, pass addressRange, size, alignment uint64, check *placementCheck) (*block, carveRequest, bool) {
	free := h.freeHead
	if direction == GrowDown {
		free = h.freeTail
	}

	for ; free != nil; free = h.nextScanned(free, direction) {
		if free.end < pass.lo || free.begin > pass.hi {
			continue
		}

		blockLo := memutils.Max(pass.lo, free.begin)
		blockHi := memutils.Min(pass.hi, free.end)
		if blockHi-blockLo < size-1 {
			continue
		}

		var lo uint64
		if direction == GrowDown {
			lo = memutils.RoundDown(blockHi-size+1, alignment)
		} else {
			if memutils.AddOverflows(blockLo, alignment-1) {
				continue
			}
			lo = memutils.RoundUp(blockLo, alignment)
		}

		if memutils.AddOverflows(lo, size-1) {
			continue
		}
		hi := lo + size - 1

		if lo < blockLo || hi > blockHi {
			continue
		}
		if !h.validForRegion(check, lo, hi) {
			continue
		}

		return free, carveRequest{lo: lo, hi: hi, align: lo}, true
	}

	return nil, carveRequest{}, false
}

func (h *Heap) nextScanned(b *block, direction GrowDirection) *block {
	if direction == GrowDown {
		return b.prevFree
	}
	return b.nextFree
}

func newOwnership(req *AllocationRequest, contiguous bool) *ownership {
	return &ownership{
		owner:        req.Owner,
		allocType:    req.Type,
		compression:  req.Compression,
		pageSize:     req.PageSize,
		contiguous:   contiguous,
		blacklistOff: req.BlacklistOff,
		userData:     req.UserData,
		textureSlot:  -1,
	}
}

func (h *Heap) finishContiguous(req *AllocationRequest, free *block, carveReq carveRequest, textureSlot int) (*Allocation, error) {
	owned := newOwnership(req, true)
	b := h.carve(free, carveReq, owned)

	alloc := &Allocation{
		owner:      req.Owner,
		client:     req.Client,
		allocType:  req.Type,
		offset:     b.offset(),
		size:       req.Size,
		contiguous: true,
		extents:    []Extent{{Begin: b.begin, End: b.end}},
		userData:   req.UserData,
	}
	owned.allocation = alloc

	if err := h.bindResources(req, b, textureSlot); err != nil {
		return nil, err
	}

	h.registerAllocation(alloc, b)
	h.allocCount++

	h.logger.LogAttrs(context.Background(), slog.LevelDebug, "Heap::Allocate",
		slog.String("owner", req.Owner.String()),
		slog.String("type", req.Type.String()),
		slog.String("offset", hexString(alloc.offset)),
		slog.Uint64("begin", b.begin),
		slog.Uint64("end", b.end),
	)

	return alloc, nil
}

// bindResources attaches hardware resources to the head block of a new allocation. On failure the
// allocation's blocks are returned to the free lists.
func (h *Heap) bindResources(req *AllocationRequest, head *block, textureSlot int) error {
	owned := head.owned

	if !req.internal {
		resource, err := h.resources.AllocateResources(head.resourceInfo())
		if err != nil {
			h.unwind(head)
			return errors.Wrapf(err, "failed to bind resources to [0x%x, 0x%x]", head.begin, head.end)
		}
		owned.hwResource = resource
		owned.bound = true
	}

	if textureSlot >= 0 {
		owned.textureClient = req.Client
		owned.textureSlot = textureSlot
		h.textures.acquire(textureSlot)
	}

	return nil
}

// unwind frees every block of an allocation that was never handed out
func (h *Heap) unwind(head *block) {
	for b := head; b != nil; {
		next := b.owned.noncontigNext
		if err := h.blockFree(b); err != nil {
			h.logger.LogAttrs(context.Background(), slog.LevelError, "failed to unwind a partial allocation",
				slog.Any("error", err))
		}
		b = next
	}
}
