package heap

import (
	"context"
	"math"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/fbheap/memutils"
	"golang.org/x/exp/slog"
)

func (h *Heap) noncontiguousPageSize(attr PageSizeAttr) (uint64, error) {
	switch attr {
	case PageSizeDefault, PageSize4KB:
		return PageSize, nil
	case PageSizeBig:
		return h.bigPageSize, nil
	case PageSizeHuge:
		if h.flags&HeapCreateHugePages == 0 {
			return 0, errors.Wrap(memutils.ErrInvalidArgument, "huge pages are not enabled for this heap")
		}
		return HugePageSize, nil
	case PageSize512MB:
		if h.flags&HeapCreate512MBPages == 0 {
			return 0, errors.Wrap(memutils.ErrInvalidArgument, "512MB pages are not enabled for this heap")
		}
		return Page512MBSize, nil
	}

	return 0, errors.Wrapf(memutils.ErrInvalidArgument, "unknown page size %d", attr)
}

// pageEnd rounds an inclusive end address down to the last byte of a page
func pageEnd(end, pageSize uint64) uint64 {
	if end == math.MaxUint64 {
		return end
	}
	return memutils.AlignDown(end+1, pageSize) - 1
}

// allocateNoncontiguous assembles an allocation from page-sized pieces of the largest free extents
func (h *Heap) allocateNoncontiguous(req *AllocationRequest, pass addressRange, alignment uint64, textureSlot int, check *placementCheck) (*Allocation, error) {
	pageSize, err := h.noncontiguousPageSize(req.PageSize)
	if err != nil {
		return nil, err
	}

	allocSize := req.Size + req.AlignPad
	if memutils.AddOverflows(allocSize, pageSize-1) {
		return nil, errors.Wrapf(memutils.ErrOutOfMemory, "0x%x bytes cannot be rounded to 0x%x pages", allocSize, pageSize)
	}
	pagesLeft := memutils.AlignUp(allocSize, pageSize) / pageSize

	alloc := &Allocation{
		owner:     req.Owner,
		client:    req.Client,
		allocType: req.Type,
		size:      req.Size,
		pageSize:  pageSize,
		userData:  req.UserData,
	}

	var head, tail *block
	for _, free := range h.ranked.snapshot() {
		if pagesLeft == 0 {
			break
		}
		if free.end < pass.lo || free.begin > pass.hi {
			continue
		}

		blockBegin := memutils.Max(pass.lo, free.begin)
		blockEnd := memutils.Min(pass.hi, free.end)
		if blockBegin >= blockEnd || blockEnd-blockBegin < pageSize-1 {
			continue
		}

		blockBegin = memutils.AlignUp(blockBegin, pageSize)
		blockEnd = pageEnd(blockEnd, pageSize)
		if blockBegin >= blockEnd {
			continue
		}

		blockAligned := blockBegin
		alignPad := uint64(0)
		if head == nil {
			if memutils.AddOverflows(blockBegin, alignment-1) {
				continue
			}
			blockAligned = memutils.RoundUp(blockBegin, alignment)
			if memutils.AddOverflows(blockAligned, req.AlignPad) || blockAligned+req.AlignPad > blockEnd {
				continue
			}
			blockBegin = memutils.AlignDown(blockAligned, pageSize)
			alignPad = req.AlignPad
		}

		blockPages := (blockEnd-blockBegin)/pageSize + 1
		if blockPages > pagesLeft {
			blockPages = pagesLeft
			blockEnd = blockBegin + blockPages*pageSize - 1
		}
		if !h.validForRegion(check, blockBegin, blockEnd) {
			continue
		}
		pagesLeft -= blockPages

		owned := newOwnership(req, false)
		owned.allocation = alloc
		b := h.carve(free, carveRequest{lo: blockBegin, hi: blockEnd, align: blockAligned, alignPad: alignPad}, owned)
		if head == nil {
			head = b
			alloc.offset = b.offset()
		} else {
			tail.owned.noncontigNext = b
		}
		tail = b
		b.owned.refCount = 0
		alloc.extents = append(alloc.extents, Extent{Begin: b.begin, End: b.end})

		alloc.pages = h.shufflePages(alloc.pages, b.begin, pageSize, blockPages)
	}

	if head == nil || pagesLeft > 0 {
		if head != nil {
			h.unwind(head)
		}
		return nil, errors.Wrapf(memutils.ErrOutOfMemory, "not enough free 0x%x pages for 0x%x bytes in [0x%x, 0x%x]", pageSize, allocSize, pass.lo, pass.hi)
	}
	head.owned.refCount = 1

	if err := h.bindResources(req, head, textureSlot); err != nil {
		return nil, err
	}

	h.registerAllocation(alloc, head)
	h.allocCount++

	h.logger.LogAttrs(context.Background(), slog.LevelDebug, "Heap::Allocate noncontiguous",
		slog.String("owner", req.Owner.String()),
		slog.String("type", req.Type.String()),
		slog.String("offset", hexString(alloc.offset)),
		slog.Int("extents", len(alloc.extents)),
		slog.Uint64("pageSize", pageSize),
	)

	return alloc, nil
}

// nextShuffleStride picks the stride for an extent of numPages pages and advances the rotation
func (h *Heap) nextShuffleStride(numPages uint64) uint64 {
	if h.flags&HeapCreatePageShuffle == 0 || len(h.shuffleStrides) == 0 {
		return 1
	}

	i := h.shuffleIndex
	stride := h.shuffleStrides[i]
	for numPages < stride && i > 0 {
		i--
		stride = h.shuffleStrides[i]
	}

	h.shuffleIndex = (h.shuffleIndex + 1) % len(h.shuffleStrides)

	return stride
}

// shufflePages appends the 4KiB pages of numPages pages starting at base. Pages are visited in stride
// order: every stride-th page starting from 0, then from 1, and so on.
func (h *Heap) shufflePages(dst []uint64, base, pageSize, numPages uint64) []uint64 {
	stride := h.nextShuffleStride(numPages)
	subPages := pageSize / PageSize

	for start := uint64(0); start < stride; start++ {
		for page := start; page < numPages; page += stride {
			pageBase := base + page*pageSize
			for sub := uint64(0); sub < subPages; sub++ {
				dst = append(dst, pageBase+sub*PageSize)
			}
		}
	}

	return dst
}
