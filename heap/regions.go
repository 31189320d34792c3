package heap

import (
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/fbheap/memutils"
)

// Region is a contiguous part of the managed range with uniform capabilities. Base and Limit are both
// inclusive.
type Region struct {
	Base  uint64
	Limit uint64

	// Reserved regions are carved out at heap creation and only accept TypeReserved allocations
	Reserved bool
	// InternalHeap regions are used by the heap's own bookkeeping and never receive external page
	// allocator carve-outs
	InternalHeap        bool
	SupportsCompression bool
	SupportsISO         bool
	Protected           bool

	// Performance orders regions for placement. Higher values are tried first.
	Performance int
}

// Size returns the number of bytes covered by the region
func (r Region) Size() uint64 {
	return r.Limit - r.Base + 1
}

func (r Region) contains(lo, hi uint64) bool {
	return lo >= r.Base && hi <= r.Limit
}

// RegionSource supplies the region table for a heap
type RegionSource interface {
	Regions() []Region
}

// StaticRegions is a RegionSource backed by a fixed slice
type StaticRegions []Region

func (r StaticRegions) Regions() []Region {
	return r
}

func validateRegions(regions []Region, base, size uint64) error {
	top := base + size - 1
	for i, region := range regions {
		if region.Limit < region.Base {
			return errors.Wrapf(memutils.ErrInvalidArgument, "region %d has limit 0x%x below base 0x%x", i, region.Limit, region.Base)
		}
		if region.Base < base || region.Limit > top {
			return errors.Wrapf(memutils.ErrInvalidArgument, "region %d [0x%x, 0x%x] lies outside the heap [0x%x, 0x%x]", i, region.Base, region.Limit, base, top)
		}
		for j := 0; j < i; j++ {
			other := regions[j]
			if region.Base <= other.Limit && other.Base <= region.Limit {
				return errors.Wrapf(memutils.ErrInvalidArgument, "region %d overlaps region %d", i, j)
			}
		}
	}

	return nil
}

// regionPriority returns the indices of every non-reserved region, fastest first
func regionPriority(regions []Region) []int {
	var order []int
	for i := range regions {
		if !regions[i].Reserved {
			order = append(order, i)
		}
	}

	sort.SliceStable(order, func(i, j int) bool {
		return regions[order[i]].Performance > regions[order[j]].Performance
	})

	return order
}

type addressRange struct {
	lo, hi uint64
}

// placementPasses intersects [lo, hi] with every region in priority order. A heap without regions
// has a single pass over the whole range.
func (h *Heap) placementPasses(lo, hi uint64, priority Priority) []addressRange {
	if len(h.regions) == 0 {
		return []addressRange{{lo, hi}}
	}

	reverse := priority == PriorityLow || (h.preferSlowRegion && priority != PriorityHigh)

	passes := make([]addressRange, 0, len(h.regionPriority))
	for i := range h.regionPriority {
		index := h.regionPriority[i]
		if reverse {
			index = h.regionPriority[len(h.regionPriority)-1-i]
		}
		region := h.regions[index]

		passLo := memutils.Max(lo, region.Base)
		passHi := memutils.Min(hi, region.Limit)
		if passLo > passHi {
			continue
		}
		passes = append(passes, addressRange{passLo, passHi})
	}

	return passes
}

// placementCheck carries the properties of an allocation that decide which regions may hold it
type placementCheck struct {
	allocType   AllocationType
	owner       Owner
	compression Compression
	protected   bool
	bypass      bool
}

func (h *Heap) regionFor(lo, hi uint64) (Region, bool) {
	for _, region := range h.regions {
		if region.contains(lo, hi) {
			return region, true
		}
	}
	return Region{}, false
}

// validForRegion reports whether [lo, hi] may hold the allocation described by check
func (h *Heap) validForRegion(check *placementCheck, lo, hi uint64) bool {
	if check.bypass || len(h.regions) == 0 {
		return true
	}

	region, found := h.regionFor(lo, hi)
	if !found {
		return check.allocType == TypeReserved
	}

	if region.Reserved && check.allocType != TypeReserved {
		return false
	}
	if !region.SupportsCompression && check.compression == CompressionRequired {
		return false
	}
	if !region.SupportsISO && check.allocType.isISO() {
		return false
	}
	if region.Protected != check.protected {
		return false
	}
	if check.owner == OwnerPMAReservedRegion && (region.InternalHeap || region.Reserved) {
		return false
	}

	return true
}
