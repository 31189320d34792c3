package heap

import (
	"context"
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/hashicorp/go-multierror"
	"github.com/vkngwrapper/fbheap/heap/internal/utils"
	"github.com/vkngwrapper/fbheap/memutils"
	"golang.org/x/exp/slog"
)

// Heap manages a contiguous range of device address space, handing out aligned ranges to callers
// and coalescing them back on free. A Heap is safe for concurrent use unless it was created with
// HeapCreateExternallySynchronized.
type Heap struct {
	logger *slog.Logger
	mutex  utils.OptionalMutex

	heapType HeapType
	flags    CreateFlags

	base     uint64
	total    uint64
	free     uint64
	reserved uint64

	blockHead  *block
	blockTail  *block
	blockCount int

	freeHead  *block
	freeTail  *block
	freeCount int

	ranked sizeRankedList
	index  addressIndex

	placement [numPlacementClasses]GrowDirection
	textures  textureRing

	regions          []Region
	regionPriority   []int
	preferSlowRegion bool
	reservedRegions  []*Allocation

	shuffleStrides []uint64
	shuffleIndex   int
	bigPageSize    uint64
	hostPageSize   uint64

	blacklist blacklist

	resources  ResourceManager
	retirement RetirementReporter
	callbacks  blockCallbacks

	nextHandle AllocationHandle
	handles    *swiss.Map[AllocationHandle, *block]
	allocCount int

	refCount  int
	destroyed bool
}

func validateOptions(options *CreateOptions) error {
	if options.TextureClients < 0 {
		return errors.Wrapf(memutils.ErrInvalidArgument, "texture client capacity %d is negative", options.TextureClients)
	}
	if options.MaxBlacklistPages < 0 {
		return errors.Wrapf(memutils.ErrInvalidArgument, "blacklist capacity %d is negative", options.MaxBlacklistPages)
	}

	for i, stride := range options.ShuffleStrides {
		if stride == 0 {
			return errors.Wrapf(memutils.ErrInvalidArgument, "shuffle stride %d is zero", i)
		}
		if i > 0 && stride <= options.ShuffleStrides[i-1] {
			return errors.Wrapf(memutils.ErrInvalidArgument, "shuffle strides must be ascending, but stride %d is %d", i, stride)
		}
	}

	if err := memutils.CheckPow2(options.BigPageSize, "big page size"); err != nil {
		return errors.Wrap(memutils.ErrInvalidArgument, err.Error())
	}
	if options.BigPageSize < PageSize {
		return errors.Wrapf(memutils.ErrInvalidArgument, "big page size 0x%x is smaller than the native page size", options.BigPageSize)
	}

	for class := range options.Placement {
		if class >= numPlacementClasses {
			return errors.Wrapf(memutils.ErrInvalidArgument, "unknown placement class %d", class)
		}
	}

	return nil
}

// New creates a heap managing [base, base+size)
//
// logger - The logger that allocation traces and unreleased memory reports will be written to
//
// options - Optional parameters: it is valid to leave all the fields blank
func New(logger *slog.Logger, base, size uint64, options CreateOptions) (*Heap, error) {
	if size == 0 {
		return nil, errors.Wrap(memutils.ErrInvalidArgument, "heap size must be greater than zero")
	}
	if memutils.AddOverflows(base, size-1) {
		return nil, errors.Wrapf(memutils.ErrInvalidArgument, "heap at 0x%x of 0x%x bytes wraps the address space", base, size)
	}

	options.fillDefaults()
	if err := validateOptions(&options); err != nil {
		return nil, err
	}

	h := &Heap{
		logger: logger,
		mutex: utils.OptionalMutex{
			UseMutex: options.Flags&HeapCreateExternallySynchronized == 0,
		},

		heapType: options.HeapType,
		flags:    options.Flags,

		base:  base,
		total: size,
		free:  size,

		ranked: newSizeRankedList(),
		index:  newAddressIndex(),

		placement: defaultPlacement(),
		textures:  newTextureRing(options.TextureClients),

		preferSlowRegion: options.PreferSlowRegion,

		shuffleStrides: options.ShuffleStrides,
		bigPageSize:    options.BigPageSize,
		hostPageSize:   options.HostPageSize,

		blacklist: blacklist{capacity: options.MaxBlacklistPages},

		resources:  options.ResourceManager,
		retirement: options.RetirementReporter,

		handles:  swiss.NewMap[AllocationHandle, *block](42),
		refCount: 1,
	}
	h.callbacks = blockCallbacks{
		Callbacks: options.Callbacks,
		Heap:      h,
	}

	for class, direction := range options.Placement {
		h.placement[class] = direction
	}

	if options.Regions != nil {
		h.regions = append([]Region(nil), options.Regions.Regions()...)
		if err := validateRegions(h.regions, base, size); err != nil {
			return nil, err
		}
		h.regionPriority = regionPriority(h.regions)
	}

	initial := h.allocateBlock(base, base+size-1)
	h.blockHead = initial
	h.blockTail = initial
	h.blockCount = 1
	h.insertFreeSorted(initial)
	h.update(initial, blockAdd)

	if err := h.reserveRegions(); err != nil {
		return nil, err
	}

	if err := h.rebuildBlacklist(); err != nil {
		h.logger.LogAttrs(context.Background(), slog.LevelWarn, "failed to apply reported bad pages",
			slog.Any("error", err))
	}

	h.debugValidate()
	return h, nil
}

// reserveRegions takes a permanent allocation over every reserved region
func (h *Heap) reserveRegions() error {
	for _, region := range h.regions {
		if !region.Reserved {
			continue
		}

		req := AllocationRequest{
			Owner:     OwnerRMReservedRegion,
			Type:      TypeReserved,
			Flags:     AllocFixedAddress,
			Size:      region.Size(),
			Alignment: 1,
			Offset:    region.Base,
			internal:  true,
		}
		alloc, err := h.allocate(&req)
		if err != nil {
			return errors.Wrapf(err, "failed to reserve region [0x%x, 0x%x]", region.Base, region.Limit)
		}

		head, ok := h.allocationHead(alloc)
		if !ok {
			return errors.Wrapf(memutils.ErrInvalidState, "reserved region [0x%x, 0x%x] has no block", region.Base, region.Limit)
		}
		head.owned.reservedRegion = true

		h.reserved += region.Size()
		h.reservedRegions = append(h.reservedRegions, alloc)
	}

	return nil
}

// Destroy releases every block in the heap. Allocations that were never freed are logged and reported
// as an error, but are released regardless. Destroy does not consult the reference count kept by AddRef
// and RemoveRef. Once destroyed, every operation that changes the heap fails with ErrInvalidState.
func (h *Heap) Destroy() error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.destroyed {
		return nil
	}

	var result *multierror.Error
	if err := h.freeBlacklistedPages(); err != nil {
		result = multierror.Append(result, err)
	}

	for _, alloc := range h.reservedRegions {
		head, ok := h.allocationHead(alloc)
		if !ok {
			continue
		}
		head.owned.refCount = 1
		if err := h.release(head); err != nil {
			result = multierror.Append(result, err)
		}
	}
	h.reservedRegions = nil

	var unreleased []*block
	h.handles.Iter(func(handle AllocationHandle, head *block) bool {
		unreleased = append(unreleased, head)
		return false
	})
	sort.Slice(unreleased, func(i, j int) bool {
		return unreleased[i].begin < unreleased[j].begin
	})

	for _, head := range unreleased {
		h.logUnreleasedMemory(head.owned.allocation)

		head.owned.refCount = 1
		if err := h.release(head); err != nil {
			result = multierror.Append(result, err)
		}
	}

	if len(unreleased) > 0 {
		result = multierror.Append(result, errors.Newf("%d allocations were not freed before the destruction of this heap", len(unreleased)))
	}

	h.destroyed = true
	return result.ErrorOrNil()
}

func (h *Heap) checkAlive() error {
	if h.destroyed {
		return errors.Wrap(memutils.ErrInvalidState, "the heap has been destroyed")
	}
	return nil
}

func (h *Heap) logUnreleasedMemory(alloc *Allocation) {
	h.logger.LogAttrs(context.Background(), slog.LevelError, "[UNRELEASED MEMORY] unfreed allocation",
		slog.String("owner", alloc.owner.String()),
		slog.String("type", alloc.allocType.String()),
		slog.String("offset", hexString(alloc.offset)),
		slog.Uint64("size", alloc.size),
		slog.Any("userData", alloc.userData),
	)
}
