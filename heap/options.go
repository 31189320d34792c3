package heap

import (
	"fmt"
	"os"
	"strings"
)

// CreateFlags indicate specific heap behaviors to activate or deactivate
type CreateFlags int32

const (
	// HeapCreateExternallySynchronized ensures that this heap will not be synchronized internally. The
	// consumer must guarantee that the heap is used from only one goroutine at a time or is synchronized
	// by some other mechanism.
	HeapCreateExternallySynchronized CreateFlags = 1 << iota
	// HeapCreatePageShuffle emits the pages of every non-contiguous extent in a strided order instead of
	// address order
	HeapCreatePageShuffle
	// HeapCreatePageRetirement enables the blacklist. Without it, BlacklistPages returns ErrNotSupported and
	// bad pages reported by the RetirementReporter are ignored.
	HeapCreatePageRetirement
	// HeapCreateDynamicPageOfflining allows pages to be retired while they are in use. Such pages are held
	// in the PendingRetirement state until the block containing them is freed.
	HeapCreateDynamicPageOfflining
	// HeapCreateHugePages allows non-contiguous allocations to request PageSizeHuge
	HeapCreateHugePages
	// HeapCreate512MBPages allows non-contiguous allocations to request PageSize512MB
	HeapCreate512MBPages
)

var createFlagsMapping = []struct {
	flag CreateFlags
	name string
}{
	{HeapCreateExternallySynchronized, "HeapCreateExternallySynchronized"},
	{HeapCreatePageShuffle, "HeapCreatePageShuffle"},
	{HeapCreatePageRetirement, "HeapCreatePageRetirement"},
	{HeapCreateDynamicPageOfflining, "HeapCreateDynamicPageOfflining"},
	{HeapCreateHugePages, "HeapCreateHugePages"},
	{HeapCreate512MBPages, "HeapCreate512MBPages"},
}

func (f CreateFlags) String() string {
	if f == 0 {
		return "None"
	}

	var names []string
	remaining := f
	for _, entry := range createFlagsMapping {
		if f&entry.flag != 0 {
			names = append(names, entry.name)
			remaining &^= entry.flag
		}
	}

	if remaining != 0 {
		names = append(names, fmt.Sprintf("0x%x", int32(remaining)))
	}

	return strings.Join(names, "|")
}

// ParseCreateFlag converts the name of a single flag, as printed by CreateFlags.String, back into the flag
func ParseCreateFlag(name string) (CreateFlags, bool) {
	for _, entry := range createFlagsMapping {
		if entry.name == name {
			return entry.flag, true
		}
	}

	return 0, false
}

const (
	defaultTextureClients    int = 4
	defaultMaxBlacklistPages int = 512
)

var defaultShuffleStrides = []uint64{1, 2, 3, 5, 7}

// CreateOptions contains optional settings when creating a heap
type CreateOptions struct {
	// Flags indicates specific heap behaviors to activate or deactivate
	Flags CreateFlags
	// HeapType selects the kind of range being managed. Only HeapTypePhysMemSuballocator heaps can be resized.
	HeapType HeapType

	// Placement overrides the grow direction of individual placement classes. Classes that are not present
	// keep their default direction: PlacementImage grows up, every other class grows down.
	Placement map[PlacementClass]GrowDirection

	// TextureClients is the capacity of the texture-client ring. The default is 4.
	TextureClients int
	// ShuffleStrides is the ascending list of strides used when HeapCreatePageShuffle is set. The default
	// is {1, 2, 3, 5, 7}.
	ShuffleStrides []uint64
	// BigPageSize is the page size used for PageSizeBig non-contiguous allocations. It must be a power of two
	// that is a multiple of PageSize. The default is 64KiB.
	BigPageSize uint64
	// HostPageSize is used by AllocateHint when AllocForceAlignHostPage is requested. The default is the
	// page size of the running process.
	HostPageSize uint64
	// MaxBlacklistPages is the number of bad page addresses the heap can remember. The default is 512.
	MaxBlacklistPages int

	// PreferSlowRegion reverses the region priority order for every allocation that is not PriorityHigh
	PreferSlowRegion bool
	// Regions describes the performance and capability regions of the managed range. It may be nil, in
	// which case the whole range is a single region with no restrictions.
	Regions RegionSource

	// ResourceManager binds hardware resources to allocations. It may be nil.
	ResourceManager ResourceManager
	// RetirementReporter supplies bad pages and is notified of pending retirements. It may be nil.
	RetirementReporter RetirementReporter

	// Callbacks is an optional set of callbacks that will be executed whenever a block is carved or released
	Callbacks *CallbackOptions
}

func (o *CreateOptions) fillDefaults() {
	if o.TextureClients == 0 {
		o.TextureClients = defaultTextureClients
	}
	if len(o.ShuffleStrides) == 0 {
		o.ShuffleStrides = defaultShuffleStrides
	}
	if o.BigPageSize == 0 {
		o.BigPageSize = defaultBigPageSize
	}
	if o.HostPageSize == 0 {
		o.HostPageSize = uint64(os.Getpagesize())
	}
	if o.MaxBlacklistPages == 0 {
		o.MaxBlacklistPages = defaultMaxBlacklistPages
	}
	if o.ResourceManager == nil {
		o.ResourceManager = nullResourceManager{}
	}
	if o.RetirementReporter == nil {
		o.RetirementReporter = nullRetirementReporter{}
	}
}
