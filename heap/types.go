package heap

import (
	"fmt"
	"strings"
)

// AllocationType describes what a region of the heap will be used for. The heap uses it to pick
// a placement bucket, to check region compatibility, and to track texture clients.
type AllocationType uint32

const (
	TypeImage AllocationType = iota
	TypeDepth
	TypeTexture
	TypeVideo
	TypeFont
	TypeCursor
	TypeDMA
	TypeInstance
	TypePrimary
	TypeZCull
	TypeUnused
	TypeShaderProgram
	TypeOwnerRM
	TypeNotifier
	TypeReserved
	TypePMA
	TypeStencil

	numAllocationTypes
)

var allocationTypeMapping = map[AllocationType]string{
	TypeImage:         "Image",
	TypeDepth:         "Depth",
	TypeTexture:       "Texture",
	TypeVideo:         "Video",
	TypeFont:          "Font",
	TypeCursor:        "Cursor",
	TypeDMA:           "DMA",
	TypeInstance:      "Instance",
	TypePrimary:       "Primary",
	TypeZCull:         "ZCull",
	TypeUnused:        "Unused",
	TypeShaderProgram: "ShaderProgram",
	TypeOwnerRM:       "OwnerRM",
	TypeNotifier:      "Notifier",
	TypeReserved:      "Reserved",
	TypePMA:           "PMA",
	TypeStencil:       "Stencil",
}

func (t AllocationType) String() string {
	str, ok := allocationTypeMapping[t]
	if !ok {
		return fmt.Sprintf("AllocationType(%d)", uint32(t))
	}
	return str
}

// ParseAllocationType maps a name produced by AllocationType.String back to its type
func ParseAllocationType(name string) (AllocationType, bool) {
	for t, str := range allocationTypeMapping {
		if strings.EqualFold(str, name) {
			return t, true
		}
	}
	return 0, false
}

// Valid reports whether t is one of the known allocation types
func (t AllocationType) Valid() bool {
	return t < numAllocationTypes
}

// isISO reports whether the type is scanned out isochronously by display hardware
func (t AllocationType) isISO() bool {
	return t == TypePrimary || t == TypeCursor || t == TypeVideo
}

// AllocationFlags modify how a single allocation is placed
type AllocationFlags uint32

const (
	// AllocFixedAddress requests that the allocation be placed exactly at AllocationRequest.Offset. The
	// allocation fails if that range is not entirely free.
	AllocFixedAddress AllocationFlags = 1 << iota
	// AllocBankForce replaces the placement bucket's direction with the one chosen by AllocBankGrowDown
	AllocBankForce
	// AllocBankHint applies the direction chosen by AllocBankGrowDown to this allocation only, unless
	// bank placement is being ignored
	AllocBankHint
	// AllocBankGrowDown selects the grow-down direction for AllocBankForce and AllocBankHint
	AllocBankGrowDown
	// AllocForceMemGrowsUp places this allocation from the bottom of free space and disables bank placement
	AllocForceMemGrowsUp
	// AllocForceMemGrowsDown places this allocation from the top of free space and disables bank placement
	AllocForceMemGrowsDown
	// AllocIgnoreBankPlacement disables bucket directions; the heap falls back to first fit
	AllocIgnoreBankPlacement
	// AllocAlignmentHint tells AllocateHint to honor HintRequest.Alignment
	AllocAlignmentHint
	// AllocAlignmentForce tells AllocateHint to honor HintRequest.Alignment
	AllocAlignmentForce
	// AllocForceAlignHostPage rounds the alignment up to a multiple of the host page size
	AllocForceAlignHostPage
	// AllocProtected restricts the allocation to protected regions
	AllocProtected
	// AllocNoncontiguousAllowed lets the heap satisfy the allocation from several extents when no single
	// free extent is large enough
	AllocNoncontiguousAllowed
	// AllocNoncontiguous skips the contiguous scan and goes straight to the non-contiguous allocator
	AllocNoncontiguous
)

var allocationFlagsMapping = []struct {
	flag AllocationFlags
	name string
}{
	{AllocFixedAddress, "AllocFixedAddress"},
	{AllocBankForce, "AllocBankForce"},
	{AllocBankHint, "AllocBankHint"},
	{AllocBankGrowDown, "AllocBankGrowDown"},
	{AllocForceMemGrowsUp, "AllocForceMemGrowsUp"},
	{AllocForceMemGrowsDown, "AllocForceMemGrowsDown"},
	{AllocIgnoreBankPlacement, "AllocIgnoreBankPlacement"},
	{AllocAlignmentHint, "AllocAlignmentHint"},
	{AllocAlignmentForce, "AllocAlignmentForce"},
	{AllocForceAlignHostPage, "AllocForceAlignHostPage"},
	{AllocProtected, "AllocProtected"},
	{AllocNoncontiguousAllowed, "AllocNoncontiguousAllowed"},
	{AllocNoncontiguous, "AllocNoncontiguous"},
}

func (f AllocationFlags) String() string {
	if f == 0 {
		return "None"
	}

	var names []string
	remaining := f
	for _, entry := range allocationFlagsMapping {
		if f&entry.flag != 0 {
			names = append(names, entry.name)
			remaining &^= entry.flag
		}
	}

	if remaining != 0 {
		names = append(names, fmt.Sprintf("0x%x", uint32(remaining)))
	}

	return strings.Join(names, "|")
}

// textureTrackedMask is the set of flags that disqualify a texture allocation from texture-client tracking.
// Only the non-contiguous fallback permission is allowed alongside tracked textures.
const textureTrackedMask = ^AllocNoncontiguousAllowed

// PageSizeAttr chooses the page granularity for non-contiguous allocations
type PageSizeAttr uint8

const (
	PageSizeDefault PageSizeAttr = iota
	PageSize4KB
	PageSizeBig
	PageSizeHuge
	PageSize512MB
)

var pageSizeMapping = map[PageSizeAttr]string{
	PageSizeDefault: "Default",
	PageSize4KB:     "4KB",
	PageSizeBig:     "Big",
	PageSizeHuge:    "Huge",
	PageSize512MB:   "512MB",
}

func (p PageSizeAttr) String() string {
	return pageSizeMapping[p]
}

// Compression describes whether an allocation needs compression-capable memory
type Compression uint8

const (
	CompressionNone Compression = iota
	CompressionAny
	CompressionRequired
)

var compressionMapping = map[Compression]string{
	CompressionNone:     "None",
	CompressionAny:      "Any",
	CompressionRequired: "Required",
}

func (c Compression) String() string {
	return compressionMapping[c]
}

// Priority selects which end of the region priority list is scanned first
type Priority uint8

const (
	PriorityDefault Priority = iota
	PriorityHigh
	PriorityLow
)

var priorityMapping = map[Priority]string{
	PriorityDefault: "Default",
	PriorityHigh:    "High",
	PriorityLow:     "Low",
}

func (p Priority) String() string {
	return priorityMapping[p]
}

// Owner is an opaque tag identifying who owns a block. The zero value is never a valid owner.
type Owner uint32

const (
	// OwnerRMReservedRegion owns the blocks carved for reserved regions at heap creation
	OwnerRMReservedRegion Owner = 0xFFFFFF00 + iota
	// OwnerPMAReservedRegion owns blocks handed to an external page allocator
	OwnerPMAReservedRegion
	// OwnerBlacklist owns the single-page blocks that keep bad pages out of circulation
	OwnerBlacklist
)

var ownerMapping = map[Owner]string{
	OwnerRMReservedRegion:  "RMReservedRegion",
	OwnerPMAReservedRegion: "PMAReservedRegion",
	OwnerBlacklist:         "Blacklist",
}

// heapInternal reports whether o is only ever given out by the heap itself. Callers may not allocate,
// free, or reference blocks under these owners.
func (o Owner) heapInternal() bool {
	return o == OwnerRMReservedRegion || o == OwnerBlacklist
}

func (o Owner) String() string {
	str, ok := ownerMapping[o]
	if !ok {
		return fmt.Sprintf("0x%x", uint32(o))
	}
	return str
}

// ClientID identifies the producer of texture allocations for the texture-client ring. Zero means
// "no client".
type ClientID uint32

// HeapType selects the kind of address range the heap manages
type HeapType uint8

const (
	// HeapTypeGlobal manages the device-wide framebuffer
	HeapTypeGlobal HeapType = iota
	// HeapTypePhysMemSuballocator manages a physically-backed range carved from another allocator. It is the
	// only type that can be resized.
	HeapTypePhysMemSuballocator
	// HeapTypePartitionLocal manages the memory of a single partition
	HeapTypePartitionLocal
)

var heapTypeMapping = map[HeapType]string{
	HeapTypeGlobal:              "Global",
	HeapTypePhysMemSuballocator: "PhysMemSuballocator",
	HeapTypePartitionLocal:      "PartitionLocal",
}

func (t HeapType) String() string {
	return heapTypeMapping[t]
}

const (
	// PageSize is the native page size of the heap, and the granularity of the blacklist
	PageSize uint64 = 4 * 1024
	// HugePageSize is the size of a huge page
	HugePageSize uint64 = 2 * 1024 * 1024
	// Page512MBSize is the size of the largest page tier
	Page512MBSize uint64 = 512 * 1024 * 1024

	defaultBigPageSize uint64 = 64 * 1024
)
