package heap

import (
	"sync"
)

var blockAllocator = sync.Pool{
	New: func() any {
		return &block{}
	},
}

// ownership holds the fields that only exist while a block is owned
type ownership struct {
	owner        Owner
	allocType    AllocationType
	compression  Compression
	pageSize     PageSizeAttr
	contiguous   bool
	blacklistOff bool
	userData     any

	// reservedRegion is set on blocks whose bytes were counted into Heap.reserved
	reservedRegion bool

	hwResource HWResource
	bound      bool

	refCount      uint32
	textureClient ClientID
	textureSlot   int

	allocation    *Allocation
	noncontigNext *block
}

// block is a maximal run of addresses [begin, end] that is either free or owned by a single allocation
type block struct {
	begin uint64
	end   uint64

	align    uint64
	alignPad uint64

	prev *block
	next *block

	prevFree *block
	nextFree *block
	inFree   bool
	ranked   bool

	owned *ownership
}

func (b *block) IsFree() bool {
	return b.owned == nil
}

func (b *block) size() uint64 {
	return b.end - b.begin + 1
}

// offset is the address handed back to the caller for this block
func (b *block) offset() uint64 {
	return b.align + b.alignPad
}

func (b *block) resourceInfo() ResourceInfo {
	info := ResourceInfo{
		Offset:   b.offset(),
		Begin:    b.begin,
		End:      b.end,
		Align:    b.align,
		AlignPad: b.alignPad,
	}

	if b.owned != nil {
		info.Owner = b.owned.owner
		info.Type = b.owned.allocType
		info.Compression = b.owned.compression
		info.PageSize = b.owned.pageSize
		info.Contiguous = b.owned.contiguous
		info.UserData = b.owned.userData
	}

	return info
}

func (h *Heap) allocateBlock(begin, end uint64) *block {
	b := blockAllocator.Get().(*block)
	b.begin = begin
	b.end = end
	b.align = begin
	return b
}

func (h *Heap) releaseBlockObject(b *block) {
	*b = block{}
	blockAllocator.Put(b)
}

// BlockInfo is a snapshot of a single block in the heap
type BlockInfo struct {
	Begin uint64
	End   uint64
	Free  bool

	// The remaining fields are only populated for owned blocks
	Owner    Owner
	Type     AllocationType
	Offset   uint64
	Align    uint64
	AlignPad uint64
	RefCount uint32
}

// Size returns the number of bytes covered by the block
func (i BlockInfo) Size() uint64 {
	return i.End - i.Begin + 1
}

func (b *block) info() BlockInfo {
	info := BlockInfo{
		Begin: b.begin,
		End:   b.end,
		Free:  b.IsFree(),
	}

	if b.owned != nil {
		info.Owner = b.owned.owner
		info.Type = b.owned.allocType
		info.Offset = b.offset()
		info.Align = b.align
		info.AlignPad = b.alignPad
		info.RefCount = b.owned.refCount
	}

	return info
}
