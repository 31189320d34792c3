package heap

//go:generate mockgen -source callbacks.go -destination mocks/callbacks.go -package mocks

// HWResource is an opaque token returned by a ResourceManager when it binds hardware resources
// (compression tags, tiling state, etc.) to an allocation
type HWResource any

// ResourceInfo describes an allocation to the ResourceManager
type ResourceInfo struct {
	Owner       Owner
	Type        AllocationType
	Offset      uint64
	Begin       uint64
	End         uint64
	Align       uint64
	AlignPad    uint64
	Compression Compression
	PageSize    PageSizeAttr
	Contiguous  bool
	UserData    any
}

// Size returns the number of bytes covered by the described block
func (i ResourceInfo) Size() uint64 {
	return i.End - i.Begin + 1
}

// ResourceManager binds and releases the hardware resources that back heap allocations. The heap
// calls AllocateResources once an address range has been carved and FreeResources when the range
// is returned.
type ResourceManager interface {
	// AllocateResources is called with the final placement of a new allocation. An error unwinds the
	// allocation.
	AllocateResources(info ResourceInfo) (HWResource, error)
	// FreeResources releases a token previously returned by AllocateResources. An error is logged and
	// reported, but the address range is reclaimed regardless.
	FreeResources(info ResourceInfo, resource HWResource) error
}

// RetirementReporter supplies the pages known to be bad and is told when a page that was waiting for
// its allocation to be freed has been pulled out of circulation
type RetirementReporter interface {
	// BlacklistAddresses returns the bad pages that fall within [base, base+size)
	BlacklistAddresses(base, size uint64) ([]BadPage, error)
	// ChunkRetired is called when a page in the PendingRetirement state becomes blacklisted
	ChunkRetired(page BadPage)
}

type nullResourceManager struct{}

func (nullResourceManager) AllocateResources(info ResourceInfo) (HWResource, error) {
	return nil, nil
}

func (nullResourceManager) FreeResources(info ResourceInfo, resource HWResource) error {
	return nil
}

type nullRetirementReporter struct{}

func (nullRetirementReporter) BlacklistAddresses(base, size uint64) ([]BadPage, error) {
	return nil, nil
}

func (nullRetirementReporter) ChunkRetired(page BadPage) {}

type BlockCallback func(
	heap *Heap,
	owner Owner,
	begin uint64,
	end uint64,
	userData any,
)

// CallbackOptions is an optional set of callbacks that are executed whenever the heap carves or
// releases a block. A non-contiguous allocation triggers one call per block.
type CallbackOptions struct {
	Allocate BlockCallback
	Free     BlockCallback
	UserData any
}

type blockCallbacks struct {
	Callbacks *CallbackOptions
	Heap      *Heap
}

func (c *blockCallbacks) Allocate(owner Owner, begin, end uint64) {
	if c.Callbacks != nil && c.Callbacks.Allocate != nil {
		c.Callbacks.Allocate(c.Heap, owner, begin, end, c.Callbacks.UserData)
	}
}

func (c *blockCallbacks) Free(owner Owner, begin, end uint64) {
	if c.Callbacks != nil && c.Callbacks.Free != nil {
		c.Callbacks.Free(c.Heap, owner, begin, end, c.Callbacks.UserData)
	}
}
