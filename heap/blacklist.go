package heap

import (
	"context"
	"math"

	"github.com/cockroachdb/errors"
	"github.com/hashicorp/go-multierror"
	"github.com/vkngwrapper/fbheap/memutils"
	"golang.org/x/exp/slog"
)

// PageSource records how a bad page was discovered
type PageSource uint8

const (
	PageSourceStatic PageSource = iota
	PageSourceMultipleSBE
	PageSourceDBE
)

var pageSourceMapping = map[PageSource]string{
	PageSourceStatic:      "Static",
	PageSourceMultipleSBE: "MultipleSBE",
	PageSourceDBE:         "DBE",
}

func (s PageSource) String() string {
	return pageSourceMapping[s]
}

// dynamic reports whether the page was retired at runtime rather than at manufacture
func (s PageSource) dynamic() bool {
	return s != PageSourceStatic
}

// InvalidPageAddress marks an unused entry in a list of bad pages
const InvalidPageAddress uint64 = math.MaxUint64

// BadPage is a page that must be kept out of circulation
type BadPage struct {
	Address uint64
	Source  PageSource
}

// ChunkState is the lifecycle state of a blacklisted page
type ChunkState uint8

const (
	// ChunkUnregistered pages are known to be bad but could not be removed from the heap
	ChunkUnregistered ChunkState = iota
	// ChunkValid pages are held by a dedicated allocation and can never be handed out
	ChunkValid
	// ChunkPendingRetirement pages are in use and will be blacklisted when their block is freed
	ChunkPendingRetirement
)

var chunkStateMapping = map[ChunkState]string{
	ChunkUnregistered:      "Unregistered",
	ChunkValid:             "Valid",
	ChunkPendingRetirement: "PendingRetirement",
}

func (s ChunkState) String() string {
	return chunkStateMapping[s]
}

// BlacklistEntry is a snapshot of a single blacklisted page
type BlacklistEntry struct {
	Address uint64
	Size    uint64
	Source  PageSource
	State   ChunkState
}

type blacklistChunk struct {
	page    BadPage
	address uint64
	size    uint64

	valid             bool
	pendingRetirement bool
	allocation        *Allocation
}

func (c *blacklistChunk) end() uint64 {
	return c.address + c.size - 1
}

func (c *blacklistChunk) state() ChunkState {
	switch {
	case c.valid:
		return ChunkValid
	case c.pendingRetirement:
		return ChunkPendingRetirement
	}
	return ChunkUnregistered
}

type blacklist struct {
	capacity  int
	addresses []BadPage
	chunks    []*blacklistChunk

	staticBytes  uint64
	dynamicBytes uint64
}

func (b *blacklist) stored(address uint64) bool {
	for _, page := range b.addresses {
		if memutils.AlignDown(page.Address, PageSize) == address {
			return true
		}
	}
	return false
}

func (h *Heap) pageRetirementEnabled() bool {
	return h.flags&HeapCreatePageRetirement != 0
}

func (h *Heap) dynamicOffliningEnabled() bool {
	return h.flags&HeapCreateDynamicPageOfflining != 0
}

// BlacklistPages removes the given pages from circulation. Pages that are already blacklisted, that lie
// outside the heap, or that are InvalidPageAddress are skipped.
func (h *Heap) BlacklistPages(pages []BadPage) error {
	if !h.pageRetirementEnabled() {
		return errors.Wrap(memutils.ErrNotSupported, "page retirement is not enabled for this heap")
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()

	if err := h.checkAlive(); err != nil {
		return err
	}

	err := h.blacklistPages(pages)
	h.debugValidate()
	return err
}

func (h *Heap) blacklistPages(pages []BadPage) error {
	for _, page := range pages {
		if page.Address == InvalidPageAddress {
			continue
		}

		address := memutils.AlignDown(page.Address, PageSize)
		if address < h.base || address-h.base >= h.total {
			h.logger.LogAttrs(context.Background(), slog.LevelDebug, "skipping bad page outside of heap",
				slog.String("address", hexString(page.Address)))
			continue
		}
		if h.blacklist.stored(address) {
			continue
		}
		if len(h.blacklist.addresses) >= h.blacklist.capacity {
			return errors.Wrapf(memutils.ErrInsufficientResources, "blacklist is full at %d pages", h.blacklist.capacity)
		}

		h.blacklist.addresses = append(h.blacklist.addresses, page)
		if page.Source.dynamic() {
			h.blacklist.dynamicBytes += PageSize
		} else {
			h.blacklist.staticBytes += PageSize
		}

		chunk := &blacklistChunk{
			page:    page,
			address: address,
			size:    PageSize,
		}
		h.blacklist.chunks = append(h.blacklist.chunks, chunk)

		if err := h.blacklistChunk(chunk); err != nil {
			if h.dynamicOffliningEnabled() {
				chunk.pendingRetirement = true
			}
			h.logger.LogAttrs(context.Background(), slog.LevelWarn, "failed to blacklist page",
				slog.String("address", hexString(address)),
				slog.Bool("pending", chunk.pendingRetirement),
				slog.Any("error", err),
			)
		}
	}

	return nil
}

// blacklistChunk takes a dedicated fixed-address allocation over the chunk's page
func (h *Heap) blacklistChunk(chunk *blacklistChunk) error {
	req := AllocationRequest{
		Owner:     OwnerBlacklist,
		Type:      TypeReserved,
		Flags:     AllocFixedAddress,
		Size:      chunk.size,
		Alignment: PageSize,
		Offset:    chunk.address,
		internal:  true,
	}

	alloc, err := h.allocate(&req)
	if err != nil {
		return err
	}

	chunk.allocation = alloc
	chunk.valid = true

	if chunk.pendingRetirement {
		chunk.pendingRetirement = false
		h.retirement.ChunkRetired(chunk.page)
	}

	return nil
}

func (h *Heap) releaseChunk(chunk *blacklistChunk) error {
	head, ok := h.allocationHead(chunk.allocation)
	chunk.valid = false
	chunk.allocation = nil
	if !ok {
		return errors.Wrapf(memutils.ErrInvalidState, "blacklisted page at 0x%x has no allocation", chunk.address)
	}

	return h.release(head)
}

// freeBlacklistRange releases every valid chunk that lies entirely within [begin, begin+size)
func (h *Heap) freeBlacklistRange(begin, size uint64) {
	if size == 0 {
		return
	}
	end := begin + size - 1
	if memutils.AddOverflows(begin, size-1) {
		end = math.MaxUint64
	}

	for _, chunk := range h.blacklist.chunks {
		if !chunk.valid || chunk.pendingRetirement {
			continue
		}
		if chunk.address < begin || chunk.end() > end {
			continue
		}

		if err := h.releaseChunk(chunk); err != nil {
			h.logger.LogAttrs(context.Background(), slog.LevelError, "failed to release blacklisted page",
				slog.String("address", hexString(chunk.address)),
				slog.Any("error", err),
			)
		}
	}
}

// blacklistChunks blacklists every chunk within [begin, begin+size) that is not currently valid
func (h *Heap) blacklistChunks(begin, size uint64) error {
	if size == 0 {
		return nil
	}
	end := begin + size - 1
	if memutils.AddOverflows(begin, size-1) {
		end = math.MaxUint64
	}

	var result *multierror.Error
	for _, chunk := range h.blacklist.chunks {
		if chunk.valid {
			continue
		}
		if chunk.address < begin || chunk.end() > end {
			continue
		}

		if err := h.blacklistChunk(chunk); err != nil {
			h.logger.LogAttrs(context.Background(), slog.LevelWarn, "failed to blacklist page",
				slog.String("address", hexString(chunk.address)),
				slog.Any("error", err),
			)
			result = multierror.Append(result, err)
		}
	}

	return result.ErrorOrNil()
}

// retirePending blacklists the pending chunks inside a range that was just freed
func (h *Heap) retirePending(begin, end uint64) error {
	if !h.dynamicOffliningEnabled() {
		return nil
	}

	var result *multierror.Error
	for _, chunk := range h.blacklist.chunks {
		if !chunk.pendingRetirement || chunk.address < begin || chunk.address > end {
			continue
		}

		if err := h.blacklistChunk(chunk); err != nil {
			result = multierror.Append(result, errors.Wrapf(memutils.ErrInvalidState, "failed to retire page at 0x%x: %v", chunk.address, err))
		}
	}

	return result.ErrorOrNil()
}

// StorePendingBlacklist records a page that failed while in use. The page is blacklisted immediately if
// it is free, and otherwise as soon as the block containing it is freed.
func (h *Heap) StorePendingBlacklist(address uint64) error {
	if !h.dynamicOffliningEnabled() {
		return errors.Wrap(memutils.ErrNotSupported, "dynamic page offlining is not enabled for this heap")
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()

	if err := h.checkAlive(); err != nil {
		return err
	}

	aligned := memutils.AlignDown(address, PageSize)
	if aligned < h.base || aligned-h.base >= h.total {
		return errors.Wrapf(memutils.ErrInvalidArgument, "address 0x%x is outside of the heap", address)
	}

	for _, chunk := range h.blacklist.chunks {
		if chunk.address == aligned {
			return nil
		}
	}

	if len(h.blacklist.addresses) >= h.blacklist.capacity {
		return errors.Wrapf(memutils.ErrInsufficientResources, "blacklist is full at %d pages", h.blacklist.capacity)
	}

	page := BadPage{Address: address, Source: PageSourceDBE}
	h.blacklist.addresses = append(h.blacklist.addresses, page)
	h.blacklist.dynamicBytes += PageSize

	chunk := &blacklistChunk{
		page:              page,
		address:           aligned,
		size:              PageSize,
		pendingRetirement: true,
	}
	h.blacklist.chunks = append(h.blacklist.chunks, chunk)

	// An in-use page stays pending until its block is freed
	if err := h.blacklistChunk(chunk); err != nil {
		h.logger.LogAttrs(context.Background(), slog.LevelDebug, "page is pending retirement",
			slog.String("address", hexString(aligned)),
			slog.Any("error", err),
		)
	}

	h.debugValidate()
	return nil
}

// FreeBlacklistedPages returns every blacklisted page to the heap and forgets the stored addresses
func (h *Heap) FreeBlacklistedPages() error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	err := h.freeBlacklistedPages()
	h.debugValidate()
	return err
}

func (h *Heap) freeBlacklistedPages() error {
	var result *multierror.Error
	for _, chunk := range h.blacklist.chunks {
		if !chunk.valid {
			continue
		}
		if err := h.releaseChunk(chunk); err != nil {
			result = multierror.Append(result, err)
		}
	}

	h.blacklist.chunks = nil
	h.blacklist.addresses = nil
	h.blacklist.staticBytes = 0
	h.blacklist.dynamicBytes = 0

	return result.ErrorOrNil()
}

// Blacklist returns the state of every known bad page
func (h *Heap) Blacklist() []BlacklistEntry {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	entries := make([]BlacklistEntry, 0, len(h.blacklist.chunks))
	for _, chunk := range h.blacklist.chunks {
		entries = append(entries, BlacklistEntry{
			Address: chunk.address,
			Size:    chunk.size,
			Source:  chunk.page.Source,
			State:   chunk.state(),
		})
	}

	return entries
}
