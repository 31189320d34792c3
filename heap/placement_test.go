package heap_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/fbheap/heap"
	"github.com/vkngwrapper/fbheap/memutils"
)

func TestTextureClientsAlternate(t *testing.T) {
	h := newTestHeap(t, 0x10000, heap.CreateOptions{})

	texture := func(client heap.ClientID) *heap.Allocation {
		alloc, err := h.Allocate(heap.AllocationRequest{
			Owner:  testOwner,
			Client: client,
			Type:   heap.TypeTexture,
			Size:   0x1000,
		})
		require.NoError(t, err)
		return alloc
	}

	first := texture(1)
	require.Equal(t, uint64(0), first.Offset())

	second := texture(1)
	require.Equal(t, uint64(0xF000), second.Offset())

	other := texture(2)
	require.Equal(t, uint64(0x1000), other.Offset())

	third := texture(1)
	require.Equal(t, uint64(0xE000), third.Offset())

	untracked, err := h.Allocate(heap.AllocationRequest{
		Owner:  testOwner,
		Client: 1,
		Type:   heap.TypeTexture,
		Flags:  heap.AllocForceMemGrowsUp,
		Size:   0x1000,
	})
	require.NoError(t, err)
	require.Equal(t, uint64(0x2000), untracked.Offset())

	for _, alloc := range []*heap.Allocation{first, second, other, third, untracked} {
		require.NoError(t, h.Free(alloc))
	}
	requireSingleFreeBlock(t, h)

	// Every slot was released, so client 2 is treated as a brand new first client
	again := texture(2)
	require.Equal(t, uint64(0), again.Offset())
	require.NoError(t, h.Free(again))
}

func TestTextureRingEviction(t *testing.T) {
	h := newTestHeap(t, 0x10000, heap.CreateOptions{TextureClients: 1})

	texture := func(client heap.ClientID) *heap.Allocation {
		alloc, err := h.Allocate(heap.AllocationRequest{
			Owner:  testOwner,
			Client: client,
			Type:   heap.TypeTexture,
			Size:   0x1000,
		})
		require.NoError(t, err)
		return alloc
	}

	first := texture(1)
	require.Equal(t, uint64(0), first.Offset())

	// Client 2 evicts client 1 and grows opposite to it
	second := texture(2)
	require.Equal(t, uint64(0x1000), second.Offset())

	require.NoError(t, h.Free(first))

	third := texture(2)
	require.Equal(t, uint64(0), third.Offset())

	require.NoError(t, h.Free(second))
	require.NoError(t, h.Free(third))
	requireSingleFreeBlock(t, h)
}

func twoRegions() heap.StaticRegions {
	return heap.StaticRegions{
		{Base: 0, Limit: 0x7FFF, Performance: 1},
		{Base: 0x8000, Limit: 0xFFFF, Performance: 2, SupportsCompression: true, SupportsISO: true},
	}
}

func TestRegionPlacement(t *testing.T) {
	testCases := map[string]struct {
		options heap.CreateOptions
		req     heap.AllocationRequest
		offset  uint64
		err     error
	}{
		"FastestRegionFirst": {
			options: heap.CreateOptions{Regions: twoRegions()},
			offset:  0x8000,
		},
		"LowPriority": {
			options: heap.CreateOptions{Regions: twoRegions()},
			req:     heap.AllocationRequest{Priority: heap.PriorityLow},
			offset:  0,
		},
		"CompressionRequiresCapableRegion": {
			options: heap.CreateOptions{Regions: twoRegions()},
			req:     heap.AllocationRequest{Priority: heap.PriorityLow, Compression: heap.CompressionRequired},
			offset:  0x8000,
		},
		"ISORequiresCapableRegion": {
			options: heap.CreateOptions{Regions: twoRegions()},
			req:     heap.AllocationRequest{Priority: heap.PriorityLow, Type: heap.TypePrimary},
			offset:  0x8000,
		},
		"DepthGrowsDownInRegion": {
			options: heap.CreateOptions{Regions: twoRegions()},
			req:     heap.AllocationRequest{Priority: heap.PriorityLow, Type: heap.TypeDepth},
			offset:  0x7000,
		},
		"PreferSlowRegion": {
			options: heap.CreateOptions{Regions: twoRegions(), PreferSlowRegion: true},
			offset:  0,
		},
		"PreferSlowRegionHighPriority": {
			options: heap.CreateOptions{Regions: twoRegions(), PreferSlowRegion: true},
			req:     heap.AllocationRequest{Priority: heap.PriorityHigh},
			offset:  0x8000,
		},
		"ProtectedNeedsProtectedRegion": {
			options: heap.CreateOptions{Regions: twoRegions()},
			req:     heap.AllocationRequest{Flags: heap.AllocProtected},
			err:     memutils.ErrOutOfMemory,
		},
		"ProtectedRegion": {
			options: heap.CreateOptions{Regions: heap.StaticRegions{
				{Base: 0, Limit: 0x7FFF, Protected: true},
				{Base: 0x8000, Limit: 0xFFFF},
			}},
			req:    heap.AllocationRequest{Flags: heap.AllocProtected, Type: heap.TypeDepth},
			offset: 0x7000,
		},
		"OutsideEveryRegion": {
			options: heap.CreateOptions{Regions: heap.StaticRegions{
				{Base: 0x8000, Limit: 0xFFFF},
			}},
			offset: 0x8000,
		},
		"FixedOutsideEveryRegion": {
			options: heap.CreateOptions{Regions: heap.StaticRegions{
				{Base: 0x8000, Limit: 0xFFFF},
			}},
			req: heap.AllocationRequest{Flags: heap.AllocFixedAddress, Offset: 0x1000},
			err: memutils.ErrOutOfMemory,
		},
		"StraddlesRegions": {
			options: heap.CreateOptions{Regions: twoRegions()},
			req:     heap.AllocationRequest{Flags: heap.AllocFixedAddress, Offset: 0x7000, Size: 0x2000},
			err:     memutils.ErrOutOfMemory,
		},
		"PMAAvoidsInternalRegion": {
			options: heap.CreateOptions{Regions: heap.StaticRegions{
				{Base: 0, Limit: 0x7FFF, Performance: 2, InternalHeap: true},
				{Base: 0x8000, Limit: 0xFFFF, Performance: 1},
			}},
			req:    heap.AllocationRequest{Owner: heap.OwnerPMAReservedRegion},
			offset: 0x8000,
		},
	}

	for name, testCase := range testCases {
		t.Run(name, func(t *testing.T) {
			h := newTestHeap(t, 0x10000, testCase.options)

			req := testCase.req
			if req.Owner == 0 {
				req.Owner = testOwner
			}
			if req.Size == 0 {
				req.Size = 0x1000
			}

			alloc, err := h.Allocate(req)
			if testCase.err != nil {
				require.ErrorIs(t, err, testCase.err)
				requireSingleFreeBlock(t, h)
				return
			}

			require.NoError(t, err)
			require.Equal(t, testCase.offset, alloc.Offset())
			require.NoError(t, h.Free(alloc))
			requireSingleFreeBlock(t, h)
		})
	}
}

func TestRegionsFallBackToSlowerRegion(t *testing.T) {
	h := newTestHeap(t, 0x10000, heap.CreateOptions{Regions: twoRegions()})

	fast, err := h.Allocate(heap.AllocationRequest{Owner: testOwner, Size: 0x8000})
	require.NoError(t, err)
	require.Equal(t, uint64(0x8000), fast.Offset())

	slow, err := h.Allocate(heap.AllocationRequest{Owner: testOwner, Size: 0x1000})
	require.NoError(t, err)
	require.Equal(t, uint64(0), slow.Offset())

	_, err = h.Allocate(heap.AllocationRequest{Owner: testOwner, Size: 0x1000, Compression: heap.CompressionRequired})
	require.ErrorIs(t, err, memutils.ErrOutOfMemory)

	require.NoError(t, h.Free(fast))
	require.NoError(t, h.Free(slow))
	requireSingleFreeBlock(t, h)
}

func TestReservedRegions(t *testing.T) {
	h := newTestHeap(t, 0x10000, heap.CreateOptions{
		Regions: heap.StaticRegions{
			{Base: 0x8000, Limit: 0x8FFF, Reserved: true},
			{Base: 0, Limit: 0x7FFF},
			{Base: 0x9000, Limit: 0xFFFF},
		},
	})
	require.Equal(t, uint64(0xF000), h.FreeBytes())
	require.Equal(t, uint64(0xF000), h.UsableSize())

	_, err := h.Allocate(heap.AllocationRequest{
		Owner:  testOwner,
		Flags:  heap.AllocFixedAddress,
		Offset: 0x8000,
		Size:   0x1000,
	})
	require.ErrorIs(t, err, memutils.ErrOutOfMemory)

	// Nothing may straddle the reserved block
	alloc, err := h.Allocate(heap.AllocationRequest{Owner: testOwner, Size: 0x9000})
	require.ErrorIs(t, err, memutils.ErrOutOfMemory)
	require.Nil(t, alloc)

	alloc, err = h.Allocate(heap.AllocationRequest{Owner: testOwner, Size: 0x7000, Type: heap.TypeDepth})
	require.NoError(t, err)
	require.Equal(t, uint64(0x9000), alloc.Offset())
	require.NoError(t, h.Free(alloc))

	require.NoError(t, h.Destroy())
	requireSingleFreeBlock(t, h)
}
