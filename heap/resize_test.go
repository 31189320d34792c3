package heap_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/fbheap/heap"
	"github.com/vkngwrapper/fbheap/heap/mocks"
	"github.com/vkngwrapper/fbheap/memutils"
	"go.uber.org/mock/gomock"
)

func TestResize(t *testing.T) {
	h := newTestHeap(t, 0x10000, heap.CreateOptions{HeapType: heap.HeapTypePhysMemSuballocator})

	require.NoError(t, h.Resize(0x10000))
	require.Equal(t, uint64(0x20000), h.Size())
	requireSingleFreeBlock(t, h)

	top, err := h.Allocate(heap.AllocationRequest{Owner: testOwner, Type: heap.TypeDepth, Size: 0x1000})
	require.NoError(t, err)
	require.Equal(t, uint64(0x1F000), top.Offset())

	err = h.Resize(-0x1000)
	require.ErrorIs(t, err, memutils.ErrOutOfMemory)
	require.Equal(t, uint64(0x20000), h.Size())

	require.NoError(t, h.Resize(0x1000))
	require.Equal(t, uint64(0x21000), h.Size())
	require.Equal(t, uint64(0x20000), h.FreeBytes())

	blocks := collectBlocks(t, h)
	require.Len(t, blocks, 3)
	require.Equal(t, heap.BlockInfo{Begin: 0x20000, End: 0x20FFF, Free: true}, blocks[2])

	err = h.Resize(-0x1000)
	require.ErrorIs(t, err, memutils.ErrInvalidArgument)

	require.NoError(t, h.Resize(-0x800))
	require.Equal(t, uint64(0x20800), h.Size())
	require.Equal(t, uint64(0x1F800), h.FreeBytes())

	require.NoError(t, h.Resize(0))
	require.Equal(t, uint64(0x20800), h.Size())

	require.NoError(t, h.Free(top))
	requireSingleFreeBlock(t, h)

	require.NoError(t, h.Resize(-0x10000))
	require.Equal(t, uint64(0x10800), h.Size())
	requireSingleFreeBlock(t, h)
}

func TestResizeNotSupported(t *testing.T) {
	for _, heapType := range []heap.HeapType{heap.HeapTypeGlobal, heap.HeapTypePartitionLocal} {
		h := newTestHeap(t, 0x10000, heap.CreateOptions{HeapType: heapType})

		err := h.Resize(0x1000)
		require.ErrorIs(t, err, memutils.ErrNotSupported)
		require.Equal(t, uint64(0x10000), h.Size())
	}
}

func TestResizeRebuildsBlacklist(t *testing.T) {
	ctrl := gomock.NewController(t)
	reporter := mocks.NewMockRetirementReporter(ctrl)

	gomock.InOrder(
		reporter.EXPECT().BlacklistAddresses(uint64(0), uint64(0x10000)).Return([]heap.BadPage{
			{Address: 0x4000, Source: heap.PageSourceStatic},
		}, nil),
		reporter.EXPECT().BlacklistAddresses(uint64(0), uint64(0x20000)).Return([]heap.BadPage{
			{Address: 0x4000, Source: heap.PageSourceStatic},
			{Address: 0x18000, Source: heap.PageSourceMultipleSBE},
		}, nil),
	)

	h := newTestHeap(t, 0x10000, heap.CreateOptions{
		HeapType:           heap.HeapTypePhysMemSuballocator,
		Flags:              heap.HeapCreatePageRetirement,
		RetirementReporter: reporter,
	})
	require.Len(t, h.Blacklist(), 1)
	require.Equal(t, uint64(0xF000), h.FreeBytes())

	require.NoError(t, h.Resize(0x10000))
	require.Equal(t, []heap.BlacklistEntry{
		{Address: 0x4000, Size: heap.PageSize, Source: heap.PageSourceStatic, State: heap.ChunkValid},
		{Address: 0x18000, Size: heap.PageSize, Source: heap.PageSourceMultipleSBE, State: heap.ChunkValid},
	}, h.Blacklist())
	require.Equal(t, uint64(0x1E000), h.FreeBytes())

	info := h.Info()
	require.Equal(t, uint64(0x1000), info.StaticBlacklistBytes)
	require.Equal(t, uint64(0x1000), info.DynamicBlacklistBytes)

	require.NoError(t, h.Destroy())
}
